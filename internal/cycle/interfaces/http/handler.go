package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gdip/internal/cycle/application"
	"github.com/wyfcoding/gdip/internal/cycle/domain"
	"github.com/wyfcoding/gdip/pkg/logger"
)

// CycleHandler 交易周期 HTTP 处理器
type CycleHandler struct {
	cycles *application.CycleService
}

// NewCycleHandler 创建交易周期 HTTP 处理器
func NewCycleHandler(cycles *application.CycleService) *CycleHandler {
	return &CycleHandler{cycles: cycles}
}

// RegisterRoutes 注册路由
func (h *CycleHandler) RegisterRoutes(api *gin.RouterGroup) {
	admin := api.Group("/admin")
	{
		admin.GET("/cycles", h.List)
		admin.GET("/cycles/:id", h.Get)
		admin.POST("/cycles/:id/actual-rate", h.SetActualRate)
	}
}

// List 分页列出周期，支持 cluster_id 过滤
func (h *CycleHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	clusterID := c.Query("cluster_id")

	cycles, pagination, err := h.cycles.List(c.Request.Context(), clusterID, page, pageSize)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list cycles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cycles":     cycles,
		"pagination": pagination,
	})
}

// Get 周期详情
func (h *CycleHandler) Get(c *gin.Context) {
	cycle, err := h.cycles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrCycleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Error(c.Request.Context(), "failed to get cycle",
			"cycle_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cycle)
}

// ActualRateRequest 实际收益率录入请求
type ActualRateRequest struct {
	Rate string `json:"rate" binding:"required"`
}

// SetActualRate 录入周期实际收益率
func (h *CycleHandler) SetActualRate(c *gin.Context) {
	var req ActualRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rate"})
		return
	}

	cycle, err := h.cycles.SetActualRate(c.Request.Context(), c.Param("id"), rate)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCycleNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrCycleCompleted):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logger.Error(c.Request.Context(), "failed to set actual rate",
				"cycle_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, cycle)
}
