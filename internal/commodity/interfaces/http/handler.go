package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/gdip/internal/commodity/application"
	"github.com/wyfcoding/gdip/internal/commodity/domain"
	"github.com/wyfcoding/gdip/pkg/logger"
)

// CommodityHandler 商品类型 HTTP 处理器
type CommodityHandler struct {
	registry *application.RegistryService
}

// NewCommodityHandler 创建商品类型 HTTP 处理器
func NewCommodityHandler(registry *application.RegistryService) *CommodityHandler {
	return &CommodityHandler{registry: registry}
}

// RegisterRoutes 注册路由
func (h *CommodityHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/commodities/types", h.ListActive)

	admin := api.Group("/admin")
	{
		admin.GET("/commodities/types", h.ListAll)
		admin.POST("/commodities/types", h.Create)
		admin.PATCH("/commodities/types/:id", h.Update)
	}
}

// ListActive storefront 可见的启用类型
func (h *CommodityHandler) ListActive(c *gin.Context) {
	commodities, err := h.registry.List(c.Request.Context(), true)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list commodity types", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"types": commodities})
}

// ListAll 管理端列出全部类型（含停用）
func (h *CommodityHandler) ListAll(c *gin.Context) {
	commodities, err := h.registry.List(c.Request.Context(), false)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list commodity types", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"types": commodities})
}

// CreateRequest 创建商品类型请求
type CreateRequest struct {
	Name  string `json:"name" binding:"required"`
	Label string `json:"label" binding:"required"`
	Icon  string `json:"icon"`
}

// Create 新建商品类型
func (h *CommodityHandler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	commodity, err := h.registry.Create(c.Request.Context(), application.CreateCommand{
		Name:  req.Name,
		Label: req.Label,
		Icon:  req.Icon,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateCommodityType) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		logger.Error(c.Request.Context(), "failed to create commodity type", "name", req.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, commodity)
}

// UpdateRequest 编辑商品类型请求
type UpdateRequest struct {
	Label  *string `json:"label"`
	Icon   *string `json:"icon"`
	Active *bool   `json:"active"`
}

// Update 编辑商品类型（label/icon/启停）
func (h *CommodityHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid commodity type id"})
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	commodity, err := h.registry.Update(c.Request.Context(), uint(id), application.UpdateCommand{
		Label:  req.Label,
		Icon:   req.Icon,
		Active: req.Active,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCommodityType) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Error(c.Request.Context(), "failed to update commodity type", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, commodity)
}
