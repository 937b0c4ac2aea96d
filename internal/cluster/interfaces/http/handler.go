package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/gdip/internal/cluster/application"
	"github.com/wyfcoding/gdip/internal/cluster/domain"
	"github.com/wyfcoding/gdip/pkg/logger"
)

// ClusterHandler 集群 HTTP 处理器
type ClusterHandler struct {
	query *application.QueryService
}

// NewClusterHandler 创建集群 HTTP 处理器
func NewClusterHandler(query *application.QueryService) *ClusterHandler {
	return &ClusterHandler{query: query}
}

// RegisterRoutes 注册路由
func (h *ClusterHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/gdc/:id", h.GetDetail)

	admin := api.Group("/admin")
	{
		admin.GET("/gdcs", h.List)
	}
}

// GetDetail 集群详情（编号、满员度、状态、累计收益、成员列表）
func (h *ClusterHandler) GetDetail(c *gin.Context) {
	clusterID := c.Param("id")

	detail, err := h.query.GetDetail(c.Request.Context(), clusterID)
	if err != nil {
		if errors.Is(err, domain.ErrClusterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Error(c.Request.Context(), "failed to get cluster detail",
			"cluster_id", clusterID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, detail)
}

// List 管理端分页列出集群
func (h *ClusterHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	summaries, pagination, err := h.query.List(c.Request.Context(), page, pageSize)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list clusters", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clusters":   summaries,
		"pagination": pagination,
	})
}
