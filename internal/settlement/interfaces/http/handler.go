package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/gdip/internal/settlement/application"
	"github.com/wyfcoding/gdip/pkg/logger"
)

// LedgerHandler 分润流水 HTTP 处理器
type LedgerHandler struct {
	query *application.LedgerQueryService
}

// NewLedgerHandler 创建分润流水 HTTP 处理器
func NewLedgerHandler(query *application.LedgerQueryService) *LedgerHandler {
	return &LedgerHandler{query: query}
}

// RegisterRoutes 注册路由
func (h *LedgerHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/tpias/:id/ledger", h.ListByAccount)

	admin := api.Group("/admin")
	{
		admin.GET("/cycles/:id/ledger", h.ListByCycle)
	}
}

// ListByAccount 账户分润流水
func (h *LedgerHandler) ListByAccount(c *gin.Context) {
	entries, err := h.query.ListByAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list account ledger",
			"account_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// ListByCycle 周期分润流水
func (h *LedgerHandler) ListByCycle(c *gin.Context) {
	entries, err := h.query.ListByCycle(c.Request.Context(), c.Param("id"))
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list cycle ledger",
			"cycle_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
