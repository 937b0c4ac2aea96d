package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gdip/internal/account/application"
	"github.com/wyfcoding/gdip/internal/account/domain"
	certdomain "github.com/wyfcoding/gdip/internal/certificate/domain"
	clusterapp "github.com/wyfcoding/gdip/internal/cluster/application"
	commoditydomain "github.com/wyfcoding/gdip/internal/commodity/domain"
	"github.com/wyfcoding/gdip/pkg/logger"
)

// AccountHandler 投资账户 HTTP 处理器
type AccountHandler struct {
	admission *application.AdmissionService
	accounts  *application.AccountService
}

// NewAccountHandler 创建投资账户 HTTP 处理器
func NewAccountHandler(admission *application.AdmissionService, accounts *application.AccountService) *AccountHandler {
	return &AccountHandler{admission: admission, accounts: accounts}
}

// RegisterRoutes 注册路由
func (h *AccountHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/purchase", h.Purchase)
	api.GET("/tpias", h.ListByUser)
	api.GET("/tpias/:id", h.Get)

	admin := api.Group("/admin")
	{
		admin.GET("/tpias", h.List)
		admin.POST("/tpias/:id/suspend", h.Suspend)
		admin.POST("/tpias/:id/resume", h.Resume)
		admin.POST("/tpias/:id/mature", h.Mature)
	}
}

// PurchaseRequest 认购请求
type PurchaseRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	CommodityType string `json:"commodity_type" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	ProfitMode    string `json:"profit_mode" binding:"required"`
}

// Purchase 认购 TPIA 并入池
func (h *AccountHandler) Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	result, err := h.admission.Purchase(c.Request.Context(), application.PurchaseCommand{
		UserID:        req.UserID,
		CommodityType: req.CommodityType,
		Amount:        amount,
		ProfitMode:    req.ProfitMode,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAmountTooSmall),
			errors.Is(err, domain.ErrInvalidProfitMode),
			errors.Is(err, commoditydomain.ErrInvalidCommodityType):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, certdomain.ErrCertificateIssuance):
			// 外部承保方失败
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		case errors.Is(err, clusterapp.ErrNoSlotAvailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			logger.Error(c.Request.Context(), "purchase failed",
				"user_id", req.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, result)
}

// Get 账户详情
func (h *AccountHandler) Get(c *gin.Context) {
	account, err := h.accounts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Error(c.Request.Context(), "failed to get account",
			"account_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, account)
}

// ListByUser 用户名下账户
func (h *AccountHandler) ListByUser(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	accounts, err := h.accounts.ListByUser(c.Request.Context(), userID)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list accounts",
			"user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// List 管理端分页列出账户
func (h *AccountHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	accounts, pagination, err := h.accounts.List(c.Request.Context(), page, pageSize)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list accounts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accounts":   accounts,
		"pagination": pagination,
	})
}

// Suspend 冻结账户
func (h *AccountHandler) Suspend(c *gin.Context) {
	h.changeStatus(c, h.accounts.Suspend)
}

// Resume 解冻账户
func (h *AccountHandler) Resume(c *gin.Context) {
	h.changeStatus(c, h.accounts.Resume)
}

// Mature 账户到期
func (h *AccountHandler) Mature(c *gin.Context) {
	h.changeStatus(c, h.accounts.Mature)
}

func (h *AccountHandler) changeStatus(c *gin.Context, op func(context.Context, string) (*domain.InvestmentAccount, error)) {
	account, err := op(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrInvalidStatusTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logger.Error(c.Request.Context(), "account status change failed",
				"account_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, account)
}
