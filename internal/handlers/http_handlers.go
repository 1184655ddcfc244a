package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sepiso23/creator-monetization/internal/fees"
	"github.com/sepiso23/creator-monetization/internal/middleware"
	"github.com/sepiso23/creator-monetization/internal/models"
	"github.com/sepiso23/creator-monetization/internal/repository"
	"github.com/sepiso23/creator-monetization/internal/service"
)

//go:generate mockgen -source=http_handlers.go -destination=../mocks/mock_handlers.go -package=mocks

type WalletService interface {
	CreateWallet(ctx context.Context, req models.CreateWalletRequest, actor *service.Actor) (*models.Wallet, error)
	GetWallet(ctx context.Context, walletID uuid.UUID) (*service.WalletSummary, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error)
	VerifyKYC(ctx context.Context, walletID uuid.UUID, actor *service.Actor) (*models.Wallet, error)
	RecalculateBalance(ctx context.Context, walletID uuid.UUID, actor *service.Actor) (decimal.Decimal, error)
}

type PayoutService interface {
	InitiatePayout(ctx context.Context, walletID uuid.UUID, initiatedBy *service.Actor) (*models.WalletTransaction, error)
	Finalize(ctx context.Context, transactionID uuid.UUID, success bool, approvedBy *service.Actor) (*models.WalletTransaction, error)
}

type PaymentService interface {
	InitiateTip(ctx context.Context, req models.TipRequest) (*models.Payment, error)
	Status(ctx context.Context, paymentID uuid.UUID) (*service.PaymentStatusResult, error)
	Sync(ctx context.Context, paymentID uuid.UUID, actor *service.Actor) (*models.Payment, error)
	SoftDelete(ctx context.Context, paymentID uuid.UUID, actor *service.Actor) error
	WebhookLogs(ctx context.Context, paymentID uuid.UUID, actor *service.Actor) ([]models.PaymentWebhookLog, error)
}

type WebhookReconciler interface {
	HandleDepositCallback(ctx context.Context, raw []byte) (*service.WebhookResult, error)
}

type HTTPHandler struct {
	wallets  WalletService
	payouts  PayoutService
	payments PaymentService
	webhooks WebhookReconciler
}

func NewHTTPHandler(wallets WalletService, payouts PayoutService, payments PaymentService, webhooks WebhookReconciler) *HTTPHandler {
	registerValidators()
	return &HTTPHandler{
		wallets:  wallets,
		payouts:  payouts,
		payments: payments,
		webhooks: webhooks,
	}
}

// RegisterRoutes mounts the API. idempotency may be nil.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine, auth gin.HandlerFunc, idempotency gin.HandlerFunc) {
	v1 := r.Group("/api/v1")
	{
		v1.POST("/webhooks/deposits", h.HandleDepositCallback)
		v1.POST("/tips", h.HandleInitiateTip)
		v1.GET("/payments/:payment_id/status", h.HandlePaymentStatus)
		v1.GET("/wallets/:wallet_id", h.HandleGetWallet)
		v1.GET("/wallets/:wallet_id/transactions", h.HandleListTransactions)
	}

	admin := v1.Group("/admin", auth)
	{
		admin.POST("/wallets", h.HandleCreateWallet)
		admin.POST("/wallets/:wallet_id/kyc/verify", h.HandleVerifyKYC)
		admin.POST("/wallets/:wallet_id/recalculate", h.HandleRecalculate)
		payout := []gin.HandlerFunc{h.HandleInitiatePayout}
		if idempotency != nil {
			payout = append([]gin.HandlerFunc{idempotency}, payout...)
		}
		admin.POST("/wallets/:wallet_id/payouts", payout...)
		admin.POST("/payouts/:transaction_id/finalize", h.HandleFinalizePayout)
		admin.POST("/payments/:payment_id/sync", h.HandleSyncPayment)
		admin.GET("/payments/:payment_id/webhooks", h.HandleWebhookLogs)
		admin.DELETE("/payments/:payment_id", h.HandleDeletePayment)
	}
}

func (h *HTTPHandler) HandleCreateWallet(c *gin.Context) {
	var req models.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	wallet, err := h.wallets.CreateWallet(c.Request.Context(), req, middleware.ActorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wallet)
}

func (h *HTTPHandler) HandleGetWallet(c *gin.Context) {
	walletID, ok := uuidParam(c, "wallet_id")
	if !ok {
		return
	}
	wallet, err := h.wallets.GetWallet(c.Request.Context(), walletID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (h *HTTPHandler) HandleListTransactions(c *gin.Context) {
	walletID, ok := uuidParam(c, "wallet_id")
	if !ok {
		return
	}
	txs, err := h.wallets.ListTransactions(c.Request.Context(), walletID)
	if err != nil {
		writeError(c, err)
		return
	}
	if txs == nil {
		txs = []models.WalletTransaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *HTTPHandler) HandleVerifyKYC(c *gin.Context) {
	walletID, ok := uuidParam(c, "wallet_id")
	if !ok {
		return
	}
	wallet, err := h.wallets.VerifyKYC(c.Request.Context(), walletID, middleware.ActorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (h *HTTPHandler) HandleRecalculate(c *gin.Context) {
	walletID, ok := uuidParam(c, "wallet_id")
	if !ok {
		return
	}
	balance, err := h.wallets.RecalculateBalance(c.Request.Context(), walletID, middleware.ActorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance.StringFixed(2)})
}

func (h *HTTPHandler) HandleInitiatePayout(c *gin.Context) {
	walletID, ok := uuidParam(c, "wallet_id")
	if !ok {
		return
	}
	tx, err := h.payouts.InitiatePayout(c.Request.Context(), walletID, middleware.ActorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *HTTPHandler) HandleFinalizePayout(c *gin.Context) {
	transactionID, ok := uuidParam(c, "transaction_id")
	if !ok {
		return
	}
	var req models.FinalizePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	tx, err := h.payouts.Finalize(c.Request.Context(), transactionID, *req.Success, middleware.ActorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusServiceUnavailable
	switch {
	case errors.Is(err, repository.ErrWalletNotFound),
		errors.Is(err, repository.ErrPaymentNotFound),
		errors.Is(err, repository.ErrTransactionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, repository.ErrDuplicateTransaction),
		errors.Is(err, repository.ErrWalletAlreadyExist),
		errors.Is(err, repository.ErrConstraint):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidTransaction),
		errors.Is(err, fees.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrGatewayRejected):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
