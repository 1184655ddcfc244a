package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sepiso23/creator-monetization/internal/middleware"
	"github.com/sepiso23/creator-monetization/internal/models"
	"github.com/sepiso23/creator-monetization/internal/repository"
	"github.com/sepiso23/creator-monetization/internal/service"
)

const maxCallbackBytes = 1 << 20

func (h *HTTPHandler) HandleDepositCallback(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.webhooks.HandleDepositCallback(c.Request.Context(), raw)
	switch {
	case errors.Is(err, service.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "callback could not be processed"})
	case result.Duplicate:
		c.JSON(http.StatusOK, gin.H{"message": "Duplicate callback ignored"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Callback processed", "status": result.Status})
	}
}

func (h *HTTPHandler) HandleInitiateTip(c *gin.Context) {
	var req models.TipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	payment, err := h.payments.InitiateTip(c.Request.Context(), req)
	if err != nil {
		if payment != nil {
			status := http.StatusServiceUnavailable
			if errors.Is(err, service.ErrGatewayRejected) {
				status = http.StatusBadGateway
			}
			c.JSON(status, gin.H{"error": err.Error(), "paymentId": payment.ID})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (h *HTTPHandler) HandlePaymentStatus(c *gin.Context) {
	paymentID, ok := uuidParam(c, "payment_id")
	if !ok {
		return
	}
	result, err := h.payments.Status(c.Request.Context(), paymentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) HandleSyncPayment(c *gin.Context) {
	paymentID, ok := uuidParam(c, "payment_id")
	if !ok {
		return
	}
	payment, err := h.payments.Sync(c.Request.Context(), paymentID, middleware.ActorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *HTTPHandler) HandleWebhookLogs(c *gin.Context) {
	paymentID, ok := uuidParam(c, "payment_id")
	if !ok {
		return
	}
	logs, err := h.payments.WebhookLogs(c.Request.Context(), paymentID, middleware.ActorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if logs == nil {
		logs = []models.PaymentWebhookLog{}
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": logs})
}

func (h *HTTPHandler) HandleDeletePayment(c *gin.Context) {
	paymentID, ok := uuidParam(c, "payment_id")
	if !ok {
		return
	}
	if err := h.payments.SoftDelete(c.Request.Context(), paymentID, middleware.ActorFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
