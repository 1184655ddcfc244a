package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sepiso23/creator-monetization/internal/models"
	"github.com/sepiso23/creator-monetization/internal/repository"
)

type WebhookResult struct {
	PaymentID uuid.UUID            `json:"paymentId"`
	Status    models.PaymentStatus `json:"status"`
	Duplicate bool                 `json:"duplicate"`
}

// WebhookReconciler applies deposit callbacks to payments and credits the
// wallet when a deposit completes.
type WebhookReconciler struct {
	store  repository.Store
	ledger *LedgerService
	logger *slog.Logger
}

func NewWebhookReconciler(store repository.Store, ledger *LedgerService, logger *slog.Logger) *WebhookReconciler {
	return &WebhookReconciler{
		store:  store,
		ledger: ledger,
		logger: logger,
	}
}

func (r *WebhookReconciler) HandleDepositCallback(ctx context.Context, raw []byte) (*WebhookResult, error) {
	started := time.Now()

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var cb models.DepositCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(cb.DepositID) == "" || strings.TrimSpace(cb.Status) == "" {
		return nil, fmt.Errorf("%w: depositId and status are required", ErrInvalidPayload)
	}
	paymentID, err := uuid.Parse(cb.DepositID)
	if err != nil {
		return nil, fmt.Errorf("%w: deposit %s", repository.ErrPaymentNotFound, cb.DepositID)
	}
	incoming := models.ParsePaymentStatus(cb.Status)
	externalID := strings.TrimSpace(cb.ProviderTransactionID)

	if externalID != "" {
		seen, err := r.store.WebhookLogExists(ctx, externalID)
		if err != nil {
			return nil, err
		}
		if seen {
			r.logger.Info("Duplicate callback ignored",
				slog.String("payment_id", paymentID.String()),
				slog.String("external_id", externalID),
			)
			return &WebhookResult{PaymentID: paymentID, Status: incoming, Duplicate: true}, nil
		}
	}

	result := &WebhookResult{PaymentID: paymentID}
	err = r.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		payment, err := q.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}

		next := models.ResolvePaymentStatus(payment.Status, incoming)
		if next != payment.Status {
			r.logger.Info("Payment status changed",
				slog.String("payment_id", paymentID.String()),
				slog.String("from", string(payment.Status)),
				slog.String("to", string(next)),
			)
		}
		payment.Status = next
		payment.Metadata = parsed
		if externalID != "" && payment.ExternalID == nil {
			payment.ExternalID = &externalID
		}
		if next == models.PaymentCompleted && payment.CompletedAt == nil {
			now := time.Now().UTC()
			payment.CompletedAt = &now
		}
		if err := q.UpdatePayment(ctx, payment); err != nil {
			return err
		}

		pid := payment.ID
		logEntry := &models.PaymentWebhookLog{
			ID:               uuid.New(),
			Provider:         payment.Provider,
			EventType:        next.EventType(),
			ExternalID:       externalID,
			RawPayload:       string(raw),
			ParsedPayload:    parsed,
			Status:           models.WebhookProcessed,
			PaymentID:        &pid,
			ProcessingTimeMS: time.Since(started).Milliseconds(),
		}
		if err := q.InsertWebhookLog(ctx, logEntry); err != nil {
			return err
		}

		if next == models.PaymentCompleted {
			reference := externalID
			if reference == "" {
				reference = "DEP-" + payment.ID.String()
			}
			_, err := r.ledger.CashIn(ctx, payment.WalletID, payment.Amount, &pid, reference)
			if errors.Is(err, repository.ErrDuplicateTransaction) {
				r.logger.Info("Cash in already recorded",
					slog.String("payment_id", paymentID.String()),
					slog.String("reference", reference),
				)
			} else if err != nil {
				return err
			}
		}

		result.Status = next
		return nil
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, repository.ErrDuplicateWebhook):
		r.logger.Info("Concurrent duplicate callback ignored",
			slog.String("payment_id", paymentID.String()),
			slog.String("external_id", externalID),
		)
		return &WebhookResult{PaymentID: paymentID, Status: incoming, Duplicate: true}, nil
	case errors.Is(err, repository.ErrPaymentNotFound):
		r.logger.Warn("Callback for unknown payment", slog.String("payment_id", paymentID.String()))
		return nil, err
	default:
		r.logger.Error("Failed to process callback",
			slog.String("payment_id", paymentID.String()),
			slog.Any("err", err),
		)
		return nil, err
	}
}
