package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sepiso23/creator-monetization/internal/gateway"
	"github.com/sepiso23/creator-monetization/internal/models"
	"github.com/sepiso23/creator-monetization/internal/repository"
)

//go:generate mockgen -source=payment.go -destination=../mocks/mock_gateway.go -package=mocks DepositGateway

type DepositGateway interface {
	CreateDeposit(ctx context.Context, req gateway.DepositRequest) gateway.Result
	GetDeposit(ctx context.Context, depositID string) gateway.Result
	ResendCallback(ctx context.Context, depositID string) gateway.Result
}

type PaymentStatusResult struct {
	PaymentID uuid.UUID            `json:"paymentId"`
	Status    models.PaymentStatus `json:"status"`
	Message   string               `json:"message"`
}

var settledEvents = []string{
	models.PaymentCompleted.EventType(),
	models.PaymentFailed.EventType(),
	models.PaymentRejected.EventType(),
}

// PaymentService owns the deposit intent side: creating payments, asking the
// gateway about them and soft-deleting them.
type PaymentService struct {
	store   repository.Store
	gateway DepositGateway
	logger  *slog.Logger
	now     func() time.Time
}

func NewPaymentService(store repository.Store, gw DepositGateway, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		store:   store,
		gateway: gw,
		logger:  logger,
		now:     time.Now,
	}
}

// NewPaymentReference returns PAY-<timestamp>-<6 hex chars>.
func NewPaymentReference(now time.Time) string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		u := uuid.New()
		copy(buf, u[:])
	}
	return fmt.Sprintf("PAY-%s-%s", now.UTC().Format("20060102150405"), strings.ToUpper(hex.EncodeToString(buf)))
}

func (s *PaymentService) InitiateTip(ctx context.Context, req models.TipRequest) (*models.Payment, error) {
	amount := req.Amount.Round(2)
	if !amount.Equal(req.Amount) {
		return nil, fmt.Errorf("%w: tip amount %s has more than 2 decimal places", ErrInvalidTransaction, req.Amount)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: tip amount must be positive", ErrInvalidTransaction)
	}
	wallet, err := s.store.GetWallet(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	if !wallet.IsActive {
		return nil, fmt.Errorf("%w: wallet is not active", ErrInvalidTransaction)
	}

	payment := &models.Payment{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		Reference:     NewPaymentReference(s.now()),
		Amount:        amount,
		Currency:      wallet.Currency,
		Status:        models.PaymentPending,
		Provider:      req.Provider,
		PatronPhone:   req.PatronPhone,
		PatronEmail:   req.PatronEmail,
		PatronName:    req.PatronName,
		PatronMessage: req.PatronMessage,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	res := s.gateway.CreateDeposit(ctx, gateway.DepositRequest{
		DepositID: payment.ID.String(),
		Amount:    payment.Amount.String(),
		Currency:  payment.Currency,
		Payer: gateway.Payer{
			Type:           "MMO",
			AccountDetails: gateway.AccountDetails{PhoneNumber: req.PatronPhone, Provider: req.Provider},
		},
		ClientReferenceID: payment.Reference,
		CustomerMessage:   "Tip payment",
	})
	if res.Err != nil {
		return payment, fmt.Errorf("%w: %v", ErrGatewayUnavailable, res.Err)
	}
	if !res.OK() {
		s.logger.Warn("Deposit initiation rejected",
			slog.String("payment_id", payment.ID.String()),
			slog.Int("status", res.StatusCode),
		)
		return payment, fmt.Errorf("%w: status %d", ErrGatewayRejected, res.StatusCode)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		stored, err := q.LockPayment(ctx, payment.ID)
		if err != nil {
			return err
		}
		// A callback may already have settled the payment.
		if incoming := res.Status(); stored.Status == models.PaymentPending && incoming.IsKnown() {
			stored.Status = incoming
		}
		stored.Metadata = res.Payload()
		if err := q.UpdatePayment(ctx, stored); err != nil {
			return err
		}
		payment = stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Tip initiated",
		slog.String("payment_id", payment.ID.String()),
		slog.String("wallet_id", payment.WalletID.String()),
		slog.String("status", string(payment.Status)),
	)
	return payment, nil
}

// Status reports a payment's status. Unsettled payments with no settled
// callback on record trigger a callback resend from the gateway.
func (s *PaymentService) Status(ctx context.Context, paymentID uuid.UUID) (*PaymentStatusResult, error) {
	payment, err := s.store.GetPayment(ctx, paymentID, false)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsTerminal() {
		return statusResult(payment.ID, payment.Status, payment.Metadata), nil
	}

	settled, err := s.store.HasWebhookLogEvent(ctx, paymentID, settledEvents)
	if err != nil {
		return nil, err
	}
	if settled {
		return statusResult(payment.ID, payment.Status, payment.Metadata), nil
	}

	res := s.gateway.ResendCallback(ctx, paymentID.String())
	status := res.Status()
	if !res.OK() || !status.IsKnown() {
		s.logger.Warn("Callback resend did not report a status",
			slog.String("payment_id", paymentID.String()),
			slog.Int("status", res.StatusCode),
		)
		return statusResult(payment.ID, payment.Status, payment.Metadata), nil
	}
	return statusResult(payment.ID, status, res.Body), nil
}

// Sync polls the gateway and applies the reported status under the
// transition guard. It never touches the ledger.
func (s *PaymentService) Sync(ctx context.Context, paymentID uuid.UUID, actor *Actor) (*models.Payment, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if _, err := s.store.GetPayment(ctx, paymentID, false); err != nil {
		return nil, err
	}

	res := s.gateway.GetDeposit(ctx, paymentID.String())
	if res.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, res.Err)
	}
	if !res.OK() {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayRejected, res.StatusCode)
	}

	var payment *models.Payment
	err := s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		p, err := q.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		p.Status = models.ResolvePaymentStatus(p.Status, res.Status())
		p.Metadata = res.Payload()
		if p.Status == models.PaymentCompleted && p.CompletedAt == nil {
			now := s.now().UTC()
			p.CompletedAt = &now
		}
		if err := q.UpdatePayment(ctx, p); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *PaymentService) SoftDelete(ctx context.Context, paymentID uuid.UUID, actor *Actor) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	if err := s.store.SoftDeletePayment(ctx, paymentID); err != nil {
		return err
	}
	s.logger.Info("Payment soft deleted",
		slog.String("payment_id", paymentID.String()),
		slog.String("deleted_by", actor.ID.String()),
	)
	return nil
}

func (s *PaymentService) WebhookLogs(ctx context.Context, paymentID uuid.UUID, actor *Actor) ([]models.PaymentWebhookLog, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if _, err := s.store.GetPayment(ctx, paymentID, true); err != nil {
		return nil, err
	}
	return s.store.ListWebhookLogs(ctx, paymentID)
}

func statusResult(id uuid.UUID, status models.PaymentStatus, payload map[string]any) *PaymentStatusResult {
	return &PaymentStatusResult{PaymentID: id, Status: status, Message: statusMessage(status, payload)}
}

func statusMessage(status models.PaymentStatus, payload map[string]any) string {
	switch {
	case status == models.PaymentCompleted:
		return "Transaction Completed"
	case status.IsTerminal():
		if reason, ok := payload["failureReason"].(map[string]any); ok {
			if msg, ok := reason["failureMessage"].(string); ok && msg != "" {
				return msg
			}
		}
		return "Unspecified Failure"
	default:
		return "Approve the payment prompt on your phone"
	}
}
