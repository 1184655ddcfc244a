package repository_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sepiso23/creator-monetization/internal/models"
	"github.com/sepiso23/creator-monetization/internal/repository"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// storeContract is run against every Store implementation.
func storeContract(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("wallets", func(t *testing.T) { testWallets(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("nested units of work", func(t *testing.T) { testNestedUnits(t, newStore(t)) })
	t.Run("payments", func(t *testing.T) { testPayments(t, newStore(t)) })
	t.Run("webhook logs", func(t *testing.T) { testWebhookLogs(t, newStore(t)) })
}

func createWallet(t *testing.T, s repository.Store) *models.Wallet {
	t.Helper()
	w := &models.Wallet{ID: uuid.New(), OwnerID: uuid.New(), Currency: "ZMW", IsActive: true}
	require.NoError(t, s.CreateWallet(context.Background(), w, &models.WalletKYC{KYCLevel: "basic"}))
	return w
}

func ledgerEntry(walletID uuid.UUID, amount string, typ models.TransactionType, status models.TransactionStatus) *models.WalletTransaction {
	return &models.WalletTransaction{
		ID:            uuid.New(),
		WalletID:      walletID,
		Amount:        decimal.RequireFromString(amount),
		Type:          typ,
		Status:        status,
		Reference:     "REF-" + uuid.NewString(),
		CorrelationID: "CASHIN-" + uuid.NewString(),
	}
}

func createPayment(t *testing.T, s repository.Store, walletID uuid.UUID, status models.PaymentStatus) *models.Payment {
	t.Helper()
	p := &models.Payment{
		ID:        uuid.New(),
		WalletID:  walletID,
		Reference: "PAY-" + uuid.NewString(),
		Amount:    decimal.NewFromInt(50),
		Currency:  "ZMW",
		Status:    status,
		Provider:  "AIRTEL_OAPI_ZMB",
	}
	require.NoError(t, s.CreatePayment(context.Background(), p))
	return p
}

func testWallets(t *testing.T, s repository.Store) {
	ctx := context.Background()
	w := createWallet(t, s)

	dup := &models.Wallet{ID: uuid.New(), OwnerID: w.OwnerID, Currency: "ZMW", IsActive: true}
	assert.ErrorIs(t, s.CreateWallet(ctx, dup, &models.WalletKYC{}), repository.ErrWalletAlreadyExist)

	_, err := s.GetWallet(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrWalletNotFound)

	got, err := s.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, got.KYCVerified)
	assert.True(t, got.Balance.IsZero())

	require.NoError(t, s.SetKYCVerified(ctx, w.ID, true))
	got, err = s.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.KYCVerified)

	err = s.SetWalletBalance(ctx, w.ID, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, repository.ErrConstraint)

	require.NoError(t, s.SetWalletBalance(ctx, w.ID, decimal.RequireFromString("12.50")))
	createWallet(t, s)
	funded, err := s.ListWalletsWithBalance(ctx)
	require.NoError(t, err)
	require.Len(t, funded, 1)
	assert.Equal(t, w.ID, funded[0].ID)
}

func testTransactions(t *testing.T, s repository.Store) {
	ctx := context.Background()
	w := createWallet(t, s)
	p := createPayment(t, s, w.ID, models.PaymentCompleted)

	cashIn := ledgerEntry(w.ID, "100", models.TransactionCashIn, models.TransactionCompleted)
	cashIn.PaymentID = &p.ID
	require.NoError(t, s.InsertTransaction(ctx, cashIn))

	again := ledgerEntry(w.ID, "100", models.TransactionCashIn, models.TransactionCompleted)
	again.PaymentID = &p.ID
	assert.ErrorIs(t, s.InsertTransaction(ctx, again), repository.ErrDuplicateTransaction)

	sameRef := ledgerEntry(w.ID, "5", models.TransactionCashIn, models.TransactionCompleted)
	sameRef.Reference = cashIn.Reference
	assert.ErrorIs(t, s.InsertTransaction(ctx, sameRef), repository.ErrDuplicateTransaction)

	orphanFee := ledgerEntry(w.ID, "-10", models.TransactionFee, models.TransactionCompleted)
	assert.Error(t, s.InsertTransaction(ctx, orphanFee))

	fee := ledgerEntry(w.ID, "-10", models.TransactionFee, models.TransactionCompleted)
	fee.RelatedTransactionID = &cashIn.ID
	require.NoError(t, s.InsertTransaction(ctx, fee))

	payout := ledgerEntry(w.ID, "-40", models.TransactionPayout, models.TransactionPending)
	require.NoError(t, s.InsertTransaction(ctx, payout))

	exists, err := s.TransactionExists(ctx, cashIn.Reference)
	require.NoError(t, err)
	assert.True(t, exists)

	completed, err := s.SumTransactions(ctx, w.ID, models.TransactionCompleted)
	require.NoError(t, err)
	assert.True(t, completed.Equal(decimal.NewFromInt(90)), completed.String())
	pending, err := s.SumTransactions(ctx, w.ID, models.TransactionPending)
	require.NoError(t, err)
	assert.True(t, pending.Equal(decimal.NewFromInt(-40)), pending.String())

	related, err := s.FindRelatedTransaction(ctx, cashIn.ID, models.TransactionFee, models.TransactionCompleted)
	require.NoError(t, err)
	assert.Equal(t, fee.ID, related.ID)
	_, err = s.FindRelatedTransaction(ctx, payout.ID, models.TransactionFee, models.TransactionCompleted)
	assert.ErrorIs(t, err, repository.ErrTransactionNotFound)

	payout.Status = models.TransactionFailed
	require.NoError(t, s.UpdateTransactionStatus(ctx, payout))
	got, err := s.GetTransaction(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFailed, got.Status)

	list, err := s.ListTransactions(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func testNestedUnits(t *testing.T, s repository.Store) {
	ctx := context.Background()
	w := createWallet(t, s)
	outer := ledgerEntry(w.ID, "30", models.TransactionCashIn, models.TransactionCompleted)
	inner := ledgerEntry(w.ID, "20", models.TransactionCashIn, models.TransactionCompleted)
	errInner := errors.New("inner failed")

	err := s.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		assert.True(t, repository.InTransaction(ctx))
		if err := q.InsertTransaction(ctx, outer); err != nil {
			return err
		}
		err := s.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
			if err := q.InsertTransaction(ctx, inner); err != nil {
				return err
			}
			return errInner
		})
		assert.ErrorIs(t, err, errInner)
		return nil
	})
	require.NoError(t, err)

	sum, err := s.SumTransactions(ctx, w.ID, models.TransactionCompleted)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(30)), sum.String())

	rolledBack := ledgerEntry(w.ID, "5", models.TransactionCashIn, models.TransactionCompleted)
	err = s.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		if err := q.InsertTransaction(ctx, rolledBack); err != nil {
			return err
		}
		return errInner
	})
	assert.ErrorIs(t, err, errInner)
	exists, err := s.TransactionExists(ctx, rolledBack.Reference)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, repository.InTransaction(ctx))
}

func testPayments(t *testing.T, s repository.Store) {
	ctx := context.Background()
	w := createWallet(t, s)
	pending := createPayment(t, s, w.ID, models.PaymentPending)
	accepted := createPayment(t, s, w.ID, models.PaymentAccepted)
	createPayment(t, s, w.ID, models.PaymentFailed)

	_, err := s.GetPayment(ctx, uuid.New(), false)
	assert.ErrorIs(t, err, repository.ErrPaymentNotFound)

	zero := &models.Payment{
		ID: uuid.New(), WalletID: w.ID, Reference: "PAY-" + uuid.NewString(),
		Amount: decimal.Zero, Currency: "ZMW", Status: models.PaymentPending,
	}
	assert.ErrorIs(t, s.CreatePayment(ctx, zero), repository.ErrConstraint)

	ext := "MTN-1"
	pending.Status = models.PaymentCompleted
	pending.ExternalID = &ext
	pending.Metadata = map[string]any{"status": "COMPLETED"}
	require.NoError(t, s.UpdatePayment(ctx, pending))
	got, err := s.GetPayment(ctx, pending.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, got.Status)
	require.NotNil(t, got.ExternalID)
	assert.Equal(t, "MTN-1", *got.ExternalID)
	assert.Equal(t, "COMPLETED", got.Metadata["status"])

	open, err := s.ListPaymentsByStatus(ctx, models.NonTerminalPaymentStatuses, false)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, accepted.ID, open[0].ID)

	require.NoError(t, s.SoftDeletePayment(ctx, accepted.ID))
	assert.ErrorIs(t, s.SoftDeletePayment(ctx, accepted.ID), repository.ErrPaymentNotFound)

	_, err = s.GetPayment(ctx, accepted.ID, false)
	assert.ErrorIs(t, err, repository.ErrPaymentNotFound)
	deleted, err := s.GetPayment(ctx, accepted.ID, true)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.NotNil(t, deleted.DeletedAt)

	open, err = s.ListPaymentsByStatus(ctx, models.NonTerminalPaymentStatuses, false)
	require.NoError(t, err)
	assert.Empty(t, open)
	open, err = s.ListPaymentsByStatus(ctx, models.NonTerminalPaymentStatuses, true)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func testWebhookLogs(t *testing.T, s repository.Store) {
	ctx := context.Background()
	w := createWallet(t, s)
	p := createPayment(t, s, w.ID, models.PaymentPending)

	entry := func(externalID string, status models.PaymentStatus) *models.PaymentWebhookLog {
		return &models.PaymentWebhookLog{
			ID:            uuid.New(),
			Provider:      p.Provider,
			EventType:     status.EventType(),
			ExternalID:    externalID,
			RawPayload:    `{"status":"` + string(status) + `"}`,
			ParsedPayload: map[string]any{"status": string(status)},
			Status:        models.WebhookProcessed,
			PaymentID:     &p.ID,
		}
	}

	require.NoError(t, s.InsertWebhookLog(ctx, entry("", models.PaymentAccepted)))
	require.NoError(t, s.InsertWebhookLog(ctx, entry("", models.PaymentProcessing)))

	settled, err := s.HasWebhookLogEvent(ctx, p.ID, []string{models.PaymentCompleted.EventType(), models.PaymentFailed.EventType()})
	require.NoError(t, err)
	assert.False(t, settled)

	require.NoError(t, s.InsertWebhookLog(ctx, entry("MTN-42", models.PaymentCompleted)))
	assert.ErrorIs(t, s.InsertWebhookLog(ctx, entry("MTN-42", models.PaymentCompleted)), repository.ErrDuplicateWebhook)

	seen, err := s.WebhookLogExists(ctx, "MTN-42")
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = s.WebhookLogExists(ctx, "MTN-43")
	require.NoError(t, err)
	assert.False(t, seen)

	settled, err = s.HasWebhookLogEvent(ctx, p.ID, []string{models.PaymentCompleted.EventType(), models.PaymentFailed.EventType()})
	require.NoError(t, err)
	assert.True(t, settled)

	logs, err := s.ListWebhookLogs(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}
