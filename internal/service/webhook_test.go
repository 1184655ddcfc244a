package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sepiso23/creator-monetization/internal/models"
	"github.com/sepiso23/creator-monetization/internal/repository"
	"github.com/sepiso23/creator-monetization/internal/service"
)

func callback(paymentID uuid.UUID, status, externalID string) []byte {
	return []byte(fmt.Sprintf(
		`{"depositId":%q,"status":%q,"providerTransactionId":%q,"amount":"100.00","currency":"ZMW"}`,
		paymentID.String(), status, externalID,
	))
}

func TestHandleDepositCallback_CompletedCreditsWallet(t *testing.T) {
	f := newFixture(t, 10, 10)
	reconciler := service.NewWebhookReconciler(f.store, f.ledger, testLogger)
	walletID := f.wallet(t, false)
	p := f.payment(t, walletID, "100", models.PaymentAccepted)
	ctx := context.Background()

	res, err := reconciler.HandleDepositCallback(ctx, callback(p.ID, "COMPLETED", "MTN-100"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, models.PaymentCompleted, res.Status)

	stored, err := f.store.GetPayment(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, stored.Status)
	require.NotNil(t, stored.ExternalID)
	assert.Equal(t, "MTN-100", *stored.ExternalID)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, "COMPLETED", stored.Metadata["status"])

	f.assertBalance(t, walletID, "90")
	cashIns := f.transactions(t, walletID, models.TransactionCashIn)
	require.Len(t, cashIns, 1)
	assert.Equal(t, "MTN-100", cashIns[0].Reference)
	require.NotNil(t, cashIns[0].PaymentID)
	assert.Equal(t, p.ID, *cashIns[0].PaymentID)

	logs, err := f.store.ListWebhookLogs(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "deposit.completed", logs[0].EventType)
	assert.Equal(t, p.Provider, logs[0].Provider)
	assert.Equal(t, models.WebhookProcessed, logs[0].Status)
}

func TestHandleDepositCallback_DuplicateIsIgnored(t *testing.T) {
	f := newFixture(t, 10, 10)
	reconciler := service.NewWebhookReconciler(f.store, f.ledger, testLogger)
	walletID := f.wallet(t, false)
	p := f.payment(t, walletID, "100", models.PaymentPending)
	ctx := context.Background()

	_, err := reconciler.HandleDepositCallback(ctx, callback(p.ID, "COMPLETED", "MTN-7"))
	require.NoError(t, err)
	res, err := reconciler.HandleDepositCallback(ctx, callback(p.ID, "COMPLETED", "MTN-7"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	f.assertBalance(t, walletID, "90")
	logs, err := f.store.ListWebhookLogs(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestHandleDepositCallback_SecondCompletionNeverCreditsTwice(t *testing.T) {
	f := newFixture(t, 10, 10)
	reconciler := service.NewWebhookReconciler(f.store, f.ledger, testLogger)
	walletID := f.wallet(t, false)
	p := f.payment(t, walletID, "100", models.PaymentPending)
	ctx := context.Background()

	_, err := reconciler.HandleDepositCallback(ctx, callback(p.ID, "COMPLETED", "MTN-A"))
	require.NoError(t, err)
	res, err := reconciler.HandleDepositCallback(ctx, callback(p.ID, "COMPLETED", "MTN-B"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	f.assertBalance(t, walletID, "90")
	assert.Len(t, f.transactions(t, walletID, models.TransactionCashIn), 1)
}

func TestHandleDepositCallback_CompletedAfterFailedCredits(t *testing.T) {
	f := newFixture(t, 10, 10)
	reconciler := service.NewWebhookReconciler(f.store, f.ledger, testLogger)
	walletID := f.wallet(t, false)
	p := f.payment(t, walletID, "100", models.PaymentPending)
	ctx := context.Background()

	res, err := reconciler.HandleDepositCallback(ctx, callback(p.ID, "FAILED", "MTN-F1"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, res.Status)

	res, err = reconciler.HandleDepositCallback(ctx, callback(p.ID, "COMPLETED", "MTN-F2"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, res.Status)

	stored, err := f.store.GetPayment(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	f.assertBalance(t, walletID, "90")
	assert.Len(t, f.transactions(t, walletID, models.TransactionCashIn), 1)
	assert.Len(t, f.transactions(t, walletID, models.TransactionFee), 1)

	// a later non-terminal delivery never downgrades it
	res, err = reconciler.HandleDepositCallback(ctx, callback(p.ID, "PROCESSING", "MTN-F3"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, res.Status)
}

func TestHandleDepositCallback_RecompletionNeverCreditsTwice(t *testing.T) {
	f := newFixture(t, 10, 10)
	reconciler := service.NewWebhookReconciler(f.store, f.ledger, testLogger)
	walletID := f.wallet(t, false)
	p := f.payment(t, walletID, "100", models.PaymentPending)
	ctx := context.Background()

	for i, status := range []string{"COMPLETED", "FAILED", "COMPLETED"} {
		_, err := reconciler.HandleDepositCallback(ctx, callback(p.ID, status, fmt.Sprintf("MTN-R%d", i)))
		require.NoError(t, err)
	}

	stored, err := f.store.GetPayment(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, stored.Status)
	f.assertBalance(t, walletID, "90")
	assert.Len(t, f.transactions(t, walletID, models.TransactionCashIn), 1)
	assert.Len(t, f.transactions(t, walletID, models.TransactionFee), 1)

	logs, err := f.store.ListWebhookLogs(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestHandleDepositCallback_NonTerminalKeepsStoredStatus(t *testing.T) {
	f := newFixture(t, 10, 10)
	reconciler := service.NewWebhookReconciler(f.store, f.ledger, testLogger)
	walletID := f.wallet(t, false)
	p := f.payment(t, walletID, "100", models.PaymentPending)
	ctx := context.Background()

	res, err := reconciler.HandleDepositCallback(ctx, callback(p.ID, "PROCESSING", ""))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, res.Status)

	res, err = reconciler.HandleDepositCallback(ctx, callback(p.ID, "SOMETHING_NEW", ""))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, res.Status)

	// callbacks without a provider id are all logged
	logs, err := f.store.ListWebhookLogs(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestHandleDepositCallback_FallbackReference(t *testing.T) {
	f := newFixture(t, 10, 10)
	reconciler := service.NewWebhookReconciler(f.store, f.ledger, testLogger)
	walletID := f.wallet(t, false)
	p := f.payment(t, walletID, "50", models.PaymentPending)

	_, err := reconciler.HandleDepositCallback(context.Background(), callback(p.ID, "completed", ""))
	require.NoError(t, err)

	cashIns := f.transactions(t, walletID, models.TransactionCashIn)
	require.Len(t, cashIns, 1)
	assert.Equal(t, "DEP-"+p.ID.String(), cashIns[0].Reference)
	f.assertBalance(t, walletID, "45")
}

func TestHandleDepositCallback_Rejects(t *testing.T) {
	f := newFixture(t, 10, 10)
	reconciler := service.NewWebhookReconciler(f.store, f.ledger, testLogger)
	ctx := context.Background()

	_, err := reconciler.HandleDepositCallback(ctx, []byte(`not json`))
	assert.ErrorIs(t, err, service.ErrInvalidPayload)

	_, err = reconciler.HandleDepositCallback(ctx, []byte(`{"status":"COMPLETED"}`))
	assert.ErrorIs(t, err, service.ErrInvalidPayload)

	_, err = reconciler.HandleDepositCallback(ctx, []byte(`{"depositId":"abc","status":"COMPLETED"}`))
	assert.ErrorIs(t, err, repository.ErrPaymentNotFound)

	_, err = reconciler.HandleDepositCallback(ctx, callback(uuid.New(), "COMPLETED", "MTN-X"))
	assert.ErrorIs(t, err, repository.ErrPaymentNotFound)

	// nothing was logged for the unknown payment, so a retry is not a duplicate
	seen, err := f.store.WebhookLogExists(ctx, "MTN-X")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestHandleDepositCallback_SoftDeletedPayment(t *testing.T) {
	f := newFixture(t, 10, 10)
	reconciler := service.NewWebhookReconciler(f.store, f.ledger, testLogger)
	walletID := f.wallet(t, false)
	p := f.payment(t, walletID, "100", models.PaymentPending)
	require.NoError(t, f.store.SoftDeletePayment(context.Background(), p.ID))

	_, err := reconciler.HandleDepositCallback(context.Background(), callback(p.ID, "COMPLETED", "MTN-DEL"))
	assert.ErrorIs(t, err, repository.ErrPaymentNotFound)
	f.assertBalance(t, walletID, "0")
}

func TestHandleDepositCallback_PendingAfterAccepted(t *testing.T) {
	f := newFixture(t, 10, 10)
	reconciler := service.NewWebhookReconciler(f.store, f.ledger, testLogger)
	walletID := f.wallet(t, false)
	p := f.payment(t, walletID, "100", models.PaymentAccepted)
	ctx := context.Background()

	res, err := reconciler.HandleDepositCallback(ctx, callback(p.ID, "PENDING", "MTN-P1"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentAccepted, res.Status)

	res, err = reconciler.HandleDepositCallback(ctx, callback(p.ID, "COMPLETED", "MTN-P2"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, res.Status)
	f.assertBalance(t, walletID, "90")
	assert.Len(t, f.transactions(t, walletID, models.TransactionFee), 1)
}

// missingLogStore hides existing webhook logs from the pre-transaction
// lookup, so every delivery reaches the unique index.
type missingLogStore struct {
	*repository.MemoryStore
}

func (missingLogStore) WebhookLogExists(context.Context, string) (bool, error) {
	return false, nil
}

func TestHandleDepositCallback_UniqueViolationIsDuplicate(t *testing.T) {
	f := newFixture(t, 10, 10)
	reconciler := service.NewWebhookReconciler(missingLogStore{f.store}, f.ledger, testLogger)
	walletID := f.wallet(t, false)
	p := f.payment(t, walletID, "100", models.PaymentAccepted)
	ctx := context.Background()

	res, err := reconciler.HandleDepositCallback(ctx, callback(p.ID, "COMPLETED", "MTN-RACE"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	res, err = reconciler.HandleDepositCallback(ctx, callback(p.ID, "COMPLETED", "MTN-RACE"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, p.ID, res.PaymentID)

	logs, err := f.store.ListWebhookLogs(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	f.assertBalance(t, walletID, "90")
	assert.Len(t, f.transactions(t, walletID, models.TransactionCashIn), 1)
	assert.Len(t, f.transactions(t, walletID, models.TransactionFee), 1)
}

func TestHandleDepositCallback_ConcurrentDeliveries(t *testing.T) {
	f := newFixture(t, 10, 10)
	reconciler := service.NewWebhookReconciler(f.store, f.ledger, testLogger)
	walletID := f.wallet(t, false)
	p := f.payment(t, walletID, "100", models.PaymentAccepted)
	ctx := context.Background()

	const deliveries = 20
	results := make([]*service.WebhookResult, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reconciler.HandleDepositCallback(ctx, callback(p.ID, "COMPLETED", "MTN-SAME"))
		}(i)
	}
	wg.Wait()

	processed := 0
	for i := range results {
		require.NoError(t, errs[i])
		if !results[i].Duplicate {
			processed++
		}
	}
	assert.Equal(t, 1, processed)

	logs, err := f.store.ListWebhookLogs(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	f.assertBalance(t, walletID, "90")
	assert.Len(t, f.transactions(t, walletID, models.TransactionCashIn), 1)
	assert.Len(t, f.transactions(t, walletID, models.TransactionFee), 1)
}
