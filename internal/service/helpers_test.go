package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sepiso23/creator-monetization/internal/fees"
	"github.com/sepiso23/creator-monetization/internal/models"
	"github.com/sepiso23/creator-monetization/internal/repository"
	"github.com/sepiso23/creator-monetization/internal/service"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var staff = &service.Actor{ID: uuid.New(), IsStaff: true}

type fixture struct {
	store  *repository.MemoryStore
	ledger *service.LedgerService
}

func newFixture(t *testing.T, cashInPercent, payoutFlat int64) *fixture {
	t.Helper()
	engine, err := fees.NewEngine(fees.Policy{
		CashInPercent: decimal.NewFromInt(cashInPercent),
		PayoutFlat:    decimal.NewFromInt(payoutFlat),
	})
	require.NoError(t, err)
	store := repository.NewMemoryStore()
	return &fixture{store: store, ledger: service.NewLedgerService(store, engine, testLogger)}
}

func (f *fixture) wallet(t *testing.T, kycVerified bool) uuid.UUID {
	t.Helper()
	w := &models.Wallet{ID: uuid.New(), OwnerID: uuid.New(), Currency: "ZMW", IsActive: true}
	require.NoError(t, f.store.CreateWallet(context.Background(), w, &models.WalletKYC{Verified: kycVerified}))
	return w.ID
}

// fund credits amount to the wallet with no fee taken.
func (f *fixture) fund(t *testing.T, walletID uuid.UUID, amount string) {
	t.Helper()
	tx := &models.WalletTransaction{
		ID:            uuid.New(),
		WalletID:      walletID,
		Amount:        decimal.RequireFromString(amount),
		Type:          models.TransactionCashIn,
		Status:        models.TransactionCompleted,
		Reference:     "SEED-" + uuid.NewString(),
		CorrelationID: "CASHIN-" + uuid.NewString(),
	}
	require.NoError(t, f.store.InsertTransaction(context.Background(), tx))
	_, err := f.ledger.RecalculateBalance(context.Background(), walletID)
	require.NoError(t, err)
}

func (f *fixture) payment(t *testing.T, walletID uuid.UUID, amount string, status models.PaymentStatus) *models.Payment {
	t.Helper()
	p := &models.Payment{
		ID:        uuid.New(),
		WalletID:  walletID,
		Reference: "PAY-" + uuid.NewString(),
		Amount:    decimal.RequireFromString(amount),
		Currency:  "ZMW",
		Status:    status,
		Provider:  "MTN_MOMO_ZMB",
	}
	require.NoError(t, f.store.CreatePayment(context.Background(), p))
	return p
}

func (f *fixture) assertBalance(t *testing.T, walletID uuid.UUID, expected string) {
	t.Helper()
	w, err := f.store.GetWallet(context.Background(), walletID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.RequireFromString(expected)),
		"balance: expected %s, got %s", expected, w.Balance)
	sum, err := f.store.SumTransactions(context.Background(), walletID, models.TransactionCompleted)
	require.NoError(t, err)
	assert.True(t, sum.Equal(w.Balance), "stored balance %s drifted from ledger %s", w.Balance, sum)
}

func (f *fixture) transactions(t *testing.T, walletID uuid.UUID, typ models.TransactionType) []models.WalletTransaction {
	t.Helper()
	all, err := f.store.ListTransactions(context.Background(), walletID)
	require.NoError(t, err)
	var out []models.WalletTransaction
	for _, tx := range all {
		if tx.Type == typ {
			out = append(out, tx)
		}
	}
	return out
}
