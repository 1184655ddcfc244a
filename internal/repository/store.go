package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/sepiso23/creator-monetization/internal/models"
)

var (
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrWalletAlreadyExist   = errors.New("wallet already exists")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction reference")
	ErrDuplicateWebhook     = errors.New("webhook event already recorded")
	ErrConstraint           = errors.New("ledger constraint violated")
)

// Queries is the storage surface of the ledger. Lock* methods take a row
// lock held until the surrounding unit of work ends.
type Queries interface {
	CreateWallet(ctx context.Context, w *models.Wallet, kyc *models.WalletKYC) error
	GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	LockWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	ListWalletsWithBalance(ctx context.Context) ([]models.Wallet, error)
	SetWalletBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	SetKYCVerified(ctx context.Context, walletID uuid.UUID, verified bool) error

	InsertTransaction(ctx context.Context, t *models.WalletTransaction) error
	TransactionExists(ctx context.Context, reference string) (bool, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error)
	LockTransaction(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error)
	UpdateTransactionStatus(ctx context.Context, t *models.WalletTransaction) error
	FindRelatedTransaction(ctx context.Context, parentID uuid.UUID, txType models.TransactionType, status models.TransactionStatus) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error)
	SumTransactions(ctx context.Context, walletID uuid.UUID, status models.TransactionStatus) (decimal.Decimal, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Payment, error)
	LockPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	UpdatePayment(ctx context.Context, p *models.Payment) error
	ListPaymentsByStatus(ctx context.Context, statuses []models.PaymentStatus, includeDeleted bool) ([]models.Payment, error)
	SoftDeletePayment(ctx context.Context, id uuid.UUID) error

	InsertWebhookLog(ctx context.Context, l *models.PaymentWebhookLog) error
	WebhookLogExists(ctx context.Context, externalID string) (bool, error)
	HasWebhookLogEvent(ctx context.Context, paymentID uuid.UUID, eventTypes []string) (bool, error)
	ListWebhookLogs(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentWebhookLog, error)
}

// Store runs units of work. A WithinTx call made with a context that already
// carries a unit of work opens a nested one (savepoint) whose failure only
// discards its own writes.
type Store interface {
	Queries
	WithinTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
}

type txKey struct{}

// InTransaction reports whether ctx carries an open unit of work.
func InTransaction(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

// IsRetryable reports serialization failures and deadlocks.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation
}

func statusStrings(statuses []models.PaymentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
