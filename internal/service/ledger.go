package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sepiso23/creator-monetization/internal/fees"
	"github.com/sepiso23/creator-monetization/internal/models"
	"github.com/sepiso23/creator-monetization/internal/repository"
)

// LedgerService records every money movement as an immutable transaction row
// and derives the wallet balance from the COMPLETED ones.
type LedgerService struct {
	store      repository.Store
	fees       *fees.Engine
	logger     *slog.Logger
	maxRetries int
	retryWait  time.Duration
}

func NewLedgerService(store repository.Store, engine *fees.Engine, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		store:      store,
		fees:       engine,
		logger:     logger,
		maxRetries: 3,
		retryWait:  10 * time.Millisecond,
	}
}

func (s *LedgerService) PayoutFee() decimal.Decimal {
	return s.fees.Payout()
}

// CashIn credits the wallet with amount and charges the cash-in fee against it.
// reference is the idempotency key; reusing it fails with ErrDuplicateTransaction.
func (s *LedgerService) CashIn(
	ctx context.Context,
	walletID uuid.UUID,
	amount decimal.Decimal,
	paymentID *uuid.UUID,
	reference string,
) (*models.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: cash-in amount must be positive, got %s", ErrInvalidTransaction, amount)
	}
	if reference == "" {
		return nil, fmt.Errorf("%w: cash-in reference is required", ErrInvalidTransaction)
	}
	fee, err := s.fees.CashIn(amount)
	if err != nil {
		return nil, err
	}

	var cashIn *models.WalletTransaction
	err = s.withRetry(ctx, "cash in", walletID, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
			if _, err := q.LockWallet(ctx, walletID); err != nil {
				return err
			}
			if err := ensureUnused(ctx, q, reference); err != nil {
				return err
			}

			tx := &models.WalletTransaction{
				ID:            uuid.New(),
				WalletID:      walletID,
				Amount:        amount,
				Fee:           fee,
				Type:          models.TransactionCashIn,
				Status:        models.TransactionCompleted,
				PaymentID:     paymentID,
				Reference:     reference,
				CorrelationID: "CASHIN-" + uuid.NewString(),
			}
			if err := q.InsertTransaction(ctx, tx); err != nil {
				return err
			}
			if fee.IsPositive() {
				if _, err := s.insertFee(ctx, q, fee, reference+"-FEE", tx, models.TransactionFee); err != nil {
					return err
				}
			}
			if _, err := s.recalculate(ctx, q, walletID); err != nil {
				return err
			}
			cashIn = tx
			return nil
		})
	})
	if err != nil {
		s.logFailure("Cash in failed", walletID, err, slog.String("reference", reference), slog.Any("amount", amount))
		return nil, err
	}
	return cashIn, nil
}

// CreateFeeTransaction books a fee (debit) or a fee reversal (credit) of
// the given magnitude against relatedID.
func (s *LedgerService) CreateFeeTransaction(
	ctx context.Context,
	walletID uuid.UUID,
	amount decimal.Decimal,
	reference string,
	relatedID uuid.UUID,
	txType models.TransactionType,
) (*models.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: fee amount must be positive, got %s", ErrInvalidTransaction, amount)
	}
	if txType == "" {
		txType = models.TransactionFee
	}

	var fee *models.WalletTransaction
	err := s.withRetry(ctx, "fee transaction", walletID, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
			if _, err := q.LockWallet(ctx, walletID); err != nil {
				return err
			}
			related, err := q.GetTransaction(ctx, relatedID)
			if err != nil {
				return err
			}
			if related.WalletID != walletID {
				return fmt.Errorf("%w: related transaction belongs to another wallet", ErrInvalidTransaction)
			}
			if fee, err = s.insertFee(ctx, q, amount, reference, related, txType); err != nil {
				return err
			}
			_, err = s.recalculate(ctx, q, walletID)
			return err
		})
	})
	if err != nil {
		s.logFailure("Fee transaction failed", walletID, err, slog.String("reference", reference))
		return nil, err
	}
	return fee, nil
}

// Payout books a PENDING payout of amount plus an immediately COMPLETED fee.
func (s *LedgerService) Payout(
	ctx context.Context,
	walletID uuid.UUID,
	amount decimal.Decimal,
	correlationID string,
) (*models.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payout amount must be positive, got %s", ErrInvalidTransaction, amount)
	}
	reference := "PAYOUT-" + uuid.NewString()
	if correlationID == "" {
		correlationID = reference
	}
	fee := s.fees.Payout()

	var payout *models.WalletTransaction
	err := s.withRetry(ctx, "payout", walletID, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
			if _, err := q.LockWallet(ctx, walletID); err != nil {
				return err
			}
			balance, err := s.recalculate(ctx, q, walletID)
			if err != nil {
				return err
			}
			available, err := s.available(ctx, q, walletID, balance)
			if err != nil {
				return err
			}
			required := amount.Add(fee)
			if available.LessThan(required) {
				return fmt.Errorf("%w: required %s, available %s",
					ErrInsufficientBalance, required.StringFixed(2), available.StringFixed(2))
			}

			tx := &models.WalletTransaction{
				ID:            uuid.New(),
				WalletID:      walletID,
				Amount:        amount.Neg(),
				Fee:           fee,
				Type:          models.TransactionPayout,
				Status:        models.TransactionPending,
				Reference:     reference,
				CorrelationID: correlationID,
			}
			if err := q.InsertTransaction(ctx, tx); err != nil {
				return err
			}
			if fee.IsPositive() {
				if _, err := s.insertFee(ctx, q, fee, reference+"-FEE", tx, models.TransactionFee); err != nil {
					return err
				}
			}
			if _, err := s.recalculate(ctx, q, walletID); err != nil {
				return err
			}
			payout = tx
			return nil
		})
	})
	if err != nil {
		s.logFailure("Payout failed", walletID, err, slog.Any("amount", amount))
		return nil, err
	}
	return payout, nil
}

// FinalizePayout settles a PENDING payout. Calls on an already settled payout
// return it unchanged. A failed payout gets its fee reversed.
func (s *LedgerService) FinalizePayout(
	ctx context.Context,
	transactionID uuid.UUID,
	success bool,
	approvedBy *uuid.UUID,
) (*models.WalletTransaction, error) {
	head, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if head.Type != models.TransactionPayout {
		return nil, fmt.Errorf("%w: transaction %s is %s, not a payout", ErrInvalidTransaction, transactionID, head.Type)
	}

	var result *models.WalletTransaction
	err = s.withRetry(ctx, "finalize payout", head.WalletID, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
			if _, err := q.LockWallet(ctx, head.WalletID); err != nil {
				return err
			}
			tx, err := q.LockTransaction(ctx, transactionID)
			if err != nil {
				return err
			}
			if tx.Status != models.TransactionPending {
				result = tx
				return nil
			}

			now := time.Now().UTC()
			tx.ApprovedBy = approvedBy
			tx.ApprovedAt = &now
			tx.Status = models.TransactionCompleted
			if !success {
				tx.Status = models.TransactionFailed
			}
			if err := q.UpdateTransactionStatus(ctx, tx); err != nil {
				return err
			}

			if !success {
				fee, err := q.FindRelatedTransaction(ctx, tx.ID, models.TransactionFee, models.TransactionCompleted)
				switch {
				case errors.Is(err, repository.ErrTransactionNotFound):
					// zero payout fee policy: nothing was charged
				case err != nil:
					return err
				default:
					if _, err := s.insertFee(ctx, q, fee.Amount.Abs(), fee.Reference+"-REVERSAL", fee, models.TransactionFeeReversal); err != nil {
						return err
					}
				}
			}

			if _, err := s.recalculate(ctx, q, tx.WalletID); err != nil {
				return err
			}
			result = tx
			return nil
		})
	})
	if err != nil {
		s.logFailure("Finalize payout failed", head.WalletID, err, slog.String("transaction_id", transactionID.String()))
		return nil, err
	}
	return result, nil
}

// RecalculateBalance re-derives and persists the wallet balance.
func (s *LedgerService) RecalculateBalance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.withRetry(ctx, "recalculate balance", walletID, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
			if _, err := q.LockWallet(ctx, walletID); err != nil {
				return err
			}
			var err error
			balance, err = s.recalculate(ctx, q, walletID)
			return err
		})
	})
	if err != nil {
		s.logFailure("Recalculate balance failed", walletID, err)
		return decimal.Zero, err
	}
	return balance, nil
}

// AvailableBalance is the balance net of payouts still awaiting approval.
func (s *LedgerService) AvailableBalance(ctx context.Context, walletID uuid.UUID, balance decimal.Decimal) (decimal.Decimal, error) {
	return s.available(ctx, s.store, walletID, balance)
}

func (s *LedgerService) recalculate(ctx context.Context, q repository.Queries, walletID uuid.UUID) (decimal.Decimal, error) {
	balance, err := q.SumTransactions(ctx, walletID, models.TransactionCompleted)
	if err != nil {
		return decimal.Zero, err
	}
	if balance.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: balance would become %s", ErrInvalidTransaction, balance.StringFixed(2))
	}
	if err := q.SetWalletBalance(ctx, walletID, balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (s *LedgerService) available(ctx context.Context, q repository.Queries, walletID uuid.UUID, balance decimal.Decimal) (decimal.Decimal, error) {
	pending, err := q.SumTransactions(ctx, walletID, models.TransactionPending)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Add(pending), nil
}

func (s *LedgerService) insertFee(
	ctx context.Context,
	q repository.Queries,
	amount decimal.Decimal,
	reference string,
	related *models.WalletTransaction,
	txType models.TransactionType,
) (*models.WalletTransaction, error) {
	if err := ensureUnused(ctx, q, reference); err != nil {
		return nil, err
	}
	signed := amount
	if txType == models.TransactionFee {
		signed = amount.Neg()
	}
	relatedID := related.ID
	fee := &models.WalletTransaction{
		ID:                   uuid.New(),
		WalletID:             related.WalletID,
		Amount:               signed,
		Type:                 txType,
		Status:               models.TransactionCompleted,
		RelatedTransactionID: &relatedID,
		Reference:            reference,
		CorrelationID:        related.CorrelationID,
	}
	if err := q.InsertTransaction(ctx, fee); err != nil {
		return nil, err
	}
	return fee, nil
}

func ensureUnused(ctx context.Context, q repository.Queries, reference string) error {
	exists, err := q.TransactionExists(ctx, reference)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", repository.ErrDuplicateTransaction, reference)
	}
	return nil
}

// withRetry repeats a unit of work on serialization failures. Nested units
// are never retried on their own; the outermost one owns the retry.
func (s *LedgerService) withRetry(ctx context.Context, op string, walletID uuid.UUID, fn func(ctx context.Context) error) error {
	if repository.InTransaction(ctx) {
		return fn(ctx)
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retryWait
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.maxRetries-1)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err != nil && !repository.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		s.logger.Warn("Retrying "+op,
			slog.String("wallet_id", walletID.String()),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("err", err),
		)
	})
	if err != nil && (repository.IsRetryable(err) || ctx.Err() != nil) {
		s.logger.Error(op+" failed after retries",
			slog.String("wallet_id", walletID.String()),
			slog.Int("attempts", attempt),
			slog.Any("err", err),
		)
	}
	return err
}

func (s *LedgerService) logFailure(msg string, walletID uuid.UUID, err error, attrs ...any) {
	attrs = append([]any{slog.String("wallet_id", walletID.String()), slog.Any("err", err)}, attrs...)
	switch {
	case errors.Is(err, repository.ErrDuplicateTransaction),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInvalidTransaction),
		errors.Is(err, repository.ErrWalletNotFound),
		errors.Is(err, repository.ErrTransactionNotFound):
		s.logger.Warn(msg, attrs...)
	default:
		s.logger.Error(msg, attrs...)
	}
}
