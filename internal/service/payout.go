package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sepiso23/creator-monetization/internal/models"
	"github.com/sepiso23/creator-monetization/internal/repository"
)

// PayoutOrchestrator gates and drives the payout lifecycle on top of the ledger.
type PayoutOrchestrator struct {
	store  repository.Store
	ledger *LedgerService
	logger *slog.Logger
}

func NewPayoutOrchestrator(store repository.Store, ledger *LedgerService, logger *slog.Logger) *PayoutOrchestrator {
	return &PayoutOrchestrator{
		store:  store,
		ledger: ledger,
		logger: logger,
	}
}

// InitiatePayout pays out everything available net of the payout fee.
// initiatedBy is nil for system sweeps.
func (o *PayoutOrchestrator) InitiatePayout(ctx context.Context, walletID uuid.UUID, initiatedBy *Actor) (*models.WalletTransaction, error) {
	// permission precedes any wallet read
	if initiatedBy != nil && !initiatedBy.IsStaff {
		return nil, ErrPermissionDenied
	}

	var payout *models.WalletTransaction
	err := o.ledger.withRetry(ctx, "initiate payout", walletID, func(ctx context.Context) error {
		return o.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
			wallet, err := q.LockWallet(ctx, walletID)
			if err != nil {
				return err
			}
			if !wallet.KYCVerified {
				return fmt.Errorf("%w: KYC not verified", ErrInvalidTransaction)
			}

			balance, err := o.ledger.recalculate(ctx, q, walletID)
			if err != nil {
				return err
			}
			available, err := o.ledger.available(ctx, q, walletID, balance)
			if err != nil {
				return err
			}
			if !available.IsPositive() {
				return fmt.Errorf("%w: available %s", ErrInsufficientBalance, available.StringFixed(2))
			}

			amount := available.Sub(o.ledger.PayoutFee())
			payout, err = o.ledger.Payout(ctx, walletID, amount, "PAYOUT-"+uuid.NewString())
			return err
		})
	})
	if err != nil {
		o.ledger.logFailure("Initiate payout failed", walletID, err)
		return nil, err
	}

	attrs := []any{
		slog.String("wallet_id", walletID.String()),
		slog.String("transaction_id", payout.ID.String()),
		slog.String("amount", payout.Amount.Abs().StringFixed(2)),
	}
	if initiatedBy != nil {
		attrs = append(attrs, slog.String("initiated_by", initiatedBy.ID.String()))
	}
	o.logger.Info("Payout initiated", attrs...)
	return payout, nil
}

// Finalize settles a payout. approvedBy, when present, must be staff.
func (o *PayoutOrchestrator) Finalize(ctx context.Context, transactionID uuid.UUID, success bool, approvedBy *Actor) (*models.WalletTransaction, error) {
	if approvedBy != nil && !approvedBy.IsStaff {
		return nil, ErrPermissionDenied
	}
	return o.ledger.FinalizePayout(ctx, transactionID, success, approvedBy.idPtr())
}
