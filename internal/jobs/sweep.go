package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sepiso23/creator-monetization/internal/models"
	"github.com/sepiso23/creator-monetization/internal/repository"
	"github.com/sepiso23/creator-monetization/internal/service"
)

type PayoutInitiator interface {
	InitiatePayout(ctx context.Context, walletID uuid.UUID, initiatedBy *service.Actor) (*models.WalletTransaction, error)
}

type SweepReport struct {
	Initiated int
	Skipped   int
	Failed    int
}

// PayoutSweeper pays out every wallet holding a positive balance on behalf
// of the system. One wallet failing never stops the sweep.
type PayoutSweeper struct {
	store   repository.Queries
	payouts PayoutInitiator
	locker  Locker
	logger  *slog.Logger
}

func NewPayoutSweeper(store repository.Queries, payouts PayoutInitiator, locker Locker, logger *slog.Logger) *PayoutSweeper {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &PayoutSweeper{store: store, payouts: payouts, locker: locker, logger: logger}
}

func (s *PayoutSweeper) Run(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	unlock, err := s.locker.Acquire(ctx, "payout-sweep")
	if err != nil {
		return report, err
	}
	defer unlock()

	wallets, err := s.store.ListWalletsWithBalance(ctx)
	if err != nil {
		return report, err
	}

	for _, w := range wallets {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		_, err := s.payouts.InitiatePayout(ctx, w.ID, nil)
		switch {
		case err == nil:
			report.Initiated++
		case errors.Is(err, service.ErrInsufficientBalance),
			errors.Is(err, service.ErrInvalidTransaction):
			report.Skipped++
		default:
			report.Failed++
			s.logger.Error("Failed to sweep wallet",
				slog.String("wallet_id", w.ID.String()),
				slog.Any("err", err),
			)
		}
	}

	s.logger.Info("Payout sweep finished",
		slog.Int("wallets", len(wallets)),
		slog.Int("initiated", report.Initiated),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}
