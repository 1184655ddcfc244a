package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/sepiso23/creator-monetization/internal/models"
	"github.com/sepiso23/creator-monetization/internal/repository"
	"github.com/sepiso23/creator-monetization/internal/service"
)

const resendConcurrency = 4

type ResendReport struct {
	Resent int64
	Failed int64
}

// Resender asks the gateway to replay the callback of every unsettled payment.
type Resender struct {
	store       repository.Queries
	gateway     service.DepositGateway
	locker      Locker
	logger      *slog.Logger
	maxAttempts int
	wait        time.Duration
}

func NewResender(
	store repository.Queries,
	gw service.DepositGateway,
	locker Locker,
	maxAttempts int,
	wait time.Duration,
	logger *slog.Logger,
) *Resender {
	if locker == nil {
		locker = NoopLocker{}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Resender{
		store:       store,
		gateway:     gw,
		locker:      locker,
		logger:      logger,
		maxAttempts: maxAttempts,
		wait:        wait,
	}
}

func (r *Resender) Run(ctx context.Context) (ResendReport, error) {
	var report ResendReport
	unlock, err := r.locker.Acquire(ctx, "resend-callbacks")
	if err != nil {
		return report, err
	}
	defer unlock()

	pending, err := r.store.ListPaymentsByStatus(ctx, models.NonTerminalPaymentStatuses, false)
	if err != nil {
		return report, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resendConcurrency)
	for _, p := range pending {
		id := p.ID.String()
		g.Go(func() error {
			if err := r.resend(gctx, id); err != nil {
				atomic.AddInt64(&report.Failed, 1)
				r.logger.Warn("Failed to resend callback",
					slog.String("payment_id", id),
					slog.Any("err", err),
				)
				return nil
			}
			atomic.AddInt64(&report.Resent, 1)
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("Callback resend finished",
		slog.Int("payments", len(pending)),
		slog.Int64("resent", report.Resent),
		slog.Int64("failed", report.Failed),
	)
	return report, ctx.Err()
}

func (r *Resender) resend(ctx context.Context, paymentID string) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.wait), uint64(r.maxAttempts-1)),
		ctx,
	)
	return backoff.Retry(func() error {
		res := r.gateway.ResendCallback(ctx, paymentID)
		if res.OK() {
			return nil
		}
		err := fmt.Errorf("resend callback: status %d", res.StatusCode)
		if res.Err != nil {
			err = fmt.Errorf("resend callback: %w", res.Err)
		}
		// the gateway does not know the deposit; retrying will not change that
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
