package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Every runs fn on each tick until ctx is done. A zero interval disables the job.
func Every(ctx context.Context, interval time.Duration, name string, logger *slog.Logger, fn func(ctx context.Context) error) {
	if interval <= 0 {
		logger.Info("Job disabled", slog.String("job", name))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("Job scheduled", slog.String("job", name), slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := fn(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrLockHeld):
				logger.Debug("Job skipped, lock held elsewhere", slog.String("job", name))
			case errors.Is(err, context.Canceled):
				return
			default:
				logger.Error("Job failed", slog.String("job", name), slog.Any("err", err))
			}
		}
	}
}
