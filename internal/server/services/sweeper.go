package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// ExpiredSweeper removes expired refresh tokens.
type ExpiredSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper runs the expired-token sweep on a fixed interval until its context
// is cancelled. A failed run is logged and left for the next tick.
type Sweeper struct {
	store    ExpiredSweeper
	interval time.Duration
	now      func() time.Time
	logger   logging.Logger
}

func NewSweeper(store ExpiredSweeper, interval time.Duration, logger logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Sweeper{store: store, interval: interval, now: time.Now, logger: logger.With("module", "sweeper")}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	start := s.now()
	n, err := s.store.SweepExpired(ctx, start)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error(ctx, "refresh token sweep failed", "deleted", n, "error", err)
		return
	}
	s.logger.Info(ctx, "refresh tokens swept", "deleted", n, "took", time.Since(start).String())
}
