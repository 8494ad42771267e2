package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// NoShowSweep is implemented by the reservation service.
type NoShowSweep interface {
	Sweep(ctx context.Context) int
}

// Sweeper expires approved bookings whose slot passed without a
// check-in, on a fixed interval.
type Sweeper struct {
	target   NoShowSweep
	interval time.Duration
	logger   *zerolog.Logger
}

func NewSweeper(target NoShowSweep, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{target: target, interval: interval, logger: logger}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.target.Sweep(ctx)
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.Info().Msg("no-show sweeper stopped")
			}
			return
		}
	}
}
