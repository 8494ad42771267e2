package repository

import (
	"context"
	"sync/atomic"
	"time"

	"labovik/internal/domain"
	"labovik/internal/models"

	"github.com/rs/zerolog"
)

// FailoverSnapshotRepository prefers the primary store and drops to the
// fallback on failure, probing the primary again after a minute.
type FailoverSnapshotRepository struct {
	primary   domain.SnapshotRepository
	fallback  domain.SnapshotRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverSnapshotRepository(primary, fallback domain.SnapshotRepository, logger *zerolog.Logger) *FailoverSnapshotRepository {
	return &FailoverSnapshotRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSnapshotRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary snapshot repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck = time.Now()
}

func (r *FailoverSnapshotRepository) SaveBooking(ctx context.Context, booking *models.Booking) error {
	if !r.isDown.Load() {
		err := r.primary.SaveBooking(ctx, booking)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SaveBooking(ctx, booking)
}

func (r *FailoverSnapshotRepository) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	if !r.isDown.Load() {
		booking, err := r.primary.GetBooking(ctx, id)
		if err == nil {
			return booking, nil
		}
		r.markDown(err)
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		booking, err := r.primary.GetBooking(ctx, id)
		if err == nil {
			r.isDown.Store(false)
			return booking, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetBooking(ctx, id)
}

func (r *FailoverSnapshotRepository) DeleteBooking(ctx context.Context, id string) error {
	if !r.isDown.Load() {
		err := r.primary.DeleteBooking(ctx, id)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.DeleteBooking(ctx, id)
}
