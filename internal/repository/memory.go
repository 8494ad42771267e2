package repository

import (
	"context"
	"sync"

	"labovik/internal/models"
)

// MemorySnapshotRepository is the in-process fallback when Redis is
// disabled or unreachable.
type MemorySnapshotRepository struct {
	bookings sync.Map
}

func NewMemorySnapshotRepository() *MemorySnapshotRepository {
	return &MemorySnapshotRepository{}
}

func (r *MemorySnapshotRepository) SaveBooking(_ context.Context, booking *models.Booking) error {
	r.bookings.Store(booking.ID, booking)
	return nil
}

func (r *MemorySnapshotRepository) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	val, ok := r.bookings.Load(id)
	if !ok {
		return nil, nil
	}
	return val.(*models.Booking), nil
}

func (r *MemorySnapshotRepository) DeleteBooking(_ context.Context, id string) error {
	r.bookings.Delete(id)
	return nil
}
