package domain

import (
	"context"
	"time"

	"labovik/internal/models"
)

// TimeSource supplies current time. Injectable so guards and sweeps are
// deterministic under test.
type TimeSource interface {
	Now() time.Time
}

// RealClock is the production TimeSource.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// PersistQueue принимает задачи отложенной записи. Источник истины живет
// в памяти, персистентность догоняет его после фиксации критической секции.
type PersistQueue interface {
	EnqueueBooking(ctx context.Context, booking *models.Booking) error
	EnqueueAccount(ctx context.Context, account models.BudgetAccount) error
	EnqueueTransaction(ctx context.Context, tx models.LedgerTransaction) error
}

// Store is the durable write-behind log. It is never consulted for
// conflict or ledger decisions.
type Store interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context) ([]*models.Booking, error)
	UpsertAccount(ctx context.Context, account models.BudgetAccount) error
	ListAccounts(ctx context.Context) ([]models.BudgetAccount, error)
	AppendTransaction(ctx context.Context, tx models.LedgerTransaction) error
	ListTransactions(ctx context.Context, key models.AccountKey) ([]models.LedgerTransaction, error)
}

// SnapshotRepository keeps read-side booking snapshots for external
// consumers (the thin CRUD layer reads these, not the engine internals).
type SnapshotRepository interface {
	SaveBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	DeleteBooking(ctx context.Context, id string) error
}

// ResourceCatalog is the read-only lookup of bookable resources.
type ResourceCatalog interface {
	Get(resourceID string) (*models.Resource, error)
	WithinOperatingHours(resourceID string, start, end time.Time) (bool, error)
}
