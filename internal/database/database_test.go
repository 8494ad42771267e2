package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"labovik/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "labovik.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleBooking() *models.Booking {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	return &models.Booking{
		ID:       "b-1",
		SeriesID: "s-1",
		Resources: []models.ResourceRef{
			{ResourceID: "lab-a", Kind: models.KindLab},
			{ResourceID: "scope-1", Kind: models.KindEquipmentUnit},
		},
		Start:             time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC),
		End:               time.Date(2026, 9, 10, 11, 0, 0, 0, time.UTC),
		RequestedBy:       "stud-1",
		Status:            models.StatusPending,
		Purpose:           "practical",
		Attendees:         10,
		CancelCutoffHours: 24,
		BudgetKey:         "campus-north/equipment/FY2026",
		History: []models.HistoryEntry{
			{Action: "create", Actor: "stud-1", Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestBookingRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := sampleBooking()
	require.NoError(t, db.UpsertBooking(ctx, b))

	got, err := db.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, b.Resources, got.Resources)
	assert.Equal(t, b.Start, got.Start)
	assert.Equal(t, b.Status, got.Status)
	require.Len(t, got.History, 1)
	assert.Equal(t, "create", got.History[0].Action)
	assert.Nil(t, got.CheckInAt)
}

func TestBookingUpsertOverwrites(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := sampleBooking()
	require.NoError(t, db.UpsertBooking(ctx, b))

	checkIn := b.Start.Add(5 * time.Minute)
	b.Status = models.StatusInProgress
	b.CheckInAt = &checkIn
	b.Cost = 50
	b.Version = 2
	b.History = append(b.History, models.HistoryEntry{Action: "check_in", Actor: "stud-1", Timestamp: checkIn})
	require.NoError(t, db.UpsertBooking(ctx, b))

	got, err := db.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, 50.0, got.Cost)
	assert.Equal(t, int64(2), got.Version)
	require.NotNil(t, got.CheckInAt)
	assert.Equal(t, checkIn, *got.CheckInAt)
	assert.Len(t, got.History, 2)
}

func TestGetBookingMissing(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetBooking(context.Background(), "nope")
	assert.Error(t, err)
}

func TestListBookingsOrdered(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	later := sampleBooking()
	later.ID = "b-2"
	later.Start = later.Start.AddDate(0, 0, 7)
	later.End = later.End.AddDate(0, 0, 7)
	require.NoError(t, db.UpsertBooking(ctx, later))
	require.NoError(t, db.UpsertBooking(ctx, sampleBooking()))

	list, err := db.ListBookings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b-1", list[0].ID)
	assert.Equal(t, "b-2", list[1].ID)
}

func TestAccountRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	acc := models.BudgetAccount{
		Key:         models.AccountKey{Scope: "campus-north", Category: "equipment", FiscalPeriod: "FY2026"},
		Allocated:   1000,
		Spent:       200,
		Committed:   50,
		PeriodStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.UpsertAccount(ctx, acc))

	acc.Spent = 300
	require.NoError(t, db.UpsertAccount(ctx, acc))

	list, err := db.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, acc.Key, list[0].Key)
	assert.Equal(t, 300.0, list[0].Spent)
	assert.Equal(t, 50.0, list[0].Committed)
}

func TestTransactionReplayIgnored(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	key := models.AccountKey{Scope: "campus-north", Category: "equipment", FiscalPeriod: "FY2026"}
	tx := models.LedgerTransaction{
		ID:         "tx-1",
		AccountKey: key,
		Kind:       models.TxCommit,
		Amount:     50,
		BookingRef: "b-1",
		Timestamp:  time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.AppendTransaction(ctx, tx))

	// Same booking and kind with a fresh id: must not duplicate.
	tx.ID = "tx-2"
	require.NoError(t, db.AppendTransaction(ctx, tx))

	spend := tx
	spend.ID = "tx-3"
	spend.Kind = models.TxSpend
	spend.Timestamp = spend.Timestamp.Add(time.Hour)
	require.NoError(t, db.AppendTransaction(ctx, spend))

	list, err := db.ListTransactions(ctx, key)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.TxCommit, list[0].Kind)
	assert.Equal(t, models.TxSpend, list[1].Kind)
}
