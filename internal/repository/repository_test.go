package repository

import (
	"context"
	"testing"
	"time"

	"labovik/internal/config"
	"labovik/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBooking(id string) *models.Booking {
	return &models.Booking{
		ID:        id,
		Resources: []models.ResourceRef{{ResourceID: "lab-a", Kind: models.KindLab}},
		Start:     time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC),
		End:       time.Date(2026, 9, 10, 11, 0, 0, 0, time.UTC),
		Status:    models.StatusPending,
	}
}

func newRedisRepo(t *testing.T) (*RedisSnapshotRepository, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := NewRedisClient(config.RedisConfig{Address: srv.Addr()})
	t.Cleanup(func() { _ = Close(client) })
	return NewRedisSnapshotRepository(client, time.Hour), srv
}

func TestRedisSnapshotRoundTrip(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveBooking(ctx, sampleBooking("b-1")))

	got, err := repo.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b-1", got.ID)
	assert.Equal(t, models.StatusPending, got.Status)

	require.NoError(t, repo.DeleteBooking(ctx, "b-1"))
	got, err = repo.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSnapshotTTL(t *testing.T) {
	repo, srv := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveBooking(ctx, sampleBooking("b-1")))
	srv.FastForward(2 * time.Hour)

	got, err := repo.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemorySnapshotRoundTrip(t *testing.T) {
	repo := NewMemorySnapshotRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveBooking(ctx, sampleBooking("b-1")))
	got, err := repo.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, repo.DeleteBooking(ctx, "b-1"))
	got, err = repo.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFailoverSwitchesToFallback(t *testing.T) {
	srv := miniredis.RunT(t)
	client := NewRedisClient(config.RedisConfig{Address: srv.Addr()})
	t.Cleanup(func() { _ = Close(client) })

	logger := zerolog.Nop()
	primary := NewRedisSnapshotRepository(client, time.Hour)
	fallback := NewMemorySnapshotRepository()
	repo := NewFailoverSnapshotRepository(primary, fallback, &logger)

	ctx := context.Background()
	require.NoError(t, repo.SaveBooking(ctx, sampleBooking("b-1")))

	// Primary dies; writes land in the fallback, reads keep working.
	srv.Close()
	require.NoError(t, repo.SaveBooking(ctx, sampleBooking("b-2")))

	got, err := repo.GetBooking(ctx, "b-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b-2", got.ID)
}
