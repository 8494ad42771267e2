package recurrence

import (
	"testing"
	"time"

	"labovik/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func interval(y int, m time.Month, d, hour int) (time.Time, time.Time) {
	start := time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
	return start, start.Add(2 * time.Hour)
}

func TestExpandWeeklyByCount(t *testing.T) {
	start, end := interval(2026, 3, 2, 9)
	occ, err := Expand(models.Recurrence{Pattern: models.PatternWeekly, Occurrences: 3}, start, end)
	require.NoError(t, err)
	require.Len(t, occ, 3)
	assert.Equal(t, start, occ[0].Start)
	assert.Equal(t, start.AddDate(0, 0, 7), occ[1].Start)
	assert.Equal(t, start.AddDate(0, 0, 14), occ[2].Start)
	for _, o := range occ {
		assert.Equal(t, 2*time.Hour, o.End.Sub(o.Start))
	}
}

func TestExpandDailyByEndDate(t *testing.T) {
	start, end := interval(2026, 3, 2, 9)
	occ, err := Expand(models.Recurrence{
		Pattern: models.PatternDaily,
		EndDate: start.AddDate(0, 0, 4),
	}, start, end)
	require.NoError(t, err)
	assert.Len(t, occ, 5) // end date inclusive
}

func TestExpandEndDateAtMidnightIncludesLastDay(t *testing.T) {
	start, end := interval(2026, 3, 2, 9)
	occ, err := Expand(models.Recurrence{
		Pattern: models.PatternDaily,
		EndDate: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
	}, start, end)
	require.NoError(t, err)
	require.Len(t, occ, 3, "series until the 4th keeps the 9am slot on the 4th")
	assert.Equal(t, time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), occ[2].Start)
}

func TestExpandExceptionsConsumePosition(t *testing.T) {
	start, end := interval(2026, 3, 2, 9)
	occ, err := Expand(models.Recurrence{
		Pattern:     models.PatternWeekly,
		Occurrences: 3,
		Exceptions:  []time.Time{start.AddDate(0, 0, 7)},
	}, start, end)
	require.NoError(t, err)
	require.Len(t, occ, 2, "excepted date is removed, not pushed to a 4th week")
	assert.Equal(t, start, occ[0].Start)
	assert.Equal(t, start.AddDate(0, 0, 14), occ[1].Start)
}

func TestExpandBiweekly(t *testing.T) {
	start, end := interval(2026, 3, 2, 9)
	occ, err := Expand(models.Recurrence{Pattern: models.PatternBiweekly, Occurrences: 2}, start, end)
	require.NoError(t, err)
	require.Len(t, occ, 2)
	assert.Equal(t, start.AddDate(0, 0, 14), occ[1].Start)
}

func TestExpandMonthlyClampsShortMonths(t *testing.T) {
	start, end := interval(2026, 1, 31, 10)
	occ, err := Expand(models.Recurrence{Pattern: models.PatternMonthly, Occurrences: 4}, start, end)
	require.NoError(t, err)
	require.Len(t, occ, 4)
	assert.Equal(t, time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC), occ[1].Start)
	assert.Equal(t, time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC), occ[2].Start)
	assert.Equal(t, time.Date(2026, 4, 30, 10, 0, 0, 0, time.UTC), occ[3].Start)
}

func TestExpandErrors(t *testing.T) {
	start, end := interval(2026, 3, 2, 9)

	_, err := Expand(models.Recurrence{Pattern: "yearly", Occurrences: 2}, start, end)
	assert.ErrorIs(t, err, ErrUnknownPattern)

	_, err = Expand(models.Recurrence{Pattern: models.PatternDaily}, start, end)
	assert.ErrorIs(t, err, ErrUnbounded)

	_, err = Expand(models.Recurrence{
		Pattern: models.PatternDaily,
		EndDate: start.AddDate(10, 0, 0),
	}, start, end)
	assert.Error(t, err, "unbounded horizon must be refused")
}
