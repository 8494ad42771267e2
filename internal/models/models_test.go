package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseAccountKey(t *testing.T) {
	key, err := ParseAccountKey("campus-north/equipment/FY2026")
	assert.NoError(t, err)
	assert.Equal(t, "campus-north", key.Scope)
	assert.Equal(t, "equipment", key.Category)
	assert.Equal(t, "FY2026", key.FiscalPeriod)
	assert.Equal(t, "campus-north/equipment/FY2026", key.String())

	for _, raw := range []string{"", "a/b", "a/b/c/d", "//FY2026"} {
		_, err := ParseAccountKey(raw)
		assert.Error(t, err, raw)
	}
}

func TestBookingLiveAndTerminal(t *testing.T) {
	b := &Booking{Status: StatusPending}
	assert.True(t, b.IsLive())
	assert.False(t, b.IsTerminal())

	b.Status = StatusCancelled
	assert.False(t, b.IsLive())
	assert.True(t, b.IsTerminal())
}

func TestBookingDurationHours(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b := &Booking{Start: start, End: start.Add(90 * time.Minute)}
	assert.InDelta(t, 1.5, b.DurationHours(), 1e-9)
}

func TestActorCapabilities(t *testing.T) {
	assert.True(t, Actor{}.Has(""))
	assert.False(t, Actor{}.Has(CapApprove))
	assert.True(t, Actor{Capabilities: []string{CapApprove}}.Has(CapApprove))
	assert.True(t, SystemActor().Has(CapApprove), "system actor passes every capability check")
}

func TestAccountRemaining(t *testing.T) {
	a := &BudgetAccount{Allocated: 1000, Spent: 300, Committed: 150}
	assert.InDelta(t, 550, a.Remaining(), 1e-9)
}
