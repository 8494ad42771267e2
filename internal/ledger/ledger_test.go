package ledger

import (
	"testing"
	"time"

	"labovik/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func testKey() models.AccountKey {
	return models.AccountKey{Scope: "campus-north", Category: "equipment", FiscalPeriod: "FY2026"}
}

func newTestLedger(allocated float64, now time.Time) (*Ledger, *fixedClock) {
	clock := &fixedClock{now: now}
	l := New(clock, nil)
	l.Seed(models.BudgetAccount{
		Key:         testKey(),
		Allocated:   allocated,
		PeriodStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	return l, clock
}

func tx(kind string, amount float64, ref string) models.LedgerTransaction {
	return models.LedgerTransaction{
		AccountKey: testKey(),
		Kind:       kind,
		Amount:     amount,
		BookingRef: ref,
	}
}

func TestCommitSpendRelease(t *testing.T) {
	l, _ := newTestLedger(1000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	snap, err := l.Apply(tx(models.TxCommit, 200, "b1"))
	require.NoError(t, err)
	assert.Equal(t, 200.0, snap.Committed)
	assert.Equal(t, 800.0, snap.Remaining)

	snap, err = l.Apply(tx(models.TxSpend, 200, "b1"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Committed)
	assert.Equal(t, 200.0, snap.Spent)
	assert.Equal(t, 800.0, snap.Remaining)

	// Release after spend leaves balances untouched.
	snap, err = l.Apply(tx(models.TxRelease, 200, "b1"))
	require.NoError(t, err)
	assert.Equal(t, 200.0, snap.Spent)
	assert.Equal(t, 0.0, snap.Committed)
}

func TestSpendOverrideReleasesFullCommit(t *testing.T) {
	l, _ := newTestLedger(1000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	_, err := l.Apply(tx(models.TxCommit, 300, "b1"))
	require.NoError(t, err)

	// Actual charge differs from the committed estimate; the whole
	// commit still converts.
	snap, err := l.Apply(tx(models.TxSpend, 250, "b1"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Committed)
	assert.Equal(t, 250.0, snap.Spent)
}

func TestReleaseWithoutCommitIsNoop(t *testing.T) {
	l, _ := newTestLedger(1000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	snap, err := l.Apply(tx(models.TxRelease, 100, "b1"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Committed)
	assert.Equal(t, 0.0, snap.Spent)
}

func TestIdempotentReplay(t *testing.T) {
	l, _ := newTestLedger(1000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	_, err := l.Apply(tx(models.TxCommit, 400, "b1"))
	require.NoError(t, err)
	snap, err := l.Apply(tx(models.TxCommit, 400, "b1"))
	require.NoError(t, err)
	assert.Equal(t, 400.0, snap.Committed)

	_, err = l.Apply(tx(models.TxRelease, 400, "b1"))
	require.NoError(t, err)
	snap, err = l.Apply(tx(models.TxRelease, 400, "b1"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Committed)
}

func TestUnknownAccount(t *testing.T) {
	l, _ := newTestLedger(1000, time.Now())
	bad := tx(models.TxCommit, 10, "b1")
	bad.AccountKey = models.AccountKey{Scope: "x", Category: "y", FiscalPeriod: "z"}
	_, err := l.Apply(bad)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		name      string
		spent     float64
		committed float64
		want      string
	}{
		{"healthy", 100, 0, models.BudgetHealthy},
		{"moderate", 600, 0, models.BudgetModerate},
		{"warning", 500, 300, models.BudgetWarning},
		{"critical", 900, 0, models.BudgetCritical},
		{"overspent wins", 1100, 0, models.BudgetOverBudget},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _ := newTestLedger(1000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
			if tc.committed > 0 {
				_, err := l.Apply(tx(models.TxCommit, tc.committed, "c1"))
				require.NoError(t, err)
			}
			if tc.spent > 0 {
				_, err := l.Apply(tx(models.TxCommit, tc.spent, "s1"))
				require.NoError(t, err)
				_, err = l.Apply(tx(models.TxSpend, tc.spent, "s1"))
				require.NoError(t, err)
			}
			snap, err := l.Snapshot(testKey())
			require.NoError(t, err)
			assert.Equal(t, tc.want, snap.Status)
		})
	}
}

func TestZeroAllocationUtilization(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)}
	l := New(clock, nil)
	l.Seed(models.BudgetAccount{
		Key:         testKey(),
		PeriodStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	_, err := l.Apply(tx(models.TxCommit, 50, "b1"))
	require.NoError(t, err)
	snap, err := l.Snapshot(testKey())
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.UtilizationPct)
	assert.Equal(t, models.BudgetHealthy, snap.Status)
}

func TestBurnRateProjection(t *testing.T) {
	// 2.5 months in, burn rate uses the floored elapsed month count.
	now := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	l, _ := newTestLedger(1200, now)

	_, err := l.Apply(tx(models.TxCommit, 200, "b1"))
	require.NoError(t, err)
	_, err = l.Apply(tx(models.TxSpend, 200, "b1"))
	require.NoError(t, err)

	snap, err := l.Snapshot(testKey())
	require.NoError(t, err)
	// 74 days elapsed over 30-day months floors to 2; 364-day period
	// floors to 12 months total.
	assert.Equal(t, 100.0, snap.BurnRate)
	assert.Equal(t, 1200.0, snap.ProjectedSpend)
	assert.Equal(t, 0.0, snap.Variance)
}

func TestBurnRateClampsToOneMonth(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	l, _ := newTestLedger(1200, now)

	_, err := l.Apply(tx(models.TxCommit, 300, "b1"))
	require.NoError(t, err)
	_, err = l.Apply(tx(models.TxSpend, 300, "b1"))
	require.NoError(t, err)

	snap, err := l.Snapshot(testKey())
	require.NoError(t, err)
	assert.Equal(t, 300.0, snap.BurnRate)
}

func TestAlertsRecomputedAndAcknowledgedPreserved(t *testing.T) {
	l, _ := newTestLedger(1000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	snap, err := l.Apply(tx(models.TxCommit, 850, "b1"))
	require.NoError(t, err)
	require.Len(t, snap.Alerts, 1)
	assert.Equal(t, models.AlertWarning, snap.Alerts[0].Type)

	actor := models.Actor{ID: "mgr-1"}
	require.NoError(t, l.Acknowledge(testKey(), models.AlertWarning, actor))

	// Drop back below the threshold: the acknowledged alert stays on
	// record, no fresh one fires.
	snap, err = l.Apply(tx(models.TxRelease, 850, "b1"))
	require.NoError(t, err)
	require.Len(t, snap.Alerts, 1)
	assert.True(t, snap.Alerts[0].Acknowledged)
	assert.Equal(t, "mgr-1", snap.Alerts[0].AcknowledgedBy)
}

func TestOverspentAlert(t *testing.T) {
	l, _ := newTestLedger(100, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	_, err := l.Apply(tx(models.TxCommit, 150, "b1"))
	require.NoError(t, err)
	snap, err := l.Apply(tx(models.TxSpend, 150, "b1"))
	require.NoError(t, err)
	require.Len(t, snap.Alerts, 1)
	assert.Equal(t, models.AlertOverspent, snap.Alerts[0].Type)
	assert.Equal(t, models.BudgetOverBudget, snap.Status)
}

func TestAcknowledgeMissingAlert(t *testing.T) {
	l, _ := newTestLedger(1000, time.Now())
	err := l.Acknowledge(testKey(), models.AlertCritical, models.Actor{ID: "mgr-1"})
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestRestoreSkipsReplay(t *testing.T) {
	l, _ := newTestLedger(1000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	restored := tx(models.TxCommit, 400, "b1")
	require.NoError(t, l.Restore(restored))

	// Balance untouched by Restore, and the replayed transaction is a no-op.
	snap, err := l.Apply(tx(models.TxCommit, 400, "b1"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Committed)
}
