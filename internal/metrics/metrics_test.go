package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		IncReservationCreated()
		IncConflictDetected()
		IncTransition("approve")
		IncLedgerTransaction("commit")
		SetBudgetAlerts("campus-north/equipment/FY2026", 2)
		IncSweepRun()
	})
}
