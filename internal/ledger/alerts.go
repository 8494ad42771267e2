package ledger

import (
	"fmt"

	"labovik/internal/models"
)

// recomputeAlertsLocked rebuilds the alert list after every mutation.
// Acknowledged alerts survive the rebuild so a manual sign-off is not
// lost when the next transaction lands.
func (l *Ledger) recomputeAlertsLocked(acc *account) {
	s := acc.state
	util := 0.0
	if s.Allocated > 0 {
		util = (s.Spent + s.Committed) / s.Allocated * 100
	}

	kept := make([]models.BudgetAlert, 0, len(acc.alerts))
	for _, a := range acc.alerts {
		if a.Acknowledged {
			kept = append(kept, a)
		}
	}

	add := func(alertType, message string) {
		for _, a := range kept {
			if a.Type == alertType && a.Category == s.Key.Category {
				return
			}
		}
		kept = append(kept, models.BudgetAlert{
			Type:        alertType,
			Category:    s.Key.Category,
			Message:     message,
			TriggeredAt: l.clock.Now(),
		})
	}

	switch {
	case s.Spent > s.Allocated:
		add(models.AlertOverspent, fmt.Sprintf("budget %s overspent by %.2f", s.Key, s.Spent-s.Allocated))
	case util >= 90:
		add(models.AlertCritical, fmt.Sprintf("budget %s at %.1f%% utilization", s.Key, util))
	case util >= 80:
		add(models.AlertWarning, fmt.Sprintf("budget %s at %.1f%% utilization", s.Key, util))
	}

	acc.alerts = kept
}

// Acknowledge marks the first unacknowledged alert of the given type.
func (l *Ledger) Acknowledge(key models.AccountKey, alertType string, actor models.Actor) error {
	acc, err := l.account(key)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	for i := range acc.alerts {
		if acc.alerts[i].Type == alertType && !acc.alerts[i].Acknowledged {
			acc.alerts[i].Acknowledged = true
			acc.alerts[i].AcknowledgedBy = actor.ID
			return nil
		}
	}
	return fmt.Errorf("%w: %s on %s", ErrAlertNotFound, alertType, key)
}
