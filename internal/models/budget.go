package models

import (
	"fmt"
	"strings"
	"time"
)

// AccountKey identifies a budget account by scope (campus or lab),
// spending category and fiscal period, e.g. "campus-north/equipment/FY2026".
type AccountKey struct {
	Scope        string `json:"scope"`
	Category     string `json:"category"`
	FiscalPeriod string `json:"fiscal_period"`
}

func (k AccountKey) String() string {
	return k.Scope + "/" + k.Category + "/" + k.FiscalPeriod
}

// ParseAccountKey разбирает ключ вида scope/category/period.
func ParseAccountKey(raw string) (AccountKey, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return AccountKey{}, fmt.Errorf("invalid account key: %q", raw)
	}
	return AccountKey{Scope: parts[0], Category: parts[1], FiscalPeriod: parts[2]}, nil
}

type BudgetAccount struct {
	Key         AccountKey `json:"key"`
	Allocated   float64    `json:"allocated"`
	Spent       float64    `json:"spent"`
	Committed   float64    `json:"committed"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Remaining is derived on every read, never stored on its own.
func (a *BudgetAccount) Remaining() float64 {
	return a.Allocated - a.Spent - a.Committed
}

type LedgerTransaction struct {
	ID         string     `json:"id"`
	AccountKey AccountKey `json:"account_key"`
	Kind       string     `json:"kind"` // commit, spend, release
	Amount     float64    `json:"amount"`
	BookingRef string     `json:"booking_ref"`
	Detail     string     `json:"detail,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// BudgetAlert живет до следующего пересчета, если не подтвержден вручную.
type BudgetAlert struct {
	Type           string    `json:"type"` // warning, critical, overspent
	Category       string    `json:"category"`
	Message        string    `json:"message"`
	TriggeredAt    time.Time `json:"triggered_at"`
	Acknowledged   bool      `json:"acknowledged"`
	AcknowledgedBy string    `json:"acknowledged_by,omitempty"`
}

// AccountSnapshot is the derived view returned by the ledger.
type AccountSnapshot struct {
	Key            AccountKey    `json:"key"`
	Allocated      float64       `json:"allocated"`
	Spent          float64       `json:"spent"`
	Committed      float64       `json:"committed"`
	Remaining      float64       `json:"remaining"`
	UtilizationPct float64       `json:"utilization_pct"`
	Status         string        `json:"status"`
	BurnRate       float64       `json:"burn_rate"`
	ProjectedSpend float64       `json:"projected_spend"`
	Variance       float64       `json:"variance"`
	Alerts         []BudgetAlert `json:"alerts,omitempty"`
}
