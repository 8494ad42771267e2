// Package ledger maintains the per-account budget balances that move in
// lockstep with booking lifecycle transitions.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"labovik/internal/domain"
	"labovik/internal/metrics"
	"labovik/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrAccountNotFound = errors.New("budget account not found")
	ErrAlertNotFound   = errors.New("alert not found")
)

// account couples balances with the idempotency log of applied
// transactions. Mutations happen under the account's own lock so
// unrelated accounts never contend.
type account struct {
	mu      sync.Mutex
	state   models.BudgetAccount
	applied map[string]models.LedgerTransaction // bookingRef|kind
	alerts  []models.BudgetAlert
}

type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
	clock    domain.TimeSource
	logger   *zerolog.Logger
}

func New(clock domain.TimeSource, logger *zerolog.Logger) *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		clock:    clock,
		logger:   logger,
	}
}

// Seed registers an account. Existing balances are overwritten; used at
// startup from config or the durable store.
func (l *Ledger) Seed(state models.BudgetAccount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[state.Key.String()] = &account{
		state:   state,
		applied: make(map[string]models.LedgerTransaction),
	}
}

// Restore replays a persisted transaction into the idempotency log
// without touching balances: the stored account state already includes
// its effect.
func (l *Ledger) Restore(tx models.LedgerTransaction) error {
	acc, err := l.account(tx.AccountKey)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.applied[appliedKey(tx.BookingRef, tx.Kind)] = tx
	return nil
}

func (l *Ledger) account(key models.AccountKey) (*account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return acc, nil
}

// Keys lists all account keys, for sweeps and persistence.
func (l *Ledger) Keys() []models.AccountKey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.AccountKey, 0, len(l.accounts))
	for _, acc := range l.accounts {
		out = append(out, acc.state.Key)
	}
	return out
}

// Account returns a copy of the raw account state.
func (l *Ledger) Account(key models.AccountKey) (models.BudgetAccount, error) {
	acc, err := l.account(key)
	if err != nil {
		return models.BudgetAccount{}, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.state, nil
}

// Apply executes one transaction and returns the resulting snapshot.
// Replays keyed on (bookingRef, kind) are no-ops; a release without a
// prior commit is a no-op as well. The ledger never rejects a
// transaction for lack of funds: over-budget is a reportable state.
func (l *Ledger) Apply(tx models.LedgerTransaction) (models.AccountSnapshot, error) {
	acc, err := l.account(tx.AccountKey)
	if err != nil {
		return models.AccountSnapshot{}, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	key := appliedKey(tx.BookingRef, tx.Kind)
	if _, done := acc.applied[key]; done {
		return l.snapshotLocked(acc), nil
	}

	amount := roundCents(tx.Amount)
	switch tx.Kind {
	case models.TxCommit:
		acc.state.Committed = roundCents(acc.state.Committed + amount)

	case models.TxSpend:
		released := amount
		if commit, ok := acc.applied[appliedKey(tx.BookingRef, models.TxCommit)]; ok {
			released = commit.Amount
		}
		acc.state.Committed = roundCents(math.Max(0, acc.state.Committed-released))
		acc.state.Spent = roundCents(acc.state.Spent + amount)

	case models.TxRelease:
		commit, ok := acc.applied[appliedKey(tx.BookingRef, models.TxCommit)]
		if !ok {
			// Nothing was committed for this booking; releasing is moot.
			return l.snapshotLocked(acc), nil
		}
		if _, spent := acc.applied[appliedKey(tx.BookingRef, models.TxSpend)]; spent {
			return l.snapshotLocked(acc), nil
		}
		acc.state.Committed = roundCents(math.Max(0, acc.state.Committed-commit.Amount))

	default:
		return models.AccountSnapshot{}, fmt.Errorf("unknown transaction kind %q", tx.Kind)
	}

	tx.Amount = amount
	tx.Timestamp = l.clock.Now()
	acc.applied[key] = tx
	acc.state.UpdatedAt = tx.Timestamp

	l.recomputeAlertsLocked(acc)
	metrics.IncLedgerTransaction(tx.Kind)
	metrics.SetBudgetAlerts(acc.state.Key.String(), len(acc.alerts))

	if l.logger != nil {
		l.logger.Info().
			Str("account", acc.state.Key.String()).
			Str("kind", tx.Kind).
			Float64("amount", amount).
			Str("booking", tx.BookingRef).
			Msg("ledger transaction applied")
	}

	return l.snapshotLocked(acc), nil
}

// Snapshot derives the metric view for one account.
func (l *Ledger) Snapshot(key models.AccountKey) (models.AccountSnapshot, error) {
	acc, err := l.account(key)
	if err != nil {
		return models.AccountSnapshot{}, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return l.snapshotLocked(acc), nil
}

func (l *Ledger) snapshotLocked(acc *account) models.AccountSnapshot {
	s := acc.state
	now := l.clock.Now()

	util := 0.0
	if s.Allocated > 0 {
		util = (s.Spent + s.Committed) / s.Allocated * 100
	}

	// Month arithmetic matches the reporting convention: 30-day months,
	// at least one month elapsed.
	monthsElapsed := math.Max(1, math.Floor(now.Sub(s.PeriodStart).Hours()/(24*30)))
	totalMonths := math.Max(1, math.Floor(s.PeriodEnd.Sub(s.PeriodStart).Hours()/(24*30)))
	burnRate := s.Spent / monthsElapsed
	projected := burnRate * totalMonths

	alerts := make([]models.BudgetAlert, len(acc.alerts))
	copy(alerts, acc.alerts)

	return models.AccountSnapshot{
		Key:            s.Key,
		Allocated:      s.Allocated,
		Spent:          s.Spent,
		Committed:      s.Committed,
		Remaining:      roundCents(s.Remaining()),
		UtilizationPct: util,
		Status:         classify(s, util),
		BurnRate:       roundCents(burnRate),
		ProjectedSpend: roundCents(projected),
		Variance:       roundCents(s.Allocated - projected),
		Alerts:         alerts,
	}
}

// classify evaluates the status chain in strict order.
func classify(s models.BudgetAccount, util float64) string {
	switch {
	case s.Spent > s.Allocated:
		return models.BudgetOverBudget
	case util >= 90:
		return models.BudgetCritical
	case util >= 80:
		return models.BudgetWarning
	case util >= 60:
		return models.BudgetModerate
	default:
		return models.BudgetHealthy
	}
}

func appliedKey(bookingRef, kind string) string {
	return bookingRef + "|" + kind
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
