// Package lifecycle is the booking state machine. Edges are data: each
// declares its target status, required capability, time guard and the
// ledger effect it triggers. The machine itself never touches the
// ledger or the schedule index; it plans, the service applies.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"labovik/internal/models"
)

type Event string

const (
	EventApprove    Event = "approve"
	EventReject     Event = "reject"
	EventCancel     Event = "cancel"
	EventConfirm    Event = "confirm"
	EventCheckIn    Event = "check_in"
	EventComplete   Event = "complete"
	EventAutoExpire Event = "auto_expire"
)

// Ledger effect attached to an edge. Empty means no ledger movement.
const (
	EffectNone    = ""
	EffectCommit  = models.TxCommit
	EffectSpend   = models.TxSpend
	EffectRelease = models.TxRelease
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("actor lacks required capability")
)

type guardFunc func(b *models.Booking, now time.Time) error

type edge struct {
	to         string
	capability string
	guard      guardFunc
	effect     string
}

// Plan is the precomputed outcome of a transition. It carries
// everything the service needs to mutate state after the ledger side
// succeeded.
type Plan struct {
	Event        Event
	From         string
	To           string
	Effect       string
	SetCheckIn   bool
	ReleaseSlots bool
}

type Machine struct {
	table map[string]map[Event]edge
}

func New() *Machine {
	guardCutoff := func(b *models.Booking, now time.Time) error {
		cutoff := b.Start.Add(-time.Duration(b.CancelCutoffHours) * time.Hour)
		if !now.Before(cutoff) {
			return fmt.Errorf("%w: cancel window closed %d hours before start", ErrInvalidTransition, b.CancelCutoffHours)
		}
		return nil
	}
	guardStarted := func(b *models.Booking, now time.Time) error {
		if now.Before(b.Start) {
			return fmt.Errorf("%w: booking has not started", ErrInvalidTransition)
		}
		return nil
	}
	guardExpired := func(b *models.Booking, now time.Time) error {
		if !now.After(b.End) {
			return fmt.Errorf("%w: booking has not ended", ErrInvalidTransition)
		}
		if b.CheckInAt != nil {
			return fmt.Errorf("%w: booking was checked in", ErrInvalidTransition)
		}
		return nil
	}
	guardEnded := func(b *models.Booking, now time.Time) error {
		if now.Before(b.End) {
			return fmt.Errorf("%w: booking has not ended", ErrInvalidTransition)
		}
		return nil
	}

	// confirmed дублирует переходы approved: статус выставляется внешней
	// системой подтверждений и не меняет прав дальше по цепочке.
	activeEdges := map[Event]edge{
		EventCancel:     {to: models.StatusCancelled, guard: guardCutoff, effect: EffectRelease},
		EventCheckIn:    {to: models.StatusInProgress, guard: guardStarted},
		EventAutoExpire: {to: models.StatusNoShow, capability: models.CapSystem, guard: guardExpired, effect: EffectRelease},
	}

	table := map[string]map[Event]edge{
		models.StatusDraft: {
			EventCancel: {to: models.StatusCancelled},
		},
		models.StatusPending: {
			EventApprove: {to: models.StatusApproved, capability: models.CapApprove, effect: EffectCommit},
			EventReject:  {to: models.StatusRejected, capability: models.CapApprove},
			EventCancel:  {to: models.StatusCancelled},
		},
		models.StatusApproved: {
			EventCancel:     activeEdges[EventCancel],
			EventCheckIn:    activeEdges[EventCheckIn],
			EventAutoExpire: activeEdges[EventAutoExpire],
			EventConfirm:    {to: models.StatusConfirmed},
		},
		models.StatusConfirmed: activeEdges,
		models.StatusInProgress: {
			EventComplete: {to: models.StatusCompleted, guard: guardEnded, effect: EffectSpend},
		},
	}
	return &Machine{table: table}
}

// Plan validates the transition and computes its plan without side
// effects. Callers apply the plan only after any coupled ledger
// transaction succeeded.
func (m *Machine) Plan(b *models.Booking, ev Event, actor models.Actor, now time.Time) (Plan, error) {
	edges, ok := m.table[b.Status]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, b.Status)
	}
	e, ok := edges[ev]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, b.Status)
	}
	if e.capability != "" && !actor.Has(e.capability) {
		return Plan{}, fmt.Errorf("%w: %s requires %s", ErrForbidden, ev, e.capability)
	}
	if e.guard != nil {
		if err := e.guard(b, now); err != nil {
			return Plan{}, err
		}
	}
	return Plan{
		Event:        ev,
		From:         b.Status,
		To:           e.to,
		Effect:       e.effect,
		SetCheckIn:   ev == EventCheckIn,
		ReleaseSlots: models.TerminalStatuses[e.to],
	}, nil
}

// Apply mutates the booking per the plan and writes the history entry.
func (m *Machine) Apply(b *models.Booking, plan Plan, actor models.Actor, now time.Time, detail string) {
	b.Status = plan.To
	if plan.SetCheckIn {
		t := now
		b.CheckInAt = &t
	}
	b.AppendHistory(string(plan.Event), actor.ID, now, detail)
	b.UpdatedAt = now
	b.Version++
}

// Events lists the events legal from the given status, for API hints.
func (m *Machine) Events(status string) []Event {
	edges, ok := m.table[status]
	if !ok {
		return nil
	}
	out := make([]Event, 0, len(edges))
	for ev := range edges {
		out = append(out, ev)
	}
	return out
}
