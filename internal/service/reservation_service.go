// Package service orchestrates the reservation engine: validation,
// recurrence fan-out, conflict checks, lifecycle transitions and
// ledger movements. Bookings live in one indexed table; every
// cross-reference is an id resolved through it.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"labovik/internal/catalog"
	"labovik/internal/config"
	"labovik/internal/domain"
	"labovik/internal/events"
	"labovik/internal/ledger"
	"labovik/internal/lifecycle"
	"labovik/internal/metrics"
	"labovik/internal/models"
	"labovik/internal/recurrence"
	"labovik/internal/schedule"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrBookingNotFound = errors.New("booking not found")
)

// Deps enumerates the collaborators; everything mutable is injected so
// tests can substitute clocks and sinks.
type Deps struct {
	Index   *schedule.Index
	Machine *lifecycle.Machine
	Ledger  *ledger.Ledger
	Catalog domain.ResourceCatalog
	Clock   domain.TimeSource
	Events  domain.EventPublisher
	Queue   domain.PersistQueue
	Policy  config.PolicyConfig
	Logger  *zerolog.Logger
}

type Service struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking

	index   *schedule.Index
	machine *lifecycle.Machine
	ledger  *ledger.Ledger
	catalog domain.ResourceCatalog
	clock   domain.TimeSource
	events  domain.EventPublisher
	queue   domain.PersistQueue
	policy  config.PolicyConfig
	logger  *zerolog.Logger
}

func New(d Deps) *Service {
	return &Service{
		bookings: make(map[string]*models.Booking),
		index:    d.Index,
		machine:  d.Machine,
		ledger:   d.Ledger,
		catalog:  d.Catalog,
		clock:    d.Clock,
		events:   d.Events,
		queue:    d.Queue,
		policy:   d.Policy,
		logger:   d.Logger,
	}
}

// CreateRequest is the validated input for one booking or series.
type CreateRequest struct {
	Resources   []models.ResourceRef
	Start       time.Time
	End         time.Time
	RequestedBy string
	Purpose     string
	Attendees   int
	Notes       string
	Recurrence  *models.Recurrence
	BudgetKey   string
}

// OccurrenceConflict reports one series occurrence that could not be
// placed, with the bookings occupying its slot.
type OccurrenceConflict struct {
	Start     time.Time           `json:"start"`
	End       time.Time           `json:"end"`
	Conflicts []schedule.Conflict `json:"conflicts"`
}

// CreateResult carries both the created bookings and the occurrences
// rejected on conflict, so the caller can resolve them one by one.
type CreateResult struct {
	Created   []*models.Booking    `json:"created"`
	Conflicts []OccurrenceConflict `json:"conflicts,omitempty"`
}

// CreateBooking validates the request, expands recurrence when present
// and reserves each occurrence independently. A non-recurring request
// that hits an overlap returns *schedule.ConflictError; a series
// reports per-occurrence conflicts in the result instead, because one
// taken slot must not sink its siblings.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	occurrences := []recurrence.Occurrence{{Start: req.Start, End: req.End}}
	seriesID := ""
	if req.Recurrence != nil {
		var err error
		occurrences, err = recurrence.Expand(*req.Recurrence, req.Start, req.End)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		seriesID = uuid.NewString()
	}

	now := s.clock.Now()
	cutoff := s.cutoffFor(req.Resources)
	result := &CreateResult{}

	for _, occ := range occurrences {
		b := &models.Booking{
			ID:                uuid.NewString(),
			SeriesID:          seriesID,
			Resources:         req.Resources,
			Start:             occ.Start,
			End:               occ.End,
			RequestedBy:       req.RequestedBy,
			Status:            models.StatusPending,
			Purpose:           req.Purpose,
			Attendees:         req.Attendees,
			Notes:             req.Notes,
			CancelCutoffHours: cutoff,
			BudgetKey:         req.BudgetKey,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		err := s.index.Reserve(ctx, b.ResourceIDs(), occ.Start, occ.End, b.ID)
		if err != nil {
			var conflict *schedule.ConflictError
			if errors.As(err, &conflict) {
				metrics.IncConflictDetected()
				if req.Recurrence == nil {
					return nil, conflict
				}
				result.Conflicts = append(result.Conflicts, OccurrenceConflict{
					Start:     occ.Start,
					End:       occ.End,
					Conflicts: conflict.Conflicts,
				})
				continue
			}
			// Lock timeout or cancellation: report created/failed so far.
			return result, err
		}

		b.AppendHistory("create", req.RequestedBy, now, "")
		s.mu.Lock()
		s.bookings[b.ID] = b
		snap := snapshotOf(b)
		s.mu.Unlock()

		metrics.IncReservationCreated()
		s.publishBooking(events.EventReservationCreated, snap, req.RequestedBy)
		s.enqueueBooking(ctx, snap)
		result.Created = append(result.Created, snap)
	}

	if s.logger != nil {
		s.logger.Info().
			Str("series_id", seriesID).
			Int("created", len(result.Created)).
			Int("conflicts", len(result.Conflicts)).
			Msg("booking request processed")
	}
	return result, nil
}

func (s *Service) validateCreate(req CreateRequest) error {
	if len(req.Resources) == 0 {
		return fmt.Errorf("%w: resource set is empty", ErrValidation)
	}
	if !req.Start.Before(req.End) {
		return fmt.Errorf("%w: start must precede end", ErrValidation)
	}
	if req.RequestedBy == "" {
		return fmt.Errorf("%w: requested_by is required", ErrValidation)
	}
	now := s.clock.Now()
	if req.End.Before(now) {
		return fmt.Errorf("%w: interval is in the past", ErrValidation)
	}
	horizon := now.AddDate(0, 0, s.policy.MaxBookingDays)
	if req.Start.After(horizon) {
		return fmt.Errorf("%w: start exceeds the %d-day booking horizon", ErrValidation, s.policy.MaxBookingDays)
	}
	if req.BudgetKey != "" {
		if _, err := models.ParseAccountKey(req.BudgetKey); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	for _, ref := range req.Resources {
		res, err := s.catalog.Get(ref.ResourceID)
		if err != nil {
			if errors.Is(err, catalog.ErrResourceNotFound) {
				return fmt.Errorf("%w: unknown resource %s", ErrValidation, ref.ResourceID)
			}
			return err
		}
		if res.Kind == models.KindLab && res.Capacity > 0 && req.Attendees > res.Capacity {
			return fmt.Errorf("%w: %d attendees exceed capacity %d of %s", ErrValidation, req.Attendees, res.Capacity, res.ID)
		}
		ok, err := s.catalog.WithinOperatingHours(ref.ResourceID, req.Start, req.End)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s is outside operating hours of %s", ErrValidation, req.Start.Format("Mon 15:04"), ref.ResourceID)
		}
	}
	return nil
}

// cutoffFor picks the strictest cancel window across the booked kinds.
func (s *Service) cutoffFor(resources []models.ResourceRef) int {
	cutoff := s.policy.EquipmentCutoffHours
	for _, r := range resources {
		if r.Kind == models.KindLab && s.policy.LabCutoffHours > cutoff {
			cutoff = s.policy.LabCutoffHours
		}
	}
	return cutoff
}

// UpdateBooking moves a booking to a new interval. Only pending and
// draft bookings may move; everything later is frozen and a time change
// means cancel plus recreate. On conflict the original interval stays.
func (s *Service) UpdateBooking(ctx context.Context, id string, newStart, newEnd time.Time) (*models.Booking, error) {
	if !newStart.Before(newEnd) {
		return nil, fmt.Errorf("%w: start must precede end", ErrValidation)
	}

	s.mu.RLock()
	b, ok := s.bookings[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, id)
	}

	// Resources никогда не меняются после создания, читать можно без
	// блокировок.
	for _, ref := range b.Resources {
		ok, err := s.catalog.WithinOperatingHours(ref.ResourceID, newStart, newEnd)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: new interval is outside operating hours of %s", ErrValidation, ref.ResourceID)
		}
	}

	// Статус проверяется только под блокировками ресурсов, иначе
	// параллельный approve заморозит интервал между проверкой и заменой.
	hold, err := s.index.Acquire(ctx, b.ResourceIDs())
	if err != nil {
		return nil, err
	}
	defer hold.Release()

	if b.Status != models.StatusPending && b.Status != models.StatusDraft {
		return nil, fmt.Errorf("%w: interval is frozen in status %s", lifecycle.ErrInvalidTransition, b.Status)
	}

	if b.Status == models.StatusPending {
		if conflicts := hold.Conflicts(newStart, newEnd, b.ID); len(conflicts) > 0 {
			metrics.IncConflictDetected()
			return nil, &schedule.ConflictError{Conflicts: conflicts}
		}
		hold.Remove(b.ID)
		hold.Place(newStart, newEnd, b.ID)
	}

	now := s.clock.Now()
	s.mu.Lock()
	b.Start = newStart
	b.End = newEnd
	b.AppendHistory("update", b.RequestedBy, now, "interval moved")
	b.UpdatedAt = now
	b.Version++
	snap := snapshotOf(b)
	s.mu.Unlock()

	s.enqueueBooking(ctx, snap)
	return snap, nil
}

// TransitionOptions carries the optional parts of a transition call.
type TransitionOptions struct {
	Reason string
	// ActualCost overrides the frozen cost on completion; the delta is
	// recorded on the spend transaction.
	ActualCost *float64
}

// Transition applies one lifecycle event. The booking's resource locks
// are held across plan, ledger and state mutation so the ledger and the
// index never disagree: if the ledger rejects the transaction, nothing
// changed.
func (s *Service) Transition(ctx context.Context, id string, ev lifecycle.Event, actor models.Actor, opts TransitionOptions) (*models.Booking, error) {
	s.mu.RLock()
	b, ok := s.bookings[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, id)
	}

	hold, err := s.index.Acquire(ctx, b.ResourceIDs())
	if err != nil {
		return nil, err
	}
	defer hold.Release()

	now := s.clock.Now()
	plan, err := s.machine.Plan(b, ev, actor, now)
	if err != nil {
		return nil, err
	}

	// Cost фиксируется при одобрении независимо от того, привязан ли
	// бюджетный счёт.
	amount := b.Cost
	if plan.Effect == lifecycle.EffectCommit {
		amount, err = s.costOf(b)
		if err != nil {
			return nil, err
		}
	}

	detail := opts.Reason
	if plan.Effect != lifecycle.EffectNone && b.BudgetKey != "" {
		ledgerDetail, err := s.applyEffect(b, plan, amount, opts)
		if err != nil {
			// Booking stays in its prior state; nothing was mutated.
			return nil, err
		}
		if detail == "" {
			detail = ledgerDetail
		}
	}

	s.mu.Lock()
	s.machine.Apply(b, plan, actor, now, detail)
	if plan.Effect == lifecycle.EffectCommit {
		b.Cost = amount
	}
	snap := snapshotOf(b)
	s.mu.Unlock()

	if plan.ReleaseSlots {
		hold.Remove(b.ID)
	}

	metrics.IncTransition(string(ev))
	if eventType, ok := transitionEvents[ev]; ok {
		s.publishBooking(eventType, snap, actor.ID)
	}
	s.enqueueBooking(ctx, snap)

	if s.logger != nil {
		s.logger.Info().
			Str("booking_id", b.ID).
			Str("event", string(ev)).
			Str("from", plan.From).
			Str("to", plan.To).
			Str("actor", actor.ID).
			Msg("booking transition")
	}
	return snap, nil
}

// applyEffect runs the ledger side of a transition with the already
// computed amount. The booking itself is not mutated here.
func (s *Service) applyEffect(b *models.Booking, plan lifecycle.Plan, amount float64, opts TransitionOptions) (string, error) {
	key, err := models.ParseAccountKey(b.BudgetKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	detail := ""
	switch plan.Effect {
	case lifecycle.EffectCommit:
		detail = fmt.Sprintf("committed %.2f", amount)
	case lifecycle.EffectSpend:
		if opts.ActualCost != nil {
			amount = roundCents(*opts.ActualCost)
			detail = fmt.Sprintf("actual cost override, delta %.2f", amount-b.Cost)
		}
	case lifecycle.EffectRelease:
		detail = fmt.Sprintf("released %.2f", amount)
	}

	tx := models.LedgerTransaction{
		ID:         uuid.NewString(),
		AccountKey: key,
		Kind:       plan.Effect,
		Amount:     amount,
		BookingRef: b.ID,
		Detail:     detail,
		Timestamp:  s.clock.Now(),
	}
	snap, err := s.ledger.Apply(tx)
	if err != nil {
		return "", err
	}

	if unacked := unacknowledged(snap.Alerts); len(unacked) > 0 {
		s.publishAlert(snap, unacked)
	}
	s.enqueueLedger(key, tx)
	return detail, nil
}

// costOf computes rate times duration summed over resources, rounded to
// cents.
func (s *Service) costOf(b *models.Booking) (float64, error) {
	hours := b.DurationHours()
	total := 0.0
	for _, ref := range b.Resources {
		res, err := s.catalog.Get(ref.ResourceID)
		if err != nil {
			return 0, err
		}
		total += res.HourlyRate * hours
	}
	return roundCents(total), nil
}

// Sweep expires approved bookings whose slot passed without a check-in.
// It runs the normal transition path so each booking releases its
// budget exactly once.
func (s *Service) Sweep(ctx context.Context) int {
	now := s.clock.Now()
	s.mu.RLock()
	var candidates []string
	for id, b := range s.bookings {
		if (b.Status == models.StatusApproved || b.Status == models.StatusConfirmed) &&
			now.After(b.End) && b.CheckInAt == nil {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	expired := 0
	system := models.SystemActor()
	for _, id := range candidates {
		_, err := s.Transition(ctx, id, lifecycle.EventAutoExpire, system, TransitionOptions{Reason: "no-show sweep"})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, lifecycle.ErrInvalidTransition):
			// Lost the race to a check-in or cancel; nothing to do.
		default:
			if s.logger != nil {
				s.logger.Warn().Err(err).Str("booking_id", id).Msg("sweep transition failed")
			}
		}
	}

	metrics.IncSweepRun()
	if expired > 0 && s.logger != nil {
		s.logger.Info().Int("expired", expired).Msg("no-show sweep finished")
	}
	return expired
}

// GetBooking returns a copy; callers never see the arena pointer.
func (s *Service) GetBooking(id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, id)
	}
	return snapshotOf(b), nil
}

// ListBookings returns copies, optionally filtered by status.
func (s *Service) ListBookings(status string) []*models.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		if status != "" && b.Status != status {
			continue
		}
		out = append(out, snapshotOf(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListConflicts reports the live occupants of one resource window.
func (s *Service) ListConflicts(resourceID string, from, to time.Time) []schedule.Occupant {
	return s.index.Occupants(resourceID, from, to)
}

// BudgetSnapshot proxies the ledger view.
func (s *Service) BudgetSnapshot(key models.AccountKey) (models.AccountSnapshot, error) {
	return s.ledger.Snapshot(key)
}

// ApplyTransaction applies a ledger transaction outside any booking
// transition. Internal surface; the reservation flow goes through
// Transition instead.
func (s *Service) ApplyTransaction(tx models.LedgerTransaction) (models.AccountSnapshot, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	snap, err := s.ledger.Apply(tx)
	if err != nil {
		return snap, err
	}
	if unacked := unacknowledged(snap.Alerts); len(unacked) > 0 {
		s.publishAlert(snap, unacked)
	}
	s.enqueueLedger(tx.AccountKey, tx)
	return snap, nil
}

// AcknowledgeAlert marks a budget alert as seen by a human.
func (s *Service) AcknowledgeAlert(key models.AccountKey, alertType string, actor models.Actor) error {
	return s.ledger.Acknowledge(key, alertType, actor)
}

// Restore re-registers persisted bookings after a restart. Live
// bookings reclaim their slots; the store was written by this engine so
// overlaps mean corrupted data and are surfaced, not repaired.
func (s *Service) Restore(ctx context.Context, bookings []*models.Booking) error {
	for _, b := range bookings {
		if b.IsLive() {
			if err := s.index.Reserve(ctx, b.ResourceIDs(), b.Start, b.End, b.ID); err != nil {
				return fmt.Errorf("restore booking %s: %w", b.ID, err)
			}
		}
		s.mu.Lock()
		s.bookings[b.ID] = b
		s.mu.Unlock()
	}
	return nil
}

var transitionEvents = map[lifecycle.Event]string{
	lifecycle.EventApprove:    events.EventReservationApproved,
	lifecycle.EventReject:     events.EventReservationRejected,
	lifecycle.EventCancel:     events.EventReservationCancelled,
	lifecycle.EventCheckIn:    events.EventReservationCheckedIn,
	lifecycle.EventComplete:   events.EventReservationCompleted,
	lifecycle.EventAutoExpire: events.EventReservationNoShow,
}

func (s *Service) publishBooking(eventType string, b *models.Booking, changedBy string) {
	if s.events == nil {
		return
	}
	err := s.events.PublishJSON(eventType, events.ReservationEventPayload{
		BookingID:   b.ID,
		SeriesID:    b.SeriesID,
		Resources:   b.Resources,
		Start:       b.Start,
		End:         b.End,
		Status:      b.Status,
		RequestedBy: b.RequestedBy,
		Cost:        b.Cost,
		ChangedBy:   changedBy,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}

func (s *Service) publishAlert(snap models.AccountSnapshot, alerts []models.BudgetAlert) {
	if s.events == nil {
		return
	}
	err := s.events.PublishJSON(events.EventBudgetAlert, events.BudgetAlertPayload{
		AccountKey: snap.Key.String(),
		Status:     snap.Status,
		Alerts:     alerts,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn().Err(err).Msg("budget alert publish failed")
	}
}

// enqueueBooking принимает уже снятую копию; живой указатель из арены
// сюда не попадает.
func (s *Service) enqueueBooking(ctx context.Context, snap *models.Booking) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueBooking(ctx, snap); err != nil && s.logger != nil {
		s.logger.Warn().Err(err).Str("booking_id", snap.ID).Msg("persist enqueue failed")
	}
}

func (s *Service) enqueueLedger(key models.AccountKey, tx models.LedgerTransaction) {
	if s.queue == nil {
		return
	}
	ctx := context.Background()
	account, err := s.ledger.Account(key)
	if err == nil {
		if err := s.queue.EnqueueAccount(ctx, account); err != nil && s.logger != nil {
			s.logger.Warn().Err(err).Str("account", key.String()).Msg("persist enqueue failed")
		}
	}
	if err := s.queue.EnqueueTransaction(ctx, tx); err != nil && s.logger != nil {
		s.logger.Warn().Err(err).Str("account", key.String()).Msg("persist enqueue failed")
	}
}

func unacknowledged(alerts []models.BudgetAlert) []models.BudgetAlert {
	var out []models.BudgetAlert
	for _, a := range alerts {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	return out
}

// snapshotOf deep-copies the mutable slices so readers are isolated
// from later transitions.
func snapshotOf(b *models.Booking) *models.Booking {
	c := *b
	c.Resources = append([]models.ResourceRef(nil), b.Resources...)
	c.History = append([]models.HistoryEntry(nil), b.History...)
	if b.CheckInAt != nil {
		t := *b.CheckInAt
		c.CheckInAt = &t
	}
	if b.Recurrence != nil {
		r := *b.Recurrence
		c.Recurrence = &r
	}
	return &c
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
