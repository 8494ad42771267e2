package events

import (
	"encoding/json"
	"sync"
	"time"

	"labovik/internal/models"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationApproved  = "reservation_approved"
	EventReservationRejected  = "reservation_rejected"
	EventReservationCancelled = "reservation_cancelled"
	EventReservationCheckedIn = "reservation_checked_in"
	EventReservationCompleted = "reservation_completed"
	EventReservationNoShow    = "reservation_no_show"
	EventBudgetAlert          = "budget_alert"
)

// ReservationEventPayload describes the minimal booking snapshot for
// event consumers.
type ReservationEventPayload struct {
	BookingID   string               `json:"booking_id"`
	SeriesID    string               `json:"series_id,omitempty"`
	Resources   []models.ResourceRef `json:"resources"`
	Start       time.Time            `json:"start"`
	End         time.Time            `json:"end"`
	Status      string               `json:"status"`
	RequestedBy string               `json:"requested_by"`
	Cost        float64              `json:"cost,omitempty"`
	ChangedBy   string               `json:"changed_by,omitempty"`
}

// BudgetAlertPayload is published whenever a ledger transaction leaves an
// account with unacknowledged alerts.
type BudgetAlertPayload struct {
	AccountKey string               `json:"account_key"`
	Status     string               `json:"status"`
	Alerts     []models.BudgetAlert `json:"alerts"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
