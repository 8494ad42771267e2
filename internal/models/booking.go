package models

import "time"

// ResourceRef identifies one bookable resource held by a booking.
type ResourceRef struct {
	ResourceID string `json:"resource_id"`
	Kind       string `json:"kind"`
}

// Recurrence turns a booking into a series template. Concrete bookings
// produced from it carry SeriesID and no Recurrence of their own.
type Recurrence struct {
	Pattern     string      `json:"pattern"`
	EndDate     time.Time   `json:"end_date,omitzero"`
	Occurrences int         `json:"occurrences,omitempty"`
	Exceptions  []time.Time `json:"exceptions,omitempty"`
}

// HistoryEntry записывается при каждом переходе и никогда не изменяется.
type HistoryEntry struct {
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

type Booking struct {
	ID          string        `json:"id"`
	SeriesID    string        `json:"series_id,omitempty"`
	Resources   []ResourceRef `json:"resources"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	RequestedBy string        `json:"requested_by"`
	Status      string        `json:"status"`
	Purpose     string        `json:"purpose,omitempty"`
	Attendees   int           `json:"attendees,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	Recurrence  *Recurrence   `json:"recurrence,omitempty"`

	// Cost фиксируется при одобрении и дальше не пересчитывается.
	Cost float64 `json:"cost"`

	CancelCutoffHours int    `json:"cancel_cutoff_hours"`
	BudgetKey         string `json:"budget_key,omitempty"`

	CheckInAt *time.Time     `json:"check_in_at,omitempty"`
	History   []HistoryEntry `json:"history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// IsLive reports whether the booking currently occupies its resources.
func (b *Booking) IsLive() bool {
	return LiveStatuses[b.Status]
}

// IsTerminal reports whether no further transition is possible.
func (b *Booking) IsTerminal() bool {
	return TerminalStatuses[b.Status]
}

// ResourceIDs returns the ids of all held resources.
func (b *Booking) ResourceIDs() []string {
	ids := make([]string, 0, len(b.Resources))
	for _, r := range b.Resources {
		ids = append(ids, r.ResourceID)
	}
	return ids
}

// DurationHours возвращает длительность брони в часах.
func (b *Booking) DurationHours() float64 {
	return b.End.Sub(b.Start).Hours()
}

// AppendHistory adds a write-once history entry.
func (b *Booking) AppendHistory(action, actor string, at time.Time, detail string) {
	b.History = append(b.History, HistoryEntry{
		Action:    action,
		Actor:     actor,
		Timestamp: at,
		Detail:    detail,
	})
}
