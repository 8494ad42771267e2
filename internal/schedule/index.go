// Package schedule owns the per-resource interval index used for
// conflict detection. The index is the concurrency authority: a booking
// occupies its resources here from the moment it is admitted until a
// terminal transition removes it, and durable persistence only trails
// what the index has already committed.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrBusy is returned when a resource lock cannot be acquired within the
// configured wait. Transient; safe to retry with backoff.
var ErrBusy = errors.New("resource busy, try again")

// Conflict names one live booking overlapping the candidate interval.
type Conflict struct {
	ResourceID string `json:"resource_id"`
	BookingID  string `json:"booking_id"`
}

// ConflictError carries every overlap found across the candidate's
// resources. The reservation was not applied anywhere.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		ids = append(ids, c.ResourceID+":"+c.BookingID)
	}
	return fmt.Sprintf("interval conflicts with %d booking(s): %s", len(e.Conflicts), strings.Join(ids, ", "))
}

// Occupant is one committed interval, for display queries.
type Occupant struct {
	ResourceID string    `json:"resource_id"`
	BookingID  string    `json:"booking_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

type entry struct {
	start     time.Time
	end       time.Time
	bookingID string
}

// calendar хранит непересекающиеся интервалы одного ресурса,
// отсортированные по началу (а значит и по концу).
type calendar struct {
	sem     chan struct{}
	mu      sync.RWMutex
	entries []entry
}

func newCalendar() *calendar {
	return &calendar{sem: make(chan struct{}, 1)}
}

func (c *calendar) lock(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrBusy
	}
}

func (c *calendar) unlock() {
	<-c.sem
}

// overlapRange returns the slice bounds of entries overlapping [s, e).
// Half-open semantics: touching endpoints do not overlap.
func (c *calendar) overlapRange(s, e time.Time) (int, int) {
	lo := sort.Search(len(c.entries), func(i int) bool { return c.entries[i].end.After(s) })
	hi := sort.Search(len(c.entries), func(i int) bool { return !c.entries[i].start.Before(e) })
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

func (c *calendar) insert(en entry) {
	pos := sort.Search(len(c.entries), func(i int) bool { return c.entries[i].start.After(en.start) })
	c.entries = append(c.entries, entry{})
	copy(c.entries[pos+1:], c.entries[pos:])
	c.entries[pos] = en
}

func (c *calendar) removeBooking(bookingID string) {
	kept := c.entries[:0]
	for _, en := range c.entries {
		if en.bookingID != bookingID {
			kept = append(kept, en)
		}
	}
	c.entries = kept
}

// Index is the shared store of per-resource calendars. One instance per
// process, passed by reference to the reservation service.
type Index struct {
	mu        sync.Mutex
	calendars map[string]*calendar
	lockWait  time.Duration
}

func New(lockWait time.Duration) *Index {
	if lockWait <= 0 {
		lockWait = 500 * time.Millisecond
	}
	return &Index{
		calendars: make(map[string]*calendar),
		lockWait:  lockWait,
	}
}

func (ix *Index) calendar(resourceID string) *calendar {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, ok := ix.calendars[resourceID]
	if !ok {
		c = newCalendar()
		ix.calendars[resourceID] = c
	}
	return c
}

// Hold is an exclusive grip on a set of resource calendars. Locks are
// taken in sorted id order so two multi-resource bookings can never
// deadlock each other.
type Hold struct {
	ids  []string
	cals []*calendar
}

// Acquire locks every named resource. On failure nothing stays locked.
func (ix *Index) Acquire(ctx context.Context, resourceIDs []string) (*Hold, error) {
	ids := dedupeSorted(resourceIDs)
	if len(ids) == 0 {
		return nil, errors.New("no resources to lock")
	}

	h := &Hold{ids: ids, cals: make([]*calendar, 0, len(ids))}
	for _, id := range ids {
		c := ix.calendar(id)
		if err := c.lock(ctx, ix.lockWait); err != nil {
			h.Release()
			return nil, err
		}
		h.cals = append(h.cals, c)
	}
	return h, nil
}

// Release unlocks all held calendars. Safe to call once.
func (h *Hold) Release() {
	for _, c := range h.cals {
		c.unlock()
	}
	h.cals = nil
}

// Conflicts reports every live booking overlapping [start, end) across
// the held resources, ignoring entries owned by ignoreBookingID.
func (h *Hold) Conflicts(start, end time.Time, ignoreBookingID string) []Conflict {
	var out []Conflict
	for i, c := range h.cals {
		c.mu.RLock()
		lo, hi := c.overlapRange(start, end)
		for _, en := range c.entries[lo:hi] {
			if en.bookingID == ignoreBookingID {
				continue
			}
			out = append(out, Conflict{ResourceID: h.ids[i], BookingID: en.bookingID})
		}
		c.mu.RUnlock()
	}
	return out
}

// Place inserts the interval on every held resource. The caller must
// have verified there are no conflicts; the invariant that entries stay
// disjoint depends on it.
func (h *Hold) Place(start, end time.Time, bookingID string) {
	for _, c := range h.cals {
		c.mu.Lock()
		c.insert(entry{start: start, end: end, bookingID: bookingID})
		c.mu.Unlock()
	}
}

// Remove drops every entry of the booking from the held resources.
func (h *Hold) Remove(bookingID string) {
	for _, c := range h.cals {
		c.mu.Lock()
		c.removeBooking(bookingID)
		c.mu.Unlock()
	}
}

// Reserve admits the interval on all resources or none of them.
func (ix *Index) Reserve(ctx context.Context, resourceIDs []string, start, end time.Time, bookingID string) error {
	if !start.Before(end) {
		return fmt.Errorf("invalid interval: start %s is not before end %s", start, end)
	}

	hold, err := ix.Acquire(ctx, resourceIDs)
	if err != nil {
		return err
	}
	defer hold.Release()

	if conflicts := hold.Conflicts(start, end, ""); len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}
	hold.Place(start, end, bookingID)
	return nil
}

// Release drops the booking from the named resources, blocking until
// each lock is available. Used by terminal transitions, which must not
// fail once the ledger has committed.
func (ix *Index) Release(resourceIDs []string, bookingID string) {
	for _, id := range dedupeSorted(resourceIDs) {
		c := ix.calendar(id)
		c.sem <- struct{}{}
		c.mu.Lock()
		c.removeBooking(bookingID)
		c.mu.Unlock()
		c.unlock()
	}
}

// Occupants lists committed intervals overlapping [from, to) on one
// resource, ordered by start. Read-only; does not take the write lock.
func (ix *Index) Occupants(resourceID string, from, to time.Time) []Occupant {
	c := ix.calendar(resourceID)
	c.mu.RLock()
	defer c.mu.RUnlock()

	lo, hi := c.overlapRange(from, to)
	out := make([]Occupant, 0, hi-lo)
	for _, en := range c.entries[lo:hi] {
		out = append(out, Occupant{
			ResourceID: resourceID,
			BookingID:  en.bookingID,
			Start:      en.start,
			End:        en.end,
		})
	}
	return out
}

func dedupeSorted(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
