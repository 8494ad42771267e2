// Package recurrence expands a recurring-booking template into concrete
// dated occurrences.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"labovik/internal/models"
)

var (
	ErrUnknownPattern = errors.New("unknown recurrence pattern")
	ErrUnbounded      = errors.New("recurrence needs an end date or an occurrence count")
)

// Occurrence is one concrete interval produced from a template.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// hard ceiling so a far-away end date cannot expand into thousands of
// candidate bookings in one request
const maxOccurrences = 366

// Expand produces the finite, ordered occurrence list for a template
// whose first interval is [start, end). Exception dates consume their
// calendar position but are removed from the output: a weekly series of
// 3 with the 2nd date excepted yields 2 intervals.
func Expand(rec models.Recurrence, start, end time.Time) ([]Occurrence, error) {
	step, err := stepper(rec.Pattern)
	if err != nil {
		return nil, err
	}
	if rec.EndDate.IsZero() && rec.Occurrences <= 0 {
		return nil, ErrUnbounded
	}

	duration := end.Sub(start)
	exceptions := make(map[string]bool, len(rec.Exceptions))
	for _, d := range rec.Exceptions {
		exceptions[dateKey(d)] = true
	}

	// EndDate включительно: серия "until 15-го" захватывает занятие,
	// начинающееся 15-го.
	var until time.Time
	if !rec.EndDate.IsZero() {
		y, m, d := rec.EndDate.Date()
		until = time.Date(y, m, d, 0, 0, 0, 0, rec.EndDate.Location()).AddDate(0, 0, 1)
	}

	var out []Occurrence
	cur := start
	for n := 0; ; n++ {
		if rec.Occurrences > 0 && n >= rec.Occurrences {
			break
		}
		if !until.IsZero() && !cur.Before(until) {
			break
		}
		if n >= maxOccurrences {
			return nil, fmt.Errorf("recurrence expands past %d occurrences", maxOccurrences)
		}

		if !exceptions[dateKey(cur)] {
			out = append(out, Occurrence{Start: cur, End: cur.Add(duration)})
		}
		cur = step(start, n+1)
	}
	return out, nil
}

// stepper returns a function producing the n-th occurrence start from
// the first one. Monthly steps clamp to the end of shorter months so a
// Jan 31 series lands on Feb 28, not Mar 3.
func stepper(pattern string) (func(first time.Time, n int) time.Time, error) {
	switch pattern {
	case models.PatternDaily:
		return func(first time.Time, n int) time.Time { return first.AddDate(0, 0, n) }, nil
	case models.PatternWeekly:
		return func(first time.Time, n int) time.Time { return first.AddDate(0, 0, 7*n) }, nil
	case models.PatternBiweekly:
		return func(first time.Time, n int) time.Time { return first.AddDate(0, 0, 14*n) }, nil
	case models.PatternMonthly:
		return addMonthsClamped, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPattern, pattern)
	}
}

func addMonthsClamped(first time.Time, n int) time.Time {
	year, month, day := first.Date()
	target := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, first.Location())
	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day,
		first.Hour(), first.Minute(), first.Second(), first.Nanosecond(), first.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
