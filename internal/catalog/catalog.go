package catalog

import (
	"errors"
	"fmt"
	"time"

	"labovik/internal/models"
)

var ErrResourceNotFound = errors.New("resource not found")

// Catalog это read-only справочник ресурсов, заполняется из конфигурации
// при старте процесса и дальше не меняется.
type Catalog struct {
	byID map[string]models.Resource
}

func New(resources []models.Resource) *Catalog {
	byID := make(map[string]models.Resource, len(resources))
	for _, r := range resources {
		byID[r.ID] = r
	}
	return &Catalog{byID: byID}
}

func (c *Catalog) Get(resourceID string) (*models.Resource, error) {
	r, ok := c.byID[resourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, resourceID)
	}
	return &r, nil
}

// All returns every resource, in no particular order.
func (c *Catalog) All() []models.Resource {
	out := make([]models.Resource, 0, len(c.byID))
	for _, r := range c.byID {
		out = append(out, r)
	}
	return out
}

// WithinOperatingHours reports whether [start, end) lies inside one of
// the resource's open windows. A resource with no configured hours is
// treated as always open. Intervals crossing midnight are out of hours.
func (c *Catalog) WithinOperatingHours(resourceID string, start, end time.Time) (bool, error) {
	r, err := c.Get(resourceID)
	if err != nil {
		return false, err
	}
	if len(r.Hours) == 0 {
		return true, nil
	}

	if start.Year() != end.Year() || start.YearDay() != end.YearDay() {
		// Окна задаются в пределах одного дня.
		if !end.Equal(startOfDay(end)) || !end.After(start) {
			return false, nil
		}
		// [..., 00:00) следующего дня укладывается в день начала.
		end = startOfDay(start).Add(24 * time.Hour)
	}

	startMin := minuteOfDay(start)
	endMin := minuteOfDay(end)
	if endMin == 0 {
		endMin = 24 * 60
	}

	weekday := int(start.Weekday())
	for _, w := range r.Hours {
		if w.Weekday != weekday {
			continue
		}
		openMin, err := parseClock(w.Open)
		if err != nil {
			return false, err
		}
		closeMin, err := parseClock(w.Close)
		if err != nil {
			return false, err
		}
		if startMin >= openMin && endMin <= closeMin {
			return true, nil
		}
	}
	return false, nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
