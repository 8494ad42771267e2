package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"labovik/internal/models"
)

// UpsertBooking writes the whole booking row. Resource refs and history
// are stored as JSON; the engine never queries inside them.
func (d *DB) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	resources, err := json.Marshal(booking.Resources)
	if err != nil {
		return fmt.Errorf("failed to marshal resources: %v", err)
	}
	history, err := json.Marshal(booking.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %v", err)
	}

	query := `INSERT INTO bookings (
				id, series_id, resources, start_at, end_at, requested_by, status,
				purpose, attendees, notes, cost, cancel_cutoff_hours, budget_key,
				check_in_at, history, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				start_at = excluded.start_at,
				end_at = excluded.end_at,
				status = excluded.status,
				cost = excluded.cost,
				check_in_at = excluded.check_in_at,
				history = excluded.history,
				updated_at = excluded.updated_at,
				version = excluded.version`

	var checkIn interface{}
	if booking.CheckInAt != nil {
		checkIn = booking.CheckInAt.UTC()
	}

	_, err = d.db.ExecContext(ctx, query,
		booking.ID,
		booking.SeriesID,
		string(resources),
		booking.Start.UTC(),
		booking.End.UTC(),
		booking.RequestedBy,
		booking.Status,
		booking.Purpose,
		booking.Attendees,
		booking.Notes,
		booking.Cost,
		booking.CancelCutoffHours,
		booking.BudgetKey,
		checkIn,
		string(history),
		booking.CreatedAt.UTC(),
		booking.UpdatedAt.UTC(),
		booking.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert booking: %w", err)
	}
	return nil
}

func (d *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT id, series_id, resources, start_at, end_at, requested_by, status,
				purpose, attendees, notes, cost, cancel_cutoff_hours, budget_key,
				check_in_at, history, created_at, updated_at, version
			FROM bookings WHERE id = ?`

	b, err := scanBooking(d.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("booking not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (d *DB) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	query := `SELECT id, series_id, resources, start_at, end_at, requested_by, status,
				purpose, attendees, notes, cost, cancel_cutoff_hours, budget_key,
				check_in_at, history, created_at, updated_at, version
			FROM bookings ORDER BY start_at`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var resources, history string
	var checkIn sql.NullTime

	err := row.Scan(
		&b.ID, &b.SeriesID, &resources, &b.Start, &b.End, &b.RequestedBy, &b.Status,
		&b.Purpose, &b.Attendees, &b.Notes, &b.Cost, &b.CancelCutoffHours, &b.BudgetKey,
		&checkIn, &history, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(resources), &b.Resources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resources: %v", err)
	}
	if history != "" && history != "null" {
		if err := json.Unmarshal([]byte(history), &b.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %v", err)
		}
	}
	if checkIn.Valid {
		t := checkIn.Time.UTC()
		b.CheckInAt = &t
	}
	b.Start = b.Start.UTC()
	b.End = b.End.UTC()
	return &b, nil
}
