package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSource reads the engine inputs straight from Postgres. Only enabled
// windows and non-cancelled appointments are returned, so the engine
// itself never filters on those flags.
type PgSource struct {
	pool *pgxpool.Pool
}

func NewPgSource(pool *pgxpool.Pool) *PgSource {
	return &PgSource{pool: pool}
}

func (s *PgSource) Windows(ctx context.Context, professionalID uuid.UUID, weekday int) ([]Window, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM weekly_windows
		WHERE professional_id = $1 AND weekday = $2 AND enabled
		ORDER BY start_time
	`, professionalID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Window
	for rows.Next() {
		var w Window
		if err := rows.Scan(&w.StartTime, &w.EndTime); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (s *PgSource) TimeOff(ctx context.Context, professionalID uuid.UUID, weekday int) ([]Blocked, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM time_off
		WHERE professional_id = $1 AND weekday = $2
		ORDER BY start_time
	`, professionalID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Blocked
	for rows.Next() {
		var b Blocked
		if err := rows.Scan(&b.StartTime, &b.EndTime); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *PgSource) Booked(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Booked, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, start_time, end_time
		FROM appointments
		WHERE professional_id = $1
		  AND appointment_date = $2
		  AND status <> 'cancelled'
	`, professionalID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booked
	for rows.Next() {
		var b Booked
		if err := rows.Scan(&b.AppointmentID, &b.StartTime, &b.EndTime); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}
