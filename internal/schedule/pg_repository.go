package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanWindow(row pgx.Row) (*WeeklyWindow, error) {
	var w WeeklyWindow

	err := row.Scan(
		&w.ID,
		&w.ProfessionalID,
		&w.Weekday,
		&w.StartTime,
		&w.EndTime,
		&w.Enabled,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	return &w, nil
}

func scanTimeOff(row pgx.Row) (*TimeOff, error) {
	var t TimeOff

	err := row.Scan(
		&t.ID,
		&t.ProfessionalID,
		&t.Weekday,
		&t.StartTime,
		&t.EndTime,
		&t.Kind,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTimeOffNotFound
		}
		return nil, err
	}

	return &t, nil
}

func (r *PgRepository) ListWindows(ctx context.Context, professionalID uuid.UUID) ([]WeeklyWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, weekday, start_time, end_time, enabled, created_at, updated_at
		FROM weekly_windows
		WHERE professional_id = $1
		ORDER BY weekday, start_time
	`, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WeeklyWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpsertWindow(ctx context.Context, w WeeklyWindow) (*WeeklyWindow, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO weekly_windows (id, professional_id, weekday, start_time, end_time, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET weekday = EXCLUDED.weekday,
		    start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    enabled = EXCLUDED.enabled,
		    updated_at = now()
		RETURNING id, professional_id, weekday, start_time, end_time, enabled, created_at, updated_at
	`, w.ID, w.ProfessionalID, w.Weekday, w.StartTime, w.EndTime, w.Enabled)

	return scanWindow(row)
}

func (r *PgRepository) DeleteWindow(ctx context.Context, professionalID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM weekly_windows
		WHERE id = $1 AND professional_id = $2
	`, id, professionalID)
	if err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

func (r *PgRepository) ListTimeOff(ctx context.Context, professionalID uuid.UUID) ([]TimeOff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, weekday, start_time, end_time, kind, created_at, updated_at
		FROM time_off
		WHERE professional_id = $1
		ORDER BY weekday, start_time
	`, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeOff
	for rows.Next() {
		t, err := scanTimeOff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpsertTimeOff(ctx context.Context, t TimeOff) (*TimeOff, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Kind == "" {
		t.Kind = KindUnavailability
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO time_off (id, professional_id, weekday, start_time, end_time, kind, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET weekday = EXCLUDED.weekday,
		    start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    kind = EXCLUDED.kind,
		    updated_at = now()
		RETURNING id, professional_id, weekday, start_time, end_time, kind, created_at, updated_at
	`, t.ID, t.ProfessionalID, t.Weekday, t.StartTime, t.EndTime, t.Kind)

	return scanTimeOff(row)
}

func (r *PgRepository) DeleteTimeOff(ctx context.Context, professionalID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM time_off
		WHERE id = $1 AND professional_id = $2
	`, id, professionalID)
	if err != nil {
		return fmt.Errorf("delete time off: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTimeOffNotFound
	}
	return nil
}
