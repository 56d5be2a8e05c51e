package waitlist

import (
	"context"
	"errors"
	"time"

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

const entryColumns = `id, professional_id, patient_id, service_id, preferred_date, preferred_start, preferred_end, status, token, notified_at, expires_at, offered_date, offered_start, offered_end, created_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry

	err := row.Scan(
		&e.ID,
		&e.ProfessionalID,
		&e.PatientID,
		&e.ServiceID,
		&e.PreferredDate,
		&e.PreferredStart,
		&e.PreferredEnd,
		&e.Status,
		&e.Token,
		&e.NotifiedAt,
		&e.ExpiresAt,
		&e.OfferedDate,
		&e.OfferedStart,
		&e.OfferedEnd,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	return &e, nil
}

func (r *PgRepository) CreateEntry(ctx context.Context, e Entry) (*Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO waitlist_entries (id, professional_id, patient_id, service_id, preferred_date, preferred_start, preferred_end, status, token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+entryColumns+`
	`, e.ID, e.ProfessionalID, e.PatientID, e.ServiceID, e.PreferredDate, e.PreferredStart, e.PreferredEnd, e.Status, e.Token)

	return scanEntry(row)
}

func (r *PgRepository) GetEntryByToken(ctx context.Context, token string) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE token = $1
	`, token)
	return scanEntry(row)
}

func (r *PgRepository) OldestEligiblePending(ctx context.Context, professionalID uuid.UUID, serviceID *uuid.UUID, date time.Time, startTime, endTime string) (*Entry, error) {
	// NULL preferred times mean any time that day; '24:00' sorts after
	// every real "HH:MM" value. An entry with a service only matches a
	// freed slot carrying the same service.
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE professional_id = $1
		  AND status = 'pending'
		  AND preferred_date = $2
		  AND (service_id IS NULL OR service_id = $3)
		  AND COALESCE(preferred_start, '00:00') < $5
		  AND COALESCE(preferred_end, '24:00') > $4
		ORDER BY created_at, id
		LIMIT 1
	`, professionalID, date, serviceID, startTime, endTime)

	return scanEntry(row)
}

func (r *PgRepository) MarkNotified(ctx context.Context, id uuid.UUID, notifiedAt, expiresAt time.Time, date time.Time, startTime, endTime string) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = 'notified',
		    notified_at = $2,
		    expires_at = $3,
		    offered_date = $4,
		    offered_start = $5,
		    offered_end = $6,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+entryColumns+`
	`, id, notifiedAt, expiresAt, date, startTime, endTime)

	return scanEntry(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+entryColumns+`
	`, id, to, from)

	return scanEntry(row)
}

func (r *PgRepository) FindLapsedNotified(ctx context.Context, now time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE status = 'notified'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
		ORDER BY expires_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
