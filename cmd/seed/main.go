package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gobering/scheduling-service/internal/db"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Str("service", "seed").Logger()

func main() {
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	professionals, err := seedProfessionals(context.Background(), pool, 50)
	if err != nil {
		log.Fatal().Err(err).Msg("seed professionals")
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedSchedules(context.Background(), pool, professionals); err != nil {
		log.Fatal().Err(err).Msg("seed schedules")
	}

	log.Info().Msg("seed complete")
}

func seedProfessionals(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding professionals")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Physiotherapy",
		"Psychology",
		"Nutrition",
		"Pediatrics",
		"Dentistry",
		"Osteopathy",
		"Optometry",
	}
	durations := []int{15, 20, 30, 45, 60}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		duration := durations[gofakeit.Number(0, len(durations)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, name, specialty, default_duration, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, spec, duration)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		email := gofakeit.Email()
		phone := gofakeit.Phone()

		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, email, phone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, uuid.New(), gofakeit.Name(), email, phone)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// seedSchedules gives every professional Monday-Friday open hours with
// a lunch break, plus a random weekday afternoon off.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, professionals []uuid.UUID) error {
	log.Info().Int("count", len(professionals)).Msg("seeding weekly schedules")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, profID := range professionals {
		for weekday := 1; weekday <= 5; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO weekly_windows (id, professional_id, weekday, start_time, end_time, enabled, created_at, updated_at)
				VALUES ($1, $2, $3, '09:00', '17:00', TRUE, now(), now())
			`, uuid.New(), profID, weekday)
			if err != nil {
				return err
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO time_off (id, professional_id, weekday, start_time, end_time, kind, created_at, updated_at)
				VALUES ($1, $2, $3, '12:00', '13:00', 'break', now(), now())
			`, uuid.New(), profID, weekday)
			if err != nil {
				return err
			}
		}

		offDay := gofakeit.Number(1, 5)
		_, err := tx.Exec(ctx, `
			INSERT INTO time_off (id, professional_id, weekday, start_time, end_time, kind, created_at, updated_at)
			VALUES ($1, $2, $3, '14:00', '17:00', 'unavailability', now(), now())
		`, uuid.New(), profID, offDay)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
