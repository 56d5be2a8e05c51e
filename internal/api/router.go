package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gobering/scheduling-service/internal/appointment"
	"github.com/gobering/scheduling-service/internal/availability"
	"github.com/gobering/scheduling-service/internal/schedule"
	"github.com/gobering/scheduling-service/internal/waitlist"
)

type RouterConfig struct {
	Appointments  *appointment.Service
	Waitlist      *waitlist.Service
	Availability  *availability.Engine
	ScheduleRepo  schedule.Repository
	ScheduleCache schedule.CacheInvalidator
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Logger        zerolog.Logger
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Slot and schedule endpoints
	sched := NewScheduleHandler(cfg.ScheduleRepo, cfg.ScheduleCache)
	r.Route("/professionals/{id}", func(r chi.Router) {
		r.Get("/slots", listSlotsHandler(cfg.Availability))
		r.Get("/schedule", sched.ListWindows)
		r.Put("/schedule", sched.UpsertWindow)
		r.Delete("/schedule/{windowID}", sched.DeleteWindow)
		r.Get("/time-off", sched.ListTimeOff)
		r.Put("/time-off", sched.UpsertTimeOff)
		r.Delete("/time-off/{timeOffID}", sched.DeleteTimeOff)
	})

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/confirm", confirmAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/complete", completeAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Appointments))
		r.Post("/cancel/{token}", cancelByTokenHandler(cfg.Appointments))
	})

	// Waitlist endpoints
	r.Route("/waitlist", func(r chi.Router) {
		r.Post("/", joinWaitlistHandler(cfg.Waitlist))
		r.Post("/redeem/{token}", redeemWaitlistHandler(cfg.Waitlist))
		r.Post("/cancel/{token}", cancelWaitlistHandler(cfg.Waitlist))
	})

	return r
}
