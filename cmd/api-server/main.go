package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gobering/scheduling-service/internal/api"
	"github.com/gobering/scheduling-service/internal/appointment"
	"github.com/gobering/scheduling-service/internal/availability"
	"github.com/gobering/scheduling-service/internal/config"
	"github.com/gobering/scheduling-service/internal/db"
	redisclient "github.com/gobering/scheduling-service/internal/redis"
	"github.com/gobering/scheduling-service/internal/schedule"
	"github.com/gobering/scheduling-service/internal/waitlist"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env, "api-server")
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	migCtx, cancelMig := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migCtx, pgPool)
	cancelMig()
	if err != nil {
		log.Fatal().Err(err).Msg("schema migration error")
	}
	log.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	// Wire the core
	slotCache := availability.NewRedisSlotCache(rdb, cfg.SlotCacheTTL, log)
	engine := availability.NewEngine(availability.NewPgSource(pgPool), slotCache, log)

	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	apptSvc := appointment.NewService(appointment.NewPgRepository(pgPool), locker, slotCache, cfg, log)

	notifier := waitlist.NewLogNotifier(log)
	waitlistSvc := waitlist.NewService(waitlist.NewPgRepository(pgPool), apptSvc, engine, notifier, cfg, log)

	// The waitlist books through the appointment service and the
	// appointment service dispatches freed slots to the waitlist, so one
	// side binds late.
	apptSvc.SetDispatcher(waitlistSvc)

	router := api.NewRouter(api.RouterConfig{
		Appointments:  apptSvc,
		Waitlist:      waitlistSvc,
		Availability:  engine,
		ScheduleRepo:  schedule.NewPgRepository(pgPool),
		ScheduleCache: slotCache,
		PgPool:        pgPool,
		Redis:         rdb,
		Logger:        log,
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
	}
}

func newLogger(env, service string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("service", service).Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", service).Logger()
}
