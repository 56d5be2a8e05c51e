package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gobering/scheduling-service/internal/appointment"
	"github.com/gobering/scheduling-service/internal/availability"
	"github.com/gobering/scheduling-service/internal/config"
	"github.com/gobering/scheduling-service/internal/db"
	redisclient "github.com/gobering/scheduling-service/internal/redis"
	"github.com/gobering/scheduling-service/internal/waitlist"
)

// The waitlist expires lazily on read as well; this worker only bounds
// how long a lapsed entry can sit before its slot cascades to the next
// person in line.
func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config load error")
	}

	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "waitlist-worker").Logger()
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("waitlist-worker starting up")

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
	log.Info().Msg("connected to Postgres")

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

	slotCache := availability.NewRedisSlotCache(rdb, cfg.SlotCacheTTL, log)
	engine := availability.NewEngine(availability.NewPgSource(pgPool), slotCache, log)

	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	apptSvc := appointment.NewService(appointment.NewPgRepository(pgPool), locker, slotCache, cfg, log)

	notifier := waitlist.NewLogNotifier(log)
	svc := waitlist.NewService(waitlist.NewPgRepository(pgPool), apptSvc, engine, notifier, cfg, log)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping waitlist worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *waitlist.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.ExpireLapsed(runCtx); err != nil {
		log.Warn().Err(err).Msg("expiry run error")
		return
	}
	log.Info().Dur("took", time.Since(start)).Msg("expiry run complete")
}
