// Load generator for the scheduling API. It discovers open slots
// through the public slots endpoint, then mixes bookings, confirms,
// cancellations and waitlist joins against them to exercise slot
// contention end to end.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gobering/scheduling-service/internal/api"
	"github.com/gobering/scheduling-service/internal/config"
	"github.com/gobering/scheduling-service/internal/db"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

type simConfig struct {
	BaseURL       string
	Duration      time.Duration
	Workers       int
	BookRatio     float64
	ConfirmRatio  float64
	CancelRatio   float64
	WaitlistRatio float64
	SlotDuration  int
	PostgresDSN   string
}

type openSlot struct {
	professionalID uuid.UUID
	date           string
	startTime      string
}

type bookedAppointment struct {
	id    uuid.UUID
	token string
}

// pool holds the IDs the workers draw from. Professionals and patients
// are loaded once; slots and appointments churn as the run progresses.
type pool struct {
	professionals []uuid.UUID
	patients      []uuid.UUID

	mu           sync.RWMutex
	slots        []openSlot
	appointments []bookedAppointment
}

func (p *pool) addSlots(slots []openSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots = append(p.slots, slots...)
	if len(p.slots) > 10000 {
		p.slots = p.slots[len(p.slots)-10000:]
	}
}

func (p *pool) randomSlot(rng *rand.Rand) (openSlot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.slots) == 0 {
		return openSlot{}, false
	}
	return p.slots[rng.Intn(len(p.slots))], true
}

func (p *pool) addAppointment(a bookedAppointment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appointments = append(p.appointments, a)
}

func (p *pool) randomAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.appointments) == 0 {
		return bookedAppointment{}, false
	}
	return p.appointments[rng.Intn(len(p.appointments))], true
}

type opMetrics struct {
	total     int64
	success   int64
	conflict  int64
	failed    int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *opMetrics) record(latency time.Duration, status int) {
	atomic.AddInt64(&m.total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&m.success, 1)
	case status == http.StatusConflict || status == http.StatusGone:
		atomic.AddInt64(&m.conflict, 1)
	default:
		atomic.AddInt64(&m.failed, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *opMetrics) percentiles() (p50, p95, max time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0, 0, 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := func(pct int) int {
		i := len(sorted) * pct / 100
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return i
	}
	return sorted[idx(50)], sorted[idx(95)], sorted[len(sorted)-1]
}

type simulator struct {
	cfg    simConfig
	pool   *pool
	client *http.Client

	listSlots opMetrics
	book      opMetrics
	confirm   opMetrics
	cancel    opMetrics
	waitlist  opMetrics
}

func main() {
	cfg := loadSimConfig()
	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Str("base_url", cfg.BaseURL).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	p, err := loadPool(context.Background(), pgPool)
	if err != nil {
		log.Fatal().Err(err).Msg("load id pool")
	}
	log.Info().
		Int("professionals", len(p.professionals)).
		Int("patients", len(p.patients)).
		Msg("id pool loaded")

	sim := &simulator{
		cfg:    cfg,
		pool:   p,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.run()
	sim.report()
}

func loadSimConfig() simConfig {
	base, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	cfg := simConfig{
		BaseURL:       envStr("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      envDuration("SIM_DURATION", 30*time.Second),
		Workers:       envInt("SIM_WORKERS", 10),
		BookRatio:     envFloat("SIM_BOOK_RATIO", 0.4),
		ConfirmRatio:  envFloat("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:   envFloat("SIM_CANCEL_RATIO", 0.15),
		WaitlistRatio: envFloat("SIM_WAITLIST_RATIO", 0.1),
		SlotDuration:  envInt("SIM_SLOT_DURATION", 30),
		PostgresDSN:   base.PostgresDSN,
	}
	if cfg.Workers <= 0 || cfg.Duration <= 0 {
		log.Fatal().Msg("SIM_WORKERS and SIM_DURATION must be positive")
	}
	return cfg
}

func loadPool(ctx context.Context, pg *pgxpool.Pool) (*pool, error) {
	p := &pool{}

	rows, err := pg.Query(ctx, `SELECT id FROM professionals LIMIT 500`)
	if err != nil {
		return nil, fmt.Errorf("load professionals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		p.professionals = append(p.professionals, id)
	}

	rows, err = pg.Query(ctx, `SELECT id FROM patients LIMIT 5000`)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		p.patients = append(p.patients, id)
	}

	if len(p.professionals) == 0 || len(p.patients) == 0 {
		return nil, fmt.Errorf("empty tables, run the seed command first")
	}
	return p, nil
}

func (s *simulator) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
}

func (s *simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	// Prime the slot pool before mixing operations.
	s.doListSlots(ctx, rng)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.cfg.BookRatio:
			s.doBook(ctx, rng)
		case r < s.cfg.BookRatio+s.cfg.ConfirmRatio:
			s.doConfirm(ctx, rng)
		case r < s.cfg.BookRatio+s.cfg.ConfirmRatio+s.cfg.CancelRatio:
			s.doCancel(ctx, rng)
		case r < s.cfg.BookRatio+s.cfg.ConfirmRatio+s.cfg.CancelRatio+s.cfg.WaitlistRatio:
			s.doJoinWaitlist(ctx, rng)
		default:
			s.doListSlots(ctx, rng)
		}
	}
}

func (s *simulator) doListSlots(ctx context.Context, rng *rand.Rand) {
	profID := s.pool.professionals[rng.Intn(len(s.pool.professionals))]
	from := time.Now().AddDate(0, 0, 7)
	to := from.AddDate(0, 0, 6)

	url := fmt.Sprintf("%s/professionals/%s/slots?from=%s&to=%s&duration=%d",
		s.cfg.BaseURL, profID, from.Format("2006-01-02"), to.Format("2006-01-02"), s.cfg.SlotDuration)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.listSlots.record(latency, 0)
		return
	}
	defer resp.Body.Close()
	s.listSlots.record(latency, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return
	}
	var slots []api.SlotResponse
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		return
	}
	open := make([]openSlot, 0, len(slots))
	for _, sl := range slots {
		if sl.Available {
			open = append(open, openSlot{professionalID: profID, date: sl.Date, startTime: sl.StartTime})
		}
	}
	s.pool.addSlots(open)
}

func (s *simulator) doBook(ctx context.Context, rng *rand.Rand) {
	slot, ok := s.pool.randomSlot(rng)
	if !ok {
		s.doListSlots(ctx, rng)
		return
	}
	patientID := s.pool.patients[rng.Intn(len(s.pool.patients))]

	body, _ := json.Marshal(api.BookAppointmentRequest{
		ProfessionalID: slot.professionalID.String(),
		PatientID:      patientID.String(),
		Date:           slot.date,
		StartTime:      slot.startTime,
		Duration:       s.cfg.SlotDuration,
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.book.record(latency, 0)
		return
	}
	defer resp.Body.Close()
	s.book.record(latency, resp.StatusCode)

	if resp.StatusCode == http.StatusCreated {
		var created api.AppointmentResponse
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil && created.ID != uuid.Nil {
			s.pool.addAppointment(bookedAppointment{id: created.ID, token: created.CancellationToken})
		}
	}
}

func (s *simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.randomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/confirm", s.cfg.BaseURL, appt.id), nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.confirm.record(latency, 0)
		return
	}
	resp.Body.Close()
	s.confirm.record(latency, resp.StatusCode)
}

func (s *simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.randomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/cancel/%s", s.cfg.BaseURL, appt.token), nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.cancel.record(latency, 0)
		return
	}
	resp.Body.Close()
	s.cancel.record(latency, resp.StatusCode)
}

func (s *simulator) doJoinWaitlist(ctx context.Context, rng *rand.Rand) {
	profID := s.pool.professionals[rng.Intn(len(s.pool.professionals))]
	patientID := s.pool.patients[rng.Intn(len(s.pool.patients))]
	date := time.Now().AddDate(0, 0, 7+rng.Intn(7))

	body, _ := json.Marshal(api.JoinWaitlistRequest{
		ProfessionalID: profID.String(),
		PatientID:      patientID.String(),
		PreferredDate:  date.Format("2006-01-02"),
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/waitlist", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.waitlist.record(latency, 0)
		return
	}
	resp.Body.Close()
	s.waitlist.record(latency, resp.StatusCode)
}

func (s *simulator) report() {
	fmt.Println()
	fmt.Println("simulation report")
	fmt.Printf("duration=%s workers=%d\n\n", s.cfg.Duration, s.cfg.Workers)

	printOp("list slots", &s.listSlots)
	printOp("book", &s.book)
	printOp("confirm", &s.confirm)
	printOp("cancel", &s.cancel)
	printOp("join waitlist", &s.waitlist)
}

func printOp(name string, m *opMetrics) {
	total := atomic.LoadInt64(&m.total)
	if total == 0 {
		return
	}
	p50, p95, max := m.percentiles()
	fmt.Printf("%-14s total=%-7d ok=%-7d conflict=%-6d failed=%-5d p50=%s p95=%s max=%s\n",
		name, total,
		atomic.LoadInt64(&m.success),
		atomic.LoadInt64(&m.conflict),
		atomic.LoadInt64(&m.failed),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
