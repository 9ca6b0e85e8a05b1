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
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	ReadRatio    float64
	PatientLimit int
	SlotLimit    int
}

type slotRef struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
}

// DataPool holds the ids workers pick from and the tokens they act with.
type DataPool struct {
	Patients   []uuid.UUID
	Slots      []slotRef
	tokens     map[uuid.UUID]string
	adminToken string

	mu           sync.RWMutex
	appointments []uuid.UUID
	booked       map[uuid.UUID]int // successful bookings per slot
}

func (dp *DataPool) RecordBooking(slotID, apptID uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, apptID)
	dp.booked[slotID]++
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

// DoubleBookings counts slots that were handed out more than once.
func (dp *DataPool) DoubleBookings() int {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	n := 0
	for _, c := range dp.booked {
		if c > 1 {
			n++
		}
	}
	return n
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min95(len(latencies))]
	return avg, min, max, p50, p95
}

func min95(n int) int {
	idx := n * 95 / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking      OperationMetrics
	Confirm      OperationMetrics
	ReadByID     OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}
	logger := logging.Must(baseCfg.Env, baseCfg.LogLevel)
	defer logger.Sync()

	cfg := loadConfig()
	if err := validateConfig(cfg, baseCfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("confirm", cfg.ConfirmRatio),
		zap.Float64("read", cfg.ReadRatio))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, 4)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	verifier := auth.NewTokenVerifier([]byte(baseCfg.JWTSecret), baseCfg.JWTIssuer)
	dataPool, err := loadDataPool(ctx, pgPool, verifier, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}

	logger.Info("data loaded",
		zap.Int("patients", len(dataPool.Patients)),
		zap.Int("open_slots", len(dataPool.Slots)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 200),
		// A small slot pool keeps workers colliding on the same slots
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 50),
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig, base config.Config) error {
	if base.StoreDriver != config.StorePostgres {
		return fmt.Errorf("simulator reads its data pool from Postgres, set STORE_DRIVER=postgres")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, verifier *auth.TokenVerifier, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{
		tokens: make(map[uuid.UUID]string),
		booked: make(map[uuid.UUID]int),
	}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	rows, err = pool.Query(ctx, `
		SELECT s.id, s.doctor_id
		FROM schedule_slots s
		WHERE s.date >= (now() AT TIME ZONE 'UTC')::date
		  AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.slot_id = s.id AND a.status <> 'CANCELLED'
		  )
		ORDER BY s.date, s.start_time
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var ref slotRef
		if err := rows.Scan(&ref.ID, &ref.DoctorID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run clinicctl seed first")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no open slots loaded")
	}

	ttl := cfg.Duration + time.Minute
	for _, id := range dataPool.Patients {
		token, err := verifier.Issue(auth.Actor{ID: id, Role: auth.RolePatient}, ttl)
		if err != nil {
			return nil, err
		}
		dataPool.tokens[id] = token
	}
	dataPool.adminToken, err = verifier.Issue(auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin}, ttl)
	if err != nil {
		return nil, err
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio:
			s.doConfirm(ctx, rng)
		case rng.Intn(2) == 0:
			s.doReadByID(ctx, rng)
		default:
			s.doAvailability(ctx, rng)
		}
	}
}

// send issues a request and returns the status code, or 0 on transport failure.
func (s *Simulator) send(ctx context.Context, method, path, token string, body any, out any) int {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	var created struct {
		ID uuid.UUID `json:"id"`
	}

	start := time.Now()
	code := s.send(ctx, http.MethodPost, "/appointments/create", s.pool.tokens[patientID],
		map[string]string{"schedule": slot.ID.String()}, &created)
	latency := time.Since(start)

	if code == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.RecordBooking(slot.ID, created.ID)
	}
	s.metrics.Booking.Record(latency, code == http.StatusCreated, code == http.StatusConflict)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	code := s.send(ctx, http.MethodPatch, "/appointments/"+apptID.String(), s.pool.adminToken,
		map[string]string{"status": "CONFIRMED"}, nil)
	latency := time.Since(start)

	// Confirming twice is an expected invalid transition
	s.metrics.Confirm.Record(latency, code == http.StatusOK, code == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	code := s.send(ctx, http.MethodGet, "/appointments/"+apptID.String(), s.pool.adminToken, nil, nil)
	s.metrics.ReadByID.Record(time.Since(start), code == http.StatusOK, false)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	start := time.Now()
	code := s.send(ctx, http.MethodGet, "/doctors/availability/"+slot.DoctorID.String(), "", nil, nil)
	s.metrics.Availability.Record(time.Since(start), code == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Slots in play: %d\n", len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("Availability", &s.metrics.Availability)

	fmt.Printf("Double bookings: %d\n", s.pool.DoubleBookings())
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
