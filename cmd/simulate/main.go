package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
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

	"github.com/menteagenda/agenda-scheduling/internal/config"
	"github.com/menteagenda/agenda-scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	UpdateRatio  float64
	ReadRatio    float64
	OwnerLimit   int
	SlotCount    int
	PostgresDSN  string
}

type ownerPool struct {
	OwnerID uuid.UUID
	Clients []uuid.UUID
}

type bookedAppointment struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
}

type DataPool struct {
	Owners []ownerPool

	mu           sync.RWMutex
	appointments []bookedAppointment
}

func (dp *DataPool) AddAppointment(a bookedAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedAppointment{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
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
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
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

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking       OperationMetrics
	Update        OperationMetrics
	ConflictCheck OperationMetrics
	ReadByID      OperationMetrics
	ListByOwner   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics

	// All bookings target slots on this grid so concurrent workers fight
	// over the same windows and the conflict path actually gets exercised.
	gridStart time.Time
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f update=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.UpdateRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d professionals with clients", len(dataPool.Owners))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		gridStart: time.Now().Truncate(time.Hour).Add(48 * time.Hour),
	}

	sim.Run()
	sim.PrintReport()

	// The whole point of the service: after arbitrary concurrent traffic,
	// no professional may end up double-booked.
	auditCtx, auditCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer auditCancel()
	if err := auditOverlaps(auditCtx, pgPool); err != nil {
		log.Fatalf("overlap audit: %v", err)
	}
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		UpdateRatio:  getFloat("SIM_UPDATE_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		OwnerLimit:   getInt("SIM_OWNER_LIMIT", 20),
		SlotCount:    getInt("SIM_SLOT_COUNT", 16),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.UpdateRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.UpdateRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.SlotCount <= 0 {
		return fmt.Errorf("SIM_SLOT_COUNT must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	ownerRows, err := pool.Query(ctx, `
		SELECT id FROM professionals LIMIT $1
	`, cfg.OwnerLimit)
	if err != nil {
		return nil, fmt.Errorf("load professionals: %w", err)
	}
	defer ownerRows.Close()

	var ownerIDs []uuid.UUID
	for ownerRows.Next() {
		var id uuid.UUID
		if err := ownerRows.Scan(&id); err != nil {
			return nil, err
		}
		ownerIDs = append(ownerIDs, id)
	}
	if err := ownerRows.Err(); err != nil {
		return nil, err
	}

	dataPool := &DataPool{}
	for _, ownerID := range ownerIDs {
		rows, err := pool.Query(ctx, `
			SELECT id FROM clients WHERE owner_id = $1 LIMIT 50
		`, ownerID)
		if err != nil {
			return nil, fmt.Errorf("load clients: %w", err)
		}

		op := ownerPool{OwnerID: ownerID}
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			op.Clients = append(op.Clients, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		if len(op.Clients) > 0 {
			dataPool.Owners = append(dataPool.Owners, op)
		}
	}

	if len(dataPool.Owners) == 0 {
		return nil, fmt.Errorf("no professionals with clients loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookingRatio+s.config.UpdateRatio {
				s.doUpdate(ctx, rng)
			} else {
				switch rng.Intn(3) {
				case 0:
					s.doConflictCheck(ctx, rng)
				case 1:
					s.doReadByID(ctx, rng)
				case 2:
					s.doListByOwner(ctx, rng)
				}
			}
		}
	}
}

// randomSlot picks a start time on a shared 30-minute grid. Durations longer
// than the grid step guarantee genuine overlaps between neighboring picks.
func (s *Simulator) randomSlot(rng *rand.Rand) (time.Time, int) {
	slot := rng.Intn(s.config.SlotCount)
	start := s.gridStart.Add(time.Duration(slot) * 30 * time.Minute)
	durations := []int{30, 45, 50, 60}
	return start, durations[rng.Intn(len(durations))]
}

func (s *Simulator) randomOwner(rng *rand.Rand) ownerPool {
	return s.pool.Owners[rng.Intn(len(s.pool.Owners))]
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	owner := s.randomOwner(rng)
	clientID := owner.Clients[rng.Intn(len(owner.Clients))]
	slotStart, duration := s.randomSlot(rng)

	start := time.Now()

	reqBody := map[string]any{
		"owner_id":         owner.OwnerID.String(),
		"client_id":        clientID.String(),
		"start_time":       slotStart.Format(time.RFC3339),
		"duration_minutes": duration,
		"modality":         "video_call",
		"status":           "confirmed",
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			success = true
			var apptResp struct {
				ID uuid.UUID `json:"id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				json.Unmarshal(bodyBytes, &apptResp)
				if apptResp.ID != uuid.Nil {
					s.pool.AddAppointment(bookedAppointment{ID: apptResp.ID, OwnerID: owner.OwnerID})
				}
			}
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doUpdate(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	var owner ownerPool
	for _, op := range s.pool.Owners {
		if op.OwnerID == appt.OwnerID {
			owner = op
			break
		}
	}
	if len(owner.Clients) == 0 {
		return
	}

	slotStart, duration := s.randomSlot(rng)

	start := time.Now()

	reqBody := map[string]any{
		"owner_id":         appt.OwnerID.String(),
		"client_id":        owner.Clients[rng.Intn(len(owner.Clients))].String(),
		"start_time":       slotStart.Format(time.RFC3339),
		"duration_minutes": duration,
		"modality":         "in_person",
		"status":           "confirmed",
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "PUT",
		fmt.Sprintf("%s/appointments/%s", s.config.APIBaseURL, appt.ID.String()), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Update.Record(latency, success, conflict)
}

func (s *Simulator) doConflictCheck(ctx context.Context, rng *rand.Rand) {
	owner := s.randomOwner(rng)
	slotStart, duration := s.randomSlot(rng)

	start := time.Now()

	url := fmt.Sprintf("%s/schedule/conflicts?owner_id=%s&start_time=%s&duration_minutes=%d",
		s.config.APIBaseURL, owner.OwnerID.String(), slotStart.Format(time.RFC3339), duration)

	req, _ := http.NewRequestWithContext(ctx, "GET", url, nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ConflictCheck.Record(latency, success, false)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/appointments/%s?owner_id=%s", s.config.APIBaseURL, appt.ID.String(), appt.OwnerID.String()), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doListByOwner(ctx context.Context, rng *rand.Rand) {
	owner := s.randomOwner(rng)

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/appointments?owner_id=%s&limit=20&offset=0", s.config.APIBaseURL, owner.OwnerID.String()), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListByOwner.Record(latency, success, false)
}

// auditOverlaps counts pairs of active appointments for the same owner whose
// half-open intervals intersect. Anything above zero means the admission
// lock failed to serialize a booking.
func auditOverlaps(ctx context.Context, pool *pgxpool.Pool) error {
	var overlapping int64
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.owner_id = b.owner_id
		 AND a.id < b.id
		WHERE a.status IN ('pending', 'confirmed')
		  AND b.status IN ('pending', 'confirmed')
		  AND a.start_time < b.start_time + make_interval(mins => b.duration_minutes)
		  AND a.start_time + make_interval(mins => a.duration_minutes) > b.start_time
	`).Scan(&overlapping)
	if err != nil {
		return err
	}

	if overlapping > 0 {
		return fmt.Errorf("INVARIANT VIOLATED: %d overlapping active appointment pairs", overlapping)
	}

	log.Println("overlap audit passed: no double-booked professionals")
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Update", &s.metrics.Update)
	printOperationReport("Conflict Check", &s.metrics.ConflictCheck)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Owner", &s.metrics.ListByOwner)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, def time.Duration) time.Duration {
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
