package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"ticketpilot/adapters"
	"ticketpilot/automation"
	"ticketpilot/config"
	"ticketpilot/diagnostics"
	"ticketpilot/selector"
	"ticketpilot/ticket"
)

// Run status constants
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRequest is an incoming ticket-creation request.
type RunRequest struct {
	Provider string        `json:"provider"`
	Intent   ticket.Intent `json:"intent"`
	DryRun   bool          `json:"dry_run,omitempty"`
}

// Run is one queued ticket-creation run.
type Run struct {
	ID          string         `json:"id"`
	Provider    string         `json:"provider"`
	Intent      ticket.Intent  `json:"intent"`
	DryRun      bool           `json:"dry_run,omitempty"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      *ticket.Result `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// RunStore manages runs in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*Run)}
}

func (s *RunStore) Create(req *RunRequest) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &Run{
		ID:        uuid.New().String(),
		Provider:  req.Provider,
		Intent:    req.Intent,
		DryRun:    req.DryRun,
		Status:    RunStatusPending,
		CreatedAt: time.Now(),
	}
	s.runs[run.ID] = run
	return run
}

func (s *RunStore) Get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

func (s *RunStore) UpdateStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Status = status
		now := time.Now()
		if status == RunStatusRunning {
			run.StartedAt = &now
		} else if status == RunStatusCompleted || status == RunStatusFailed {
			run.CompletedAt = &now
		}
	}
}

func (s *RunStore) Finish(id string, res *ticket.Result, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		now := time.Now()
		run.CompletedAt = &now
		run.Result = res
		run.Error = errMsg
		if errMsg != "" || (res != nil && res.Status == ticket.StatusFailure) {
			run.Status = RunStatusFailed
		} else {
			run.Status = RunStatusCompleted
		}
	}
}

func (s *RunStore) CleanupOld(maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, run := range s.runs {
		if run.CompletedAt != nil && run.CompletedAt.Before(cutoff) {
			delete(s.runs, id)
		}
	}
}

// AgentService owns the engine and the run queue.
type AgentService struct {
	engine      *automation.Engine
	store       *RunStore
	workerCount int
	queue       chan string
}

func NewAgentService(engine *automation.Engine, workerCount int) *AgentService {
	return &AgentService{
		engine:      engine,
		store:       NewRunStore(),
		workerCount: workerCount,
		queue:       make(chan string, 100),
	}
}

func (s *AgentService) Start() {
	for i := 0; i < s.workerCount; i++ {
		go s.worker(i)
	}
	go s.cleanupWorker()
	log.Printf("✅ Started %d agent workers", s.workerCount)
}

func (s *AgentService) worker(id int) {
	log.Printf("🚀 Worker %d started", id)

	for runID := range s.queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("❌ Worker %d PANIC: %v", id, r)
					s.store.Finish(runID, nil, fmt.Sprintf("panic: %v", r))
				}
			}()

			run, ok := s.store.Get(runID)
			if !ok {
				log.Printf("⚠️ Worker %d: run %s not found", id, runID)
				return
			}

			log.Printf("🔧 Worker %d: processing run %s (%s)", id, runID, run.Provider)
			s.store.UpdateStatus(runID, RunStatusRunning)

			res := s.engine.Run(context.Background(), run.Provider, &run.Intent, run.DryRun)
			if res.Status == ticket.StatusFailure {
				log.Printf("❌ Worker %d: run %s failed: %s", id, runID, res.ErrorDetail)
				s.store.Finish(runID, res, res.ErrorDetail)
			} else {
				log.Printf("✅ Worker %d: run %s completed (%s)", id, runID, res.Status)
				s.store.Finish(runID, res, "")
			}
		}()
	}
}

func (s *AgentService) cleanupWorker() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.store.CleanupOld(30 * time.Minute)
	}
}

func (s *AgentService) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Provider == "" {
		http.Error(w, "Missing provider", http.StatusBadRequest)
		return
	}

	run := s.store.Create(&req)
	select {
	case s.queue <- run.ID:
	default:
		http.Error(w, "Run queue full", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(run)
}

func (s *AgentService) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	run, ok := s.store.Get(runID)
	if !ok {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// handleDryRun resolves the plan synchronously; no browser is involved.
func (s *AgentService) handleDryRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Provider == "" {
		http.Error(w, "Missing provider", http.StatusBadRequest)
		return
	}

	res := s.engine.Run(r.Context(), req.Provider, &req.Intent, true)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (s *AgentService) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"service":   "ticketpilot-agent",
		"providers": mapKeys(s.engine.Providers),
		"time":      time.Now().Format(time.RFC3339),
	})
}

func mapKeys(m map[string]*config.ProviderConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func main() {
	_ = godotenv.Load()

	settingsPath := flag.String("settings", os.Getenv("UI_AGENT_SETTINGS"), "optional YAML settings file")
	providersDir := flag.String("providers", "", "provider config directory (overrides settings)")
	flag.Parse()

	settings, err := config.LoadSettings(*settingsPath)
	if err != nil {
		log.Fatalf("❌ Failed to load settings: %v", err)
	}
	if *providersDir != "" {
		settings.ProvidersDir = *providersDir
	}

	providers, err := config.LoadProviders(settings.ProvidersDir)
	if err != nil {
		log.Fatalf("❌ Failed to load provider configs: %v", err)
	}
	log.Printf("📋 Loaded %d provider configs from %s", len(providers), settings.ProvidersDir)

	// Selector stats: shared Redis store when configured, local file otherwise
	var store selector.Store
	if settings.RedisAddr != "" {
		store = selector.NewRedisStore(settings.RedisAddr)
		log.Printf("✅ Selector stats in Redis at %s", settings.RedisAddr)
	} else {
		store = selector.NewFileStore(settings.SelectorStatsPath)
		log.Printf("📄 Selector stats in %s", settings.SelectorStatsPath)
	}
	defer store.Close()

	var sink diagnostics.EventSink
	if settings.NATSURL != "" {
		natsSink, err := diagnostics.NewNATSSink(settings.NATSURL, settings.NATSSubject)
		if err != nil {
			log.Printf("⚠️ NATS sink unavailable: %v", err)
		} else {
			defer natsSink.Close()
			sink = natsSink
			log.Printf("✅ Step events published to %s on %s", settings.NATSSubject, settings.NATSURL)
		}
	}

	registry := ticket.NewRegistry()
	adapters.RegisterWebhooks(registry, settings.AdapterURLs)
	if n := len(registry.Providers()); n > 0 {
		log.Printf("✅ Registered %d fallback adapters", n)
	}

	launcher := &automation.Launcher{
		Headless:   settings.Headless,
		SlowMoMS:   settings.SlowMoMS,
		ProfileDir: settings.ProfileDir,
	}

	engine := &automation.Engine{
		Settings:  settings,
		Providers: providers,
		Scorer:    selector.NewScorer(store),
		Registry:  registry,
		Launch:    launcher.Launch,
		Sink:      sink,
	}

	service := NewAgentService(engine, 3)
	service.Start()

	r := mux.NewRouter()
	r.HandleFunc("/health", service.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/runs", service.handleStartRun).Methods(http.MethodPost)
	r.HandleFunc("/runs/{id}", service.handleGetRun).Methods(http.MethodGet)
	r.HandleFunc("/dry-run", service.handleDryRun).Methods(http.MethodPost)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8086"
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	log.Printf("🚀 TicketPilot agent starting on %s", port)
	if err := http.ListenAndServe(port, r); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
