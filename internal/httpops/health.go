package httpops

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/oppscan/oppscan/internal/domain"
	"github.com/oppscan/oppscan/internal/net/circuit"
	"github.com/oppscan/oppscan/internal/provider"
)

const statusFailed = string(domain.RunFailed)

// ProviderHealthChecker is the subset of provider.Client health.go needs.
type ProviderHealthChecker interface {
	HealthCheck(ctx context.Context) provider.Health
}

// RunLister is the subset of store.RunRepo health.go needs.
type RunLister interface {
	Latest(ctx context.Context, limit int) ([]domain.PipelineRun, error)
}

// DatastoreHealthChecker is the subset of postgres.Store health.go needs.
type DatastoreHealthChecker interface {
	BreakerStats() map[string]circuit.Stats
}

// HealthHandler reports process, provider, datastore, and last-run health.
type HealthHandler struct {
	provider   ProviderHealthChecker
	datastore  DatastoreHealthChecker
	runs       RunLister
	startedAt  time.Time
	version    string
	buildStamp string
}

func NewHealthHandler(provider ProviderHealthChecker, datastore DatastoreHealthChecker, runs RunLister, version, buildStamp string) *HealthHandler {
	return &HealthHandler{
		provider:   provider,
		datastore:  datastore,
		runs:       runs,
		startedAt:  time.Now(),
		version:    version,
		buildStamp: buildStamp,
	}
}

// HealthResponse is the /healthz JSON body.
type HealthResponse struct {
	Status     string                   `json:"status"` // healthy, degraded, unhealthy
	Timestamp  time.Time                `json:"timestamp"`
	Uptime     string                   `json:"uptime"`
	Version    string                   `json:"version"`
	BuildStamp string                   `json:"build_stamp"`
	System     SystemInfo               `json:"system"`
	Provider   provider.Health          `json:"provider"`
	Datastore  map[string]circuit.Stats `json:"datastore,omitempty"`
	LastRun    *LastRunInfo             `json:"last_run,omitempty"`
}

// SystemInfo reports process-level runtime stats.
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAllocBytes uint64 `json:"mem_alloc_bytes"`
}

// LastRunInfo summarizes the most recent pipeline run.
type LastRunInfo struct {
	ID                  string  `json:"id"`
	Status              string  `json:"status"`
	DQPassed            bool    `json:"dq_passed"`
	ErrorBudgetBreached bool    `json:"error_budget_breached"`
	ErrorRate           float64 `json:"error_rate"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := h.gather(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	switch resp.Status {
	case "healthy", "degraded":
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *HealthHandler) gather(ctx context.Context) HealthResponse {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(h.startedAt).String(),
		Version:    h.version,
		BuildStamp: h.buildStamp,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAllocBytes: mem.Alloc,
		},
	}

	if h.provider != nil {
		resp.Provider = h.provider.HealthCheck(ctx)
	}

	if h.datastore != nil {
		resp.Datastore = h.datastore.BreakerStats()
	}

	if h.runs != nil {
		if latest, err := h.runs.Latest(ctx, 1); err == nil && len(latest) > 0 {
			run := latest[0]
			resp.LastRun = &LastRunInfo{
				ID:                  run.ID,
				Status:              string(run.Status),
				DQPassed:            run.DQPassed,
				ErrorBudgetBreached: run.ErrorBudgetBreached,
				ErrorRate:           run.ErrorRate,
			}
		}
	}

	resp.Status = calculateStatus(resp)
	return resp
}

func calculateStatus(resp HealthResponse) string {
	if resp.Provider.CircuitState == "open" {
		return "unhealthy"
	}
	if !resp.Provider.Healthy {
		return "degraded"
	}
	for _, s := range resp.Datastore {
		if !s.IsHealthy() {
			return "degraded"
		}
	}
	if resp.LastRun != nil && (resp.LastRun.Status == statusFailed || resp.LastRun.ErrorBudgetBreached) {
		return "degraded"
	}
	return "healthy"
}
