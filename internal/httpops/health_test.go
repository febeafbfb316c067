package httpops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppscan/oppscan/internal/domain"
	"github.com/oppscan/oppscan/internal/net/circuit"
	"github.com/oppscan/oppscan/internal/provider"
)

type fakeProviderChecker struct {
	health provider.Health
}

func (f *fakeProviderChecker) HealthCheck(ctx context.Context) provider.Health {
	return f.health
}

type fakeRunLister struct {
	runs []domain.PipelineRun
}

func (f *fakeRunLister) Latest(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	return f.runs, nil
}

type fakeDatastoreChecker struct {
	stats map[string]circuit.Stats
}

func (f *fakeDatastoreChecker) BreakerStats() map[string]circuit.Stats {
	return f.stats
}

func TestHealthHandler_HealthyWhenProviderUpAndRunClean(t *testing.T) {
	h := NewHealthHandler(
		&fakeProviderChecker{health: provider.Health{Healthy: true, CircuitState: "closed"}},
		nil,
		&fakeRunLister{runs: []domain.PipelineRun{{ID: "r1", Status: domain.RunCompleted, DQPassed: true}}},
		"1.0.0", "abc123",
	)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, "r1", resp.LastRun.ID)
}

func TestHealthHandler_UnhealthyWhenCircuitOpen(t *testing.T) {
	h := NewHealthHandler(
		&fakeProviderChecker{health: provider.Health{Healthy: false, CircuitState: "open"}},
		nil,
		&fakeRunLister{},
		"1.0.0", "abc123",
	)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
}

func TestHealthHandler_DegradedWhenLastRunBreachedErrorBudget(t *testing.T) {
	h := NewHealthHandler(
		&fakeProviderChecker{health: provider.Health{Healthy: true, CircuitState: "closed"}},
		nil,
		&fakeRunLister{runs: []domain.PipelineRun{{ID: "r2", Status: domain.RunDegraded, ErrorBudgetBreached: true}}},
		"1.0.0", "abc123",
	)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestHealthHandler_DegradedWhenDatastoreBreakerOpen(t *testing.T) {
	h := NewHealthHandler(
		&fakeProviderChecker{health: provider.Health{Healthy: true, CircuitState: "closed"}},
		&fakeDatastoreChecker{stats: map[string]circuit.Stats{
			"insert-snapshot": {State: circuit.StateOpen},
		}},
		&fakeRunLister{},
		"1.0.0", "abc123",
	)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestHealthHandler_RejectsNonGet(t *testing.T) {
	h := NewHealthHandler(nil, nil, nil, "1.0.0", "abc123")
	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
