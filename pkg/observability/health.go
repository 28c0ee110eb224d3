package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Status    string            `json:"status"`
}

// DependencyCheck reports the state of a non-database dependency.
// A non-nil error marks the service degraded, not unhealthy.
type DependencyCheck func(ctx context.Context) error

// HealthChecker manages health checks for the service
type HealthChecker struct {
	dbPool *pgxpool.Pool
	deps   map[string]DependencyCheck
}

// NewHealthChecker creates a new HealthChecker
func NewHealthChecker(dbPool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{
		dbPool: dbPool,
		deps:   make(map[string]DependencyCheck),
	}
}

// AddDependency registers a named dependency check (e.g. payout API circuit state)
func (h *HealthChecker) AddDependency(name string, check DependencyCheck) {
	h.deps[name] = check
}

// Check performs health checks and returns the status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	checks := make(map[string]string)
	overallStatus := "healthy"

	// Database health check
	if h.dbPool != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := h.dbPool.Ping(dbCtx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	for name, check := range h.deps {
		if err := check(ctx); err != nil {
			checks[name] = "degraded: " + err.Error()
			if overallStatus == "healthy" {
				overallStatus = "degraded"
			}
			continue
		}
		checks[name] = "healthy"
	}

	return HealthStatus{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// HealthHandler returns an HTTP handler for health checks.
// Degraded dependencies still answer 200 so the instance keeps taking webhooks.
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(status)
	}
}
