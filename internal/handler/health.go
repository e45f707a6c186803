package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

// Pinger is a dependency the readiness check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	version string
	checks  map[string]Pinger
	timeout time.Duration
}

// NewHealthHandler reports liveness and the state of each named dependency.
func NewHealthHandler(version string, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{version: version, checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	httpStatus := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		results[name] = "ok"
		if err := h.checks[name].Ping(ctx); err != nil {
			logging.FromContext(ctx).Warn("readiness check failed", "check", name, "error", err)
			results[name] = "down"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	overallStatus := "ok"
	if httpStatus != http.StatusOK {
		overallStatus = "down"
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    results,
	})
}
