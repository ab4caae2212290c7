package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthChecker defines the interface for health checking components
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

type component struct {
	name     string
	checker  HealthChecker
	required bool
}

// HealthHandler handles health check requests. A failing required component
// makes the service unhealthy; a failing optional one only degrades it.
type HealthHandler struct {
	components []component
}

// NewHealthHandler creates a new health handler with no components
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Require registers a component the service cannot run without
func (h *HealthHandler) Require(name string, checker HealthChecker) *HealthHandler {
	h.components = append(h.components, component{name: name, checker: checker, required: true})
	return h
}

// Optional registers a component the service can run without
func (h *HealthHandler) Optional(name string, checker HealthChecker) *HealthHandler {
	h.components = append(h.components, component{name: name, checker: checker})
	return h
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string, len(h.components)),
	}

	for _, c := range h.sorted() {
		if err := c.checker.HealthCheck(ctx); err != nil {
			response.Services[c.name] = "unhealthy: " + err.Error()
			if c.required {
				response.Status = "unhealthy"
			} else if response.Status == "healthy" {
				response.Status = "degraded"
			}
			continue
		}
		response.Services[c.name] = "healthy"
	}

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// Ready handles GET /ready (Kubernetes readiness probe)
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range h.components {
		if !c.required {
			continue
		}
		if err := c.checker.HealthCheck(ctx); err != nil {
			http.Error(w, "not ready: "+c.name, http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Live handles GET /live (Kubernetes liveness probe)
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}

func (h *HealthHandler) sorted() []component {
	out := make([]component, len(h.components))
	copy(out, h.components)
	sort.SliceStable(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
