package api

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck probes one dependency. A failing critical check makes the service
// unready; a failing non-critical one only degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Ping     func(ctx context.Context) error
}

type HealthHandler struct {
	checks  []HealthCheck
	env     string
	version string
}

func NewHealthHandler(checks []HealthCheck, env, version string) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	status := "ok"

	for _, c := range h.checks {
		checkCtx, checkCancel := context.WithTimeout(ctx, 1*time.Second)
		err := c.Ping(checkCtx)
		checkCancel()

		if err == nil {
			deps[c.Name] = "ok"
			continue
		}

		deps[c.Name] = "down"
		switch {
		case c.Critical:
			status = "error"
		case status == "ok":
			status = "degraded"
		}
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}
