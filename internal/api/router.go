package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
)

type RouterConfig struct {
	Service  *appointment.Service
	Verifier *auth.TokenVerifier
	Logger   *zap.Logger
	Checks   []HealthCheck
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	svc, logger := cfg.Service, cfg.Logger

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" is not allowed here")
	})

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Verifier))

		// Browsing is open to anonymous callers
		r.Get("/doctors", listDoctorsHandler(svc, logger))
		r.Get("/doctors/{id}", getDoctorHandler(svc, logger))
		r.Get("/doctors/availability/{id}", availabilityHandler(svc, logger))

		r.Group(func(r chi.Router) {
			r.Use(RequireActor)

			r.Post("/appointments/create", bookSlotHandler(svc, logger))
			r.Get("/appointments", listAppointmentsHandler(svc, logger))
			r.Get("/appointments/{id}", getAppointmentHandler(svc, logger))
			r.Patch("/appointments/{id}", updateAppointmentHandler(svc, logger))

			r.Get("/schedules", listSlotsHandler(svc, logger))
			r.Post("/schedules", createSlotHandler(svc, logger))
			r.Delete("/schedules/{id}", deleteSlotHandler(svc, logger))

			r.Get("/notifications", listNotificationsHandler(svc, logger))
			r.Patch("/notifications/{id}", markNotificationReadHandler(svc, logger))
		})
	})

	return r
}
