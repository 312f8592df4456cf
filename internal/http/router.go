package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Attendance *AttendanceHandler
	Badges     *BadgeHandler
	Rules      *RuleHandler
	// Stations guards the staff routes. Staff routes are not mounted without it.
	Stations StationAuthenticator
	// Metrics is served on /metrics when set.
	Metrics  http.Handler
	Observer RequestObserver
	// Health reports readiness on /healthz.
	Health     func(ctx context.Context) error
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(Instrument(cfg.Observer))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responder.writeJSON(req.Context(), w, http.StatusNotFound, errorResponse{Message: localizedStatusMessage(http.StatusNotFound)})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		responder.writeJSON(req.Context(), w, http.StatusMethodNotAllowed, errorResponse{Message: "許可されていないメソッドです。"})
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(req.Context()); err != nil {
				logger.ErrorContext(req.Context(), "health check failed", "error", err)
				responder.writeJSON(req.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		responder.writeJSON(req.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	// Attendee views.
	if h := cfg.Attendance; h != nil {
		r.Get("/attendance/{registrantID}", h.Status)
		r.Get("/attendance/{registrantID}/stream", h.Stream)
	}
	if h := cfg.Badges; h != nil {
		r.Get("/badges/{token}", h.Poll)
		r.Get("/badges/{token}/stream", h.Stream)
		r.Post("/badges/{token}/reissue", h.Reissue)
	}

	if cfg.Stations == nil {
		return r
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireStation(cfg.Stations, logger))

		if h := cfg.Attendance; h != nil {
			r.Post("/registrants", h.Enroll)
			r.Post("/scans", h.Scan)
			r.Post("/attendance/{registrantID}/check-in", h.CheckIn)
			r.Post("/attendance/{registrantID}/check-out", h.CheckOut)
			r.Post("/attendance/{registrantID}/switch", h.Switch)
			r.Get("/attendance/{registrantID}/log", h.Log)
			r.Get("/zones/{zoneID}/occupants", h.Occupants)
		}
		if h := cfg.Badges; h != nil {
			r.Post("/badges/{token}/issue", h.Issue)
		}
		if h := cfg.Rules; h != nil {
			r.Post("/rules/series", h.PutSeries)
			r.Put("/rules/{date}", h.Put)
			r.Get("/rules/{date}", h.Get)
		}
	})

	return r
}
