package http

import (
	"context"
	"log/slog"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/logging"
)

type contextKey string

const stationContextKey contextKey = "station"

// ContextWithStation returns a derived context containing the authenticated scan station.
func ContextWithStation(ctx context.Context, station application.Station) context.Context {
	return context.WithValue(ctx, stationContextKey, station)
}

// StationFromContext extracts the authenticated scan station from context if available.
func StationFromContext(ctx context.Context) (application.Station, bool) {
	station, ok := ctx.Value(stationContextKey).(application.Station)
	return station, ok
}

// ContextWithLogger attaches the request scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request scoped logger, or nil.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
