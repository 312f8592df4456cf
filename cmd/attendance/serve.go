package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/config"
	httptransport "github.com/example/attendance-tracker/internal/http"
	"github.com/example/attendance-tracker/internal/metrics"
	"github.com/example/attendance-tracker/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.RequireStationKeys())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.ErrorContext(ctx, "failed to set up tracing", "error", err)
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.ErrorContext(ctx, "failed to open storage", "error", err)
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	var (
		recorder *metrics.Recorder
		domain   application.Metrics
		observer httptransport.RequestObserver
		exposed  http.Handler
	)
	if cfg.MetricsEnabled {
		recorder = metrics.New(nil)
		domain, observer, exposed = recorder, recorder, recorder.Handler()
	}

	svc := newServices(cfg, store, domain, logger)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Attendance: httptransport.NewAttendanceHandler(svc.attendance, logger),
		Badges:     httptransport.NewBadgeHandler(svc.badges, logger),
		Rules:      httptransport.NewRuleHandler(svc.rules, logger),
		Stations:   svc.stations,
		Metrics:    exposed,
		Observer:   observer,
		Health:     store.Ping,
		Logger:     logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.InfoContext(gctx, "attendance API listening", "addr", server.Addr, "storage", cfg.StorageDriver, "stations", len(cfg.StationKeys))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info("attendance API stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server encountered error", "error", err)
		return err
	}
	return nil
}
