package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/attendance"
	"github.com/example/attendance-tracker/internal/config"
	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/persistence/memory"
	"github.com/example/attendance-tracker/internal/persistence/sqlite"
)

const serviceName = "attendance"

var timeNow = time.Now

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "attendance",
		Short: "Conference zone attendance tracker",
		Long: `Tracks attendee presence across conference zones, converts stays into
recognized minutes and gates badge issuance.

Settings come from defaults, the TOML file named by ATTENDANCE_CONFIG_FILE and
ATTENDANCE_* environment variables, in that order.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newRecognizeCmd(), newHashKeyCmd())
	return root
}

// newLogger builds the process logger from cfg, writing to stdout.
func newLogger(cfg config.Config) (*slog.Logger, error) {
	return logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
}

// openStore opens the configured store. SQLite databases are migrated first.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		logger.WarnContext(ctx, "using in-memory storage; data is lost on exit")
		return memory.New(), nil
	case config.DriverSQLite:
		store, err := sqlite.OpenMigrated(ctx, sqlite.DefaultConfig(cfg.SQLitePath), logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// services bundles the wired application layer.
type services struct {
	rules      *application.RuleService
	attendance *application.AttendanceService
	badges     *application.BadgeService
	stations   *application.StationAuthenticator
}

func newServices(cfg config.Config, store persistence.Store, metrics application.Metrics, logger *slog.Logger) services {
	idGenerator := uuid.NewString

	rules := application.NewRuleServiceWithLogger(store, application.RuleCacheConfig{
		TTL:        cfg.RuleCacheTTL,
		MaxEntries: cfg.RuleCacheSize,
	}, logger)
	machine := attendance.NewMachine(cfg.Location(), cfg.Policy())
	attendanceSvc := application.NewAttendanceServiceWithOptions(store, rules, machine, idGenerator, timeNow, application.AttendanceOptions{
		Logger:     logger,
		Metrics:    metrics,
		VoucherTTL: cfg.VoucherTTL,
		Ticker:     application.NewTicker(cfg.ProjectionInterval),
	})
	badges := application.NewBadgeServiceWithOptions(store, attendanceSvc, idGenerator, timeNow, application.BadgeOptions{
		Logger:     logger,
		Metrics:    metrics,
		VoucherTTL: cfg.VoucherTTL,
		Polling: application.BadgePolling{
			InitialInterval: cfg.BadgePollInterval,
			MaxInterval:     cfg.BadgePollMaxInterval,
		},
	})

	credentials := make(map[string]application.StationCredential, len(cfg.StationKeys))
	for _, id := range cfg.StationIDs() {
		credentials[id] = application.StationCredential{KeyHash: cfg.StationKeys[id]}
	}

	return services{
		rules:      rules,
		attendance: attendanceSvc,
		badges:     badges,
		stations:   application.NewStationAuthenticator(credentials, logger),
	}
}
