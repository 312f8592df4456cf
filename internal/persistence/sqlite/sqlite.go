// Package sqlite implements persistence.Store on top of modernc.org/sqlite.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/persistence/sqlite/migration"
	"github.com/example/attendance-tracker/internal/persistence/sqlite/migrations"
)

// Store bundles the SQLite repositories behind one connection pool.
type Store struct {
	*RecordRepository
	*RuleRepository
	*BadgeRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database. Call Migrate before serving traffic.
func Open(ctx context.Context, config Config, logger *slog.Logger) (*Store, error) {
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		RecordRepository: NewRecordRepository(pool),
		RuleRepository:   NewRuleRepository(pool),
		BadgeRepository:  NewBadgeRepository(pool),
		pool:             pool,
		logger:           logger,
	}, nil
}

// OpenMigrated opens the database and applies pending migrations.
func OpenMigrated(ctx context.Context, config Config, logger *slog.Logger) (*Store, error) {
	store, err := Open(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	if _, err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Migrate applies the embedded schema migrations and returns how many ran.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	applied, err := s.migrator().Run(ctx)
	if err != nil {
		return applied, fmt.Errorf("run migrations: %w", err)
	}
	return applied, nil
}

// MigrationStatus reports applied and pending schema migrations.
func (s *Store) MigrationStatus(ctx context.Context) (migration.Status, error) {
	return s.migrator().Status(ctx)
}

func (s *Store) migrator() *migration.Manager {
	return migration.NewManager(
		migration.NewScanner(migrations.FS),
		migration.NewSQLiteExecutor(s.pool.DB()),
		s.logger,
	)
}

// WithTx runs fn in a single SQLite transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.pool.WithTx(ctx, fn)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
