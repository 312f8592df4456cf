// Package migration applies versioned SQL migrations to a SQLite database.
//
// Migration files live in an fs.FS (normally embedded) and follow the naming
// convention {version}_{description}.sql, e.g. "001_initial_schema.sql".
// Each file runs in its own transaction together with the insert into the
// schema_migrations table, so a failed file leaves no trace.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(migrations.FS), migration.NewSQLiteExecutor(db), logger)
//	if err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
