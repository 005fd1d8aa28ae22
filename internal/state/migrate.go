package state

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

func setupGoose() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// Migrate runs all pending database migrations.
func (s *SQLiteStore) Migrate() error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if err := MigrateWithDB(s.db); err != nil {
		return err
	}
	s.logger.Debug("state migrated", "path", s.path)
	return nil
}

// MigrateWithDB runs migrations on an existing connection.
func MigrateWithDB(db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the current schema version.
func (s *SQLiteStore) MigrationVersion() (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	if err := setupGoose(); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(s.db)
}
