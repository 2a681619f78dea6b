package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	// database/sql driver for the migration runner; the application
	// itself talks pgx.
	_ "github.com/lib/pq"
)

// Migration is one versioned SQL file, named NNN_description.sql.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrator applies pending migrations in version order.
type Migrator struct {
	db  *sql.DB
	dir string
}

// NewMigrator opens a database/sql connection for migrations.
func NewMigrator(databaseURL, dir string) (*Migrator, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening migration connection: %w", err)
	}
	return &Migrator{db: conn, dir: dir}, nil
}

// Close releases the migration connection.
func (m *Migrator) Close() error {
	return m.db.Close()
}

// Up applies every migration newer than the current schema version.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return fmt.Errorf("ensuring schema_version table: %w", err)
	}
	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}
	migrations, err := m.load()
	if err != nil {
		return err
	}

	applied := 0
	for _, mig := range migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("applying migration %03d: %w", mig.Version, err)
		}
		applied++
	}
	log.Info().Int("applied", applied).Int("current", current).Msg("Migrations complete")
	return nil
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW(),
			description TEXT
		)`)
	return err
}

func (m *Migrator) currentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// load reads NNN_description.sql files from the migrations directory,
// ignoring _down.sql companions.
func (m *Migrator) load() ([]Migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, "_down.sql") {
			continue
		}
		parts := strings.SplitN(strings.TrimSuffix(name, ".sql"), "_", 2)
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("migration %s: version prefix is not numeric", name)
		}
		content, err := os.ReadFile(filepath.Join(m.dir, name)) // #nosec G304 -- dir is operator-supplied config
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", name, err)
		}
		description := ""
		if len(parts) == 2 {
			description = strings.ReplaceAll(parts[1], "_", " ")
		}
		migrations = append(migrations, Migration{Version: version, Description: description, SQL: string(content)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// apply runs one migration and records it, atomically.
func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES ($1, $2)",
		mig.Version, mig.Description); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Info().Int("version", mig.Version).Str("description", mig.Description).Msg("Applied migration")
	return nil
}
