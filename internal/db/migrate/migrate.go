// Package migrate applies the embedded SQLite schema migrations. Files are
// named NNNN_name.sql and applied in version order, each in its own
// transaction, and recorded in schema_migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"

	"cloudpico-probe/internal/utils"
)

//go:embed sql/*.sql
var sqlFS embed.FS

const (
	migrationsDir = "sql"
	tableName     = "schema_migrations"
)

var migrationFileRe = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

type migration struct {
	version string
	name    string
	body    string
}

// Run applies pending migrations and returns how many were applied.
func Run(ctx context.Context, db *sql.DB, logger *slog.Logger) (int, error) {
	return run(ctx, db, sqlFS, logger)
}

func run(ctx context.Context, db *sql.DB, fsys fs.FS, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+tableName+` (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)
	`); err != nil {
		return 0, fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("list applied migrations: %w", err)
	}

	pending, err := pendingMigrations(fsys, applied)
	if err != nil {
		return 0, err
	}

	for _, m := range pending {
		if err := apply(ctx, db, m, logger); err != nil {
			return 0, fmt.Errorf("apply %s_%s.sql: %w", m.version, m.name, err)
		}
		logger.Info("migration applied", "version", m.version, "name", m.name)
	}
	return len(pending), nil
}

func pendingMigrations(fsys fs.FS, applied map[string]bool) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var pending []migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationFileRe.FindStringSubmatch(e.Name())
		if m == nil || applied[m[1]] {
			continue
		}
		body, err := fs.ReadFile(fsys, migrationsDir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		pending = append(pending, migration{version: m[1], name: m[2], body: string(body)})
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })
	return pending, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM "+tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, m migration, logger *slog.Logger) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); !errors.Is(err, sql.ErrTxDone) {
			utils.DebugErr(logger, "migrate: rollback", err, "version", m.version)
		}
	}()

	if _, err := tx.ExecContext(ctx, m.body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO "+tableName+" (version, name) VALUES (?, ?)",
		m.version, m.name,
	); err != nil {
		return err
	}
	return tx.Commit()
}
