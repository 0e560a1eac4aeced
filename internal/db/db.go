package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"cloudpico-probe/internal/utils"
)

type Options struct {
	// Path is a file path, a "file:" URI, or ":memory:".
	Path         string
	MaxOpenConns int
	// TraceSQL logs every statement at debug level.
	TraceSQL bool
	Logger   *slog.Logger
}

func Open(opts Options) (*sql.DB, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 1
	}

	dsn, err := buildDSN(opts.Path)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if opts.TraceSQL {
		db = sql.OpenDB(newTracingConnector(dsn, opts.Logger))
	} else {
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
	}

	// A single writer; in-memory databases are per connection.
	db.SetMaxOpenConns(opts.MaxOpenConns)

	if err := db.Ping(); err != nil {
		utils.DebugErr(opts.Logger, "db close after failed ping", db.Close())
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func buildDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("db: empty path")
	}

	// - foreign_keys=on: enforce FK constraints
	// - busy_timeout: wait instead of failing with "database is locked"
	// - journal_mode=WAL: readers (the /readings route) do not block the writer
	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}

	if path == ":memory:" {
		return "file::memory:?" + strings.Join(params[:2], "&"), nil
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
