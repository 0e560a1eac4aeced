// Package journal keeps a local SQLite record of every reading so recent
// history survives archival outages.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"cloudpico-probe/internal/probe"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/latest-readings.sql
var latestReadingsSQL string

const MaxLimit = 1000

type Entry struct {
	ID         int64     `json:"id"`
	ProbeID    string    `json:"probe_id"`
	RunID      string    `json:"run_id"`
	Celsius    float64   `json:"temp"`
	Fahrenheit float64   `json:"temp_f"`
	CapturedAt time.Time `json:"captured_at"`
}

type Repository interface {
	InsertReading(ctx context.Context, probeID, runID string, r probe.Reading) error
	LatestReadings(ctx context.Context, probeID string, limit int) ([]Entry, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertReading(ctx context.Context, probeID, runID string, rd probe.Reading) error {
	ts := rd.CapturedAt.UTC().Format(time.RFC3339Nano)
	if _, err := r.db.ExecContext(ctx, insertReadingSQL, probeID, runID, rd.Celsius, ts); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (r *repositoryImpl) LatestReadings(ctx context.Context, probeID string, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, latestReadingsSQL, probeID, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close latest readings rows", "error", err)
		}
	}()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.ProbeID, &e.RunID, &e.Celsius, &ts); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		e.CapturedAt = t
		e.Fahrenheit = probe.Fahrenheit(e.Celsius)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Journal is the consumer sink bound to one probe and process run.
type Journal struct {
	repo    Repository
	probeID string
	runID   string
}

func New(repo Repository, probeID, runID string) *Journal {
	return &Journal{repo: repo, probeID: probeID, runID: runID}
}

func (j *Journal) Name() string { return "journal" }

func (j *Journal) Push(ctx context.Context, r probe.Reading) error {
	return j.repo.InsertReading(ctx, j.probeID, j.runID, r)
}

// Latest returns up to limit readings, newest first. limit is clamped to
// [1, MaxLimit].
func (j *Journal) Latest(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return j.repo.LatestReadings(ctx, j.probeID, limit)
}
