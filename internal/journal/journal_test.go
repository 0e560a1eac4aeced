package journal

import (
	"context"
	"database/sql"
	"math"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cloudpico-probe/internal/db/migrate"
	"cloudpico-probe/internal/probe"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	if _, err := migrate.Run(context.Background(), db, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestJournal_PushAndLatest(t *testing.T) {
	ctx := context.Background()
	j := New(NewRepository(setupTestDB(t)), "combustion", "run-1")
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, c := range []float64{20, 20.05, 19.95} {
		r := probe.Reading{Celsius: c, CapturedAt: base.Add(time.Duration(i) * 2 * time.Second)}
		if err := j.Push(ctx, r); err != nil {
			t.Fatalf("Push(%v): %v", c, err)
		}
	}

	got, err := j.Latest(ctx, 2)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Latest(2) returned %d entries", len(got))
	}
	if got[0].Celsius != 19.95 || got[1].Celsius != 20.05 {
		t.Errorf("order = [%v %v], want [19.95 20.05]", got[0].Celsius, got[1].Celsius)
	}
	if !got[0].CapturedAt.Equal(base.Add(4 * time.Second)) {
		t.Errorf("CapturedAt = %v", got[0].CapturedAt)
	}
	if got[0].ProbeID != "combustion" || got[0].RunID != "run-1" {
		t.Errorf("ids = %q/%q", got[0].ProbeID, got[0].RunID)
	}
	if math.Abs(got[0].Fahrenheit-67.91) > 0.01 {
		t.Errorf("Fahrenheit = %v, want 67.91", got[0].Fahrenheit)
	}
}

func TestJournal_LatestScopedToProbe(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))
	mine := New(repo, "combustion", "run-1")
	other := New(repo, "other", "run-1")

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := other.Push(ctx, probe.Reading{Celsius: 99, CapturedAt: now}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	got, err := mine.Latest(ctx, 10)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Latest = %v, want empty", got)
	}
}

type limitRepo struct {
	Repository
	limit int
}

func (r *limitRepo) LatestReadings(_ context.Context, _ string, limit int) ([]Entry, error) {
	r.limit = limit
	return nil, nil
}

func TestJournal_LatestClampsLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{in: -5, want: 1},
		{in: 0, want: 1},
		{in: 50, want: 50},
		{in: MaxLimit + 1, want: MaxLimit},
	}
	for _, tt := range tests {
		repo := &limitRepo{}
		if _, err := New(repo, "p", "r").Latest(context.Background(), tt.in); err != nil {
			t.Fatalf("Latest: %v", err)
		}
		if repo.limit != tt.want {
			t.Errorf("Latest(%d) queried limit %d, want %d", tt.in, repo.limit, tt.want)
		}
	}
}
