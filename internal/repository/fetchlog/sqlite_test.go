package fetchlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaennil/tileproxy/internal/entity"
	"github.com/jaennil/tileproxy/pkg/logger"
)

func newTestLog(t *testing.T) *SQLiteLog {
	t.Helper()
	l, err := NewSQLiteLog(filepath.Join(t.TempDir(), "fetchlog.db"), logger.NewNoOp())
	if err != nil {
		t.Fatalf("NewSQLiteLog: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestStatsEmpty(t *testing.T) {
	l := newTestLog(t)

	s, err := l.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s != (entity.FetchStats{}) {
		t.Fatalf("Stats = %+v, want zero", s)
	}
}

func TestRecordAndStats(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t)
	now := time.Now()

	records := []entity.FetchRecord{
		{Key: entity.TileKey{Z: 1, X: 0, Y: 0}, Status: entity.FetchOK, Bytes: 100, Duration: 20 * time.Millisecond, FetchedAt: now},
		{Key: entity.TileKey{Z: 1, X: 1, Y: 0}, Status: entity.FetchOK, Bytes: 250, Duration: 30 * time.Millisecond, FetchedAt: now},
		{Key: entity.TileKey{Z: 1, X: 1, Y: 1}, Status: entity.FetchFailed, Error: "upstream returned status 404", FetchedAt: now},
	}
	for _, r := range records {
		if err := l.Record(ctx, r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	s, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := entity.FetchStats{Total: 3, OK: 2, Failed: 1, Bytes: 350}
	if s != want {
		t.Fatalf("Stats = %+v, want %+v", s, want)
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t)
	now := time.Now()

	_ = l.Record(ctx, entity.FetchRecord{Status: entity.FetchOK, FetchedAt: now.Add(-48 * time.Hour)})
	_ = l.Record(ctx, entity.FetchRecord{Status: entity.FetchOK, FetchedAt: now})

	n, err := l.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("Prune removed %d, want 1", n)
	}

	s, _ := l.Stats(ctx)
	if s.Total != 1 {
		t.Fatalf("Total = %d after prune, want 1", s.Total)
	}
}
