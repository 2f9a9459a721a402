package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jaennil/tileproxy/internal/entity"
	"github.com/jaennil/tileproxy/internal/infrastructure/upstream"
	"github.com/jaennil/tileproxy/internal/repository/tile"
	"github.com/jaennil/tileproxy/pkg/hostlist"
	"github.com/jaennil/tileproxy/pkg/logger"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake tile body")

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	data    []byte
	err     error
	entered chan struct{}
	release chan struct{}
	ctxErr  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ entity.TileKey, dst io.Writer) (int64, error) {
	f.mu.Lock()
	f.calls++
	f.ctxErr = ctx.Err()
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	n, err := dst.Write(f.data)
	if err != nil {
		return int64(n), err
	}
	return int64(n), f.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLedger struct {
	mu      sync.Mutex
	records []entity.FetchRecord
}

func (l *fakeLedger) Record(_ context.Context, r entity.FetchRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
	return nil
}

func (l *fakeLedger) Stats(context.Context) (entity.FetchStats, error) {
	return entity.FetchStats{}, nil
}

func (l *fakeLedger) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

type tileFixture struct {
	uc      *TileCacheUseCase
	store   *tile.FilesystemStore
	fetcher *fakeFetcher
	ledger  *fakeLedger
	now     time.Time
}

func newTileFixture(t *testing.T, cfg TileCacheConfig) *tileFixture {
	t.Helper()

	store, err := tile.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}

	f := &tileFixture{
		store:   store,
		fetcher: &fakeFetcher{data: pngBytes},
		ledger:  &fakeLedger{},
		now:     time.Now().Truncate(time.Second),
	}
	f.uc = NewTileCacheUseCase(store, f.fetcher, hostlist.New([]string{"maps.example.com"}), f.ledger, cfg, logger.NewNoOp())
	f.uc.now = func() time.Time { return f.now }
	return f
}

func (f *tileFixture) put(t *testing.T, k entity.TileKey, data []byte, modTime time.Time) {
	t.Helper()

	w, err := f.store.Create(k)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := os.Chtimes(f.store.Path(k), modTime, modTime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

func readTile(t *testing.T, tl *entity.Tile) []byte {
	t.Helper()
	defer tl.Body.Close()

	data, err := io.ReadAll(tl.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if int64(len(data)) != tl.Size {
		t.Errorf("size = %d, body has %d bytes", tl.Size, len(data))
	}
	return data
}

func TestResolveMissingTile(t *testing.T) {
	f := newTileFixture(t, TileCacheConfig{TTL: 300 * time.Second})
	k := entity.TileKey{Z: 5, X: 10, Y: 12}

	tl, err := f.uc.Resolve(context.Background(), k)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := readTile(t, tl); !bytes.Equal(got, pngBytes) {
		t.Errorf("body = %q, want %q", got, pngBytes)
	}
	if f.fetcher.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.fetcher.Calls())
	}
	if !tl.LastModified.Equal(f.now) {
		t.Errorf("last modified = %s, want %s", tl.LastModified, f.now)
	}
	if !tl.Expires.Equal(f.now.Add(300 * time.Second)) {
		t.Errorf("expires = %s", tl.Expires)
	}
	if tl.MaxAge != 300*time.Second {
		t.Errorf("max age = %s", tl.MaxAge)
	}

	stored, err := os.ReadFile(f.store.Path(k))
	if err != nil {
		t.Fatalf("stored tile: %v", err)
	}
	if !bytes.Equal(stored, pngBytes) {
		t.Errorf("stored = %q", stored)
	}

	if len(f.ledger.records) != 1 || f.ledger.records[0].Status != entity.FetchOK {
		t.Errorf("ledger = %+v", f.ledger.records)
	}
	if f.ledger.records[0].Bytes != int64(len(pngBytes)) {
		t.Errorf("recorded bytes = %d", f.ledger.records[0].Bytes)
	}
}

func TestResolveFreshTile(t *testing.T) {
	f := newTileFixture(t, TileCacheConfig{TTL: time.Hour})
	k := entity.TileKey{Z: 3, X: 1, Y: 2}
	cached := []byte("cached tile")
	modTime := f.now.Add(-30 * time.Minute)
	f.put(t, k, cached, modTime)

	tl, err := f.uc.Resolve(context.Background(), k)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := readTile(t, tl); !bytes.Equal(got, cached) {
		t.Errorf("body = %q, want %q", got, cached)
	}
	if f.fetcher.Calls() != 0 {
		t.Errorf("fetch calls = %d, want 0", f.fetcher.Calls())
	}
	if !tl.LastModified.Equal(modTime) {
		t.Errorf("last modified = %s, want %s", tl.LastModified, modTime)
	}
	if len(f.ledger.records) != 0 {
		t.Errorf("ledger = %+v", f.ledger.records)
	}
}

func TestResolveStaleTile(t *testing.T) {
	f := newTileFixture(t, TileCacheConfig{TTL: time.Hour})
	k := entity.TileKey{Z: 3, X: 1, Y: 2}
	f.put(t, k, []byte("old tile"), f.now.Add(-time.Hour))

	tl, err := f.uc.Resolve(context.Background(), k)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := readTile(t, tl); !bytes.Equal(got, pngBytes) {
		t.Errorf("body = %q, want refetched tile", got)
	}
	if f.fetcher.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.fetcher.Calls())
	}
	if !tl.LastModified.Equal(f.now) {
		t.Errorf("last modified = %s, want %s", tl.LastModified, f.now)
	}
}

func TestResolveFetchFailure(t *testing.T) {
	tests := []struct {
		name   string
		cached bool
		err    error
	}{
		{name: "missing tile, transport error", err: errors.New("connection reset")},
		{name: "missing tile, non-2xx", err: &upstream.StatusError{Code: 503}},
		{name: "stale tile, transport error", cached: true, err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTileFixture(t, TileCacheConfig{TTL: time.Minute})
			f.fetcher.err = tt.err
			k := entity.TileKey{Z: 7, X: 64, Y: 42}
			if tt.cached {
				f.put(t, k, []byte("old tile"), f.now.Add(-time.Hour))
			}

			_, err := f.uc.Resolve(context.Background(), k)
			if !errors.Is(err, ErrUpstreamFetch) {
				t.Fatalf("err = %v, want ErrUpstreamFetch", err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("err = %v does not wrap %v", err, tt.err)
			}

			if _, err := os.Stat(f.store.Path(k)); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("tile left behind after failed fetch: %v", err)
			}
			entries, err := os.ReadDir(filepath.Dir(f.store.Path(k)))
			if err != nil {
				t.Fatalf("ReadDir: %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("leftover files: %v", entries)
			}

			if len(f.ledger.records) != 1 || f.ledger.records[0].Status != entity.FetchFailed {
				t.Errorf("ledger = %+v", f.ledger.records)
			}
		})
	}
}

func TestResolveIgnoresClientCancellation(t *testing.T) {
	f := newTileFixture(t, TileCacheConfig{TTL: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tl, err := f.uc.Resolve(ctx, entity.TileKey{Z: 1, X: 0, Y: 0})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	tl.Body.Close()

	if f.fetcher.ctxErr != nil {
		t.Errorf("fetch saw cancelled context: %v", f.fetcher.ctxErr)
	}
}

func TestResolveDeduplicatesConcurrentFetches(t *testing.T) {
	f := newTileFixture(t, TileCacheConfig{TTL: time.Minute, Deduplicate: true})
	f.fetcher.entered = make(chan struct{}, 8)
	f.fetcher.release = make(chan struct{})
	k := entity.TileKey{Z: 2, X: 1, Y: 1}

	const callers = 4
	errs := make(chan error, callers)
	fetch := func() { errs <- f.uc.fetch(context.Background(), k) }

	go fetch()
	<-f.fetcher.entered

	for i := 1; i < callers; i++ {
		go fetch()
	}
	time.Sleep(50 * time.Millisecond)
	close(f.fetcher.release)

	for i := 0; i < callers; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	if f.fetcher.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.fetcher.Calls())
	}
}

func TestCheckAccess(t *testing.T) {
	f := newTileFixture(t, TileCacheConfig{TTL: time.Minute})

	tests := []struct {
		name        string
		origin      string
		referer     string
		allowOrigin string
		wantErr     error
	}{
		{name: "no headers"},
		{name: "trusted origin", origin: "https://maps.example.com", allowOrigin: "https://maps.example.com"},
		{name: "trusted origin with port", origin: "http://maps.example.com:8080", allowOrigin: "http://maps.example.com:8080"},
		{name: "untrusted origin", origin: "https://evil.example.org"},
		{name: "trusted referer", referer: "https://maps.example.com/view?z=5"},
		{name: "untrusted referer", referer: "https://evil.example.org/page", wantErr: ErrForbidden},
		{name: "trusted origin, untrusted referer", origin: "https://maps.example.com", referer: "https://evil.example.org/", allowOrigin: "https://maps.example.com", wantErr: ErrForbidden},
		{name: "referer without host", referer: "not a url", wantErr: ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowOrigin, err := f.uc.CheckAccess(tt.origin, tt.referer)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if allowOrigin != tt.allowOrigin {
				t.Errorf("allow origin = %q, want %q", allowOrigin, tt.allowOrigin)
			}
		})
	}
}
