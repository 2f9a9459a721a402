package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/jaennil/tileproxy/internal/entity"
	"github.com/jaennil/tileproxy/internal/repository/fetchlog"
	"github.com/jaennil/tileproxy/internal/repository/tile"
	"github.com/jaennil/tileproxy/pkg/logger"
	"github.com/jaennil/tileproxy/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

type TileFetcher interface {
	Fetch(ctx context.Context, k entity.TileKey, dst io.Writer) (int64, error)
}

type TrustedHosts interface {
	Contains(host string) bool
}

type TileCacheConfig struct {
	TTL time.Duration
	// Deduplicate collapses concurrent fetches of the same tile into one upstream request.
	Deduplicate bool
}

type TileCacheUseCase struct {
	store   tile.TileStore
	fetcher TileFetcher
	trusted TrustedHosts
	ledger  fetchlog.FetchLog
	ttl     time.Duration
	group   *singleflight.Group
	now     func() time.Time
	logger  logger.Logger
}

func NewTileCacheUseCase(
	store tile.TileStore,
	fetcher TileFetcher,
	trusted TrustedHosts,
	ledger fetchlog.FetchLog,
	cfg TileCacheConfig,
	l logger.Logger,
) *TileCacheUseCase {
	if ledger == nil {
		ledger = fetchlog.NewNoopLog()
	}

	uc := &TileCacheUseCase{
		store:   store,
		fetcher: fetcher,
		trusted: trusted,
		ledger:  ledger,
		ttl:     cfg.TTL,
		now:     time.Now,
		logger:  l,
	}
	if cfg.Deduplicate {
		uc.group = &singleflight.Group{}
	}
	return uc
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// CheckAccess applies the host policy to the Origin and Referer request headers.
// It returns the origin to echo in Access-Control-Allow-Origin, empty when the origin is not trusted.
// A referer from an untrusted host is rejected with ErrForbidden; a missing referer is allowed.
// The origin is resolved even when the referer is rejected.
func (uc *TileCacheUseCase) CheckAccess(origin, referer string) (string, error) {
	var allowOrigin string
	if origin != "" && uc.trusted.Contains(hostOf(origin)) {
		allowOrigin = origin
	}

	if referer != "" && !uc.trusted.Contains(hostOf(referer)) {
		metrics.AccessDenied.Inc()
		uc.logger.Info("untrusted referer", "referer", referer)
		return allowOrigin, ErrForbidden
	}

	return allowOrigin, nil
}

// Resolve returns the tile for key, fetching it from upstream when it is missing or older than the TTL.
func (uc *TileCacheUseCase) Resolve(ctx context.Context, key entity.TileKey) (*entity.Tile, error) {
	now := uc.now()

	modTime, exists, err := uc.store.Stat(key)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tile %s: %w", key, err)
	}

	lastModified := modTime
	switch {
	case !exists:
		metrics.CacheMisses.Inc()
		uc.logger.Debug("cache miss", "tile", key)
		if err := uc.fetch(ctx, key); err != nil {
			return nil, err
		}
		lastModified = now
	case !modTime.Add(uc.ttl).After(now):
		metrics.CacheStale.Inc()
		uc.logger.Debug("cached tile expired", "tile", key, "modified", modTime)
		if err := uc.fetch(ctx, key); err != nil {
			return nil, err
		}
		lastModified = now
	default:
		metrics.CacheHits.Inc()
	}

	body, size, err := uc.store.Open(key)
	if err != nil {
		if errors.Is(err, tile.ErrNotFound) {
			uc.logger.Error("tile missing after fetch", "tile", key)
			return nil, ErrTileUnavailable
		}
		return nil, fmt.Errorf("%w: %w", ErrTileUnavailable, err)
	}

	return &entity.Tile{
		Key:          key,
		Body:         body,
		Size:         size,
		LastModified: lastModified,
		Expires:      now.Add(uc.ttl),
		MaxAge:       uc.ttl,
	}, nil
}

// fetch runs independently of the client request; only the upstream timeout bounds it.
func (uc *TileCacheUseCase) fetch(ctx context.Context, key entity.TileKey) error {
	ctx = context.WithoutCancel(ctx)

	if uc.group == nil {
		return uc.fetchTile(ctx, key)
	}

	_, err, shared := uc.group.Do(key.String(), func() (any, error) {
		return nil, uc.fetchTile(ctx, key)
	})
	if shared {
		uc.logger.Debug("joined in-flight fetch", "tile", key)
	}
	return err
}

func (uc *TileCacheUseCase) fetchTile(ctx context.Context, key entity.TileKey) error {
	start := time.Now()

	n, err := uc.writeTile(ctx, key)
	uc.record(ctx, key, n, time.Since(start), err)
	if err != nil {
		if rmErr := uc.store.Remove(key); rmErr != nil {
			uc.logger.Error("failed to remove tile after failed fetch", "tile", key, "error", rmErr)
		}
		uc.logger.Warn("tile fetch failed", "tile", key, "error", err)
		return fmt.Errorf("%w: %w", ErrUpstreamFetch, err)
	}

	uc.logger.Info("tile fetched", "tile", key, "bytes", n)
	return nil
}

func (uc *TileCacheUseCase) writeTile(ctx context.Context, key entity.TileKey) (int64, error) {
	w, err := uc.store.Create(key)
	if err != nil {
		return 0, err
	}

	n, err := uc.fetcher.Fetch(ctx, key, w)
	if err != nil {
		if abortErr := w.Abort(); abortErr != nil {
			uc.logger.Error("failed to discard partial tile", "tile", key, "error", abortErr)
		}
		return n, err
	}

	if err := w.Commit(); err != nil {
		return n, fmt.Errorf("failed to store tile: %w", err)
	}
	return n, nil
}

func (uc *TileCacheUseCase) record(ctx context.Context, key entity.TileKey, n int64, d time.Duration, fetchErr error) {
	r := entity.FetchRecord{
		Key:       key,
		Status:    entity.FetchOK,
		Bytes:     n,
		Duration:  d,
		FetchedAt: uc.now(),
	}
	if fetchErr != nil {
		r.Status = entity.FetchFailed
		r.Error = fetchErr.Error()
	}

	if err := uc.ledger.Record(ctx, r); err != nil {
		uc.logger.Warn("failed to record fetch", "tile", key, "error", err)
	}
}
