package fetchlog

import (
	"context"
	"time"

	"github.com/jaennil/tileproxy/internal/entity"
)

// FetchLog is an append-only ledger of upstream fetch attempts.
type FetchLog interface {
	Record(ctx context.Context, r entity.FetchRecord) error
	Stats(ctx context.Context) (entity.FetchStats, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

type NoopLog struct{}

func NewNoopLog() *NoopLog {
	return &NoopLog{}
}

var _ FetchLog = (*NoopLog)(nil)

func (NoopLog) Record(context.Context, entity.FetchRecord) error { return nil }

func (NoopLog) Stats(context.Context) (entity.FetchStats, error) { return entity.FetchStats{}, nil }

func (NoopLog) Prune(context.Context, time.Time) (int64, error) { return 0, nil }
