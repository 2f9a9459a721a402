package session

import (
	"context"

	"github.com/jaennil/tileproxy/internal/entity"
)

// SessionStore keeps one ClientSession per client identity.
// Implementations serialize single calls only; a Load/Save pair is not atomic.
type SessionStore interface {
	Load(ctx context.Context, id string) (entity.ClientSession, bool, error)
	Save(ctx context.Context, id string, s entity.ClientSession) error
	Count(ctx context.Context) (int, error)
}
