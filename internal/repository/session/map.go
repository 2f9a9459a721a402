package session

import (
	"context"
	"sync"
	"time"

	"github.com/jaennil/tileproxy/internal/entity"
)

type mapEntry struct {
	session entity.ClientSession
	seen    time.Time
}

type TypedSyncMap struct {
	m sync.Map
}

func (c *TypedSyncMap) Load(k string) (mapEntry, bool) {
	v, exists := c.m.Load(k)
	if !exists {
		return mapEntry{}, false
	}
	return v.(mapEntry), exists
}

func (c *TypedSyncMap) Store(k string, v mapEntry) {
	c.m.Store(k, v)
}

func (c *TypedSyncMap) Range(f func(k string, v mapEntry) bool) {
	c.m.Range(func(k, v any) bool {
		return f(k.(string), v.(mapEntry))
	})
}

func (c *TypedSyncMap) Delete(k string) {
	c.m.Delete(k)
}

// MapStore is the in-process SessionStore. Sessions live until Sweep drops them.
type MapStore struct {
	m   *TypedSyncMap
	now func() time.Time
}

func NewMapStore() *MapStore {
	return &MapStore{
		m:   &TypedSyncMap{},
		now: time.Now,
	}
}

var _ SessionStore = (*MapStore)(nil)

func (s *MapStore) Load(_ context.Context, id string) (entity.ClientSession, bool, error) {
	e, ok := s.m.Load(id)
	return e.session, ok, nil
}

func (s *MapStore) Save(_ context.Context, id string, cs entity.ClientSession) error {
	s.m.Store(id, mapEntry{session: cs, seen: s.now()})
	return nil
}

func (s *MapStore) Count(_ context.Context) (int, error) {
	n := 0
	s.m.Range(func(string, mapEntry) bool {
		n++
		return true
	})
	return n, nil
}

// Sweep removes sessions that were not written for idleTTL and are not serving a ban.
// It returns the number of removed sessions.
func (s *MapStore) Sweep(idleTTL time.Duration) int {
	now := s.now()
	cutoff := now.Add(-idleTTL)

	removed := 0
	s.m.Range(func(k string, e mapEntry) bool {
		if e.seen.Before(cutoff) && e.session.State(now) != entity.SessionBanned {
			s.m.Delete(k)
			removed++
		}
		return true
	})
	return removed
}
