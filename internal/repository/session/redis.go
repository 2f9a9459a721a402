package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jaennil/tileproxy/internal/entity"
	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL bounds how long an idle session is kept.
	TTL time.Duration
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisStore(client, cfg.Prefix, cfg.TTL), nil
}

func newRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "tileproxy:session:"
	}
	if ttl == 0 {
		ttl = 12 * time.Hour
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

var _ SessionStore = (*RedisStore)(nil)

func (s *RedisStore) keyFor(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Load(ctx context.Context, id string) (entity.ClientSession, bool, error) {
	data, err := s.client.Get(ctx, s.keyFor(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entity.ClientSession{}, false, nil
		}
		return entity.ClientSession{}, false, fmt.Errorf("redis get error: %w", err)
	}

	var cs entity.ClientSession
	if err := json.Unmarshal(data, &cs); err != nil {
		return entity.ClientSession{}, false, fmt.Errorf("failed to decode session: %w", err)
	}
	return cs, true, nil
}

// Save writes the session with the store TTL, extended so that an active ban never expires early.
func (s *RedisStore) Save(ctx context.Context, id string, cs entity.ClientSession) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ttl := s.ttl
	if remaining := time.Until(cs.BannedUntil); remaining > ttl {
		ttl = remaining
	}

	if err := s.client.Set(ctx, s.keyFor(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan error: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
