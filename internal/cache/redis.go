package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint for SCAN and the DEL batch size used by DeletePrefix.
const scanBatch = 200

// RedisConfig configures the Redis substrate.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore is a Store backed by Redis. One instance is shared by every
// component of a process.
type RedisStore struct {
	rdb *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates the client and verifies connectivity.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	s := &RedisStore{rdb: rdb}
	if err := s.Ping(ctx); err != nil {
		rdb.Close()
		return nil, err
	}
	slog.InfoContext(ctx, "Redis cache connected", "addr", cfg.Addr, "db", cfg.DB)
	return s, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return b, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %q: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del %v: %w", keys, err)
	}
	return nil
}

// DeletePrefix scans for matching keys and deletes them in batches. Keys
// written concurrently with the scan may survive; callers accept that.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	iter := s.rdb.Scan(ctx, 0, escapeGlob(prefix)+"*", scanBatch).Iterator()

	removed := 0
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.rdb.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis del batch: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan %q: %w", prefix, err)
	}
	if err := flush(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// escapeGlob escapes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
