package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Store keeps a sliding window of request timestamps per key. Hit drops
// timestamps at or before now-window, then records now unless limit
// timestamps are already retained. It returns the retained count after the
// call and the oldest retained timestamp.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (count int, oldest time.Time, allowed bool, err error)
}

const DefaultMaxKeys = 500

type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, []time.Time]
}

// NewMemoryStore holds at most maxKeys windows; idle keys are evicted after
// ttl, which should be the longest policy window.
func NewMemoryStore(maxKeys int, ttl time.Duration) *MemoryStore {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, []time.Time](maxKeys, nil, ttl),
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, window time.Duration, limit int) (int, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamps, _ := s.cache.Get(key)

	cutoff := now.Add(-window)
	kept := stamps[:0:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	allowed := len(kept) < limit
	if allowed {
		kept = append(kept, now)
	}
	if len(kept) == 0 {
		return 0, time.Time{}, false, nil
	}
	s.cache.Add(key, kept)

	return len(kept), kept[0], allowed, nil
}

func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// RedisStore shares windows between processes using one sorted set per key,
// scored by microseconds since the epoch.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (int, time.Time, bool, error) {
	member := strconv.FormatInt(now.UnixMicro(), 10) + ":" + uuid.NewString()
	cutoff := strconv.FormatInt(now.Add(-window).UnixMicro(), 10)

	var (
		card   *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: member})
		card = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("failed to record request: %w", err)
	}

	count := int(card.Val())
	first := now
	if zs := oldest.Val(); len(zs) > 0 {
		first = time.UnixMicro(int64(zs[0].Score))
	}

	if count <= limit {
		return count, first, true, nil
	}

	// over the limit: the request is not retained
	if err := s.client.ZRem(ctx, key, member).Err(); err != nil {
		return 0, time.Time{}, false, fmt.Errorf("failed to discard rejected request: %w", err)
	}
	return count - 1, first, false, nil
}
