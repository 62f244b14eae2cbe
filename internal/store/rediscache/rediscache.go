// Package rediscache wraps any store.Store with a go-redis/redis/v8
// cache in front of the two hot, read-heavy aggregation queries
// SPEC_FULL.md calls out: the BV distributor's royalty-eligible-user
// set (spec.md §4.G) and the fund engine's rank-eligible user set
// (spec.md §4.H). Grounded in the pack's redis client idiom
// (Sergey-Bar-Alfred/services/gateway/redisclient/redis.go), adapted
// to the v8 client already in this module's go.mod. The cache is never
// consulted for correctness-critical reads (wallet balances, PV
// entries) — only for these two list-of-IDs queries, and it is
// invalidated eagerly on every rank change.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

const (
	silverHoldersKey = "mlm:cache:silver_holders"
	minRankKeyPrefix = "mlm:cache:min_rank:"
	defaultTTL       = 30 * time.Second
)

// Store decorates a store.Store with Redis-backed caching for the
// royalty and fund eligibility lookups.
type Store struct {
	store.Store
	rdb *redis.Client
	ttl time.Duration
}

// New connects to addr and wraps inner. The connection is verified
// with a Ping; a failure is returned rather than silently degrading,
// since a broken cache layer should not be mistaken for a working one.
func New(ctx context.Context, inner store.Store, addr string, ttl time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{Store: inner, rdb: rdb, ttl: ttl}, nil
}

// Close releases the Redis connection. The wrapped store is left open
// for the caller to close separately.
func (s *Store) Close() error { return s.rdb.Close() }

// ListActiveSilverHolders serves from cache when warm; a miss falls
// through to the wrapped store and repopulates the cache.
func (s *Store) ListActiveSilverHolders(ctx context.Context) ([]*domain.User, error) {
	if cached, ok := s.getUserList(ctx, silverHoldersKey); ok {
		return cached, nil
	}
	users, err := s.Store.ListActiveSilverHolders(ctx)
	if err != nil {
		return nil, err
	}
	s.setUserList(ctx, silverHoldersKey, users)
	return users, nil
}

// ListByMinRank serves from cache when warm; a miss falls through to
// the wrapped store and repopulates the cache.
func (s *Store) ListByMinRank(ctx context.Context, minRankIndex int) ([]*domain.User, error) {
	key := fmt.Sprintf("%s%d", minRankKeyPrefix, minRankIndex)
	if cached, ok := s.getUserList(ctx, key); ok {
		return cached, nil
	}
	users, err := s.Store.ListByMinRank(ctx, minRankIndex)
	if err != nil {
		return nil, err
	}
	s.setUserList(ctx, key, users)
	return users, nil
}

// InvalidateRankCaches must be called by the rank engine whenever a
// user's rank index changes (spec.md §4.F onPairPaid): a stale
// eligible-user list would under- or over-pay royalty/fund
// distributions.
func (s *Store) InvalidateRankCaches(ctx context.Context) error {
	keys, err := s.rdb.Keys(ctx, minRankKeyPrefix+"*").Result()
	if err != nil {
		return err
	}
	keys = append(keys, silverHoldersKey)
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *Store) getUserList(ctx context.Context, key string) ([]*domain.User, bool) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var users []*domain.User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, false
	}
	return users, true
}

func (s *Store) setUserList(ctx context.Context, key string, users []*domain.User) {
	raw, err := json.Marshal(users)
	if err != nil {
		return
	}
	_ = s.rdb.Set(ctx, key, raw, s.ttl).Err()
}
