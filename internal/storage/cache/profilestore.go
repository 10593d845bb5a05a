// Package cache adds a read-aside caching layer over the profile store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-chat-dispatch-service/pkg/fanout"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or an error when the key is not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// backingStore is everything the decorator delegates to.
type backingStore interface {
	fanout.ProfileStore
	fanout.TokenRegistry
}

// CachedProfileStore is a decorator that adds read-aside caching to any
// profile store, with invalidate-on-write so prunes and unregisters take
// effect immediately.
type CachedProfileStore struct {
	realStore backingStore
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedProfileStore(realStore backingStore, cache CacheClient, ttl time.Duration) *CachedProfileStore {
	return &CachedProfileStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (read-aside) ---

func (s *CachedProfileStore) Fetch(ctx context.Context, userID string) (*fanout.UserTokenRecord, error) {
	key := s.cacheKey(userID)

	var cached fanout.UserTokenRecord
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	record, err := s.realStore.Fetch(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Absent profiles are not cached: a user who registers a first token
	// must become visible on the next fetch. Cache population is an
	// optimization, so a failed Set is ignored and we serve from the DB.
	if record != nil {
		_ = s.cache.Set(ctx, key, record, s.ttl)
	}
	return record, nil
}

// --- WRITE PATHS (invalidate-on-write) ---

// RemoveTokens prunes from the source of truth, then drops the cached
// record so a stale token set cannot be re-dispatched from cache.
func (s *CachedProfileStore) RemoveTokens(ctx context.Context, userID string, tokens []string) error {
	if err := s.realStore.RemoveTokens(ctx, userID, tokens); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

func (s *CachedProfileStore) RegisterToken(ctx context.Context, userID string, token string) error {
	if err := s.realStore.RegisterToken(ctx, userID, token); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// UnregisterToken must clear the cache even though the DB write succeeded,
// so notifications stop immediately for the removed device.
func (s *CachedProfileStore) UnregisterToken(ctx context.Context, userID string, token string) error {
	if err := s.realStore.UnregisterToken(ctx, userID, token); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// --- Helpers ---

func (s *CachedProfileStore) invalidate(ctx context.Context, userID string) error {
	return s.cache.Del(ctx, s.cacheKey(userID))
}

func (s *CachedProfileStore) cacheKey(userID string) string {
	return fmt.Sprintf("dispatch:tokens:%s", userID)
}
