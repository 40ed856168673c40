package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-webpush-service/pkg/push"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or an error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the keys.
	Del(ctx context.Context, keys ...string) error
}

// CachedStore is a Decorator that adds read-aside caching to any push.Store.
//
// Subscription lists are cached per user. Because DeleteByID only knows the
// subscription id, every cached list also records an owner key per
// subscription so the right list can be invalidated on delete.
type CachedStore struct {
	realStore push.Store
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

// NewCachedStore creates the decorator.
func NewCachedStore(realStore push.Store, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedStore {
	return &CachedStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedStore"),
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedStore) ListByUser(ctx context.Context, userID string) ([]push.Subscription, error) {
	key := listKey(userID)

	var cached []push.Subscription
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		if cached == nil {
			cached = make([]push.Subscription, 0)
		}
		return cached, nil
	}

	fresh, err := s.realStore.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization; if Redis is down we serve from the store.
	for _, sub := range fresh {
		_ = s.cache.Set(ctx, ownerKey(sub.ID), userID, s.ttl)
	}
	_ = s.cache.Set(ctx, key, fresh, s.ttl)

	return fresh, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---
// Once the real store has accepted a write the call succeeds; a failed
// invalidation only leaves a stale list until the TTL expires.

func (s *CachedStore) Register(ctx context.Context, sub push.Subscription) error {
	if err := s.realStore.Register(ctx, sub); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, listKey(sub.UserID)); err != nil {
		s.logger.Warn("Cache invalidation failed", "user", sub.UserID, "err", err)
	}
	return nil
}

// DeleteByID must clear the owner's cached list, otherwise the next send
// would still see the purged subscription.
func (s *CachedStore) DeleteByID(ctx context.Context, id string) error {
	if err := s.realStore.DeleteByID(ctx, id); err != nil {
		return err
	}

	var owner string
	if err := s.cache.Get(ctx, ownerKey(id), &owner); err != nil {
		// Nothing cached for this subscription.
		return nil
	}
	if err := s.cache.Del(ctx, listKey(owner), ownerKey(id)); err != nil {
		s.logger.Warn("Cache invalidation failed", "user", owner, "subscription_id", id, "err", err)
	}
	return nil
}

func listKey(userID string) string {
	return fmt.Sprintf("push:subs:%s", userID)
}

func ownerKey(id string) string {
	return fmt.Sprintf("push:owner:%s", id)
}
