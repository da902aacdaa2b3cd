// Package cache keeps the read-mostly instrument tree out of the database.
package cache

import (
	"context"
	"strconv"

	"evalsurvey/backend/models"
	"evalsurvey/backend/utils"

	"golang.org/x/sync/singleflight"
)

// Store is a keyed tree store with expiry handled by the implementation.
// Entries are written under the generation that was current when their load
// started; Get only returns entries of the current generation.
type Store interface {
	Generation(ctx context.Context) (uint64, error)
	Get(ctx context.Context, gen uint64, key string) ([]models.Domain, bool, error)
	// Set is a no-op in effect when gen is no longer current.
	Set(ctx context.Context, gen uint64, key string, tree []models.Domain) error
	// Clear starts a new generation, dropping every cached tree.
	Clear(ctx context.Context) error
}

type TreeCache struct {
	store Store
	log   *utils.Logger
	group singleflight.Group
}

func NewTreeCache(store Store, log *utils.Logger) *TreeCache {
	return &TreeCache{store: store, log: log.With("component", "tree_cache")}
}

// GetOrLoad returns the cached tree for key, calling load on a miss.
// Concurrent misses for the same key and generation share one load. Store
// failures are logged and fall through to an uncached load.
func (c *TreeCache) GetOrLoad(ctx context.Context, key string, load func(context.Context) ([]models.Domain, error)) ([]models.Domain, error) {
	gen, err := c.store.Generation(ctx)
	if err != nil {
		c.log.Warn("cache generation read failed", "key", key, "error", err)
		return load(ctx)
	}

	tree, ok, err := c.store.Get(ctx, gen, key)
	if err != nil {
		c.log.Warn("cache read failed", "key", key, "error", err)
	}
	if ok {
		return tree, nil
	}

	// A load started before an invalidation must not be joined by callers
	// that arrive after it.
	flight := strconv.FormatUint(gen, 10) + ":" + key
	v, err, _ := c.group.Do(flight, func() (interface{}, error) {
		tree, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, gen, key, tree); err != nil {
			c.log.Warn("cache write failed", "key", key, "error", err)
		}
		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Domain), nil
}

// Invalidate is called after any write to the instrument tree.
func (c *TreeCache) Invalidate(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn("cache invalidation failed", "error", err)
	}
}
