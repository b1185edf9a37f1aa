// Package views caches the aggregate read models that hang off the activity
// list: footprint summary, category breakdown, trend, and the regional
// comparison. The activity coordinator invalidates these on every successful
// mutation so dependent views never stay stale past the next read.
package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/verdantlabs/footprint/internal/api"
)

const (
	footprintStaleTime  = 2 * time.Minute
	comparisonStaleTime = 2 * time.Minute
	regionsStaleTime    = time.Hour

	footprintKeyPrefix  = "footprint/"
	comparisonKeyPrefix = "comparison/compare/"
	regionsKey          = "comparison/regions"
)

var (
	errMissingViewBackend  = errors.New("views: backend client is required")
	errMissingViewIdentity = errors.New("views: identity context is required")
)

// Backend is the aggregate read surface. Satisfied by *api.Client.
type Backend interface {
	FootprintSummary(ctx context.Context, period string) (api.FootprintSummary, error)
	FootprintBreakdown(ctx context.Context, period string) (api.FootprintBreakdown, error)
	FootprintTrend(ctx context.Context, period string) (api.FootprintTrend, error)
	Regions(ctx context.Context) ([]api.Region, error)
	CompareToRegion(ctx context.Context, regionCode, period string) (api.Comparison, error)
}

// IdentityContext scopes per-identity views. Satisfied by *identity.Manager.
type IdentityContext interface {
	ContextKey() string
}

// CacheConfig bundles dependencies for the view cache.
type CacheConfig struct {
	Backend  Backend
	Identity IdentityContext
	Logger   *zap.Logger
	Clock    func() time.Time
}

type cachedEntry struct {
	value     any
	fetchedAt time.Time
}

// Cache is a read-through TTL cache keyed by (view, period, identity).
type Cache struct {
	mu      sync.Mutex
	entries map[string]cachedEntry

	backend  Backend
	identity IdentityContext
	logger   *zap.Logger
	clock    func() time.Time
}

// NewCache constructs a view cache with validated configuration.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.Backend == nil {
		return nil, errMissingViewBackend
	}
	if cfg.Identity == nil {
		return nil, errMissingViewIdentity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		entries:  make(map[string]cachedEntry),
		backend:  cfg.Backend,
		identity: cfg.Identity,
		logger:   logger,
		clock:    clock,
	}, nil
}

// Summary returns the footprint summary for the period.
func (c *Cache) Summary(ctx context.Context, period string) (api.FootprintSummary, error) {
	key := c.scopedKey(footprintKeyPrefix+"summary", period)
	value, err := c.readThrough(key, footprintStaleTime, func() (any, error) {
		return c.backend.FootprintSummary(ctx, period)
	})
	if err != nil {
		return api.FootprintSummary{}, err
	}
	return value.(api.FootprintSummary), nil
}

// Breakdown returns the per-category breakdown for the period.
func (c *Cache) Breakdown(ctx context.Context, period string) (api.FootprintBreakdown, error) {
	key := c.scopedKey(footprintKeyPrefix+"breakdown", period)
	value, err := c.readThrough(key, footprintStaleTime, func() (any, error) {
		return c.backend.FootprintBreakdown(ctx, period)
	})
	if err != nil {
		return api.FootprintBreakdown{}, err
	}
	return value.(api.FootprintBreakdown), nil
}

// Trend returns the emissions series for the period.
func (c *Cache) Trend(ctx context.Context, period string) (api.FootprintTrend, error) {
	key := c.scopedKey(footprintKeyPrefix+"trend", period)
	value, err := c.readThrough(key, footprintStaleTime, func() (any, error) {
		return c.backend.FootprintTrend(ctx, period)
	})
	if err != nil {
		return api.FootprintTrend{}, err
	}
	return value.(api.FootprintTrend), nil
}

// Regions returns the comparison region catalog. Regions rarely change, so
// the entry is shared across identities and held for an hour.
func (c *Cache) Regions(ctx context.Context) ([]api.Region, error) {
	value, err := c.readThrough(regionsKey, regionsStaleTime, func() (any, error) {
		return c.backend.Regions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.([]api.Region), nil
}

// Compare returns the regional comparison for the period.
func (c *Cache) Compare(ctx context.Context, regionCode, period string) (api.Comparison, error) {
	key := c.scopedKey(comparisonKeyPrefix+regionCode, period)
	value, err := c.readThrough(key, comparisonStaleTime, func() (any, error) {
		return c.backend.CompareToRegion(ctx, regionCode, period)
	})
	if err != nil {
		return api.Comparison{}, err
	}
	return value.(api.Comparison), nil
}

// InvalidateFootprint drops all cached footprint views across identities.
func (c *Cache) InvalidateFootprint() {
	c.invalidatePrefix(footprintKeyPrefix)
}

// InvalidateComparison drops cached comparisons; the region catalog survives.
func (c *Cache) InvalidateComparison() {
	c.invalidatePrefix(comparisonKeyPrefix)
}

func (c *Cache) scopedKey(view, period string) string {
	return fmt.Sprintf("%s/%s/%s", view, period, c.identity.ContextKey())
}

func (c *Cache) readThrough(key string, staleTime time.Duration, fetch func() (any, error)) (any, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.clock().Sub(entry.fetchedAt) < staleTime {
		return entry.value, nil
	}

	value, err := fetch()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cachedEntry{value: value, fetchedAt: c.clock()}
	c.mu.Unlock()
	return value, nil
}

func (c *Cache) invalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}
