package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/sambabib/dephealth/pkg/cache"
	"github.com/sambabib/dephealth/pkg/logger"
)

// CachedClient decorates a Client with the positive/negative TTL cache.
type CachedClient struct {
	inner Client
	store *cache.Store

	// Bypass skips cache reads for this run. Successful fetches still
	// write the positive cache and clear stale negative entries.
	Bypass bool
}

// NewCachedClient wraps inner with the given store.
func NewCachedClient(inner Client, store *cache.Store) *CachedClient {
	return &CachedClient{inner: inner, store: store}
}

// GetPackageInfo serves from cache when possible. A live negative entry
// short-circuits to ErrNotFound without touching the network.
func (c *CachedClient) GetPackageInfo(ctx context.Context, name string) (*PackageInfo, error) {
	if c.Bypass {
		c.store.RecordBypass()
	} else {
		if v, negative, ok := c.store.Get(name); ok {
			if negative {
				return nil, fmt.Errorf("%s: %w (cached)", name, ErrNotFound)
			}
			if info, ok := v.(*PackageInfo); ok {
				logger.Debugf("registry cache hit: %s", name)
				return info, nil
			}
		}
	}

	info, err := c.inner.GetPackageInfo(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.store.SetNegative(name)
		}
		return nil, err
	}

	// Set also replaces any stale negative entry under the same key, so a
	// bypassing fetch that succeeds clears an earlier "not found".
	c.store.Set(name, info)
	return info, nil
}

// GetVersionDeprecation is not cached: the notice is version-specific
// and only fetched for dependencies already flagged by other analyzers.
func (c *CachedClient) GetVersionDeprecation(ctx context.Context, name, version string) (string, error) {
	return c.inner.GetVersionDeprecation(ctx, name, version)
}

// Stats exposes the underlying store's run counters.
func (c *CachedClient) Stats() cache.Stats {
	return c.store.Stats()
}

var _ Client = (*CachedClient)(nil)
