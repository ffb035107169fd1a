package marketdata

import (
	"context"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cached is a read-through TTL cache over another Oracle. Quotes are
// served from cache within the TTL so a burst of trades on one symbol
// hits the provider once.
type Cached struct {
	next  Oracle
	cache *ristretto.Cache
	ttl   time.Duration
}

var _ Oracle = (*Cached)(nil)

// NewCached wraps an Oracle with a quote cache.
func NewCached(next Oracle, ttl time.Duration) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache, ttl: ttl}, nil
}

// LatestClose returns a cached quote when fresh, otherwise asks the
// underlying oracle. Failures are not cached.
func (c *Cached) LatestClose(ctx context.Context, symbol string) (*Quote, error) {
	key := strings.ToUpper(symbol)

	if v, ok := c.cache.Get(key); ok {
		return v.(*Quote), nil
	}

	quote, err := c.next.LatestClose(ctx, key)
	if err != nil {
		return nil, err
	}

	c.cache.SetWithTTL(key, quote, 1, c.ttl)
	// ristretto buffers writes; wait so an immediate re-read hits.
	c.cache.Wait()
	return quote, nil
}
