package service

import (
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ndewijer/valuation-engine/internal/ledger"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
)

// valuation is the computed state of one account up to an as-of month. Values handed out by the
// cache are shared and must not be modified.
type valuation struct {
	series   *model.AccountSeries
	holdings map[string]*ledger.Holding
}

type cacheKey struct {
	accountID string
	asOf      month.Month
}

// SeriesCache keeps computed account valuations keyed by account and as-of month. Entries never
// expire; they are dropped when a write touches the account or one of its equities. Concurrent
// misses for the same key share a single computation.
type SeriesCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*valuation
	// generation changes on every invalidation. A computation that started before an
	// invalidation is returned to its callers but not stored.
	generation uint64
	group      singleflight.Group
}

// NewSeriesCache creates an empty cache.
func NewSeriesCache() *SeriesCache {
	return &SeriesCache{entries: make(map[cacheKey]*valuation)}
}

func (c *SeriesCache) lookup(k cacheKey) (*valuation, uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[k]
	return v, c.generation, ok
}

// load returns the cached valuation for the key or computes it with fn.
func (c *SeriesCache) load(accountID string, asOf month.Month, fn func() (*valuation, error)) (*valuation, error) {
	k := cacheKey{accountID: accountID, asOf: asOf}
	if v, _, ok := c.lookup(k); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(accountID+"|"+asOf.String(), func() (any, error) {
		v, gen, ok := c.lookup(k)
		if ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.generation == gen {
			c.entries[k] = v
		}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*valuation), nil
}

// InvalidateAccount drops every cached valuation of the accounts.
func (c *SeriesCache) InvalidateAccount(accountIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	for k := range c.entries {
		if slices.Contains(accountIDs, k.accountID) {
			delete(c.entries, k)
		}
	}
}

// InvalidateEquity drops every cached valuation that depends on the equity.
func (c *SeriesCache) InvalidateEquity(equityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	for k, v := range c.entries {
		if _, ok := v.holdings[equityID]; ok {
			delete(c.entries, k)
		}
	}
}

// Clear drops everything.
func (c *SeriesCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	clear(c.entries)
}

// Len returns the number of cached valuations.
func (c *SeriesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
