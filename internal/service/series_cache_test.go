package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/valuation-engine/internal/ledger"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
)

func testValuation(accountID string, equityIDs ...string) *valuation {
	v := &valuation{
		series:   &model.AccountSeries{AccountID: accountID},
		holdings: map[string]*ledger.Holding{},
	}
	for _, id := range equityIDs {
		v.holdings[id] = &ledger.Holding{}
	}
	return v
}

// TestSeriesCache_Load tests that a computed series is reused.
//
// WHY: Replaying a long log is the expensive part of every read. A second read of the same account
// and month must not replay it again.
func TestSeriesCache_Load(t *testing.T) {
	// Setup
	c := NewSeriesCache()
	asOf := month.MustParse("2024-03-01")

	var calls int
	fn := func() (*valuation, error) {
		calls++
		return testValuation("a"), nil
	}

	// Execute
	first, err := c.load("a", asOf, fn)

	// Assert
	require.NoError(t, err)
	second, err := c.load("a", asOf, fn)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)

	_, err = c.load("a", asOf.Next(), fn)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "as-of months are cached separately")
	assert.Equal(t, 2, c.Len())
}

// TestSeriesCache_ErrorsAreNotCached tests that a failed computation is retried.
//
// WHY: A missing price or a broken log is usually fixed by the next write. Caching the failure
// would hide the fix.
func TestSeriesCache_ErrorsAreNotCached(t *testing.T) {
	// Setup
	c := NewSeriesCache()
	asOf := month.MustParse("2024-03-01")
	boom := errors.New("boom")

	// Execute
	_, err := c.load("a", asOf, func() (*valuation, error) { return nil, boom })

	// Assert
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	v, err := c.load("a", asOf, func() (*valuation, error) { return testValuation("a"), nil })
	require.NoError(t, err)
	assert.NotNil(t, v)
}

// TestSeriesCache_ConcurrentMissesComputeOnce tests simultaneous misses for one key.
//
// WHY: A portfolio read asks for every member at once, and the dashboard often asks twice. Only one
// replay per account must run.
func TestSeriesCache_ConcurrentMissesComputeOnce(t *testing.T) {
	// Setup
	c := NewSeriesCache()
	asOf := month.MustParse("2024-03-01")

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func() (*valuation, error) {
		calls.Add(1)
		<-release
		return testValuation("a"), nil
	}

	// Execute
	var wg sync.WaitGroup
	results := make([]*valuation, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.load("a", asOf, fn)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	close(release)
	wg.Wait()

	// Assert
	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Same(t, results[0], v)
	}
}

// TestSeriesCache_InvalidationDuringCompute tests that a computation overtaken by a write is not
// stored.
//
// WHY: The computation may have read the log before the write landed. Storing it would serve the
// stale series until the next write.
func TestSeriesCache_InvalidationDuringCompute(t *testing.T) {
	// Setup
	c := NewSeriesCache()
	asOf := month.MustParse("2024-03-01")

	// Execute
	v, err := c.load("a", asOf, func() (*valuation, error) {
		c.InvalidateAccount("a")
		return testValuation("a"), nil
	})

	// Assert
	require.NoError(t, err)
	assert.NotNil(t, v, "the caller still gets its result")
	assert.Zero(t, c.Len())
}

// TestSeriesCache_Invalidate tests dropping cached series.
//
// WHY: A price write only affects accounts holding that equity. Unrelated accounts must keep their
// cached series.
func TestSeriesCache_Invalidate(t *testing.T) {
	// Setup
	asOf := month.MustParse("2024-03-01")
	fill := func() *SeriesCache {
		c := NewSeriesCache()
		for _, v := range []*valuation{
			testValuation("a", "eq-1"),
			testValuation("b", "eq-1", "eq-2"),
			testValuation("c"),
		} {
			_, err := c.load(v.series.AccountID, asOf, func() (*valuation, error) { return v, nil })
			require.NoError(t, err)
		}
		require.Equal(t, 3, c.Len())
		return c
	}

	t.Run("accounts", func(t *testing.T) {
		// Execute
		c := fill()
		c.InvalidateAccount("a", "c")

		// Assert
		assert.Equal(t, 1, c.Len())
		_, _, ok := c.lookup(cacheKey{accountID: "b", asOf: asOf})
		assert.True(t, ok)
	})

	t.Run("equity", func(t *testing.T) {
		// Execute
		c := fill()
		c.InvalidateEquity("eq-2")

		// Assert
		assert.Equal(t, 2, c.Len())
		c.InvalidateEquity("eq-1")
		assert.Equal(t, 1, c.Len())
		_, _, ok := c.lookup(cacheKey{accountID: "c", asOf: asOf})
		assert.True(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		// Execute
		c := fill()
		c.Clear()

		// Assert
		assert.Zero(t, c.Len())
	})
}
