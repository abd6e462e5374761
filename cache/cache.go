package cache

import (
	"context"
	"sync"
	"time"

	"github.com/DomeLiquid/riskcore/core"
	"github.com/facebookgo/clock"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultFresh          = 10 * time.Second
	DefaultStale          = 15 * time.Second
	DefaultSize           = 256
	DefaultRefreshTimeout = 30 * time.Second
)

type (
	Prices = map[string]*core.OraclePrice

	// ComputeFunc produces the value stored under a key.
	ComputeFunc func(ctx context.Context) (Prices, error)

	entry struct {
		prices   Prices
		storedAt time.Time
	}

	// PriceCache serves resolved price batches, fresh for a while and stale
	// while a background refresh runs.
	PriceCache struct {
		entries *lru.Cache
		clk     clock.Clock
		log     core.Log

		fresh          time.Duration
		stale          time.Duration
		refreshTimeout time.Duration

		group      singleflight.Group
		mu         sync.Mutex
		refreshing map[string]struct{}
		wg         sync.WaitGroup
	}

	OptionFunc func(*PriceCache)
)

func WithClock(clk clock.Clock) OptionFunc {
	return func(c *PriceCache) {
		c.clk = clk
	}
}

func WithLogger(log core.Log) OptionFunc {
	return func(c *PriceCache) {
		c.log = log
	}
}

func WithTTL(fresh, stale time.Duration) OptionFunc {
	return func(c *PriceCache) {
		c.fresh = fresh
		c.stale = stale
	}
}

func WithRefreshTimeout(d time.Duration) OptionFunc {
	return func(c *PriceCache) {
		c.refreshTimeout = d
	}
}

func New(size int, opts ...OptionFunc) (*PriceCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "new lru")
	}

	c := &PriceCache{
		entries:        entries,
		clk:            clock.New(),
		log:            core.NopLog(),
		fresh:          DefaultFresh,
		stale:          DefaultStale,
		refreshTimeout: DefaultRefreshTimeout,
		refreshing:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *PriceCache) lookup(key string) (*entry, time.Duration, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, 0, false
	}
	e := v.(*entry)
	return e, c.clk.Now().Sub(e.storedAt), true
}

// GetOrCompute returns a fresh entry, or a stale one while refreshing it in the
// background. Entries older than fresh + stale are recomputed inline.
func (c *PriceCache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (Prices, error) {
	if e, age, ok := c.lookup(key); ok {
		if age <= c.fresh {
			return e.prices, nil
		}
		if age <= c.fresh+c.stale {
			c.refresh(key, compute)
			return e.prices, nil
		}
	}
	return c.load(ctx, key, compute)
}

// GetFresh never serves a stale entry.
func (c *PriceCache) GetFresh(ctx context.Context, key string, compute ComputeFunc) (Prices, error) {
	if e, age, ok := c.lookup(key); ok && age <= c.fresh {
		return e.prices, nil
	}
	return c.load(ctx, key, compute)
}

func (c *PriceCache) load(ctx context.Context, key string, compute ComputeFunc) (Prices, error) {
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		prices, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, &entry{prices: prices, storedAt: c.clk.Now()})
		return prices, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Prices), nil
}

// refresh starts at most one background recompute per key.
func (c *PriceCache) refresh(key string, compute ComputeFunc) {
	c.mu.Lock()
	if _, ok := c.refreshing[key]; ok {
		c.mu.Unlock()
		return
	}
	c.refreshing[key] = struct{}{}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.refreshing, key)
			c.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
		defer cancel()

		if _, err := c.load(ctx, key, compute); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("background price refresh failed")
		}
	}()
}

// Wait blocks until background refreshes finish.
func (c *PriceCache) Wait() {
	c.wg.Wait()
}

func (c *PriceCache) Len() int {
	return c.entries.Len()
}

func (c *PriceCache) Purge() {
	c.entries.Purge()
}
