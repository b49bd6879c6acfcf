package rates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/pharma-quote/internal/currency"
	"github.com/noah-isme/pharma-quote/internal/obs"
)

// DefaultRefreshInterval is how often the cache re-resolves rates.
const DefaultRefreshInterval = 120 * time.Second

// ErrAlreadyStarted is returned by Start when the refresh loop is running.
var ErrAlreadyStarted = errors.New("rates: cache already started")

// TableResolver produces a complete rate table. Implementations must not fail.
type TableResolver interface {
	Resolve(ctx context.Context) currency.Table
}

// Cache holds the most recently resolved table and owns the periodic refresh.
type Cache struct {
	resolver TableResolver
	interval time.Duration
	logger   zerolog.Logger

	current  atomic.Pointer[currency.Table]
	inFlight atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCache builds a cache seeded with the static fallback table so readers
// always see a complete table.
func NewCache(resolver TableResolver, interval time.Duration, logger zerolog.Logger) *Cache {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	c := &Cache{resolver: resolver, interval: interval, logger: logger}
	seed := currency.FallbackTable(time.Time{})
	c.current.Store(&seed)
	return c
}

// Start refreshes immediately in the background and then on every interval
// until ctx is cancelled or Stop is called.
func (c *Cache) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(loopCtx, c.done)
	return nil
}

// Stop tears down the refresh loop and waits for it to exit. A refresh already
// in flight on the loop is cancelled through its context.
func (c *Cache) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Cache) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	c.RefreshNow(ctx)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RefreshNow(ctx)
		}
	}
}

// RefreshNow resolves a new table and swaps it in whole. Concurrent refreshes
// are independent; whichever completes last is kept. A resolution whose
// context was cancelled is discarded so shutdown never replaces a live table
// with fallback defaults.
func (c *Cache) RefreshNow(ctx context.Context) currency.Table {
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	table := c.resolver.Resolve(ctx)
	if ctx.Err() != nil {
		c.logger.Debug().Err(ctx.Err()).Msg("rates_refresh_discarded")
		return c.Current()
	}
	c.current.Store(&table)
	recordRefresh(table)
	c.logger.Info().
		Bool("fallback", table.IsFallback).
		Str("source", table.Source).
		Time("resolved_at", table.ResolvedAt).
		Msg("rates_refreshed")
	return table
}

// Current returns the last stored table.
func (c *Cache) Current() currency.Table {
	return *c.current.Load()
}

// Loading reports whether a refresh is in flight.
func (c *Cache) Loading() bool {
	return c.inFlight.Load() > 0
}

func recordRefresh(table currency.Table) {
	result := "live"
	fallback := 0.0
	if table.IsFallback {
		result = "fallback"
		fallback = 1
	}
	if obs.RateRefreshTotal != nil {
		obs.RateRefreshTotal.WithLabelValues(result).Inc()
	}
	if obs.RateTableFallback != nil {
		obs.RateTableFallback.Set(fallback)
	}
	if obs.RateTableResolvedAt != nil {
		obs.RateTableResolvedAt.Set(float64(table.ResolvedAt.Unix()))
	}
}
