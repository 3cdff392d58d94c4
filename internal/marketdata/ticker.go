package marketdata

import (
	"sort"
	"strings"
	"sync"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/shopspring/decimal"
)

// TickerCache holds the latest ticker per symbol.
type TickerCache struct {
	mu      sync.RWMutex
	tickers map[string]domain.Ticker
}

// NewTickerCache creates an empty cache.
func NewTickerCache() *TickerCache {
	return &TickerCache{
		tickers: make(map[string]domain.Ticker),
	}
}

// Set stores t, replacing any previous ticker for the symbol.
func (c *TickerCache) Set(t domain.Ticker) {
	t.Symbol = strings.ToUpper(t.Symbol)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickers[t.Symbol] = t
}

// SetAll stores every ticker in one critical section.
func (c *TickerCache) SetAll(ts []domain.Ticker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range ts {
		t.Symbol = strings.ToUpper(t.Symbol)
		c.tickers[t.Symbol] = t
	}
}

// Get returns the ticker for symbol.
func (c *TickerCache) Get(symbol string) (domain.Ticker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tickers[strings.ToUpper(symbol)]
	return t, ok
}

// All returns every ticker sorted by symbol.
func (c *TickerCache) All() []domain.Ticker {
	c.mu.RLock()
	out := make([]domain.Ticker, 0, len(c.tickers))
	for _, t := range c.tickers {
		out = append(out, t)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Prices returns the last price of every symbol with a positive price.
func (c *TickerCache) Prices() map[string]decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(c.tickers))
	for sym, t := range c.tickers {
		if t.LastPrice.IsPositive() {
			out[sym] = t.LastPrice
		}
	}
	return out
}
