package domain

import (
	"sort"
	"strings"
	"sync"
)

// TradingPair describes a tradable market and its precision rules.
type TradingPair struct {
	Symbol         string
	Base           string
	Quote          string
	BasePrecision  int32
	QuotePrecision int32
}

// NewPair builds a pair with the symbol derived from base and quote.
func NewPair(base, quote string, basePrec, quotePrec int32) TradingPair {
	base = strings.ToUpper(base)
	quote = strings.ToUpper(quote)
	return TradingPair{
		Symbol:         base + quote,
		Base:           base,
		Quote:          quote,
		BasePrecision:  basePrec,
		QuotePrecision: quotePrec,
	}
}

// PairRegistry tracks the configured trading pairs in a thread-safe manner.
type PairRegistry struct {
	mu    sync.RWMutex
	pairs map[string]TradingPair
}

// NewPairRegistry creates a registry holding the given pairs.
func NewPairRegistry(pairs ...TradingPair) *PairRegistry {
	r := &PairRegistry{
		pairs: make(map[string]TradingPair, len(pairs)),
	}
	for _, p := range pairs {
		r.pairs[p.Symbol] = p
	}
	return r
}

// Register adds or replaces a pair. Safe for concurrent use.
func (r *PairRegistry) Register(p TradingPair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs[p.Symbol] = p
}

// Get returns the pair for symbol, case-insensitively.
func (r *PairRegistry) Get(symbol string) (TradingPair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[strings.ToUpper(symbol)]
	return p, ok
}

// Exists returns true if the symbol has been registered.
func (r *PairRegistry) Exists(symbol string) bool {
	_, ok := r.Get(symbol)
	return ok
}

// All returns every pair sorted by symbol.
func (r *PairRegistry) All() []TradingPair {
	r.mu.RLock()
	out := make([]TradingPair, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols returns every registered symbol sorted.
func (r *PairRegistry) Symbols() []string {
	pairs := r.All()
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.Symbol
	}
	return out
}
