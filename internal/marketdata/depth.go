package marketdata

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/shopspring/decimal"
)

// DepthBook mirrors one symbol's external order book. Levels are keyed by
// the canonical string form of their price.
type DepthBook struct {
	mu           sync.RWMutex
	symbol       string
	bids         map[string]domain.PriceAmount
	asks         map[string]domain.PriceAmount
	lastUpdateID int64
	updatedAt    time.Time
	synced       bool
	stale        bool
}

// NewDepthBook creates an empty, unsynced book.
func NewDepthBook(symbol string) *DepthBook {
	return &DepthBook{
		symbol: symbol,
		bids:   make(map[string]domain.PriceAmount),
		asks:   make(map[string]domain.PriceAmount),
	}
}

// ApplySnapshot replaces both sides wholesale and clears staleness.
// Levels with a non-positive amount are dropped.
func (b *DepthBook) ApplySnapshot(snap domain.DepthSnapshot, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = buildSide(snap.Bids)
	b.asks = buildSide(snap.Asks)
	b.lastUpdateID = snap.LastUpdateID
	b.updatedAt = at
	b.synced = true
	b.stale = false
}

func buildSide(levels []domain.PriceAmount) map[string]domain.PriceAmount {
	side := make(map[string]domain.PriceAmount, len(levels))
	for _, l := range levels {
		if !l.Amount.IsPositive() || !l.Price.IsPositive() {
			continue
		}
		side[l.Price.String()] = l
	}
	return side
}

// ApplyDelta applies an incremental update. Deltas already covered by the
// book are ignored. A delta arriving before any snapshot, or one that
// skips update ids, marks the book stale and returns domain.ErrStaleDepth;
// the book stays stale until the next snapshot.
func (b *DepthBook) ApplyDelta(d domain.DepthDelta, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.synced || b.stale {
		b.stale = true
		return domain.ErrStaleDepth
	}
	if d.FinalUpdateID <= b.lastUpdateID {
		return nil
	}
	if d.FirstUpdateID > b.lastUpdateID+1 {
		b.stale = true
		return domain.ErrStaleDepth
	}

	upsert(b.bids, d.Bids)
	upsert(b.asks, d.Asks)
	b.lastUpdateID = d.FinalUpdateID
	b.updatedAt = at
	return nil
}

func upsert(side map[string]domain.PriceAmount, levels []domain.PriceAmount) {
	for _, l := range levels {
		key := l.Price.String()
		if !l.Amount.IsPositive() {
			delete(side, key)
			continue
		}
		side[key] = l
	}
}

// View returns a sorted copy of one side, best level first.
func (b *DepthBook) View(side domain.BookSide) domain.DepthView {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return domain.DepthView{
		Levels:       sortedLevels(b.sideMap(side), side, 0),
		LastUpdateID: b.lastUpdateID,
		UpdatedAt:    b.updatedAt,
		Stale:        b.stale,
	}
}

// Levels returns up to n levels of each side, best first. n <= 0 returns
// every level.
func (b *DepthBook) Levels(n int) (bids, asks []domain.OrderBookLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return sortedLevels(b.bids, domain.BookSideBids, n), sortedLevels(b.asks, domain.BookSideAsks, n)
}

// Consume subtracts liquidity taken by local market orders. A level
// consumed entirely disappears until the feed restores it.
func (b *DepthBook) Consume(side domain.BookSide, fills []domain.Fill) {
	b.mu.Lock()
	defer b.mu.Unlock()

	levels := b.sideMap(side)
	for _, f := range fills {
		key := f.Price.String()
		l, ok := levels[key]
		if !ok {
			continue
		}
		l.Amount = l.Amount.Sub(f.Amount)
		if !l.Amount.IsPositive() {
			delete(levels, key)
			continue
		}
		levels[key] = l
	}
}

func (b *DepthBook) sideMap(side domain.BookSide) map[string]domain.PriceAmount {
	if side == domain.BookSideBids {
		return b.bids
	}
	return b.asks
}

func sortedLevels(levels map[string]domain.PriceAmount, side domain.BookSide, n int) []domain.OrderBookLevel {
	out := make([]domain.OrderBookLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, domain.NewLevel(l.Price, l.Amount))
	}
	sort.Slice(out, func(i, j int) bool {
		if side == domain.BookSideBids {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// DepthManager holds one DepthBook per symbol and serves as the engine's
// liquidity source.
type DepthManager struct {
	mu    sync.RWMutex
	books map[string]*DepthBook
}

// NewDepthManager creates an empty DepthManager.
func NewDepthManager() *DepthManager {
	return &DepthManager{
		books: make(map[string]*DepthBook),
	}
}

// GetOrCreate returns the book for symbol, creating it if needed.
func (m *DepthManager) GetOrCreate(symbol string) *DepthBook {
	symbol = strings.ToUpper(symbol)

	m.mu.RLock()
	book, ok := m.books[symbol]
	m.mu.RUnlock()
	if ok {
		return book
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if book, ok = m.books[symbol]; ok {
		return book
	}
	book = NewDepthBook(symbol)
	m.books[symbol] = book
	return book
}

// ApplySnapshot replaces the symbol's book.
func (m *DepthManager) ApplySnapshot(snap domain.DepthSnapshot, at time.Time) {
	m.GetOrCreate(snap.Symbol).ApplySnapshot(snap, at)
}

// ApplyDelta applies an incremental update to the symbol's book.
func (m *DepthManager) ApplyDelta(d domain.DepthDelta, at time.Time) error {
	return m.GetOrCreate(d.Symbol).ApplyDelta(d, at)
}

// Depth returns one side of the symbol's book.
func (m *DepthManager) Depth(symbol string, side domain.BookSide) domain.DepthView {
	return m.GetOrCreate(symbol).View(side)
}

// Consume subtracts swept liquidity from the symbol's book.
func (m *DepthManager) Consume(symbol string, side domain.BookSide, fills []domain.Fill) {
	m.GetOrCreate(symbol).Consume(side, fills)
}

// Levels returns up to n levels per side of the symbol's book.
func (m *DepthManager) Levels(symbol string, n int) (bids, asks []domain.OrderBookLevel) {
	return m.GetOrCreate(symbol).Levels(n)
}

// BestPrices returns the best bid and ask, zero when a side is empty.
func (m *DepthManager) BestPrices(symbol string) (bid, ask decimal.Decimal) {
	bids, asks := m.Levels(symbol, 1)
	if len(bids) > 0 {
		bid = bids[0].Price
	}
	if len(asks) > 0 {
		ask = asks[0].Price
	}
	return bid, ask
}
