package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/spotsim/internal/domain"
)

// TradeSortField names a column trades can be ordered by.
type TradeSortField string

const (
	SortByTimestamp TradeSortField = "timestamp"
	SortBySymbol    TradeSortField = "symbol"
	SortBySide      TradeSortField = "side"
	SortByPrice     TradeSortField = "price"
	SortByAmount    TradeSortField = "amount"
	SortByTotal     TradeSortField = "total"
	SortByFee       TradeSortField = "fee"
)

// ValidTradeSortFields lists the accepted sort fields.
var ValidTradeSortFields = map[TradeSortField]bool{
	SortByTimestamp: true,
	SortBySymbol:    true,
	SortBySide:      true,
	SortByPrice:     true,
	SortByAmount:    true,
	SortByTotal:     true,
	SortByFee:       true,
}

// TradeFilter selects and orders an account's trade history.
type TradeFilter struct {
	Symbol string // empty matches every symbol
	SortBy TradeSortField
	Desc   bool
}

// TradeStore is a thread-safe in-memory store for trades, indexed by
// symbol and by participating account. Trades are append-only and
// chronological.
type TradeStore struct {
	mu        sync.RWMutex
	bySymbol  map[string][]*domain.Trade
	byAccount map[string][]*domain.Trade
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		bySymbol:  make(map[string][]*domain.Trade),
		byAccount: make(map[string][]*domain.Trade),
	}
}

// Append records a trade under its symbol and under the taker and maker
// accounts. A self-trade is indexed once.
func (s *TradeStore) Append(t *domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bySymbol[t.Symbol] = append(s.bySymbol[t.Symbol], t)
	s.byAccount[t.AccountID] = append(s.byAccount[t.AccountID], t)
	if t.MakerAccountID != "" && t.MakerAccountID != t.AccountID {
		s.byAccount[t.MakerAccountID] = append(s.byAccount[t.MakerAccountID], t)
	}
}

// GetBySymbol returns all trades for a symbol in chronological order.
// Returns an empty slice if no trades exist for the symbol.
func (s *TradeStore) GetBySymbol(symbol string) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Trade, len(s.bySymbol[symbol]))
	copy(result, s.bySymbol[symbol])
	return result
}

// ListByAccount returns the account's trades filtered and sorted per f.
// Ties keep chronological order. An empty SortBy sorts by timestamp.
func (s *TradeStore) ListByAccount(accountID string, f TradeFilter) []*domain.Trade {
	s.mu.RLock()
	all := s.byAccount[accountID]
	result := make([]*domain.Trade, 0, len(all))
	for _, t := range all {
		if f.Symbol != "" && t.Symbol != f.Symbol {
			continue
		}
		result = append(result, t)
	}
	s.mu.RUnlock()

	less := tradeLess(f.SortBy, accountID)
	sort.SliceStable(result, func(i, j int) bool {
		if f.Desc {
			return less(result[j], result[i])
		}
		return less(result[i], result[j])
	})
	return result
}

func tradeLess(field TradeSortField, accountID string) func(a, b *domain.Trade) bool {
	switch field {
	case SortBySymbol:
		return func(a, b *domain.Trade) bool { return a.Symbol < b.Symbol }
	case SortBySide:
		return func(a, b *domain.Trade) bool { return a.SideFor(accountID) < b.SideFor(accountID) }
	case SortByPrice:
		return func(a, b *domain.Trade) bool { return a.Price.LessThan(b.Price) }
	case SortByAmount:
		return func(a, b *domain.Trade) bool { return a.Amount.LessThan(b.Amount) }
	case SortByTotal:
		return func(a, b *domain.Trade) bool { return a.Total.LessThan(b.Total) }
	case SortByFee:
		return func(a, b *domain.Trade) bool { return a.Fee.LessThan(b.Fee) }
	default:
		return func(a, b *domain.Trade) bool { return a.ExecutedAt.Before(b.ExecutedAt) }
	}
}
