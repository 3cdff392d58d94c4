package engine

import (
	"sync"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// OrderBookEntry is a local limit order resting in a priority queue.
type OrderBookEntry struct {
	Price     decimal.Decimal
	CreatedAt time.Time
	Seq       uint64
	OrderID   string
	Order     *domain.Order
}

// PriceLevel aggregates resting orders at one price.
type PriceLevel struct {
	Price      decimal.Decimal
	Amount     decimal.Decimal
	OrderCount int
}

// bidLess orders bids by price descending, then created_at ascending, then
// submission sequence. Min() returns the best bid.
func bidLess(a, b OrderBookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return earlier(a, b)
}

// askLess orders asks by price ascending, then created_at ascending, then
// submission sequence. Min() returns the best ask.
func askLess(a, b OrderBookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return earlier(a, b)
}

func earlier(a, b OrderBookEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}

// OrderBook holds the bid and ask priority queues of local limit orders
// for one symbol. Each side holds at most maxDepth orders; zero means
// unbounded. Writers hold the lock through Lock/Unlock, readers through
// RLock/RUnlock.
type OrderBook struct {
	symbol   string
	maxDepth int
	mu       sync.RWMutex
	bids     *btree.BTreeG[OrderBookEntry]
	asks     *btree.BTreeG[OrderBookEntry]
	index    map[string]OrderBookEntry // order_id → entry
}

// NewOrderBook creates an order book for the given symbol.
func NewOrderBook(symbol string, maxDepth int) *OrderBook {
	const degree = 32
	return &OrderBook{
		symbol:   symbol,
		maxDepth: maxDepth,
		bids:     btree.NewG[OrderBookEntry](degree, bidLess),
		asks:     btree.NewG[OrderBookEntry](degree, askLess),
		index:    make(map[string]OrderBookEntry),
	}
}

// Lock acquires the write lock on the order book.
func (ob *OrderBook) Lock() { ob.mu.Lock() }

// Unlock releases the write lock on the order book.
func (ob *OrderBook) Unlock() { ob.mu.Unlock() }

// RLock acquires the read lock on the order book.
func (ob *OrderBook) RLock() { ob.mu.RLock() }

// RUnlock releases the read lock on the order book.
func (ob *OrderBook) RUnlock() { ob.mu.RUnlock() }

// Symbol returns the book's symbol.
func (ob *OrderBook) Symbol() string {
	return ob.symbol
}

// InsertBid adds an entry to the bid side of the book.
func (ob *OrderBook) InsertBid(entry OrderBookEntry) {
	ob.bids.ReplaceOrInsert(entry)
	ob.index[entry.OrderID] = entry
}

// InsertAsk adds an entry to the ask side of the book.
func (ob *OrderBook) InsertAsk(entry OrderBookEntry) {
	ob.asks.ReplaceOrInsert(entry)
	ob.index[entry.OrderID] = entry
}

// Insert adds an entry to the side matching its order.
func (ob *OrderBook) Insert(entry OrderBookEntry) {
	if entry.Order.Side == domain.OrderSideBuy {
		ob.InsertBid(entry)
		return
	}
	ob.InsertAsk(entry)
}

// Remove deletes an order from the book by order ID. It reports whether
// the order was resting.
func (ob *OrderBook) Remove(orderID string) bool {
	entry, ok := ob.index[orderID]
	if !ok {
		return false
	}
	delete(ob.index, orderID)
	ob.bids.Delete(entry)
	ob.asks.Delete(entry)
	return true
}

// Contains reports whether the order is resting on the book.
func (ob *OrderBook) Contains(orderID string) bool {
	_, ok := ob.index[orderID]
	return ok
}

// BestBid returns the highest-priority bid (highest price, earliest time).
func (ob *OrderBook) BestBid() (OrderBookEntry, bool) {
	return ob.bids.Min()
}

// BestAsk returns the highest-priority ask (lowest price, earliest time).
func (ob *OrderBook) BestAsk() (OrderBookEntry, bool) {
	return ob.asks.Min()
}

// TopBids returns up to n aggregated price levels from the bid side,
// ordered by price descending.
func (ob *OrderBook) TopBids(n int) []PriceLevel {
	return topLevels(ob.bids, n)
}

// TopAsks returns up to n aggregated price levels from the ask side,
// ordered by price ascending.
func (ob *OrderBook) TopAsks(n int) []PriceLevel {
	return topLevels(ob.asks, n)
}

func topLevels(tree *btree.BTreeG[OrderBookEntry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(entry OrderBookEntry) bool {
		if last := len(levels) - 1; last >= 0 && levels[last].Price.Equal(entry.Price) {
			levels[last].Amount = levels[last].Amount.Add(entry.Order.Remaining)
			levels[last].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:      entry.Price,
			Amount:     entry.Order.Remaining,
			OrderCount: 1,
		})
		return true
	})
	return levels
}

// WalkAsks iterates asks in priority order. The callback returns false
// to stop.
func (ob *OrderBook) WalkAsks(fn func(OrderBookEntry) bool) {
	ob.asks.Ascend(fn)
}

// WalkBids iterates bids in priority order. The callback returns false
// to stop.
func (ob *OrderBook) WalkBids(fn func(OrderBookEntry) bool) {
	ob.bids.Ascend(fn)
}

// BidCount returns the number of individual bid orders on the book.
func (ob *OrderBook) BidCount() int {
	return ob.bids.Len()
}

// AskCount returns the number of individual ask orders on the book.
func (ob *OrderBook) AskCount() int {
	return ob.asks.Len()
}

// crosses reports whether a bid at bidPrice can trade with an ask at askPrice.
func crosses(bidPrice, askPrice decimal.Decimal) bool {
	return bidPrice.GreaterThanOrEqual(askPrice)
}

// fullyCrosses reports whether the opposite side holds enough crossing
// liquidity to fill the whole order, meaning it would never rest.
func (ob *OrderBook) fullyCrosses(o *domain.Order) bool {
	available := decimal.Zero
	visit := func(entry OrderBookEntry) bool {
		if o.Side == domain.OrderSideBuy && !crosses(o.Price, entry.Price) {
			return false
		}
		if o.Side == domain.OrderSideSell && !crosses(entry.Price, o.Price) {
			return false
		}
		available = available.Add(entry.Order.Remaining)
		return available.LessThan(o.Amount)
	}
	if o.Side == domain.OrderSideBuy {
		ob.WalkAsks(visit)
	} else {
		ob.WalkBids(visit)
	}
	return available.GreaterThanOrEqual(o.Amount)
}

// hasRoom reports whether side can accept one more resting order.
func (ob *OrderBook) hasRoom(side domain.OrderSide) bool {
	if ob.maxDepth <= 0 {
		return true
	}
	if side == domain.OrderSideBuy {
		return ob.BidCount() < ob.maxDepth
	}
	return ob.AskCount() < ob.maxDepth
}

// BookManager is a thread-safe map of symbol → OrderBook.
type BookManager struct {
	mu       sync.RWMutex
	maxDepth int
	books    map[string]*OrderBook
}

// NewBookManager creates a BookManager whose books hold at most maxDepth
// orders per side.
func NewBookManager(maxDepth int) *BookManager {
	return &BookManager{
		maxDepth: maxDepth,
		books:    make(map[string]*OrderBook),
	}
}

// GetOrCreate returns the order book for the given symbol, creating
// one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(symbol string) *OrderBook {
	bm.mu.RLock()
	book, ok := bm.books[symbol]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	if book, ok = bm.books[symbol]; ok {
		return book
	}
	book = NewOrderBook(symbol, bm.maxDepth)
	bm.books[symbol] = book
	return book
}
