package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/efreitasn/spotsim/internal/store"
)

// LiquiditySource is the external order book mirror market orders sweep.
type LiquiditySource interface {
	// Depth returns one side of the mirrored book, best level first.
	Depth(symbol string, side domain.BookSide) domain.DepthView
	// Consume subtracts liquidity taken by a local sweep.
	Consume(symbol string, side domain.BookSide, fills []domain.Fill)
}

// Options configures fees and staleness for a Matcher.
type Options struct {
	TakerFee    decimal.Decimal
	MakerFee    decimal.Decimal // listed with each market, never billed
	MaxDepthAge time.Duration   // zero disables the age check
	Now         func() time.Time
}

// QuotePriceLevel is one level consumed by a simulated sweep.
type QuotePriceLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// QuoteResult holds the result of a market order simulation.
type QuoteResult struct {
	AmountAvailable   decimal.Decimal
	FullyFillable     bool
	EstimatedAvgPrice *decimal.Decimal // nil when no liquidity
	EstimatedTotal    *decimal.Decimal // nil when no liquidity; fees included
	EstimatedFee      decimal.Decimal
	Stale             bool
	PriceLevels       []QuotePriceLevel
}

// Matcher is the matching and settlement engine. It is the only writer of
// order, trade and balance state during trading; a single mutex
// serializes every submission and cancellation.
type Matcher struct {
	mu        sync.Mutex
	seq       uint64
	books     *BookManager
	liquidity LiquiditySource
	ledger    *store.Ledger
	orders    *store.OrderStore
	trades    *store.TradeStore
	pairs     *domain.PairRegistry
	opts      Options
}

// NewMatcher creates a new Matcher with the given dependencies.
func NewMatcher(
	books *BookManager,
	liquidity LiquiditySource,
	ledger *store.Ledger,
	orders *store.OrderStore,
	trades *store.TradeStore,
	pairs *domain.PairRegistry,
	opts Options,
) *Matcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Matcher{
		books:     books,
		liquidity: liquidity,
		ledger:    ledger,
		orders:    orders,
		trades:    trades,
		pairs:     pairs,
		opts:      opts,
	}
}

// TakerFee returns the configured taker rate.
func (m *Matcher) TakerFee() decimal.Decimal { return m.opts.TakerFee }

// MakerFee returns the configured maker rate.
func (m *Matcher) MakerFee() decimal.Decimal { return m.opts.MakerFee }

// prepare resolves the pair and validates the order and its account.
func (m *Matcher) prepare(order *domain.Order) (domain.TradingPair, error) {
	pair, ok := m.pairs.Get(order.Symbol)
	if !ok {
		return domain.TradingPair{}, domain.ErrSymbolNotFound
	}
	order.Symbol = pair.Symbol
	if err := order.Validate(pair); err != nil {
		return pair, err
	}
	if !m.ledger.Exists(order.AccountID) {
		return pair, domain.ErrAccountNotFound
	}
	return pair, nil
}

// open assigns identity and initial state to an accepted order and
// stores it.
func (m *Matcher) open(order *domain.Order, now time.Time) {
	m.seq++
	order.OrderID = uuid.New().String()
	order.Seq = m.seq
	order.CreatedAt = now
	order.UpdatedAt = now
	order.Filled = decimal.Zero
	order.Remaining = order.Amount
	order.Status = domain.OrderStatusPending
	order.Trades = []*domain.Trade{}
	m.orders.Create(order)
}

// SubmitLimitOrder validates and reserves funds for a limit order, matches
// it against the opposite queue while the best bid crosses the best ask,
// and rests any remainder.
//
// The caller provides AccountID, Symbol, Side, Amount and Price. The
// matcher assigns OrderID, Seq and CreatedAt and manages every status
// transition. Validation, capacity and balance failures leave no trace.
func (m *Matcher) SubmitLimitOrder(order *domain.Order) ([]*domain.Trade, error) {
	order.Type = domain.OrderTypeLimit

	m.mu.Lock()
	defer m.mu.Unlock()

	pair, err := m.prepare(order)
	if err != nil {
		return nil, err
	}

	book := m.books.GetOrCreate(pair.Symbol)
	book.Lock()
	defer book.Unlock()

	// Step 1: Capacity. Orders that fully cross never rest.
	if !book.hasRoom(order.Side) && !book.fullyCrosses(order) {
		return nil, domain.ErrQueueFull
	}

	// Step 2: Reserve.
	asset, reserve := pair.Base, order.Amount
	if order.Side == domain.OrderSideBuy {
		asset, reserve = pair.Quote, domain.BuyReservation(order.Price, order.Amount, m.opts.TakerFee)
	}
	if err := m.ledger.Lock(order.AccountID, asset, reserve); err != nil {
		return nil, err
	}

	now := m.opts.Now()
	m.open(order, now)
	order.Locked = reserve

	// Step 3: Match loop.
	var trades []*domain.Trade
	for order.Remaining.IsPositive() {
		var best OrderBookEntry
		var found bool
		if order.Side == domain.OrderSideBuy {
			best, found = book.BestAsk()
		} else {
			best, found = book.BestBid()
		}
		if !found {
			break
		}

		resting := best.Order
		bid, ask := order, resting
		if order.Side == domain.OrderSideSell {
			bid, ask = resting, order
		}
		if !crosses(bid.Price, ask.Price) {
			break
		}

		trade, err := m.cross(pair, order, resting, bid, ask, now)
		if err != nil {
			return trades, err
		}
		trades = append(trades, trade)

		if resting.Remaining.IsZero() {
			book.Remove(resting.OrderID)
		}
	}

	// Step 4: Rest the remainder.
	if order.Remaining.IsPositive() {
		book.Insert(OrderBookEntry{
			Price:     order.Price,
			CreatedAt: order.CreatedAt,
			Seq:       order.Seq,
			OrderID:   order.OrderID,
			Order:     order,
		})
	}

	return trades, nil
}

// cross executes one fill between the taker and the best resting order
// at the ask's price and settles it through the ledger. The taker pays the
// fee.
func (m *Matcher) cross(pair domain.TradingPair, taker, maker, bid, ask *domain.Order, now time.Time) (*domain.Trade, error) {
	amount := decimal.Min(bid.Remaining, ask.Remaining)
	price := ask.Price
	gross := price.Mul(amount)
	fee := domain.TakerFee(gross, m.opts.TakerFee, pair.QuotePrecision)

	buyerPays, sellerReceives := gross, gross
	if taker == bid {
		buyerPays = gross.Add(fee)
	} else {
		sellerReceives = gross.Sub(fee)
	}

	// The final fill frees whatever is still locked; earlier fills release
	// their share of the reservation at the bid's own price.
	bidRelease := bid.Locked
	if amount.LessThan(bid.Remaining) {
		bidRelease = domain.BuyReservation(bid.Price, amount, m.opts.TakerFee)
	}

	err := m.ledger.Settle(domain.Settlement{
		Buyer:          bid.AccountID,
		Seller:         ask.AccountID,
		Base:           pair.Base,
		Quote:          pair.Quote,
		Amount:         amount,
		BuyerPays:      buyerPays,
		SellerReceives: sellerReceives,
		BuyerRelease:   bidRelease,
		SellerRelease:  amount,
	})
	if err != nil {
		return nil, fmt.Errorf("settle %s against %s: %w", taker.OrderID, maker.OrderID, err)
	}

	bid.Locked = bid.Locked.Sub(bidRelease)
	ask.Locked = ask.Locked.Sub(amount)
	bid.Fill(amount, now)
	ask.Fill(amount, now)

	total := gross.Add(fee)
	if taker.Side == domain.OrderSideSell {
		total = gross.Sub(fee)
	}
	trade := &domain.Trade{
		TradeID:        uuid.New().String(),
		OrderID:        taker.OrderID,
		MakerOrderID:   maker.OrderID,
		AccountID:      taker.AccountID,
		MakerAccountID: maker.AccountID,
		Symbol:         pair.Symbol,
		Side:           taker.Side,
		Price:          price,
		Amount:         amount,
		Total:          total,
		Fee:            fee,
		ExecutedAt:     now,
	}
	taker.Trades = append(taker.Trades, trade)
	maker.Trades = append(maker.Trades, trade)
	m.trades.Append(trade)
	return trade, nil
}

// sweepLeg is one planned fill against an external level.
type sweepLeg struct {
	price  decimal.Decimal
	amount decimal.Decimal
	gross  decimal.Decimal
	fee    decimal.Decimal
}

// planSweep walks levels best first, taking min(remaining, level amount)
// from each until amount is filled or the levels run out.
func planSweep(levels []domain.OrderBookLevel, amount, rate decimal.Decimal, places int32) ([]sweepLeg, decimal.Decimal) {
	var legs []sweepLeg
	remaining := amount
	for _, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}
		if !lvl.Amount.IsPositive() {
			continue
		}
		take := decimal.Min(remaining, lvl.Amount)
		gross := lvl.Price.Mul(take)
		legs = append(legs, sweepLeg{
			price:  lvl.Price,
			amount: take,
			gross:  gross,
			fee:    domain.TakerFee(gross, rate, places),
		})
		remaining = remaining.Sub(take)
	}
	return legs, amount.Sub(remaining)
}

// stale reports whether a depth view is too old or out of sequence to
// trade against.
func (m *Matcher) stale(view domain.DepthView, now time.Time) bool {
	if view.Stale {
		return true
	}
	if m.opts.MaxDepthAge <= 0 || view.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(view.UpdatedAt) > m.opts.MaxDepthAge
}

// SubmitMarketOrder sweeps the external book for an order of the given
// amount. Each consumed level yields one trade; the whole sweep settles
// with one ledger update, so an unaffordable sweep is rejected without
// recording anything.
//
// When the book is stale or empty the order is recorded as pending and
// ErrStaleDepth or ErrNoLiquidity is returned. A sweep that exhausts the
// book before completing ends partially_filled.
func (m *Matcher) SubmitMarketOrder(order *domain.Order) ([]*domain.Trade, error) {
	order.Type = domain.OrderTypeMarket

	m.mu.Lock()
	defer m.mu.Unlock()

	pair, err := m.prepare(order)
	if err != nil {
		return nil, err
	}

	now := m.opts.Now()
	side := domain.LiquiditySide(order.Side)
	view := m.liquidity.Depth(pair.Symbol, side)

	if m.stale(view, now) {
		m.open(order, now)
		return nil, domain.ErrStaleDepth
	}

	legs, filled := planSweep(view.Levels, order.Amount, m.opts.TakerFee, pair.QuotePrecision)
	if len(legs) == 0 {
		m.open(order, now)
		return nil, domain.ErrNoLiquidity
	}

	grossTotal, feeTotal := decimal.Zero, decimal.Zero
	for _, l := range legs {
		grossTotal = grossTotal.Add(l.gross)
		feeTotal = feeTotal.Add(l.fee)
	}

	settlement := domain.Settlement{
		Base:   pair.Base,
		Quote:  pair.Quote,
		Amount: filled,
	}
	if order.Side == domain.OrderSideBuy {
		settlement.Buyer = order.AccountID
		settlement.BuyerPays = grossTotal.Add(feeTotal)
	} else {
		settlement.Seller = order.AccountID
		settlement.SellerReceives = grossTotal.Sub(feeTotal)
	}
	if err := m.ledger.Settle(settlement); err != nil {
		return nil, err
	}

	m.open(order, now)

	trades := make([]*domain.Trade, 0, len(legs))
	fills := make([]domain.Fill, 0, len(legs))
	for _, l := range legs {
		total := l.gross.Add(l.fee)
		if order.Side == domain.OrderSideSell {
			total = l.gross.Sub(l.fee)
		}
		trade := &domain.Trade{
			TradeID:    uuid.New().String(),
			OrderID:    order.OrderID,
			AccountID:  order.AccountID,
			Symbol:     pair.Symbol,
			Side:       order.Side,
			Price:      l.price,
			Amount:     l.amount,
			Total:      total,
			Fee:        l.fee,
			ExecutedAt: now,
		}
		order.Fill(l.amount, now)
		order.Trades = append(order.Trades, trade)
		m.trades.Append(trade)
		trades = append(trades, trade)
		fills = append(fills, domain.Fill{Price: l.price, Amount: l.amount})
	}
	if order.Remaining.IsPositive() {
		order.Status = domain.OrderStatusPartiallyFilled
	}

	m.liquidity.Consume(pair.Symbol, side, fills)
	return trades, nil
}

// CancelOrder cancels a pending order: it leaves the queue, its
// reservation is released and it becomes cancelled.
//
// Returns ErrOrderNotFound if the order does not exist and
// ErrOrderNotCancellable if it is no longer pending.
func (m *Matcher) CancelOrder(orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, err := m.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPending {
		return nil, domain.ErrOrderNotCancellable
	}

	book := m.books.GetOrCreate(order.Symbol)
	book.Lock()
	defer book.Unlock()

	if order.Locked.IsPositive() {
		pair, ok := m.pairs.Get(order.Symbol)
		if !ok {
			return nil, domain.ErrSymbolNotFound
		}
		asset := pair.Base
		if order.Side == domain.OrderSideBuy {
			asset = pair.Quote
		}
		if err := m.ledger.Unlock(order.AccountID, asset, order.Locked); err != nil {
			return nil, fmt.Errorf("release reservation of %s: %w", order.OrderID, err)
		}
		order.Locked = decimal.Zero
	}

	book.Remove(order.OrderID)

	now := m.opts.Now()
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now

	return order.Clone(), nil
}

// Order returns a snapshot of an order taken under the engine lock.
func (m *Matcher) Order(orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	return o.Clone(), nil
}

// Orders returns snapshots of an account's orders, newest first, along
// with the number of matches before pagination.
func (m *Matcher) Orders(accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	orders, total := m.orders.ListByAccount(accountID, status, page, limit)
	out := make([]*domain.Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out, total
}

// SimulateMarketOrder plans a sweep of the external book without touching
// any state. The caller must ensure the symbol exists.
func (m *Matcher) SimulateMarketOrder(symbol string, side domain.OrderSide, amount decimal.Decimal) (*QuoteResult, error) {
	pair, ok := m.pairs.Get(symbol)
	if !ok {
		return nil, domain.ErrSymbolNotFound
	}

	view := m.liquidity.Depth(pair.Symbol, domain.LiquiditySide(side))
	legs, filled := planSweep(view.Levels, amount, m.opts.TakerFee, pair.QuotePrecision)

	result := &QuoteResult{
		AmountAvailable: filled,
		FullyFillable:   filled.Equal(amount),
		EstimatedFee:    decimal.Zero,
		Stale:           m.stale(view, m.opts.Now()),
		PriceLevels:     make([]QuotePriceLevel, 0, len(legs)),
	}
	if len(legs) == 0 {
		return result, nil
	}

	gross := decimal.Zero
	for _, l := range legs {
		gross = gross.Add(l.gross)
		result.EstimatedFee = result.EstimatedFee.Add(l.fee)
		result.PriceLevels = append(result.PriceLevels, QuotePriceLevel{Price: l.price, Amount: l.amount})
	}
	avg := gross.DivRound(filled, pair.QuotePrecision)
	total := gross.Add(result.EstimatedFee)
	if side == domain.OrderSideSell {
		total = gross.Sub(result.EstimatedFee)
	}
	result.EstimatedAvgPrice = &avg
	result.EstimatedTotal = &total
	return result, nil
}
