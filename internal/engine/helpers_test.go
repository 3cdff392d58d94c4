package engine

import (
	"sync"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/efreitasn/spotsim/internal/store"
	"github.com/shopspring/decimal"
)

// fakeLiquidity is an in-memory LiquiditySource.
type fakeLiquidity struct {
	mu       sync.Mutex
	views    map[string]map[domain.BookSide]domain.DepthView
	consumed []domain.Fill
}

func newFakeLiquidity() *fakeLiquidity {
	return &fakeLiquidity{views: make(map[string]map[domain.BookSide]domain.DepthView)}
}

func (f *fakeLiquidity) Depth(symbol string, side domain.BookSide) domain.DepthView {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.views[symbol][side]
	v.Levels = append([]domain.OrderBookLevel(nil), v.Levels...)
	return v
}

func (f *fakeLiquidity) Consume(symbol string, side domain.BookSide, fills []domain.Fill) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed = append(f.consumed, fills...)
}

// set installs levels given as alternating price, amount strings.
func (f *fakeLiquidity) set(symbol string, side domain.BookSide, updatedAt time.Time, pa ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	levels := make([]domain.OrderBookLevel, 0, len(pa)/2)
	for i := 0; i+1 < len(pa); i += 2 {
		levels = append(levels, domain.NewLevel(dec(pa[i]), dec(pa[i+1])))
	}
	if f.views[symbol] == nil {
		f.views[symbol] = make(map[domain.BookSide]domain.DepthView)
	}
	f.views[symbol][side] = domain.DepthView{Levels: levels, LastUpdateID: 1, UpdatedAt: updatedAt}
}

func (f *fakeLiquidity) markStale(symbol string, side domain.BookSide) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.views[symbol][side]
	v.Stale = true
	f.views[symbol][side] = v
}

// fakeClock advances one second on every reading so submissions get
// distinct timestamps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

var testFee = decimal.RequireFromString("0.001")

type testEngine struct {
	*Matcher
	ledger *store.Ledger
	orders *store.OrderStore
	trades *store.TradeStore
	liq    *fakeLiquidity
	clock  *fakeClock
}

// newTestMatcher creates a Matcher over fresh stores with BTCUSDT and
// ETHUSDT registered at 8/8 precision.
func newTestMatcher(maxDepth int) *testEngine {
	clock := &fakeClock{now: baseTime}
	e := &testEngine{
		ledger: store.NewLedger(),
		orders: store.NewOrderStore(),
		trades: store.NewTradeStore(),
		liq:    newFakeLiquidity(),
		clock:  clock,
	}
	pairs := domain.NewPairRegistry(
		domain.NewPair("BTC", "USDT", 8, 8),
		domain.NewPair("ETH", "USDT", 8, 8),
	)
	e.Matcher = NewMatcher(NewBookManager(maxDepth), e.liq, e.ledger, e.orders, e.trades, pairs, Options{
		TakerFee: testFee,
		MakerFee: testFee,
		Now:      clock.Now,
	})
	return e
}

// fund creates an account with balances given as alternating asset, amount.
func (e *testEngine) fund(t testingT, id string, aa ...string) {
	t.Helper()
	balances := make(map[string]decimal.Decimal)
	for i := 0; i+1 < len(aa); i += 2 {
		balances[aa[i]] = dec(aa[i+1])
	}
	if err := e.ledger.CreateAccount(id, balances, baseTime); err != nil {
		t.Fatalf("CreateAccount(%s): %v", id, err)
	}
}

func (e *testEngine) balance(t testingT, id, asset string) domain.Balance {
	t.Helper()
	b, err := e.ledger.Balance(id, asset)
	if err != nil {
		t.Fatalf("Balance(%s, %s): %v", id, asset, err)
	}
	return b
}

func limitOrder(account string, side domain.OrderSide, symbol, price, amount string) *domain.Order {
	return &domain.Order{
		AccountID: account,
		Side:      side,
		Symbol:    symbol,
		Price:     dec(price),
		Amount:    dec(amount),
	}
}

func marketOrder(account string, side domain.OrderSide, symbol, amount string) *domain.Order {
	return &domain.Order{
		AccountID: account,
		Side:      side,
		Symbol:    symbol,
		Amount:    dec(amount),
	}
}

func assertDec(t testingT, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}
