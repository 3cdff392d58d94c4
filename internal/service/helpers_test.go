package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/efreitasn/spotsim/internal/engine"
	"github.com/efreitasn/spotsim/internal/marketdata"
	"github.com/efreitasn/spotsim/internal/store"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingJournal struct {
	mu     sync.Mutex
	orders []*domain.Order
	trades []*domain.Trade
	err    error
}

func (j *recordingJournal) RecordOrder(_ context.Context, o *domain.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders = append(j.orders, o)
	return j.err
}

func (j *recordingJournal) RecordTrades(_ context.Context, trades []*domain.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, trades...)
	return j.err
}

func (j *recordingJournal) Close() {}

type recordingPublisher struct {
	mu        sync.Mutex
	trades    []*domain.Trade
	cancelled []*domain.Order
}

func (p *recordingPublisher) TradeExecuted(_ context.Context, trades []*domain.Trade) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, trades...)
	return nil
}

func (p *recordingPublisher) OrderCancelled(_ context.Context, o *domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, o)
	return errors.New("publisher unavailable")
}

func (p *recordingPublisher) Close() error { return nil }

// testEnv bundles all dependencies needed for service tests.
type testEnv struct {
	pairs     *domain.PairRegistry
	ledger    *store.Ledger
	orders    *store.OrderStore
	trades    *store.TradeStore
	books     *engine.BookManager
	depth     *marketdata.DepthManager
	tickers   *marketdata.TickerCache
	matcher   *engine.Matcher
	journal   *recordingJournal
	publisher *recordingPublisher
	orderSvc  *OrderService
	portfolio *PortfolioService
	market    *MarketService
}

// stepClock advances one second per call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

var defaultBalances = map[string]decimal.Decimal{
	"BTC":  decimal.NewFromInt(10),
	"USDT": decimal.NewFromInt(50000),
}

func newTestEnv() *testEnv {
	pairs := domain.NewPairRegistry(
		domain.NewPair("BTC", "USDT", 8, 8),
		domain.NewPair("ETH", "USDT", 8, 8),
	)
	ledger := store.NewLedger()
	orders := store.NewOrderStore()
	trades := store.NewTradeStore()
	books := engine.NewBookManager(100)
	depth := marketdata.NewDepthManager()
	tickers := marketdata.NewTickerCache()
	matcher := engine.NewMatcher(books, depth, ledger, orders, trades, pairs, engine.Options{
		TakerFee: dec("0.001"),
		MakerFee: dec("0.001"),
		Now:      (&stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}).Now,
	})
	j := &recordingJournal{}
	pub := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testEnv{
		pairs:     pairs,
		ledger:    ledger,
		orders:    orders,
		trades:    trades,
		books:     books,
		depth:     depth,
		tickers:   tickers,
		matcher:   matcher,
		journal:   j,
		publisher: pub,
		orderSvc:  NewOrderService(matcher, ledger, trades, pairs, j, pub, logger),
		portfolio: NewPortfolioService(ledger, tickers, "USDT", defaultBalances),
		market:    NewMarketService(pairs, tickers, depth, books, matcher),
	}
}

// register creates an account funded with asset/amount pairs.
func (env *testEnv) register(t *testing.T, id string, assetAmounts ...string) {
	t.Helper()
	balances := make(map[string]string)
	for i := 0; i+1 < len(assetAmounts); i += 2 {
		balances[assetAmounts[i]] = assetAmounts[i+1]
	}
	if _, err := env.portfolio.Register(RegisterAccountRequest{AccountID: id, Balances: balances}); err != nil {
		t.Fatalf("failed to register account %s: %v", id, err)
	}
}

func (env *testEnv) submit(t *testing.T, req SubmitOrderRequest) *domain.Order {
	t.Helper()
	order, err := env.orderSvc.SubmitOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error submitting %+v: %v", req, err)
	}
	return order
}

func (env *testEnv) balance(t *testing.T, id, asset string) domain.Balance {
	t.Helper()
	b, err := env.ledger.Balance(id, asset)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func limit(account, side, symbol, price, amount string) SubmitOrderRequest {
	return SubmitOrderRequest{AccountID: account, Symbol: symbol, Side: side, Type: "limit", Price: price, Amount: amount}
}

func market(account, side, symbol, amount string) SubmitOrderRequest {
	return SubmitOrderRequest{AccountID: account, Symbol: symbol, Side: side, Type: "market", Amount: amount}
}

func assertDec(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func assertValidation(t *testing.T, err error) {
	t.Helper()
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
