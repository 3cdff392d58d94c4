package service

import (
	"context"
	"errors"
	"testing"

	"github.com/efreitasn/spotsim/internal/domain"
)

// --- SubmitOrder: limit orders ---

func TestSubmitOrder_LimitBuy_Pending(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "USDT", "10000")

	order := env.submit(t, limit("alice", "buy", "btcusdt", "100", "1"))

	if order.OrderID == "" {
		t.Error("expected non-empty order_id")
	}
	if order.Symbol != "BTCUSDT" || order.Type != domain.OrderTypeLimit {
		t.Errorf("got %s %s, want BTCUSDT limit", order.Symbol, order.Type)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("got status %q, want pending", order.Status)
	}
	assertDec(t, "remaining", order.Remaining, "1")
	assertDec(t, "locked", order.Locked, "100.1")
	assertDec(t, "USDT locked", env.balance(t, "alice", "USDT").Locked, "100.1")

	if len(env.journal.orders) != 1 || env.journal.orders[0].OrderID != order.OrderID {
		t.Errorf("expected order journaled, got %d", len(env.journal.orders))
	}
	if len(env.publisher.trades) != 0 {
		t.Errorf("expected no trade events, got %d", len(env.publisher.trades))
	}
}

func TestSubmitOrder_LimitBuy_Crosses(t *testing.T) {
	env := newTestEnv()
	env.register(t, "seller", "BTC", "5")
	env.register(t, "buyer", "USDT", "10000")

	ask := env.submit(t, limit("seller", "sell", "BTCUSDT", "100", "2"))
	bid := env.submit(t, limit("buyer", "buy", "BTCUSDT", "101", "1"))

	if bid.Status != domain.OrderStatusFilled {
		t.Errorf("bid status = %q, want filled", bid.Status)
	}
	if len(bid.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(bid.Trades))
	}
	assertDec(t, "trade price", bid.Trades[0].Price, "100")
	assertDec(t, "trade amount", bid.Trades[0].Amount, "1")
	assertDec(t, "trade fee", bid.Trades[0].Fee, "0.1")

	resting, err := env.orderSvc.GetOrder(ask.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if resting.Status != domain.OrderStatusPending {
		t.Errorf("ask status = %q, want pending", resting.Status)
	}
	assertDec(t, "ask remaining", resting.Remaining, "1")

	assertDec(t, "buyer BTC", env.balance(t, "buyer", "BTC").Free, "1")
	assertDec(t, "buyer USDT", env.balance(t, "buyer", "USDT").Total, "9899.9")
	assertDec(t, "seller USDT", env.balance(t, "seller", "USDT").Free, "100")

	// ask, then the bid with its maker, then one trade.
	if len(env.journal.orders) != 3 {
		t.Errorf("journaled %d orders, want 3", len(env.journal.orders))
	}
	if len(env.journal.trades) != 1 || len(env.publisher.trades) != 1 {
		t.Errorf("journaled %d trades, published %d, want 1 each", len(env.journal.trades), len(env.publisher.trades))
	}
}

func TestSubmitOrder_ReturnsSnapshot(t *testing.T) {
	env := newTestEnv()
	env.register(t, "seller", "BTC", "5")
	env.register(t, "buyer", "USDT", "10000")

	ask := env.submit(t, limit("seller", "sell", "BTCUSDT", "100", "2"))
	env.submit(t, limit("buyer", "buy", "BTCUSDT", "100", "1"))

	if !ask.Filled.IsZero() {
		t.Errorf("earlier snapshot changed: filled %s", ask.Filled)
	}
}

// --- SubmitOrder: market orders ---

func TestSubmitOrder_MarketBuy_Sweep(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "USDT", "1000")
	if _, err := env.market.InjectDepth("BTCUSDT", DepthInput{
		LastUpdateID: 1,
		Asks:         [][2]string{{"100", "1"}, {"101", "2"}},
	}); err != nil {
		t.Fatal(err)
	}

	order := env.submit(t, market("alice", "buy", "BTCUSDT", "2"))

	if order.Status != domain.OrderStatusFilled {
		t.Errorf("status = %q, want filled", order.Status)
	}
	if len(order.Trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(order.Trades))
	}
	assertDec(t, "first price", order.Trades[0].Price, "100")
	assertDec(t, "second price", order.Trades[1].Price, "101")
	assertDec(t, "USDT", env.balance(t, "alice", "USDT").Free, "798.799")
	assertDec(t, "BTC", env.balance(t, "alice", "BTC").Free, "2")

	depth, err := env.market.GetDepth("BTCUSDT", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(depth.Asks) != 1 {
		t.Fatalf("expected one ask level left, got %d", len(depth.Asks))
	}
	assertDec(t, "remaining ask", depth.Asks[0].Amount, "1")

	if len(env.publisher.trades) != 2 {
		t.Errorf("published %d trades, want 2", len(env.publisher.trades))
	}
}

func TestSubmitOrder_MarketNoLiquidity(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "USDT", "1000")

	_, err := env.orderSvc.SubmitOrder(context.Background(), market("alice", "buy", "BTCUSDT", "1"))
	if !errors.Is(err, domain.ErrNoLiquidity) {
		t.Fatalf("expected ErrNoLiquidity, got %v", err)
	}
	var recorded *RecordedOrderError
	if !errors.As(err, &recorded) {
		t.Fatalf("expected RecordedOrderError, got %T", err)
	}

	stored, err := env.orderSvc.GetOrder(recorded.Order.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.OrderStatusPending || !stored.Remaining.Equal(dec("1")) {
		t.Errorf("unexpected recorded order: %+v", stored)
	}
	if len(env.journal.orders) != 1 {
		t.Errorf("journaled %d orders, want 1", len(env.journal.orders))
	}
	assertDec(t, "USDT", env.balance(t, "alice", "USDT").Free, "1000")
}

func TestSubmitOrder_MarketStaleDepth(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "BTC", "1")
	_ = env.depth.ApplyDelta(domain.DepthDelta{Symbol: "BTCUSDT", FirstUpdateID: 1, FinalUpdateID: 2}, env.market.now())

	_, err := env.orderSvc.SubmitOrder(context.Background(), market("alice", "sell", "BTCUSDT", "1"))
	if !errors.Is(err, domain.ErrStaleDepth) {
		t.Fatalf("expected ErrStaleDepth, got %v", err)
	}
	var recorded *RecordedOrderError
	if !errors.As(err, &recorded) || recorded.Order.OrderID == "" {
		t.Fatalf("expected recorded order, got %v", err)
	}
}

// --- SubmitOrder: rejections ---

func TestSubmitOrder_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  SubmitOrderRequest
	}{
		{"invalid account id", limit("bad id!", "buy", "BTCUSDT", "100", "1")},
		{"invalid type", SubmitOrderRequest{AccountID: "alice", Symbol: "BTCUSDT", Side: "buy", Type: "stop", Amount: "1"}},
		{"invalid side", limit("alice", "bid", "BTCUSDT", "100", "1")},
		{"empty amount", limit("alice", "buy", "BTCUSDT", "100", "")},
		{"malformed amount", limit("alice", "buy", "BTCUSDT", "100", "abc")},
		{"zero amount", limit("alice", "buy", "BTCUSDT", "100", "0")},
		{"negative amount", limit("alice", "buy", "BTCUSDT", "100", "-1")},
		{"amount too precise", limit("alice", "buy", "BTCUSDT", "100", "0.000000001")},
		{"limit without price", limit("alice", "buy", "BTCUSDT", "", "1")},
		{"zero price", limit("alice", "buy", "BTCUSDT", "0", "1")},
		{"price too precise", limit("alice", "buy", "BTCUSDT", "100.000000001", "1")},
		{"market with price", SubmitOrderRequest{AccountID: "alice", Symbol: "BTCUSDT", Side: "buy", Type: "market", Amount: "1", Price: "100"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.register(t, "alice", "USDT", "10000")

			_, err := env.orderSvc.SubmitOrder(context.Background(), tt.req)
			assertValidation(t, err)
			if len(env.journal.orders) != 0 {
				t.Error("rejected order should not be journaled")
			}
		})
	}
}

func TestSubmitOrder_Rejections(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "USDT", "50")

	tests := []struct {
		name string
		req  SubmitOrderRequest
		want error
	}{
		{"unknown symbol", limit("alice", "buy", "FOOUSDT", "100", "1"), domain.ErrSymbolNotFound},
		{"unknown account", limit("bob", "buy", "BTCUSDT", "100", "1"), domain.ErrAccountNotFound},
		{"insufficient balance", limit("alice", "buy", "BTCUSDT", "100", "1"), domain.ErrInsufficientBalance},
		{"market without liquidity", market("alice", "sell", "BTCUSDT", "1"), domain.ErrNoLiquidity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.orderSvc.SubmitOrder(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubmitOrder_JournalFailureIsNotSurfaced(t *testing.T) {
	env := newTestEnv()
	env.journal.err = errors.New("database down")
	env.register(t, "alice", "USDT", "10000")

	order, err := env.orderSvc.SubmitOrder(context.Background(), limit("alice", "buy", "BTCUSDT", "100", "1"))
	if err != nil {
		t.Fatalf("journal failure leaked: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("status = %q", order.Status)
	}
}

// --- GetOrder / CancelOrder ---

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv()
	if _, err := env.orderSvc.GetOrder("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCancelOrder_Pending(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "USDT", "1000")
	submitted := env.submit(t, limit("alice", "buy", "BTCUSDT", "100", "1"))

	cancelled, err := env.orderSvc.CancelOrder(context.Background(), submitted.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("got status %q, want cancelled", cancelled.Status)
	}
	if cancelled.CancelledAt == nil {
		t.Error("expected cancelled_at to be set")
	}
	b := env.balance(t, "alice", "USDT")
	assertDec(t, "free", b.Free, "1000")
	assertDec(t, "locked", b.Locked, "0")

	if len(env.publisher.cancelled) != 1 {
		t.Errorf("published %d cancellations, want 1", len(env.publisher.cancelled))
	}
	if last := env.journal.orders[len(env.journal.orders)-1]; last.Status != domain.OrderStatusCancelled {
		t.Errorf("last journaled status = %q", last.Status)
	}
}

func TestCancelOrder_Rejections(t *testing.T) {
	env := newTestEnv()
	env.register(t, "seller", "BTC", "1")
	env.register(t, "buyer", "USDT", "1000")
	ask := env.submit(t, limit("seller", "sell", "BTCUSDT", "100", "1"))
	env.submit(t, limit("buyer", "buy", "BTCUSDT", "100", "1"))

	if _, err := env.orderSvc.CancelOrder(context.Background(), ask.OrderID); !errors.Is(err, domain.ErrOrderNotCancellable) {
		t.Errorf("expected ErrOrderNotCancellable, got %v", err)
	}
	if _, err := env.orderSvc.CancelOrder(context.Background(), "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

// --- ListOrders ---

func TestListOrders_Pagination(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "USDT", "100000")

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, env.submit(t, limit("alice", "buy", "BTCUSDT", "100", "1")).OrderID)
	}

	orders, total, err := env.orderSvc.ListOrders("alice", nil, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || len(orders) != 2 {
		t.Fatalf("got %d orders of %d, want 2 of 5", len(orders), total)
	}
	if orders[0].OrderID != ids[4] {
		t.Errorf("expected newest first")
	}

	orders, _, _ = env.orderSvc.ListOrders("alice", nil, 3, 2)
	if len(orders) != 1 || orders[0].OrderID != ids[0] {
		t.Errorf("last page = %v", orders)
	}
}

func TestListOrders_StatusFilter(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "USDT", "100000")
	first := env.submit(t, limit("alice", "buy", "BTCUSDT", "100", "1"))
	env.submit(t, limit("alice", "buy", "BTCUSDT", "100", "1"))
	if _, err := env.orderSvc.CancelOrder(context.Background(), first.OrderID); err != nil {
		t.Fatal(err)
	}

	status := domain.OrderStatusCancelled
	orders, total, err := env.orderSvc.ListOrders("alice", &status, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || orders[0].OrderID != first.OrderID {
		t.Errorf("got %d cancelled orders", total)
	}
}

func TestListOrders_Errors(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "USDT", "1")
	bogus := domain.OrderStatus("expired")

	tests := []struct {
		name    string
		account string
		status  *domain.OrderStatus
		page    int
		limit   int
		want    error
	}{
		{"unknown account", "bob", nil, 1, 10, domain.ErrAccountNotFound},
		{"invalid status", "alice", &bogus, 1, 10, nil},
		{"page zero", "alice", nil, 0, 10, nil},
		{"limit zero", "alice", nil, 1, 0, nil},
		{"limit too large", "alice", nil, 1, 101, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.orderSvc.ListOrders(tt.account, tt.status, tt.page, tt.limit)
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Errorf("got %v, want %v", err, tt.want)
				}
				return
			}
			assertValidation(t, err)
		})
	}
}

// --- ListTrades ---

func TestListTrades_SortAndFilter(t *testing.T) {
	env := newTestEnv()
	env.register(t, "seller", "BTC", "5", "ETH", "5")
	env.register(t, "buyer", "USDT", "100000")

	env.submit(t, limit("seller", "sell", "BTCUSDT", "100", "1"))
	env.submit(t, limit("buyer", "buy", "BTCUSDT", "100", "1"))
	env.submit(t, limit("seller", "sell", "ETHUSDT", "50", "2"))
	env.submit(t, limit("buyer", "buy", "ETHUSDT", "50", "2"))

	all, err := env.orderSvc.ListTrades(ListTradesRequest{AccountID: "seller"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Symbol != "ETHUSDT" {
		t.Fatalf("default sort should be newest first, got %d trades", len(all))
	}
	if all[0].SideFor("seller") != domain.OrderSideSell {
		t.Errorf("seller sees side %q", all[0].SideFor("seller"))
	}

	byAmount, err := env.orderSvc.ListTrades(ListTradesRequest{AccountID: "buyer", Sort: "amount", Dir: "asc"})
	if err != nil {
		t.Fatal(err)
	}
	assertDec(t, "smallest amount", byAmount[0].Amount, "1")

	btc, err := env.orderSvc.ListTrades(ListTradesRequest{AccountID: "buyer", Symbol: "btcusdt"})
	if err != nil {
		t.Fatal(err)
	}
	if len(btc) != 1 || btc[0].Symbol != "BTCUSDT" {
		t.Errorf("symbol filter returned %d trades", len(btc))
	}
}

func TestListTrades_Errors(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "USDT", "1")

	if _, err := env.orderSvc.ListTrades(ListTradesRequest{AccountID: "bob"}); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := env.orderSvc.ListTrades(ListTradesRequest{AccountID: "alice", Symbol: "NOPE"}); !errors.Is(err, domain.ErrSymbolNotFound) {
		t.Errorf("expected ErrSymbolNotFound, got %v", err)
	}
	_, err := env.orderSvc.ListTrades(ListTradesRequest{AccountID: "alice", Sort: "volume"})
	assertValidation(t, err)
	_, err = env.orderSvc.ListTrades(ListTradesRequest{AccountID: "alice", Dir: "sideways"})
	assertValidation(t, err)
}
