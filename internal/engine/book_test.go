package engine

import (
	"testing"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// makeEntry creates an OrderBookEntry backed by a minimal order.
func makeEntry(side domain.OrderSide, price string, createdAt time.Time, seq uint64, orderID string, remaining string) OrderBookEntry {
	o := &domain.Order{
		OrderID:   orderID,
		Side:      side,
		Price:     dec(price),
		Amount:    dec(remaining),
		Remaining: dec(remaining),
		Seq:       seq,
		CreatedAt: createdAt,
	}
	return OrderBookEntry{
		Price:     o.Price,
		CreatedAt: createdAt,
		Seq:       seq,
		OrderID:   orderID,
		Order:     o,
	}
}

var baseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestBidLess(t *testing.T) {
	tests := []struct {
		name string
		a, b OrderBookEntry
	}{
		{"higher price first", makeEntry(domain.OrderSideBuy, "200", baseTime, 2, "a", "1"), makeEntry(domain.OrderSideBuy, "100", baseTime, 1, "b", "1")},
		{"earlier time first", makeEntry(domain.OrderSideBuy, "100", baseTime, 2, "a", "1"), makeEntry(domain.OrderSideBuy, "100", baseTime.Add(time.Second), 1, "b", "1")},
		{"lower seq first", makeEntry(domain.OrderSideBuy, "100", baseTime, 1, "z", "1"), makeEntry(domain.OrderSideBuy, "100", baseTime, 2, "a", "1")},
		{"equal decimals compare by value", makeEntry(domain.OrderSideBuy, "100.50", baseTime, 1, "a", "1"), makeEntry(domain.OrderSideBuy, "100.5", baseTime, 2, "b", "1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bidLess(tt.a, tt.b) {
				t.Error("bidLess(a, b) = false, want true")
			}
			if bidLess(tt.b, tt.a) {
				t.Error("bidLess(b, a) = true, want false")
			}
		})
	}
}

func TestAskLess(t *testing.T) {
	tests := []struct {
		name string
		a, b OrderBookEntry
	}{
		{"lower price first", makeEntry(domain.OrderSideSell, "100", baseTime, 2, "a", "1"), makeEntry(domain.OrderSideSell, "200", baseTime, 1, "b", "1")},
		{"earlier time first", makeEntry(domain.OrderSideSell, "100", baseTime, 2, "a", "1"), makeEntry(domain.OrderSideSell, "100", baseTime.Add(time.Second), 1, "b", "1")},
		{"lower seq first", makeEntry(domain.OrderSideSell, "100", baseTime, 1, "z", "1"), makeEntry(domain.OrderSideSell, "100", baseTime, 2, "a", "1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !askLess(tt.a, tt.b) {
				t.Error("askLess(a, b) = false, want true")
			}
			if askLess(tt.b, tt.a) {
				t.Error("askLess(b, a) = true, want false")
			}
		})
	}
}

func TestOrderBook_PriorityOrder(t *testing.T) {
	book := NewOrderBook("BTCUSDT", 0)
	book.InsertBid(makeEntry(domain.OrderSideBuy, "100", baseTime, 1, "b100", "1"))
	book.InsertBid(makeEntry(domain.OrderSideBuy, "102", baseTime.Add(time.Second), 2, "b102", "1"))
	book.InsertBid(makeEntry(domain.OrderSideBuy, "101", baseTime.Add(2*time.Second), 3, "b101", "1"))

	var got []string
	book.WalkBids(func(e OrderBookEntry) bool {
		got = append(got, e.OrderID)
		return true
	})
	want := []string{"b102", "b101", "b100"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bid order = %v, want %v", got, want)
		}
	}

	best, ok := book.BestBid()
	if !ok || best.OrderID != "b102" {
		t.Errorf("BestBid = %v, %v; want b102", best.OrderID, ok)
	}
}

func TestOrderBook_Remove(t *testing.T) {
	book := NewOrderBook("BTCUSDT", 0)
	book.InsertAsk(makeEntry(domain.OrderSideSell, "100", baseTime, 1, "a1", "1"))
	book.InsertAsk(makeEntry(domain.OrderSideSell, "101", baseTime, 2, "a2", "1"))

	if !book.Remove("a1") {
		t.Fatal("Remove(a1) = false, want true")
	}
	if book.Remove("a1") {
		t.Error("second Remove(a1) = true, want false")
	}
	if book.Contains("a1") {
		t.Error("Contains(a1) after removal")
	}
	best, _ := book.BestAsk()
	if best.OrderID != "a2" {
		t.Errorf("BestAsk = %s, want a2", best.OrderID)
	}
	if book.AskCount() != 1 {
		t.Errorf("AskCount = %d, want 1", book.AskCount())
	}
}

func TestOrderBook_EmptySides(t *testing.T) {
	book := NewOrderBook("BTCUSDT", 0)
	if _, ok := book.BestBid(); ok {
		t.Error("BestBid on empty book returned ok")
	}
	if _, ok := book.BestAsk(); ok {
		t.Error("BestAsk on empty book returned ok")
	}
	if levels := book.TopBids(5); len(levels) != 0 {
		t.Errorf("TopBids on empty book = %v", levels)
	}
}

func TestOrderBook_TopLevelsAggregate(t *testing.T) {
	book := NewOrderBook("BTCUSDT", 0)
	book.InsertAsk(makeEntry(domain.OrderSideSell, "100", baseTime, 1, "a1", "1"))
	book.InsertAsk(makeEntry(domain.OrderSideSell, "100", baseTime, 2, "a2", "0.5"))
	book.InsertAsk(makeEntry(domain.OrderSideSell, "101", baseTime, 3, "a3", "2"))
	book.InsertAsk(makeEntry(domain.OrderSideSell, "102", baseTime, 4, "a4", "3"))

	levels := book.TopAsks(2)
	if len(levels) != 2 {
		t.Fatalf("len(levels) = %d, want 2", len(levels))
	}
	if !levels[0].Price.Equal(dec("100")) || !levels[0].Amount.Equal(dec("1.5")) || levels[0].OrderCount != 2 {
		t.Errorf("level 0 = %+v", levels[0])
	}
	if !levels[1].Price.Equal(dec("101")) || !levels[1].Amount.Equal(dec("2")) {
		t.Errorf("level 1 = %+v", levels[1])
	}
	if book.TopAsks(0) != nil {
		t.Error("TopAsks(0) should be nil")
	}
}

func TestOrderBook_FullyCrosses(t *testing.T) {
	book := NewOrderBook("BTCUSDT", 0)
	book.InsertAsk(makeEntry(domain.OrderSideSell, "100", baseTime, 1, "a1", "1"))
	book.InsertAsk(makeEntry(domain.OrderSideSell, "105", baseTime, 2, "a2", "5"))

	tests := []struct {
		price, amount string
		want          bool
	}{
		{"100", "1", true},
		{"100", "1.5", false},
		{"105", "6", true},
		{"99", "0.1", false},
	}
	for _, tt := range tests {
		o := &domain.Order{Side: domain.OrderSideBuy, Price: dec(tt.price), Amount: dec(tt.amount)}
		if got := book.fullyCrosses(o); got != tt.want {
			t.Errorf("fullyCrosses(buy %s@%s) = %v, want %v", tt.amount, tt.price, got, tt.want)
		}
	}
}

func TestOrderBook_HasRoom(t *testing.T) {
	book := NewOrderBook("BTCUSDT", 2)
	book.InsertBid(makeEntry(domain.OrderSideBuy, "100", baseTime, 1, "b1", "1"))
	if !book.hasRoom(domain.OrderSideBuy) {
		t.Error("hasRoom(buy) = false with 1 of 2")
	}
	book.InsertBid(makeEntry(domain.OrderSideBuy, "100", baseTime, 2, "b2", "1"))
	if book.hasRoom(domain.OrderSideBuy) {
		t.Error("hasRoom(buy) = true with 2 of 2")
	}
	if !book.hasRoom(domain.OrderSideSell) {
		t.Error("hasRoom(sell) = false on empty side")
	}
}

func TestBookManager_GetOrCreate(t *testing.T) {
	bm := NewBookManager(100)
	a := bm.GetOrCreate("BTCUSDT")
	b := bm.GetOrCreate("BTCUSDT")
	if a != b {
		t.Error("GetOrCreate returned different books for the same symbol")
	}
	if bm.GetOrCreate("ETHUSDT") == a {
		t.Error("GetOrCreate returned the same book for different symbols")
	}
	if a.Symbol() != "BTCUSDT" {
		t.Errorf("Symbol() = %q", a.Symbol())
	}
}
