// Package events publishes trade and order lifecycle events.
package events

import (
	"context"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
)

// Event types, sent in the "event-type" message header.
const (
	TypeTradeExecuted  = "trade.executed"
	TypeOrderCancelled = "order.cancelled"
)

// Publisher emits events for executed trades and cancelled orders.
type Publisher interface {
	TradeExecuted(ctx context.Context, trades []*domain.Trade) error
	OrderCancelled(ctx context.Context, o *domain.Order) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) TradeExecuted(context.Context, []*domain.Trade) error { return nil }
func (Nop) OrderCancelled(context.Context, *domain.Order) error  { return nil }
func (Nop) Close() error                                         { return nil }

// TradeEvent is the payload of a trade.executed message.
type TradeEvent struct {
	TradeID        string    `json:"trade_id"`
	OrderID        string    `json:"order_id"`
	MakerOrderID   string    `json:"maker_order_id,omitempty"`
	AccountID      string    `json:"account_id"`
	MakerAccountID string    `json:"maker_account_id,omitempty"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Price          string    `json:"price"`
	Amount         string    `json:"amount"`
	Total          string    `json:"total"`
	Fee            string    `json:"fee"`
	ExecutedAt     time.Time `json:"executed_at"`
}

// OrderCancelledEvent is the payload of an order.cancelled message.
type OrderCancelledEvent struct {
	OrderID     string    `json:"order_id"`
	AccountID   string    `json:"account_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Amount      string    `json:"amount"`
	Filled      string    `json:"filled"`
	Remaining   string    `json:"remaining"`
	CancelledAt time.Time `json:"cancelled_at"`
}

func newTradeEvent(t *domain.Trade) TradeEvent {
	return TradeEvent{
		TradeID:        t.TradeID,
		OrderID:        t.OrderID,
		MakerOrderID:   t.MakerOrderID,
		AccountID:      t.AccountID,
		MakerAccountID: t.MakerAccountID,
		Symbol:         t.Symbol,
		Side:           string(t.Side),
		Price:          t.Price.String(),
		Amount:         t.Amount.String(),
		Total:          t.Total.String(),
		Fee:            t.Fee.String(),
		ExecutedAt:     t.ExecutedAt.UTC(),
	}
}

func newOrderCancelledEvent(o *domain.Order) OrderCancelledEvent {
	ev := OrderCancelledEvent{
		OrderID:   o.OrderID,
		AccountID: o.AccountID,
		Symbol:    o.Symbol,
		Side:      string(o.Side),
		Amount:    o.Amount.String(),
		Filled:    o.Filled.String(),
		Remaining: o.Remaining.String(),
	}
	if o.CancelledAt != nil {
		ev.CancelledAt = o.CancelledAt.UTC()
	}
	return ev
}
