package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes limit orders from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderSide indicates whether an order buys or sells the base asset.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Order represents a limit or market instruction submitted by an account.
//
// Filled + Remaining always equals Amount. Resting limit orders stay
// pending while partly filled; partially_filled is reserved for market
// orders that exhausted the available liquidity.
type Order struct {
	OrderID     string
	AccountID   string
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Amount      decimal.Decimal
	Price       decimal.Decimal // zero for market orders
	Filled      decimal.Decimal
	Remaining   decimal.Decimal
	Locked      decimal.Decimal // outstanding ledger reservation
	Status      OrderStatus
	Seq         uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time
	Trades      []*Trade
}

// IsTerminal reports whether the order can no longer change.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusPartiallyFilled:
		return true
	}
	return false
}

// Fill records an execution of amount against the order and updates its
// status. A limit order stays pending until nothing remains.
func (o *Order) Fill(amount decimal.Decimal, at time.Time) {
	o.Filled = o.Filled.Add(amount)
	o.Remaining = o.Remaining.Sub(amount)
	o.UpdatedAt = at
	if o.Remaining.IsZero() {
		o.Status = OrderStatusFilled
	}
}

// AveragePrice computes the volume-weighted average execution price as
// sum(trade.price × trade.amount) / filled. Returns (price, true) when
// trades exist, or (zero, false) when nothing has executed.
func (o *Order) AveragePrice() (decimal.Decimal, bool) {
	if len(o.Trades) == 0 || o.Filled.IsZero() {
		return decimal.Zero, false
	}
	total := decimal.Zero
	for _, t := range o.Trades {
		total = total.Add(t.Price.Mul(t.Amount))
	}
	return total.DivRound(o.Filled, 8), true
}

// Validate checks the numeric parameters of the order against the pair's
// precision rules. It returns a *ValidationError describing the first
// problem found.
func (o *Order) Validate(pair TradingPair) error {
	if !o.Amount.IsPositive() {
		return &ValidationError{Message: "amount must be greater than 0"}
	}
	if !HasPrecision(o.Amount, pair.BasePrecision) {
		return &ValidationError{Message: "amount has too many decimal places"}
	}

	switch o.Type {
	case OrderTypeLimit:
		if !o.Price.IsPositive() {
			return &ValidationError{Message: "price must be greater than 0"}
		}
		if !HasPrecision(o.Price, pair.QuotePrecision) {
			return &ValidationError{Message: "price has too many decimal places"}
		}
	case OrderTypeMarket:
		if !o.Price.IsZero() {
			return &ValidationError{Message: "market orders must not include price"}
		}
	default:
		return &ValidationError{Message: "type must be 'limit' or 'market'"}
	}

	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return &ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	return nil
}

// Clone returns a copy that shares no mutable state with o. Trades are
// immutable, so the slice is copied but its elements are shared.
func (o *Order) Clone() *Order {
	c := *o
	if o.CancelledAt != nil {
		at := *o.CancelledAt
		c.CancelledAt = &at
	}
	c.Trades = make([]*Trade, len(o.Trades))
	copy(c.Trades, o.Trades)
	return &c
}
