package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a single execution. OrderID is the taker order;
// MakerOrderID is the resting order for crosses and empty for market
// sweeps against the external book.
type Trade struct {
	TradeID        string
	OrderID        string
	MakerOrderID   string
	AccountID      string // taker account
	MakerAccountID string
	Symbol         string
	Side           OrderSide // taker side
	Price          decimal.Decimal
	Amount         decimal.Decimal
	Total          decimal.Decimal // quote moved for the taker, fee included
	Fee            decimal.Decimal
	ExecutedAt     time.Time
}

// SideFor returns the trade side as seen by accountID. The taker side wins
// when an account trades against itself.
func (t *Trade) SideFor(accountID string) OrderSide {
	if accountID != t.AccountID && accountID == t.MakerAccountID {
		return t.Side.Opposite()
	}
	return t.Side
}

// Gross returns the notional value of the trade before fees.
func (t *Trade) Gross() decimal.Decimal {
	return t.Price.Mul(t.Amount)
}
