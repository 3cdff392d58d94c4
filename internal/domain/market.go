package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookSide selects one side of a depth book.
type BookSide string

const (
	BookSideBids BookSide = "bids"
	BookSideAsks BookSide = "asks"
)

// LiquiditySide returns the side of the external book an order of the
// given side trades against: buys take asks, sells take bids.
func LiquiditySide(side OrderSide) BookSide {
	if side == OrderSideBuy {
		return BookSideAsks
	}
	return BookSideBids
}

// Ticker is the latest 24h statistics for a symbol.
type Ticker struct {
	Symbol             string
	LastPrice          decimal.Decimal
	PriceChange        decimal.Decimal
	PriceChangePercent decimal.Decimal
	OpenPrice          decimal.Decimal
	HighPrice          decimal.Decimal
	LowPrice           decimal.Decimal
	Volume             decimal.Decimal
	QuoteVolume        decimal.Decimal
	UpdatedAt          time.Time
}

// OrderBookLevel is one aggregated price level. Total is Price × Amount.
type OrderBookLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
	Total  decimal.Decimal
}

// NewLevel builds a level with Total computed.
func NewLevel(price, amount decimal.Decimal) OrderBookLevel {
	return OrderBookLevel{Price: price, Amount: amount, Total: price.Mul(amount)}
}

// PriceAmount is a raw (price, amount) pair from a depth feed.
type PriceAmount struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// DepthSnapshot is a full replacement of a symbol's external depth.
type DepthSnapshot struct {
	Symbol       string
	LastUpdateID int64
	Bids         []PriceAmount
	Asks         []PriceAmount
}

// DepthDelta is an incremental depth update covering update ids
// FirstUpdateID..FinalUpdateID. A zero amount removes the level.
type DepthDelta struct {
	Symbol        string
	FirstUpdateID int64
	FinalUpdateID int64
	Bids          []PriceAmount
	Asks          []PriceAmount
}

// DepthView is a read-only copy of one side of the external book, best
// level first.
type DepthView struct {
	Levels       []OrderBookLevel
	LastUpdateID int64
	UpdatedAt    time.Time
	Stale        bool
}

// Fill is liquidity taken from one external level.
type Fill struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}
