package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance holds an account's position in a single asset.
// Total is always Free + Locked.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
	Total  decimal.Decimal
}

// NewBalance returns a balance with the given free amount and nothing locked.
func NewBalance(asset string, free decimal.Decimal) *Balance {
	return &Balance{
		Asset:  asset,
		Free:   free,
		Locked: decimal.Zero,
		Total:  free,
	}
}

// Recompute refreshes Total from Free and Locked.
func (b *Balance) Recompute() {
	b.Total = b.Free.Add(b.Locked)
}

// Account is a participant of the sandbox with per-asset balances.
// Deposits track what was credited from outside trading, the baseline
// for PnL.
type Account struct {
	AccountID string
	Balances  map[string]*Balance
	Deposits  map[string]decimal.Decimal
	CreatedAt time.Time
}

// Leg is one balance mutation of an atomic ledger update.
type Leg struct {
	AccountID string
	Asset     string
	Free      decimal.Decimal // delta
	Locked    decimal.Decimal // delta
}

// Settlement describes a two-party transfer for one trade or one
// aggregated sweep. Base moves from seller to buyer, quote from buyer to
// seller; the difference between BuyerPays and SellerReceives is the fee
// kept by the venue. An empty Buyer or Seller is the external market.
//
// BuyerRelease is the part of the buyer's locked quote released by this
// settlement; whatever is not paid returns to free. SellerRelease is the
// part of the seller's locked base consumed; the rest comes from free.
type Settlement struct {
	Buyer          string
	Seller         string
	Base           string
	Quote          string
	Amount         decimal.Decimal
	BuyerPays      decimal.Decimal
	SellerReceives decimal.Decimal
	BuyerRelease   decimal.Decimal
	SellerRelease  decimal.Decimal
}

// Legs expands the settlement into ledger legs.
func (s Settlement) Legs() []Leg {
	legs := make([]Leg, 0, 4)
	if s.Buyer != "" {
		legs = append(legs,
			Leg{AccountID: s.Buyer, Asset: s.Base, Free: s.Amount, Locked: decimal.Zero},
			Leg{
				AccountID: s.Buyer,
				Asset:     s.Quote,
				Free:      s.BuyerRelease.Sub(s.BuyerPays),
				Locked:    s.BuyerRelease.Neg(),
			},
		)
	}
	if s.Seller != "" {
		legs = append(legs,
			Leg{
				AccountID: s.Seller,
				Asset:     s.Base,
				Free:      s.Amount.Sub(s.SellerRelease).Neg(),
				Locked:    s.SellerRelease.Neg(),
			},
			Leg{AccountID: s.Seller, Asset: s.Quote, Free: s.SellerReceives, Locked: decimal.Zero},
		)
	}
	return legs
}

// Portfolio is the derived valuation of an account.
type Portfolio struct {
	AccountID  string
	Balances   []Balance
	TotalValue decimal.Decimal
	TotalPnL   decimal.Decimal
	ValuedAt   time.Time
}

// Valuate sums amount × price for every asset, valuing the quote asset
// at 1. Assets without a known price contribute nothing.
func Valuate(amounts map[string]decimal.Decimal, prices map[string]decimal.Decimal, quote string) decimal.Decimal {
	total := decimal.Zero
	for asset, amount := range amounts {
		if asset == quote {
			total = total.Add(amount)
			continue
		}
		price, ok := prices[asset+quote]
		if !ok {
			continue
		}
		total = total.Add(amount.Mul(price))
	}
	return total
}
