// Package journal writes orders and trades to an append-only history sink.
// The journal is never read back by the engine.
package journal

import (
	"context"

	"github.com/efreitasn/spotsim/internal/domain"
)

// Journal records order state changes and executed trades.
type Journal interface {
	RecordOrder(ctx context.Context, o *domain.Order) error
	RecordTrades(ctx context.Context, trades []*domain.Trade) error
	Close()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordOrder(context.Context, *domain.Order) error    { return nil }
func (Nop) RecordTrades(context.Context, []*domain.Trade) error { return nil }
func (Nop) Close()                                              {}
