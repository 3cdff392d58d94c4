package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/efreitasn/spotsim/internal/engine"
	"github.com/efreitasn/spotsim/internal/marketdata"
	"github.com/shopspring/decimal"
)

const (
	defaultDepthLimit = 20
	maxDepthLimit     = 100
	maxBookDepth      = 50
)

// Market is a tradable pair with its fee rates and latest ticker, if any.
type Market struct {
	Pair     domain.TradingPair
	TakerFee decimal.Decimal
	MakerFee decimal.Decimal
	Ticker   *domain.Ticker
}

// DepthResponse is a snapshot of the external order book.
type DepthResponse struct {
	Symbol       string
	LastUpdateID int64
	Bids         []domain.OrderBookLevel
	Asks         []domain.OrderBookLevel
	Stale        bool
	UpdatedAt    time.Time
}

// DepthInput is an injected depth snapshot. Levels are [price, amount]
// decimal strings.
type DepthInput struct {
	LastUpdateID int64
	Bids         [][2]string
	Asks         [][2]string
}

// TickerInput is an injected ticker. Only LastPrice is required.
type TickerInput struct {
	LastPrice          string
	PriceChange        string
	PriceChangePercent string
	OpenPrice          string
	HighPrice          string
	LowPrice           string
	Volume             string
	QuoteVolume        string
}

// BookResponse is the internal book of resting local orders.
type BookResponse struct {
	Symbol     string
	Bids       []engine.PriceLevel
	Asks       []engine.PriceLevel
	Spread     *decimal.Decimal // nil if either side empty
	SnapshotAt time.Time
}

// QuoteResponse is the estimated outcome of a market order.
type QuoteResponse struct {
	Symbol            string
	Side              domain.OrderSide
	AmountRequested   decimal.Decimal
	AmountAvailable   decimal.Decimal
	FullyFillable     bool
	EstimatedAvgPrice *decimal.Decimal // nil when no liquidity
	EstimatedTotal    *decimal.Decimal // nil when no liquidity
	EstimatedFee      decimal.Decimal
	Stale             bool
	PriceLevels       []engine.QuotePriceLevel
	QuotedAt          time.Time
}

// MarketService serves market data, injects external state, and quotes
// market orders.
type MarketService struct {
	pairs   *domain.PairRegistry
	tickers *marketdata.TickerCache
	depth   *marketdata.DepthManager
	books   *engine.BookManager
	matcher *engine.Matcher
	now     func() time.Time
}

// NewMarketService creates a new MarketService with the given dependencies.
func NewMarketService(
	pairs *domain.PairRegistry,
	tickers *marketdata.TickerCache,
	depth *marketdata.DepthManager,
	books *engine.BookManager,
	matcher *engine.Matcher,
) *MarketService {
	return &MarketService{
		pairs:   pairs,
		tickers: tickers,
		depth:   depth,
		books:   books,
		matcher: matcher,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MarketService) pair(symbol string) (domain.TradingPair, error) {
	pair, ok := s.pairs.Get(symbol)
	if !ok {
		return domain.TradingPair{}, domain.ErrSymbolNotFound
	}
	return pair, nil
}

// ListMarkets returns every configured pair sorted by symbol.
func (s *MarketService) ListMarkets() []Market {
	pairs := s.pairs.All()
	out := make([]Market, len(pairs))
	for i, p := range pairs {
		out[i] = Market{Pair: p, TakerFee: s.matcher.TakerFee(), MakerFee: s.matcher.MakerFee()}
		if t, ok := s.tickers.Get(p.Symbol); ok {
			out[i].Ticker = &t
		}
	}
	return out
}

// GetTicker returns the latest ticker. A pair without data yields a ticker
// with zero values.
func (s *MarketService) GetTicker(symbol string) (domain.Ticker, error) {
	pair, err := s.pair(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}
	t, ok := s.tickers.Get(pair.Symbol)
	if !ok {
		return domain.Ticker{Symbol: pair.Symbol}, nil
	}
	return t, nil
}

// GetDepth returns up to limit levels per side of the external book. A
// zero limit selects the default.
func (s *MarketService) GetDepth(symbol string, limit int) (*DepthResponse, error) {
	pair, err := s.pair(symbol)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = defaultDepthLimit
	}
	if limit < 1 || limit > maxDepthLimit {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("limit must be between 1 and %d", maxDepthLimit),
		}
	}

	book := s.depth.GetOrCreate(pair.Symbol)
	view := book.View(domain.BookSideBids)
	bids, asks := book.Levels(limit)
	return &DepthResponse{
		Symbol:       pair.Symbol,
		LastUpdateID: view.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
		Stale:        view.Stale,
		UpdatedAt:    view.UpdatedAt,
	}, nil
}

// InjectDepth replaces the external book with the given snapshot.
func (s *MarketService) InjectDepth(symbol string, in DepthInput) (*DepthResponse, error) {
	pair, err := s.pair(symbol)
	if err != nil {
		return nil, err
	}
	bids, err := parseLevels("bids", in.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parseLevels("asks", in.Asks)
	if err != nil {
		return nil, err
	}
	if in.LastUpdateID < 0 {
		return nil, &domain.ValidationError{Message: "last_update_id must be >= 0"}
	}

	s.depth.ApplySnapshot(domain.DepthSnapshot{
		Symbol:       pair.Symbol,
		LastUpdateID: in.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
	}, s.now())
	return s.GetDepth(pair.Symbol, maxDepthLimit)
}

func parseLevels(field string, raw [][2]string) ([]domain.PriceAmount, error) {
	out := make([]domain.PriceAmount, 0, len(raw))
	for i, l := range raw {
		price, err := domain.ParseDecimal(l[0])
		if err != nil || !price.IsPositive() {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("%s[%d]: price must be a positive decimal", field, i)}
		}
		amount, err := domain.ParseDecimal(l[1])
		if err != nil || amount.IsNegative() {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("%s[%d]: amount must be a non-negative decimal", field, i)}
		}
		out = append(out, domain.PriceAmount{Price: price, Amount: amount})
	}
	return out, nil
}

// InjectTicker stores a ticker for the symbol.
func (s *MarketService) InjectTicker(symbol string, in TickerInput) (domain.Ticker, error) {
	pair, err := s.pair(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}

	last, err := domain.ParseDecimal(in.LastPrice)
	if err != nil || !last.IsPositive() {
		return domain.Ticker{}, &domain.ValidationError{Message: "last_price must be a positive decimal"}
	}

	t := domain.Ticker{Symbol: pair.Symbol, LastPrice: last, UpdatedAt: s.now()}
	optional := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"price_change", in.PriceChange, &t.PriceChange},
		{"price_change_percent", in.PriceChangePercent, &t.PriceChangePercent},
		{"open_price", in.OpenPrice, &t.OpenPrice},
		{"high_price", in.HighPrice, &t.HighPrice},
		{"low_price", in.LowPrice, &t.LowPrice},
		{"volume", in.Volume, &t.Volume},
		{"quote_volume", in.QuoteVolume, &t.QuoteVolume},
	}
	for _, f := range optional {
		if f.raw == "" {
			continue
		}
		d, err := domain.ParseDecimal(f.raw)
		if err != nil {
			return domain.Ticker{}, &domain.ValidationError{Message: f.name + ": " + err.Error()}
		}
		*f.dst = d
	}

	s.tickers.Set(t)
	return t, nil
}

// GetBook returns the top depth price levels of the internal book.
func (s *MarketService) GetBook(symbol string, depth int) (*BookResponse, error) {
	pair, err := s.pair(symbol)
	if err != nil {
		return nil, err
	}
	if depth < 1 || depth > maxBookDepth {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("depth must be between 1 and %d", maxBookDepth),
		}
	}

	book := s.books.GetOrCreate(pair.Symbol)
	book.RLock()
	defer book.RUnlock()

	resp := &BookResponse{
		Symbol:     pair.Symbol,
		Bids:       book.TopBids(depth),
		Asks:       book.TopAsks(depth),
		SnapshotAt: s.now(),
	}
	if len(resp.Bids) > 0 && len(resp.Asks) > 0 {
		spread := resp.Asks[0].Price.Sub(resp.Bids[0].Price)
		resp.Spread = &spread
	}
	return resp, nil
}

// GetQuote simulates a market order against the external book without
// placing it.
func (s *MarketService) GetQuote(symbol, side, amount string) (*QuoteResponse, error) {
	pair, err := s.pair(symbol)
	if err != nil {
		return nil, err
	}

	orderSide := domain.OrderSide(strings.ToLower(side))
	if orderSide != domain.OrderSideBuy && orderSide != domain.OrderSideSell {
		return nil, &domain.ValidationError{
			Message: "side must be 'buy' or 'sell'",
		}
	}
	qty, err := domain.ParseDecimal(amount)
	if err != nil || !qty.IsPositive() {
		return nil, &domain.ValidationError{
			Message: "amount must be greater than 0",
		}
	}
	if !domain.HasPrecision(qty, pair.BasePrecision) {
		return nil, &domain.ValidationError{
			Message: "amount has too many decimal places",
		}
	}

	result, err := s.matcher.SimulateMarketOrder(pair.Symbol, orderSide, qty)
	if err != nil {
		return nil, err
	}

	return &QuoteResponse{
		Symbol:            pair.Symbol,
		Side:              orderSide,
		AmountRequested:   qty,
		AmountAvailable:   result.AmountAvailable,
		FullyFillable:     result.FullyFillable,
		EstimatedAvgPrice: result.EstimatedAvgPrice,
		EstimatedTotal:    result.EstimatedTotal,
		EstimatedFee:      result.EstimatedFee,
		Stale:             result.Stale,
		PriceLevels:       result.PriceLevels,
		QuotedAt:          s.now(),
	}, nil
}
