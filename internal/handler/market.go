package handler

import (
	"net/http"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/efreitasn/spotsim/internal/engine"
	"github.com/efreitasn/spotsim/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const defaultBookDepth = 10

// MarketHandler handles HTTP requests for market data endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

type tickerResponse struct {
	Symbol             string          `json:"symbol"`
	LastPrice          decimal.Decimal `json:"last_price"`
	PriceChange        decimal.Decimal `json:"price_change"`
	PriceChangePercent decimal.Decimal `json:"price_change_percent"`
	OpenPrice          decimal.Decimal `json:"open_price"`
	HighPrice          decimal.Decimal `json:"high_price"`
	LowPrice           decimal.Decimal `json:"low_price"`
	Volume             decimal.Decimal `json:"volume"`
	QuoteVolume        decimal.Decimal `json:"quote_volume"`
	UpdatedAt          *string         `json:"updated_at"`
}

type tickerRequest struct {
	LastPrice          string `json:"last_price"`
	PriceChange        string `json:"price_change"`
	PriceChangePercent string `json:"price_change_percent"`
	OpenPrice          string `json:"open_price"`
	HighPrice          string `json:"high_price"`
	LowPrice           string `json:"low_price"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quote_volume"`
}

type marketResponse struct {
	Symbol         string          `json:"symbol"`
	Base           string          `json:"base"`
	Quote          string          `json:"quote"`
	BasePrecision  int32           `json:"base_precision"`
	QuotePrecision int32           `json:"quote_precision"`
	TakerFee       decimal.Decimal `json:"taker_fee"`
	MakerFee       decimal.Decimal `json:"maker_fee"`
	Ticker         *tickerResponse `json:"ticker"`
}

type depthLevelResponse struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Total  decimal.Decimal `json:"total"`
}

type depthResponse struct {
	Symbol       string               `json:"symbol"`
	LastUpdateID int64                `json:"last_update_id"`
	Bids         []depthLevelResponse `json:"bids"`
	Asks         []depthLevelResponse `json:"asks"`
	Stale        bool                 `json:"stale"`
	UpdatedAt    *string              `json:"updated_at"`
}

type depthRequest struct {
	LastUpdateID int64       `json:"last_update_id"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

type bookLevelResponse struct {
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	OrderCount int             `json:"order_count"`
}

type bookResponse struct {
	Symbol     string              `json:"symbol"`
	Bids       []bookLevelResponse `json:"bids"`
	Asks       []bookLevelResponse `json:"asks"`
	Spread     *decimal.Decimal    `json:"spread"`
	SnapshotAt string              `json:"snapshot_at"`
}

type quoteLevelResponse struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

type quoteResponse struct {
	Symbol            string               `json:"symbol"`
	Side              string               `json:"side"`
	AmountRequested   decimal.Decimal      `json:"amount_requested"`
	AmountAvailable   decimal.Decimal      `json:"amount_available"`
	FullyFillable     bool                 `json:"fully_fillable"`
	EstimatedAvgPrice *decimal.Decimal     `json:"estimated_average_price"`
	EstimatedTotal    *decimal.Decimal     `json:"estimated_total"`
	EstimatedFee      decimal.Decimal      `json:"estimated_fee"`
	Stale             bool                 `json:"stale"`
	PriceLevels       []quoteLevelResponse `json:"price_levels"`
	QuotedAt          string               `json:"quoted_at"`
}

// ListMarkets handles GET /markets.
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.marketSvc.ListMarkets()
	resp := make([]marketResponse, len(markets))
	for i, m := range markets {
		resp[i] = marketResponse{
			Symbol:         m.Pair.Symbol,
			Base:           m.Pair.Base,
			Quote:          m.Pair.Quote,
			BasePrecision:  m.Pair.BasePrecision,
			QuotePrecision: m.Pair.QuotePrecision,
			TakerFee:       m.TakerFee,
			MakerFee:       m.MakerFee,
		}
		if m.Ticker != nil {
			t := buildTickerResponse(*m.Ticker)
			resp[i].Ticker = &t
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"markets": resp})
}

// GetTicker handles GET /markets/{symbol}/ticker.
func (h *MarketHandler) GetTicker(w http.ResponseWriter, r *http.Request) {
	ticker, err := h.marketSvc.GetTicker(chi.URLParam(r, "symbol"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildTickerResponse(ticker))
}

// InjectTicker handles PUT /markets/{symbol}/ticker.
func (h *MarketHandler) InjectTicker(w http.ResponseWriter, r *http.Request) {
	var req tickerRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ticker, err := h.marketSvc.InjectTicker(chi.URLParam(r, "symbol"), service.TickerInput{
		LastPrice:          req.LastPrice,
		PriceChange:        req.PriceChange,
		PriceChangePercent: req.PriceChangePercent,
		OpenPrice:          req.OpenPrice,
		HighPrice:          req.HighPrice,
		LowPrice:           req.LowPrice,
		Volume:             req.Volume,
		QuoteVolume:        req.QuoteVolume,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildTickerResponse(ticker))
}

// GetDepth handles GET /markets/{symbol}/depth.
func (h *MarketHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
		return
	}

	depth, err := h.marketSvc.GetDepth(chi.URLParam(r, "symbol"), limit)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildDepthResponse(depth))
}

// InjectDepth handles PUT /markets/{symbol}/depth.
func (h *MarketHandler) InjectDepth(w http.ResponseWriter, r *http.Request) {
	var req depthRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	depth, err := h.marketSvc.InjectDepth(chi.URLParam(r, "symbol"), service.DepthInput{
		LastUpdateID: req.LastUpdateID,
		Bids:         req.Bids,
		Asks:         req.Asks,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildDepthResponse(depth))
}

// GetBook handles GET /markets/{symbol}/book.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth, ok := queryInt(r, "depth", defaultBookDepth)
	if !ok {
		WriteError(w, http.StatusBadRequest, "validation_error", "depth must be a valid integer")
		return
	}

	book, err := h.marketSvc.GetBook(chi.URLParam(r, "symbol"), depth)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, bookResponse{
		Symbol:     book.Symbol,
		Bids:       buildBookLevels(book.Bids),
		Asks:       buildBookLevels(book.Asks),
		Spread:     book.Spread,
		SnapshotAt: formatTime(book.SnapshotAt),
	})
}

// GetQuote handles GET /markets/{symbol}/quote?side=&amount=.
func (h *MarketHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quote, err := h.marketSvc.GetQuote(chi.URLParam(r, "symbol"), q.Get("side"), q.Get("amount"))
	if err != nil {
		mapError(w, err)
		return
	}

	resp := quoteResponse{
		Symbol:            quote.Symbol,
		Side:              string(quote.Side),
		AmountRequested:   quote.AmountRequested,
		AmountAvailable:   quote.AmountAvailable,
		FullyFillable:     quote.FullyFillable,
		EstimatedAvgPrice: quote.EstimatedAvgPrice,
		EstimatedTotal:    quote.EstimatedTotal,
		EstimatedFee:      quote.EstimatedFee,
		Stale:             quote.Stale,
		PriceLevels:       make([]quoteLevelResponse, len(quote.PriceLevels)),
		QuotedAt:          formatTime(quote.QuotedAt),
	}
	for i, l := range quote.PriceLevels {
		resp.PriceLevels[i] = quoteLevelResponse{Price: l.Price, Amount: l.Amount}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func buildTickerResponse(t domain.Ticker) tickerResponse {
	return tickerResponse{
		Symbol:             t.Symbol,
		LastPrice:          t.LastPrice,
		PriceChange:        t.PriceChange,
		PriceChangePercent: t.PriceChangePercent,
		OpenPrice:          t.OpenPrice,
		HighPrice:          t.HighPrice,
		LowPrice:           t.LowPrice,
		Volume:             t.Volume,
		QuoteVolume:        t.QuoteVolume,
		UpdatedAt:          formatTimePtr(&t.UpdatedAt),
	}
}

func buildDepthResponse(d *service.DepthResponse) depthResponse {
	return depthResponse{
		Symbol:       d.Symbol,
		LastUpdateID: d.LastUpdateID,
		Bids:         buildDepthLevels(d.Bids),
		Asks:         buildDepthLevels(d.Asks),
		Stale:        d.Stale,
		UpdatedAt:    formatTimePtr(&d.UpdatedAt),
	}
}

func buildDepthLevels(levels []domain.OrderBookLevel) []depthLevelResponse {
	out := make([]depthLevelResponse, len(levels))
	for i, l := range levels {
		out[i] = depthLevelResponse{Price: l.Price, Amount: l.Amount, Total: l.Total}
	}
	return out
}

func buildBookLevels(levels []engine.PriceLevel) []bookLevelResponse {
	out := make([]bookLevelResponse, len(levels))
	for i, l := range levels {
		out[i] = bookLevelResponse{Price: l.Price, Amount: l.Amount, OrderCount: l.OrderCount}
	}
	return out
}
