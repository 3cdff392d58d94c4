package marketdata

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/shopspring/decimal"
)

// Wire shapes of the Binance public API. Numbers arrive as strings.

type restTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	OpenPrice          string `json:"openPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

type restDepth struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// wsTicker is a 24hrTicker stream event. Keys differing only in case are
// matched exactly by encoding/json when both fields exist.
type wsTicker struct {
	Event              string `json:"e"`
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	LastPrice          string `json:"c"`
	PriceChangePercent string `json:"P"`
	PriceChange        string `json:"p"`
	OpenPrice          string `json:"o"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
}

type wsDepth struct {
	Event         string      `json:"e"`
	EventTime     int64       `json:"E"`
	Symbol        string      `json:"s"`
	FirstUpdateID int64       `json:"U"`
	FinalUpdateID int64       `json:"u"`
	Bids          [][2]string `json:"b"`
	Asks          [][2]string `json:"a"`
}

func (t restTicker) toDomain(at time.Time) (domain.Ticker, error) {
	return buildTicker(t.Symbol, at, t.LastPrice, t.PriceChange, t.PriceChangePercent,
		t.OpenPrice, t.HighPrice, t.LowPrice, t.Volume, t.QuoteVolume)
}

func (t wsTicker) toDomain(at time.Time) (domain.Ticker, error) {
	return buildTicker(t.Symbol, at, t.LastPrice, t.PriceChange, t.PriceChangePercent,
		t.OpenPrice, t.HighPrice, t.LowPrice, t.Volume, t.QuoteVolume)
}

func buildTicker(symbol string, at time.Time, fields ...string) (domain.Ticker, error) {
	vals := make([]decimal.Decimal, len(fields))
	for i, f := range fields {
		if f == "" {
			vals[i] = decimal.Zero
			continue
		}
		d, err := decimal.NewFromString(f)
		if err != nil {
			return domain.Ticker{}, fmt.Errorf("ticker %s: %w", symbol, err)
		}
		vals[i] = d
	}
	return domain.Ticker{
		Symbol:             strings.ToUpper(symbol),
		LastPrice:          vals[0],
		PriceChange:        vals[1],
		PriceChangePercent: vals[2],
		OpenPrice:          vals[3],
		HighPrice:          vals[4],
		LowPrice:           vals[5],
		Volume:             vals[6],
		QuoteVolume:        vals[7],
		UpdatedAt:          at,
	}, nil
}

func (d restDepth) toDomain(symbol string) (domain.DepthSnapshot, error) {
	bids, err := parseLevels(d.Bids)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("depth %s bids: %w", symbol, err)
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("depth %s asks: %w", symbol, err)
	}
	return domain.DepthSnapshot{
		Symbol:       strings.ToUpper(symbol),
		LastUpdateID: d.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
	}, nil
}

func (d wsDepth) toDomain() (domain.DepthDelta, error) {
	bids, err := parseLevels(d.Bids)
	if err != nil {
		return domain.DepthDelta{}, fmt.Errorf("delta %s bids: %w", d.Symbol, err)
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return domain.DepthDelta{}, fmt.Errorf("delta %s asks: %w", d.Symbol, err)
	}
	return domain.DepthDelta{
		Symbol:        strings.ToUpper(d.Symbol),
		FirstUpdateID: d.FirstUpdateID,
		FinalUpdateID: d.FinalUpdateID,
		Bids:          bids,
		Asks:          asks,
	}, nil
}

func parseLevels(raw [][2]string) ([]domain.PriceAmount, error) {
	out := make([]domain.PriceAmount, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PriceAmount{Price: price, Amount: amount})
	}
	return out, nil
}
