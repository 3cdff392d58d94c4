package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const defaultPrecision int32 = 8

// Markets is the set of tradable pairs, their common quote asset and the
// balances a new account starts with.
type Markets struct {
	Quote           string
	Pairs           []domain.TradingPair
	DefaultBalances map[string]decimal.Decimal
}

var (
	defaultBases    = []string{"BTC", "ETH", "SOL", "BNB", "XRP", "ADA", "DOGE", "AVAX", "DOT", "LINK"}
	defaultBalances = map[string]string{
		"BTC":  "10",
		"ETH":  "100",
		"USDT": "50000",
		"SOL":  "200",
		"BNB":  "50",
		"XRP":  "10000",
		"ADA":  "5000",
		"DOGE": "100000",
		"AVAX": "100",
		"DOT":  "500",
		"LINK": "300",
	}
)

// DefaultMarkets returns the ten USDT pairs and their starting balances.
func DefaultMarkets() Markets {
	m := Markets{
		Quote:           "USDT",
		Pairs:           make([]domain.TradingPair, len(defaultBases)),
		DefaultBalances: make(map[string]decimal.Decimal, len(defaultBalances)),
	}
	for i, base := range defaultBases {
		m.Pairs[i] = domain.NewPair(base, m.Quote, defaultPrecision, defaultPrecision)
	}
	for asset, amount := range defaultBalances {
		m.DefaultBalances[asset] = decimal.RequireFromString(amount)
	}
	return m
}

// marketsFile is the YAML layout of MARKETS_FILE. Amounts are strings so
// they keep their exact decimal value.
//
//	quote: USDT
//	pairs:
//	  - base: BTC
//	    base_precision: 5
//	    quote_precision: 2
//	balances:
//	  BTC: "10"
//	  USDT: "50000"
type marketsFile struct {
	Quote string `yaml:"quote"`
	Pairs []struct {
		Base           string `yaml:"base"`
		BasePrecision  *int32 `yaml:"base_precision"`
		QuotePrecision *int32 `yaml:"quote_precision"`
	} `yaml:"pairs"`
	Balances map[string]string `yaml:"balances"`
}

// LoadMarkets reads a markets file.
func LoadMarkets(path string) (Markets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Markets{}, err
	}
	return ParseMarkets(data)
}

// ParseMarkets decodes and validates a markets document. Unknown keys are
// rejected. Omitted precisions default to 8.
func ParseMarkets(data []byte) (Markets, error) {
	var f marketsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Markets{}, fmt.Errorf("decode markets: %w", err)
	}

	m := Markets{
		Quote:           strings.ToUpper(strings.TrimSpace(f.Quote)),
		DefaultBalances: make(map[string]decimal.Decimal, len(f.Balances)),
	}
	if m.Quote == "" {
		return Markets{}, fmt.Errorf("quote is required")
	}
	if len(f.Pairs) == 0 {
		return Markets{}, fmt.Errorf("at least one pair is required")
	}

	seen := make(map[string]bool, len(f.Pairs))
	for i, p := range f.Pairs {
		base := strings.ToUpper(strings.TrimSpace(p.Base))
		if base == "" || base == m.Quote {
			return Markets{}, fmt.Errorf("pairs[%d]: invalid base %q", i, p.Base)
		}
		if seen[base] {
			return Markets{}, fmt.Errorf("pairs[%d]: duplicate base %s", i, base)
		}
		seen[base] = true

		basePrec, quotePrec := precisionOr(p.BasePrecision), precisionOr(p.QuotePrecision)
		if basePrec < 0 || basePrec > 18 || quotePrec < 0 || quotePrec > 18 {
			return Markets{}, fmt.Errorf("pairs[%d]: precision must be between 0 and 18", i)
		}
		m.Pairs = append(m.Pairs, domain.NewPair(base, m.Quote, basePrec, quotePrec))
	}

	for asset, raw := range f.Balances {
		amount, err := decimal.NewFromString(raw)
		if err != nil || amount.IsNegative() {
			return Markets{}, fmt.Errorf("balances.%s: must be a non-negative decimal", asset)
		}
		m.DefaultBalances[strings.ToUpper(asset)] = amount
	}
	return m, nil
}

func precisionOr(p *int32) int32 {
	if p == nil {
		return defaultPrecision
	}
	return *p
}
