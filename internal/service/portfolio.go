package service

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/efreitasn/spotsim/internal/store"
	"github.com/shopspring/decimal"
)

var assetRegex = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// PriceSource provides last prices keyed by trading pair symbol.
type PriceSource interface {
	Prices() map[string]decimal.Decimal
}

// RegisterAccountRequest is the input for account registration. Balances
// maps asset to a decimal string; when empty the default balances apply.
type RegisterAccountRequest struct {
	AccountID string
	Balances  map[string]string
}

// PortfolioService handles account registration, deposits, and portfolio
// valuation.
type PortfolioService struct {
	ledger          *store.Ledger
	prices          PriceSource
	quote           string
	defaultBalances map[string]decimal.Decimal
	now             func() time.Time
}

// NewPortfolioService creates a new PortfolioService. Portfolios are
// valued in quote.
func NewPortfolioService(ledger *store.Ledger, prices PriceSource, quote string, defaultBalances map[string]decimal.Decimal) *PortfolioService {
	return &PortfolioService{
		ledger:          ledger,
		prices:          prices,
		quote:           strings.ToUpper(quote),
		defaultBalances: defaultBalances,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Register validates the request and creates the account.
func (s *PortfolioService) Register(req RegisterAccountRequest) (*domain.Portfolio, error) {
	if !accountIDRegex.MatchString(req.AccountID) {
		return nil, &domain.ValidationError{
			Message: "account_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}

	balances := make(map[string]decimal.Decimal, len(req.Balances))
	if len(req.Balances) == 0 {
		for asset, amount := range s.defaultBalances {
			balances[asset] = amount
		}
	}
	for asset, raw := range req.Balances {
		asset = strings.ToUpper(asset)
		if !assetRegex.MatchString(asset) {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("asset must match ^[A-Z0-9]{1,10}$, got %q", asset),
			}
		}
		if _, dup := balances[asset]; dup {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("duplicate asset in balances: %s", asset),
			}
		}
		amount, err := domain.ParseDecimal(raw)
		if err != nil {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("balance %s: %s", asset, err)}
		}
		if amount.IsNegative() {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("balance for %s must be >= 0", asset),
			}
		}
		balances[asset] = amount
	}

	if err := s.ledger.CreateAccount(req.AccountID, balances, s.now()); err != nil {
		return nil, err
	}
	return s.GetPortfolio(req.AccountID)
}

// Deposit credits amount of asset to an existing account.
func (s *PortfolioService) Deposit(accountID, asset, raw string) (domain.Balance, error) {
	asset = strings.ToUpper(asset)
	if !assetRegex.MatchString(asset) {
		return domain.Balance{}, &domain.ValidationError{
			Message: fmt.Sprintf("asset must match ^[A-Z0-9]{1,10}$, got %q", asset),
		}
	}
	amount, err := domain.ParseDecimal(raw)
	if err != nil {
		return domain.Balance{}, err
	}
	if !amount.IsPositive() {
		return domain.Balance{}, &domain.ValidationError{Message: "amount must be greater than 0"}
	}

	if err := s.ledger.Deposit(accountID, asset, amount); err != nil {
		return domain.Balance{}, err
	}
	return s.ledger.Balance(accountID, asset)
}

// GetPortfolio values every balance at the latest known prices. PnL is the
// current value minus the value of everything deposited, both at current
// prices.
func (s *PortfolioService) GetPortfolio(accountID string) (*domain.Portfolio, error) {
	balances, err := s.ledger.Balances(accountID)
	if err != nil {
		return nil, err
	}
	deposits, err := s.ledger.Deposits(accountID)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		totals[b.Asset] = b.Total
	}

	prices := s.prices.Prices()
	value := domain.Valuate(totals, prices, s.quote)
	invested := domain.Valuate(deposits, prices, s.quote)

	sort.Slice(balances, func(i, j int) bool { return balances[i].Asset < balances[j].Asset })
	return &domain.Portfolio{
		AccountID:  accountID,
		Balances:   balances,
		TotalValue: value,
		TotalPnL:   value.Sub(invested),
		ValuedAt:   s.now(),
	}, nil
}
