package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/shopspring/decimal"
)

// Ledger is a thread-safe in-memory portfolio ledger holding per-account,
// per-asset balances. Every mutation keeps Free, Locked and Total
// non-negative and Total == Free + Locked.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[string]*domain.Account),
	}
}

// CreateAccount registers an account funded with the given balances, which
// are recorded as deposits. It returns domain.ErrAccountAlreadyExists if
// the account is already known.
func (l *Ledger) CreateAccount(id string, balances map[string]decimal.Decimal, at time.Time) error {
	for asset, amount := range balances {
		if amount.IsNegative() {
			return &domain.ValidationError{Message: fmt.Sprintf("initial balance for %s must be >= 0", asset)}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.accounts[id]; exists {
		return domain.ErrAccountAlreadyExists
	}

	acc := &domain.Account{
		AccountID: id,
		Balances:  make(map[string]*domain.Balance, len(balances)),
		Deposits:  make(map[string]decimal.Decimal, len(balances)),
		CreatedAt: at,
	}
	for asset, amount := range balances {
		acc.Balances[asset] = domain.NewBalance(asset, amount)
		acc.Deposits[asset] = amount
	}
	l.accounts[id] = acc
	return nil
}

// Exists returns true if an account with the given ID exists.
func (l *Ledger) Exists(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.accounts[id]
	return ok
}

// Deposit credits amount to the free balance and the deposit baseline.
func (l *Ledger) Deposit(id, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &domain.ValidationError{Message: "deposit amount must be greater than 0"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	b := balanceOf(acc, asset)
	b.Free = b.Free.Add(amount)
	b.Recompute()
	acc.Deposits[asset] = acc.Deposits[asset].Add(amount)
	return nil
}

// Lock moves amount from free to locked.
func (l *Ledger) Lock(id, asset string, amount decimal.Decimal) error {
	return l.Apply([]domain.Leg{{AccountID: id, Asset: asset, Free: amount.Neg(), Locked: amount}})
}

// Unlock moves amount from locked back to free.
func (l *Ledger) Unlock(id, asset string, amount decimal.Decimal) error {
	return l.Apply([]domain.Leg{{AccountID: id, Asset: asset, Free: amount, Locked: amount.Neg()}})
}

// Settle applies a two-party transfer atomically.
func (l *Ledger) Settle(s domain.Settlement) error {
	return l.Apply(s.Legs())
}

type balanceKey struct {
	account string
	asset   string
}

// Apply validates every leg against the non-negative invariant and then
// applies all of them, or none. Legs touching the same balance are summed
// before validation. It returns domain.ErrAccountNotFound for an unknown
// account and domain.ErrInsufficientBalance when any resulting free or
// locked amount would be negative.
func (l *Ledger) Apply(legs []domain.Leg) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	type delta struct {
		free, locked decimal.Decimal
	}
	deltas := make(map[balanceKey]*delta, len(legs))
	order := make([]balanceKey, 0, len(legs))
	for _, leg := range legs {
		if _, ok := l.accounts[leg.AccountID]; !ok {
			return domain.ErrAccountNotFound
		}
		k := balanceKey{leg.AccountID, leg.Asset}
		d, ok := deltas[k]
		if !ok {
			d = &delta{}
			deltas[k] = d
			order = append(order, k)
		}
		d.free = d.free.Add(leg.Free)
		d.locked = d.locked.Add(leg.Locked)
	}

	for _, k := range order {
		d := deltas[k]
		free, locked := decimal.Zero, decimal.Zero
		if b, ok := l.accounts[k.account].Balances[k.asset]; ok {
			free, locked = b.Free, b.Locked
		}
		if free.Add(d.free).IsNegative() || locked.Add(d.locked).IsNegative() {
			return fmt.Errorf("%w: %s %s", domain.ErrInsufficientBalance, k.account, k.asset)
		}
	}

	for _, k := range order {
		d := deltas[k]
		b := balanceOf(l.accounts[k.account], k.asset)
		b.Free = b.Free.Add(d.free)
		b.Locked = b.Locked.Add(d.locked)
		b.Recompute()
	}
	return nil
}

// Balance returns a copy of one balance. Unknown assets read as zero.
func (l *Ledger) Balance(id, asset string) (domain.Balance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[id]
	if !ok {
		return domain.Balance{}, domain.ErrAccountNotFound
	}
	if b, ok := acc.Balances[asset]; ok {
		return *b, nil
	}
	return *domain.NewBalance(asset, decimal.Zero), nil
}

// Balances returns copies of every balance of the account, sorted by asset.
func (l *Ledger) Balances(id string) ([]domain.Balance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	out := make([]domain.Balance, 0, len(acc.Balances))
	for _, b := range acc.Balances {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

// Deposits returns a copy of the account's deposit baseline.
func (l *Ledger) Deposits(id string) (map[string]decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	out := make(map[string]decimal.Decimal, len(acc.Deposits))
	for asset, amount := range acc.Deposits {
		out[asset] = amount
	}
	return out, nil
}

// Totals sums every account's total per asset.
func (l *Ledger) Totals() map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]decimal.Decimal)
	for _, acc := range l.accounts {
		for asset, b := range acc.Balances {
			out[asset] = out[asset].Add(b.Total)
		}
	}
	return out
}

func balanceOf(acc *domain.Account, asset string) *domain.Balance {
	b, ok := acc.Balances[asset]
	if !ok {
		b = domain.NewBalance(asset, decimal.Zero)
		acc.Balances[asset] = b
	}
	return b
}
