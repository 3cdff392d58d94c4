package store

import (
	"sync"

	"github.com/efreitasn/spotsim/internal/domain"
)

// OrderStore keeps every order ever accepted for an account. Nothing is
// removed: filled and cancelled orders stay listed, as do market orders
// left pending when the external book had no liquidity. The matcher
// mutates stored orders in place under its own lock.
type OrderStore struct {
	mu        sync.RWMutex
	byID      map[string]*domain.Order
	byAccount map[string][]*domain.Order // submission order
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		byID:      make(map[string]*domain.Order),
		byAccount: make(map[string][]*domain.Order),
	}
}

// Create records o under its id and its account.
func (s *OrderStore) Create(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[o.OrderID] = o
	s.byAccount[o.AccountID] = append(s.byAccount[o.AccountID], o)
}

// Get returns domain.ErrOrderNotFound for an unknown id.
func (s *OrderStore) Get(id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.byID[id]; ok {
		return o, nil
	}
	return nil, domain.ErrOrderNotFound
}

// ListByAccount pages through an account's orders, most recently submitted
// first, optionally restricted to one status. page is 1-based and values
// below 1 are treated as 1. It also returns how many orders matched in
// total, so an unknown account yields an empty page and zero.
func (s *OrderStore) ListByAccount(accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page = max(page, 1)
	skip := (page - 1) * limit

	out := []*domain.Order{}
	matched := 0
	orders := s.byAccount[accountID]
	for i := len(orders) - 1; i >= 0; i-- {
		o := orders[i]
		if status != nil && o.Status != *status {
			continue
		}
		if matched >= skip && len(out) < limit {
			out = append(out, o)
		}
		matched++
	}
	return out, matched
}
