package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/venue/internal/domain"
)

// OrderKey identifies an order across the venue.
type OrderKey struct {
	MarketID int64
	ID       int64
}

// OrderStore is a thread-safe in-memory store of order snapshots, with a
// primary index by (market, id) and a secondary index by account. The book
// owns the live orders; the store keeps copies taken while the market lock
// is held, so readers never race the matcher.
type OrderStore struct {
	mu      sync.RWMutex
	orders  map[OrderKey]*domain.Order
	byAccnt map[string]map[OrderKey]*domain.Order
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:  make(map[OrderKey]*domain.Order),
		byAccnt: make(map[string]map[OrderKey]*domain.Order),
	}
}

// PutBatch stores snapshots of the given orders in one critical section.
func (s *OrderStore) PutBatch(orders ...*domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range orders {
		c := *o
		k := OrderKey{MarketID: c.MarketID, ID: c.ID}
		s.orders[k] = &c
		if s.byAccnt[c.Accnt] == nil {
			s.byAccnt[c.Accnt] = make(map[OrderKey]*domain.Order)
		}
		s.byAccnt[c.Accnt][k] = &c
	}
}

// Get retrieves an order of accnt. Orders of other accounts are reported
// as not found.
func (s *OrderStore) Get(accnt string, marketID, id int64) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.byAccnt[accnt][OrderKey{MarketID: marketID, ID: id}]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *o, nil
}

// FindLiveByRef returns the live order of accnt carrying ref.
func (s *OrderStore) FindLiveByRef(accnt, ref string) (domain.Order, bool) {
	if ref == "" {
		return domain.Order{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.byAccnt[accnt] {
		if o.Ref == ref && !o.Done() {
			return *o, true
		}
	}
	return domain.Order{}, false
}

// ListByAccnt returns the live orders of accnt ordered by market then id.
// A non-nil filter restricts the result.
func (s *OrderStore) ListByAccnt(accnt string, filter func(*domain.Order) bool) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.byAccnt[accnt]))
	for _, o := range s.byAccnt[accnt] {
		if o.Done() {
			continue
		}
		if filter != nil && !filter(o) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of orders held.
func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
