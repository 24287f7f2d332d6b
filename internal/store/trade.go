package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/venue/internal/domain"
)

// TradeStore is the append-only execution log. Every exec the venue
// produces is appended once and never removed; acknowledging a trade only
// hides it from the open-trades view.
type TradeStore struct {
	mu      sync.RWMutex
	execs   []*domain.Exec                              // chronological
	byAccnt map[string][]*domain.Exec                   // accnt → execs (chronological)
	trades  map[string]map[domain.TradeKey]*domain.Exec // accnt → trades
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		byAccnt: make(map[string][]*domain.Exec),
		trades:  make(map[string]map[domain.TradeKey]*domain.Exec),
	}
}

// Append adds the execs of one command in a single critical section.
// Copies are stored.
func (s *TradeStore) Append(execs ...*domain.Exec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range execs {
		c := *e
		s.execs = append(s.execs, &c)
		s.byAccnt[c.Accnt] = append(s.byAccnt[c.Accnt], &c)
		if c.IsTrade() {
			if s.trades[c.Accnt] == nil {
				s.trades[c.Accnt] = make(map[domain.TradeKey]*domain.Exec)
			}
			s.trades[c.Accnt][c.Key()] = &c
		}
	}
}

// Trade returns a trade of accnt, acknowledged or not.
func (s *TradeStore) Trade(accnt string, key domain.TradeKey) (domain.Exec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.trades[accnt][key]
	if !ok {
		return domain.Exec{}, domain.ErrTradeNotFound
	}
	return *e, nil
}

// Ack marks a trade of accnt as acknowledged. Acknowledging twice is an
// error so a client can tell it raced another session.
func (s *TradeStore) Ack(accnt string, key domain.TradeKey) (domain.Exec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.trades[accnt][key]
	if !ok || e.Acked {
		return domain.Exec{}, domain.ErrTradeNotFound
	}
	e.Acked = true
	return *e, nil
}

// OpenTrades returns the unacknowledged trades of accnt ordered by market
// then id. A non-nil filter restricts the result.
func (s *TradeStore) OpenTrades(accnt string, filter func(*domain.Exec) bool) []domain.Exec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Exec, 0, len(s.trades[accnt]))
	for _, e := range s.trades[accnt] {
		if e.Acked || (filter != nil && !filter(e)) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Execs returns a page of accnt's execs, newest first, and the total count.
func (s *TradeStore) Execs(accnt string, offset, limit int) ([]domain.Exec, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byAccnt[accnt]
	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total || limit <= 0 {
		return []domain.Exec{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	out := make([]domain.Exec, 0, end-offset)
	for i := total - 1 - offset; i >= total-end; i-- {
		out = append(out, *all[i])
	}
	return out, total
}

// Len returns the number of execs in the log.
func (s *TradeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.execs)
}
