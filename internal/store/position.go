package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/venue/internal/domain"
)

type posnKey struct {
	Accnt    string
	MarketID int64
}

// PositionLedger accumulates each account's buy and sell exposure per
// market. Applying a trade is idempotent per (market, exec id).
type PositionLedger struct {
	mu      sync.RWMutex
	posns   map[posnKey]*domain.Position
	applied map[domain.TradeKey]struct{}
}

// NewPositionLedger creates an empty ledger.
func NewPositionLedger() *PositionLedger {
	return &PositionLedger{
		posns:   make(map[posnKey]*domain.Position),
		applied: make(map[domain.TradeKey]struct{}),
	}
}

// Apply applies a single trade. See ApplyBatch.
func (l *PositionLedger) Apply(trade *domain.Exec) []domain.Position {
	return l.ApplyBatch([]*domain.Exec{trade})
}

// ApplyBatch applies the trades of one command in a single critical
// section, so readers see either none or all of them. Each trade is stamped
// with the account's net position before it. Trades already applied and
// non-trade execs are skipped. It returns the positions that changed.
func (l *PositionLedger) ApplyBatch(trades []*domain.Exec) []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	var touched []*domain.Position
	seen := make(map[*domain.Position]bool)
	for _, t := range trades {
		if !t.IsTrade() {
			continue
		}
		if _, dup := l.applied[t.Key()]; dup {
			continue
		}
		k := posnKey{Accnt: t.Accnt, MarketID: t.MarketID}
		p := l.posns[k]
		if p == nil {
			p = &domain.Position{Accnt: t.Accnt, MarketID: t.MarketID, Instr: t.Instr, SettlDate: t.SettlDate}
			l.posns[k] = p
		}
		t.PosnLots, t.PosnCost = p.NetLots(), p.NetCost()
		p.AddTrade(t.Side, t.LastLots, t.LastTicks)
		l.applied[t.Key()] = struct{}{}
		if !seen[p] {
			seen[p] = true
			touched = append(touched, p)
		}
	}

	out := make([]domain.Position, len(touched))
	for i, p := range touched {
		out[i] = *p
	}
	return out
}

// Get returns the position of accnt in a market.
func (l *PositionLedger) Get(accnt string, marketID int64) (domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.posns[posnKey{Accnt: accnt, MarketID: marketID}]
	if !ok {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	return *p, nil
}

// List returns the positions of accnt ordered by market id, which sorts by
// instrument then settlement date. A non-nil filter restricts the result.
func (l *PositionLedger) List(accnt string, filter func(*domain.Position) bool) []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Position, 0)
	for k, p := range l.posns {
		if k.Accnt != accnt || (filter != nil && !filter(p)) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// All returns every position ordered by account then market.
func (l *PositionLedger) All() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Position, 0, len(l.posns))
	for _, p := range l.posns {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Accnt != out[j].Accnt {
			return out[i].Accnt < out[j].Accnt
		}
		return out[i].MarketID < out[j].MarketID
	})
	return out
}

// Restore loads persisted positions and the keys of the trades already
// folded into them, replacing any state held.
func (l *PositionLedger) Restore(posns []domain.Position, applied []domain.TradeKey) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.posns = make(map[posnKey]*domain.Position, len(posns))
	for i := range posns {
		p := posns[i]
		l.posns[posnKey{Accnt: p.Accnt, MarketID: p.MarketID}] = &p
	}
	l.applied = make(map[domain.TradeKey]struct{}, len(applied))
	for _, k := range applied {
		l.applied[k] = struct{}{}
	}
}
