package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/venue/internal/domain"
)

// Market pairs a market's state with its order book. The embedded lock
// guards both; callers hold it for the whole of a command.
type Market struct {
	mu       sync.RWMutex
	state    domain.Market
	instr    domain.Instrument
	book     *OrderBook
	priority int64
}

func newMarket(instr domain.Instrument, m domain.Market) *Market {
	return &Market{
		state: m,
		instr: instr,
		book:  NewOrderBook(),
	}
}

// Lock acquires the market's write lock.
func (m *Market) Lock() { m.mu.Lock() }

// Unlock releases the market's write lock.
func (m *Market) Unlock() { m.mu.Unlock() }

// RLock acquires the market's read lock.
func (m *Market) RLock() { m.mu.RLock() }

// RUnlock releases the market's read lock.
func (m *Market) RUnlock() { m.mu.RUnlock() }

// ID returns the market id. It never changes, so no lock is needed.
func (m *Market) ID() int64 { return m.state.ID }

// Instrument returns the market's instrument. Immutable.
func (m *Market) Instrument() domain.Instrument { return m.instr }

// SettlDate returns the market's settlement date. Immutable.
func (m *Market) SettlDate() domain.IsoDate { return m.state.SettlDate }

// Book returns the order book. The caller must hold the lock.
func (m *Market) Book() *OrderBook { return m.book }

// State returns the lifecycle state. The caller must hold the lock.
func (m *Market) State() domain.MarketState { return m.state.State }

// Snapshot returns a copy of the market with current depth. The caller must
// hold at least the read lock.
func (m *Market) Snapshot() domain.Market {
	s := m.state
	if s.LastTime != nil {
		t := *s.LastTime
		s.LastTime = &t
	}
	s.Bids = m.book.Levels(domain.SideBuy, domain.DepthLevels)
	s.Offers = m.book.Levels(domain.SideSell, domain.DepthLevels)
	return s
}

// NextID allocates the next order or exec id of the market. The caller must
// hold the write lock.
func (m *Market) NextID() int64 {
	m.state.LastID++
	return m.state.LastID
}

func (m *Market) nextPriority() int64 {
	m.priority++
	return m.priority
}

func (m *Market) recordTrade(lots, ticks int64, at time.Time) {
	m.state.LastLots = lots
	m.state.LastTicks = ticks
	t := at
	m.state.LastTime = &t
}

// Transition moves the market to next. Updating to the current state is a
// no-op. The caller must hold the write lock.
func (m *Market) Transition(next domain.MarketState) error {
	if !m.state.State.CanTransition(next) {
		return fmt.Errorf("market %d %s → %s: %w", m.state.ID, m.state.State, next, domain.ErrInvalidTransition)
	}
	m.state.State = next
	return nil
}

// Restore reloads resting orders in priority order and resumes the priority
// sequence after the highest one seen. The caller must hold the write lock.
func (m *Market) Restore(orders []*domain.Order) {
	sort.Slice(orders, func(i, j int) bool { return orders[i].Priority < orders[j].Priority })
	for _, o := range orders {
		if o.Done() {
			continue
		}
		m.book.Insert(o)
		if o.Priority > m.priority {
			m.priority = o.Priority
		}
	}
}

// Registry owns every market of the venue, keyed by market id.
type Registry struct {
	mu      sync.RWMutex
	instrs  *domain.InstrumentRegistry
	markets map[int64]*Market
}

// NewRegistry creates an empty registry over the given reference data.
func NewRegistry(instrs *domain.InstrumentRegistry) *Registry {
	return &Registry{
		instrs:  instrs,
		markets: make(map[int64]*Market),
	}
}

// Instruments returns the reference data the registry resolves against.
func (r *Registry) Instruments() *domain.InstrumentRegistry {
	return r.instrs
}

// Create opens a market for (symbol, settlDate). The settlement date must
// not precede the business day bday.
func (r *Registry) Create(symbol string, settlDate domain.IsoDate, state domain.MarketState, bday domain.JDay) (*Market, error) {
	instr, err := r.instrs.Get(symbol)
	if err != nil {
		return nil, err
	}
	if !settlDate.Valid() {
		return nil, &domain.ValidationError{Message: "invalid settl_date"}
	}
	if settlDate.JDay() < bday {
		return nil, &domain.ValidationError{Message: "settl_date before business day"}
	}
	if !state.Valid() || state == domain.MarketStateClosed {
		return nil, &domain.ValidationError{Message: "invalid state"}
	}

	id := domain.MarketID(instr.ID, settlDate)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.markets[id]; exists {
		return nil, fmt.Errorf("market %s/%s: %w", symbol, settlDate, domain.ErrAlreadyExists)
	}
	m := newMarket(instr, domain.Market{
		ID:        id,
		Instr:     instr.Symbol,
		SettlDate: settlDate,
		State:     state,
	})
	r.markets[id] = m
	return m, nil
}

// Restore re-registers a persisted market. Existing entries are replaced.
func (r *Registry) Restore(snap domain.Market) (*Market, error) {
	instr, err := r.instrs.Get(snap.Instr)
	if err != nil {
		return nil, err
	}
	snap.Bids, snap.Offers = nil, nil
	m := newMarket(instr, snap)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets[snap.ID] = m
	return m, nil
}

// Get returns the market with the given id.
func (r *Registry) Get(id int64) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return m, nil
}

// Find resolves a market by instrument symbol and settlement date.
func (r *Registry) Find(symbol string, settlDate domain.IsoDate) (*Market, error) {
	instr, err := r.instrs.Get(symbol)
	if err != nil {
		return nil, err
	}
	if !settlDate.Valid() {
		return nil, domain.ErrMarketNotFound
	}
	return r.Get(domain.MarketID(instr.ID, settlDate))
}

// List returns all markets ordered by id, which is instrument then
// settlement date.
func (r *Registry) List() []*Market {
	r.mu.RLock()
	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ListByInstrument returns the markets of one instrument ordered by
// settlement date.
func (r *Registry) ListByInstrument(symbol string) ([]*Market, error) {
	if _, err := r.instrs.Get(symbol); err != nil {
		return nil, err
	}
	all := r.List()
	out := make([]*Market, 0, len(all))
	for _, m := range all {
		if m.instr.Symbol == symbol {
			out = append(out, m)
		}
	}
	return out, nil
}
