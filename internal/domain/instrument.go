package domain

import (
	"sort"
	"sync"
)

// Instrument is static reference data for a traded symbol.
type Instrument struct {
	ID        int32
	Symbol    string
	Display   string
	BaseAsset string
	TermCcy   string
	MinLots   int64
	MaxLots   int64
}

// InstrumentRegistry tracks known instruments in a thread-safe manner.
type InstrumentRegistry struct {
	mu       sync.RWMutex
	bySymbol map[string]Instrument
}

// NewInstrumentRegistry creates a registry seeded with the given instruments.
func NewInstrumentRegistry(instrs ...Instrument) *InstrumentRegistry {
	r := &InstrumentRegistry{
		bySymbol: make(map[string]Instrument, len(instrs)),
	}
	for _, in := range instrs {
		r.bySymbol[in.Symbol] = in
	}
	return r
}

// Register adds or replaces an instrument. Safe for concurrent use.
func (r *InstrumentRegistry) Register(in Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySymbol[in.Symbol] = in
}

// Get returns the instrument for symbol. Safe for concurrent use.
func (r *InstrumentRegistry) Get(symbol string) (Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.bySymbol[symbol]
	if !ok {
		return Instrument{}, ErrInstrumentNotFound
	}
	return in, nil
}

// Exists returns true if the symbol has been registered. Safe for concurrent use.
func (r *InstrumentRegistry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySymbol[symbol]
	return ok
}

// List returns all instruments ordered by id.
func (r *InstrumentRegistry) List() []Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Instrument, 0, len(r.bySymbol))
	for _, in := range r.bySymbol {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
