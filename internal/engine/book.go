package engine

import (
	"github.com/google/btree"

	"github.com/efreitasn/venue/internal/domain"
)

// bookEntry is a single order resting on the book. The order pointer is
// shared with the order store so residual changes show up in depth without
// re-keying the tree.
type bookEntry struct {
	Ticks    int64
	Priority int64
	ID       int64
	Order    *domain.Order
}

// bidLess orders the bid side: ticks descending, then priority ascending,
// then id ascending. Min() returns the best bid.
func bidLess(a, b bookEntry) bool {
	if a.Ticks != b.Ticks {
		return a.Ticks > b.Ticks
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

// offerLess orders the offer side: ticks ascending, then priority
// ascending, then id ascending. Min() returns the best offer.
func offerLess(a, b bookEntry) bool {
	if a.Ticks != b.Ticks {
		return a.Ticks < b.Ticks
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

// OrderBook holds the bid and offer sides of one market using B-trees with a
// secondary index for O(log n) removal by order id. It is not safe for
// concurrent use; the owning Market serialises access.
type OrderBook struct {
	bids     *btree.BTreeG[bookEntry]
	offers   *btree.BTreeG[bookEntry]
	index    map[int64]bookEntry
	inFlight map[int64]struct{}
}

// NewOrderBook creates an empty book.
func NewOrderBook() *OrderBook {
	const degree = 32
	return &OrderBook{
		bids:     btree.NewG[bookEntry](degree, bidLess),
		offers:   btree.NewG[bookEntry](degree, offerLess),
		index:    make(map[int64]bookEntry),
		inFlight: make(map[int64]struct{}),
	}
}

func (ob *OrderBook) side(s domain.Side) *btree.BTreeG[bookEntry] {
	if s == domain.SideBuy {
		return ob.bids
	}
	return ob.offers
}

// Insert rests the order on its side of the book.
func (ob *OrderBook) Insert(o *domain.Order) {
	e := bookEntry{Ticks: o.Ticks, Priority: o.Priority, ID: o.ID, Order: o}
	ob.side(o.Side).ReplaceOrInsert(e)
	ob.index[o.ID] = e
}

// Remove deletes an order from the book by id. It returns false when the
// order is not resting.
func (ob *OrderBook) Remove(id int64) bool {
	e, ok := ob.index[id]
	if !ok {
		return false
	}
	delete(ob.index, id)
	delete(ob.inFlight, id)
	ob.side(e.Order.Side).Delete(e)
	return true
}

// Get returns the resting order with the given id.
func (ob *OrderBook) Get(id int64) (*domain.Order, bool) {
	e, ok := ob.index[id]
	if !ok {
		return nil, false
	}
	return e.Order, true
}

// Best returns the highest-priority order of a side.
func (ob *OrderBook) Best(s domain.Side) (*domain.Order, bool) {
	e, ok := ob.side(s).Min()
	if !ok {
		return nil, false
	}
	return e.Order, true
}

// Walk iterates a side in price-time priority. The callback returns false to
// stop.
func (ob *OrderBook) Walk(s domain.Side, fn func(*domain.Order) bool) {
	ob.side(s).Ascend(func(e bookEntry) bool {
		return fn(e.Order)
	})
}

// Levels aggregates at most n price levels of a side, best first.
func (ob *OrderBook) Levels(s domain.Side, n int) []domain.Level {
	if n <= 0 {
		return nil
	}
	levels := make([]domain.Level, 0, n)
	ob.side(s).Ascend(func(e bookEntry) bool {
		if len(levels) > 0 && levels[len(levels)-1].Ticks == e.Ticks {
			levels[len(levels)-1].Lots += e.Order.ResdLots
			levels[len(levels)-1].Count++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, domain.Level{
			Ticks: e.Ticks,
			Lots:  e.Order.ResdLots,
			Count: 1,
		})
		return true
	})
	return levels
}

// Len returns the number of resting orders on a side.
func (ob *OrderBook) Len(s domain.Side) int {
	return ob.side(s).Len()
}

// Orders returns every resting order, bids first, each side in priority
// order.
func (ob *OrderBook) Orders() []*domain.Order {
	out := make([]*domain.Order, 0, len(ob.index))
	for _, s := range []domain.Side{domain.SideBuy, domain.SideSell} {
		ob.Walk(s, func(o *domain.Order) bool {
			out = append(out, o)
			return true
		})
	}
	return out
}

// markInFlight flags an order as taking part in a match being planned.
func (ob *OrderBook) markInFlight(id int64) {
	ob.inFlight[id] = struct{}{}
}

func (ob *OrderBook) clearInFlight() {
	for id := range ob.inFlight {
		delete(ob.inFlight, id)
	}
}

// InFlight reports whether the order is part of a pending match.
func (ob *OrderBook) InFlight(id int64) bool {
	_, ok := ob.inFlight[id]
	return ok
}
