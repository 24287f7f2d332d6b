package engine

import (
	"fmt"
	"testing"

	"github.com/efreitasn/venue/internal/domain"
	"pgregory.net/rapid"
)

type orderSpec struct {
	side    domain.Side
	lots    int64
	ticks   int64
	minLots int64
}

func drawOrders(t *rapid.T) []orderSpec {
	n := rapid.IntRange(1, 30).Draw(t, "n")
	specs := make([]orderSpec, n)
	for i := range specs {
		lots := rapid.Int64Range(1, 10).Draw(t, fmt.Sprintf("lots%d", i))
		specs[i] = orderSpec{
			side:    rapid.SampledFrom([]domain.Side{domain.SideBuy, domain.SideSell}).Draw(t, fmt.Sprintf("side%d", i)),
			lots:    lots,
			ticks:   rapid.Int64Range(95, 105).Draw(t, fmt.Sprintf("ticks%d", i)),
			minLots: rapid.Int64Range(0, lots).Draw(t, fmt.Sprintf("min%d", i)),
		}
	}
	return specs
}

// Property 1: Every match balances
// The two trade execs of a match carry equal lots and ticks on opposite sides.

func TestProperty_MatchedLotsBalance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mt, m := newTestMatcher(t, PolicyRest)
		for i, s := range drawOrders(t) {
			o := &domain.Order{Accnt: fmt.Sprintf("A%d", i%3), Side: s.side, Lots: s.lots, Ticks: s.ticks, MinLots: s.minLots}
			out := place(t, mt, m, o)
			if len(out.Trades)%2 != 0 {
				t.Fatalf("odd number of trade execs: %d", len(out.Trades))
			}
			for j := 0; j < len(out.Trades); j += 2 {
				mk, tk := out.Trades[j], out.Trades[j+1]
				if mk.LastLots != tk.LastLots || mk.LastTicks != tk.LastTicks {
					t.Fatalf("unbalanced match: %d@%d vs %d@%d", mk.LastLots, mk.LastTicks, tk.LastLots, tk.LastTicks)
				}
				if mk.Side == tk.Side {
					t.Fatalf("match on one side: %s", mk.Side)
				}
				if mk.MatchID != tk.ID || tk.MatchID != mk.ID {
					t.Fatal("match ids not paired")
				}
			}
		}
	})
}

// Property 2: Quantity conservation and minimum residual
// For every order ExecLots + ResdLots == Lots while live, and a live order
// never rests below its minimum.

func TestProperty_QuantityConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mt, m := newTestMatcher(t, PolicyRest)
		var all []*domain.Order
		for _, s := range drawOrders(t) {
			o := &domain.Order{Accnt: "A", Side: s.side, Lots: s.lots, Ticks: s.ticks, MinLots: s.minLots}
			place(t, mt, m, o)
			all = append(all, o)
		}
		for _, o := range all {
			if o.ExecLots+o.ResdLots != o.Lots {
				t.Fatalf("order %d: exec %d + resd %d != lots %d", o.ID, o.ExecLots, o.ResdLots, o.Lots)
			}
			if !o.Done() && o.ResdLots < o.MinLots {
				t.Fatalf("order %d rests with %d below min %d", o.ID, o.ResdLots, o.MinLots)
			}
			if o.ExecLots > 0 {
				avg, _ := o.AvgTicks()
				if avg < 95 || avg > 105 {
					t.Fatalf("order %d average %d outside traded range", o.ID, avg)
				}
			}
		}
	})
}

// Property 3: Cost replay
// Summing lots × ticks over an order's trade execs reproduces its ExecCost.

func TestProperty_CostReplay(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mt, m := newTestMatcher(t, PolicyRest)
		orders := make(map[int64]*domain.Order)
		costs := make(map[int64]int64)
		for _, s := range drawOrders(t) {
			o := &domain.Order{Accnt: "A", Side: s.side, Lots: s.lots, Ticks: s.ticks, MinLots: s.minLots}
			out := place(t, mt, m, o)
			orders[o.ID] = o
			for _, tr := range out.Trades {
				costs[tr.OrderID] += domain.Cost(tr.LastLots, tr.LastTicks)
			}
		}
		for id, o := range orders {
			if costs[id] != o.ExecCost {
				t.Fatalf("order %d: replayed cost %d != ExecCost %d", id, costs[id], o.ExecCost)
			}
		}
	})
}

// Property 4: Book is never crossed after a rest-policy command
// Unless both tops are held back by minimum-fill constraints.

func TestProperty_BookUncrossedWithoutMinimums(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mt, m := newTestMatcher(t, PolicyRest)
		for _, s := range drawOrders(t) {
			place(t, mt, m, &domain.Order{Accnt: "A", Side: s.side, Lots: s.lots, Ticks: s.ticks})
			bid, hasBid := m.Book().Best(domain.SideBuy)
			offer, hasOffer := m.Book().Best(domain.SideSell)
			if hasBid && hasOffer && bid.Ticks >= offer.Ticks {
				t.Fatalf("book crossed: bid %d >= offer %d", bid.Ticks, offer.Ticks)
			}
		}
	})
}

// Property 5: IOC and FOK never rest
// Under either policy the book stays empty of taker residuals.

func TestProperty_ImmediatePoliciesNeverRest(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		policy := rapid.SampledFrom([]Policy{PolicyIOC, PolicyFOK}).Draw(t, "policy")
		mt, m := newTestMatcher(t, policy)
		for _, s := range drawOrders(t) {
			o := &domain.Order{Accnt: "A", Side: s.side, Lots: s.lots, Ticks: s.ticks, MinLots: s.minLots}
			out := place(t, mt, m, o)
			if !o.Done() {
				t.Fatalf("order %d left live under %s", o.ID, policy)
			}
			if policy == PolicyFOK && o.State == domain.StateCancelled && len(out.Trades) != 0 {
				t.Fatalf("FOK cancelled order %d traded", o.ID)
			}
			if n := len(m.Book().Orders()); n != 0 {
				t.Fatalf("%d orders resting under %s", n, policy)
			}
		}
	})
}
