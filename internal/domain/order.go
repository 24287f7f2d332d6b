package domain

import "time"

// Side indicates whether an order buys or sells.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Valid reports whether s is Buy or Sell.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderState represents the lifecycle state of an order or execution.
type OrderState string

const (
	StateNew             OrderState = "New"
	StateRevised         OrderState = "Revised"
	StatePartiallyFilled OrderState = "PartiallyFilled"
	StateFilled          OrderState = "Filled"
	StateCancelled       OrderState = "Cancelled"
	StateTrade           OrderState = "Trade"
)

// Order is an instruction to buy or sell lots at a limit price in ticks.
type Order struct {
	ID        int64
	Accnt     string
	Group     string
	MarketID  int64
	Instr     string
	SettlDate IsoDate
	Ref       string
	State     OrderState
	Side      Side
	Lots      int64
	Ticks     int64
	ResdLots  int64
	ExecLots  int64
	ExecCost  int64
	LastLots  int64
	LastTicks int64
	MinLots   int64
	Priority  int64 // queue position within the book; lower is earlier
	Created   time.Time
	Modified  time.Time
}

// Done reports whether the order is filled or cancelled.
func (o *Order) Done() bool {
	return o.ResdLots == 0
}

// AvgTicks returns the average execution price, or (0, false) when nothing
// has executed. Integer division truncates, as costs are whole ticks.
func (o *Order) AvgTicks() (int64, bool) {
	if o.ExecLots == 0 {
		return 0, false
	}
	return o.ExecCost / o.ExecLots, true
}

// Accepts reports whether a fill of lots is acceptable to the order.
func (o *Order) Accepts(lots int64) bool {
	return AcceptsFill(o.ResdLots, o.MinLots, lots)
}

// AcceptsFill reports whether a fill of lots against a residual of resd is
// acceptable: the fill completes the residual, or it honours the minimum on
// both the fill and what remains. A minimum below one is treated as one.
func AcceptsFill(resd, minLots, lots int64) bool {
	if lots <= 0 || lots > resd {
		return false
	}
	if lots == resd {
		return true
	}
	if minLots < 1 {
		minLots = 1
	}
	return lots >= minLots && resd-lots >= minLots
}

// Fill applies an execution of lots at ticks to the order.
func (o *Order) Fill(lots, ticks int64, now time.Time) {
	o.ResdLots -= lots
	o.ExecLots += lots
	o.ExecCost += Cost(lots, ticks)
	o.LastLots = lots
	o.LastTicks = ticks
	o.Modified = now
	if o.ResdLots == 0 {
		o.State = StateFilled
	} else {
		o.State = StatePartiallyFilled
	}
}

// Cancel removes the residual from the order.
func (o *Order) Cancel(now time.Time) {
	o.ResdLots = 0
	o.State = StateCancelled
	o.Modified = now
}

// Revise sets the order's total lots, adjusting the residual.
func (o *Order) Revise(lots int64, now time.Time) {
	o.ResdLots = lots - o.ExecLots
	o.Lots = lots
	o.State = StateRevised
	o.Modified = now
}

// Cost returns lots × ticks.
func Cost(lots, ticks int64) int64 {
	return lots * ticks
}
