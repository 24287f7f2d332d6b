package domain

import "time"

// LiqInd is the liquidity role of a trade.
type LiqInd string

const (
	LiqIndNone  LiqInd = ""
	LiqIndMaker LiqInd = "Maker"
	LiqIndTaker LiqInd = "Taker"
)

// Exec is an immutable execution report. Order lifecycle events (New,
// Revised, Cancelled) and trades share this shape; trades have
// State == StateTrade.
type Exec struct {
	ID        int64
	OrderID   int64 // 0 for manual trades
	Accnt     string
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
	MatchID   int64 // counterpart exec id, 0 when there is none
	PosnLots  int64 // net position lots before the trade
	PosnCost  int64 // net position cost before the trade
	LiqInd    LiqInd
	Cpty      string
	Created   time.Time
	Acked     bool
}

// TradeKey identifies a trade across the venue.
type TradeKey struct {
	MarketID int64
	ID       int64
}

// Key returns the venue-wide key of the exec.
func (e *Exec) Key() TradeKey {
	return TradeKey{MarketID: e.MarketID, ID: e.ID}
}

// IsTrade reports whether the exec is a trade.
func (e *Exec) IsTrade() bool {
	return e.State == StateTrade
}

// NewExec builds an exec that reports the order's current state.
func NewExec(o *Order, id int64, created time.Time) *Exec {
	return &Exec{
		ID:        id,
		OrderID:   o.ID,
		Accnt:     o.Accnt,
		MarketID:  o.MarketID,
		Instr:     o.Instr,
		SettlDate: o.SettlDate,
		Ref:       o.Ref,
		State:     o.State,
		Side:      o.Side,
		Lots:      o.Lots,
		Ticks:     o.Ticks,
		ResdLots:  o.ResdLots,
		ExecLots:  o.ExecLots,
		ExecCost:  o.ExecCost,
		LastLots:  o.LastLots,
		LastTicks: o.LastTicks,
		MinLots:   o.MinLots,
		Created:   created,
	}
}

// Opposite returns the counterparty's side of a manual trade.
func (e *Exec) Opposite(id int64) *Exec {
	o := *e
	o.ID = id
	o.Accnt = e.Cpty
	o.Cpty = e.Accnt
	o.Side = e.Side.Opposite()
	o.MatchID = e.ID
	o.PosnLots = 0
	o.PosnCost = 0
	switch e.LiqInd {
	case LiqIndMaker:
		o.LiqInd = LiqIndTaker
	case LiqIndTaker:
		o.LiqInd = LiqIndMaker
	}
	return &o
}
