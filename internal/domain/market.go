package domain

import "time"

// MarketState is the lifecycle state of a market.
type MarketState int

const (
	MarketStateCreated   MarketState = 1
	MarketStateTrading   MarketState = 2
	MarketStateSuspended MarketState = 3
	MarketStateClosed    MarketState = 4
)

// Valid reports whether s is a known state.
func (s MarketState) Valid() bool {
	return s >= MarketStateCreated && s <= MarketStateClosed
}

func (s MarketState) String() string {
	switch s {
	case MarketStateCreated:
		return "created"
	case MarketStateTrading:
		return "trading"
	case MarketStateSuspended:
		return "suspended"
	case MarketStateClosed:
		return "closed"
	}
	return "unknown"
}

// ParseMarketState accepts either the numeric or the lower-case name form.
func ParseMarketState(s string) (MarketState, bool) {
	switch s {
	case "1", "created":
		return MarketStateCreated, true
	case "2", "trading":
		return MarketStateTrading, true
	case "3", "suspended":
		return MarketStateSuspended, true
	case "4", "closed":
		return MarketStateClosed, true
	}
	return 0, false
}

// CanTransition reports whether a market may move from s to next.
// Created → Trading ⇄ Suspended, any open state → Closed. Closed is terminal.
func (s MarketState) CanTransition(next MarketState) bool {
	if s == MarketStateClosed || !next.Valid() {
		return false
	}
	if s == next || next == MarketStateClosed {
		return true
	}
	switch s {
	case MarketStateCreated:
		return next == MarketStateTrading
	case MarketStateTrading:
		return next == MarketStateSuspended
	case MarketStateSuspended:
		return next == MarketStateTrading
	}
	return false
}

// MarketID packs the instrument id and settlement day into a stable numeric
// id. It needs no storage round-trip, so ids survive restarts unchanged.
func MarketID(instrID int32, settlDate IsoDate) int64 {
	return int64(instrID)<<16 | int64(settlDate.JDay()-jdEpoch)
}

// DepthLevels is the number of aggregated price levels kept per side.
const DepthLevels = 3

// Level is one aggregated price level of the book.
type Level struct {
	Ticks int64
	Lots  int64
	Count int
}

// Market is a snapshot of one (instrument, settlement date) market.
type Market struct {
	ID        int64
	Instr     string
	SettlDate IsoDate
	State     MarketState
	LastLots  int64
	LastTicks int64
	LastTime  *time.Time // nil until the first trade
	Bids      []Level    // best first, at most DepthLevels
	Offers    []Level    // best first, at most DepthLevels
	LastID    int64      // last order/exec id allocated in this market
}

// IsTrading reports whether orders may be placed or revised.
func (m *Market) IsTrading() bool {
	return m.State == MarketStateTrading
}
