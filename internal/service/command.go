package service

import (
	"github.com/efreitasn/venue/internal/domain"
)

// Command is one of the operations the coordinator accepts. The set is
// closed: only the types in this file implement it.
type Command interface {
	name() string
}

// PlaceOrder submits a new limit order.
type PlaceOrder struct {
	Instr     string
	SettlDate domain.IsoDate
	Ref       string
	Side      domain.Side
	Lots      int64
	Ticks     int64
	MinLots   int64
}

// ReviseOrder sets the total lots of one or more resting orders. Either
// every order is revised or none is. Without IDs, the live order carrying
// Ref is revised.
type ReviseOrder struct {
	Instr     string
	SettlDate domain.IsoDate
	IDs       []int64
	Ref       string
	Lots      int64
}

// CancelOrder cancels one or more resting orders, all or nothing. Without
// IDs, the live order carrying Ref is cancelled.
type CancelOrder struct {
	Instr     string
	SettlDate domain.IsoDate
	IDs       []int64
	Ref       string
}

// AckTrade acknowledges trades so they leave the open-trades view.
type AckTrade struct {
	Instr     string
	SettlDate domain.IsoDate
	IDs       []int64
}

// CreateTrade books a manual trade for Accnt. When Cpty names another
// account, the opposite side is booked for it as well.
type CreateTrade struct {
	Instr     string
	SettlDate domain.IsoDate
	Accnt     string
	Ref       string
	Side      domain.Side
	Lots      int64
	Ticks     int64
	LiqInd    domain.LiqInd
	Cpty      string
}

// CreateMarket opens a market. A zero State uses the configured default.
type CreateMarket struct {
	Instr     string
	SettlDate domain.IsoDate
	State     domain.MarketState
}

// UpdateMarket moves a market to a new state. Closing cancels every
// resting order.
type UpdateMarket struct {
	Instr     string
	SettlDate domain.IsoDate
	State     domain.MarketState
}

func (PlaceOrder) name() string   { return "place_order" }
func (ReviseOrder) name() string  { return "revise_order" }
func (CancelOrder) name() string  { return "cancel_order" }
func (AckTrade) name() string     { return "ack_trade" }
func (CreateTrade) name() string  { return "create_trade" }
func (CreateMarket) name() string { return "create_market" }
func (UpdateMarket) name() string { return "update_market" }

// Result is what a command changed, as seen by its caller.
type Result struct {
	Market *domain.Market
	Orders []domain.Order
	Execs  []domain.Exec
	Posn   *domain.Position
}

func dedupe(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, &domain.ValidationError{Message: "ids are required"}
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, &domain.ValidationError{Message: "ids must be positive"}
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}
