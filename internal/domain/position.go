package domain

// Position is an account's cumulative buy and sell exposure in a market.
// Each side accumulates independently; nothing is netted.
type Position struct {
	Accnt     string
	MarketID  int64
	Instr     string
	SettlDate IsoDate
	BuyLots   int64
	BuyCost   int64
	SellLots  int64
	SellCost  int64
}

// AddTrade accumulates a fill on the given side.
func (p *Position) AddTrade(side Side, lots, ticks int64) {
	if side == SideBuy {
		p.BuyLots += lots
		p.BuyCost += Cost(lots, ticks)
		return
	}
	p.SellLots += lots
	p.SellCost += Cost(lots, ticks)
}

// NetLots returns buy lots minus sell lots.
func (p *Position) NetLots() int64 {
	return p.BuyLots - p.SellLots
}

// NetCost returns buy cost minus sell cost.
func (p *Position) NetCost() int64 {
	return p.BuyCost - p.SellCost
}
