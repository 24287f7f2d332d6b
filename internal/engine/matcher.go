package engine

import (
	"fmt"
	"time"

	"github.com/efreitasn/venue/internal/domain"
)

// Policy decides what happens to the residual of an order once matching
// has taken all it can.
type Policy string

const (
	// PolicyRest leaves the residual resting on the book.
	PolicyRest Policy = "rest"
	// PolicyIOC cancels the residual.
	PolicyIOC Policy = "ioc"
	// PolicyFOK cancels the whole order unless it fills completely.
	PolicyFOK Policy = "fok"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, bool) {
	switch p := Policy(s); p {
	case PolicyRest, PolicyIOC, PolicyFOK:
		return p, true
	}
	return "", false
}

// Outcome is everything a book command changed, in the order it happened.
type Outcome struct {
	Order   *domain.Order   // the order the command targeted
	Execs   []*domain.Exec  // every exec produced, ids ascending
	Trades  []*domain.Exec  // the trade subset of Execs
	Touched []*domain.Order // other orders modified, makers or cancelled orders
}

func (out *Outcome) add(e *domain.Exec) {
	out.Execs = append(out.Execs, e)
	if e.IsTrade() {
		out.Trades = append(out.Trades, e)
	}
}

type fill struct {
	maker *domain.Order
	lots  int64
	ticks int64
}

type plan struct {
	fills []fill
	lots  int64
}

// Matcher implements price-time matching with minimum-fill constraints.
// Every method expects the caller to hold the market's write lock for the
// whole call.
type Matcher struct {
	policy Policy
}

// NewMatcher creates a matcher applying the given residual policy.
func NewMatcher(policy Policy) *Matcher {
	if policy == "" {
		policy = PolicyRest
	}
	return &Matcher{policy: policy}
}

// Policy returns the residual policy in force.
func (mt *Matcher) Policy() Policy {
	return mt.policy
}

func crosses(taker *domain.Order, ticks int64) bool {
	if taker.Side == domain.SideBuy {
		return taker.Ticks >= ticks
	}
	return taker.Ticks <= ticks
}

func checkLots(instr domain.Instrument, lots int64) error {
	if lots <= 0 {
		return fmt.Errorf("lots %d: %w", lots, domain.ErrInvalidQuantity)
	}
	if instr.MinLots > 0 && lots < instr.MinLots {
		return fmt.Errorf("lots %d below instrument minimum %d: %w", lots, instr.MinLots, domain.ErrInvalidQuantity)
	}
	if instr.MaxLots > 0 && lots > instr.MaxLots {
		return fmt.Errorf("lots %d above instrument maximum %d: %w", lots, instr.MaxLots, domain.ErrInvalidQuantity)
	}
	return nil
}

// plan walks the opposite side without mutating any order. Candidates whose
// fill is unacceptable to either side are skipped; the walk stops at the
// first price that does not cross. Makers in the plan are marked in flight
// until the caller clears them.
func (mt *Matcher) plan(m *Market, taker *domain.Order) plan {
	var p plan
	resd := taker.ResdLots
	m.book.Walk(taker.Side.Opposite(), func(maker *domain.Order) bool {
		if !crosses(taker, maker.Ticks) {
			return false
		}
		lots := min(resd, maker.ResdLots)
		if !domain.AcceptsFill(resd, taker.MinLots, lots) || !maker.Accepts(lots) {
			return true
		}
		m.book.markInFlight(maker.ID)
		p.fills = append(p.fills, fill{maker: maker, lots: lots, ticks: maker.Ticks})
		p.lots += lots
		resd -= lots
		return resd > 0
	})
	return p
}

// commit applies a plan. Each fill produces a maker and a taker trade that
// reference each other through MatchID.
func (mt *Matcher) commit(m *Market, taker *domain.Order, p plan, now time.Time, out *Outcome) {
	for _, f := range p.fills {
		maker := f.maker
		maker.Fill(f.lots, f.ticks, now)
		taker.Fill(f.lots, f.ticks, now)

		makerExec := domain.NewExec(maker, m.NextID(), now)
		takerExec := domain.NewExec(taker, m.NextID(), now)
		makerExec.State, takerExec.State = domain.StateTrade, domain.StateTrade
		makerExec.LiqInd, takerExec.LiqInd = domain.LiqIndMaker, domain.LiqIndTaker
		makerExec.Cpty, takerExec.Cpty = taker.Accnt, maker.Accnt
		makerExec.MatchID, takerExec.MatchID = takerExec.ID, makerExec.ID

		out.add(makerExec)
		out.add(takerExec)
		out.Touched = append(out.Touched, maker)

		if maker.Done() {
			m.book.Remove(maker.ID)
		}
		m.recordTrade(f.lots, f.ticks, now)
	}
}

// Place validates a new order, matches it against the book and applies the
// residual policy. The caller fills in Accnt, Side, Lots, Ticks, MinLots and
// Ref; the matcher assigns ids and timestamps.
func (mt *Matcher) Place(m *Market, o *domain.Order, now time.Time) (*Outcome, error) {
	if !m.state.IsTrading() {
		return nil, fmt.Errorf("market %d is %s: %w", m.state.ID, m.state.State, domain.ErrMarketClosed)
	}
	if !o.Side.Valid() {
		return nil, &domain.ValidationError{Message: "invalid side"}
	}
	if o.Ticks <= 0 {
		return nil, &domain.ValidationError{Message: "ticks must be positive"}
	}
	if err := checkLots(m.instr, o.Lots); err != nil {
		return nil, err
	}
	if o.MinLots < 0 || o.MinLots > o.Lots {
		return nil, fmt.Errorf("min_lots %d: %w", o.MinLots, domain.ErrInvalidQuantity)
	}

	o.ID = m.NextID()
	o.MarketID = m.state.ID
	o.Instr = m.state.Instr
	o.SettlDate = m.state.SettlDate
	o.State = domain.StateNew
	o.ResdLots = o.Lots
	o.ExecLots, o.ExecCost, o.LastLots, o.LastTicks = 0, 0, 0, 0
	o.Priority = m.nextPriority()
	o.Created, o.Modified = now, now
	if o.Group == "" {
		o.Group = o.Accnt
	}

	out := &Outcome{Order: o}
	out.add(domain.NewExec(o, m.NextID(), now))

	p := mt.plan(m, o)
	defer m.book.clearInFlight()

	if mt.policy == PolicyFOK && p.lots < o.ResdLots {
		o.Cancel(now)
		out.add(domain.NewExec(o, m.NextID(), now))
		return out, nil
	}

	mt.commit(m, o, p, now, out)

	if o.ResdLots > 0 {
		if mt.policy == PolicyRest {
			m.book.Insert(o)
		} else {
			o.Cancel(now)
			out.add(domain.NewExec(o, m.NextID(), now))
		}
	}
	return out, nil
}

// live returns the resting order or an error explaining why it cannot be
// modified. Unknown and terminal orders are both not found.
func live(m *Market, id int64) (*domain.Order, error) {
	o, ok := m.book.Get(id)
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFound)
	}
	if m.book.InFlight(id) {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrAlreadyMatching)
	}
	return o, nil
}

// CheckRevise reports whether Revise would accept the request, without
// changing anything.
func (mt *Matcher) CheckRevise(m *Market, id, lots int64) error {
	_, err := mt.checkRevise(m, id, lots)
	return err
}

func (mt *Matcher) checkRevise(m *Market, id, lots int64) (*domain.Order, error) {
	if !m.state.IsTrading() {
		return nil, fmt.Errorf("market %d is %s: %w", m.state.ID, m.state.State, domain.ErrMarketClosed)
	}
	o, err := live(m, id)
	if err != nil {
		return nil, err
	}
	if err := checkLots(m.instr, lots); err != nil {
		return nil, err
	}
	if lots <= o.ExecLots {
		return nil, fmt.Errorf("lots %d not above executed %d: %w", lots, o.ExecLots, domain.ErrInvalidQuantity)
	}
	if lots-o.ExecLots < o.MinLots {
		return nil, fmt.Errorf("residual %d below min_lots %d: %w", lots-o.ExecLots, o.MinLots, domain.ErrInvalidQuantity)
	}
	return o, nil
}

// Revise sets a resting order's total lots. A decrease keeps the order's
// queue position; an increase sends it to the back of its price level.
func (mt *Matcher) Revise(m *Market, id, lots int64, now time.Time) (*Outcome, error) {
	o, err := mt.checkRevise(m, id, lots)
	if err != nil {
		return nil, err
	}

	if lots > o.Lots {
		m.book.Remove(o.ID)
		o.Priority = m.nextPriority()
		o.Revise(lots, now)
		m.book.Insert(o)
	} else {
		o.Revise(lots, now)
	}

	out := &Outcome{Order: o}
	out.add(domain.NewExec(o, m.NextID(), now))
	return out, nil
}

// CheckCancel reports whether Cancel would accept the request.
func (mt *Matcher) CheckCancel(m *Market, id int64) error {
	_, err := live(m, id)
	return err
}

// Cancel removes a resting order's residual. Executed lots are kept.
func (mt *Matcher) Cancel(m *Market, id int64, now time.Time) (*Outcome, error) {
	o, err := live(m, id)
	if err != nil {
		return nil, err
	}
	m.book.Remove(o.ID)
	o.Cancel(now)

	out := &Outcome{Order: o}
	out.add(domain.NewExec(o, m.NextID(), now))
	return out, nil
}

// CancelAll cancels every resting order of the market, bids first.
func (mt *Matcher) CancelAll(m *Market, now time.Time) *Outcome {
	out := &Outcome{}
	for _, o := range m.book.Orders() {
		m.book.Remove(o.ID)
		o.Cancel(now)
		out.add(domain.NewExec(o, m.NextID(), now))
		out.Touched = append(out.Touched, o)
	}
	return out
}
