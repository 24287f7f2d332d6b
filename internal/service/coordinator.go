package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/venue/internal/auth"
	"github.com/efreitasn/venue/internal/domain"
	"github.com/efreitasn/venue/internal/engine"
	"github.com/efreitasn/venue/internal/journal"
	"github.com/efreitasn/venue/internal/metrics"
	"github.com/efreitasn/venue/internal/notify"
	"github.com/efreitasn/venue/internal/store"
)

// Journal receives the records each command changed.
type Journal interface {
	Submit(ctx context.Context, b *journal.Batch) error
}

// Publisher receives notification events. It must not block.
type Publisher interface {
	Publish(events ...notify.Event) int
}

// CoordinatorDeps holds the collaborators of a Coordinator. Journal,
// Notifier, Metrics and Logger are optional.
type CoordinatorDeps struct {
	Registry     *engine.Registry
	Matcher      *engine.Matcher
	Ledger       *store.PositionLedger
	Trades       *store.TradeStore
	Orders       *store.OrderStore
	Accounts     *store.AccountStore
	Journal      Journal
	Notifier     Publisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Clock        func() time.Time
	DefaultState domain.MarketState
}

// Coordinator runs every state-changing command of the venue. A command
// holds its market's write lock from validation until the ledger, the
// stores and the journal queue have seen its changes; notifications are
// published after the lock is released.
type Coordinator struct {
	registry     *engine.Registry
	matcher      *engine.Matcher
	ledger       *store.PositionLedger
	trades       *store.TradeStore
	orders       *store.OrderStore
	accounts     *store.AccountStore
	journal      Journal
	notifier     Publisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	clock        func() time.Time
	defaultState domain.MarketState
}

// NewCoordinator creates a Coordinator with the given dependencies.
func NewCoordinator(d CoordinatorDeps) *Coordinator {
	c := &Coordinator{
		registry:     d.Registry,
		matcher:      d.Matcher,
		ledger:       d.Ledger,
		trades:       d.Trades,
		orders:       d.Orders,
		accounts:     d.Accounts,
		journal:      d.Journal,
		notifier:     d.Notifier,
		metrics:      d.Metrics,
		logger:       d.Logger,
		clock:        d.Clock,
		defaultState: d.DefaultState,
	}
	if c.matcher == nil {
		c.matcher = engine.NewMatcher(engine.PolicyRest)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.clock == nil {
		c.clock = func() time.Time { return time.Now().UTC() }
	}
	if !c.defaultState.Valid() || c.defaultState == domain.MarketStateClosed {
		c.defaultState = domain.MarketStateTrading
	}
	return c
}

// Execute dispatches cmd to its typed method.
func (c *Coordinator) Execute(ctx context.Context, caller auth.Caller, cmd Command) (*Result, error) {
	switch cmd := cmd.(type) {
	case PlaceOrder:
		return c.PlaceOrder(ctx, caller, cmd)
	case ReviseOrder:
		return c.ReviseOrder(ctx, caller, cmd)
	case CancelOrder:
		return c.CancelOrder(ctx, caller, cmd)
	case AckTrade:
		return c.AckTrade(ctx, caller, cmd)
	case CreateTrade:
		return c.CreateTrade(ctx, caller, cmd)
	case CreateMarket:
		return c.CreateMarket(ctx, caller, cmd)
	case UpdateMarket:
		return c.UpdateMarket(ctx, caller, cmd)
	}
	return nil, fmt.Errorf("unknown command %T", cmd)
}

func (c *Coordinator) observe(cmd string, start time.Time, err error) {
	c.metrics.ObserveCommand(cmd, err, time.Since(start))
	if err != nil {
		c.logger.Debug("command rejected", "command", cmd, "error", err)
	}
}

// PlaceOrder submits a new order and matches it.
func (c *Coordinator) PlaceOrder(ctx context.Context, caller auth.Caller, cmd PlaceOrder) (res *Result, err error) {
	start := time.Now()
	defer func() { c.observe(cmd.name(), start, err) }()

	if err = auth.Authorize(caller, auth.PermTrade); err != nil {
		return nil, err
	}
	m, err := c.registry.Find(cmd.Instr, cmd.SettlDate)
	if err != nil {
		return nil, err
	}
	acct, _ := c.accounts.GetOrCreate(caller.Accnt, c.clock())

	res, err = c.inMarket(ctx, m, caller.Accnt, func(now time.Time) (*engine.Outcome, error) {
		if _, dup := c.orders.FindLiveByRef(caller.Accnt, cmd.Ref); dup {
			return nil, fmt.Errorf("order ref %q: %w", cmd.Ref, domain.ErrAlreadyExists)
		}
		return c.matcher.Place(m, &domain.Order{
			Accnt:   caller.Accnt,
			Group:   acct.SettlementGroup(),
			Ref:     cmd.Ref,
			Side:    cmd.Side,
			Lots:    cmd.Lots,
			Ticks:   cmd.Ticks,
			MinLots: cmd.MinLots,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("order placed",
		"accnt", caller.Accnt, "market_id", m.ID(), "execs", len(res.Execs))
	return res, nil
}

// ReviseOrder revises every listed order or none of them.
func (c *Coordinator) ReviseOrder(ctx context.Context, caller auth.Caller, cmd ReviseOrder) (res *Result, err error) {
	start := time.Now()
	defer func() { c.observe(cmd.name(), start, err) }()

	if err = auth.Authorize(caller, auth.PermTrade); err != nil {
		return nil, err
	}
	m, err := c.registry.Find(cmd.Instr, cmd.SettlDate)
	if err != nil {
		return nil, err
	}

	return c.inMarket(ctx, m, caller.Accnt, func(now time.Time) (*engine.Outcome, error) {
		ids, err := c.targets(caller.Accnt, m.ID(), cmd.IDs, cmd.Ref)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if err := c.owned(caller.Accnt, m.ID(), id); err != nil {
				return nil, err
			}
			if err := c.matcher.CheckRevise(m, id, cmd.Lots); err != nil {
				return nil, err
			}
		}
		merged := &engine.Outcome{}
		for _, id := range ids {
			out, err := c.matcher.Revise(m, id, cmd.Lots, now)
			if err != nil {
				return nil, err
			}
			merge(merged, out)
		}
		return merged, nil
	})
}

// CancelOrder cancels every listed order or none of them. Orders can be
// cancelled while the market is suspended.
func (c *Coordinator) CancelOrder(ctx context.Context, caller auth.Caller, cmd CancelOrder) (res *Result, err error) {
	start := time.Now()
	defer func() { c.observe(cmd.name(), start, err) }()

	if err = auth.Authorize(caller, auth.PermTrade); err != nil {
		return nil, err
	}
	m, err := c.registry.Find(cmd.Instr, cmd.SettlDate)
	if err != nil {
		return nil, err
	}

	return c.inMarket(ctx, m, caller.Accnt, func(now time.Time) (*engine.Outcome, error) {
		ids, err := c.targets(caller.Accnt, m.ID(), cmd.IDs, cmd.Ref)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if err := c.owned(caller.Accnt, m.ID(), id); err != nil {
				return nil, err
			}
			if err := c.matcher.CheckCancel(m, id); err != nil {
				return nil, err
			}
		}
		merged := &engine.Outcome{}
		for _, id := range ids {
			out, err := c.matcher.Cancel(m, id, now)
			if err != nil {
				return nil, err
			}
			merge(merged, out)
		}
		return merged, nil
	})
}

// targets resolves the orders a revise or cancel applies to: the listed
// ids, or the live order of accnt carrying ref in this market.
func (c *Coordinator) targets(accnt string, marketID int64, ids []int64, ref string) ([]int64, error) {
	if len(ids) > 0 || ref == "" {
		return dedupe(ids)
	}
	o, ok := c.orders.FindLiveByRef(accnt, ref)
	if !ok || o.MarketID != marketID {
		return nil, fmt.Errorf("order ref %q: %w", ref, domain.ErrOrderNotFound)
	}
	return []int64{o.ID}, nil
}

// AckTrade acknowledges every listed trade or none of them.
func (c *Coordinator) AckTrade(ctx context.Context, caller auth.Caller, cmd AckTrade) (res *Result, err error) {
	start := time.Now()
	defer func() { c.observe(cmd.name(), start, err) }()

	if err = auth.Authorize(caller, auth.PermTrade); err != nil {
		return nil, err
	}
	ids, err := dedupe(cmd.IDs)
	if err != nil {
		return nil, err
	}
	m, err := c.registry.Find(cmd.Instr, cmd.SettlDate)
	if err != nil {
		return nil, err
	}

	m.Lock()
	defer m.Unlock()

	for _, id := range ids {
		t, err := c.trades.Trade(caller.Accnt, domain.TradeKey{MarketID: m.ID(), ID: id})
		if err != nil {
			return nil, err
		}
		if t.Acked {
			return nil, fmt.Errorf("trade %d already acknowledged: %w", id, domain.ErrTradeNotFound)
		}
	}
	res = &Result{}
	for _, id := range ids {
		t, err := c.trades.Ack(caller.Accnt, domain.TradeKey{MarketID: m.ID(), ID: id})
		if err != nil {
			return nil, err
		}
		res.Execs = append(res.Execs, t)
	}
	c.submit(ctx, &journal.Batch{Execs: res.Execs})
	return res, nil
}

// CreateTrade books a manual trade, and its opposite side when a
// counterparty is named. Manual trades do not touch the book.
func (c *Coordinator) CreateTrade(ctx context.Context, caller auth.Caller, cmd CreateTrade) (res *Result, err error) {
	start := time.Now()
	defer func() { c.observe(cmd.name(), start, err) }()

	if err = auth.Authorize(caller, auth.PermAdmin); err != nil {
		return nil, err
	}
	accnt := cmd.Accnt
	if accnt == "" {
		accnt = caller.Accnt
	}
	switch {
	case !cmd.Side.Valid():
		return nil, &domain.ValidationError{Message: "invalid side"}
	case cmd.Lots <= 0:
		return nil, fmt.Errorf("lots %d: %w", cmd.Lots, domain.ErrInvalidQuantity)
	case cmd.Ticks <= 0:
		return nil, &domain.ValidationError{Message: "ticks must be positive"}
	case cmd.Cpty == accnt:
		return nil, &domain.ValidationError{Message: "cpty must differ from accnt"}
	}
	switch cmd.LiqInd {
	case domain.LiqIndNone, domain.LiqIndMaker, domain.LiqIndTaker:
	default:
		return nil, &domain.ValidationError{Message: "invalid liq_ind"}
	}
	m, err := c.registry.Find(cmd.Instr, cmd.SettlDate)
	if err != nil {
		return nil, err
	}
	c.accounts.GetOrCreate(accnt, c.clock())
	if cmd.Cpty != "" {
		c.accounts.GetOrCreate(cmd.Cpty, c.clock())
	}

	return c.inMarket(ctx, m, accnt, func(now time.Time) (*engine.Outcome, error) {
		if m.State() == domain.MarketStateClosed {
			return nil, fmt.Errorf("market %d is closed: %w", m.ID(), domain.ErrMarketClosed)
		}
		e := &domain.Exec{
			ID:        m.NextID(),
			Accnt:     accnt,
			MarketID:  m.ID(),
			Instr:     m.Instrument().Symbol,
			SettlDate: m.SettlDate(),
			Ref:       cmd.Ref,
			State:     domain.StateTrade,
			Side:      cmd.Side,
			Lots:      cmd.Lots,
			Ticks:     cmd.Ticks,
			ExecLots:  cmd.Lots,
			ExecCost:  domain.Cost(cmd.Lots, cmd.Ticks),
			LastLots:  cmd.Lots,
			LastTicks: cmd.Ticks,
			LiqInd:    cmd.LiqInd,
			Cpty:      cmd.Cpty,
			Created:   now,
		}
		out := &engine.Outcome{Execs: []*domain.Exec{e}, Trades: []*domain.Exec{e}}
		if cmd.Cpty != "" {
			opp := e.Opposite(m.NextID())
			e.MatchID = opp.ID
			out.Execs = append(out.Execs, opp)
			out.Trades = append(out.Trades, opp)
		}
		return out, nil
	})
}

// CreateMarket opens a market for an instrument and settlement date.
func (c *Coordinator) CreateMarket(ctx context.Context, caller auth.Caller, cmd CreateMarket) (res *Result, err error) {
	start := time.Now()
	defer func() { c.observe(cmd.name(), start, err) }()

	if err = auth.Authorize(caller, auth.PermAdmin); err != nil {
		return nil, err
	}
	state := cmd.State
	if state == 0 {
		state = c.defaultState
	}
	now := c.clock()
	m, err := c.registry.Create(cmd.Instr, cmd.SettlDate, state, domain.BusinessDay(now))
	if err != nil {
		return nil, err
	}

	m.Lock()
	snap := m.Snapshot()
	c.submit(ctx, &journal.Batch{Markets: []domain.Market{snap}})
	m.Unlock()

	c.publish(notify.MarketEvent(snap, now))
	c.logger.Info("market created",
		"market_id", snap.ID, "instr", snap.Instr, "settl_date", snap.SettlDate, "state", snap.State)
	return &Result{Market: &snap}, nil
}

// UpdateMarket changes a market's state.
func (c *Coordinator) UpdateMarket(ctx context.Context, caller auth.Caller, cmd UpdateMarket) (res *Result, err error) {
	start := time.Now()
	defer func() { c.observe(cmd.name(), start, err) }()

	if err = auth.Authorize(caller, auth.PermAdmin); err != nil {
		return nil, err
	}
	m, err := c.registry.Find(cmd.Instr, cmd.SettlDate)
	if err != nil {
		return nil, err
	}
	return c.updateMarket(ctx, m, cmd.State)
}

// CloseMarket closes a market as the system caller. It implements
// engine.MarketCloser for the settlement sweeper.
func (c *Coordinator) CloseMarket(ctx context.Context, marketID int64) (err error) {
	start := time.Now()
	defer func() { c.observe(UpdateMarket{}.name(), start, err) }()

	if err = auth.Authorize(auth.System, auth.PermAdmin); err != nil {
		return err
	}
	m, err := c.registry.Get(marketID)
	if err != nil {
		return err
	}
	_, err = c.updateMarket(ctx, m, domain.MarketStateClosed)
	return err
}

func (c *Coordinator) updateMarket(ctx context.Context, m *engine.Market, state domain.MarketState) (*Result, error) {
	if !state.Valid() {
		return nil, &domain.ValidationError{Message: "invalid state"}
	}

	m.Lock()
	now := c.clock()
	prev := m.State()
	if err := m.Transition(state); err != nil {
		m.Unlock()
		return nil, err
	}
	if prev == state {
		snap := m.Snapshot()
		m.Unlock()
		return &Result{Market: &snap}, nil
	}

	out := &engine.Outcome{}
	if state == domain.MarketStateClosed {
		out = c.matcher.CancelAll(m, now)
	}
	res, batch := c.record(m, out, "")
	c.submit(ctx, batch)
	m.Unlock()

	events := notify.ExecEvents(out.Execs)
	events = append(events, notify.MarketEvent(*res.Market, now))
	c.publish(events...)
	c.logger.Info("market updated",
		"market_id", m.ID(), "from", prev, "to", state, "cancelled", len(out.Execs))
	return res, nil
}

// inMarket runs fn under the market's write lock, then records what it
// changed before the lock is released.
func (c *Coordinator) inMarket(ctx context.Context, m *engine.Market, accnt string, fn func(now time.Time) (*engine.Outcome, error)) (*Result, error) {
	m.Lock()
	out, err := fn(c.clock())
	if err != nil {
		m.Unlock()
		return nil, err
	}
	res, batch := c.record(m, out, accnt)
	// Queued before unlocking so a market's batches reach the journal in
	// command order. A full queue stalls this market only.
	c.submit(ctx, batch)
	m.Unlock()

	c.publish(notify.ExecEvents(out.Execs)...)
	return res, nil
}

// record applies an outcome to the ledger and the stores and builds the
// journal batch. The caller holds the market's write lock. An empty accnt
// keeps every order and exec in the result.
func (c *Coordinator) record(m *engine.Market, out *engine.Outcome, accnt string) (*Result, *journal.Batch) {
	posns := c.ledger.ApplyBatch(out.Trades)
	c.trades.Append(out.Execs...)

	orders := out.Touched
	if out.Order != nil {
		orders = append([]*domain.Order{out.Order}, orders...)
	}
	c.orders.PutBatch(orders...)

	for _, t := range out.Trades {
		if t.LiqInd == domain.LiqIndMaker && t.OrderID != 0 {
			c.metrics.AddMatch(t.LastLots)
		}
	}

	snap := m.Snapshot()
	batch := &journal.Batch{Markets: []domain.Market{snap}, Posns: posns}
	res := &Result{Market: &snap}
	for _, o := range orders {
		batch.Orders = append(batch.Orders, *o)
		if accnt == "" || o.Accnt == accnt {
			res.Orders = append(res.Orders, *o)
		}
	}
	for _, e := range out.Execs {
		batch.Execs = append(batch.Execs, *e)
		if accnt == "" || e.Accnt == accnt {
			res.Execs = append(res.Execs, *e)
		}
	}
	if accnt != "" {
		if p, err := c.ledger.Get(accnt, m.ID()); err == nil {
			res.Posn = &p
		}
	}
	return res, batch
}

func (c *Coordinator) owned(accnt string, marketID, id int64) error {
	if _, err := c.orders.Get(accnt, marketID, id); err != nil {
		return fmt.Errorf("order %d: %w", id, err)
	}
	return nil
}

func merge(dst, src *engine.Outcome) {
	dst.Execs = append(dst.Execs, src.Execs...)
	dst.Trades = append(dst.Trades, src.Trades...)
	dst.Touched = append(dst.Touched, src.Order)
	dst.Touched = append(dst.Touched, src.Touched...)
}

// submit hands a batch to the journal. Persistence outlives the request,
// so cancellation of ctx is ignored.
func (c *Coordinator) submit(ctx context.Context, b *journal.Batch) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Submit(context.WithoutCancel(ctx), b); err != nil {
		c.logger.Error("journal submit failed", "error", err)
	}
}

func (c *Coordinator) publish(events ...notify.Event) {
	if c.notifier == nil || len(events) == 0 {
		return
	}
	c.notifier.Publish(events...)
}

// Restore rebuilds in-memory state from a journal snapshot. It must run
// before any command.
func (c *Coordinator) Restore(snap *journal.Snapshot) error {
	for _, mk := range snap.Markets {
		if _, err := c.registry.Restore(mk); err != nil {
			return fmt.Errorf("restore market %d: %w", mk.ID, err)
		}
	}

	orders := make([]*domain.Order, len(snap.Orders))
	live := make(map[int64][]*domain.Order)
	for i := range snap.Orders {
		o := snap.Orders[i]
		orders[i] = &o
		c.accounts.GetOrCreate(o.Accnt, o.Created)
		if !o.Done() {
			live[o.MarketID] = append(live[o.MarketID], &o)
		}
	}
	c.orders.PutBatch(orders...)
	for id, os := range live {
		m, err := c.registry.Get(id)
		if err != nil {
			return fmt.Errorf("restore orders of market %d: %w", id, err)
		}
		m.Lock()
		m.Restore(os)
		m.Unlock()
	}

	execs := make([]*domain.Exec, len(snap.Execs))
	var applied []domain.TradeKey
	for i := range snap.Execs {
		execs[i] = &snap.Execs[i]
		if execs[i].IsTrade() {
			applied = append(applied, execs[i].Key())
		}
	}
	c.trades.Append(execs...)
	c.ledger.Restore(snap.Posns, applied)

	c.logger.Info("state restored",
		"markets", len(snap.Markets), "orders", len(snap.Orders), "execs", len(snap.Execs), "posns", len(snap.Posns))
	return nil
}
