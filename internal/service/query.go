package service

import (
	"fmt"

	"github.com/efreitasn/venue/internal/auth"
	"github.com/efreitasn/venue/internal/domain"
	"github.com/efreitasn/venue/internal/engine"
	"github.com/efreitasn/venue/internal/store"
)

// Filter narrows account views to an instrument and, optionally, a
// settlement date. The zero Filter matches everything.
type Filter struct {
	Instr     string
	SettlDate domain.IsoDate
}

func (f Filter) match(instr string, settlDate domain.IsoDate) bool {
	if f.Instr != "" && f.Instr != instr {
		return false
	}
	return f.SettlDate == 0 || f.SettlDate == settlDate
}

// QueryService serves the read side of the venue. Every view is a copy;
// nothing returned aliases state the matcher mutates.
type QueryService struct {
	registry *engine.Registry
	accounts *store.AccountStore
	orders   *store.OrderStore
	trades   *store.TradeStore
	ledger   *store.PositionLedger
	maxExecs int
}

// NewQueryService creates a QueryService. maxExecs caps the page size of
// Execs.
func NewQueryService(
	registry *engine.Registry,
	accounts *store.AccountStore,
	orders *store.OrderStore,
	trades *store.TradeStore,
	ledger *store.PositionLedger,
	maxExecs int,
) *QueryService {
	if maxExecs < 1 {
		maxExecs = 100
	}
	return &QueryService{
		registry: registry,
		accounts: accounts,
		orders:   orders,
		trades:   trades,
		ledger:   ledger,
		maxExecs: maxExecs,
	}
}

// Instruments returns the reference data ordered by instrument id.
func (s *QueryService) Instruments() []domain.Instrument {
	return s.registry.Instruments().List()
}

// Instrument returns one instrument.
func (s *QueryService) Instrument(symbol string) (domain.Instrument, error) {
	return s.registry.Instruments().Get(symbol)
}

func snapshot(m *engine.Market) domain.Market {
	m.RLock()
	defer m.RUnlock()
	return m.Snapshot()
}

// Markets returns every market ordered by id.
func (s *QueryService) Markets() []domain.Market {
	all := s.registry.List()
	out := make([]domain.Market, len(all))
	for i, m := range all {
		out[i] = snapshot(m)
	}
	return out
}

// MarketsByInstr returns the markets of one instrument ordered by
// settlement date.
func (s *QueryService) MarketsByInstr(symbol string) ([]domain.Market, error) {
	ms, err := s.registry.ListByInstrument(symbol)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Market, len(ms))
	for i, m := range ms {
		out[i] = snapshot(m)
	}
	return out, nil
}

// Market returns one market.
func (s *QueryService) Market(symbol string, settlDate domain.IsoDate) (domain.Market, error) {
	m, err := s.registry.Find(symbol, settlDate)
	if err != nil {
		return domain.Market{}, err
	}
	return snapshot(m), nil
}

// checkFilter rejects filters naming an unknown instrument.
func (s *QueryService) checkFilter(f Filter) error {
	if f.Instr == "" {
		return nil
	}
	_, err := s.registry.Instruments().Get(f.Instr)
	return err
}

// Orders returns the caller's live orders ordered by market then id.
func (s *QueryService) Orders(caller auth.Caller, f Filter) ([]domain.Order, error) {
	if err := auth.Authorize(caller, auth.PermTrade); err != nil {
		return nil, err
	}
	if err := s.checkFilter(f); err != nil {
		return nil, err
	}
	return s.orders.ListByAccnt(caller.Accnt, func(o *domain.Order) bool {
		return f.match(o.Instr, o.SettlDate)
	}), nil
}

// Order returns one of the caller's orders, live or done.
func (s *QueryService) Order(caller auth.Caller, symbol string, settlDate domain.IsoDate, id int64) (domain.Order, error) {
	if err := auth.Authorize(caller, auth.PermTrade); err != nil {
		return domain.Order{}, err
	}
	m, err := s.registry.Find(symbol, settlDate)
	if err != nil {
		return domain.Order{}, err
	}
	return s.orders.Get(caller.Accnt, m.ID(), id)
}

// Trades returns the caller's unacknowledged trades ordered by market then
// id.
func (s *QueryService) Trades(caller auth.Caller, f Filter) ([]domain.Exec, error) {
	if err := auth.Authorize(caller, auth.PermTrade); err != nil {
		return nil, err
	}
	if err := s.checkFilter(f); err != nil {
		return nil, err
	}
	return s.trades.OpenTrades(caller.Accnt, func(e *domain.Exec) bool {
		return f.match(e.Instr, e.SettlDate)
	}), nil
}

// Trade returns one of the caller's trades, acknowledged or not.
func (s *QueryService) Trade(caller auth.Caller, symbol string, settlDate domain.IsoDate, id int64) (domain.Exec, error) {
	if err := auth.Authorize(caller, auth.PermTrade); err != nil {
		return domain.Exec{}, err
	}
	m, err := s.registry.Find(symbol, settlDate)
	if err != nil {
		return domain.Exec{}, err
	}
	return s.trades.Trade(caller.Accnt, domain.TradeKey{MarketID: m.ID(), ID: id})
}

// Execs returns a page of the caller's execs, newest first, and the total
// count. A limit of zero means the maximum page size.
func (s *QueryService) Execs(caller auth.Caller, offset, limit int) ([]domain.Exec, int, error) {
	if err := auth.Authorize(caller, auth.PermTrade); err != nil {
		return nil, 0, err
	}
	if offset < 0 {
		return nil, 0, &domain.ValidationError{Message: "offset must be >= 0"}
	}
	if limit < 0 || limit > s.maxExecs {
		return nil, 0, &domain.ValidationError{
			Message: fmt.Sprintf("limit must be between 1 and %d", s.maxExecs),
		}
	}
	if limit == 0 {
		limit = s.maxExecs
	}
	execs, total := s.trades.Execs(caller.Accnt, offset, limit)
	return execs, total, nil
}

// Positions returns the caller's positions ordered by market id.
func (s *QueryService) Positions(caller auth.Caller, f Filter) ([]domain.Position, error) {
	if err := auth.Authorize(caller, auth.PermTrade); err != nil {
		return nil, err
	}
	if err := s.checkFilter(f); err != nil {
		return nil, err
	}
	return s.ledger.List(caller.Accnt, func(p *domain.Position) bool {
		return f.match(p.Instr, p.SettlDate)
	}), nil
}

// Position returns the caller's position in one market. The market need
// not exist any more; positions outlive closed markets.
func (s *QueryService) Position(caller auth.Caller, symbol string, settlDate domain.IsoDate) (domain.Position, error) {
	if err := auth.Authorize(caller, auth.PermTrade); err != nil {
		return domain.Position{}, err
	}
	instr, err := s.registry.Instruments().Get(symbol)
	if err != nil {
		return domain.Position{}, err
	}
	if !settlDate.Valid() {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	return s.ledger.Get(caller.Accnt, domain.MarketID(instr.ID, settlDate))
}

// Account returns the caller's account. Accounts appear the first time they
// place an order or take part in a trade.
func (s *QueryService) Account(caller auth.Caller) (domain.Account, error) {
	if err := auth.Authorize(caller, auth.PermTrade); err != nil {
		return domain.Account{}, err
	}
	a, ok := s.accounts.Get(caller.Accnt)
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return a, nil
}
