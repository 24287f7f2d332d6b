package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/venue/internal/domain"
	"github.com/efreitasn/venue/internal/service"
)

// instrumentResponse is reference data for one instrument.
type instrumentResponse struct {
	ID        int32  `json:"id"`
	Symbol    string `json:"symbol"`
	Display   string `json:"display"`
	BaseAsset string `json:"base_asset"`
	TermCcy   string `json:"term_ccy"`
	MinLots   int64  `json:"min_lots"`
	MaxLots   int64  `json:"max_lots"`
}

func buildInstrumentResponse(in domain.Instrument) instrumentResponse {
	return instrumentResponse{
		ID:        in.ID,
		Symbol:    in.Symbol,
		Display:   in.Display,
		BaseAsset: in.BaseAsset,
		TermCcy:   in.TermCcy,
		MinLots:   in.MinLots,
		MaxLots:   in.MaxLots,
	}
}

// marketResponse carries top-of-book depth as fixed arrays. Missing levels
// are null.
type marketResponse struct {
	ID         int64                      `json:"id"`
	Instr      string                     `json:"instr"`
	SettlDate  domain.IsoDate             `json:"settl_date"`
	State      int                        `json:"state"`
	LastLots   *int64                     `json:"last_lots"`
	LastTicks  *int64                     `json:"last_ticks"`
	LastTime   *int64                     `json:"last_time"`
	BidTicks   [domain.DepthLevels]*int64 `json:"bid_ticks"`
	BidLots    [domain.DepthLevels]*int64 `json:"bid_lots"`
	BidCount   [domain.DepthLevels]*int   `json:"bid_count"`
	OfferTicks [domain.DepthLevels]*int64 `json:"offer_ticks"`
	OfferLots  [domain.DepthLevels]*int64 `json:"offer_lots"`
	OfferCount [domain.DepthLevels]*int   `json:"offer_count"`
}

func buildMarketResponse(m domain.Market) marketResponse {
	resp := marketResponse{
		ID:        m.ID,
		Instr:     m.Instr,
		SettlDate: m.SettlDate,
		State:     int(m.State),
	}
	if m.LastTime != nil {
		lots, ticks, at := m.LastLots, m.LastTicks, m.LastTime.UnixMilli()
		resp.LastLots, resp.LastTicks, resp.LastTime = &lots, &ticks, &at
	}
	for i, lvl := range m.Bids {
		if i == domain.DepthLevels {
			break
		}
		resp.BidTicks[i], resp.BidLots[i], resp.BidCount[i] = &lvl.Ticks, &lvl.Lots, &lvl.Count
	}
	for i, lvl := range m.Offers {
		if i == domain.DepthLevels {
			break
		}
		resp.OfferTicks[i], resp.OfferLots[i], resp.OfferCount[i] = &lvl.Ticks, &lvl.Lots, &lvl.Count
	}
	return resp
}

func buildMarketResponses(ms []domain.Market) []marketResponse {
	result := make([]marketResponse, len(ms))
	for i, m := range ms {
		result[i] = buildMarketResponse(m)
	}
	return result
}

// orderResponse is a single order. Times are unix milliseconds.
type orderResponse struct {
	ID        int64          `json:"id"`
	Accnt     string         `json:"accnt"`
	MarketID  int64          `json:"market_id"`
	Instr     string         `json:"instr"`
	SettlDate domain.IsoDate `json:"settl_date"`
	Ref       *string        `json:"ref"`
	State     string         `json:"state"`
	Side      string         `json:"side"`
	Lots      int64          `json:"lots"`
	Ticks     int64          `json:"ticks"`
	ResdLots  int64          `json:"resd_lots"`
	ExecLots  int64          `json:"exec_lots"`
	ExecCost  int64          `json:"exec_cost"`
	AvgTicks  *int64         `json:"avg_ticks"`
	LastLots  *int64         `json:"last_lots"`
	LastTicks *int64         `json:"last_ticks"`
	MinLots   *int64         `json:"min_lots"`
	Created   int64          `json:"created"`
	Modified  int64          `json:"modified"`
}

func buildOrderResponses(orders []domain.Order) []orderResponse {
	result := make([]orderResponse, len(orders))
	for i, o := range orders {
		var avg *int64
		if v, ok := o.AvgTicks(); ok {
			avg = &v
		}
		result[i] = orderResponse{
			ID:        o.ID,
			Accnt:     o.Accnt,
			MarketID:  o.MarketID,
			Instr:     o.Instr,
			SettlDate: o.SettlDate,
			Ref:       optString(o.Ref),
			State:     string(o.State),
			Side:      string(o.Side),
			Lots:      o.Lots,
			Ticks:     o.Ticks,
			ResdLots:  o.ResdLots,
			ExecLots:  o.ExecLots,
			ExecCost:  o.ExecCost,
			AvgTicks:  avg,
			LastLots:  optInt(o.LastLots),
			LastTicks: optInt(o.LastTicks),
			MinLots:   optInt(o.MinLots),
			Created:   o.Created.UnixMilli(),
			Modified:  o.Modified.UnixMilli(),
		}
	}
	return result
}

// execResponse is an execution: an order state change or a trade.
type execResponse struct {
	ID        int64          `json:"id"`
	OrderID   *int64         `json:"order_id"`
	Accnt     string         `json:"accnt"`
	MarketID  int64          `json:"market_id"`
	Instr     string         `json:"instr"`
	SettlDate domain.IsoDate `json:"settl_date"`
	Ref       *string        `json:"ref"`
	State     string         `json:"state"`
	Side      string         `json:"side"`
	Lots      int64          `json:"lots"`
	Ticks     int64          `json:"ticks"`
	ResdLots  int64          `json:"resd_lots"`
	ExecLots  int64          `json:"exec_lots"`
	ExecCost  int64          `json:"exec_cost"`
	LastLots  *int64         `json:"last_lots"`
	LastTicks *int64         `json:"last_ticks"`
	MinLots   *int64         `json:"min_lots"`
	MatchID   *int64         `json:"match_id"`
	PosnLots  *int64         `json:"posn_lots"`
	PosnCost  *int64         `json:"posn_cost"`
	LiqInd    *string        `json:"liq_ind"`
	Cpty      *string        `json:"cpty"`
	Created   int64          `json:"created"`
}

func buildExecResponses(execs []domain.Exec) []execResponse {
	result := make([]execResponse, len(execs))
	for i, e := range execs {
		resp := execResponse{
			ID:        e.ID,
			OrderID:   optInt(e.OrderID),
			Accnt:     e.Accnt,
			MarketID:  e.MarketID,
			Instr:     e.Instr,
			SettlDate: e.SettlDate,
			Ref:       optString(e.Ref),
			State:     string(e.State),
			Side:      string(e.Side),
			Lots:      e.Lots,
			Ticks:     e.Ticks,
			ResdLots:  e.ResdLots,
			ExecLots:  e.ExecLots,
			ExecCost:  e.ExecCost,
			LastLots:  optInt(e.LastLots),
			LastTicks: optInt(e.LastTicks),
			MinLots:   optInt(e.MinLots),
			MatchID:   optInt(e.MatchID),
			LiqInd:    optString(string(e.LiqInd)),
			Cpty:      optString(e.Cpty),
			Created:   e.Created.UnixMilli(),
		}
		if e.IsTrade() {
			lots, cost := e.PosnLots, e.PosnCost
			resp.PosnLots, resp.PosnCost = &lots, &cost
		}
		result[i] = resp
	}
	return result
}

// accountResponse is the caller's account.
type accountResponse struct {
	Mnem    string `json:"mnem"`
	Display string `json:"display"`
	Group   string `json:"group"`
	Created int64  `json:"created"`
}

func buildAccountResponse(a domain.Account) accountResponse {
	return accountResponse{
		Mnem:    a.Mnem,
		Display: a.Display,
		Group:   a.SettlementGroup(),
		Created: a.Created.UnixMilli(),
	}
}

// positionResponse is an account's exposure in one market.
type positionResponse struct {
	Accnt     string         `json:"accnt"`
	MarketID  int64          `json:"market_id"`
	Instr     string         `json:"instr"`
	SettlDate domain.IsoDate `json:"settl_date"`
	BuyLots   int64          `json:"buy_lots"`
	BuyCost   int64          `json:"buy_cost"`
	SellLots  int64          `json:"sell_lots"`
	SellCost  int64          `json:"sell_cost"`
}

func buildPositionResponse(p domain.Position) positionResponse {
	return positionResponse{
		Accnt:     p.Accnt,
		MarketID:  p.MarketID,
		Instr:     p.Instr,
		SettlDate: p.SettlDate,
		BuyLots:   p.BuyLots,
		BuyCost:   p.BuyCost,
		SellLots:  p.SellLots,
		SellCost:  p.SellCost,
	}
}

// resultResponse is what a command changed.
type resultResponse struct {
	Market *marketResponse   `json:"market"`
	Orders []orderResponse   `json:"orders"`
	Execs  []execResponse    `json:"execs"`
	Posn   *positionResponse `json:"posn"`
}

func buildResultResponse(res *service.Result) resultResponse {
	resp := resultResponse{
		Orders: buildOrderResponses(res.Orders),
		Execs:  buildExecResponses(res.Execs),
	}
	if res.Market != nil {
		m := buildMarketResponse(*res.Market)
		resp.Market = &m
	}
	if res.Posn != nil {
		p := buildPositionResponse(*res.Posn)
		resp.Posn = &p
	}
	return resp
}

func optInt(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// marketState accepts a state either as its number or its name.
type marketState domain.MarketState

func (s *marketState) UnmarshalJSON(b []byte) error {
	v, ok := domain.ParseMarketState(strings.ToLower(strings.Trim(string(b), `"`)))
	if !ok {
		return &domain.ValidationError{Message: "state must be one of: 1 (created), 2 (trading), 3 (suspended), 4 (closed)"}
	}
	*s = marketState(v)
	return nil
}

// side accepts Buy/Sell in any case.
type side domain.Side

func (s *side) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch strings.ToLower(raw) {
	case "buy":
		*s = side(domain.SideBuy)
	case "sell":
		*s = side(domain.SideSell)
	default:
		*s = side(raw)
	}
	return nil
}

// marketKey resolves the instrument and settlement date from the path,
// falling back to the request body for segments the route leaves out.
func marketKey(r *http.Request, instr string, settlDate domain.IsoDate) (string, domain.IsoDate, error) {
	if v := chi.URLParam(r, "instr"); v != "" {
		instr = v
	}
	if v := chi.URLParam(r, "settl_date"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			return "", 0, err
		}
		settlDate = d
	}
	if instr == "" {
		return "", 0, &domain.ValidationError{Message: "instr is required"}
	}
	if !settlDate.Valid() {
		return "", 0, &domain.ValidationError{Message: "settl_date must be a valid YYYYMMDD date"}
	}
	return instr, settlDate, nil
}

// filter builds a query filter from the optional path segments.
func filter(r *http.Request) (service.Filter, error) {
	f := service.Filter{Instr: chi.URLParam(r, "instr")}
	if v := chi.URLParam(r, "settl_date"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			return f, err
		}
		f.SettlDate = d
	}
	return f, nil
}

func parseDate(s string) (domain.IsoDate, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || !domain.IsoDate(v).Valid() {
		return 0, &domain.ValidationError{Message: "settl_date must be a valid YYYYMMDD date"}
	}
	return domain.IsoDate(v), nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Message: "id must be a positive integer"}
	}
	return id, nil
}

// parseIDs parses a comma-separated id list such as "3,5,8".
func parseIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := parseID(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
