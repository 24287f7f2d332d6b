package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/venue/internal/auth"
	"github.com/efreitasn/venue/internal/domain"
	"github.com/efreitasn/venue/internal/service"
)

// AccntHandler handles HTTP requests for the caller's orders, trades,
// executions and positions.
type AccntHandler struct {
	coord *service.Coordinator
	query *service.QueryService
}

// NewAccntHandler creates a new AccntHandler.
func NewAccntHandler(coord *service.Coordinator, query *service.QueryService) *AccntHandler {
	return &AccntHandler{coord: coord, query: query}
}

// placeOrderRequest is the JSON request body for POST /accnt/orders.
type placeOrderRequest struct {
	Instr     string         `json:"instr"`
	SettlDate domain.IsoDate `json:"settl_date"`
	Ref       string         `json:"ref"`
	Side      side           `json:"side"`
	Lots      int64          `json:"lots"`
	Ticks     int64          `json:"ticks"`
	MinLots   int64          `json:"min_lots"`
}

// reviseOrderRequest is the JSON request body for PUT /accnt/orders. Zero
// lots cancels. Ref selects the order when the path names no ids.
type reviseOrderRequest struct {
	Ref  string `json:"ref"`
	Lots *int64 `json:"lots"`
}

// createTradeRequest is the JSON request body for POST /accnt/trades.
type createTradeRequest struct {
	Instr     string         `json:"instr"`
	SettlDate domain.IsoDate `json:"settl_date"`
	Accnt     string         `json:"accnt"`
	Ref       string         `json:"ref"`
	Side      side           `json:"side"`
	Lots      int64          `json:"lots"`
	Ticks     int64          `json:"ticks"`
	LiqInd    string         `json:"liq_ind"`
	Cpty      string         `json:"cpty"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
}

type execListResponse struct {
	Execs  []execResponse `json:"execs"`
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

type tradeListResponse struct {
	Trades []execResponse `json:"trades"`
}

// GetAccount handles GET /accnt.
func (h *AccntHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	a, err := h.query.Account(caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(a))
}

// ListOrders handles GET /accnt/orders[/{instr}[/{settl_date}]].
func (h *AccntHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	f, err := filter(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	orders, err := h.query.Orders(caller, f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, orderListResponse{Orders: buildOrderResponses(orders)})
}

// GetOrder handles GET /accnt/orders/{instr}/{settl_date}/{id}.
func (h *AccntHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	instr, settlDate, id, err := entityKey(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	o, err := h.query.Order(caller, instr, settlDate, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponses([]domain.Order{o})[0])
}

// PlaceOrder handles POST /accnt/orders[/{instr}[/{settl_date}]].
func (h *AccntHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	instr, settlDate, err := marketKey(r, req.Instr, req.SettlDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := h.coord.PlaceOrder(r.Context(), caller, service.PlaceOrder{
		Instr:     instr,
		SettlDate: settlDate,
		Ref:       req.Ref,
		Side:      domain.Side(req.Side),
		Lots:      req.Lots,
		Ticks:     req.Ticks,
		MinLots:   req.MinLots,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildResultResponse(res))
}

// ReviseOrders handles PUT /accnt/orders/{instr}/{settl_date}[/{ids}].
func (h *AccntHandler) ReviseOrders(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	var req reviseOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Lots == nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "lots is required")
		return
	}
	instr, settlDate, ids, err := batchKey(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var res *service.Result
	if *req.Lots == 0 {
		res, err = h.coord.CancelOrder(r.Context(), caller, service.CancelOrder{
			Instr: instr, SettlDate: settlDate, IDs: ids, Ref: req.Ref,
		})
	} else {
		res, err = h.coord.ReviseOrder(r.Context(), caller, service.ReviseOrder{
			Instr: instr, SettlDate: settlDate, IDs: ids, Ref: req.Ref, Lots: *req.Lots,
		})
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildResultResponse(res))
}

// CancelOrders handles DELETE /accnt/orders/{instr}/{settl_date}/{ids}.
func (h *AccntHandler) CancelOrders(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	instr, settlDate, ids, err := batchKey(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := h.coord.CancelOrder(r.Context(), caller, service.CancelOrder{
		Instr: instr, SettlDate: settlDate, IDs: ids,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildResultResponse(res))
}

// ListTrades handles GET /accnt/trades[/{instr}[/{settl_date}]].
func (h *AccntHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	f, err := filter(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	trades, err := h.query.Trades(caller, f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, tradeListResponse{Trades: buildExecResponses(trades)})
}

// GetTrade handles GET /accnt/trades/{instr}/{settl_date}/{id}.
func (h *AccntHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	instr, settlDate, id, err := entityKey(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	e, err := h.query.Trade(caller, instr, settlDate, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildExecResponses([]domain.Exec{e})[0])
}

// CreateTrade handles POST /accnt/trades[/{instr}[/{settl_date}]].
func (h *AccntHandler) CreateTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermAdmin)
	if !ok {
		return
	}
	var req createTradeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	instr, settlDate, err := marketKey(r, req.Instr, req.SettlDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := h.coord.CreateTrade(r.Context(), caller, service.CreateTrade{
		Instr:     instr,
		SettlDate: settlDate,
		Accnt:     req.Accnt,
		Ref:       req.Ref,
		Side:      domain.Side(req.Side),
		Lots:      req.Lots,
		Ticks:     req.Ticks,
		LiqInd:    domain.LiqInd(req.LiqInd),
		Cpty:      req.Cpty,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildResultResponse(res))
}

// AckTrades handles DELETE /accnt/trades/{instr}/{settl_date}/{ids}.
func (h *AccntHandler) AckTrades(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	instr, settlDate, ids, err := batchKey(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := h.coord.AckTrade(r.Context(), caller, service.AckTrade{
		Instr: instr, SettlDate: settlDate, IDs: ids,
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListExecs handles GET /accnt/execs?offset=&limit=.
func (h *AccntHandler) ListExecs(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	execs, total, err := h.query.Execs(caller, offset, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, execListResponse{
		Execs:  buildExecResponses(execs),
		Total:  total,
		Offset: offset,
		Limit:  len(execs),
	})
}

// ListPositions handles GET /accnt/posns[/{instr}].
func (h *AccntHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	f, err := filter(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	posns, err := h.query.Positions(caller, f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	result := make([]positionResponse, len(posns))
	for i, p := range posns {
		result[i] = buildPositionResponse(p)
	}
	WriteJSON(w, http.StatusOK, result)
}

// GetPosition handles GET /accnt/posns/{instr}/{settl_date}.
func (h *AccntHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	instr, settlDate, err := marketKey(r, "", 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := h.query.Position(caller, instr, settlDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildPositionResponse(p))
}

func entityKey(r *http.Request) (string, domain.IsoDate, int64, error) {
	instr, settlDate, err := marketKey(r, "", 0)
	if err != nil {
		return "", 0, 0, err
	}
	id, err := parseID(chi.URLParam(r, "id"))
	return instr, settlDate, id, err
}

func batchKey(r *http.Request) (string, domain.IsoDate, []int64, error) {
	instr, settlDate, err := marketKey(r, "", 0)
	if err != nil {
		return "", 0, nil, err
	}
	raw := chi.URLParam(r, "ids")
	if raw == "" {
		return instr, settlDate, nil, nil
	}
	ids, err := parseIDs(raw)
	return instr, settlDate, ids, err
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &domain.ValidationError{Message: key + " must be an integer"}
	}
	return n, nil
}
