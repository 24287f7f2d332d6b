package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/venue/internal/auth"
	"github.com/efreitasn/venue/internal/domain"
	"github.com/efreitasn/venue/internal/service"
)

// MarketHandler handles HTTP requests for reference data and market
// endpoints.
type MarketHandler struct {
	coord *service.Coordinator
	query *service.QueryService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(coord *service.Coordinator, query *service.QueryService) *MarketHandler {
	return &MarketHandler{coord: coord, query: query}
}

type instrumentListResponse struct {
	Instrs []instrumentResponse `json:"instrs"`
}

// marketRequest is the JSON request body for POST and PUT /markets. The
// instrument and settlement date may come from the path instead.
type marketRequest struct {
	Instr     string         `json:"instr"`
	SettlDate domain.IsoDate `json:"settl_date"`
	State     *marketState   `json:"state"`
}

// ListInstruments handles GET /refdata/instrs.
func (h *MarketHandler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	instrs := h.query.Instruments()
	result := make([]instrumentResponse, len(instrs))
	for i, in := range instrs {
		result[i] = buildInstrumentResponse(in)
	}
	WriteJSON(w, http.StatusOK, instrumentListResponse{Instrs: result})
}

// GetInstrument handles GET /refdata/instrs/{instr}.
func (h *MarketHandler) GetInstrument(w http.ResponseWriter, r *http.Request) {
	in, err := h.query.Instrument(chi.URLParam(r, "instr"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildInstrumentResponse(in))
}

// List handles GET /markets. Market and position lists are bare arrays.
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, buildMarketResponses(h.query.Markets()))
}

// ListByInstr handles GET /markets/{instr}.
func (h *MarketHandler) ListByInstr(w http.ResponseWriter, r *http.Request) {
	ms, err := h.query.MarketsByInstr(chi.URLParam(r, "instr"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildMarketResponses(ms))
}

// Get handles GET /markets/{instr}/{settl_date}.
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	settlDate, err := parseDate(chi.URLParam(r, "settl_date"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	m, err := h.query.Market(chi.URLParam(r, "instr"), settlDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildMarketResponse(m))
}

// Create handles POST /markets[/{instr}[/{settl_date}]].
func (h *MarketHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermAdmin)
	if !ok {
		return
	}
	var req marketRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	instr, settlDate, err := marketKey(r, req.Instr, req.SettlDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	cmd := service.CreateMarket{Instr: instr, SettlDate: settlDate}
	if req.State != nil {
		cmd.State = domain.MarketState(*req.State)
	}

	res, err := h.coord.CreateMarket(r.Context(), caller, cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildMarketResponse(*res.Market))
}

// Update handles PUT /markets/{instr}/{settl_date}. Orders cancelled by a
// close are reported to their accounts, not to the admin.
func (h *MarketHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermAdmin)
	if !ok {
		return
	}
	var req marketRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.State == nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "state is required")
		return
	}
	instr, settlDate, err := marketKey(r, "", 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := h.coord.UpdateMarket(r.Context(), caller, service.UpdateMarket{
		Instr:     instr,
		SettlDate: settlDate,
		State:     domain.MarketState(*req.State),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildMarketResponse(*res.Market))
}
