package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/venue/internal/auth"
	"github.com/efreitasn/venue/internal/domain"
	"github.com/efreitasn/venue/internal/service"
)

// WebhookHandler serves the account's event subscriptions under
// /accnt/webhooks. Every route sees only the caller's own webhooks.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

type subscribeRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// webhookResponse mirrors the order views: epoch-millisecond times.
type webhookResponse struct {
	ID       string `json:"id"`
	Accnt    string `json:"accnt"`
	Event    string `json:"event"`
	URL      string `json:"url"`
	Created  int64  `json:"created"`
	Modified int64  `json:"modified"`
}

func buildWebhookResponses(webhooks []*domain.Webhook) []webhookResponse {
	out := make([]webhookResponse, len(webhooks))
	for i, wh := range webhooks {
		out[i] = webhookResponse{
			ID:       wh.ID,
			Accnt:    wh.Accnt,
			Event:    wh.Event,
			URL:      wh.URL,
			Created:  wh.Created.UnixMilli(),
			Modified: wh.Modified.UnixMilli(),
		}
	}
	return out
}

// Upsert handles POST /accnt/webhooks. It answers 201 when any event gained
// a new webhook and 200 when only URLs moved. The body lists the caller's
// webhook for each requested event.
func (h *WebhookHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	var req subscribeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	webhooks, created, err := h.webhookSvc.Upsert(r.Context(), caller, service.UpsertWebhookRequest{
		URL:    req.URL,
		Events: req.Events,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, buildWebhookResponses(webhooks))
}

// List handles GET /accnt/webhooks, a bare array ordered by event.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	webhooks, err := h.webhookSvc.List(caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildWebhookResponses(webhooks))
}

// Delete handles DELETE /accnt/webhooks/{id}. Another account's webhook is
// not found.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := authorized(w, r, auth.PermTrade)
	if !ok {
		return
	}
	if err := h.webhookSvc.Delete(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
