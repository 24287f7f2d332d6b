package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/venue/internal/auth"
	"github.com/efreitasn/venue/internal/domain"
	"github.com/efreitasn/venue/internal/journal"
	"github.com/efreitasn/venue/internal/notify"
	"github.com/efreitasn/venue/internal/store"
)

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	URL    string
	Events []string
}

// WebhookService handles webhook CRUD and delivers notification events to
// subscribers. It is a notify.Sink.
type WebhookService struct {
	store   *store.WebhookStore
	journal Journal
	client  *http.Client
}

// NewWebhookService creates a new WebhookService with the given
// dependencies. journal may be nil.
func NewWebhookService(
	webhookStore *store.WebhookStore,
	journal Journal,
	webhookTimeout time.Duration,
) *WebhookService {
	return &WebhookService{
		store:   webhookStore,
		journal: journal,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
	}
}

// Upsert validates the request and creates or updates the caller's
// subscriptions. Returns the resulting webhooks, whether any new
// subscription was created, and any error.
func (s *WebhookService) Upsert(ctx context.Context, caller auth.Caller, req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	if err := auth.Authorize(caller, auth.PermTrade); err != nil {
		return nil, false, err
	}

	// Validate URL.
	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}
	seen := make(map[string]bool, len(req.Events))
	events := make([]string, 0, len(req.Events))
	for _, event := range req.Events {
		if !domain.IsWebhookEvent(event) {
			return nil, false, &domain.ValidationError{
				Message: "Unknown event type: " + event + ". Must be one of: " + strings.Join(domain.WebhookEvents, ", "),
			}
		}
		if !seen[event] {
			seen[event] = true
			events = append(events, event)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(events))
	batch := &journal.Batch{}

	for _, event := range events {
		w, created := s.store.Upsert(&domain.Webhook{
			ID:       uuid.New().String(),
			Accnt:    caller.Accnt,
			Event:    event,
			URL:      req.URL,
			Created:  now,
			Modified: now,
		})
		anyCreated = anyCreated || created
		webhooks = append(webhooks, &w)
		batch.Webhooks = append(batch.Webhooks, w)
	}
	s.submit(ctx, batch)

	return webhooks, anyCreated, nil
}

// List returns the caller's subscriptions.
func (s *WebhookService) List(caller auth.Caller) ([]*domain.Webhook, error) {
	if err := auth.Authorize(caller, auth.PermTrade); err != nil {
		return nil, err
	}
	return s.store.ListByAccnt(caller.Accnt), nil
}

// Delete removes one of the caller's subscriptions. Subscriptions of other
// accounts are reported as not found.
func (s *WebhookService) Delete(ctx context.Context, caller auth.Caller, id string) error {
	if err := auth.Authorize(caller, auth.PermTrade); err != nil {
		return err
	}
	w, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if w.Accnt != caller.Accnt {
		return domain.ErrWebhookNotFound
	}
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.submit(ctx, &journal.Batch{DeletedWebhooks: []string{id}})
	return nil
}

// Restore loads persisted subscriptions.
func (s *WebhookService) Restore(webhooks []domain.Webhook) {
	for i := range webhooks {
		w := webhooks[i]
		s.store.Upsert(&w)
	}
}

func (s *WebhookService) submit(ctx context.Context, b *journal.Batch) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Submit(context.WithoutCancel(ctx), b); err != nil {
		slog.Warn("webhook change not journaled", "error", err)
	}
}

// webhookPayload is the JSON body of every delivery.
type webhookPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

type execData struct {
	MarketID  int64  `json:"market_id"`
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id,omitempty"`
	Accnt     string `json:"accnt"`
	Instr     string `json:"instr"`
	SettlDate int32  `json:"settl_date"`
	Ref       string `json:"ref,omitempty"`
	State     string `json:"state"`
	Side      string `json:"side"`
	Lots      int64  `json:"lots"`
	Ticks     int64  `json:"ticks"`
	ResdLots  int64  `json:"resd_lots"`
	ExecLots  int64  `json:"exec_lots"`
	ExecCost  int64  `json:"exec_cost"`
	LastLots  int64  `json:"last_lots,omitempty"`
	LastTicks int64  `json:"last_ticks,omitempty"`
	MatchID   int64  `json:"match_id,omitempty"`
	LiqInd    string `json:"liq_ind,omitempty"`
	Cpty      string `json:"cpty,omitempty"`
}

type marketData struct {
	ID        int64  `json:"id"`
	Instr     string `json:"instr"`
	SettlDate int32  `json:"settl_date"`
	State     string `json:"state"`
}

func buildPayload(ev notify.Event) webhookPayload {
	p := webhookPayload{
		Event:     ev.Type,
		Timestamp: ev.Time.UTC().Truncate(time.Second).Format(time.RFC3339),
	}
	switch {
	case ev.Exec != nil:
		e := ev.Exec
		p.Data = execData{
			MarketID:  e.MarketID,
			ID:        e.ID,
			OrderID:   e.OrderID,
			Accnt:     e.Accnt,
			Instr:     e.Instr,
			SettlDate: int32(e.SettlDate),
			Ref:       e.Ref,
			State:     string(e.State),
			Side:      string(e.Side),
			Lots:      e.Lots,
			Ticks:     e.Ticks,
			ResdLots:  e.ResdLots,
			ExecLots:  e.ExecLots,
			ExecCost:  e.ExecCost,
			LastLots:  e.LastLots,
			LastTicks: e.LastTicks,
			MatchID:   e.MatchID,
			LiqInd:    string(e.LiqInd),
			Cpty:      e.Cpty,
		}
	case ev.Market != nil:
		m := ev.Market
		p.Data = marketData{
			ID:        m.ID,
			Instr:     m.Instr,
			SettlDate: int32(m.SettlDate),
			State:     m.State.String(),
		}
	}
	return p
}

// Name implements notify.Sink.
func (s *WebhookService) Name() string { return "webhook" }

// Deliver implements notify.Sink. Account events go to the account's
// subscription; market events go to every subscriber.
func (s *WebhookService) Deliver(ctx context.Context, ev notify.Event) error {
	var targets []*domain.Webhook
	for _, wh := range s.store.ListByEvent(ev.Type) {
		if wh.Receives(ev.Type, ev.Accnt) {
			targets = append(targets, wh)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	body, err := json.Marshal(buildPayload(ev))
	if err != nil {
		return err
	}
	var errs []error
	for _, wh := range targets {
		if err := s.deliver(ctx, wh, ev.Type, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deliver sends the webhook payload via HTTP POST with the required headers.
func (s *WebhookService) deliver(ctx context.Context, wh *domain.Webhook, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Webhook-Id", wh.ID)
	req.Header.Set("X-Event-Type", eventType)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: status %d", wh.ID, resp.StatusCode)
	}
	return nil
}
