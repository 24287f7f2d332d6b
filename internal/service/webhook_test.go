package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/venue/internal/auth"
	"github.com/efreitasn/venue/internal/domain"
	"github.com/efreitasn/venue/internal/notify"
	"github.com/efreitasn/venue/internal/store"
)

func newTestWebhookService() (*WebhookService, *recordingJournal) {
	j := &recordingJournal{}
	return NewWebhookService(store.NewWebhookStore(), j, 5*time.Second), j
}

var (
	marayl = trader("MARAYL")
	gosayl = trader("GOSAYL")
)

// --- Upsert tests ---

func TestUpsert_Success_NewSubscriptions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	webhooks, created, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{"trade.executed", "order.cancelled"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected created=true for new subscriptions")
	}
	if len(webhooks) != 2 {
		t.Fatalf("got %d webhooks, want 2", len(webhooks))
	}
	if webhooks[0].Event != "trade.executed" {
		t.Errorf("got event %q, want %q", webhooks[0].Event, "trade.executed")
	}
	if webhooks[1].Event != "order.cancelled" {
		t.Errorf("got event %q, want %q", webhooks[1].Event, "order.cancelled")
	}
	if webhooks[0].URL != "https://example.com/hooks" {
		t.Errorf("got URL %q, want %q", webhooks[0].URL, "https://example.com/hooks")
	}
}

func TestUpsert_Success_UpdateExistingURL(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	// Create initial subscription.
	_, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/old",
		Events: []string{"trade.executed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Update URL.
	webhooks, created, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/new",
		Events: []string{"trade.executed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected created=false for URL update")
	}
	if len(webhooks) != 1 {
		t.Fatalf("got %d webhooks, want 1", len(webhooks))
	}
	if webhooks[0].URL != "https://example.com/new" {
		t.Errorf("got URL %q, want %q", webhooks[0].URL, "https://example.com/new")
	}
}

func TestUpsert_Success_IdempotentSameURL(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	webhooks1, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{"trade.executed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	webhooks2, created, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{"trade.executed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected created=false for idempotent re-registration")
	}
	if webhooks1[0].ID != webhooks2[0].ID {
		t.Error("webhook id should be stable across idempotent re-registrations")
	}
}

func TestUpsert_Success_MixNewAndExisting(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	// Create one subscription.
	_, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{"trade.executed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Upsert with one existing and one new.
	webhooks, created, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{"trade.executed", "order.cancelled"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected created=true when at least one new subscription")
	}
	if len(webhooks) != 2 {
		t.Fatalf("got %d webhooks, want 2", len(webhooks))
	}
}

func TestUpsert_Success_DeduplicateEvents(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	webhooks, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{"trade.executed", "trade.executed", "trade.executed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(webhooks) != 1 {
		t.Fatalf("got %d webhooks, want 1 (duplicates should be deduplicated)", len(webhooks))
	}
}

func TestUpsert_Unauthenticated(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	_, _, err := svc.Upsert(ctx, auth.Caller{Perm: auth.PermTrade}, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{"trade.executed"},
	})
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("got error %v, want ErrUnauthenticated", err)
	}
}

func TestUpsert_EmptyURL(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	_, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "",
		Events: []string{"trade.executed"},
	})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*domain.ValidationError); !ok {
		t.Errorf("expected *ValidationError, got %T: %v", err, err)
	}
}

func TestUpsert_HTTPSchemeRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	_, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "http://example.com/hooks",
		Events: []string{"trade.executed"},
	})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	ve, ok := err.(*domain.ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if ve.Message != "url must use https scheme" {
		t.Errorf("got message %q, want %q", ve.Message, "url must use https scheme")
	}
}

func TestUpsert_URLTooLong(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	longURL := "https://example.com/" + string(make([]byte, 2049))
	_, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    longURL,
		Events: []string{"trade.executed"},
	})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*domain.ValidationError); !ok {
		t.Errorf("expected *ValidationError, got %T: %v", err, err)
	}
}

func TestUpsert_InvalidURL(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	_, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "not-a-url",
		Events: []string{"trade.executed"},
	})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*domain.ValidationError); !ok {
		t.Errorf("expected *ValidationError, got %T: %v", err, err)
	}
}

func TestUpsert_EmptyEvents(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	_, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{},
	})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	ve, ok := err.(*domain.ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if ve.Message != "events must be a non-empty array" {
		t.Errorf("got message %q, want %q", ve.Message, "events must be a non-empty array")
	}
}

func TestUpsert_InvalidEventType(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	_, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{"trade.matched"},
	})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	ve, ok := err.(*domain.ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	expected := "Unknown event type: trade.matched. Must be one of: trade.executed, order.cancelled, market.updated"
	if ve.Message != expected {
		t.Errorf("got message %q, want %q", ve.Message, expected)
	}
}

// --- List tests ---

func TestList_Success(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	_, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{"trade.executed", "order.cancelled"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	webhooks, err := svc.List(marayl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(webhooks) != 2 {
		t.Fatalf("got %d webhooks, want 2", len(webhooks))
	}
}

func TestList_EmptyResult(t *testing.T) {
	svc, _ := newTestWebhookService()

	webhooks, err := svc.List(marayl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(webhooks) != 0 {
		t.Fatalf("got %d webhooks, want 0", len(webhooks))
	}
}

func TestList_Unauthenticated(t *testing.T) {
	svc, _ := newTestWebhookService()

	_, err := svc.List(auth.Caller{Perm: auth.PermTrade})
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("got error %v, want ErrUnauthenticated", err)
	}
}

// --- Delete tests ---

func TestDelete_Success(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	webhooks, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{"trade.executed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = svc.Delete(ctx, marayl, webhooks[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify it's gone.
	list, err := svc.List(marayl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("got %d webhooks after delete, want 0", len(list))
	}
}

func TestDelete_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	err := svc.Delete(ctx, marayl, "nonexistent-id")
	if !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Errorf("got error %v, want ErrWebhookNotFound", err)
	}
}

func TestDelete_OtherAccount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWebhookService()

	webhooks, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{"trade.executed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = svc.Delete(ctx, gosayl, webhooks[0].ID)
	if !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Errorf("got error %v, want ErrWebhookNotFound", err)
	}
	if list, _ := svc.List(marayl); len(list) != 1 {
		t.Error("subscription of another account must survive")
	}
}

// --- Persistence tests ---

func TestUpsertAndDelete_AreJournaled(t *testing.T) {
	ctx := context.Background()
	svc, j := newTestWebhookService()

	webhooks, _, err := svc.Upsert(ctx, marayl, UpsertWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{"trade.executed", "order.cancelled"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Delete(ctx, marayl, webhooks[0].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if j.len() != 2 {
		t.Fatalf("got %d journal batches, want 2", j.len())
	}
	if got := len(j.batches[0].Webhooks); got != 2 {
		t.Errorf("upsert batch carries %d webhooks, want 2", got)
	}
	if got := j.batches[1].DeletedWebhooks; len(got) != 1 || got[0] != webhooks[0].ID {
		t.Errorf("delete batch = %v", got)
	}
}

func TestRestore_LoadsSubscriptions(t *testing.T) {
	svc, _ := newTestWebhookService()
	svc.Restore([]domain.Webhook{
		{ID: "wh-1", Accnt: "MARAYL", Event: "trade.executed", URL: "https://example.com/a"},
		{ID: "wh-2", Accnt: "GOSAYL", Event: "trade.executed", URL: "https://example.com/b"},
	})

	list, err := svc.List(marayl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "wh-1" {
		t.Errorf("got %+v", list)
	}
}

// --- Delivery tests ---

type capture struct {
	mu       sync.Mutex
	payloads []map[string]interface{}
	headers  []http.Header
}

func (c *capture) server(status int) *httptest.Server {
	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		json.Unmarshal(body, &payload)
		c.mu.Lock()
		c.payloads = append(c.payloads, payload)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
}

func newDeliveryService(server *httptest.Server) (*WebhookService, *store.WebhookStore) {
	ws := store.NewWebhookStore()
	return &WebhookService{store: ws, client: server.Client()}, ws
}

func subscribe(ws *store.WebhookStore, id, accnt, event, url string) {
	ws.Upsert(&domain.Webhook{
		ID:       id,
		Accnt:    accnt,
		Event:    event,
		URL:      url,
		Created:  time.Now(),
		Modified: time.Now(),
	})
}

func tradeEvent() notify.Event {
	at := time.Date(2014, 1, 1, 9, 30, 0, 0, time.UTC)
	return notify.ExecEvents([]*domain.Exec{{
		ID: 7, OrderID: 4, Accnt: "MARAYL", MarketID: 82255, Instr: "EURUSD", SettlDate: 20140302,
		State: domain.StateTrade, Side: domain.SideBuy, Lots: 3, Ticks: 12346,
		ExecLots: 3, ExecCost: 37038, LastLots: 3, LastTicks: 12346,
		MatchID: 6, LiqInd: domain.LiqIndTaker, Cpty: "GOSAYL", Created: at,
	}})[0]
}

func TestDeliver_TradeExecuted_SendsPayloadAndHeaders(t *testing.T) {
	var c capture
	server := c.server(http.StatusOK)
	defer server.Close()

	svc, ws := newDeliveryService(server)
	subscribe(ws, "wh-1", "MARAYL", "trade.executed", server.URL+"/hooks")
	subscribe(ws, "wh-2", "GOSAYL", "trade.executed", server.URL+"/other")

	if err := svc.Deliver(context.Background(), tradeEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.payloads) != 1 {
		t.Fatalf("got %d requests, want 1", len(c.payloads))
	}
	payload := c.payloads[0]
	if payload["event"] != "trade.executed" {
		t.Errorf("got event %v, want trade.executed", payload["event"])
	}
	if payload["timestamp"] != "2014-01-01T09:30:00Z" {
		t.Errorf("got timestamp %v", payload["timestamp"])
	}
	data, ok := payload["data"].(map[string]interface{})
	if !ok {
		t.Fatal("expected data to be a map")
	}
	if data["market_id"] != float64(82255) || data["id"] != float64(7) || data["match_id"] != float64(6) {
		t.Errorf("got ids %v/%v/%v", data["market_id"], data["id"], data["match_id"])
	}
	if data["last_lots"] != float64(3) || data["last_ticks"] != float64(12346) {
		t.Errorf("got last %v@%v", data["last_lots"], data["last_ticks"])
	}
	if data["liq_ind"] != "Taker" || data["cpty"] != "GOSAYL" {
		t.Errorf("got liq_ind %v cpty %v", data["liq_ind"], data["cpty"])
	}

	h := c.headers[0]
	if h.Get("X-Webhook-Id") != "wh-1" {
		t.Errorf("got X-Webhook-Id %q, want %q", h.Get("X-Webhook-Id"), "wh-1")
	}
	if h.Get("X-Event-Type") != "trade.executed" {
		t.Errorf("got X-Event-Type %q, want %q", h.Get("X-Event-Type"), "trade.executed")
	}
	if h.Get("X-Delivery-Id") == "" {
		t.Error("expected X-Delivery-Id header to be set")
	}
	if h.Get("Content-Type") != "application/json" {
		t.Errorf("got Content-Type %q, want %q", h.Get("Content-Type"), "application/json")
	}
}

func TestDeliver_MarketUpdated_GoesToEverySubscriber(t *testing.T) {
	var c capture
	server := c.server(http.StatusNoContent)
	defer server.Close()

	svc, ws := newDeliveryService(server)
	subscribe(ws, "wh-1", "MARAYL", "market.updated", server.URL+"/a")
	subscribe(ws, "wh-2", "GOSAYL", "market.updated", server.URL+"/b")
	subscribe(ws, "wh-3", "GOSAYL", "trade.executed", server.URL+"/b")

	ev := notify.MarketEvent(domain.Market{ID: 82255, Instr: "EURUSD", SettlDate: 20140302, State: domain.MarketStateClosed}, time.Now())
	if err := svc.Deliver(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.payloads) != 2 {
		t.Fatalf("got %d requests, want 2", len(c.payloads))
	}
	data, _ := c.payloads[0]["data"].(map[string]interface{})
	if data["state"] != domain.MarketStateClosed.String() {
		t.Errorf("got state %v", data["state"])
	}
}

func TestDeliver_NoSubscription(t *testing.T) {
	var c capture
	server := c.server(http.StatusOK)
	defer server.Close()

	svc, _ := newDeliveryService(server)
	if err := svc.Deliver(context.Background(), tradeEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.payloads) != 0 {
		t.Errorf("got %d requests, want 0", len(c.payloads))
	}
}

func TestDeliver_ErrorStatus(t *testing.T) {
	var c capture
	server := c.server(http.StatusInternalServerError)
	defer server.Close()

	svc, ws := newDeliveryService(server)
	subscribe(ws, "wh-1", "MARAYL", "trade.executed", server.URL+"/hooks")

	if err := svc.Deliver(context.Background(), tradeEvent()); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestDeliver_ThroughNotifier(t *testing.T) {
	var c capture
	server := c.server(http.StatusOK)
	defer server.Close()

	svc, ws := newDeliveryService(server)
	subscribe(ws, "wh-1", "MARAYL", "trade.executed", server.URL+"/hooks")

	n := notify.New(8, time.Second, nil, nil, svc)
	n.Start()
	if dropped := n.Publish(tradeEvent()); dropped != 0 {
		t.Fatalf("dropped %d events", dropped)
	}
	n.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.payloads) != 1 {
		t.Errorf("got %d requests, want 1", len(c.payloads))
	}
}
