package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/efreitasn/venue/internal/store"
	"pgregory.net/rapid"
)

// Property 2: Webhook upsert idempotency
// Re-registering the same (accnt, event) keeps the webhook id; a new URL
// updates the subscription in place.

func TestProperty_WebhookUpsertIdempotency(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		svc := NewWebhookService(store.NewWebhookStore(), nil, 5*time.Second)
		caller := trader(fmt.Sprintf("ACC%d", rapid.IntRange(1, 9999).Draw(t, "accnt")))
		event := rapid.SampledFrom([]string{"trade.executed", "order.cancelled", "market.updated"}).Draw(t, "event")
		url1 := fmt.Sprintf("https://example.com/hook/%d", rapid.IntRange(1, 99999).Draw(t, "url1"))
		url2 := fmt.Sprintf("https://other.example.com/hook/%d", rapid.IntRange(1, 99999).Draw(t, "url2"))

		upsert := func(url string) (string, string, bool) {
			webhooks, created, err := svc.Upsert(ctx, caller, UpsertWebhookRequest{URL: url, Events: []string{event}})
			if err != nil {
				t.Fatalf("upsert failed: %v", err)
			}
			if len(webhooks) != 1 {
				t.Fatalf("expected 1 webhook, got %d", len(webhooks))
			}
			return webhooks[0].ID, webhooks[0].URL, created
		}

		originalID, url, created := upsert(url1)
		if !created || url != url1 {
			t.Fatalf("initial registration: created=%v url=%q", created, url)
		}

		repeats := rapid.IntRange(1, 5).Draw(t, "repeats")
		for i := 0; i < repeats; i++ {
			id, url, created := upsert(url1)
			if created || id != originalID || url != url1 {
				t.Fatalf("repeat %d: created=%v id=%q url=%q", i, created, id, url)
			}
		}

		id, url, created := upsert(url2)
		if created || id != originalID || url != url2 {
			t.Fatalf("URL update: created=%v id=%q url=%q", created, id, url)
		}

		list, err := svc.List(caller)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(list) != 1 || list[0].URL != url2 {
			t.Fatalf("list = %+v", list)
		}
	})
}
