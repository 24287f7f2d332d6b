package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/venue/internal/domain"
)

// WebhookStore is a thread-safe in-memory store of webhooks, indexed by id
// and by event then account, the order deliveries fan out in. Reads return
// copies so callers never observe a concurrent URL move.
type WebhookStore struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Webhook
	byEvent map[string]map[string]*domain.Webhook // event → accnt → webhook
}

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		byID:    make(map[string]*domain.Webhook),
		byEvent: make(map[string]map[string]*domain.Webhook),
	}
}

// Upsert registers w for its account and event. When the account already
// has a webhook for the event, that webhook keeps its id and takes the new
// URL; Modified only moves when the URL does. It returns a copy of the
// stored webhook and whether it is new.
func (s *WebhookStore) Upsert(w *domain.Webhook) (domain.Webhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.byEvent[w.Event][w.Accnt]; ok {
		if cur.URL != w.URL {
			cur.URL = w.URL
			cur.Modified = w.Modified
		}
		return *cur, false
	}

	c := *w
	s.byID[c.ID] = &c
	if s.byEvent[c.Event] == nil {
		s.byEvent[c.Event] = make(map[string]*domain.Webhook)
	}
	s.byEvent[c.Event][c.Accnt] = &c
	return c, true
}

// Get returns the webhook with id.
func (s *WebhookStore) Get(id string) (domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byID[id]
	if !ok {
		return domain.Webhook{}, domain.ErrWebhookNotFound
	}
	return *w, nil
}

// ListByAccnt returns the webhooks of accnt in event display order, never
// nil.
func (s *WebhookStore) ListByAccnt(accnt string) []*domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*domain.Webhook{}
	for _, event := range domain.WebhookEvents {
		if w, ok := s.byEvent[event][accnt]; ok {
			c := *w
			out = append(out, &c)
		}
	}
	return out
}

// ListByEvent returns every webhook for event, ordered by account.
func (s *WebhookStore) ListByEvent(event string) []*domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Webhook, 0, len(s.byEvent[event]))
	for _, w := range s.byEvent[event] {
		c := *w
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Accnt < out[j].Accnt })
	return out
}

// Delete removes the webhook with id from both indexes.
func (s *WebhookStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.byID[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	delete(s.byID, id)
	delete(s.byEvent[w.Event], w.Accnt)
	if len(s.byEvent[w.Event]) == 0 {
		delete(s.byEvent, w.Event)
	}
	return nil
}

// Len returns the number of webhooks held.
func (s *WebhookStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
