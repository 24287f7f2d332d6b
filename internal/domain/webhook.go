package domain

import "time"

// Events an account can subscribe to. Trade and order events belong to one
// account; market events carry no account and reach every subscriber.
const (
	EventTradeExecuted  = "trade.executed"
	EventOrderCancelled = "order.cancelled"
	EventMarketUpdated  = "market.updated"
)

// WebhookEvents lists the subscribable events in display order.
var WebhookEvents = []string{EventTradeExecuted, EventOrderCancelled, EventMarketUpdated}

// IsWebhookEvent reports whether event can be subscribed to.
func IsWebhookEvent(event string) bool {
	for _, e := range WebhookEvents {
		if e == event {
			return true
		}
	}
	return false
}

// Webhook is the callback URL an account registered for one event. An
// account holds at most one webhook per event; re-registering moves the URL
// and keeps the ID.
type Webhook struct {
	ID       string
	Accnt    string
	Event    string
	URL      string
	Created  time.Time
	Modified time.Time
}

// Receives reports whether an event of typ raised for accnt is delivered to
// w. An empty accnt marks a market event.
func (w *Webhook) Receives(typ, accnt string) bool {
	return w.Event == typ && (accnt == "" || accnt == w.Accnt)
}
