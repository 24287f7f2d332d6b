// Package notify fans venue events out to external sinks without ever
// stalling the matching path.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/venue/internal/domain"
	"github.com/efreitasn/venue/internal/metrics"
)

// Event types.
const (
	EventTradeExecuted  = domain.EventTradeExecuted
	EventOrderCancelled = domain.EventOrderCancelled
	EventMarketUpdated  = domain.EventMarketUpdated
)

// Event is one notification. Exactly one of Exec and Market is set.
type Event struct {
	ID       string
	Type     string
	Accnt    string
	MarketID int64
	Time     time.Time
	Exec     *domain.Exec
	Market   *domain.Market
}

// ExecEvents turns the execs of a command into events. Only trades and
// cancellations are published.
func ExecEvents(execs []*domain.Exec) []Event {
	var out []Event
	for _, e := range execs {
		var typ string
		switch e.State {
		case domain.StateTrade:
			typ = EventTradeExecuted
		case domain.StateCancelled:
			typ = EventOrderCancelled
		default:
			continue
		}
		c := *e
		out = append(out, Event{
			ID:       uuid.NewString(),
			Type:     typ,
			Accnt:    e.Accnt,
			MarketID: e.MarketID,
			Time:     e.Created,
			Exec:     &c,
		})
	}
	return out
}

// MarketEvent reports a market state change.
func MarketEvent(m domain.Market, at time.Time) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     EventMarketUpdated,
		MarketID: m.ID,
		Time:     at,
		Market:   &m,
	}
}

// Sink delivers events somewhere.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Notifier queues events on a bounded channel and hands them to every sink
// from one goroutine. When the queue is full events are dropped and
// counted.
type Notifier struct {
	queue   chan Event
	sinks   []Sink
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	started bool
	closed  bool
	done    chan struct{}
}

// New creates a notifier with a queue of size events. Each delivery is
// bounded by timeout.
func New(size int, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics, sinks ...Sink) *Notifier {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		queue:   make(chan Event, size),
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Start launches the fan-out goroutine.
func (n *Notifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.closed {
		return
	}
	n.started = true
	go func() {
		defer close(n.done)
		for ev := range n.queue {
			n.dispatch(ev)
		}
	}()
}

func (n *Notifier) dispatch(ev Event) {
	for _, s := range n.sinks {
		ctx, cancel := context.Background(), context.CancelFunc(func() {})
		if n.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, n.timeout)
		}
		err := s.Deliver(ctx, ev)
		cancel()
		n.metrics.NotifyDelivered(s.Name(), err)
		if err != nil {
			n.logger.Warn("notification delivery failed",
				"sink", s.Name(), "event", ev.Type, "event_id", ev.ID, "error", err)
		}
	}
}

// Publish queues events and returns how many were dropped.
func (n *Notifier) Publish(events ...Event) int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	dropped := 0
	for _, ev := range events {
		if n.closed {
			dropped++
			continue
		}
		select {
		case n.queue <- ev:
		default:
			dropped++
			n.metrics.NotifyDropped()
		}
	}
	if dropped > 0 {
		n.logger.Warn("notification queue full, events dropped", "count", dropped)
	}
	return dropped
}

// Close stops accepting events and waits for queued ones to be delivered.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	started := n.started
	n.mu.Unlock()
	if started {
		<-n.done
	}
}
