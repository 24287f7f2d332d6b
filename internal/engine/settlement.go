package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/efreitasn/venue/internal/domain"
)

// MarketCloser closes a market on behalf of the venue. It lets the sweeper
// route closures through the same path as admin updates without depending on
// the service layer.
type MarketCloser interface {
	CloseMarket(ctx context.Context, marketID int64) error
}

// SettlementSweeper periodically closes markets whose settlement date has
// passed.
type SettlementSweeper struct {
	interval time.Duration
	registry *Registry
	closer   MarketCloser
	logger   *slog.Logger
}

// NewSettlementSweeper creates a sweeper with the given dependencies.
func NewSettlementSweeper(interval time.Duration, registry *Registry, closer MarketCloser, logger *slog.Logger) *SettlementSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettlementSweeper{
		interval: interval,
		registry: registry,
		closer:   closer,
		logger:   logger,
	}
}

// Start launches a background goroutine that ticks at the configured
// interval. It stops when ctx is cancelled.
func (s *SettlementSweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				s.Sweep(ctx, t)
			}
		}
	}()
}

// Due returns the ids of open markets that settle before the business day
// of now.
func (s *SettlementSweeper) Due(now time.Time) []int64 {
	bday := domain.BusinessDay(now)
	var due []int64
	for _, m := range s.registry.List() {
		m.RLock()
		state := m.State()
		m.RUnlock()
		if state == domain.MarketStateClosed {
			continue
		}
		if m.SettlDate().JDay() < bday {
			due = append(due, m.ID())
		}
	}
	return due
}

// Sweep closes every due market and returns how many were closed.
func (s *SettlementSweeper) Sweep(ctx context.Context, now time.Time) int {
	closed := 0
	for _, id := range s.Due(now) {
		if err := s.closer.CloseMarket(ctx, id); err != nil {
			s.logger.Error("settlement close failed", "market_id", id, "error", err)
			continue
		}
		closed++
	}
	if closed > 0 {
		s.logger.Info("settled markets", "count", closed)
	}
	return closed
}
