package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/templui/picsellart/internal/model"
)

const sweepBatch = 100

// ExpireStale fails created orders older than ttl. Abandoned checkouts
// never settle, and a late success callback for them is flagged for refund.
func (r *Reconciler) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	before := r.now().UTC().Add(-ttl)

	stale, err := r.orders.StaleCreated(ctx, before, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale orders: %w", err)
	}

	expired := 0
	for _, o := range stale {
		result, err := r.fail(ctx, o.ID, nil, "expired")
		if err != nil {
			slog.Error("failed to expire payment order", "error", err, "order_id", o.ID)
			continue
		}
		if result.Status == model.OrderStatusFailed {
			expired++
		}
	}
	return expired, nil
}

// OrderSweeper runs ExpireStale on a cron schedule.
type OrderSweeper struct {
	reconciler *Reconciler
	ttl        time.Duration
	cron       *cron.Cron
}

func NewOrderSweeper(reconciler *Reconciler, ttl time.Duration) *OrderSweeper {
	return &OrderSweeper{
		reconciler: reconciler,
		ttl:        ttl,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

func (s *OrderSweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	slog.Info("order sweeper started", "schedule", schedule, "ttl", s.ttl)
	return nil
}

func (s *OrderSweeper) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := s.reconciler.ExpireStale(ctx, s.ttl)
	if err != nil {
		slog.Error("order sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("expired stale payment orders", "count", n)
	}
	return n
}

// Stop waits for a running sweep to finish.
func (s *OrderSweeper) Stop() {
	<-s.cron.Stop().Done()
}
