// Package agent keeps the stores refreshed and serves their reconciled view
// over HTTP.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/labtrack/labtrack-client/internal/dashboard"
	"github.com/labtrack/labtrack-client/internal/inventory"
	"github.com/labtrack/labtrack-client/internal/outbound"
	"github.com/labtrack/labtrack-client/pkg/logger"
)

// Refresher refetches inventory, the pending approval queue and the
// dashboard aggregate on a fixed interval.
type Refresher struct {
	inventory *inventory.Store
	outbound  *outbound.Store
	dashboard *dashboard.Aggregator
	pageSize  int
	interval  time.Duration
	logger    *logger.Logger
	cancel    context.CancelFunc

	mu        sync.RWMutex
	lastCycle time.Time
}

// NewRefresher creates a refresher. pageSize bounds the inventory and
// pending pages fetched on each cycle.
func NewRefresher(inv *inventory.Store, out *outbound.Store, dash *dashboard.Aggregator, pageSize int, interval time.Duration, log *logger.Logger) *Refresher {
	return &Refresher{
		inventory: inv,
		outbound:  out,
		dashboard: dash,
		pageSize:  pageSize,
		interval:  interval,
		logger:    log.WithComponent("refresher"),
	}
}

// Start runs one cycle immediately and then one per tick, in a background
// goroutine.
func (r *Refresher) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	go func() {
		r.logger.Info().Dur("interval", r.interval).Msg("refresher started")

		r.RunCycle(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("refresher stopped")
				return
			case <-ticker.C:
				r.RunCycle(ctx)
			}
		}
	}()
}

// Stop stops the refresher goroutine
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// RunCycle refetches everything once. Store fetches never fail, so a cycle
// always completes; failures were already surfaced by the transport.
func (r *Refresher) RunCycle(ctx context.Context) {
	start := time.Now()

	r.inventory.Fetch(ctx, inventory.Filter{Page: 1, PageSize: r.pageSize})
	r.outbound.FetchPending(ctx, outbound.Query{Page: 1, PageSize: r.pageSize})
	r.dashboard.FetchStats(ctx)

	r.mu.Lock()
	r.lastCycle = time.Now()
	r.mu.Unlock()

	r.logger.Debug().
		Dur("duration", time.Since(start)).
		Int("batches", r.inventory.Total()).
		Int("pending", r.outbound.Total(outbound.Pending)).
		Msg("refresh cycle completed")
}

// RefreshInventory refetches the inventory page last shown and the
// aggregate its stats come from.
func (r *Refresher) RefreshInventory(ctx context.Context) {
	r.inventory.Refresh(ctx)
	r.dashboard.FetchStats(ctx)
}

// RefreshOutbound refetches the approval queue and the full outbound list.
func (r *Refresher) RefreshOutbound(ctx context.Context) {
	r.outbound.FetchPending(ctx, outbound.Query{Page: 1, PageSize: r.pageSize})
	r.outbound.FetchAll(ctx, outbound.Query{Page: 1, PageSize: r.pageSize})
}

// LastCycle is the completion time of the last full cycle, zero if none.
func (r *Refresher) LastCycle() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastCycle
}
