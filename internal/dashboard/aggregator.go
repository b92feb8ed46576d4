// Package dashboard holds the server-computed dashboard aggregate and the
// trend bars derived from it.
package dashboard

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/internal/transport"
	"github.com/labtrack/labtrack-client/pkg/logger"
)

const statsPath = "/api/v1/statistics/dashboard"

// Palette colors trend bars by position, cycling when the series is longer.
var Palette = []string{
	"bg-blue-500", "bg-blue-500", "bg-blue-500",
	"bg-indigo-500", "bg-blue-500", "bg-blue-500",
}

// placeholder is shown until the first successful fetch.
var placeholder = []domain.TrendPoint{
	{Label: "Jan", Value: 45},
	{Label: "Feb", Value: 52},
	{Label: "Mar", Value: 38},
	{Label: "Apr", Value: 65},
	{Label: "May", Value: 48},
	{Label: "Jun", Value: 60},
}

// API is the subset of the transport the aggregator needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (*transport.Envelope, error)
}

// Aggregator caches the dashboard aggregate. A failed fetch keeps whatever
// was shown before.
type Aggregator struct {
	api    API
	logger *logger.Logger
	now    func() time.Time

	mu        sync.RWMutex
	stats     *domain.DashboardStats
	trend     []domain.TrendBar
	fetchedAt time.Time
	loading   bool
}

// NewAggregator creates an aggregator showing the placeholder trend.
func NewAggregator(api API, log *logger.Logger) *Aggregator {
	return &Aggregator{
		api:    api,
		logger: log.WithComponent("dashboard"),
		now:    time.Now,
		trend:  Bars(placeholder),
	}
}

// Bars zips trend points with the palette.
func Bars(points []domain.TrendPoint) []domain.TrendBar {
	bars := make([]domain.TrendBar, len(points))
	for i, p := range points {
		bars[i] = domain.TrendBar{Label: p.Label, Value: p.Value, Color: Palette[i%len(Palette)]}
	}
	return bars
}

// FetchStats loads the aggregate. Errors are logged only; the previous
// aggregate and trend stay in place.
func (a *Aggregator) FetchStats(ctx context.Context) {
	a.setLoading(true)
	defer a.setLoading(false)

	env, err := a.api.Get(ctx, statsPath, nil)
	if err != nil {
		a.logger.Debug().Err(err).Msg("dashboard fetch failed, keeping previous stats")
		return
	}

	stats, err := transport.Decode[domain.DashboardStats](env)
	if err != nil {
		a.logger.Warn().Err(err).Msg("unexpected dashboard shape, keeping previous stats")
		return
	}

	a.mu.Lock()
	a.stats = &stats
	a.trend = Bars(stats.OutboundTrend)
	a.fetchedAt = a.now()
	a.mu.Unlock()
}

func (a *Aggregator) setLoading(v bool) {
	a.mu.Lock()
	a.loading = v
	a.mu.Unlock()
}

// Stats returns a copy of the aggregate; ok is false before the first
// successful fetch.
func (a *Aggregator) Stats() (domain.DashboardStats, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stats == nil {
		return domain.DashboardStats{}, false
	}
	return a.stats.Clone(), true
}

// Aggregate implements inventory.AggregateSource
func (a *Aggregator) Aggregate() (*domain.DashboardStats, bool) {
	stats, ok := a.Stats()
	if !ok {
		return nil, false
	}
	return &stats, true
}

// Trend returns the trend bars.
func (a *Aggregator) Trend() []domain.TrendBar {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]domain.TrendBar(nil), a.trend...)
}

// FetchedAt is the time of the last successful fetch, zero if none.
func (a *Aggregator) FetchedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fetchedAt
}

// Loading reports whether a request is in flight.
func (a *Aggregator) Loading() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loading
}
