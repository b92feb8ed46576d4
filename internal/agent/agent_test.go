package agent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labtrack/labtrack-client/internal/dashboard"
	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/internal/expiry"
	"github.com/labtrack/labtrack-client/internal/inventory"
	"github.com/labtrack/labtrack-client/internal/outbound"
	"github.com/labtrack/labtrack-client/pkg/logger"
	"github.com/labtrack/labtrack-client/pkg/messaging"
	"github.com/labtrack/labtrack-client/pkg/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fixture struct {
	backend   *testutil.Backend
	inventory *inventory.Store
	outbound  *outbound.Store
	dashboard *dashboard.Aggregator
	refresher *Refresher
	statsDown atomic.Bool
}

func batches() []domain.InventoryItem {
	mat := testutil.MaterialFixture(1)
	return []domain.InventoryItem{
		testutil.InventoryFixture(1, mat, 10, testutil.DaysFromToday(-3)),
		testutil.InventoryFixture(2, mat, 4, testutil.DaysFromToday(12)),
		testutil.InventoryFixture(3, mat, 8, testutil.DaysFromToday(200)),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{backend: testutil.NewBackend(t)}

	items := batches()
	f.backend.Handle(http.MethodGet, "/api/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteOK(w, map[string]any{"list": items, "total": len(items)})
	})
	f.backend.Handle(http.MethodGet, "/api/v1/outbound/audit/list", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteOK(w, map[string]any{"list": []domain.OutboundItem{testutil.OutboundFixture(9, items[1], 2)}, "total": 1})
	})
	f.backend.Handle(http.MethodGet, "/api/v1/outbound/all", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteOK(w, map[string]any{"list": []domain.OutboundItem{}, "total": 0})
	})
	f.backend.Handle(http.MethodGet, "/api/v1/statistics/dashboard", func(w http.ResponseWriter, r *http.Request) {
		if f.statsDown.Load() {
			testutil.WriteStatus(w, http.StatusInternalServerError, "")
			return
		}
		testutil.WriteOK(w, testutil.StatsFixture(40, 6, 2, 3, 4))
	})

	client, _ := f.backend.Client()
	f.outbound = outbound.NewStore(client, nil, logger.Nop())
	f.dashboard = dashboard.NewAggregator(client, logger.Nop())
	f.inventory = inventory.NewStore(client, f.outbound, expiry.Fixed(testutil.Today, expiry.DefaultAlertDays), nil, logger.Nop(),
		inventory.WithAggregate(f.dashboard))
	f.refresher = NewRefresher(f.inventory, f.outbound, f.dashboard, 50, time.Hour, logger.Nop())
	return f
}

func (f *fixture) router(reg prometheus.Gatherer) http.Handler {
	h := NewHandler(f.inventory, f.outbound, f.dashboard, f.refresher, logger.Nop())
	return NewRouter(h, RouterOptions{
		AllowedOrigins: []string{"http://kiosk.local"},
		Gatherer:       reg,
	}, logger.Nop())
}

func TestRunCycle(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.refresher.LastCycle().IsZero())

	f.refresher.RunCycle(testutil.DefaultTestContext(t))

	assert.Equal(t, []string{
		"GET /api/v1/inventory",
		"GET /api/v1/outbound/audit/list",
		"GET /api/v1/statistics/dashboard",
	}, f.backend.Paths())
	calls := f.backend.Calls()
	assert.Equal(t, "page=1&page_size=50", calls[0].Query)
	assert.Equal(t, "approval_status=PENDING&page=1&page_size=50", calls[1].Query)

	assert.Equal(t, 3, f.inventory.Total())
	assert.Equal(t, 1, f.outbound.Total(outbound.Pending))
	_, ok := f.dashboard.Stats()
	assert.True(t, ok)
	assert.False(t, f.refresher.LastCycle().IsZero())
}

func TestRefresher_StartRunsImmediately(t *testing.T) {
	f := newFixture(t)
	f.refresher.Start(testutil.DefaultTestContext(t))
	defer f.refresher.Stop()

	testutil.RequireEventually(t, func() bool {
		return !f.refresher.LastCycle().IsZero()
	}, 5*time.Second, 10*time.Millisecond, "first cycle did not run")
	assert.Equal(t, 1, f.backend.Count(http.MethodGet, "/api/v1/inventory"))
}

func TestRefresher_StopWithoutStart(t *testing.T) {
	f := newFixture(t)
	assert.NotPanics(t, f.refresher.Stop)
}

func TestSubscriber_RefetchesAffectedStores(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		data      interface{}
		paths     []string
	}{
		{
			name:      "batch created",
			eventType: messaging.EventBatchCreated,
			data:      messaging.BatchCreatedEvent{BatchNo: "B1", MaterialCode: "MAT-001", Quantity: 3},
			paths:     []string{"GET /api/v1/inventory", "GET /api/v1/statistics/dashboard"},
		},
		{
			name:      "batch deleted",
			eventType: messaging.EventBatchDeleted,
			data:      messaging.BatchDeletedEvent{InventoryID: 4},
			paths:     []string{"GET /api/v1/inventory", "GET /api/v1/statistics/dashboard"},
		},
		{
			name:      "outbound submitted",
			eventType: messaging.EventOutboundSubmitted,
			data:      messaging.OutboundSubmittedEvent{InventoryID: 2, Quantity: 1},
			paths:     []string{"GET /api/v1/outbound/audit/list", "GET /api/v1/outbound/all"},
		},
		{
			name:      "outbound audited",
			eventType: messaging.EventOutboundAudited,
			data:      messaging.OutboundAuditedEvent{OutboundID: 9, Decision: "APPROVED"},
			paths: []string{
				"GET /api/v1/outbound/audit/list", "GET /api/v1/outbound/all",
				"GET /api/v1/inventory", "GET /api/v1/statistics/dashboard",
			},
		},
		{
			name:      "outbound finished",
			eventType: messaging.EventOutboundFinished,
			data:      messaging.OutboundFinishedEvent{OutboundID: 9},
			paths:     []string{"GET /api/v1/outbound/audit/list", "GET /api/v1/outbound/all"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			dispatcher := messaging.NewDispatcher("labtrack.agent", logger.Nop())
			newSubscriber(dispatcher, f.refresher, logger.Nop())

			event, err := messaging.NewEvent(tt.eventType, "test", "", tt.data)
			require.NoError(t, err)
			body, err := json.Marshal(event)
			require.NoError(t, err)

			outcome := dispatcher.Dispatch(testutil.DefaultTestContext(t), body, 0)
			assert.Equal(t, messaging.Ack, outcome)
			assert.Equal(t, tt.paths, f.backend.Paths())
		})
	}
}

func TestSubscriber_MalformedPayloadIsRequeued(t *testing.T) {
	f := newFixture(t)
	dispatcher := messaging.NewDispatcher("labtrack.agent", logger.Nop())
	newSubscriber(dispatcher, f.refresher, logger.Nop())

	body := []byte(`{"id":"1","type":"inventory.batch.deleted","data":{"inventory_id":"four"}}`)
	assert.Equal(t, messaging.Requeue, dispatcher.Dispatch(testutil.DefaultTestContext(t), body, 0))
	assert.Empty(t, f.backend.Calls())
}

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
	Meta    struct {
		Total     int    `json:"total"`
		Source    string `json:"source"`
		FetchedAt string `json:"fetched_at"`
	} `json:"meta"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

type classifiedRow struct {
	ID     int64 `json:"id"`
	Expiry struct {
		Tier string `json:"status"`
	} `json:"expiry"`
}

func TestInventoryRoute(t *testing.T) {
	f := newFixture(t)
	f.refresher.RunCycle(testutil.DefaultTestContext(t))
	router := f.router(nil)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/inventory", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var all envelope[[]classifiedRow]
	testutil.ParseJSONBody(t, rr, &all)
	require.Len(t, all.Data, 3)
	assert.Equal(t, "expired", all.Data[0].Expiry.Tier)
	assert.Equal(t, "warning", all.Data[1].Expiry.Tier)
	assert.Equal(t, "normal", all.Data[2].Expiry.Tier)
	assert.Equal(t, 3, all.Meta.Total)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/inventory?tier=warning", nil))
	var warning envelope[[]classifiedRow]
	testutil.ParseJSONBody(t, rr, &warning)
	require.Len(t, warning.Data, 1)
	assert.Equal(t, int64(2), warning.Data[0].ID)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/inventory?tier=soon", nil))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	var bad envelope[any]
	testutil.ParseJSONBody(t, rr, &bad)
	assert.False(t, bad.Success)
	assert.Equal(t, "BAD_REQUEST", bad.Error.Code)
}

func TestDashboardRoute(t *testing.T) {
	f := newFixture(t)
	router := f.router(nil)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/dashboard", nil))
	var before envelope[DashboardView]
	testutil.ParseJSONBody(t, rr, &before)
	assert.Len(t, before.Data.Trend, 6)
	assert.Equal(t, "local", before.Meta.Source)
	assert.Empty(t, before.Meta.FetchedAt)

	f.refresher.RunCycle(testutil.DefaultTestContext(t))

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/dashboard", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var after envelope[DashboardView]
	testutil.ParseJSONBody(t, rr, &after)
	assert.Equal(t, domain.StatsSummary{Total: 40, Warning: 6, Expired: 2, Source: domain.StatsFromServer}, after.Data.Summary)
	assert.Equal(t, []domain.TrendBar{
		{Label: "W1", Value: 3, Color: "bg-blue-500"},
		{Label: "W2", Value: 4, Color: "bg-blue-500"},
	}, after.Data.Trend)
	assert.NotEmpty(t, after.Meta.FetchedAt)
}

func TestDashboardRoute_StatsOutageKeepsPreviousAggregate(t *testing.T) {
	f := newFixture(t)
	router := f.router(nil)
	ctx := testutil.DefaultTestContext(t)

	f.refresher.RunCycle(ctx)
	f.statsDown.Store(true)
	f.refresher.RunCycle(ctx)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/dashboard", nil))
	var view envelope[DashboardView]
	testutil.ParseJSONBody(t, rr, &view)
	assert.Equal(t, 40, view.Data.Summary.Total)
	assert.Equal(t, "server", view.Meta.Source)
}

func TestPendingRoute(t *testing.T) {
	f := newFixture(t)
	f.refresher.RunCycle(testutil.DefaultTestContext(t))

	rr := testutil.ExecuteRequest(f.router(nil), testutil.NewHTTPRequest(http.MethodGet, "/api/outbound/pending", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var body envelope[[]domain.OutboundItem]
	testutil.ParseJSONBody(t, rr, &body)
	require.Len(t, body.Data, 1)
	assert.Equal(t, domain.ApprovalPending, body.Data[0].ApprovalStatus)
	assert.Equal(t, 1, body.Meta.Total)
}

func TestReportRoute(t *testing.T) {
	f := newFixture(t)
	f.refresher.RunCycle(testutil.DefaultTestContext(t))

	rr := testutil.ExecuteRequest(f.router(nil), testutil.NewHTTPRequest(http.MethodGet, "/api/inventory/report.xlsx?tier=expired", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "inventory.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = book.Close() }()
	rows, err := book.GetRows(book.GetSheetName(book.GetActiveSheetIndex()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "B0001", rows[1][0])
}

func TestRefreshRoute(t *testing.T) {
	f := newFixture(t)
	rr := testutil.ExecuteRequest(f.router(nil), testutil.NewHTTPRequest(http.MethodPost, "/api/refresh", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, 1, f.backend.Count(http.MethodGet, "/api/v1/statistics/dashboard"))
	assert.False(t, f.refresher.LastCycle().IsZero())
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	hits := prometheus.NewCounter(prometheus.CounterOpts{Name: "labtrack_test_hits_total", Help: "test"})
	reg.MustRegister(hits)
	hits.Inc()
	router := f.router(reg)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/health", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	var health envelope[map[string]any]
	testutil.ParseJSONBody(t, rr, &health)
	assert.Equal(t, "healthy", health.Data["status"])
	assert.NotContains(t, health.Data, "rabbitmq")

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/metrics", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.True(t, strings.Contains(rr.Body.String(), "labtrack_test_hits_total 1"))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := testutil.NewHTTPRequest(http.MethodOptions, "/api/dashboard", nil)
	req.Header.Set("Origin", "http://kiosk.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	rr := testutil.ExecuteRequest(f.router(nil), req)
	assert.Equal(t, "http://kiosk.local", rr.Header().Get("Access-Control-Allow-Origin"))
}
