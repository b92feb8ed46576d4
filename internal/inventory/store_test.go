package inventory_test

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/internal/events"
	"github.com/labtrack/labtrack-client/internal/expiry"
	"github.com/labtrack/labtrack-client/internal/inventory"
	"github.com/labtrack/labtrack-client/internal/outbound"
	apperrors "github.com/labtrack/labtrack-client/pkg/errors"
	"github.com/labtrack/labtrack-client/pkg/logger"
	"github.com/labtrack/labtrack-client/pkg/messaging"
	"github.com/labtrack/labtrack-client/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	backend  *testutil.Backend
	store    *inventory.Store
	outbound *outbound.Store
	sink     *testutil.EventSink
	notes    *testutil.Notifications
}

type staticAggregate struct {
	stats *domain.DashboardStats
}

func (a staticAggregate) Aggregate() (*domain.DashboardStats, bool) {
	return a.stats, a.stats != nil
}

func newHarness(t *testing.T, opts ...inventory.Option) *harness {
	t.Helper()
	b := testutil.NewBackend(t)
	client, notes := b.Client()
	sink := &testutil.EventSink{}
	pub := events.NewPublisher(sink, logger.Nop())
	ob := outbound.NewStore(client, pub, logger.Nop())
	classifier := expiry.Fixed(testutil.Today, expiry.DefaultAlertDays)
	return &harness{
		backend:  b,
		store:    inventory.NewStore(client, ob, classifier, pub, logger.Nop(), opts...),
		outbound: ob,
		sink:     sink,
		notes:    notes,
	}
}

func batches() []domain.InventoryItem {
	mat := testutil.MaterialFixture(1)
	short := testutil.MaterialFixture(2, testutil.WithAlertDays(10))
	return []domain.InventoryItem{
		testutil.InventoryFixture(1, mat, 10, testutil.DaysFromToday(-1)),
		testutil.InventoryFixture(2, mat, 5, testutil.DaysFromToday(0)),
		testutil.InventoryFixture(3, mat, 5, testutil.DaysFromToday(60)),
		testutil.InventoryFixture(4, mat, 5, testutil.DaysFromToday(61)),
		testutil.InventoryFixture(5, short, 5, testutil.DaysFromToday(30)),
	}
}

func TestFetch_AcceptsEveryListShape(t *testing.T) {
	rows := testutil.MustJSON(batches())
	for name, body := range map[string]string{
		"bare":    rows,
		"items":   `{"items":` + rows + `}`,
		"list":    `{"list":` + rows + `}`,
		"records": `{"records":` + rows + `}`,
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.backend.Handle(http.MethodGet, "/api/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
				testutil.WriteRaw(w, body)
			})

			h.store.Fetch(testutil.DefaultTestContext(t), inventory.Filter{})
			items := h.store.Items()
			require.Len(t, items, 5)
			assert.Equal(t, "B0003", items[2].BatchNo)
			assert.Equal(t, 5, h.store.Total())
		})
	}
}

func TestFetch_UnknownShapeIsEmptyWithoutError(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle(http.MethodGet, "/api/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteRaw(w, `{"foo":[{"id":1}]}`)
	})

	h.store.Fetch(testutil.DefaultTestContext(t), inventory.Filter{})
	assert.NotNil(t, h.store.Items())
	assert.Empty(t, h.store.Items())
	assert.Empty(t, h.notes.Errors())
	assert.False(t, h.store.Loading())
}

func TestFetch_FailureResetsCache(t *testing.T) {
	h := newHarness(t)
	fail := false
	h.backend.Handle(http.MethodGet, "/api/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
		if fail {
			testutil.WriteStatus(w, http.StatusNotFound, "")
			return
		}
		testutil.WriteOK(w, batches())
	})

	ctx := testutil.DefaultTestContext(t)
	h.store.Fetch(ctx, inventory.Filter{})
	require.Len(t, h.store.Items(), 5)

	fail = true
	h.store.Fetch(ctx, inventory.Filter{})
	assert.Empty(t, h.store.Items())
	assert.Equal(t, []string{"request address not found"}, h.notes.Messages())
}

func TestFetch_FilterParams(t *testing.T) {
	h := newHarness(t)
	var query string
	h.backend.Handle(http.MethodGet, "/api/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		testutil.WriteOK(w, []domain.InventoryItem{})
	})

	h.store.Fetch(testutil.DefaultTestContext(t), inventory.Filter{
		Page: 2, PageSize: 20, MaterialName: "ethanol", Code: "MAT-001", BatchNo: "B1", Tier: expiry.TierWarning,
	})
	assert.Equal(t, "batch_no=B1&code=MAT-001&material_name=ethanol&page=2&page_size=20&status=2", query)
}

func TestClassifiedAndLocalStats(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle(http.MethodGet, "/api/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteOK(w, batches())
	})
	h.store.Fetch(testutil.DefaultTestContext(t), inventory.Filter{})

	tiers := []expiry.Tier{}
	for _, c := range h.store.Classified() {
		tiers = append(tiers, c.Expiry.Tier)
	}
	assert.Equal(t, []expiry.Tier{
		expiry.TierExpired,
		expiry.TierWarning,
		expiry.TierWarning,
		expiry.TierNormal,
		expiry.TierNormal,
	}, tiers)

	assert.Equal(t, domain.StatsSummary{Total: 5, Warning: 2, Expired: 1, Source: domain.StatsFromLocal}, h.store.Stats())
}

func TestStats_PrefersServerAggregate(t *testing.T) {
	agg := testutil.StatsFixture(120, 7, 3)
	h := newHarness(t, inventory.WithAggregate(staticAggregate{stats: &agg}))

	assert.Equal(t, domain.StatsSummary{Total: 120, Warning: 7, Expired: 3, Source: domain.StatsFromServer}, h.store.Stats())
}

func TestStats_FallsBackWithoutAggregate(t *testing.T) {
	h := newHarness(t, inventory.WithAggregate(staticAggregate{}))
	assert.Equal(t, domain.StatsSummary{Source: domain.StatsFromLocal}, h.store.Stats())
}

func inbound(batch string) domain.InboundRequest {
	return domain.InboundRequest{
		BatchNo:      batch,
		InboundNo:    "IN-" + batch,
		MaterialCode: "MAT-001",
		MaterialName: "Ethanol",
		Quantity:     5,
		ExpiryDate:   "2027-01-31",
	}
}

func TestCreate_RefreshesOnce(t *testing.T) {
	h := newHarness(t)
	var got domain.InboundRequest
	h.backend.Handle(http.MethodPost, "/api/v1/inventory/inbound", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		testutil.WriteOK(w, nil)
	})
	h.backend.Handle(http.MethodGet, "/api/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteOK(w, batches())
	})

	require.NoError(t, h.store.Create(testutil.DefaultTestContext(t), inbound("B1")))
	assert.Equal(t, domain.InboundAppend, got.Mode)
	assert.Equal(t, []string{"POST /api/v1/inventory/inbound", "GET /api/v1/inventory"}, h.backend.Paths())
	assert.Len(t, h.store.Items(), 5)
	assert.Equal(t, []string{messaging.EventBatchCreated}, h.sink.Types())
}

func TestCreate_Invalid(t *testing.T) {
	h := newHarness(t)
	req := inbound("B1")
	req.ExpiryDate = "31/01/2027"

	err := h.store.Create(testutil.DefaultTestContext(t), req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	assert.Empty(t, h.backend.Calls())
}

func TestCreateMany_StopsAtFirstFailure(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var sent []string
	h.backend.Handle(http.MethodPost, "/api/v1/inventory/inbound", func(w http.ResponseWriter, r *http.Request) {
		var req domain.InboundRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		sent = append(sent, req.BatchNo)
		mu.Unlock()
		if req.BatchNo == "B2" {
			testutil.WriteBusinessError(w, 409, "duplicate batch")
			return
		}
		testutil.WriteOK(w, nil)
	})
	h.backend.Handle(http.MethodGet, "/api/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteOK(w, batches())
	})

	err := h.store.CreateMany(testutil.DefaultTestContext(t), []domain.InboundRequest{inbound("B1"), inbound("B2"), inbound("B3")})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBusiness))
	assert.Contains(t, err.Error(), "inbound record 2 of 3")

	assert.Equal(t, []string{"B1", "B2"}, sent)
	assert.Equal(t, 0, h.backend.Count(http.MethodGet, "/api/v1/inventory"))
	assert.Equal(t, []string{"duplicate batch"}, h.notes.Messages())
}

func TestCreateMany_RefreshesOnceOnSuccess(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle(http.MethodPost, "/api/v1/inventory/inbound", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteOK(w, nil)
	})
	h.backend.Handle(http.MethodGet, "/api/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteOK(w, batches())
	})

	require.NoError(t, h.store.CreateMany(testutil.DefaultTestContext(t), []domain.InboundRequest{inbound("B1"), inbound("B2"), inbound("B3")}))
	assert.Equal(t, 3, h.backend.Count(http.MethodPost, "/api/v1/inventory/inbound"))
	assert.Equal(t, 1, h.backend.Count(http.MethodGet, "/api/v1/inventory"))
	assert.Len(t, h.sink.Types(), 3)
}

func TestImportFile(t *testing.T) {
	h := newHarness(t)
	var content string
	h.backend.Handle(http.MethodPost, "/api/v1/inventory/import", func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		if err != nil {
			testutil.WriteStatus(w, http.StatusBadRequest, "missing file")
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		content = string(b)
		testutil.WriteOK(w, domain.BatchImportResult{Total: 3, Success: 2, Failed: 1, Errors: []string{"row 3: bad date"}})
	})

	res, err := h.store.ImportFile(testutil.DefaultTestContext(t), "inbound.xlsx", strings.NewReader("xlsx-bytes"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, []string{"row 3: bad date"}, res.Errors)
	assert.Equal(t, "xlsx-bytes", content)
	assert.Equal(t, 0, h.backend.Count(http.MethodGet, "/api/v1/inventory"))
}

func TestConsume_RefetchesInventoryThenOutbound(t *testing.T) {
	h := newHarness(t)
	item := batches()[3]
	item.CurrentQty = 10

	var mu sync.Mutex
	applied := false
	h.backend.Handle(http.MethodGet, "/api/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
		it := item
		mu.Lock()
		if applied {
			it.CurrentQty = 7
		}
		mu.Unlock()
		testutil.WriteOK(w, []domain.InventoryItem{it})
	})
	h.backend.Handle(http.MethodPost, "/api/v1/outbound/apply", func(w http.ResponseWriter, r *http.Request) {
		var req domain.ApplyRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, item.ID, req.InventoryID)
		assert.Equal(t, 3, req.Quantity)
		mu.Lock()
		applied = true
		mu.Unlock()
		testutil.WriteOK(w, nil)
	})
	h.backend.Handle(http.MethodGet, "/api/v1/outbound/all", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if !applied {
			testutil.WriteOK(w, []domain.OutboundItem{})
			return
		}
		testutil.WriteOK(w, map[string]any{"list": []domain.OutboundItem{testutil.OutboundFixture(77, item, 3)}, "total": 1})
	})

	ctx := testutil.DefaultTestContext(t)
	h.store.Fetch(ctx, inventory.Filter{})
	h.backend.Reset()

	err := h.store.Consume(ctx, item, inventory.Consumption{Quantity: 3, Purpose: "assay", OpeningDate: "2026-03-10"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"POST /api/v1/outbound/apply",
		"GET /api/v1/inventory",
		"GET /api/v1/outbound/all",
	}, h.backend.Paths())

	require.Len(t, h.store.Items(), 1)
	assert.Equal(t, 7, h.store.Items()[0].CurrentQty)

	all := h.outbound.Items(outbound.All)
	require.Len(t, all, 1)
	assert.Equal(t, domain.ApprovalPending, all[0].ApprovalStatus)
	assert.Equal(t, 3, all[0].Quantity)
	assert.Equal(t, []string{messaging.EventOutboundSubmitted}, h.sink.Types())
}

func TestConsume_FailurePropagatesWithoutRefetch(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle(http.MethodPost, "/api/v1/outbound/apply", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteBusinessError(w, 4001, "insufficient stock")
	})

	err := h.store.Consume(testutil.DefaultTestContext(t), batches()[0], inventory.Consumption{Quantity: 300, Purpose: "assay", OpeningDate: "2026-03-10"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBusiness))
	assert.Equal(t, []string{"POST /api/v1/outbound/apply"}, h.backend.Paths())
}

func TestDelete_Success(t *testing.T) {
	h := newHarness(t)
	deleted := false
	var mu sync.Mutex
	h.backend.Handle(http.MethodGet, "/api/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if deleted {
			testutil.WriteOK(w, batches()[1:])
			return
		}
		testutil.WriteOK(w, batches())
	})
	h.backend.Handle(http.MethodDelete, "/api/v1/inventory/{id}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		deleted = true
		mu.Unlock()
		testutil.WriteOK(w, nil)
	})

	ctx := testutil.DefaultTestContext(t)
	h.store.Fetch(ctx, inventory.Filter{Page: 1, PageSize: 50})
	h.backend.Reset()

	require.NoError(t, h.store.Delete(ctx, 1))
	assert.Len(t, h.store.Items(), 4)
	assert.Equal(t, []string{"DELETE /api/v1/inventory/1", "GET /api/v1/inventory"}, h.backend.Paths())
	assert.Equal(t, "page=1&page_size=50", h.backend.Calls()[1].Query)
	assert.Equal(t, []string{messaging.EventBatchDeleted}, h.sink.Types())
}

func TestDelete_RejectedLeavesCache(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle(http.MethodGet, "/api/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteOK(w, batches())
	})
	h.backend.Handle(http.MethodDelete, "/api/v1/inventory/{id}", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteBusinessError(w, 4009, "batch has outbound records")
	})

	ctx := testutil.DefaultTestContext(t)
	h.store.Fetch(ctx, inventory.Filter{})
	before := h.store.Items()

	err := h.store.Delete(ctx, 1)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBusiness))
	assert.Equal(t, before, h.store.Items())
	assert.False(t, h.store.Loading())
	assert.Equal(t, 1, h.backend.Count(http.MethodGet, "/api/v1/inventory"))
	assert.Empty(t, h.sink.Types())
}
