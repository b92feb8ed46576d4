package agent

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/labtrack/labtrack-client/internal/dashboard"
	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/internal/expiry"
	"github.com/labtrack/labtrack-client/internal/inventory"
	"github.com/labtrack/labtrack-client/internal/outbound"
	"github.com/labtrack/labtrack-client/internal/spreadsheet"
	"github.com/labtrack/labtrack-client/pkg/errors"
	"github.com/labtrack/labtrack-client/pkg/httputil"
	"github.com/labtrack/labtrack-client/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DashboardView is the body of GET /api/dashboard.
type DashboardView struct {
	Summary domain.StatsSummary `json:"summary"`
	Trend   []domain.TrendBar   `json:"trend"`
}

// Handler serves the cached store state. It never calls the API itself
// except through POST /api/refresh.
type Handler struct {
	inventory *inventory.Store
	outbound  *outbound.Store
	dashboard *dashboard.Aggregator
	refresher *Refresher
	logger    *logger.Logger
}

// NewHandler creates a new agent handler
func NewHandler(inv *inventory.Store, out *outbound.Store, dash *dashboard.Aggregator, refresher *Refresher, log *logger.Logger) *Handler {
	return &Handler{
		inventory: inv,
		outbound:  out,
		dashboard: dash,
		refresher: refresher,
		logger:    log.WithComponent("agent-http"),
	}
}

// RouterOptions configures NewRouter
type RouterOptions struct {
	AllowedOrigins []string
	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
	// Broker reports broker health; nil when no broker is configured.
	Broker func() map[string]string
}

// NewRouter wires the agent routes and middleware.
func NewRouter(h *Handler, opts RouterOptions, log *logger.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":  "healthy",
			"service": "labtrack-agent",
		}
		if last := h.refresher.LastCycle(); !last.IsZero() {
			body["last_refresh"] = last.UTC().Format(time.RFC3339)
		}
		if opts.Broker != nil {
			body["rabbitmq"] = opts.Broker()
		}
		httputil.JSON(w, http.StatusOK, body)
	})

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", h.Dashboard)
		r.Get("/inventory", h.Inventory)
		r.Get("/inventory/report.xlsx", h.Report)
		r.Get("/outbound/pending", h.Pending)
		r.Post("/refresh", h.Refresh)
	})

	return r
}

// Dashboard returns the headline stats and trend bars
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary := h.inventory.Stats()
	meta := &httputil.Meta{Source: string(summary.Source)}
	if at := h.dashboard.FetchedAt(); !at.IsZero() {
		meta.FetchedAt = at.UTC().Format(time.RFC3339)
	}

	httputil.JSONWithMeta(w, http.StatusOK, DashboardView{
		Summary: summary,
		Trend:   h.dashboard.Trend(),
	}, meta)
}

// Inventory returns the cached batches with their expiry status, optionally
// narrowed to one tier with ?tier=.
func (h *Handler) Inventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.classified(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, &httputil.Meta{Total: len(items)})
}

// Report exports the same view as Inventory as an xlsx workbook
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	items, err := h.classified(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	rows := make([]spreadsheet.ReportRow, len(items))
	for i, c := range items {
		rows[i] = spreadsheet.ReportRow{Item: c.InventoryItem, Status: c.Expiry}
	}

	data, err := spreadsheet.InventoryReport(rows)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to build inventory report")
		httputil.Error(w, errors.Internal("failed to build report"))
		return
	}

	httputil.Binary(w, xlsxContentType, "inventory.xlsx", data)
}

func (h *Handler) classified(r *http.Request) ([]inventory.Classified, error) {
	all := h.inventory.Classified()

	raw := r.URL.Query().Get("tier")
	if raw == "" {
		return all, nil
	}
	tier, ok := expiry.ParseTier(raw)
	if !ok {
		return nil, errors.BadRequest("unknown tier " + raw)
	}

	out := make([]inventory.Classified, 0, len(all))
	for _, c := range all {
		if c.Expiry.Tier == tier {
			out = append(out, c)
		}
	}
	return out, nil
}

// Pending returns the approval queue
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	items := h.outbound.Items(outbound.Pending)
	httputil.JSONWithMeta(w, http.StatusOK, items, &httputil.Meta{Total: h.outbound.Total(outbound.Pending)})
}

// Refresh runs one refresh cycle before answering
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.refresher.RunCycle(r.Context())
	httputil.JSON(w, http.StatusOK, map[string]string{
		"refreshed_at": h.refresher.LastCycle().UTC().Format(time.RFC3339),
	})
}
