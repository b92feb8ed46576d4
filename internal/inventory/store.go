// Package inventory caches batch (lot) records and derives expiry views and
// headline stats from them.
package inventory

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"

	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/internal/events"
	"github.com/labtrack/labtrack-client/internal/expiry"
	"github.com/labtrack/labtrack-client/internal/outbound"
	"github.com/labtrack/labtrack-client/internal/shape"
	"github.com/labtrack/labtrack-client/internal/transport"
	"github.com/labtrack/labtrack-client/pkg/logger"
	"github.com/labtrack/labtrack-client/pkg/validation"
)

const (
	listPath    = "/api/v1/inventory"
	inboundPath = "/api/v1/inventory/inbound"
	importPath  = "/api/v1/inventory/import"
)

// API is the subset of the transport the store needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (*transport.Envelope, error)
	Post(ctx context.Context, path string, body any) (*transport.Envelope, error)
	Delete(ctx context.Context, path string) (*transport.Envelope, error)
	Upload(ctx context.Context, path, field, filename string, r io.Reader) (*transport.Envelope, error)
}

// Workflow is the outbound store as seen by Consume.
type Workflow interface {
	Submit(ctx context.Context, req domain.ApplyRequest) error
	FetchAll(ctx context.Context, q outbound.Query)
}

// AggregateSource supplies a server-computed dashboard aggregate. ok is
// false until one has been fetched.
type AggregateSource interface {
	Aggregate() (*domain.DashboardStats, bool)
}

// Filter narrows the inventory list. Zero values are not sent.
type Filter struct {
	Page         int
	PageSize     int
	MaterialName string
	Code         string
	BatchNo      string
	// Tier restricts to one expiry tier; empty means all.
	Tier expiry.Tier
}

func (f Filter) values() url.Values {
	v := url.Values{}
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(f.PageSize))
	}
	if f.MaterialName != "" {
		v.Set("material_name", f.MaterialName)
	}
	if f.Code != "" {
		v.Set("code", f.Code)
	}
	if f.BatchNo != "" {
		v.Set("batch_no", f.BatchNo)
	}
	if n := expiry.StatusFilter(f.Tier); n != 0 {
		v.Set("status", strconv.Itoa(n))
	}
	return v
}

// Classified pairs a batch with its expiry status.
type Classified struct {
	domain.InventoryItem
	Expiry expiry.Status `json:"expiry"`
}

// Consumption describes an outbound request against one batch.
type Consumption struct {
	Quantity    int
	Purpose     string
	OpeningDate string
	Remarks     string
}

// Option configures a Store
type Option func(*Store)

// WithAggregate makes Stats prefer the server aggregate from src.
func WithAggregate(src AggregateSource) Option {
	return func(s *Store) { s.aggregate = src }
}

// Store is the inventory cache.
type Store struct {
	api        API
	workflow   Workflow
	classifier *expiry.Classifier
	aggregate  AggregateSource
	events     *events.Publisher
	logger     *logger.Logger

	mu      sync.RWMutex
	items   []domain.InventoryItem
	total   int
	filter  Filter
	loading bool
}

// NewStore creates an inventory store. pub may be nil.
func NewStore(api API, workflow Workflow, classifier *expiry.Classifier, pub *events.Publisher, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		api:        api,
		workflow:   workflow,
		classifier: classifier,
		events:     pub,
		logger:     log.WithComponent("inventory"),
		items:      []domain.InventoryItem{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch replaces the cache with one page of batches. Failures leave the
// cache empty and are not returned; the transport has already surfaced them.
func (s *Store) Fetch(ctx context.Context, f Filter) {
	s.mu.Lock()
	s.filter = f
	s.loading = true
	s.mu.Unlock()
	defer s.setLoading(false)

	env, err := s.api.Get(ctx, listPath, f.values())
	if err != nil {
		s.logger.Debug().Err(err).Msg("inventory fetch failed")
		s.replace([]domain.InventoryItem{}, 0)
		return
	}

	items, err := shape.List[domain.InventoryItem](env.Data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("unexpected inventory list shape")
	}
	total := len(items)
	if n, ok := shape.Total(env.Data); ok {
		total = n
	}
	s.replace(items, total)
}

// Refresh refetches with the last filter.
func (s *Store) Refresh(ctx context.Context) {
	s.Fetch(ctx, s.lastFilter())
}

func (s *Store) lastFilter() Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

func (s *Store) replace(items []domain.InventoryItem, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.total = total
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Items returns a copy of the cached batches.
func (s *Store) Items() []domain.InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.InventoryItem, len(s.items))
	for i, it := range s.items {
		out[i] = it.Clone()
	}
	return out
}

// Total returns the server total of the last fetch, or the page length.
func (s *Store) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Loading reports whether a request is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Classified returns the cached batches with their current expiry status.
func (s *Store) Classified() []Classified {
	items := s.Items()
	out := make([]Classified, len(items))
	for i, it := range items {
		out[i] = Classified{InventoryItem: it, Expiry: s.classifier.ClassifyItem(it)}
	}
	return out
}

// Stats returns the headline counts. The server aggregate wins when one is
// available; otherwise the cached page is reduced through the classifier.
func (s *Store) Stats() domain.StatsSummary {
	if s.aggregate != nil {
		if agg, ok := s.aggregate.Aggregate(); ok {
			return domain.StatsSummary{
				Total:   agg.TotalBatches,
				Warning: agg.WarningBatches.Count,
				Expired: agg.ExpiredBatches,
				Source:  domain.StatsFromServer,
			}
		}
	}

	summary := domain.StatsSummary{Source: domain.StatsFromLocal}
	for _, c := range s.Classified() {
		summary.Total++
		switch c.Expiry.Tier {
		case expiry.TierWarning:
			summary.Warning++
		case expiry.TierExpired:
			summary.Expired++
		}
	}
	return summary
}

// Create records one inbound receipt and refreshes the cache.
func (s *Store) Create(ctx context.Context, req domain.InboundRequest) error {
	if err := s.post(ctx, req); err != nil {
		return err
	}
	s.Refresh(ctx)
	return nil
}

// CreateMany submits receipts in order and stops at the first failure;
// later records are not sent. The cache is refreshed once when all succeed.
func (s *Store) CreateMany(ctx context.Context, reqs []domain.InboundRequest) error {
	for i, req := range reqs {
		if err := s.post(ctx, req); err != nil {
			s.logger.Warn().Err(err).Int("index", i).Int("count", len(reqs)).Msg("batch inbound stopped")
			return fmt.Errorf("inbound record %d of %d: %w", i+1, len(reqs), err)
		}
	}
	s.Refresh(ctx)
	return nil
}

func (s *Store) post(ctx context.Context, req domain.InboundRequest) error {
	if req.Mode == "" {
		req.Mode = domain.InboundAppend
	}
	if err := validation.Validate(req); err != nil {
		return err
	}

	s.setLoading(true)
	defer s.setLoading(false)

	if _, err := s.api.Post(ctx, inboundPath, req); err != nil {
		return err
	}

	s.logger.Info().
		Str("batch_no", req.BatchNo).
		Str("material_code", req.MaterialCode).
		Int("quantity", req.Quantity).
		Msg("inbound recorded")
	s.events.BatchCreated(ctx, req)
	return nil
}

// ImportFile uploads an inbound spreadsheet for server-side processing. The
// cache is not refreshed.
func (s *Store) ImportFile(ctx context.Context, filename string, r io.Reader) (domain.BatchImportResult, error) {
	s.setLoading(true)
	defer s.setLoading(false)

	env, err := s.api.Upload(ctx, importPath, "file", filename, r)
	if err != nil {
		return domain.BatchImportResult{}, err
	}

	var result domain.BatchImportResult
	if env.HasData() {
		result, err = transport.Decode[domain.BatchImportResult](env)
		if err != nil {
			s.logger.Warn().Err(err).Msg("unexpected import result shape")
		}
	}

	s.logger.Info().
		Str("filename", filename).
		Int("success", result.Success).
		Int("failed", result.Failed).
		Msg("inventory import finished")
	return result, nil
}

// Consume files an outbound request against item, then refetches inventory
// and the full outbound list, in that order. The quantity is not checked
// against the batch balance.
func (s *Store) Consume(ctx context.Context, item domain.InventoryItem, c Consumption) error {
	req := domain.ApplyRequest{
		InventoryID: item.ID,
		OpeningDate: c.OpeningDate,
		Purpose:     c.Purpose,
		Quantity:    c.Quantity,
		Remarks:     c.Remarks,
	}
	if err := s.workflow.Submit(ctx, req); err != nil {
		return err
	}

	s.Refresh(ctx)
	s.workflow.FetchAll(ctx, outbound.Query{})
	return nil
}

// Delete removes a batch. On failure the cache is left untouched.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.setLoading(true)
	defer s.setLoading(false)

	if _, err := s.api.Delete(ctx, fmt.Sprintf("%s/%d", listPath, id)); err != nil {
		return err
	}

	s.logger.Info().Int64("inventory_id", id).Msg("batch deleted")
	s.events.BatchDeleted(ctx, id)
	s.Refresh(ctx)
	return nil
}
