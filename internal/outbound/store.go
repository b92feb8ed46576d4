// Package outbound tracks consumption requests and their approval workflow.
package outbound

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/internal/events"
	"github.com/labtrack/labtrack-client/internal/shape"
	"github.com/labtrack/labtrack-client/internal/transport"
	"github.com/labtrack/labtrack-client/pkg/logger"
	"github.com/labtrack/labtrack-client/pkg/validation"
)

const (
	applyPath   = "/api/v1/outbound/apply"
	minePath    = "/api/v1/outbound/my"
	allPath     = "/api/v1/outbound/all"
	pendingPath = "/api/v1/outbound/audit/list"
	auditPath   = "/api/v1/outbound/audit"
)

// API is the subset of the transport the store needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (*transport.Envelope, error)
	Post(ctx context.Context, path string, body any) (*transport.Envelope, error)
	Put(ctx context.Context, path string, query url.Values, body any) (*transport.Envelope, error)
}

// List names one of the cached outbound lists.
type List string

const (
	Mine    List = "mine"
	All     List = "all"
	Pending List = "pending"
)

// Lists is every cached list
var Lists = []List{Mine, All, Pending}

// Query holds list pagination. Zero values are not sent.
type Query struct {
	Page     int
	PageSize int
	// ApprovalStatus filters the pending list; empty means PENDING.
	ApprovalStatus domain.ApprovalStatus
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	return v
}

// Store caches the caller's requests, all requests, and the approval queue.
type Store struct {
	api    API
	events *events.Publisher
	logger *logger.Logger

	mu      sync.RWMutex
	lists   map[List]domain.Page[domain.OutboundItem]
	loading bool
}

// NewStore creates an outbound store. pub may be nil.
func NewStore(api API, pub *events.Publisher, log *logger.Logger) *Store {
	lists := make(map[List]domain.Page[domain.OutboundItem], len(Lists))
	for _, l := range Lists {
		lists[l] = domain.Page[domain.OutboundItem]{Items: []domain.OutboundItem{}}
	}
	return &Store{
		api:    api,
		events: pub,
		logger: log.WithComponent("outbound"),
		lists:  lists,
	}
}

// FetchMine loads the caller's own requests.
func (s *Store) FetchMine(ctx context.Context, q Query) {
	s.fetch(ctx, Mine, minePath, q.values())
}

// FetchAll loads every request.
func (s *Store) FetchAll(ctx context.Context, q Query) {
	s.fetch(ctx, All, allPath, q.values())
}

// FetchPending loads the approval queue.
func (s *Store) FetchPending(ctx context.Context, q Query) {
	status := q.ApprovalStatus
	if status == "" {
		status = domain.ApprovalPending
	}
	v := q.values()
	v.Set("approval_status", string(status))
	s.fetch(ctx, Pending, pendingPath, v)
}

// fetch replaces one list. Failures leave the list empty; the transport has
// already surfaced the error.
func (s *Store) fetch(ctx context.Context, list List, path string, query url.Values) {
	s.setLoading(true)
	defer s.setLoading(false)

	page := domain.Page[domain.OutboundItem]{Items: []domain.OutboundItem{}}

	env, err := s.api.Get(ctx, path, query)
	if err != nil {
		s.logger.Debug().Err(err).Str("list", string(list)).Msg("outbound fetch failed")
		s.store(list, page)
		return
	}

	items, err := shape.List[domain.OutboundItem](env.Data)
	if err != nil {
		s.logger.Warn().Err(err).Str("list", string(list)).Msg("unexpected outbound list shape")
	}
	page.Items = items
	page.Total = len(items)
	if total, ok := shape.Total(env.Data); ok {
		page.Total = total
	}
	s.store(list, page)
}

func (s *Store) store(list List, page domain.Page[domain.OutboundItem]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[list] = page
}

// Items returns a copy of a cached list.
func (s *Store) Items(list List) []domain.OutboundItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.lists[list].Items
	out := make([]domain.OutboundItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// Total returns the server-side total of a cached list.
func (s *Store) Total(list List) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lists[list].Total
}

// Loading reports whether a request is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Submit files a consumption request. The server creates it PENDING and
// USING; no list is refreshed here.
func (s *Store) Submit(ctx context.Context, req domain.ApplyRequest) error {
	if err := validation.Validate(req); err != nil {
		return err
	}

	s.setLoading(true)
	defer s.setLoading(false)

	if _, err := s.api.Post(ctx, applyPath, req); err != nil {
		return err
	}

	s.logger.Info().
		Int64("inventory_id", req.InventoryID).
		Int("quantity", req.Quantity).
		Msg("outbound request submitted")
	s.events.OutboundSubmitted(ctx, req)
	return nil
}

// Audit approves or rejects a pending request. Cached lists are left as
// they are; callers refetch to observe the decision.
func (s *Store) Audit(ctx context.Context, req domain.AuditRequest) error {
	if err := validation.Validate(req); err != nil {
		return err
	}

	s.setLoading(true)
	defer s.setLoading(false)

	if _, err := s.api.Post(ctx, auditPath, req); err != nil {
		return err
	}

	s.logger.Info().
		Int64("outbound_id", req.ID).
		Str("decision", string(req.Decision())).
		Msg("outbound request audited")
	s.events.OutboundAudited(ctx, req)
	return nil
}

// MarkFinished records that the opened unit is used up, then sets status to
// FINISHED on every cached copy of the record. Nothing else in the record
// changes.
func (s *Store) MarkFinished(ctx context.Context, id int64) error {
	s.setLoading(true)
	defer s.setLoading(false)

	query := url.Values{"status": {string(domain.OutboundFinished)}}
	if _, err := s.api.Put(ctx, fmt.Sprintf("/api/v1/outbound/%d/status", id), query, nil); err != nil {
		return err
	}

	s.mu.Lock()
	for _, page := range s.lists {
		for i := range page.Items {
			if page.Items[i].ID == id {
				page.Items[i].Status = domain.OutboundFinished
			}
		}
	}
	s.mu.Unlock()

	s.logger.Info().Int64("outbound_id", id).Msg("outbound marked finished")
	s.events.OutboundFinished(ctx, id)
	return nil
}
