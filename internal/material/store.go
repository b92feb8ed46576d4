// Package material caches consumable definitions.
package material

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"

	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/internal/shape"
	"github.com/labtrack/labtrack-client/internal/spreadsheet"
	"github.com/labtrack/labtrack-client/internal/transport"
	"github.com/labtrack/labtrack-client/pkg/logger"
	"github.com/labtrack/labtrack-client/pkg/validation"
)

const (
	listPath   = "/api/v1/materials"
	importPath = "/api/v1/materials/import"
)

// API is the subset of the transport the store needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (*transport.Envelope, error)
	Post(ctx context.Context, path string, body any) (*transport.Envelope, error)
	Delete(ctx context.Context, path string) (*transport.Envelope, error)
	Upload(ctx context.Context, path, field, filename string, r io.Reader) (*transport.Envelope, error)
}

// Query holds list pagination and the name filter. Zero values are not sent.
type Query struct {
	Page     int
	PageSize int
	Name     string
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.Name != "" {
		v.Set("name", q.Name)
	}
	return v
}

// Store is the material cache. Unlike inventory, writes do not refresh it.
type Store struct {
	api    API
	logger *logger.Logger

	mu        sync.RWMutex
	materials []domain.Material
	total     int
	loading   bool
}

// NewStore creates a material store
func NewStore(api API, log *logger.Logger) *Store {
	return &Store{
		api:       api,
		logger:    log.WithComponent("material"),
		materials: []domain.Material{},
	}
}

// Fetch replaces the cache with one page of materials. Failures leave it
// empty with a zero total.
func (s *Store) Fetch(ctx context.Context, q Query) {
	s.setLoading(true)
	defer s.setLoading(false)

	env, err := s.api.Get(ctx, listPath, q.values())
	if err != nil {
		s.logger.Debug().Err(err).Msg("material fetch failed")
		s.replace([]domain.Material{}, 0)
		return
	}

	items, err := shape.List[domain.Material](env.Data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("unexpected material list shape")
	}

	// A missing or zero total falls back to the page length, which
	// under-reports once there is more than one page.
	total := len(items)
	if n, ok := shape.Total(env.Data); ok && n != 0 {
		total = n
	}
	s.replace(items, total)
}

func (s *Store) replace(items []domain.Material, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials = items
	s.total = total
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Materials returns a copy of the cached materials.
func (s *Store) Materials() []domain.Material {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Material, len(s.materials))
	for i, m := range s.materials {
		out[i] = m.Clone()
	}
	return out
}

// Total is the server total when one was sent, else the fetched length.
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

// Create registers a material. The cache is not refreshed.
func (s *Store) Create(ctx context.Context, req domain.CreateMaterialRequest) error {
	if err := validation.Validate(req); err != nil {
		return err
	}

	s.setLoading(true)
	defer s.setLoading(false)

	if _, err := s.api.Post(ctx, listPath, req); err != nil {
		return err
	}

	s.logger.Info().Str("code", req.Code).Msg("material created")
	return nil
}

// ImportFile uploads a material spreadsheet. The cache is not refreshed.
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
		Msg("material import finished")
	return result, nil
}

// ImportMaterials validates reqs, renders them into an import workbook and
// uploads it.
func (s *Store) ImportMaterials(ctx context.Context, reqs []domain.CreateMaterialRequest) (domain.BatchImportResult, error) {
	for i, req := range reqs {
		if err := validation.Validate(req); err != nil {
			return domain.BatchImportResult{}, fmt.Errorf("material %d: %w", i+1, err)
		}
	}

	book, err := spreadsheet.MaterialWorkbook(reqs)
	if err != nil {
		return domain.BatchImportResult{}, err
	}
	return s.ImportFile(ctx, "materials.xlsx", bytes.NewReader(book))
}

// Delete removes a material. The cache is not refreshed.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.setLoading(true)
	defer s.setLoading(false)

	if _, err := s.api.Delete(ctx, fmt.Sprintf("%s/%d", listPath, id)); err != nil {
		return err
	}

	s.logger.Info().Int64("material_id", id).Msg("material deleted")
	return nil
}
