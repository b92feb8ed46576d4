package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/labtrack/labtrack-client/internal/transport"
	"github.com/labtrack/labtrack-client/pkg/logger"
)

// Call is one request received by a Backend.
type Call struct {
	Method string
	Path   string
	Query  string
	Auth   string
}

// Backend is a fake labtrack API served over httptest. Register handlers
// with Handle before issuing requests.
type Backend struct {
	Server *httptest.Server
	router chi.Router

	mu    sync.Mutex
	calls []Call
}

// NewBackend starts a fake API server that is closed when the test ends.
func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{router: chi.NewRouter()}
	b.router.Use(b.record)
	b.Server = httptest.NewServer(b.router)
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls = append(b.calls, Call{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
		})
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// Handle registers a handler for method and chi pattern.
func (b *Backend) Handle(method, pattern string, h http.HandlerFunc) {
	b.router.MethodFunc(method, pattern, h)
}

// Client returns a transport client pointed at the backend. Errors are
// surfaced through the returned Notifications.
func (b *Backend) Client() (*transport.Client, *Notifications) {
	n := &Notifications{}
	c := transport.New(transport.Options{
		BaseURL:  b.Server.URL,
		Notifier: n,
	}, logger.Nop())
	return c, n
}

// Calls returns a copy of the received requests in arrival order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Paths returns "METHOD /path" for every received request.
func (b *Backend) Paths() []string {
	calls := b.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method + " " + c.Path
	}
	return out
}

// Count returns how many requests hit method and path.
func (b *Backend) Count(method, path string) int {
	n := 0
	for _, c := range b.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// Reset forgets the recorded calls.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

// WriteOK writes a success envelope carrying data.
func WriteOK(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, map[string]any{"code": transport.SuccessCode, "msg": "success", "data": data})
}

// WriteRaw writes a success envelope whose data is the given JSON text.
func WriteRaw(w http.ResponseWriter, data string) {
	writeEnvelope(w, http.StatusOK, map[string]any{"code": transport.SuccessCode, "msg": "success", "data": json.RawMessage(data)})
}

// WriteBusinessError writes an HTTP 200 envelope with a non-success code.
func WriteBusinessError(w http.ResponseWriter, code int, message string) {
	writeEnvelope(w, http.StatusOK, map[string]any{"code": code, "msg": message})
}

// WriteStatus writes a non-2xx response.
func WriteStatus(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, map[string]any{"code": status, "msg": message})
}

func writeEnvelope(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
