package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/labtrack/labtrack-client/pkg/errors"
	"github.com/labtrack/labtrack-client/pkg/logger"
)

// Session supplies the bearer token and is told when the server answers 401.
type Session interface {
	Token() string
	HandleUnauthorized()
}

// Notifier surfaces a failed call to the user. Stores never format error
// text themselves.
type Notifier interface {
	Notify(ctx context.Context, err *apperrors.AppError)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, err *apperrors.AppError)

// Notify implements Notifier
func (f NotifierFunc) Notify(ctx context.Context, err *apperrors.AppError) { f(ctx, err) }

// Options configures a Client
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	UploadTimeout time.Duration
	Notifier      Notifier
	Metrics       *Metrics
	// HTTPClient overrides the default client; its Timeout is left untouched.
	HTTPClient *http.Client
}

// Client issues API calls, unwraps the envelope and maps failures to
// AppErrors after surfacing them through the Notifier.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	uploadClient *http.Client
	notifier     Notifier
	metrics      *Metrics
	logger       *logger.Logger

	mu      sync.RWMutex
	session Session
}

// New creates a new API client
func New(opts Options, log *logger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 30 * time.Second
	}
	c := &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: opts.Timeout},
		uploadClient: &http.Client{Timeout: opts.UploadTimeout},
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
		logger:       log.WithComponent("transport"),
	}
	if opts.HTTPClient != nil {
		c.httpClient = opts.HTTPClient
		c.uploadClient = opts.HTTPClient
	}
	if c.notifier == nil {
		c.notifier = LogNotifier(c.logger)
	}
	return c
}

// BindSession attaches the session that supplies tokens and handles 401s.
func (c *Client) BindSession(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

func (c *Client) currentSession() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// LogNotifier surfaces errors as error-level log lines.
func LogNotifier(log *logger.Logger) Notifier {
	return NotifierFunc(func(ctx context.Context, err *apperrors.AppError) {
		log.Error().
			Str("code", err.Code).
			Int("status", err.StatusCode).
			Int("envelope_code", err.EnvelopeCode).
			Msg(err.Message)
	})
}

// Get issues a GET request
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Envelope, error) {
	return c.do(ctx, c.httpClient, http.MethodGet, path, query, nil, "")
}

// Post issues a POST request with a JSON body
func (c *Client) Post(ctx context.Context, path string, body any) (*Envelope, error) {
	payload, contentType, err := jsonBody(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, c.httpClient, http.MethodPost, path, nil, payload, contentType)
}

// Put issues a PUT request with optional query parameters and JSON body
func (c *Client) Put(ctx context.Context, path string, query url.Values, body any) (*Envelope, error) {
	payload, contentType, err := jsonBody(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, c.httpClient, http.MethodPut, path, query, payload, contentType)
}

// Delete issues a DELETE request
func (c *Client) Delete(ctx context.Context, path string) (*Envelope, error) {
	return c.do(ctx, c.httpClient, http.MethodDelete, path, nil, nil, "")
}

// Upload posts a file as multipart/form-data under the extended upload timeout.
func (c *Client) Upload(ctx context.Context, path, field, filename string, r io.Reader) (*Envelope, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return c.do(ctx, c.uploadClient, http.MethodPost, path, nil, buf.Bytes(), mw.FormDataContentType())
}

func jsonBody(body any) ([]byte, string, error) {
	if body == nil {
		return nil, "", nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}
	return payload, "application/json", nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, query url.Values, payload []byte, contentType string) (*Envelope, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	session := c.currentSession()
	if session != nil {
		if token := session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	log := c.logger.WithRequestID(requestID)
	log.Debug().Str("method", method).Str("path", path).Msg("calling API")

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.metrics.observe(method, path, "transport_error", time.Since(start))
		return nil, c.fail(ctx, apperrors.Transport(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.observe(method, path, "transport_error", time.Since(start))
		return nil, c.fail(ctx, apperrors.Transport(fmt.Errorf("failed to read response: %w", err)))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.observe(method, path, fmt.Sprintf("http_%d", resp.StatusCode), time.Since(start))
		appErr := statusError(resp.StatusCode, raw)
		if resp.StatusCode == http.StatusUnauthorized && session != nil {
			session.HandleUnauthorized()
		}
		log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("API call failed")
		return nil, c.fail(ctx, appErr)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.metrics.observe(method, path, "decode_error", time.Since(start))
		return nil, c.fail(ctx, apperrors.Transport(fmt.Errorf("failed to decode response: %w", err)))
	}

	if !env.OK() {
		c.metrics.observe(method, path, "business_error", time.Since(start))
		log.Warn().Int("envelope_code", env.Code).Str("path", path).Msg("API call rejected")
		return nil, c.fail(ctx, apperrors.Business(env.Code, env.Message))
	}

	c.metrics.observe(method, path, "ok", time.Since(start))
	log.Debug().Dur("duration", time.Since(start)).Msg("API call completed")
	return &env, nil
}

func (c *Client) fail(ctx context.Context, appErr *apperrors.AppError) error {
	c.notifier.Notify(ctx, appErr)
	return appErr
}

// statusError maps a non-2xx HTTP status to a user-visible error.
func statusError(status int, raw []byte) *apperrors.AppError {
	var env Envelope
	_ = json.Unmarshal(raw, &env)

	switch status {
	case http.StatusBadRequest:
		msg := env.Message
		if msg == "" {
			msg = "bad request parameters"
		}
		return apperrors.BadRequest(msg)
	case http.StatusUnauthorized:
		return apperrors.Unauthorized("unauthorized, please log in")
	case http.StatusForbidden:
		return apperrors.Forbidden("access denied")
	case http.StatusNotFound:
		return apperrors.NotFound("request address not found")
	case http.StatusInternalServerError:
		return apperrors.Internal("internal server error")
	default:
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", status)
		}
		appErr := apperrors.Transport(fmt.Errorf("%s", msg))
		appErr.StatusCode = status
		return appErr
	}
}
