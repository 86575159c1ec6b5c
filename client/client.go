// Package client provides the HTTP client for the meeting assistant API.
// It handles the session cookie jar, request tracing, metrics, and the
// classification of every failure into the minutes error taxonomy.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/buildinfo"
	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/observability"
)

// API endpoints.
const (
	EndpointRegister = "/api/register"
	EndpointLogin    = "/api/login"
	EndpointLogout   = "/api/logout"
	EndpointMe       = "/api/me"
	EndpointUpload   = "/api/upload"
	EndpointAnalyze  = "/api/analyze-transcript"
	EndpointHealth   = "/api/health"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// Default client settings.
const (
	DefaultTimeout           = config.DefaultTimeout
	DefaultMaxRetries        = 3
	DefaultInitialBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff        = 5 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultCookieName        = "session_id"
)

// UnauthorizedFunc is invoked when a guarded request is answered with 401.
type UnauthorizedFunc func(ctx context.Context)

// ClientOptions configures the Client behavior.
type ClientOptions struct {
	// Timeout bounds each request, including the upload body.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for idempotent reads.
	MaxRetries int

	// InitialBackoff is the initial backoff duration for retries.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration for retries.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// CookieName is the name of the session cookie.
	CookieName string

	// TLSConfig is used for https servers. Nil uses the system defaults.
	TLSConfig *tls.Config

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper

	Logger  logging.Logger
	Metrics *observability.ClientMetrics
	Tracer  *observability.Tracer

	// OnUnauthorized is the session guard hook.
	OnUnauthorized UnauthorizedFunc
}

// DefaultOptions returns ClientOptions with default values.
func DefaultOptions() *ClientOptions {
	return &ClientOptions{
		Timeout:           DefaultTimeout,
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
		CookieName:        DefaultCookieName,
	}
}

// Client talks to the meeting assistant API over HTTP.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	jar     *cookiejar.Jar
	options *ClientOptions
	logger  logging.Logger
	tracer  *observability.Tracer

	// mu protects onUnauthorized.
	mu             sync.RWMutex
	onUnauthorized UnauthorizedFunc
}

// New creates a client for serverURL.
func New(serverURL string, opts *ClientOptions) (*Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}

	u, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", serverURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if opts.TLSConfig != nil {
			t.TLSClientConfig = opts.TLSConfig
		}
		transport = t
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = observability.NewTracer()
	}

	return &Client{
		baseURL: u,
		http: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   opts.Timeout,
		},
		jar:            jar,
		options:        opts,
		logger:         logger.With(logging.F("component", "client")),
		tracer:         tracer,
		onUnauthorized: opts.OnUnauthorized,
	}, nil
}

// ConnectFromConfig creates a client from CLI configuration.
func ConnectFromConfig(cfg *config.CLIConfig, opts *ClientOptions) (*Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	if opts.TLSConfig == nil {
		tlsConfig, err := LoadClientTLSConfig(&cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("loading TLS config: %w", err)
		}
		opts.TLSConfig = tlsConfig
	}
	return New(cfg.ServerURL, opts)
}

// ServerURL returns the base URL of the API.
func (c *Client) ServerURL() string {
	return c.baseURL.String()
}

// SetUnauthorizedHandler installs the session guard hook.
func (c *Client) SetUnauthorizedHandler(fn UnauthorizedFunc) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

// SetSession installs a session cookie value, e.g. one restored from disk.
func (c *Client) SetSession(value string) {
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:     c.options.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
	}})
}

// SessionCookie returns the current session cookie value, if any.
func (c *Client) SessionCookie() (string, bool) {
	for _, ck := range c.jar.Cookies(c.baseURL) {
		if ck.Name == c.options.CookieName && ck.Value != "" {
			return ck.Value, true
		}
	}
	return "", false
}

// ClearSession drops the session cookie from the jar.
func (c *Client) ClearSession() {
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:   c.options.CookieName,
		Path:   "/",
		MaxAge: -1,
	}})
}

// request describes one API call.
type request struct {
	method        string
	endpoint      string
	body          io.Reader
	contentType   string
	contentLength int64

	// guarded requests invoke the session guard on 401.
	guarded bool
}

// response is a fully read API response.
type response struct {
	status     int
	statusText string
	header     http.Header
	body       []byte
	requestID  string
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// send performs one request. Transport failures are classified; HTTP error
// statuses are returned as a response for the caller to classify.
func (c *Client) send(ctx context.Context, r request) (*response, error) {
	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logging.ContextWithRequestID(ctx, requestID)
	}

	ctx, span := c.tracer.StartRequestSpan(ctx, r.method, r.endpoint, requestID)
	defer span.End()
	helper := observability.NewSpanHelper(span)

	log := c.logger.WithContext(ctx).With(
		logging.F("method", r.method),
		logging.F("endpoint", r.endpoint),
	)

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL.String()+r.endpoint, r.body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if r.contentLength > 0 {
		req.ContentLength = r.contentLength
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set(HeaderRequestID, requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		classified := mferrors.ClassifyTransport(err)
		c.options.Metrics.RecordRequest(r.endpoint, 0, time.Since(start).Seconds())
		helper.SetError(err, string(classified.Kind), mferrors.IsRetryable(classified.Kind))
		log.Debug("Request failed", logging.Err(err), logging.F("kind", classified.Kind))
		return nil, classified
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		classified := mferrors.ClassifyTransport(err)
		helper.SetError(err, string(classified.Kind), mferrors.IsRetryable(classified.Kind))
		return nil, classified
	}

	elapsed := time.Since(start)
	c.options.Metrics.RecordRequest(r.endpoint, resp.StatusCode, elapsed.Seconds())
	helper.SetStatusCode(resp.StatusCode)
	log.Debug("Request complete",
		logging.F("status", resp.StatusCode),
		logging.F("duration_ms", elapsed.Milliseconds()),
		logging.F("bytes", len(body)),
	)

	out := &response{
		status:     resp.StatusCode,
		statusText: http.StatusText(resp.StatusCode),
		header:     resp.Header,
		body:       body,
		requestID:  requestID,
	}

	if out.status == http.StatusUnauthorized && r.guarded {
		c.unauthorized(ctx)
	}
	if out.ok() {
		helper.SetSuccess()
	}
	return out, nil
}

func (c *Client) unauthorized(ctx context.Context) {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}

// sendJSON posts a JSON body.
func (c *Client) sendJSON(ctx context.Context, endpoint string, body []byte, guarded bool) (*response, error) {
	return c.send(ctx, request{
		method:        http.MethodPost,
		endpoint:      endpoint,
		body:          bytes.NewReader(body),
		contentType:   "application/json",
		contentLength: int64(len(body)),
		guarded:       guarded,
	})
}

// statusError classifies a non-2xx response. A 401 is always AuthRequired;
// otherwise the server's detail is used, or fallback when there is none.
func statusError(kind mferrors.Kind, resp *response, fallback string) *mferrors.Error {
	if resp.status == http.StatusUnauthorized {
		return mferrors.WithStatus(mferrors.KindAuthRequired, resp.status, "")
	}
	detail := errorDetail(resp.body)
	if detail == "" {
		detail = fallback
	}
	return mferrors.WithStatus(kind, resp.status, detail)
}

// WithRetry executes fn with retry logic for transient network errors.
// Uses exponential backoff between retry attempts.
func (c *Client) WithRetry(ctx context.Context, fn func() error) error {
	backoff := c.options.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.options.MaxRetries; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			if !mferrors.IsNetworkError(err) {
				return err
			}
			if attempt == c.options.MaxRetries {
				break
			}

			c.logger.Debug("Retrying after network error",
				logging.F("attempt", attempt+1),
				logging.F("backoff_ms", backoff.Milliseconds()),
			)
			select {
			case <-ctx.Done():
				return mferrors.Wrap(mferrors.KindCanceled, "", ctx.Err())
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * c.options.BackoffMultiplier)
			if backoff > c.options.MaxBackoff {
				backoff = c.options.MaxBackoff
			}
			continue
		}
		return nil
	}
	return lastErr
}

// Health checks the API and AI service status.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status *HealthStatus
	err := c.WithRetry(ctx, func() error {
		resp, err := c.send(ctx, request{method: http.MethodGet, endpoint: EndpointHealth})
		if err != nil {
			return err
		}
		if !resp.ok() {
			return statusError(mferrors.KindHealthCheckFailed, resp, fmt.Sprintf("Health check failed: %s", resp.statusText))
		}
		status, err = parseHealth(resp.body)
		return err
	})
	return status, err
}
