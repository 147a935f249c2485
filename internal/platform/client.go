package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
	"github.com/felixgeelhaar/practicedesk/internal/log"
	"github.com/felixgeelhaar/practicedesk/internal/metrics"
	"github.com/felixgeelhaar/practicedesk/internal/session"
	"github.com/felixgeelhaar/practicedesk/internal/telemetry"
	"github.com/felixgeelhaar/practicedesk/internal/version"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// DefaultTimeout bounds every request, including the refresh exchange.
const DefaultTimeout = 30 * time.Second

// DefaultPublicPaths are the endpoints that answer 401 for validation
// failures rather than an expired session. A 401 from one of them never
// triggers a refresh.
var DefaultPublicPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/register/verify",
	"/auth/forgot-password",
	"/auth/verify-reset-code",
	"/auth/reset-password",
	"/auth/setup-password",
}

// Refresher obtains a new access token after the current one was rejected.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Client is the practice platform API client. Every call goes through it so
// that bearer attachment and recovery from an expired access token happen in
// exactly one place.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	store       session.Store
	publicPaths map[string]struct{}
	userAgent   string
	logger      *log.Logger
	metrics     *metrics.Metrics

	mu        sync.RWMutex
	refresher Refresher
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithPublicPaths replaces the refresh bypass allowlist.
func WithPublicPaths(paths ...string) Option {
	return func(c *Client) {
		c.publicPaths = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			c.publicPaths[p] = struct{}{}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new platform API client reading credentials from store.
func NewClient(baseURL string, store session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		store:     store,
		userAgent: version.UserAgent(),
	}
	WithPublicPaths(DefaultPublicPaths...)(c)
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.DefaultLogger()
	}
	if c.metrics == nil {
		c.metrics = metrics.Discard()
	}
	c.logger = c.logger.Named("gateway")
	return c
}

// SetRefresher installs the component that recovers from rejected access
// tokens. Without one, a 401 is surfaced as is.
func (c *Client) SetRefresher(r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresher = r
}

func (c *Client) currentRefresher() Refresher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refresher
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsPublicPath reports whether path is on the refresh bypass allowlist.
func (c *Client) IsPublicPath(path string) bool {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	_, ok := c.publicPaths[path]
	return ok
}

// Response is an upstream response after gateway processing.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// request is one logical call. retried is the gateway's marker that the call
// has already been re-issued after a refresh.
type request struct {
	method  string
	path    string
	query   url.Values
	header  http.Header
	body    []byte
	retried bool
}

type requestIDKey struct{}

// WithRequestID makes the gateway reuse id instead of generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored in ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Do performs an API call and decodes the response payload into out.
//
// The payload is the "data" member of the response envelope when present,
// otherwise the whole body. out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	req := &request{method: method, path: path}
	if body != nil {
		data, err := jsonBody(body)
		if err != nil {
			return err
		}
		req.body = data
	}

	resp, err := c.execute(ctx, req)
	if err != nil {
		return err
	}
	if err := c.check(req, resp); err != nil {
		return err
	}
	return decodeEnvelope(resp.Body, out)
}

// Forward relays a call through the gateway and returns the upstream
// response as is. Refresh and retry apply exactly as for Do; only transport
// and refresh failures are returned as errors.
func (c *Client) Forward(ctx context.Context, method, path string, query url.Values, header http.Header, body []byte) (*Response, error) {
	req := &request{
		method: method,
		path:   path,
		query:  query,
		header: header,
		body:   body,
	}
	return c.execute(ctx, req)
}

// execute sends req and applies the recovery rules to the response.
func (c *Client) execute(ctx context.Context, req *request) (*Response, error) {
	ctx, span := telemetry.StartRequestSpan(ctx, req.method, req.path)
	defer span.End()

	start := time.Now()
	resp, err := c.roundTrip(ctx, req)
	c.metrics.RequestLatency.WithLabelValues(req.method).Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.Requests.WithLabelValues(req.method, metrics.StatusClass(errors.StatusOf(err))).Inc()
		telemetry.RecordError(span, err)
		return nil, err
	}

	c.metrics.Requests.WithLabelValues(req.method, metrics.StatusClass(resp.StatusCode)).Inc()
	telemetry.RecordStatus(span, resp.StatusCode)
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, req *request) (*Response, error) {
	token, _, err := c.store.Get(ctx, session.KeyAccessToken)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.metrics.RateLimited.WithLabelValues(req.method).Inc()
		c.logger.Warn("rate limited", "method", req.method, "path", req.path)
		return resp, nil

	case resp.StatusCode != http.StatusUnauthorized:
		return resp, nil

	case c.IsPublicPath(req.path):
		return resp, nil

	case req.retried:
		c.metrics.Retries.WithLabelValues("rejected").Inc()
		return resp, nil
	}

	refresher := c.currentRefresher()
	if refresher == nil {
		return resp, nil
	}

	req.retried = true
	c.logger.Debug("access token rejected, refreshing", "method", req.method, "path", req.path)

	fresh, err := refresher.Refresh(ctx)
	if err != nil {
		c.metrics.Retries.WithLabelValues("refresh_failed").Inc()
		return nil, err
	}

	resp, err = c.send(ctx, req, fresh)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.metrics.Retries.WithLabelValues("rejected").Inc()
	} else {
		c.metrics.Retries.WithLabelValues("success").Inc()
	}
	return resp, nil
}

// send performs one HTTP round trip, attaching token when non-empty.
func (c *Client) send(ctx context.Context, req *request, token string) (*Response, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRequestFailed, "failed to create request", err)
	}

	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set(HeaderRequestID, requestID)

	httpReq.Header.Del("Authorization")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewNetworkError(req.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetworkError(req.path, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// check maps a non-2xx response to a coded error.
func (c *Client) check(req *request, resp *Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	payload := decodePayload(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e := errors.NewRateLimitError(req.path, retryAfter(resp.Header))
		e.Status = resp.StatusCode
		e.Payload = payload
		return e

	case resp.StatusCode == http.StatusUnauthorized && c.IsPublicPath(req.path):
		return errors.New(errors.ErrCodeInvalidCredentials, messageOr(payload, "request rejected")).
			WithResponse(resp.StatusCode, req.path, payload)

	case resp.StatusCode == http.StatusUnauthorized:
		return errors.New(errors.ErrCodeAccessTokenRejected, messageOr(payload, "access token rejected")).
			WithResponse(resp.StatusCode, req.path, payload)

	default:
		return errors.New(errors.ErrCodeRequestFailed,
			messageOr(payload, fmt.Sprintf("request failed with status %d", resp.StatusCode))).
			WithResponse(resp.StatusCode, req.path, payload)
	}
}

func jsonBody(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRequestFailed, "failed to marshal request body", err)
	}
	return data, nil
}

// decodeEnvelope unmarshals the "data" member of body into out, or the whole
// body when there is no such member.
func decodeEnvelope(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		body = env.Data
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(errors.ErrCodeMalformedResponse, "failed to decode response", err)
	}
	return nil
}

// decodePayload returns the body as a loose JSON object, or nil.
func decodePayload(body []byte) map[string]any {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	return payload
}

func messageOr(payload map[string]any, fallback string) string {
	if msg, ok := payload["message"].(string); ok && msg != "" {
		return msg
	}
	if msg, ok := payload["error"].(string); ok && msg != "" {
		return msg
	}
	return fallback
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
