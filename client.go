package sessionx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Envelope codes the backend uses.
const (
	CodeSuccess      = 200
	CodeUnauthorized = 401
)

const (
	defaultHTTPTimeout = 60 * time.Second
	maxPlainMessage    = 256
)

// Envelope is the backend's JSON response wrapper.
type Envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
}

// Download is a binary response returned without envelope inspection.
type Download struct {
	Data        []byte
	ContentType string
	Filename    string
}

// FailureHandler reacts to failed calls. The client invokes it exactly once
// per failure, before returning the error to the caller.
type FailureHandler interface {
	HandleFailure(ctx context.Context, err *Error)
}

// FailureHandlerFunc adapts a function to FailureHandler.
type FailureHandlerFunc func(ctx context.Context, err *Error)

// HandleFailure implements FailureHandler.
func (f FailureHandlerFunc) HandleFailure(ctx context.Context, err *Error) { f(ctx, err) }

// Client performs authorized backend calls and classifies every outcome as
// success, authorization failure, domain error or transport error.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	failures FailureHandler
	metrics  *Metrics
	logger   *slog.Logger
}

// ClientOption customises a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	base     http.RoundTripper
	timeout  time.Duration
	failures FailureHandler
	metrics  *Metrics
	logger   *slog.Logger
}

// WithBaseTransport sets the round tripper beneath the bearer transport.
func WithBaseTransport(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.base = rt }
}

// WithTimeout bounds every call; zero keeps the 60s default.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithFailureHandler sets the failure handler.
func WithFailureHandler(h FailureHandler) ClientOption {
	return func(o *clientOptions) { o.failures = h }
}

// WithMetrics records call outcomes.
func WithMetrics(m *Metrics) ClientOption {
	return func(o *clientOptions) { o.metrics = m }
}

// WithClientLogger sets the structured logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewClient returns a client for the backend at baseURL that authorizes
// calls with the credential in store.
func NewClient(baseURL string, store *CredentialStore, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	o := clientOptions{timeout: defaultHTTPTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		baseURL: u,
		http: &http.Client{
			Timeout:   o.timeout,
			Transport: newBearerTransport(o.base, store, o.logger),
		},
		failures: o.failures,
		metrics:  o.metrics,
		logger:   o.logger,
	}, nil
}

// SetFailureHandler replaces the failure handler. Wiring code calls it once
// the handler's own dependencies exist.
func (c *Client) SetFailureHandler(h FailureHandler) {
	c.failures = h
}

// Call performs req and returns the success envelope.
func (c *Client) Call(ctx context.Context, req Request) (*Envelope, error) {
	start := time.Now()
	env, err := c.call(ctx, req, start)
	if err != nil {
		return nil, err
	}
	c.metrics.observe(outcomeSuccess, time.Since(start))
	return env, nil
}

// Do performs req and decodes the success payload into out, which may be
// nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	start := time.Now()
	env, err := c.call(ctx, req, start)
	if err != nil {
		return err
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return c.fail(ctx, start, withMessage(ErrCodeDomain, "Unexpected response payload", err))
		}
	}
	c.metrics.observe(outcomeSuccess, time.Since(start))
	return nil
}

// call performs req and classifies the response. Failures are recorded and
// handed to the failure handler; success is left for the caller to record.
func (c *Client) call(ctx context.Context, req Request, start time.Time) (*Envelope, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, c.fail(ctx, start, transportError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(ctx, start, transportError(err))
	}
	env, cerr := classify(resp, body)
	if cerr != nil {
		return nil, c.fail(ctx, start, cerr)
	}
	return env, nil
}

// Download performs req and returns the raw body. The envelope is not
// inspected on success; HTTP 401 is still an authorization failure.
func (c *Client) Download(ctx context.Context, req Request) (*Download, error) {
	start := time.Now()
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, c.fail(ctx, start, transportError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(ctx, start, transportError(err))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode/100 != 2 {
		return nil, c.fail(ctx, start, statusError(resp, body))
	}
	c.metrics.observe(outcomeSuccess, time.Since(start))
	return &Download{
		Data:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    attachmentName(resp.Header.Get("Content-Disposition")),
	}, nil
}

func (c *Client) send(ctx context.Context, req Request) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	u := c.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	return c.http.Do(httpReq)
}

func (c *Client) fail(ctx context.Context, start time.Time, err *Error) error {
	c.metrics.observe(string(err.Code), time.Since(start))
	c.logger.DebugContext(ctx, "backend call failed",
		"code", err.Code,
		"status", err.Status,
		"message", err.Message,
	)
	if c.failures != nil && !IsSilent(ctx) {
		c.failures.HandleFailure(ctx, err)
	}
	return err
}

// classify maps a received response onto exactly one outcome.
func classify(resp *http.Response, body []byte) (*Envelope, *Error) {
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, statusError(resp, body)
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		if resp.StatusCode/100 != 2 {
			return nil, statusError(resp, body)
		}
		e := withMessage(ErrCodeDomain, "Unexpected response from server", err)
		e.Status = resp.StatusCode
		return nil, e
	}
	switch env.Code {
	case CodeSuccess:
		return env, nil
	case CodeUnauthorized:
		e := withMessage(ErrCodeUnauthorized, env.Message, nil)
		e.Status = resp.StatusCode
		return nil, e
	default:
		e := withMessage(ErrCodeDomain, env.Message, nil)
		e.Status = resp.StatusCode
		return nil, e
	}
}

// statusError classifies a non-2xx response, using the envelope message
// when the body carries one.
func statusError(resp *http.Response, body []byte) *Error {
	msg := ""
	code := ErrCodeDomain
	if env, err := decodeEnvelope(body); err == nil {
		msg = env.Message
		if env.Code == CodeUnauthorized {
			code = ErrCodeUnauthorized
		}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		code = ErrCodeUnauthorized
	}
	if msg == "" {
		msg = plainMessage(body)
	}
	if msg == "" && code == ErrCodeDomain {
		msg = fmt.Sprintf("%s (HTTP %d)", DefaultMessage(ErrCodeDomain), resp.StatusCode)
	}
	e := withMessage(code, msg, nil)
	e.Status = resp.StatusCode
	return e
}

func transportError(err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		msg = urlErr.Err.Error()
	}
	return withMessage(ErrCodeTransport, msg, err)
}

var errNotEnvelope = errors.New("response is not an envelope")

func decodeEnvelope(body []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if _, ok := fields["code"]; !ok {
		return nil, errNotEnvelope
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// plainMessage returns a short plain-text body as a message.
func plainMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" || len(text) > maxPlainMessage || !utf8.ValidString(text) || strings.ContainsAny(text[:1], "<{[") {
		return ""
	}
	return text
}

func attachmentName(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
