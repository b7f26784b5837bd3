// Package transport issues single-attempt HTTP requests and buffers the full
// response body in memory. Response size is bounded only by available memory.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"ai-agent-character-demo/characterai-client/pkg/errors"
	"ai-agent-character-demo/characterai-client/pkg/logger"
	"ai-agent-character-demo/characterai-client/shared/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the per-request correlation id
const RequestIDHeader = "X-Request-ID"

// Request describes one outbound call
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// Response is a fully buffered response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

// OK reports whether the status is 2xx
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Doer performs a single request
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// HTTPTransport is the net/http backed Doer
type HTTPTransport struct {
	client      *http.Client
	log         *logger.Logger
	instruments *observability.Instruments
	tracer      trace.Tracer
	userAgent   string
	timeout     time.Duration
}

// Option configures an HTTPTransport
type Option func(*HTTPTransport)

// WithHTTPClient replaces the underlying http.Client. nil keeps the default.
func WithHTTPClient(client *http.Client) Option {
	return func(t *HTTPTransport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithTimeout sets a whole-request timeout that overrides the client's own.
// Zero leaves the client's timeout alone.
func WithTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) { t.timeout = d }
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(t *HTTPTransport) { t.log = log }
}

// WithInstruments sets the metric instruments
func WithInstruments(inst *observability.Instruments) Option {
	return func(t *HTTPTransport) { t.instruments = inst }
}

// WithUserAgent sets the User-Agent header sent on every request
func WithUserAgent(ua string) Option {
	return func(t *HTTPTransport) { t.userAgent = ua }
}

// New creates an HTTPTransport. No timeout is applied unless WithTimeout is given.
func New(opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		client: &http.Client{},
		log:    logger.Nop(),
		tracer: otel.Tracer(observability.InstrumentationName),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.instruments == nil {
		t.instruments = observability.DefaultInstruments()
	}
	if t.timeout > 0 {
		client := *t.client
		client.Timeout = t.timeout
		t.client = &client
	}
	return t
}

// Do sends req and reads the whole body. Failures before a response is
// received, and failures reading the body, are TransportErrors.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	endpoint := endpointOf(req.URL)
	requestID := uuid.New().String()
	log := t.log.WithRequestID(requestID)

	ctx, span := t.tracer.Start(ctx, req.Method+" "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.NewTransportError("build request "+req.Method+" "+endpoint, err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set(RequestIDHeader, requestID)
	if t.userAgent != "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		t.instruments.RecordRequest(ctx, req.Method, endpoint, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		log.LogError(err, "request failed", "method", req.Method, "path", endpoint)
		return nil, errors.NewTransportError(req.Method+" "+endpoint, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	elapsed := time.Since(start)
	t.instruments.RecordRequest(ctx, req.Method, endpoint, httpResp.StatusCode, elapsed)
	span.SetAttributes(
		attribute.Int("http.status_code", httpResp.StatusCode),
		attribute.Int("http.response_size", len(data)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reading body failed")
		return nil, errors.NewTransportError("read body of "+req.Method+" "+endpoint, err)
	}

	log.LogCall(req.Method, endpoint, httpResp.StatusCode, elapsed)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		RequestID:  requestID,
	}, nil
}

func endpointOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	return u.Path
}
