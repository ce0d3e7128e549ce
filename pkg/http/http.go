// Package http is the shell's outgoing HTTP client: a fluent request
// builder with retries, body limits and download progress.
//
// Usage:
//
//	resp, err := http.Get(endpoint).
//	    WithContext(ctx).
//	    Header("Accept", "application/json").
//	    Timeout(10 * time.Second).
//	    Retry(3, time.Second).
//	    Send()
//
//	var m Manifest
//	err = resp.JSON(&m)
//
//	// Large bodies, with progress
//	resp, err := http.Get(artifactURL).WithContext(ctx).Download(func(p http.Progress) { ... })
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	gohttp "net/http"
	"time"

	"github.com/simplepos/shell/pkg/logger"
)

// defaultTransport is the connection-pooled transport used in production.
// Tests can replace DefaultClient.Transport to inject mocks.
var defaultTransport = &gohttp.Transport{
	Proxy:               gohttp.ProxyFromEnvironment,
	MaxIdleConns:        16,
	MaxIdleConnsPerHost: 4,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// DefaultClient is the shared client used when a request names none.
var DefaultClient = &gohttp.Client{
	Transport: defaultTransport,
}

// ResetTransport restores the production transport on DefaultClient.
func ResetTransport() {
	DefaultClient.Transport = defaultTransport
}

// DefaultLimit caps buffered response bodies.
const DefaultLimit = 512 << 20

// ErrTooLarge is returned when a body exceeds the request's limit.
var ErrTooLarge = errors.New("http: response body too large")

// StatusError is a non-2xx response. 5xx responses are retried.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http: %s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// Progress is reported by Download after every chunk. ContentLength is
// zero when the server does not announce one.
type Progress struct {
	ChunkLength   int
	ContentLength int64
	Downloaded    int64
}

// ------------------- Request -------------------

// Request is a fluent HTTP request builder.
type Request struct {
	method    string
	url       string
	headers   map[string]string
	body      any
	client    *gohttp.Client
	timeout   time.Duration
	retries   int
	retryWait time.Duration
	limit     int64
	ctx       context.Context
}

// Get starts a GET request.
func Get(url string) *Request { return newRequest(gohttp.MethodGet, url) }

// Post starts a POST request.
func Post(url string) *Request { return newRequest(gohttp.MethodPost, url) }

func newRequest(method, url string) *Request {
	return &Request{
		method:    method,
		url:       url,
		headers:   map[string]string{"Accept": "application/json"},
		timeout:   30 * time.Second,
		retries:   1,
		retryWait: 500 * time.Millisecond,
		limit:     DefaultLimit,
		ctx:       context.Background(),
	}
}

// Header sets a single request header.
func (r *Request) Header(key, value string) *Request {
	r.headers[key] = value
	return r
}

// Body sets the request body. v is marshalled to JSON unless it is a
// string or []byte.
func (r *Request) Body(v any) *Request {
	r.body = v
	return r
}

// Client sends the request with c instead of DefaultClient.
func (r *Request) Client(c *gohttp.Client) *Request {
	if c != nil {
		r.client = c
	}
	return r
}

// Timeout bounds each attempt. Zero leaves attempts bounded only by the
// context.
func (r *Request) Timeout(d time.Duration) *Request {
	r.timeout = d
	return r
}

// Retry configures automatic retries on transport errors and 5xx
// responses. n is total attempts (1 = no retry); wait is the initial
// backoff and doubles each attempt.
func (r *Request) Retry(n int, wait time.Duration) *Request {
	if n < 1 {
		n = 1
	}
	r.retries = n
	r.retryWait = wait
	return r
}

// Limit caps the body size read into memory.
func (r *Request) Limit(n int64) *Request {
	r.limit = n
	return r
}

// WithContext sets the request context. Cancelling it stops retries too.
func (r *Request) WithContext(ctx context.Context) *Request {
	r.ctx = ctx
	return r
}

// ------------------- Send -------------------

// Send executes the request and returns the buffered response. Non-2xx
// responses are returned with a *StatusError.
func (r *Request) Send() (*Response, error) {
	return r.Download(nil)
}

// Download is Send with progress reported while the body is read.
func (r *Request) Download(progress func(Progress)) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= r.retries; attempt++ {
		resp, err := r.do(progress)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) || attempt == r.retries {
			break
		}

		backoff := r.retryWait << (attempt - 1)
		logger.Target("http").Warn("http: request failed, retrying",
			"url", r.url, "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-r.ctx.Done():
			return nil, r.ctx.Err()
		}
	}

	return nil, lastErr
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

func (r *Request) do(progress func(Progress)) (*Response, error) {
	body, ct, err := r.buildBody()
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.ctx, context.CancelFunc(func() {})
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(r.ctx, r.timeout)
	}
	defer cancel()

	req, err := gohttp.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("http: build request: %w", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	client := r.client
	if client == nil {
		client = DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := r.read(resp, progress)
	if err != nil {
		return nil, err
	}

	out := &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Raw: raw}
	if !out.OK() {
		return out, &StatusError{Method: r.method, URL: r.url, StatusCode: resp.StatusCode, Body: truncate(raw, 256)}
	}
	return out, nil
}

func (r *Request) read(resp *gohttp.Response, progress func(Progress)) ([]byte, error) {
	total := max(resp.ContentLength, 0)
	if r.limit > 0 && total > r.limit {
		return nil, ErrTooLarge
	}

	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}
	chunk := make([]byte, 32<<10)
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if r.limit > 0 && int64(buf.Len()) > r.limit {
				return nil, ErrTooLarge
			}
			if progress != nil {
				progress(Progress{ChunkLength: n, ContentLength: total, Downloaded: int64(buf.Len())})
			}
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("http: read body: %w", err)
		}
	}
}

func (r *Request) buildBody() (io.Reader, string, error) {
	if r.body == nil {
		return nil, "", nil
	}
	switch v := r.body.(type) {
	case string:
		return bytes.NewBufferString(v), "text/plain", nil
	case []byte:
		return bytes.NewReader(v), "application/octet-stream", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("http: marshal body: %w", err)
		}
		return bytes.NewReader(b), "application/json", nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}

// ------------------- Response -------------------

// Response is a buffered HTTP response.
type Response struct {
	StatusCode int
	Headers    gohttp.Header
	Raw        []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON unmarshals the response body into dest.
func (r *Response) JSON(dest any) error {
	if err := json.Unmarshal(r.Raw, dest); err != nil {
		return fmt.Errorf("http: decode JSON: %w", err)
	}
	return nil
}

// Header returns a single response header value.
func (r *Response) Header(key string) string {
	return r.Headers.Get(key)
}
