// Package fetch is the HTTP client wrapper every extension's Fetchers are
// built on. It never retries: a non-2xx answer becomes an *HTTPError, a
// failure below HTTP a *TransportError, and a body that does not match the
// declared response type a *ShapeError.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"
)

// DefaultMaxBodySize bounds how much of a response body a Client reads.
const DefaultMaxBodySize = 10 << 20

// ErrBodyTooLarge is wrapped in the *TransportError returned for a response
// body over the client's limit.
var ErrBodyTooLarge = errors.New("response body too large")

// TokenSource supplies a bearer token right before each request.
type TokenSource func(ctx context.Context) (string, error)

// Validator is implemented by response types that check their own shape
// after decoding.
type Validator interface {
	Validate() error
}

// Client issues requests against one upstream API.
type Client struct {
	baseURL string
	http    *http.Client
	header  http.Header
	token   TokenSource
	logger  *slog.Logger
	maxBody int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 30-second-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithHeader adds a static header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

// WithBearer authenticates every request with a fixed bearer token.
func WithBearer(token string) Option {
	return WithTokenSource(func(context.Context) (string, error) { return token, nil })
}

// WithTokenSource authenticates every request with a token read on demand.
func WithTokenSource(src TokenSource) Option {
	return func(c *Client) { c.token = src }
}

// WithMaxBodySize overrides DefaultMaxBodySize.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithLogger logs each upstream round trip at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		header:  http.Header{},
		logger:  slog.New(slog.DiscardHandler),
		maxBody: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the root all relative paths are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves path against the base URL. Absolute URLs pass through.
func (c *Client) URL(path string, query url.Values) string {
	u := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		u = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}
	return u
}

// Do performs one request and returns the raw response body. body may be
// nil, a []byte, url.Values (sent form-encoded) or any JSON-marshalable value.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	target := c.URL(path, query)

	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "application/json"
	case url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return nil, err
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	if int64(len(data)) > c.maxBody {
		return nil, &TransportError{Method: method, URL: target, Err: fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, c.maxBody)}
	}
	c.logger.Debug("upstream request",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(method, target, resp.StatusCode, data)
	}
	return data, nil
}

// Exec performs a request whose response body is irrelevant (204s, deletes).
func (c *Client) Exec(ctx context.Context, method, path string, body any) error {
	_, err := c.Do(ctx, method, path, nil, body)
	return err
}

// Decode unmarshals data into out and runs out's Validate method if it has one.
func Decode(data []byte, out any) error {
	name := typeName(out)
	if len(bytes.TrimSpace(data)) == 0 {
		return &ShapeError{Type: name, Err: fmt.Errorf("empty body")}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ShapeError{Type: name, Err: err}
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return &ShapeError{Type: name, Err: err}
		}
	}
	return nil
}

// Get issues a GET and decodes the whole body into T.
func Get[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var out T
	data, err := c.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return out, err
	}
	err = Decode(data, &out)
	return out, err
}

// GetAt issues a GET and decodes only the sub-tree addressed by payload,
// e.g. "$.query.search".
func GetAt[T any](ctx context.Context, c *Client, path string, query url.Values, payload string) (T, error) {
	var out T
	data, err := c.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return out, err
	}
	sub, err := Extract(data, payload)
	if err != nil {
		return out, err
	}
	err = Decode(sub, &out)
	return out, err
}

// Send issues a request with a body and decodes the response into T.
func Send[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var out T
	data, err := c.Do(ctx, method, path, nil, body)
	if err != nil {
		return out, err
	}
	err = Decode(data, &out)
	return out, err
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "nil"
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}
