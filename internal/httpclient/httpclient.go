// Package httpclient is the retrying HTTP client shared by retrievers, the
// remote config source and the mclo.gs uploader.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout   = 15 * time.Second
	DefaultBackoff   = 300 * time.Millisecond
	DefaultMaxBytes  = 10 << 20
	DefaultUserAgent = "crashlens/1.0 (+https://github.com/cozy-crashes/crashlens)"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return e.Status
	}
	return e.Status + ": " + e.Body
}

// Retryable reports whether the request may succeed when repeated.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type Client struct {
	client    *http.Client
	retries   int
	backoff   time.Duration
	maxBytes  int64
	userAgent string
}

type Option func(*Client)

// WithMaxBytes caps the size of response bodies read by GetText/GetBytes.
func WithMaxBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the underlying transport client (tests use httptest clients).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

func New(timeout time.Duration, retries int, backoff time.Duration, opts ...Option) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if retries < 0 {
		retries = 0
	}
	if backoff == 0 {
		backoff = DefaultBackoff
	}
	c := &Client{
		client:    &http.Client{Timeout: timeout},
		retries:   retries,
		backoff:   backoff,
		maxBytes:  DefaultMaxBytes,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetBytes fetches rawURL and returns at most maxBytes of the body.
func (c *Client) GetBytes(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	var out []byte
	err := c.do(ctx, http.MethodGet, rawURL, headers, nil, "", func(resp *http.Response) error {
		b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (c *Client) GetText(ctx context.Context, rawURL string, headers map[string]string) (string, error) {
	b, err := c.GetBytes(ctx, rawURL, headers)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DoJSON sends body as JSON (when non-nil) and decodes the response into out (when non-nil).
func (c *Client) DoJSON(ctx context.Context, method, rawURL string, headers map[string]string, body any, out any) error {
	var payload []byte
	contentType := ""
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
		contentType = "application/json"
	}
	return c.do(ctx, method, rawURL, headers, payload, contentType, decodeInto(out))
}

// PostForm posts form url-encoded and decodes a JSON response into out.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, rawURL, nil, []byte(form.Encode()), "application/x-www-form-urlencoded", decodeInto(out))
}

func decodeInto(out any) func(*http.Response) error {
	return func(resp *http.Response) error {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

func (c *Client) do(ctx context.Context, method, rawURL string, headers map[string]string, payload []byte, contentType string, handle func(*http.Response) error) error {
	var lastErr error
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.userAgent)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		retry, err := c.attempt(req, handle)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}

		if attempt < tries-1 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (c *Client) attempt(req *http.Request, handle func(*http.Response) error) (bool, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return false, req.Context().Err()
		}
		return true, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := handle(resp); err != nil {
			return false, fmt.Errorf("read %s: %w", req.URL.Redacted(), err)
		}
		return false, nil
	}
	// read response body (best-effort) to include in error
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	se := &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(b))}
	return se.Retryable(), se
}
