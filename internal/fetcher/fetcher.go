package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	userAgent    = "stackfind/1.0"
	maxBodyBytes = 5 * 1024 * 1024
)

var (
	// ErrInvalidRequest marks requests that cannot succeed however often they are sent
	ErrInvalidRequest = errors.New("invalid request")
	// ErrBodyTooLarge is returned when a response body exceeds the read limit
	ErrBodyTooLarge = errors.New("response body too large")
)

// Response is the raw outcome of a GET request
type Response struct {
	StatusCode int
	Body       []byte
}

// Fetcher performs live GET requests
type Fetcher interface {
	Get(ctx context.Context, rawURL string, params url.Values) (*Response, error)
}

// HTTPFetcher is a Fetcher backed by net/http
type HTTPFetcher struct {
	client *http.Client
}

// New creates an HTTPFetcher whose client gives up after timeout
func New(timeout time.Duration) *HTTPFetcher {
	return NewWithClient(&http.Client{Timeout: timeout})
}

// NewWithClient wraps an existing client, e.g. one trusting a test TLS server
func NewWithClient(c *http.Client) *HTTPFetcher {
	return &HTTPFetcher{client: c}
}

// Get issues a GET for rawURL with params as the query string.
// Non-2xx statuses are returned as responses, not errors.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	// Validate URL
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme: %s", ErrInvalidRequest, u.Scheme)
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrInvalidRequest, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	// One byte past the limit tells a full body from a cut one
	limited := io.LimitReader(resp.Body, maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("read body: %w: exceeds %d bytes", ErrBodyTooLarge, maxBodyBytes)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
