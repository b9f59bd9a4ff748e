// Package session implements a GET client whose responses are cached in a
// durable store for a fixed time.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pbaille/stackfind/internal/fetcher"
	"github.com/pbaille/stackfind/internal/logging"
	"github.com/pbaille/stackfind/internal/metrics"
	"github.com/pbaille/stackfind/internal/store"
)

// Cache is the storage the session reads and writes responses through
type Cache interface {
	Get(ctx context.Context, key string, now time.Time) (*store.Entry, error)
	Put(ctx context.Context, e *store.Entry) error
}

// Options configures expiry, timeouts and retries
type Options struct {
	// TTL is how long a stored response stays valid
	TTL time.Duration
	// CallTimeout bounds a single network attempt; zero means no extra bound
	CallTimeout time.Duration
	// Retries is the number of extra attempts after a transient transport error
	Retries int
	// RetryBackoff is the wait before the first retry, doubled each time
	RetryBackoff time.Duration
}

// Response is a cached or live response
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	FromCache  bool
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response from %s: %w", r.URL, err)
	}
	return nil
}

// TransportError is a request that never produced a response
type TransportError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Session is safe for concurrent use when its Cache and Fetcher are
type Session struct {
	cache   Cache
	fetch   fetcher.Fetcher
	opts    Options
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a Session
func New(c Cache, f fetcher.Fetcher, opts Options) *Session {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Session{
		cache: c,
		fetch: f,
		opts:  opts,
		now:   time.Now,
	}
}

// WithMetrics records hits, misses and transport errors on m
func (s *Session) WithMetrics(m *metrics.Metrics) *Session {
	s.metrics = m
	return s
}

// WithClock replaces the time source used for expiry
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// Get returns the response for a GET of rawURL with params, from the cache
// when a live entry exists and from the network otherwise. Every response
// that comes back from the network is stored, whatever its status.
func (s *Session) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	log := logging.FromContext(ctx)
	key := store.Key(http.MethodGet, rawURL, params)

	e, err := s.cache.Get(ctx, key, s.now())
	switch {
	case err == nil:
		s.metrics.Hit()
		log.Debug().
			Str("component", "session").
			Str("url", rawURL).
			Msg("cache hit")
		return &Response{URL: rawURL, StatusCode: e.StatusCode, Body: e.Body, FromCache: true}, nil
	case !errors.Is(err, store.ErrNotFound):
		log.Warn().
			Err(err).
			Str("component", "session").
			Str("url", rawURL).
			Msg("cache read failed, going to network")
	}
	s.metrics.Miss()

	resp, attempts, err := s.fetchWithRetry(ctx, rawURL, params)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Attempts: attempts, Err: err}
	}

	created := s.now()
	entry := &store.Entry{
		Key:        key,
		Method:     http.MethodGet,
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		CreatedAt:  created,
		ExpiresAt:  created.Add(s.opts.TTL),
	}
	if err := s.cache.Put(ctx, entry); err != nil {
		log.Warn().
			Err(err).
			Str("component", "session").
			Str("url", rawURL).
			Msg("cache write failed")
	}

	log.Debug().
		Str("component", "session").
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("attempts", attempts).
		Msg("fetched")

	return &Response{URL: rawURL, StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

func (s *Session) fetchWithRetry(ctx context.Context, rawURL string, params url.Values) (*fetcher.Response, int, error) {
	backoff := s.opts.RetryBackoff
	var lastErr error

	for attempt := 1; attempt <= s.opts.Retries+1; attempt++ {
		resp, err := s.fetchOnce(ctx, rawURL, params)
		if err == nil {
			return resp, attempt, nil
		}
		lastErr = err
		s.metrics.TransportError()

		if ctx.Err() != nil || attempt > s.opts.Retries || !transient(err) {
			return nil, attempt, lastErr
		}

		logging.FromContext(ctx).Debug().
			Err(err).
			Str("component", "session").
			Str("url", rawURL).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("retrying")

		select {
		case <-ctx.Done():
			return nil, attempt, lastErr
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, s.opts.Retries + 1, lastErr
}

func (s *Session) fetchOnce(ctx context.Context, rawURL string, params url.Values) (*fetcher.Response, error) {
	if s.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}
	return s.fetch.Get(ctx, rawURL, params)
}

// transient reports whether a failed attempt may succeed when repeated
func transient(err error) bool {
	if errors.Is(err, fetcher.ErrInvalidRequest) || errors.Is(err, fetcher.ErrBodyTooLarge) {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, io.ErrUnexpectedEOF)
}
