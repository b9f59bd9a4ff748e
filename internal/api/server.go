package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pbaille/stackfind/internal/domain"
	"github.com/pbaille/stackfind/internal/finder"
	"github.com/pbaille/stackfind/internal/logging"
	"github.com/pbaille/stackfind/internal/metrics"
	"github.com/pbaille/stackfind/internal/session"
	"github.com/pbaille/stackfind/internal/store"
)

const maxResultsLimit = 100

// Searcher runs a question search
type Searcher interface {
	Search(ctx context.Context, message string, maxResults int) ([]domain.Question, error)
}

// CacheStats reports the response cache contents
type CacheStats interface {
	Stats(ctx context.Context, now time.Time) (store.Stats, error)
}

// Options configures the HTTP server
type Options struct {
	Addr           string
	RequestTimeout time.Duration
	DefaultMax     int
}

// Server handles HTTP requests for the search API
type Server struct {
	finder  Searcher
	cache   CacheStats
	metrics *metrics.Metrics
	log     zerolog.Logger
	opts    Options
}

// New creates a new API server
func New(f Searcher, c CacheStats, m *metrics.Metrics, log zerolog.Logger, opts Options) *Server {
	if opts.DefaultMax <= 0 {
		opts.DefaultMax = finder.DefaultMaxResults
	}
	return &Server{finder: f, cache: c, metrics: m, log: log, opts: opts}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer,
		requestID,
		s.requestLogger,
	)
	if s.opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
	}

	r.Get("/search", s.search)
	r.Get("/cache/stats", s.cacheStats)
	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return r
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.opts.Addr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info().Msg("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SearchResponse is the body returned by GET /search
type SearchResponse struct {
	Query     string            `json:"query"`
	Questions []domain.Question `json:"questions"`
	Failures  []Failure         `json:"failures,omitempty"`
}

// Failure describes a question dropped from a best-effort search
type Failure struct {
	QuestionID int64  `json:"question_id"`
	Error      string `json:"error"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("q")
	if message == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	maxResults := s.opts.DefaultMax
	if m := r.URL.Query().Get("max"); m != "" {
		n, err := strconv.Atoi(m)
		if err != nil || n <= 0 || n > maxResultsLimit {
			writeError(w, http.StatusBadRequest, "query parameter 'max' must be between 1 and 100")
			return
		}
		maxResults = n
	}

	questions, err := s.finder.Search(r.Context(), message, maxResults)

	resp := SearchResponse{Query: finder.DeriveQuery(message), Questions: questions}
	var partial *finder.PartialError
	if errors.As(err, &partial) {
		for _, f := range partial.Failures {
			resp.Failures = append(resp.Failures, Failure{QuestionID: f.QuestionID, Error: f.Err.Error()})
		}
		err = nil
	}
	if err != nil {
		logging.FromContext(r.Context()).Warn().Err(err).Str("q", message).Msg("search failed")
		writeError(w, statusFor(err), err.Error())
		return
	}

	if resp.Questions == nil {
		resp.Questions = []domain.Question{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.cache.Stats(r.Context(), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// statusFor maps search failures to HTTP statuses
func statusFor(err error) int {
	var (
		se *finder.SearchError
		ae *finder.AnswersError
		te *session.TransportError
		mf *domain.MissingFieldError
		ft *domain.FieldTypeError
	)
	switch {
	case errors.Is(err, finder.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &te):
		return http.StatusBadGateway
	case errors.As(err, &se), errors.As(err, &ae), errors.As(err, &mf), errors.As(err, &ft):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// requestID reuses X-Request-Id or generates one
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// requestLogger puts a request-scoped logger in the context and logs each request
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		l := s.log.With().
			Str("request_id", r.Header.Get("X-Request-Id")).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logging.WithContext(r.Context(), l)))

		l.Info().
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
