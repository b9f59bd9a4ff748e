// Package finder runs the two-stage question search: one search request for
// candidate questions, then one answers request per answered question.
package finder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pbaille/stackfind/internal/domain"
	"github.com/pbaille/stackfind/internal/logging"
	"github.com/pbaille/stackfind/internal/metrics"
	"github.com/pbaille/stackfind/internal/session"
)

// DefaultMaxResults is used when Search is called with maxResults <= 0
const DefaultMaxResults = 5

// Policy decides what a failed answers request does to the whole search
type Policy int

const (
	// FailFast aborts the search on the first failed question
	FailFast Policy = iota
	// BestEffort drops failed questions and reports them in a PartialError
	BestEffort
)

// ParsePolicy maps a configuration string to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fail-fast":
		return FailFast, nil
	case "best-effort":
		return BestEffort, nil
	}
	return FailFast, fmt.Errorf("unknown failure policy %q", s)
}

func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "fail-fast"
}

// Getter is the cached GET the finder issues its requests through
type Getter interface {
	Get(ctx context.Context, rawURL string, params url.Values) (*session.Response, error)
}

// Options configures the upstream endpoints and the fan-out
type Options struct {
	BaseURL string
	Site    string
	Tag     string
	Filter  string
	// Concurrency caps in-flight answers requests
	Concurrency int
	Policy      Policy
	// Timeout bounds the whole search; zero means no extra bound
	Timeout time.Duration
}

// Finder searches a Stack Exchange site for questions matching an error message
type Finder struct {
	get     Getter
	opts    Options
	metrics *metrics.Metrics
}

// New creates a Finder
func New(g Getter, opts Options) *Finder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Finder{get: g, opts: opts}
}

// WithMetrics records search outcomes on m
func (f *Finder) WithMetrics(m *metrics.Metrics) *Finder {
	f.metrics = m
	return f
}

// DeriveQuery returns the title-search term for an error message: its first
// whitespace-delimited token without a trailing colon
func DeriveQuery(message string) string {
	fields := strings.Fields(message)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimRight(fields[0], ":")
}

// searchItem is the part of a search result item the finder inspects.
// The raw item is kept for record construction.
type searchItem struct {
	raw        json.RawMessage
	questionID int64
	answered   bool
}

type searchPayload struct {
	Items []json.RawMessage `json:"items"`
}

// Search finds answered questions for message and returns them with their
// answers, in the order the search endpoint ranked them. An empty result is
// not an error.
//
// With the BestEffort policy a non-nil *PartialError may be returned
// together with the questions that did succeed.
func (f *Finder) Search(ctx context.Context, message string, maxResults int) ([]domain.Question, error) {
	start := time.Now()
	questions, err := f.search(ctx, message, maxResults)

	outcome := "ok"
	var partial *PartialError
	switch {
	case errors.As(err, &partial):
		outcome = "partial"
	case err != nil:
		outcome = "error"
	}
	f.metrics.ObserveSearch(outcome, time.Since(start).Seconds())

	return questions, err
}

func (f *Finder) search(ctx context.Context, message string, maxResults int) ([]domain.Question, error) {
	term := DeriveQuery(message)
	if term == "" {
		return nil, ErrEmptyQuery
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	log := logging.FromContext(ctx).With().
		Str("component", "finder").
		Str("search_id", uuid.NewString()).
		Str("query", term).
		Logger()
	ctx = logging.WithContext(ctx, log)

	items, err := f.searchQuestions(ctx, term, maxResults)
	if err != nil {
		return nil, err
	}

	answered := items[:0]
	for _, it := range items {
		if it.answered {
			answered = append(answered, it)
		}
	}

	log.Debug().
		Int("found", len(items)).
		Int("answered", len(answered)).
		Msg("search stage complete")

	if len(answered) == 0 {
		return []domain.Question{}, nil
	}

	return f.collect(ctx, answered)
}

// searchQuestions runs stage one
func (f *Finder) searchQuestions(ctx context.Context, term string, maxResults int) ([]searchItem, error) {
	params := url.Values{}
	params.Set("pagesize", strconv.Itoa(maxResults))
	params.Set("order", "desc")
	params.Set("sort", "relevance")
	params.Set("tagged", f.opts.Tag)
	params.Set("intitle", term)
	params.Set("site", f.opts.Site)
	params.Set("filter", f.opts.Filter)

	resp, err := f.get.Get(ctx, f.opts.BaseURL+"/search", params)
	if err != nil {
		return nil, fmt.Errorf("search questions: %w", err)
	}
	if !resp.OK() {
		return nil, &SearchError{StatusCode: resp.StatusCode, Payload: resp.Body}
	}

	var payload searchPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, &SearchError{StatusCode: resp.StatusCode, Payload: resp.Body, Err: err}
	}

	items := make([]searchItem, 0, len(payload.Items))
	for _, raw := range payload.Items {
		var head struct {
			QuestionID int64 `json:"question_id"`
			IsAnswered bool  `json:"is_answered"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, &SearchError{StatusCode: resp.StatusCode, Payload: resp.Body, Err: err}
		}
		items = append(items, searchItem{raw: raw, questionID: head.QuestionID, answered: head.IsAnswered})
	}
	return items, nil
}

// collect runs stage two concurrently and assembles the questions in the
// order of items, independent of completion order
func (f *Finder) collect(ctx context.Context, items []searchItem) ([]domain.Question, error) {
	results := make([]domain.Question, len(items))
	errs := make([]error, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)

	var mu sync.Mutex
	var failures []QuestionFailure

	for i, it := range items {
		g.Go(func() error {
			q, err := f.fetchQuestion(gctx, it)
			if err == nil {
				results[i] = q
				return nil
			}
			errs[i] = err
			// a spent search deadline is not a dropped question
			if f.opts.Policy == FailFast || ctx.Err() != nil {
				return err
			}
			mu.Lock()
			failures = append(failures, QuestionFailure{Index: i, QuestionID: it.questionID, Err: err})
			mu.Unlock()
			return nil
		})
	}

	waitErr := g.Wait()
	if err := ctx.Err(); err != nil && slices.ContainsFunc(errs, func(e error) bool { return e != nil }) {
		return nil, fmt.Errorf("fetch answers: %w", err)
	}
	if waitErr != nil {
		return nil, waitErr
	}

	questions := make([]domain.Question, 0, len(items))
	for i := range items {
		if errs[i] == nil {
			questions = append(questions, results[i])
		}
	}

	if len(failures) > 0 {
		sortFailures(failures)
		logging.FromContext(ctx).Warn().
			Int("failed", len(failures)).
			Int("returned", len(questions)).
			Msg("some questions were dropped")
		return questions, &PartialError{Failures: failures}
	}
	return questions, nil
}

// fetchQuestion runs stage two for one question and builds its record
func (f *Finder) fetchQuestion(ctx context.Context, it searchItem) (domain.Question, error) {
	params := url.Values{}
	params.Set("order", "desc")
	params.Set("sort", "activity")
	params.Set("site", f.opts.Site)
	params.Set("filter", f.opts.Filter)

	endpoint := fmt.Sprintf("%s/questions/%d/answers", f.opts.BaseURL, it.questionID)
	resp, err := f.get.Get(ctx, endpoint, params)
	if err != nil {
		return domain.Question{}, fmt.Errorf("fetch answers for question %d: %w", it.questionID, err)
	}
	if !resp.OK() {
		return domain.Question{}, &AnswersError{QuestionID: it.questionID, StatusCode: resp.StatusCode, Payload: resp.Body}
	}

	q, err := domain.NewQuestion(it.raw, resp.Body)
	if err != nil {
		return domain.Question{}, fmt.Errorf("build question %d: %w", it.questionID, err)
	}
	return q, nil
}
