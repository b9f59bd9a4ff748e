package finder

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrEmptyQuery is returned when the message has no token to search for
var ErrEmptyQuery = errors.New("empty search query")

// SearchError is a failed search request. Payload is the raw response body.
type SearchError struct {
	StatusCode int
	Payload    []byte
	// Err is set when the body could not be decoded
	Err error
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search failed: malformed response (status %d): %v: %s", e.StatusCode, e.Err, e.Payload)
	}
	return fmt.Sprintf("search failed (status %d): %s", e.StatusCode, e.Payload)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// AnswersError is a non-2xx answers response for one question
type AnswersError struct {
	QuestionID int64
	StatusCode int
	Payload    []byte
}

func (e *AnswersError) Error() string {
	return fmt.Sprintf("answers for question %d failed (status %d): %s", e.QuestionID, e.StatusCode, e.Payload)
}

// QuestionFailure records why one question was left out of a best-effort result
type QuestionFailure struct {
	// Index is the position of the question in the search results
	Index      int
	QuestionID int64
	Err        error
}

// PartialError lists the questions dropped from a best-effort search
type PartialError struct {
	Failures []QuestionFailure
}

func (e *PartialError) Error() string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = fmt.Sprint(f.QuestionID)
	}
	return fmt.Sprintf("%d question(s) dropped [%s]: %v", len(e.Failures), strings.Join(ids, ", "), e.Failures[0].Err)
}

// Unwrap exposes every underlying failure to errors.Is and errors.As
func (e *PartialError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

func sortFailures(fs []QuestionFailure) {
	slices.SortFunc(fs, func(a, b QuestionFailure) int {
		return cmp.Compare(a.Index, b.Index)
	})
}
