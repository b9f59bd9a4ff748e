package domain

import (
	"encoding/json"
	"fmt"
)

// Answer is a single answer to a question, as returned by the answers endpoint
type Answer struct {
	ID       int64  `json:"answer_id"`
	Accepted bool   `json:"is_accepted"`
	Score    int    `json:"score"`
	Body     string `json:"body"`
}

// Question is a search hit together with its answer set.
// Answers keep the order the service returned them in.
type Question struct {
	ID      int64    `json:"question_id"`
	Link    string   `json:"link"`
	Title   string   `json:"title"`
	Score   int      `json:"score"`
	Body    string   `json:"body"`
	Answers []Answer `json:"answers"`
}

const (
	recordQuestion = "question"
	recordAnswer   = "answer"
	recordAnswers  = "answers"
)

// MissingFieldError reports a required field absent from a payload
type MissingFieldError struct {
	Record string
	Field  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s payload: missing field %q", e.Record, e.Field)
}

// FieldTypeError reports a field whose JSON value has the wrong type
type FieldTypeError struct {
	Record string
	Field  string
	Err    error
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("%s payload: field %q: %v", e.Record, e.Field, e.Err)
}

func (e *FieldTypeError) Unwrap() error {
	return e.Err
}

// payload is a decoded JSON object whose fields are read on demand
type payload struct {
	record string
	fields map[string]json.RawMessage
}

func parsePayload(record string, raw json.RawMessage) (*payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", record, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decode %s payload: not an object", record)
	}
	return &payload{record: record, fields: fields}, nil
}

func (p *payload) read(field string, dst any) error {
	v, ok := p.fields[field]
	if !ok || string(v) == "null" {
		return &MissingFieldError{Record: p.record, Field: field}
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return &FieldTypeError{Record: p.record, Field: field, Err: err}
	}
	return nil
}

// NewAnswer builds an Answer from a single item of the answers payload
func NewAnswer(raw json.RawMessage) (Answer, error) {
	p, err := parsePayload(recordAnswer, raw)
	if err != nil {
		return Answer{}, err
	}

	var a Answer
	if err := p.read("answer_id", &a.ID); err != nil {
		return Answer{}, err
	}
	if err := p.read("is_accepted", &a.Accepted); err != nil {
		return Answer{}, err
	}
	if err := p.read("score", &a.Score); err != nil {
		return Answer{}, err
	}
	if err := p.read("body", &a.Body); err != nil {
		return Answer{}, err
	}
	return a, nil
}

// NewQuestion builds a Question from a search item and the answers
// response fetched for it
func NewQuestion(question, answers json.RawMessage) (Question, error) {
	p, err := parsePayload(recordQuestion, question)
	if err != nil {
		return Question{}, err
	}

	var q Question
	if err := p.read("question_id", &q.ID); err != nil {
		return Question{}, err
	}
	if err := p.read("link", &q.Link); err != nil {
		return Question{}, err
	}
	if err := p.read("title", &q.Title); err != nil {
		return Question{}, err
	}
	if err := p.read("score", &q.Score); err != nil {
		return Question{}, err
	}
	if err := p.read("body", &q.Body); err != nil {
		return Question{}, err
	}

	ap, err := parsePayload(recordAnswers, answers)
	if err != nil {
		return Question{}, err
	}
	var items []json.RawMessage
	if err := ap.read("items", &items); err != nil {
		return Question{}, err
	}

	q.Answers = make([]Answer, 0, len(items))
	for i, item := range items {
		a, err := NewAnswer(item)
		if err != nil {
			return Question{}, fmt.Errorf("question %d answer %d: %w", q.ID, i, err)
		}
		q.Answers = append(q.Answers, a)
	}

	return q, nil
}

// AcceptedAnswer returns the accepted answer, if the question has one
func (q Question) AcceptedAnswer() (Answer, bool) {
	for _, a := range q.Answers {
		if a.Accepted {
			return a, true
		}
	}
	return Answer{}, false
}
