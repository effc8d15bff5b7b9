package services

import (
	"context"
	"errors"
)

// Reasoner error taxonomy. Callers isolate these to one group of events;
// they never abort a whole batch.
var (
	ErrTimeout           = errors.New("reasoner: timeout")
	ErrRateLimited       = errors.New("reasoner: rate limited")
	ErrMalformedResponse = errors.New("reasoner: malformed response")
)

// ReasonRequest is the structured summarization input for one event group.
type ReasonRequest struct {
	System string
	User   string
}

// ReasonStatement is one derived statement. Confidence is a pointer so the
// caller can tell "absent" from "zero" and apply its own conservative
// default.
type ReasonStatement struct {
	Statement  string   `json:"statement"`
	Confidence *float64 `json:"confidence,omitempty"`
	Entities   []string `json:"entities,omitempty"`
}

type ReasonResult struct {
	Statements []ReasonStatement `json:"statements"`
}

// Reasoner is the narrow capability interface over the external reasoning
// function. Production uses the OpenAI-backed client; tests use fakes.
type Reasoner interface {
	Summarize(ctx context.Context, req ReasonRequest) (*ReasonResult, error)
}
