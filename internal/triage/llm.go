package triage

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the interface for any LLM backend. Complete sends a single
// prompt and returns the model's text reply.
type Provider interface {
	Complete(ctx context.Context, prompt string) (*Completion, error)
}

// Forgetter is implemented by providers that remember completions. The
// engine calls Forget with the prompt of a classification reply that failed
// validation, so the next identical request reaches the model again.
type Forgetter interface {
	Forget(prompt string)
}

// Completion is one model reply.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// LLMErrorKind classifies provider failures.
type LLMErrorKind string

const (
	LLMTimeout      LLMErrorKind = "timeout"
	LLMRateLimited  LLMErrorKind = "rate_limited"
	LLMServiceError LLMErrorKind = "service_error"
	LLMUnknown      LLMErrorKind = "unknown"
)

// LLMError is returned by providers (or synthesized by the engine) when a
// completion could not be obtained.
type LLMError struct {
	Kind LLMErrorKind
	Err  error
}

func (e *LLMError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("llm %s", e.Kind)
	}
	return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

var errEmptyCompletion = errors.New("empty completion")

// AsLLMError normalizes any provider error into an *LLMError.
func AsLLMError(err error) *LLMError {
	if err == nil {
		return nil
	}
	var le *LLMError
	if errors.As(err, &le) {
		return le
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &LLMError{Kind: LLMTimeout, Err: err}
	}
	return &LLMError{Kind: LLMUnknown, Err: err}
}
