package triage

import (
	"errors"
	"fmt"

	"github.com/linnemanlabs/intake/internal/classify"
)

var (
	// ErrEmptyInput is returned when a question or clarification is blank.
	ErrEmptyInput = errors.New("input is empty")

	// ErrInvalidTransition is wrapped by every TransitionError.
	ErrInvalidTransition = errors.New("event not allowed in current phase")

	// ErrSessionBusy is returned when an event is already being processed for the session.
	ErrSessionBusy = errors.New("session is busy")

	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
)

// TransitionError names the phase and event that could not be combined.
type TransitionError struct {
	Phase Phase
	Event EventKind
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s in %s", ErrInvalidTransition, e.Event, e.Phase)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ErrorKind is the coarse class of a failed event.
type ErrorKind string

const (
	ErrorKindInput      ErrorKind = "input"
	ErrorKindTransition ErrorKind = "invalid_transition"
	ErrorKindLLM        ErrorKind = "llm"
	ErrorKindValidation ErrorKind = "validation"
)

// ErrorInfo is the serializable form of an event failure carried by a
// show_error directive.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func errorInfo(err error) *ErrorInfo {
	info := &ErrorInfo{Message: err.Error()}

	var (
		te *TransitionError
		le *LLMError
		ve *classify.ValidationError
	)
	switch {
	case errors.Is(err, ErrEmptyInput):
		info.Kind, info.Code = ErrorKindInput, "empty_input"
	case errors.As(err, &te):
		info.Kind, info.Code = ErrorKindTransition, string(te.Event)
	case errors.As(err, &le):
		info.Kind, info.Code = ErrorKindLLM, string(le.Kind)
	case errors.As(err, &ve):
		info.Kind, info.Code = ErrorKindValidation, string(ve.Kind)
	default:
		info.Kind, info.Code = ErrorKindLLM, string(LLMUnknown)
	}
	return info
}

func errorDirective(err error) Directive {
	return Directive{Kind: DirectiveShowError, Error: errorInfo(err)}
}
