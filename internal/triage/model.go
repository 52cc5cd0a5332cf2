package triage

import (
	"time"

	"github.com/linnemanlabs/intake/internal/classify"
)

// Phase is where a conversation is. Exactly one phase is active at a time.
type Phase string

const (
	// PhaseAwaitingQuestion waits for the customer's question
	PhaseAwaitingQuestion Phase = "awaiting_question"

	// PhaseAwaitingSummaryDecision waits for the customer to accept or reject the summary
	PhaseAwaitingSummaryDecision Phase = "awaiting_summary_decision"

	// PhaseAwaitingClassification is held while the classifier is being asked
	PhaseAwaitingClassification Phase = "awaiting_classification"

	// PhaseAwaitingClarification waits for more detail after a low-confidence result
	PhaseAwaitingClarification Phase = "awaiting_clarification"

	// PhaseResolved is terminal until the conversation starts over
	PhaseResolved Phase = "resolved"
)

// SummaryDecision records what the customer did with the summary.
type SummaryDecision string

const (
	SummaryUnset    SummaryDecision = "unset"
	SummaryRejected SummaryDecision = "rejected"
	SummaryAccepted SummaryDecision = "accepted"
)

// OutcomeKind is the terminal payload of a resolved session.
type OutcomeKind string

const (
	OutcomeMedicalReferral        OutcomeKind = "medical_referral"
	OutcomeNonMedicalAutoResponse OutcomeKind = "non_medical_auto_response"
	OutcomeClarificationExhausted OutcomeKind = "clarification_exhausted"

	// OutcomeInvalid means the classifier reply failed validation.
	OutcomeInvalid OutcomeKind = "invalid"
)

// Outcome is set once a session is resolved.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	Type     string      `json:"type,omitempty"`
	Response string      `json:"response,omitempty"`
	Link     string      `json:"link,omitempty"`
	Error    *ErrorInfo  `json:"error,omitempty"`
}

// IsReferral reports whether the outcome hands the customer to a human channel.
func (o *Outcome) IsReferral() bool {
	return o != nil && (o.Kind == OutcomeMedicalReferral || o.Kind == OutcomeClarificationExhausted)
}

// Session is the full state of one conversation. It is a value: the Engine
// never mutates the Session it is given.
type Session struct {
	OriginalQuestion   string           `json:"original_question"`
	Summary            string           `json:"summary"`
	SummaryDecision    SummaryDecision  `json:"summary_decision"`
	Clarifications     []string         `json:"clarifications"`
	LastClassification *classify.Result `json:"last_classification,omitempty"`
	LastRawReply       string           `json:"last_raw_reply,omitempty"`
	AttemptsUsed       int              `json:"attempts_used"`
	Phase              Phase            `json:"phase"`
	Outcome            *Outcome         `json:"outcome,omitempty"`
}

// NewSession returns a fresh conversation waiting for a question.
func NewSession() Session {
	return Session{
		SummaryDecision: SummaryUnset,
		Clarifications:  []string{},
		Phase:           PhaseAwaitingQuestion,
	}
}

// clone returns a deep copy so transitions never alias the caller's session.
func (s Session) clone() Session {
	out := s
	out.Clarifications = append([]string{}, s.Clarifications...)
	if s.LastClassification != nil {
		lc := *s.LastClassification
		out.LastClassification = &lc
	}
	if s.Outcome != nil {
		oc := *s.Outcome
		if s.Outcome.Error != nil {
			ei := *s.Outcome.Error
			oc.Error = &ei
		}
		out.Outcome = &oc
	}
	return out
}

// EventKind names a customer action.
type EventKind string

const (
	EventSubmitQuestion      EventKind = "submit_question"
	EventAcceptSummary       EventKind = "accept_summary"
	EventRejectSummary       EventKind = "reject_summary"
	EventSubmitClarification EventKind = "submit_clarification"
	EventStartOver           EventKind = "start_over"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventSubmitQuestion, EventAcceptSummary, EventRejectSummary, EventSubmitClarification, EventStartOver:
		return true
	default:
		return false
	}
}

// Event is one input to the state machine. Text carries the question or
// clarification; Details is optional extra context sent with a question.
type Event struct {
	Kind    EventKind `json:"type"`
	Text    string    `json:"text,omitempty"`
	Details string    `json:"details,omitempty"`
}

func SubmitQuestion(text string) Event      { return Event{Kind: EventSubmitQuestion, Text: text} }
func AcceptSummary() Event                  { return Event{Kind: EventAcceptSummary} }
func RejectSummary() Event                  { return Event{Kind: EventRejectSummary} }
func SubmitClarification(text string) Event { return Event{Kind: EventSubmitClarification, Text: text} }
func StartOver() Event                      { return Event{Kind: EventStartOver} }

// DirectiveKind tells the front end what to render next.
type DirectiveKind string

const (
	DirectiveAskQuestion                DirectiveKind = "ask_question"
	DirectiveShowSummary                DirectiveKind = "show_summary"
	DirectiveRequestClarification       DirectiveKind = "request_clarification"
	DirectiveShowMedicalReferral        DirectiveKind = "show_medical_referral"
	DirectiveShowNonMedicalResponse     DirectiveKind = "show_non_medical_response"
	DirectiveShowClarificationExhausted DirectiveKind = "show_clarification_exhausted"
	DirectiveShowError                  DirectiveKind = "show_error"
)

// Directive is the result of processing one event. Only the fields relevant
// to Kind are set.
type Directive struct {
	Kind        DirectiveKind `json:"kind"`
	Question    string        `json:"question,omitempty"`
	Summary     string        `json:"summary,omitempty"`
	Attempt     int           `json:"attempt,omitempty"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
	Link        string        `json:"link,omitempty"`
	Type        string        `json:"type,omitempty"`
	Response    string        `json:"response,omitempty"`
	Error       *ErrorInfo    `json:"error,omitempty"`
}

// Record is a stored session.
type Record struct {
	ID        string    `json:"id"`
	Session   Session   `json:"session"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Session = r.Session.clone()
	return &cp
}
