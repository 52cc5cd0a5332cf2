package triage

import (
	"errors"
	"testing"

	"github.com/linnemanlabs/intake/internal/classify"
	"github.com/linnemanlabs/intake/internal/taxonomy"
)

func TestPolicy_Decide(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy(testLink)
	strict := p
	strict.RequireCertainty = true

	tests := []struct {
		name     string
		policy   Policy
		category taxonomy.Category
		conf     float64
		attempts int
		want     Decision
	}{
		{"medical certain", p, taxonomy.Medical, 1.0, 0, DecisionReferral},
		{"medical high", p, taxonomy.Medical, 0.95, 0, DecisionReferral},
		{"medical low", p, taxonomy.Medical, 0.1, 0, DecisionReferral},
		{"medical low after attempts", p, taxonomy.Medical, 0.1, 3, DecisionReferral},
		{"non-medical certain", p, taxonomy.NonMedical, 1.0, 0, DecisionAutoResponse},
		{"non-medical at threshold", p, taxonomy.NonMedical, 0.85, 0, DecisionAutoResponse},
		{"non-medical just below", p, taxonomy.NonMedical, 0.8499, 0, DecisionClarify},
		{"non-medical low", p, taxonomy.NonMedical, 0.4, 2, DecisionClarify},
		{"non-medical exhausted", p, taxonomy.NonMedical, 0.4, 3, DecisionExhausted},
		{"non-medical zero", p, taxonomy.NonMedical, 0, 3, DecisionExhausted},
		{"strict high", strict, taxonomy.NonMedical, 0.9, 0, DecisionReferral},
		{"strict certain", strict, taxonomy.NonMedical, 1.0, 0, DecisionAutoResponse},
		{"strict low", strict, taxonomy.NonMedical, 0.5, 0, DecisionClarify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := classify.Result{Category: tt.category, Type: "x", Confidence: tt.conf}
			if got := tt.policy.Decide(r, tt.attempts); got != tt.want {
				t.Errorf("Decide = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	t.Parallel()

	if err := DefaultPolicy(testLink).Validate(); err != nil {
		t.Errorf("default policy: %v", err)
	}

	bad := []Policy{
		{Threshold: 0, MaxAttempts: 3, ReferralLink: testLink},
		{Threshold: 1.2, MaxAttempts: 3, ReferralLink: testLink},
		{Threshold: 0.85, MaxAttempts: -1, ReferralLink: testLink},
		{Threshold: 0.85, MaxAttempts: 3},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("policy %d: expected error", i)
		}
	}
}

func TestErrorInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		kind ErrorKind
		code string
	}{
		{ErrEmptyInput, ErrorKindInput, "empty_input"},
		{&TransitionError{Phase: PhaseResolved, Event: EventAcceptSummary}, ErrorKindTransition, "accept_summary"},
		{&LLMError{Kind: LLMRateLimited}, ErrorKindLLM, "rate_limited"},
		{&classify.ValidationError{Kind: classify.KindUnknownType, Err: errors.New("x")}, ErrorKindValidation, "unknown_type"},
	}
	for _, tt := range tests {
		info := errorInfo(tt.err)
		if info.Kind != tt.kind || info.Code != tt.code || info.Message == "" {
			t.Errorf("errorInfo(%v) = %+v", tt.err, info)
		}
	}
}

func TestTransitionError(t *testing.T) {
	t.Parallel()

	err := error(&TransitionError{Phase: PhaseAwaitingQuestion, Event: EventAcceptSummary})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Error("TransitionError does not wrap ErrInvalidTransition")
	}
	want := "event not allowed in current phase: accept_summary in awaiting_question"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
