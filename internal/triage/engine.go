package triage

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/intake/internal/classify"
	"github.com/linnemanlabs/intake/internal/prompt"
	"github.com/linnemanlabs/intake/internal/taxonomy"
)

const tracerName = "github.com/linnemanlabs/intake/internal/triage"

// Purpose labels what an LLM call is for.
type Purpose string

const (
	PurposeSummarize Purpose = "summarize"
	PurposeClassify  Purpose = "classify"
)

// EngineHooks receives engine observations. Any nil hook is skipped.
type EngineHooks struct {
	OnLLMCall         func(purpose Purpose, duration float64, errKind LLMErrorKind)
	OnClassification  func(r classify.Result)
	OnValidationError func(kind classify.Kind)
	OnResolved        func(outcome OutcomeKind, attemptsUsed int)
}

// Engine is the conversation state machine. It holds no per-session state,
// so one Engine serves any number of concurrent sessions.
type Engine struct {
	provider   Provider
	tax        *taxonomy.Taxonomy
	policy     Policy
	llmTimeout time.Duration
	logger     log.Logger
	hooks      EngineHooks
	tracer     trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPolicy overrides the default routing policy.
func WithPolicy(p Policy) EngineOption {
	return func(e *Engine) { e.policy = p }
}

// WithLLMTimeout bounds every provider call. Zero disables the bound.
func WithLLMTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.llmTimeout = d }
}

// WithHooks installs metric hooks.
func WithHooks(h EngineHooks) EngineOption {
	return func(e *Engine) { e.hooks = h }
}

// NewEngine creates a new engine over the given provider and taxonomy.
func NewEngine(provider Provider, tax *taxonomy.Taxonomy, logger log.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	e := &Engine{
		provider: provider,
		tax:      tax,
		policy:   DefaultPolicy(""),
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the routing policy in use.
func (e *Engine) Policy() Policy { return e.policy }

// Apply processes one event against s and returns the next session and the
// directive for the front end. The error is non-nil exactly when the
// directive is show_error. s is never modified.
func (e *Engine) Apply(ctx context.Context, s Session, ev Event) (Session, Directive, error) {
	if ev.Kind == EventStartOver {
		fresh := NewSession()
		return fresh, Directive{Kind: DirectiveAskQuestion}, nil
	}

	switch s.Phase {
	case PhaseAwaitingQuestion:
		if ev.Kind == EventSubmitQuestion {
			return e.submitQuestion(ctx, s, ev)
		}
	case PhaseAwaitingSummaryDecision:
		switch ev.Kind {
		case EventAcceptSummary:
			next := s.clone()
			next.SummaryDecision = SummaryAccepted
			next.Phase = PhaseAwaitingClassification
			return e.classify(ctx, s, next)
		case EventRejectSummary:
			return e.rejectSummary(s)
		}
	case PhaseAwaitingClarification:
		if ev.Kind == EventSubmitClarification {
			return e.submitClarification(ctx, s, ev.Text)
		}
	}

	return fail(s, &TransitionError{Phase: s.Phase, Event: ev.Kind})
}

func (e *Engine) submitQuestion(ctx context.Context, s Session, ev Event) (Session, Directive, error) {
	question := strings.TrimSpace(ev.Text)
	if question == "" {
		return fail(s, ErrEmptyInput)
	}

	c, err := e.complete(ctx, PurposeSummarize, prompt.Summary(question, strings.TrimSpace(ev.Details)))
	if err != nil {
		return fail(s, err)
	}
	summary := strings.TrimSpace(c.Text)
	if summary == "" {
		return fail(s, &LLMError{Kind: LLMServiceError, Err: errEmptyCompletion})
	}

	next := NewSession()
	// kept as typed so a rejected summary hands back the customer's own text
	next.OriginalQuestion = ev.Text
	next.Summary = summary
	next.Phase = PhaseAwaitingSummaryDecision
	return next, Directive{Kind: DirectiveShowSummary, Summary: summary}, nil
}

func (e *Engine) rejectSummary(s Session) (Session, Directive, error) {
	next := s.clone()
	next.Summary = ""
	next.SummaryDecision = SummaryRejected
	next.Clarifications = []string{}
	next.LastClassification = nil
	next.LastRawReply = ""
	next.AttemptsUsed = 0
	next.Phase = PhaseAwaitingQuestion
	return next, Directive{Kind: DirectiveAskQuestion, Question: next.OriginalQuestion}, nil
}

func (e *Engine) submitClarification(ctx context.Context, s Session, text string) (Session, Directive, error) {
	clarification := strings.TrimSpace(text)
	if clarification == "" {
		return fail(s, ErrEmptyInput)
	}
	if s.AttemptsUsed >= e.policy.MaxAttempts {
		return fail(s, &TransitionError{Phase: s.Phase, Event: EventSubmitClarification})
	}

	next := s.clone()
	next.Clarifications = append(next.Clarifications, clarification)
	next.AttemptsUsed++
	next.Phase = PhaseAwaitingClassification
	return e.classify(ctx, s, next)
}

// classify asks the model to classify next and routes the result. prev is
// returned untouched if the call itself fails.
func (e *Engine) classify(ctx context.Context, prev, next Session) (Session, Directive, error) {
	p := prompt.Classification(next.Summary, e.tax, next.Clarifications)
	c, err := e.complete(ctx, PurposeClassify, p)
	if err != nil {
		return fail(prev, err)
	}
	next.LastRawReply = c.Text

	res, err := classify.Validate(c.Text, e.tax)
	if err != nil {
		if f, ok := e.provider.(Forgetter); ok {
			f.Forget(p)
		}
		var ve *classify.ValidationError
		if errors.As(err, &ve) && e.hooks.OnValidationError != nil {
			e.hooks.OnValidationError(ve.Kind)
		}
		e.logger.Warn(ctx, "classification rejected", "error", err.Error())
		next.LastClassification = nil
		next.Phase = PhaseResolved
		next.Outcome = &Outcome{Kind: OutcomeInvalid, Error: errorInfo(err)}
		e.resolved(next)
		return next, errorDirective(err), err
	}

	next.LastClassification = &res
	if e.hooks.OnClassification != nil {
		e.hooks.OnClassification(res)
	}

	var d Directive
	switch e.policy.Decide(res, next.AttemptsUsed) {
	case DecisionReferral:
		next.Phase = PhaseResolved
		next.Outcome = &Outcome{Kind: OutcomeMedicalReferral, Type: res.Type, Link: e.policy.ReferralLink}
		d = Directive{Kind: DirectiveShowMedicalReferral, Link: e.policy.ReferralLink}
	case DecisionAutoResponse:
		response := e.tax.StaticResponseFor(res.Type)
		next.Phase = PhaseResolved
		next.Outcome = &Outcome{Kind: OutcomeNonMedicalAutoResponse, Type: res.Type, Response: response}
		d = Directive{Kind: DirectiveShowNonMedicalResponse, Type: res.Type, Response: response}
	case DecisionClarify:
		next.Phase = PhaseAwaitingClarification
		return next, Directive{
			Kind:        DirectiveRequestClarification,
			Attempt:     next.AttemptsUsed + 1,
			MaxAttempts: e.policy.MaxAttempts,
		}, nil
	case DecisionExhausted:
		next.Phase = PhaseResolved
		next.Outcome = &Outcome{Kind: OutcomeClarificationExhausted, Type: res.Type, Link: e.policy.ReferralLink}
		d = Directive{Kind: DirectiveShowClarificationExhausted, Link: e.policy.ReferralLink}
	}

	e.resolved(next)
	return next, d, nil
}

func (e *Engine) resolved(s Session) {
	if e.hooks.OnResolved != nil && s.Outcome != nil {
		e.hooks.OnResolved(s.Outcome.Kind, s.AttemptsUsed)
	}
}

// complete runs one bounded provider call inside an llm.call span.
func (e *Engine) complete(ctx context.Context, purpose Purpose, p string) (*Completion, error) {
	ctx, span := e.tracer.Start(ctx, "llm.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "llm.call"),
			attribute.String("intake.llm.purpose", string(purpose)),
			attribute.Int("intake.prompt.bytes", len(p)),
		),
	)
	defer span.End()

	if e.llmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.llmTimeout)
		defer cancel()
	}

	start := time.Now()
	c, err := e.provider.Complete(ctx, p)
	if err == nil && c == nil {
		err = &LLMError{Kind: LLMServiceError, Err: errEmptyCompletion}
	}
	duration := time.Since(start).Seconds()

	if err != nil {
		le := AsLLMError(err)
		span.RecordError(le)
		span.SetStatus(codes.Error, string(le.Kind))
		span.SetAttributes(attribute.String("intake.llm.error_kind", string(le.Kind)))
		if e.hooks.OnLLMCall != nil {
			e.hooks.OnLLMCall(purpose, duration, le.Kind)
		}
		e.logger.Warn(ctx, "llm call failed",
			"purpose", purpose,
			"llm_error_kind", le.Kind,
			"error", le.Error(),
		)
		return nil, le
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", c.Model),
		attribute.Int("gen_ai.usage.input_tokens", c.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", c.OutputTokens),
	)
	if e.hooks.OnLLMCall != nil {
		e.hooks.OnLLMCall(purpose, duration, "")
	}
	return c, nil
}

func fail(s Session, err error) (Session, Directive, error) {
	return s.clone(), errorDirective(err), err
}
