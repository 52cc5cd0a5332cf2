package triageapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/intake/internal/classify"
	"github.com/linnemanlabs/intake/internal/triage"
)

// eventRequest is the body of POST /sessions/{id}/events.
type eventRequest struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Details string `json:"details"`
}

// conversationResponse is returned by every call that advances a session.
type conversationResponse struct {
	Session   sessionView      `json:"session"`
	Directive triage.Directive `json:"directive"`
}

func (a *API) handleStartSession(w http.ResponseWriter, r *http.Request) {
	rec, dir, err := a.svc.Start(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to start session")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("intake.session.id", rec.ID))

	writeJSON(w, http.StatusCreated, conversationResponse{
		Session:   a.view(rec),
		Directive: dir,
	})
}

func (a *API) handleEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("intake.session.id", id))

	// body size is capped by httpmw.MaxBody in main, not here; an oversized
	// body fails Decode and is reported as a bad payload
	var req eventRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	ev := triage.Event{
		Kind:    triage.EventKind(strings.TrimSpace(req.Type)),
		Text:    req.Text,
		Details: req.Details,
	}
	if !ev.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}
	span.SetAttributes(attribute.String("intake.event", string(ev.Kind)))

	rec, dir, err := a.svc.Handle(r.Context(), id, ev)
	switch {
	case errors.Is(err, triage.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not found")
		return
	case errors.Is(err, triage.ErrSessionBusy):
		writeError(w, http.StatusConflict, "session is busy")
		return
	case err != nil && rec == nil:
		a.logger.Error(r.Context(), err, "failed to handle event", "session_id", id, "event", ev.Kind)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span.SetAttributes(
		attribute.String("intake.session.phase", string(rec.Session.Phase)),
		attribute.String("intake.directive", string(dir.Kind)),
	)

	writeJSON(w, statusFor(err), conversationResponse{
		Session:   a.view(rec),
		Directive: dir,
	})
}

// statusFor maps a domain failure from Handle to an HTTP status. The body
// still carries the session and the show_error directive.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var (
		le *triage.LLMError
		ve *classify.ValidationError
	)
	switch {
	case errors.Is(err, triage.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, triage.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &ve):
		return http.StatusBadGateway
	case errors.As(err, &le):
		switch le.Kind {
		case triage.LLMTimeout:
			return http.StatusGatewayTimeout
		case triage.LLMRateLimited:
			return http.StatusTooManyRequests
		default:
			return http.StatusBadGateway
		}
	default:
		return http.StatusBadGateway
	}
}
