package triageapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/linnemanlabs/intake/internal/classify"
	"github.com/linnemanlabs/intake/internal/triage"
)

// sessionView is the wire form of a stored session.
type sessionView struct {
	ID                 string                 `json:"id"`
	Phase              triage.Phase           `json:"phase"`
	OriginalQuestion   string                 `json:"original_question"`
	Summary            string                 `json:"summary"`
	SummaryDecision    triage.SummaryDecision `json:"summary_decision"`
	Clarifications     []string               `json:"clarifications"`
	LastClassification *classify.Result       `json:"last_classification"`
	LastRawReply       string                 `json:"last_raw_reply,omitempty"`
	AttemptsUsed       int                    `json:"attempts_used"`
	MaxAttempts        int                    `json:"max_attempts"`
	Outcome            *triage.Outcome        `json:"outcome"`
	Busy               bool                   `json:"busy"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

func (a *API) view(rec *triage.Record) sessionView {
	s := rec.Session
	clar := s.Clarifications
	if clar == nil {
		clar = []string{}
	}
	return sessionView{
		ID:                 rec.ID,
		Phase:              s.Phase,
		OriginalQuestion:   s.OriginalQuestion,
		Summary:            s.Summary,
		SummaryDecision:    s.SummaryDecision,
		Clarifications:     clar,
		LastClassification: s.LastClassification,
		LastRawReply:       s.LastRawReply,
		AttemptsUsed:       s.AttemptsUsed,
		MaxAttempts:        a.svc.MaxAttempts(),
		Outcome:            s.Outcome,
		Busy:               a.svc.Busy(rec.ID),
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
