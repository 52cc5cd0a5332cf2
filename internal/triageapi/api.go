// Package triageapi exposes triage conversations over a JSON HTTP API.
package triageapi

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/intake/internal/taxonomy"
	"github.com/linnemanlabs/intake/internal/triage"
)

// TriageService defines the business operations triageapi needs.
type TriageService interface {
	Start(ctx context.Context) (*triage.Record, triage.Directive, error)
	Get(ctx context.Context, id string) (*triage.Record, bool, error)
	Handle(ctx context.Context, id string, ev triage.Event) (*triage.Record, triage.Directive, error)
	Abandon(ctx context.Context, id string) error
	Busy(id string) bool
	MaxAttempts() int
}

// Catalog lists the classifiable types.
type Catalog interface {
	AllTypes() []taxonomy.Entry
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	svc     TriageService
	catalog Catalog
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, catalog Catalog) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if catalog == nil {
		panic(xerrors.New("taxonomy is required"))
	}
	return &API{
		logger:  logger,
		svc:     svc,
		catalog: catalog,
	}
}

// RegisterRoutes attaches API endpoints to the router. Extra middleware
// (auth) wraps only the API routes, not whatever else r serves.
func (a *API) RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw...)
		r.Post("/sessions", a.handleStartSession)
		r.Get("/sessions/{id}", a.handleGetSession)
		r.Delete("/sessions/{id}", a.handleAbandonSession)
		r.Post("/sessions/{id}/events", a.handleEvent)
		r.Get("/taxonomy", a.handleTaxonomy)
	})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("intake.session.id", id))

	rec, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get session", "session_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(attribute.String("intake.session.phase", string(rec.Session.Phase)))

	writeJSON(w, http.StatusOK, a.view(rec))
}

func (a *API) handleAbandonSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("intake.session.id", id))

	if err := a.svc.Abandon(r.Context(), id); err != nil {
		a.logger.Error(r.Context(), err, "failed to abandon session", "session_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTaxonomy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"types": a.catalog.AllTypes(),
	})
}
