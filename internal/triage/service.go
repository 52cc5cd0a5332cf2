package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/intake/internal/classify"
)

// Notifier is told about sessions that resolved to a human hand-off.
type Notifier interface {
	Send(ctx context.Context, rec *Record) error
}

// Service is the business boundary for triage conversations. It owns the
// session table and guarantees at most one in-flight event per session.
type Service struct {
	store    Store
	engine   *Engine
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
	now      func() time.Time

	mu   sync.Mutex
	busy map[string]struct{}

	wg sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics records service-level metrics on m.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithNotifier sends referral hand-offs to n.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a new triage service.
func NewService(store Store, engine *Engine, logger log.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Service{
		store:  store,
		engine: engine,
		logger: logger,
		now:    time.Now,
		busy:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a fresh session and stores it.
func (s *Service) Start(ctx context.Context) (*Record, Directive, error) {
	now := s.now().UTC()
	rec := &Record{
		ID:        ulid.Make().String(),
		Session:   NewSession(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, Directive{}, fmt.Errorf("store session: %w", err)
	}

	s.logger.Info(ctx, "session started", "session_id", rec.ID)
	return rec, Directive{Kind: DirectiveAskQuestion}, nil
}

// Get retrieves a session by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, bool, error) {
	return s.store.Get(ctx, id)
}

// Busy reports whether an event is being processed for id.
func (s *Service) Busy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.busy[id]
	return ok
}

// MaxAttempts is the clarification bound sessions are held to.
func (s *Service) MaxAttempts() int { return s.engine.Policy().MaxAttempts }

// Handle applies ev to session id and persists the result. Domain failures
// (input, transition, LLM, validation) return the record and the show_error
// directive together with the error. ErrSessionBusy and ErrSessionNotFound
// return a nil record.
func (s *Service) Handle(ctx context.Context, id string, ev Event) (*Record, Directive, error) {
	if !s.acquire(id) {
		s.countEvent(ev.Kind, "busy")
		if s.metrics != nil {
			s.metrics.BusyRejected.Inc()
		}
		return nil, Directive{}, ErrSessionBusy
	}
	defer s.release(id)

	L := s.logger.With("session_id", id, "event", ev.Kind)

	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		s.countEvent(ev.Kind, "store_error")
		return nil, Directive{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		s.countEvent(ev.Kind, "not_found")
		return nil, Directive{}, ErrSessionNotFound
	}

	prevPhase := rec.Session.Phase
	next, dir, applyErr := s.engine.Apply(ctx, rec.Session, ev)
	s.countEvent(ev.Kind, eventResult(applyErr))

	if persists(applyErr) {
		rec.Session = next
		rec.UpdatedAt = s.now().UTC()
		found, err := s.store.Update(ctx, rec)
		if err != nil {
			s.countEvent(ev.Kind, "store_error")
			return nil, Directive{}, fmt.Errorf("store session: %w", err)
		}
		// abandoned or swept while the event was in flight
		if !found {
			L.Info(ctx, "session removed during event, result dropped", "phase", prevPhase)
			return nil, Directive{}, ErrSessionNotFound
		}
	}

	if applyErr != nil {
		L.Warn(ctx, "event failed", "phase", prevPhase, "error", applyErr.Error())
	} else {
		L.Info(ctx, "event applied", "phase", prevPhase, "next_phase", next.Phase, "directive", dir.Kind)
	}

	if prevPhase != PhaseResolved && rec.Session.Phase == PhaseResolved && rec.Session.Outcome.IsReferral() {
		s.notify(ctx, rec)
	}

	return rec, dir, applyErr
}

// Abandon deletes a session. Abandoning an unknown session is not an error.
func (s *Service) Abandon(ctx context.Context, id string) error {
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if removed {
		s.logger.Info(ctx, "session abandoned", "session_id", id)
	}
	return nil
}

// SweepIdle removes sessions idle for longer than maxIdle.
func (s *Service) SweepIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	n, err := s.store.DeleteIdle(ctx, s.now().Add(-maxIdle))
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SessionsSwept.Add(float64(n))
	}
	if n > 0 {
		s.logger.Info(ctx, "idle sessions swept", "count", n)
	}
	return n, nil
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SweepIdle(ctx, maxIdle); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error(ctx, err, "session sweep failed")
			}
		}
	}
}

// Wait blocks until in-flight notifications finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.busy[id]; ok {
		return false
	}
	s.busy[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.busy, id)
	s.mu.Unlock()
}

func (s *Service) notify(ctx context.Context, rec *Record) {
	if s.notifier == nil {
		return
	}

	cp := rec.Clone()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.WithoutCancel(ctx)
		if err := s.notifier.Send(ctx, cp); err != nil {
			s.logger.Error(ctx, err, "referral notification failed", "session_id", cp.ID)
		}
	}()
}

func (s *Service) countEvent(kind EventKind, result string) {
	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues(string(kind), result).Inc()
	}
}

// persists reports whether the session must be written back after Apply.
// Only success and validation failure change durable state.
func persists(err error) bool {
	if err == nil {
		return true
	}
	var ve *classify.ValidationError
	return errors.As(err, &ve)
}
