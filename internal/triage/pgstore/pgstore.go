// Package pgstore provides a PostgreSQL implementation of triage.Store.
// Rows exist only while a conversation is live; abandoned and idle sessions
// are deleted, not archived.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/intake/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/intake/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists live sessions in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Get retrieves a session by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Record, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	var (
		r     triage.Record
		state []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, state, created_at, updated_at FROM intake_sessions WHERE id = $1`, id,
	).Scan(&r.ID, &state, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, recordErr(span, fmt.Errorf("select session: %w", err))
	}

	if err := json.Unmarshal(state, &r.Session); err != nil {
		return nil, false, recordErr(span, fmt.Errorf("unmarshal session %s: %w", id, err))
	}
	if r.Session.Clarifications == nil {
		r.Session.Clarifications = []string{}
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()

	return &r, true, nil
}

// Put inserts or replaces a session.
func (s *Store) Put(ctx context.Context, r *triage.Record) error {
	ctx, span := startSpan(ctx, "pgstore.Put", "UPSERT")
	defer span.End()

	state, err := json.Marshal(r.Session)
	if err != nil {
		return recordErr(span, fmt.Errorf("marshal session %s: %w", r.ID, err))
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO intake_sessions (id, phase, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
			phase      = EXCLUDED.phase,
			state      = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`,
		r.ID, string(r.Session.Phase), state, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return recordErr(span, fmt.Errorf("upsert session: %w", err))
	}
	return nil
}

// Update replaces an existing session. It reports false when the row was
// deleted in the meantime.
func (s *Store) Update(ctx context.Context, r *triage.Record) (bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Update", "UPDATE")
	defer span.End()

	state, err := json.Marshal(r.Session)
	if err != nil {
		return false, recordErr(span, fmt.Errorf("marshal session %s: %w", r.ID, err))
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE intake_sessions SET phase = $2, state = $3, updated_at = $4 WHERE id = $1`,
		r.ID, string(r.Session.Phase), state, r.UpdatedAt,
	)
	if err != nil {
		return false, recordErr(span, fmt.Errorf("update session: %w", err))
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a session, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Delete", "DELETE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM intake_sessions WHERE id = $1`, id)
	if err != nil {
		return false, recordErr(span, fmt.Errorf("delete session: %w", err))
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteIdle removes sessions last updated before the cutoff.
func (s *Store) DeleteIdle(ctx context.Context, before time.Time) (int, error) {
	ctx, span := startSpan(ctx, "pgstore.DeleteIdle", "DELETE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM intake_sessions WHERE updated_at < $1`, before)
	if err != nil {
		return 0, recordErr(span, fmt.Errorf("delete idle sessions: %w", err))
	}
	n := int(tag.RowsAffected())
	span.SetAttributes(attribute.Int("db.rows", n))
	return n, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
