package triage

import (
	"context"
	"time"
)

// Store is the persistence interface for live sessions. Implementations
// return copies: mutating a returned Record never affects stored state.
type Store interface {
	Get(ctx context.Context, id string) (*Record, bool, error)
	Put(ctx context.Context, rec *Record) error

	// Update replaces an existing session. It writes nothing and returns
	// false when id is no longer stored.
	Update(ctx context.Context, rec *Record) (bool, error)

	Delete(ctx context.Context, id string) (bool, error)

	// DeleteIdle removes sessions not updated since before and returns how many were removed.
	DeleteIdle(ctx context.Context, before time.Time) (int, error)
}
