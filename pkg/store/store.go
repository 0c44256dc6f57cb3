// Package store provides the vector index backing ingestion and
// retrieval, with a Postgres/pgvector implementation and an in-memory
// one.
package store

import (
	"context"
	"errors"

	"github.com/campus-genai/campusrag/internal/models"
	"github.com/campus-genai/campusrag/pkg/rbac"
)

var (
	// ErrUnavailable wraps index failures so callers can render a
	// service-unavailable message instead of driver internals.
	ErrUnavailable = errors.New("vector index unavailable")

	// ErrModelMismatch reports an index written with a different
	// embedding model than the one now configured. Scores between
	// mixed embedding spaces are meaningless, so both ingestion and
	// retrieval refuse to start rather than serve garbage ranking.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrIngestActive reports that another ingestion run holds the
	// single-writer lock.
	ErrIngestActive = errors.New("another ingestion run is active")
)

// Index is the vector store contract shared by ingestion and
// retrieval. SupportsRoleFilter is decided once at construction;
// callers pick the retrieval tier from it instead of probing with
// per-query failures.
type Index interface {
	// Upsert writes records keyed by their deterministic ids,
	// replacing existing rows with the same id.
	Upsert(ctx context.Context, records []models.Record) error

	// Search returns the nearest records by cosine similarity with no
	// role constraint. Callers are responsible for filtering.
	Search(ctx context.Context, embedding []float32, limit int) ([]models.Match, error)

	// SearchRoles returns the nearest records whose role set
	// intersects roles, filtered natively by the index.
	SearchRoles(ctx context.Context, embedding []float32, roles []rbac.Role, limit int) ([]models.Match, error)

	// SupportsRoleFilter reports whether SearchRoles is the preferred
	// path for this index.
	SupportsRoleFilter() bool

	// Meta returns the recorded embedding space; the zero value means
	// nothing has been ingested yet.
	Meta(ctx context.Context) (models.IndexMeta, error)
	SetMeta(ctx context.Context, meta models.IndexMeta) error

	Count(ctx context.Context) (int64, error)
	CountByRole(ctx context.Context) (map[rbac.Role]int64, error)

	// AcquireIngestLock guards the single-writer ingestion phase. It
	// fails with ErrIngestActive when another run holds the lock; the
	// returned function releases it.
	AcquireIngestLock(ctx context.Context) (release func(), err error)

	// Reset destroys all indexed content and the recorded meta.
	Reset(ctx context.Context) error

	Close()
}
