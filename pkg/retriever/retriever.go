// Package retriever implements role-constrained semantic retrieval:
// embed the query, search the index restricted to the caller's
// accessible roles, return ranked fragments. No fragment outside the
// caller's role visibility ever leaves this package.
package retriever

import (
	"context"
	"fmt"

	"github.com/campus-genai/campusrag/internal/logger"
	"github.com/campus-genai/campusrag/internal/models"
	"github.com/campus-genai/campusrag/pkg/rbac"
	"github.com/campus-genai/campusrag/pkg/store"
)

// Embedder is the slice of the embedding client retrieval needs. The
// model name is compared against the index meta at construction.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type Config struct {
	Limit      int
	Oversample int
}

// Retriever answers "which fragments may this role see for this
// query". The filtering tier is fixed at construction from the
// index's declared capability: native metadata filtering when the
// index supports it, otherwise oversampled search with filtering
// here. A native-tier failure falls back to the manual tier for that
// query; unfiltered results are never returned on any path.
type Retriever struct {
	index     store.Index
	embedder  Embedder
	hierarchy rbac.Hierarchy
	config    Config
	log       *logger.Logger
}

func New(ctx context.Context, index store.Index, embedder Embedder, hierarchy rbac.Hierarchy, config Config, log *logger.Logger) (*Retriever, error) {
	if config.Limit == 0 {
		config.Limit = 5
	}
	if config.Oversample == 0 {
		config.Oversample = 5
	}
	if log == nil {
		log = logger.Nop()
	}
	if err := hierarchy.Validate(); err != nil {
		return nil, err
	}

	// An index written with a different embedding model would rank by
	// meaningless distances. Refuse to construct instead.
	meta, err := index.Meta(ctx)
	if err != nil {
		return nil, err
	}
	if meta.EmbedModel != "" && meta.EmbedModel != embedder.Model() {
		return nil, fmt.Errorf("%w: index built with %q, embedder is %q",
			store.ErrModelMismatch, meta.EmbedModel, embedder.Model())
	}

	return &Retriever{
		index:     index,
		embedder:  embedder,
		hierarchy: hierarchy,
		config:    config,
		log:       log.With("component", "retriever"),
	}, nil
}

// Retrieve returns up to limit fragments visible to role, most
// similar first. A limit <= 0 uses the configured default. An empty
// result is a legitimate outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, role rbac.Role, limit int) ([]models.Match, error) {
	if !rbac.Valid(role) {
		return nil, fmt.Errorf("%w: %q", rbac.ErrInvalidRole, role)
	}
	if limit <= 0 {
		limit = r.config.Limit
	}

	allowed := r.hierarchy.Accessible(role)

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if r.index.SupportsRoleFilter() {
		matches, err := r.index.SearchRoles(ctx, vector, allowed, limit)
		if err == nil {
			if matches == nil {
				matches = []models.Match{}
			}
			return matches, nil
		}
		// The manual tier filters everything itself, so falling
		// through cannot widen visibility.
		r.log.Warn("native role filter failed, falling back to manual filtering",
			"role", role, "error", err)
	}

	return r.manualFilter(ctx, vector, allowed, limit)
}

// manualFilter ranks an oversampled candidate pool by similarity
// alone, then keeps only records whose role set intersects allowed.
func (r *Retriever) manualFilter(ctx context.Context, vector []float32, allowed []rbac.Role, limit int) ([]models.Match, error) {
	candidates, err := r.index.Search(ctx, vector, limit*r.config.Oversample)
	if err != nil {
		return nil, err
	}

	matches := make([]models.Match, 0, limit)
	for _, m := range candidates {
		if !rbac.Intersects(m.Roles, allowed) {
			continue
		}
		matches = append(matches, m)
		if len(matches) == limit {
			break
		}
	}
	return matches, nil
}

// AccessSummary reports how many indexed chunks each of the role's
// accessible audiences has. Zero-count audiences are included so the
// caller can show the full visibility of the role.
func (r *Retriever) AccessSummary(ctx context.Context, role rbac.Role) (map[rbac.Role]int64, error) {
	if !rbac.Valid(role) {
		return nil, fmt.Errorf("%w: %q", rbac.ErrInvalidRole, role)
	}

	counts, err := r.index.CountByRole(ctx)
	if err != nil {
		return nil, err
	}

	summary := make(map[rbac.Role]int64)
	for _, allowed := range r.hierarchy.Accessible(role) {
		summary[allowed] = counts[allowed]
	}
	return summary, nil
}
