package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/campus-genai/campusrag/internal/models"
	"github.com/campus-genai/campusrag/pkg/rbac"
)

// MemoryIndex is a brute-force in-memory Index. It reports no native
// role filtering, so retrieval against it always runs the manual
// oversample-and-filter tier. Used for small deployments without
// Postgres and as the fixture index in tests.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]models.Record
	meta    models.IndexMeta

	ingest sync.Mutex
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]models.Record)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, records []models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		m.records[rec.ID] = rec
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, embedding []float32, limit int) ([]models.Match, error) {
	return m.search(embedding, nil, limit), nil
}

// SearchRoles filters and ranks correctly even though the index does
// not advertise the capability; the flag signals preference, not
// inability, and keeps the manual tier on the production path.
func (m *MemoryIndex) SearchRoles(ctx context.Context, embedding []float32, roles []rbac.Role, limit int) ([]models.Match, error) {
	return m.search(embedding, roles, limit), nil
}

func (m *MemoryIndex) search(embedding []float32, roles []rbac.Role, limit int) []models.Match {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]models.Match, 0, len(m.records))
	for _, rec := range m.records {
		if roles != nil && !rbac.Intersects(rec.Roles, roles) {
			continue
		}
		match := models.Match{Record: rec, Score: cosineSimilarity(embedding, rec.Embedding)}
		match.Embedding = nil
		matches = append(matches, match)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func (m *MemoryIndex) SupportsRoleFilter() bool {
	return false
}

func (m *MemoryIndex) Meta(ctx context.Context) (models.IndexMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta, nil
}

func (m *MemoryIndex) SetMeta(ctx context.Context, meta models.IndexMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta = meta
	return nil
}

func (m *MemoryIndex) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func (m *MemoryIndex) CountByRole(ctx context.Context) (map[rbac.Role]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[rbac.Role]int64)
	for _, rec := range m.records {
		for _, role := range rec.Roles {
			counts[role]++
		}
	}
	return counts, nil
}

func (m *MemoryIndex) AcquireIngestLock(ctx context.Context) (func(), error) {
	if !m.ingest.TryLock() {
		return nil, ErrIngestActive
	}
	return m.ingest.Unlock, nil
}

func (m *MemoryIndex) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]models.Record)
	m.meta = models.IndexMeta{}
	return nil
}

func (m *MemoryIndex) Close() {}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
