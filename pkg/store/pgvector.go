package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/campus-genai/campusrag/internal/models"
	"github.com/campus-genai/campusrag/pkg/rbac"
)

type PgConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// PgIndex stores records in Postgres with pgvector for similarity
// search. Role visibility lives in a single TEXT[] column, which both
// the native filter and the manual fallback read; there is no second
// serialization of roles anywhere.
type PgIndex struct {
	config     PgConfig
	pool       *pgxpool.Pool
	lockKey    int64
	roleFilter bool
}

func NewPgIndex(ctx context.Context, config PgConfig) (*PgIndex, error) {
	if config.TableName == "" {
		config.TableName = "campus_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 384
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	idx := &PgIndex{
		config:  config,
		pool:    pool,
		lockKey: lockKeyFor(config.TableName),
	}

	if err := idx.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Decide the filter capability once, here, instead of treating
	// per-query errors as a signal. A throwaway filtered query against
	// the live schema either works or it does not.
	probe := make([]float32, config.VectorDim)
	if _, err := idx.SearchRoles(ctx, probe, rbac.Roles(), 1); err == nil {
		idx.roleFilter = true
	}

	return idx, nil
}

func (idx *PgIndex) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := idx.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			roles TEXT[] NOT NULL,
			embedding vector(%d)
		)`, idx.config.TableName, idx.config.VectorDim)

	_, err = idx.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		idx.config.TableName, idx.config.TableName)

	_, err = idx.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	createMeta := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			embed_model TEXT NOT NULL,
			dimension INTEGER NOT NULL
		)`, idx.metaTable())

	_, err = idx.pool.Exec(ctx, createMeta)
	if err != nil {
		return fmt.Errorf("failed to create meta table: %v", err)
	}

	return nil
}

func (idx *PgIndex) metaTable() string {
	return idx.config.TableName + "_meta"
}

func (idx *PgIndex) Upsert(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := idx.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, source, chunk_index, content, roles, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			chunk_index = EXCLUDED.chunk_index,
			content = EXCLUDED.content,
			roles = EXCLUDED.roles,
			embedding = EXCLUDED.embedding`,
		idx.config.TableName)

	for _, rec := range records {
		_, err := tx.Exec(ctx, stmt,
			rec.ID,
			rec.Source,
			rec.ChunkIndex,
			sanitizeUTF8(rec.Content),
			rbac.Strings(rec.Roles),
			pgvector.NewVector(rec.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (idx *PgIndex) Search(ctx context.Context, embedding []float32, limit int) ([]models.Match, error) {
	query := fmt.Sprintf(`
		SELECT id, source, chunk_index, content, roles, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		idx.config.TableName)

	rows, err := idx.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	return scanMatches(rows)
}

func (idx *PgIndex) SearchRoles(ctx context.Context, embedding []float32, roles []rbac.Role, limit int) ([]models.Match, error) {
	query := fmt.Sprintf(`
		SELECT id, source, chunk_index, content, roles, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE roles && $2::text[]
		ORDER BY embedding <=> $1
		LIMIT $3`,
		idx.config.TableName)

	rows, err := idx.pool.Query(ctx, query, pgvector.NewVector(embedding), rbac.Strings(roles), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	return scanMatches(rows)
}

func (idx *PgIndex) SupportsRoleFilter() bool {
	return idx.roleFilter
}

func (idx *PgIndex) Meta(ctx context.Context) (models.IndexMeta, error) {
	var meta models.IndexMeta
	query := fmt.Sprintf("SELECT embed_model, dimension FROM %s WHERE id = 1", idx.metaTable())

	err := idx.pool.QueryRow(ctx, query).Scan(&meta.EmbedModel, &meta.Dimension)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.IndexMeta{}, nil
	}
	if err != nil {
		return models.IndexMeta{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return meta, nil
}

func (idx *PgIndex) SetMeta(ctx context.Context, meta models.IndexMeta) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, embed_model, dimension)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			embed_model = EXCLUDED.embed_model,
			dimension = EXCLUDED.dimension`,
		idx.metaTable())

	if _, err := idx.pool.Exec(ctx, stmt, meta.EmbedModel, meta.Dimension); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (idx *PgIndex) Count(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", idx.config.TableName)
	if err := idx.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

func (idx *PgIndex) CountByRole(ctx context.Context) (map[rbac.Role]int64, error) {
	query := fmt.Sprintf(`
		SELECT unnest(roles) AS role, COUNT(*)
		FROM %s
		GROUP BY role`,
		idx.config.TableName)

	rows, err := idx.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	counts := make(map[rbac.Role]int64)
	for rows.Next() {
		var (
			role  string
			count int64
		)
		if err := rows.Scan(&role, &count); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		counts[rbac.Role(role)] = count
	}
	return counts, rows.Err()
}

// AcquireIngestLock takes a Postgres advisory lock on a dedicated
// connection, so concurrent ingestion runs against the same table
// exclude each other across processes.
func (idx *PgIndex) AcquireIngestLock(ctx context.Context) (func(), error) {
	conn, err := idx.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", idx.lockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !locked {
		conn.Release()
		return nil, ErrIngestActive
	}

	release := func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", idx.lockKey)
		conn.Release()
	}
	return release, nil
}

func (idx *PgIndex) Reset(ctx context.Context) error {
	if _, err := idx.pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", idx.config.TableName)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := idx.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", idx.metaTable())); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (idx *PgIndex) Close() {
	if idx.pool != nil {
		idx.pool.Close()
	}
}

func scanMatches(rows pgx.Rows) ([]models.Match, error) {
	var matches []models.Match
	for rows.Next() {
		var (
			m     models.Match
			roles []string
			score float64
		)
		err := rows.Scan(&m.ID, &m.Source, &m.ChunkIndex, &m.Content, &roles, &score)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		m.Roles = make([]rbac.Role, len(roles))
		for i, r := range roles {
			m.Roles[i] = rbac.Role(r)
		}
		m.Score = float32(score)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func lockKeyFor(table string) int64 {
	h := fnv.New64a()
	h.Write([]byte("campusrag_ingest:" + table))
	return int64(h.Sum64())
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
