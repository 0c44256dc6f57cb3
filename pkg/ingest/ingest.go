// Package ingest builds the vector index from a documents directory.
//
// Each file is admitted only if the role map names it, extracted to
// plain text, split into overlapping chunks and embedded in batches.
// Chunk ids are deterministic, so re-running ingestion over unchanged
// documents rewrites the same rows instead of growing the index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/campus-genai/campusrag/internal/logger"
	"github.com/campus-genai/campusrag/internal/models"
	"github.com/campus-genai/campusrag/pkg/chunker"
	"github.com/campus-genai/campusrag/pkg/extract"
	"github.com/campus-genai/campusrag/pkg/rbac"
	"github.com/campus-genai/campusrag/pkg/rolemap"
	"github.com/campus-genai/campusrag/pkg/store"
)

// Embedder turns chunk texts into vectors. Model names the embedding
// model so the pipeline can refuse an index written with a different
// one.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Config tunes how the pipeline talks to the embedding service.
type Config struct {
	BatchSize int     // texts per embedding request
	Rate      float64 // embedding requests per second, 0 means unthrottled
}

// Pipeline ingests a directory of documents into a vector index.
type Pipeline struct {
	index      store.Index
	embedder   Embedder
	roles      *rolemap.Map
	chunker    *chunker.Chunker
	limiter    *rate.Limiter
	config     Config
	log        *logger.Logger
	metaPinned bool

	// Progress, when set, is called once per admitted document before
	// it is processed.
	Progress func(source string)
}

// New creates an ingestion pipeline. A nil log disables logging.
func New(index store.Index, embedder Embedder, roles *rolemap.Map, ch *chunker.Chunker, config Config, log *logger.Logger) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 16
	}
	if log == nil {
		log = logger.Nop()
	}
	var limiter *rate.Limiter
	if config.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.Rate), 1)
	}
	return &Pipeline{
		index:    index,
		embedder: embedder,
		roles:    roles,
		chunker:  ch,
		limiter:  limiter,
		config:   config,
		log:      log,
	}
}

// Run ingests every admitted document under dir and reports what was
// written. The run holds the index's single-writer lock for its whole
// duration; a concurrent run fails with store.ErrIngestActive.
//
// Per-document problems are recorded in the report and do not stop the
// run. Only lock acquisition, an embedding model mismatch, an unreadable
// directory or a cancelled context abort it.
func (p *Pipeline) Run(ctx context.Context, dir string) (models.IngestReport, error) {
	report := models.IngestReport{ByRole: map[rbac.Role]int64{}}

	release, err := p.index.AcquireIngestLock(ctx)
	if err != nil {
		return report, err
	}
	defer release()

	if err := p.checkModel(ctx); err != nil {
		return report, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return report, fmt.Errorf("failed to read documents directory: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		source := entry.Name()

		roles, ok := p.roles.Lookup(source)
		if !ok {
			p.log.Warn("document not listed in role map, skipping", "source", source)
			report.Skipped = append(report.Skipped, source)
			continue
		}

		if p.Progress != nil {
			p.Progress(source)
		}

		doc, err := p.loadDocument(filepath.Join(dir, source), source, roles)
		if err != nil {
			if errors.Is(err, extract.ErrUnsupported) {
				p.log.Warn("unsupported document format, skipping", "source", source)
				report.Skipped = append(report.Skipped, source)
				continue
			}
			p.log.Error("failed to load document", "source", source, "error", err)
			report.Failures = append(report.Failures, models.IngestFailure{Source: source, Reason: err.Error()})
			continue
		}
		if doc.Content == "" {
			p.log.Warn("document produced no text, skipping", "source", source)
			report.Skipped = append(report.Skipped, source)
			continue
		}

		written, err := p.indexDocument(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return report, err
			}
			p.log.Error("failed to index document", "source", source, "error", err)
			report.Failures = append(report.Failures, models.IngestFailure{Source: source, Reason: err.Error()})
			continue
		}

		p.log.Info("document indexed", "source", source, "chunks", written, "roles", rbac.Strings(doc.Roles))
		report.Processed = append(report.Processed, source)
		report.ChunksWritten += written
	}

	byRole, err := p.index.CountByRole(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to count indexed chunks: %w", err)
	}
	report.ByRole = byRole
	return report, nil
}

func (p *Pipeline) checkModel(ctx context.Context) error {
	meta, err := p.index.Meta(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index meta: %w", err)
	}
	if meta.EmbedModel != "" && meta.EmbedModel != p.embedder.Model() {
		return fmt.Errorf("%w: index built with %q, embedder is %q; reset the index before re-ingesting",
			store.ErrModelMismatch, meta.EmbedModel, p.embedder.Model())
	}
	return nil
}

func (p *Pipeline) loadDocument(path, source string, roles []rbac.Role) (models.Document, error) {
	text, err := extract.Text(path)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{
		ID:      strings.TrimSuffix(source, filepath.Ext(source)),
		Source:  source,
		Path:    path,
		Content: text,
		Roles:   roles,
	}, nil
}

func (p *Pipeline) indexDocument(ctx context.Context, doc models.Document) (int, error) {
	contents := p.chunker.Split(doc.Content)
	if len(contents) == 0 {
		return 0, nil
	}

	embeddings, err := p.embedBatches(ctx, contents)
	if err != nil {
		return 0, err
	}

	records := make([]models.Record, len(contents))
	for i, content := range contents {
		chunk := models.Chunk{DocumentID: doc.ID, Index: i, Content: content}
		records[i] = models.Record{
			ID:         chunk.RecordID(),
			Source:     doc.Source,
			ChunkIndex: i,
			Content:    content,
			Roles:      doc.Roles,
			Embedding:  embeddings[i],
		}
	}

	if err := p.index.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("failed to write records: %w", err)
	}

	if err := p.pinMeta(ctx, len(embeddings[0])); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (p *Pipeline) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.config.BatchSize {
		end := start + p.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		batch, err := p.embedder.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

// pinMeta records the embedding space after the first successful write
// so later runs and retrievers can verify they use the same model.
func (p *Pipeline) pinMeta(ctx context.Context, dimension int) error {
	if p.metaPinned {
		return nil
	}
	meta, err := p.index.Meta(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index meta: %w", err)
	}
	if meta.EmbedModel == "" {
		meta = models.IndexMeta{EmbedModel: p.embedder.Model(), Dimension: dimension}
		if err := p.index.SetMeta(ctx, meta); err != nil {
			return fmt.Errorf("failed to record index meta: %w", err)
		}
	}
	p.metaPinned = true
	return nil
}
