package models

import "github.com/campus-genai/campusrag/pkg/rbac"

// Record is the persisted unit of the vector index: one embedded
// chunk with its inherited role set, keyed by a deterministic id.
type Record struct {
	ID         string
	Source     string
	ChunkIndex int
	Content    string
	Roles      []rbac.Role
	Embedding  []float32
}

// Match is a record returned by a similarity search. Score is cosine
// similarity, higher is closer.
type Match struct {
	Record
	Score float32
}

// IndexMeta pins the embedding space an index was written with. A
// retriever whose embedder disagrees with it must refuse to serve.
type IndexMeta struct {
	EmbedModel string
	Dimension  int
}

// IngestFailure records one document that could not be ingested.
type IngestFailure struct {
	Source string
	Reason string
}

// IngestReport summarizes a single ingestion run.
type IngestReport struct {
	Processed     []string
	Skipped       []string
	Failures      []IngestFailure
	ChunksWritten int
	ByRole        map[rbac.Role]int64
}
