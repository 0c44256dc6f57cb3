package models

import (
	"fmt"

	"github.com/campus-genai/campusrag/pkg/rbac"
)

// Document is one source file admitted by the role map: extracted
// text plus the audiences allowed to read it.
type Document struct {
	ID      string // stable name, the filename stem
	Source  string // original filename, e.g. "fees.docx"
	Path    string
	Content string
	Roles   []rbac.Role
}

// Chunk is one window of a document's text, ordered by Index within
// the document. Chunks inherit the document's role set verbatim.
type Chunk struct {
	DocumentID string
	Index      int
	Content    string
}

// RecordID is the deterministic index id for a chunk. Re-ingesting an
// unchanged document produces the same ids, so writes land as upserts
// instead of duplicates.
func (c Chunk) RecordID() string {
	return fmt.Sprintf("%s_%d", c.DocumentID, c.Index)
}
