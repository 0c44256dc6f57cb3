// Package chunker splits document text into fixed-size overlapping
// windows for embedding.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrChunkSize = errors.New("chunk size must be positive")
	ErrOverlap   = errors.New("chunk overlap must be non-negative and smaller than chunk size")
)

type Chunker struct {
	size    int
	overlap int
}

// New validates the window geometry up front. An overlap at or above
// the size would never advance, so it is rejected here rather than
// looping forever at ingest time.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrChunkSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size %d, overlap %d", ErrOverlap, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split slices text into rune windows of at most Size runes, each
// window starting Size-Overlap runes after the previous one. The last
// window may be shorter. Whitespace-only input yields no chunks.
// Overlap is measured in runes, not tokens, so the output is exactly
// reproducible for a given text and geometry.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	step := c.size - c.overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
