// Package extract pulls plain text out of the document formats the
// portal publishes: docx, pdf, html and plain text files.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrUnsupported = errors.New("unsupported document format")

// Text extracts the plain text of the file at path, dispatching on
// the file extension.
func Text(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return fromDocx(path)
	case ".pdf":
		return fromPDF(path)
	case ".html", ".htm":
		return fromHTML(path)
	case ".txt", ".md":
		return fromPlain(path)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))
	}
}

// Supported reports whether Text knows how to handle the file.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx", ".pdf", ".html", ".htm", ".txt", ".md":
		return true
	}
	return false
}

func fromPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("error reading file: %w", err)
	}
	return normalize(string(data)), nil
}

// normalize collapses runs of whitespace within each line and drops
// blank lines, keeping one newline between paragraphs.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
