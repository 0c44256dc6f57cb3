// Package rolemap loads the static table assigning role visibility to
// source documents. Documents absent from the table are never
// ingested, so the table is the single audit point for who can see
// what.
package rolemap

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/campus-genai/campusrag/pkg/rbac"
)

var ErrEmptyRoles = errors.New("empty role list")

// Map holds the document name to role-visibility assignments.
type Map struct {
	entries map[string][]rbac.Role
}

// Load reads and validates a role map YAML file. The file is a flat
// mapping from document filename to a list of role names:
//
//	fees.docx: [parent, dean]
//	syllabus.pdf: [student, dean]
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading role map: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("role map %s: %w", path, err)
	}
	return m, nil
}

// Parse validates raw YAML role map content. Unknown roles and empty
// role lists are configuration errors; an unreadable table must stop
// ingestion before any document is indexed.
func Parse(data []byte) (*Map, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing role map: %w", err)
	}

	entries := make(map[string][]rbac.Role, len(raw))
	for source, names := range raw {
		if len(names) == 0 {
			return nil, fmt.Errorf("document %q: %w", source, ErrEmptyRoles)
		}
		roles, err := rbac.FromStrings(names)
		if err != nil {
			return nil, fmt.Errorf("document %q: %w", source, err)
		}
		entries[source] = roles
	}
	return &Map{entries: entries}, nil
}

// Lookup returns the role set assigned to a document filename. The
// second return is false when the document is not in the table.
func (m *Map) Lookup(source string) ([]rbac.Role, bool) {
	roles, ok := m.entries[source]
	return roles, ok
}

func (m *Map) Len() int {
	return len(m.entries)
}

// Sources lists the mapped document names in sorted order.
func (m *Map) Sources() []string {
	out := make([]string, 0, len(m.entries))
	for source := range m.entries {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}
