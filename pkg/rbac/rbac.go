// Package rbac defines the portal roles and the hierarchy that maps a
// role to the document audiences it is allowed to read.
package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies one audience of portal users.
type Role string

const (
	Parent    Role = "parent"
	Student   Role = "student"
	Professor Role = "professor"
	Dean      Role = "dean"
)

var ErrInvalidRole = errors.New("invalid role")

// all is the closed role enumeration. Adding a portal role means
// adding a constant and listing it here; nothing else changes.
var all = []Role{Parent, Student, Professor, Dean}

// Roles returns the closed role set in declaration order.
func Roles() []Role {
	out := make([]Role, len(all))
	copy(out, all)
	return out
}

// Valid reports whether r is a member of the role enumeration.
func Valid(r Role) bool {
	for _, known := range all {
		if r == known {
			return true
		}
	}
	return false
}

// Parse normalizes a user-supplied role string and validates it
// against the enumeration.
func Parse(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !Valid(r) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

var descriptions = map[Role]string{
	Parent:    "College overview, placements, courses offered, fees structure",
	Student:   "Course syllabus, placement opportunities, college events, exam schedule",
	Professor: "Academic policies, leave application, event coordination, exam evaluation",
	Dean:      "All information (complete access)",
}

// Description summarizes what a role can typically access, for login
// screens and the chat info command.
func Description(r Role) string {
	if d, ok := descriptions[r]; ok {
		return d
	}
	return "Unknown role"
}

// Hierarchy maps a role to the additional roles whose documents it may
// read. Roles absent from the map see only their own documents.
type Hierarchy map[Role][]Role

// DefaultHierarchy grants the dean every audience and leaves the other
// roles scoped to themselves.
func DefaultHierarchy() Hierarchy {
	return Hierarchy{
		Dean: {Parent, Student, Professor, Dean},
	}
}

// Validate rejects hierarchy entries that mention roles outside the
// enumeration. Hierarchies come from configuration, so this runs at
// startup before any retrieval happens.
func (h Hierarchy) Validate() error {
	for role, grants := range h {
		if !Valid(role) {
			return fmt.Errorf("%w: hierarchy key %q", ErrInvalidRole, role)
		}
		for _, grant := range grants {
			if !Valid(grant) {
				return fmt.Errorf("%w: hierarchy entry %q for role %q", ErrInvalidRole, grant, role)
			}
		}
	}
	return nil
}

// Accessible returns the set of roles whose documents r may read: r
// itself plus its hierarchy grants, deduplicated, in stable order.
func (h Hierarchy) Accessible(r Role) []Role {
	seen := map[Role]bool{r: true}
	out := []Role{r}
	for _, grant := range h[r] {
		if !seen[grant] {
			seen[grant] = true
			out = append(out, grant)
		}
	}
	return out
}

// Intersects reports whether two role sets share at least one member.
func Intersects(a, b []Role) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// Contains reports whether rs includes r.
func Contains(rs []Role, r Role) bool {
	for _, candidate := range rs {
		if candidate == r {
			return true
		}
	}
	return false
}

// Strings converts a role set for storage layers that speak text.
func Strings(rs []Role) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

// FromStrings parses every element, failing on the first invalid role.
func FromStrings(ss []string) ([]Role, error) {
	out := make([]Role, 0, len(ss))
	for _, s := range ss {
		r, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
