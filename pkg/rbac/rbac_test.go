package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Role
		wantErr bool
	}{
		{name: "exact match", input: "student", want: Student},
		{name: "mixed case", input: "Dean", want: Dean},
		{name: "surrounding whitespace", input: "  parent ", want: Parent},
		{name: "unknown role", input: "admin", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidRole)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRolesIsClosedSet(t *testing.T) {
	roles := Roles()
	assert.Len(t, roles, 4)
	for _, r := range roles {
		assert.True(t, Valid(r))
	}
	assert.False(t, Valid(Role("guest")))
}

func TestAccessibleWithoutHierarchy(t *testing.T) {
	h := Hierarchy{}
	for _, r := range Roles() {
		assert.Equal(t, []Role{r}, h.Accessible(r), "role %s should only see itself", r)
	}
}

func TestAccessibleWithHierarchy(t *testing.T) {
	h := DefaultHierarchy()

	assert.ElementsMatch(t, []Role{Dean, Parent, Student, Professor}, h.Accessible(Dean))
	assert.Equal(t, []Role{Student}, h.Accessible(Student))
	assert.Equal(t, []Role{Parent}, h.Accessible(Parent))
}

func TestAccessibleDeduplicates(t *testing.T) {
	h := Hierarchy{Professor: {Student, Student, Professor}}
	assert.Equal(t, []Role{Professor, Student}, h.Accessible(Professor))
}

func TestHierarchyValidate(t *testing.T) {
	tests := []struct {
		name    string
		h       Hierarchy
		wantErr bool
	}{
		{name: "empty", h: Hierarchy{}},
		{name: "default", h: DefaultHierarchy()},
		{name: "unknown key", h: Hierarchy{Role("root"): {Student}}, wantErr: true},
		{name: "unknown grant", h: Hierarchy{Dean: {Role("root")}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.h.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRole)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIntersects(t *testing.T) {
	assert.True(t, Intersects([]Role{Parent, Dean}, []Role{Dean}))
	assert.False(t, Intersects([]Role{Parent, Dean}, []Role{Student}))
	assert.False(t, Intersects(nil, []Role{Student}))
	assert.False(t, Intersects([]Role{Parent}, nil))
}

func TestFromStrings(t *testing.T) {
	roles, err := FromStrings([]string{"parent", "dean"})
	require.NoError(t, err)
	assert.Equal(t, []Role{Parent, Dean}, roles)

	_, err = FromStrings([]string{"parent", "intruder"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}
