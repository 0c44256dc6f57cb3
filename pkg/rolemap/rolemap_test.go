package rolemap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-genai/campusrag/pkg/rbac"
)

func TestParse(t *testing.T) {
	data := []byte(`
fees.docx: [parent, dean]
syllabus.pdf:
  - student
  - dean
handbook.txt: [student, parent, professor, dean]
`)

	m, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())

	roles, ok := m.Lookup("fees.docx")
	require.True(t, ok)
	assert.Equal(t, []rbac.Role{rbac.Parent, rbac.Dean}, roles)

	_, ok = m.Lookup("grades.csv")
	assert.False(t, ok)

	assert.Equal(t, []string{"fees.docx", "handbook.txt", "syllabus.pdf"}, m.Sources())
}

func TestParseRejectsUnknownRole(t *testing.T) {
	_, err := Parse([]byte("fees.docx: [parent, janitor]"))
	require.Error(t, err)
	assert.ErrorIs(t, err, rbac.ErrInvalidRole)
}

func TestParseRejectsEmptyRoleList(t *testing.T) {
	_, err := Parse([]byte("fees.docx: []"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyRoles)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("fees.docx: [parent\n  - broken"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rolemap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fees.docx: [parent]"), 0644))

	m, err := Load(path)
	require.NoError(t, err)
	roles, ok := m.Lookup("fees.docx")
	require.True(t, ok)
	assert.Equal(t, []rbac.Role{rbac.Parent}, roles)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
