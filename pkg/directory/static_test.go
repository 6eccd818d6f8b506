package directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prismpsa/prism-workflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDirectory = `
users:
  - id: u-1
    name: Mia Manager
  - id: u-2
    name: Lee Legal
roles:
  role-manager: [u-1]
  role-legal: [u-2, u-1]
departments:
  dept-legal: [u-2]
`

var _ workflow.Directory = (*Static)(nil)

func TestParse(t *testing.T) {
	dir, err := Parse([]byte(sampleDirectory))
	require.NoError(t, err)

	members, err := dir.RoleMembers(t.Context(), "role-legal")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-2", "u-1"}, members)

	owners, err := dir.DepartmentOwners(t.Context(), "dept-legal")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-2"}, owners)

	name, err := dir.UserName(t.Context(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Mia Manager", name)

	t.Run("unknown ids", func(t *testing.T) {
		members, err := dir.RoleMembers(t.Context(), "role-ghost")
		require.NoError(t, err)
		assert.Empty(t, members)

		name, err := dir.UserName(t.Context(), "u-ghost")
		require.NoError(t, err)
		assert.Empty(t, name)
	})

	t.Run("results are copies", func(t *testing.T) {
		members, err := dir.RoleMembers(t.Context(), "role-manager")
		require.NoError(t, err)

		members[0] = "changed"

		again, err := dir.RoleMembers(t.Context(), "role-manager")
		require.NoError(t, err)
		assert.Equal(t, []string{"u-1"}, again)
	})
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "malformed yaml", content: "roles: [", want: "failed to parse directory"},
		{name: "empty role member", content: "roles:\n  role-a: [\"\"]\n", want: "role role-a lists an empty user id"},
		{name: "empty department owner", content: "departments:\n  dept-a: [\"\"]\n", want: "department dept-a lists an empty user id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDirectory), 0o600))

	dir, err := Load(path)
	require.NoError(t, err)

	owners, err := dir.DepartmentOwners(t.Context(), "dept-legal")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-2"}, owners)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read directory file")
}
