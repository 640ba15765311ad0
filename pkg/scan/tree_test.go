package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirAll(t *testing.T, parts ...string) string {
	t.Helper()
	path := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(path, 0750))
	return path
}

func touch(t *testing.T, parts ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(parts...), []byte("x"), 0640))
}

func TestBuildPolicyTree(t *testing.T) {
	root := t.TempDir()
	mkdirAll(t, root, "PAY", "backend")
	touch(t, root, "PAY", "backend", "PAY_prod.env")
	touch(t, root, "PAY", "backend", "PAY_test.env")
	touch(t, root, "PAY", "backend", "README.md")
	mkdirAll(t, root, "PAY", "frontend")
	mkdirAll(t, root, "CORE", "backend")
	touch(t, root, "CORE", "backend", "CORE_prod.env")
	touch(t, root, "loose-file.env")

	tree, err := BuildPolicyTree(root)
	require.NoError(t, err)
	require.Len(t, tree, 2)

	// os.ReadDir returns lexicographic order.
	assert.Equal(t, "CORE", tree[0].Name)
	assert.Equal(t, "PAY", tree[1].Name)

	require.Len(t, tree[1].SubPolicies, 2)
	backend := tree[1].SubPolicies[0]
	assert.Equal(t, "backend", backend.Name)
	assert.Equal(t, []string{"PAY_prod.env", "PAY_test.env"}, backend.EnvFiles)
	assert.Empty(t, tree[1].SubPolicies[1].EnvFiles)
}

func TestBuildPolicyTreeSkipsReservedPolicies(t *testing.T) {
	root := t.TempDir()
	mkdirAll(t, root, "API-GW", "backend")
	touch(t, root, "API-GW", "backend", "API-GW_prod.env")
	mkdirAll(t, root, "PAY", "backend")

	tree, err := BuildPolicyTree(root)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "PAY", tree[0].Name)
}

func TestBuildPolicyTreeMissingRoot(t *testing.T) {
	_, err := BuildPolicyTree(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestSplitEnvFileName(t *testing.T) {
	tests := []struct {
		name        string
		policy      string
		environment string
		wantErr     bool
	}{
		{name: "PAY_prod.env", policy: "PAY", environment: "prod"},
		{name: "CORE_pre_prod.env", policy: "CORE", environment: "pre_prod"},
		{name: "PAY_prod.tar.gz", policy: "PAY", environment: "prod"},
		{name: "noseparator.env", wantErr: true},
		{name: "_prod.env", wantErr: true},
		{name: "PAY_.env", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			policy, environment, err := SplitEnvFileName(tc.name)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.policy, policy)
			assert.Equal(t, tc.environment, environment)
		})
	}
}
