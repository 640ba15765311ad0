package scan

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindVersionsSemverOrder(t *testing.T) {
	root := t.TempDir()
	for _, v := range []string{"1.2.0", "1.10.0", "1.9.3"} {
		mkdirAll(t, root, v)
	}

	versions, err := FindVersions(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.10.0", "1.9.3", "1.2.0"}, versions)
}

func TestFindVersionsLexicographicFallback(t *testing.T) {
	root := t.TempDir()
	for _, v := range []string{"release-a", "release-c", "release-b"} {
		mkdirAll(t, root, v)
	}

	versions, err := FindVersions(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"release-c", "release-b", "release-a"}, versions)
}

func TestFindVersionsSkipsGitDirs(t *testing.T) {
	root := t.TempDir()
	mkdirAll(t, root, "1.2.0")
	mkdirAll(t, root, ".git")
	mkdirAll(t, root, "gitops")
	touch(t, root, "CHANGELOG")

	versions, err := FindVersions(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.0"}, versions)
}

func TestPoliciesRoot(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "1.2.0", "policies"), PoliciesRoot("/data", "1.2.0"))
}
