package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// policiesDirName is the directory under each version that holds the tree.
const policiesDirName = "policies"

// FindVersions lists the version directories under the checkout root, newest
// first. Version names that all parse as semantic versions are ordered
// semantically; otherwise ordering falls back to reverse-lexicographic, which
// matches how the configuration store names its snapshots.
func FindVersions(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan: read version root %s: %w", root, err)
	}

	var versions []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.Contains(entry.Name(), "git") {
			continue
		}
		versions = append(versions, entry.Name())
	}

	parsed := make(map[string]*semver.Version, len(versions))
	allSemver := len(versions) > 0
	for _, v := range versions {
		sv, err := semver.NewVersion(v)
		if err != nil {
			allSemver = false
			break
		}
		parsed[v] = sv
	}

	if allSemver {
		sort.Slice(versions, func(i, j int) bool {
			return parsed[versions[i]].GreaterThan(parsed[versions[j]])
		})
	} else {
		sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	}
	return versions, nil
}

// PoliciesRoot returns the policy tree root for one version.
func PoliciesRoot(root, version string) string {
	return filepath.Join(root, version, policiesDirName)
}
