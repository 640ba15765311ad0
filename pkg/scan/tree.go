// Package scan drives the full audit: it discovers versioned policy trees,
// runs every environment archive through the extraction and parsing pipeline
// and reconciles the results against the report, the ticketing endpoint and
// the notification ledger.
package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// Policies carrying this prefix are managed elsewhere and never scanned.
	reservedPolicyPrefix = "API-"
	// One archive per environment, named <Policy>_<Environment>.env.
	environmentSuffix = ".env"
)

// SubPolicy is one sub-policy directory and its environment archives.
type SubPolicy struct {
	Name     string
	EnvFiles []string
}

// Policy is one policy directory.
type Policy struct {
	Name        string
	SubPolicies []SubPolicy
}

// PolicyTree is the ordered policy/sub-policy/environment hierarchy under
// one version root. Built fresh per scan root; read-only during a run.
type PolicyTree []Policy

// BuildPolicyTree walks root and collects every environment archive, skipping
// reserved policies. Directory order (lexicographic, per os.ReadDir) is
// preserved so report output is stable.
func BuildPolicyTree(root string) (PolicyTree, error) {
	policyEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan: read policy root %s: %w", root, err)
	}

	var tree PolicyTree
	for _, policyEntry := range policyEntries {
		if !policyEntry.IsDir() || strings.HasPrefix(policyEntry.Name(), reservedPolicyPrefix) {
			continue
		}

		policy := Policy{Name: policyEntry.Name()}
		subEntries, err := os.ReadDir(filepath.Join(root, policyEntry.Name()))
		if err != nil {
			return nil, fmt.Errorf("scan: read policy %s: %w", policyEntry.Name(), err)
		}

		for _, subEntry := range subEntries {
			if !subEntry.IsDir() {
				continue
			}
			sub := SubPolicy{Name: subEntry.Name()}
			files, err := os.ReadDir(filepath.Join(root, policyEntry.Name(), subEntry.Name()))
			if err != nil {
				return nil, fmt.Errorf("scan: read sub-policy %s/%s: %w", policyEntry.Name(), subEntry.Name(), err)
			}
			for _, file := range files {
				if file.IsDir() || !strings.HasSuffix(file.Name(), environmentSuffix) {
					continue
				}
				sub.EnvFiles = append(sub.EnvFiles, file.Name())
			}
			policy.SubPolicies = append(policy.SubPolicies, sub)
		}
		tree = append(tree, policy)
	}
	return tree, nil
}

// SplitEnvFileName derives the ticketing policy and environment from an
// archive file name of the form <Policy>_<Environment>.<ext>.
func SplitEnvFileName(name string) (policy, environment string, err error) {
	base := name
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("scan: archive name %q is not <Policy>_<Environment>%s", name, environmentSuffix)
	}
	return parts[0], parts[1], nil
}
