package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrManifestNotFound is returned when the unpacked archive holds zero or
// more than one manifest candidate at either level. Ambiguity is an error;
// silently picking the first match would tie the result to directory order.
var ErrManifestNotFound = errors.New("archive: certificate manifest not found")

const (
	metadataPrefix = "META"
	manifestPrefix = "Cert"
	manifestSuffix = ".xml"
)

// LocateManifest finds the certificate manifest inside an unpacked archive:
// the single top-level directory not carrying the metadata prefix, and within
// it the single Cert*.xml file.
func LocateManifest(scratchDir string) (string, error) {
	contentDir, err := singleContentDir(scratchDir)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(contentDir)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrManifestNotFound, contentDir, err)
	}

	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(name, manifestPrefix) && strings.HasSuffix(name, manifestSuffix) {
			candidates = append(candidates, name)
		}
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: no %s*%s file in %s", ErrManifestNotFound, manifestPrefix, manifestSuffix, contentDir)
	case 1:
		return filepath.Join(contentDir, candidates[0]), nil
	default:
		return "", fmt.Errorf("%w: ambiguous manifest candidates %v in %s", ErrManifestNotFound, candidates, contentDir)
	}
}

func singleContentDir(scratchDir string) (string, error) {
	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrManifestNotFound, scratchDir, err)
	}

	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), metadataPrefix) {
			continue
		}
		candidates = append(candidates, entry.Name())
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: no content directory in %s", ErrManifestNotFound, scratchDir)
	case 1:
		return filepath.Join(scratchDir, candidates[0]), nil
	default:
		return "", fmt.Errorf("%w: ambiguous content directories %v in %s", ErrManifestNotFound, candidates, scratchDir)
	}
}
