// Package archive unpacks environment configuration archives and locates
// the certificate manifest inside the unpacked tree.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrExtraction is returned when an archive is missing or not a valid zip.
var ErrExtraction = errors.New("archive: extraction failed")

// ClearScratch removes everything under the scratch directory and recreates
// it. Callers must invoke this before every extraction; stale contents from a
// previous archive must never leak into the next parse.
func ClearScratch(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("archive: clear scratch %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("archive: recreate scratch %s: %w", dir, err)
	}
	return nil
}

// ExtractZip unpacks a zip archive into the scratch directory.
// A missing or corrupt archive yields ErrExtraction, never a bare I/O error.
func ExtractZip(archivePath, scratchDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrExtraction, archivePath, err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if err := extractOne(file, scratchDir); err != nil {
			return err
		}
	}
	return nil
}

func extractOne(file *zip.File, scratchDir string) error {
	dest := filepath.Join(scratchDir, file.Name)

	// Reject entries that would escape the scratch directory.
	if !strings.HasPrefix(dest, filepath.Clean(scratchDir)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: illegal path %q", ErrExtraction, file.Name)
	}

	if file.FileInfo().IsDir() {
		if err := os.MkdirAll(dest, 0750); err != nil {
			return fmt.Errorf("%w: mkdir %s: %v", ErrExtraction, dest, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrExtraction, filepath.Dir(dest), err)
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("%w: read entry %s: %v", ErrExtraction, file.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrExtraction, dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrExtraction, dest, err)
	}
	return nil
}
