// Package report accumulates the hierarchical expiry report. Headers for
// policy, sub-policy and environment levels are buffered and only flushed
// once a descendant certificate line is actually written, so branches with no
// qualifying certificates leave no trace in the output.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mindburn-Labs/certscan/pkg/certs"
)

// Header indentation depths.
const (
	DepthPolicy = iota
	DepthSubPolicy
	DepthEnvironment
)

// Reset truncates the report file at the start of a run, creating the parent
// directory when needed. Subsequent version passes open the file in append
// mode; truncation happens exactly once per run.
func Reset(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("report: create output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("report: reset %s: %w", path, err)
	}
	return f.Close()
}

// OpenAppend opens the report file for one version pass.
func OpenAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	return f, nil
}

// Writer emits the three-level indented report with deferred headers.
type Writer struct {
	out     io.Writer
	pending []string
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// PushHeader buffers a header line for the given depth. Nothing is written
// until a certificate line flushes the buffer.
func (w *Writer) PushHeader(name string, depth int) {
	w.pending = append(w.pending, headerLine(name, depth))
}

// PopHeader discards the buffered header for the given name and depth if it
// is still unflushed. Called when backtracking out of a branch that produced
// no certificate lines.
func (w *Writer) PopHeader(name string, depth int) {
	if len(w.pending) == 0 {
		return
	}
	if w.pending[len(w.pending)-1] == headerLine(name, depth) {
		w.pending = w.pending[:len(w.pending)-1]
	}
}

// CertLine flushes any pending headers and writes one certificate line.
func (w *Writer) CertLine(record certs.Record) error {
	if err := w.flush(); err != nil {
		return err
	}
	line := fmt.Sprintf("\t\t\tEndDate: %s\tSerialID: %s\tIssuer: %s\n",
		record.EndDate(), record.Serial, record.Issuer)
	if _, err := io.WriteString(w.out, line); err != nil {
		return fmt.Errorf("report: write line: %w", err)
	}
	return nil
}

// Flush forces out any pending headers. Used when a leaf produced content
// but the lines are written by the caller.
func (w *Writer) flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	if _, err := io.WriteString(w.out, strings.Join(w.pending, "")); err != nil {
		return fmt.Errorf("report: flush headers: %w", err)
	}
	w.pending = w.pending[:0]
	return nil
}

func headerLine(name string, depth int) string {
	return strings.Repeat("\t", depth) + name + ":\n"
}
