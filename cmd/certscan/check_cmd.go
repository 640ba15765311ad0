package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mindburn-Labs/certscan/pkg/archive"
	"github.com/Mindburn-Labs/certscan/pkg/certs"
	"github.com/Mindburn-Labs/certscan/pkg/expiry"
	"github.com/Mindburn-Labs/certscan/pkg/manifest"
)

// runCheckCmd decodes a single archive or PEM file and prints what the scan
// would see. Operator tool for verifying one environment by hand.
func runCheckCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: certscan check <archive.env|cert.pem>")
		return 2
	}
	path := args[0]

	if strings.HasSuffix(path, ".pem") {
		record, err := certs.DecodeFile(path)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		printRecord(stdout, record)
		return 0
	}

	scratch, err := os.MkdirTemp("", "certscan-check-*")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer os.RemoveAll(scratch)

	if err := archive.ExtractZip(path, scratch); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	manifestPath, err := archive.LocateManifest(scratch)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, "manifest:", filepath.Base(manifestPath))

	result, err := manifest.Parse(manifestPath, scratch, time.Now())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "decoded %d certificate(s), %d expiring soon, %d skipped\n",
		result.Decoded, len(result.Records), len(result.Skips))
	for _, record := range result.Records {
		printRecord(stdout, record)
	}
	for _, skip := range result.Skips {
		fmt.Fprintf(stdout, "  skipped entity %d: %s\n", skip.Entity, skip.Reason)
	}
	return 0
}

func printRecord(w io.Writer, record certs.Record) {
	fmt.Fprintf(w, "  NotBefore: %s\n", record.NotBefore.Format(certs.TimestampLayout))
	fmt.Fprintf(w, "  NotAfter:  %s (bucket %s)\n", record.EndDate(), expiry.Bucket(record.NotAfter))
	fmt.Fprintf(w, "  Serial:    %s\n", record.Serial)
	fmt.Fprintf(w, "  Issuer:    %s\n", record.Issuer)
}
