package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Version is stamped at build time.
var Version = "dev"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runScanCmd(nil, stdout, stderr)
	}

	switch args[1] {
	case "scan":
		return runScanCmd(args[2:], stdout, stderr)
	case "check":
		return runCheckCmd(args[2:], stdout, stderr)
	case "ledger":
		return runLedgerCmd(args[2:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, "certscan", Version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return runScanCmd(args[1:], stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "certscan - certificate expiry auditor")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  certscan [scan] [flags]     Run the full audit (default)")
	fmt.Fprintln(w, "  certscan check <file>       Decode one archive or PEM file")
	fmt.Fprintln(w, "  certscan ledger show <pol>  Dump one policy's ledger entries")
	fmt.Fprintln(w, "  certscan version            Print the version")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'certscan scan -h' for scan flags.")
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
