package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

func runLedgerCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: certscan ledger show <policy> [flags]")
		return 2
	}

	switch args[0] {
	case "show":
		return runLedgerShow(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown ledger command: %s\n", args[0])
		return 2
	}
}

func runLedgerShow(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ledger show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Usage: certscan ledger show <policy> [flags]")
		return 2
	}
	policy := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}

	ctx := context.Background()
	ldg, err := openLedger(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, "ledger:", err)
		return 1
	}
	defer ldg.Close()

	buckets, err := ldg.Policy(ctx, policy)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(buckets) == 0 {
		fmt.Fprintf(stdout, "no entries for policy %s\n", policy)
		return 0
	}

	out, err := json.MarshalIndent(buckets, "", "    ")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}
