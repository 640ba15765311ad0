package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Mindburn-Labs/certscan/pkg/config"
	"github.com/Mindburn-Labs/certscan/pkg/ledger"
	"github.com/Mindburn-Labs/certscan/pkg/mail"
	"github.com/Mindburn-Labs/certscan/pkg/observability"
	"github.com/Mindburn-Labs/certscan/pkg/runlock"
	"github.com/Mindburn-Labs/certscan/pkg/scan"
	"github.com/Mindburn-Labs/certscan/pkg/storage"
	"github.com/Mindburn-Labs/certscan/pkg/ticket"
)

func runScanCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file")
	root := fs.String("root", "", "configuration checkout root (overrides config)")
	version := fs.String("version", "", "pin a single version instead of scanning all")
	dryRun := fs.Bool("dry-run", false, "scan and report, but submit no tickets and send no mail")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}
	if *root != "" {
		cfg.ScanRoot = *root
	}
	if *version != "" {
		cfg.DefaultVersion = *version
	}

	logger := newLogger(cfg.LogLevel, stderr)
	ctx := context.Background()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "certscan",
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TelemetryEnabled,
		Insecure:       true,
		BatchTimeout:   5 * time.Second,
	}, logger)
	if err != nil {
		fmt.Fprintln(stderr, "observability:", err)
		return 1
	}
	defer func() {
		if err := obs.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if cfg.RedisAddr != "" {
		lock := runlock.New(cfg.RedisAddr, cfg.RedisPassword, "certscan:run", 2*time.Hour)
		defer lock.Close()
		if err := lock.Acquire(ctx); err != nil {
			if errors.Is(err, runlock.ErrHeld) {
				fmt.Fprintln(stderr, "another run is in progress")
				return 1
			}
			fmt.Fprintln(stderr, "run lock:", err)
			return 1
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				logger.Warn("run lock release failed", "error", err)
			}
		}()
	}

	ldg, err := openLedger(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, "ledger:", err)
		return 1
	}
	defer ldg.Close()

	runnerCfg := scan.RunnerConfig{
		Root:          cfg.ScanRoot,
		PinnedVersion: cfg.DefaultVersion,
		ScratchDir:    cfg.ScratchDir,
		ReportPath:    cfg.ReportPath,
		Ledger:        ldg,
		Observability: obs,
		Logger:        logger,
	}

	if !*dryRun {
		runnerCfg.Recipient = cfg.Recipient
		runnerCfg.Mailer = mail.MuttMailer{}

		if cfg.TicketEndpoint != "" {
			runnerCfg.Tickets = ticket.NewClient(ticket.ClientConfig{
				Endpoint:          cfg.TicketEndpoint,
				Username:          cfg.TicketUser,
				Password:          cfg.TicketPassword,
				RequestsPerMinute: cfg.TicketRPM,
			})
		}
		if cfg.TicketTemplate != "" {
			tmpl, err := ticket.LoadTemplate(cfg.TicketTemplate)
			if err != nil {
				fmt.Fprintln(stderr, "ticket template:", err)
				return 1
			}
			runnerCfg.Template = tmpl
		}
		if cfg.S3Bucket != "" {
			archiver, err := storage.New(ctx, storage.Config{
				Bucket:   cfg.S3Bucket,
				Region:   cfg.S3Region,
				Endpoint: cfg.S3Endpoint,
				Prefix:   cfg.S3Prefix,
			})
			if err != nil {
				fmt.Fprintln(stderr, "archiver:", err)
				return 1
			}
			runnerCfg.Archiver = archiver
		}
	}

	runner, err := scan.NewRunner(runnerCfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "run failed:", err)
		return 1
	}

	fmt.Fprintf(stdout, "run %s: %d version(s), %d policies, %d expiring certificates, %d tickets, %d skipped\n",
		summary.RunID, summary.Versions, summary.Policies, summary.Certificates, summary.Tickets, summary.Skipped)
	if summary.Skipped > 0 {
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func openLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, error) {
	switch cfg.LedgerBackend {
	case "", "file":
		return ledger.NewFileLedger(cfg.LedgerPath)
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.LedgerDSN)
		if err != nil {
			return nil, err
		}
		l := ledger.NewSQLLedger(db)
		if err := l.Init(ctx); err != nil {
			return nil, err
		}
		return l, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.LedgerDSN)
		if err != nil {
			return nil, err
		}
		l := ledger.NewPostgresLedger(db)
		if err := l.Init(ctx); err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}
