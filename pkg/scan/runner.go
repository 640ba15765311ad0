package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/certscan/pkg/archive"
	"github.com/Mindburn-Labs/certscan/pkg/certs"
	"github.com/Mindburn-Labs/certscan/pkg/ledger"
	"github.com/Mindburn-Labs/certscan/pkg/mail"
	"github.com/Mindburn-Labs/certscan/pkg/manifest"
	"github.com/Mindburn-Labs/certscan/pkg/observability"
	"github.com/Mindburn-Labs/certscan/pkg/report"
	"github.com/Mindburn-Labs/certscan/pkg/storage"
	"github.com/Mindburn-Labs/certscan/pkg/ticket"
)

const mailSubject = "Certificates that need updating"

// RunnerConfig wires a Runner. Ledger is required; the ticket client, mailer
// and archiver degrade to no-ops when absent.
type RunnerConfig struct {
	Root          string
	PinnedVersion string
	ScratchDir    string
	ReportPath    string
	Recipient     string

	Ledger   ledger.Ledger
	Tickets  *ticket.Client
	Template ticket.Template
	Mailer   mail.Mailer
	Archiver *storage.Archiver

	Observability *observability.Provider
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Runner executes one full audit: every version pass, every policy, every
// environment archive. Single-threaded by design; the scratch directory and
// the ledger both assume one writer.
type Runner struct {
	cfg   RunnerConfig
	obs   *observability.Provider
	log   *slog.Logger
	clock func() time.Time
	runID string
}

// Summary aggregates what one run did.
type Summary struct {
	RunID        string
	Versions     int
	Policies     int
	Certificates int
	Tickets      int
	Skipped      int
}

// NewRunner validates the wiring and builds a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("scan: runner requires a ledger")
	}
	if cfg.Mailer == nil {
		cfg.Mailer = mail.NopMailer{}
	}
	if cfg.Template.Fields == nil {
		cfg.Template = ticket.DefaultTemplate()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	obs := cfg.Observability
	if obs == nil {
		var err error
		obs, err = observability.New(context.Background(), nil, log)
		if err != nil {
			return nil, fmt.Errorf("scan: init observability: %w", err)
		}
	}
	return &Runner{
		cfg:   cfg,
		obs:   obs,
		log:   log.With("component", "scan"),
		clock: clock,
		runID: uuid.New().String(),
	}, nil
}

// RunID identifies this run in logs and archived artifacts.
func (r *Runner) RunID() string { return r.runID }

// Run executes the audit. Unit-level failures (one archive, one policy) are
// logged and skipped; only run-level failures (report file, version
// discovery) abort.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{RunID: r.runID}

	if err := report.Reset(r.cfg.ReportPath); err != nil {
		return nil, err
	}

	versions, err := r.versions()
	if err != nil {
		return nil, err
	}
	r.log.Info("run started", "run_id", r.runID, "versions", versions)

	// Policies already written to the report in an earlier version pass.
	// Shared policy names across versions must appear only once per run.
	zones := make(map[string]struct{})

	for _, version := range versions {
		root := PoliciesRoot(r.cfg.Root, version)
		if _, err := os.Stat(root); err != nil {
			r.log.Warn("version has no policy tree, skipping", "version", version)
			continue
		}

		versionCtx, span := r.obs.StartSpan(ctx, "scan.version", attribute.String("version", version))
		err := r.scanVersion(versionCtx, root, zones, summary)
		span.End()
		if err != nil {
			r.log.Error("version pass failed", "version", version, "error", err)
			summary.Skipped++
			continue
		}
		summary.Versions++
	}

	r.finish(ctx, summary)
	return summary, nil
}

func (r *Runner) versions() ([]string, error) {
	if r.cfg.PinnedVersion != "" {
		return []string{r.cfg.PinnedVersion}, nil
	}
	return FindVersions(r.cfg.Root)
}

func (r *Runner) scanVersion(ctx context.Context, policiesRoot string, zones map[string]struct{}, summary *Summary) error {
	tree, err := BuildPolicyTree(policiesRoot)
	if err != nil {
		return err
	}

	out, err := report.OpenAppend(r.cfg.ReportPath)
	if err != nil {
		return err
	}
	defer out.Close()
	writer := report.NewWriter(out)

	for _, policy := range tree {
		if _, seen := zones[policy.Name]; seen {
			continue
		}
		zones[policy.Name] = struct{}{}
		summary.Policies++

		policyCtx, span := r.obs.StartSpan(ctx, "scan.policy", attribute.String("policy", policy.Name))
		r.scanPolicy(policyCtx, policiesRoot, policy, writer, summary)
		span.End()
	}
	return nil
}

func (r *Runner) scanPolicy(ctx context.Context, policiesRoot string, policy Policy, writer *report.Writer, summary *Summary) {
	writer.PushHeader(policy.Name, report.DepthPolicy)

	for _, sub := range policy.SubPolicies {
		writer.PushHeader(sub.Name, report.DepthSubPolicy)

		content := make(certs.EnvironmentContent)
		ticketPolicy := ""

		for _, envFile := range sub.EnvFiles {
			writer.PushHeader(envFile, report.DepthEnvironment)

			filePolicy, environment, err := SplitEnvFileName(envFile)
			if err != nil {
				r.skipUnit(ctx, writer, envFile, policy.Name, sub.Name, err, summary)
				continue
			}

			records, err := r.scanEnvironment(ctx, filepath.Join(policiesRoot, policy.Name, sub.Name, envFile))
			if err != nil {
				r.skipUnit(ctx, writer, envFile, policy.Name, sub.Name, err, summary)
				continue
			}

			ticketPolicy = filePolicy
			content[environment] = records

			if len(records) == 0 {
				writer.PopHeader(envFile, report.DepthEnvironment)
				continue
			}
			for _, record := range records {
				if err := writer.CertLine(record); err != nil {
					r.log.Error("report write failed", "archive", envFile, "error", err)
					break
				}
				summary.Certificates++
			}
		}

		if ticketPolicy != "" {
			if err := r.notify(ctx, ticketPolicy, content, summary); err != nil {
				r.log.Error("policy notification failed", "policy", ticketPolicy, "error", err)
				r.obs.UnitSkipped(ctx, "ledger")
				summary.Skipped++
			}
		}

		writer.PopHeader(sub.Name, report.DepthSubPolicy)
	}

	writer.PopHeader(policy.Name, report.DepthPolicy)
}

func (r *Runner) skipUnit(ctx context.Context, writer *report.Writer, envFile, policy, sub string, err error, summary *Summary) {
	r.log.Error("environment skipped", "policy", policy, "sub_policy", sub, "archive", envFile, "error", err)
	r.obs.UnitSkipped(ctx, stageOf(err))
	summary.Skipped++
	writer.PopHeader(envFile, report.DepthEnvironment)
}

// scanEnvironment runs one archive through clear-extract-locate-parse.
// The scratch directory is cleared before every extraction so stale contents
// never leak between archives.
func (r *Runner) scanEnvironment(ctx context.Context, archivePath string) ([]certs.Record, error) {
	if err := archive.ClearScratch(r.cfg.ScratchDir); err != nil {
		return nil, err
	}
	if err := archive.ExtractZip(archivePath, r.cfg.ScratchDir); err != nil {
		return nil, err
	}
	manifestPath, err := archive.LocateManifest(r.cfg.ScratchDir)
	if err != nil {
		return nil, err
	}

	result, err := manifest.Parse(manifestPath, r.cfg.ScratchDir, r.clock())
	if err != nil {
		return nil, err
	}
	for _, skip := range result.Skips {
		r.log.Debug("manifest entity skipped", "archive", archivePath, "entity", skip.Entity, "reason", skip.Reason)
	}
	r.obs.CertsScanned(ctx, int64(result.Decoded))
	r.obs.CertsQualifying(ctx, int64(len(result.Records)))
	return result.Records, nil
}

// notify batches the policy's un-ledgered certificates, submits one ticket
// per batch and then records the policy. The ledger snapshot is taken before
// recording, so overlapping version passes cannot double-ticket.
func (r *Runner) notify(ctx context.Context, policy string, content certs.EnvironmentContent, summary *Summary) error {
	snapshot, err := r.cfg.Ledger.Policy(ctx, policy)
	if err != nil {
		return err
	}

	for _, batch := range ticket.BuildBatches(policy, content, snapshot) {
		if r.cfg.Tickets == nil {
			r.log.Info("ticket endpoint not configured, batch not submitted",
				"policy", batch.Policy, "bucket", batch.Bucket())
			continue
		}
		if err := r.cfg.Tickets.Submit(ctx, r.cfg.Template, batch); err != nil {
			r.log.Error("ticket submission failed", "policy", batch.Policy, "bucket", batch.Bucket(), "error", err)
			continue
		}
		r.obs.TicketSubmitted(ctx)
		summary.Tickets++
	}

	return r.cfg.Ledger.RecordPolicy(ctx, policy, content)
}

// finish mails and archives the report; both are best-effort.
func (r *Runner) finish(ctx context.Context, summary *Summary) {
	if r.cfg.Recipient != "" {
		if err := r.cfg.Mailer.Send(ctx, r.cfg.Recipient, mailSubject, r.cfg.ReportPath); err != nil {
			r.log.Error("report mail failed", "recipient", r.cfg.Recipient, "error", err)
		}
	}
	if r.cfg.Archiver != nil {
		if err := r.cfg.Archiver.ArchiveFile(ctx, r.runID, r.cfg.ReportPath); err != nil {
			r.log.Error("report archival failed", "error", err)
		}
	}
	r.log.Info("run finished",
		"run_id", r.runID,
		"versions", summary.Versions,
		"policies", summary.Policies,
		"certificates", summary.Certificates,
		"tickets", summary.Tickets,
		"skipped", summary.Skipped,
	)
}

func stageOf(err error) string {
	switch {
	case errors.Is(err, archive.ErrExtraction):
		return "extract"
	case errors.Is(err, archive.ErrManifestNotFound):
		return "manifest"
	case errors.Is(err, certs.ErrCertificateDecode):
		return "decode"
	case errors.Is(err, ledger.ErrLedgerIO):
		return "ledger"
	case errors.Is(err, ticket.ErrTicketSubmission):
		return "ticket"
	default:
		return "other"
	}
}
