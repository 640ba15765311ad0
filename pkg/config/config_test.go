package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.ScanRoot)
	assert.Empty(t, cfg.DefaultVersion)
	assert.Equal(t, "tempy_folder", cfg.ScratchDir)
	assert.Equal(t, "output_folder/output.txt", cfg.ReportPath)
	assert.Equal(t, "file", cfg.LedgerBackend)
	assert.Equal(t, "database_certs.json", cfg.LedgerPath)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.False(t, cfg.TelemetryEnabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CERTSCAN_ROOT", "/srv/checkout")
	t.Setenv("CERTSCAN_VERSION", "1.2.0")
	t.Setenv("CERTSCAN_RECIPIENT", "ops@example.com")
	t.Setenv("CERTSCAN_LEDGER_BACKEND", "sqlite")
	t.Setenv("CERTSCAN_LEDGER_DSN", "/var/lib/certscan/ledger.db")
	t.Setenv("CERTSCAN_TICKET_RPM", "120")
	t.Setenv("CERTSCAN_TELEMETRY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/checkout", cfg.ScanRoot)
	assert.Equal(t, "1.2.0", cfg.DefaultVersion)
	assert.Equal(t, "ops@example.com", cfg.Recipient)
	assert.Equal(t, "sqlite", cfg.LedgerBackend)
	assert.Equal(t, "/var/lib/certscan/ledger.db", cfg.LedgerDSN)
	assert.Equal(t, 120, cfg.TicketRPM)
	assert.True(t, cfg.TelemetryEnabled)
}

func TestLoadInvalidRPM(t *testing.T) {
	t.Setenv("CERTSCAN_TICKET_RPM", "plenty")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFileOverridesEnvironment(t *testing.T) {
	t.Setenv("CERTSCAN_ROOT", "/from/env")

	path := filepath.Join(t.TempDir(), "certscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scan_root: /from/file
recipient: ops@example.com
ledger_backend: postgres
ledger_dsn: postgres://certscan@db/ledger
ticket_rpm: 60
`), 0600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/file", cfg.ScanRoot)
	assert.Equal(t, "ops@example.com", cfg.Recipient)
	assert.Equal(t, "postgres", cfg.LedgerBackend)
	assert.Equal(t, "postgres://certscan@db/ledger", cfg.LedgerDSN)
	assert.Equal(t, 60, cfg.TicketRPM)
}

func TestLoadConfigEnvVarPointsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan_root: /srv/tree\n"), 0600))
	t.Setenv("CERTSCAN_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/tree", cfg.ScanRoot)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
