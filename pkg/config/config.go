// Package config holds the auditor's runtime settings. Values come from
// environment variables with sane defaults; an optional YAML file overrides
// the environment for deployments that keep settings in the checkout.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration, populated once at startup and
// passed to dependents. No component reads the environment on its own.
type Config struct {
	// ScanRoot is the checked-out configuration tree holding version dirs.
	ScanRoot string `yaml:"scan_root"`
	// DefaultVersion pins a single version; empty scans all discovered ones.
	DefaultVersion string `yaml:"default_version"`
	// Recipient receives the finished report by mail; empty disables mail.
	Recipient string `yaml:"recipient"`

	ScratchDir string `yaml:"scratch_dir"`
	ReportPath string `yaml:"report_path"`

	// LedgerBackend selects "file", "sqlite" or "postgres".
	LedgerBackend string `yaml:"ledger_backend"`
	LedgerPath    string `yaml:"ledger_path"`
	LedgerDSN     string `yaml:"ledger_dsn"`

	TicketEndpoint string `yaml:"ticket_endpoint"`
	TicketUser     string `yaml:"ticket_user"`
	TicketPassword string `yaml:"ticket_password"`
	TicketTemplate string `yaml:"ticket_template"`
	TicketRPM      int    `yaml:"ticket_rpm"`

	// Optional S3 archival of run artifacts.
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Prefix   string `yaml:"s3_prefix"`

	// Optional redis run lock; empty address disables it.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	LogLevel         string `yaml:"log_level"`
	TelemetryEnabled bool   `yaml:"telemetry_enabled"`
	OTLPEndpoint     string `yaml:"otlp_endpoint"`
}

// Load reads configuration from environment variables. When CERTSCAN_CONFIG
// names a YAML file, its values override the environment.
func Load() (*Config, error) {
	cfg := &Config{
		ScanRoot:       envOr("CERTSCAN_ROOT", "."),
		DefaultVersion: os.Getenv("CERTSCAN_VERSION"),
		Recipient:      os.Getenv("CERTSCAN_RECIPIENT"),
		ScratchDir:     envOr("CERTSCAN_SCRATCH_DIR", "tempy_folder"),
		ReportPath:     envOr("CERTSCAN_REPORT_PATH", "output_folder/output.txt"),
		LedgerBackend:  envOr("CERTSCAN_LEDGER_BACKEND", "file"),
		LedgerPath:     envOr("CERTSCAN_LEDGER_PATH", "database_certs.json"),
		LedgerDSN:      os.Getenv("CERTSCAN_LEDGER_DSN"),
		TicketEndpoint: os.Getenv("CERTSCAN_TICKET_ENDPOINT"),
		TicketUser:     os.Getenv("CERTSCAN_TICKET_USER"),
		TicketPassword: os.Getenv("CERTSCAN_TICKET_PASSWORD"),
		TicketTemplate: os.Getenv("CERTSCAN_TICKET_TEMPLATE"),
		S3Bucket:       os.Getenv("CERTSCAN_S3_BUCKET"),
		S3Region:       envOr("CERTSCAN_S3_REGION", "eu-central-1"),
		S3Endpoint:     os.Getenv("CERTSCAN_S3_ENDPOINT"),
		S3Prefix:       envOr("CERTSCAN_S3_PREFIX", "certscan/"),
		RedisAddr:      os.Getenv("CERTSCAN_REDIS_ADDR"),
		RedisPassword:  os.Getenv("CERTSCAN_REDIS_PASSWORD"),
		LogLevel:       envOr("CERTSCAN_LOG_LEVEL", "INFO"),
		OTLPEndpoint:   envOr("CERTSCAN_OTLP_ENDPOINT", "localhost:4317"),
	}

	if rpm := os.Getenv("CERTSCAN_TICKET_RPM"); rpm != "" {
		n, err := strconv.Atoi(rpm)
		if err != nil {
			return nil, fmt.Errorf("config: CERTSCAN_TICKET_RPM: %w", err)
		}
		cfg.TicketRPM = n
	}
	cfg.TelemetryEnabled = os.Getenv("CERTSCAN_TELEMETRY") == "true"

	if path := os.Getenv("CERTSCAN_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadFile reads configuration from a YAML file on top of the environment.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
