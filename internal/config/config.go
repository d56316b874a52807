// Package config loads assetflow settings from YAML with ASSETFLOW_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Cancellation policies for approved requests.
const (
	CancelKeep                = "keep"
	CancelReleaseReservations = "release_reservations"
)

// Config is the root configuration document.
type Config struct {
	Tenant   string         `yaml:"tenant"`
	Storage  StorageConfig  `yaml:"storage"`
	Blob     BlobConfig     `yaml:"blob"`
	Logging  LoggingConfig  `yaml:"logging"`
	Workflow WorkflowConfig `yaml:"workflow"`
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // memory, sqlite, postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Timeout     string `yaml:"timeout"` // per-command store deadline
}

// BlobConfig selects where receipts and exports go.
type BlobConfig struct {
	Driver string   `yaml:"driver"` // fs, s3, memory, or empty to disable
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config addresses an S3-compatible bucket.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// WorkflowConfig holds the request workflow policy switches.
type WorkflowConfig struct {
	CancelPolicy        string `yaml:"cancel_policy"`
	ReserveOnApproval   bool   `yaml:"reserve_on_approval"`
	MaxConflictRetries  int    `yaml:"max_conflict_retries"`
	ReceiptsEnabled     bool   `yaml:"receipts_enabled"`
	OverdueGracePeriod  string `yaml:"overdue_grace_period"`
	DefaultLoanDuration string `yaml:"default_loan_duration"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Tenant: "default",
		Storage: StorageConfig{
			Driver:     StorageSQLite,
			SQLitePath: "assetflow.db",
			Timeout:    "30s",
		},
		Blob: BlobConfig{
			Driver: "fs",
			FSRoot: "./blobdata",
			S3:     S3Config{Region: "us-east-1"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Workflow: WorkflowConfig{
			CancelPolicy:        CancelKeep,
			MaxConflictRetries:  5,
			ReceiptsEnabled:     true,
			OverdueGracePeriod:  "0s",
			DefaultLoanDuration: "168h",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	setString("ASSETFLOW_TENANT", &c.Tenant)
	setString("ASSETFLOW_STORAGE_DRIVER", &c.Storage.Driver)
	setString("ASSETFLOW_SQLITE_PATH", &c.Storage.SQLitePath)
	setString("ASSETFLOW_POSTGRES_DSN", &c.Storage.PostgresDSN)
	setString("ASSETFLOW_BLOB_DRIVER", &c.Blob.Driver)
	setString("ASSETFLOW_BLOB_FS_ROOT", &c.Blob.FSRoot)
	setString("ASSETFLOW_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	setString("ASSETFLOW_BLOB_S3_REGION", &c.Blob.S3.Region)
	setString("ASSETFLOW_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	setString("ASSETFLOW_BLOB_S3_ACCESS_KEY_ID", &c.Blob.S3.AccessKeyID)
	setString("ASSETFLOW_BLOB_S3_SECRET_ACCESS_KEY", &c.Blob.S3.SecretAccessKey)
	if v := os.Getenv("ASSETFLOW_BLOB_S3_PATH_STYLE"); v != "" {
		c.Blob.S3.PathStyle = strings.EqualFold(v, "true")
	}
	setString("ASSETFLOW_LOG_LEVEL", &c.Logging.Level)
	setString("ASSETFLOW_CANCEL_POLICY", &c.Workflow.CancelPolicy)
	if v := os.Getenv("ASSETFLOW_RESERVE_ON_APPROVAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Workflow.ReserveOnApproval = b
		}
	}
}

// Validate rejects unknown drivers, policies and malformed durations.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q (valid: memory, sqlite, postgres)", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "", "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket required when blob driver is s3")
		}
	default:
		return fmt.Errorf("unknown blob driver %q (valid: fs, s3, memory)", c.Blob.Driver)
	}
	switch c.Workflow.CancelPolicy {
	case CancelKeep, CancelReleaseReservations:
	default:
		return fmt.Errorf("unknown cancel policy %q (valid: %s, %s)", c.Workflow.CancelPolicy, CancelKeep, CancelReleaseReservations)
	}
	if c.Workflow.MaxConflictRetries < 0 {
		return fmt.Errorf("workflow.max_conflict_retries must not be negative")
	}
	for name, raw := range map[string]string{
		"storage.timeout":                c.Storage.Timeout,
		"workflow.overdue_grace_period":  c.Workflow.OverdueGracePeriod,
		"workflow.default_loan_duration": c.Workflow.DefaultLoanDuration,
	} {
		if _, err := parseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// StoreTimeout returns the per-command store deadline; zero disables it.
func (c *Config) StoreTimeout() time.Duration {
	d, _ := parseDuration(c.Storage.Timeout)
	return d
}

// OverdueGrace returns how long past due an issue may run before it is
// reported.
func (c *Config) OverdueGrace() time.Duration {
	d, _ := parseDuration(c.Workflow.OverdueGracePeriod)
	return d
}

// LoanDuration is the default gap between issue and expected return dates
// when a request omits the latter.
func (c *Config) LoanDuration() time.Duration {
	d, _ := parseDuration(c.Workflow.DefaultLoanDuration)
	return d
}
