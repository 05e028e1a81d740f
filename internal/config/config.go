package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Capture CaptureConfig `yaml:"capture"`
	Library LibraryConfig `yaml:"library"`
	Proof   ProofConfig   `yaml:"proof"`
	Archive ArchiveConfig `yaml:"archive"`
	Audit   AuditConfig   `yaml:"audit"`
	State   StateConfig   `yaml:"state"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type CaptureConfig struct {
	Endpoint          string  `yaml:"endpoint"`
	PageSize          int     `yaml:"page_size"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	MaxPages          int     `yaml:"max_pages"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	RawDir            string  `yaml:"raw_dir"`
}

// LibraryConfig locates the two durable sinks. Both locations are explicit;
// nothing in the merge path falls back to a package-level default.
type LibraryConfig struct {
	Driver           string `yaml:"driver"` // "sqlite" | "postgres"
	StoreLocation    string `yaml:"store_location"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	SnapshotLocation string `yaml:"snapshot_location"`
	Compression      string `yaml:"compression"` // "zstd" | "snappy" | "none"
}

type ProofConfig struct {
	Dir            string `yaml:"dir"`
	RunNamePattern string `yaml:"run_name_pattern"`
}

type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BucketURL string `yaml:"bucket_url"`
	Prefix    string `yaml:"prefix"`
}

type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type StateConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

const (
	DefaultEndpoint       = "https://api.fiscaldata.treasury.gov/services/api/fiscal_service/v1/accounting/od/auctions_query"
	DefaultRunNamePattern = `^\d{8}T\d{6}Z_[A-Za-z0-9][A-Za-z0-9_.-]*$`
)

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		Capture: CaptureConfig{
			Endpoint:          DefaultEndpoint,
			PageSize:          1000,
			TimeoutSecs:       60,
			MaxPages:          10000,
			RequestsPerSecond: 2,
			RawDir:            "data/raw/fiscaldata",
		},
		Library: LibraryConfig{
			Driver:           "sqlite",
			StoreLocation:    "dist/library/event_library.sqlite",
			SnapshotLocation: "dist/library/history_snapshot.parquet",
			Compression:      "zstd",
		},
		Proof: ProofConfig{
			Dir:            "dist/proof",
			RunNamePattern: DefaultRunNamePattern,
		},
		Archive: ArchiveConfig{
			Prefix: "auction-ledger/",
		},
		Audit: AuditConfig{
			Path: "dist/library/audit.jsonl",
		},
		State: StateConfig{
			Dir: "dist/state",
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
	}
}

// Load reads an optional YAML file on top of the defaults and then applies
// AUCTION_* environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the pipeline cannot run without.
func (c Config) Validate() error {
	if c.Capture.Endpoint == "" {
		return fmt.Errorf("capture.endpoint is required")
	}
	if c.Capture.PageSize <= 0 {
		return fmt.Errorf("capture.page_size must be positive, got %d", c.Capture.PageSize)
	}
	if c.Capture.TimeoutSecs <= 0 {
		return fmt.Errorf("capture.timeout_secs must be positive, got %d", c.Capture.TimeoutSecs)
	}
	if c.Capture.MaxPages <= 0 {
		return fmt.Errorf("capture.max_pages must be positive, got %d", c.Capture.MaxPages)
	}
	switch c.Library.Driver {
	case "sqlite":
		if c.Library.StoreLocation == "" {
			return fmt.Errorf("library.store_location is required for sqlite")
		}
	case "postgres":
		if c.Library.PostgresDSN == "" {
			return fmt.Errorf("library.postgres_dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown library driver: %s", c.Library.Driver)
	}
	if c.Library.SnapshotLocation == "" {
		return fmt.Errorf("library.snapshot_location is required")
	}
	if c.Archive.Enabled && c.Archive.BucketURL == "" {
		return fmt.Errorf("archive.bucket_url is required when archive is enabled")
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Capture.Endpoint = getenvDefault("AUCTION_ENDPOINT", cfg.Capture.Endpoint)
	cfg.Capture.PageSize = getenvInt("AUCTION_PAGE_SIZE", cfg.Capture.PageSize)
	cfg.Capture.TimeoutSecs = getenvInt("AUCTION_TIMEOUT_SECS", cfg.Capture.TimeoutSecs)
	cfg.Capture.MaxPages = getenvInt("AUCTION_MAX_PAGES", cfg.Capture.MaxPages)
	cfg.Capture.RequestsPerSecond = getenvFloat("AUCTION_REQUESTS_PER_SECOND", cfg.Capture.RequestsPerSecond)
	cfg.Capture.RawDir = getenvDefault("AUCTION_RAW_DIR", cfg.Capture.RawDir)

	cfg.Library.Driver = getenvDefault("AUCTION_LIBRARY_DRIVER", cfg.Library.Driver)
	cfg.Library.StoreLocation = getenvDefault("AUCTION_STORE_LOCATION", cfg.Library.StoreLocation)
	cfg.Library.PostgresDSN = getenvDefault("AUCTION_POSTGRES_DSN", cfg.Library.PostgresDSN)
	cfg.Library.SnapshotLocation = getenvDefault("AUCTION_SNAPSHOT_LOCATION", cfg.Library.SnapshotLocation)
	cfg.Library.Compression = getenvDefault("AUCTION_SNAPSHOT_COMPRESSION", cfg.Library.Compression)

	cfg.Proof.Dir = getenvDefault("AUCTION_PROOF_DIR", cfg.Proof.Dir)
	cfg.Proof.RunNamePattern = getenvDefault("AUCTION_RUN_NAME_PATTERN", cfg.Proof.RunNamePattern)

	cfg.Archive.Enabled = getenvBool("AUCTION_ARCHIVE_ENABLED", cfg.Archive.Enabled)
	cfg.Archive.BucketURL = getenvDefault("AUCTION_ARCHIVE_BUCKET_URL", cfg.Archive.BucketURL)
	cfg.Archive.Prefix = getenvDefault("AUCTION_ARCHIVE_PREFIX", cfg.Archive.Prefix)

	cfg.Audit.Enabled = getenvBool("AUCTION_AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Audit.Path = getenvDefault("AUCTION_AUDIT_PATH", cfg.Audit.Path)

	cfg.State.Enabled = getenvBool("AUCTION_STATE_ENABLED", cfg.State.Enabled)
	cfg.State.Dir = getenvDefault("AUCTION_STATE_DIR", cfg.State.Dir)

	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)

	cfg.Metrics.Enabled = getenvBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Address = getenvDefault("METRICS_ADDRESS", cfg.Metrics.Address)
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true"
	}
	return def
}
