// Package config assembles the harvester's configuration from defaults,
// an optional YAML file, and environment overrides, in that precedence
// order. A .env file in the working directory is folded into the
// environment before overrides are read.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/marketarchive/filing-harvester/internal/discovery"
	"github.com/marketarchive/filing-harvester/internal/download"
	"github.com/marketarchive/filing-harvester/internal/harvester"
	"github.com/marketarchive/filing-harvester/internal/logging"
	"github.com/marketarchive/filing-harvester/internal/metrics"
	"github.com/marketarchive/filing-harvester/internal/scrape"
	"github.com/marketarchive/filing-harvester/internal/store"
)

// Config is the full harvester configuration.
type Config struct {
	Logging   logging.Config      `yaml:"logging"`
	Store     store.Config        `yaml:"store"`
	Download  download.Config     `yaml:"download"`
	Discovery discovery.Config    `yaml:"discovery"`
	Loader    scrape.LoaderConfig `yaml:"loader"`
	Harvest   harvester.Config    `yaml:"harvest"`
	Metrics   metrics.Config      `yaml:"metrics"`
	Rate      RateConfig          `yaml:"rate"`
}

// RateConfig paces first-attempt requests against the exchange.
type RateConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		Logging: logging.Config{
			Format: "text",
			Level:  "info",
		},
		Store: store.Config{
			Backend:  "local",
			LocalDir: "./annual_reports",
		},
		Download:  download.DefaultConfig(),
		Discovery: discovery.DefaultConfig(),
		Loader:    scrape.DefaultLoaderConfig(),
		Harvest: harvester.Config{
			LedgerPath: "./annual_reports/failed_items_report.json",
		},
		Metrics: metrics.Config{
			Enabled: false,
			Address: ":9090",
		},
		Rate: RateConfig{
			RequestsPerSecond: 1.25,
			Burst:             1,
		},
	}
}

// Load builds the configuration. path may be empty; a missing file at a
// non-empty path is an error, since the operator asked for it.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv folds environment overrides on top of file values. Only the
// settings operators actually vary between deployments get env knobs.
func applyEnv(cfg *Config) {
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.Level, "LOG_LEVEL")

	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setString(&cfg.Store.LocalDir, "STORE_LOCAL_DIR")
	setString(&cfg.Store.BucketURL, "STORE_BUCKET_URL")
	setString(&cfg.Store.Prefix, "STORE_PREFIX")

	setString(&cfg.Discovery.SecuritiesURL, "SECURITIES_CSV_URL")
	setString(&cfg.Loader.BaseURL, "FILINGS_BASE_URL")

	setInt(&cfg.Download.Attempts, "DOWNLOAD_ATTEMPTS")
	setDuration(&cfg.Download.RequestTimeout, "DOWNLOAD_TIMEOUT")
	setInt(&cfg.Loader.Attempts, "PAGE_ATTEMPTS")

	setInt(&cfg.Harvest.MaxCompanies, "MAX_COMPANIES")
	setString(&cfg.Harvest.LedgerPath, "LEDGER_PATH")

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
	setString(&cfg.Metrics.Address, "METRICS_ADDRESS")
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case "local", "blob":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "blob" && c.Store.BucketURL == "" {
		return fmt.Errorf("store backend %q requires a bucket URL", c.Store.Backend)
	}
	if c.Download.Attempts < 1 {
		return fmt.Errorf("download attempts must be at least 1, got %d", c.Download.Attempts)
	}
	if c.Loader.Attempts < 1 {
		return fmt.Errorf("page load attempts must be at least 1, got %d", c.Loader.Attempts)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}
