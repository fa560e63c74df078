package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/marketarchive/filing-harvester/internal/config"
	"github.com/marketarchive/filing-harvester/internal/discovery"
	"github.com/marketarchive/filing-harvester/internal/download"
	"github.com/marketarchive/filing-harvester/internal/harvester"
	"github.com/marketarchive/filing-harvester/internal/ledger"
	"github.com/marketarchive/filing-harvester/internal/logging"
	"github.com/marketarchive/filing-harvester/internal/metadata"
	"github.com/marketarchive/filing-harvester/internal/metrics"
	"github.com/marketarchive/filing-harvester/internal/scrape"
	"github.com/marketarchive/filing-harvester/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "filing-harvester",
	Short:        "Harvests annual report filings from the exchange into a document archive",
	Version:      fmt.Sprintf("%s (%s)", Version, GitSHA),
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(retryCmd)
}

// loadConfig reads configuration and initializes logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	logging.Setup(cfg.Logging)
	return cfg, nil
}

// startMetrics brings up the Prometheus endpoint if enabled. Called after
// flag overrides so the listen address reflects the final configuration.
func startMetrics(cfg config.Config) {
	if !cfg.Metrics.Enabled {
		return
	}
	metrics.Init("")
	go func() {
		if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
			slog.Error("metrics server exited", "error", err)
		}
	}()
}

// buildHarvester assembles the full stage chain from configuration. The
// returned store must be closed by the caller.
func buildHarvester(cfg config.Config, led *ledger.Ledger) (*harvester.Harvester, store.DocumentStore, error) {
	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("create document store: %w", err)
	}

	parser, err := scrape.NewParser(cfg.Loader.BaseURL)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("create parser: %w", err)
	}

	var loader scrape.PageLoader = scrape.NewHTTPLoader(cfg.Loader)
	if cfg.Loader.SnapshotDir != "" {
		loader = &scrape.SnapshotLoader{Dir: cfg.Loader.SnapshotDir}
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.Rate.RequestsPerSecond), cfg.Rate.Burst)

	h := harvester.New(
		cfg.Harvest,
		discovery.New(cfg.Discovery, st),
		loader,
		parser,
		download.New(cfg.Download, st, led, limiter),
		metadata.NewWriter(st),
		led,
	)
	return h, st, nil
}
