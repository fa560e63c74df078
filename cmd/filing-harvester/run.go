package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marketarchive/filing-harvester/internal/ledger"
)

var runFlags struct {
	outputDir        string
	snapshotDir      string
	maxCompanies     int
	downloadAttempts int
	pageAttempts     int
	metricsAddr      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full harvest: discover companies, scrape filings, download reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if runFlags.outputDir != "" {
			cfg.Store.LocalDir = runFlags.outputDir
		}
		if runFlags.maxCompanies > 0 {
			cfg.Harvest.MaxCompanies = runFlags.maxCompanies
		}
		if runFlags.downloadAttempts > 0 {
			cfg.Download.Attempts = runFlags.downloadAttempts
		}
		if runFlags.pageAttempts > 0 {
			cfg.Loader.Attempts = runFlags.pageAttempts
		}
		if runFlags.metricsAddr != "" {
			cfg.Metrics.Address = runFlags.metricsAddr
			cfg.Metrics.Enabled = true
		}
		if runFlags.snapshotDir != "" {
			cfg.Loader.SnapshotDir = runFlags.snapshotDir
		}
		startMetrics(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		led := ledger.New()
		h, st, err := buildHarvester(cfg, led)
		if err != nil {
			return err
		}
		defer st.Close()

		stats := h.Run(ctx)

		slog.Info("run finished",
			"companies_discovered", stats.CompaniesDiscovered,
			"companies_processed", stats.CompaniesProcessed,
			"reports_found", stats.ReportsFound,
			"downloaded", stats.Downloaded,
			"failed", stats.Failed)

		return ctx.Err()
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.outputDir, "output-dir", "", "local directory for downloaded documents")
	runCmd.Flags().StringVar(&runFlags.snapshotDir, "snapshot-dir", "", "serve filings pages from pre-rendered snapshots in this directory")
	runCmd.Flags().IntVar(&runFlags.maxCompanies, "max-companies", 0, "cap the number of companies processed (0 = all)")
	runCmd.Flags().IntVar(&runFlags.downloadAttempts, "download-attempts", 0, "attempts per document download")
	runCmd.Flags().IntVar(&runFlags.pageAttempts, "page-attempts", 0, "attempts per filings page load")
	runCmd.Flags().StringVar(&runFlags.metricsAddr, "metrics-addr", "", "listen address for the metrics endpoint")
}
