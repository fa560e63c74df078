package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marketarchive/filing-harvester/internal/ledger"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-attempt the downloads recorded in the failed-items ledger, without scraping",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		led, err := ledger.Load(cfg.Harvest.LedgerPath)
		if err != nil {
			if errors.Is(err, ledger.ErrNoLedger) {
				slog.Info("no ledger file, nothing to retry", "path", cfg.Harvest.LedgerPath)
				return nil
			}
			return fmt.Errorf("load ledger: %w", err)
		}
		if led.Len() == 0 {
			slog.Info("ledger holds no failed downloads, nothing to retry")
			return nil
		}

		startMetrics(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		h, st, err := buildHarvester(cfg, led)
		if err != nil {
			return err
		}
		defer st.Close()

		stats := h.RetryOnly(ctx)

		slog.Info("retry pass finished",
			"attempted", stats.RetryAttempts,
			"recovered", stats.RetrySuccesses,
			"still_failing", stats.RetryFailures)

		return ctx.Err()
	},
}
