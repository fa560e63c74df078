// Package harvester drives a full harvest run: resolve the company
// universe, scrape each filings page, download every annual report, and
// re-drive ledgered failures at the end of the run.
package harvester

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketarchive/filing-harvester/internal/discovery"
	"github.com/marketarchive/filing-harvester/internal/download"
	"github.com/marketarchive/filing-harvester/internal/filing"
	"github.com/marketarchive/filing-harvester/internal/ledger"
	"github.com/marketarchive/filing-harvester/internal/logging"
	"github.com/marketarchive/filing-harvester/internal/metadata"
	"github.com/marketarchive/filing-harvester/internal/metrics"
	"github.com/marketarchive/filing-harvester/internal/scrape"
	"github.com/marketarchive/filing-harvester/internal/store"
)

// progressInterval is how many companies pass between progress log lines.
const progressInterval = 5

// Config holds run-level settings.
type Config struct {
	// MaxCompanies caps the universe for partial runs. Zero means all.
	MaxCompanies int `yaml:"max_companies"`
	// LedgerPath is where the failed-items report is persisted.
	LedgerPath string `yaml:"ledger_path"`
}

// Harvester wires the discovery, scrape, download, and metadata stages
// together. Companies are processed sequentially: the exchange throttles
// aggressively, so parallelism buys bans, not throughput.
type Harvester struct {
	cfg      Config
	disc     *discovery.Discoverer
	loader   scrape.PageLoader
	parser   *scrape.Parser
	pipeline *download.Pipeline
	meta     *metadata.Writer
	ledger   *ledger.Ledger
	log      *slog.Logger
}

// New creates a Harvester over the given stages.
func New(cfg Config, disc *discovery.Discoverer, loader scrape.PageLoader, parser *scrape.Parser, pipe *download.Pipeline, meta *metadata.Writer, led *ledger.Ledger) *Harvester {
	return &Harvester{
		cfg:      cfg,
		disc:     disc,
		loader:   loader,
		parser:   parser,
		pipeline: pipe,
		meta:     meta,
		ledger:   led,
		log:      logging.Component("harvester"),
	}
}

// Run executes a full harvest. The returned stats are complete even when
// ctx is cancelled partway: whatever was processed is counted, and the
// ledger holds the rest.
func (h *Harvester) Run(ctx context.Context) Stats {
	start := time.Now()
	runID := logging.GenerateRunID()
	ctx = logging.WithRunID(ctx, runID)

	h.log.Info("starting harvest run", "run_id", runID)

	var stats Stats
	companies := h.disc.Companies(ctx)
	stats.CompaniesDiscovered = len(companies)

	if h.cfg.MaxCompanies > 0 && len(companies) > h.cfg.MaxCompanies {
		companies = companies[:h.cfg.MaxCompanies]
		h.log.Info("limiting run", "companies", len(companies))
	}

	for i, company := range companies {
		if ctx.Err() != nil {
			h.log.Warn("run cancelled", "processed", i, "total", len(companies))
			break
		}

		h.log.Info("processing company",
			"run_id", runID,
			"position", i+1,
			"total", len(companies),
			"ticker", company.Ticker)

		h.processCompany(ctx, runID, company, &stats)

		if (i+1)%progressInterval == 0 {
			h.log.Info("progress",
				"processed", i+1,
				"total", len(companies),
				"reports", stats.ReportsFound,
				"downloaded", stats.Downloaded,
				"failed", stats.Failed)
		}
	}

	h.retryPass(ctx, &stats)

	if h.cfg.LedgerPath != "" {
		if err := h.ledger.Persist(h.cfg.LedgerPath); err != nil {
			h.log.Error("failed to persist ledger", "path", h.cfg.LedgerPath, "error", err)
		} else {
			h.log.Info("ledger persisted", "path", h.cfg.LedgerPath,
				"failed_downloads", h.ledger.Len(),
				"failed_companies", len(h.ledger.Companies()))
		}
	}

	h.log.Info("harvest run complete",
		"run_id", runID,
		"duration", time.Since(start).Round(time.Second),
		"companies_processed", stats.CompaniesProcessed,
		"companies_failed", stats.CompaniesFailed,
		"reports_found", stats.ReportsFound,
		"downloaded", stats.Downloaded,
		"already_present", stats.AlreadyPresent,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"misnamed_pdfs", stats.MisnamedPDFs,
		"corrupted_archives", stats.CorruptedZIPs,
		"server_error_pages", stats.ServerErrors,
		"retry_attempts", stats.RetryAttempts,
		"retry_successes", stats.RetrySuccesses)

	return stats
}

func (h *Harvester) processCompany(ctx context.Context, runID string, company filing.Company, stats *Stats) {
	log := logging.CompanyLogger(runID, company.Ticker, company.CompanyName)
	m := metrics.Get()

	loadStart := time.Now()
	doc, err := h.loader.Load(ctx, company.Ticker)
	if m != nil {
		m.ObservePageLoadDuration(time.Since(loadStart))
	}
	if err != nil {
		log.Error("filings page unavailable", "error", err)
		stats.CompaniesFailed++
		h.ledger.AppendCompany(ledger.CompanyEntry{
			Company:    company,
			Reason:     "page_load_failed",
			Attempts:   0,
			RecordedAt: time.Now().UTC(),
		})
		if m != nil {
			m.IncCompanyFailed("page_load_failed")
		}
		return
	}

	reports := h.parser.ExtractReports(doc, company)
	stats.ReportsFound += len(reports)
	if m != nil {
		m.CompaniesProcessed.Inc()
		m.ReportsFound.Add(float64(len(reports)))
	}

	if len(reports) == 0 {
		log.Warn("no annual reports found")
		h.ledger.AppendCompany(ledger.CompanyEntry{
			Company:    company,
			Reason:     "no_reports_found",
			Attempts:   0,
			RecordedAt: time.Now().UTC(),
		})
		if m != nil {
			m.IncCompanyFailed("no_reports_found")
		}
		return
	}
	stats.CompaniesProcessed++

	for _, report := range reports {
		if ctx.Err() != nil {
			return
		}
		h.processReport(ctx, report, stats)
	}
}

func (h *Harvester) processReport(ctx context.Context, d filing.Descriptor, stats *Stats) {
	ref := store.DocumentRef{Ticker: d.Ticker, FinancialYear: d.FinancialYear}

	start := time.Now()
	out := h.pipeline.Download(ctx, d, ref.DocumentPath())
	if m := metrics.Get(); m != nil {
		m.ObserveDownloadDuration(time.Since(start))
	}

	h.meta.Record(ctx, d, out)
	stats.recordOutcome(out)
}

// retryPass re-drives every ledgered download once, at the end of the run
// when the server has had time to recover. Entries that fail again are
// re-appended by the pipeline with their cumulative attempt count.
func (h *Harvester) retryPass(ctx context.Context, stats *Stats) {
	entries := h.ledger.Drain()
	if len(entries) == 0 {
		h.log.Info("no failed downloads to retry")
		return
	}

	h.log.Info("retrying failed downloads", "count", len(entries))
	m := metrics.Get()

	for _, e := range entries {
		if ctx.Err() != nil {
			// Not re-attempted: put the entry back so it persists.
			h.ledger.Append(e)
			continue
		}

		stats.RetryAttempts++
		if m != nil {
			m.RetryAttempts.Inc()
		}

		out := h.pipeline.Redrive(ctx, e)
		h.meta.Record(ctx, e.Descriptor, out)

		if out.Status == download.StatusSuccess {
			stats.RetrySuccesses++
			stats.Downloaded++
			if m != nil {
				m.RetryRecovered.Inc()
			}
			h.log.Info("retry recovered download",
				"ticker", e.Descriptor.Ticker,
				"year", e.Descriptor.FinancialYear)
		} else {
			stats.RetryFailures++
			h.log.Warn("retry failed",
				"ticker", e.Descriptor.Ticker,
				"year", e.Descriptor.FinancialYear,
				"reason", out.Reason.String())
		}
	}
}

// RetryOnly re-drives a previously persisted ledger without scraping
// anything. Used by the retry command after a run with many failures.
func (h *Harvester) RetryOnly(ctx context.Context) Stats {
	var stats Stats
	h.retryPass(ctx, &stats)

	if h.cfg.LedgerPath != "" {
		if err := h.ledger.Persist(h.cfg.LedgerPath); err != nil {
			h.log.Error("failed to persist ledger", "path", h.cfg.LedgerPath, "error", err)
		}
	}
	return stats
}
