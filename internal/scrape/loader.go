package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/marketarchive/filing-harvester/internal/logging"
)

// PageLoader fetches the rendered filings page for one company.
type PageLoader interface {
	Load(ctx context.Context, ticker string) (*goquery.Document, error)
}

// LoaderConfig holds the page loader tunables. A non-empty SnapshotDir
// switches the harvester to pre-rendered page snapshots instead of live
// fetches.
type LoaderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	FilingsPath    string        `yaml:"filings_path"`
	Attempts       int           `yaml:"attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UserAgent      string        `yaml:"user_agent"`
	SnapshotDir    string        `yaml:"snapshot_dir"`
}

// DefaultLoaderConfig returns the production loader settings.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		BaseURL:        "https://www.nseindia.com",
		FilingsPath:    "/companies-listing/corporate-filings-annual-reports",
		Attempts:       4,
		RetryDelay:     7 * time.Second,
		RequestTimeout: 25 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	}
}

// HTTPLoader loads filings pages over plain HTTP with retry and content
// validation. The exchange serves partially rendered pages under load, so
// a 200 response is not trusted until the document looks like a filings
// table.
type HTTPLoader struct {
	cfg    LoaderConfig
	client *http.Client
	log    *slog.Logger
}

// NewHTTPLoader creates an HTTPLoader.
func NewHTTPLoader(cfg LoaderConfig) *HTTPLoader {
	return &HTTPLoader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		log:    logging.Component("scrape"),
	}
}

// Load fetches the filings page for ticker, retrying until a validated
// document comes back or the attempt budget runs out.
func (l *HTTPLoader) Load(ctx context.Context, ticker string) (*goquery.Document, error) {
	pageURL := fmt.Sprintf("%s%s?symbol=%s", l.cfg.BaseURL, l.cfg.FilingsPath, ticker)

	var lastErr error
	for attempt := 1; attempt <= l.cfg.Attempts; attempt++ {
		if attempt > 1 {
			l.log.Info("retrying page load", "ticker", ticker, "attempt", attempt, "delay", l.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.cfg.RetryDelay):
			}
		}

		l.log.Info("loading filings page", "ticker", ticker, "attempt", attempt, "max_attempts", l.cfg.Attempts)

		doc, err := l.fetch(ctx, pageURL)
		if err != nil {
			l.log.Warn("page load failed", "ticker", ticker, "attempt", attempt, "error", err)
			lastErr = err
			continue
		}
		if !validFilingsPage(doc) {
			l.log.Warn("page loaded but content looks incomplete", "ticker", ticker, "attempt", attempt)
			lastErr = fmt.Errorf("page content invalid for %s", ticker)
			continue
		}
		return doc, nil
	}
	return nil, fmt.Errorf("load page for %s after %d attempts: %w", ticker, l.cfg.Attempts, lastErr)
}

func (l *HTTPLoader) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", l.cfg.UserAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// validFilingsPage checks that the document carries actual filings
// content: either a populated table mentioning filings vocabulary, or
// several tables regardless.
func validFilingsPage(doc *goquery.Document) bool {
	tables := doc.Find("table").Length()
	rows := doc.Find("tr").Length()

	text := strings.ToLower(doc.Text())
	hasVocabulary := strings.Contains(text, "annual") ||
		strings.Contains(text, "attachment") ||
		strings.Contains(text, "filing")

	if tables > 0 && rows > 3 && hasVocabulary {
		return true
	}
	return tables > 2
}

// SnapshotLoader serves pre-rendered page snapshots from a directory,
// one {ticker}.html per company. Used for offline reprocessing and tests.
type SnapshotLoader struct {
	Dir string
}

// Load reads the snapshot for ticker.
func (l *SnapshotLoader) Load(_ context.Context, ticker string) (*goquery.Document, error) {
	f, err := os.Open(filepath.Join(l.Dir, ticker+".html"))
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return goquery.NewDocumentFromReader(f)
}
