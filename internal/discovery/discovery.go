// Package discovery resolves the company universe for a harvest run. The
// primary source is the exchange's listed-securities CSV; a small built-in
// list keeps runs functional when the CSV endpoint is unreachable.
package discovery

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/marketarchive/filing-harvester/internal/filing"
	"github.com/marketarchive/filing-harvester/internal/logging"
	"github.com/marketarchive/filing-harvester/internal/store"
)

// DefaultSecuritiesURL is the exchange's listed-equities CSV.
const DefaultSecuritiesURL = "https://nsearchives.nseindia.com/content/equities/EQUITY_L.csv"

// companiesKey is where the resolved universe is persisted for reference.
const companiesKey = "companies_list.json"

// Config holds the discovery tunables.
type Config struct {
	SecuritiesURL  string        `yaml:"securities_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UserAgent      string        `yaml:"user_agent"`
}

// DefaultConfig returns the production discovery settings.
func DefaultConfig() Config {
	return Config{
		SecuritiesURL:  DefaultSecuritiesURL,
		RequestTimeout: 30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	}
}

// Discoverer fetches and caches the company universe.
type Discoverer struct {
	cfg    Config
	client *http.Client
	store  store.DocumentStore
	log    *slog.Logger
	cache  []filing.Company
}

// New creates a Discoverer. The store may be nil to skip persisting the
// resolved list.
func New(cfg Config, st store.DocumentStore) *Discoverer {
	return &Discoverer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		store:  st,
		log:    logging.Component("discovery"),
	}
}

// Companies returns the company universe, fetching the securities CSV on
// first call and serving the in-memory cache afterwards. A CSV failure is
// downgraded to the built-in fallback list rather than failing the run.
func (d *Discoverer) Companies(ctx context.Context) []filing.Company {
	if d.cache != nil {
		d.log.Info("using cached company list", "count", len(d.cache))
		return d.cache
	}

	companies, err := d.fetchCSV(ctx)
	if err != nil {
		d.log.Error("failed to load securities CSV, using fallback list", "error", err)
		d.cache = FallbackCompanies()
		return d.cache
	}
	d.log.Info("loaded company universe from securities CSV", "count", len(companies))

	if d.store != nil {
		if data, err := json.MarshalIndent(companies, "", "  "); err == nil {
			if err := d.store.Write(ctx, companiesKey, data); err != nil {
				d.log.Warn("failed to persist company list", "error", err)
			}
		}
	}

	d.cache = companies
	return d.cache
}

func (d *Discoverer) fetchCSV(ctx context.Context) ([]filing.Company, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.SecuritiesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch securities csv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("securities csv returned status %d", resp.StatusCode)
	}

	companies, err := ParseSecuritiesCSV(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, fmt.Errorf("securities csv contained no companies")
	}
	return companies, nil
}

// ParseSecuritiesCSV parses the exchange's listed-equities CSV. The feed
// pads most header names with a leading space, so headers are matched
// after trimming.
func ParseSecuritiesCSV(r io.Reader) ([]filing.Company, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	symbolIdx, ok := cols["SYMBOL"]
	if !ok {
		return nil, fmt.Errorf("csv header missing SYMBOL column")
	}
	nameIdx, ok := cols["NAME OF COMPANY"]
	if !ok {
		return nil, fmt.Errorf("csv header missing NAME OF COMPANY column")
	}
	isinIdx, hasISIN := cols["ISIN NUMBER"]
	listedIdx, hasListed := cols["DATE OF LISTING"]

	var companies []filing.Company
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		c := filing.Company{
			Ticker:      field(row, symbolIdx),
			CompanyName: field(row, nameIdx),
		}
		if hasISIN {
			c.ISINNumber = field(row, isinIdx)
		}
		if hasListed {
			c.DateOfListing = field(row, listedIdx)
		}
		if c.Ticker == "" || c.CompanyName == "" {
			continue
		}
		companies = append(companies, c)
	}
	return companies, nil
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// FallbackCompanies is the built-in universe used when the CSV endpoint
// is down. Deliberately tiny; a fallback run is a smoke run.
func FallbackCompanies() []filing.Company {
	return []filing.Company{
		{Ticker: "TCS", CompanyName: "Tata Consultancy Services Limited"},
		{Ticker: "RELIANCE", CompanyName: "Reliance Industries Limited"},
		{Ticker: "20MICRONS", CompanyName: "20 Microns Limited"},
		{Ticker: "360ONE", CompanyName: "360 ONE WAM Limited"},
	}
}
