// Package filing defines the domain types shared across the harvester:
// companies discovered from the exchange listing and the document
// descriptors produced by scraping each company's filings page.
package filing

import "strings"

// UnknownValue is the sentinel used where the source page gives no usable
// value (financial years, URLs, filing dates).
const UnknownValue = "unknown"

// Company is one listed company from the securities CSV.
// Optional fields default to the empty string, never to a missing key.
type Company struct {
	Ticker        string `json:"ticker"`
	CompanyName   string `json:"company_name"`
	ISINNumber    string `json:"isin_number"`
	DateOfListing string `json:"date_of_listing"`
}

// Descriptor is one discovered annual-report filing awaiting download.
// It is produced once by the scraper with explicit defaults and never
// mutated downstream; pipeline results only copy from it.
type Descriptor struct {
	Ticker        string `json:"ticker"`
	FinancialYear string `json:"financial_year"`
	SourceURL     string `json:"source_url"`
	Subject       string `json:"subject"`
	CompanyName   string `json:"company_name"`
	ISINNumber    string `json:"isin_number"`
	DateOfListing string `json:"date_of_listing"`
	FilingDate    string `json:"filing_date"`
}

// Fetchable reports whether the descriptor's URL can be downloaded at all.
// Empty URLs, the "unknown" sentinel, and RSS feed links are recorded as
// skipped and never fetched.
func (d Descriptor) Fetchable() bool {
	if d.SourceURL == "" || d.SourceURL == UnknownValue {
		return false
	}
	lower := strings.ToLower(d.SourceURL)
	return !strings.Contains(lower, "rss")
}
