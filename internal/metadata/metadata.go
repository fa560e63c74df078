// Package metadata writes the per-filing sidecar record. Every processed
// filing gets a document_meta.json next to its PDF slot, regardless of
// whether the download succeeded, so the archive is auditable without
// consulting logs.
package metadata

import (
	"time"

	"github.com/marketarchive/filing-harvester/internal/download"
	"github.com/marketarchive/filing-harvester/internal/filing"
)

// Document is the persisted sidecar for one filing.
type Document struct {
	FilingDate     string    `json:"filing_date"`
	Ticker         string    `json:"ticker"`
	Year           string    `json:"year"`
	URL            string    `json:"url"`
	Subject        string    `json:"subject"`
	CompanyName    string    `json:"company_name"`
	ISINNumber     string    `json:"isin_number"`
	DateOfListing  string    `json:"date_of_listing"`
	DownloadStatus string    `json:"download_status"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	DownloadedAt   time.Time `json:"downloaded_at"`
	FileSize       int64     `json:"file_size,omitempty"`
}

// New builds the sidecar record for a descriptor and its download outcome.
func New(d filing.Descriptor, out download.Outcome, at time.Time) Document {
	doc := Document{
		FilingDate:     d.FilingDate,
		Ticker:         d.Ticker,
		Year:           d.FinancialYear,
		URL:            d.SourceURL,
		Subject:        d.Subject,
		CompanyName:    d.CompanyName,
		ISINNumber:     d.ISINNumber,
		DateOfListing:  d.DateOfListing,
		DownloadStatus: out.Status.String(),
		DownloadedAt:   at,
	}
	if out.Status == download.StatusSuccess {
		doc.FileSize = out.BytesWritten
	}
	if out.Reason != download.ReasonNone {
		doc.FailureReason = out.Reason.String()
	}
	return doc
}
