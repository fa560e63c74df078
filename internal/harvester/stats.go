package harvester

import (
	"github.com/marketarchive/filing-harvester/internal/download"
	"github.com/marketarchive/filing-harvester/internal/metrics"
)

// Stats accumulates run-level counters. One instance per run, owned by
// the driver; never shared across runs.
type Stats struct {
	CompaniesDiscovered int
	CompaniesProcessed  int
	CompaniesFailed     int

	ReportsFound    int
	Downloaded      int
	AlreadyPresent  int
	Skipped         int
	Failed          int
	MisnamedPDFs    int
	CorruptedZIPs   int
	ServerErrors    int

	RetryAttempts  int
	RetrySuccesses int
	RetryFailures  int
}

// recordOutcome folds one download outcome into the stats and mirrors it
// to Prometheus when metrics are initialized.
func (s *Stats) recordOutcome(out download.Outcome) {
	m := metrics.Get()
	if m != nil {
		m.IncDownload(out.Status.String())
	}

	switch out.Status {
	case download.StatusSuccess:
		s.Downloaded++
		if out.AttemptsUsed == 0 {
			s.AlreadyPresent++
		}
		if out.MisnamedPDF {
			s.MisnamedPDFs++
			if m != nil {
				m.MisnamedPDFs.Inc()
			}
		}
		if m != nil && out.BytesWritten > 0 {
			m.ObserveDocumentBytes(out.BytesWritten)
		}
	case download.StatusSkippedInvalidURL:
		s.Skipped++
	case download.StatusFailed:
		s.Failed++
		if m != nil {
			m.IncDownloadFailure(out.Reason.String())
		}
		switch out.Reason {
		case download.ReasonArchiveCorrupted, download.ReasonArchiveEmpty, download.ReasonArchiveNoDocument:
			s.CorruptedZIPs++
		case download.ReasonServerErrorPage:
			s.ServerErrors++
		}
	}
}
