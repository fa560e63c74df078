// Package ledger is the durable record of failed download attempts and
// failed page loads. The persisted file is the only state a later retry
// pass needs: entries embed the full descriptor, so the scraper is never
// re-invoked during retry.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/marketarchive/filing-harvester/internal/filing"
)

// ErrNoLedger is returned by Load when no ledger file exists.
var ErrNoLedger = errors.New("no ledger file found")

// Entry records one exhausted download, sufficient to re-attempt it.
type Entry struct {
	Descriptor        filing.Descriptor `json:"descriptor"`
	TargetPath        string            `json:"target_path"`
	Reason            string            `json:"reason"`
	AttemptsExhausted int               `json:"attempts_exhausted"`
	RecordedAt        time.Time         `json:"recorded_at"`
}

// CompanyEntry records a company whose filings page never loaded.
type CompanyEntry struct {
	Company    filing.Company `json:"company"`
	Reason     string         `json:"reason"`
	Attempts   int            `json:"attempts"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Ledger accumulates failures during a run. Append-only while processing;
// drained wholesale at the start of a retry pass. The mutex matters only
// if the harvest is ever parallelized; the sequential driver is the sole
// writer today.
type Ledger struct {
	mu        sync.Mutex
	downloads []Entry
	companies []CompanyEntry
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append records a failed download.
func (l *Ledger) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.downloads = append(l.downloads, e)
}

// AppendCompany records a failed page load.
func (l *Ledger) AppendCompany(e CompanyEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.companies = append(l.companies, e)
}

// Drain atomically removes and returns all download entries. Fresh
// failures observed during the retry pass are appended behind the drain.
func (l *Ledger) Drain() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	drained := l.downloads
	l.downloads = nil
	return drained
}

// Len returns the number of pending download entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.downloads)
}

// Snapshot returns a copy of the pending download entries.
func (l *Ledger) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.downloads))
	copy(out, l.downloads)
	return out
}

// Companies returns a copy of the failed-company entries.
func (l *Ledger) Companies() []CompanyEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CompanyEntry, len(l.companies))
	copy(out, l.companies)
	return out
}

// report is the persisted form of the ledger.
type report struct {
	GeneratedAt     time.Time      `json:"generated_at"`
	FailedDownloads []Entry        `json:"failed_downloads"`
	FailedCompanies []CompanyEntry `json:"failed_companies"`
	Summary         summary        `json:"summary"`
}

type summary struct {
	TotalFailedDownloads int `json:"total_failed_downloads"`
	TotalFailedCompanies int `json:"total_failed_companies"`
}

// Persist writes the ledger to path atomically (temp file + rename), so a
// crash mid-write never leaves a truncated report behind.
func (l *Ledger) Persist(path string) error {
	l.mu.Lock()
	rep := report{
		GeneratedAt:     time.Now().UTC(),
		FailedDownloads: append([]Entry(nil), l.downloads...),
		FailedCompanies: append([]CompanyEntry(nil), l.companies...),
		Summary: summary{
			TotalFailedDownloads: len(l.downloads),
			TotalFailedCompanies: len(l.companies),
		},
	}
	l.mu.Unlock()

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write ledger temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename ledger file: %w", err)
	}
	return nil
}

// Load reads a persisted ledger from path.
func Load(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoLedger
		}
		return nil, fmt.Errorf("read ledger file: %w", err)
	}

	var rep report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("parse ledger file: %w", err)
	}

	return &Ledger{
		downloads: rep.FailedDownloads,
		companies: rep.FailedCompanies,
	}, nil
}
