// Package download implements the fetch-sniff-validate-persist cycle for
// one filing document, including the retry loop and failure classification.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/marketarchive/filing-harvester/internal/archive"
	"github.com/marketarchive/filing-harvester/internal/filing"
	"github.com/marketarchive/filing-harvester/internal/ledger"
	"github.com/marketarchive/filing-harvester/internal/sniff"
	"github.com/marketarchive/filing-harvester/internal/store"
)

// Config holds the pipeline's tunables. The size thresholds are carried
// over from long observation of the exchange's archive server rather than
// derived from any format property.
type Config struct {
	Attempts       int           `yaml:"attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	DelayIncrement time.Duration `yaml:"delay_increment"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MinDocumentSize is the floor below which a payload or extracted
	// member is a stub or error placeholder, not a multi-page report.
	MinDocumentSize int `yaml:"min_document_size"`
	// LargeFileSize accepts unsigned content on size alone: big enough to
	// probably be a real document even without a confirmed signature.
	LargeFileSize int `yaml:"large_file_size"`
	// MinArchiveSize short-circuits clearly truncated archive downloads
	// before paying the parse cost.
	MinArchiveSize int64 `yaml:"min_archive_size"`
	// MaxBodySize caps how much of a response is buffered.
	MaxBodySize int64 `yaml:"max_body_size"`

	UserAgent string `yaml:"user_agent"`
}

// DefaultConfig returns the tuning used against the exchange in production.
func DefaultConfig() Config {
	return Config{
		Attempts:        4,
		BaseDelay:       3 * time.Second,
		DelayIncrement:  2 * time.Second,
		RequestTimeout:  35 * time.Second,
		MinDocumentSize: 10000,
		LargeFileSize:   50000,
		MinArchiveSize:  1000,
		MaxBodySize:     256 << 20,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	}
}

const acceptHeader = "application/zip, application/pdf, application/octet-stream, */*"

// Pipeline downloads one document end to end: fetch, sniff, route to the
// archive or direct-save path, validate, persist or reject. Failures are
// classified and, once the attempt budget is exhausted, recorded in the
// retry ledger.
type Pipeline struct {
	cfg     Config
	client  *http.Client
	store   store.DocumentStore
	ledger  *ledger.Ledger
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a pipeline. The ledger may be nil when failure recording is
// handled elsewhere (tests); the limiter may be nil to disable pacing.
func New(cfg Config, st store.DocumentStore, led *ledger.Ledger, limiter *rate.Limiter) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		store:   st,
		ledger:  led,
		limiter: limiter,
		log:     slog.With("component", "download"),
	}
}

// Download runs one full attempt sequence for the descriptor, persisting
// the document under docKey on success. Every terminal failure is
// non-fatal to the run: the caller just moves on to the next descriptor.
func (p *Pipeline) Download(ctx context.Context, d filing.Descriptor, docKey string) Outcome {
	return p.run(ctx, d, docKey, 0)
}

// Redrive re-attempts a previously ledgered failure, carrying its prior
// attempt count into any fresh ledger entry. Safe to call repeatedly.
func (p *Pipeline) Redrive(ctx context.Context, e ledger.Entry) Outcome {
	return p.run(ctx, e.Descriptor, e.TargetPath, e.AttemptsExhausted)
}

func (p *Pipeline) run(ctx context.Context, d filing.Descriptor, docKey string, priorAttempts int) Outcome {
	log := p.log.With("ticker", d.Ticker, "year", d.FinancialYear)

	// Idempotent short-circuit: a valid document on disk means no network
	// call at all. An undersized leftover is a prior partial write.
	if size, err := p.store.Stat(ctx, docKey); err == nil {
		if size >= int64(p.cfg.MinDocumentSize) {
			log.Info("valid document already exists", "bytes", size)
			return Outcome{Status: StatusSuccess, BytesWritten: size, AttemptsUsed: 0}
		}
		log.Warn("removing undersized existing document", "bytes", size)
		if err := p.store.Delete(ctx, docKey); err != nil {
			log.Warn("failed to remove undersized document", "error", err)
		}
	}

	if !d.Fetchable() {
		log.Info("skipping invalid url", "url", d.SourceURL)
		return Outcome{Status: StatusSkippedInvalidURL}
	}

	lastReason := ReasonNetworkError
	attempts := 0

	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		if attempt == 1 {
			// Politeness pacing before the first request to this host.
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					break
				}
			}
		} else {
			delay := p.cfg.BaseDelay + time.Duration(attempt-1)*p.cfg.DelayIncrement
			log.Info("backing off before retry", "attempt", attempt, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				break
			}
		}
		attempts = attempt

		log.Info("downloading", "url", d.SourceURL, "attempt", attempt, "max_attempts", p.cfg.Attempts)

		body, contentType, err := p.fetch(ctx, d.SourceURL)
		if err != nil {
			log.Warn("fetch failed", "attempt", attempt, "error", err)
			lastReason = ReasonNetworkError
			continue
		}

		reason, bytesWritten, misnamed := p.route(ctx, docKey, body, d.SourceURL, contentType, log)
		if reason == ReasonNone {
			log.Info("download complete", "bytes", bytesWritten, "attempts", attempt, "misnamed_pdf", misnamed)
			return Outcome{
				Status:       StatusSuccess,
				BytesWritten: bytesWritten,
				AttemptsUsed: attempt,
				MisnamedPDF:  misnamed,
			}
		}
		log.Warn("attempt rejected", "attempt", attempt, "reason", reason.String())
		lastReason = reason
	}

	log.Error("download failed", "url", d.SourceURL, "attempts", attempts, "reason", lastReason.String())

	if p.ledger != nil {
		p.ledger.Append(ledger.Entry{
			Descriptor:        d,
			TargetPath:        docKey,
			Reason:            lastReason.String(),
			AttemptsExhausted: priorAttempts + attempts,
			RecordedAt:        time.Now().UTC(),
		})
	}

	return Outcome{Status: StatusFailed, Reason: lastReason, AttemptsUsed: attempts}
}

// fetch issues the GET and buffers the full body. Documents are order-10MB,
// so assembling in memory is cheaper than streaming to disk and re-reading.
func (p *Pipeline) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBodySize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > p.cfg.MaxBodySize {
		return nil, "", fmt.Errorf("body exceeds %d bytes", p.cfg.MaxBodySize)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// route branches on the sniffed signature combined with the server's
// declared labels. The signature always wins when the two disagree.
func (p *Pipeline) route(ctx context.Context, docKey string, body []byte, rawURL, contentType string, log *slog.Logger) (FailureReason, int64, bool) {
	kind := sniff.Classify(body)

	if archiveLabeled(rawURL, contentType) {
		switch kind {
		case sniff.PDF:
			// Misnamed document: a .zip label over a raw PDF. First-class
			// success path, the server is known to do this.
			log.Info("archive-labeled payload is a raw PDF, saving directly")
			reason, n := p.saveDocument(ctx, docKey, body, log)
			return reason, n, reason == ReasonNone
		case sniff.HTML:
			log.Error("server returned an HTML error page instead of an archive")
			return ReasonServerErrorPage, 0, false
		case sniff.ZIP:
			if int64(len(body)) < p.cfg.MinArchiveSize {
				log.Warn("archive payload too small", "bytes", len(body))
				return ReasonTooSmall, 0, false
			}
			reason, n := p.handleArchive(ctx, docKey, body, log)
			return reason, n, false
		default:
			log.Error("archive-labeled payload has no recognizable signature", "bytes", len(body))
			return ReasonArchiveCorrupted, 0, false
		}
	}

	if kind == sniff.HTML {
		log.Error("server returned an HTML error page instead of a document")
		return ReasonServerErrorPage, 0, false
	}
	if len(body) < p.cfg.MinDocumentSize {
		log.Warn("payload too small", "bytes", len(body))
		return ReasonTooSmall, 0, false
	}
	if kind == sniff.PDF || len(body) > p.cfg.LargeFileSize {
		reason, n := p.saveDocument(ctx, docKey, body, log)
		return reason, n, false
	}
	log.Warn("payload is neither a signed PDF nor large enough to accept", "bytes", len(body))
	return ReasonValidationFailed, 0, false
}

// handleArchive validates the archive and extracts its first PDF member.
// The body is spooled to a temp file so the ZIP central directory can be
// read; nothing reaches the final key until validation passes.
func (p *Pipeline) handleArchive(ctx context.Context, docKey string, body []byte, log *slog.Logger) (FailureReason, int64) {
	tmp, err := os.CreateTemp("", "harvest-*.zip")
	if err != nil {
		log.Error("create temp archive", "error", err)
		return ReasonValidationFailed, 0
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		log.Error("write temp archive", "error", err)
		return ReasonValidationFailed, 0
	}
	if err := tmp.Close(); err != nil {
		log.Error("close temp archive", "error", err)
		return ReasonValidationFailed, 0
	}

	switch status := archive.Validate(tmpPath, ".pdf"); status {
	case archive.StatusCorrupted:
		log.Error("archive is corrupted on the server side")
		return ReasonArchiveCorrupted, 0
	case archive.StatusEmpty:
		log.Error("archive contains no files")
		return ReasonArchiveEmpty, 0
	case archive.StatusNoDocument:
		log.Error("archive is valid but contains no PDF member")
		return ReasonArchiveNoDocument, 0
	}

	data, err := archive.Extract(tmpPath, ".pdf", p.cfg.MinDocumentSize)
	switch {
	case err == nil:
	case errors.Is(err, archive.ErrNoDocument):
		return ReasonArchiveNoDocument, 0
	case errors.Is(err, archive.ErrTooSmall):
		log.Warn("extracted member below size floor", "error", err)
		return ReasonTooSmall, 0
	case errors.Is(err, archive.ErrWrongSignature):
		log.Warn("extracted member is not a PDF", "error", err)
		return ReasonValidationFailed, 0
	default:
		log.Error("archive extraction failed", "error", err)
		return ReasonArchiveCorrupted, 0
	}

	if err := p.store.Write(ctx, docKey, data); err != nil {
		log.Error("write extracted document", "error", err)
		return ReasonValidationFailed, 0
	}
	return ReasonNone, int64(len(data))
}

// saveDocument persists a direct (non-archive) payload after the same
// floor check every branch gets.
func (p *Pipeline) saveDocument(ctx context.Context, docKey string, body []byte, log *slog.Logger) (FailureReason, int64) {
	if len(body) < p.cfg.MinDocumentSize {
		log.Warn("document below size floor", "bytes", len(body))
		return ReasonTooSmall, 0
	}
	if err := p.store.Write(ctx, docKey, body); err != nil {
		log.Error("write document", "error", err)
		return ReasonValidationFailed, 0
	}
	return ReasonNone, int64(len(body))
}

// archiveLabeled reports whether the server labeled this payload as an
// archive, by URL suffix or Content-Type token.
func archiveLabeled(rawURL, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "zip") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawURL), ".zip")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".zip")
}

// sleep waits for d or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
