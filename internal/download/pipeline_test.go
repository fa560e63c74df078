package download

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/marketarchive/filing-harvester/internal/filing"
	"github.com/marketarchive/filing-harvester/internal/ledger"
	"github.com/marketarchive/filing-harvester/internal/store"
)

const docKey = "TCS/2023-24/document.pdf"

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.DelayIncrement = time.Millisecond
	cfg.RequestTimeout = 5 * time.Second
	return cfg
}

func newTestPipeline(t *testing.T, led *ledger.Ledger) (*Pipeline, store.DocumentStore) {
	t.Helper()
	st, err := store.New(store.Config{Backend: "local", LocalDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return New(fastConfig(), st, led, nil), st
}

func descriptor(url string) filing.Descriptor {
	return filing.Descriptor{
		Ticker:        "TCS",
		FinancialYear: "2023-24",
		SourceURL:     url,
		Subject:       "Annual Report",
	}
}

func pdfBody(size int) []byte {
	return append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), size)...)
}

func zipWithPDF(t *testing.T, pdfSize int) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("report.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(pdfBody(pdfSize)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// noisyZip builds an archive whose member data deflate cannot shrink, so
// fixed-offset corruption always lands inside the compressed stream.
func noisyZip(t *testing.T, pdfSize int) []byte {
	t.Helper()
	body := make([]byte, pdfSize)
	copy(body, "%PDF-1.4\n")
	state := uint32(0x2545F491)
	for i := len("%PDF-1.4\n"); i < pdfSize; i++ {
		state = state*1664525 + 1013904223
		body[i] = byte(state >> 24)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("report.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(body); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func serve(t *testing.T, contentType string, body []byte) (*httptest.Server, *int) {
	t.Helper()
	hits := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Error("request sent without User-Agent")
		}
		if accept := r.Header.Get("Accept"); accept != acceptHeader {
			t.Errorf("Accept = %q, want %q", accept, acceptHeader)
		}
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func TestDownloadArchive(t *testing.T) {
	srv, hits := serve(t, "application/zip", zipWithPDF(t, 15000))
	p, st := newTestPipeline(t, nil)

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.zip"), docKey)

	if out.Status != StatusSuccess {
		t.Fatalf("status = %v (%v), want success", out.Status, out.Reason)
	}
	if out.AttemptsUsed != 1 {
		t.Errorf("attempts = %d, want 1", out.AttemptsUsed)
	}
	if out.MisnamedPDF {
		t.Error("MisnamedPDF = true for a real archive")
	}
	if *hits != 1 {
		t.Errorf("server hit %d times, want 1", *hits)
	}

	doc, err := st.Read(context.Background(), docKey)
	if err != nil {
		t.Fatalf("document not persisted: %v", err)
	}
	if !bytes.HasPrefix(doc, []byte("%PDF")) {
		t.Error("persisted document lacks PDF signature")
	}
	if int64(len(doc)) != out.BytesWritten {
		t.Errorf("BytesWritten = %d, persisted %d", out.BytesWritten, len(doc))
	}
}

func TestDownloadShortCircuitsExistingDocument(t *testing.T) {
	srv, hits := serve(t, "application/zip", zipWithPDF(t, 15000))
	p, st := newTestPipeline(t, nil)

	existing := pdfBody(20000)
	if err := st.Write(context.Background(), docKey, existing); err != nil {
		t.Fatal(err)
	}

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.zip"), docKey)

	if out.Status != StatusSuccess {
		t.Fatalf("status = %v, want success", out.Status)
	}
	if out.AttemptsUsed != 0 {
		t.Errorf("attempts = %d, want 0 for short-circuit", out.AttemptsUsed)
	}
	if out.BytesWritten != int64(len(existing)) {
		t.Errorf("BytesWritten = %d, want existing size %d", out.BytesWritten, len(existing))
	}
	if *hits != 0 {
		t.Errorf("server hit %d times, want 0", *hits)
	}
}

func TestDownloadReplacesUndersizedLeftover(t *testing.T) {
	srv, _ := serve(t, "application/zip", zipWithPDF(t, 15000))
	p, st := newTestPipeline(t, nil)

	// A leftover below the floor must be deleted and re-downloaded.
	if err := st.Write(context.Background(), docKey, pdfBody(500)); err != nil {
		t.Fatal(err)
	}

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.zip"), docKey)

	if out.Status != StatusSuccess {
		t.Fatalf("status = %v, want success", out.Status)
	}
	if out.AttemptsUsed != 1 {
		t.Errorf("attempts = %d, want 1", out.AttemptsUsed)
	}
	size, err := st.Stat(context.Background(), docKey)
	if err != nil {
		t.Fatal(err)
	}
	if size < 10000 {
		t.Errorf("persisted size = %d, still undersized", size)
	}
}

func TestDownloadSkipsInvalidURLs(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	for _, url := range []string{"", "unknown", "https://example.com/feed.rss"} {
		out := p.Download(context.Background(), descriptor(url), docKey)
		if out.Status != StatusSkippedInvalidURL {
			t.Errorf("Download(%q) status = %v, want skipped", url, out.Status)
		}
		if out.AttemptsUsed != 0 {
			t.Errorf("Download(%q) attempts = %d, want 0", url, out.AttemptsUsed)
		}
	}
}

func TestDownloadMisnamedPDF(t *testing.T) {
	// Archive-labeled URL serving a raw PDF: first-class success.
	srv, _ := serve(t, "application/zip", pdfBody(15000))
	p, st := newTestPipeline(t, nil)

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.zip"), docKey)

	if out.Status != StatusSuccess {
		t.Fatalf("status = %v (%v), want success", out.Status, out.Reason)
	}
	if !out.MisnamedPDF {
		t.Error("MisnamedPDF = false, want true")
	}
	if _, err := st.Stat(context.Background(), docKey); err != nil {
		t.Errorf("document not persisted: %v", err)
	}
}

func TestDownloadMisnamedPDFTooSmall(t *testing.T) {
	srv, hits := serve(t, "application/zip", pdfBody(2000))
	led := ledger.New()
	p, _ := newTestPipeline(t, led)

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.zip"), docKey)

	if out.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	if out.Reason != ReasonTooSmall {
		t.Errorf("reason = %v, want too_small", out.Reason)
	}
	if *hits != 4 {
		t.Errorf("server hit %d times, want 4 attempts", *hits)
	}
}

func TestDownloadHTMLErrorPage(t *testing.T) {
	srv, hits := serve(t, "application/zip", []byte("<html><body>Service unavailable</body></html>"))
	led := ledger.New()
	p, _ := newTestPipeline(t, led)

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.zip"), docKey)

	if out.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	if out.Reason != ReasonServerErrorPage {
		t.Errorf("reason = %v, want server_error_page", out.Reason)
	}
	if out.AttemptsUsed != 4 {
		t.Errorf("attempts = %d, want 4", out.AttemptsUsed)
	}
	if *hits != 4 {
		t.Errorf("server hit %d times, want 4", *hits)
	}

	entries := led.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("ledger holds %d entries, want 1", len(entries))
	}
	if entries[0].Reason != "server_error_page" {
		t.Errorf("ledger reason = %q, want server_error_page", entries[0].Reason)
	}
	if entries[0].AttemptsExhausted != 4 {
		t.Errorf("attempts_exhausted = %d, want 4", entries[0].AttemptsExhausted)
	}
}

func TestDownloadCorruptedArchive(t *testing.T) {
	raw := noisyZip(t, 15000)
	for i := 200; i < 240; i++ {
		raw[i] ^= 0xFF
	}
	srv, _ := serve(t, "application/zip", raw)
	p, _ := newTestPipeline(t, nil)

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.zip"), docKey)

	if out.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	if out.Reason != ReasonArchiveCorrupted {
		t.Errorf("reason = %v, want archive_corrupted", out.Reason)
	}
}

func TestDownloadTruncatedArchive(t *testing.T) {
	srv, _ := serve(t, "application/zip", []byte("PK\x03\x04tiny"))
	p, _ := newTestPipeline(t, nil)

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.zip"), docKey)

	if out.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	if out.Reason != ReasonTooSmall {
		t.Errorf("reason = %v, want too_small", out.Reason)
	}
}

func TestDownloadDirectPDF(t *testing.T) {
	srv, _ := serve(t, "application/pdf", pdfBody(15000))
	p, st := newTestPipeline(t, nil)

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.pdf"), docKey)

	if out.Status != StatusSuccess {
		t.Fatalf("status = %v (%v), want success", out.Status, out.Reason)
	}
	if _, err := st.Stat(context.Background(), docKey); err != nil {
		t.Errorf("document not persisted: %v", err)
	}
}

func TestDownloadDirectLargeUnsignedPayload(t *testing.T) {
	// No PDF signature, but big enough to accept on size alone.
	srv, _ := serve(t, "application/octet-stream", bytes.Repeat([]byte{0x42}, 60000))
	p, _ := newTestPipeline(t, nil)

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.pdf"), docKey)

	if out.Status != StatusSuccess {
		t.Fatalf("status = %v (%v), want success", out.Status, out.Reason)
	}
}

func TestDownloadDirectSmallUnsignedPayload(t *testing.T) {
	srv, _ := serve(t, "application/octet-stream", bytes.Repeat([]byte{0x42}, 20000))
	p, _ := newTestPipeline(t, nil)

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.pdf"), docKey)

	if out.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	if out.Reason != ReasonValidationFailed {
		t.Errorf("reason = %v, want validation_failed", out.Reason)
	}
}

func TestDownloadDirectHTMLErrorPage(t *testing.T) {
	srv, _ := serve(t, "text/html", []byte("<!DOCTYPE html><html><body>blocked</body></html>"))
	p, _ := newTestPipeline(t, nil)

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.pdf"), docKey)

	if out.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	if out.Reason != ReasonServerErrorPage {
		t.Errorf("reason = %v, want server_error_page", out.Reason)
	}
}

func TestDownloadNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	led := ledger.New()
	p, _ := newTestPipeline(t, led)

	out := p.Download(context.Background(), descriptor(srv.URL+"/report.zip"), docKey)

	if out.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	if out.Reason != ReasonNetworkError {
		t.Errorf("reason = %v, want network_error", out.Reason)
	}
	if led.Len() != 1 {
		t.Errorf("ledger holds %d entries, want 1", led.Len())
	}
}

func TestRedriveCarriesPriorAttempts(t *testing.T) {
	srv, _ := serve(t, "application/zip", []byte("<html>still down</html>"))
	led := ledger.New()
	p, _ := newTestPipeline(t, led)

	out := p.Redrive(context.Background(), ledger.Entry{
		Descriptor:        descriptor(srv.URL + "/report.zip"),
		TargetPath:        docKey,
		Reason:            "server_error_page",
		AttemptsExhausted: 4,
		RecordedAt:        time.Now().UTC(),
	})

	if out.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	entries := led.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("ledger holds %d entries, want 1", len(entries))
	}
	if entries[0].AttemptsExhausted != 8 {
		t.Errorf("attempts_exhausted = %d, want 8", entries[0].AttemptsExhausted)
	}
}

func TestRedriveRecovery(t *testing.T) {
	srv, _ := serve(t, "application/zip", zipWithPDF(t, 15000))
	led := ledger.New()
	p, st := newTestPipeline(t, led)

	out := p.Redrive(context.Background(), ledger.Entry{
		Descriptor:        descriptor(srv.URL + "/report.zip"),
		TargetPath:        docKey,
		Reason:            "network_error",
		AttemptsExhausted: 4,
	})

	if out.Status != StatusSuccess {
		t.Fatalf("status = %v (%v), want success", out.Status, out.Reason)
	}
	if led.Len() != 0 {
		t.Errorf("ledger holds %d entries after recovery, want 0", led.Len())
	}
	if _, err := st.Stat(context.Background(), docKey); err != nil {
		t.Errorf("document not persisted: %v", err)
	}
}
