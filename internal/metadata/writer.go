package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/marketarchive/filing-harvester/internal/download"
	"github.com/marketarchive/filing-harvester/internal/filing"
	"github.com/marketarchive/filing-harvester/internal/logging"
	"github.com/marketarchive/filing-harvester/internal/store"
)

// Writer persists Document sidecars through the document store.
type Writer struct {
	store store.DocumentStore
	log   *slog.Logger
	now   func() time.Time
}

// NewWriter returns a Writer backed by st.
func NewWriter(st store.DocumentStore) *Writer {
	return &Writer{
		store: st,
		log:   logging.Component("metadata"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Record writes the sidecar for one filing. A sidecar write failure is
// logged but never fails the filing: the document itself is already in
// its final state by the time Record runs.
func (w *Writer) Record(ctx context.Context, d filing.Descriptor, out download.Outcome) {
	doc := New(d, out, w.now())
	if err := w.write(ctx, d, doc); err != nil {
		w.log.Warn("failed to write document metadata",
			"ticker", d.Ticker,
			"year", d.FinancialYear,
			"error", err)
	}
}

func (w *Writer) write(ctx context.Context, d filing.Descriptor, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	ref := store.DocumentRef{Ticker: d.Ticker, FinancialYear: d.FinancialYear}
	return w.store.Write(ctx, ref.MetadataPath(), data)
}
