package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Header names carry the feed's leading spaces on purpose.
const sampleCSV = `SYMBOL, NAME OF COMPANY, SERIES, DATE OF LISTING, PAID UP VALUE, MARKET LOT, ISIN NUMBER, FACE VALUE
20MICRONS,20 Microns Limited,EQ,06-OCT-2008,5,1,INE144J01027,5
360ONE,360 ONE WAM LIMITED,EQ,19-SEP-2019,1,1,INE466L01038,1
TCS,Tata Consultancy Services Limited,EQ,25-AUG-2004,1,1,INE467B01029,1
`

func TestParseSecuritiesCSV(t *testing.T) {
	companies, err := ParseSecuritiesCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseSecuritiesCSV() error: %v", err)
	}
	if len(companies) != 3 {
		t.Fatalf("got %d companies, want 3", len(companies))
	}

	tcs := companies[2]
	if tcs.Ticker != "TCS" {
		t.Errorf("ticker = %q, want TCS", tcs.Ticker)
	}
	if tcs.CompanyName != "Tata Consultancy Services Limited" {
		t.Errorf("company name = %q", tcs.CompanyName)
	}
	if tcs.ISINNumber != "INE467B01029" {
		t.Errorf("isin = %q, want INE467B01029", tcs.ISINNumber)
	}
	if tcs.DateOfListing != "25-AUG-2004" {
		t.Errorf("date of listing = %q, want 25-AUG-2004", tcs.DateOfListing)
	}
}

func TestParseSecuritiesCSVSkipsBlankRows(t *testing.T) {
	csv := "SYMBOL, NAME OF COMPANY\nTCS,Tata Consultancy Services Limited\n,Missing Symbol Ltd\n"
	companies, err := ParseSecuritiesCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseSecuritiesCSV() error: %v", err)
	}
	if len(companies) != 1 {
		t.Fatalf("got %d companies, want 1", len(companies))
	}
}

func TestParseSecuritiesCSVMissingColumns(t *testing.T) {
	if _, err := ParseSecuritiesCSV(strings.NewReader("FOO,BAR\na,b\n")); err == nil {
		t.Fatal("expected error for header without SYMBOL column")
	}
}

func TestCompaniesFetchesAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "Mozilla/5.0") {
			t.Errorf("unexpected User-Agent %q", ua)
		}
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.SecuritiesURL = srv.URL
	d := New(cfg, nil)

	first := d.Companies(context.Background())
	second := d.Companies(context.Background())

	if hits != 1 {
		t.Errorf("CSV fetched %d times, want 1", hits)
	}
	if len(first) != 3 || len(second) != 3 {
		t.Errorf("company counts = %d, %d; want 3, 3", len(first), len(second))
	}
}

func TestCompaniesFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.SecuritiesURL = srv.URL
	d := New(cfg, nil)

	companies := d.Companies(context.Background())
	if len(companies) != len(FallbackCompanies()) {
		t.Fatalf("got %d companies, want fallback list of %d", len(companies), len(FallbackCompanies()))
	}
	if companies[0].Ticker != "TCS" {
		t.Errorf("first fallback ticker = %q, want TCS", companies[0].Ticker)
	}
}
