// Package scrape extracts annual-report descriptors from a company's
// corporate-filings page. The page is a rendered HTML snapshot; parsing
// is table-first with a raw link scan as a fallback for layout changes.
package scrape

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marketarchive/filing-harvester/internal/filing"
	"github.com/marketarchive/filing-harvester/internal/logging"
)

// Parser turns a filings page into descriptors for one company.
type Parser struct {
	baseURL *url.URL
	log     *slog.Logger
}

// NewParser creates a Parser. baseURL anchors relative hrefs.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u, log: logging.Component("scrape")}, nil
}

// ExtractReports pulls every likely annual report from the page. Table
// extraction is authoritative; the any-link scan only runs when no table
// yielded anything, since it produces weaker descriptors (no filing date,
// no submission type).
func (p *Parser) ExtractReports(doc *goquery.Document, company filing.Company) []filing.Descriptor {
	reports := p.extractFromTables(doc, company)
	if len(reports) == 0 {
		p.log.Info("no table reports found, scanning raw links", "ticker", company.Ticker)
		reports = p.extractFromLinks(doc, company)
	}
	p.log.Info("extraction complete", "ticker", company.Ticker, "reports", len(reports))
	return reports
}

// columnMap locates the semantic columns of one filings table.
type columnMap struct {
	attachment int
	fromYear   int
	toYear     int
	submission int
	broadcast  int
}

func (p *Parser) extractFromTables(doc *goquery.Document, company filing.Company) []filing.Descriptor {
	var reports []filing.Descriptor

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}

		cols := mapColumns(rows)

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td, th")
			if cells.Length() == 0 {
				return
			}

			fromYear := cellText(cells, cols.fromYear)
			toYear := cellText(cells, cols.toYear)
			submission := cellText(cells, cols.submission)

			var filingDate string
			if cols.broadcast >= 0 && cols.broadcast < cells.Length() {
				filingDate = extractFilingDate(cells.Eq(cols.broadcast))
			}

			var links *goquery.Selection
			if cols.attachment >= 0 && cols.attachment < cells.Length() {
				links = cells.Eq(cols.attachment).Find("a[href]")
			} else {
				links = cells.Find("a[href]")
			}

			rowText := strings.TrimSpace(cells.Text())

			links.Each(func(_ int, link *goquery.Selection) {
				href, _ := link.Attr("href")
				linkText := strings.TrimSpace(link.Text())

				if !IsValidDocumentLink(href, linkText) {
					return
				}
				docURL := p.absolute(href)
				combined := strings.ToLower(strings.Join([]string{submission, linkText, fromYear, toYear, rowText}, " "))
				if !IsLikelyAnnualReport(combined, docURL, fromYear, toYear) {
					return
				}

				year := FinancialYear(fromYear, toYear, combined)
				reports = append(reports, filing.Descriptor{
					Ticker:        company.Ticker,
					FinancialYear: year,
					SourceURL:     docURL,
					Subject:       Subject(submission, linkText, year),
					CompanyName:   company.CompanyName,
					ISINNumber:    company.ISINNumber,
					DateOfListing: company.DateOfListing,
					FilingDate:    filingDate,
				})
			})
		})
	})

	return reports
}

// mapColumns reads the header row, falling back to the first link-bearing
// column of the early data rows when no header names an attachment.
func mapColumns(rows *goquery.Selection) columnMap {
	cols := columnMap{attachment: -1, fromYear: -1, toYear: -1, submission: -1, broadcast: -1}

	header := rows.Eq(0).Find("th")
	if header.Length() == 0 {
		header = rows.Eq(0).Find("td")
	}
	header.Each(func(i int, cell *goquery.Selection) {
		name := strings.ToUpper(strings.TrimSpace(cell.Text()))
		switch {
		case strings.Contains(name, "ATTACHMENT"):
			cols.attachment = i
		case strings.Contains(name, "FROM") && strings.Contains(name, "YEAR"):
			cols.fromYear = i
		case strings.Contains(name, "TO") && strings.Contains(name, "YEAR"):
			cols.toYear = i
		case strings.Contains(name, "TYPE") || strings.Contains(name, "SUBMISSION"):
			cols.submission = i
		case strings.Contains(name, "BROADCAST") && strings.Contains(name, "DATE"):
			cols.broadcast = i
		}
	})

	if cols.attachment == -1 {
		end := rows.Length()
		if end > 3 {
			end = 3
		}
		rows.Slice(1, end).EachWithBreak(func(_ int, row *goquery.Selection) bool {
			found := false
			row.Find("td, th").EachWithBreak(func(i int, cell *goquery.Selection) bool {
				if cell.Find("a[href]").Length() > 0 {
					cols.attachment = i
					found = true
					return false
				}
				return true
			})
			return !found
		})
	}

	return cols
}

// extractFilingDate digs the filing date out of a broadcast-date cell.
// The cell usually carries a clean date in its link text; when hover
// tooltips pollute it, fall back to the tooltip body and finally to a
// pattern scan of the raw text.
func extractFilingDate(cell *goquery.Selection) string {
	var found string
	cell.Find("a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		text := strings.TrimSpace(link.Text())
		if IsDateLike(text) {
			found = text
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	cell.Find("div.hover_table tbody tr td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		text := strings.TrimSpace(td.Text())
		if IsDateLike(text) {
			found = text
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	return FindDate(cell.Text())
}

func (p *Parser) extractFromLinks(doc *goquery.Document, company filing.Company) []filing.Descriptor {
	var reports []filing.Descriptor

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		linkText := strings.TrimSpace(link.Text())

		if !IsValidDocumentLink(href, linkText) {
			return
		}

		// Pull in surrounding context the way a human scans the page.
		parentText := ""
		parent := link.Parent()
		for i := 0; i < 3 && parent.Length() > 0; i++ {
			parentText += " " + parent.Text()
			parent = parent.Parent()
		}
		combined := strings.ToLower(linkText + " " + parentText)

		docURL := p.absolute(href)
		if !IsLikelyAnnualReport(combined, docURL, "", "") {
			return
		}

		year := YearFromText(combined)
		subject := linkText
		if subject == "" {
			subject = "Annual Report"
		}
		reports = append(reports, filing.Descriptor{
			Ticker:        company.Ticker,
			FinancialYear: year,
			SourceURL:     docURL,
			Subject:       subject,
			CompanyName:   company.CompanyName,
			ISINNumber:    company.ISINNumber,
			DateOfListing: company.DateOfListing,
		})
	})

	return reports
}

func (p *Parser) absolute(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return p.baseURL.ResolveReference(ref).String()
}

func cellText(cells *goquery.Selection, idx int) string {
	if idx < 0 || idx >= cells.Length() {
		return ""
	}
	return strings.TrimSpace(cells.Eq(idx).Text())
}
