package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The classification below is tuned against years of real filing pages.
// It deliberately over-matches: a false positive costs one download, a
// false negative loses a report forever.

var (
	strongIndicators = []string{
		"annual report",
		"yearly report",
		"audited annual results",
		"annual audited results",
	}
	urlIndicators = []string{
		"annual_report",
		"annual-report",
		"nsearchives.nseindia.com",
	}
	mediumIndicators = []string{"annual", "yearly", "year ended", "financial year", "fy"}

	yearRangeRe = regexp.MustCompile(`\b(20\d{2})\s*[-–]\s*(20\d{2}|\d{2})\b`)
)

// IsLikelyAnnualReport reports whether the combined row text and URL look
// like an annual report filing rather than some other disclosure.
func IsLikelyAnnualReport(text, url, fromYear, toYear string) bool {
	textLower := strings.ToLower(text)
	urlLower := strings.ToLower(url)

	for _, ind := range strongIndicators {
		if strings.Contains(textLower, ind) {
			return true
		}
	}
	for _, ind := range urlIndicators {
		if strings.Contains(urlLower, ind) {
			return true
		}
	}
	if yearRangeRe.MatchString(text) {
		return true
	}

	if fromYear != "" && toYear != "" {
		if from, err := strconv.Atoi(fromYear); err == nil {
			to, terr := toInt(fromYear, toYear)
			if terr == nil && from >= 2000 && from <= 2030 && to-from == 1 {
				return true
			}
		}
	}

	isDocument := strings.Contains(urlLower, ".pdf") || strings.Contains(urlLower, ".zip")
	if isDocument {
		for _, ind := range mediumIndicators {
			if strings.Contains(textLower, ind) {
				return true
			}
		}
	}
	return false
}

// toInt resolves a to-year that may be two digits by borrowing the
// century from the from-year.
func toInt(fromYear, toYear string) (int, error) {
	if len(toYear) == 4 {
		return strconv.Atoi(toYear)
	}
	if len(fromYear) == 4 && len(toYear) == 2 {
		return strconv.Atoi(fromYear[:2] + toYear)
	}
	return strconv.Atoi(toYear)
}

// IsValidDocumentLink filters out links that can never be filings. RSS
// and XML feeds share the page with document links and must be rejected
// before any download is attempted.
func IsValidDocumentLink(href, linkText string) bool {
	if href == "" {
		return false
	}
	hrefLower := strings.ToLower(href)
	textLower := strings.ToLower(linkText)

	if strings.Contains(hrefLower, "rss") || strings.Contains(hrefLower, "xml") {
		return false
	}

	indicators := []string{
		".pdf", ".zip", ".doc", ".docx",
		"download", "attachment", "document",
		"nsearchives.nseindia.com",
	}
	for _, ind := range indicators {
		if strings.Contains(hrefLower, ind) || strings.Contains(textLower, ind) {
			return true
		}
	}
	return false
}

var yearTextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})-(\d{2,4})`),
	regexp.MustCompile(`(?i)FY\s*(\d{4})-?(\d{2,4})?`),
	regexp.MustCompile(`(?i)year\s+ended?\s+.*?(\d{4})`),
	regexp.MustCompile(`(\d{4})\s*-\s*(\d{2,4})`),
	regexp.MustCompile(`(?i)for\s+the\s+year\s+(\d{4})`),
}

// FinancialYear normalizes a from/to year pair into "YYYY-YY" form,
// falling back to text extraction and finally to "unknown". The sentinel
// keeps download paths well-formed even for undatable filings.
func FinancialYear(fromYear, toYear, text string) string {
	if fromYear != "" && toYear != "" {
		if len(fromYear) == 4 && len(toYear) == 4 {
			return fromYear + "-" + toYear[2:]
		}
		return fromYear + "-" + toYear
	}
	if text != "" {
		if year := YearFromText(text); year != "unknown" {
			return year
		}
	}
	if fromYear != "" {
		return fromYear
	}
	if toYear != "" {
		return toYear
	}
	return "unknown"
}

// YearFromText pulls a financial year out of free text, returning
// "unknown" when nothing matches.
func YearFromText(text string) string {
	for _, re := range yearTextPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) >= 3 && m[2] != "" {
			year1, year2 := m[1], m[2]
			if len(year2) == 2 {
				year2 = year1[:2] + year2
			}
			return year1 + "-" + year2[len(year2)-2:]
		}
		if len(m) >= 2 && m[1] != "" {
			year, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			prev := year - 1
			return fmt.Sprintf("%d-%02d", prev, year%100)
		}
	}
	return "unknown"
}

// Subject picks the most descriptive label available for a filing.
func Subject(submissionType, linkText, financialYear string) string {
	st := strings.TrimSpace(submissionType)
	if st != "" && st != "-" && st != "N/A" {
		return st
	}
	lt := strings.TrimSpace(linkText)
	if len(lt) > 3 {
		if len(lt) > 100 {
			return lt[:100]
		}
		return lt
	}
	return "Annual Report " + financialYear
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{2}-[A-Z]{3}-\d{4}\s+\d{2}:\d{2}:\d{2}`),
	regexp.MustCompile(`^\d{2}-[A-Z]{3}-\d{4}`),
	regexp.MustCompile(`^\d{2}/\d{2}/\d{4}`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}`),
}

var junkWords = []string{
	"EXCHANGE", "RECEIVED", "DISSEMINATION", "TIME TAKEN", "HOVER", "TABLE", "WIDTH", "COLSPAN",
}

// IsDateLike reports whether text starts with a recognized filing date
// format. Hover tooltips leak markup fragments into cell text, so junk
// tokens disqualify outright.
func IsDateLike(text string) bool {
	if len(text) < 8 {
		return false
	}
	upper := strings.ToUpper(text)
	for _, junk := range junkWords {
		if strings.Contains(upper, junk) {
			return false
		}
	}
	if strings.Count(text, "-") > 3 || strings.Count(text, ":") > 3 {
		return false
	}
	trimmed := strings.TrimSpace(text)
	for _, re := range datePatterns {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

var looseDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{2}-[A-Z]{3}-\d{4}\s+\d{2}:\d{2}:\d{2}`),
	regexp.MustCompile(`\d{2}-[A-Z]{3}-\d{4}`),
	regexp.MustCompile(`\d{2}/\d{2}/\d{4}`),
	regexp.MustCompile(`\d{1,2}-\d{1,2}-\d{4}`),
}

// FindDate scans free text for the first embedded date, for cells whose
// clean text failed IsDateLike.
func FindDate(text string) string {
	for _, re := range looseDatePatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}
