// Package sniff classifies downloaded content by byte signature.
//
// The exchange's archive server is known to mislabel payloads: a .zip URL
// may serve a raw PDF, and error pages come back as HTML with HTTP 200.
// Signature sniffing is the only dependable classifier, so routing never
// trusts the Content-Type header or the URL suffix alone.
package sniff

import "bytes"

// Kind is the sniffed content classification.
type Kind int

const (
	Unknown Kind = iota
	ZIP
	PDF
	HTML
)

// String returns the lowercase name for logging and metrics labels.
func (k Kind) String() string {
	switch k {
	case ZIP:
		return "zip"
	case PDF:
		return "pdf"
	case HTML:
		return "html"
	default:
		return "unknown"
	}
}

// htmlWindow bounds the search for HTML markers to the start of the body.
const htmlWindow = 1024

var (
	zipMagic   = []byte("PK")
	pdfMagic   = []byte("%PDF")
	htmlTag    = []byte("<html")
	doctypeTag = []byte("<!doctype")
)

// Classify inspects the leading bytes of a payload and returns its kind.
// Precedence is ZIP signature, then PDF signature, then an HTML marker
// anywhere in the first kilobyte. Deterministic and stateless.
func Classify(prefix []byte) Kind {
	if bytes.HasPrefix(prefix, zipMagic) {
		return ZIP
	}
	if bytes.HasPrefix(prefix, pdfMagic) {
		return PDF
	}
	window := prefix
	if len(window) > htmlWindow {
		window = window[:htmlWindow]
	}
	lower := bytes.ToLower(window)
	if bytes.Contains(lower, htmlTag) || bytes.Contains(lower, doctypeTag) {
		return HTML
	}
	return Unknown
}
