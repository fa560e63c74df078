// Package archive validates and extracts documents from ZIP archives
// served by the exchange. Server-side corruption is common enough that
// every archive is integrity-tested member by member before anything is
// extracted from it.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Status classifies the structural state of a downloaded archive.
type Status int

const (
	StatusValid Status = iota
	StatusCorrupted
	StatusEmpty
	StatusNoDocument
)

// String returns the lowercase name for logging and metrics labels.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusCorrupted:
		return "corrupted"
	case StatusEmpty:
		return "empty"
	case StatusNoDocument:
		return "no_document"
	default:
		return "unknown"
	}
}

var (
	// ErrNoDocument is returned when the archive holds no member with the
	// target extension.
	ErrNoDocument = errors.New("archive contains no target document")

	// ErrTooSmall is returned when the extracted member is below the
	// minimum document size.
	ErrTooSmall = errors.New("extracted document below minimum size")

	// ErrWrongSignature is returned when the extracted member does not
	// start with the PDF signature.
	ErrWrongSignature = errors.New("extracted document has no PDF signature")
)

var pdfSignature = []byte("%PDF")

// Validate opens the archive at path and classifies it.
//
// The order matters: every member is integrity-tested before members are
// filtered, so extraction never runs against a structurally sound-looking
// but bit-corrupted archive. The caller is expected to have rejected
// clearly truncated downloads by size before paying the parse cost here.
func Validate(path, targetExt string) Status {
	r, err := zip.OpenReader(path)
	if err != nil {
		return StatusCorrupted
	}
	defer r.Close()

	for _, f := range r.File {
		if err := checkMember(f); err != nil {
			return StatusCorrupted
		}
	}

	if len(r.File) == 0 {
		return StatusEmpty
	}

	first := firstMember(r.File, targetExt)
	if first == nil {
		return StatusNoDocument
	}
	if first.UncompressedSize64 == 0 {
		return StatusCorrupted
	}
	return StatusValid
}

// Extract reads the first member matching targetExt from the archive at
// path and validates it as a document. Selection is first-in-listing-order:
// deterministic, with no attempt to rank multiple matching members.
//
// minSize is the floor below which a member is considered a stub or error
// placeholder rather than a genuine report.
func Extract(path, targetExt string, minSize int) ([]byte, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	member := firstMember(r.File, targetExt)
	if member == nil {
		return nil, ErrNoDocument
	}

	rc, err := member.Open()
	if err != nil {
		return nil, fmt.Errorf("open member %s: %w", member.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read member %s: %w", member.Name, err)
	}

	if len(data) < minSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooSmall, member.Name, len(data))
	}
	if !bytes.HasPrefix(data, pdfSignature) {
		return nil, fmt.Errorf("%w: %s", ErrWrongSignature, member.Name)
	}
	return data, nil
}

// checkMember fully reads one member so the CRC is verified.
func checkMember(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// firstMember returns the first member whose name ends in ext
// (case-insensitive), or nil.
func firstMember(files []*zip.File, ext string) *zip.File {
	ext = strings.ToLower(ext)
	for _, f := range files {
		if strings.HasSuffix(strings.ToLower(f.Name), ext) {
			return f
		}
	}
	return nil
}
