package download

// Status is the terminal state of one descriptor's download cycle.
type Status int

const (
	StatusSuccess Status = iota
	StatusSkippedInvalidURL
	StatusFailed
)

// String returns the metadata-file form of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkippedInvalidURL:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureReason classifies why a download cycle failed, so callers and
// operators can branch on cause rather than parse log text.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonTooSmall
	ReasonArchiveCorrupted
	ReasonArchiveEmpty
	ReasonArchiveNoDocument
	ReasonServerErrorPage
	ReasonNetworkError
	ReasonValidationFailed
)

// String returns the ledger/metadata form of the reason.
func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTooSmall:
		return "too_small"
	case ReasonArchiveCorrupted:
		return "archive_corrupted"
	case ReasonArchiveEmpty:
		return "archive_empty"
	case ReasonArchiveNoDocument:
		return "archive_no_document"
	case ReasonServerErrorPage:
		return "server_error_page"
	case ReasonNetworkError:
		return "network_error"
	case ReasonValidationFailed:
		return "validation_failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one fetch-and-validate cycle. It is created
// fresh per cycle and never mutated after the pipeline returns it.
type Outcome struct {
	Status       Status
	Reason       FailureReason // defined only when Status is StatusFailed
	BytesWritten int64
	// AttemptsUsed is the number of network attempts consumed. Zero means
	// the idempotent short-circuit fired and no request was issued.
	AttemptsUsed int
	// MisnamedPDF marks a success that came from a payload labeled as an
	// archive but carrying a raw PDF signature.
	MisnamedPDF bool
}
