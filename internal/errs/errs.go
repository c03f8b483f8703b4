// Package errs defines the typed error taxonomy shared across the
// tablespace processor. Every fallible operation in the pipeline returns
// (or wraps) one of the Kind values below rather than an ad hoc error
// string, so callers can branch on "what went wrong" without parsing
// messages.
package errs

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind identifies one of the error categories a caller can branch on.
type Kind string

const (
	KindIO                Kind = "io_error"
	KindInvalidFspFlags    Kind = "invalid_fsp_flags"
	KindKeyringMalformed   Kind = "keyring_file_malformed"
	KindKeyNotFound        Kind = "key_not_found"
	KindInvalidEncHeader   Kind = "invalid_encryption_header"
	KindDecryptionFailed   Kind = "decryption_failed"
	KindDecompressionFailed Kind = "decompression_failed"
	KindSdiParseError      Kind = "sdi_parse_error"
	KindRecordCorrupted    Kind = "record_corrupted"
	KindLobUnavailable     Kind = "lob_unavailable"
	KindRebuildImpossible  Kind = "rebuild_impossible"
)

// Severity distinguishes errors that must abort the current operation
// from ones that are logged and skipped.
type Severity int

const (
	// Fatal aborts the whole operation (file-level failure).
	Fatal Severity = iota
	// Recoverable is reported and the current record/page is skipped.
	Recoverable
)

// Error is the taxonomy-tagged error type. PageNo is -1 when not
// applicable (e.g. a keyring-level failure precedes any page read).
type Error struct {
	Kind     Kind
	Severity Severity
	PageNo   int64
	cause    error
}

func (e *Error) Error() string {
	if e.PageNo >= 0 {
		return fmt.Sprintf("%s (page %d): %v", e.Kind, e.PageNo, e.cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a fatal Error with no associated page.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Severity: Fatal, PageNo: -1, cause: errors.Newf(format, args...)}
}

// Wrap builds a fatal Error from an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Severity: Fatal, PageNo: -1, cause: errors.Wrapf(cause, format, args...)}
}

// OnPage attaches a page number and severity to an existing Kind/cause
// pair, used by the page pipeline when reporting per-page failures.
func OnPage(kind Kind, severity Severity, pageNo int64, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Severity: severity, PageNo: pageNo, cause: cause}
}

// Is reports whether err carries the given Kind, walking wrapped causes.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsFatal reports whether err (if it is one of ours) is Fatal severity.
// Errors that aren't *Error are treated as fatal, since only the
// pipeline's own typed errors are known to be safely recoverable.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Severity == Fatal
	}
	return err != nil
}
