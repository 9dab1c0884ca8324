// Package digerr defines the error kinds shared across the digstore core,
// as specified in spec §7. Every core API returns one of these wrapped in
// *Error rather than an ad-hoc error string, so callers can branch on Kind
// with errors.As instead of string matching.
package digerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a core error.
type Kind string

// Error kinds exactly as enumerated in spec §7.
const (
	NotFound           Kind = "NotFound"
	AlreadyExists      Kind = "AlreadyExists"
	CorruptHeader      Kind = "CorruptHeader"
	CorruptIndex       Kind = "CorruptIndex"
	CorruptLayer       Kind = "CorruptLayer"
	CorruptChunk       Kind = "CorruptChunk"
	UnsupportedVersion Kind = "UnsupportedVersion"
	ChecksumMismatch   Kind = "ChecksumMismatch"
	HashMismatch       Kind = "HashMismatch"
	OutOfRange         Kind = "OutOfRange"
	WriteLocked        Kind = "WriteLocked"
	IO                 Kind = "Io"
	Cancelled          Kind = "Cancelled"
	InvalidURN         Kind = "InvalidUrn"
	CryptoFailure      Kind = "CryptoFailure"
	ProofInvalid       Kind = "ProofInvalid"
)

// Error is the concrete error type returned by every digstore core API.
type Error struct {
	Kind Kind   // category, see the Kind constants
	Op   string // operation that failed, e.g. "store.Commit"
	Path string // store/file/URN path involved, if any
	Err  error  // wrapped cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("digstore %s: %s (%s): %v", e.Op, e.Kind, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("digstore %s: %s (%s)", e.Op, e.Kind, e.Path)
	case e.Err != nil:
		return fmt.Sprintf("digstore %s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("digstore %s: %s", e.Op, e.Kind)
	}
}

// Unwrap returns the wrapped cause, if any, so errors.Is/errors.As compose.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error with the given kind and operation.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap builds an *Error wrapping cause, tagged with op and kind.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// WithPath returns a copy of e with Path set, for chaining at the call site:
// digerr.New(digerr.NotFound, "store.Get").WithPath(path).
func (e *Error) WithPath(path string) *Error {
	out := *e
	out.Path = path
	return &out
}

// Of extracts the Kind of err if it is (or wraps) a *Error, or "" otherwise.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err's Kind equals kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
