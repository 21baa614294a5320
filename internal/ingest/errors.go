package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why an invocation failed.
type Kind string

const (
	KindFetchTimeout      Kind = "FetchTimeout"
	KindFetchTransport    Kind = "FetchTransport"
	KindFetchHTTPError    Kind = "FetchHttpError"
	KindFetchDecodeError  Kind = "FetchDecodeError"
	KindFetchEmptyPayload Kind = "FetchEmptyPayload"
	KindLedgerQueryError  Kind = "LedgerQueryError"
	KindLedgerWriteError  Kind = "LedgerWriteError"
	KindInvalidRequest    Kind = "InvalidRequest"
)

// Error is the single failure shape surfaced by fetchers, ledgers and the pipeline.
type Error struct {
	Kind Kind

	// Status and Body are set for KindFetchHTTPError.
	Status int
	Body   string

	// PartialErrors holds per-row store errors for KindLedgerWriteError.
	PartialErrors []error

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
		if e.Body != "" {
			fmt.Fprintf(&b, ": %s", e.Body)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if n := len(e.PartialErrors); n > 0 {
		fmt.Fprintf(&b, ": %d row error(s): %v", n, errors.Join(e.PartialErrors...))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// NewFetchError builds a fetch failure of the given kind.
func NewFetchError(kind Kind, err error) *Error {
	return newError(kind, err)
}

// NewHTTPError builds a KindFetchHTTPError carrying the status and response body.
func NewHTTPError(status int, body string) *Error {
	return &Error{Kind: KindFetchHTTPError, Status: status, Body: body}
}

// NewQueryError wraps a failed existence lookup.
func NewQueryError(err error) *Error {
	return newError(KindLedgerQueryError, err)
}

// NewWriteError wraps a failed append. partial lists per-row errors reported
// by the store, if any.
func NewWriteError(err error, partial ...error) *Error {
	return &Error{Kind: KindLedgerWriteError, Err: err, PartialErrors: partial}
}

// KindOf returns the Kind carried by err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
