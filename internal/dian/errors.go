package dian

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies failures from the DIAN services.
type ErrorCode string

const (
	// ErrCodeAuth is used when the token exchange fails. Retrying GetToken may succeed.
	ErrCodeAuth ErrorCode = "auth"

	// ErrCodeSubmission is used when a signed document cannot be submitted.
	ErrCodeSubmission ErrorCode = "submission"

	// ErrCodeQuery is used when a status query fails.
	ErrCodeQuery ErrorCode = "query"

	// ErrCodeDownload is used when a processed document cannot be downloaded.
	ErrCodeDownload ErrorCode = "download"

	// ErrCodeConfig is used when a setting needed for the operation is missing.
	ErrCodeConfig ErrorCode = "config"
)

// DianError is a structured error from the DIAN client.
type DianError struct {
	code ErrorCode

	// op is the operation attempted (e.g. "submit")
	op string

	// fingerprint is the CUFE of the document, when known
	fingerprint string

	// statusCode is the HTTP status returned by the authority (0 when no response was received)
	statusCode int

	message string
	wrapped error
}

func (e *DianError) Error() string {
	var b strings.Builder
	if e.op != "" {
		b.WriteString(e.op)
		b.WriteString(": ")
	}
	b.WriteString(e.message)

	var details []string
	if e.fingerprint != "" {
		details = append(details, "cufe "+e.fingerprint)
	}
	if e.statusCode != 0 {
		details = append(details, fmt.Sprintf("http status %d", e.statusCode))
	}
	if len(details) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
	}

	if e.wrapped != nil {
		fmt.Fprintf(&b, ": %v", e.wrapped)
	}
	return b.String()
}

func (e *DianError) Code() ErrorCode     { return e.code }
func (e *DianError) Op() string          { return e.op }
func (e *DianError) Fingerprint() string { return e.fingerprint }
func (e *DianError) StatusCode() int     { return e.statusCode }
func (e *DianError) Unwrap() error       { return e.wrapped }

// NewAuthError creates a token exchange error.
func NewAuthError(msg string) error {
	return &DianError{code: ErrCodeAuth, op: "authenticate", message: msg}
}

// WrapAuthError wraps an existing error as a token exchange error.
func WrapAuthError(err error, msg string) error {
	return &DianError{code: ErrCodeAuth, op: "authenticate", message: msg, wrapped: err}
}

// NewConfigError creates an error for a missing or invalid setting.
func NewConfigError(op, msg string) error {
	return &DianError{code: ErrCodeConfig, op: op, message: msg}
}

func newRequestError(code ErrorCode, op, fingerprint string, statusCode int, err error, msg string) error {
	return &DianError{
		code:        code,
		op:          op,
		fingerprint: fingerprint,
		statusCode:  statusCode,
		message:     msg,
		wrapped:     err,
	}
}

// HasCode reports whether err, or any error it wraps, is a DianError with the given code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var de *DianError
		if !errors.As(err, &de) {
			return false
		}
		if de.code == code {
			return true
		}
		err = de.wrapped
	}
	return false
}

// StatusCode returns the first non-zero HTTP status carried by a DianError in err's chain.
func StatusCode(err error) int {
	for err != nil {
		var de *DianError
		if !errors.As(err, &de) {
			return 0
		}
		if de.statusCode != 0 {
			return de.statusCode
		}
		err = de.wrapped
	}
	return 0
}
