package api

// errors.go defines the error codes returned by the invoice API

import "fmt"

// APIError is an error raised by the HTTP layer itself (bad input, limits, missing configuration).
// Errors from the domain packages are mapped to responses in error_response.go.
type APIError struct {
	// code is the API error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *APIError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *APIError) Code() ErrorCode { return e.code }
func (e *APIError) Unwrap() error   { return e.wrapped }

// ErrorCode is returned in the errors array of an error response.
//
//   - 7000-7999 technical errors: the request could not be processed (bad input, limits, authority unavailable).
//   - 8000-8999 functional errors: the request is valid but the invoice state prevents it.
type ErrorCode int

const (
	// ErrCodeInvalidFields is used when invoice fields fail validation
	ErrCodeInvalidFields ErrorCode = 7001

	// ErrCodeSigning is used when the document cannot be signed (certificate or key problems)
	ErrCodeSigning ErrorCode = 7002

	// ErrCodeInternalError is used when an internal server error occurs
	ErrCodeInternalError ErrorCode = 7005

	// ErrCodeMalformedRequest is used when JSON parsing fails or a path parameter is invalid
	ErrCodeMalformedRequest ErrorCode = 7006

	// ErrCodeRateLimitExceeded is used by the rate limit middleware
	ErrCodeRateLimitExceeded ErrorCode = 7009

	// ErrCodeRequestTooLarge is used by the request size middleware
	ErrCodeRequestTooLarge ErrorCode = 7010

	// ErrCodeAuthorityAuth is used when no DIAN bearer token could be obtained
	ErrCodeAuthorityAuth ErrorCode = 7011

	// ErrCodeAuthorityUnavailable is used when a DIAN request fails or times out
	ErrCodeAuthorityUnavailable ErrorCode = 7012

	// ErrCodeNotConfigured is used when a DIAN setting needed for the request is missing
	ErrCodeNotConfigured ErrorCode = 7013

	// ErrCodeUnsupportedMediaType is used when a request body is not JSON
	ErrCodeUnsupportedMediaType ErrorCode = 7014

	// ErrCodeNotFound is used when the invoice (or the authority's copy of it) does not exist
	ErrCodeNotFound ErrorCode = 8001

	// ErrCodeDuplicateInvoice is used when an invoice number has already been issued
	ErrCodeDuplicateInvoice ErrorCode = 8002

	// ErrCodeInvalidState is used when the invoice lifecycle state does not allow the request
	ErrCodeInvalidState ErrorCode = 8003
)

// NewMalformedRequestError creates an error for malformed requests.
func NewMalformedRequestError(msg string) error {
	return &APIError{code: ErrCodeMalformedRequest, message: msg}
}

// WrapMalformedRequestError wraps an existing error as a malformed request error.
func WrapMalformedRequestError(err error, msg string) error {
	return &APIError{code: ErrCodeMalformedRequest, message: msg, wrapped: err}
}

// NewRateLimitError creates an error for requests rejected by the rate limiter.
func NewRateLimitError(msg string) error {
	return &APIError{code: ErrCodeRateLimitExceeded, message: msg}
}

// NewRequestTooLargeError creates an error for request bodies over the size limit.
func NewRequestTooLargeError(msg string) error {
	return &APIError{code: ErrCodeRequestTooLarge, message: msg}
}

// NewUnsupportedMediaTypeError creates an error for request bodies that are not JSON.
func NewUnsupportedMediaTypeError(msg string) error {
	return &APIError{code: ErrCodeUnsupportedMediaType, message: msg}
}

// WrapNotConfiguredError wraps a configuration check failure.
func WrapNotConfiguredError(err error, msg string) error {
	return &APIError{code: ErrCodeNotConfigured, message: msg, wrapped: err}
}

// NewInternalError creates an internal error for unexpected failures.
func NewInternalError(msg string) error {
	return &APIError{code: ErrCodeInternalError, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &APIError{code: ErrCodeInternalError, message: msg, wrapped: err}
}
