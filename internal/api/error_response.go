package api

// error_response.go maps errors from the API, services, invoice, crypto and dian packages to
// the JSON error response returned to clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/facturae-co/dian-gateway/app/internal/crypto"
	"github.com/facturae-co/dian-gateway/app/internal/dian"
	"github.com/facturae-co/dian-gateway/app/internal/invoice"
	"github.com/facturae-co/dian-gateway/app/internal/logger"
	"github.com/facturae-co/dian-gateway/app/internal/services"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {

	// The HTTP method used to make the request e.g. GET, POST, etc
	HTTPMethod string `json:"httpMethod"`

	// The URI that was requested
	RequestURI string `json:"requestUri"`

	// The HTTP status code returned
	StatusCode int `json:"statusCode"`

	// A standard short description corresponding to the HTTP status code
	StatusCodeText string `json:"statusCodeText"`

	// A long description corresponding to the HTTP status code with additional information
	StatusCodeMessage string `json:"statusCodeMessage,omitempty"`

	// The request id, quote it when reporting a problem
	ProviderCorrelationReference string `json:"providerCorrelationReference,omitempty"`

	// The DateTime corresponding to the error occurring
	ErrorDateTime string `json:"errorDateTime"`

	// An array of errors providing more detail about the root cause
	Errors []DetailedError `json:"errors"`
}

// DetailedError is one cause in an error response
type DetailedError struct {
	ErrorCode        ErrorCode `json:"errorCode"`
	Property         string    `json:"property,omitempty"`
	Value            string    `json:"value,omitempty"`
	ErrorCodeText    string    `json:"errorCodeText"`
	ErrorCodeMessage string    `json:"errorCodeMessage"`
}

// mapping is the outcome of classifying an error
type mapping struct {
	statusCode int
	code       ErrorCode
	text       string
	message    string
	details    []DetailedError
}

// MapErrorToResponse maps an error to an error response and its HTTP status.
//
// The full error is logged server-side by RespondWithErrorResponse; internal failures are not
// described to the client.
func MapErrorToResponse(err error, r *http.Request) *ErrorResponse {
	requestID := middleware.GetReqID(r.Context())

	m, ok := classify(err)
	if !ok {
		reqLogger := logger.ContextRequestLogger(r.Context())
		reqLogger.Error("BUG: Unmapped error type in MapErrorToResponse",
			slog.String("error_type", fmt.Sprintf("%T", err)),
			slog.String("error", err.Error()),
			slog.String("request_id", requestID),
		)
		m = mapping{
			statusCode: http.StatusInternalServerError,
			code:       ErrCodeInternalError,
			text:       "Internal Error",
			message:    "An internal error occurred",
		}
	}

	details := m.details
	if len(details) == 0 {
		details = []DetailedError{{
			ErrorCode:        m.code,
			ErrorCodeText:    m.text,
			ErrorCodeMessage: m.message,
		}}
	}

	return &ErrorResponse{
		HTTPMethod:                   r.Method,
		RequestURI:                   r.RequestURI,
		StatusCode:                   m.statusCode,
		StatusCodeText:               http.StatusText(m.statusCode),
		StatusCodeMessage:            m.text,
		ProviderCorrelationReference: requestID,
		ErrorDateTime:                time.Now().UTC().Format(time.RFC3339),
		Errors:                       details,
	}
}

// classify finds the most specific known error in the chain
func classify(err error) (mapping, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fromAPIError(apiErr), true
	}

	var verr *invoice.ValidationError
	if errors.As(err, &verr) {
		return fromValidationError(verr), true
	}

	switch {
	case errors.Is(err, services.ErrNotFound):
		return mapping{http.StatusNotFound, ErrCodeNotFound, "Invoice not found", err.Error(), nil}, true
	case errors.Is(err, services.ErrDuplicate):
		return mapping{http.StatusConflict, ErrCodeDuplicateInvoice, "Duplicate invoice number", err.Error(), nil}, true
	case errors.Is(err, services.ErrAlreadySent), errors.Is(err, services.ErrNoFingerprint), errors.Is(err, services.ErrConflict):
		return mapping{http.StatusConflict, ErrCodeInvalidState, "Invalid invoice state", err.Error(), nil}, true
	}

	var dianErr *dian.DianError
	if errors.As(err, &dianErr) {
		return fromDianError(dianErr), true
	}

	var cryptoErr *crypto.CryptoError
	if errors.As(err, &cryptoErr) {
		return fromCryptoError(cryptoErr), true
	}

	return mapping{}, false
}

func fromAPIError(err *APIError) mapping {
	m := mapping{code: err.Code(), message: err.Error()}

	switch err.Code() {
	case ErrCodeMalformedRequest:
		m.statusCode, m.text = http.StatusBadRequest, "Malformed request"
	case ErrCodeInvalidFields:
		m.statusCode, m.text = http.StatusBadRequest, "Invalid invoice fields"
	case ErrCodeRateLimitExceeded:
		m.statusCode, m.text = http.StatusTooManyRequests, "Rate limit exceeded"
	case ErrCodeRequestTooLarge:
		m.statusCode, m.text = http.StatusRequestEntityTooLarge, "Request too large"
	case ErrCodeUnsupportedMediaType:
		m.statusCode, m.text = http.StatusUnsupportedMediaType, "Unsupported media type"
	case ErrCodeNotConfigured:
		m.statusCode, m.text = http.StatusServiceUnavailable, "Service not configured"
	case ErrCodeNotFound:
		m.statusCode, m.text = http.StatusNotFound, "Not found"
	default:
		m.statusCode, m.text, m.message = http.StatusInternalServerError, "Internal Error", "An internal error occurred"
		m.code = ErrCodeInternalError
	}
	return m
}

func fromValidationError(err *invoice.ValidationError) mapping {
	m := mapping{
		statusCode: http.StatusBadRequest,
		code:       ErrCodeInvalidFields,
		text:       "Invalid invoice fields",
		message:    err.Error(),
	}
	for _, problem := range err.Problems {
		m.details = append(m.details, DetailedError{
			ErrorCode:        ErrCodeInvalidFields,
			ErrorCodeText:    "Invalid invoice fields",
			ErrorCodeMessage: problem,
		})
	}
	return m
}

func fromDianError(err *dian.DianError) mapping {
	m := mapping{code: ErrCodeAuthorityUnavailable, message: err.Error()}

	switch err.Code() {
	case dian.ErrCodeAuth:
		m.statusCode, m.code, m.text = http.StatusBadGateway, ErrCodeAuthorityAuth, "DIAN authentication failed"
	case dian.ErrCodeConfig:
		m.statusCode, m.code, m.text = http.StatusServiceUnavailable, ErrCodeNotConfigured, "Service not configured"
	case dian.ErrCodeSubmission, dian.ErrCodeQuery, dian.ErrCodeDownload:
		switch {
		case err.StatusCode() == http.StatusNotFound && err.Code() != dian.ErrCodeSubmission:
			m.statusCode, m.code, m.text = http.StatusNotFound, ErrCodeNotFound, "Document not found at DIAN"
		case errors.Is(err, context.DeadlineExceeded):
			m.statusCode, m.text = http.StatusGatewayTimeout, "DIAN request timed out"
		default:
			m.statusCode, m.text = http.StatusBadGateway, "DIAN request failed"
		}
	default:
		m.statusCode, m.code, m.text, m.message = http.StatusInternalServerError, ErrCodeInternalError, "Internal Error", "An internal error occurred"
	}
	return m
}

func fromCryptoError(err *crypto.CryptoError) mapping {
	switch err.Code() {
	case crypto.ErrCodeValidation:
		return mapping{http.StatusBadRequest, ErrCodeMalformedRequest, "Invalid document", err.Error(), nil}
	case crypto.ErrCodeSigning, crypto.ErrCodeCertificateLoad, crypto.ErrCodeCertificate:
		return mapping{http.StatusInternalServerError, ErrCodeSigning, "Signing failed", "the document could not be signed", nil}
	default:
		return mapping{http.StatusInternalServerError, ErrCodeInternalError, "Internal Error", "An internal error occurred", nil}
	}
}
