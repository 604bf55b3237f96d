// Package api contains the HTTP API types shared by the handlers and middleware: the error
// codes, the mapping from domain errors to JSON error responses, and the response helpers.
//
// Every error response has the same shape (ErrorResponse). Handlers return domain errors
// unchanged and RespondWithErrorResponse picks the status code:
//
//   - invalid invoice fields: 400 with one entry per problem
//   - unknown invoice: 404
//   - duplicate invoice number or a request the lifecycle state does not allow: 409
//   - DIAN unavailable or rejecting the request: 502 (504 on timeout)
//   - missing DIAN configuration: 503
//
// The HTTP handlers for the invoice API are in app/internal/api/handlers.
package api
