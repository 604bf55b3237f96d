// Package handlers implements the /v1 invoice API.
//
// The handlers decode and check the request, call the services package and encode the result.
// Failures are passed unchanged to api.RespondWithErrorResponse, which selects the status code.
package handlers
