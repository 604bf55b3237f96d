// Package handlers provides the infrastructure HTTP handlers (liveness, readiness, version).
//
// The invoice API handlers are in app/internal/api/handlers.
package handlers
