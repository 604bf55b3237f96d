// Package server provides the HTTP server for the DIAN gateway.
//
// the server is configured through environment variables
// (see app/internal/config/config.go for details)
//
// Routes:
//   - infrastructure: /health/live, /health/ready, /version
//   - invoice API under /v1 (CUFE generation, issue, list, submit, status, download)
//
// the infrastructure handlers are in app/internal/server/handlers,
// the invoice API handlers in app/internal/api/handlers and
// middleware is in app/internal/server/middleware
package server
