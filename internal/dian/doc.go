// Package dian is the client for the DIAN electronic invoicing web services.
//
// TokenManager obtains the bearer token used on every authenticated call. The token is derived
// from the signing certificate (subject CN as username, software id and certificate serial as
// scope) and cached until it is within a safety margin of its expiry. Concurrent callers that find
// no usable token share a single exchange.
//
// Client submits signed documents, queries their status and downloads the processed artifacts.
// Status responses are cached per CUFE for a short TTL in a bounded LRU cache. Submissions and
// downloads are never cached.
//
// No call is retried internally: failures are returned as *DianError values carrying the
// operation, the CUFE when known, the HTTP status and the underlying cause, and the caller
// decides whether to retry.
package dian
