package dian

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/facturae-co/dian-gateway/app/internal/invoice"
)

// AuthToken is a bearer token and the instant it expires.
type AuthToken struct {
	Value     string
	ExpiresAt time.Time
}

// usable reports whether the token can still be used at now, leaving margin before expiry.
func (t *AuthToken) usable(now time.Time, margin time.Duration) bool {
	return t != nil && t.Value != "" && now.Before(t.ExpiresAt.Add(-margin))
}

// tokenResponse is the OAuth2 password grant response.
type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// submitRequest is the body of POST {api}/invoice/send.
type submitRequest struct {
	FileName string `json:"fileName"`

	// FileData is the base64 encoded signed document
	FileData string `json:"fileData"`

	// TestSetID is only sent for habilitation submissions; it is omitted otherwise
	TestSetID  string `json:"testSetId,omitempty"`
	SoftwareID string `json:"softwareID"`
}

// SubmissionResponse is the authority's verdict on a submitted document.
type SubmissionResponse struct {
	IsValid           bool     `json:"isValid"`
	StatusCode        string   `json:"statusCode,omitempty"`
	StatusDescription string   `json:"statusDescription,omitempty"`
	StatusMessage     string   `json:"statusMessage,omitempty"`
	ErrorMessages     []string `json:"errorMessages,omitempty"`
	TrackID           string   `json:"trackId,omitempty"`

	// FileName is the name the document was submitted under
	FileName string `json:"-"`

	// Raw is the response body as RFC 8785 canonical JSON
	Raw json.RawMessage `json:"-"`
}

// LifecycleState maps the verdict onto the invoice lifecycle.
func (r *SubmissionResponse) LifecycleState() invoice.State {
	if r.IsValid {
		return invoice.StateApproved
	}
	return invoice.StateRejected
}

// StatusResponse is the authority's current status for a document.
type StatusResponse struct {
	Status            string   `json:"status"`
	StatusDescription string   `json:"statusDescription,omitempty"`
	ErrorMessages     []string `json:"errorMessages,omitempty"`

	// Raw is the response body as RFC 8785 canonical JSON
	Raw json.RawMessage `json:"-"`
}

// clone returns a copy that shares no slices with r.
func (r *StatusResponse) clone() *StatusResponse {
	c := *r
	c.ErrorMessages = append([]string(nil), r.ErrorMessages...)
	c.Raw = append(json.RawMessage(nil), r.Raw...)
	return &c
}

const (
	statusAccepted = "ACCEPTED"
	statusRejected = "REJECTED"
)

// NormalizedStatus returns the status code trimmed and upper-cased.
func (r *StatusResponse) NormalizedStatus() string {
	return strings.ToUpper(strings.TrimSpace(r.Status))
}

// Apply returns the lifecycle state after this status is applied to an invoice in state current.
// ACCEPTED moves to approved and REJECTED to rejected; any other status leaves current unchanged.
func (r *StatusResponse) Apply(current invoice.State) invoice.State {
	var target invoice.State
	switch r.NormalizedStatus() {
	case statusAccepted:
		target = invoice.StateApproved
	case statusRejected:
		target = invoice.StateRejected
	default:
		return current
	}

	next, err := current.Advance(target)
	if err != nil {
		return current
	}
	return next
}
