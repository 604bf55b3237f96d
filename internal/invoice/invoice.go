package invoice

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Invoice is the persisted record of an electronic invoice.
type Invoice struct {
	ID     uuid.UUID      `json:"id"`
	Fields DocumentFields `json:"fields"`

	// CUFE is the SHA-384 fingerprint of the document (empty until generated).
	CUFE string `json:"cufe,omitempty"`

	// QRData is the text encoded in the invoice QR code.
	QRData string `json:"qrData,omitempty"`

	DocumentXML string `json:"-"`
	SignedXML   string `json:"-"`

	Status State `json:"status"`

	// AuthorityResponse is the last DIAN response for this invoice, stored as canonical JSON.
	AuthorityResponse   json.RawMessage `json:"authorityResponse,omitempty"`
	AuthorityResponseAt *time.Time      `json:"authorityResponseAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New creates a draft invoice for the given fields.
func New(fields DocumentFields, now time.Time) *Invoice {
	return &Invoice{
		ID:        uuid.New(),
		Fields:    fields,
		Status:    StateDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the invoice to next, refusing backwards moves.
func (i *Invoice) Transition(next State, now time.Time) error {
	s, err := i.Status.Advance(next)
	if err != nil {
		return err
	}
	i.Status = s
	i.UpdatedAt = now
	return nil
}

// RecordAuthorityResponse stores the authority payload and the time it was received.
func (i *Invoice) RecordAuthorityResponse(payload json.RawMessage, at time.Time) {
	i.AuthorityResponse = payload
	t := at
	i.AuthorityResponseAt = &t
	i.UpdatedAt = at
}
