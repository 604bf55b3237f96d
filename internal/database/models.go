package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Invoice struct {
	ID                  uuid.UUID          `json:"id"`
	InvoiceNumber       string             `json:"invoice_number"`
	DocumentFields      []byte             `json:"document_fields"`
	Cufe                string             `json:"cufe"`
	QrData              string             `json:"qr_data"`
	DocumentXml         string             `json:"document_xml"`
	SignedXml           string             `json:"signed_xml"`
	Status              string             `json:"status"`
	IsTest              bool               `json:"is_test"`
	AuthorityResponse   []byte             `json:"authority_response"`
	AuthorityResponseAt pgtype.Timestamptz `json:"authority_response_at"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}
