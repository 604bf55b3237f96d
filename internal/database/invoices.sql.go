package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const invoiceColumns = `id, invoice_number, document_fields, cufe, qr_data, document_xml, signed_xml, status, is_test, authority_response, authority_response_at, created_at, updated_at`

const createInvoice = `-- name: CreateInvoice :one
INSERT INTO invoices (
    id, invoice_number, document_fields, cufe, qr_data, document_xml, signed_xml,
    status, is_test, authority_response, authority_response_at, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
)
RETURNING ` + invoiceColumns

type CreateInvoiceParams struct {
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

func (q *Queries) CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, createInvoice,
		arg.ID,
		arg.InvoiceNumber,
		arg.DocumentFields,
		arg.Cufe,
		arg.QrData,
		arg.DocumentXml,
		arg.SignedXml,
		arg.Status,
		arg.IsTest,
		arg.AuthorityResponse,
		arg.AuthorityResponseAt,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanInvoice(row)
}

// updateInvoice only matches while the stored status is still the one the caller read.
const updateInvoice = `-- name: UpdateInvoice :one
UPDATE invoices SET
    cufe = $2,
    qr_data = $3,
    document_xml = $4,
    signed_xml = $5,
    status = $6,
    authority_response = $7,
    authority_response_at = $8,
    updated_at = $9
WHERE id = $1 AND status = $10
RETURNING ` + invoiceColumns

type UpdateInvoiceParams struct {
	ID                  uuid.UUID          `json:"id"`
	Cufe                string             `json:"cufe"`
	QrData              string             `json:"qr_data"`
	DocumentXml         string             `json:"document_xml"`
	SignedXml           string             `json:"signed_xml"`
	Status              string             `json:"status"`
	AuthorityResponse   []byte             `json:"authority_response"`
	AuthorityResponseAt pgtype.Timestamptz `json:"authority_response_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
	PreviousStatus      string             `json:"previous_status"`
}

func (q *Queries) UpdateInvoice(ctx context.Context, arg UpdateInvoiceParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, updateInvoice,
		arg.ID,
		arg.Cufe,
		arg.QrData,
		arg.DocumentXml,
		arg.SignedXml,
		arg.Status,
		arg.AuthorityResponse,
		arg.AuthorityResponseAt,
		arg.UpdatedAt,
		arg.PreviousStatus,
	)
	return scanInvoice(row)
}

const getInvoice = `-- name: GetInvoice :one
SELECT ` + invoiceColumns + `
FROM invoices
WHERE id = $1`

func (q *Queries) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	row := q.db.QueryRow(ctx, getInvoice, id)
	return scanInvoice(row)
}

const getInvoiceByCufe = `-- name: GetInvoiceByCufe :one
SELECT ` + invoiceColumns + `
FROM invoices
WHERE cufe = $1`

func (q *Queries) GetInvoiceByCufe(ctx context.Context, cufe string) (Invoice, error) {
	row := q.db.QueryRow(ctx, getInvoiceByCufe, cufe)
	return scanInvoice(row)
}

const listInvoices = `-- name: ListInvoices :many
SELECT ` + invoiceColumns + `
FROM invoices
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2`

type ListInvoicesParams struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

func (q *Queries) ListInvoices(ctx context.Context, arg ListInvoicesParams) ([]Invoice, error) {
	rows, err := q.db.Query(ctx, listInvoices, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Invoice{}
	for rows.Next() {
		i, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (Invoice, error) {
	var i Invoice
	err := row.Scan(
		&i.ID,
		&i.InvoiceNumber,
		&i.DocumentFields,
		&i.Cufe,
		&i.QrData,
		&i.DocumentXml,
		&i.SignedXml,
		&i.Status,
		&i.IsTest,
		&i.AuthorityResponse,
		&i.AuthorityResponseAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
