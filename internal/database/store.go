package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/facturae-co/dian-gateway/app/internal/invoice"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

var (
	// ErrNotFound is returned when no invoice matches the lookup.
	ErrNotFound = errors.New("invoice not found")

	// ErrDuplicate is returned when an invoice number is already stored.
	ErrDuplicate = errors.New("invoice number already exists")

	// ErrStateConflict is returned when a record changed status since it was read.
	ErrStateConflict = errors.New("invoice status changed concurrently")
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

// InvoiceStore reads and writes invoice.Invoice records.
type InvoiceStore struct {
	queries *Queries
}

func NewInvoiceStore(queries *Queries) *InvoiceStore {
	return &InvoiceStore{queries: queries}
}

// Ping reports whether the database answers queries.
func (s *InvoiceStore) Ping(ctx context.Context) error {
	_, err := s.queries.IsDatabaseRunning(ctx)
	return err
}

// CreateInvoice inserts a new record.
func (s *InvoiceStore) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	fields, err := json.Marshal(inv.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode invoice fields: %w", err)
	}

	_, err = s.queries.CreateInvoice(ctx, CreateInvoiceParams{
		ID:                  inv.ID,
		InvoiceNumber:       inv.Fields.Number,
		DocumentFields:      fields,
		Cufe:                inv.CUFE,
		QrData:              inv.QRData,
		DocumentXml:         inv.DocumentXML,
		SignedXml:           inv.SignedXML,
		Status:              string(inv.Status),
		IsTest:              inv.Fields.Test,
		AuthorityResponse:   nullableJSON(inv.AuthorityResponse),
		AuthorityResponseAt: timestamptz(inv),
		CreatedAt:           inv.CreatedAt,
		UpdatedAt:           inv.UpdatedAt,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicate, inv.Fields.Number)
		}
		return fmt.Errorf("failed to insert invoice %s: %w", inv.ID, err)
	}
	return nil
}

// UpdateInvoice stores the mutable parts of a record (document, status, authority response).
// The write only happens while the stored status is still from; otherwise ErrStateConflict is
// returned and the record is left untouched.
func (s *InvoiceStore) UpdateInvoice(ctx context.Context, inv *invoice.Invoice, from invoice.State) error {
	_, err := s.queries.UpdateInvoice(ctx, UpdateInvoiceParams{
		ID:                  inv.ID,
		Cufe:                inv.CUFE,
		QrData:              inv.QRData,
		DocumentXml:         inv.DocumentXML,
		SignedXml:           inv.SignedXML,
		Status:              string(inv.Status),
		AuthorityResponse:   nullableJSON(inv.AuthorityResponse),
		AuthorityResponseAt: timestamptz(inv),
		UpdatedAt:           inv.UpdatedAt,
		PreviousStatus:      string(from),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return s.updateMissed(ctx, inv.ID, from)
	}
	if err != nil {
		return fmt.Errorf("failed to update invoice %s: %w", inv.ID, err)
	}
	return nil
}

// updateMissed tells an unknown id apart from a status that moved on.
func (s *InvoiceStore) updateMissed(ctx context.Context, id uuid.UUID, from invoice.State) error {
	current, err := s.queries.GetInvoice(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update invoice %s: %w", id, err)
	}
	return fmt.Errorf("%w: %s is %s, expected %s", ErrStateConflict, id, current.Status, from)
}

// GetInvoice returns the record with the given id.
func (s *InvoiceStore) GetInvoice(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	row, err := s.queries.GetInvoice(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice %s: %w", id, err)
	}
	return toInvoice(row)
}

// ListInvoices returns records newest first.
func (s *InvoiceStore) ListInvoices(ctx context.Context, limit, offset int32) ([]*invoice.Invoice, error) {
	rows, err := s.queries.ListInvoices(ctx, ListInvoicesParams{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	invoices := make([]*invoice.Invoice, 0, len(rows))
	for _, row := range rows {
		inv, err := toInvoice(row)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

func toInvoice(row Invoice) (*invoice.Invoice, error) {
	var fields invoice.DocumentFields
	if err := json.Unmarshal(row.DocumentFields, &fields); err != nil {
		return nil, fmt.Errorf("invoice %s has unreadable fields: %w", row.ID, err)
	}

	status, err := invoice.ParseState(row.Status)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: %w", row.ID, err)
	}

	inv := &invoice.Invoice{
		ID:          row.ID,
		Fields:      fields,
		CUFE:        row.Cufe,
		QRData:      row.QrData,
		DocumentXML: row.DocumentXml,
		SignedXML:   row.SignedXml,
		Status:      status,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if len(row.AuthorityResponse) > 0 {
		inv.AuthorityResponse = json.RawMessage(row.AuthorityResponse)
	}
	if row.AuthorityResponseAt.Valid {
		at := row.AuthorityResponseAt.Time
		inv.AuthorityResponseAt = &at
	}
	return inv, nil
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func timestamptz(inv *invoice.Invoice) pgtype.Timestamptz {
	if inv.AuthorityResponseAt == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *inv.AuthorityResponseAt, Valid: true}
}
