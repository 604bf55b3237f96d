// Package database persists invoice records in PostgreSQL.
//
// Queries is the query layer over a pgx pool (one method per statement). InvoiceStore maps
// rows to invoice.Invoice records and is the repository used by the services package.
// The schema lives in migrations/ and is embedded into the binary; Migrate applies it with goose.
package database
