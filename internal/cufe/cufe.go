// Package cufe computes the DIAN electronic invoice fingerprint (CUFE, Código Único de Factura
// Electrónica), the software security code and the QR payload text.
//
// The CUFE is the lowercase hex SHA-384 digest of a fixed-order concatenation of invoice fields
// and the software credentials. It is a pure function of its inputs: the same fields always produce
// the same CUFE, with no dependency on time, locale or randomness.
//
// Date and time have a fixed width after separator removal, so adjacent variable-length fields
// (such as the invoice number followed by the date) cannot shift into each other.
package cufe

import (
	"strings"

	"github.com/facturae-co/dian-gateway/app/internal/crypto"
	"github.com/facturae-co/dian-gateway/app/internal/invoice"
)

const (
	// Length is the number of hex characters in a CUFE (SHA-384).
	Length = 96

	// SearchURLProduction is the DIAN catalogue lookup used in the QR payload.
	SearchURLProduction = "https://catalogo-vpfe.dian.gov.co/document/searchqr?documentkey="

	// SearchURLTest is the habilitation catalogue lookup.
	SearchURLTest = "https://catalogo-vpfe-hab.dian.gov.co/document/searchqr?documentkey="
)

// Generate returns the CUFE for the document fields.
//
// Fields must have passed DocumentFields.Validate; negative amounts are not rejected here.
func Generate(fields invoice.DocumentFields, softwareID, softwarePin string) string {
	return crypto.SHA384Hex(CanonicalString(fields, softwareID, softwarePin))
}

// CanonicalString returns the exact string hashed by Generate:
//
//	Number + IssueDate(YYYYMMDD) + IssueTime(HHMMSS) + GrandTotal + "01" + TaxValue +
//	Supplier.ID + Customer.ID + softwareID + softwarePin
func CanonicalString(fields invoice.DocumentFields, softwareID, softwarePin string) string {
	var b strings.Builder
	b.WriteString(fields.Number)
	b.WriteString(strings.ReplaceAll(fields.IssueDate, "-", ""))
	b.WriteString(strings.ReplaceAll(fields.IssueTime, ":", ""))
	b.WriteString(FormatAmount(fields.GrandTotal))
	b.WriteString(invoice.TaxCodeIVA)
	b.WriteString(FormatAmount(fields.TaxValue))
	b.WriteString(fields.Supplier.ID)
	b.WriteString(fields.Customer.ID)
	b.WriteString(softwareID)
	b.WriteString(softwarePin)
	return b.String()
}

// FormatAmount renders an amount with exactly two decimals and the separator removed,
// e.g. 150000.00 becomes "15000000" and 0.05 becomes "005".
func FormatAmount(a invoice.Amount) string {
	return strings.Replace(a.String(), ".", "", 1)
}

// SoftwareSecurityCode returns the value of sts:SoftwareSecurityCode,
// the SHA-384 hex digest of softwareID + softwarePin + invoice number.
func SoftwareSecurityCode(softwareID, softwarePin, number string) string {
	return crypto.SHA384Hex(softwareID + softwarePin + number)
}

// IsValid reports whether s has the shape of a CUFE (96 lowercase hex characters).
func IsValid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
