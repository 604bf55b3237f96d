package invoice

import (
	"regexp"
	"time"
)

const (
	// DateLayout is the issue date format used in the CUFE and the UBL document.
	DateLayout = "2006-01-02"

	// TimeLayout is the issue time format. Offsets are not accepted so the CUFE input keeps a fixed width.
	TimeLayout = "15:04:05"

	// TaxCodeIVA is the DIAN tax scheme code for IVA, the only tax bound into the CUFE.
	TaxCodeIVA = "01"
)

// numberPattern is a DIAN prefix and consecutive number. The number also names the signature,
// so it is limited to characters that need no escaping in XML attributes.
var numberPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,40}$`)

// Party identifies the supplier or the customer of an invoice.
type Party struct {
	// ID is the NIT (supplier) or identification number (customer), kept as a literal string.
	ID string `json:"id"`

	// SchemeID is the DIAN identification type code (31 = NIT, 13 = cedula, ...)
	SchemeID string `json:"schemeId,omitempty"`

	Name string `json:"name"`

	// Type is the customer person type (1 = legal entity, 2 = natural person)
	Type string `json:"type,omitempty"`
}

// TaxLine is one entry of the tax breakdown.
type TaxLine struct {
	Code          string `json:"code"`
	Percent       string `json:"percent"`
	TaxableAmount Amount `json:"taxableAmount"`
	TaxAmount     Amount `json:"taxAmount"`
}

// LineItem is a single invoiced line.
type LineItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitCode    string `json:"unitCode,omitempty"`
	UnitPrice   Amount `json:"unitPrice"`
	LineTotal   Amount `json:"lineTotal"`
}

// DocumentFields is the flat set of business values of one invoice.
type DocumentFields struct {
	Number    string `json:"invoiceNumber"`
	IssueDate string `json:"invoiceDate"`
	IssueTime string `json:"invoiceTime"`
	Currency  string `json:"currency,omitempty"`

	// InvoiceTotal is the amount before taxes.
	InvoiceTotal Amount `json:"invoiceTotal"`
	TaxValue     Amount `json:"taxValue"`
	OtherTaxes   Amount `json:"otherTaxes"`
	GrandTotal   Amount `json:"grandTotal"`

	Supplier Party `json:"supplier"`
	Customer Party `json:"customer"`

	Taxes []TaxLine  `json:"taxes,omitempty"`
	Lines []LineItem `json:"lines,omitempty"`

	// Test marks documents sent to the habilitation (test set) environment.
	Test bool `json:"isTest"`
}

// Validate checks the fields before they are fingerprinted or assembled into a document.
// It returns a *ValidationError listing every problem found.
func (f *DocumentFields) Validate() error {
	verr := &ValidationError{}

	if f.Number == "" {
		verr.add("invoiceNumber is required")
	} else if !numberPattern.MatchString(f.Number) {
		verr.add("invoiceNumber %q must be 1 to 40 letters, digits or hyphens", f.Number)
	}
	if _, err := time.Parse(DateLayout, f.IssueDate); err != nil {
		verr.add("invoiceDate %q must use the YYYY-MM-DD format", f.IssueDate)
	}
	if _, err := time.Parse(TimeLayout, f.IssueTime); err != nil || len(f.IssueTime) != len(TimeLayout) {
		verr.add("invoiceTime %q must use the HH:MM:SS format", f.IssueTime)
	}

	amounts := []struct {
		name  string
		value Amount
	}{
		{"invoiceTotal", f.InvoiceTotal},
		{"taxValue", f.TaxValue},
		{"otherTaxes", f.OtherTaxes},
		{"grandTotal", f.GrandTotal},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			verr.add("%s must not be negative (got %s)", a.name, a.value)
		}
	}

	if f.Supplier.ID == "" {
		verr.add("supplier.id is required")
	}
	if f.Supplier.Name == "" {
		verr.add("supplier.name is required")
	}
	if f.Customer.ID == "" {
		verr.add("customer.id is required")
	}
	if f.Customer.Name == "" {
		verr.add("customer.name is required")
	}

	for i, tax := range f.Taxes {
		if tax.Code == "" {
			verr.add("taxes[%d].code is required", i)
		}
		if tax.TaxableAmount.IsNegative() || tax.TaxAmount.IsNegative() {
			verr.add("taxes[%d] amounts must not be negative", i)
		}
	}
	for i, line := range f.Lines {
		if line.Description == "" {
			verr.add("lines[%d].description is required", i)
		}
		if line.UnitPrice.IsNegative() || line.LineTotal.IsNegative() {
			verr.add("lines[%d] amounts must not be negative", i)
		}
	}

	return verr.orNil()
}

// CurrencyOrDefault returns the document currency, COP when unset.
func (f *DocumentFields) CurrencyOrDefault() string {
	if f.Currency == "" {
		return "COP"
	}
	return f.Currency
}
