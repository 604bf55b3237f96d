// Package ubl assembles the UBL 2.1 invoice document submitted to DIAN.
//
// The builder maps DocumentFields onto a minimal UBL 2.1 / DIAN 2.1 invoice: the DIAN extension
// (software provider and security code, QR payload), one empty signature placeholder, the parties,
// the tax totals, the monetary totals and the invoice lines. The CUFE is carried as cbc:UUID.
//
// The output is deterministic: the same fields and options always produce the same bytes, which
// are the canonical bytes signed by the xades package.
package ubl

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/facturae-co/dian-gateway/app/internal/cufe"
	"github.com/facturae-co/dian-gateway/app/internal/invoice"
	"github.com/facturae-co/dian-gateway/app/internal/xades"
)

const (
	nsInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	nsCAC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	nsCBC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	nsEXT     = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
	nsSTS     = "dian:gov:co:facturaelectronica:Structures-2-1"

	// ProfileExecutionProduction and ProfileExecutionTest are the cbc:ProfileExecutionID values.
	ProfileExecutionProduction = "1"
	ProfileExecutionTest       = "2"

	invoiceTypeSale = "01"
)

// Options carries the software credentials and environment used while building a document.
type Options struct {
	SoftwareID  string
	SoftwarePin string

	// ProviderID is the NIT of the software provider, defaults to the supplier NIT
	ProviderID string
}

// Build returns the unsigned document for fields with the given CUFE.
// Fields must have passed DocumentFields.Validate.
func Build(fields invoice.DocumentFields, fingerprint string, opts Options) ([]byte, error) {
	if !cufe.IsValid(fingerprint) {
		return nil, fmt.Errorf("invalid CUFE %q", fingerprint)
	}
	if opts.SoftwareID == "" {
		return nil, errors.New("software id is required")
	}

	providerID := opts.ProviderID
	if providerID == "" {
		providerID = fields.Supplier.ID
	}
	currency := fields.CurrencyOrDefault()

	searchURL := cufe.SearchURLProduction
	profileExecution := ProfileExecutionProduction
	if fields.Test {
		searchURL = cufe.SearchURLTest
		profileExecution = ProfileExecutionTest
	}

	doc := invoiceDoc{
		Xmlns:      nsInvoice,
		XmlnsCAC:   nsCAC,
		XmlnsCBC:   nsCBC,
		XmlnsDS:    xades.NamespaceDS,
		XmlnsEXT:   nsEXT,
		XmlnsSTS:   nsSTS,
		XmlnsXAdES: xades.NamespaceXAdES,
		Extensions: ublExtensions{
			Extension: []ublExtension{
				{Content: extensionContent{DianExtensions: &dianExtensions{
					SoftwareProvider: softwareProvider{
						ProviderID: providerID,
						SoftwareID: opts.SoftwareID,
					},
					SoftwareSecurityCode: cufe.SoftwareSecurityCode(opts.SoftwareID, opts.SoftwarePin, fields.Number),
					QRCode:               cufe.QRData(fields, fingerprint, searchURL),
				}}},
				{Content: extensionContent{Signature: &signaturePlaceholder{
					ID: xades.SignatureID(fields.Number),
				}}},
			},
		},
		UBLVersionID:         "UBL 2.1",
		CustomizationID:      "10",
		ProfileID:            "DIAN 2.1: Factura Electrónica de Venta",
		ProfileExecutionID:   profileExecution,
		ID:                   fields.Number,
		UUID:                 uuidElement{SchemeID: profileExecution, SchemeName: "CUFE-SHA384", Value: fingerprint},
		IssueDate:            fields.IssueDate,
		IssueTime:            fields.IssueTime + "-05:00",
		InvoiceTypeCode:      invoiceTypeSale,
		DocumentCurrencyCode: currency,
		LineCountNumeric:     len(fields.Lines),
		Supplier:             partyRole{Party: buildParty(fields.Supplier)},
		Customer:             partyRole{Party: buildParty(fields.Customer)},
		TaxTotals:            buildTaxTotals(fields, currency),
		LegalMonetaryTotal: monetaryTotal{
			LineExtensionAmount: money(fields.InvoiceTotal, currency),
			TaxExclusiveAmount:  money(fields.InvoiceTotal, currency),
			TaxInclusiveAmount:  money(fields.GrandTotal, currency),
			PayableAmount:       money(fields.GrandTotal, currency),
		},
	}

	for i, line := range fields.Lines {
		unit := line.UnitCode
		if unit == "" {
			unit = "94"
		}
		doc.Lines = append(doc.Lines, invoiceLine{
			ID:                  i + 1,
			InvoicedQuantity:    quantity{UnitCode: unit, Value: line.Quantity},
			LineExtensionAmount: money(line.LineTotal, currency),
			Item:                item{Description: line.Description},
			Price:               price{PriceAmount: money(line.UnitPrice, currency)},
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode invoice document: %w", err)
	}
	return buf.Bytes(), nil
}

// ValidateSchema checks that the document is well-formed XML.
// Validation against the DIAN XSD is not performed.
func ValidateSchema(document []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(document))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("document is not well-formed: %w", err)
		}
	}
}

func buildParty(p invoice.Party) party {
	scheme := p.SchemeID
	if scheme == "" {
		scheme = "31"
	}
	return party{
		Identification: partyIdentification{ID: schemedID{SchemeID: scheme, Value: p.ID}},
		Name:           p.Name,
		TaxScheme: partyTaxScheme{
			RegistrationName: p.Name,
			CompanyID:        schemedID{SchemeID: scheme, Value: p.ID},
			TaxScheme:        taxScheme{ID: invoice.TaxCodeIVA, Name: "IVA"},
		},
		LegalEntity: partyLegalEntity{
			RegistrationName: p.Name,
			CompanyID:        schemedID{SchemeID: scheme, Value: p.ID},
		},
		AdditionalAccountID: p.Type,
	}
}

func buildTaxTotals(fields invoice.DocumentFields, currency string) []taxTotal {
	if len(fields.Taxes) == 0 {
		return []taxTotal{{
			TaxAmount: money(fields.TaxValue, currency),
			Subtotals: []taxSubtotal{{
				TaxableAmount: money(fields.InvoiceTotal, currency),
				TaxAmount:     money(fields.TaxValue, currency),
				Category:      taxCategory{TaxScheme: taxScheme{ID: invoice.TaxCodeIVA, Name: "IVA"}},
			}},
		}}
	}

	totals := make([]taxTotal, 0, len(fields.Taxes))
	for _, tax := range fields.Taxes {
		totals = append(totals, taxTotal{
			TaxAmount: money(tax.TaxAmount, currency),
			Subtotals: []taxSubtotal{{
				TaxableAmount: money(tax.TaxableAmount, currency),
				TaxAmount:     money(tax.TaxAmount, currency),
				Category: taxCategory{
					Percent:   tax.Percent,
					TaxScheme: taxScheme{ID: tax.Code, Name: taxName(tax.Code)},
				},
			}},
		})
	}
	return totals
}

func taxName(code string) string {
	switch code {
	case "01":
		return "IVA"
	case "03":
		return "ICA"
	case "04":
		return "INC"
	default:
		return code
	}
}

func money(a invoice.Amount, currency string) amount {
	return amount{CurrencyID: currency, Value: a.String()}
}
