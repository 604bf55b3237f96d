package api

import (
	"github.com/facturae-co/dian-gateway/app/internal/invoice"
)

// InvoiceResponse is an invoice record. The XML documents are only included on request.
type InvoiceResponse struct {
	*invoice.Invoice

	DocumentXML string `json:"documentXml,omitempty"`
	SignedXML   string `json:"signedXml,omitempty"`
}

// NewInvoiceResponse returns the response for inv, with the XML documents when includeXML is set.
func NewInvoiceResponse(inv *invoice.Invoice, includeXML bool) InvoiceResponse {
	resp := InvoiceResponse{Invoice: inv}
	if includeXML {
		resp.DocumentXML = inv.DocumentXML
		resp.SignedXML = inv.SignedXML
	}
	return resp
}

// ListInvoicesResponse is a page of invoices, newest first.
type ListInvoicesResponse struct {
	Invoices []InvoiceResponse `json:"invoices"`
	Limit    int32             `json:"limit" example:"50"`
	Offset   int32             `json:"offset" example:"0"`
}
