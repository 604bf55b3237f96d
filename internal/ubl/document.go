package ubl

import "encoding/xml"

// element names carry literal prefixes; the namespaces are declared on the Invoice root.

type invoiceDoc struct {
	XMLName    xml.Name `xml:"Invoice"`
	Xmlns      string   `xml:"xmlns,attr"`
	XmlnsCAC   string   `xml:"xmlns:cac,attr"`
	XmlnsCBC   string   `xml:"xmlns:cbc,attr"`
	XmlnsDS    string   `xml:"xmlns:ds,attr"`
	XmlnsEXT   string   `xml:"xmlns:ext,attr"`
	XmlnsSTS   string   `xml:"xmlns:sts,attr"`
	XmlnsXAdES string   `xml:"xmlns:xades,attr"`

	Extensions ublExtensions `xml:"ext:UBLExtensions"`

	UBLVersionID         string        `xml:"cbc:UBLVersionID"`
	CustomizationID      string        `xml:"cbc:CustomizationID"`
	ProfileID            string        `xml:"cbc:ProfileID"`
	ProfileExecutionID   string        `xml:"cbc:ProfileExecutionID"`
	ID                   string        `xml:"cbc:ID"`
	UUID                 uuidElement   `xml:"cbc:UUID"`
	IssueDate            string        `xml:"cbc:IssueDate"`
	IssueTime            string        `xml:"cbc:IssueTime"`
	InvoiceTypeCode      string        `xml:"cbc:InvoiceTypeCode"`
	DocumentCurrencyCode string        `xml:"cbc:DocumentCurrencyCode"`
	LineCountNumeric     int           `xml:"cbc:LineCountNumeric"`
	Supplier             partyRole     `xml:"cac:AccountingSupplierParty"`
	Customer             partyRole     `xml:"cac:AccountingCustomerParty"`
	TaxTotals            []taxTotal    `xml:"cac:TaxTotal"`
	LegalMonetaryTotal   monetaryTotal `xml:"cac:LegalMonetaryTotal"`
	Lines                []invoiceLine `xml:"cac:InvoiceLine"`
}

type ublExtensions struct {
	Extension []ublExtension `xml:"ext:UBLExtension"`
}

type ublExtension struct {
	Content extensionContent `xml:"ext:ExtensionContent"`
}

type extensionContent struct {
	DianExtensions *dianExtensions       `xml:"sts:DianExtensions,omitempty"`
	Signature      *signaturePlaceholder `xml:"ds:Signature,omitempty"`
}

type dianExtensions struct {
	SoftwareProvider     softwareProvider `xml:"sts:SoftwareProvider"`
	SoftwareSecurityCode string           `xml:"sts:SoftwareSecurityCode"`
	QRCode               string           `xml:"sts:QRCode"`
}

type softwareProvider struct {
	ProviderID string `xml:"sts:ProviderID"`
	SoftwareID string `xml:"sts:SoftwareID"`
}

// signaturePlaceholder renders as <ds:Signature Id="..."></ds:Signature>
type signaturePlaceholder struct {
	ID string `xml:"Id,attr"`
}

type uuidElement struct {
	SchemeID   string `xml:"schemeID,attr"`
	SchemeName string `xml:"schemeName,attr"`
	Value      string `xml:",chardata"`
}

type partyRole struct {
	Party party `xml:"cac:Party"`
}

type party struct {
	AdditionalAccountID string              `xml:"cbc:AdditionalAccountID,omitempty"`
	Identification      partyIdentification `xml:"cac:PartyIdentification"`
	Name                string              `xml:"cac:PartyName>cbc:Name"`
	TaxScheme           partyTaxScheme      `xml:"cac:PartyTaxScheme"`
	LegalEntity         partyLegalEntity    `xml:"cac:PartyLegalEntity"`
}

type partyIdentification struct {
	ID schemedID `xml:"cbc:ID"`
}

type schemedID struct {
	SchemeID string `xml:"schemeID,attr"`
	Value    string `xml:",chardata"`
}

type partyTaxScheme struct {
	RegistrationName string    `xml:"cbc:RegistrationName"`
	CompanyID        schemedID `xml:"cbc:CompanyID"`
	TaxScheme        taxScheme `xml:"cac:TaxScheme"`
}

type partyLegalEntity struct {
	RegistrationName string    `xml:"cbc:RegistrationName"`
	CompanyID        schemedID `xml:"cbc:CompanyID"`
}

type taxScheme struct {
	ID   string `xml:"cbc:ID"`
	Name string `xml:"cbc:Name"`
}

type amount struct {
	CurrencyID string `xml:"currencyID,attr"`
	Value      string `xml:",chardata"`
}

type taxTotal struct {
	TaxAmount amount        `xml:"cbc:TaxAmount"`
	Subtotals []taxSubtotal `xml:"cac:TaxSubtotal"`
}

type taxSubtotal struct {
	TaxableAmount amount      `xml:"cbc:TaxableAmount"`
	TaxAmount     amount      `xml:"cbc:TaxAmount"`
	Category      taxCategory `xml:"cac:TaxCategory"`
}

type taxCategory struct {
	Percent   string    `xml:"cbc:Percent,omitempty"`
	TaxScheme taxScheme `xml:"cac:TaxScheme"`
}

type monetaryTotal struct {
	LineExtensionAmount amount `xml:"cbc:LineExtensionAmount"`
	TaxExclusiveAmount  amount `xml:"cbc:TaxExclusiveAmount"`
	TaxInclusiveAmount  amount `xml:"cbc:TaxInclusiveAmount"`
	PayableAmount       amount `xml:"cbc:PayableAmount"`
}

type invoiceLine struct {
	ID                  int      `xml:"cbc:ID"`
	InvoicedQuantity    quantity `xml:"cbc:InvoicedQuantity"`
	LineExtensionAmount amount   `xml:"cbc:LineExtensionAmount"`
	Item                item     `xml:"cac:Item"`
	Price               price    `xml:"cac:Price"`
}

type quantity struct {
	UnitCode string `xml:"unitCode,attr"`
	Value    string `xml:",chardata"`
}

type item struct {
	Description string `xml:"cbc:Description"`
}

type price struct {
	PriceAmount amount `xml:"cbc:PriceAmount"`
}
