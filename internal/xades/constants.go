package xades

// Namespaces.
const (
	NamespaceDS    = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceXAdES = "http://uri.etsi.org/01903/v1.3.2#"
)

// Algorithm identifiers.
const (
	AlgC14N               = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA256          = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgECDSASHA256        = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256"
	AlgSHA256             = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped    = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	SignedPropertiesType  = "http://uri.etsi.org/01903#SignedProperties"
	DocumentMimeType      = "text/xml"
	DocumentReferenceName = "ref0"
)

// DIAN signature policy v2 (mandatory for XAdES-EPES).
const (
	PolicyID = "https://facturaelectronica.dian.gov.co/politicadefirma/v2/politicadefirmav2.pdf"

	// PolicyHash is the base64 SHA-256 of the policy document.
	PolicyHash = "dMoMvtcG5aIzgYo0tIsSQeVJBDnUnfSOfBpxXrmor0Y="
)

// SigningTimeLayout is the xades:SigningTime format (millisecond precision with offset).
const SigningTimeLayout = "2006-01-02T15:04:05.000-07:00"

// SignatureID returns the Id of the ds:Signature element for a document.
func SignatureID(documentID string) string {
	return "xmldsig-" + documentID
}
