package crypto

// certificates.go - helpers for rendering X.509 certificate details the way XAdES signatures
// and the DIAN authentication exchange expect them.

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// CertificateInfo is a read-only projection of the loaded signing certificate.
type CertificateInfo struct {

	// SerialNumber is the certificate serial in decimal, as used in X509SerialNumber and the auth scope
	SerialNumber string

	IssuerDN  string
	SubjectDN string

	// CommonName is the subject CN, used as the username in the token exchange
	CommonName string

	NotBefore time.Time
	NotAfter  time.Time
}

// NewCertificateInfo builds the metadata projection for cert.
func NewCertificateInfo(cert *x509.Certificate) CertificateInfo {
	return CertificateInfo{
		SerialNumber: cert.SerialNumber.String(),
		IssuerDN:     FormatDistinguishedName(cert.Issuer),
		SubjectDN:    FormatDistinguishedName(cert.Subject),
		CommonName:   cert.Subject.CommonName,
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
	}
}

// CertificateToBase64DER encodes the DER form of cert with standard base64,
// the representation carried in ds:X509Certificate.
func CertificateToBase64DER(cert *x509.Certificate) string {
	return base64.StdEncoding.EncodeToString(cert.Raw)
}

// ParseBase64DERCertificate is the inverse of CertificateToBase64DER.
func ParseBase64DERCertificate(encoded string) (*x509.Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, WrapValidationError(err, "failed to decode certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, WrapCertificateError(err, "failed to parse certificate")
	}
	return cert, nil
}

var attributeShortNames = map[string]string{
	"2.5.4.3":                    "CN",
	"2.5.4.5":                    "SERIALNUMBER",
	"2.5.4.6":                    "C",
	"2.5.4.7":                    "L",
	"2.5.4.8":                    "ST",
	"2.5.4.9":                    "STREET",
	"2.5.4.10":                   "O",
	"2.5.4.11":                   "OU",
	"2.5.4.12":                   "T",
	"1.2.840.113549.1.9.1":       "E",
	"0.9.2342.19200300.100.1.25": "DC",
}

// FormatDistinguishedName renders a name as comma separated "SHORT=value" attributes
// in certificate order (e.g. "C=CO, O=Camerfirma, CN=AC CAMERFIRMA").
// Unknown attribute types are rendered with their dotted OID.
func FormatDistinguishedName(name pkix.Name) string {
	var parts []string
	for _, rdn := range name.ToRDNSequence() {
		for _, atv := range rdn {
			parts = append(parts, fmt.Sprintf("%s=%v", attributeShortName(atv.Type), atv.Value))
		}
	}
	return strings.Join(parts, ", ")
}

func attributeShortName(oid asn1.ObjectIdentifier) string {
	if short, ok := attributeShortNames[oid.String()]; ok {
		return short
	}
	return oid.String()
}

// ValidateKeyMatchesCertificate checks that the private key belongs to the certificate.
//
// A PKCS#12 container holding a key for a different certificate is rejected before any
// document is signed with it.
func ValidateKeyMatchesCertificate(cert *x509.Certificate, key crypto.Signer) error {
	if cert == nil || key == nil {
		return NewInternalError("certificate and key are required")
	}

	pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return NewValidationError(fmt.Sprintf("unsupported private key type: %T", key))
	}
	if !pub.Equal(cert.PublicKey) {
		return NewCertificateError("private key does not match the certificate public key")
	}
	return nil
}

// CheckValidity returns an error when now is outside the certificate validity window.
func CheckValidity(cert *x509.Certificate, now time.Time) error {
	if now.Before(cert.NotBefore) {
		return NewCertificateError(fmt.Sprintf("certificate not valid before %s", cert.NotBefore.UTC().Format(time.RFC3339)))
	}
	if now.After(cert.NotAfter) {
		return NewCertificateError(fmt.Sprintf("certificate expired at %s", cert.NotAfter.UTC().Format(time.RFC3339)))
	}
	return nil
}
