package xades

import (
	"encoding/xml"
	"time"
)

// SignatureBlock is the signature of one document. It is never modified after creation;
// re-signing a document produces a new block.
type SignatureBlock struct {
	// ID is the ds:Signature Id, "xmldsig-" + document id
	ID string

	CanonicalizationMethod string
	SignatureMethod        string
	DigestMethod           string

	// DigestValue is the base64 SHA-256 digest of the canonical document bytes
	DigestValue string

	// SignatureValue is the base64 signature over the document digest
	SignatureValue string

	// Certificate is the base64 DER signing certificate
	Certificate  string
	IssuerName   string
	SerialNumber string

	SigningTime time.Time

	// CertDigest is the base64 SHA-256 digest of the DER certificate bytes
	CertDigest string

	// SignedPropertiesDigest is the base64 SHA-256 digest of the serialized xades:SignedProperties
	SignedPropertiesDigest string

	PolicyID   string
	PolicyHash string
}

func (b *SignatureBlock) signedPropertiesID() string { return b.ID + "-signedprops" }
func (b *SignatureBlock) documentReferenceID() string {
	return b.ID + "-" + DocumentReferenceName
}

// Bytes renders the ds:Signature element.
func (b *SignatureBlock) Bytes() ([]byte, error) {
	return xml.Marshal(b)
}

// MarshalXML renders the block as a ds:Signature element; the start element is ignored.
func (b *SignatureBlock) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	return e.Encode(b.element())
}

// the elements below are rendered with literal "ds:" / "xades:" prefixes, matching the
// prefixes the UBL document declares. Decoding uses the local-name structs further down.

type dsSignature struct {
	XMLName        xml.Name     `xml:"ds:Signature"`
	XmlnsDS        string       `xml:"xmlns:ds,attr"`
	ID             string       `xml:"Id,attr"`
	SignedInfo     dsSignedInfo `xml:"ds:SignedInfo"`
	SignatureValue string       `xml:"ds:SignatureValue"`
	KeyInfo        dsKeyInfo    `xml:"ds:KeyInfo"`
	Object         dsObject     `xml:"ds:Object"`
}

type dsAlgorithm struct {
	Algorithm string `xml:"Algorithm,attr"`
}

type dsSignedInfo struct {
	CanonicalizationMethod dsAlgorithm   `xml:"ds:CanonicalizationMethod"`
	SignatureMethod        dsAlgorithm   `xml:"ds:SignatureMethod"`
	References             []dsReference `xml:"ds:Reference"`
}

type dsReference struct {
	ID           string        `xml:"Id,attr,omitempty"`
	Type         string        `xml:"Type,attr,omitempty"`
	URI          string        `xml:"URI,attr"`
	Transforms   *dsTransforms `xml:"ds:Transforms,omitempty"`
	DigestMethod dsAlgorithm   `xml:"ds:DigestMethod"`
	DigestValue  string        `xml:"ds:DigestValue"`
}

type dsTransforms struct {
	Transform []dsAlgorithm `xml:"ds:Transform"`
}

type dsKeyInfo struct {
	X509Data dsX509Data `xml:"ds:X509Data"`
}

type dsX509Data struct {
	Certificate string `xml:"ds:X509Certificate"`
}

type dsObject struct {
	QualifyingProperties xadesQualifyingProperties `xml:"xades:QualifyingProperties"`
}

type xadesQualifyingProperties struct {
	XmlnsXAdES       string                `xml:"xmlns:xades,attr"`
	Target           string                `xml:"Target,attr"`
	SignedProperties xadesSignedProperties `xml:"xades:SignedProperties"`
}

type xadesSignedProperties struct {
	XMLName xml.Name `xml:"xades:SignedProperties"`

	// namespace declarations are only set when the element is serialized on its own for digesting
	XmlnsDS    string `xml:"xmlns:ds,attr,omitempty"`
	XmlnsXAdES string `xml:"xmlns:xades,attr,omitempty"`

	ID                         string                          `xml:"Id,attr"`
	SignedSignatureProperties  xadesSignedSignatureProperties  `xml:"xades:SignedSignatureProperties"`
	SignedDataObjectProperties xadesSignedDataObjectProperties `xml:"xades:SignedDataObjectProperties"`
}

type xadesSignedSignatureProperties struct {
	SigningTime               string                         `xml:"xades:SigningTime"`
	SigningCertificate        xadesSigningCertificate        `xml:"xades:SigningCertificate"`
	SignaturePolicyIdentifier xadesSignaturePolicyIdentifier `xml:"xades:SignaturePolicyIdentifier"`
}

type xadesSigningCertificate struct {
	Cert xadesCert `xml:"xades:Cert"`
}

type xadesCert struct {
	CertDigest   xadesDigest       `xml:"xades:CertDigest"`
	IssuerSerial xadesIssuerSerial `xml:"xades:IssuerSerial"`
}

type xadesDigest struct {
	DigestMethod dsAlgorithm `xml:"ds:DigestMethod"`
	DigestValue  string      `xml:"ds:DigestValue"`
}

type xadesIssuerSerial struct {
	IssuerName   string `xml:"ds:X509IssuerName"`
	SerialNumber string `xml:"ds:X509SerialNumber"`
}

type xadesSignaturePolicyIdentifier struct {
	SignaturePolicyID xadesSignaturePolicyID `xml:"xades:SignaturePolicyId"`
}

type xadesSignaturePolicyID struct {
	SigPolicyID   xadesSigPolicyID `xml:"xades:SigPolicyId"`
	SigPolicyHash xadesDigest      `xml:"xades:SigPolicyHash"`
}

type xadesSigPolicyID struct {
	Identifier string `xml:"xades:Identifier"`
}

type xadesSignedDataObjectProperties struct {
	DataObjectFormat xadesDataObjectFormat `xml:"xades:DataObjectFormat"`
}

type xadesDataObjectFormat struct {
	ObjectReference string `xml:"ObjectReference,attr"`
	MimeType        string `xml:"xades:MimeType"`
}

func (b *SignatureBlock) signedProperties() xadesSignedProperties {
	return xadesSignedProperties{
		ID: b.signedPropertiesID(),
		SignedSignatureProperties: xadesSignedSignatureProperties{
			SigningTime: b.SigningTime.Format(SigningTimeLayout),
			SigningCertificate: xadesSigningCertificate{
				Cert: xadesCert{
					CertDigest: xadesDigest{
						DigestMethod: dsAlgorithm{Algorithm: b.DigestMethod},
						DigestValue:  b.CertDigest,
					},
					IssuerSerial: xadesIssuerSerial{
						IssuerName:   b.IssuerName,
						SerialNumber: b.SerialNumber,
					},
				},
			},
			SignaturePolicyIdentifier: xadesSignaturePolicyIdentifier{
				SignaturePolicyID: xadesSignaturePolicyID{
					SigPolicyID: xadesSigPolicyID{Identifier: b.PolicyID},
					SigPolicyHash: xadesDigest{
						DigestMethod: dsAlgorithm{Algorithm: b.DigestMethod},
						DigestValue:  b.PolicyHash,
					},
				},
			},
		},
		SignedDataObjectProperties: xadesSignedDataObjectProperties{
			DataObjectFormat: xadesDataObjectFormat{
				ObjectReference: "#" + b.documentReferenceID(),
				MimeType:        DocumentMimeType,
			},
		},
	}
}

// signedPropertiesBytes serializes SignedProperties on its own, carrying the namespace
// declarations it inherits inside the full signature.
func (b *SignatureBlock) signedPropertiesBytes() ([]byte, error) {
	sp := b.signedProperties()
	sp.XmlnsDS = NamespaceDS
	sp.XmlnsXAdES = NamespaceXAdES
	return xml.Marshal(sp)
}

func (b *SignatureBlock) element() dsSignature {
	return dsSignature{
		XmlnsDS: NamespaceDS,
		ID:      b.ID,
		SignedInfo: dsSignedInfo{
			CanonicalizationMethod: dsAlgorithm{Algorithm: b.CanonicalizationMethod},
			SignatureMethod:        dsAlgorithm{Algorithm: b.SignatureMethod},
			References: []dsReference{
				{
					ID:  b.documentReferenceID(),
					URI: "",
					Transforms: &dsTransforms{
						Transform: []dsAlgorithm{{Algorithm: TransformEnveloped}},
					},
					DigestMethod: dsAlgorithm{Algorithm: b.DigestMethod},
					DigestValue:  b.DigestValue,
				},
				{
					Type:         SignedPropertiesType,
					URI:          "#" + b.signedPropertiesID(),
					DigestMethod: dsAlgorithm{Algorithm: b.DigestMethod},
					DigestValue:  b.SignedPropertiesDigest,
				},
			},
		},
		SignatureValue: b.SignatureValue,
		KeyInfo: dsKeyInfo{
			X509Data: dsX509Data{Certificate: b.Certificate},
		},
		Object: dsObject{
			QualifyingProperties: xadesQualifyingProperties{
				XmlnsXAdES:       NamespaceXAdES,
				Target:           "#" + b.ID,
				SignedProperties: b.signedProperties(),
			},
		},
	}
}

// decoding structs match on local names so they accept any prefix bound to the namespaces.

type signatureDoc struct {
	XMLName    xml.Name `xml:"Signature"`
	ID         string   `xml:"Id,attr"`
	SignedInfo struct {
		CanonicalizationMethod algorithmDoc   `xml:"CanonicalizationMethod"`
		SignatureMethod        algorithmDoc   `xml:"SignatureMethod"`
		References             []referenceDoc `xml:"Reference"`
	} `xml:"SignedInfo"`
	SignatureValue string `xml:"SignatureValue"`
	Certificate    string `xml:"KeyInfo>X509Data>X509Certificate"`
	Properties     struct {
		SigningTime string    `xml:"SignedSignatureProperties>SigningTime"`
		CertDigest  digestDoc `xml:"SignedSignatureProperties>SigningCertificate>Cert>CertDigest"`
		Issuer      string    `xml:"SignedSignatureProperties>SigningCertificate>Cert>IssuerSerial>X509IssuerName"`
		Serial      string    `xml:"SignedSignatureProperties>SigningCertificate>Cert>IssuerSerial>X509SerialNumber"`
		PolicyID    string    `xml:"SignedSignatureProperties>SignaturePolicyIdentifier>SignaturePolicyId>SigPolicyId>Identifier"`
		PolicyHash  digestDoc `xml:"SignedSignatureProperties>SignaturePolicyIdentifier>SignaturePolicyId>SigPolicyHash"`
	} `xml:"Object>QualifyingProperties>SignedProperties"`
}

type algorithmDoc struct {
	Algorithm string `xml:"Algorithm,attr"`
}

type referenceDoc struct {
	Type         string       `xml:"Type,attr"`
	URI          string       `xml:"URI,attr"`
	DigestMethod algorithmDoc `xml:"DigestMethod"`
	DigestValue  string       `xml:"DigestValue"`
}

type digestDoc struct {
	DigestMethod algorithmDoc `xml:"DigestMethod"`
	DigestValue  string       `xml:"DigestValue"`
}

// ParseSignatureBlock decodes a rendered ds:Signature element.
func ParseSignatureBlock(data []byte) (*SignatureBlock, error) {
	var doc signatureDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	signingTime, err := time.Parse(SigningTimeLayout, doc.Properties.SigningTime)
	if err != nil {
		return nil, err
	}

	b := &SignatureBlock{
		ID:                     doc.ID,
		CanonicalizationMethod: doc.SignedInfo.CanonicalizationMethod.Algorithm,
		SignatureMethod:        doc.SignedInfo.SignatureMethod.Algorithm,
		SignatureValue:         doc.SignatureValue,
		Certificate:            doc.Certificate,
		IssuerName:             doc.Properties.Issuer,
		SerialNumber:           doc.Properties.Serial,
		SigningTime:            signingTime,
		CertDigest:             doc.Properties.CertDigest.DigestValue,
		PolicyID:               doc.Properties.PolicyID,
		PolicyHash:             doc.Properties.PolicyHash.DigestValue,
	}
	for _, ref := range doc.SignedInfo.References {
		switch {
		case ref.Type == SignedPropertiesType:
			b.SignedPropertiesDigest = ref.DigestValue
		case ref.URI == "":
			b.DigestMethod = ref.DigestMethod.Algorithm
			b.DigestValue = ref.DigestValue
		}
	}
	return b, nil
}
