package xades

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/facturae-co/dian-gateway/app/internal/crypto"
)

// KeySource signs SHA-256 digests and exposes the matching certificate.
// *crypto.CertificateStore satisfies it.
type KeySource interface {
	Sign(digest []byte) ([]byte, error)
	Certificate() (*x509.Certificate, error)
}

// Signer creates signature blocks for canonical documents.
type Signer struct {
	source KeySource
	now    func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock sets the clock used for the signing time.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner creates a Signer backed by source.
func NewSigner(source KeySource, opts ...Option) *Signer {
	s := &Signer{source: source, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign creates the signature block for the canonical document bytes.
//
// The signing time is captured here and cannot be derived again later.
// Any failure returns a signing error and no block.
func (s *Signer) Sign(canonical []byte, documentID string) (*SignatureBlock, error) {
	if len(canonical) == 0 {
		return nil, crypto.NewSigningError("canonical document is empty")
	}
	if documentID == "" {
		return nil, crypto.NewSigningError("document id is required")
	}

	cert, err := s.source.Certificate()
	if err != nil {
		return nil, crypto.WrapSigningError(err, "signing certificate unavailable")
	}

	method, err := signatureMethod(cert)
	if err != nil {
		return nil, err
	}

	digest := crypto.SHA256Digest(canonical)
	signature, err := s.source.Sign(digest)
	if err != nil {
		return nil, crypto.WrapSigningError(err, fmt.Sprintf("failed to sign document %s", documentID))
	}

	block := &SignatureBlock{
		ID:                     SignatureID(documentID),
		CanonicalizationMethod: AlgC14N,
		SignatureMethod:        method,
		DigestMethod:           AlgSHA256,
		DigestValue:            base64.StdEncoding.EncodeToString(digest),
		SignatureValue:         base64.StdEncoding.EncodeToString(signature),
		Certificate:            crypto.CertificateToBase64DER(cert),
		IssuerName:             crypto.FormatDistinguishedName(cert.Issuer),
		SerialNumber:           cert.SerialNumber.String(),
		SigningTime:            s.now().Truncate(time.Millisecond),
		CertDigest:             crypto.SHA256Base64(cert.Raw),
		PolicyID:               PolicyID,
		PolicyHash:             PolicyHash,
	}

	props, err := block.signedPropertiesBytes()
	if err != nil {
		return nil, crypto.WrapSigningError(err, "failed to serialize signed properties")
	}
	block.SignedPropertiesDigest = crypto.SHA256Base64(props)

	return block, nil
}

// SignDocument signs document and embeds the block into its placeholder.
// It returns the signed document and the block.
func (s *Signer) SignDocument(document []byte, documentID string) ([]byte, *SignatureBlock, error) {
	block, err := s.Sign(document, documentID)
	if err != nil {
		return nil, nil, err
	}

	signed, err := Embed(document, block)
	if err != nil {
		return nil, nil, err
	}
	return signed, block, nil
}

func signatureMethod(cert *x509.Certificate) (string, error) {
	switch cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return AlgRSASHA256, nil
	case *ecdsa.PublicKey:
		return AlgECDSASHA256, nil
	default:
		return "", crypto.NewSigningError(fmt.Sprintf("unsupported certificate key type: %T", cert.PublicKey))
	}
}
