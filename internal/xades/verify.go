package xades

import (
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/facturae-co/dian-gateway/app/internal/crypto"
)

// VerifyDigest checks the block's document digest against a fresh digest of canonical.
func VerifyDigest(canonical []byte, block *SignatureBlock) error {
	if block == nil {
		return crypto.NewValidationError("signature block is required")
	}
	if block.DigestMethod != AlgSHA256 {
		return crypto.NewValidationError(fmt.Sprintf("unsupported digest method %q", block.DigestMethod))
	}
	if got := crypto.SHA256Base64(canonical); got != block.DigestValue {
		return crypto.NewValidationError(fmt.Sprintf("document digest mismatch: computed %s, signature carries %s", got, block.DigestValue))
	}
	return nil
}

// Verify checks the document digest, the certificate and signed-properties digests,
// and the signature value against the public key of the embedded certificate.
//
// It does not check the certificate chain or validity period.
func Verify(canonical []byte, block *SignatureBlock) error {
	if err := VerifyDigest(canonical, block); err != nil {
		return err
	}

	cert, err := crypto.ParseBase64DERCertificate(block.Certificate)
	if err != nil {
		return err
	}

	if got := crypto.SHA256Base64(cert.Raw); got != block.CertDigest {
		return crypto.NewCertificateError("certificate digest does not match the embedded certificate")
	}
	if cert.SerialNumber.String() != block.SerialNumber {
		return crypto.NewCertificateError("serial number does not match the embedded certificate")
	}

	props, err := block.signedPropertiesBytes()
	if err != nil {
		return crypto.WrapInternalError(err, "failed to serialize signed properties")
	}
	if crypto.SHA256Base64(props) != block.SignedPropertiesDigest {
		return crypto.NewValidationError("signed properties digest mismatch")
	}

	signature, err := base64.StdEncoding.DecodeString(block.SignatureValue)
	if err != nil {
		return crypto.WrapValidationError(err, "failed to decode signature value")
	}

	digest := crypto.SHA256Digest(canonical)
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(pub, stdcrypto.SHA256, digest, signature); err != nil {
			return crypto.WrapCertificateError(err, "signature value does not verify")
		}
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pub, digest, signature) {
			return crypto.NewCertificateError("signature value does not verify")
		}
	default:
		return crypto.NewValidationError(fmt.Sprintf("unsupported certificate key type: %T", cert.PublicKey))
	}

	return nil
}

// VerifyDocument detaches the signature of documentID from a signed document and verifies it.
func VerifyDocument(signed []byte, documentID string) (*SignatureBlock, error) {
	canonical, block, err := Detach(signed, documentID)
	if err != nil {
		return nil, err
	}
	if err := Verify(canonical, block); err != nil {
		return block, err
	}
	return block, nil
}
