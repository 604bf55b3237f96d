// this file contains functions to generate signing key pairs and self-signed certificates
// packaged as PKCS#12 containers.
//
// Production containers are issued by a DIAN-accredited certification authority. The generated
// containers are for local development and tests against a mock authority only.

package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"os"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

// GenerateRSAKeyPair generates a new RSA private key of the given size
func GenerateRSAKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits != 2048 && bits != 3072 && bits != 4096 {
		return nil, NewValidationError(fmt.Sprintf("unsupported RSA key size %d (use 2048, 3072 or 4096)", bits))
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, WrapInternalError(err, "failed to generate RSA key pair")
	}

	return privateKey, nil
}

// SelfSignedOptions controls the certificate created by NewSelfSignedCertificate.
type SelfSignedOptions struct {
	Subject  pkix.Name
	Validity time.Duration

	// SerialNumber defaults to a random 64 bit value when nil
	SerialNumber *big.Int
}

// NewSelfSignedCertificate creates a self-signed signing certificate for privateKey.
func NewSelfSignedCertificate(privateKey *rsa.PrivateKey, opts SelfSignedOptions) (*x509.Certificate, error) {
	if opts.Validity <= 0 {
		opts.Validity = 365 * 24 * time.Hour
	}

	serial := opts.SerialNumber
	if serial == nil {
		var err error
		serial, err = rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
		if err != nil {
			return nil, WrapInternalError(err, "failed to generate serial number")
		}
	}

	notBefore := time.Now().Add(-time.Minute)
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               opts.Subject,
		Issuer:                opts.Subject,
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(opts.Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, WrapInternalError(err, "failed to create certificate")
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, WrapInternalError(err, "failed to parse generated certificate")
	}
	return cert, nil
}

// EncodePKCS12 packages the key and certificate into a password protected PKCS#12 container.
func EncodePKCS12(privateKey *rsa.PrivateKey, cert *x509.Certificate, password string) ([]byte, error) {
	data, err := pkcs12.Modern.Encode(privateKey, cert, nil, password)
	if err != nil {
		return nil, WrapInternalError(err, "failed to encode PKCS#12 container")
	}
	return data, nil
}

// SavePKCS12File writes a PKCS#12 container
//
// Parameters:
//   - baseDir: The base directory to scope file access (e.g., "./certs")
//   - filename: The filename within the base directory (e.g., "signing.p12")
func SavePKCS12File(data []byte, baseDir, filename string) error {
	root, err := os.OpenRoot(baseDir)
	if err != nil {
		return fmt.Errorf("failed to open root directory %s: %w", baseDir, err)
	}
	defer root.Close()

	if err := root.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
