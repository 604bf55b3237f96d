// Package cryptotest generates throwaway signing certificates and PKCS#12 containers for tests.
package cryptotest

import (
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/facturae-co/dian-gateway/app/internal/crypto"
)

// Password protects every container created by this package.
const Password = "test-container-password"

// CommonName is the subject CN of generated certificates.
const CommonName = "FACTURADOR PRUEBAS SAS"

// SerialNumber is the serial of generated certificates.
var SerialNumber = big.NewInt(7134215683124560123)

// Credentials is a generated key and self-signed certificate.
type Credentials struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
	Container   []byte
}

var (
	shared     *Credentials
	sharedErr  error
	sharedOnce sync.Once
)

// NewCredentials returns a key, certificate and PKCS#12 container.
// Key generation is slow so the same credentials are shared by all callers in a test binary.
func NewCredentials(t *testing.T) *Credentials {
	t.Helper()

	sharedOnce.Do(func() {
		shared, sharedErr = generate()
	})
	if sharedErr != nil {
		t.Fatalf("failed to generate test credentials: %v", sharedErr)
	}
	return shared
}

// NewStore returns a CertificateStore loaded with the shared test credentials.
func NewStore(t *testing.T) *crypto.CertificateStore {
	t.Helper()

	creds := NewCredentials(t)
	store := crypto.NewCertificateStore(nil)
	if err := store.Load(creds.Container, Password); err != nil {
		t.Fatalf("failed to load test container: %v", err)
	}
	return store
}

func generate() (*Credentials, error) {
	key, err := crypto.GenerateRSAKeyPair(2048)
	if err != nil {
		return nil, err
	}

	cert, err := crypto.NewSelfSignedCertificate(key, crypto.SelfSignedOptions{
		Subject: pkix.Name{
			Country:      []string{"CO"},
			Organization: []string{"Facturador Pruebas SAS"},
			CommonName:   CommonName,
		},
		Validity:     24 * time.Hour,
		SerialNumber: SerialNumber,
	})
	if err != nil {
		return nil, err
	}

	container, err := crypto.EncodePKCS12(key, cert, Password)
	if err != nil {
		return nil, err
	}

	return &Credentials{PrivateKey: key, Certificate: cert, Container: container}, nil
}
