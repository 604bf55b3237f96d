package crypto

// certstore.go - the CertificateStore holds the signing key and certificate loaded from the
// PKCS#12 container issued to the electronic invoicing software.
//
// The bundle is immutable once loaded. Reloading swaps the whole bundle atomically so signers
// and the token exchange never observe a certificate paired with a different key.

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

// CertificateBundle is the key material decoded from a PKCS#12 container.
type CertificateBundle struct {
	Certificate *x509.Certificate

	// Chain holds any CA certificates bundled with the signing certificate
	Chain []*x509.Certificate

	PrivateKey crypto.Signer
}

// LoadCertificateBundle decodes a PKCS#12 container.
//
// The container must hold exactly one private key and its certificate. Load fails as one unit:
// a container with a certificate but no key (or the other way round) is rejected.
func LoadCertificateBundle(data []byte, password string) (*CertificateBundle, error) {
	if len(data) == 0 {
		return nil, NewCertificateLoadError("certificate container is empty")
	}

	key, cert, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, WrapCertificateLoadError(err, "incorrect certificate container password")
		}
		return nil, WrapCertificateLoadError(err, "failed to decode certificate container")
	}

	if cert == nil {
		return nil, NewCertificateLoadError("certificate container has no certificate")
	}
	if key == nil {
		return nil, NewCertificateLoadError("certificate container has no private key")
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, NewCertificateLoadError(fmt.Sprintf("unsupported private key type: %T", key))
	}

	if err := ValidateKeyMatchesCertificate(cert, signer); err != nil {
		return nil, WrapCertificateLoadError(err, "invalid certificate container")
	}

	return &CertificateBundle{
		Certificate: cert,
		Chain:       chain,
		PrivateKey:  signer,
	}, nil
}

// CertificateStore provides signing and certificate metadata from a loaded bundle.
// It is safe for concurrent use.
type CertificateStore struct {
	logger *slog.Logger
	bundle atomic.Pointer[CertificateBundle]
}

// NewCertificateStore creates an empty store. Call Load or LoadFile before use.
func NewCertificateStore(logger *slog.Logger) *CertificateStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CertificateStore{logger: logger}
}

// Load decodes the container and replaces the current bundle.
// On failure the previously loaded bundle (if any) stays in place.
func (s *CertificateStore) Load(data []byte, password string) error {
	bundle, err := LoadCertificateBundle(data, password)
	if err != nil {
		return err
	}

	s.bundle.Store(bundle)

	info := NewCertificateInfo(bundle.Certificate)
	s.logger.Info("signing certificate loaded",
		slog.String("subject", info.SubjectDN),
		slog.String("issuer", info.IssuerDN),
		slog.String("serial_number", info.SerialNumber),
		slog.Time("not_after", info.NotAfter),
	)
	if err := CheckValidity(bundle.Certificate, time.Now()); err != nil {
		s.logger.Warn("signing certificate is outside its validity period; DIAN will reject its signatures",
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// LoadFile reads a PKCS#12 container from disk and loads it.
// File access is scoped to the directory containing path.
func (s *CertificateStore) LoadFile(path, password string) error {
	root, err := os.OpenRoot(filepath.Dir(path))
	if err != nil {
		return WrapCertificateLoadError(err, fmt.Sprintf("failed to open certificate directory for %s", path))
	}
	defer root.Close()

	data, err := root.ReadFile(filepath.Base(path))
	if err != nil {
		return WrapCertificateLoadError(err, fmt.Sprintf("failed to read certificate container %s", path))
	}

	return s.Load(data, password)
}

// Loaded reports whether a bundle has been loaded.
func (s *CertificateStore) Loaded() bool {
	return s.bundle.Load() != nil
}

// Sign signs a SHA-256 digest with the private key.
//
// RSA keys produce a PKCS#1 v1.5 signature and ECDSA keys an ASN.1 signature.
func (s *CertificateStore) Sign(digest []byte) ([]byte, error) {
	bundle := s.bundle.Load()
	if bundle == nil {
		return nil, NewSigningError("no signing certificate loaded")
	}
	if len(digest) != sha256.Size {
		return nil, NewSigningError(fmt.Sprintf("digest must be %d bytes, got %d", sha256.Size, len(digest)))
	}

	signature, err := bundle.PrivateKey.Sign(rand.Reader, digest, crypto.SHA256)
	if err != nil {
		return nil, WrapSigningError(err, "failed to sign digest")
	}
	return signature, nil
}

// Certificate returns the loaded signing certificate.
func (s *CertificateStore) Certificate() (*x509.Certificate, error) {
	bundle := s.bundle.Load()
	if bundle == nil {
		return nil, NewCertificateLoadError("no signing certificate loaded")
	}
	return bundle.Certificate, nil
}

// CertificateInfo returns the metadata of the loaded signing certificate.
func (s *CertificateStore) CertificateInfo() (CertificateInfo, error) {
	cert, err := s.Certificate()
	if err != nil {
		return CertificateInfo{}, err
	}
	return NewCertificateInfo(cert), nil
}
