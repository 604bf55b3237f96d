// this file provides the digest functions used by DIAN electronic invoicing:
//
//   1. SHA-384 (lowercase hex) for the CUFE and the software security code
//   2. SHA-256 (base64) for XMLDSig digest values (document, certificate, signed properties)
//   3. SHA-256 (lowercase hex) for general checksums

package crypto

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// Hash calculates SHA-256 checksum (hash) and returns hex string.
func Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("data is empty")
	}
	hasher := sha256.New()

	if _, err := io.Copy(hasher, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to hash data: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// SHA384Hex returns the lowercase hex SHA-384 digest of s.
//
// This is the algorithm DIAN requires for the CUFE and the software security code.
func SHA384Hex(s string) string {
	sum := sha512.Sum384([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SHA256Digest returns the raw SHA-256 digest of data.
func SHA256Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// SHA256Base64 returns the standard base64 encoding of the SHA-256 digest of data,
// as carried in XMLDSig DigestValue elements.
func SHA256Base64(data []byte) string {
	return base64.StdEncoding.EncodeToString(SHA256Digest(data))
}
