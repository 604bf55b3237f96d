package crypto

import (
	"errors"
	"fmt"
	"testing"
)

// check to ensure error code handling has not been broken
func TestCryptoError_Code(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{"validation", NewValidationError("test"), ErrCodeValidation},
		{"certificate_load", NewCertificateLoadError("test"), ErrCodeCertificateLoad},
		{"signing", NewSigningError("test"), ErrCodeSigning},
		{"certificate", NewCertificateError("test"), ErrCodeCertificate},
		{"internal", NewInternalError("test"), ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cryptoErr *CryptoError
			if !errors.As(tt.err, &cryptoErr) {
				t.Fatal("error is not a CryptoError")
			}
			if cryptoErr.Code() != tt.wantCode {
				t.Errorf("Code() = %q, want %q", cryptoErr.Code(), tt.wantCode)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("sign invoice: %w", WrapSigningError(cause, "failed"))

	if !HasCode(err, ErrCodeSigning) {
		t.Error("HasCode() did not find wrapped signing error")
	}
	if HasCode(err, ErrCodeCertificateLoad) {
		t.Error("HasCode() matched the wrong code")
	}
	if !errors.Is(err, cause) {
		t.Error("cause is not reachable through Unwrap")
	}
}
