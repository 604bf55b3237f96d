package crypto

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"
)

func TestHash(t *testing.T) {

	// check that empty input returns an error
	input := []byte("")
	_, err := Hash(input)
	if err == nil {
		t.Fatalf("Hash() expected error, got nil")
	}

	input = []byte("hello world")
	result, err := Hash(input)
	if err != nil {
		t.Fatalf("Hash() returned error: %v", err)
	}

	// Check that result is 64 hex characters (SHA-256)
	if len(result) != 64 {
		t.Errorf("Hash() returned %d characters, expected 64", len(result))
	}

	if want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"; result != want {
		t.Errorf("Hash() = %s, want %s", result, want)
	}
}

func TestSHA384Hex(t *testing.T) {
	got := SHA384Hex("abc")

	sum := sha512.Sum384([]byte("abc"))
	want := hex.EncodeToString(sum[:])

	if got != want {
		t.Errorf("SHA384Hex() = %s, want %s", got, want)
	}
	if len(got) != 96 {
		t.Errorf("SHA384Hex() returned %d characters, expected 96", len(got))
	}
	for _, c := range got {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("SHA384Hex() returned non-hex character: %c", c)
		}
	}
}

func TestSHA256Base64(t *testing.T) {
	// known vector: sha256("hello world")
	want := "uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek="
	if got := SHA256Base64([]byte("hello world")); got != want {
		t.Errorf("SHA256Base64() = %s, want %s", got, want)
	}
}
