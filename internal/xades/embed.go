package xades

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/facturae-co/dian-gateway/app/internal/crypto"
)

var placeholderPattern = regexp.MustCompile(`<ds:Signature Id="([^"]*)"></ds:Signature>`)

// Placeholder returns the empty signature element a document carries before it is signed.
func Placeholder(documentID string) string {
	return fmt.Sprintf(`<ds:Signature Id="%s"></ds:Signature>`, SignatureID(documentID))
}

// Embed replaces the document's signature placeholder with the rendered block.
//
// The document must contain exactly one placeholder and its Id must match the block.
// Zero or several placeholders are an error: nothing is signed at a guessed location.
func Embed(document []byte, block *SignatureBlock) ([]byte, error) {
	if block == nil {
		return nil, crypto.NewSigningError("signature block is required")
	}

	matches := placeholderPattern.FindAllSubmatchIndex(document, -1)
	switch len(matches) {
	case 0:
		return nil, crypto.NewSigningError("document has no signature placeholder")
	case 1:
	default:
		return nil, crypto.NewSigningError(fmt.Sprintf("document has %d signature placeholders, expected exactly one", len(matches)))
	}

	m := matches[0]
	if id := string(document[m[2]:m[3]]); id != block.ID {
		return nil, crypto.NewSigningError(fmt.Sprintf("placeholder id %q does not match signature id %q", id, block.ID))
	}

	rendered, err := block.Bytes()
	if err != nil {
		return nil, crypto.WrapSigningError(err, "failed to render signature block")
	}

	var out bytes.Buffer
	out.Grow(len(document) + len(rendered))
	out.Write(document[:m[0]])
	out.Write(rendered)
	out.Write(document[m[1]:])
	return out.Bytes(), nil
}

// Detach removes the signature of documentID from a document signed by Embed.
// It returns the canonical document (with the placeholder restored) and the parsed block.
func Detach(signed []byte, documentID string) ([]byte, *SignatureBlock, error) {
	id := regexp.QuoteMeta(SignatureID(documentID))
	pattern, err := regexp.Compile(`(?s)<ds:Signature\b[^>]*\bId="` + id + `"[^>]*>.*?</ds:Signature>`)
	if err != nil {
		return nil, nil, crypto.WrapInternalError(err, "failed to compile signature pattern")
	}

	matches := pattern.FindAllIndex(signed, -1)
	if len(matches) != 1 {
		return nil, nil, crypto.NewValidationError(fmt.Sprintf("expected exactly one signature %s, found %d", SignatureID(documentID), len(matches)))
	}

	m := matches[0]
	block, err := ParseSignatureBlock(signed[m[0]:m[1]])
	if err != nil {
		return nil, nil, crypto.WrapValidationError(err, "failed to parse signature block")
	}

	var out bytes.Buffer
	out.Write(signed[:m[0]])
	out.WriteString(Placeholder(documentID))
	out.Write(signed[m[1]:])
	return out.Bytes(), block, nil
}
