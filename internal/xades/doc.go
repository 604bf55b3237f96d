// Package xades produces the enveloped XAdES-EPES signature block of a DIAN electronic invoice.
//
// The signer digests the canonical document bytes (SHA-256), has the certificate store sign that
// digest, and assembles a SignatureBlock carrying:
//
//   - the document digest and the signature value
//   - the signing certificate (base64 DER) with its issuer and serial number
//   - the signing time, captured when the block is created
//   - a digest of the certificate bytes binding the signature to that certificate
//   - a digest of the signed properties
//   - a reference to the DIAN signature policy
//
// Canonical document bytes are the document exactly as built, with its single empty
// <ds:Signature Id="xmldsig-..."></ds:Signature> placeholder in place. Embed replaces that
// placeholder with the rendered block and Detach reverses it, so a signed document can be
// verified by detaching the block and recomputing the digest over the restored bytes.
//
// Only the structurally load-bearing parts of the signature profile are produced. The policy
// is carried as a constant identifier and hash.
package xades
