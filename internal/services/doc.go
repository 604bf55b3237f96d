// Package services holds the application services behind the HTTP API and the CLI.
//
// InvoiceService drives an invoice through its lifecycle: fields are validated and fingerprinted
// (CUFE), assembled into a UBL document, signed, stored as a draft and then submitted to DIAN.
// The authority verdict moves the invoice to approved or rejected. Later status checks apply
// the authority status to the stored record; states never move backwards.
//
// Collaborators are interfaces (Repository, DocumentSigner, Authority) so tests can run the whole
// flow against fakes and an httptest authority.
package services
