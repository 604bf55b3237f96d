// Package invoice holds the electronic invoice domain types: the business fields that feed the
// CUFE and the UBL document, the persisted invoice record, and the lifecycle state machine.
//
// Values are validated at the boundary (DocumentFields.Validate) before they reach the
// fingerprint generator or the signer.
package invoice
