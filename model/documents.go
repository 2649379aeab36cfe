package model

import "time"

// DIDDocument stores the opaque document payload bound to a DID. The first
// store sets the controller; only that controller may update or revoke it.
type DIDDocument struct {
	ObjectType string    `json:"objectType"` // Set to the composite key object type (DIDDocument)
	DID        string    `json:"did"`
	Document   string    `json:"document"`   // Opaque serialized payload, never inspected by the registry
	Timestamp  time.Time `json:"timestamp"`  // Transaction timestamp of the last store
	Active     bool      `json:"active"`     // False once revoked
	Controller string    `json:"controller"` // Address allowed to update or revoke the document
}

// Credential is a write-once verifiable credential record keyed by credential ID.
type Credential struct {
	ObjectType   string    `json:"objectType"` // Set to the composite key object type (Credential)
	CredentialID string    `json:"credentialId"`
	Issuer       string    `json:"issuer"`     // Address of the submitting caller, binds provenance to the actual sender
	IssuerDID    string    `json:"issuerDid"`  // Issuer DID as claimed in the submission
	SubjectDID   string    `json:"subjectDid"` // DID of the credential subject
	Data         string    `json:"data"`       // Opaque credential payload
	IssuedAt     time.Time `json:"issuedAt"`   // Transaction timestamp of the store
}
