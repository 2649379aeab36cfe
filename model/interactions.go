package model

import "time"

// Interaction is one entry in the append-only inter-entity message log.
// Sequence numbers are assigned by the registry in commit order and never
// reused; entries are never mutated or removed.
type Interaction struct {
	ObjectType            string    `json:"objectType"`            // Set to the composite key object type (Interaction)
	Sequence              uint64    `json:"sequence"`              // Commit position in the log
	Source                string    `json:"source"`                // Address of the sending participant
	Destination           string    `json:"destination"`           // Address of the receiving participant
	SourceIdentifier      string    `json:"sourceIdentifier"`      // DID or VIN presented for the source
	DestinationIdentifier string    `json:"destinationIdentifier"` // DID or VIN presented for the destination
	InteractionType       string    `json:"interactionType"`       // Caller-defined type tag
	Payload               string    `json:"payload"`               // Opaque payload
	Timestamp             time.Time `json:"timestamp"`             // Transaction timestamp
}
