package model

import "time"

// Vehicle is the central asset record, keyed by VIN.
type Vehicle struct {
	ObjectType           string    `json:"objectType"`           // Set to the composite key object type (Vehicle)
	VIN                  string    `json:"vin"`                  // Globally unique, immutable once registered
	Make                 string    `json:"make"`
	Model                string    `json:"model"`
	Year                 int       `json:"year"`
	CurrentOwner         string    `json:"currentOwner"`         // Address of the owning principal
	PreviousOwners       []string  `json:"previousOwners"`       // Append-only ownership history
	EntityDID            string    `json:"entityDid"`            // Vehicle entity DID
	WalletDID            string    `json:"walletDid"`            // Vehicle wallet DID
	CredentialDID        string    `json:"credentialDid"`        // Optional credential DID reference
	Registered           bool      `json:"registered"`           // Always true once stored
	CurrentInsurer       string    `json:"currentInsurer"`       // Address of the active insurer, empty when uninsured
	MaintenanceProviders []string  `json:"maintenanceProviders"` // Set of mechanic addresses that have serviced this vehicle
	Configuration        string    `json:"configuration"`        // Opaque owner-managed configuration payload
	RegisteredAt         time.Time `json:"registeredAt"`
}

// InsurancePolicy is the policy record for a vehicle. At most one record
// exists per VIN; a newer policy supersedes the old one in place and an
// ownership transfer deactivates the record without deleting it.
type InsurancePolicy struct {
	ObjectType   string `json:"objectType"`   // Set to the composite key object type (InsurancePolicy)
	VIN          string `json:"vin"`
	Insurer      string `json:"insurer"`      // Address of the issuing insurance company
	VehicleOwner string `json:"vehicleOwner"` // Owner address snapshot at creation time
	StartDate    int64  `json:"startDate"`    // Coverage start, unix seconds
	EndDate      int64  `json:"endDate"`      // Coverage end, unix seconds
	Active       bool   `json:"active"`
}

// MaintenanceRecord is a single service entry appended by an authorized mechanic.
type MaintenanceRecord struct {
	Mechanic    string    `json:"mechanic"` // Address of the mechanic that performed the work
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"` // Transaction timestamp of the entry
	Critical    bool      `json:"critical"`  // Marks safety-critical work
}

// MaintenanceLog holds the append-only service history for one (vehicle, mechanic) pair.
type MaintenanceLog struct {
	ObjectType string              `json:"objectType"` // Set to the composite key object type (MaintenanceLog)
	VIN        string              `json:"vin"`
	Mechanic   string              `json:"mechanic"`
	Records    []MaintenanceRecord `json:"records"`
}
