package model

import "time"

// Role defines the closed set of participant roles in the registry.
type Role string

const (
	RoleIndividual          Role = "INDIVIDUAL"           // Natural person, default vehicle owner
	RoleMechanic            Role = "MECHANIC"             // May append maintenance records once authorized per vehicle
	RoleInsuranceCompany    Role = "INSURANCE_COMPANY"    // May create insurance policies
	RoleRoadsideUnit        Role = "ROADSIDE_UNIT"        // Infrastructure unit, interaction destination only
	RoleVehicleManufacturer Role = "VEHICLE_MANUFACTURER" // OEM participant
	RoleCar                 Role = "CAR"                  // Vehicle acting as its own principal
)

// ValidRoles defines the set of permissible roles in the system.
var ValidRoles = map[Role]bool{
	RoleIndividual:          true,
	RoleMechanic:            true,
	RoleInsuranceCompany:    true,
	RoleRoadsideUnit:        true,
	RoleVehicleManufacturer: true,
	RoleCar:                 true,
}

// Principal stores information about a registered participant in the registry.
type Principal struct {
	ObjectType   string    `json:"objectType"`   // Set to the composite key object type (Principal)
	Address      string    `json:"address"`      // Invoking client identity ID, unique key
	Name         string    `json:"name"`         // Display name supplied at registration
	Role         Role      `json:"role"`         // Exactly one role per principal
	EntityDID    string    `json:"entityDid"`    // Entity DID bound to this address
	WalletDID    string    `json:"walletDid"`    // Wallet DID bound to this address
	Registered   bool      `json:"registered"`   // Always true once stored
	RegisteredAt time.Time `json:"registeredAt"` // Transaction timestamp of registration
}

// RoadsideUnit stores a registered infrastructure unit. Units live in their
// own namespace so destination-validity checks can require an active unit.
type RoadsideUnit struct {
	ObjectType   string    `json:"objectType"` // Set to the composite key object type (RoadsideUnit)
	Address      string    `json:"address"`    // Invoking client identity ID, unique key
	Name         string    `json:"name"`
	Location     string    `json:"location"`
	EntityDID    string    `json:"entityDid"`
	WalletDID    string    `json:"walletDid"`
	Active       bool      `json:"active"` // Deactivated units stop being valid interaction destinations
	RegisteredAt time.Time `json:"registeredAt"`
}
