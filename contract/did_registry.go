package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vehicledid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var didLogger = flogging.MustGetLogger("vehicledid.didregistry")

// Object types for composite keys, also usable as 'docType' or 'objectType' in CouchDB.
const (
	principalObjectType     = "Principal"     // Stores Principal objects. Attribute for composite key: Address.
	roadsideUnitObjectType  = "RoadsideUnit"  // Stores RoadsideUnit objects. Attribute for composite key: Address.
	didBindingObjectType    = "DIDBinding"    // Maps a DID to the address it is bound to. Attribute: DID.
	didRegisteredObjectType = "DIDRegistered" // Flags a DID as registered/known. Attribute: DID.
	vehicleDIDObjectType    = "VehicleDID"    // Maps a vehicle DID to its VIN. Attribute: DID.
)

// DIDRegistry handles DID binding, registration flags, and participant lookup.
// Every uniqueness rule for addresses and DIDs funnels through this type.
type DIDRegistry struct {
	Ctx contractapi.TransactionContextInterface
}

// NewDIDRegistry creates a new instance of DIDRegistry.
func NewDIDRegistry(ctx contractapi.TransactionContextInterface) *DIDRegistry {
	return &DIDRegistry{Ctx: ctx}
}

// --- Internal Helper Functions ---

// isDIDString reports whether an identifier is written in DID syntax rather
// than being an address or VIN.
func isDIDString(identifier string) bool {
	return strings.HasPrefix(identifier, "did:")
}

// --- Key Creation Helpers (using Composite Keys) ---

func (dr *DIDRegistry) createPrincipalCompositeKey(address string) (string, error) {
	return dr.Ctx.GetStub().CreateCompositeKey(principalObjectType, []string{address})
}

func (dr *DIDRegistry) createRoadsideUnitCompositeKey(address string) (string, error) {
	return dr.Ctx.GetStub().CreateCompositeKey(roadsideUnitObjectType, []string{address})
}

func (dr *DIDRegistry) createBindingCompositeKey(did string) (string, error) {
	return dr.Ctx.GetStub().CreateCompositeKey(didBindingObjectType, []string{did})
}

func (dr *DIDRegistry) createRegisteredFlagCompositeKey(did string) (string, error) {
	return dr.Ctx.GetStub().CreateCompositeKey(didRegisteredObjectType, []string{did})
}

func (dr *DIDRegistry) createVehicleDIDCompositeKey(did string) (string, error) {
	return dr.Ctx.GetStub().CreateCompositeKey(vehicleDIDObjectType, []string{did})
}

// --- DID Registration & Binding ---

// IsDIDRegistered reports whether a DID is known to the registry, whether it
// was registered through a participant, a vehicle, or a DID document store.
func (dr *DIDRegistry) IsDIDRegistered(did string) (bool, error) {
	trimmed := strings.TrimSpace(did)
	if trimmed == "" {
		return false, errors.New("did cannot be empty")
	}
	flagKey, err := dr.createRegisteredFlagCompositeKey(trimmed)
	if err != nil {
		return false, fmt.Errorf("failed to create registered flag key for '%s': %w", trimmed, err)
	}
	flagBytes, err := dr.Ctx.GetStub().GetState(flagKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking registered flag for '%s': %w", trimmed, err)
	}
	return flagBytes != nil && string(flagBytes) == "true", nil
}

// MarkDIDRegistered sets the registered flag for a DID without binding it to
// an address. Used by the DID document store, where a document may introduce
// a DID that no participant owns.
func (dr *DIDRegistry) MarkDIDRegistered(did string) error {
	flagKey, err := dr.createRegisteredFlagCompositeKey(did)
	if err != nil {
		return fmt.Errorf("failed to create registered flag key for '%s': %w", did, err)
	}
	if err := dr.Ctx.GetStub().PutState(flagKey, []byte("true")); err != nil {
		return fmt.Errorf("failed to set registered flag for '%s': %w", did, err)
	}
	return nil
}

// CheckDIDBindable verifies that a DID holds no conflicting binding. A DID
// already bound to the same address is fine (idempotent re-bind); any other
// existing binding, including a vehicle binding, is a conflict. Read-only.
func (dr *DIDRegistry) CheckDIDBindable(did, address string) error {
	bindingKey, err := dr.createBindingCompositeKey(did)
	if err != nil {
		return fmt.Errorf("failed to create binding key for '%s': %w", did, err)
	}
	existingBytes, err := dr.Ctx.GetStub().GetState(bindingKey)
	if err != nil {
		return fmt.Errorf("ledger error checking binding for '%s': %w", did, err)
	}
	if existingBytes != nil && string(existingBytes) != address {
		return newConflictError(ReasonDIDAlreadyBound, "DID '%s' is already bound to another address", did)
	}
	vehicleKey, err := dr.createVehicleDIDCompositeKey(did)
	if err != nil {
		return fmt.Errorf("failed to create vehicle DID key for '%s': %w", did, err)
	}
	vinBytes, err := dr.Ctx.GetStub().GetState(vehicleKey)
	if err != nil {
		return fmt.Errorf("ledger error checking vehicle binding for '%s': %w", did, err)
	}
	if vinBytes != nil {
		return newConflictError(ReasonDIDAlreadyBound, "DID '%s' is already bound to vehicle '%s'", did, string(vinBytes))
	}
	return nil
}

// BindDID binds a DID to an address and marks it registered. Bindings are
// permanent: there is no unbind or re-bind operation in the registry.
func (dr *DIDRegistry) BindDID(did, address string) error {
	if err := dr.CheckDIDBindable(did, address); err != nil {
		return err
	}
	bindingKey, err := dr.createBindingCompositeKey(did)
	if err != nil {
		return fmt.Errorf("failed to create binding key for '%s': %w", did, err)
	}
	if err := dr.Ctx.GetStub().PutState(bindingKey, []byte(address)); err != nil {
		return fmt.Errorf("failed to save binding '%s' -> '%s': %w", did, address, err)
	}
	if err := dr.MarkDIDRegistered(did); err != nil {
		return err
	}
	didLogger.Debugf("Bound DID '%s' to address '%s'", did, address)
	return nil
}

// CheckVehicleDIDBindable is the vehicle-side counterpart of CheckDIDBindable.
func (dr *DIDRegistry) CheckVehicleDIDBindable(did, vin string) error {
	vehicleKey, err := dr.createVehicleDIDCompositeKey(did)
	if err != nil {
		return fmt.Errorf("failed to create vehicle DID key for '%s': %w", did, err)
	}
	existingBytes, err := dr.Ctx.GetStub().GetState(vehicleKey)
	if err != nil {
		return fmt.Errorf("ledger error checking vehicle binding for '%s': %w", did, err)
	}
	if existingBytes != nil && string(existingBytes) != vin {
		return newConflictError(ReasonDIDAlreadyBound, "DID '%s' is already bound to vehicle '%s'", did, string(existingBytes))
	}
	bindingKey, err := dr.createBindingCompositeKey(did)
	if err != nil {
		return fmt.Errorf("failed to create binding key for '%s': %w", did, err)
	}
	addrBytes, err := dr.Ctx.GetStub().GetState(bindingKey)
	if err != nil {
		return fmt.Errorf("ledger error checking binding for '%s': %w", did, err)
	}
	if addrBytes != nil {
		return newConflictError(ReasonDIDAlreadyBound, "DID '%s' is already bound to a participant address", did)
	}
	return nil
}

// BindVehicleDID binds a DID to a VIN and marks it registered.
func (dr *DIDRegistry) BindVehicleDID(did, vin string) error {
	if err := dr.CheckVehicleDIDBindable(did, vin); err != nil {
		return err
	}
	vehicleKey, err := dr.createVehicleDIDCompositeKey(did)
	if err != nil {
		return fmt.Errorf("failed to create vehicle DID key for '%s': %w", did, err)
	}
	if err := dr.Ctx.GetStub().PutState(vehicleKey, []byte(vin)); err != nil {
		return fmt.Errorf("failed to save vehicle binding '%s' -> '%s': %w", did, vin, err)
	}
	if err := dr.MarkDIDRegistered(did); err != nil {
		return err
	}
	didLogger.Debugf("Bound vehicle DID '%s' to VIN '%s'", did, vin)
	return nil
}

// ResolveDID resolves a DID to the participant address it is bound to.
func (dr *DIDRegistry) ResolveDID(did string) (string, error) {
	trimmed := strings.TrimSpace(did)
	if trimmed == "" {
		return "", errors.New("did cannot be empty")
	}
	bindingKey, err := dr.createBindingCompositeKey(trimmed)
	if err != nil {
		return "", fmt.Errorf("failed to create binding key for resolving '%s': %w", trimmed, err)
	}
	addrBytes, err := dr.Ctx.GetStub().GetState(bindingKey)
	if err != nil {
		return "", fmt.Errorf("ledger error when resolving DID '%s': %w", trimmed, err)
	}
	if addrBytes == nil {
		return "", newNotFoundError(ReasonDIDNotBound, "DID '%s' is not bound to any address", trimmed)
	}
	return string(addrBytes), nil
}

// ResolveVehicleDID resolves a vehicle DID to its VIN.
func (dr *DIDRegistry) ResolveVehicleDID(did string) (string, error) {
	trimmed := strings.TrimSpace(did)
	if trimmed == "" {
		return "", errors.New("did cannot be empty")
	}
	vehicleKey, err := dr.createVehicleDIDCompositeKey(trimmed)
	if err != nil {
		return "", fmt.Errorf("failed to create vehicle DID key for resolving '%s': %w", trimmed, err)
	}
	vinBytes, err := dr.Ctx.GetStub().GetState(vehicleKey)
	if err != nil {
		return "", fmt.Errorf("ledger error when resolving vehicle DID '%s': %w", trimmed, err)
	}
	if vinBytes == nil {
		return "", newNotFoundError(ReasonDIDNotBound, "DID '%s' is not bound to any vehicle", trimmed)
	}
	return string(vinBytes), nil
}

// --- Participant Lookup & Storage ---

// GetPrincipal retrieves a Principal record by address.
func (dr *DIDRegistry) GetPrincipal(address string) (*model.Principal, error) {
	principalKey, err := dr.createPrincipalCompositeKey(address)
	if err != nil {
		return nil, fmt.Errorf("failed to create principal key for '%s': %w", address, err)
	}
	principalBytes, err := dr.Ctx.GetStub().GetState(principalKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error retrieving principal '%s': %w", address, err)
	}
	if principalBytes == nil {
		return nil, newNotFoundError(ReasonPrincipalNotFound, "no principal registered at address '%s'", address)
	}
	var principal model.Principal
	if err := json.Unmarshal(principalBytes, &principal); err != nil {
		return nil, fmt.Errorf("failed to unmarshal principal '%s': %w", address, err)
	}
	return &principal, nil
}

// GetRoadsideUnit retrieves a RoadsideUnit record by address.
func (dr *DIDRegistry) GetRoadsideUnit(address string) (*model.RoadsideUnit, error) {
	unitKey, err := dr.createRoadsideUnitCompositeKey(address)
	if err != nil {
		return nil, fmt.Errorf("failed to create roadside unit key for '%s': %w", address, err)
	}
	unitBytes, err := dr.Ctx.GetStub().GetState(unitKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error retrieving roadside unit '%s': %w", address, err)
	}
	if unitBytes == nil {
		return nil, newNotFoundError(ReasonUnitNotFound, "no roadside unit registered at address '%s'", address)
	}
	var unit model.RoadsideUnit
	if err := json.Unmarshal(unitBytes, &unit); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roadside unit '%s': %w", address, err)
	}
	return &unit, nil
}

// SavePrincipal marshals and writes a Principal record.
func (dr *DIDRegistry) SavePrincipal(principal *model.Principal) error {
	principalKey, err := dr.createPrincipalCompositeKey(principal.Address)
	if err != nil {
		return fmt.Errorf("failed to create principal key for '%s': %w", principal.Address, err)
	}
	principalBytes, err := json.Marshal(principal)
	if err != nil {
		return fmt.Errorf("failed to marshal principal '%s': %w", principal.Address, err)
	}
	if err := dr.Ctx.GetStub().PutState(principalKey, principalBytes); err != nil {
		return fmt.Errorf("failed to save principal '%s': %w", principal.Address, err)
	}
	return nil
}

// SaveRoadsideUnit marshals and writes a RoadsideUnit record.
func (dr *DIDRegistry) SaveRoadsideUnit(unit *model.RoadsideUnit) error {
	unitKey, err := dr.createRoadsideUnitCompositeKey(unit.Address)
	if err != nil {
		return fmt.Errorf("failed to create roadside unit key for '%s': %w", unit.Address, err)
	}
	unitBytes, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("failed to marshal roadside unit '%s': %w", unit.Address, err)
	}
	if err := dr.Ctx.GetStub().PutState(unitKey, unitBytes); err != nil {
		return fmt.Errorf("failed to save roadside unit '%s': %w", unit.Address, err)
	}
	return nil
}

// IsAddressRegistered reports whether an address already holds a Principal or
// a RoadsideUnit record. An address hosts at most one actor across both
// namespaces.
func (dr *DIDRegistry) IsAddressRegistered(address string) (bool, error) {
	principalKey, err := dr.createPrincipalCompositeKey(address)
	if err != nil {
		return false, fmt.Errorf("failed to create principal key for '%s': %w", address, err)
	}
	principalBytes, err := dr.Ctx.GetStub().GetState(principalKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking principal namespace for '%s': %w", address, err)
	}
	if principalBytes != nil {
		return true, nil
	}
	unitKey, err := dr.createRoadsideUnitCompositeKey(address)
	if err != nil {
		return false, fmt.Errorf("failed to create roadside unit key for '%s': %w", address, err)
	}
	unitBytes, err := dr.Ctx.GetStub().GetState(unitKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking roadside unit namespace for '%s': %w", address, err)
	}
	return unitBytes != nil, nil
}

// HasRole reports whether the principal at an address holds the given role.
// An unregistered address simply has no roles.
func (dr *DIDRegistry) HasRole(address string, role model.Role) (bool, error) {
	principal, err := dr.GetPrincipal(address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error loading principal '%s' to check role: %w", address, err)
	}
	return principal.Role == role, nil
}

// RequireCallerRole verifies that the current caller is a registered principal
// holding the required role.
func (dr *DIDRegistry) RequireCallerRole(required model.Role) error {
	callerAddress, err := dr.GetCallerAddress()
	if err != nil {
		return fmt.Errorf("failed to get caller address for role check: %w", err)
	}
	principal, err := dr.GetPrincipal(callerAddress)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newAuthorizationError(ReasonPrincipalNotFound, "caller '%s' is not a registered principal", callerAddress)
		}
		return fmt.Errorf("error loading caller principal '%s' for role check: %w", callerAddress, err)
	}
	if principal.Role != required {
		return newAuthorizationError(roleReason(required), "caller '%s' has role '%s' but role '%s' is required", callerAddress, principal.Role, required)
	}
	didLogger.Debugf("Role check passed for role '%s' for caller '%s'", required, callerAddress)
	return nil
}

// roleReason maps a required role to the matching stable reason code.
func roleReason(role model.Role) string {
	switch role {
	case model.RoleMechanic:
		return ReasonNotMechanic
	case model.RoleInsuranceCompany:
		return ReasonNotInsuranceCompany
	case model.RoleRoadsideUnit:
		return ReasonNotRoadsideUnit
	default:
		return ReasonInvalidRole
	}
}

// GetCallerAddress retrieves the unique client identity ID of the current
// transactor. This ID is the registry's notion of an address.
func (dr *DIDRegistry) GetCallerAddress() (string, error) {
	clientIdentity := dr.Ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" {
		return "", errors.New("client identity ID from context is empty")
	}
	return id, nil
}
