package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vehicledid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Object types for the asset-side composite keys.
const (
	vehicleObjectType          = "Vehicle"              // Stores Vehicle objects. Attribute: VIN.
	vehicleSeqObjectType       = "VehicleSeq"           // Registration-order index. Attribute: zero-padded sequence. Value: VIN.
	mechanicAuthObjectType     = "MechanicAuthorization" // Standing (vin, mechanic) grants. Attributes: VIN, mechanic address.
	maintenanceLogObjectType   = "MaintenanceLog"       // Stores MaintenanceLog objects. Attributes: VIN, mechanic address.
	policyObjectType           = "InsurancePolicy"      // Stores InsurancePolicy objects. Attribute: VIN.
	didDocumentObjectType      = "DIDDocument"          // Stores DIDDocument objects. Attribute: DID.
	credentialObjectType       = "Credential"           // Stores Credential objects. Attribute: credential ID.
	interactionObjectType      = "Interaction"          // Append-only interaction log. Attribute: zero-padded sequence.
	interactionIndexObjectType = "InteractionIndex"     // Per-identifier log index. Attributes: identifier, zero-padded sequence.
	counterObjectType          = "Counter"              // Monotonic counters. Attribute: counter name.
)

// Counter names used with nextSequence.
const (
	vehicleCounterName     = "vehicle"
	interactionCounterName = "interaction"
)

// --- Timestamp & Actor Helpers ---

// getCurrentTxTimestamp retrieves the transaction timestamp from the stub.
func (s *VehicleDIDSmartContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// getCurrentActorInfo resolves the calling identity to its address, display
// name (best effort) and MSP ID. The name falls back to the address when the
// caller is not a registered participant.
func (s *VehicleDIDSmartContract) getCurrentActorInfo(ctx contractapi.TransactionContextInterface) (*actorInfo, error) {
	dr := NewDIDRegistry(ctx)
	address, err := dr.GetCallerAddress()
	if err != nil {
		return nil, fmt.Errorf("failed to get caller address: %w", err)
	}

	name := address // Default to address if no participant record exists
	if principal, errPrincipal := dr.GetPrincipal(address); errPrincipal == nil {
		name = principal.Name
	} else if errors.Is(errPrincipal, ErrNotFound) {
		if unit, errUnit := dr.GetRoadsideUnit(address); errUnit == nil {
			name = unit.Name
		} else {
			logger.Debugf("caller '%s' has no participant record, using address as name", address)
		}
	} else {
		logger.Debugf("could not load participant record for '%s': %v", address, errPrincipal)
	}

	mspID, err := ctx.GetClientIdentity().GetMSPID()
	if err != nil {
		return nil, fmt.Errorf("failed to get MSP ID for caller '%s': %w", address, err)
	}
	logger.Debugf("resolved actor '%s' at address '%s' (MSP '%s')", name, address, mspID)
	return &actorInfo{address: address, name: name, mspID: mspID}, nil
}

// --- Input Validation Helpers ---

func (s *VehicleDIDSmartContract) validateRequiredString(value, fieldName string, maxLength int) error {
	if strings.TrimSpace(value) == "" {
		return newValidationError(ReasonEmptyField, "%s is required and cannot be empty", fieldName)
	}
	if len(value) > maxLength {
		return newValidationError(ReasonFieldTooLong, "%s exceeds maximum length of %d characters", fieldName, maxLength)
	}
	return nil
}

func (s *VehicleDIDSmartContract) validateOptionalString(value, fieldName string, maxLength int) error {
	if len(value) > maxLength {
		return newValidationError(ReasonFieldTooLong, "%s exceeds maximum length of %d characters", fieldName, maxLength)
	}
	return nil
}

// validateDIDString checks a DID argument destined for the binding
// namespaces. Resolution dispatches on the "did:" prefix, so bound DIDs must
// carry it.
func (s *VehicleDIDSmartContract) validateDIDString(value, fieldName string) error {
	if err := s.validateRequiredString(value, fieldName, maxStringInputLength); err != nil {
		return err
	}
	if !isDIDString(strings.TrimSpace(value)) {
		return newValidationError(ReasonInvalidDID, "%s '%s' is not a DID, expected 'did:' prefix", fieldName, value)
	}
	return nil
}

// --- Key Creation Helpers ---

func (s *VehicleDIDSmartContract) createVehicleCompositeKey(ctx contractapi.TransactionContextInterface, vin string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(vehicleObjectType, []string{vin})
}

func (s *VehicleDIDSmartContract) createVehicleSeqCompositeKey(ctx contractapi.TransactionContextInterface, seq uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(vehicleSeqObjectType, []string{padSequence(seq)})
}

func (s *VehicleDIDSmartContract) createMechanicAuthCompositeKey(ctx contractapi.TransactionContextInterface, vin, mechanicAddress string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(mechanicAuthObjectType, []string{vin, mechanicAddress})
}

func (s *VehicleDIDSmartContract) createMaintenanceLogCompositeKey(ctx contractapi.TransactionContextInterface, vin, mechanicAddress string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(maintenanceLogObjectType, []string{vin, mechanicAddress})
}

func (s *VehicleDIDSmartContract) createPolicyCompositeKey(ctx contractapi.TransactionContextInterface, vin string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(policyObjectType, []string{vin})
}

func (s *VehicleDIDSmartContract) createDIDDocumentCompositeKey(ctx contractapi.TransactionContextInterface, did string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(didDocumentObjectType, []string{did})
}

func (s *VehicleDIDSmartContract) createCredentialCompositeKey(ctx contractapi.TransactionContextInterface, credentialID string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(credentialObjectType, []string{credentialID})
}

func (s *VehicleDIDSmartContract) createInteractionCompositeKey(ctx contractapi.TransactionContextInterface, seq uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(interactionObjectType, []string{padSequence(seq)})
}

func (s *VehicleDIDSmartContract) createInteractionIndexCompositeKey(ctx contractapi.TransactionContextInterface, identifier string, seq uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(interactionIndexObjectType, []string{identifier, padSequence(seq)})
}

func (s *VehicleDIDSmartContract) createCounterCompositeKey(ctx contractapi.TransactionContextInterface, counterName string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(counterObjectType, []string{counterName})
}

// --- Sequence Helpers ---

// padSequence renders a sequence number with fixed width so that composite
// key range scans return entries in numeric order.
func padSequence(seq uint64) string {
	return fmt.Sprintf("%012d", seq)
}

// nextSequence increments and returns the named counter. Counters start at 1.
// This writes state, so operations must call it only after every validation
// has passed.
func (s *VehicleDIDSmartContract) nextSequence(ctx contractapi.TransactionContextInterface, counterName string) (uint64, error) {
	counterKey, err := s.createCounterCompositeKey(ctx, counterName)
	if err != nil {
		return 0, fmt.Errorf("failed to create counter key for '%s': %w", counterName, err)
	}
	counterBytes, err := ctx.GetStub().GetState(counterKey)
	if err != nil {
		return 0, fmt.Errorf("ledger error reading counter '%s': %w", counterName, err)
	}
	var current uint64
	if counterBytes != nil {
		parsed, errParse := strconv.ParseUint(string(counterBytes), 10, 64)
		if errParse != nil {
			return 0, fmt.Errorf("corrupt counter state for '%s': %w", counterName, errParse)
		}
		current = parsed
	}
	next := current + 1
	if err := ctx.GetStub().PutState(counterKey, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, fmt.Errorf("failed to save counter '%s': %w", counterName, err)
	}
	return next, nil
}

// --- Schema Compliance Helpers ---

// ensureVehicleSchemaCompliance normalizes slice fields so queries always
// return arrays, not null.
func ensureVehicleSchemaCompliance(vehicle *model.Vehicle) {
	if vehicle.ObjectType == "" {
		vehicle.ObjectType = vehicleObjectType
	}
	if vehicle.PreviousOwners == nil {
		vehicle.PreviousOwners = []string{}
	}
	if vehicle.MaintenanceProviders == nil {
		vehicle.MaintenanceProviders = []string{}
	}
}

func ensureMaintenanceLogSchemaCompliance(maintenanceLog *model.MaintenanceLog) {
	if maintenanceLog.ObjectType == "" {
		maintenanceLog.ObjectType = maintenanceLogObjectType
	}
	if maintenanceLog.Records == nil {
		maintenanceLog.Records = []model.MaintenanceRecord{}
	}
}

// --- Event Emission Helper ---

// emitRegistryEvent sets the single chaincode event for this transaction.
// Emission failure is logged but never fails the transaction. time.Time
// payload values are rendered as RFC3339.
func (s *VehicleDIDSmartContract) emitRegistryEvent(ctx contractapi.TransactionContextInterface, eventName string, actor *actorInfo, additionalPayload map[string]interface{}) {
	payload := map[string]interface{}{
		"txId":         ctx.GetStub().GetTxID(),
		"actorAddress": actor.address,
		"actorName":    actor.name,
	}
	for key, value := range additionalPayload {
		if t, ok := value.(time.Time); ok {
			payload[key] = t.UTC().Format(time.RFC3339)
		} else {
			payload[key] = value
		}
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("Failed to marshal payload for event '%s': %v. Event not set.", eventName, err)
		return
	}
	if err := ctx.GetStub().SetEvent(eventName, payloadBytes); err != nil {
		logger.Warningf("Failed to set event '%s': %v. Transaction not failed for event error.", eventName, err)
	}
}

// --- Authorization Guard Helpers ---

// requireVehicleOwner loads a vehicle and verifies the given address is its
// current owner.
func (s *VehicleDIDSmartContract) requireVehicleOwner(ctx contractapi.TransactionContextInterface, vin, address string) (*model.Vehicle, error) {
	vehicle, err := s.getVehicleByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	if vehicle.CurrentOwner != address {
		return nil, newAuthorizationError(ReasonNotVehicleOwner, "caller '%s' is not the current owner of vehicle '%s'", address, vin)
	}
	return vehicle, nil
}

// requireMechanicAuthorized verifies a standing (vin, mechanic) grant exists.
func (s *VehicleDIDSmartContract) requireMechanicAuthorized(ctx contractapi.TransactionContextInterface, vin, mechanicAddress string) error {
	authKey, err := s.createMechanicAuthCompositeKey(ctx, vin, mechanicAddress)
	if err != nil {
		return fmt.Errorf("failed to create mechanic authorization key for vehicle '%s': %w", vin, err)
	}
	authBytes, err := ctx.GetStub().GetState(authKey)
	if err != nil {
		return fmt.Errorf("ledger error checking mechanic authorization for vehicle '%s': %w", vin, err)
	}
	if authBytes == nil || string(authBytes) != "true" {
		return newAuthorizationError(ReasonMechanicNotAuthorized, "mechanic '%s' is not authorized for vehicle '%s'", mechanicAddress, vin)
	}
	return nil
}

// resolveParticipantAddress accepts either a raw address or a participant DID
// and returns the address. DIDs are recognized by their "did:" prefix.
func (s *VehicleDIDSmartContract) resolveParticipantAddress(ctx contractapi.TransactionContextInterface, identifier string) (string, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return "", newValidationError(ReasonEmptyField, "participant identifier is required and cannot be empty")
	}
	if isDIDString(trimmed) {
		return NewDIDRegistry(ctx).ResolveDID(trimmed)
	}
	return trimmed, nil
}
