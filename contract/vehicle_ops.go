package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vehicledid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Vehicle Operations ---

// RegisterVehicle creates a vehicle record under a globally unique VIN, binds
// the vehicle's entity and wallet DIDs to that VIN, and appends the VIN to
// the registration-order index. The owner is given as a DID and must resolve
// to a registered principal.
func (s *VehicleDIDSmartContract) RegisterVehicle(ctx contractapi.TransactionContextInterface,
	vin string, ownerDID string, entityDID string, year int, vehicleMake string, vehicleModel string,
	walletDID string, credentialDID string) error {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("RegisterVehicle: failed to get actor info: %w", err)
	}
	dr := NewDIDRegistry(ctx)

	logger.Infof("RegisterVehicle called by '%s' for VIN '%s', owner DID '%s'", actor.address, vin, ownerDID)

	trimmedVIN := strings.TrimSpace(vin)
	trimmedOwnerDID := strings.TrimSpace(ownerDID)
	trimmedEntityDID := strings.TrimSpace(entityDID)
	trimmedWalletDID := strings.TrimSpace(walletDID)
	trimmedCredentialDID := strings.TrimSpace(credentialDID)
	trimmedMake := strings.TrimSpace(vehicleMake)
	trimmedModel := strings.TrimSpace(vehicleModel)

	if err := s.validateRequiredString(trimmedVIN, "vin", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateDIDString(trimmedOwnerDID, "ownerDID"); err != nil {
		return err
	}
	if err := s.validateDIDString(trimmedEntityDID, "entityDID"); err != nil {
		return err
	}
	if err := s.validateDIDString(trimmedWalletDID, "walletDID"); err != nil {
		return err
	}
	if err := s.validateOptionalString(trimmedCredentialDID, "credentialDID", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(trimmedMake, "make", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(trimmedModel, "model", maxStringInputLength); err != nil {
		return err
	}
	if year < 1900 || year > 2100 {
		return newValidationError(ReasonInvalidYear, "year %d is outside the accepted range", year)
	}

	ownerAddress, err := dr.ResolveDID(trimmedOwnerDID)
	if err != nil {
		return fmt.Errorf("RegisterVehicle: failed to resolve ownerDID '%s': %w", trimmedOwnerDID, err)
	}
	if _, err := dr.GetPrincipal(ownerAddress); err != nil {
		if errors.Is(err, ErrNotFound) {
			return newValidationError(ReasonOwnerNotRegistered, "owner DID '%s' does not belong to a registered principal", trimmedOwnerDID)
		}
		return fmt.Errorf("RegisterVehicle: failed to load owner principal: %w", err)
	}

	vehicleKey, err := s.createVehicleCompositeKey(ctx, trimmedVIN)
	if err != nil {
		return fmt.Errorf("RegisterVehicle: failed to create composite key for VIN '%s': %w", trimmedVIN, err)
	}
	existing, err := ctx.GetStub().GetState(vehicleKey)
	if err != nil {
		return fmt.Errorf("RegisterVehicle: failed to check for existing VIN '%s': %w", trimmedVIN, err)
	}
	if existing != nil {
		return newConflictError(ReasonVINRegistered, "vehicle with VIN '%s' already exists", trimmedVIN)
	}
	if err := dr.CheckVehicleDIDBindable(trimmedEntityDID, trimmedVIN); err != nil {
		return err
	}
	if err := dr.CheckVehicleDIDBindable(trimmedWalletDID, trimmedVIN); err != nil {
		return err
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RegisterVehicle: failed to get transaction timestamp: %w", err)
	}

	// All validations passed, nextSequence is the first write.
	seq, err := s.nextSequence(ctx, vehicleCounterName)
	if err != nil {
		return fmt.Errorf("RegisterVehicle: %w", err)
	}

	vehicle := model.Vehicle{
		ObjectType: vehicleObjectType, VIN: trimmedVIN, Make: trimmedMake, Model: trimmedModel, Year: year,
		CurrentOwner: ownerAddress, PreviousOwners: []string{},
		EntityDID: trimmedEntityDID, WalletDID: trimmedWalletDID, CredentialDID: trimmedCredentialDID,
		Registered: true, MaintenanceProviders: []string{}, RegisteredAt: now,
	}
	ensureVehicleSchemaCompliance(&vehicle)

	vehicleBytes, err := json.Marshal(vehicle)
	if err != nil {
		return fmt.Errorf("RegisterVehicle: failed to marshal vehicle '%s': %w", trimmedVIN, err)
	}
	if err := ctx.GetStub().PutState(vehicleKey, vehicleBytes); err != nil {
		return fmt.Errorf("RegisterVehicle: failed to save vehicle '%s': %w", trimmedVIN, err)
	}
	seqKey, err := s.createVehicleSeqCompositeKey(ctx, seq)
	if err != nil {
		return fmt.Errorf("RegisterVehicle: failed to create sequence key for VIN '%s': %w", trimmedVIN, err)
	}
	if err := ctx.GetStub().PutState(seqKey, []byte(trimmedVIN)); err != nil {
		return fmt.Errorf("RegisterVehicle: failed to save sequence index for VIN '%s': %w", trimmedVIN, err)
	}
	if err := dr.BindVehicleDID(trimmedEntityDID, trimmedVIN); err != nil {
		return fmt.Errorf("RegisterVehicle: %w", err)
	}
	if err := dr.BindVehicleDID(trimmedWalletDID, trimmedVIN); err != nil {
		return fmt.Errorf("RegisterVehicle: %w", err)
	}

	s.emitRegistryEvent(ctx, "VehicleRegistered", actor, map[string]interface{}{
		"vin": trimmedVIN, "owner": ownerAddress, "ownerDid": trimmedOwnerDID,
		"make": trimmedMake, "model": trimmedModel, "year": year,
		"entityDid": trimmedEntityDID, "walletDid": trimmedWalletDID, "credentialDid": trimmedCredentialDID,
	})
	logger.Infof("Vehicle '%s' registered for owner '%s' at sequence %d", trimmedVIN, ownerAddress, seq)
	return nil
}

// TransferOwnership moves a vehicle to a new owner. Only the current owner
// may transfer. Any insurance policy on the vehicle is deactivated, not
// deleted, and the current insurer is cleared.
func (s *VehicleDIDSmartContract) TransferOwnership(ctx contractapi.TransactionContextInterface,
	vin string, newOwner string) error {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("TransferOwnership: failed to get actor info: %w", err)
	}
	dr := NewDIDRegistry(ctx)

	logger.Infof("TransferOwnership called by '%s' for VIN '%s' to '%s'", actor.address, vin, newOwner)

	trimmedVIN := strings.TrimSpace(vin)
	trimmedNewOwner := strings.TrimSpace(newOwner)
	if err := s.validateRequiredString(trimmedVIN, "vin", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(trimmedNewOwner, "newOwner", maxDescriptionLength); err != nil {
		return err
	}

	vehicle, err := s.requireVehicleOwner(ctx, trimmedVIN, actor.address)
	if err != nil {
		return err
	}

	newOwnerAddress, err := s.resolveParticipantAddress(ctx, trimmedNewOwner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newValidationError(ReasonOwnerNotRegistered, "new owner '%s' is not a registered principal", trimmedNewOwner)
		}
		return fmt.Errorf("TransferOwnership: %w", err)
	}
	newOwnerPrincipal, err := dr.GetPrincipal(newOwnerAddress)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newValidationError(ReasonOwnerNotRegistered, "new owner '%s' is not a registered principal", trimmedNewOwner)
		}
		return fmt.Errorf("TransferOwnership: failed to load new owner principal: %w", err)
	}

	policyKey, err := s.createPolicyCompositeKey(ctx, trimmedVIN)
	if err != nil {
		return fmt.Errorf("TransferOwnership: failed to create policy key for VIN '%s': %w", trimmedVIN, err)
	}
	policyBytes, err := ctx.GetStub().GetState(policyKey)
	if err != nil {
		return fmt.Errorf("TransferOwnership: failed to read policy for VIN '%s': %w", trimmedVIN, err)
	}
	var policy *model.InsurancePolicy
	if policyBytes != nil {
		policy = &model.InsurancePolicy{}
		if err := json.Unmarshal(policyBytes, policy); err != nil {
			return fmt.Errorf("TransferOwnership: failed to unmarshal policy for VIN '%s': %w", trimmedVIN, err)
		}
	}

	previousOwner := vehicle.CurrentOwner
	vehicle.CurrentOwner = newOwnerAddress
	// The transfer history records each incoming owner, in transfer order.
	vehicle.PreviousOwners = append(vehicle.PreviousOwners, newOwnerAddress)
	vehicle.CurrentInsurer = ""

	policyDeactivated := false
	if policy != nil && policy.Active {
		policy.Active = false
		policyDeactivated = true
	}

	vehicleBytes, err := json.Marshal(vehicle)
	if err != nil {
		return fmt.Errorf("TransferOwnership: failed to marshal vehicle '%s': %w", trimmedVIN, err)
	}
	vehicleKey, err := s.createVehicleCompositeKey(ctx, trimmedVIN)
	if err != nil {
		return fmt.Errorf("TransferOwnership: failed to create composite key for VIN '%s': %w", trimmedVIN, err)
	}
	if err := ctx.GetStub().PutState(vehicleKey, vehicleBytes); err != nil {
		return fmt.Errorf("TransferOwnership: failed to save vehicle '%s': %w", trimmedVIN, err)
	}
	if policyDeactivated {
		updatedPolicyBytes, errMarshal := json.Marshal(policy)
		if errMarshal != nil {
			return fmt.Errorf("TransferOwnership: failed to marshal policy for VIN '%s': %w", trimmedVIN, errMarshal)
		}
		if err := ctx.GetStub().PutState(policyKey, updatedPolicyBytes); err != nil {
			return fmt.Errorf("TransferOwnership: failed to save policy for VIN '%s': %w", trimmedVIN, err)
		}
	}

	s.emitRegistryEvent(ctx, "OwnershipTransferred", actor, map[string]interface{}{
		"vin": trimmedVIN, "previousOwner": previousOwner, "newOwner": newOwnerAddress,
		"policyDeactivated": policyDeactivated,
	})
	logger.Infof("Vehicle '%s' transferred from '%s' to '%s' ('%s')", trimmedVIN, previousOwner, newOwnerAddress, newOwnerPrincipal.Name)
	return nil
}

// UpdateVehicleConfiguration stores the vehicle's opaque configuration blob.
// The vehicle is located by either of its DIDs and only the current owner may
// update it.
func (s *VehicleDIDSmartContract) UpdateVehicleConfiguration(ctx contractapi.TransactionContextInterface,
	vehicleDID string, configuration string) error {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("UpdateVehicleConfiguration: failed to get actor info: %w", err)
	}
	dr := NewDIDRegistry(ctx)

	logger.Infof("UpdateVehicleConfiguration called by '%s' for vehicle DID '%s'", actor.address, vehicleDID)

	trimmedDID := strings.TrimSpace(vehicleDID)
	if err := s.validateDIDString(trimmedDID, "vehicleDID"); err != nil {
		return err
	}
	if err := s.validateRequiredString(configuration, "configuration", maxPayloadLength); err != nil {
		return err
	}

	vin, err := dr.ResolveVehicleDID(trimmedDID)
	if err != nil {
		return fmt.Errorf("UpdateVehicleConfiguration: %w", err)
	}
	vehicle, err := s.requireVehicleOwner(ctx, vin, actor.address)
	if err != nil {
		return err
	}

	vehicle.Configuration = configuration

	vehicleBytes, err := json.Marshal(vehicle)
	if err != nil {
		return fmt.Errorf("UpdateVehicleConfiguration: failed to marshal vehicle '%s': %w", vin, err)
	}
	vehicleKey, err := s.createVehicleCompositeKey(ctx, vin)
	if err != nil {
		return fmt.Errorf("UpdateVehicleConfiguration: failed to create composite key for VIN '%s': %w", vin, err)
	}
	if err := ctx.GetStub().PutState(vehicleKey, vehicleBytes); err != nil {
		return fmt.Errorf("UpdateVehicleConfiguration: failed to save vehicle '%s': %w", vin, err)
	}

	s.emitRegistryEvent(ctx, "VehicleConfigurationUpdated", actor, map[string]interface{}{
		"vin": vin, "vehicleDid": trimmedDID,
	})
	logger.Infof("Configuration updated for vehicle '%s' by owner '%s'", vin, actor.address)
	return nil
}

// --- Query: Vehicle Lookups ---

// GetVehicle retrieves a vehicle by VIN.
func (s *VehicleDIDSmartContract) GetVehicle(ctx contractapi.TransactionContextInterface, vin string) (*model.Vehicle, error) {
	logger.Infof("GetVehicle called for VIN '%s'", vin)
	trimmedVIN := strings.TrimSpace(vin)
	if err := s.validateRequiredString(trimmedVIN, "vin", maxStringInputLength); err != nil {
		return nil, err
	}
	vehicle, err := s.getVehicleByVIN(ctx, trimmedVIN)
	if err != nil {
		return nil, fmt.Errorf("GetVehicle: %w", err)
	}
	return vehicle, nil
}

// GetVehicleByDID retrieves a vehicle by either of its DIDs.
func (s *VehicleDIDSmartContract) GetVehicleByDID(ctx contractapi.TransactionContextInterface, did string) (*model.Vehicle, error) {
	logger.Infof("GetVehicleByDID called for DID '%s'", did)
	trimmedDID := strings.TrimSpace(did)
	if err := s.validateRequiredString(trimmedDID, "did", maxStringInputLength); err != nil {
		return nil, err
	}
	vin, err := NewDIDRegistry(ctx).ResolveVehicleDID(trimmedDID)
	if err != nil {
		return nil, fmt.Errorf("GetVehicleByDID: %w", err)
	}
	vehicle, err := s.getVehicleByVIN(ctx, vin)
	if err != nil {
		return nil, fmt.Errorf("GetVehicleByDID: %w", err)
	}
	return vehicle, nil
}
