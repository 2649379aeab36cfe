package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vehicledid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Maintenance Operations ---

// AuthorizeMechanic grants a standing (vin, mechanic) authorization. Only the
// vehicle's current owner may grant it. The grant is idempotent and carries
// no expiry.
func (s *VehicleDIDSmartContract) AuthorizeMechanic(ctx contractapi.TransactionContextInterface,
	vin string, mechanic string) error {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("AuthorizeMechanic: failed to get actor info: %w", err)
	}
	dr := NewDIDRegistry(ctx)

	logger.Infof("AuthorizeMechanic called by '%s' for VIN '%s', mechanic '%s'", actor.address, vin, mechanic)

	trimmedVIN := strings.TrimSpace(vin)
	trimmedMechanic := strings.TrimSpace(mechanic)
	if err := s.validateRequiredString(trimmedVIN, "vin", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(trimmedMechanic, "mechanic", maxDescriptionLength); err != nil {
		return err
	}

	if _, err := s.requireVehicleOwner(ctx, trimmedVIN, actor.address); err != nil {
		return err
	}

	mechanicAddress, err := s.resolveParticipantAddress(ctx, trimmedMechanic)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newValidationError(ReasonNotMechanic, "mechanic '%s' is not a registered principal", trimmedMechanic)
		}
		return fmt.Errorf("AuthorizeMechanic: %w", err)
	}
	isMechanic, err := dr.HasRole(mechanicAddress, model.RoleMechanic)
	if err != nil {
		return fmt.Errorf("AuthorizeMechanic: failed to check mechanic role for '%s': %w", mechanicAddress, err)
	}
	if !isMechanic {
		return newValidationError(ReasonNotMechanic, "participant '%s' does not have the MECHANIC role", trimmedMechanic)
	}

	authKey, err := s.createMechanicAuthCompositeKey(ctx, trimmedVIN, mechanicAddress)
	if err != nil {
		return fmt.Errorf("AuthorizeMechanic: failed to create authorization key for VIN '%s': %w", trimmedVIN, err)
	}
	if err := ctx.GetStub().PutState(authKey, []byte("true")); err != nil {
		return fmt.Errorf("AuthorizeMechanic: failed to save authorization for VIN '%s': %w", trimmedVIN, err)
	}

	s.emitRegistryEvent(ctx, "MechanicAuthorized", actor, map[string]interface{}{
		"vin": trimmedVIN, "mechanic": mechanicAddress, "owner": actor.address,
	})
	logger.Infof("Mechanic '%s' authorized for vehicle '%s' by owner '%s'", mechanicAddress, trimmedVIN, actor.address)
	return nil
}

// AddMaintenanceRecord appends a maintenance record for the calling mechanic.
// The caller must hold the MECHANIC role and a standing authorization for the
// vehicle. The caller is added to the vehicle's maintenance providers with
// set semantics.
func (s *VehicleDIDSmartContract) AddMaintenanceRecord(ctx contractapi.TransactionContextInterface,
	vin string, description string, critical bool) error {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("AddMaintenanceRecord: failed to get actor info: %w", err)
	}
	dr := NewDIDRegistry(ctx)

	logger.Infof("AddMaintenanceRecord called by '%s' for VIN '%s' (critical: %t)", actor.address, vin, critical)

	trimmedVIN := strings.TrimSpace(vin)
	if err := s.validateRequiredString(trimmedVIN, "vin", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(description, "description", maxDescriptionLength); err != nil {
		return err
	}

	if err := dr.RequireCallerRole(model.RoleMechanic); err != nil {
		return err
	}
	if err := s.requireMechanicAuthorized(ctx, trimmedVIN, actor.address); err != nil {
		return err
	}
	vehicle, err := s.getVehicleByVIN(ctx, trimmedVIN)
	if err != nil {
		return fmt.Errorf("AddMaintenanceRecord: %w", err)
	}

	logKey, err := s.createMaintenanceLogCompositeKey(ctx, trimmedVIN, actor.address)
	if err != nil {
		return fmt.Errorf("AddMaintenanceRecord: failed to create maintenance log key for VIN '%s': %w", trimmedVIN, err)
	}
	logBytes, err := ctx.GetStub().GetState(logKey)
	if err != nil {
		return fmt.Errorf("AddMaintenanceRecord: failed to read maintenance log for VIN '%s': %w", trimmedVIN, err)
	}
	maintenanceLog := model.MaintenanceLog{
		ObjectType: maintenanceLogObjectType, VIN: trimmedVIN, Mechanic: actor.address, Records: []model.MaintenanceRecord{},
	}
	if logBytes != nil {
		if err := json.Unmarshal(logBytes, &maintenanceLog); err != nil {
			return fmt.Errorf("AddMaintenanceRecord: failed to unmarshal maintenance log for VIN '%s': %w", trimmedVIN, err)
		}
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("AddMaintenanceRecord: failed to get transaction timestamp: %w", err)
	}

	maintenanceLog.Records = append(maintenanceLog.Records, model.MaintenanceRecord{
		Mechanic: actor.address, Description: description, Timestamp: now, Critical: critical,
	})
	ensureMaintenanceLogSchemaCompliance(&maintenanceLog)

	alreadyProvider := false
	for _, provider := range vehicle.MaintenanceProviders {
		if provider == actor.address {
			alreadyProvider = true
			break
		}
	}
	if !alreadyProvider {
		vehicle.MaintenanceProviders = append(vehicle.MaintenanceProviders, actor.address)
	}

	updatedLogBytes, err := json.Marshal(maintenanceLog)
	if err != nil {
		return fmt.Errorf("AddMaintenanceRecord: failed to marshal maintenance log for VIN '%s': %w", trimmedVIN, err)
	}
	if err := ctx.GetStub().PutState(logKey, updatedLogBytes); err != nil {
		return fmt.Errorf("AddMaintenanceRecord: failed to save maintenance log for VIN '%s': %w", trimmedVIN, err)
	}
	vehicleBytes, err := json.Marshal(vehicle)
	if err != nil {
		return fmt.Errorf("AddMaintenanceRecord: failed to marshal vehicle '%s': %w", trimmedVIN, err)
	}
	vehicleKey, err := s.createVehicleCompositeKey(ctx, trimmedVIN)
	if err != nil {
		return fmt.Errorf("AddMaintenanceRecord: failed to create composite key for VIN '%s': %w", trimmedVIN, err)
	}
	if err := ctx.GetStub().PutState(vehicleKey, vehicleBytes); err != nil {
		return fmt.Errorf("AddMaintenanceRecord: failed to save vehicle '%s': %w", trimmedVIN, err)
	}

	s.emitRegistryEvent(ctx, "MaintenanceRecordAdded", actor, map[string]interface{}{
		"vin": trimmedVIN, "mechanic": actor.address, "critical": critical, "description": description,
	})
	logger.Infof("Maintenance record added for vehicle '%s' by mechanic '%s' (%d records total)", trimmedVIN, actor.address, len(maintenanceLog.Records))
	return nil
}

// --- Query: Maintenance Lookups ---

// GetMaintenanceHistory returns the maintenance records a mechanic has filed
// for a vehicle, oldest first. Returns an empty slice when no log exists.
func (s *VehicleDIDSmartContract) GetMaintenanceHistory(ctx contractapi.TransactionContextInterface,
	vin string, mechanic string) ([]model.MaintenanceRecord, error) {

	logger.Infof("GetMaintenanceHistory called for VIN '%s', mechanic '%s'", vin, mechanic)

	trimmedVIN := strings.TrimSpace(vin)
	trimmedMechanic := strings.TrimSpace(mechanic)
	if err := s.validateRequiredString(trimmedVIN, "vin", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := s.validateRequiredString(trimmedMechanic, "mechanic", maxDescriptionLength); err != nil {
		return nil, err
	}

	mechanicAddress, err := s.resolveParticipantAddress(ctx, trimmedMechanic)
	if err != nil {
		return nil, fmt.Errorf("GetMaintenanceHistory: %w", err)
	}

	logKey, err := s.createMaintenanceLogCompositeKey(ctx, trimmedVIN, mechanicAddress)
	if err != nil {
		return nil, fmt.Errorf("GetMaintenanceHistory: failed to create maintenance log key for VIN '%s': %w", trimmedVIN, err)
	}
	logBytes, err := ctx.GetStub().GetState(logKey)
	if err != nil {
		return nil, fmt.Errorf("GetMaintenanceHistory: failed to read maintenance log for VIN '%s': %w", trimmedVIN, err)
	}
	if logBytes == nil {
		return []model.MaintenanceRecord{}, nil
	}
	var maintenanceLog model.MaintenanceLog
	if err := json.Unmarshal(logBytes, &maintenanceLog); err != nil {
		return nil, fmt.Errorf("GetMaintenanceHistory: failed to unmarshal maintenance log for VIN '%s': %w", trimmedVIN, err)
	}
	ensureMaintenanceLogSchemaCompliance(&maintenanceLog)
	return maintenanceLog.Records, nil
}
