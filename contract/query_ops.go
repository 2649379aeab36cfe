package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vehicledid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Query: Vehicle Collection Lookups ---

// getVehicleByVIN loads a vehicle record, normalized for JSON output.
func (s *VehicleDIDSmartContract) getVehicleByVIN(ctx contractapi.TransactionContextInterface, vin string) (*model.Vehicle, error) {
	vehicleKey, err := s.createVehicleCompositeKey(ctx, vin)
	if err != nil {
		return nil, fmt.Errorf("failed to create composite key for VIN '%s': %w", vin, err)
	}
	vehicleBytes, err := ctx.GetStub().GetState(vehicleKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error retrieving vehicle '%s': %w", vin, err)
	}
	if vehicleBytes == nil {
		return nil, newNotFoundError(ReasonVehicleNotFound, "vehicle with VIN '%s' does not exist", vin)
	}
	var vehicle model.Vehicle
	if err := json.Unmarshal(vehicleBytes, &vehicle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vehicle '%s': %w", vin, err)
	}
	ensureVehicleSchemaCompliance(&vehicle)
	return &vehicle, nil
}

// GetAllVehicles returns every registered vehicle in registration order.
func (s *VehicleDIDSmartContract) GetAllVehicles(ctx contractapi.TransactionContextInterface) ([]model.Vehicle, error) {
	logger.Info("GetAllVehicles called")

	iterator, err := ctx.GetStub().GetStateByPartialCompositeKey(vehicleSeqObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("GetAllVehicles: failed to get sequence iterator: %w", err)
	}
	defer iterator.Close()

	vehicles := []model.Vehicle{} // Initialize as empty slice, not nil
	for iterator.HasNext() {
		queryResponse, errNext := iterator.Next()
		if errNext != nil {
			return nil, fmt.Errorf("GetAllVehicles: error iterating sequence index: %w", errNext)
		}
		vin := string(queryResponse.Value)
		vehicle, errLoad := s.getVehicleByVIN(ctx, vin)
		if errLoad != nil {
			logger.Warningf("GetAllVehicles: could not load vehicle '%s' from index, skipping: %v", vin, errLoad)
			continue
		}
		vehicles = append(vehicles, *vehicle)
	}

	logger.Infof("GetAllVehicles: returning %d vehicles", len(vehicles))
	return vehicles, nil
}

// GetVehiclesByOwnerDID resolves an owner DID and returns that owner's
// vehicles in registration order. An unresolvable DID yields an empty slice,
// matching the no-vehicles case.
func (s *VehicleDIDSmartContract) GetVehiclesByOwnerDID(ctx contractapi.TransactionContextInterface, ownerDID string) ([]model.Vehicle, error) {
	logger.Infof("GetVehiclesByOwnerDID called for DID '%s'", ownerDID)
	trimmedDID := strings.TrimSpace(ownerDID)
	if err := s.validateRequiredString(trimmedDID, "ownerDID", maxStringInputLength); err != nil {
		return nil, err
	}

	ownerAddress, err := NewDIDRegistry(ctx).ResolveDID(trimmedDID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []model.Vehicle{}, nil
		}
		return nil, fmt.Errorf("GetVehiclesByOwnerDID: failed to resolve ownerDID '%s': %w", trimmedDID, err)
	}

	iterator, err := ctx.GetStub().GetStateByPartialCompositeKey(vehicleSeqObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("GetVehiclesByOwnerDID: failed to get sequence iterator: %w", err)
	}
	defer iterator.Close()

	vehicles := []model.Vehicle{} // Initialize as empty slice, not nil
	for iterator.HasNext() {
		queryResponse, errNext := iterator.Next()
		if errNext != nil {
			return nil, fmt.Errorf("GetVehiclesByOwnerDID: error iterating sequence index: %w", errNext)
		}
		vin := string(queryResponse.Value)
		vehicle, errLoad := s.getVehicleByVIN(ctx, vin)
		if errLoad != nil {
			logger.Warningf("GetVehiclesByOwnerDID: could not load vehicle '%s' from index, skipping: %v", vin, errLoad)
			continue
		}
		if vehicle.CurrentOwner == ownerAddress {
			vehicles = append(vehicles, *vehicle)
		}
	}

	logger.Infof("GetVehiclesByOwnerDID: returning %d vehicles for owner '%s'", len(vehicles), ownerAddress)
	return vehicles, nil
}
