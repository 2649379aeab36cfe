package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vehicledid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Insurance Operations ---

// CreateInsurancePolicy writes a new active policy for a vehicle and records
// the caller as its current insurer. A new policy supersedes any prior policy
// record for the VIN regardless of that record's active flag; only one policy
// record exists per vehicle.
func (s *VehicleDIDSmartContract) CreateInsurancePolicy(ctx contractapi.TransactionContextInterface,
	vin string, startDate int64, endDate int64) error {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("CreateInsurancePolicy: failed to get actor info: %w", err)
	}
	dr := NewDIDRegistry(ctx)

	logger.Infof("CreateInsurancePolicy called by '%s' for VIN '%s' (%d to %d)", actor.address, vin, startDate, endDate)

	trimmedVIN := strings.TrimSpace(vin)
	if err := s.validateRequiredString(trimmedVIN, "vin", maxStringInputLength); err != nil {
		return err
	}
	if startDate < 0 || endDate <= startDate {
		return newValidationError(ReasonInvalidDateRange, "policy dates invalid: start %d, end %d", startDate, endDate)
	}

	// A caller without the insurer role fails validation, not authorization.
	isInsurer, err := dr.HasRole(actor.address, model.RoleInsuranceCompany)
	if err != nil {
		return fmt.Errorf("CreateInsurancePolicy: failed to check caller role: %w", err)
	}
	if !isInsurer {
		return newValidationError(ReasonNotInsuranceCompany, "caller '%s' does not have the INSURANCE_COMPANY role", actor.address)
	}

	vehicle, err := s.getVehicleByVIN(ctx, trimmedVIN)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newValidationError(ReasonVehicleNotFound, "vehicle '%s' is not registered", trimmedVIN)
		}
		return fmt.Errorf("CreateInsurancePolicy: %w", err)
	}
	if vehicle.CurrentOwner == "" {
		return newValidationError(ReasonOwnerNotRegistered, "vehicle '%s' has no current owner", trimmedVIN)
	}

	policy := model.InsurancePolicy{
		ObjectType: policyObjectType, VIN: trimmedVIN, Insurer: actor.address,
		VehicleOwner: vehicle.CurrentOwner, StartDate: startDate, EndDate: endDate, Active: true,
	}
	vehicle.CurrentInsurer = actor.address

	policyBytes, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("CreateInsurancePolicy: failed to marshal policy for VIN '%s': %w", trimmedVIN, err)
	}
	policyKey, err := s.createPolicyCompositeKey(ctx, trimmedVIN)
	if err != nil {
		return fmt.Errorf("CreateInsurancePolicy: failed to create policy key for VIN '%s': %w", trimmedVIN, err)
	}
	if err := ctx.GetStub().PutState(policyKey, policyBytes); err != nil {
		return fmt.Errorf("CreateInsurancePolicy: failed to save policy for VIN '%s': %w", trimmedVIN, err)
	}
	vehicleBytes, err := json.Marshal(vehicle)
	if err != nil {
		return fmt.Errorf("CreateInsurancePolicy: failed to marshal vehicle '%s': %w", trimmedVIN, err)
	}
	vehicleKey, err := s.createVehicleCompositeKey(ctx, trimmedVIN)
	if err != nil {
		return fmt.Errorf("CreateInsurancePolicy: failed to create composite key for VIN '%s': %w", trimmedVIN, err)
	}
	if err := ctx.GetStub().PutState(vehicleKey, vehicleBytes); err != nil {
		return fmt.Errorf("CreateInsurancePolicy: failed to save vehicle '%s': %w", trimmedVIN, err)
	}

	s.emitRegistryEvent(ctx, "InsurancePolicyCreated", actor, map[string]interface{}{
		"vin": trimmedVIN, "insurer": actor.address, "vehicleOwner": vehicle.CurrentOwner,
		"startDate": startDate, "endDate": endDate,
	})
	logger.Infof("Insurance policy created for vehicle '%s' by insurer '%s'", trimmedVIN, actor.address)
	return nil
}

// --- Query: Insurance Lookups ---

// GetInsurancePolicy retrieves the policy record for a vehicle.
func (s *VehicleDIDSmartContract) GetInsurancePolicy(ctx contractapi.TransactionContextInterface, vin string) (*model.InsurancePolicy, error) {
	logger.Infof("GetInsurancePolicy called for VIN '%s'", vin)
	trimmedVIN := strings.TrimSpace(vin)
	if err := s.validateRequiredString(trimmedVIN, "vin", maxStringInputLength); err != nil {
		return nil, err
	}
	policyKey, err := s.createPolicyCompositeKey(ctx, trimmedVIN)
	if err != nil {
		return nil, fmt.Errorf("GetInsurancePolicy: failed to create policy key for VIN '%s': %w", trimmedVIN, err)
	}
	policyBytes, err := ctx.GetStub().GetState(policyKey)
	if err != nil {
		return nil, fmt.Errorf("GetInsurancePolicy: failed to read policy for VIN '%s': %w", trimmedVIN, err)
	}
	if policyBytes == nil {
		return nil, fmt.Errorf("GetInsurancePolicy: %w",
			newNotFoundError(ReasonPolicyNotFound, "no insurance policy exists for vehicle '%s'", trimmedVIN))
	}
	var policy model.InsurancePolicy
	if err := json.Unmarshal(policyBytes, &policy); err != nil {
		return nil, fmt.Errorf("GetInsurancePolicy: failed to unmarshal policy for VIN '%s': %w", trimmedVIN, err)
	}
	return &policy, nil
}
