package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"vehicledid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("vehicledid.registrycontract")

// Max lengths for input validation.
const (
	maxStringInputLength = 256
	maxDescriptionLength = 1024
	maxPayloadLength     = 8192
)

// VehicleDIDSmartContract provides functions for managing principals,
// vehicles, DIDs, verifiable credentials and the interaction log.
type VehicleDIDSmartContract struct {
	contractapi.Contract
}

// actorInfo holds details of the currently transacting actor.
type actorInfo struct {
	address string
	name    string
	mspID   string
}

// Instantiate is called when the chaincode is instantiated or upgraded.
func (s *VehicleDIDSmartContract) Instantiate(ctx contractapi.TransactionContextInterface) error {
	logger.Info("VehicleDIDSmartContract Instantiated/Upgraded")
	return nil
}

// --- DID Resolution Queries ---

// IsDIDRegistered reports whether a DID is known to the registry, whether it
// belongs to a principal, a roadside unit, a vehicle, or a stored DID document.
func (s *VehicleDIDSmartContract) IsDIDRegistered(ctx contractapi.TransactionContextInterface, did string) (bool, error) {
	trimmedDID := strings.TrimSpace(did)
	if err := s.validateRequiredString(trimmedDID, "did", maxStringInputLength); err != nil {
		return false, fmt.Errorf("IsDIDRegistered: %w", err)
	}
	return NewDIDRegistry(ctx).IsDIDRegistered(trimmedDID)
}

// ResolveDIDAddress resolves a participant DID to the address it is bound to.
func (s *VehicleDIDSmartContract) ResolveDIDAddress(ctx contractapi.TransactionContextInterface, did string) (string, error) {
	trimmedDID := strings.TrimSpace(did)
	if err := s.validateRequiredString(trimmedDID, "did", maxStringInputLength); err != nil {
		return "", fmt.Errorf("ResolveDIDAddress: %w", err)
	}
	address, err := NewDIDRegistry(ctx).ResolveDID(trimmedDID)
	if err != nil {
		return "", fmt.Errorf("ResolveDIDAddress: %w", err)
	}
	return address, nil
}

// --- Participant Listing Queries ---

// GetRegisteredAddresses returns the addresses of every registered principal
// and roadside unit, in registration namespace order.
func (s *VehicleDIDSmartContract) GetRegisteredAddresses(ctx contractapi.TransactionContextInterface) ([]string, error) {
	logger.Info("GetRegisteredAddresses called")
	addresses := []string{} // Initialize as empty slice, not nil

	for _, objectType := range []string{principalObjectType, roadsideUnitObjectType} {
		iterator, err := ctx.GetStub().GetStateByPartialCompositeKey(objectType, []string{})
		if err != nil {
			return nil, fmt.Errorf("GetRegisteredAddresses: failed to get iterator for '%s': %w", objectType, err)
		}
		for iterator.HasNext() {
			queryResponse, errNext := iterator.Next()
			if errNext != nil {
				iterator.Close()
				return nil, fmt.Errorf("GetRegisteredAddresses: error iterating '%s': %w", objectType, errNext)
			}
			_, compositeKeyParts, errSplit := ctx.GetStub().SplitCompositeKey(queryResponse.Key)
			if errSplit != nil || len(compositeKeyParts) == 0 {
				logger.Warningf("GetRegisteredAddresses: could not split composite key '%s', skipping: %v", queryResponse.Key, errSplit)
				continue
			}
			addresses = append(addresses, compositeKeyParts[0])
		}
		iterator.Close()
	}

	logger.Infof("GetRegisteredAddresses: returning %d addresses", len(addresses))
	return addresses, nil
}

// GetUsersByRole returns all principals holding the given role.
func (s *VehicleDIDSmartContract) GetUsersByRole(ctx contractapi.TransactionContextInterface, role string) ([]model.Principal, error) {
	logger.Infof("GetUsersByRole called for role '%s'", role)
	trimmedRole := model.Role(strings.TrimSpace(role))
	if !model.ValidRoles[trimmedRole] {
		return nil, fmt.Errorf("GetUsersByRole: %w",
			newValidationError(ReasonInvalidRole, "invalid role '%s'", role))
	}

	iterator, err := ctx.GetStub().GetStateByPartialCompositeKey(principalObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("GetUsersByRole: failed to get principal iterator: %w", err)
	}
	defer iterator.Close()

	principals := []model.Principal{} // Initialize as empty slice, not nil
	for iterator.HasNext() {
		queryResponse, errNext := iterator.Next()
		if errNext != nil {
			return nil, fmt.Errorf("GetUsersByRole: error iterating principals: %w", errNext)
		}
		var principal model.Principal
		if errUnmarshal := json.Unmarshal(queryResponse.Value, &principal); errUnmarshal != nil {
			logger.Warningf("GetUsersByRole: failed to unmarshal principal data for key '%s', skipping: %v", queryResponse.Key, errUnmarshal)
			continue
		}
		if principal.Role == trimmedRole {
			principals = append(principals, principal)
		}
	}

	logger.Infof("GetUsersByRole: returning %d principals with role '%s'", len(principals), trimmedRole)
	return principals, nil
}

// GetAllRoadsideUnits returns every roadside unit, active and deactivated.
func (s *VehicleDIDSmartContract) GetAllRoadsideUnits(ctx contractapi.TransactionContextInterface) ([]model.RoadsideUnit, error) {
	logger.Info("GetAllRoadsideUnits called")

	iterator, err := ctx.GetStub().GetStateByPartialCompositeKey(roadsideUnitObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("GetAllRoadsideUnits: failed to get roadside unit iterator: %w", err)
	}
	defer iterator.Close()

	units := []model.RoadsideUnit{} // Initialize as empty slice, not nil
	for iterator.HasNext() {
		queryResponse, errNext := iterator.Next()
		if errNext != nil {
			return nil, fmt.Errorf("GetAllRoadsideUnits: error iterating roadside units: %w", errNext)
		}
		var unit model.RoadsideUnit
		if errUnmarshal := json.Unmarshal(queryResponse.Value, &unit); errUnmarshal != nil {
			logger.Warningf("GetAllRoadsideUnits: failed to unmarshal roadside unit data for key '%s', skipping: %v", queryResponse.Key, errUnmarshal)
			continue
		}
		units = append(units, unit)
	}

	logger.Infof("GetAllRoadsideUnits: returning %d roadside units", len(units))
	return units, nil
}
