package contract

import (
	"errors"
	"fmt"
	"strings"

	"vehicledid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Participant Registration Operations ---

// RegisterUser registers the calling identity as a principal with a single
// role and binds its entity and wallet DIDs to the caller's address. DID to
// address bindings are permanent.
func (s *VehicleDIDSmartContract) RegisterUser(ctx contractapi.TransactionContextInterface,
	name string, role string, entityDID string, walletDID string) error {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("RegisterUser: failed to get actor info: %w", err)
	}
	dr := NewDIDRegistry(ctx)

	logger.Infof("RegisterUser called by '%s' for name '%s', role '%s'", actor.address, name, role)

	trimmedName := strings.TrimSpace(name)
	trimmedEntityDID := strings.TrimSpace(entityDID)
	trimmedWalletDID := strings.TrimSpace(walletDID)
	trimmedRole := model.Role(strings.TrimSpace(role))

	if err := s.validateRequiredString(trimmedName, "name", maxStringInputLength); err != nil {
		return err
	}
	if !model.ValidRoles[trimmedRole] {
		return newValidationError(ReasonInvalidRole, "invalid role '%s'", role)
	}
	if err := s.validateDIDString(trimmedEntityDID, "entityDID"); err != nil {
		return err
	}
	if err := s.validateDIDString(trimmedWalletDID, "walletDID"); err != nil {
		return err
	}

	alreadyRegistered, err := dr.IsAddressRegistered(actor.address)
	if err != nil {
		return fmt.Errorf("RegisterUser: failed to check address registration: %w", err)
	}
	if alreadyRegistered {
		return newConflictError(ReasonAddressRegistered, "address '%s' is already registered", actor.address)
	}
	if err := dr.CheckDIDBindable(trimmedEntityDID, actor.address); err != nil {
		return err
	}
	if err := dr.CheckDIDBindable(trimmedWalletDID, actor.address); err != nil {
		return err
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RegisterUser: failed to get transaction timestamp: %w", err)
	}

	principal := model.Principal{
		ObjectType: principalObjectType, Address: actor.address, Name: trimmedName, Role: trimmedRole,
		EntityDID: trimmedEntityDID, WalletDID: trimmedWalletDID, Registered: true, RegisteredAt: now,
	}
	if err := dr.SavePrincipal(&principal); err != nil {
		return fmt.Errorf("RegisterUser: %w", err)
	}
	if err := dr.BindDID(trimmedEntityDID, actor.address); err != nil {
		return fmt.Errorf("RegisterUser: %w", err)
	}
	if err := dr.BindDID(trimmedWalletDID, actor.address); err != nil {
		return fmt.Errorf("RegisterUser: %w", err)
	}

	s.emitRegistryEvent(ctx, "UserRegistered", actor, map[string]interface{}{
		"name": trimmedName, "role": string(trimmedRole),
		"entityDid": trimmedEntityDID, "walletDid": trimmedWalletDID,
	})
	logger.Infof("Principal '%s' registered at address '%s' with role '%s'", trimmedName, actor.address, trimmedRole)
	return nil
}

// RegisterRoadsideUnit registers the calling identity as a roadside unit.
// Units live in their own namespace but share the one-actor-per-address rule
// and DID binding semantics with principals.
func (s *VehicleDIDSmartContract) RegisterRoadsideUnit(ctx contractapi.TransactionContextInterface,
	name string, location string, entityDID string, walletDID string) error {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("RegisterRoadsideUnit: failed to get actor info: %w", err)
	}
	dr := NewDIDRegistry(ctx)

	logger.Infof("RegisterRoadsideUnit called by '%s' for name '%s' at location '%s'", actor.address, name, location)

	trimmedName := strings.TrimSpace(name)
	trimmedLocation := strings.TrimSpace(location)
	trimmedEntityDID := strings.TrimSpace(entityDID)
	trimmedWalletDID := strings.TrimSpace(walletDID)

	if err := s.validateRequiredString(trimmedName, "name", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(trimmedLocation, "location", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateDIDString(trimmedEntityDID, "entityDID"); err != nil {
		return err
	}
	if err := s.validateDIDString(trimmedWalletDID, "walletDID"); err != nil {
		return err
	}

	alreadyRegistered, err := dr.IsAddressRegistered(actor.address)
	if err != nil {
		return fmt.Errorf("RegisterRoadsideUnit: failed to check address registration: %w", err)
	}
	if alreadyRegistered {
		return newConflictError(ReasonAddressRegistered, "address '%s' is already registered", actor.address)
	}
	if err := dr.CheckDIDBindable(trimmedEntityDID, actor.address); err != nil {
		return err
	}
	if err := dr.CheckDIDBindable(trimmedWalletDID, actor.address); err != nil {
		return err
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RegisterRoadsideUnit: failed to get transaction timestamp: %w", err)
	}

	unit := model.RoadsideUnit{
		ObjectType: roadsideUnitObjectType, Address: actor.address, Name: trimmedName, Location: trimmedLocation,
		EntityDID: trimmedEntityDID, WalletDID: trimmedWalletDID, Active: true, RegisteredAt: now,
	}
	if err := dr.SaveRoadsideUnit(&unit); err != nil {
		return fmt.Errorf("RegisterRoadsideUnit: %w", err)
	}
	if err := dr.BindDID(trimmedEntityDID, actor.address); err != nil {
		return fmt.Errorf("RegisterRoadsideUnit: %w", err)
	}
	if err := dr.BindDID(trimmedWalletDID, actor.address); err != nil {
		return fmt.Errorf("RegisterRoadsideUnit: %w", err)
	}

	s.emitRegistryEvent(ctx, "RoadsideUnitRegistered", actor, map[string]interface{}{
		"name": trimmedName, "location": trimmedLocation,
		"entityDid": trimmedEntityDID, "walletDid": trimmedWalletDID,
	})
	logger.Infof("Roadside unit '%s' registered at address '%s'", trimmedName, actor.address)
	return nil
}

// DeactivateRoadsideUnit switches the calling roadside unit off. A
// deactivated unit stops being a valid interaction destination. The switch is
// idempotent and there is no reactivation path.
func (s *VehicleDIDSmartContract) DeactivateRoadsideUnit(ctx contractapi.TransactionContextInterface) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("DeactivateRoadsideUnit: failed to get actor info: %w", err)
	}
	dr := NewDIDRegistry(ctx)

	unit, err := dr.GetRoadsideUnit(actor.address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newAuthorizationError(ReasonNotRoadsideUnit, "caller '%s' is not a registered roadside unit", actor.address)
		}
		return fmt.Errorf("DeactivateRoadsideUnit: %w", err)
	}

	logger.Infof("DeactivateRoadsideUnit called by unit '%s' at '%s'", unit.Name, actor.address)

	unit.Active = false
	if err := dr.SaveRoadsideUnit(unit); err != nil {
		return fmt.Errorf("DeactivateRoadsideUnit: %w", err)
	}

	s.emitRegistryEvent(ctx, "RoadsideUnitDeactivated", actor, map[string]interface{}{
		"name": unit.Name,
	})
	logger.Infof("Roadside unit '%s' at address '%s' deactivated", unit.Name, actor.address)
	return nil
}

// --- Query: Participant Lookups ---

// GetUser retrieves a registered principal by address.
func (s *VehicleDIDSmartContract) GetUser(ctx contractapi.TransactionContextInterface, address string) (*model.Principal, error) {
	logger.Infof("GetUser called for address '%s'", address)
	trimmedAddress := strings.TrimSpace(address)
	if err := s.validateRequiredString(trimmedAddress, "address", maxDescriptionLength); err != nil {
		return nil, err
	}
	principal, err := NewDIDRegistry(ctx).GetPrincipal(trimmedAddress)
	if err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}
	return principal, nil
}

// GetUserByDID resolves a participant DID and returns the principal it is
// bound to.
func (s *VehicleDIDSmartContract) GetUserByDID(ctx contractapi.TransactionContextInterface, did string) (*model.Principal, error) {
	logger.Infof("GetUserByDID called for DID '%s'", did)
	trimmedDID := strings.TrimSpace(did)
	if err := s.validateRequiredString(trimmedDID, "did", maxStringInputLength); err != nil {
		return nil, err
	}
	dr := NewDIDRegistry(ctx)
	address, err := dr.ResolveDID(trimmedDID)
	if err != nil {
		return nil, fmt.Errorf("GetUserByDID: %w", err)
	}
	principal, err := dr.GetPrincipal(address)
	if err != nil {
		return nil, fmt.Errorf("GetUserByDID: %w", err)
	}
	return principal, nil
}

// GetRoadsideUnit retrieves a roadside unit by address.
func (s *VehicleDIDSmartContract) GetRoadsideUnit(ctx contractapi.TransactionContextInterface, address string) (*model.RoadsideUnit, error) {
	logger.Infof("GetRoadsideUnit called for address '%s'", address)
	trimmedAddress := strings.TrimSpace(address)
	if err := s.validateRequiredString(trimmedAddress, "address", maxDescriptionLength); err != nil {
		return nil, err
	}
	unit, err := NewDIDRegistry(ctx).GetRoadsideUnit(trimmedAddress)
	if err != nil {
		return nil, fmt.Errorf("GetRoadsideUnit: %w", err)
	}
	return unit, nil
}
