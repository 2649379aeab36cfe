package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"vehicledid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Party kinds an interaction identifier can resolve to.
const (
	partyKindPrincipal = "principal"
	partyKindVehicle   = "vehicle"
	partyKindUnit      = "roadsideUnit"
)

// interactionParty is the resolved form of an interaction identifier.
type interactionParty struct {
	kind       string
	address    string
	vin        string
	unitActive bool
}

// resolveInteractionParty resolves an identifier to a registered participant.
// DID-syntax identifiers go through the vehicle DID index, then the
// participant bindings. Anything else is tried as a VIN, then as an address.
func (s *VehicleDIDSmartContract) resolveInteractionParty(ctx contractapi.TransactionContextInterface, identifier string) (*interactionParty, error) {
	dr := NewDIDRegistry(ctx)

	if isDIDString(identifier) {
		vin, err := dr.ResolveVehicleDID(identifier)
		if err == nil {
			return &interactionParty{kind: partyKindVehicle, vin: vin}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		address, err := dr.ResolveDID(identifier)
		if err != nil {
			return nil, err
		}
		return s.resolvePartyByAddress(ctx, address)
	}

	vehicleKey, err := s.createVehicleCompositeKey(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to create vehicle key for identifier '%s': %w", identifier, err)
	}
	vehicleBytes, err := ctx.GetStub().GetState(vehicleKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error checking VIN for identifier '%s': %w", identifier, err)
	}
	if vehicleBytes != nil {
		return &interactionParty{kind: partyKindVehicle, vin: identifier}, nil
	}
	return s.resolvePartyByAddress(ctx, identifier)
}

func (s *VehicleDIDSmartContract) resolvePartyByAddress(ctx contractapi.TransactionContextInterface, address string) (*interactionParty, error) {
	dr := NewDIDRegistry(ctx)
	principal, err := dr.GetPrincipal(address)
	if err == nil {
		return &interactionParty{kind: partyKindPrincipal, address: principal.Address}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	unit, err := dr.GetRoadsideUnit(address)
	if err != nil {
		return nil, err
	}
	return &interactionParty{kind: partyKindUnit, address: unit.Address, unitActive: unit.Active}, nil
}

// --- Lifecycle: Interaction Log Operations ---

// RecordInteraction appends an entry to the interaction log. The source must
// resolve to a registered principal or vehicle, the destination to a
// registered principal, vehicle, or active roadside unit. Prior entries are
// never mutated or removed.
func (s *VehicleDIDSmartContract) RecordInteraction(ctx contractapi.TransactionContextInterface,
	source string, destination string, sourceIdentifier string, destinationIdentifier string,
	interactionType string, payload string) error {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("RecordInteraction: failed to get actor info: %w", err)
	}

	logger.Infof("RecordInteraction called by '%s': '%s' -> '%s' (type '%s')", actor.address, sourceIdentifier, destinationIdentifier, interactionType)

	trimmedSource := strings.TrimSpace(source)
	trimmedDestination := strings.TrimSpace(destination)
	trimmedSourceID := strings.TrimSpace(sourceIdentifier)
	trimmedDestinationID := strings.TrimSpace(destinationIdentifier)
	trimmedType := strings.TrimSpace(interactionType)

	if err := s.validateRequiredString(trimmedSource, "source", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(trimmedDestination, "destination", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(trimmedSourceID, "sourceIdentifier", maxDescriptionLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(trimmedDestinationID, "destinationIdentifier", maxDescriptionLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(trimmedType, "interactionType", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(payload, "payload", maxPayloadLength); err != nil {
		return err
	}

	sourceParty, err := s.resolveInteractionParty(ctx, trimmedSourceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newValidationError(ReasonSourceUnresolvable, "source identifier '%s' does not resolve to a registered principal or vehicle", trimmedSourceID)
		}
		return fmt.Errorf("RecordInteraction: failed to resolve source '%s': %w", trimmedSourceID, err)
	}
	if sourceParty.kind == partyKindUnit {
		return newValidationError(ReasonSourceUnresolvable, "source identifier '%s' resolves to a roadside unit, which cannot originate interactions", trimmedSourceID)
	}
	destinationParty, err := s.resolveInteractionParty(ctx, trimmedDestinationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newValidationError(ReasonDestUnresolvable, "destination identifier '%s' does not resolve to a registered principal, vehicle, or roadside unit", trimmedDestinationID)
		}
		return fmt.Errorf("RecordInteraction: failed to resolve destination '%s': %w", trimmedDestinationID, err)
	}
	if destinationParty.kind == partyKindUnit && !destinationParty.unitActive {
		return newValidationError(ReasonDestUnresolvable, "destination roadside unit '%s' is not active", trimmedDestinationID)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RecordInteraction: failed to get transaction timestamp: %w", err)
	}

	// All validations passed, nextSequence is the first write.
	seq, err := s.nextSequence(ctx, interactionCounterName)
	if err != nil {
		return fmt.Errorf("RecordInteraction: %w", err)
	}

	interaction := model.Interaction{
		ObjectType: interactionObjectType, Sequence: seq,
		Source: trimmedSource, Destination: trimmedDestination,
		SourceIdentifier: trimmedSourceID, DestinationIdentifier: trimmedDestinationID,
		InteractionType: trimmedType, Payload: payload, Timestamp: now,
	}
	interactionBytes, err := json.Marshal(interaction)
	if err != nil {
		return fmt.Errorf("RecordInteraction: failed to marshal interaction %d: %w", seq, err)
	}
	interactionKey, err := s.createInteractionCompositeKey(ctx, seq)
	if err != nil {
		return fmt.Errorf("RecordInteraction: failed to create interaction key for %d: %w", seq, err)
	}
	if err := ctx.GetStub().PutState(interactionKey, interactionBytes); err != nil {
		return fmt.Errorf("RecordInteraction: failed to save interaction %d: %w", seq, err)
	}

	// The per-identifier index rows commit in the same transaction as the
	// log entry itself.
	indexIdentifiers := []string{trimmedSourceID}
	if trimmedDestinationID != trimmedSourceID {
		indexIdentifiers = append(indexIdentifiers, trimmedDestinationID)
	}
	for _, identifier := range indexIdentifiers {
		indexKey, errIdx := s.createInteractionIndexCompositeKey(ctx, identifier, seq)
		if errIdx != nil {
			return fmt.Errorf("RecordInteraction: failed to create index key for '%s': %w", identifier, errIdx)
		}
		if err := ctx.GetStub().PutState(indexKey, []byte(strconv.FormatUint(seq, 10))); err != nil {
			return fmt.Errorf("RecordInteraction: failed to save index row for '%s': %w", identifier, err)
		}
	}

	s.emitRegistryEvent(ctx, "InteractionRecorded", actor, map[string]interface{}{
		"sequence": seq, "source": trimmedSource, "destination": trimmedDestination,
		"sourceIdentifier": trimmedSourceID, "destinationIdentifier": trimmedDestinationID,
		"interactionType": trimmedType,
	})
	logger.Infof("Interaction %d recorded: '%s' -> '%s' (type '%s')", seq, trimmedSourceID, trimmedDestinationID, trimmedType)
	return nil
}

// --- Query: Interaction Lookups ---

// getInteractionBySequence loads one log entry by its sequence number.
func (s *VehicleDIDSmartContract) getInteractionBySequence(ctx contractapi.TransactionContextInterface, seq uint64) (*model.Interaction, error) {
	interactionKey, err := s.createInteractionCompositeKey(ctx, seq)
	if err != nil {
		return nil, fmt.Errorf("failed to create interaction key for %d: %w", seq, err)
	}
	interactionBytes, err := ctx.GetStub().GetState(interactionKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error reading interaction %d: %w", seq, err)
	}
	if interactionBytes == nil {
		return nil, fmt.Errorf("interaction %d is indexed but missing from the log", seq)
	}
	var interaction model.Interaction
	if err := json.Unmarshal(interactionBytes, &interaction); err != nil {
		return nil, fmt.Errorf("failed to unmarshal interaction %d: %w", seq, err)
	}
	return &interaction, nil
}

// GetInteractionsByIdentifier returns every log entry where the identifier
// appears as source or destination, in insertion order. Returns an empty
// slice when none match.
func (s *VehicleDIDSmartContract) GetInteractionsByIdentifier(ctx contractapi.TransactionContextInterface, identifier string) ([]model.Interaction, error) {
	logger.Infof("GetInteractionsByIdentifier called for '%s'", identifier)
	trimmedID := strings.TrimSpace(identifier)
	if err := s.validateRequiredString(trimmedID, "identifier", maxDescriptionLength); err != nil {
		return nil, err
	}

	iterator, err := ctx.GetStub().GetStateByPartialCompositeKey(interactionIndexObjectType, []string{trimmedID})
	if err != nil {
		return nil, fmt.Errorf("GetInteractionsByIdentifier: failed to get index iterator for '%s': %w", trimmedID, err)
	}
	defer iterator.Close()

	interactions := []model.Interaction{} // Initialize as empty slice, not nil
	for iterator.HasNext() {
		queryResponse, errNext := iterator.Next()
		if errNext != nil {
			return nil, fmt.Errorf("GetInteractionsByIdentifier: error iterating index for '%s': %w", trimmedID, errNext)
		}
		seq, errParse := strconv.ParseUint(string(queryResponse.Value), 10, 64)
		if errParse != nil {
			logger.Warningf("GetInteractionsByIdentifier: corrupt index row '%s', skipping: %v", queryResponse.Key, errParse)
			continue
		}
		interaction, errLoad := s.getInteractionBySequence(ctx, seq)
		if errLoad != nil {
			logger.Warningf("GetInteractionsByIdentifier: could not load interaction %d, skipping: %v", seq, errLoad)
			continue
		}
		interactions = append(interactions, *interaction)
	}

	logger.Infof("GetInteractionsByIdentifier: returning %d interactions for '%s'", len(interactions), trimmedID)
	return interactions, nil
}

// GetInteractionsBetween returns every log entry whose source and destination
// identifiers match the unordered pair, in insertion order. Symmetric in its
// arguments.
func (s *VehicleDIDSmartContract) GetInteractionsBetween(ctx contractapi.TransactionContextInterface, identifierA string, identifierB string) ([]model.Interaction, error) {
	logger.Infof("GetInteractionsBetween called for '%s' and '%s'", identifierA, identifierB)
	trimmedA := strings.TrimSpace(identifierA)
	trimmedB := strings.TrimSpace(identifierB)
	if err := s.validateRequiredString(trimmedA, "identifierA", maxDescriptionLength); err != nil {
		return nil, err
	}
	if err := s.validateRequiredString(trimmedB, "identifierB", maxDescriptionLength); err != nil {
		return nil, err
	}

	iterator, err := ctx.GetStub().GetStateByPartialCompositeKey(interactionIndexObjectType, []string{trimmedA})
	if err != nil {
		return nil, fmt.Errorf("GetInteractionsBetween: failed to get index iterator for '%s': %w", trimmedA, err)
	}
	defer iterator.Close()

	interactions := []model.Interaction{} // Initialize as empty slice, not nil
	for iterator.HasNext() {
		queryResponse, errNext := iterator.Next()
		if errNext != nil {
			return nil, fmt.Errorf("GetInteractionsBetween: error iterating index for '%s': %w", trimmedA, errNext)
		}
		seq, errParse := strconv.ParseUint(string(queryResponse.Value), 10, 64)
		if errParse != nil {
			logger.Warningf("GetInteractionsBetween: corrupt index row '%s', skipping: %v", queryResponse.Key, errParse)
			continue
		}
		interaction, errLoad := s.getInteractionBySequence(ctx, seq)
		if errLoad != nil {
			logger.Warningf("GetInteractionsBetween: could not load interaction %d, skipping: %v", seq, errLoad)
			continue
		}
		matchesForward := interaction.SourceIdentifier == trimmedA && interaction.DestinationIdentifier == trimmedB
		matchesReverse := interaction.SourceIdentifier == trimmedB && interaction.DestinationIdentifier == trimmedA
		if matchesForward || matchesReverse {
			interactions = append(interactions, *interaction)
		}
	}

	logger.Infof("GetInteractionsBetween: returning %d interactions for '%s' and '%s'", len(interactions), trimmedA, trimmedB)
	return interactions, nil
}
