package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"vehicledid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: DID Document Operations ---

// StoreDIDDocument stores or updates the document for a DID. The first store
// makes the caller the document's controller; afterwards only the controller
// may update it. Storing a document for an unknown DID marks that DID
// registered.
func (s *VehicleDIDSmartContract) StoreDIDDocument(ctx contractapi.TransactionContextInterface,
	did string, document string) error {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("StoreDIDDocument: failed to get actor info: %w", err)
	}
	dr := NewDIDRegistry(ctx)

	logger.Infof("StoreDIDDocument called by '%s' for DID '%s'", actor.address, did)

	trimmedDID := strings.TrimSpace(did)
	if err := s.validateDIDString(trimmedDID, "did"); err != nil {
		return err
	}
	if err := s.validateRequiredString(document, "document", maxPayloadLength); err != nil {
		return err
	}

	docKey, err := s.createDIDDocumentCompositeKey(ctx, trimmedDID)
	if err != nil {
		return fmt.Errorf("StoreDIDDocument: failed to create document key for '%s': %w", trimmedDID, err)
	}
	existingBytes, err := ctx.GetStub().GetState(docKey)
	if err != nil {
		return fmt.Errorf("StoreDIDDocument: failed to read document for '%s': %w", trimmedDID, err)
	}
	if existingBytes != nil {
		var existing model.DIDDocument
		if err := json.Unmarshal(existingBytes, &existing); err != nil {
			return fmt.Errorf("StoreDIDDocument: failed to unmarshal existing document for '%s': %w", trimmedDID, err)
		}
		if existing.Controller != "" && existing.Controller != actor.address {
			return newAuthorizationError(ReasonNotController, "caller '%s' is not the controller of DID document '%s'", actor.address, trimmedDID)
		}
	}

	didAlreadyRegistered, err := dr.IsDIDRegistered(trimmedDID)
	if err != nil {
		return fmt.Errorf("StoreDIDDocument: failed to check registration of '%s': %w", trimmedDID, err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("StoreDIDDocument: failed to get transaction timestamp: %w", err)
	}

	doc := model.DIDDocument{
		ObjectType: didDocumentObjectType, DID: trimmedDID, Document: document,
		Timestamp: now, Active: true, Controller: actor.address,
	}
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("StoreDIDDocument: failed to marshal document for '%s': %w", trimmedDID, err)
	}
	if err := ctx.GetStub().PutState(docKey, docBytes); err != nil {
		return fmt.Errorf("StoreDIDDocument: failed to save document for '%s': %w", trimmedDID, err)
	}
	if !didAlreadyRegistered {
		if err := dr.MarkDIDRegistered(trimmedDID); err != nil {
			return fmt.Errorf("StoreDIDDocument: %w", err)
		}
	}

	s.emitRegistryEvent(ctx, "DIDDocumentStored", actor, map[string]interface{}{
		"did": trimmedDID, "controller": actor.address, "didRegistered": !didAlreadyRegistered,
	})
	logger.Infof("DID document stored for '%s' by controller '%s'", trimmedDID, actor.address)
	return nil
}

// RevokeDIDDocument marks a DID document inactive. Controller only; the
// record is kept.
func (s *VehicleDIDSmartContract) RevokeDIDDocument(ctx contractapi.TransactionContextInterface, did string) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("RevokeDIDDocument: failed to get actor info: %w", err)
	}

	logger.Infof("RevokeDIDDocument called by '%s' for DID '%s'", actor.address, did)

	trimmedDID := strings.TrimSpace(did)
	if err := s.validateRequiredString(trimmedDID, "did", maxStringInputLength); err != nil {
		return err
	}

	docKey, err := s.createDIDDocumentCompositeKey(ctx, trimmedDID)
	if err != nil {
		return fmt.Errorf("RevokeDIDDocument: failed to create document key for '%s': %w", trimmedDID, err)
	}
	docBytes, err := ctx.GetStub().GetState(docKey)
	if err != nil {
		return fmt.Errorf("RevokeDIDDocument: failed to read document for '%s': %w", trimmedDID, err)
	}
	if docBytes == nil {
		return newNotFoundError(ReasonDocumentNotFound, "no DID document exists for '%s'", trimmedDID)
	}
	var doc model.DIDDocument
	if err := json.Unmarshal(docBytes, &doc); err != nil {
		return fmt.Errorf("RevokeDIDDocument: failed to unmarshal document for '%s': %w", trimmedDID, err)
	}
	if doc.Controller != "" && doc.Controller != actor.address {
		return newAuthorizationError(ReasonNotController, "caller '%s' is not the controller of DID document '%s'", actor.address, trimmedDID)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RevokeDIDDocument: failed to get transaction timestamp: %w", err)
	}

	doc.Active = false
	doc.Timestamp = now
	updatedBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("RevokeDIDDocument: failed to marshal document for '%s': %w", trimmedDID, err)
	}
	if err := ctx.GetStub().PutState(docKey, updatedBytes); err != nil {
		return fmt.Errorf("RevokeDIDDocument: failed to save document for '%s': %w", trimmedDID, err)
	}

	s.emitRegistryEvent(ctx, "DIDDocumentRevoked", actor, map[string]interface{}{
		"did": trimmedDID, "controller": doc.Controller,
	})
	logger.Infof("DID document for '%s' revoked by controller '%s'", trimmedDID, actor.address)
	return nil
}

// --- Query: DID Document Lookups ---

// GetDIDDocument retrieves the stored document for a DID.
func (s *VehicleDIDSmartContract) GetDIDDocument(ctx contractapi.TransactionContextInterface, did string) (*model.DIDDocument, error) {
	logger.Infof("GetDIDDocument called for DID '%s'", did)
	trimmedDID := strings.TrimSpace(did)
	if err := s.validateRequiredString(trimmedDID, "did", maxStringInputLength); err != nil {
		return nil, err
	}
	docKey, err := s.createDIDDocumentCompositeKey(ctx, trimmedDID)
	if err != nil {
		return nil, fmt.Errorf("GetDIDDocument: failed to create document key for '%s': %w", trimmedDID, err)
	}
	docBytes, err := ctx.GetStub().GetState(docKey)
	if err != nil {
		return nil, fmt.Errorf("GetDIDDocument: failed to read document for '%s': %w", trimmedDID, err)
	}
	if docBytes == nil {
		return nil, fmt.Errorf("GetDIDDocument: %w",
			newNotFoundError(ReasonDocumentNotFound, "no DID document exists for '%s'", trimmedDID))
	}
	var doc model.DIDDocument
	if err := json.Unmarshal(docBytes, &doc); err != nil {
		return nil, fmt.Errorf("GetDIDDocument: failed to unmarshal document for '%s': %w", trimmedDID, err)
	}
	return &doc, nil
}
