package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"vehicledid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Credential Operations ---

// StoreCredential stores a verifiable credential, write-once by ID. The
// recorded issuer is the submitting caller's address, not the issuerDID
// argument, which binds provenance to the transaction's actual sender.
func (s *VehicleDIDSmartContract) StoreCredential(ctx contractapi.TransactionContextInterface,
	credentialID string, issuerDID string, subjectDID string, data string) error {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("StoreCredential: failed to get actor info: %w", err)
	}
	dr := NewDIDRegistry(ctx)

	logger.Infof("StoreCredential called by '%s' for credential '%s' (issuer DID '%s', subject DID '%s')",
		actor.address, credentialID, issuerDID, subjectDID)

	trimmedID := strings.TrimSpace(credentialID)
	trimmedIssuerDID := strings.TrimSpace(issuerDID)
	trimmedSubjectDID := strings.TrimSpace(subjectDID)
	if err := s.validateRequiredString(trimmedID, "credentialID", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(trimmedIssuerDID, "issuerDID", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(trimmedSubjectDID, "subjectDID", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(data, "data", maxPayloadLength); err != nil {
		return err
	}

	issuerRegistered, err := dr.IsDIDRegistered(trimmedIssuerDID)
	if err != nil {
		return fmt.Errorf("StoreCredential: failed to check issuer DID '%s': %w", trimmedIssuerDID, err)
	}
	if !issuerRegistered {
		return newValidationError(ReasonDIDNotRegistered, "issuer DID '%s' is not a registered DID", trimmedIssuerDID)
	}
	subjectRegistered, err := dr.IsDIDRegistered(trimmedSubjectDID)
	if err != nil {
		return fmt.Errorf("StoreCredential: failed to check subject DID '%s': %w", trimmedSubjectDID, err)
	}
	if !subjectRegistered {
		return newValidationError(ReasonDIDNotRegistered, "subject DID '%s' is not a registered DID", trimmedSubjectDID)
	}

	credentialKey, err := s.createCredentialCompositeKey(ctx, trimmedID)
	if err != nil {
		return fmt.Errorf("StoreCredential: failed to create credential key for '%s': %w", trimmedID, err)
	}
	existing, err := ctx.GetStub().GetState(credentialKey)
	if err != nil {
		return fmt.Errorf("StoreCredential: failed to check for existing credential '%s': %w", trimmedID, err)
	}
	if existing != nil {
		return newConflictError(ReasonCredentialExists, "credential '%s' already exists", trimmedID)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("StoreCredential: failed to get transaction timestamp: %w", err)
	}

	credential := model.Credential{
		ObjectType: credentialObjectType, CredentialID: trimmedID, Issuer: actor.address,
		IssuerDID: trimmedIssuerDID, SubjectDID: trimmedSubjectDID, Data: data, IssuedAt: now,
	}
	credentialBytes, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("StoreCredential: failed to marshal credential '%s': %w", trimmedID, err)
	}
	if err := ctx.GetStub().PutState(credentialKey, credentialBytes); err != nil {
		return fmt.Errorf("StoreCredential: failed to save credential '%s': %w", trimmedID, err)
	}

	s.emitRegistryEvent(ctx, "CredentialStored", actor, map[string]interface{}{
		"credentialId": trimmedID, "issuer": actor.address,
		"issuerDid": trimmedIssuerDID, "subjectDid": trimmedSubjectDID,
	})
	logger.Infof("Credential '%s' stored by '%s'", trimmedID, actor.address)
	return nil
}

// --- Query: Credential Lookups ---

// GetCredential retrieves a credential by ID.
func (s *VehicleDIDSmartContract) GetCredential(ctx contractapi.TransactionContextInterface, credentialID string) (*model.Credential, error) {
	logger.Infof("GetCredential called for credential '%s'", credentialID)
	trimmedID := strings.TrimSpace(credentialID)
	if err := s.validateRequiredString(trimmedID, "credentialID", maxStringInputLength); err != nil {
		return nil, err
	}
	credentialKey, err := s.createCredentialCompositeKey(ctx, trimmedID)
	if err != nil {
		return nil, fmt.Errorf("GetCredential: failed to create credential key for '%s': %w", trimmedID, err)
	}
	credentialBytes, err := ctx.GetStub().GetState(credentialKey)
	if err != nil {
		return nil, fmt.Errorf("GetCredential: failed to read credential '%s': %w", trimmedID, err)
	}
	if credentialBytes == nil {
		return nil, fmt.Errorf("GetCredential: %w",
			newNotFoundError(ReasonCredentialNotFound, "credential '%s' does not exist", trimmedID))
	}
	var credential model.Credential
	if err := json.Unmarshal(credentialBytes, &credential); err != nil {
		return nil, fmt.Errorf("GetCredential: failed to unmarshal credential '%s': %w", trimmedID, err)
	}
	return &credential, nil
}
