package contract

import (
	"errors"
	"fmt"
)

// Error kinds returned by registry operations. Callers classify failures with
// errors.Is against these sentinels regardless of how deeply an operation has
// wrapped the underlying RegistryError.
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
)

// Stable reason codes carried by RegistryError. External consumers key on
// these strings, so they must never change once released.
const (
	ReasonEmptyField            = "EMPTY_FIELD"
	ReasonFieldTooLong          = "FIELD_TOO_LONG"
	ReasonInvalidRole           = "INVALID_ROLE"
	ReasonInvalidDID            = "INVALID_DID"
	ReasonInvalidYear           = "INVALID_YEAR"
	ReasonInvalidDateRange      = "INVALID_DATE_RANGE"
	ReasonAddressRegistered     = "ADDRESS_ALREADY_REGISTERED"
	ReasonDIDAlreadyBound       = "DID_ALREADY_BOUND"
	ReasonDIDNotRegistered      = "DID_NOT_REGISTERED"
	ReasonDIDNotBound           = "DID_NOT_BOUND"
	ReasonVINRegistered         = "VIN_ALREADY_REGISTERED"
	ReasonVehicleNotFound       = "VEHICLE_NOT_FOUND"
	ReasonPrincipalNotFound     = "PRINCIPAL_NOT_FOUND"
	ReasonUnitNotFound          = "ROADSIDE_UNIT_NOT_FOUND"
	ReasonPolicyNotFound        = "POLICY_NOT_FOUND"
	ReasonDocumentNotFound      = "DID_DOCUMENT_NOT_FOUND"
	ReasonCredentialNotFound    = "CREDENTIAL_NOT_FOUND"
	ReasonCredentialExists      = "CREDENTIAL_ALREADY_STORED"
	ReasonNotVehicleOwner       = "NOT_VEHICLE_OWNER"
	ReasonNotMechanic           = "NOT_MECHANIC"
	ReasonMechanicNotAuthorized = "MECHANIC_NOT_AUTHORIZED"
	ReasonNotInsuranceCompany   = "NOT_INSURANCE_COMPANY"
	ReasonNotController         = "NOT_DID_CONTROLLER"
	ReasonNotRoadsideUnit       = "NOT_ROADSIDE_UNIT"
	ReasonOwnerNotRegistered    = "OWNER_NOT_REGISTERED"
	ReasonSourceUnresolvable    = "SOURCE_UNRESOLVABLE"
	ReasonDestUnresolvable      = "DESTINATION_UNRESOLVABLE"
)

// RegistryError is the typed error returned by every guarded operation. Kind
// is one of the sentinels above and Reason is a stable machine-readable code.
type RegistryError struct {
	Kind    error
	Reason  string
	Message string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Unwrap exposes the kind sentinel to errors.Is.
func (e *RegistryError) Unwrap() error {
	return e.Kind
}

func newValidationError(reason, format string, args ...interface{}) *RegistryError {
	return &RegistryError{Kind: ErrValidation, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func newAuthorizationError(reason, format string, args ...interface{}) *RegistryError {
	return &RegistryError{Kind: ErrAuthorization, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func newNotFoundError(reason, format string, args ...interface{}) *RegistryError {
	return &RegistryError{Kind: ErrNotFound, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func newConflictError(reason, format string, args ...interface{}) *RegistryError {
	return &RegistryError{Kind: ErrConflict, Reason: reason, Message: fmt.Sprintf(format, args...)}
}
