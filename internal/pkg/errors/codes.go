package errors

import (
	"fmt"
	"net/http"
)

// Error code constants. Logs are always in English; callers switch on Code.

// Configuration faults. Fatal, never retried.
const (
	CodeCredentialNotFound    = "CREDENTIAL_NOT_FOUND"
	CodeACLCredentialNotFound = "ACL_CREDENTIAL_NOT_FOUND"
	CodeConfigInvalid         = "CONFIG_INVALID"
)

// Pipeline error codes.
const (
	CodeStepNotImplemented = "STEP_NOT_IMPLEMENTED"
	CodeStepFailed         = "STEP_FAILED"
	CodeRollbackIncomplete = "ROLLBACK_INCOMPLETE"
)

// Provider error codes.
const (
	CodeProviderUnreachable = "PROVIDER_UNREACHABLE"
	CodeProviderBadResponse = "PROVIDER_BAD_RESPONSE"
	CodeVMNotFound          = "VM_NOT_FOUND"
	CodeACLNotAccepted      = "ACL_NOT_ACCEPTED"
	CodeOfferingNotFound    = "OFFERING_NOT_FOUND"
	CodeACLLookupFailed     = "ACL_LOOKUP_FAILED"
)

// Operation status API codes.
const (
	CodeRestoreNotFound   = "RESTORE_NOT_FOUND"
	CodeInvalidQueryParam = "INVALID_QUERY_PARAM"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
)

// ErrACLCredentialNotFoundf reports a missing ACL credential for an environment.
func ErrACLCredentialNotFoundf(env string, cause error) *AppError {
	return Wrap(cause,
		CodeACLCredentialNotFound,
		fmt.Sprintf("credential ACLFROMHELL for env %s not found", env),
		http.StatusFailedDependency,
	).WithParams(map[string]interface{}{"environment": env})
}

// ErrRestoreNotFoundf creates a restore not found error.
func ErrRestoreNotFoundf(id int64) *AppError {
	return &AppError{
		Code:       CodeRestoreNotFound,
		Message:    "database restore not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"id": id},
	}
}

// ErrVMNotFoundf creates an error for a host with no VM at the compute provider.
func ErrVMNotFoundf(host string) *AppError {
	return &AppError{
		Code:       CodeVMNotFound,
		Message:    "compute provider has no vm for host " + host,
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"host": host},
	}
}
