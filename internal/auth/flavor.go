package auth

import (
	"fmt"
	"net/http"

	"nimbus/internal/constants"
)

// Flavor selects the error vocabulary used to report failures: the generic
// query-service vocabulary, or the S3 resource-scoped one.
type Flavor int

const (
	FlavorGeneric Flavor = iota
	FlavorS3
)

func (f Flavor) String() string {
	if f == FlavorS3 {
		return constants.AuditFlavorS3
	}
	return constants.AuditFlavorGeneric
}

// errorFlavor maps engine failures to wire errors. Signature mismatches have
// no flavor variance and are built by signatureDoesNotMatch directly.
type errorFlavor interface {
	invalidAccessKey(reason ResolveFailureReason, service, resource string) *APIError
	accessDenied(principalARN, action, resource string) *APIError
}

func flavorFor(f Flavor) errorFlavor {
	if f == FlavorS3 {
		return s3Flavor{}
	}
	return genericFlavor{}
}

func signatureDoesNotMatch() *APIError {
	return NewAPIError(constants.ErrCodeSignatureDoesNotMatch,
		"The request signature we calculated does not match the signature you provided. "+
			"Check your AWS Secret Access Key and signing method. "+
			"Consult the service documentation for details.",
		http.StatusForbidden)
}

func missingAuthenticationToken() *APIError {
	return NewAPIError(constants.ErrCodeMissingAuthenticationToken,
		"Request is missing Authentication Token", http.StatusForbidden)
}

// ============================================================================
// Generic flavor
// ============================================================================

type genericFlavor struct{}

// invalidAccessKey ignores the failure reason: EC2 reports its own auth
// failure code, every other service reports an invalid client token id.
func (genericFlavor) invalidAccessKey(_ ResolveFailureReason, service, _ string) *APIError {
	if service == constants.ServiceEC2 {
		return NewAPIError(constants.ErrCodeAuthFailure,
			"AWS was not able to validate the provided access credentials",
			http.StatusUnauthorized)
	}
	return NewAPIError(constants.ErrCodeInvalidClientTokenID,
		"The security token included in the request is invalid.",
		http.StatusForbidden)
}

func (genericFlavor) accessDenied(principalARN, action, _ string) *APIError {
	return NewAPIError(constants.ErrCodeAccessDenied,
		fmt.Sprintf("User: %s is not authorized to perform: %s", principalARN, action),
		http.StatusForbidden)
}

// ============================================================================
// S3 (resource-scoped) flavor
// ============================================================================

type s3Flavor struct{}

func (s3Flavor) invalidAccessKey(reason ResolveFailureReason, _, resource string) *APIError {
	var apiErr *APIError
	if reason == ReasonInvalidToken {
		apiErr = NewAPIError(constants.ErrCodeInvalidToken,
			"The provided token is malformed or otherwise invalid.",
			http.StatusBadRequest)
	} else {
		apiErr = NewAPIError(constants.ErrCodeInvalidAccessKeyID,
			"The AWS Access Key Id you provided does not exist in our records.",
			http.StatusForbidden)
	}
	apiErr.Resource = resource
	return apiErr
}

func (s3Flavor) accessDenied(_, _, resource string) *APIError {
	apiErr := NewAPIError(constants.ErrCodeAccessDenied, "Access Denied",
		http.StatusForbidden)
	apiErr.Resource = resource
	return apiErr
}
