package constants

// Wire error codes surfaced to clients. These are the vocabulary the real
// services use, split into the generic flavor and the S3 (resource-scoped)
// flavor.
const (
	// Generic flavor
	ErrCodeAuthFailure          = "AuthFailure"
	ErrCodeInvalidClientTokenID = "InvalidClientTokenId"
	ErrCodeAccessDenied         = "AccessDenied"

	// Shared between flavors
	ErrCodeSignatureDoesNotMatch       = "SignatureDoesNotMatch"
	ErrCodeMissingAuthenticationToken  = "MissingAuthenticationToken"
	ErrCodeIncompleteSignatureExpected = "IncompleteSignature"

	// S3 flavor
	ErrCodeInvalidToken       = "InvalidToken"
	ErrCodeInvalidAccessKeyID = "InvalidAccessKeyId"

	// Directory / request-shape errors
	ErrCodeNoSuchEntity     = "NoSuchEntity"
	ErrCodeEntityExists     = "EntityAlreadyExists"
	ErrCodeMalformedPolicy  = "MalformedPolicyDocument"
	ErrCodeInvalidAction    = "InvalidAction"
	ErrCodeInternalError    = "InternalFailure"
	ErrCodeValidationError  = "ValidationError"
	ErrCodeNoSuchBucket     = "NoSuchBucket"
	ErrCodeMethodNotAllowed = "MethodNotAllowed"
)
