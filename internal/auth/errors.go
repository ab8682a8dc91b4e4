package auth

import (
	"errors"
	"fmt"
)

// APIError is an authentication/authorization failure with its wire code.
// The HTTP layer renders it into the flavor-appropriate XML body.
type APIError struct {
	Code       string
	Message    string
	HTTPStatus int
	Resource   string // bucket name for resource-scoped S3 errors, else empty
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new API error.
func NewAPIError(code, message string, status int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: status}
}

// AsAPIError checks if an error is an APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ResolveFailureReason distinguishes the two ways credential resolution
// fails: unknown key id vs. mismatched/misused security token.
type ResolveFailureReason int

const (
	ReasonInvalidID ResolveFailureReason = iota
	ReasonInvalidToken
)

// ResolveFailure is returned by principal resolution. The authenticator maps
// it through the active error flavor; it never reaches clients directly.
type ResolveFailure struct {
	Reason ResolveFailureReason
}

func (e *ResolveFailure) Error() string {
	if e.Reason == ReasonInvalidToken {
		return "access key resolution failed: invalid token"
	}
	return "access key resolution failed: invalid id"
}

// ErrSignatureMismatch is returned by the verifier when the recomputed
// signature differs from the supplied one.
var ErrSignatureMismatch = errors.New("request signature does not match")
