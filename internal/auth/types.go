// Package auth implements the request authentication and authorization
// engine: credential resolution, SigV4 signature verification, and policy
// evaluation with explicit-deny-wins / default-deny semantics.
package auth

import (
	"net/http"
	"net/url"

	"nimbus/internal/directory"
)

// PermissionResult is the tri-state outcome of evaluating a statement or a
// whole document against an action. Neutral means "no opinion".
type PermissionResult int

const (
	PermissionNeutral PermissionResult = iota
	PermissionPermitted
	PermissionDenied
)

func (r PermissionResult) String() string {
	switch r {
	case PermissionPermitted:
		return "Permitted"
	case PermissionDenied:
		return "Denied"
	default:
		return "Neutral"
	}
}

// Credentials is the secret material used to recompute a request signature.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string // empty for long-term user keys
}

// CredentialScope is the access-key/date/region/service tuple parsed from
// the Credential= component of the Authorization header.
type CredentialScope struct {
	AccessKeyID string
	Date        string
	Region      string
	Service     string
}

// Request is the authenticator's view of one inbound HTTP request.
type Request struct {
	Method  string
	Path    string // path plus raw query, as signed by the client
	Body    []byte
	Params  url.Values // parsed body/query parameters (Action, BucketName, ...)
	Headers http.Header
	Host    string
}

// ActionName returns the bare action name carried in the request parameters.
func (r *Request) ActionName() string {
	return r.Params.Get("Action")
}

// Resource returns the target resource name, if the request names one.
func (r *Request) Resource() string {
	return r.Params.Get("BucketName")
}

// Outcome describes a completed authentication, successful or not. On
// failure the fields hold whatever was established before the failing state.
type Outcome struct {
	PrincipalARN string
	Action       string
	Resource     string
}

// IdentityDirectory is the read-only view of the identity/policy directory
// consumed by the engine.
type IdentityDirectory interface {
	ListUsers() ([]directory.User, error)
	ListUserPolicies(userName string) ([]string, error)
	GetUserPolicy(userName, policyName string) (string, error)
	ListAttachedUserPolicies(userName string) ([]directory.ManagedPolicy, error)
	GroupsForUser(userName string) ([]directory.Group, error)
	ListGroupPolicies(groupName string) ([]string, error)
	GetGroupPolicy(groupName, policyName string) (string, error)
	ListAttachedGroupPolicies(groupName string) ([]directory.ManagedPolicy, error)
	ListRolePolicies(roleName string) ([]string, error)
	GetRolePolicy(roleName, policyName string) (string, error)
	ListAttachedRolePolicies(roleName string) ([]directory.ManagedPolicy, error)
}

// SessionDirectory is the read-only view of active assumed-role sessions.
type SessionDirectory interface {
	ActiveAssumedRoles() ([]directory.AssumedRoleSession, error)
}

// PolicySource yields a JSON policy document for evaluation. Inline policies
// and managed policies both satisfy it; normalization to an evaluable
// document happens in ParseDocument.
type PolicySource interface {
	PolicyDocument() (string, error)
}
