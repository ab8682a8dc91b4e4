package auth

import (
	"context"
	"strings"

	"nimbus/internal/constants"
	"nimbus/internal/logger"
)

// Authenticator orchestrates request authentication and authorization:
//
//	parse credential scope → resolve principal → verify signature →
//	evaluate policies
//
// Every state is terminal on failure; nothing is retried. One Authenticator
// serves one error flavor; construction wires the matching signer.
type Authenticator struct {
	dir       IdentityDirectory
	sessions  SessionDirectory
	flavor    Flavor
	errors    errorFlavor
	verifier  *SignatureVerifier
	evaluator *PolicyEvaluator
	accountID string
	logger    *logger.Logger
}

// NewAuthenticator creates an authenticator over the injected directories.
func NewAuthenticator(dir IdentityDirectory, sessions SessionDirectory, accountID string, flavor Flavor, log *logger.Logger) *Authenticator {
	signer := NewSigV4Signer()
	if flavor == FlavorS3 {
		signer = NewS3SigV4Signer()
	}
	return &Authenticator{
		dir:       dir,
		sessions:  sessions,
		flavor:    flavor,
		errors:    flavorFor(flavor),
		verifier:  NewSignatureVerifier(signer, log),
		evaluator: NewPolicyEvaluator(log),
		accountID: accountID,
		logger:    log,
	}
}

// Flavor returns the error flavor this authenticator reports with.
func (a *Authenticator) Flavor() Flavor {
	return a.flavor
}

// Authenticate runs the full pipeline for one request. On success the
// returned error is nil; on failure it is an *APIError carrying the
// flavor-specific wire representation. The Outcome is always returned and
// holds whatever was established before a failure, for audit purposes.
func (a *Authenticator) Authenticate(ctx context.Context, req *Request) (*Outcome, error) {
	outcome := &Outcome{Resource: req.Resource()}

	// Parsing
	scope, err := ParseCredentialScope(req.Headers.Get(constants.HeaderAuthorization))
	if err != nil {
		a.logger.Debug("Auth failed: malformed authorization header: %v", err)
		return outcome, missingAuthenticationToken()
	}
	action := scope.Service + ":" + req.ActionName()
	outcome.Action = action

	// ResolvingPrincipal
	principal, err := ResolvePrincipal(a.dir, a.sessions, a.accountID, scope.AccessKeyID, req.Headers)
	if err != nil {
		if failure, ok := err.(*ResolveFailure); ok {
			a.logger.Debug("Auth failed: key %s: %v", scope.AccessKeyID, failure)
			return outcome, a.errors.invalidAccessKey(failure.Reason, scope.Service, req.Resource())
		}
		a.logger.Error("Auth failed: directory lookup error: %v", err)
		return outcome, NewAPIError(constants.ErrCodeInternalError, "directory lookup failed", 500)
	}
	outcome.PrincipalARN = principal.ARN()

	// VerifyingSignature
	if err := a.verifier.Verify(ctx, req, scope, principal.Credentials()); err != nil {
		if err == ErrSignatureMismatch {
			return outcome, signatureDoesNotMatch()
		}
		a.logger.Debug("Auth failed: cannot assemble signing inputs: %v", err)
		return outcome, missingAuthenticationToken()
	}

	// EvaluatingPolicy
	result, err := a.evaluator.IsActionPermitted(principal, action)
	if err != nil {
		// A policy lookup failure fails the authorization; it is never
		// downgraded to "no policies".
		a.logger.Error("Authz failed: policy collection error for %s: %v", principal.ARN(), err)
		return outcome, a.errors.accessDenied(principal.ARN(), action, req.Resource())
	}
	if result != PermissionPermitted {
		return outcome, a.errors.accessDenied(principal.ARN(), action, req.Resource())
	}

	return outcome, nil
}

// ParseCredentialScope extracts the access key id, date, region, and service
// from the Credential= component of a SigV4 Authorization header.
func ParseCredentialScope(authHeader string) (CredentialScope, error) {
	credential := stringBetween(constants.AuthCredentialMarker, ",", authHeader)
	if credential == "" {
		return CredentialScope{}, missingAuthenticationToken()
	}
	parts := strings.Split(credential, "/")
	if len(parts) < 4 {
		return CredentialScope{}, missingAuthenticationToken()
	}
	return CredentialScope{
		AccessKeyID: parts[0],
		Date:        parts[1],
		Region:      parts[2],
		Service:     parts[3],
	}, nil
}
