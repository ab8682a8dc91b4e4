package auth

import (
	"nimbus/internal/logger"
)

// PolicyEvaluator aggregates policy decisions across every document attached
// to a principal. An explicit deny in any document wins; absence of an allow
// is a deny.
type PolicyEvaluator struct {
	logger *logger.Logger
}

// NewPolicyEvaluator creates a new policy evaluator.
func NewPolicyEvaluator(log *logger.Logger) *PolicyEvaluator {
	return &PolicyEvaluator{logger: log}
}

// IsActionPermitted evaluates the action against all of the principal's
// policies. The result is never Neutral: default deny is applied here.
// Failures while collecting or parsing policies propagate to the caller
// rather than being treated as an empty policy set.
func (e *PolicyEvaluator) IsActionPermitted(principal Principal, action string) (PermissionResult, error) {
	policies, err := principal.CollectPolicies()
	if err != nil {
		return PermissionDenied, err
	}

	permitted := false
	for _, source := range policies {
		raw, err := source.PolicyDocument()
		if err != nil {
			return PermissionDenied, err
		}
		doc, err := ParseDocument(raw)
		if err != nil {
			return PermissionDenied, err
		}

		switch doc.IsActionPermitted(action) {
		case PermissionDenied:
			e.logger.Debug("Authz denied: principal=%s action=%s (explicit deny)", principal.ARN(), action)
			return PermissionDenied, nil
		case PermissionPermitted:
			permitted = true
		}
	}

	if !permitted {
		e.logger.Debug("Authz denied: principal=%s action=%s (no matching allow)", principal.ARN(), action)
		return PermissionDenied, nil
	}
	e.logger.Debug("Authz allowed: principal=%s action=%s", principal.ARN(), action)
	return PermissionPermitted, nil
}
