package auth

import (
	"fmt"
	"net/http"
	"strings"

	"nimbus/internal/constants"
	"nimbus/internal/directory"
)

// Principal is the resolved identity behind a request: an IAM user holding a
// long-term key, or an assumed-role session holding transient credentials.
type Principal interface {
	// ARN identifies the principal in error messages and audit entries.
	ARN() string
	// Credentials returns the secret material for signature recomputation.
	Credentials() Credentials
	// CollectPolicies gathers every policy document attached to the
	// principal, directly or through group membership. Lookup failures
	// propagate; they are never treated as "no policies".
	CollectPolicies() ([]PolicySource, error)
}

// ResolvePrincipal maps an access key id plus request headers to a typed
// principal. A key with the long-term prefix, or any request without a
// security token header, resolves as an IAM user; everything else resolves
// as an assumed role.
func ResolvePrincipal(dir IdentityDirectory, sessions SessionDirectory, accountID, accessKeyID string, headers http.Header) (Principal, error) {
	if strings.HasPrefix(accessKeyID, constants.LongTermKeyPrefix) ||
		headers.Get(constants.HeaderAmzSecurityToken) == "" {
		return resolveIAMUser(dir, accountID, accessKeyID, headers)
	}
	p, err := resolveAssumedRole(sessions, accessKeyID, headers)
	if err != nil {
		return nil, err
	}
	p.bindDirectory(dir)
	return p, nil
}

// ============================================================================
// IAM user principal
// ============================================================================

// IAMUserPrincipal is a user identified by one of its long-term access keys.
type IAMUserPrincipal struct {
	dir       IdentityDirectory
	accountID string
	userName  string
	key       Credentials
}

func resolveIAMUser(dir IdentityDirectory, accountID, accessKeyID string, headers http.Header) (*IAMUserPrincipal, error) {
	users, err := dir.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	for i := range users {
		for _, key := range users[i].AccessKeys {
			if key.AccessKeyID != accessKeyID {
				continue
			}
			// A long-term key must not travel with a session token.
			if headers.Get(constants.HeaderAmzSecurityToken) != "" {
				return nil, &ResolveFailure{Reason: ReasonInvalidToken}
			}
			return &IAMUserPrincipal{
				dir:       dir,
				accountID: accountID,
				userName:  users[i].Name,
				key: Credentials{
					AccessKeyID:     accessKeyID,
					SecretAccessKey: key.SecretAccessKey,
				},
			}, nil
		}
	}
	return nil, &ResolveFailure{Reason: ReasonInvalidID}
}

// ARN returns the user's identity ARN.
func (p *IAMUserPrincipal) ARN() string {
	return fmt.Sprintf(constants.UserARNFormat, p.accountID, p.userName)
}

// UserName returns the owning user's name.
func (p *IAMUserPrincipal) UserName() string {
	return p.userName
}

// Credentials returns the long-term key material.
func (p *IAMUserPrincipal) Credentials() Credentials {
	return p.key
}

// CollectPolicies gathers the user's inline policies, attached managed
// policies, and the inline and attached policies of every group the user
// belongs to.
func (p *IAMUserPrincipal) CollectPolicies() ([]PolicySource, error) {
	var policies []PolicySource

	inlineNames, err := p.dir.ListUserPolicies(p.userName)
	if err != nil {
		return nil, err
	}
	for _, name := range inlineNames {
		doc, err := p.dir.GetUserPolicy(p.userName, name)
		if err != nil {
			return nil, err
		}
		policies = append(policies, directory.InlinePolicy{Name: name, Document: doc})
	}

	attached, err := p.dir.ListAttachedUserPolicies(p.userName)
	if err != nil {
		return nil, err
	}
	for i := range attached {
		policies = append(policies, attached[i])
	}

	groups, err := p.dir.GroupsForUser(p.userName)
	if err != nil {
		return nil, err
	}
	for _, group := range groups {
		groupInline, err := p.dir.ListGroupPolicies(group.Name)
		if err != nil {
			return nil, err
		}
		for _, name := range groupInline {
			doc, err := p.dir.GetGroupPolicy(group.Name, name)
			if err != nil {
				return nil, err
			}
			policies = append(policies, directory.InlinePolicy{Name: name, Document: doc})
		}

		groupAttached, err := p.dir.ListAttachedGroupPolicies(group.Name)
		if err != nil {
			return nil, err
		}
		for i := range groupAttached {
			policies = append(policies, groupAttached[i])
		}
	}

	return policies, nil
}

// ============================================================================
// Assumed-role principal
// ============================================================================

// AssumedRolePrincipal is an active STS session identified by its transient
// access key.
type AssumedRolePrincipal struct {
	dir         IdentityDirectory
	arn         string
	roleName    string
	sessionName string
	key         Credentials
}

func resolveAssumedRole(sessions SessionDirectory, accessKeyID string, headers http.Header) (*AssumedRolePrincipal, error) {
	active, err := sessions.ActiveAssumedRoles()
	if err != nil {
		return nil, fmt.Errorf("failed to list assumed-role sessions: %w", err)
	}
	for i := range active {
		sess := &active[i]
		if sess.AccessKeyID != accessKeyID {
			continue
		}
		if headers.Get(constants.HeaderAmzSecurityToken) != sess.SessionToken {
			return nil, &ResolveFailure{Reason: ReasonInvalidToken}
		}
		return &AssumedRolePrincipal{
			arn:         sess.ARN,
			roleName:    sess.RoleName,
			sessionName: sess.SessionName,
			key: Credentials{
				AccessKeyID:     accessKeyID,
				SecretAccessKey: sess.SecretAccessKey,
				SessionToken:    sess.SessionToken,
			},
		}, nil
	}
	return nil, &ResolveFailure{Reason: ReasonInvalidID}
}

// bindDirectory attaches the identity directory used for policy collection.
// Resolution only needs the session directory, so this is wired afterwards
// by ResolvePrincipal's caller.
func (p *AssumedRolePrincipal) bindDirectory(dir IdentityDirectory) {
	p.dir = dir
}

// ARN returns the assumed-role session ARN.
func (p *AssumedRolePrincipal) ARN() string {
	return p.arn
}

// RoleName returns the underlying role's name.
func (p *AssumedRolePrincipal) RoleName() string {
	return p.roleName
}

// Credentials returns the session's transient key material, session token
// included.
func (p *AssumedRolePrincipal) Credentials() Credentials {
	return p.key
}

// CollectPolicies gathers the role's inline and attached managed policies.
// Roles have no group concept.
func (p *AssumedRolePrincipal) CollectPolicies() ([]PolicySource, error) {
	var policies []PolicySource

	inlineNames, err := p.dir.ListRolePolicies(p.roleName)
	if err != nil {
		return nil, err
	}
	for _, name := range inlineNames {
		doc, err := p.dir.GetRolePolicy(p.roleName, name)
		if err != nil {
			return nil, err
		}
		policies = append(policies, directory.InlinePolicy{Name: name, Document: doc})
	}

	attached, err := p.dir.ListAttachedRolePolicies(p.roleName)
	if err != nil {
		return nil, err
	}
	for i := range attached {
		policies = append(policies, attached[i])
	}

	return policies, nil
}
