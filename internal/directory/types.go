// Package directory implements the identity/policy directory: users, access
// keys, groups, roles, policy documents, and active assumed-role sessions.
// The auth engine consumes it as a read-only lookup service; the management
// API and the bootstrap path use the write surface.
package directory

import "fmt"

// User is an IAM user with its long-term access keys.
type User struct {
	Name       string      `json:"name"`
	Path       string      `json:"path"`
	ARN        string      `json:"arn"`
	CreatedAt  int64       `json:"created_at"`
	AccessKeys []AccessKey `json:"access_keys,omitempty"`
}

// AccessKey is a long-term id/secret pair owned by a user.
type AccessKey struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"-"`
	UserName        string `json:"user_name"`
	Status          string `json:"status"`
	CreatedAt       int64  `json:"created_at"`
}

// Group is an IAM group; users inherit its policies through membership.
type Group struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	ARN       string `json:"arn"`
	CreatedAt int64  `json:"created_at"`
}

// Role is an IAM role assumable through STS.
type Role struct {
	Name             string `json:"name"`
	Path             string `json:"path"`
	ARN              string `json:"arn"`
	AssumeRolePolicy string `json:"assume_role_policy,omitempty"`
	CreatedAt        int64  `json:"created_at"`
}

// InlinePolicy is a named policy document embedded in a user, group, or role.
type InlinePolicy struct {
	Name     string `json:"name"`
	Document string `json:"document"`
}

// PolicyDocument returns the JSON document of the inline policy.
func (p InlinePolicy) PolicyDocument() (string, error) {
	return p.Document, nil
}

// PolicyVersion is one version of a managed policy's document.
type PolicyVersion struct {
	VersionID string `json:"version_id"`
	Document  string `json:"document"`
	IsDefault bool   `json:"is_default"`
	CreatedAt int64  `json:"created_at"`
}

// ManagedPolicy is a standalone policy that can be attached to users,
// groups, and roles. Exactly one version is flagged default.
type ManagedPolicy struct {
	Name           string          `json:"name"`
	ARN            string          `json:"arn"`
	Path           string          `json:"path"`
	DefaultVersion string          `json:"default_version"`
	CreatedAt      int64           `json:"created_at"`
	Versions       []PolicyVersion `json:"versions,omitempty"`
}

// PolicyDocument returns the document of the default version.
func (p ManagedPolicy) PolicyDocument() (string, error) {
	for _, v := range p.Versions {
		if v.IsDefault {
			return v.Document, nil
		}
	}
	return "", fmt.Errorf("managed policy %s has no default version", p.Name)
}

// AssumedRoleSession is an active STS session with its transient credentials.
type AssumedRoleSession struct {
	SessionID       string `json:"session_id"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"-"`
	SessionToken    string `json:"-"`
	ARN             string `json:"arn"`
	RoleName        string `json:"role_name"`
	SessionName     string `json:"session_name"`
	ExpiresAt       int64  `json:"expires_at"`
	CreatedAt       int64  `json:"created_at"`
}
