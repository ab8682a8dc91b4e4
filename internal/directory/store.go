package directory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"nimbus/internal/constants"
)

// Sentinel errors for directory lookups.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
)

// Store provides database operations for the identity/policy directory.
type Store struct {
	db        *sql.DB
	accountID string
}

// NewStore creates a directory store backed by the given database.
func NewStore(db *sql.DB, accountID string) *Store {
	return &Store{db: db, accountID: accountID}
}

// AccountID returns the emulated account id.
func (s *Store) AccountID() string {
	return s.accountID
}

// ============================================================================
// Users and access keys
// ============================================================================

// CreateUser inserts a new user.
func (s *Store) CreateUser(name, path string) (*User, error) {
	if path == "" {
		path = "/"
	}
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO iam_users (name, path, created_at) VALUES (?, ?, ?)
	`, name, path, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", name, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &User{
		Name:      name,
		Path:      path,
		ARN:       fmt.Sprintf(constants.UserARNFormat, s.accountID, name),
		CreatedAt: now,
	}, nil
}

// GetUser retrieves a single user without access keys.
func (s *Store) GetUser(name string) (*User, error) {
	var u User
	err := s.db.QueryRow(`
		SELECT name, path, created_at FROM iam_users WHERE name = ?
	`, name).Scan(&u.Name, &u.Path, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.ARN = fmt.Sprintf(constants.UserARNFormat, s.accountID, u.Name)
	return &u, nil
}

// ListUsers returns all users with their access keys populated. The auth
// engine scans this flat list when resolving long-term credentials.
func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query(`
		SELECT name, path, created_at FROM iam_users ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Name, &u.Path, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.ARN = fmt.Sprintf(constants.UserARNFormat, s.accountID, u.Name)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range users {
		keys, err := s.accessKeysForUser(users[i].Name)
		if err != nil {
			return nil, err
		}
		users[i].AccessKeys = keys
	}
	return users, nil
}

// CountUsers returns the total number of users.
func (s *Store) CountUsers() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM iam_users").Scan(&count)
	return count, err
}

// CreateAccessKey mints and stores a new long-term access key for a user.
func (s *Store) CreateAccessKey(userName string) (*AccessKey, error) {
	if _, err := s.GetUser(userName); err != nil {
		return nil, err
	}

	keyID, err := GenerateAccessKeyID(constants.LongTermKeyPrefix)
	if err != nil {
		return nil, err
	}
	secret, err := GenerateSecretAccessKey()
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	_, err = s.db.Exec(`
		INSERT INTO iam_access_keys (access_key_id, secret_access_key, user_name, status, created_at)
		VALUES (?, ?, ?, 'Active', ?)
	`, keyID, secret, userName, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create access key: %w", err)
	}

	return &AccessKey{
		AccessKeyID:     keyID,
		SecretAccessKey: secret,
		UserName:        userName,
		Status:          "Active",
		CreatedAt:       now,
	}, nil
}

func (s *Store) accessKeysForUser(userName string) ([]AccessKey, error) {
	rows, err := s.db.Query(`
		SELECT access_key_id, secret_access_key, user_name, status, created_at
		FROM iam_access_keys WHERE user_name = ? ORDER BY created_at ASC
	`, userName)
	if err != nil {
		return nil, fmt.Errorf("failed to list access keys: %w", err)
	}
	defer rows.Close()

	var keys []AccessKey
	for rows.Next() {
		var k AccessKey
		if err := rows.Scan(&k.AccessKeyID, &k.SecretAccessKey, &k.UserName, &k.Status, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan access key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ============================================================================
// Login profiles (console passwords)
// ============================================================================

// CreateLoginProfile stores a bcrypt hash of the user's console password.
func (s *Store) CreateLoginProfile(userName, password string) error {
	if _, err := s.GetUser(userName); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), constants.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO iam_login_profiles (user_name, password_hash, created_at)
		VALUES (?, ?, ?)
	`, userName, string(hash), time.Now().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("login profile for %s: %w", userName, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create login profile: %w", err)
	}
	return nil
}

// VerifyLoginPassword checks a console password against the stored hash.
func (s *Store) VerifyLoginPassword(userName, password string) error {
	var hash string
	err := s.db.QueryRow(`
		SELECT password_hash FROM iam_login_profiles WHERE user_name = ?
	`, userName).Scan(&hash)
	if err == sql.ErrNoRows {
		return fmt.Errorf("login profile for %s: %w", userName, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get login profile: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// ============================================================================
// Groups
// ============================================================================

// CreateGroup inserts a new group.
func (s *Store) CreateGroup(name, path string) (*Group, error) {
	if path == "" {
		path = "/"
	}
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO iam_groups (name, path, created_at) VALUES (?, ?, ?)
	`, name, path, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("group %s: %w", name, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	return &Group{
		Name:      name,
		Path:      path,
		ARN:       fmt.Sprintf(constants.GroupARNFormat, s.accountID, name),
		CreatedAt: now,
	}, nil
}

// AddUserToGroup records group membership.
func (s *Store) AddUserToGroup(groupName, userName string) error {
	if _, err := s.GetUser(userName); err != nil {
		return err
	}
	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM iam_groups WHERE name = ?", groupName).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("group %s: %w", groupName, ErrNotFound)
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO iam_group_members (group_name, user_name) VALUES (?, ?)
	`, groupName, userName)
	if err != nil {
		return fmt.Errorf("failed to add user to group: %w", err)
	}
	return nil
}

// GroupsForUser returns every group the user belongs to.
func (s *Store) GroupsForUser(userName string) ([]Group, error) {
	rows, err := s.db.Query(`
		SELECT g.name, g.path, g.created_at
		FROM iam_groups g
		JOIN iam_group_members m ON m.group_name = g.name
		WHERE m.user_name = ?
		ORDER BY g.name ASC
	`, userName)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for user: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.Name, &g.Path, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.ARN = fmt.Sprintf(constants.GroupARNFormat, s.accountID, g.Name)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ============================================================================
// Roles
// ============================================================================

// CreateRole inserts a new role.
func (s *Store) CreateRole(name, path, assumeRolePolicy string) (*Role, error) {
	if path == "" {
		path = "/"
	}
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO iam_roles (name, path, assume_role_policy, created_at)
		VALUES (?, ?, ?, ?)
	`, name, path, assumeRolePolicy, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("role %s: %w", name, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	return &Role{
		Name:             name,
		Path:             path,
		ARN:              fmt.Sprintf(constants.RoleARNFormat, s.accountID, name),
		AssumeRolePolicy: assumeRolePolicy,
		CreatedAt:        now,
	}, nil
}

// GetRole retrieves a single role.
func (s *Store) GetRole(name string) (*Role, error) {
	var r Role
	var policy sql.NullString
	err := s.db.QueryRow(`
		SELECT name, path, assume_role_policy, created_at FROM iam_roles WHERE name = ?
	`, name).Scan(&r.Name, &r.Path, &policy, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	r.ARN = fmt.Sprintf(constants.RoleARNFormat, s.accountID, r.Name)
	if policy.Valid {
		r.AssumeRolePolicy = policy.String
	}
	return &r, nil
}

// ============================================================================
// Inline policies
// ============================================================================

// PutUserPolicy upserts an inline policy on a user.
func (s *Store) PutUserPolicy(userName, policyName, document string) error {
	if _, err := s.GetUser(userName); err != nil {
		return err
	}
	return s.putInlinePolicy("user", userName, policyName, document)
}

// PutGroupPolicy upserts an inline policy on a group.
func (s *Store) PutGroupPolicy(groupName, policyName, document string) error {
	return s.putInlinePolicy("group", groupName, policyName, document)
}

// PutRolePolicy upserts an inline policy on a role.
func (s *Store) PutRolePolicy(roleName, policyName, document string) error {
	if _, err := s.GetRole(roleName); err != nil {
		return err
	}
	return s.putInlinePolicy("role", roleName, policyName, document)
}

func (s *Store) putInlinePolicy(parentKind, parentName, policyName, document string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO iam_inline_policies (parent_kind, parent_name, policy_name, document, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, parentKind, parentName, policyName, document, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to put inline policy: %w", err)
	}
	return nil
}

// ListUserPolicies returns the inline policy names of a user.
func (s *Store) ListUserPolicies(userName string) ([]string, error) {
	return s.listInlinePolicyNames("user", userName)
}

// ListGroupPolicies returns the inline policy names of a group.
func (s *Store) ListGroupPolicies(groupName string) ([]string, error) {
	return s.listInlinePolicyNames("group", groupName)
}

// ListRolePolicies returns the inline policy names of a role.
func (s *Store) ListRolePolicies(roleName string) ([]string, error) {
	return s.listInlinePolicyNames("role", roleName)
}

func (s *Store) listInlinePolicyNames(parentKind, parentName string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT policy_name FROM iam_inline_policies
		WHERE parent_kind = ? AND parent_name = ?
		ORDER BY policy_name ASC
	`, parentKind, parentName)
	if err != nil {
		return nil, fmt.Errorf("failed to list inline policies: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan policy name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetUserPolicy returns one inline policy document of a user.
func (s *Store) GetUserPolicy(userName, policyName string) (string, error) {
	return s.getInlinePolicy("user", userName, policyName)
}

// GetGroupPolicy returns one inline policy document of a group.
func (s *Store) GetGroupPolicy(groupName, policyName string) (string, error) {
	return s.getInlinePolicy("group", groupName, policyName)
}

// GetRolePolicy returns one inline policy document of a role.
func (s *Store) GetRolePolicy(roleName, policyName string) (string, error) {
	return s.getInlinePolicy("role", roleName, policyName)
}

func (s *Store) getInlinePolicy(parentKind, parentName, policyName string) (string, error) {
	var document string
	err := s.db.QueryRow(`
		SELECT document FROM iam_inline_policies
		WHERE parent_kind = ? AND parent_name = ? AND policy_name = ?
	`, parentKind, parentName, policyName).Scan(&document)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("inline policy %s on %s %s: %w", policyName, parentKind, parentName, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get inline policy: %w", err)
	}
	return document, nil
}

// ============================================================================
// Managed policies
// ============================================================================

// CreatePolicy creates a managed policy with the document as version v1,
// flagged default.
func (s *Store) CreatePolicy(name, path, document string) (*ManagedPolicy, error) {
	if path == "" {
		path = "/"
	}
	now := time.Now().Unix()
	arn := fmt.Sprintf(constants.PolicyARNFormat, s.accountID, name)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO iam_managed_policies (name, arn, path, default_version, created_at)
		VALUES (?, ?, ?, 'v1', ?)
	`, name, arn, path, now); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("policy %s: %w", name, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create policy: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO iam_policy_versions (policy_name, version_id, document, created_at)
		VALUES (?, 'v1', ?, ?)
	`, name, document, now); err != nil {
		return nil, fmt.Errorf("failed to create policy version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &ManagedPolicy{
		Name:           name,
		ARN:            arn,
		Path:           path,
		DefaultVersion: "v1",
		CreatedAt:      now,
		Versions: []PolicyVersion{
			{VersionID: "v1", Document: document, IsDefault: true, CreatedAt: now},
		},
	}, nil
}

// GetManagedPolicy retrieves a managed policy with all its versions.
func (s *Store) GetManagedPolicy(name string) (*ManagedPolicy, error) {
	var p ManagedPolicy
	err := s.db.QueryRow(`
		SELECT name, arn, path, default_version, created_at
		FROM iam_managed_policies WHERE name = ?
	`, name).Scan(&p.Name, &p.ARN, &p.Path, &p.DefaultVersion, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("policy %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	if err := s.loadPolicyVersions(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) loadPolicyVersions(p *ManagedPolicy) error {
	rows, err := s.db.Query(`
		SELECT version_id, document, created_at FROM iam_policy_versions
		WHERE policy_name = ? ORDER BY version_id ASC
	`, p.Name)
	if err != nil {
		return fmt.Errorf("failed to list policy versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v PolicyVersion
		if err := rows.Scan(&v.VersionID, &v.Document, &v.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan policy version: %w", err)
		}
		v.IsDefault = v.VersionID == p.DefaultVersion
		p.Versions = append(p.Versions, v)
	}
	return rows.Err()
}

// AttachUserPolicy attaches a managed policy to a user.
func (s *Store) AttachUserPolicy(userName, policyName string) error {
	if _, err := s.GetUser(userName); err != nil {
		return err
	}
	return s.attachPolicy(policyName, "user", userName)
}

// AttachGroupPolicy attaches a managed policy to a group.
func (s *Store) AttachGroupPolicy(groupName, policyName string) error {
	return s.attachPolicy(policyName, "group", groupName)
}

// AttachRolePolicy attaches a managed policy to a role.
func (s *Store) AttachRolePolicy(roleName, policyName string) error {
	if _, err := s.GetRole(roleName); err != nil {
		return err
	}
	return s.attachPolicy(policyName, "role", roleName)
}

func (s *Store) attachPolicy(policyName, targetKind, targetName string) error {
	if _, err := s.GetManagedPolicy(policyName); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO iam_policy_attachments (policy_name, target_kind, target_name)
		VALUES (?, ?, ?)
	`, policyName, targetKind, targetName)
	if err != nil {
		return fmt.Errorf("failed to attach policy: %w", err)
	}
	return nil
}

// ListAttachedUserPolicies returns the managed policies attached to a user.
func (s *Store) ListAttachedUserPolicies(userName string) ([]ManagedPolicy, error) {
	return s.listAttachedPolicies("user", userName)
}

// ListAttachedGroupPolicies returns the managed policies attached to a group.
func (s *Store) ListAttachedGroupPolicies(groupName string) ([]ManagedPolicy, error) {
	return s.listAttachedPolicies("group", groupName)
}

// ListAttachedRolePolicies returns the managed policies attached to a role.
func (s *Store) ListAttachedRolePolicies(roleName string) ([]ManagedPolicy, error) {
	return s.listAttachedPolicies("role", roleName)
}

func (s *Store) listAttachedPolicies(targetKind, targetName string) ([]ManagedPolicy, error) {
	rows, err := s.db.Query(`
		SELECT policy_name FROM iam_policy_attachments
		WHERE target_kind = ? AND target_name = ?
		ORDER BY policy_name ASC
	`, targetKind, targetName)
	if err != nil {
		return nil, fmt.Errorf("failed to list attached policies: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var policies []ManagedPolicy
	for _, name := range names {
		p, err := s.GetManagedPolicy(name)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, nil
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// go-sqlite3 surfaces constraint violations in the error text; matching on
	// it avoids importing the driver's error types everywhere.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
