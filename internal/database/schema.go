package database

// GetDirectorySchema returns the DDL for the identity/policy directory and
// the audit trail. All timestamps are unix seconds.
func GetDirectorySchema() string {
	return `
CREATE TABLE IF NOT EXISTS iam_users (
	name TEXT PRIMARY KEY,
	path TEXT NOT NULL DEFAULT '/',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS iam_access_keys (
	access_key_id TEXT PRIMARY KEY,
	secret_access_key TEXT NOT NULL,
	user_name TEXT NOT NULL REFERENCES iam_users(name) ON DELETE CASCADE,
	status TEXT NOT NULL DEFAULT 'Active',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_access_keys_user ON iam_access_keys(user_name);

CREATE TABLE IF NOT EXISTS iam_login_profiles (
	user_name TEXT PRIMARY KEY REFERENCES iam_users(name) ON DELETE CASCADE,
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS iam_groups (
	name TEXT PRIMARY KEY,
	path TEXT NOT NULL DEFAULT '/',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS iam_group_members (
	group_name TEXT NOT NULL REFERENCES iam_groups(name) ON DELETE CASCADE,
	user_name TEXT NOT NULL REFERENCES iam_users(name) ON DELETE CASCADE,
	PRIMARY KEY (group_name, user_name)
);

CREATE TABLE IF NOT EXISTS iam_roles (
	name TEXT PRIMARY KEY,
	path TEXT NOT NULL DEFAULT '/',
	assume_role_policy TEXT,
	created_at INTEGER NOT NULL
);

-- Inline policies scoped to one parent (user, group, or role).
CREATE TABLE IF NOT EXISTS iam_inline_policies (
	parent_kind TEXT NOT NULL, -- 'user', 'group', 'role'
	parent_name TEXT NOT NULL,
	policy_name TEXT NOT NULL,
	document TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (parent_kind, parent_name, policy_name)
);

-- Managed policies with versioned documents; exactly one default version.
CREATE TABLE IF NOT EXISTS iam_managed_policies (
	name TEXT PRIMARY KEY,
	arn TEXT NOT NULL UNIQUE,
	path TEXT NOT NULL DEFAULT '/',
	default_version TEXT NOT NULL DEFAULT 'v1',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS iam_policy_versions (
	policy_name TEXT NOT NULL REFERENCES iam_managed_policies(name) ON DELETE CASCADE,
	version_id TEXT NOT NULL,
	document TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (policy_name, version_id)
);

CREATE TABLE IF NOT EXISTS iam_policy_attachments (
	policy_name TEXT NOT NULL REFERENCES iam_managed_policies(name) ON DELETE CASCADE,
	target_kind TEXT NOT NULL, -- 'user', 'group', 'role'
	target_name TEXT NOT NULL,
	PRIMARY KEY (policy_name, target_kind, target_name)
);

CREATE TABLE IF NOT EXISTS sts_assumed_roles (
	session_id TEXT PRIMARY KEY,
	access_key_id TEXT NOT NULL UNIQUE,
	secret_access_key TEXT NOT NULL,
	session_token TEXT NOT NULL,
	role_name TEXT NOT NULL REFERENCES iam_roles(name) ON DELETE CASCADE,
	session_name TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assumed_roles_key ON sts_assumed_roles(access_key_id);

-- Append-only authentication decision trail with a running hash chain.
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	request_id TEXT NOT NULL,
	flavor TEXT NOT NULL,
	principal_arn TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL DEFAULT '',
	resource TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	error_code TEXT NOT NULL DEFAULT '',
	entry_hash TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_outcome ON audit_log(outcome);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
`
}
