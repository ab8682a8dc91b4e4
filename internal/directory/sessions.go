package directory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nimbus/internal/constants"
)

// SessionStore tracks active assumed-role sessions and their transient
// credentials. It shares the directory database.
type SessionStore struct {
	db        *sql.DB
	accountID string
}

// NewSessionStore creates a session store backed by the given database.
func NewSessionStore(db *sql.DB, accountID string) *SessionStore {
	return &SessionStore{db: db, accountID: accountID}
}

// AssumeRole mints transient credentials for a role and records the session.
// The role must exist; the caller is responsible for having authorized the
// sts:AssumeRole action.
func (s *SessionStore) AssumeRole(roleName, sessionName string) (*AssumedRoleSession, error) {
	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM iam_roles WHERE name = ?", roleName).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up role: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("role %s: %w", roleName, ErrNotFound)
	}

	keyID, err := GenerateAccessKeyID(constants.TemporaryKeyPrefix)
	if err != nil {
		return nil, err
	}
	secret, err := GenerateSecretAccessKey()
	if err != nil {
		return nil, err
	}
	token, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	session := &AssumedRoleSession{
		SessionID:       uuid.NewString(),
		AccessKeyID:     keyID,
		SecretAccessKey: secret,
		SessionToken:    token,
		ARN:             fmt.Sprintf(constants.AssumedRoleARNFormat, s.accountID, roleName, sessionName),
		RoleName:        roleName,
		SessionName:     sessionName,
		ExpiresAt:       now + int64(constants.AssumedRoleSessionHours*3600),
		CreatedAt:       now,
	}

	_, err = s.db.Exec(`
		INSERT INTO sts_assumed_roles
			(session_id, access_key_id, secret_access_key, session_token, role_name, session_name, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, session.SessionID, session.AccessKeyID, session.SecretAccessKey,
		session.SessionToken, session.RoleName, session.SessionName,
		session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record assumed-role session: %w", err)
	}
	return session, nil
}

// ActiveAssumedRoles returns all unexpired sessions. The auth engine scans
// this list when resolving temporary credentials.
func (s *SessionStore) ActiveAssumedRoles() ([]AssumedRoleSession, error) {
	rows, err := s.db.Query(`
		SELECT session_id, access_key_id, secret_access_key, session_token,
		       role_name, session_name, expires_at, created_at
		FROM sts_assumed_roles WHERE expires_at > ?
		ORDER BY created_at ASC
	`, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list assumed-role sessions: %w", err)
	}
	defer rows.Close()

	var sessions []AssumedRoleSession
	for rows.Next() {
		var sess AssumedRoleSession
		if err := rows.Scan(&sess.SessionID, &sess.AccessKeyID, &sess.SecretAccessKey,
			&sess.SessionToken, &sess.RoleName, &sess.SessionName,
			&sess.ExpiresAt, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assumed-role session: %w", err)
		}
		sess.ARN = fmt.Sprintf(constants.AssumedRoleARNFormat, s.accountID, sess.RoleName, sess.SessionName)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// PurgeExpired removes sessions past their expiry.
func (s *SessionStore) PurgeExpired() (int64, error) {
	res, err := s.db.Exec("DELETE FROM sts_assumed_roles WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	return res.RowsAffected()
}
