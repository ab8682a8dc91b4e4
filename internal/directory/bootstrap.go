package directory

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"nimbus/internal/logger"
)

// BootstrapResult carries the root credentials created on first start.
// The secret is shown once and never stored in plaintext logs.
type BootstrapResult struct {
	UserName        string
	AccessKeyID     string
	SecretAccessKey string
	SecretDigest    string // blake3 hex digest, safe to log
}

const bootstrapUserName = "root"

// adminPolicyDocument grants everything; attached to the bootstrap user so
// policy evaluation stays uniform (no bypass path for root).
const adminPolicyDocument = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"*","Resource":"*"}]}`

// Bootstrap creates the root user with an access key and an attached
// administrator policy when the directory is empty. Returns nil when users
// already exist.
func Bootstrap(store *Store, log *logger.Logger) (*BootstrapResult, error) {
	count, err := store.CountUsers()
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return nil, nil
	}

	if _, err := store.CreateUser(bootstrapUserName, "/"); err != nil {
		return nil, err
	}
	key, err := store.CreateAccessKey(bootstrapUserName)
	if err != nil {
		return nil, err
	}
	if _, err := store.CreatePolicy("AdministratorAccess", "/", adminPolicyDocument); err != nil {
		return nil, err
	}
	if err := store.AttachUserPolicy(bootstrapUserName, "AdministratorAccess"); err != nil {
		return nil, err
	}

	hasher := blake3.New()
	hasher.Write([]byte(key.SecretAccessKey))
	digest := hex.EncodeToString(hasher.Sum(nil))

	log.Info("Directory bootstrap: root user created, access key %s, secret digest %s",
		key.AccessKeyID, digest[:16])

	return &BootstrapResult{
		UserName:        bootstrapUserName,
		AccessKeyID:     key.AccessKeyID,
		SecretAccessKey: key.SecretAccessKey,
		SecretDigest:    digest,
	}, nil
}
