package directory

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"nimbus/internal/constants"
)

const (
	keyIDAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	secretAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz+/"
)

// GenerateAccessKeyID mints a new access key id with the given prefix
// (AKIA for long-term user keys, ASIA for assumed-role session keys).
func GenerateAccessKeyID(prefix string) (string, error) {
	suffix, err := randomString(keyIDAlphabet, constants.AccessKeyIDRandomLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate access key id: %w", err)
	}
	return prefix + suffix, nil
}

// GenerateSecretAccessKey mints a new secret.
func GenerateSecretAccessKey() (string, error) {
	secret, err := randomString(secretAlphabet, constants.SecretAccessKeyLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate secret access key: %w", err)
	}
	return secret, nil
}

// GenerateSessionToken mints an opaque session token for an assumed role.
func GenerateSessionToken() (string, error) {
	token, err := randomString(secretAlphabet, constants.SessionTokenBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return token, nil
}

func randomString(alphabet string, length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
