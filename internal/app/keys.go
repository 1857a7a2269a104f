package app

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrVaultKeyMissing is returned when no encryption key has been configured.
var ErrVaultKeyMissing = errors.New("vault.encryption_key is required")

// DecodeKey decodes a key from hex or base64 encoding to raw bytes.
// Hex is tried first, then padded and raw base64; anything else is used verbatim.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, errors.New("key value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}

	return []byte(v), nil
}

// KeyByteLength returns the decoded byte length of a key string, zero when blank.
func KeyByteLength(value string) (int, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	decoded, err := DecodeKey(value)
	if err != nil {
		return 0, err
	}
	return len(decoded), nil
}

// VaultKey decodes the configured encryption key and checks it is a valid AES key size.
func (c VaultConfig) VaultKey() ([]byte, error) {
	if strings.TrimSpace(c.EncryptionKey) == "" {
		return nil, ErrVaultKeyMissing
	}
	key, err := DecodeKey(c.EncryptionKey)
	if err != nil {
		return nil, err
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("vault.encryption_key must decode to 16, 24 or 32 bytes, got %d", len(key))
	}
}
