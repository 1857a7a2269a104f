package app

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/lockgate/pkg/crypto"
)

const (
	jwtSecretBytes   = 48
	vaultSecretBytes = 32
)

// ApplyRuntimeDefaults fills in secrets that can safely be generated per process.
// It returns the keys that were generated so callers can log the event without exposing values.
// A generated vault key only lives as long as the process, so callers should warn when it appears.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if strings.TrimSpace(cfg.Vault.EncryptionKey) == "" {
		key := make([]byte, vaultSecretBytes)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate vault encryption key: %w", err)
		}
		cfg.Vault.EncryptionKey = hex.EncodeToString(key)
		generated["vault.encryption_key"] = true
	}

	if strings.TrimSpace(cfg.MQTT.ClientID) == "" {
		suffix, err := crypto.GenerateToken(6)
		if err != nil {
			return nil, fmt.Errorf("generate mqtt client id: %w", err)
		}
		cfg.MQTT.ClientID = "lockgate-" + suffix
		generated["mqtt.client_id"] = true
	}

	return generated, nil
}
