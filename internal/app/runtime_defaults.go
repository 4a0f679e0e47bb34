package app

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/engageflow/internal/database"
	"github.com/charlesng35/engageflow/pkg/crypto"
)

const (
	jwtSecretBytes   = 48
	vaultSecretBytes = 32
)

// runtimeSecret is a config value the server may generate on first boot.
// key is the system setting the value is persisted under.
type runtimeSecret struct {
	key      string
	target   func(*Config) *string
	generate func() (string, error)
}

var runtimeSecrets = []runtimeSecret{
	{
		key:      database.JWTSecretSetting,
		target:   func(c *Config) *string { return &c.Auth.JWT.Secret },
		generate: func() (string, error) { return crypto.GenerateToken(jwtSecretBytes) },
	},
	{
		key:      database.VaultEncryptionKeySetting,
		target:   func(c *Config) *string { return &c.Vault.EncryptionKey },
		generate: func() (string, error) { return generateHexKey(vaultSecretBytes) },
	},
}

// ApplyRuntimeDefaults fills unset secrets so a fresh install can boot. The
// returned set names the generated values by system setting key; the server
// later swaps them for previously stored ones so restarts keep working.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	generated := make(map[string]bool)
	for _, secret := range runtimeSecrets {
		value := secret.target(cfg)
		if strings.TrimSpace(*value) != "" {
			continue
		}
		fresh, err := secret.generate()
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", secret.key, err)
		}
		*value = fresh
		generated[secret.key] = true
	}
	return generated, nil
}

func generateHexKey(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
