package app

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// minVaultKeyBytes is the shortest master key accepted for sealing node secrets.
const minVaultKeyBytes = 16

// DecodeKey decodes a key given as hex or base64. Values that are neither are
// used as raw bytes.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, fmt.Errorf("key value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		if decoded, err := enc.DecodeString(v); err == nil {
			return decoded, nil
		}
	}
	return []byte(v), nil
}

// MasterKey returns the decoded vault master key.
func (c VaultConfig) MasterKey() ([]byte, error) {
	key, err := DecodeKey(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("vault.encryption_key: %w", err)
	}
	if len(key) < minVaultKeyBytes {
		return nil, fmt.Errorf("vault.encryption_key: must decode to at least %d bytes, got %d", minVaultKeyBytes, len(key))
	}
	return key, nil
}
