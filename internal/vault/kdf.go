package vault

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// sealingKeyLength selects AES-256 for node secrets.
	sealingKeyLength  = 32
	defaultSaltLength = 16
)

// saltLabel separates the node-secret key from anything else derived from the master key.
const saltLabel = "engageflow/node-secrets/v1"

// KDFParams controls the Argon2id cost of deriving the sealing key.
type KDFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKDFParams is used when the server derives its sealing key at boot.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 2, MemoryKiB: 64 * 1024, Threads: 4}
}

// Validate reports parameters Argon2id would reject or that are trivially weak.
func (p KDFParams) Validate() error {
	switch {
	case p.Time == 0:
		return fmt.Errorf("vault kdf: time cost must be greater than zero")
	case p.Threads == 0:
		return fmt.Errorf("vault kdf: parallelism must be greater than zero")
	case p.MemoryKiB < 8*uint32(p.Threads):
		return fmt.Errorf("vault kdf: memory must be at least 8 KiB per thread")
	}
	return nil
}

// defaultSalt binds the salt to the master key so every installation derives a
// distinct key without storing a separate salt.
func defaultSalt(masterKey []byte) []byte {
	h := sha256.New()
	h.Write([]byte(saltLabel))
	h.Write(masterKey)
	return h.Sum(nil)[:defaultSaltLength]
}

func deriveSealingKey(masterKey, salt []byte, params KDFParams) ([]byte, error) {
	if len(masterKey) == 0 {
		return nil, fmt.Errorf("vault kdf: master key is required")
	}
	if len(salt) < defaultSaltLength {
		return nil, fmt.Errorf("vault kdf: salt must be at least %d bytes (got %d)", defaultSaltLength, len(salt))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(masterKey, salt, params.Time, params.MemoryKiB, params.Threads, sealingKeyLength), nil
}
