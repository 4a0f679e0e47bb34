package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/charlesng35/engageflow/pkg/crypto"
)

// Redacted replaces secret values wherever they would otherwise be returned to clients.
const Redacted = "********"

// Crypto seals node secrets (webhook and API headers) with a key derived
// from the installation master key.
type Crypto struct {
	key []byte
}

type cryptoConfig struct {
	params KDFParams
	salt   []byte
}

// Option configures the vault crypto helper.
type Option func(*cryptoConfig)

// WithSalt overrides the salt used for Argon2 key derivation.
func WithSalt(salt []byte) Option {
	cp := append([]byte(nil), salt...)
	return func(cfg *cryptoConfig) {
		cfg.salt = cp
	}
}

// WithKDFParams overrides the Argon2id cost used during key derivation.
func WithKDFParams(params KDFParams) Option {
	return func(cfg *cryptoConfig) {
		cfg.params = params
	}
}

// NewCrypto derives the AES-256 sealing key from the installation master key using Argon2id.
func NewCrypto(masterKey []byte, opts ...Option) (*Crypto, error) {
	if len(masterKey) == 0 {
		return nil, errors.New("vault crypto: master key is required")
	}

	cfg := cryptoConfig{params: DefaultKDFParams()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.salt) == 0 {
		cfg.salt = defaultSalt(masterKey)
	}

	derived, err := deriveSealingKey(masterKey, cfg.salt, cfg.params)
	if err != nil {
		return nil, fmt.Errorf("vault crypto: derive key: %w", err)
	}

	return &Crypto{key: derived}, nil
}

// SecretScope names the node a sealed secret set belongs to. It is bound
// into the ciphertext so a sealed value copied onto another node or flow
// fails to open.
func SecretScope(flowID, nodeID string) string {
	return flowID + "/" + nodeID
}

// Encrypt seals plaintext under the derived key, authenticated to scope.
func (c *Crypto) Encrypt(plaintext []byte, scope string) (string, error) {
	if c == nil || len(c.key) == 0 {
		return "", errors.New("vault crypto: key is not initialised")
	}
	return crypto.Seal(c.key, plaintext, []byte(scope))
}

// Decrypt opens a payload sealed by Encrypt with the same scope.
func (c *Crypto) Decrypt(ciphertext, scope string) ([]byte, error) {
	if c == nil || len(c.key) == 0 {
		return nil, errors.New("vault crypto: key is not initialised")
	}
	return crypto.Open(c.key, ciphertext, []byte(scope))
}

// SealSecrets encrypts a set of named secrets. An empty set seals to "".
func (c *Crypto) SealSecrets(scope string, secrets map[string]string) (string, error) {
	if len(secrets) == 0 {
		return "", nil
	}
	payload, err := json.Marshal(secrets)
	if err != nil {
		return "", fmt.Errorf("vault crypto: encode secrets: %w", err)
	}
	return c.Encrypt(payload, scope)
}

// OpenSecrets reverses SealSecrets.
func (c *Crypto) OpenSecrets(scope, sealed string) (map[string]string, error) {
	if sealed == "" {
		return map[string]string{}, nil
	}
	payload, err := c.Decrypt(sealed, scope)
	if err != nil {
		return nil, fmt.Errorf("vault crypto: open secrets: %w", err)
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(payload, &secrets); err != nil {
		return nil, fmt.Errorf("vault crypto: decode secrets: %w", err)
	}
	return secrets, nil
}

// SecretKeys returns the sorted names of a secret set, for redacted listings.
func SecretKeys(secrets map[string]string) []string {
	keys := make([]string, 0, len(secrets))
	for key := range secrets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
