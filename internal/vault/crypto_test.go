package vault

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCryptoEncryptDecrypt(t *testing.T) {
	vaultCrypto, err := NewCrypto([]byte("super-secret-master-key"))
	require.NoError(t, err)

	plaintext := []byte("Bearer abc")
	scope := SecretScope("flow-1", "http-1")
	ciphertext, err := vaultCrypto.Encrypt(plaintext, scope)
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)

	decrypted, err := vaultCrypto.Decrypt(ciphertext, scope)
	require.NoError(t, err)
	require.True(t, bytes.Equal(plaintext, decrypted))

	_, err = vaultCrypto.Decrypt(ciphertext, SecretScope("flow-1", "http-2"))
	require.Error(t, err)
}

func TestCryptoTamperingDetected(t *testing.T) {
	vaultCrypto, err := NewCrypto([]byte("super-secret-master-key"))
	require.NoError(t, err)

	ciphertext, err := vaultCrypto.Encrypt([]byte("header"), "scope")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01

	_, err = vaultCrypto.Decrypt(base64.StdEncoding.EncodeToString(raw), "scope")
	require.Error(t, err)
}

func TestSealAndOpenSecrets(t *testing.T) {
	vaultCrypto, err := NewCrypto([]byte("master"))
	require.NoError(t, err)

	scope := SecretScope("flow-1", "http-1")
	sealed, err := vaultCrypto.SealSecrets(scope, map[string]string{"Authorization": "Bearer xyz", "X-Api-Key": "k"})
	require.NoError(t, err)
	require.NotContains(t, sealed, "Bearer")

	_, err = vaultCrypto.OpenSecrets(SecretScope("flow-2", "http-1"), sealed)
	require.Error(t, err, "sealed secrets are bound to their node")

	opened, err := vaultCrypto.OpenSecrets(scope, sealed)
	require.NoError(t, err)
	require.Equal(t, "Bearer xyz", opened["Authorization"])
	require.Equal(t, []string{"Authorization", "X-Api-Key"}, SecretKeys(opened))

	empty, err := vaultCrypto.SealSecrets(scope, nil)
	require.NoError(t, err)
	require.Empty(t, empty)

	none, err := vaultCrypto.OpenSecrets(scope, "")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestSecretsDoNotOpenWithAnotherKey(t *testing.T) {
	first, err := NewCrypto([]byte("first"))
	require.NoError(t, err)
	second, err := NewCrypto([]byte("second"))
	require.NoError(t, err)

	sealed, err := first.SealSecrets("f/n", map[string]string{"token": "v"})
	require.NoError(t, err)

	_, err = second.OpenSecrets("f/n", sealed)
	require.Error(t, err)
}

func TestNewCryptoValidatesArgs(t *testing.T) {
	_, err := NewCrypto(nil)
	require.Error(t, err)

	master := []byte("master")
	_, err = NewCrypto(master, WithSalt([]byte("short")))
	require.Error(t, err)

	_, err = NewCrypto(master, WithKDFParams(KDFParams{Time: 1, MemoryKiB: 8, Threads: 4}))
	require.ErrorContains(t, err, "memory must be at least 8 KiB per thread")
}
