package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/engageflow/internal/database"
)

func TestApplyRuntimeDefaultsGeneratesMissingSecrets(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)

	require.NotEmpty(t, cfg.Auth.JWT.Secret)
	require.Len(t, cfg.Vault.EncryptionKey, vaultSecretBytes*2)
	require.Equal(t, map[string]bool{
		database.JWTSecretSetting:          true,
		database.VaultEncryptionKeySetting: true,
	}, generated)

	key, err := DecodeKey(cfg.Vault.EncryptionKey)
	require.NoError(t, err)
	require.Len(t, key, vaultSecretBytes)
}

func TestApplyRuntimeDefaultsPreservesExistingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = strings.Repeat("a", 10)
	cfg.Vault.EncryptionKey = strings.Repeat("b", 10)

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, strings.Repeat("a", 10), cfg.Auth.JWT.Secret)
}

func TestApplyRuntimeDefaultsFillsOnlyMissingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = "configured"
	cfg.Vault.EncryptionKey = "   "

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{database.VaultEncryptionKeySetting: true}, generated)
	require.Equal(t, "configured", cfg.Auth.JWT.Secret)
	require.Len(t, cfg.Vault.EncryptionKey, vaultSecretBytes*2)
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	require.ErrorContains(t, err, "config is nil")
}

func TestGenerateHexKey(t *testing.T) {
	key, err := generateHexKey(4)
	require.NoError(t, err)
	require.Len(t, key, 8)

	_, err = generateHexKey(0)
	require.Error(t, err)
}
