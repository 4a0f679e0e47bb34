package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/engageflow/internal/models"
)

// Setting keys for secrets generated at runtime.
const (
	VaultEncryptionKeySetting = "vault.encryption_key"
	JWTSecretSetting          = "auth.jwt.secret"
)

var errNilDB = errors.New("system settings: db is nil")

// GetSystemSetting returns the stored value for key, or "" when it is unset.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	setting, err := findSystemSetting(ctx, db, key)
	if err != nil || setting == nil {
		return "", err
	}
	return setting.Value, nil
}

func findSystemSetting(ctx context.Context, db *gorm.DB, key string) (*models.SystemSetting, error) {
	if db == nil {
		return nil, errNilDB
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Where("setting_key = ?", key).Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("system settings: get %q: %w", key, err)
	}
	return &setting, nil
}

// UpsertSystemSetting stores an operator-supplied value for key.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	return upsertSystemSetting(ctx, db, models.SystemSetting{Key: key, Value: value})
}

func upsertSystemSetting(ctx context.Context, db *gorm.DB, setting models.SystemSetting) error {
	if db == nil {
		return errNilDB
	}
	setting.Key = strings.TrimSpace(setting.Key)
	if setting.Key == "" {
		return errors.New("system settings: key is required")
	}

	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "generated", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", setting.Key, err)
	}
	return nil
}

// ResolveSecret reconciles a configured secret with the stored one. A secret
// generated for this process yields to a previously stored value so that
// encrypted node secrets and issued tokens survive restarts. An explicitly
// configured secret always wins and is stored.
func ResolveSecret(ctx context.Context, db *gorm.DB, key, candidate string, generated bool) (string, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", fmt.Errorf("system settings: %s is empty", key)
	}

	stored, err := findSystemSetting(ctx, db, key)
	if err != nil {
		return "", err
	}

	var current string
	if stored != nil {
		current = strings.TrimSpace(stored.Value)
	}
	if generated && current != "" {
		return current, nil
	}
	if current == candidate && stored.Generated == generated {
		return candidate, nil
	}
	setting := models.SystemSetting{Key: key, Value: candidate, Generated: generated}
	if err := upsertSystemSetting(ctx, db, setting); err != nil {
		return "", err
	}
	return candidate, nil
}
