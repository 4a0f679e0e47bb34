package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/database"
	"github.com/charlesng35/engageflow/internal/models"
)

// TestDBOption customises the behaviour of MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate bool
}

// WithAutoMigrate enables automatic schema migration after opening the test database.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
	}
}

// MustOpenTestDB opens a private in-memory SQLite database for tests, applying optional migrations.
// The returned connection is automatically closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := database.Open(database.Config{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
		MaxOpenConns: 1,
	})
	require.NoError(t, err)

	if cfg.autoMigrate {
		require.NoError(t, database.AutoMigrate(db))
	}

	t.Cleanup(func() {
		_ = database.Close(db)
	})

	return db
}

// MustCreateCompany inserts a tenant with a unique webhook token.
func MustCreateCompany(t *testing.T, db *gorm.DB, name string) *models.Company {
	t.Helper()

	company := &models.Company{Name: name, Timezone: "UTC", WebhookToken: uuid.NewString()}
	require.NoError(t, db.Create(company).Error)
	return company
}

// MustCreateContact inserts a contact for the company.
func MustCreateContact(t *testing.T, db *gorm.DB, companyID, number, name string) *models.Contact {
	t.Helper()

	contact := &models.Contact{CompanyID: companyID, Number: number, Name: name}
	require.NoError(t, db.Create(contact).Error)
	return contact
}
