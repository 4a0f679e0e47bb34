package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/engageflow/internal/app"
	iauth "github.com/charlesng35/engageflow/internal/auth"
	testutil "github.com/charlesng35/engageflow/internal/database/testutil"
	"github.com/charlesng35/engageflow/internal/models"
)

const strongSecret = "0123456789abcdef0123456789abcdef0123456789abcdef"

func findCheck(t *testing.T, result Result, id string) Check {
	t.Helper()
	for _, check := range result.Checks {
		if check.ID == id {
			return check
		}
	}
	t.Fatalf("check %s not reported", id)
	return Check{}
}

func TestAuditServiceRun(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	company := testutil.MustCreateCompany(t, db, "Acme")
	require.NoError(t, db.Create(&models.User{
		CompanyID: company.ID,
		Name:      "Admin",
		Email:     "admin@example.com",
		Password:  "hashed",
		Profile:   models.ProfileAdmin,
		IsActive:  true,
	}).Error)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: strongSecret, Issuer: "test-suite", AccessTokenTTL: time.Hour})
	require.NoError(t, err)

	cfg := &app.Config{
		Vault: app.VaultConfig{EncryptionKey: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"},
		Auth:  app.AuthConfig{JWT: app.JWTSettings{Secret: strongSecret, TTL: time.Hour}},
		Gateway: app.GatewayConfig{
			Driver:  "http",
			BaseURL: "https://wa.example.com",
			Token:   "gateway-token",
		},
	}

	svc := NewAuditService(db, jwtSvc, cfg)
	fixed := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	result := svc.Run(context.Background())
	require.Equal(t, fixed, result.CheckedAt)
	require.Len(t, result.Checks, 6)
	require.Equal(t, 6, result.Summary[string(StatusPass)], result.Checks)
	require.False(t, result.Failed())
}

func TestAuditServiceDetectsCompanyWithoutAdmin(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	company := testutil.MustCreateCompany(t, db, "Acme")
	require.NoError(t, db.Create(&models.User{
		CompanyID: company.ID,
		Name:      "Agent",
		Email:     "agent@example.com",
		Password:  "hashed",
		Profile:   models.ProfileUser,
		IsActive:  true,
	}).Error)

	result := NewAuditService(db, nil, &app.Config{}).Run(context.Background())

	admin := findCheck(t, result, CheckAdminPresent)
	require.Equal(t, StatusFail, admin.Status)
	require.Contains(t, admin.Message, "1 of 1")
	require.True(t, result.Failed())

	require.Equal(t, StatusWarn, findCheck(t, result, CheckJWTSecret).Status)
	require.Equal(t, StatusFail, findCheck(t, result, CheckVaultKey).Status)
	require.Equal(t, StatusWarn, findCheck(t, result, CheckAccessTokenTTL).Status)
	require.Equal(t, StatusWarn, findCheck(t, result, CheckGateway).Status)
}

func TestAuditServiceFlagsWeakWebhookTokens(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	require.NoError(t, db.Create(&models.Company{Name: "Legacy", Timezone: "UTC", WebhookToken: "short"}).Error)

	result := NewAuditService(db, nil, nil).Run(context.Background())
	check := findCheck(t, result, CheckWebhookTokens)
	require.Equal(t, StatusFail, check.Status)
	require.Equal(t, map[string]any{"weak": int64(1)}, check.Details)
}

func TestAuditServiceWithoutDependencies(t *testing.T) {
	result := NewAuditService(nil, nil, nil).Run(context.Background())
	require.Len(t, result.Checks, 6)
	require.Equal(t, 6, result.Summary[string(StatusWarn)])
}

func TestAuditJWTSecretThresholds(t *testing.T) {
	short, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "too-short"})
	require.NoError(t, err)
	require.Equal(t, StatusFail, NewAuditService(nil, short, nil).checkJWTSecret().Status)

	medium, err := iauth.NewJWTService(iauth.JWTConfig{Secret: strongSecret[:40]})
	require.NoError(t, err)
	require.Equal(t, StatusWarn, NewAuditService(nil, medium, nil).checkJWTSecret().Status)
}

func TestAuditGatewayDrivers(t *testing.T) {
	check := func(gw app.GatewayConfig) CheckStatus {
		return NewAuditService(nil, nil, &app.Config{Gateway: gw}).checkGateway().Status
	}
	require.Equal(t, StatusWarn, check(app.GatewayConfig{Driver: "log"}))
	require.Equal(t, StatusWarn, check(app.GatewayConfig{Driver: "http", BaseURL: "http://wa.internal", Token: "t"}))
	require.Equal(t, StatusWarn, check(app.GatewayConfig{Driver: "http", BaseURL: "https://wa.example.com"}))
	require.Equal(t, StatusFail, check(app.GatewayConfig{Driver: "pigeon"}))
}
