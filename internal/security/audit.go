package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/app"
	iauth "github.com/charlesng35/engageflow/internal/auth"
	"github.com/charlesng35/engageflow/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check IDs reported by the audit.
const (
	CheckAdminPresent   = "admin_user_present"
	CheckJWTSecret      = "jwt_secret_strength"
	CheckVaultKey       = "vault_encryption_key"
	CheckAccessTokenTTL = "access_token_ttl"
	CheckWebhookTokens  = "webhook_token_strength"
	CheckGateway        = "gateway_delivery"
)

const (
	minJWTSecretBytes     = 32
	recommendedJWTBytes   = 48
	recommendedVaultBytes = 32
	minWebhookTokenLength = 32
	maxAccessTokenTTL     = 24 * time.Hour
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Failed reports whether any check failed.
func (r Result) Failed() bool {
	return r.Summary[string(StatusFail)] > 0
}

// AuditService evaluates the deployment's security posture: signing and
// sealing keys, tenant administration and message delivery.
type AuditService struct {
	db  *gorm.DB
	jwt *iauth.JWTService
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. All dependencies are optional; missing
// inputs degrade specific checks to warnings.
func NewAuditService(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config) *AuditService {
	return &AuditService{
		db:  db,
		jwt: jwt,
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the clock used in results.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkAdminPresent(ctx),
		s.checkJWTSecret(),
		s.checkVaultKey(),
		s.checkAccessTokenTTL(),
		s.checkWebhookTokens(ctx),
		s.checkGateway(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *AuditService) checkAdminPresent(ctx context.Context) Check {
	if s.db == nil {
		return Check{
			ID:          CheckAdminPresent,
			Status:      StatusWarn,
			Message:     "Database unavailable, unable to confirm company administrators.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var companies int64
	if err := s.db.WithContext(ctx).Model(&models.Company{}).Count(&companies).Error; err != nil {
		return dbWarning(CheckAdminPresent, err)
	}
	if companies == 0 {
		return Check{
			ID:          CheckAdminPresent,
			Status:      StatusWarn,
			Message:     "System is not initialised; no companies exist.",
			Remediation: "Run the setup wizard to create the first company and administrator.",
		}
	}

	admins := s.db.Model(&models.User{}).
		Select("1").
		Where("users.company_id = companies.id AND users.profile = ? AND users.is_active = ?", models.ProfileAdmin, true)

	var orphaned int64
	if err := s.db.WithContext(ctx).
		Model(&models.Company{}).
		Where("NOT EXISTS (?)", admins).
		Count(&orphaned).Error; err != nil {
		return dbWarning(CheckAdminPresent, err)
	}

	if orphaned > 0 {
		return Check{
			ID:          CheckAdminPresent,
			Status:      StatusFail,
			Message:     fmt.Sprintf("%d of %d companies have no active administrator.", orphaned, companies),
			Remediation: "Promote or create an active admin user in every company.",
			Details:     map[string]any{"companies": companies, "without_admin": orphaned},
		}
	}
	return Check{
		ID:      CheckAdminPresent,
		Status:  StatusPass,
		Message: "Every company has an active administrator.",
		Details: map[string]any{"companies": companies},
	}
}

func (s *AuditService) checkJWTSecret() Check {
	if s.jwt == nil {
		return Check{
			ID:          CheckJWTSecret,
			Status:      StatusWarn,
			Message:     "JWT service not initialised, unable to assess signing secret strength.",
			Remediation: "Initialise the JWT service with a strong secret.",
		}
	}

	length := s.jwt.SecretLength()
	switch {
	case length == 0:
		return Check{
			ID:          CheckJWTSecret,
			Status:      StatusFail,
			Message:     "Missing JWT signing secret.",
			Remediation: fmt.Sprintf("Provide a cryptographically secure signing secret (>= %d bytes).", minJWTSecretBytes),
		}
	case length < minJWTSecretBytes:
		return Check{
			ID:          CheckJWTSecret,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: fmt.Sprintf("Use a randomly generated secret of at least %d bytes.", minJWTSecretBytes),
			Details:     map[string]any{"length": length},
		}
	case length < recommendedJWTBytes:
		return Check{
			ID:          CheckJWTSecret,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider increasing to %d+ bytes.", length, recommendedJWTBytes),
			Remediation: "Increase the length of ENGAGEFLOW_AUTH_JWT_SECRET.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      CheckJWTSecret,
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *AuditService) checkVaultKey() Check {
	if s.cfg == nil {
		return configMissing(CheckVaultKey)
	}

	if strings.TrimSpace(s.cfg.Vault.EncryptionKey) == "" {
		return Check{
			ID:          CheckVaultKey,
			Status:      StatusFail,
			Message:     "Vault encryption key is not configured; node secrets cannot be sealed.",
			Remediation: "Set ENGAGEFLOW_VAULT_ENCRYPTION_KEY to a 32+ byte random value.",
		}
	}

	key, err := s.cfg.Vault.MasterKey()
	if err != nil {
		return Check{
			ID:          CheckVaultKey,
			Status:      StatusFail,
			Message:     fmt.Sprintf("Vault encryption key is unusable: %v", err),
			Remediation: "Use a hex or base64 encoded key of at least 32 bytes.",
		}
	}
	if len(key) < recommendedVaultBytes {
		return Check{
			ID:          CheckVaultKey,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Vault encryption key is %d bytes.", len(key)),
			Remediation: fmt.Sprintf("Use a key of at least %d bytes for AES-256-GCM.", recommendedVaultBytes),
			Details:     map[string]any{"length": len(key)},
		}
	}
	return Check{
		ID:      CheckVaultKey,
		Status:  StatusPass,
		Message: "Vault encryption key configured.",
		Details: map[string]any{"length": len(key)},
	}
}

func (s *AuditService) checkAccessTokenTTL() Check {
	if s.cfg == nil {
		return configMissing(CheckAccessTokenTTL)
	}

	ttl := s.cfg.Auth.JWT.TTL
	if ttl <= 0 {
		return Check{
			ID:          CheckAccessTokenTTL,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Access token TTL is not configured; using default %s.", iauth.DefaultAccessTokenTTL),
			Remediation: "Set ENGAGEFLOW_AUTH_JWT_ACCESS_TOKEN_TTL to control agent session lifetime.",
		}
	}
	if ttl > maxAccessTokenTTL {
		return Check{
			ID:          CheckAccessTokenTTL,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Access token TTL (%s) exceeds recommended maximum (%s).", ttl, maxAccessTokenTTL),
			Remediation: "Reduce the access token TTL to limit exposure of leaked tokens.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}
	return Check{
		ID:      CheckAccessTokenTTL,
		Status:  StatusPass,
		Message: fmt.Sprintf("Access token TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

func (s *AuditService) checkWebhookTokens(ctx context.Context) Check {
	if s.db == nil {
		return Check{
			ID:          CheckWebhookTokens,
			Status:      StatusWarn,
			Message:     "Database unavailable, unable to inspect webhook tokens.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var weak int64
	if err := s.db.WithContext(ctx).
		Model(&models.Company{}).
		Where("LENGTH(webhook_token) < ?", minWebhookTokenLength).
		Count(&weak).Error; err != nil {
		return dbWarning(CheckWebhookTokens, err)
	}
	if weak > 0 {
		return Check{
			ID:          CheckWebhookTokens,
			Status:      StatusFail,
			Message:     fmt.Sprintf("%d companies use webhook tokens shorter than %d characters.", weak, minWebhookTokenLength),
			Remediation: "Rotate the affected webhook tokens from the company settings.",
			Details:     map[string]any{"weak": weak},
		}
	}
	return Check{
		ID:      CheckWebhookTokens,
		Status:  StatusPass,
		Message: "Webhook tokens meet the minimum length.",
	}
}

func (s *AuditService) checkGateway() Check {
	if s.cfg == nil {
		return configMissing(CheckGateway)
	}

	gw := s.cfg.Gateway
	switch strings.ToLower(strings.TrimSpace(gw.Driver)) {
	case "", "log":
		return Check{
			ID:          CheckGateway,
			Status:      StatusWarn,
			Message:     "Outbound WhatsApp messages are only logged, not delivered.",
			Remediation: "Set gateway.driver to http and point gateway.base_url at the WhatsApp gateway.",
		}
	case "http":
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(gw.BaseURL)), "https://") {
			return Check{
				ID:          CheckGateway,
				Status:      StatusWarn,
				Message:     "Gateway base URL does not use HTTPS.",
				Remediation: "Serve the WhatsApp gateway over TLS.",
				Details:     map[string]any{"base_url": gw.BaseURL},
			}
		}
		if strings.TrimSpace(gw.Token) == "" {
			return Check{
				ID:          CheckGateway,
				Status:      StatusWarn,
				Message:     "Gateway requests are sent without a bearer token.",
				Remediation: "Set gateway.token to authenticate against the WhatsApp gateway.",
			}
		}
		return Check{
			ID:      CheckGateway,
			Status:  StatusPass,
			Message: "Outbound messages are delivered through an authenticated HTTPS gateway.",
		}
	default:
		return Check{
			ID:          CheckGateway,
			Status:      StatusFail,
			Message:     fmt.Sprintf("Unsupported gateway driver %q.", gw.Driver),
			Remediation: "Use the log or http gateway driver.",
		}
	}
}

func dbWarning(id string, err error) Check {
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     fmt.Sprintf("Database query failed: %v", err),
		Remediation: "Retry after resolving database errors.",
	}
}

func configMissing(id string) Check {
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Configuration not loaded, unable to evaluate this control.",
		Remediation: "Load configuration before running the security audit.",
	}
}
