package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/api"
	"github.com/charlesng35/engageflow/internal/app"
	"github.com/charlesng35/engageflow/internal/app/maintenance"
	iauth "github.com/charlesng35/engageflow/internal/auth"
	"github.com/charlesng35/engageflow/internal/cache"
	"github.com/charlesng35/engageflow/internal/database"
	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/middleware"
	"github.com/charlesng35/engageflow/internal/monitoring"
	"github.com/charlesng35/engageflow/internal/monitoring/checks"
	"github.com/charlesng35/engageflow/internal/realtime"
	"github.com/charlesng35/engageflow/internal/security"
	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/internal/vault"
	"github.com/charlesng35/engageflow/pkg/logger"
	"github.com/charlesng35/engageflow/pkg/mail"
)

const (
	databaseProbeTimeout = 3 * time.Second
	schedulerProbeMaxAge = 26 * time.Hour
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Services  *services.Set
	Engine    *flow.Engine
	Hub       *realtime.Hub
	Scheduler *maintenance.Scheduler
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, services, the flow engine, the
// background scheduler and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, generated map[string]bool, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := resolveSecrets(ctx, stack.DB, cfg, generated, log); err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	masterKey, err := cfg.Vault.MasterKey()
	if err != nil {
		return nil, err
	}
	vaultCrypto, err := vault.NewCrypto(masterKey)
	if err != nil {
		return nil, fmt.Errorf("initialise vault crypto: %w", err)
	}

	var mailer mail.Mailer
	if smtp := cfg.Email.SMTPSettings(); smtp.Enabled {
		if mailer, err = mail.NewSMTPMailer(smtp); err != nil {
			return nil, fmt.Errorf("initialise smtp mailer: %w", err)
		}
	} else {
		log.Info("smtp disabled or host missing; queued emails stay pending")
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	stack.Services, err = services.NewSet(stack.DB, services.SetConfig{
		GraphCache:       dbStore,
		GraphCacheTTL:    cfg.Engine.GraphCacheTTL,
		Vault:            vaultCrypto,
		Mailer:           mailer,
		EmailMaxAttempts: cfg.Email.MaxAttempts,
		EmailRetryDelay:  cfg.Email.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	sender, err := cfg.Gateway.NewSender()
	if err != nil {
		return nil, fmt.Errorf("initialise gateway: %w", err)
	}

	stack.Hub = realtime.NewHub(cfg.Server.CORSOrigins...)

	engineOpts := append([]flow.Option{flow.WithPublisher(stack.Hub)}, cfg.Engine.EngineOptions()...)
	stack.Engine, err = flow.NewEngine(stack.DB, stack.Services.EngineDependencies(sender), engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise flow engine: %w", err)
	}

	schedulerOpts := []maintenance.Option{
		maintenance.WithCachePurger(dbStore),
		maintenance.WithRetentionDays(cfg.Engine.LogRetentionDays),
		maintenance.WithSchedules(maintenance.Schedules{
			Sweep:     cfg.Engine.SweepSchedule,
			Resume:    cfg.Engine.ResumeSchedule,
			Email:     cfg.Engine.EmailSchedule,
			Retention: cfg.Engine.RetentionSchedule,
		}),
	}
	if mailer != nil {
		schedulerOpts = append(schedulerOpts, maintenance.WithOutbox(stack.Services.Emails, cfg.Email.BatchSize))
	}
	stack.Scheduler = maintenance.NewScheduler(stack.DB, stack.Engine, schedulerOpts...)
	if err := stack.Scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	health := monitoring.NewHealthManager(monitoring.WithProbeTimeout(cfg.Monitoring.Health.ProbeTimeout))
	health.RegisterLiveness(checks.Scheduler(stack.Scheduler.Tracker(), schedulerProbeMaxAge))
	health.RegisterReadiness(checks.Database(stack.DB, databaseProbeTimeout))

	stack.RateStore = middleware.NewCacheRateStore(dbStore)

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:        stack.DB,
		Config:    cfg,
		JWT:       jwtSvc,
		Services:  stack.Services,
		Engine:    stack.Engine,
		Sender:    sender,
		Hub:       stack.Hub,
		Health:    health,
		RateStore: stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	logSecurityAudit(security.NewAuditService(stack.DB, jwtSvc, cfg).Run(ctx), log)

	success = true
	return stack, nil
}

func logSecurityAudit(result security.Result, log *zap.Logger) {
	for _, check := range result.Checks {
		if check.Status == security.StatusPass {
			continue
		}
		log.Warn("security audit",
			zap.String("check", check.ID),
			zap.String("status", string(check.Status)),
			zap.String("message", check.Message),
			zap.String("remediation", check.Remediation))
	}
}

// resolveSecrets persists generated secrets on first boot and reuses the stored
// values afterwards so sealed node secrets and issued tokens survive restarts.
func resolveSecrets(ctx context.Context, db *gorm.DB, cfg *app.Config, generated map[string]bool, log *zap.Logger) error {
	secrets := []struct {
		key   string
		value *string
	}{
		{database.JWTSecretSetting, &cfg.Auth.JWT.Secret},
		{database.VaultEncryptionKeySetting, &cfg.Vault.EncryptionKey},
	}
	for _, secret := range secrets {
		resolved, err := database.ResolveSecret(ctx, db, secret.key, *secret.value, generated[secret.key])
		if err != nil {
			return fmt.Errorf("resolve %s: %w", secret.key, err)
		}
		if generated[secret.key] {
			if resolved == *secret.value {
				log.Info("generated runtime secret", zap.String("key", secret.key))
			} else {
				log.Info("reusing stored runtime secret", zap.String("key", secret.key))
			}
		}
		*secret.value = resolved
	}
	return nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}

	if s.Hub != nil {
		s.Hub.Close()
	}

	if s.Scheduler != nil {
		select {
		case <-s.Scheduler.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
		s.Scheduler = nil
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
		s.DB = nil
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
