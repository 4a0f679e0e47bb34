//go:build integration

package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/cache"
	"github.com/charlesng35/engageflow/internal/database"
	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/gateway"
	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/internal/services"
)

func openPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("engageflow"),
		postgres.WithUsername("engageflow"),
		postgres.WithPassword("engageflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Open(database.Config{Driver: "postgres", DSN: dsn, MaxOpenConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

type recordingSender struct {
	mu   sync.Mutex
	sent []gateway.Message
}

func (r *recordingSender) Send(_ context.Context, _ string, msg gateway.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return "", nil
}

func TestPostgresContactUniqueness(t *testing.T) {
	db := openPostgres(t)
	set, err := services.NewSet(db, services.SetConfig{GraphCache: cache.NewMemoryStore()})
	require.NoError(t, err)

	ctx := context.Background()
	company, err := set.Companies.Create(ctx, services.CreateCompanyInput{Name: "Acme"})
	require.NoError(t, err)

	_, err = set.Contacts.Create(ctx, company.ID, services.CreateContactInput{Number: "+55 11 99999-0000", Name: "Ana"})
	require.NoError(t, err)

	_, err = set.Contacts.Create(ctx, company.ID, services.CreateContactInput{Number: "5511999990000", Name: "Ana again"})
	require.ErrorIs(t, err, services.ErrContactExists)
}

func TestPostgresEngineRunsFlow(t *testing.T) {
	db := openPostgres(t)
	set, err := services.NewSet(db, services.SetConfig{GraphCache: cache.NewDatabaseStore(db)})
	require.NoError(t, err)

	ctx := context.Background()
	company, err := set.Companies.Create(ctx, services.CreateCompanyInput{Name: "Acme"})
	require.NoError(t, err)

	created, err := set.Flows.Create(ctx, company.ID, services.FlowInput{
		Name: "Welcome",
		Nodes: []byte(`[
			{"id":"start","type":"start"},
			{"id":"ask","type":"question","data":{"text":"What is your email?","variable":"email_answer","validation":"email"}},
			{"id":"done","type":"end","data":{"message":"Thanks!"}}
		]`),
		Edges: []byte(`[
			{"id":"e1","source":"start","target":"ask"},
			{"id":"e2","source":"ask","target":"done"}
		]`),
	})
	require.NoError(t, err)
	_, err = set.Flows.SetDefault(ctx, company.ID, created.ID)
	require.NoError(t, err)

	sender := &recordingSender{}
	engine, err := flow.NewEngine(db, set.EngineDependencies(sender))
	require.NoError(t, err)

	result, err := engine.HandleInbound(ctx, flow.InboundMessage{CompanyID: company.ID, Number: "5511988887777", Text: "hi"})
	require.NoError(t, err)
	require.True(t, result.Handled)

	result, err = engine.HandleInbound(ctx, flow.InboundMessage{CompanyID: company.ID, Number: "5511988887777", Text: "ana@example.com"})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionCompleted, result.Status)

	var exec models.FlowBuilderExecution
	require.NoError(t, db.First(&exec, "id = ?", result.ExecutionID).Error)
	require.NotNil(t, exec.FinishedAt)
	require.Len(t, sender.sent, 2)
}
