package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/database/testutil"
	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/pkg/mail"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

func mustJSON(t *testing.T, value any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(value)
	require.NoError(t, err)
	return raw
}

func mustCreateUser(t *testing.T, db *gorm.DB, companyID, email string) *models.User {
	t.Helper()
	svc, err := NewUserService(db)
	require.NoError(t, err)
	user, err := svc.Create(context.Background(), CreateUserInput{
		CompanyID: companyID,
		Name:      "Agent " + email,
		Email:     email,
		Password:  "password123",
	})
	require.NoError(t, err)
	return user
}

func mustCreateQueue(t *testing.T, db *gorm.DB, companyID, name string) *models.Queue {
	t.Helper()
	queue := &models.Queue{CompanyID: companyID, Name: name, Color: "#0b7285"}
	require.NoError(t, db.Create(queue).Error)
	return queue
}

type stubMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *stubMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *stubMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
