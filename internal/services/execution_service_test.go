package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/database/testutil"
	"github.com/charlesng35/engageflow/internal/models"
)

func seedExecution(t *testing.T, db *gorm.DB, companyID, flowID, contactID, status string, updated time.Time) *models.FlowBuilderExecution {
	t.Helper()
	exec := &models.FlowBuilderExecution{
		CompanyID:         companyID,
		FlowID:            flowID,
		FlowVersion:       1,
		ContactID:         contactID,
		Status:            status,
		LastInteractionAt: updated,
	}
	require.NoError(t, db.Omit("Flow", "Contact", "Logs").Create(exec).Error)
	require.NoError(t, db.Model(exec).UpdateColumn("updated_at", updated).Error)
	return exec
}

func seedFlow(t *testing.T, db *gorm.DB, companyID, name string) *models.FlowBuilder {
	t.Helper()
	flowModel := &models.FlowBuilder{
		CompanyID: companyID,
		Name:      name,
		Version:   1,
		Nodes:     []byte(simpleNodes),
		Edges:     []byte(simpleEdges),
	}
	require.NoError(t, db.Create(flowModel).Error)
	return flowModel
}

func TestExecutionServiceListFilters(t *testing.T) {
	db := openServiceTestDB(t)
	company := testutil.MustCreateCompany(t, db, "Acme")
	ana := testutil.MustCreateContact(t, db, company.ID, "5511999990000", "Ana")
	bia := testutil.MustCreateContact(t, db, company.ID, "5511999990001", "Bia")
	welcome := seedFlow(t, db, company.ID, "Welcome")
	sales := seedFlow(t, db, company.ID, "Sales")

	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	oldest := seedExecution(t, db, company.ID, welcome.ID, ana.ID, models.ExecutionCompleted, base)
	seedExecution(t, db, company.ID, sales.ID, ana.ID, models.ExecutionError, base.Add(time.Minute))
	newest := seedExecution(t, db, company.ID, welcome.ID, bia.ID, models.ExecutionActive, base.Add(2*time.Minute))

	svc, err := NewExecutionService(db)
	require.NoError(t, err)
	ctx := context.Background()

	all, total, err := svc.List(ctx, company.ID, ListExecutionsOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Equal(t, newest.ID, all[0].ID)
	require.Equal(t, oldest.ID, all[2].ID)
	require.NotNil(t, all[0].Contact)

	byFlow, total, err := svc.List(ctx, company.ID, ListExecutionsOptions{Filters: ExecutionFilters{FlowID: welcome.ID}})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, byFlow, 2)

	active, total, err := svc.List(ctx, company.ID, ListExecutionsOptions{Filters: ExecutionFilters{Status: models.ExecutionActive}})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, newest.ID, active[0].ID)

	byContact, total, err := svc.List(ctx, company.ID, ListExecutionsOptions{Filters: ExecutionFilters{ContactID: ana.ID}, PerPage: 1, Page: 2})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, byContact, 1)
	require.Equal(t, oldest.ID, byContact[0].ID)

	_, _, err = svc.List(ctx, company.ID, ListExecutionsOptions{Filters: ExecutionFilters{Status: "sleeping"}})
	require.Error(t, err)
}

func TestExecutionServiceGetWithLogs(t *testing.T) {
	db := openServiceTestDB(t)
	acme := testutil.MustCreateCompany(t, db, "Acme")
	globex := testutil.MustCreateCompany(t, db, "Globex")
	contact := testutil.MustCreateContact(t, db, acme.ID, "5511999990000", "Ana")
	flowModel := seedFlow(t, db, acme.ID, "Welcome")
	exec := seedExecution(t, db, acme.ID, flowModel.ID, contact.ID, models.ExecutionCompleted, time.Now())

	for _, step := range []int{3, 1, 2} {
		require.NoError(t, db.Create(&models.ExecutionLog{
			CompanyID:   acme.ID,
			ExecutionID: exec.ID,
			Step:        step,
			NodeID:      "node",
			NodeType:    "message",
			Result:      "ok",
		}).Error)
	}

	svc, err := NewExecutionService(db)
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), acme.ID, exec.ID)
	require.NoError(t, err)
	require.Len(t, got.Logs, 3)
	require.Equal(t, []int{1, 2, 3}, []int{got.Logs[0].Step, got.Logs[1].Step, got.Logs[2].Step})

	_, err = svc.Get(context.Background(), globex.ID, exec.ID)
	require.ErrorIs(t, err, ErrExecutionNotFound)

	list, total, err := svc.List(context.Background(), globex.ID, ListExecutionsOptions{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, list)
}
