package flow

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/charlesng35/engageflow/internal/gateway"
	"github.com/charlesng35/engageflow/internal/models"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []gateway.Message
	fail error
}

func (s *recordingSender) Send(_ context.Context, _ string, msg gateway.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.sent = append(s.sent, msg)
	return fmt.Sprintf("wamid-%d", len(s.sent)), nil
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, msg := range s.sent {
		if msg.Text != "" {
			out = append(out, msg.Text)
		} else {
			out = append(out, msg.Caption)
		}
	}
	return out
}

func (s *recordingSender) last() string {
	texts := s.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

var testNow = time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC) // a Monday

// newTestRun builds a run over a parsed graph without touching the database.
func newTestRun(t *testing.T, g *Graph, sender gateway.Sender) *Run {
	t.Helper()
	if g != nil {
		if err := g.Validate(); err != nil {
			t.Fatalf("graph invalid: %v", err)
		}
	}
	company := &models.Company{Name: "Acme", Timezone: "UTC"}
	company.ID = "company-1"
	contact := &models.Contact{CompanyID: company.ID, Number: "5511999990000", Name: "Ana", Email: "ana@example.com"}
	contact.ID = "contact-1"
	flow := &models.FlowBuilder{CompanyID: company.ID, Name: "test", Version: 1}
	flow.ID = "flow-1"
	exec := &models.FlowBuilderExecution{CompanyID: company.ID, FlowID: flow.ID, ContactID: contact.ID, Status: models.ExecutionActive}
	exec.ID = "exec-1"

	return &Run{
		Company:   company,
		Flow:      flow,
		Contact:   contact,
		Execution: exec,
		Graph:     g,
		Vars:      Variables{},
		Now:       testNow,
		svc: &Services{
			Sender:      sender,
			HTTP:        http.DefaultClient,
			HTTPTimeout: 2 * time.Second,
			Random:      func() float64 { return 0.3 },
		},
	}
}
