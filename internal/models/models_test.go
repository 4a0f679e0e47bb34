package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestBaseModelIDsAreTimeOrdered(t *testing.T) {
	var first, second BaseModel
	if err := first.BeforeCreate(nil); err != nil {
		t.Fatalf("first id: %v", err)
	}
	if err := second.BeforeCreate(nil); err != nil {
		t.Fatalf("second id: %v", err)
	}
	if parsed := uuid.MustParse(first.ID); parsed.Version() != 7 {
		t.Fatalf("expected UUIDv7, got version %d", parsed.Version())
	}
	if first.ID >= second.ID {
		t.Fatalf("expected %s to sort before %s", first.ID, second.ID)
	}
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID != "fixed" {
		t.Fatalf("expected ID to be preserved, got %s", base.ID)
	}
}

func TestTicketAttended(t *testing.T) {
	queueID := "queue-1"
	userID := "user-1"

	cases := []struct {
		name   string
		ticket *Ticket
		want   bool
	}{
		{"nil", nil, false},
		{"unassigned", &Ticket{Status: TicketStatusPending}, false},
		{"queued", &Ticket{Status: TicketStatusPending, QueueID: &queueID}, true},
		{"assigned", &Ticket{Status: TicketStatusOpen, UserID: &userID}, true},
		{"closed", &Ticket{Status: TicketStatusClosed, UserID: &userID}, false},
	}

	for _, tc := range cases {
		if got := tc.ticket.Attended(); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestExecutionLive(t *testing.T) {
	for status, want := range map[string]bool{
		ExecutionActive:    true,
		ExecutionPaused:    true,
		ExecutionCompleted: false,
		ExecutionError:     false,
		ExecutionInactive:  false,
	} {
		exec := &FlowBuilderExecution{Status: status}
		if got := exec.Live(); got != want {
			t.Fatalf("%s: expected live=%v, got %v", status, want, got)
		}
	}
}

func TestAppointmentBlocking(t *testing.T) {
	if !(&Appointment{Status: AppointmentConfirmed}).Blocking() {
		t.Fatal("expected confirmed appointment to block the slot")
	}
	if (&Appointment{Status: AppointmentCancelled}).Blocking() {
		t.Fatal("expected cancelled appointment to free the slot")
	}
}
