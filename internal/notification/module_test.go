package notification

import (
	"context"
	"sync"
	"testing"

	"leadrouting_backend/internal/email"
	"leadrouting_backend/internal/events"
	"leadrouting_backend/internal/routing/repository"
	"leadrouting_backend/platform/apperr"
	"leadrouting_backend/platform/config"
	platformevents "leadrouting_backend/platform/events"
	"leadrouting_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeSender struct {
	mu        sync.Mutex
	requests  []email.ApprovalRequestData
	reminders []email.ApprovalRequestData
}

func (f *fakeSender) SendApprovalRequest(ctx context.Context, to []string, data email.ApprovalRequestData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, data)
	return nil
}

func (f *fakeSender) SendApprovalReminder(ctx context.Context, to []string, data email.ApprovalRequestData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminders = append(f.reminders, data)
	return nil
}

type fakeProposalReader struct {
	proposals map[uuid.UUID]repository.Proposal
}

func (f *fakeProposalReader) GetProposal(ctx context.Context, id uuid.UUID) (repository.Proposal, error) {
	p, ok := f.proposals[id]
	if !ok {
		return repository.Proposal{}, apperr.NotFound("proposal not found")
	}
	return p, nil
}

func newTestModule(approvers []string, reader *fakeProposalReader) (*Module, *fakeSender, *platformevents.InMemoryBus) {
	sender := &fakeSender{}
	cfg := &config.Config{ApproverAddresses: approvers}
	log := logger.New("development")
	m := New(sender, reader, cfg, log)
	bus := platformevents.NewInMemoryBus(log)
	m.RegisterHandlers(bus)
	return m, sender, bus
}

func TestPendingApprovalSendsRequest(t *testing.T) {
	id := uuid.New()
	_, sender, bus := newTestModule([]string{"mgr@example.com"}, &fakeProposalReader{})

	err := bus.PublishSync(context.Background(), events.ProposalPendingApproval{
		BaseEvent:  events.NewBaseEvent(),
		ProposalID: id,
		BoardID:    "b1",
		ItemID:     "i1",
		Assignee:   "alice@example.com",
		Reason:     "manual approval mode",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(sender.requests))
	}
	got := sender.requests[0]
	if got.ProposalID != id.String() || got.Assignee != "alice@example.com" || got.Reason != "manual approval mode" {
		t.Fatalf("request = %+v", got)
	}
}

func TestReminderSentWhileProposed(t *testing.T) {
	id := uuid.New()
	reader := &fakeProposalReader{proposals: map[uuid.UUID]repository.Proposal{
		id: {ID: id, BoardID: "b1", ItemID: "i1", Assignee: "a1", Status: repository.StatusProposed},
	}}
	_, sender, bus := newTestModule([]string{"mgr@example.com"}, reader)

	err := bus.PublishSync(context.Background(), events.ApprovalReminderDue{
		BaseEvent:  events.NewBaseEvent(),
		ProposalID: id,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.reminders) != 1 {
		t.Fatalf("reminders = %d, want 1", len(sender.reminders))
	}
}

func TestReminderSkippedOnceDecided(t *testing.T) {
	id := uuid.New()
	reader := &fakeProposalReader{proposals: map[uuid.UUID]repository.Proposal{
		id: {ID: id, Status: repository.StatusApplied},
	}}
	_, sender, bus := newTestModule([]string{"mgr@example.com"}, reader)

	err := bus.PublishSync(context.Background(), events.ApprovalReminderDue{
		BaseEvent:  events.NewBaseEvent(),
		ProposalID: id,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.reminders) != 0 {
		t.Fatal("decided proposal must not receive a reminder")
	}
}

func TestNoApproversConfiguredIsNoop(t *testing.T) {
	m, sender, _ := newTestModule(nil, &fakeProposalReader{})

	err := m.Handle(context.Background(), events.ProposalPendingApproval{
		BaseEvent:  events.NewBaseEvent(),
		ProposalID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.requests) != 0 {
		t.Fatal("no approvers configured must send nothing")
	}
}

func TestUnrelatedEventsAreIgnored(t *testing.T) {
	m, sender, _ := newTestModule([]string{"mgr@example.com"}, &fakeProposalReader{})

	err := m.Handle(context.Background(), events.ProposalCreated{
		BaseEvent:  events.NewBaseEvent(),
		ProposalID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.requests)+len(sender.reminders) != 0 {
		t.Fatal("unrelated event must send nothing")
	}
}
