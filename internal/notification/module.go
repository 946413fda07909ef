// Package notification sends approver emails in response to routing domain
// events. Domain modules publish events; this module owns delivery, so the
// routing pipeline never knows about SMTP.
package notification

import (
	"context"

	"leadrouting_backend/internal/email"
	"leadrouting_backend/internal/events"
	"leadrouting_backend/internal/routing/repository"
	"leadrouting_backend/platform/config"
	"leadrouting_backend/platform/logger"

	"github.com/google/uuid"
)

// ProposalReader loads proposals for reminder emails.
type ProposalReader interface {
	GetProposal(ctx context.Context, id uuid.UUID) (repository.Proposal, error)
}

// Module wires domain events to the email sender.
type Module struct {
	sender    email.Sender
	proposals ProposalReader
	approvers []string
	log       *logger.Logger
}

// New creates the notification module.
func New(sender email.Sender, proposals ProposalReader, cfg config.EmailConfig, log *logger.Logger) *Module {
	return &Module{
		sender:    sender,
		proposals: proposals,
		approvers: cfg.GetApproverAddresses(),
		log:       log,
	}
}

// RegisterHandlers subscribes to the routing events this module acts on.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.ProposalPendingApproval{}.EventName(), m)
	bus.Subscribe(events.ApprovalReminderDue{}.EventName(), m)
}

// Handle routes events to the appropriate sender method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ProposalPendingApproval:
		return m.sendApprovalRequest(ctx, e)
	case events.ApprovalReminderDue:
		return m.sendApprovalReminder(ctx, e)
	default:
		return nil
	}
}

func (m *Module) sendApprovalRequest(ctx context.Context, e events.ProposalPendingApproval) error {
	if len(m.approvers) == 0 {
		return nil
	}
	return m.sender.SendApprovalRequest(ctx, m.approvers, email.ApprovalRequestData{
		ProposalID: e.ProposalID.String(),
		BoardID:    e.BoardID,
		ItemID:     e.ItemID,
		Assignee:   e.Assignee,
		Reason:     e.Reason,
	})
}

func (m *Module) sendApprovalReminder(ctx context.Context, e events.ApprovalReminderDue) error {
	if len(m.approvers) == 0 {
		return nil
	}
	proposal, err := m.proposals.GetProposal(ctx, e.ProposalID)
	if err != nil {
		return err
	}
	// The reminder only matters while the proposal is still undecided.
	if proposal.Status != repository.StatusProposed {
		m.log.Info("skipping reminder for decided proposal",
			"proposalId", e.ProposalID, "status", proposal.Status)
		return nil
	}
	return m.sender.SendApprovalReminder(ctx, m.approvers, email.ApprovalRequestData{
		ProposalID: proposal.ID.String(),
		BoardID:    proposal.BoardID,
		ItemID:     proposal.ItemID,
		Assignee:   proposal.Assignee,
	})
}
