// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadrouting_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Routing Domain Events
// =============================================================================

// ProposalCreated is published when a new routing proposal row is persisted.
// Deduplicated proposes do not re-publish it.
type ProposalCreated struct {
	BaseEvent
	ProposalID uuid.UUID `json:"proposalId"`
	BoardID    string    `json:"boardId"`
	ItemID     string    `json:"itemId"`
	RuleID     string    `json:"ruleId,omitempty"`
}

func (e ProposalCreated) EventName() string { return "routing.proposal.created" }

// ProposalPendingApproval is published when a proposal requires a manual
// decision before it can be applied.
type ProposalPendingApproval struct {
	BaseEvent
	ProposalID uuid.UUID `json:"proposalId"`
	BoardID    string    `json:"boardId"`
	ItemID     string    `json:"itemId"`
	Assignee   string    `json:"assignee,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

func (e ProposalPendingApproval) EventName() string { return "routing.proposal.pending_approval" }

// ProposalDecided is published when a manager approves, rejects, or
// overrides a proposal.
type ProposalDecided struct {
	BaseEvent
	ProposalID uuid.UUID `json:"proposalId"`
	Decision   string    `json:"decision"` // "approved", "rejected", "overridden"
}

func (e ProposalDecided) EventName() string { return "routing.proposal.decided" }

// ProposalApplied is published after the routing decision has been written
// back to the external platform.
type ProposalApplied struct {
	BaseEvent
	ProposalID uuid.UUID `json:"proposalId"`
	BoardID    string    `json:"boardId"`
	ItemID     string    `json:"itemId"`
	PersonID   string    `json:"personId,omitempty"`
	Duplicate  bool      `json:"duplicate"` // true when the apply guard already existed
}

func (e ProposalApplied) EventName() string { return "routing.proposal.applied" }

// ProposalApplyFailed is published when the writeback could not complete
// after retry exhaustion or a fatal client error.
type ProposalApplyFailed struct {
	BaseEvent
	ProposalID uuid.UUID `json:"proposalId"`
	ErrorCode  string    `json:"errorCode"`
	Message    string    `json:"message"`
	Attempts   int       `json:"attempts"`
}

func (e ProposalApplyFailed) EventName() string { return "routing.proposal.apply_failed" }

// ApprovalReminderDue is published by the scheduler when a proposal has been
// awaiting approval longer than the configured delay.
type ApprovalReminderDue struct {
	BaseEvent
	ProposalID uuid.UUID `json:"proposalId"`
}

func (e ApprovalReminderDue) EventName() string { return "routing.approval.reminder_due" }
