// Package repository persists routing proposals, apply guards, and reads
// the routing configuration and agent snapshots.
package repository

import (
	"context"
	"time"

	"leadrouting_backend/internal/normalize"
	"leadrouting_backend/internal/rules"
	"leadrouting_backend/internal/scoring"

	"github.com/google/uuid"
)

// Status is a proposal lifecycle state.
type Status string

const (
	StatusProposed   Status = "PROPOSED"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusOverridden Status = "OVERRIDDEN"
	StatusApplied    Status = "APPLIED"
)

// Proposal is one routing decision instance for one external lead item.
type Proposal struct {
	ID               uuid.UUID
	IdempotencyKey   string
	BoardID          string
	ItemID           string
	NormalizedValues map[string]normalize.Value
	SelectedRule     *rules.Rule
	Action           rules.Action
	// Assignee is the identifier the apply path resolves to a person ID.
	Assignee  string
	Explains  []rules.RuleExplain
	Status    Status
	CreatedAt time.Time
	DecidedAt *time.Time
}

// CreateProposalParams carries everything needed to persist a proposal.
type CreateProposalParams struct {
	IdempotencyKey   string
	BoardID          string
	ItemID           string
	NormalizedValues map[string]normalize.Value
	SelectedRule     *rules.Rule
	Action           rules.Action
	Assignee         string
	Explains         []rules.RuleExplain
}

// ProposalStore persists proposals and apply guards.
type ProposalStore interface {
	// CreateProposal inserts a proposal unless its idempotency key already
	// exists, in which case the stored proposal is returned unchanged.
	// The bool reports whether a new row was created.
	CreateProposal(ctx context.Context, params CreateProposalParams) (Proposal, bool, error)
	GetProposal(ctx context.Context, id uuid.UUID) (Proposal, error)
	ListProposals(ctx context.Context, status *Status, limit, offset int) ([]Proposal, int, error)
	// UpdateStatus transitions a proposal, allowed only from the given
	// states. Returns a conflict error on an illegal transition.
	UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (Proposal, error)
	// OverrideAction replaces a PROPOSED proposal's action and assignee and
	// marks it OVERRIDDEN.
	OverrideAction(ctx context.Context, id uuid.UUID, action rules.Action, assignee string) (Proposal, error)
	// LatestAppliedForItem returns the most recent APPLIED proposal for the
	// item, or a not-found error.
	LatestAppliedForItem(ctx context.Context, boardID, itemID string) (Proposal, error)
	// TryBeginApply atomically inserts the apply guard row. It reports false
	// when the guard already exists; any true result means this caller owns
	// the one and only apply attempt.
	TryBeginApply(ctx context.Context, proposalID uuid.UUID) (bool, error)
	// RejectStaleProposed rejects PROPOSED proposals older than the cutoff
	// and returns how many were touched.
	RejectStaleProposed(ctx context.Context, olderThan time.Time) (int64, error)
}

// RoutingMode selects automatic or manual-approval routing.
type RoutingMode string

const (
	ModeAuto           RoutingMode = "AUTO"
	ModeManualApproval RoutingMode = "MANUAL_APPROVAL"
)

// Settings is the admin routing switch, stored externally to this pipeline.
type Settings struct {
	Mode RoutingMode
}

// FieldMapping locates one internal field on the external platform.
type FieldMapping struct {
	FieldID  string
	BoardID  string
	ColumnID string
}

// MappingConfig maps internal fields to board columns and names the
// writeback targets for the assignment decision.
type MappingConfig struct {
	Fields           []FieldMapping
	AssigneeColumnID string
	StatusColumnID   string
	ReasonColumnID   string
	// IndustryFieldID names the schema field scoring reads the lead's
	// industry from.
	IndustryFieldID string
}

// ConfigStore reads the versioned routing configuration. Editing and
// versioning happen outside this pipeline.
type ConfigStore interface {
	GetSchema(ctx context.Context) ([]normalize.FieldDefinition, int, error)
	GetMappings(ctx context.Context) (MappingConfig, int, error)
	GetRules(ctx context.Context) ([]rules.Rule, int, error)
	GetSettings(ctx context.Context) (Settings, error)
}

// SnapshotStore reads agent performance snapshots produced by the metrics
// job.
type SnapshotStore interface {
	ListSnapshots(ctx context.Context) ([]scoring.Snapshot, error)
}
