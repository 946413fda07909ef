// Package service orchestrates the routing pipeline: it normalizes lead
// values, evaluates rules, ranks agents, and drives proposals through their
// lifecycle up to the external writeback.
package service

import (
	"context"
	"fmt"
	"time"

	"leadrouting_backend/internal/board"
	"leadrouting_backend/internal/board/writequeue"
	"leadrouting_backend/internal/events"
	"leadrouting_backend/internal/normalize"
	"leadrouting_backend/internal/routing/repository"
	"leadrouting_backend/internal/rules"
	"leadrouting_backend/internal/scoring"
	"leadrouting_backend/platform/apperr"
	"leadrouting_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	opDryRun   = "routing.DryRun"
	opPropose  = "routing.Propose"
	opApprove  = "routing.Approve"
	opReject   = "routing.Reject"
	opOverride = "routing.Override"
	opApply    = "routing.Apply"
)

// Writeback priorities. Decision applies jump ahead of best-effort status
// markers when the queue is backed up.
const (
	priorityApply  = 10
	priorityStatus = 0
)

// Status labels written to the board's status column.
const (
	statusLabelRouted  = "Routed"
	statusLabelPending = "Pending Approval"
)

// Queue dispatches outbound board writes.
type Queue interface {
	Enqueue(call writequeue.Call, opts writequeue.Options) *writequeue.Ticket
	Metrics() writequeue.Metrics
}

// ItemReader loads one board item. The service never lists users; directory
// resolution owns that.
type ItemReader interface {
	GetItem(ctx context.Context, boardID, itemID string) (board.Item, error)
}

// AssigneeResolver turns an agent identifier into a platform person ID.
type AssigneeResolver interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

// ReminderScheduler enqueues a delayed approval reminder. Optional; a nil
// scheduler disables reminders.
type ReminderScheduler interface {
	ScheduleApprovalReminder(ctx context.Context, proposalID uuid.UUID, delay time.Duration) error
}

// Service is the routing pipeline orchestrator.
type Service struct {
	proposals repository.ProposalStore
	config    repository.ConfigStore
	snapshots repository.SnapshotStore
	reader    ItemReader
	writer    board.Writer
	queue     Queue
	resolver  AssigneeResolver
	bus       events.Bus
	scheduler ReminderScheduler
	scoring   scoring.Config

	reminderDelay time.Duration
	log           *logger.Logger
}

// Deps collects the service's collaborators.
type Deps struct {
	Proposals repository.ProposalStore
	Config    repository.ConfigStore
	Snapshots repository.SnapshotStore
	Reader    ItemReader
	Writer    board.Writer
	Queue     Queue
	Resolver  AssigneeResolver
	Bus       events.Bus
	Scheduler ReminderScheduler
	Scoring   scoring.Config

	ReminderDelay time.Duration
	Logger        *logger.Logger
}

// New creates the routing service.
func New(deps Deps) *Service {
	return &Service{
		proposals:     deps.Proposals,
		config:        deps.Config,
		snapshots:     deps.Snapshots,
		reader:        deps.Reader,
		writer:        deps.Writer,
		queue:         deps.Queue,
		resolver:      deps.Resolver,
		bus:           deps.Bus,
		scheduler:     deps.Scheduler,
		scoring:       deps.Scoring,
		reminderDelay: deps.ReminderDelay,
		log:           deps.Logger,
	}
}

// IdempotencyKey builds the key that makes a propose replay-safe: same item
// under the same config versions always yields the same key.
func IdempotencyKey(boardID, itemID string, schemaV, mappingV, rulesV int) string {
	return fmt.Sprintf("%s::%s::schema:%d::mapping:%d::rules:%d",
		boardID, itemID, schemaV, mappingV, rulesV)
}

// Evaluation is the full diagnostic picture of one pipeline run: what the
// raw values normalized to, how every rule checked out, and how each agent
// scored. Returned whole so callers can explain any decision.
type Evaluation struct {
	BoardID        string             `json:"boardId"`
	ItemID         string             `json:"itemId"`
	IdempotencyKey string             `json:"idempotencyKey"`
	SchemaVersion  int                `json:"schemaVersion"`
	MappingVersion int                `json:"mappingVersion"`
	RulesVersion   int                `json:"rulesVersion"`
	Normalized     normalize.Result   `json:"normalized"`
	// Blocked means a required field failed normalization; rule evaluation
	// did not run.
	Blocked bool                 `json:"blocked"`
	Outcome rules.Outcome        `json:"outcome"`
	Ranked  []scoring.AgentScore `json:"ranked"`

	mapping  repository.MappingConfig
	industry string
}

// evaluate runs the read-only half of the pipeline for one board item.
func (s *Service) evaluate(ctx context.Context, boardID, itemID string) (Evaluation, error) {
	schema, schemaV, err := s.config.GetSchema(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	mapping, mappingV, err := s.config.GetMappings(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	ruleSet, rulesV, err := s.config.GetRules(ctx)
	if err != nil {
		return Evaluation{}, err
	}

	item, err := s.reader.GetItem(ctx, boardID, itemID)
	if err != nil {
		return Evaluation{}, err
	}

	raw := make(map[string]interface{}, len(mapping.Fields))
	for _, fm := range mapping.Fields {
		if fm.BoardID != "" && fm.BoardID != boardID {
			continue
		}
		raw[fm.FieldID] = item.ColumnValues[fm.ColumnID]
	}

	eval := Evaluation{
		BoardID:        boardID,
		ItemID:         itemID,
		IdempotencyKey: IdempotencyKey(boardID, itemID, schemaV, mappingV, rulesV),
		SchemaVersion:  schemaV,
		MappingVersion: mappingV,
		RulesVersion:   rulesV,
		Normalized:     normalize.Normalize(schema, normalize.EntityLead, raw),
		mapping:        mapping,
	}

	if eval.Normalized.RequiredFieldFailed(schema) {
		eval.Blocked = true
		return eval, nil
	}

	eval.Outcome = rules.Evaluate(eval.Normalized.Values, ruleSet)

	if v, ok := eval.Normalized.Values[mapping.IndustryFieldID]; ok {
		eval.industry = v.Display()
	}
	snapshots, err := s.snapshots.ListSnapshots(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	candidates := make([]scoring.Candidate, 0, len(snapshots))
	for i := range snapshots {
		candidates = append(candidates, scoring.Candidate{
			AgentID:  snapshots[i].AgentID,
			Snapshot: &snapshots[i],
		})
	}
	eval.Ranked = scoring.Score(scoring.Lead{Industry: eval.industry}, candidates, s.scoring)

	return eval, nil
}

// DryRun runs the full pipeline without persisting anything or touching the
// board. A blocked evaluation is a valid result, not an error.
func (s *Service) DryRun(ctx context.Context, boardID, itemID string) (Evaluation, error) {
	if boardID == "" || itemID == "" {
		return Evaluation{}, apperr.BadRequest("boardId and itemId are required").WithOp(opDryRun)
	}
	return s.evaluate(ctx, boardID, itemID)
}

// ProposeResult reports what a propose call did. When no rule matched there
// is no proposal; the evaluation still carries the full trace.
type ProposeResult struct {
	Proposal *repository.Proposal `json:"proposal,omitempty"`
	// Created is false when the idempotency key matched an existing
	// proposal and that proposal was returned unchanged.
	Created          bool       `json:"created"`
	Evaluation       Evaluation `json:"evaluation"`
	RequiresApproval bool       `json:"requiresApproval"`
	ApprovalReason   string     `json:"approvalReason,omitempty"`
	// Apply is set when the proposal was applied automatically.
	Apply *ApplyOutcome `json:"apply,omitempty"`
}

// Propose evaluates an item and persists a routing proposal. Replays with
// unchanged configuration return the stored proposal without side effects.
// In AUTO mode the proposal is applied in the same call unless the lead's
// industry changed since the last applied decision.
func (s *Service) Propose(ctx context.Context, boardID, itemID string) (ProposeResult, error) {
	if boardID == "" || itemID == "" {
		return ProposeResult{}, apperr.BadRequest("boardId and itemId are required").WithOp(opPropose)
	}

	eval, err := s.evaluate(ctx, boardID, itemID)
	if err != nil {
		return ProposeResult{}, err
	}
	if eval.Blocked {
		return ProposeResult{}, apperr.Validation("required fields failed normalization").
			WithOp(opPropose).
			WithDetails(map[string]interface{}{"errors": eval.Normalized.Errors})
	}
	if !eval.Outcome.Matched {
		// No rule matched: nothing to propose, the trace explains why.
		return ProposeResult{Evaluation: eval}, nil
	}

	assignee, err := s.chooseAssignee(eval.Outcome.Selected.Then, eval.Ranked)
	if err != nil {
		return ProposeResult{}, err
	}

	proposal, created, err := s.proposals.CreateProposal(ctx, repository.CreateProposalParams{
		IdempotencyKey:   eval.IdempotencyKey,
		BoardID:          boardID,
		ItemID:           itemID,
		NormalizedValues: eval.Normalized.Values,
		SelectedRule:     eval.Outcome.Selected,
		Action:           eval.Outcome.Selected.Then,
		Assignee:         assignee,
		Explains:         eval.Outcome.Explains,
	})
	if err != nil {
		return ProposeResult{}, err
	}

	result := ProposeResult{Proposal: &proposal, Created: created, Evaluation: eval}
	if !created {
		return result, nil
	}

	s.bus.Publish(ctx, events.ProposalCreated{
		BaseEvent:  events.NewBaseEvent(),
		ProposalID: proposal.ID,
		BoardID:    boardID,
		ItemID:     itemID,
		RuleID:     eval.Outcome.Selected.ID,
	})

	return s.decide(ctx, result)
}

// chooseAssignee resolves a rule action to a concrete agent identifier.
// Pool actions pick the top-ranked agent at propose time so the choice is
// recorded on the proposal.
func (s *Service) chooseAssignee(action rules.Action, ranked []scoring.AgentScore) (string, error) {
	switch action.Type {
	case rules.ActionAssignAgentID:
		return action.Value, nil
	case rules.ActionAssignAgentPool:
		if len(ranked) == 0 {
			return "", apperr.Internal("no agent snapshots available for pool assignment").WithOp(opPropose)
		}
		return ranked[0].AgentID, nil
	default:
		return "", apperr.Internal(fmt.Sprintf("unknown action type %q", action.Type)).WithOp(opPropose)
	}
}

// decide routes a freshly created proposal to auto-apply or the manual
// approval path.
func (s *Service) decide(ctx context.Context, result ProposeResult) (ProposeResult, error) {
	settings, err := s.config.GetSettings(ctx)
	if err != nil {
		return ProposeResult{}, err
	}
	proposal := *result.Proposal

	reason := ""
	if settings.Mode != repository.ModeAuto {
		reason = "manual approval mode"
	} else if changed := s.industryChanged(ctx, result.Evaluation); changed {
		// A changed industry invalidates the basis of the previous routing
		// decision, so a human takes this one even in AUTO mode.
		reason = "industry changed since last applied decision"
	}

	if reason == "" {
		outcome, err := s.Apply(ctx, proposal.ID)
		if err != nil {
			return ProposeResult{}, err
		}
		result.Proposal = &outcome.Proposal
		result.Apply = &outcome
		return result, nil
	}

	result.RequiresApproval = true
	result.ApprovalReason = reason
	s.markPendingApproval(ctx, proposal, reason)
	return result, nil
}

// industryChanged reports whether the item's normalized industry differs
// from the one on its most recent applied proposal. Missing history or a
// missing industry field both mean "not changed".
func (s *Service) industryChanged(ctx context.Context, eval Evaluation) bool {
	fieldID := eval.mapping.IndustryFieldID
	if fieldID == "" {
		return false
	}
	last, err := s.proposals.LatestAppliedForItem(ctx, eval.BoardID, eval.ItemID)
	if err != nil {
		if apperr.GetKind(err) == apperr.KindNotFound {
			return false
		}
		s.log.DatabaseError("latest applied lookup", err)
		return false
	}
	previous, ok := last.NormalizedValues[fieldID]
	if !ok {
		return false
	}
	current := eval.Normalized.Values[fieldID]
	return !current.Equal(previous)
}

// markPendingApproval publishes the pending event, schedules the reminder,
// and enqueues a best-effort status write. The proposal stays PROPOSED even
// when the marker write fails.
func (s *Service) markPendingApproval(ctx context.Context, proposal repository.Proposal, reason string) {
	s.bus.Publish(ctx, events.ProposalPendingApproval{
		BaseEvent:  events.NewBaseEvent(),
		ProposalID: proposal.ID,
		BoardID:    proposal.BoardID,
		ItemID:     proposal.ItemID,
		Assignee:   proposal.Assignee,
		Reason:     reason,
	})

	if s.scheduler != nil {
		if err := s.scheduler.ScheduleApprovalReminder(ctx, proposal.ID, s.reminderDelay); err != nil {
			s.log.Error("schedule approval reminder", "proposalId", proposal.ID, "error", err)
		}
	}

	mapping, _, err := s.config.GetMappings(ctx)
	if err != nil || mapping.StatusColumnID == "" {
		return
	}
	s.queue.Enqueue(func(callCtx context.Context) error {
		return s.writer.WriteStatus(callCtx, proposal.BoardID, proposal.ItemID,
			mapping.StatusColumnID, statusLabelPending,
			mapping.ReasonColumnID, reason)
	}, writequeue.Options{
		Priority:  priorityStatus,
		DedupeKey: "pending::" + proposal.IdempotencyKey,
	})
}

// QueueMetrics exposes the write queue's live counters.
func (s *Service) QueueMetrics() writequeue.Metrics {
	return s.queue.Metrics()
}

// GetProposal loads one proposal.
func (s *Service) GetProposal(ctx context.Context, id uuid.UUID) (repository.Proposal, error) {
	return s.proposals.GetProposal(ctx, id)
}

// ListProposals pages through proposals, newest first.
func (s *Service) ListProposals(ctx context.Context, status *repository.Status, limit, offset int) ([]repository.Proposal, int, error) {
	return s.proposals.ListProposals(ctx, status, limit, offset)
}
