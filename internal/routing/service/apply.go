package service

import (
	"context"
	"errors"
	"fmt"

	"leadrouting_backend/internal/board"
	"leadrouting_backend/internal/board/writequeue"
	"leadrouting_backend/internal/directory"
	"leadrouting_backend/internal/events"
	"leadrouting_backend/internal/routing/repository"
	"leadrouting_backend/internal/rules"
	"leadrouting_backend/internal/scoring"
	"leadrouting_backend/platform/apperr"

	"github.com/google/uuid"
)

// applicable lists the states a proposal may be applied from.
var applicable = []repository.Status{
	repository.StatusProposed,
	repository.StatusApproved,
	repository.StatusOverridden,
}

// ApplyOutcome reports one apply call. Duplicate means the apply guard
// already existed and no board write happened in this call.
type ApplyOutcome struct {
	Proposal  repository.Proposal `json:"proposal"`
	PersonID  string              `json:"personId,omitempty"`
	Duplicate bool                `json:"duplicate"`
	// Write is the writeback's structured result; nil on the duplicate path.
	Write *writequeue.Result `json:"write,omitempty"`
}

// Approve moves a PROPOSED proposal to APPROVED and applies it.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (ApplyOutcome, error) {
	proposal, err := s.proposals.UpdateStatus(ctx, id,
		[]repository.Status{repository.StatusProposed}, repository.StatusApproved)
	if err != nil {
		return ApplyOutcome{}, err
	}
	s.publishDecided(ctx, proposal.ID, "approved")
	return s.Apply(ctx, proposal.ID)
}

// Reject moves a PROPOSED proposal to REJECTED. Rejected proposals are
// terminal; nothing reaches the board.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (repository.Proposal, error) {
	proposal, err := s.proposals.UpdateStatus(ctx, id,
		[]repository.Status{repository.StatusProposed}, repository.StatusRejected)
	if err != nil {
		return repository.Proposal{}, err
	}
	s.publishDecided(ctx, proposal.ID, "rejected")
	return proposal, nil
}

// Override replaces a PROPOSED proposal's action with the manager's choice
// and applies the overridden decision.
func (s *Service) Override(ctx context.Context, id uuid.UUID, action rules.Action) (ApplyOutcome, error) {
	assignee, err := s.chooseOverrideAssignee(ctx, action)
	if err != nil {
		return ApplyOutcome{}, err
	}
	proposal, err := s.proposals.OverrideAction(ctx, id, action, assignee)
	if err != nil {
		return ApplyOutcome{}, err
	}
	s.publishDecided(ctx, proposal.ID, "overridden")
	return s.Apply(ctx, proposal.ID)
}

// chooseOverrideAssignee validates the override action and derives its
// assignee the same way propose does.
func (s *Service) chooseOverrideAssignee(ctx context.Context, action rules.Action) (string, error) {
	switch action.Type {
	case rules.ActionAssignAgentID:
		if action.Value == "" {
			return "", apperr.BadRequest("override requires an agent identifier").WithOp(opOverride)
		}
		return action.Value, nil
	case rules.ActionAssignAgentPool:
		snapshots, err := s.snapshots.ListSnapshots(ctx)
		if err != nil {
			return "", err
		}
		if len(snapshots) == 0 {
			return "", apperr.BadRequest("no agent snapshots available for pool assignment").WithOp(opOverride)
		}
		ranked := s.rankSnapshots("", snapshots)
		return ranked[0].AgentID, nil
	default:
		return "", apperr.BadRequest(fmt.Sprintf("unknown action type %q", action.Type)).WithOp(opOverride)
	}
}

// Apply writes the proposal's decision to the board exactly once. The apply
// guard row is the serialization point: whoever inserts it owns the write;
// everyone else gets the idempotent duplicate outcome.
func (s *Service) Apply(ctx context.Context, id uuid.UUID) (ApplyOutcome, error) {
	proposal, err := s.proposals.GetProposal(ctx, id)
	if err != nil {
		return ApplyOutcome{}, err
	}
	if proposal.Status == repository.StatusApplied {
		return ApplyOutcome{Proposal: proposal, Duplicate: true}, nil
	}
	if proposal.Status == repository.StatusRejected {
		return ApplyOutcome{}, apperr.Conflict("rejected proposals cannot be applied").WithOp(opApply)
	}

	owned, err := s.proposals.TryBeginApply(ctx, proposal.ID)
	if err != nil {
		return ApplyOutcome{}, err
	}
	if !owned {
		// Someone else already started (or finished) this apply. Converge
		// the status and report the duplicate without touching the board.
		updated, err := s.proposals.UpdateStatus(ctx, proposal.ID, applicable, repository.StatusApplied)
		if err != nil {
			if apperr.GetKind(err) == apperr.KindConflict {
				current, getErr := s.proposals.GetProposal(ctx, proposal.ID)
				if getErr == nil {
					updated = current
				}
			} else {
				return ApplyOutcome{}, err
			}
		}
		s.publishApplied(ctx, updated, "", true)
		return ApplyOutcome{Proposal: updated, Duplicate: true}, nil
	}

	personID, err := s.resolver.Resolve(ctx, proposal.Assignee)
	if err != nil {
		var resErr *directory.ResolutionError
		if errors.As(err, &resErr) {
			return ApplyOutcome{}, apperr.BadRequest(resErr.Error()).
				WithOp(opApply).
				WithDetails(map[string]interface{}{
					"identifier": resErr.Identifier,
					"matches":    resErr.Matches,
				})
		}
		return ApplyOutcome{}, err
	}

	mapping, _, err := s.config.GetMappings(ctx)
	if err != nil {
		return ApplyOutcome{}, err
	}

	reason := writebackReason(proposal)
	ticket := s.queue.Enqueue(func(callCtx context.Context) error {
		return s.writer.ApplyDecision(callCtx, board.WritebackRequest{
			BoardID:          proposal.BoardID,
			ItemID:           proposal.ItemID,
			AssigneeColumnID: mapping.AssigneeColumnID,
			PersonID:         personID,
			StatusColumnID:   mapping.StatusColumnID,
			StatusLabel:      statusLabelRouted,
			ReasonColumnID:   mapping.ReasonColumnID,
			Reason:           reason,
		})
	}, writequeue.Options{
		Priority:  priorityApply,
		DedupeKey: "apply::" + proposal.IdempotencyKey,
	})

	res, err := ticket.Wait(ctx)
	if err != nil {
		return ApplyOutcome{}, err
	}
	var writeErr error
	if res.Err != nil {
		writeErr = res.Err
	}
	s.log.WritebackResult(proposal.BoardID, proposal.ItemID, res.Attempts, res.DurationMs, writeErr)

	if !res.Success {
		s.bus.Publish(ctx, events.ProposalApplyFailed{
			BaseEvent:  events.NewBaseEvent(),
			ProposalID: proposal.ID,
			ErrorCode:  res.Err.Code,
			Message:    res.Err.Message,
			Attempts:   res.Attempts,
		})
		return ApplyOutcome{Proposal: proposal, PersonID: personID, Write: &res},
			apperr.Internal("writeback failed: " + res.Err.Message).
				WithOp(opApply).
				WithDetails(map[string]interface{}{
					"code":     res.Err.Code,
					"attempts": res.Attempts,
				})
	}

	updated, err := s.proposals.UpdateStatus(ctx, proposal.ID, applicable, repository.StatusApplied)
	if err != nil {
		// A concurrent duplicate call can converge the status to APPLIED
		// while this writeback is in flight. This call performed the one
		// board write, so an already-applied proposal is its success.
		if apperr.GetKind(err) != apperr.KindConflict {
			return ApplyOutcome{}, err
		}
		current, getErr := s.proposals.GetProposal(ctx, proposal.ID)
		if getErr != nil || current.Status != repository.StatusApplied {
			return ApplyOutcome{}, err
		}
		updated = current
	}
	s.publishApplied(ctx, updated, personID, false)
	return ApplyOutcome{Proposal: updated, PersonID: personID, Write: &res}, nil
}

// rankSnapshots scores all snapshot agents for an industry-less lead.
func (s *Service) rankSnapshots(industry string, snapshots []scoring.Snapshot) []scoring.AgentScore {
	candidates := make([]scoring.Candidate, 0, len(snapshots))
	for i := range snapshots {
		candidates = append(candidates, scoring.Candidate{
			AgentID:  snapshots[i].AgentID,
			Snapshot: &snapshots[i],
		})
	}
	return scoring.Score(scoring.Lead{Industry: industry}, candidates, s.scoring)
}

// writebackReason renders the human-readable explanation written to the
// board's reason column.
func writebackReason(p repository.Proposal) string {
	if p.Status == repository.StatusOverridden {
		return fmt.Sprintf("Manually overridden: assigned %s", p.Assignee)
	}
	if p.SelectedRule != nil {
		return fmt.Sprintf("Rule %q matched: assigned %s", p.SelectedRule.Name, p.Assignee)
	}
	return fmt.Sprintf("Assigned %s", p.Assignee)
}

func (s *Service) publishDecided(ctx context.Context, id uuid.UUID, decision string) {
	s.bus.Publish(ctx, events.ProposalDecided{
		BaseEvent:  events.NewBaseEvent(),
		ProposalID: id,
		Decision:   decision,
	})
}

func (s *Service) publishApplied(ctx context.Context, p repository.Proposal, personID string, duplicate bool) {
	s.bus.Publish(ctx, events.ProposalApplied{
		BaseEvent:  events.NewBaseEvent(),
		ProposalID: p.ID,
		BoardID:    p.BoardID,
		ItemID:     p.ItemID,
		PersonID:   personID,
		Duplicate:  duplicate,
	})
}
