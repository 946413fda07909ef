// Package transport defines the request and response shapes of the routing
// HTTP API.
package transport

import (
	"time"

	"leadrouting_backend/internal/normalize"
	"leadrouting_backend/internal/routing/repository"
	"leadrouting_backend/internal/rules"

	"github.com/google/uuid"
)

type EvaluateRequest struct {
	BoardID string `json:"boardId" validate:"required,min=1,max=64"`
	ItemID  string `json:"itemId" validate:"required,min=1,max=64"`
}

type OverrideRequest struct {
	ActionType string `json:"actionType" validate:"required,oneof=assign_agent_pool assign_agent_id"`
	Value      string `json:"value" validate:"omitempty,max=128"`
}

// Action converts the request into a rule action.
func (r OverrideRequest) Action() rules.Action {
	return rules.Action{Type: rules.ActionType(r.ActionType), Value: r.Value}
}

type ListProposalsRequest struct {
	Status string `form:"status" validate:"omitempty,oneof=PROPOSED APPROVED REJECTED OVERRIDDEN APPLIED"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" validate:"omitempty,min=0"`
}

type ProposalResponse struct {
	ID               uuid.UUID                  `json:"id"`
	IdempotencyKey   string                     `json:"idempotencyKey"`
	BoardID          string                     `json:"boardId"`
	ItemID           string                     `json:"itemId"`
	NormalizedValues map[string]normalize.Value `json:"normalizedValues"`
	SelectedRule     *rules.Rule                `json:"selectedRule,omitempty"`
	Action           rules.Action               `json:"action"`
	Assignee         string                     `json:"assignee"`
	Explains         []rules.RuleExplain        `json:"explains"`
	Status           string                     `json:"status"`
	CreatedAt        time.Time                  `json:"createdAt"`
	DecidedAt        *time.Time                 `json:"decidedAt,omitempty"`
}

// FromProposal maps a stored proposal to its API shape.
func FromProposal(p repository.Proposal) ProposalResponse {
	return ProposalResponse{
		ID:               p.ID,
		IdempotencyKey:   p.IdempotencyKey,
		BoardID:          p.BoardID,
		ItemID:           p.ItemID,
		NormalizedValues: p.NormalizedValues,
		SelectedRule:     p.SelectedRule,
		Action:           p.Action,
		Assignee:         p.Assignee,
		Explains:         p.Explains,
		Status:           string(p.Status),
		CreatedAt:        p.CreatedAt,
		DecidedAt:        p.DecidedAt,
	}
}

type ProposalListResponse struct {
	Items  []ProposalResponse `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}
