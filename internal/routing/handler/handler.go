// Package handler exposes the routing pipeline over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadrouting_backend/internal/routing/repository"
	"leadrouting_backend/internal/routing/service"
	"leadrouting_backend/internal/routing/transport"
	"leadrouting_backend/platform/httpkit"
	"leadrouting_backend/platform/validator"
)

// Handler handles HTTP requests for routing.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid proposal id"
)

// New creates a new routing handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// DryRun evaluates an item without persisting or writing anything.
// POST /api/v1/routing/dry-run
func (h *Handler) DryRun(c *gin.Context) {
	var req transport.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.DryRun(c.Request.Context(), req.BoardID, req.ItemID)
	if httpkit.HandleError(c, err) {
		return
	}
	if result.Blocked {
		// The evaluation itself is the diagnostic payload.
		httpkit.JSON(c, http.StatusUnprocessableEntity, result)
		return
	}
	httpkit.OK(c, result)
}

// Propose evaluates an item and creates (or returns) its routing proposal.
// POST /api/v1/routing/proposals
func (h *Handler) Propose(c *gin.Context) {
	var req transport.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.Propose(c.Request.Context(), req.BoardID, req.ItemID)
	if httpkit.HandleError(c, err) {
		return
	}
	if result.Created {
		httpkit.JSON(c, http.StatusCreated, result)
		return
	}
	httpkit.OK(c, result)
}

// ListProposals pages through proposals, newest first.
// GET /api/v1/routing/proposals
func (h *Handler) ListProposals(c *gin.Context) {
	var req transport.ListProposalsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	var status *repository.Status
	if req.Status != "" {
		s := repository.Status(req.Status)
		status = &s
	}
	items, total, err := h.svc.ListProposals(c.Request.Context(), status, req.Limit, req.Offset)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ProposalListResponse{
		Items:  make([]transport.ProposalResponse, 0, len(items)),
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	for _, p := range items {
		resp.Items = append(resp.Items, transport.FromProposal(p))
	}
	httpkit.OK(c, resp)
}

// GetProposal loads one proposal with its full explainability trace.
// GET /api/v1/routing/proposals/:id
func (h *Handler) GetProposal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	proposal, err := h.svc.GetProposal(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromProposal(proposal))
}

// Approve approves a pending proposal and applies it.
// POST /api/v1/routing/proposals/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	outcome, err := h.svc.Approve(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, outcome)
}

// Reject rejects a pending proposal.
// POST /api/v1/routing/proposals/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	proposal, err := h.svc.Reject(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromProposal(proposal))
}

// Override replaces a pending proposal's action and applies it.
// POST /api/v1/routing/proposals/:id/override
func (h *Handler) Override(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	outcome, err := h.svc.Override(c.Request.Context(), id, req.Action())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, outcome)
}

// Apply writes an approved or overridden proposal's decision to the board.
// POST /api/v1/routing/proposals/:id/apply
func (h *Handler) Apply(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	outcome, err := h.svc.Apply(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, outcome)
}

// QueueMetrics exposes the write queue's live counters.
// GET /api/v1/routing/queue/metrics
func (h *Handler) QueueMetrics(c *gin.Context) {
	httpkit.OK(c, h.svc.QueueMetrics())
}
