package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadrouting_backend/internal/normalize"
	"leadrouting_backend/internal/rules"
	"leadrouting_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreateProposal = "repository.CreateProposal"
	opGetProposal    = "repository.GetProposal"
	opListProposals  = "repository.ListProposals"
	opUpdateStatus   = "repository.UpdateStatus"
	opOverrideAction = "repository.OverrideAction"
	opLatestApplied  = "repository.LatestAppliedForItem"
	opTryBeginApply  = "repository.TryBeginApply"
	opRejectStale    = "repository.RejectStaleProposed"
)

// Repository is the pgx-backed store for proposals, guards, configuration
// and snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a repository on the given pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const proposalColumns = `id, idempotency_key, board_id, item_id, normalized_values,
	selected_rule, action, assignee, explains, status, created_at, decided_at`

// CreateProposal inserts the proposal unless the idempotency key exists.
// The insert-or-return shape relies on the unique constraint, never on a
// prior existence check.
func (r *Repository) CreateProposal(ctx context.Context, params CreateProposalParams) (Proposal, bool, error) {
	values, err := json.Marshal(params.NormalizedValues)
	if err != nil {
		return Proposal{}, false, apperr.Internal("encode normalized values").WithOp(opCreateProposal)
	}
	explains, err := json.Marshal(params.Explains)
	if err != nil {
		return Proposal{}, false, apperr.Internal("encode explains").WithOp(opCreateProposal)
	}
	action, err := json.Marshal(params.Action)
	if err != nil {
		return Proposal{}, false, apperr.Internal("encode action").WithOp(opCreateProposal)
	}
	var selectedRule []byte
	if params.SelectedRule != nil {
		selectedRule, err = json.Marshal(params.SelectedRule)
		if err != nil {
			return Proposal{}, false, apperr.Internal("encode selected rule").WithOp(opCreateProposal)
		}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO routing_proposals (
			idempotency_key, board_id, item_id, normalized_values,
			selected_rule, action, assignee, explains, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'PROPOSED')
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING `+proposalColumns,
		params.IdempotencyKey, params.BoardID, params.ItemID, values,
		selectedRule, action, params.Assignee, explains,
	)

	proposal, err := scanProposal(row)
	if err == nil {
		return proposal, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Proposal{}, false, apperr.Internal(fmt.Sprintf("create proposal: %v", err)).WithOp(opCreateProposal)
	}

	// Conflict: the key already exists, return the stored row unchanged.
	existing, err := r.getByKey(ctx, params.IdempotencyKey)
	if err != nil {
		return Proposal{}, false, err
	}
	return existing, false, nil
}

func (r *Repository) getByKey(ctx context.Context, key string) (Proposal, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+proposalColumns+`
		FROM routing_proposals WHERE idempotency_key = $1
	`, key)
	proposal, err := scanProposal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Proposal{}, apperr.NotFound("proposal not found").WithOp(opGetProposal)
	}
	if err != nil {
		return Proposal{}, apperr.Internal(fmt.Sprintf("get proposal by key: %v", err)).WithOp(opGetProposal)
	}
	return proposal, nil
}

// GetProposal loads a proposal by ID.
func (r *Repository) GetProposal(ctx context.Context, id uuid.UUID) (Proposal, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+proposalColumns+`
		FROM routing_proposals WHERE id = $1
	`, id)
	proposal, err := scanProposal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Proposal{}, apperr.NotFound("proposal not found").WithOp(opGetProposal)
	}
	if err != nil {
		return Proposal{}, apperr.Internal(fmt.Sprintf("get proposal: %v", err)).WithOp(opGetProposal)
	}
	return proposal, nil
}

// ListProposals returns proposals newest first, optionally filtered by status.
func (r *Repository) ListProposals(ctx context.Context, status *Status, limit, offset int) ([]Proposal, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	var err error
	if status != nil {
		err = r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM routing_proposals WHERE status = $1`, *status).Scan(&total)
	} else {
		err = r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM routing_proposals`).Scan(&total)
	}
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("count proposals: %v", err)).WithOp(opListProposals)
	}

	var pgRows pgx.Rows
	if status != nil {
		pgRows, err = r.pool.Query(ctx, `
			SELECT `+proposalColumns+`
			FROM routing_proposals WHERE status = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3
		`, *status, limit, offset)
	} else {
		pgRows, err = r.pool.Query(ctx, `
			SELECT `+proposalColumns+`
			FROM routing_proposals
			ORDER BY created_at DESC LIMIT $1 OFFSET $2
		`, limit, offset)
	}
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("list proposals: %v", err)).WithOp(opListProposals)
	}
	defer pgRows.Close()

	items := make([]Proposal, 0)
	for pgRows.Next() {
		proposal, err := scanProposal(pgRows)
		if err != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("scan proposal: %v", err)).WithOp(opListProposals)
		}
		items = append(items, proposal)
	}
	if pgRows.Err() != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("list proposals: %v", pgRows.Err())).WithOp(opListProposals)
	}
	return items, total, nil
}

// UpdateStatus transitions a proposal, guarded by the allowed source states.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (Proposal, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE routing_proposals
		SET status = $2, decided_at = now()
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+proposalColumns,
		id, to, allowed,
	)
	proposal, err := scanProposal(row)
	if err == nil {
		return proposal, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Proposal{}, apperr.Internal(fmt.Sprintf("update status: %v", err)).WithOp(opUpdateStatus)
	}

	current, getErr := r.GetProposal(ctx, id)
	if getErr != nil {
		return Proposal{}, getErr
	}
	return Proposal{}, apperr.Conflict(
		fmt.Sprintf("proposal is %s, cannot transition to %s", current.Status, to),
	).WithOp(opUpdateStatus)
}

// OverrideAction replaces the action on a PROPOSED proposal and marks it
// OVERRIDDEN in a single statement.
func (r *Repository) OverrideAction(ctx context.Context, id uuid.UUID, action rules.Action, assignee string) (Proposal, error) {
	encoded, err := json.Marshal(action)
	if err != nil {
		return Proposal{}, apperr.Internal("encode action").WithOp(opOverrideAction)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE routing_proposals
		SET action = $2, assignee = $3, status = 'OVERRIDDEN', decided_at = now()
		WHERE id = $1 AND status = 'PROPOSED'
		RETURNING `+proposalColumns,
		id, encoded, assignee,
	)
	proposal, err := scanProposal(row)
	if err == nil {
		return proposal, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Proposal{}, apperr.Internal(fmt.Sprintf("override action: %v", err)).WithOp(opOverrideAction)
	}

	current, getErr := r.GetProposal(ctx, id)
	if getErr != nil {
		return Proposal{}, getErr
	}
	return Proposal{}, apperr.Conflict(
		fmt.Sprintf("proposal is %s, only PROPOSED can be overridden", current.Status),
	).WithOp(opOverrideAction)
}

// LatestAppliedForItem loads the most recent APPLIED proposal for an item.
func (r *Repository) LatestAppliedForItem(ctx context.Context, boardID, itemID string) (Proposal, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+proposalColumns+`
		FROM routing_proposals
		WHERE board_id = $1 AND item_id = $2 AND status = 'APPLIED'
		ORDER BY decided_at DESC NULLS LAST
		LIMIT 1
	`, boardID, itemID)
	proposal, err := scanProposal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Proposal{}, apperr.NotFound("no applied proposal for item").WithOp(opLatestApplied)
	}
	if err != nil {
		return Proposal{}, apperr.Internal(fmt.Sprintf("latest applied: %v", err)).WithOp(opLatestApplied)
	}
	return proposal, nil
}

// TryBeginApply inserts the apply guard row. The primary key makes the
// insert atomic; a conflicting insert reports false without error.
func (r *Repository) TryBeginApply(ctx context.Context, proposalID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO apply_guards (proposal_id) VALUES ($1)
		ON CONFLICT (proposal_id) DO NOTHING
	`, proposalID)
	if err != nil {
		return false, apperr.Internal(fmt.Sprintf("create apply guard: %v", err)).WithOp(opTryBeginApply)
	}
	return tag.RowsAffected() == 1, nil
}

// RejectStaleProposed rejects PROPOSED proposals created before the cutoff.
func (r *Repository) RejectStaleProposed(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE routing_proposals
		SET status = 'REJECTED', decided_at = now()
		WHERE status = 'PROPOSED' AND created_at < $1
	`, olderThan)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("reject stale proposals: %v", err)).WithOp(opRejectStale)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProposal(row rowScanner) (Proposal, error) {
	var (
		p            Proposal
		values       []byte
		selectedRule []byte
		action       []byte
		explains     []byte
	)
	err := row.Scan(
		&p.ID, &p.IdempotencyKey, &p.BoardID, &p.ItemID, &values,
		&selectedRule, &action, &p.Assignee, &explains, &p.Status,
		&p.CreatedAt, &p.DecidedAt,
	)
	if err != nil {
		return Proposal{}, err
	}

	if len(values) > 0 {
		p.NormalizedValues = make(map[string]normalize.Value)
		if err := json.Unmarshal(values, &p.NormalizedValues); err != nil {
			return Proposal{}, fmt.Errorf("decode normalized values: %w", err)
		}
	}
	if len(selectedRule) > 0 {
		var rule rules.Rule
		if err := json.Unmarshal(selectedRule, &rule); err != nil {
			return Proposal{}, fmt.Errorf("decode selected rule: %w", err)
		}
		p.SelectedRule = &rule
	}
	if len(action) > 0 {
		if err := json.Unmarshal(action, &p.Action); err != nil {
			return Proposal{}, fmt.Errorf("decode action: %w", err)
		}
	}
	if len(explains) > 0 {
		if err := json.Unmarshal(explains, &p.Explains); err != nil {
			return Proposal{}, fmt.Errorf("decode explains: %w", err)
		}
	}
	return p, nil
}
