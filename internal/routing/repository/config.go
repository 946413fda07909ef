package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"leadrouting_backend/internal/normalize"
	"leadrouting_backend/internal/rules"
	"leadrouting_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
)

const (
	opGetSchema   = "repository.GetSchema"
	opGetMappings = "repository.GetMappings"
	opGetRules    = "repository.GetRules"
	opGetSettings = "repository.GetSettings"
)

// Revision names in config_revisions. The admin surface bumps these when it
// edits the corresponding configuration.
const (
	revisionSchema  = "schema"
	revisionMapping = "mapping"
	revisionRules   = "rules"
)

// GetSchema reads the active field schema and its revision.
func (r *Repository) GetSchema(ctx context.Context) ([]normalize.FieldDefinition, int, error) {
	version, err := r.revision(ctx, revisionSchema)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("schema revision: %v", err)).WithOp(opGetSchema)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, label, entity, field_type, required, active
		FROM schema_fields
		ORDER BY id
	`)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("load schema: %v", err)).WithOp(opGetSchema)
	}
	defer rows.Close()

	fields := make([]normalize.FieldDefinition, 0)
	for rows.Next() {
		var f normalize.FieldDefinition
		if err := rows.Scan(&f.ID, &f.Label, &f.Entity, &f.Type, &f.Required, &f.Active); err != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("scan schema field: %v", err)).WithOp(opGetSchema)
		}
		fields = append(fields, f)
	}
	if rows.Err() != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("load schema: %v", rows.Err())).WithOp(opGetSchema)
	}
	return fields, version, nil
}

// GetMappings reads the field-to-column mapping and writeback targets.
func (r *Repository) GetMappings(ctx context.Context) (MappingConfig, int, error) {
	version, err := r.revision(ctx, revisionMapping)
	if err != nil {
		return MappingConfig{}, 0, apperr.Internal(fmt.Sprintf("mapping revision: %v", err)).WithOp(opGetMappings)
	}

	var cfg MappingConfig
	err = r.pool.QueryRow(ctx, `
		SELECT assignee_column_id, status_column_id, reason_column_id, industry_field_id
		FROM field_mapping_targets
		LIMIT 1
	`).Scan(&cfg.AssigneeColumnID, &cfg.StatusColumnID, &cfg.ReasonColumnID, &cfg.IndustryFieldID)
	if errors.Is(err, pgx.ErrNoRows) {
		return MappingConfig{}, 0, apperr.NotFound("field mapping is not configured").WithOp(opGetMappings)
	}
	if err != nil {
		return MappingConfig{}, 0, apperr.Internal(fmt.Sprintf("load mapping targets: %v", err)).WithOp(opGetMappings)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT field_id, board_id, column_id
		FROM field_mappings
		ORDER BY field_id
	`)
	if err != nil {
		return MappingConfig{}, 0, apperr.Internal(fmt.Sprintf("load mappings: %v", err)).WithOp(opGetMappings)
	}
	defer rows.Close()

	for rows.Next() {
		var m FieldMapping
		if err := rows.Scan(&m.FieldID, &m.BoardID, &m.ColumnID); err != nil {
			return MappingConfig{}, 0, apperr.Internal(fmt.Sprintf("scan mapping: %v", err)).WithOp(opGetMappings)
		}
		cfg.Fields = append(cfg.Fields, m)
	}
	if rows.Err() != nil {
		return MappingConfig{}, 0, apperr.Internal(fmt.Sprintf("load mappings: %v", rows.Err())).WithOp(opGetMappings)
	}
	return cfg, version, nil
}

// GetRules reads the rule set ordered by priority.
func (r *Repository) GetRules(ctx context.Context) ([]rules.Rule, int, error) {
	version, err := r.revision(ctx, revisionRules)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("rules revision: %v", err)).WithOp(opGetRules)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, priority, enabled, conditions, action
		FROM routing_rules
		ORDER BY priority ASC, id ASC
	`)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("load rules: %v", err)).WithOp(opGetRules)
	}
	defer rows.Close()

	ruleSet := make([]rules.Rule, 0)
	for rows.Next() {
		var (
			rule       rules.Rule
			conditions []byte
			action     []byte
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Priority, &rule.Enabled, &conditions, &action); err != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("scan rule: %v", err)).WithOp(opGetRules)
		}
		if err := json.Unmarshal(conditions, &rule.When); err != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("decode rule conditions: %v", err)).WithOp(opGetRules)
		}
		if err := json.Unmarshal(action, &rule.Then); err != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("decode rule action: %v", err)).WithOp(opGetRules)
		}
		ruleSet = append(ruleSet, rule)
	}
	if rows.Err() != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("load rules: %v", rows.Err())).WithOp(opGetRules)
	}
	return ruleSet, version, nil
}

// GetSettings reads the routing mode switch. A missing row defaults to
// manual approval, the safe mode.
func (r *Repository) GetSettings(ctx context.Context) (Settings, error) {
	var mode string
	err := r.pool.QueryRow(ctx, `SELECT mode FROM routing_settings LIMIT 1`).Scan(&mode)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{Mode: ModeManualApproval}, nil
	}
	if err != nil {
		return Settings{}, apperr.Internal(fmt.Sprintf("load settings: %v", err)).WithOp(opGetSettings)
	}
	return Settings{Mode: RoutingMode(mode)}, nil
}

func (r *Repository) revision(ctx context.Context, name string) (int, error) {
	var version int
	err := r.pool.QueryRow(ctx,
		`SELECT version FROM config_revisions WHERE name = $1`, name).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return version, err
}
