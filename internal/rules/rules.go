// Package rules evaluates priority-ordered routing rules against normalized
// lead values and produces a full per-rule explainability trace.
package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"leadrouting_backend/internal/normalize"
)

// Op is a condition comparator.
type Op string

const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
)

// ActionType discriminates what a matched rule assigns.
type ActionType string

const (
	ActionAssignAgentPool ActionType = "assign_agent_pool"
	ActionAssignAgentID   ActionType = "assign_agent_id"
)

// Action is what happens when a rule matches.
type Action struct {
	Type  ActionType `json:"type"`
	Value string     `json:"value"`
}

// Operand is the closed set of value shapes a condition may compare against:
// a scalar primitive or a list of scalar primitives.
type Operand struct {
	List   []normalize.Value
	Scalar normalize.Value
	IsList bool
}

// UnmarshalJSON accepts a JSON scalar or a JSON array of scalars.
func (o *Operand) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []normalize.Value
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("condition value: %w", err)
		}
		*o = Operand{List: list, IsList: true}
		return nil
	}
	var scalar normalize.Value
	if err := json.Unmarshal(data, &scalar); err != nil {
		return fmt.Errorf("condition value: %w", err)
	}
	*o = Operand{Scalar: scalar}
	return nil
}

// MarshalJSON renders the operand back to its JSON shape.
func (o Operand) MarshalJSON() ([]byte, error) {
	if o.IsList {
		return json.Marshal(o.List)
	}
	return json.Marshal(o.Scalar)
}

// Display renders the operand for explainability traces.
func (o Operand) Display() string {
	if !o.IsList {
		return o.Scalar.Display()
	}
	parts := make([]string, len(o.List))
	for i, v := range o.List {
		parts[i] = v.Display()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Condition is one field comparison within a rule.
type Condition struct {
	FieldID string  `json:"fieldId"`
	Op      Op      `json:"op"`
	Value   Operand `json:"value"`
}

// Rule is one admin-configured routing rule. Lower priority numbers take
// precedence.
type Rule struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Priority int         `json:"priority"`
	Enabled  bool        `json:"enabled"`
	When     []Condition `json:"when"`
	Then     Action      `json:"then"`
}
