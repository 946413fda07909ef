package rules

import (
	"sort"
	"strings"

	"leadrouting_backend/internal/normalize"
)

// ConditionExplain records the outcome of one condition check.
type ConditionExplain struct {
	FieldID  string `json:"fieldId"`
	Op       Op     `json:"op"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

// RuleExplain records the outcome of one rule evaluation.
type RuleExplain struct {
	RuleID     string             `json:"ruleId"`
	RuleName   string             `json:"ruleName"`
	Priority   int                `json:"priority"`
	Matched    bool               `json:"matched"`
	Conditions []ConditionExplain `json:"conditions"`
}

// Outcome is the result of evaluating a rule set. No match is a valid,
// non-error outcome.
type Outcome struct {
	Matched  bool          `json:"matched"`
	Selected *Rule         `json:"selectedRule,omitempty"`
	Explains []RuleExplain `json:"explains"`
}

// Evaluate checks every enabled rule against the normalized values, in
// ascending priority order. All rules are evaluated even after a match so
// the trace shows each rule's per-condition result; only the first full
// match is selected.
func Evaluate(values map[string]normalize.Value, ruleSet []Rule) Outcome {
	enabled := make([]Rule, 0, len(ruleSet))
	for _, r := range ruleSet {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})

	out := Outcome{Explains: make([]RuleExplain, 0, len(enabled))}
	for i := range enabled {
		rule := enabled[i]
		explain := RuleExplain{
			RuleID:     rule.ID,
			RuleName:   rule.Name,
			Priority:   rule.Priority,
			Matched:    true,
			Conditions: make([]ConditionExplain, 0, len(rule.When)),
		}

		for _, cond := range rule.When {
			actual := values[cond.FieldID]
			passed := check(cond, actual)
			explain.Conditions = append(explain.Conditions, ConditionExplain{
				FieldID:  cond.FieldID,
				Op:       cond.Op,
				Expected: cond.Value.Display(),
				Actual:   actual.Display(),
				Passed:   passed,
			})
			if !passed {
				explain.Matched = false
			}
		}

		out.Explains = append(out.Explains, explain)
		if explain.Matched && !out.Matched {
			out.Matched = true
			selected := rule
			out.Selected = &selected
		}
	}

	return out
}

// check applies one comparator. A null actual value only ever satisfies an
// explicit "eq null" condition.
func check(cond Condition, actual normalize.Value) bool {
	switch cond.Op {
	case OpEq:
		if cond.Value.IsList {
			return false
		}
		return actual.Equal(cond.Value.Scalar)
	case OpNeq:
		if cond.Value.IsList {
			return false
		}
		return !actual.Equal(cond.Value.Scalar)
	case OpGt, OpGte, OpLt, OpLte:
		return checkOrdering(cond.Op, actual, cond.Value)
	case OpIn:
		if !cond.Value.IsList {
			return false
		}
		for _, candidate := range cond.Value.List {
			if actual.Equal(candidate) {
				return true
			}
		}
		return false
	case OpContains:
		if cond.Value.IsList {
			return false
		}
		if actual.Kind != normalize.KindString || cond.Value.Scalar.Kind != normalize.KindString {
			return false
		}
		return strings.Contains(actual.Str, cond.Value.Scalar.Str)
	default:
		return false
	}
}

// checkOrdering requires both operands to be numeric; anything else fails.
func checkOrdering(op Op, actual normalize.Value, expected Operand) bool {
	if expected.IsList {
		return false
	}
	if actual.Kind != normalize.KindNumber || expected.Scalar.Kind != normalize.KindNumber {
		return false
	}
	a, b := actual.Num, expected.Scalar.Num
	switch op {
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	default:
		return false
	}
}
