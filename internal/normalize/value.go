// Package normalize converts raw external column values into typed internal
// primitives according to an admin-defined field schema.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Entity identifies which record type a field belongs to.
type Entity string

const (
	EntityLead  Entity = "lead"
	EntityAgent Entity = "agent"
	EntityDeal  Entity = "deal"
)

// FieldType is the declared internal type of a schema field.
type FieldType string

const (
	TypeText    FieldType = "text"
	TypeNumber  FieldType = "number"
	TypeStatus  FieldType = "status"
	TypeDate    FieldType = "date"
	TypeBoolean FieldType = "boolean"
)

// FieldDefinition is one admin-defined schema field. Definitions are
// versioned externally and immutable once referenced by a rule.
type FieldDefinition struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Entity   Entity    `json:"entity"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Active   bool      `json:"active"`
}

// Kind discriminates the value union.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return "null"
	}
}

// Value is a closed tagged union of the primitive kinds a normalized field
// can hold. Dates are carried as ISO 8601 strings.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Boolean returns a boolean value.
func Boolean(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal compares two values. Values of different kinds are never equal;
// null equals only null.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	default:
		return true
	}
}

// MarshalJSON renders the underlying primitive, not the union envelope, so
// normalized values serialize the way the rest of the pipeline stores them.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON restores a Value from its primitive representation.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := string(data)
	if trimmed == "null" {
		*v = Null()
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = Boolean(b)
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = Number(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = String(s)
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into Value", trimmed)
}

// Display renders the value for explainability traces.
func (v Value) Display() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return "null"
	}
}
