package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FieldError describes a single field that could not be coerced. Errors are
// accumulated so every problem surfaces in one pass.
type FieldError struct {
	FieldID      string      `json:"fieldId"`
	ExpectedType FieldType   `json:"expectedType"`
	Reason       string      `json:"reason"`
	RawValue     interface{} `json:"rawValue,omitempty"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %s: expected %s: %s", e.FieldID, e.ExpectedType, e.Reason)
}

// Result holds normalized values keyed by field ID plus all coercion errors.
type Result struct {
	Values map[string]Value `json:"values"`
	Errors []FieldError     `json:"errors"`
}

// RequiredFieldFailed reports whether any required active field of the given
// schema produced an error. The rule engine must not run on such input.
func (r Result) RequiredFieldFailed(schema []FieldDefinition) bool {
	required := make(map[string]bool, len(schema))
	for _, f := range schema {
		if f.Active && f.Required {
			required[f.ID] = true
		}
	}
	for _, e := range r.Errors {
		if required[e.FieldID] {
			return true
		}
	}
	return false
}

// Normalize coerces raw per-field values into typed primitives for every
// active field of the target entity. It never panics; all problems are
// reported through the accumulated error slice.
func Normalize(schema []FieldDefinition, entity Entity, raw map[string]interface{}) Result {
	res := Result{Values: make(map[string]Value)}

	for _, field := range schema {
		if !field.Active || field.Entity != entity {
			continue
		}

		rawVal, present := raw[field.ID]
		if !present || isEmpty(rawVal) {
			res.Values[field.ID] = Null()
			if field.Required {
				res.Errors = append(res.Errors, FieldError{
					FieldID:      field.ID,
					ExpectedType: field.Type,
					Reason:       "required field is empty",
					RawValue:     rawVal,
				})
			}
			continue
		}

		val, err := coerce(field.Type, rawVal)
		if err != nil {
			res.Values[field.ID] = Null()
			res.Errors = append(res.Errors, FieldError{
				FieldID:      field.ID,
				ExpectedType: field.Type,
				Reason:       err.Error(),
				RawValue:     rawVal,
			})
			continue
		}
		res.Values[field.ID] = val
	}

	return res
}

func isEmpty(raw interface{}) bool {
	if raw == nil {
		return true
	}
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func coerce(t FieldType, raw interface{}) (Value, error) {
	switch t {
	case TypeText:
		return coerceText(raw)
	case TypeNumber:
		return coerceNumber(raw)
	case TypeBoolean:
		return coerceBoolean(raw)
	case TypeStatus:
		return coerceStatus(raw)
	case TypeDate:
		return coerceDate(raw)
	default:
		return Null(), fmt.Errorf("unknown field type %q", t)
	}
}

func coerceText(raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case string:
		return String(v), nil
	case bool:
		return String(strconv.FormatBool(v)), nil
	case map[string]interface{}:
		if label, ok := labelOrText(v); ok {
			return String(label), nil
		}
		return Null(), fmt.Errorf("object has no label or text property")
	default:
		if n, ok := asFloat(raw); ok {
			return String(strconv.FormatFloat(n, 'f', -1, 64)), nil
		}
		return Null(), fmt.Errorf("cannot represent %T as text", raw)
	}
}

func coerceNumber(raw interface{}) (Value, error) {
	if n, ok := asFloat(raw); ok {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return Null(), fmt.Errorf("value is not a finite number")
		}
		return Number(n), nil
	}
	if s, ok := raw.(string); ok {
		cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		n, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return Null(), fmt.Errorf("%q is not a finite number", s)
		}
		return Number(n), nil
	}
	return Null(), fmt.Errorf("cannot represent %T as number", raw)
}

func coerceBoolean(raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case bool:
		return Boolean(v), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1":
			return Boolean(true), nil
		case "false", "no", "n", "0":
			return Boolean(false), nil
		}
		return Null(), fmt.Errorf("%q is not a recognized boolean", v)
	default:
		if n, ok := asFloat(raw); ok {
			if n == 1 {
				return Boolean(true), nil
			}
			if n == 0 {
				return Boolean(false), nil
			}
			return Null(), fmt.Errorf("numeric boolean must be 0 or 1")
		}
		return Null(), fmt.Errorf("cannot represent %T as boolean", raw)
	}
}

func coerceStatus(raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case string:
		return String(v), nil
	case map[string]interface{}:
		if label, ok := labelOrText(v); ok {
			return String(label), nil
		}
		return Null(), fmt.Errorf("status object has no label or text property")
	default:
		return Null(), fmt.Errorf("cannot represent %T as status", raw)
	}
}

func coerceDate(raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case time.Time:
		return String(v.UTC().Format(time.RFC3339)), nil
	case string:
		return parseDateString(v)
	case map[string]interface{}:
		// {date, time} column shape from the external platform
		datePart, _ := v["date"].(string)
		if datePart == "" {
			return Null(), fmt.Errorf("date object has no date property")
		}
		timePart, _ := v["time"].(string)
		if timePart == "" {
			timePart = "00:00:00"
		}
		return parseDateString(datePart + "T" + timePart + "Z")
	default:
		if n, ok := asFloat(raw); ok {
			// Epoch milliseconds
			t := time.UnixMilli(int64(n)).UTC()
			return String(t.Format(time.RFC3339)), nil
		}
		return Null(), fmt.Errorf("cannot represent %T as date", raw)
	}
}

func parseDateString(s string) (Value, error) {
	trimmed := strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return String(t.UTC().Format(time.RFC3339)), nil
	}
	if len(trimmed) >= 10 {
		if t, err := time.Parse("2006-01-02", trimmed[:10]); err == nil {
			return String(t.UTC().Format(time.RFC3339)), nil
		}
	}
	return Null(), fmt.Errorf("%q is not a parsable date", s)
}

func labelOrText(obj map[string]interface{}) (string, bool) {
	if label, ok := obj["label"].(string); ok && label != "" {
		return label, true
	}
	if text, ok := obj["text"].(string); ok && text != "" {
		return text, true
	}
	return "", false
}

func asFloat(raw interface{}) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
