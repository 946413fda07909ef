package normalize

import (
	"testing"
	"time"
)

func leadSchema() []FieldDefinition {
	return []FieldDefinition{
		{ID: "budget", Label: "Budget", Entity: EntityLead, Type: TypeNumber, Required: true, Active: true},
		{ID: "industry", Label: "Industry", Entity: EntityLead, Type: TypeText, Required: false, Active: true},
		{ID: "urgent", Label: "Urgent", Entity: EntityLead, Type: TypeBoolean, Required: false, Active: true},
		{ID: "stage", Label: "Stage", Entity: EntityLead, Type: TypeStatus, Required: false, Active: true},
		{ID: "contact_by", Label: "Contact by", Entity: EntityLead, Type: TypeDate, Required: false, Active: true},
		{ID: "legacy", Label: "Legacy", Entity: EntityLead, Type: TypeText, Required: false, Active: false},
		{ID: "region", Label: "Region", Entity: EntityDeal, Type: TypeText, Required: false, Active: true},
	}
}

func TestNormalizeNumberCoercions(t *testing.T) {
	cases := []struct {
		name string
		raw  interface{}
		want float64
	}{
		{"plain string", "1200", 1200},
		{"thousands separator", "1,200", 1200},
		{"float string", "99.5", 99.5},
		{"native float", 42.0, 42},
		{"native int", 7, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Normalize(leadSchema(), EntityLead, map[string]interface{}{"budget": tc.raw})
			if len(res.Errors) != 0 {
				t.Fatalf("unexpected errors: %v", res.Errors)
			}
			got := res.Values["budget"]
			if got.Kind != KindNumber || got.Num != tc.want {
				t.Fatalf("budget = %+v, want number %v", got, tc.want)
			}
		})
	}
}

func TestNormalizeNumberRejectsGarbage(t *testing.T) {
	res := Normalize(leadSchema(), EntityLead, map[string]interface{}{"budget": "a lot"})
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", res.Errors)
	}
	if res.Errors[0].FieldID != "budget" || res.Errors[0].ExpectedType != TypeNumber {
		t.Fatalf("unexpected error: %+v", res.Errors[0])
	}
	if v := res.Values["budget"]; !v.IsNull() {
		t.Fatalf("failed field must be null, got %+v", v)
	}
}

func TestNormalizeBooleanSynonyms(t *testing.T) {
	trueish := []interface{}{"yes", "Y", "TRUE", "1", 1, true}
	falseish := []interface{}{"no", "n", "False", "0", 0, false}

	for _, raw := range trueish {
		res := Normalize(leadSchema(), EntityLead, map[string]interface{}{"budget": 1, "urgent": raw})
		if v := res.Values["urgent"]; v.Kind != KindBool || !v.Bool {
			t.Fatalf("raw %v: got %+v, want true", raw, v)
		}
	}
	for _, raw := range falseish {
		res := Normalize(leadSchema(), EntityLead, map[string]interface{}{"budget": 1, "urgent": raw})
		if v := res.Values["urgent"]; v.Kind != KindBool || v.Bool {
			t.Fatalf("raw %v: got %+v, want false", raw, v)
		}
	}

	res := Normalize(leadSchema(), EntityLead, map[string]interface{}{"budget": 1, "urgent": "maybe"})
	if len(res.Errors) != 1 {
		t.Fatalf("expected error for ambiguous boolean, got %v", res.Errors)
	}
}

func TestNormalizeDateVariants(t *testing.T) {
	cases := []struct {
		name string
		raw  interface{}
		want string
	}{
		{"rfc3339", "2026-03-01T10:30:00Z", "2026-03-01T10:30:00Z"},
		{"date prefix", "2026-03-01", "2026-03-01T00:00:00Z"},
		{"time.Time", time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), "2026-03-01T10:30:00Z"},
		{"epoch millis", float64(1772361000000), time.UnixMilli(1772361000000).UTC().Format(time.RFC3339)},
		{"date-time map", map[string]interface{}{"date": "2026-03-01", "time": "10:30:00"}, "2026-03-01T10:30:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Normalize(leadSchema(), EntityLead, map[string]interface{}{"budget": 1, "contact_by": tc.raw})
			if len(res.Errors) != 0 {
				t.Fatalf("unexpected errors: %v", res.Errors)
			}
			got := res.Values["contact_by"]
			if got.Kind != KindString || got.Str != tc.want {
				t.Fatalf("contact_by = %+v, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeObjectLabel(t *testing.T) {
	res := Normalize(leadSchema(), EntityLead, map[string]interface{}{
		"budget": 1,
		"stage":  map[string]interface{}{"label": "Qualified"},
	})
	if v := res.Values["stage"]; v.Kind != KindString || v.Str != "Qualified" {
		t.Fatalf("stage = %+v, want Qualified", v)
	}
}

func TestNormalizeMissingValuesAreNull(t *testing.T) {
	res := Normalize(leadSchema(), EntityLead, map[string]interface{}{"budget": 1})
	for _, id := range []string{"industry", "urgent", "stage", "contact_by"} {
		v, ok := res.Values[id]
		if !ok || v.Kind != KindNull {
			t.Fatalf("field %s = %+v, want explicit null", id, v)
		}
	}
}

func TestNormalizeSkipsInactiveAndOtherEntities(t *testing.T) {
	res := Normalize(leadSchema(), EntityLead, map[string]interface{}{
		"budget": 1,
		"legacy": "x",
		"region": "EU",
	})
	if _, ok := res.Values["legacy"]; ok {
		t.Fatal("inactive field must be skipped")
	}
	if _, ok := res.Values["region"]; ok {
		t.Fatal("deal field must be skipped for lead entity")
	}
}

func TestRequiredFieldFailed(t *testing.T) {
	schema := leadSchema()

	res := Normalize(schema, EntityLead, map[string]interface{}{"budget": "junk"})
	if !res.RequiredFieldFailed(schema) {
		t.Fatal("required budget failure must block")
	}

	res = Normalize(schema, EntityLead, map[string]interface{}{"budget": 10, "urgent": "maybe"})
	if res.RequiredFieldFailed(schema) {
		t.Fatal("optional field failure must not block")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("optional failure still reported, got %v", res.Errors)
	}
}
