package datatype_test

import (
	"strings"
	"testing"

	"github.com/artpar/flowgate/domain/datatype"
)

func TestEvaluate_ItemOfCollection(t *testing.T) {
	rule := datatype.ItemOfCollection("GET", "POST", 3)

	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"member text", "GET", true},
		{"member number from int", 3, true},
		{"member number from float", 3.0, true},
		{"not a member", "FETCH", false},
		{"case sensitive", "get", false},
		{"null", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := datatype.Evaluate(rule, tt.value, nil); got != tt.want {
				t.Errorf("Evaluate(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Regex(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		value   any
		want    bool
	}{
		{"match", `^/users`, "/users/1", true},
		{"no match", `^/users`, "/orders", false},
		{"unanchored", `orders`, "/v1/orders/5", true},
		{"number is not text", `^\d+$`, 42, false},
		{"object is not text", `.*`, map[string]any{}, false},
		{"invalid pattern fails closed", `([a-z`, "abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := datatype.Evaluate(datatype.Regex(tt.pattern), tt.value, nil)
			if got != tt.want {
				t.Errorf("Evaluate(regex %q, %v) = %v, want %v", tt.pattern, tt.value, got, tt.want)
			}
		})
	}
}

func TestEvaluate_NumberRange(t *testing.T) {
	tests := []struct {
		name  string
		rule  datatype.Rule
		value any
		want  bool
	}{
		{"inside", datatype.NumberRange(1, 10, 0), 5, true},
		{"lower bound inclusive", datatype.NumberRange(1, 10, 0), 1, true},
		{"upper bound inclusive", datatype.NumberRange(1, 10, 0), 10, true},
		{"below", datatype.NumberRange(1, 10, 0), 0, false},
		{"above", datatype.NumberRange(1, 10, 0), 11, false},
		{"on step", datatype.NumberRange(0, 100, 5), 25, true},
		{"off step", datatype.NumberRange(0, 100, 5), 26, false},
		{"step from offset", datatype.NumberRange(1, 100, 2), 7, true},
		{"fractional step", datatype.NumberRange(0, 1, 0.25), 0.75, true},
		{"text is not a number", datatype.NumberRange(0, 10, 0), "5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := datatype.Evaluate(tt.rule, tt.value, nil); got != tt.want {
				t.Errorf("Evaluate(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestEvaluate_ContainsKeyAndType(t *testing.T) {
	reg, err := datatype.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}

	hasName := datatype.ContainsKey("name", datatype.Text)
	if !datatype.Evaluate(hasName, map[string]any{"name": "ada"}, reg) {
		t.Error("contains_key should accept object with text name")
	}
	if datatype.Evaluate(hasName, map[string]any{"name": 7}, reg) {
		t.Error("contains_key should reject a name that is not text")
	}
	if datatype.Evaluate(hasName, map[string]any{}, reg) {
		t.Error("contains_key should reject a missing key")
	}
	if datatype.Evaluate(hasName, []any{"name"}, reg) {
		t.Error("contains_key should reject an array")
	}

	numbers := datatype.ContainsType(datatype.Number)
	if !datatype.Evaluate(numbers, []any{1, 2.5, 3}, reg) {
		t.Error("contains_type should accept an array of numbers")
	}
	if !datatype.Evaluate(numbers, []any{}, reg) {
		t.Error("contains_type should accept an empty array")
	}
	if datatype.Evaluate(numbers, []any{1, "two"}, reg) {
		t.Error("contains_type should reject a mixed array")
	}
	if datatype.Evaluate(numbers, map[string]any{}, reg) {
		t.Error("contains_type should reject an object")
	}
}

func TestEvaluate_NestedWithoutResolver(t *testing.T) {
	if datatype.Evaluate(datatype.ContainsKey("a", datatype.Any), map[string]any{"a": 1}, nil) {
		t.Error("nested rule without resolver should evaluate false")
	}
}

func TestRuleKind_Valid(t *testing.T) {
	for _, k := range []datatype.RuleKind{
		datatype.RuleItemOfCollection,
		datatype.RuleRegex,
		datatype.RuleContainsKey,
		datatype.RuleContainsType,
		datatype.RuleNumberRange,
	} {
		if !k.Valid() {
			t.Errorf("%s.Valid() = false, want true", k)
		}
	}
	if datatype.RuleKind("one_of").Valid() {
		t.Error("unknown kind reported valid")
	}
}

func TestNormalize(t *testing.T) {
	got := datatype.Normalize(map[any]any{
		"count": 3,
		"tags":  []string{"a", "b"},
		"inner": map[string]any{"n": int64(2)},
	})

	obj, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Normalize returned %T, want map[string]any", got)
	}
	if obj["count"] != 3.0 {
		t.Errorf("count = %v (%T), want float64 3", obj["count"], obj["count"])
	}
	tags, ok := obj["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "a" {
		t.Errorf("tags = %v, want [a b]", obj["tags"])
	}
	inner := obj["inner"].(map[string]any)
	if inner["n"] != 2.0 {
		t.Errorf("inner.n = %v, want 2", inner["n"])
	}
}

func TestNormalizeBounded(t *testing.T) {
	cyclic := map[string]any{"name": "loop"}
	cyclic["self"] = cyclic

	type named map[string]any
	cyclicNamed := named{}
	cyclicNamed["self"] = cyclicNamed

	list := []any{1}
	list[0] = list

	tests := []struct {
		name     string
		value    any
		wantPath string
	}{
		{"self-referential map", cyclic, "$" + strings.Repeat(".self", datatype.MaxDepth+1)},
		{"self-referential named map", cyclicNamed, "$" + strings.Repeat(".self", datatype.MaxDepth+1)},
		{"self-referential list", list, "$" + strings.Repeat("[0]", datatype.MaxDepth+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, violations := datatype.NormalizeBounded(tt.value)
			if len(violations) != 1 {
				t.Fatalf("violations = %+v, want one", violations)
			}
			if violations[0].Kind != datatype.ViolationMaxDepthExceeded {
				t.Errorf("Kind = %s, want MaxDepthExceeded", violations[0].Kind)
			}
			if violations[0].Path != tt.wantPath {
				t.Errorf("Path = %s, want %s", violations[0].Path, tt.wantPath)
			}
		})
	}

	if _, violations := datatype.NormalizeBounded(map[string]any{"a": []any{map[string]any{}}}); violations != nil {
		t.Errorf("shallow value reported %+v", violations)
	}
	if got := datatype.Normalize(cyclic); got == nil {
		t.Error("Normalize of a cyclic map returned nil, want the bounded copy")
	}
}

func TestRegistry_ValidateSelfReferential(t *testing.T) {
	reg := mustRegistry(t, nil)
	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	out, err := reg.Validate(cyclic, datatype.Object)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if len(out.Violations) != 1 || out.Violations[0].Kind != datatype.ViolationMaxDepthExceeded {
		t.Fatalf("violations = %+v, want one MaxDepthExceeded", out.Violations)
	}
	if out.Violations[0].TypeIdentifier != datatype.Object {
		t.Errorf("data type = %s, want %s", out.Violations[0].TypeIdentifier, datatype.Object)
	}
	if datatype.Evaluate(datatype.ContainsKey("self", datatype.Object), cyclic, reg) {
		t.Error("Evaluate accepted a self-referential value")
	}
}
