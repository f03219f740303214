package datatype

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
)

// RuleKind tags the variant of a Rule.
type RuleKind string

const (
	RuleItemOfCollection RuleKind = "item_of_collection"
	RuleRegex            RuleKind = "regex"
	RuleContainsKey      RuleKind = "contains_key"
	RuleContainsType     RuleKind = "contains_type"
	RuleNumberRange      RuleKind = "number_range"
)

// Valid reports whether k is one of the known rule kinds.
func (k RuleKind) Valid() bool {
	switch k {
	case RuleItemOfCollection, RuleRegex, RuleContainsKey, RuleContainsType, RuleNumberRange:
		return true
	}
	return false
}

// Rule is a single structural predicate. Kind selects which payload
// fields are meaningful:
//
//	item_of_collection  Items
//	regex               Pattern
//	contains_key        Key, Type
//	contains_type       Type
//	number_range        From, To, Steps
type Rule struct {
	Kind    RuleKind `json:"kind" yaml:"kind"`
	Items   []any    `json:"items,omitempty" yaml:"items,omitempty"`
	Pattern string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Key     string   `json:"key,omitempty" yaml:"key,omitempty"`
	Type    string   `json:"type,omitempty" yaml:"type,omitempty"`
	From    *float64 `json:"from,omitempty" yaml:"from,omitempty"`
	To      *float64 `json:"to,omitempty" yaml:"to,omitempty"`
	Steps   *float64 `json:"steps,omitempty" yaml:"steps,omitempty"`

	compiled bool
	re       *regexp.Regexp
	reErr    error
}

// Resolver validates a nested value against a named type.
// Registry implements it; rules use it for contains_key and contains_type.
type Resolver interface {
	ValidateAt(value any, typeID, path string, depth int) []Violation
}

// ItemOfCollection builds an enum membership rule.
func ItemOfCollection(items ...any) Rule {
	return Rule{Kind: RuleItemOfCollection, Items: items}
}

// Regex builds a pattern rule.
func Regex(pattern string) Rule {
	return Rule{Kind: RuleRegex, Pattern: pattern}
}

// ContainsKey builds a required-key rule.
func ContainsKey(key, typeID string) Rule {
	return Rule{Kind: RuleContainsKey, Key: key, Type: typeID}
}

// ContainsType builds an element type rule.
func ContainsType(typeID string) Rule {
	return Rule{Kind: RuleContainsType, Type: typeID}
}

// NumberRange builds an inclusive range rule. steps may be zero for no step.
func NumberRange(from, to, steps float64) Rule {
	r := Rule{Kind: RuleNumberRange, From: &from, To: &to}
	if steps > 0 {
		r.Steps = &steps
	}
	return r
}

// compile prepares the rule for repeated evaluation. Items are normalized and
// regex patterns compiled once; a bad pattern is remembered so the rule
// fails closed on every evaluation.
func (r *Rule) compile() {
	if r.compiled {
		return
	}
	r.compiled = true
	switch r.Kind {
	case RuleItemOfCollection:
		items := make([]any, len(r.Items))
		for i, item := range r.Items {
			items[i] = Normalize(item)
		}
		r.Items = items
	case RuleRegex:
		r.re, r.reErr = regexp.Compile(r.Pattern)
	}
}

// Evaluate reports whether value satisfies rule. Nested type checks go
// through res. Malformed values evaluate false; nothing panics.
func Evaluate(rule Rule, value any, res Resolver) bool {
	rule.compile()
	normalized, overflow := NormalizeBounded(value)
	if len(overflow) > 0 {
		return false
	}
	return len(rule.check(normalized, "", res, "$", 0)) == 0
}

// check evaluates the rule against a normalized value and returns every
// failure it finds. owner is the type that declared the rule.
func (r *Rule) check(value any, owner string, res Resolver, path string, depth int) []Violation {
	switch r.Kind {
	case RuleItemOfCollection:
		return r.checkItemOfCollection(value, owner, path)
	case RuleRegex:
		return r.checkRegex(value, owner, path)
	case RuleContainsKey:
		return r.checkContainsKey(value, owner, res, path, depth)
	case RuleContainsType:
		return r.checkContainsType(value, owner, res, path, depth)
	case RuleNumberRange:
		return r.checkNumberRange(value, owner, path)
	default:
		return []Violation{{
			Kind:           ViolationInvalidFormat,
			TypeIdentifier: owner,
			Rule:           r.Kind,
			Path:           path,
			Explanation:    fmt.Sprintf("unknown rule kind %q", r.Kind),
		}}
	}
}

func (r *Rule) checkItemOfCollection(value any, owner, path string) []Violation {
	for _, item := range r.Items {
		if reflect.DeepEqual(item, value) {
			return nil
		}
	}
	return []Violation{{
		Kind:           ViolationItemOfCollection,
		TypeIdentifier: owner,
		Rule:           r.Kind,
		Path:           path,
		Explanation:    fmt.Sprintf("value %s is not one of the allowed items", render(value)),
		Details:        map[string]any{"value": value, "items": r.Items},
	}}
}

func (r *Rule) checkRegex(value any, owner, path string) []Violation {
	if r.reErr != nil || r.re == nil {
		return []Violation{{
			Kind:           ViolationInvalidRegexPattern,
			TypeIdentifier: owner,
			Rule:           r.Kind,
			Path:           path,
			Explanation:    fmt.Sprintf("pattern %q cannot be compiled", r.Pattern),
			Details:        map[string]any{"pattern": r.Pattern},
		}}
	}
	s, ok := value.(string)
	if !ok {
		return []Violation{{
			Kind:           ViolationRegexTypeNotAccepted,
			TypeIdentifier: owner,
			Rule:           r.Kind,
			Path:           path,
			Explanation:    fmt.Sprintf("regex rules only accept text, got %s", kindOf(value)),
			Details:        map[string]any{"pattern": r.Pattern, "kind": kindOf(value)},
		}}
	}
	if !r.re.MatchString(s) {
		return []Violation{{
			Kind:           ViolationRegex,
			TypeIdentifier: owner,
			Rule:           r.Kind,
			Path:           path,
			Explanation:    fmt.Sprintf("value %q does not match pattern %q", s, r.Pattern),
			Details:        map[string]any{"pattern": r.Pattern, "value": s},
		}}
	}
	return nil
}

func (r *Rule) checkContainsKey(value any, owner string, res Resolver, path string, depth int) []Violation {
	obj, ok := value.(map[string]any)
	if !ok {
		return []Violation{{
			Kind:           ViolationContainsKeyTypeNotAccepted,
			TypeIdentifier: owner,
			Rule:           r.Kind,
			Path:           path,
			Explanation:    fmt.Sprintf("key %q can only be looked up in an object, got %s", r.Key, kindOf(value)),
			Details:        map[string]any{"key": r.Key, "kind": kindOf(value)},
		}}
	}
	nested, ok := obj[r.Key]
	if !ok {
		return []Violation{{
			Kind:           ViolationContainsKey,
			TypeIdentifier: owner,
			Rule:           r.Kind,
			Path:           path,
			Explanation:    fmt.Sprintf("missing required key %q", r.Key),
			Details:        map[string]any{"key": r.Key, "expected_type": r.Type},
		}}
	}
	return descend(res, nested, r.Type, keyPath(path, r.Key), depth+1)
}

func (r *Rule) checkContainsType(value any, owner string, res Resolver, path string, depth int) []Violation {
	items, ok := value.([]any)
	if !ok {
		return []Violation{{
			Kind:           ViolationContainsTypeTypeNotAccepted,
			TypeIdentifier: owner,
			Rule:           r.Kind,
			Path:           path,
			Explanation:    fmt.Sprintf("element types can only be checked on an array, got %s", kindOf(value)),
			Details:        map[string]any{"expected_type": r.Type, "kind": kindOf(value)},
		}}
	}
	var out []Violation
	for i, item := range items {
		out = append(out, descend(res, item, r.Type, indexPath(path, i), depth+1)...)
	}
	return out
}

func (r *Rule) checkNumberRange(value any, owner, path string) []Violation {
	n, ok := value.(float64)
	if !ok {
		return []Violation{{
			Kind:           ViolationNumberRangeTypeNotAccepted,
			TypeIdentifier: owner,
			Rule:           r.Kind,
			Path:           path,
			Explanation:    fmt.Sprintf("number ranges only accept numbers, got %s", kindOf(value)),
			Details:        map[string]any{"kind": kindOf(value)},
		}}
	}

	fail := func(reason string) []Violation {
		details := map[string]any{"value": n}
		if r.From != nil {
			details["from"] = *r.From
		}
		if r.To != nil {
			details["to"] = *r.To
		}
		if r.Steps != nil {
			details["steps"] = *r.Steps
		}
		return []Violation{{
			Kind:           ViolationNumberRange,
			TypeIdentifier: owner,
			Rule:           r.Kind,
			Path:           path,
			Explanation:    fmt.Sprintf("value %s %s", strconv.FormatFloat(n, 'g', -1, 64), reason),
			Details:        details,
		}}
	}

	if r.From != nil && n < *r.From {
		return fail(fmt.Sprintf("is below %s", strconv.FormatFloat(*r.From, 'g', -1, 64)))
	}
	if r.To != nil && n > *r.To {
		return fail(fmt.Sprintf("is above %s", strconv.FormatFloat(*r.To, 'g', -1, 64)))
	}
	if r.Steps != nil && *r.Steps > 0 {
		base := 0.0
		if r.From != nil {
			base = *r.From
		}
		q := (n - base) / *r.Steps
		if math.Abs(q-math.Round(q)) > 1e-9 {
			return fail(fmt.Sprintf("is not a multiple of step %s", strconv.FormatFloat(*r.Steps, 'g', -1, 64)))
		}
	}
	return nil
}

// descend validates a nested value. Without a resolver nested types cannot
// be checked, so the value fails.
func descend(res Resolver, value any, typeID, path string, depth int) []Violation {
	if res == nil {
		return []Violation{{
			Kind:           ViolationUnknownDataType,
			TypeIdentifier: typeID,
			Path:           path,
			Explanation:    fmt.Sprintf("type %q cannot be resolved", typeID),
		}}
	}
	return res.ValidateAt(value, typeID, path, depth)
}

func keyPath(path, key string) string {
	return path + "." + key
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
