package datatype

import (
	"errors"
	"fmt"
)

// MaxDepth is the deepest nesting level validated. Deeper values fail with
// a MaxDepthExceeded violation.
const MaxDepth = 64

// Definition-time errors.
var (
	ErrDuplicateTypeIdentifier = errors.New("duplicate type identifier")
	ErrUnknownParentType       = errors.New("unknown parent type")
	ErrCyclicTypeHierarchy     = errors.New("cyclic type hierarchy")
	ErrUnknownType             = errors.New("unknown type")
	ErrUnknownRuleKind         = errors.New("unknown rule kind")
	ErrEmptyIdentifier         = errors.New("empty type identifier")
)

// Registry is an immutable set of data types indexed by identifier.
// Types are stored in an arena; parents are resolved to arena indices and
// each type's root-to-leaf chain is precomputed, so Validate never locks
// and never allocates for lookups.
type Registry struct {
	types []entry
	index map[string]int
}

type entry struct {
	def     DataType
	builtin bool
	shape   shape
	parent  int   // -1 for roots
	chain   []int // root first, this type last
}

// NewRegistry builds a registry from types in order. The built-in roots are
// always present. Fails with ErrDuplicateTypeIdentifier,
// ErrUnknownParentType, ErrCyclicTypeHierarchy, ErrUnknownType (a rule
// references a missing type) or ErrUnknownRuleKind.
func NewRegistry(types []DataType) (*Registry, error) {
	r := &Registry{
		types: make([]entry, 0, len(builtins)+len(types)),
		index: make(map[string]int, len(builtins)+len(types)),
	}

	for _, b := range builtins {
		r.index[b.def.Identifier] = len(r.types)
		r.types = append(r.types, entry{def: b.def, builtin: true, shape: b.shape, parent: -1})
	}

	// 1. Index every type
	for _, t := range types {
		if t.Identifier == "" {
			return nil, ErrEmptyIdentifier
		}
		if _, exists := r.index[t.Identifier]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTypeIdentifier, t.Identifier)
		}
		def := t
		if def.Variant == "" {
			def.Variant = VariantType
		}
		def.Rules = make([]Rule, len(t.Rules))
		copy(def.Rules, t.Rules)
		r.index[def.Identifier] = len(r.types)
		r.types = append(r.types, entry{def: def, parent: -1})
	}

	// 2. Resolve parents
	for i := range r.types {
		e := &r.types[i]
		if !e.def.HasParent() {
			continue
		}
		p, ok := r.index[e.def.ParentTypeIdentifier]
		if !ok {
			return nil, fmt.Errorf("%w: %s (parent of %s)", ErrUnknownParentType, e.def.ParentTypeIdentifier, e.def.Identifier)
		}
		e.parent = p
	}

	// 3. Walk every parent chain with a visited set
	for i := range r.types {
		chain, err := r.resolveChain(i)
		if err != nil {
			return nil, err
		}
		r.types[i].chain = chain
	}

	// 4. Check and compile rules
	for i := range r.types {
		e := &r.types[i]
		for j := range e.def.Rules {
			rule := &e.def.Rules[j]
			if !rule.Kind.Valid() {
				return nil, fmt.Errorf("%w: %q in %s", ErrUnknownRuleKind, rule.Kind, e.def.Identifier)
			}
			if rule.Kind == RuleContainsKey || rule.Kind == RuleContainsType {
				if !r.Has(rule.Type) {
					return nil, fmt.Errorf("%w: %q referenced by %s rule of %s", ErrUnknownType, rule.Type, rule.Kind, e.def.Identifier)
				}
			}
			rule.compile()
		}
	}

	return r, nil
}

func (r *Registry) resolveChain(i int) ([]int, error) {
	visited := make(map[int]bool)
	var leafToRoot []int
	for cur := i; cur != -1; cur = r.types[cur].parent {
		if visited[cur] {
			return nil, fmt.Errorf("%w: %s", ErrCyclicTypeHierarchy, r.describeCycle(cur))
		}
		visited[cur] = true
		leafToRoot = append(leafToRoot, cur)
	}
	chain := make([]int, len(leafToRoot))
	for k, idx := range leafToRoot {
		chain[len(leafToRoot)-1-k] = idx
	}
	return chain, nil
}

func (r *Registry) describeCycle(start int) string {
	s := r.types[start].def.Identifier
	for cur := r.types[start].parent; cur != -1 && cur != start; cur = r.types[cur].parent {
		s += " -> " + r.types[cur].def.Identifier
	}
	return s + " -> " + r.types[start].def.Identifier
}

// Extend returns a new registry holding the receiver's user types followed
// by types. The receiver is unchanged.
func (r *Registry) Extend(types []DataType) (*Registry, error) {
	all := r.UserTypes()
	all = append(all, types...)
	return NewRegistry(all)
}

// Has reports whether a type is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Get returns a registered type.
func (r *Registry) Get(id string) (DataType, bool) {
	i, ok := r.index[id]
	if !ok {
		return DataType{}, false
	}
	return r.types[i].def, true
}

// Chain returns the identifiers of a type's ancestry, root first.
func (r *Registry) Chain(id string) ([]string, error) {
	i, ok := r.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, id)
	}
	out := make([]string, len(r.types[i].chain))
	for k, idx := range r.types[i].chain {
		out[k] = r.types[idx].def.Identifier
	}
	return out, nil
}

// UserTypes returns the registered non built-in types in registration order.
func (r *Registry) UserTypes() []DataType {
	out := make([]DataType, 0, len(r.types)-len(builtins))
	for _, e := range r.types {
		if !e.builtin {
			out = append(out, e.def)
		}
	}
	return out
}

// Len returns the number of registered types, built-ins included.
func (r *Registry) Len() int {
	return len(r.types)
}

// Validate checks value against the named type. Rules are evaluated along
// the parent chain from root to leaf, so diagnostics list base rules first.
func (r *Registry) Validate(value any, typeID string) (Outcome, error) {
	if _, ok := r.index[typeID]; !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownType, typeID)
	}
	normalized, overflow := NormalizeBounded(value)
	if len(overflow) > 0 {
		overflow[0].TypeIdentifier = typeID
		return Outcome{Violations: overflow}, nil
	}
	return Outcome{Violations: r.ValidateAt(normalized, typeID, "$", 0)}, nil
}

// ValidateAt validates an already normalized value found at path, depth
// levels below the document root.
func (r *Registry) ValidateAt(value any, typeID, path string, depth int) []Violation {
	if depth > MaxDepth {
		return []Violation{{
			Kind:           ViolationMaxDepthExceeded,
			TypeIdentifier: typeID,
			Path:           path,
			Explanation:    fmt.Sprintf("document nesting exceeds %d levels", MaxDepth),
			Details:        map[string]any{"max_depth": MaxDepth},
		}}
	}

	i, ok := r.index[typeID]
	if !ok {
		return []Violation{{
			Kind:           ViolationUnknownDataType,
			TypeIdentifier: typeID,
			Path:           path,
			Explanation:    fmt.Sprintf("type %q is not registered", typeID),
		}}
	}

	var out []Violation
	for _, idx := range r.types[i].chain {
		e := &r.types[idx]
		if e.shape != nil && !e.shape(value) {
			out = append(out, Violation{
				Kind:           ViolationInvalidFormat,
				TypeIdentifier: e.def.Identifier,
				Path:           path,
				Explanation:    fmt.Sprintf("expected %s, got %s", e.def.Identifier, kindOf(value)),
				Details:        map[string]any{"kind": kindOf(value)},
			})
		}
		for j := range e.def.Rules {
			out = append(out, e.def.Rules[j].check(value, e.def.Identifier, r, path, depth)...)
		}
	}
	return out
}

var _ Resolver = (*Registry)(nil)
