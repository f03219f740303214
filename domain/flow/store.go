package flow

import "fmt"

// Store is an immutable set of flows indexed by dispatch pattern arity.
// Registration returns a new Store; readers of an existing Store are never
// affected.
type Store struct {
	flows    []*Flow
	patterns []Pattern
	byArity  map[int][]int // arity -> indices into flows, insertion order
	ids      map[string]int
}

// NewStore builds a store from flows in order. Flows sharing a pattern are
// all kept.
func NewStore(flows []*Flow) (*Store, error) {
	s := &Store{
		flows:    make([]*Flow, 0, len(flows)),
		patterns: make([]Pattern, 0, len(flows)),
		byArity:  make(map[int][]int),
		ids:      make(map[string]int, len(flows)),
	}
	for _, f := range flows {
		if err := s.add(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) add(f *Flow) error {
	p, err := ParsePattern(f.Pattern)
	if err != nil {
		return fmt.Errorf("flow %s: %w", f.ID, err)
	}
	if f.ID != "" {
		if _, exists := s.ids[f.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateFlow, f.ID)
		}
		s.ids[f.ID] = len(s.flows)
	}
	s.byArity[p.Len()] = append(s.byArity[p.Len()], len(s.flows))
	s.flows = append(s.flows, f)
	s.patterns = append(s.patterns, p)
	return nil
}

// With returns a new store containing the receiver's flows followed by f.
func (s *Store) With(f *Flow) (*Store, error) {
	flows := make([]*Flow, 0, len(s.flows)+1)
	flows = append(flows, s.flows...)
	flows = append(flows, f)
	return NewStore(flows)
}

// Candidates returns every flow whose registered pattern is compatible with
// the lookup pattern, in registration order.
func (s *Store) Candidates(lookup Pattern) []*Flow {
	var out []*Flow
	for _, idx := range s.byArity[lookup.Len()] {
		if s.patterns[idx].Matches(lookup) {
			out = append(out, s.flows[idx])
		}
	}
	return out
}

// Get returns a flow by ID.
func (s *Store) Get(id string) (*Flow, bool) {
	idx, ok := s.ids[id]
	if !ok {
		return nil, false
	}
	return s.flows[idx], true
}

// Flows returns all flows in registration order.
func (s *Store) Flows() []*Flow {
	out := make([]*Flow, len(s.flows))
	copy(out, s.flows)
	return out
}

// Len returns the number of flows.
func (s *Store) Len() int {
	return len(s.flows)
}
