package flow

import (
	"errors"
	"fmt"
	"strings"
)

// Matching errors. Both are per-request.
var (
	ErrNoMatch        = errors.New("no matching flow")
	ErrAmbiguousMatch = errors.New("ambiguous flow match")
)

// AmbiguousMatchError reports a request claimed by more than one flow.
// It means two flows were registered for the same request shape.
type AmbiguousMatchError struct {
	Pattern string
	FlowIDs []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("%s: %s matched flows %s", ErrAmbiguousMatch, e.Pattern, strings.Join(e.FlowIDs, ", "))
}

// Is makes errors.Is(err, ErrAmbiguousMatch) hold.
func (e *AmbiguousMatchError) Is(target error) bool {
	return target == ErrAmbiguousMatch
}

// Disambiguator picks among flows sharing a dispatch pattern. Protocol
// adapters supply one per request; Identify must not block or mutate state.
type Disambiguator interface {
	Identify(f *Flow) bool
}

// IdentifyFunc adapts a function to Disambiguator.
type IdentifyFunc func(f *Flow) bool

// Identify calls fn.
func (fn IdentifyFunc) Identify(f *Flow) bool {
	return fn(f)
}

// Resolve narrows the candidates for lookup to exactly one flow.
//
// A single candidate is returned without consulting d. With several
// candidates, those d identifies survive: none is ErrNoMatch, more than one
// is an *AmbiguousMatchError. A nil d keeps every candidate.
func (s *Store) Resolve(lookup Pattern, d Disambiguator) (*Flow, error) {
	candidates := s.Candidates(lookup)

	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, lookup)
	case 1:
		return candidates[0], nil
	}

	survivors := filter(candidates, d)
	switch len(survivors) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, lookup)
	case 1:
		return survivors[0], nil
	}

	ids := make([]string, len(survivors))
	for i, f := range survivors {
		ids[i] = f.ID
	}
	return nil, &AmbiguousMatchError{Pattern: lookup.String(), FlowIDs: ids}
}

// Select returns every candidate d identifies, consulting d even for a
// single candidate. Trigger protocols use it when several flows may fire.
func (s *Store) Select(lookup Pattern, d Disambiguator) []*Flow {
	return filter(s.Candidates(lookup), d)
}

func filter(candidates []*Flow, d Disambiguator) []*Flow {
	if d == nil {
		return candidates
	}
	var out []*Flow
	for _, f := range candidates {
		if d.Identify(f) {
			out = append(out, f)
		}
	}
	return out
}
