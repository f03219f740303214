package flow

import (
	"fmt"
	"strings"
)

// Wildcard matches exactly one segment.
const Wildcard = "*"

// Pattern is a parsed dot-delimited dispatch pattern such as
// "t1.ns1.HTTP.api.example.com.GET".
type Pattern struct {
	segments []string
}

// ParsePattern splits s into segments. Empty patterns, empty segments and
// segments containing whitespace are rejected.
func ParsePattern(s string) (Pattern, error) {
	if s == "" {
		return Pattern{}, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	segments := strings.Split(s, ".")
	for i, seg := range segments {
		if seg == "" {
			return Pattern{}, fmt.Errorf("%w: %q has an empty segment at %d", ErrInvalidPattern, s, i)
		}
		if strings.ContainsAny(seg, " \t\r\n") {
			return Pattern{}, fmt.Errorf("%w: %q has whitespace in segment %d", ErrInvalidPattern, s, i)
		}
	}
	return Pattern{segments: segments}, nil
}

// MustPattern is ParsePattern for literals; it panics on error.
func MustPattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// JoinPattern builds a pattern from parts. Parts may themselves contain dots
// (a host name), in which case they contribute several segments.
func JoinPattern(parts ...string) (Pattern, error) {
	return ParsePattern(strings.Join(parts, "."))
}

// LiteralPattern is JoinPattern for lookups built from request data. A
// wildcard segment is rejected so a client cannot widen its own lookup.
func LiteralPattern(parts ...string) (Pattern, error) {
	p, err := JoinPattern(parts...)
	if err != nil {
		return Pattern{}, err
	}
	for i, seg := range p.segments {
		if seg == Wildcard {
			return Pattern{}, fmt.Errorf("%w: %q has a wildcard in segment %d", ErrInvalidPattern, p.String(), i)
		}
	}
	return p, nil
}

// String returns the dotted form.
func (p Pattern) String() string {
	return strings.Join(p.segments, ".")
}

// Len returns the number of segments.
func (p Pattern) Len() int {
	return len(p.segments)
}

// Segment returns the i-th segment.
func (p Pattern) Segment(i int) string {
	return p.segments[i]
}

// Matches reports whether a lookup pattern is compatible with p.
// Segment counts must be equal; a wildcard on either side matches any
// segment on the other.
func (p Pattern) Matches(lookup Pattern) bool {
	if len(p.segments) != len(lookup.segments) {
		return false
	}
	for i, seg := range p.segments {
		other := lookup.segments[i]
		if seg == Wildcard || other == Wildcard {
			continue
		}
		if seg != other {
			return false
		}
	}
	return true
}
