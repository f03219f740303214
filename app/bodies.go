package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/flowgate/domain/catalog"
	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
)

// ErrUnknownBodyKind is returned for a body spec no factory is registered for.
var ErrUnknownBodyKind = errors.New("unknown body kind")

// BodyKindStatic is the built-in body kind that returns a fixed value.
const BodyKindStatic = "static"

// BodyFactory builds a flow body from its catalog spec.
type BodyFactory func(spec catalog.BodySpec) (flow.Body, error)

// BodyRegistry maps body kinds to factories.
type BodyRegistry struct {
	mu        sync.RWMutex
	factories map[string]BodyFactory
}

// NewBodyRegistry creates a registry with the static body kind registered.
func NewBodyRegistry() *BodyRegistry {
	r := &BodyRegistry{factories: make(map[string]BodyFactory)}
	r.Register(BodyKindStatic, StaticBody)
	return r
}

// Register adds or replaces the factory for kind.
func (r *BodyRegistry) Register(kind string, factory BodyFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Build creates a body for spec.
func (r *BodyRegistry) Build(spec catalog.BodySpec) (flow.Body, error) {
	r.mu.RLock()
	factory, ok := r.factories[spec.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBodyKind, spec.Kind)
	}
	return factory(spec)
}

// Kinds returns the registered body kinds, sorted.
func (r *BodyRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// StaticBody builds a body that ignores its input and returns a copy of
// spec.Value.
func StaticBody(spec catalog.BodySpec) (flow.Body, error) {
	value := datatype.Normalize(spec.Value)
	return flow.BodyFunc(func(ctx context.Context, _ any, _ flow.Settings) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return datatype.Normalize(value), nil
	}), nil
}
