// Package flow contains flow definitions, dispatch patterns, the immutable
// flow store and candidate resolution.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Definition-time errors.
var (
	ErrUnknownFlowType   = errors.New("unknown flow type")
	ErrDuplicateFlowType = errors.New("duplicate flow type")
	ErrInvalidPattern    = errors.New("invalid dispatch pattern")
	ErrInvalidSettings   = errors.New("invalid flow settings")
	ErrDuplicateFlow     = errors.New("duplicate flow id")
	ErrMissingBody       = errors.New("flow has no body")
)

// FlowType is a reusable endpoint contract.
type FlowType struct {
	Identifier           string              `json:"identifier" yaml:"identifier"`
	InputTypeIdentifier  string              `json:"input_type_identifier,omitempty" yaml:"input_type_identifier,omitempty"`
	ReturnTypeIdentifier string              `json:"return_type_identifier,omitempty" yaml:"return_type_identifier,omitempty"`
	Editable             bool                `json:"editable" yaml:"editable"`
	Settings             []SettingDefinition `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// SettingDefinition declares a setting flows of a type may customize.
type SettingDefinition struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Default    any    `json:"default,omitempty" yaml:"default,omitempty"`
	Required   bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Settings holds concrete setting values of a flow.
type Settings map[string]any

// String returns a text setting, or "" when absent or not text.
func (s Settings) String(key string) string {
	v, ok := s[key].(string)
	if !ok {
		return ""
	}
	return v
}

// Has reports whether a setting is present.
func (s Settings) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Clone returns a deep copy. Nested objects and lists are copied so a
// body cannot change the registered flow's settings; settings are
// acyclic once registered.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = cloneValue(val)
		}
		return out
	case Settings:
		return x.Clone()
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}

// Apply checks settings against the type's declared setting definitions
// and fills defaults. A type without definitions accepts any settings.
func (ft FlowType) Apply(settings Settings) (Settings, error) {
	out := settings.Clone()
	if len(ft.Settings) == 0 {
		return out, nil
	}

	declared := make(map[string]SettingDefinition, len(ft.Settings))
	for _, def := range ft.Settings {
		declared[def.Identifier] = def
	}

	var unknown []string
	for k := range settings {
		if _, ok := declared[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s does not declare %s", ErrInvalidSettings, ft.Identifier, strings.Join(unknown, ", "))
	}

	for _, def := range ft.Settings {
		if out.Has(def.Identifier) {
			continue
		}
		if def.Default != nil {
			out[def.Identifier] = cloneValue(def.Default)
			continue
		}
		if def.Required {
			return nil, fmt.Errorf("%w: %s requires %s", ErrInvalidSettings, ft.Identifier, def.Identifier)
		}
	}
	return out, nil
}

// Body is the executable part of a flow, supplied by the embedding system.
type Body interface {
	Invoke(ctx context.Context, input any, settings Settings) (any, error)
}

// BodyFunc adapts a function to Body.
type BodyFunc func(ctx context.Context, input any, settings Settings) (any, error)

// Invoke calls fn.
func (fn BodyFunc) Invoke(ctx context.Context, input any, settings Settings) (any, error) {
	return fn(ctx, input, settings)
}

// Flow is a registered instance of a FlowType bound to a dispatch pattern.
// Flows are immutable once registered.
type Flow struct {
	ID                 string
	FlowTypeIdentifier string
	Pattern            string
	Settings           Settings
	Body               Body
}
