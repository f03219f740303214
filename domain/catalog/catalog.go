// Package catalog defines the serializable catalog document: data types,
// flow types and flow definitions as loaded from a definition source.
package catalog

import (
	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
)

// Definition is a catalog document.
type Definition struct {
	DataTypes []datatype.DataType `json:"data_types,omitempty" yaml:"data_types,omitempty"`
	FlowTypes []flow.FlowType     `json:"flow_types,omitempty" yaml:"flow_types,omitempty"`
	Flows     []FlowDefinition    `json:"flows,omitempty" yaml:"flows,omitempty"`
}

// FlowDefinition describes a flow whose body is built from Body.
type FlowDefinition struct {
	ID                 string         `json:"id" yaml:"id"`
	FlowTypeIdentifier string         `json:"flow_type_identifier" yaml:"flow_type_identifier"`
	Pattern            string         `json:"pattern" yaml:"pattern"`
	Settings           map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
	Body               BodySpec       `json:"body" yaml:"body"`
}

// BodySpec selects and configures a flow body implementation.
type BodySpec struct {
	Kind    string            `json:"kind" yaml:"kind"`
	Value   any               `json:"value,omitempty" yaml:"value,omitempty"`   // static
	Source  string            `json:"source,omitempty" yaml:"source,omitempty"` // script
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`       // upstream
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Merge returns d followed by other.
func (d Definition) Merge(other Definition) Definition {
	return Definition{
		DataTypes: append(append([]datatype.DataType{}, d.DataTypes...), other.DataTypes...),
		FlowTypes: append(append([]flow.FlowType{}, d.FlowTypes...), other.FlowTypes...),
		Flows:     append(append([]FlowDefinition{}, d.Flows...), other.Flows...),
	}
}

// Normalize converts loosely typed values (YAML ints, nested maps) in
// settings and static bodies into the canonical JSON shape.
func (d Definition) Normalize() Definition {
	out := d
	out.Flows = make([]FlowDefinition, len(d.Flows))
	for i, f := range d.Flows {
		if f.Settings != nil {
			if s, ok := datatype.Normalize(f.Settings).(map[string]any); ok {
				f.Settings = s
			}
		}
		if f.Body.Value != nil {
			f.Body.Value = datatype.Normalize(f.Body.Value)
		}
		out.Flows[i] = f
	}
	return out
}

// Counts summarizes a definition for logs and CLI output.
func (d Definition) Counts() (types, flowTypes, flows int) {
	return len(d.DataTypes), len(d.FlowTypes), len(d.Flows)
}
