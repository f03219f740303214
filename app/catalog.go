package app

import (
	"fmt"
	"time"

	"github.com/artpar/flowgate/domain/catalog"
	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
)

// Catalog is an immutable snapshot of everything dispatch reads: the type
// registry, flow types and the flow store. Every With* method returns a new
// Catalog and leaves the receiver untouched.
type Catalog struct {
	Types *datatype.Registry
	Flows *flow.Store

	flowTypes map[string]flow.FlowType
	order     []string

	Generation uint64
	LoadedAt   time.Time
}

// EmptyCatalog returns a catalog holding only the built-in root types.
func EmptyCatalog() *Catalog {
	types, _ := datatype.NewRegistry(nil)
	flows, _ := flow.NewStore(nil)
	return &Catalog{
		Types:     types,
		Flows:     flows,
		flowTypes: map[string]flow.FlowType{},
	}
}

// NewCatalog builds and cross-checks a full catalog. Flow types must name
// registered input and return types, and flows must name a registered flow
// type, carry settings its schema accepts and have a body.
func NewCatalog(types []datatype.DataType, flowTypes []flow.FlowType, flows []*flow.Flow) (*Catalog, error) {
	reg, err := datatype.NewRegistry(types)
	if err != nil {
		return nil, err
	}

	c := &Catalog{Types: reg, flowTypes: map[string]flow.FlowType{}}
	if err := c.addFlowTypes(flowTypes); err != nil {
		return nil, err
	}

	prepared := make([]*flow.Flow, 0, len(flows))
	for _, f := range flows {
		pf, err := c.prepare(f)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, pf)
	}

	c.Flows, err = flow.NewStore(prepared)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// WithTypes returns a catalog whose registry also contains types.
func (c *Catalog) WithTypes(types []datatype.DataType) (*Catalog, error) {
	reg, err := c.Types.Extend(types)
	if err != nil {
		return nil, err
	}
	next := c.clone()
	next.Types = reg
	return next, nil
}

// WithFlowTypes returns a catalog that also contains flowTypes.
func (c *Catalog) WithFlowTypes(flowTypes []flow.FlowType) (*Catalog, error) {
	next := c.clone()
	if err := next.addFlowTypes(flowTypes); err != nil {
		return nil, err
	}
	return next, nil
}

// WithFlow returns a catalog that also contains f, and the flow as
// registered (settings defaults applied).
func (c *Catalog) WithFlow(f *flow.Flow) (*Catalog, *flow.Flow, error) {
	pf, err := c.prepare(f)
	if err != nil {
		return nil, nil, err
	}
	flows, err := c.Flows.With(pf)
	if err != nil {
		return nil, nil, err
	}
	next := c.clone()
	next.Flows = flows
	return next, pf, nil
}

// FlowType returns a flow type by identifier.
func (c *Catalog) FlowType(id string) (flow.FlowType, bool) {
	ft, ok := c.flowTypes[id]
	return ft, ok
}

// FlowTypes returns all flow types in registration order.
func (c *Catalog) FlowTypes() []flow.FlowType {
	out := make([]flow.FlowType, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.flowTypes[id])
	}
	return out
}

func (c *Catalog) clone() *Catalog {
	next := &Catalog{
		Types:      c.Types,
		Flows:      c.Flows,
		flowTypes:  make(map[string]flow.FlowType, len(c.flowTypes)),
		order:      append([]string(nil), c.order...),
		Generation: c.Generation,
		LoadedAt:   c.LoadedAt,
	}
	for k, v := range c.flowTypes {
		next.flowTypes[k] = v
	}
	return next
}

func (c *Catalog) addFlowTypes(flowTypes []flow.FlowType) error {
	for _, ft := range flowTypes {
		if ft.Identifier == "" {
			return fmt.Errorf("%w: empty identifier", flow.ErrUnknownFlowType)
		}
		if _, exists := c.flowTypes[ft.Identifier]; exists {
			return fmt.Errorf("%w: %s", flow.ErrDuplicateFlowType, ft.Identifier)
		}
		for _, ref := range []string{ft.InputTypeIdentifier, ft.ReturnTypeIdentifier} {
			if ref != "" && !c.Types.Has(ref) {
				return fmt.Errorf("%w: %s referenced by flow type %s", datatype.ErrUnknownType, ref, ft.Identifier)
			}
		}
		c.flowTypes[ft.Identifier] = ft
		c.order = append(c.order, ft.Identifier)
	}
	return nil
}

// prepare checks f against the catalog and returns a copy with the flow
// type's settings schema applied.
func (c *Catalog) prepare(f *flow.Flow) (*flow.Flow, error) {
	ft, ok := c.flowTypes[f.FlowTypeIdentifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s (flow %s)", flow.ErrUnknownFlowType, f.FlowTypeIdentifier, f.ID)
	}
	if f.Body == nil {
		return nil, fmt.Errorf("%w: %s", flow.ErrMissingBody, f.ID)
	}
	normalized, overflow := datatype.NormalizeBounded(map[string]any(f.Settings))
	if len(overflow) > 0 {
		return nil, fmt.Errorf("flow %s: %w: %s", f.ID, flow.ErrInvalidSettings, overflow[0].Explanation)
	}
	raw, _ := normalized.(map[string]any)
	settings, err := ft.Apply(flow.Settings(raw))
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", f.ID, err)
	}
	if _, err := flow.ParsePattern(f.Pattern); err != nil {
		return nil, fmt.Errorf("flow %s: %w", f.ID, err)
	}

	pf := *f
	pf.Settings = settings
	return &pf, nil
}

// BuildCatalog turns a catalog document into a Catalog, building each
// flow body through bodies.
func BuildCatalog(def catalog.Definition, bodies *BodyRegistry) (*Catalog, error) {
	def = def.Normalize()

	flows := make([]*flow.Flow, 0, len(def.Flows))
	for _, fd := range def.Flows {
		body, err := bodies.Build(fd.Body)
		if err != nil {
			return nil, fmt.Errorf("flow %s: %w", fd.ID, err)
		}
		flows = append(flows, &flow.Flow{
			ID:                 fd.ID,
			FlowTypeIdentifier: fd.FlowTypeIdentifier,
			Pattern:            fd.Pattern,
			Settings:           flow.Settings(fd.Settings),
			Body:               body,
		})
	}

	return NewCatalog(def.DataTypes, def.FlowTypes, flows)
}

// Definition renders the catalog's user types and flow types back into a
// document. Flow bodies are opaque and not included.
func (c *Catalog) Definition() catalog.Definition {
	return catalog.Definition{
		DataTypes: c.Types.UserTypes(),
		FlowTypes: c.FlowTypes(),
	}
}
