package app

import (
	"context"
	"fmt"

	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
)

// Execute runs f against input within the catalog: validate the input,
// invoke the body, validate the output. The body is never invoked with
// input that fails validation. Errors returned by the body are passed
// through unchanged.
func (c *Catalog) Execute(ctx context.Context, f *flow.Flow, input any) (any, error) {
	// 1. Resolve the flow type
	ft, ok := c.flowTypes[f.FlowTypeIdentifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s (flow %s)", flow.ErrUnknownFlowType, f.FlowTypeIdentifier, f.ID)
	}

	// 2. Validate input
	input, err := normalize(StageInput, f, ft.InputTypeIdentifier, input)
	if err != nil {
		return nil, err
	}
	if err := c.check(StageInput, f, ft.InputTypeIdentifier, input); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. Invoke the body
	output, err := f.Body.Invoke(ctx, input, f.Settings.Clone())
	if err != nil {
		return nil, err
	}

	// 4. Validate output
	output, err = normalize(StageOutput, f, ft.ReturnTypeIdentifier, output)
	if err != nil {
		return nil, err
	}
	if err := c.check(StageOutput, f, ft.ReturnTypeIdentifier, output); err != nil {
		return nil, err
	}

	return output, nil
}

// normalize converts value to its JSON shape. Values nested past
// datatype.MaxDepth, including self-referential ones, fail validation
// whether or not the side declares a type.
func normalize(stage Stage, f *flow.Flow, typeID string, value any) (any, error) {
	out, overflow := datatype.NormalizeBounded(value)
	if len(overflow) == 0 {
		return out, nil
	}
	overflow[0].TypeIdentifier = typeID
	return nil, &ValidationError{
		Stage:          stage,
		FlowID:         f.ID,
		TypeIdentifier: typeID,
		Violations:     overflow,
	}
}

func (c *Catalog) check(stage Stage, f *flow.Flow, typeID string, value any) error {
	if typeID == "" {
		return nil
	}
	outcome, err := c.Types.Validate(value, typeID)
	if err != nil {
		return err
	}
	if outcome.Valid() {
		return nil
	}
	return &ValidationError{
		Stage:          stage,
		FlowID:         f.ID,
		TypeIdentifier: typeID,
		Violations:     outcome.Violations,
	}
}
