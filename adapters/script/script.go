// Package script provides JavaScript flow bodies run by goja. A script
// defines function handle(input, settings) and returns the flow output.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/flowgate/app"
	"github.com/artpar/flowgate/domain/catalog"
	"github.com/artpar/flowgate/domain/flow"
	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// BodyKind is the catalog body kind served by this package.
const BodyKind = "script"

// EntryPoint is the function every script must define.
const EntryPoint = "handle"

var (
	ErrEmptySource   = errors.New("script: empty source")
	ErrNoEntryPoint  = errors.New("script: " + EntryPoint + " is not a function")
	interruptMessage = "flowgate: execution interrupted"
)

// Factory returns an app.BodyFactory compiling spec.Source. Syntax errors
// are reported when the catalog is built.
func Factory(logger zerolog.Logger) app.BodyFactory {
	logger = logger.With().Str("body", BodyKind).Logger()
	return func(spec catalog.BodySpec) (flow.Body, error) {
		if strings.TrimSpace(spec.Source) == "" {
			return nil, ErrEmptySource
		}
		program, err := goja.Compile(BodyKind, spec.Source, true)
		if err != nil {
			return nil, fmt.Errorf("script: compile: %w", err)
		}
		return &Body{program: program, logger: logger}, nil
	}
}

// Body runs a compiled script in a fresh runtime per invocation.
type Body struct {
	program *goja.Program
	logger  zerolog.Logger
}

// Invoke implements flow.Body. Cancellation of ctx interrupts the script.
func (b *Body) Invoke(ctx context.Context, input any, settings flow.Settings) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rt := goja.New()
	rt.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		b.logger.Debug().Msg(strings.Join(parts, " "))
		return goja.Undefined()
	})

	// Interrupt the runtime when ctx ends; stop watching once we return.
	ictx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ictx.Done()
		rt.Interrupt(interruptMessage)
	}()

	if _, err := rt.RunProgram(b.program); err != nil {
		return nil, b.failure(ctx, err)
	}

	handle, ok := goja.AssertFunction(rt.Get(EntryPoint))
	if !ok {
		return nil, ErrNoEntryPoint
	}

	result, err := handle(goja.Undefined(), rt.ToValue(input), rt.ToValue(map[string]any(settings)))
	if err != nil {
		return nil, b.failure(ctx, err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, nil
	}
	return result.Export(), nil
}

// failure maps an interrupt back to the context error that caused it.
func (b *Body) failure(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("script: %w", err)
}
