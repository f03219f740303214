package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
	"github.com/artpar/flowgate/ports"
	"github.com/rs/zerolog"
)

// DispatchService is the per-request entry point for protocol adapters.
// It resolves a dispatch pattern to a flow and executes it against the
// current catalog snapshot.
type DispatchService struct {
	clock    ports.Clock
	ids      ports.IDGenerator
	recorder ports.DispatchRecorder
	logger   zerolog.Logger

	// Current catalog snapshot. Readers never lock.
	catalog atomic.Pointer[Catalog]

	// Serializes snapshot writers.
	writeMu sync.Mutex
}

// DispatchDeps contains dependencies for DispatchService.
type DispatchDeps struct {
	Clock    ports.Clock
	IDs      ports.IDGenerator
	Recorder ports.DispatchRecorder
	Logger   zerolog.Logger
}

// Result is the outcome of executing one flow.
type Result struct {
	Flow        *flow.Flow
	Output      any
	ExecutionID string
	Duration    time.Duration
	Err         error // set by ExecuteAll only
}

// NewDispatchService creates a dispatch service serving an empty catalog.
func NewDispatchService(deps DispatchDeps) *DispatchService {
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}

	s := &DispatchService{
		clock:    deps.Clock,
		ids:      deps.IDs,
		recorder: deps.Recorder,
		logger:   deps.Logger.With().Str("service", "dispatch").Logger(),
	}
	s.catalog.Store(EmptyCatalog())
	return s
}

// Catalog returns the current snapshot.
func (s *DispatchService) Catalog() *Catalog {
	return s.catalog.Load()
}

// Ready reports whether a catalog has been published.
func (s *DispatchService) Ready() bool {
	return s.catalog.Load().Generation > 0
}

// RegisterTypes adds data types to the catalog.
func (s *DispatchService) RegisterTypes(types []datatype.DataType) error {
	return s.update(func(c *Catalog) (*Catalog, error) {
		return c.WithTypes(types)
	})
}

// RegisterFlowTypes adds flow types to the catalog.
func (s *DispatchService) RegisterFlowTypes(flowTypes []flow.FlowType) error {
	return s.update(func(c *Catalog) (*Catalog, error) {
		return c.WithFlowTypes(flowTypes)
	})
}

// RegisterFlow adds f to the catalog and returns it as registered. A flow
// without an ID is assigned one.
func (s *DispatchService) RegisterFlow(f *flow.Flow) (*flow.Flow, error) {
	if f.ID == "" && s.ids != nil {
		cp := *f
		cp.ID = s.ids.New()
		f = &cp
	}

	var registered *flow.Flow
	err := s.update(func(c *Catalog) (*Catalog, error) {
		next, pf, err := c.WithFlow(f)
		registered = pf
		return next, err
	})
	if err != nil {
		return nil, err
	}
	return registered, nil
}

// Replace publishes c as the new snapshot. In-flight requests finish
// against the snapshot they started with.
func (s *DispatchService) Replace(c *Catalog) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.publish(c.clone())
}

// Reload builds a catalog with load and publishes it. On failure the
// current snapshot keeps serving.
func (s *DispatchService) Reload(ctx context.Context, load func(ctx context.Context) (*Catalog, error)) error {
	c, err := load(ctx)
	if err != nil {
		s.recorder.RecordCatalogReload(false, s.clock.Now(), s.Catalog().Flows.Len())
		s.logger.Error().Err(err).Msg("catalog reload failed, keeping current catalog")
		return err
	}
	s.Replace(c)
	return nil
}

func (s *DispatchService) update(fn func(c *Catalog) (*Catalog, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next, err := fn(s.catalog.Load())
	if err != nil {
		return err
	}
	s.publish(next)
	return nil
}

// publish must be called with writeMu held.
func (s *DispatchService) publish(next *Catalog) {
	now := s.clock.Now()
	next.Generation = s.catalog.Load().Generation + 1
	next.LoadedAt = now

	// Atomic swap
	s.catalog.Store(next)

	s.recorder.RecordCatalogReload(true, now, next.Flows.Len())
	s.logger.Debug().
		Uint64("generation", next.Generation).
		Int("types", next.Types.Len()).
		Int("flow_types", len(next.order)).
		Int("flows", next.Flows.Len()).
		Msg("catalog published")
}

// Resolve returns the single flow selected by pattern and d.
func (s *DispatchService) Resolve(pattern flow.Pattern, d flow.Disambiguator) (*flow.Flow, error) {
	return s.Catalog().Flows.Resolve(pattern, d)
}

// ResolveAndExecute resolves pattern to one flow and executes it with
// input. Cancellation of ctx reaches the flow body.
func (s *DispatchService) ResolveAndExecute(ctx context.Context, pattern flow.Pattern, d flow.Disambiguator, input any) (Result, error) {
	c := s.Catalog()
	start := s.clock.Now()

	f, err := c.Flows.Resolve(pattern, d)
	if err != nil {
		var amb *flow.AmbiguousMatchError
		if errors.As(err, &amb) {
			s.logger.Error().
				Str("pattern", amb.Pattern).
				Strs("flows", amb.FlowIDs).
				Msg("ambiguous flow registration")
		}
		s.recorder.RecordDispatch("", Outcome(err), s.clock.Now().Sub(start))
		return Result{}, err
	}

	res := s.execute(ctx, c, f, input, start)
	return res, res.Err
}

// ExecuteAll executes every flow selected by pattern and d, in registration
// order. Trigger protocols use it when several flows may fire for one
// event. Each result carries its own error.
func (s *DispatchService) ExecuteAll(ctx context.Context, pattern flow.Pattern, d flow.Disambiguator, input any) []Result {
	c := s.Catalog()
	flows := c.Flows.Select(pattern, d)

	results := make([]Result, 0, len(flows))
	for _, f := range flows {
		results = append(results, s.execute(ctx, c, f, input, s.clock.Now()))
	}
	return results
}

func (s *DispatchService) execute(ctx context.Context, c *Catalog, f *flow.Flow, input any, start time.Time) Result {
	res := Result{Flow: f}
	if s.ids != nil {
		res.ExecutionID = s.ids.New()
	}

	res.Output, res.Err = c.Execute(ctx, f, input)
	res.Duration = s.clock.Now().Sub(start)

	var verr *ValidationError
	if errors.As(res.Err, &verr) {
		s.recorder.RecordViolations(string(verr.Stage), len(verr.Violations))
	}
	s.recorder.RecordDispatch(f.FlowTypeIdentifier, Outcome(res.Err), res.Duration)

	switch {
	case res.Err == nil:
		s.logger.Debug().
			Str("flow", f.ID).
			Str("execution_id", res.ExecutionID).
			Dur("duration", res.Duration).
			Msg("flow executed")
	case errors.Is(res.Err, ErrOutputValidationFailed):
		s.logger.Error().
			Err(res.Err).
			Str("flow", f.ID).
			Str("execution_id", res.ExecutionID).
			Msg("flow returned invalid output")
	case errors.Is(res.Err, ErrInputValidationFailed):
		s.logger.Debug().
			Err(res.Err).
			Str("flow", f.ID).
			Msg("input rejected")
	default:
		s.logger.Warn().
			Err(res.Err).
			Str("flow", f.ID).
			Str("execution_id", res.ExecutionID).
			Msg("flow execution failed")
	}

	if res.Err != nil {
		res.Output = nil
	}
	return res
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type nopRecorder struct{}

func (nopRecorder) RecordDispatch(string, string, time.Duration) {}
func (nopRecorder) RecordViolations(string, int)                 {}
func (nopRecorder) RecordCatalogReload(bool, time.Time, int)     {}
