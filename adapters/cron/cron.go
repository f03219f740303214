// Package cron provides the scheduled trigger adapter. At every minute
// boundary it executes all cron flows whose expression is due.
package cron

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/flowgate/adapters/metrics"
	"github.com/artpar/flowgate/app"
	"github.com/artpar/flowgate/domain/flow"
	"github.com/artpar/flowgate/ports"
	"github.com/rs/zerolog"
)

// Lookup matches every cron flow regardless of tenant, namespace or host.
var Lookup = flow.MustPattern("*.*." + Protocol + ".*." + Event)

// Dispatcher is the part of app.DispatchService the adapter uses.
type Dispatcher interface {
	Catalog() *app.Catalog
	ExecuteAll(ctx context.Context, pattern flow.Pattern, d flow.Disambiguator, input any) []app.Result
}

// Config configures the adapter.
type Config struct {
	Location *time.Location // defaults to UTC
	Timeout  time.Duration  // per tick
}

// Adapter fires cron flows.
type Adapter struct {
	dispatcher Dispatcher
	clock      ports.TimerClock
	cfg        Config
	cache      *ExpressionCache
	logger     zerolog.Logger
	metrics    *metrics.Collector

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a cron adapter.
func New(d Dispatcher, clock ports.TimerClock, cfg Config, logger zerolog.Logger, m *metrics.Collector) *Adapter {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Adapter{
		dispatcher: d,
		clock:      clock,
		cfg:        cfg,
		cache:      &ExpressionCache{},
		logger:     logger.With().Str("adapter", "cron").Logger(),
		metrics:    m,
	}
}

// Name implements ports.ProtocolAdapter.
func (a *Adapter) Name() string { return "cron" }

// Start begins the minute loop.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(ctx, a.done)

	a.logger.Info().Str("location", a.cfg.Location.String()).Msg("cron scheduler started")
	return nil
}

// Stop ends the loop and waits for a running tick to finish.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		now := a.clock.Now()
		next := now.Truncate(time.Minute).Add(time.Minute)

		select {
		case <-ctx.Done():
			return
		case <-a.clock.After(next.Sub(now)):
			a.Fire(ctx, next)
		}
	}
}

// Fire executes every cron flow due at the minute containing at. Flows
// sharing an expression run in registration order.
func (a *Adapter) Fire(ctx context.Context, at time.Time) []app.Result {
	at = at.In(a.cfg.Location).Truncate(time.Minute)
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	due := a.dueExpressions(at)
	timestamp := at.Format(time.RFC3339)

	var results []app.Result
	for _, expr := range due {
		input := map[string]any{"expression": expr, "timestamp": timestamp}
		results = append(results, a.dispatcher.ExecuteAll(ctx, Lookup, a.scheduled(expr, at), input)...)
	}

	for _, res := range results {
		status := 200
		if res.Err != nil {
			status = app.ClassifyError(res.Err).Status
			a.logger.Warn().
				Err(res.Err).
				Str("flow", res.Flow.ID).
				Str("timestamp", timestamp).
				Msg("cron flow failed")
		}
		if a.metrics != nil {
			a.metrics.RecordRequest("cron", status, res.Duration)
		}
	}

	if len(results) > 0 {
		a.logger.Debug().
			Str("timestamp", timestamp).
			Int("flows", len(results)).
			Msg("cron tick")
	}
	return results
}

// dueExpressions lists the distinct expressions due at at, in the order
// their first flow was registered.
func (a *Adapter) dueExpressions(at time.Time) []string {
	seen := make(map[string]bool)
	var exprs []string
	for _, f := range a.dispatcher.Catalog().Flows.Candidates(Lookup) {
		expr, ok := Expression(f.Settings)
		if !ok || seen[expr] || !a.cache.Due(expr, at) {
			continue
		}
		seen[expr] = true
		exprs = append(exprs, expr)
	}
	return exprs
}

func (a *Adapter) scheduled(expr string, at time.Time) flow.Disambiguator {
	return flow.IdentifyFunc(func(f *flow.Flow) bool {
		e, ok := Expression(f.Settings)
		return ok && e == expr && a.cache.Due(e, at)
	})
}

var _ ports.ProtocolAdapter = (*Adapter)(nil)
