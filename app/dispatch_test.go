package app_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/artpar/flowgate/adapters/clock"
	"github.com/artpar/flowgate/adapters/idgen"
	"github.com/artpar/flowgate/app"
	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
	"github.com/rs/zerolog"
)

// recorder implements ports.DispatchRecorder for testing.
type recorder struct {
	mu         sync.Mutex
	outcomes   []string
	violations map[string]int
	reloads    []bool
}

func (r *recorder) RecordDispatch(flowType, outcome string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recorder) RecordViolations(stage string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.violations == nil {
		r.violations = make(map[string]int)
	}
	r.violations[stage] += n
}

func (r *recorder) RecordCatalogReload(ok bool, at time.Time, flows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloads = append(r.reloads, ok)
}

func httpTypes() []datatype.DataType {
	return []datatype.DataType{
		{
			Identifier:           "HTTP_METHOD",
			Variant:              datatype.VariantType,
			ParentTypeIdentifier: datatype.Text,
			Rules:                []datatype.Rule{datatype.ItemOfCollection("GET", "POST", "PUT", "DELETE", "PATCH")},
		},
		{
			Identifier:           "HTTP_URL",
			Variant:              datatype.VariantURL,
			ParentTypeIdentifier: datatype.Text,
			Rules:                []datatype.Rule{datatype.Regex(`^/[\w./-]*$`)},
		},
		{
			Identifier:           "HTTP_REQUEST_OBJECT",
			Variant:              datatype.VariantObject,
			ParentTypeIdentifier: datatype.Object,
			Rules: []datatype.Rule{
				datatype.ContainsKey("method", "HTTP_METHOD"),
				datatype.ContainsKey("url", "HTTP_URL"),
				datatype.ContainsKey("body", datatype.Object),
				datatype.ContainsKey("headers", datatype.Object),
			},
		},
		{
			Identifier:           "HTTP_RESPONSE_OBJECT",
			Variant:              datatype.VariantObject,
			ParentTypeIdentifier: datatype.Object,
			Rules:                []datatype.Rule{datatype.ContainsKey("body", datatype.Object)},
		},
	}
}

func restType() flow.FlowType {
	return flow.FlowType{
		Identifier:           "REST",
		InputTypeIdentifier:  "HTTP_REQUEST_OBJECT",
		ReturnTypeIdentifier: "HTTP_RESPONSE_OBJECT",
		Editable:             true,
	}
}

type harness struct {
	svc   *app.DispatchService
	rec   *recorder
	clock *clock.Fake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rec:   &recorder{},
		clock: clock.NewFake(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)),
	}
	h.svc = app.NewDispatchService(app.DispatchDeps{
		Clock:    h.clock,
		IDs:      idgen.NewSequential("exec_"),
		Recorder: h.rec,
		Logger:   zerolog.Nop(),
	})
	if err := h.svc.RegisterTypes(httpTypes()); err != nil {
		t.Fatalf("RegisterTypes error: %v", err)
	}
	if err := h.svc.RegisterFlowTypes([]flow.FlowType{restType()}); err != nil {
		t.Fatalf("RegisterFlowTypes error: %v", err)
	}
	return h
}

func (h *harness) register(t *testing.T, id, pattern string, settings flow.Settings, body flow.Body) *flow.Flow {
	t.Helper()
	f, err := h.svc.RegisterFlow(&flow.Flow{
		ID:                 id,
		FlowTypeIdentifier: "REST",
		Pattern:            pattern,
		Settings:           settings,
		Body:               body,
	})
	if err != nil {
		t.Fatalf("RegisterFlow(%s) error: %v", id, err)
	}
	return f
}

// countingBody returns a fixed response and counts invocations.
type countingBody struct {
	mu     sync.Mutex
	calls  int
	output any
}

func (b *countingBody) Invoke(ctx context.Context, input any, settings flow.Settings) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.output, nil
}

func (b *countingBody) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func okResponse() map[string]any {
	return map[string]any{"body": map[string]any{"ok": true}, "headers": map[string]any{}}
}

func request(method, url string) map[string]any {
	return map[string]any{
		"method":  method,
		"url":     url,
		"body":    map[string]any{},
		"headers": map[string]any{},
	}
}

func pathDisambiguator(path string) flow.Disambiguator {
	return flow.IdentifyFunc(func(f *flow.Flow) bool {
		re, err := regexp.Compile(f.Settings.String("REQUEST_PATH"))
		if err != nil {
			return false
		}
		return re.MatchString(path)
	})
}

var getPattern = flow.MustPattern("t1.ns1.HTTP.host.GET")

func TestDispatch_ValidRequest(t *testing.T) {
	h := newHarness(t)
	body := &countingBody{output: okResponse()}
	h.register(t, "users", "t1.ns1.HTTP.host.GET", nil, body)

	res, err := h.svc.ResolveAndExecute(context.Background(), getPattern, nil, request("GET", "/users"))
	if err != nil {
		t.Fatalf("ResolveAndExecute error: %v", err)
	}
	if res.Flow.ID != "users" {
		t.Errorf("flow = %s, want users", res.Flow.ID)
	}
	if res.ExecutionID != "exec_1" {
		t.Errorf("ExecutionID = %s, want exec_1", res.ExecutionID)
	}
	out, ok := res.Output.(map[string]any)
	if !ok || out["body"].(map[string]any)["ok"] != true {
		t.Errorf("Output = %v, want the body response", res.Output)
	}
	if body.Calls() != 1 {
		t.Errorf("body calls = %d, want 1", body.Calls())
	}
}

func TestDispatch_InvalidInputNeverInvokesBody(t *testing.T) {
	h := newHarness(t)
	body := &countingBody{output: okResponse()}
	h.register(t, "users", "t1.ns1.HTTP.host.GET", nil, body)

	_, err := h.svc.ResolveAndExecute(context.Background(), getPattern, nil, request("FETCH", "/users"))
	if !errors.Is(err, app.ErrInputValidationFailed) {
		t.Fatalf("error = %v, want ErrInputValidationFailed", err)
	}
	if body.Calls() != 0 {
		t.Errorf("body calls = %d, want 0", body.Calls())
	}

	var verr *app.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error is %T, want *app.ValidationError", err)
	}
	if len(verr.Violations) != 1 {
		t.Fatalf("violations = %d, want 1: %+v", len(verr.Violations), verr.Violations)
	}
	v := verr.Violations[0]
	if v.Kind != datatype.ViolationItemOfCollection || v.TypeIdentifier != "HTTP_METHOD" || v.Path != "$.method" {
		t.Errorf("violation = %+v, want ItemOfCollection on HTTP_METHOD at $.method", v)
	}
	if h.rec.violations["input"] != 1 {
		t.Errorf("recorded input violations = %d, want 1", h.rec.violations["input"])
	}
}

func TestDispatch_DisambiguatesByRequestPath(t *testing.T) {
	h := newHarness(t)
	users := &countingBody{output: okResponse()}
	orders := &countingBody{output: okResponse()}
	h.register(t, "users", "t1.ns1.HTTP.host.GET", flow.Settings{"REQUEST_PATH": "/users.*"}, users)
	h.register(t, "orders", "t1.ns1.HTTP.host.GET", flow.Settings{"REQUEST_PATH": "/orders.*"}, orders)

	res, err := h.svc.ResolveAndExecute(context.Background(), getPattern, pathDisambiguator("/orders/5"), request("GET", "/orders/5"))
	if err != nil {
		t.Fatalf("ResolveAndExecute error: %v", err)
	}
	if res.Flow.ID != "orders" {
		t.Errorf("flow = %s, want orders", res.Flow.ID)
	}
	if users.Calls() != 0 || orders.Calls() != 1 {
		t.Errorf("calls users=%d orders=%d, want 0 and 1", users.Calls(), orders.Calls())
	}
}

func TestDispatch_MatchingErrors(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a", "t1.ns1.HTTP.host.GET", flow.Settings{"REQUEST_PATH": "/x"}, &countingBody{output: okResponse()})
	h.register(t, "b", "t1.ns1.HTTP.host.GET", flow.Settings{"REQUEST_PATH": "/x"}, &countingBody{output: okResponse()})

	_, err := h.svc.ResolveAndExecute(context.Background(), getPattern, pathDisambiguator("/x"), request("GET", "/x"))
	if !errors.Is(err, flow.ErrAmbiguousMatch) {
		t.Errorf("error = %v, want ErrAmbiguousMatch", err)
	}

	_, err = h.svc.ResolveAndExecute(context.Background(), flow.MustPattern("t1.ns1.HTTP.host.PUT"), nil, request("PUT", "/x"))
	if !errors.Is(err, flow.ErrNoMatch) {
		t.Errorf("error = %v, want ErrNoMatch", err)
	}

	want := []string{"ambiguous", "no_match"}
	if len(h.rec.outcomes) != 2 || h.rec.outcomes[0] != want[0] || h.rec.outcomes[1] != want[1] {
		t.Errorf("outcomes = %v, want %v", h.rec.outcomes, want)
	}
}

func TestDispatch_InvalidOutput(t *testing.T) {
	h := newHarness(t)
	h.register(t, "broken", "t1.ns1.HTTP.host.GET", nil, &countingBody{output: map[string]any{"headers": map[string]any{}}})

	res, err := h.svc.ResolveAndExecute(context.Background(), getPattern, nil, request("GET", "/users"))
	if !errors.Is(err, app.ErrOutputValidationFailed) {
		t.Fatalf("error = %v, want ErrOutputValidationFailed", err)
	}
	if errors.Is(err, app.ErrInputValidationFailed) {
		t.Error("output failure must not match ErrInputValidationFailed")
	}
	if res.Output != nil {
		t.Errorf("Output = %v, want nil on failure", res.Output)
	}
	if got := app.ClassifyError(err).Status; got != 500 {
		t.Errorf("status = %d, want 500", got)
	}
}

func TestDispatch_ExecutionErrorPassesThrough(t *testing.T) {
	h := newHarness(t)
	errUpstream := errors.New("upstream unavailable")
	h.register(t, "failing", "t1.ns1.HTTP.host.GET", nil, flow.BodyFunc(func(context.Context, any, flow.Settings) (any, error) {
		return nil, errUpstream
	}))

	_, err := h.svc.ResolveAndExecute(context.Background(), getPattern, nil, request("GET", "/users"))
	if err != errUpstream {
		t.Errorf("error = %v, want the body's error unchanged", err)
	}
	if h.rec.outcomes[len(h.rec.outcomes)-1] != "execution_error" {
		t.Errorf("outcome = %s, want execution_error", h.rec.outcomes[len(h.rec.outcomes)-1])
	}
}

func TestDispatch_CancellationReachesBody(t *testing.T) {
	h := newHarness(t)
	h.register(t, "slow", "t1.ns1.HTTP.host.GET", nil, flow.BodyFunc(func(ctx context.Context, _ any, _ flow.Settings) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := h.svc.ResolveAndExecute(ctx, getPattern, nil, request("GET", "/users"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
	if got := app.ClassifyError(err).Status; got != 504 {
		t.Errorf("status = %d, want 504", got)
	}
}

func TestDispatch_SettingsAreCopiedPerCall(t *testing.T) {
	h := newHarness(t)
	h.register(t, "mutator", "t1.ns1.HTTP.host.GET", flow.Settings{"REQUEST_PATH": "/x"}, flow.BodyFunc(func(_ context.Context, _ any, s flow.Settings) (any, error) {
		s["REQUEST_PATH"] = "changed"
		return okResponse(), nil
	}))

	if _, err := h.svc.ResolveAndExecute(context.Background(), getPattern, nil, request("GET", "/x")); err != nil {
		t.Fatalf("ResolveAndExecute error: %v", err)
	}
	f, _ := h.svc.Catalog().Flows.Get("mutator")
	if got := f.Settings.String("REQUEST_PATH"); got != "/x" {
		t.Errorf("registered REQUEST_PATH = %s, want /x", got)
	}
}

func TestDispatch_NestedSettingsAreCopiedPerCall(t *testing.T) {
	h := newHarness(t)
	settings := flow.Settings{
		"REQUEST_PATH": "/x",
		"HTTP_URL":     map[string]any{"url": "^/x$"},
		"TAGS":         []any{"a"},
	}
	h.register(t, "mutator", "t1.ns1.HTTP.host.GET", settings, flow.BodyFunc(func(_ context.Context, _ any, s flow.Settings) (any, error) {
		s["HTTP_URL"].(map[string]any)["url"] = "^/hijacked$"
		s["TAGS"].([]any)[0] = "z"
		return okResponse(), nil
	}))

	if _, err := h.svc.ResolveAndExecute(context.Background(), getPattern, nil, request("GET", "/x")); err != nil {
		t.Fatalf("ResolveAndExecute error: %v", err)
	}
	f, _ := h.svc.Catalog().Flows.Get("mutator")
	if got := f.Settings["HTTP_URL"].(map[string]any)["url"]; got != "^/x$" {
		t.Errorf("registered HTTP_URL.url = %v, want ^/x$", got)
	}
	if got := f.Settings["TAGS"].([]any)[0]; got != "a" {
		t.Errorf("registered TAGS[0] = %v, want a", got)
	}
	if got := settings["HTTP_URL"].(map[string]any)["url"]; got != "^/x$" {
		t.Errorf("caller's HTTP_URL.url = %v, want ^/x$", got)
	}
}

func TestDispatch_SelfReferentialValues(t *testing.T) {
	cyclic := func() map[string]any {
		m := map[string]any{"headers": map[string]any{}}
		m["body"] = m
		return m
	}

	t.Run("output", func(t *testing.T) {
		h := newHarness(t)
		h.register(t, "loop", "t1.ns1.HTTP.host.GET", nil, flow.BodyFunc(func(context.Context, any, flow.Settings) (any, error) {
			return cyclic(), nil
		}))

		res, err := h.svc.ResolveAndExecute(context.Background(), getPattern, nil, request("GET", "/users"))
		if !errors.Is(err, app.ErrOutputValidationFailed) {
			t.Fatalf("error = %v, want ErrOutputValidationFailed", err)
		}
		var verr *app.ValidationError
		if !errors.As(err, &verr) || len(verr.Violations) != 1 || verr.Violations[0].Kind != datatype.ViolationMaxDepthExceeded {
			t.Fatalf("error = %#v, want one MaxDepthExceeded violation", err)
		}
		if verr.Violations[0].TypeIdentifier != "HTTP_RESPONSE_OBJECT" {
			t.Errorf("data type = %s, want HTTP_RESPONSE_OBJECT", verr.Violations[0].TypeIdentifier)
		}
		if res.Output != nil {
			t.Errorf("Output = %v, want nil", res.Output)
		}
		if got := app.ClassifyError(err).Status; got != 500 {
			t.Errorf("status = %d, want 500", got)
		}
	})

	t.Run("input", func(t *testing.T) {
		h := newHarness(t)
		body := &countingBody{output: okResponse()}
		h.register(t, "users", "t1.ns1.HTTP.host.GET", nil, body)

		input := request("GET", "/users")
		input["body"] = input

		_, err := h.svc.ResolveAndExecute(context.Background(), getPattern, nil, input)
		if !errors.Is(err, app.ErrInputValidationFailed) {
			t.Fatalf("error = %v, want ErrInputValidationFailed", err)
		}
		if body.Calls() != 0 {
			t.Errorf("body invoked %d times, want 0", body.Calls())
		}
		if got := app.ClassifyError(err).Status; got != 400 {
			t.Errorf("status = %d, want 400", got)
		}
	})

	t.Run("settings", func(t *testing.T) {
		h := newHarness(t)
		settings := flow.Settings{}
		settings["self"] = map[string]any(settings)

		_, err := h.svc.RegisterFlow(&flow.Flow{
			ID:                 "loop",
			FlowTypeIdentifier: "REST",
			Pattern:            "t1.ns1.HTTP.host.GET",
			Settings:           settings,
			Body:               &countingBody{output: okResponse()},
		})
		if !errors.Is(err, flow.ErrInvalidSettings) {
			t.Errorf("error = %v, want ErrInvalidSettings", err)
		}
	})
}

func TestDispatch_RegisterFlowErrors(t *testing.T) {
	h := newHarness(t)
	body := &countingBody{output: okResponse()}

	tests := []struct {
		name string
		flow *flow.Flow
		want error
	}{
		{"unknown flow type", &flow.Flow{ID: "x", FlowTypeIdentifier: "SOAP", Pattern: "a.b", Body: body}, flow.ErrUnknownFlowType},
		{"missing body", &flow.Flow{ID: "x", FlowTypeIdentifier: "REST", Pattern: "a.b"}, flow.ErrMissingBody},
		{"bad pattern", &flow.Flow{ID: "x", FlowTypeIdentifier: "REST", Pattern: "a..b", Body: body}, flow.ErrInvalidPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := h.svc.Catalog()
			_, err := h.svc.RegisterFlow(tt.flow)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if h.svc.Catalog() != before {
				t.Error("failed registration must not publish a snapshot")
			}
		})
	}

	t.Run("flow type with unknown input type", func(t *testing.T) {
		err := h.svc.RegisterFlowTypes([]flow.FlowType{{Identifier: "RPC", InputTypeIdentifier: "NOPE"}})
		if !errors.Is(err, datatype.ErrUnknownType) {
			t.Errorf("error = %v, want ErrUnknownType", err)
		}
	})

	t.Run("cyclic types", func(t *testing.T) {
		err := h.svc.RegisterTypes([]datatype.DataType{
			{Identifier: "A", ParentTypeIdentifier: "B"},
			{Identifier: "B", ParentTypeIdentifier: "A"},
		})
		if !errors.Is(err, datatype.ErrCyclicTypeHierarchy) {
			t.Errorf("error = %v, want ErrCyclicTypeHierarchy", err)
		}
	})
}

func TestDispatch_RegisterFlowAssignsID(t *testing.T) {
	h := newHarness(t)
	f := h.register(t, "", "t1.ns1.HTTP.host.GET", nil, &countingBody{output: okResponse()})
	if f.ID != "exec_1" {
		t.Errorf("ID = %s, want exec_1", f.ID)
	}
}

func TestDispatch_SnapshotIsolation(t *testing.T) {
	h := newHarness(t)
	h.register(t, "v1", "t1.ns1.HTTP.host.GET", nil, &countingBody{output: okResponse()})
	old := h.svc.Catalog()

	next, err := app.NewCatalog(httpTypes(), []flow.FlowType{restType()}, []*flow.Flow{{
		ID: "v2", FlowTypeIdentifier: "REST", Pattern: "t1.ns1.HTTP.host.GET", Body: &countingBody{output: okResponse()},
	}})
	if err != nil {
		t.Fatalf("NewCatalog error: %v", err)
	}
	h.svc.Replace(next)

	if f, err := old.Flows.Resolve(getPattern, nil); err != nil || f.ID != "v1" {
		t.Errorf("old snapshot resolved %v, %v; want v1", f, err)
	}
	f, err := h.svc.Resolve(getPattern, nil)
	if err != nil || f.ID != "v2" {
		t.Errorf("new snapshot resolved %v, %v; want v2", f, err)
	}
	if h.svc.Catalog().Generation != old.Generation+1 {
		t.Errorf("Generation = %d, want %d", h.svc.Catalog().Generation, old.Generation+1)
	}
}

func TestDispatch_ReloadFailureKeepsSnapshot(t *testing.T) {
	h := newHarness(t)
	h.register(t, "v1", "t1.ns1.HTTP.host.GET", nil, &countingBody{output: okResponse()})
	before := h.svc.Catalog()

	errLoad := errors.New("bad catalog")
	err := h.svc.Reload(context.Background(), func(context.Context) (*app.Catalog, error) {
		return nil, errLoad
	})
	if !errors.Is(err, errLoad) {
		t.Errorf("error = %v, want %v", err, errLoad)
	}
	if h.svc.Catalog() != before {
		t.Error("snapshot replaced after failed reload")
	}
	if last := h.rec.reloads[len(h.rec.reloads)-1]; last {
		t.Error("failed reload recorded as success")
	}
}

func TestDispatch_Ready(t *testing.T) {
	svc := app.NewDispatchService(app.DispatchDeps{Logger: zerolog.Nop()})
	if svc.Ready() {
		t.Error("Ready() = true before any catalog was published")
	}
	svc.Replace(app.EmptyCatalog())
	if !svc.Ready() {
		t.Error("Ready() = false after Replace")
	}
}

func TestDispatch_ExecuteAll(t *testing.T) {
	h := newHarness(t)
	if err := h.svc.RegisterFlowTypes([]flow.FlowType{{Identifier: "CRON", InputTypeIdentifier: datatype.Object}}); err != nil {
		t.Fatalf("RegisterFlowTypes error: %v", err)
	}

	var mu sync.Mutex
	var fired []string
	body := func(id string, err error) flow.Body {
		return flow.BodyFunc(func(context.Context, any, flow.Settings) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			fired = append(fired, id)
			return nil, err
		})
	}
	errBoom := errors.New("boom")
	for _, f := range []*flow.Flow{
		{ID: "t1", FlowTypeIdentifier: "CRON", Pattern: "t1.ns1.CRON.node.TICK", Settings: flow.Settings{"ON": true}, Body: body("t1", nil)},
		{ID: "t2", FlowTypeIdentifier: "CRON", Pattern: "t2.ns1.CRON.node.TICK", Settings: flow.Settings{"ON": false}, Body: body("t2", nil)},
		{ID: "t3", FlowTypeIdentifier: "CRON", Pattern: "t3.ns1.CRON.node.TICK", Settings: flow.Settings{"ON": true}, Body: body("t3", errBoom)},
	} {
		if _, err := h.svc.RegisterFlow(f); err != nil {
			t.Fatalf("RegisterFlow error: %v", err)
		}
	}

	on := flow.IdentifyFunc(func(f *flow.Flow) bool { return f.Settings["ON"] == true })
	results := h.svc.ExecuteAll(context.Background(), flow.MustPattern("*.*.CRON.*.TICK"), on, map[string]any{})

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Flow.ID != "t1" || results[0].Err != nil {
		t.Errorf("results[0] = %s %v, want t1 ok", results[0].Flow.ID, results[0].Err)
	}
	if results[1].Flow.ID != "t3" || !errors.Is(results[1].Err, errBoom) {
		t.Errorf("results[1] = %s %v, want t3 boom", results[1].Flow.ID, results[1].Err)
	}
	if len(fired) != 2 {
		t.Errorf("fired = %v, want [t1 t3]", fired)
	}
}

func TestDispatch_ConcurrentReadsDuringRegistration(t *testing.T) {
	h := newHarness(t)
	h.register(t, "base", "t1.ns1.HTTP.host.GET", flow.Settings{"REQUEST_PATH": "^/base$"}, &countingBody{output: okResponse()})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := h.svc.ResolveAndExecute(context.Background(), getPattern, pathDisambiguator("/base"), request("GET", "/base")); err != nil {
					t.Errorf("ResolveAndExecute error: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		if _, err := h.svc.RegisterFlow(&flow.Flow{
			FlowTypeIdentifier: "REST",
			Pattern:            "t1.ns1.HTTP.host.GET",
			Settings:           flow.Settings{"REQUEST_PATH": "^/other$"},
			Body:               &countingBody{output: okResponse()},
		}); err != nil {
			t.Fatalf("RegisterFlow error: %v", err)
		}
	}
	wg.Wait()
}
