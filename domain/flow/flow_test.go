package flow_test

import (
	"errors"
	"regexp"
	"testing"

	"github.com/artpar/flowgate/domain/flow"
)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		in      string
		wantLen int
		wantErr bool
	}{
		{"t1.ns1.HTTP.host.GET", 5, false},
		{"*.*.HTTP.api.example.com.GET", 7, false},
		{"single", 1, false},
		{"", 0, true},
		{"a..b", 0, true},
		{".a", 0, true},
		{"a.b c", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := flow.ParsePattern(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePattern(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, flow.ErrInvalidPattern) {
					t.Errorf("error = %v, want ErrInvalidPattern", err)
				}
				return
			}
			if p.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", p.Len(), tt.wantLen)
			}
			if p.String() != tt.in {
				t.Errorf("String() = %s, want %s", p.String(), tt.in)
			}
		})
	}
}

func TestPattern_Matches(t *testing.T) {
	tests := []struct {
		registered string
		lookup     string
		want       bool
	}{
		{"t1.ns1.HTTP.host.GET", "t1.ns1.HTTP.host.GET", true},
		{"*.*.HTTP.host.GET", "t1.ns1.HTTP.host.GET", true},
		{"t1.ns1.HTTP.host.GET", "t1.ns1.HTTP.host.POST", false},
		{"*.*.HTTP.host.GET", "t1.ns1.HTTP.host", false},
		{"*.*.HTTP.host", "t1.ns1.HTTP.host.GET", false},
		{"t1.ns1.CRON.node.TICK", "*.*.CRON.*.TICK", true},
		{"t1.ns1.HTTP.node.TICK", "*.*.CRON.*.TICK", false},
	}

	for _, tt := range tests {
		t.Run(tt.registered+"~"+tt.lookup, func(t *testing.T) {
			got := flow.MustPattern(tt.registered).Matches(flow.MustPattern(tt.lookup))
			if got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJoinPattern_HostWithDots(t *testing.T) {
	p, err := flow.JoinPattern("t1", "ns1", "HTTP", "api.example.com", "GET")
	if err != nil {
		t.Fatalf("JoinPattern error: %v", err)
	}
	if p.Len() != 7 {
		t.Errorf("Len() = %d, want 7", p.Len())
	}
	if !flow.MustPattern("*.*.HTTP.api.example.com.GET").Matches(p) {
		t.Error("wildcard host pattern should match")
	}
}

func TestLiteralPattern(t *testing.T) {
	p, err := flow.LiteralPattern("t1", "ns1", "HTTP", "api.example.com", "GET")
	if err != nil {
		t.Fatalf("LiteralPattern error: %v", err)
	}
	if p.String() != "t1.ns1.HTTP.api.example.com.GET" {
		t.Errorf("pattern = %s", p)
	}

	for _, parts := range [][]string{
		{"*", "ns1", "HTTP", "host", "GET"},
		{"t1", "*", "HTTP", "host", "GET"},
		{"t1", "ns1", "HTTP", "*", "GET"},
		{"t1", "ns1", "HTTP", "a.*.com", "GET"},
	} {
		if _, err := flow.LiteralPattern(parts...); !errors.Is(err, flow.ErrInvalidPattern) {
			t.Errorf("LiteralPattern(%v) error = %v, want ErrInvalidPattern", parts, err)
		}
	}
}

func newFlow(id, pattern string, settings flow.Settings) *flow.Flow {
	return &flow.Flow{ID: id, FlowTypeIdentifier: "REST", Pattern: pattern, Settings: settings}
}

func TestStore_CandidatesPreserveOrder(t *testing.T) {
	store, err := flow.NewStore([]*flow.Flow{
		newFlow("a", "t1.ns1.HTTP.host.GET", nil),
		newFlow("b", "*.*.HTTP.host.GET", nil),
		newFlow("c", "t1.ns1.HTTP.host.POST", nil),
		newFlow("d", "t1.ns1.HTTP.host.GET", nil),
		newFlow("e", "t1.ns1.HTTP.GET", nil),
	})
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}

	got := store.Candidates(flow.MustPattern("t1.ns1.HTTP.host.GET"))
	var ids string
	for _, f := range got {
		ids += f.ID
	}
	if ids != "abd" {
		t.Errorf("candidates = %s, want abd", ids)
	}
}

func TestStore_WithIsCopyOnWrite(t *testing.T) {
	s1, _ := flow.NewStore([]*flow.Flow{newFlow("a", "x.y", nil)})
	s2, err := s1.With(newFlow("b", "x.y", nil))
	if err != nil {
		t.Fatalf("With error: %v", err)
	}

	if s1.Len() != 1 {
		t.Errorf("original Len() = %d, want 1", s1.Len())
	}
	if s2.Len() != 2 {
		t.Errorf("new Len() = %d, want 2", s2.Len())
	}
	if _, ok := s2.Get("b"); !ok {
		t.Error("Get(b) not found in new store")
	}
}

func TestNewStore_Errors(t *testing.T) {
	if _, err := flow.NewStore([]*flow.Flow{newFlow("a", "x..y", nil)}); !errors.Is(err, flow.ErrInvalidPattern) {
		t.Errorf("bad pattern error = %v, want ErrInvalidPattern", err)
	}
	if _, err := flow.NewStore([]*flow.Flow{newFlow("a", "x.y", nil), newFlow("a", "x.z", nil)}); !errors.Is(err, flow.ErrDuplicateFlow) {
		t.Errorf("duplicate error = %v, want ErrDuplicateFlow", err)
	}
}

// pathDisambiguator mirrors what the HTTP adapter does: the flow's
// REQUEST_PATH setting is a regex over the concrete path.
func pathDisambiguator(path string) flow.Disambiguator {
	return flow.IdentifyFunc(func(f *flow.Flow) bool {
		re, err := regexp.Compile(f.Settings.String("REQUEST_PATH"))
		if err != nil {
			return false
		}
		return re.MatchString(path)
	})
}

func TestStore_Resolve(t *testing.T) {
	store, err := flow.NewStore([]*flow.Flow{
		newFlow("users", "t1.ns1.HTTP.host.GET", flow.Settings{"REQUEST_PATH": "/users.*"}),
		newFlow("orders", "t1.ns1.HTTP.host.GET", flow.Settings{"REQUEST_PATH": "/orders.*"}),
		newFlow("only", "t1.ns1.HTTP.host.DELETE", flow.Settings{"REQUEST_PATH": "/never"}),
	})
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	get := flow.MustPattern("t1.ns1.HTTP.host.GET")

	t.Run("disjoint predicates pick one", func(t *testing.T) {
		f, err := store.Resolve(get, pathDisambiguator("/orders/5"))
		if err != nil {
			t.Fatalf("Resolve error: %v", err)
		}
		if f.ID != "orders" {
			t.Errorf("flow = %s, want orders", f.ID)
		}
	})

	t.Run("both predicates true", func(t *testing.T) {
		always := flow.IdentifyFunc(func(*flow.Flow) bool { return true })
		_, err := store.Resolve(get, always)
		if !errors.Is(err, flow.ErrAmbiguousMatch) {
			t.Fatalf("error = %v, want ErrAmbiguousMatch", err)
		}
		var amb *flow.AmbiguousMatchError
		if !errors.As(err, &amb) {
			t.Fatalf("error is %T, want *AmbiguousMatchError", err)
		}
		if len(amb.FlowIDs) != 2 || amb.FlowIDs[0] != "users" || amb.FlowIDs[1] != "orders" {
			t.Errorf("FlowIDs = %v, want [users orders]", amb.FlowIDs)
		}
	})

	t.Run("no predicate true", func(t *testing.T) {
		_, err := store.Resolve(get, pathDisambiguator("/items"))
		if !errors.Is(err, flow.ErrNoMatch) {
			t.Errorf("error = %v, want ErrNoMatch", err)
		}
	})

	t.Run("no registered flow", func(t *testing.T) {
		_, err := store.Resolve(flow.MustPattern("t1.ns1.HTTP.host.PUT"), pathDisambiguator("/users"))
		if !errors.Is(err, flow.ErrNoMatch) {
			t.Errorf("error = %v, want ErrNoMatch", err)
		}
	})

	t.Run("single candidate skips disambiguator", func(t *testing.T) {
		calls := 0
		d := flow.IdentifyFunc(func(*flow.Flow) bool {
			calls++
			return false
		})
		f, err := store.Resolve(flow.MustPattern("t1.ns1.HTTP.host.DELETE"), d)
		if err != nil {
			t.Fatalf("Resolve error: %v", err)
		}
		if f.ID != "only" {
			t.Errorf("flow = %s, want only", f.ID)
		}
		if calls != 0 {
			t.Errorf("disambiguator calls = %d, want 0", calls)
		}
	})
}

func TestStore_Select(t *testing.T) {
	store, _ := flow.NewStore([]*flow.Flow{
		newFlow("a", "t1.ns1.CRON.node.TICK", flow.Settings{"ON": true}),
		newFlow("b", "t2.ns9.CRON.node.TICK", flow.Settings{"ON": false}),
		newFlow("c", "t3.ns1.CRON.node.TICK", flow.Settings{"ON": true}),
	})

	on := flow.IdentifyFunc(func(f *flow.Flow) bool { return f.Settings["ON"] == true })
	got := store.Select(flow.MustPattern("*.*.CRON.*.TICK"), on)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("Select = %v, want [a c]", got)
	}
}

func TestFlowType_Apply(t *testing.T) {
	ft := flow.FlowType{
		Identifier: "REST",
		Settings: []flow.SettingDefinition{
			{Identifier: "REQUEST_PATH", Required: true},
			{Identifier: "HTTP_METHOD", Default: "GET"},
			{Identifier: "NOTE"},
		},
	}

	got, err := ft.Apply(flow.Settings{"REQUEST_PATH": "/x"})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if got.String("HTTP_METHOD") != "GET" {
		t.Errorf("HTTP_METHOD = %v, want default GET", got["HTTP_METHOD"])
	}
	if got.Has("NOTE") {
		t.Error("optional setting without default should stay absent")
	}

	if _, err := ft.Apply(flow.Settings{}); !errors.Is(err, flow.ErrInvalidSettings) {
		t.Errorf("missing required error = %v, want ErrInvalidSettings", err)
	}
	if _, err := ft.Apply(flow.Settings{"REQUEST_PATH": "/x", "EXTRA": 1}); !errors.Is(err, flow.ErrInvalidSettings) {
		t.Errorf("unknown setting error = %v, want ErrInvalidSettings", err)
	}

	open := flow.FlowType{Identifier: "OPEN"}
	if _, err := open.Apply(flow.Settings{"ANYTHING": 1}); err != nil {
		t.Errorf("type without definitions rejected settings: %v", err)
	}
}

func TestSettings_CloneIsDeep(t *testing.T) {
	orig := flow.Settings{
		"HTTP_URL": map[string]any{"url": "^/users$"},
		"FIELDS":   []any{map[string]any{"n": 1.0}},
		"NAME":     "users",
	}

	cp := orig.Clone()
	cp["HTTP_URL"].(map[string]any)["url"] = "^/other$"
	cp["FIELDS"].([]any)[0].(map[string]any)["n"] = 2.0
	cp["NAME"] = "other"

	if got := orig["HTTP_URL"].(map[string]any)["url"]; got != "^/users$" {
		t.Errorf("HTTP_URL.url = %v, want ^/users$", got)
	}
	if got := orig["FIELDS"].([]any)[0].(map[string]any)["n"]; got != 1.0 {
		t.Errorf("FIELDS[0].n = %v, want 1", got)
	}
	if got := orig.String("NAME"); got != "users" {
		t.Errorf("NAME = %s, want users", got)
	}
}
