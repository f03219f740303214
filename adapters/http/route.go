package http

import (
	"regexp"
	"sync"

	"github.com/artpar/flowgate/domain/flow"
)

// RegexCache compiles path patterns once. A pattern that fails to compile
// is remembered as nil and never matches.
type RegexCache struct {
	m sync.Map // pattern -> *regexp.Regexp
}

// Get returns the compiled pattern, or nil if it does not compile.
func (c *RegexCache) Get(pattern string) *regexp.Regexp {
	if v, ok := c.m.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	v, _ := c.m.LoadOrStore(pattern, re)
	return v.(*regexp.Regexp)
}

// Route identifies the flow registered for a concrete request method and
// path among flows sharing a dispatch pattern.
type Route struct {
	Method string
	Path   string
	cache  *RegexCache
}

// NewRoute creates a disambiguator for one request.
func NewRoute(method, path string, cache *RegexCache) Route {
	if cache == nil {
		cache = &RegexCache{}
	}
	return Route{Method: method, Path: path, cache: cache}
}

// Identify reports whether f serves the request. A flow that sets
// HTTP_METHOD must name the request method; its path pattern must match
// the request path. A missing or invalid path pattern never matches.
func (rt Route) Identify(f *flow.Flow) bool {
	if f.Settings.Has(SettingMethod) && f.Settings.String(SettingMethod) != rt.Method {
		return false
	}
	re := rt.regexp(f)
	return re != nil && re.MatchString(rt.Path)
}

func (rt Route) regexp(f *flow.Flow) *regexp.Regexp {
	pattern, ok := PathPattern(f.Settings)
	if !ok {
		return nil
	}
	return rt.cache.Get(pattern)
}

// PathPattern returns a flow's path regex: REQUEST_PATH, or HTTP_URL given
// either as text or as an object with a "url" field.
func PathPattern(s flow.Settings) (string, bool) {
	if p := s.String(SettingPath); p != "" {
		return p, true
	}
	switch v := s[SettingURL].(type) {
	case string:
		return v, v != ""
	case map[string]any:
		p, ok := v["url"].(string)
		return p, ok && p != ""
	}
	return "", false
}

var _ flow.Disambiguator = Route{}
