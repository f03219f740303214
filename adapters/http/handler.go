// Package http provides the HTTP protocol adapter: it turns requests into
// dispatch calls and encodes flow results back into responses.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/artpar/flowgate/adapters/metrics"
	"github.com/artpar/flowgate/app"
	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// ReservedPrefix is the path prefix of flowgate's own endpoints.
const ReservedPrefix = "/_flowgate"

// ErrorResponseBody is the JSON error document.
type ErrorResponseBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an error. Report is set for validation failures.
type ErrorDetail struct {
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Report  *datatype.Report `json:"report,omitempty"`
}

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// Dispatcher resolves and executes flows.
type Dispatcher interface {
	ResolveAndExecute(ctx context.Context, pattern flow.Pattern, d flow.Disambiguator, input any) (app.Result, error)
}

// HandlerConfig configures DispatchHandler.
type HandlerConfig struct {
	// Tenant and Namespace are used when the route carries none.
	Tenant    string
	Namespace string

	MaxBodyBytes int64
	Timeout      time.Duration
}

// DispatchHandler serves catalog-defined HTTP flows.
type DispatchHandler struct {
	dispatcher Dispatcher
	cfg        HandlerConfig
	regexes    *RegexCache
	logger     zerolog.Logger
	metrics    *metrics.Collector
}

// NewDispatchHandler creates a new HTTP dispatch handler.
func NewDispatchHandler(d Dispatcher, cfg HandlerConfig, logger zerolog.Logger, m *metrics.Collector) *DispatchHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20 // 10MB
	}
	return &DispatchHandler{
		dispatcher: d,
		cfg:        cfg,
		regexes:    &RegexCache{},
		logger:     logger.With().Str("adapter", "http").Logger(),
		metrics:    m,
	}
}

// ServeHTTP handles a request routed as /{tenant}/{namespace}/* or, with
// default tenant and namespace configured, /*.
func (h *DispatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.metrics != nil {
		h.metrics.RequestsInFlight.WithLabelValues("http").Inc()
		defer h.metrics.RequestsInFlight.WithLabelValues("http").Dec()
	}

	tenant := chi.URLParam(r, "tenant")
	namespace := chi.URLParam(r, "namespace")
	if tenant == "" {
		tenant = h.cfg.Tenant
	}
	if namespace == "" {
		namespace = h.cfg.Namespace
	}
	path := "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	method := strings.ToUpper(r.Method)

	pattern, err := flow.LiteralPattern(tenant, namespace, Protocol, hostname(r.Host), method)
	if err != nil {
		h.finish(w, r, start, &app.ErrorResponse{Status: 400, Code: "bad_request", Message: err.Error()})
		return
	}

	body, err := readBody(r, h.cfg.MaxBodyBytes)
	if err != nil {
		h.logger.Debug().Err(err).Msg("failed to read request body")
		h.finish(w, r, start, &app.ErrorResponse{Status: 400, Code: "invalid_body", Message: err.Error()})
		return
	}

	route := NewRoute(method, path, h.regexes)
	input := map[string]any{
		"method":  method,
		"url":     path,
		"query":   queryMap(r),
		"body":    body,
		"headers": headerEntries(r),
	}

	ctx := r.Context()
	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	res, err := h.dispatcher.ResolveAndExecute(ctx, pattern, route, input)
	if err != nil {
		h.finish(w, r, start, app.ClassifyError(err))
		return
	}

	status := writeOutput(w, res.Output)
	h.record(r, start, status, res.Flow.ID, res.ExecutionID)
}

func (h *DispatchHandler) finish(w http.ResponseWriter, r *http.Request, start time.Time, resp *app.ErrorResponse) {
	writeError(w, resp)

	event := h.logger.Debug()
	if resp.Status >= 500 {
		event = h.logger.Warn()
	}
	event.
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", resp.Status).
		Str("code", resp.Code).
		Str("request_id", middleware.GetReqID(r.Context())).
		Dur("duration", time.Since(start)).
		Msg("dispatch failed")

	if h.metrics != nil {
		h.metrics.RecordRequest("http", resp.Status, time.Since(start))
	}
}

func (h *DispatchHandler) record(r *http.Request, start time.Time, status int, flowID, execID string) {
	h.logger.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Str("flow", flowID).
		Str("execution_id", execID).
		Str("request_id", middleware.GetReqID(r.Context())).
		Dur("duration", time.Since(start)).
		Msg("flow request")

	if h.metrics != nil {
		h.metrics.RecordRequest("http", status, time.Since(start))
	}
}

var errBodyTooLarge = errors.New("request body too large")

// readBody decodes a JSON body. An empty body decodes to an empty object.
func readBody(r *http.Request, limit int64) (any, error) {
	if r.Body == nil {
		return map[string]any{}, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}, nil
	}
	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// hostname strips the port from a Host header.
func hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// hopHeaders are not passed to flows.
var hopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// headerEntries renders request headers as an HTTP_HEADER_MAP sorted by key.
// Go keeps Host in r.Host, so it is added explicitly.
func headerEntries(r *http.Request) []any {
	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		if !hopHeaders[strings.ToLower(k)] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	entries := make([]any, 0, len(keys)+1)
	if r.Host != "" {
		entries = append(entries, map[string]any{"key": "Host", "value": r.Host})
	}
	for _, k := range keys {
		for _, v := range r.Header[k] {
			entries = append(entries, map[string]any{"key": k, "value": v})
		}
	}
	return entries
}

func queryMap(r *http.Request) map[string]any {
	q := r.URL.Query()
	out := make(map[string]any, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// writeOutput encodes a flow result. An HTTP_RESPONSE_OBJECT contributes
// its status_code and headers; any other value is sent as the body.
func writeOutput(w http.ResponseWriter, output any) int {
	status := http.StatusOK
	body := output

	if obj, ok := output.(map[string]any); ok {
		if _, hasBody := obj["body"]; hasBody {
			body = obj["body"]
			if code, ok := obj["status_code"].(float64); ok && code >= 100 && code <= 599 {
				status = int(code)
			}
			if headers, ok := obj["headers"].([]any); ok {
				for _, e := range headers {
					entry, _ := e.(map[string]any)
					k, _ := entry["key"].(string)
					v, _ := entry["value"].(string)
					if k != "" {
						w.Header().Add(k, v)
					}
				}
			}
		}
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if body != nil && status != http.StatusNoContent {
		json.NewEncoder(w).Encode(body)
	}
	return status
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, resp *app.ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	json.NewEncoder(w).Encode(ErrorResponseBody{Error: ErrorDetail{
		Code:    resp.Code,
		Message: resp.Message,
		Report:  resp.Report,
	}})
}

// ReadinessChecker reports whether the service can serve traffic.
type ReadinessChecker interface {
	Ready() bool
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	ready ReadinessChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(ready ReadinessChecker) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readiness reports ok once a catalog has been published.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.ready != nil && !h.ready.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "unavailable",
			"error":  "catalog not loaded",
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// VersionHandler returns the service version.
func VersionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(VersionResponse{
			Version: version,
			Service: "flowgate",
		})
	}
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Version          string
	MetricsHandler   http.Handler // served at /_flowgate/metrics when set
	WebSocketHandler http.Handler // mounted at /_flowgate/ws when set
	RequestTimeout   time.Duration
}

// NewRouter creates the main HTTP router.
func NewRouter(dispatch *DispatchHandler, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	r.Route(ReservedPrefix, func(r chi.Router) {
		r.Get("/health", health.Liveness)
		r.Get("/health/live", health.Liveness)
		r.Get("/health/ready", health.Readiness)
		r.Get("/version", VersionHandler(cfg.Version))
		if cfg.MetricsHandler != nil {
			r.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WebSocketHandler != nil {
			r.Handle("/ws/{tenant}/{namespace}", cfg.WebSocketHandler)
		}
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, &app.ErrorResponse{Status: 404, Code: "not_found", Message: "Unknown flowgate endpoint"})
		})
	})

	if dispatch.cfg.Tenant != "" && dispatch.cfg.Namespace != "" {
		r.HandleFunc("/*", dispatch.ServeHTTP)
	} else {
		r.HandleFunc("/{tenant}/{namespace}/*", dispatch.ServeHTTP)
		r.HandleFunc("/{tenant}/{namespace}", dispatch.ServeHTTP)
	}

	return r
}

// NewLoggingMiddleware logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for flowgate's own endpoints
			if strings.HasPrefix(r.URL.Path, ReservedPrefix) {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
