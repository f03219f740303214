// Package ws provides the WebSocket protocol adapter. Every text frame on a
// connection is dispatched as one flow execution and answered in order.
package ws

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	fghttp "github.com/artpar/flowgate/adapters/http"
	"github.com/artpar/flowgate/adapters/metrics"
	"github.com/artpar/flowgate/app"
	"github.com/artpar/flowgate/domain/flow"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultMaxMessageSize = 1 << 20
	bufferSize            = 1024
)

// Frame is an inbound message.
type Frame struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Body any    `json:"body"`
}

// Reply answers one frame. Exactly one of Output and Error is set; a
// successful reply always carries "output", null included.
type Reply struct {
	ID     string              `json:"id"`
	Output any                 `json:"output,omitempty"`
	Error  *fghttp.ErrorDetail `json:"error,omitempty"`
}

// MarshalJSON encodes the error form or the output form.
func (r Reply) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			ID    string              `json:"id"`
			Error *fghttp.ErrorDetail `json:"error"`
		}{r.ID, r.Error})
	}
	return json.Marshal(struct {
		ID     string `json:"id"`
		Output any    `json:"output"`
	}{r.ID, r.Output})
}

// Config configures Handler.
type Config struct {
	MaxMessageSize int64
	Timeout        time.Duration // per frame

	// AllowedOrigins lists cross-site origins allowed to connect, such as
	// "https://app.example.com"; "*" allows any. Empty means same-origin
	// only. CheckOrigin, when set, replaces both.
	AllowedOrigins []string
	CheckOrigin    func(r *http.Request) bool
}

// Handler upgrades requests on /ws/{tenant}/{namespace} and serves frames.
type Handler struct {
	dispatcher fghttp.Dispatcher
	cfg        Config
	upgrader   websocket.Upgrader
	regexes    *fghttp.RegexCache
	logger     zerolog.Logger
	metrics    *metrics.Collector

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHandler creates a WebSocket handler.
func NewHandler(d fghttp.Dispatcher, cfg Config, logger zerolog.Logger, m *metrics.Collector) *Handler {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil && len(cfg.AllowedOrigins) > 0 {
		checkOrigin = allowOrigins(cfg.AllowedOrigins)
	}
	return &Handler{
		dispatcher: d,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  bufferSize,
			WriteBufferSize: bufferSize,
			CheckOrigin:     checkOrigin,
		},
		regexes: &fghttp.RegexCache{},
		logger:  logger.With().Str("adapter", "ws").Logger(),
		metrics: m,
		conns:   make(map[*websocket.Conn]struct{}),
	}
}

// allowOrigins accepts same-origin requests, requests without an Origin
// header and the listed origins.
func allowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed["*"] || allowed[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// ServeHTTP upgrades the connection and serves it until the peer leaves.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	namespace := chi.URLParam(r, "namespace")

	host := r.Host
	if hst, _, err := net.SplitHostPort(host); err == nil {
		host = hst
	}
	pattern, err := flow.LiteralPattern(tenant, namespace, Protocol, host, Event)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{handler: h, conn: conn, pattern: pattern, done: make(chan struct{})}
	h.track(conn, true)
	if h.metrics != nil {
		h.metrics.RequestsInFlight.WithLabelValues("ws").Inc()
	}

	h.logger.Debug().
		Str("pattern", pattern.String()).
		Str("remote", r.RemoteAddr).
		Msg("websocket connected")

	go func() {
		defer func() {
			h.track(conn, false)
			if h.metrics != nil {
				h.metrics.RequestsInFlight.WithLabelValues("ws").Dec()
			}
		}()
		c.run(context.Background())
	}()
}

// Close closes every open connection.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

func (h *Handler) track(conn *websocket.Conn, open bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if open {
		h.conns[conn] = struct{}{}
	} else {
		delete(h.conns, conn)
	}
}

// Handle dispatches one frame and returns its reply.
func (h *Handler) Handle(ctx context.Context, pattern flow.Pattern, frame Frame) Reply {
	start := time.Now()
	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	input := map[string]any{"path": frame.Path, "body": frame.Body}
	res, err := h.dispatcher.ResolveAndExecute(ctx, pattern, h.route(frame.Path), input)
	if err != nil {
		resp := app.ClassifyError(err)
		h.record(resp.Status, start)
		return Reply{ID: frame.ID, Error: &fghttp.ErrorDetail{Code: resp.Code, Message: resp.Message, Report: resp.Report}}
	}

	h.record(http.StatusOK, start)
	h.logger.Debug().
		Str("frame", frame.ID).
		Str("flow", res.Flow.ID).
		Str("execution_id", res.ExecutionID).
		Dur("duration", time.Since(start)).
		Msg("frame handled")
	return Reply{ID: frame.ID, Output: res.Output}
}

// route matches flows whose WS_PATH regex matches path. Flows without a
// valid WS_PATH never match.
func (h *Handler) route(path string) flow.Disambiguator {
	return flow.IdentifyFunc(func(f *flow.Flow) bool {
		expr := f.Settings.String(SettingPath)
		if expr == "" {
			return false
		}
		re := h.regexes.Get(expr)
		return re != nil && re.MatchString(path)
	})
}

func (h *Handler) record(status int, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordRequest("ws", status, time.Since(start))
	}
}

type client struct {
	handler *Handler
	conn    *websocket.Conn
	pattern flow.Pattern

	writeMu sync.Mutex
	done    chan struct{}
}

func (c *client) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.handler.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.ping()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.handler.logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var frame Frame
		var reply Reply
		if err := json.Unmarshal(data, &frame); err != nil {
			reply = Reply{Error: &fghttp.ErrorDetail{Code: "invalid_frame", Message: err.Error()}}
			c.handler.record(http.StatusBadRequest, time.Now())
		} else {
			reply = c.handler.Handle(ctx, c.pattern, frame)
		}

		if err := c.write(reply); err != nil {
			c.handler.logger.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}

func (c *client) write(reply Reply) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(reply)
}

func (c *client) ping() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
