package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	fghttp "github.com/artpar/flowgate/adapters/http"
	"github.com/artpar/flowgate/adapters/metrics"
	"github.com/artpar/flowgate/app"
	"github.com/artpar/flowgate/domain/flow"
	"github.com/rs/zerolog"
)

// Publisher sends a message to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// HandlerConfig configures Handler.
type HandlerConfig struct {
	Tenant    string
	Namespace string
	Host      string // broker host, used as the pattern host segment
	Timeout   time.Duration
}

// Handler dispatches MQTT messages independently of the broker client.
type Handler struct {
	dispatcher fghttp.Dispatcher
	publisher  Publisher
	cfg        HandlerConfig
	logger     zerolog.Logger
	metrics    *metrics.Collector
}

// NewHandler creates a message handler. publisher may be nil when no flow
// publishes a response.
func NewHandler(d fghttp.Dispatcher, publisher Publisher, cfg HandlerConfig, logger zerolog.Logger, m *metrics.Collector) *Handler {
	return &Handler{
		dispatcher: d,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger.With().Str("adapter", "mqtt").Logger(),
		metrics:    m,
	}
}

// Handle dispatches one message. A JSON payload is decoded; any other
// payload is passed as text.
func (h *Handler) Handle(ctx context.Context, topic string, payload []byte) error {
	start := time.Now()

	pattern, err := flow.LiteralPattern(h.cfg.Tenant, h.cfg.Namespace, Protocol, h.cfg.Host, Event)
	if err != nil {
		return err
	}

	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	input := map[string]any{"topic": topic, "payload": decodePayload(payload)}
	route := flow.IdentifyFunc(func(f *flow.Flow) bool {
		return TopicMatches(f.Settings.String(SettingTopic), topic)
	})

	res, err := h.dispatcher.ResolveAndExecute(ctx, pattern, route, input)
	if err != nil {
		resp := app.ClassifyError(err)
		h.record(resp.Status, start)
		h.logger.Warn().
			Err(err).
			Str("topic", topic).
			Str("code", resp.Code).
			Msg("message dispatch failed")
		return err
	}
	h.record(200, start)

	h.logger.Debug().
		Str("topic", topic).
		Str("flow", res.Flow.ID).
		Str("execution_id", res.ExecutionID).
		Dur("duration", time.Since(start)).
		Msg("message handled")

	responseTopic := res.Flow.Settings.String(SettingResponseTopic)
	if responseTopic == "" {
		return nil
	}
	if h.publisher == nil {
		return fmt.Errorf("mqtt: flow %s sets %s but no publisher is configured", res.Flow.ID, SettingResponseTopic)
	}

	data, err := json.Marshal(res.Output)
	if err != nil {
		return fmt.Errorf("mqtt: encode output of %s: %w", res.Flow.ID, err)
	}
	if err := h.publisher.Publish(responseTopic, data); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", responseTopic, err)
	}
	return nil
}

func (h *Handler) record(status int, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordRequest("mqtt", status, time.Since(start))
	}
}

func decodePayload(payload []byte) any {
	var v any
	if err := json.Unmarshal(payload, &v); err == nil {
		return v
	}
	return string(payload)
}
