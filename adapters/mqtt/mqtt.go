// Package mqtt provides the MQTT protocol adapter. It subscribes to the
// configured topic filters and dispatches each message to one flow.
package mqtt

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	fghttp "github.com/artpar/flowgate/adapters/http"
	"github.com/artpar/flowgate/adapters/metrics"
	"github.com/artpar/flowgate/ports"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Config configures the broker connection.
type Config struct {
	Broker         string // tcp://host:1883
	ClientID       string
	Username       string
	Password       string
	Topics         []string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	Quiesce        uint // milliseconds

	Tenant    string
	Namespace string
	Timeout   time.Duration
}

// Adapter connects to an MQTT broker and feeds messages to a Handler.
type Adapter struct {
	cfg        Config
	dispatcher fghttp.Dispatcher
	logger     zerolog.Logger
	metrics    *metrics.Collector

	mu      sync.Mutex
	client  paho.Client
	handler *Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates an MQTT adapter.
func New(d fghttp.Dispatcher, cfg Config, logger zerolog.Logger, m *metrics.Collector) *Adapter {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Quiesce == 0 {
		cfg.Quiesce = 250
	}
	return &Adapter{
		cfg:        cfg,
		dispatcher: d,
		logger:     logger.With().Str("adapter", "mqtt").Logger(),
		metrics:    m,
	}
}

// Name implements ports.ProtocolAdapter.
func (a *Adapter) Name() string { return "mqtt" }

// Start connects to the broker. Subscriptions are renewed on every
// reconnect.
func (a *Adapter) Start(ctx context.Context) error {
	u, err := url.Parse(a.cfg.Broker)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("mqtt: invalid broker %q", a.cfg.Broker)
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(a.cfg.Broker)
	opts.SetClientID(a.cfg.ClientID)
	opts.SetUsername(a.cfg.Username)
	opts.SetPassword(a.cfg.Password)
	opts.SetKeepAlive(a.cfg.KeepAlive)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(a.subscribe)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		a.logger.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := paho.NewClient(opts)

	a.mu.Lock()
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.client = client
	a.handler = NewHandler(a.dispatcher, publisher{client: client, qos: a.cfg.QoS}, HandlerConfig{
		Tenant:    a.cfg.Tenant,
		Namespace: a.cfg.Namespace,
		Host:      u.Hostname(),
		Timeout:   a.cfg.Timeout,
	}, a.logger, a.metrics)
	a.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(a.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt: connect to %s timed out", a.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect to %s: %w", a.cfg.Broker, err)
	}

	a.logger.Info().
		Str("broker", a.cfg.Broker).
		Strs("topics", a.cfg.Topics).
		Msg("mqtt connected")
	return nil
}

func (a *Adapter) subscribe(client paho.Client) {
	a.mu.Lock()
	ctx, handler := a.ctx, a.handler
	a.mu.Unlock()

	for _, topic := range a.cfg.Topics {
		token := client.Subscribe(topic, a.cfg.QoS, func(_ paho.Client, msg paho.Message) {
			go handler.Handle(ctx, msg.Topic(), msg.Payload())
		})
		go func(topic string) {
			token.Wait()
			if err := token.Error(); err != nil {
				a.logger.Error().Err(err).Str("topic", topic).Msg("mqtt subscribe failed")
			}
		}(topic)
	}
}

// Stop disconnects from the broker.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil
	}
	a.cancel()
	a.client.Disconnect(a.cfg.Quiesce)
	a.client = nil
	return nil
}

type publisher struct {
	client paho.Client
	qos    byte
}

func (p publisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, false, payload)
	token.Wait()
	return token.Error()
}

var _ ports.ProtocolAdapter = (*Adapter)(nil)
