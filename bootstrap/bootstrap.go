// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/artpar/flowgate/adapters/clock"
	"github.com/artpar/flowgate/adapters/cron"
	fghttp "github.com/artpar/flowgate/adapters/http"
	"github.com/artpar/flowgate/adapters/idgen"
	"github.com/artpar/flowgate/adapters/metrics"
	"github.com/artpar/flowgate/adapters/mqtt"
	"github.com/artpar/flowgate/adapters/ws"
	"github.com/artpar/flowgate/app"
	"github.com/artpar/flowgate/config"
	"github.com/artpar/flowgate/ports"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Dispatch   *app.DispatchService
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Source     *Source

	bodies    *app.BodyRegistry
	ws        *ws.Handler
	adapters  []ports.ProtocolAdapter
	cancel    context.CancelFunc
	listening chan struct{}
	started   sync.Once
	addr      net.Addr
}

// Options provides optional settings for application initialization.
type Options struct {
	Version string

	// HotReload forces catalog watching on regardless of configuration.
	HotReload bool
}

// New creates and initializes the application. The catalog is loaded
// before New returns; an invalid catalog fails startup.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := SetupLogger(cfg.Logging)
	logger.Info().Str("source", cfg.Catalog.Source).Msg("initializing flowgate")

	a := &App{
		Logger:    logger,
		Config:    cfg,
		listening: make(chan struct{}),
	}

	deps := app.DispatchDeps{
		Clock:  clock.Real{},
		IDs:    idgen.UUID{},
		Logger: logger,
	}

	// Initialize metrics if enabled
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		a.Metrics = metrics.NewWithRegistry(reg)
		deps.Recorder = a.Metrics
		metricsHandler = metrics.Handler(reg)
		logger.Info().Msg("prometheus metrics enabled")
	}

	a.Dispatch = app.NewDispatchService(deps)
	a.bodies = NewBodyRegistry(cfg.Upstream, logger)

	source, err := OpenSource(cfg, cfg.Catalog.HotReload || opts.HotReload, logger)
	if err != nil {
		return nil, fmt.Errorf("open catalog source: %w", err)
	}
	a.Source = source

	if err := a.Reload(context.Background()); err != nil {
		source.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	// HTTP and WebSocket front ends
	dispatchHandler := fghttp.NewDispatchHandler(a.Dispatch, fghttp.HandlerConfig{
		Tenant:       cfg.HTTP.Tenant,
		Namespace:    cfg.HTTP.Namespace,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Timeout:      cfg.Execution.Timeout,
	}, logger, a.Metrics)

	routerCfg := fghttp.RouterConfig{
		Version:        opts.Version,
		MetricsHandler: metricsHandler,
	}
	if cfg.WebSocket.Enabled {
		a.ws = ws.NewHandler(a.Dispatch, ws.Config{
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
			Timeout:        cfg.Execution.Timeout,
			AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		}, logger, a.Metrics)
		routerCfg.WebSocketHandler = a.ws
	}

	router := fghttp.NewRouter(dispatchHandler, fghttp.NewHealthHandler(a.Dispatch), logger, routerCfg)
	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Trigger protocols
	if cfg.MQTT.Enabled {
		a.adapters = append(a.adapters, mqtt.New(a.Dispatch, mqtt.Config{
			Broker:    cfg.MQTT.Broker,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			Topics:    cfg.MQTT.Topics,
			QoS:       byte(cfg.MQTT.QoS),
			KeepAlive: cfg.MQTT.KeepAlive,
			Tenant:    cfg.MQTT.Tenant,
			Namespace: cfg.MQTT.Namespace,
			Timeout:   cfg.Execution.Timeout,
		}, logger, a.Metrics))
	}
	if cfg.Cron.Enabled {
		loc, err := time.LoadLocation(cfg.Cron.Timezone)
		if err != nil {
			source.Close()
			return nil, fmt.Errorf("cron timezone: %w", err)
		}
		a.adapters = append(a.adapters, cron.New(a.Dispatch, clock.Real{}, cron.Config{
			Location: loc,
			Timeout:  cfg.Execution.Timeout,
		}, logger, a.Metrics))
	}

	return a, nil
}

// Reload loads the catalog from the source and publishes it. On failure
// the current catalog keeps serving.
func (a *App) Reload(ctx context.Context) error {
	if err := a.Dispatch.Reload(ctx, Loader(a.Source, a.bodies)); err != nil {
		return err
	}
	types, flowTypes, flows := a.Dispatch.Catalog().Definition().Counts()
	a.Logger.Info().
		Str("source", a.Source.Name()).
		Uint64("generation", a.Dispatch.Catalog().Generation).
		Int("data_types", types).
		Int("flow_types", flowTypes).
		Int("flows", flows).
		Msg("catalog loaded")
	return nil
}

// Start starts the catalog watcher, the protocol adapters and the HTTP
// server. It does not block.
func (a *App) Start(ctx context.Context) error {
	// Addr waits on listening; release it on every return path.
	defer a.started.Do(func() { close(a.listening) })

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Source.Watcher != nil {
		err := a.Source.Watcher.Watch(ctx, func() {
			if err := a.Reload(ctx); err != nil {
				a.Logger.Warn().Err(err).Msg("catalog reload rejected")
			}
		})
		if err != nil {
			return fmt.Errorf("watch catalog: %w", err)
		}
		a.Logger.Info().Str("source", a.Source.Name()).Msg("catalog hot reload enabled")
	}

	for _, adapter := range a.adapters {
		if err := adapter.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", adapter.Name(), err)
		}
	}

	ln, err := net.Listen("tcp", a.HTTPServer.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	a.addr = ln.Addr()

	go func() {
		a.Logger.Info().
			Str("addr", ln.Addr().String()).
			Msg("starting http server")
		if err := a.HTTPServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("http server error")
		}
	}()

	return nil
}

// Addr returns the address the HTTP server listens on once Start has
// returned, or nil when Start failed.
func (a *App) Addr() net.Addr {
	<-a.listening
	return a.addr
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	if err := a.Start(context.Background()); err != nil {
		a.Shutdown()
		return err
	}

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop trigger protocols first so no new work arrives
	for i := len(a.adapters) - 1; i >= 0; i-- {
		if err := a.adapters[i].Stop(ctx); err != nil {
			a.Logger.Error().Err(err).Str("adapter", a.adapters[i].Name()).Msg("adapter stop error")
		}
	}

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Hijacked connections are not closed by Shutdown
	if a.ws != nil {
		a.ws.Close()
	}

	// Stop the watcher
	if a.cancel != nil {
		a.cancel()
	}

	if a.Source != nil {
		if err := a.Source.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("catalog source close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// SetupLogger builds the process logger from cfg.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
