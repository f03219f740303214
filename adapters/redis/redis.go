// Package redis provides a catalog source backed by a Redis key, with
// reload notifications over pub/sub.
package redis

import (
	"context"
	"errors"
	"fmt"

	catalogfile "github.com/artpar/flowgate/adapters/catalog"
	"github.com/artpar/flowgate/domain/catalog"
	"github.com/artpar/flowgate/ports"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrCatalogMissing is returned by Load when the catalog key does not exist.
var ErrCatalogMissing = errors.New("catalog key not found")

// ReloadMessage is published on the reload channel after Import.
const ReloadMessage = "reload"

// Config configures Source.
type Config struct {
	Key           string
	ReloadChannel string
	Format        catalogfile.Format // encoding of the stored document; JSON by default
}

// Source stores the catalog document under one key.
type Source struct {
	client *goredis.Client
	cfg    Config
	logger zerolog.Logger
}

// NewSource creates a Redis catalog source.
func NewSource(client *goredis.Client, cfg Config, logger zerolog.Logger) *Source {
	if cfg.Key == "" {
		cfg.Key = "flowgate:catalog"
	}
	if cfg.ReloadChannel == "" {
		cfg.ReloadChannel = "flowgate:catalog:reload"
	}
	if cfg.Format == "" {
		cfg.Format = catalogfile.FormatJSON
	}
	return &Source{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "redis_catalog").Logger(),
	}
}

// Name implements ports.CatalogSource.
func (s *Source) Name() string { return "redis:" + s.cfg.Key }

// Load implements ports.CatalogSource.
func (s *Source) Load(ctx context.Context) (catalog.Definition, error) {
	data, err := s.client.Get(ctx, s.cfg.Key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return catalog.Definition{}, fmt.Errorf("%w: %s", ErrCatalogMissing, s.cfg.Key)
	}
	if err != nil {
		return catalog.Definition{}, fmt.Errorf("get %s: %w", s.cfg.Key, err)
	}
	return catalogfile.Decode(data, s.cfg.Format)
}

// Import stores def and notifies watchers.
func (s *Source) Import(ctx context.Context, def catalog.Definition) error {
	data, err := catalogfile.Encode(def.Normalize(), s.cfg.Format)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := s.client.Set(ctx, s.cfg.Key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.cfg.Key, err)
	}
	if err := s.client.Publish(ctx, s.cfg.ReloadChannel, ReloadMessage).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", s.cfg.ReloadChannel, err)
	}
	return nil
}

// Watch subscribes to the reload channel and returns once the
// subscription is active. fn is called for every message until ctx is done.
func (s *Source) Watch(ctx context.Context, fn func()) error {
	sub := s.client.Subscribe(ctx, s.cfg.ReloadChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", s.cfg.ReloadChannel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.logger.Info().
					Str("channel", msg.Channel).
					Str("payload", msg.Payload).
					Msg("catalog reload requested")
				fn()
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Info().Str("channel", s.cfg.ReloadChannel).Msg("watching catalog reload channel")
	return nil
}

var (
	_ ports.CatalogStore   = (*Source)(nil)
	_ ports.CatalogWatcher = (*Source)(nil)
)
