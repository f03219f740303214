package bootstrap

import (
	"context"
	"fmt"

	fgcatalog "github.com/artpar/flowgate/adapters/catalog"
	"github.com/artpar/flowgate/adapters/cron"
	fghttp "github.com/artpar/flowgate/adapters/http"
	"github.com/artpar/flowgate/adapters/mqtt"
	fgredis "github.com/artpar/flowgate/adapters/redis"
	"github.com/artpar/flowgate/adapters/script"
	"github.com/artpar/flowgate/adapters/sqlite"
	"github.com/artpar/flowgate/adapters/ws"
	"github.com/artpar/flowgate/app"
	"github.com/artpar/flowgate/config"
	"github.com/artpar/flowgate/domain/catalog"
	"github.com/artpar/flowgate/ports"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builtins returns the protocol data types and flow types that every
// catalog starts with.
func Builtins() catalog.Definition {
	return fghttp.Builtins().
		Merge(ws.Builtins()).
		Merge(mqtt.Builtins()).
		Merge(cron.Builtins())
}

// NewBodyRegistry registers every body kind a catalog may use.
func NewBodyRegistry(cfg config.UpstreamConfig, logger zerolog.Logger) *app.BodyRegistry {
	bodies := app.NewBodyRegistry()
	bodies.Register(script.BodyKind, script.Factory(logger))

	upstream := fghttp.NewUpstreamClient(fghttp.UpstreamConfig{
		Timeout:         cfg.Timeout,
		MaxIdleConns:    cfg.MaxIdleConns,
		IdleConnTimeout: cfg.IdleConnTimeout,
	})
	bodies.Register(fghttp.BodyKindUpstream, upstream.Factory())
	return bodies
}

// BuildCatalog builds a catalog from the builtins followed by def.
func BuildCatalog(def catalog.Definition, bodies *app.BodyRegistry) (*app.Catalog, error) {
	return app.BuildCatalog(Builtins().Merge(def), bodies)
}

// Loader returns a reload function that reads source and builds a catalog.
func Loader(source ports.CatalogSource, bodies *app.BodyRegistry) func(ctx context.Context) (*app.Catalog, error) {
	return func(ctx context.Context) (*app.Catalog, error) {
		def, err := source.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", source.Name(), err)
		}
		c, err := BuildCatalog(def, bodies)
		if err != nil {
			return nil, fmt.Errorf("build catalog from %s: %w", source.Name(), err)
		}
		return c, nil
	}
}

// Source is an opened catalog source with the resources it holds.
type Source struct {
	ports.CatalogSource

	// Store is set when the source accepts imports.
	Store ports.CatalogStore
	// Watcher is set when the source can report changes.
	Watcher ports.CatalogWatcher

	db    *sqlite.DB
	redis *goredis.Client
}

// OpenSource opens the catalog source selected by cfg.Catalog.Source.
// watch enables change notification where the source supports it.
func OpenSource(cfg *config.Config, watch bool, logger zerolog.Logger) (*Source, error) {
	switch cfg.Catalog.Source {
	case config.SourceFile:
		src := &Source{CatalogSource: fgcatalog.NewFileSource(cfg.Catalog.Path)}
		if watch {
			w, err := fgcatalog.NewFileWatcher(cfg.Catalog.Path, true, logger)
			if err != nil {
				return nil, err
			}
			src.Watcher = w
		}
		return src, nil

	case config.SourceSQLite:
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		store := sqlite.NewCatalogStore(db)
		return &Source{CatalogSource: store, Store: store, db: db}, nil

	case config.SourceRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rs := fgredis.NewSource(client, fgredis.Config{
			Key:           cfg.Redis.CatalogKey,
			ReloadChannel: cfg.Redis.ReloadChannel,
			Format:        fgcatalog.Format(cfg.Redis.Format),
		}, logger)
		src := &Source{CatalogSource: rs, Store: rs, redis: client}
		if watch {
			src.Watcher = rs
		}
		return src, nil
	}

	return nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
}

// DB returns the SQLite database behind the source, or nil.
func (s *Source) DB() *sqlite.DB {
	return s.db
}

// Close releases connections held by the source.
func (s *Source) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
