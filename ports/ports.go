// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/artpar/flowgate/domain/catalog"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// TimerClock is a Clock that can also wait.
type TimerClock interface {
	Clock
	After(d time.Duration) <-chan time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Catalog Ports
// -----------------------------------------------------------------------------

// CatalogSource loads catalog definitions from a file, database or cache.
type CatalogSource interface {
	// Name identifies the source in logs.
	Name() string

	// Load reads the full catalog definition.
	Load(ctx context.Context) (catalog.Definition, error)
}

// CatalogStore is a CatalogSource that can also be written to.
type CatalogStore interface {
	CatalogSource

	// Import replaces the stored catalog with def.
	Import(ctx context.Context, def catalog.Definition) error
}

// CatalogWatcher notifies when a source's content changes.
type CatalogWatcher interface {
	// Watch starts watching and returns. fn is called after every change
	// until ctx is done.
	Watch(ctx context.Context, fn func()) error
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// DispatchRecorder records dispatch outcomes.
type DispatchRecorder interface {
	// RecordDispatch records one resolve-and-execute call.
	// flowType is empty when no flow was resolved.
	RecordDispatch(flowType, outcome string, d time.Duration)

	// RecordViolations records how many rules failed at a validation stage.
	RecordViolations(stage string, n int)

	// RecordCatalogReload records a catalog publish attempt.
	RecordCatalogReload(ok bool, at time.Time, flows int)
}

// -----------------------------------------------------------------------------
// Protocol Ports
// -----------------------------------------------------------------------------

// ProtocolAdapter is a long-running protocol front end.
type ProtocolAdapter interface {
	// Name identifies the adapter in logs.
	Name() string

	// Start begins accepting messages. It must not block.
	Start(ctx context.Context) error

	// Stop stops accepting messages and releases resources.
	Stop(ctx context.Context) error
}
