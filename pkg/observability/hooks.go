// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard
// dependencies on specific observability backends. A CLI or batch-run
// wrapper registers hooks at startup to receive events about placement
// milestones and checkpoint-cache operations.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by the core)
//   - Keeps the core packages dependency-free from observability frameworks
//   - Allows different backends (OpenTelemetry, Prometheus, DataDog, ...)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetPlacementHooks(&myPlacementHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run the placer
//	}
//
// Packages call hooks to emit events:
//
//	observability.Placement().OnGlobalPlaceStart(ctx, stage, numPUs)
//	// ... solve ...
//	observability.Placement().OnGlobalPlaceComplete(ctx, stage, hpwl, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Placement Hooks
// =============================================================================

// PlacementHooks receives events from the placement core's major milestones:
// global placement (per quadratic-solve/spreading stage), timing-driven net
// weighting, and the site packer.
type PlacementHooks interface {
	// Global placement events, one pair per schedule stage (e.g.
	// "fixed-CLB", "CLB-elements").
	OnGlobalPlaceStart(ctx context.Context, stage string, numPUs int)
	OnGlobalPlaceComplete(ctx context.Context, stage string, hpwl float64, duration time.Duration, err error)

	// Timing-optimization events, once per enhancement pass.
	OnTimingStart(ctx context.Context, pass int)
	OnTimingComplete(ctx context.Context, pass int, criticalPathDelay float64, duration time.Duration, err error)

	// Packing events, once per auction run.
	OnPackStart(ctx context.Context, numPUs int)
	OnPackComplete(ctx context.Context, unpacked int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from checkpoint-cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPlacementHooks is a no-op implementation of PlacementHooks.
type NoopPlacementHooks struct{}

func (NoopPlacementHooks) OnGlobalPlaceStart(context.Context, string, int) {}
func (NoopPlacementHooks) OnGlobalPlaceComplete(context.Context, string, float64, time.Duration, error) {
}
func (NoopPlacementHooks) OnTimingStart(context.Context, int) {}
func (NoopPlacementHooks) OnTimingComplete(context.Context, int, float64, time.Duration, error) {}
func (NoopPlacementHooks) OnPackStart(context.Context, int)                       {}
func (NoopPlacementHooks) OnPackComplete(context.Context, int, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	placementHooks PlacementHooks = NoopPlacementHooks{}
	cacheHooks      CacheHooks     = NoopCacheHooks{}
	hooksMu         sync.RWMutex
)

// SetPlacementHooks registers custom placement hooks.
// This should be called once at application startup before any placement run.
func SetPlacementHooks(h PlacementHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		placementHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Placement returns the registered placement hooks.
func Placement() PlacementHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return placementHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	placementHooks = NoopPlacementHooks{}
	cacheHooks = NoopCacheHooks{}
}
