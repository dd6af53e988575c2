package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	p := NoopPlacementHooks{}
	p.OnGlobalPlaceStart(ctx, "fixed-CLB", 128)
	p.OnGlobalPlaceComplete(ctx, "fixed-CLB", 1234.5, time.Second, nil)
	p.OnTimingStart(ctx, 1)
	p.OnTimingComplete(ctx, 1, 9.8, time.Second, nil)
	p.OnPackStart(ctx, 128)
	p.OnPackComplete(ctx, 0, time.Second, nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "checkpoint")
	c.OnCacheMiss(ctx, "checkpoint")
	c.OnCacheSet(ctx, "checkpoint", 1024)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Placement().(NoopPlacementHooks); !ok {
		t.Error("Placement() should return NoopPlacementHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}

	customPlacement := &testPlacementHooks{}
	SetPlacementHooks(customPlacement)
	if Placement() != customPlacement {
		t.Error("SetPlacementHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	Reset()
	if _, ok := Placement().(NoopPlacementHooks); !ok {
		t.Error("Reset() should restore NoopPlacementHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testPlacementHooks{}
	SetPlacementHooks(custom)

	SetPlacementHooks(nil)

	if Placement() != custom {
		t.Error("SetPlacementHooks(nil) should be ignored")
	}

	Reset()
}

type testPlacementHooks struct{ NoopPlacementHooks }
type testCacheHooks struct{ NoopCacheHooks }
