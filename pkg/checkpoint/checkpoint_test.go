package checkpoint

import (
	"bytes"
	"context"
	"testing"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/device"
	"github.com/fabricplace/amfplacer/pkg/placement"
)

func fixture() *placement.Info {
	d := design.New()
	d.AddCell(&design.Cell{ID: "c0", Type: "LUT6"})
	dev := device.New()
	dev.AddSite(&device.Site{ID: "s0", X: 1, Y: 1, Type: "CLB", Capacity: map[string]int{"LUT6": 8}})
	pi := placement.New(d, dev)
	pu := pi.AddUnpackedCell("pu0", "c0", 2, 3)
	pu.IsPacked = true
	return pi
}

func TestPrepareForDumpClearsPackedAndUnlockedFixed(t *testing.T) {
	pi := fixture()
	pi.PUs["pu0"].SetFixed(true)

	PrepareForDump(pi)

	if pi.PUs["pu0"].IsPacked {
		t.Error("isPacked should be cleared")
	}
	if pi.PUs["pu0"].IsFixed {
		t.Error("non-locked fixed flag should be cleared")
	}
}

func TestPrepareForDumpKeepsLockedFixed(t *testing.T) {
	pi := fixture()
	pi.PUs["pu0"].SetLocked(true)

	PrepareForDump(pi)

	if !pi.PUs["pu0"].IsFixed {
		t.Error("a locked PU must stay fixed across a dump")
	}
}

func TestDumpLoadRoundTrip(t *testing.T) {
	pi := fixture()
	rec := Snapshot("run-1", "fixed-CLB", pi)

	var buf bytes.Buffer
	if err := Dump(context.Background(), &buf, rec); err != nil {
		t.Fatalf("Dump: %v", err)
	}

	got, err := Load(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RunID != "run-1" || got.Stage != "fixed-CLB" {
		t.Errorf("got run=%s stage=%s", got.RunID, got.Stage)
	}
	if len(got.PUs) != 1 || got.PUs[0].ID != "pu0" || got.PUs[0].X != 2 {
		t.Errorf("unexpected PU records: %+v", got.PUs)
	}
}

func TestRestoreAppliesRecordAndReportsMissing(t *testing.T) {
	pi := fixture()
	rec := Record{RunID: "r", Stage: "s", PUs: []PURecord{
		{ID: "pu0", X: 9, Y: 9, IsPacked: true},
		{ID: "ghost", X: 0, Y: 0},
	}}

	missing := Restore(pi, rec)

	if pi.PUs["pu0"].X != 9 || pi.PUs["pu0"].Y != 9 || !pi.PUs["pu0"].IsPacked {
		t.Error("pu0 should be restored from the record")
	}
	if len(missing) != 1 || missing[0] != "ghost" {
		t.Errorf("missing = %v, want [ghost]", missing)
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	pi := fixture()
	rec := Snapshot("run-2", "CLB-elements", pi)

	if err := DumpToCache(ctx, c, "run-2", rec); err != nil {
		t.Fatalf("DumpToCache: %v", err)
	}
	got, ok, err := LoadFromCache(ctx, c, "run-2")
	if err != nil || !ok {
		t.Fatalf("LoadFromCache: ok=%v err=%v", ok, err)
	}
	if got.RunID != "run-2" {
		t.Errorf("RunID = %s, want run-2", got.RunID)
	}
}

func TestFileCacheMiss(t *testing.T) {
	dir := t.TempDir()
	c, _ := NewFileCache(dir)
	defer c.Close()

	_, ok, err := LoadFromCache(context.Background(), c, "nonexistent")
	if err != nil {
		t.Fatalf("LoadFromCache: %v", err)
	}
	if ok {
		t.Error("expected a cache miss")
	}
}

func TestNullCacheAlwaysMisses(t *testing.T) {
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, ok, err := c.Get(context.Background(), "k")
	if err != nil || ok {
		t.Errorf("NullCache.Get should always miss, got ok=%v err=%v", ok, err)
	}
}
