package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/device"
	"github.com/fabricplace/amfplacer/pkg/placement"

	"github.com/fabricplace/amfplacer/internal/config"
)

func writeJSON(t *testing.T, dir, name string, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func smallDesign() *design.Design {
	d := design.New()
	d.AddCell(&design.Cell{ID: "a", Type: "LUT6"})
	d.AddCell(&design.Cell{ID: "b", Type: "LUT6"})
	d.AddPin(&design.Pin{ID: "a.o", CellID: "a", Direction: design.Output})
	d.AddPin(&design.Pin{ID: "b.i", CellID: "b", Direction: design.Input})
	d.AddNet(&design.Net{ID: "n0", DriverPinID: "a.o", SinkPinIDs: []string{"b.i"}})
	return d
}

func smallDevice() *device.Device {
	dev := device.New()
	dev.AddSite(&device.Site{ID: "s0", X: 0, Y: 0, Type: "CLB", Capacity: map[string]int{"LUT6": 8}})
	dev.AddSite(&device.Site{ID: "s1", X: 1, Y: 1, Type: "CLB", Capacity: map[string]int{"LUT6": 8}})
	dev.SetCompatible("CLB", "LUT6")
	return dev
}

func TestSeedPlacementCreatesOnePUPerCell(t *testing.T) {
	d, dev := smallDesign(), smallDevice()
	cfg := &config.Config{}

	pi, err := seedPlacement(d, dev, cfg)
	if err != nil {
		t.Fatalf("seedPlacement: %v", err)
	}
	if len(pi.PUs) != 2 {
		t.Errorf("len(PUs) = %d, want 2", len(pi.PUs))
	}
	if _, ok := pi.PUOf("a"); !ok {
		t.Error("cell a should have a PU")
	}
	if _, ok := pi.PUOf("b"); !ok {
		t.Error("cell b should have a PU")
	}
}

func TestSeedPlacementMacroGetsOnePU(t *testing.T) {
	d, dev := smallDesign(), smallDevice()
	d.AddCell(&design.Cell{ID: "c", Type: "LUT6"})
	d.AddMacro(&design.Macro{ID: "m0", AnchorCellID: "a", Members: []design.MacroMember{
		{CellID: "a", DX: 0, DY: 0}, {CellID: "c", DX: 1, DY: 0},
	}})
	cfg := &config.Config{}

	pi, err := seedPlacement(d, dev, cfg)
	if err != nil {
		t.Fatalf("seedPlacement: %v", err)
	}
	// a and c are macro members; only b remains an unpacked cell, plus 1 macro PU.
	if len(pi.PUs) != 2 {
		t.Errorf("len(PUs) = %d, want 2 (1 macro + 1 unpacked)", len(pi.PUs))
	}
	pu, ok := pi.PUOf("a")
	if !ok || pu.Kind != placement.MacroKind {
		t.Errorf("PUOf(a) = %+v, ok=%v, want a macro-kind PU", pu, ok)
	}
}

func TestLoadResourceTypesComposesSharedAndBELTypes(t *testing.T) {
	dir := t.TempDir()
	shared := writeJSON(t, dir, "shared.json", map[string]string{"LUT6": "LUT"})
	bel := writeJSON(t, dir, "bel.json", map[string]string{"LUT": "SLICE_LUT"})
	cfg := &config.Config{SharedCellTypeFile: shared, BELTypeFile: bel}

	d, dev := smallDesign(), smallDevice()
	pi, err := seedPlacement(d, dev, cfg)
	if err != nil {
		t.Fatalf("seedPlacement: %v", err)
	}
	if got := pi.ResourceTypeOf("LUT6"); got != "SLICE_LUT" {
		t.Errorf("ResourceTypeOf(LUT6) = %q, want SLICE_LUT", got)
	}
}

func TestApplyFixedAmountsFixesFirstNCellsOfType(t *testing.T) {
	d := smallDesign()
	d.AddCell(&design.Cell{ID: "c", Type: "LUT6"})

	dev := smallDevice()
	pi, err := seedPlacement(d, dev, &config.Config{})
	if err != nil {
		t.Fatalf("seedPlacement: %v", err)
	}
	applyFixedAmounts(pi, d, map[string]int{"LUT6": 1})

	fixed := 0
	for _, pu := range pi.PUs {
		if pu.IsFixed {
			fixed++
		}
	}
	if fixed != 1 {
		t.Errorf("fixed PU count = %d, want 1", fixed)
	}
}

func TestApplyPinOffsetsFillsZeroOffsets(t *testing.T) {
	d := smallDesign()
	path := writeJSON(t, t.TempDir(), "offsets.json", map[string][2]float64{"LUT6#0": {1.5, 2.5}})

	if err := applyPinOffsets(d, path); err != nil {
		t.Fatalf("applyPinOffsets: %v", err)
	}
	p := d.Pins["a.o"]
	if p.OffsetX != 1.5 || p.OffsetY != 2.5 {
		t.Errorf("pin offset = (%v, %v), want (1.5, 2.5)", p.OffsetX, p.OffsetY)
	}
}

func TestApplyPinOffsetsLeavesExplicitOffsetsAlone(t *testing.T) {
	d := smallDesign()
	d.Pins["a.o"].OffsetX = 9
	path := writeJSON(t, t.TempDir(), "offsets.json", map[string][2]float64{"LUT6#0": {1.5, 2.5}})

	if err := applyPinOffsets(d, path); err != nil {
		t.Fatalf("applyPinOffsets: %v", err)
	}
	if d.Pins["a.o"].OffsetX != 9 {
		t.Errorf("explicit offset was overwritten: %v", d.Pins["a.o"].OffsetX)
	}
}

func TestRootCommandRegistersPlaceSubcommand(t *testing.T) {
	c := New(os.Stderr, LogInfo)
	root := c.RootCommand()

	found := false
	for _, sub := range root.Commands() {
		if sub.Name() == "place" {
			found = true
		}
	}
	if !found {
		t.Error("RootCommand should register the place subcommand")
	}
}
