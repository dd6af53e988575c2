package placement

import (
	"testing"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/device"
)

func newFixture() (*design.Design, *device.Device) {
	d := design.New()
	d.AddCell(&design.Cell{ID: "c0", Type: "LUT6"})
	d.AddCell(&design.Cell{ID: "c1", Type: "LUT6"})
	d.AddCell(&design.Cell{ID: "c2", Type: "LUT6"})
	d.AddMacro(&design.Macro{
		ID:           "m0",
		AnchorCellID: "c0",
		Members: []design.MacroMember{
			{CellID: "c0", DX: 0, DY: 0},
			{CellID: "c1", DX: 1, DY: 0},
			{CellID: "c2", DX: 2, DY: 0},
		},
	})
	d.AddPin(&design.Pin{ID: "p0", CellID: "c0", Direction: design.Output, OffsetX: 0.5, OffsetY: 0})

	dev := device.New()
	dev.AddSite(&device.Site{ID: "s0", X: 5, Y: 7, Type: "CLB", Capacity: map[string]int{"LUT": 8}})
	dev.SetCompatible("CLB", "LUT6")
	return d, dev
}

func TestMacroPUCellLocationPreservesOffsets(t *testing.T) {
	d, dev := newFixture()
	pi := New(d, dev)
	pu := pi.AddMacro("pu0", "m0", 5, 7)

	want := map[string][2]float64{"c0": {5, 7}, "c1": {6, 7}, "c2": {7, 7}}
	for cellID, w := range want {
		x, y, ok := pu.CellLocation(d, cellID)
		if !ok || x != w[0] || y != w[1] {
			t.Errorf("CellLocation(%s) = (%v, %v, %v), want (%v, %v, true)", cellID, x, y, ok, w[0], w[1])
		}
	}
}

func TestFixedPULocationIsImmutable(t *testing.T) {
	pu := &PU{ID: "pu0", Kind: UnpackedCellKind, CellID: "c0", X: 1, Y: 1, IsFixed: true}
	if moved := pu.SetLocation(9, 9); moved {
		t.Error("SetLocation should refuse to move a fixed PU")
	}
	if pu.X != 1 || pu.Y != 1 {
		t.Errorf("fixed PU moved to (%v, %v), want (1, 1)", pu.X, pu.Y)
	}
}

func TestLockedImpliesFixed(t *testing.T) {
	pu := &PU{ID: "pu0", Kind: UnpackedCellKind, CellID: "c0"}
	pu.SetLocked(true)
	if !pu.IsFixed {
		t.Error("locking a PU should also fix it")
	}
	pu.SetFixed(false)
	if !pu.IsFixed {
		t.Error("un-fixing a locked PU should be a no-op")
	}
}

func TestPinLocation(t *testing.T) {
	d, dev := newFixture()
	pi := New(d, dev)
	pi.AddUnpackedCell("pu0", "c0", 10, 20)

	x, y, ok := pi.PinLocation("p0")
	if !ok || x != 10.5 || y != 20 {
		t.Errorf("PinLocation(p0) = (%v, %v, %v), want (10.5, 20, true)", x, y, ok)
	}
}

func TestRefreshDemandConservation(t *testing.T) {
	d, dev := newFixture()
	pi := New(d, dev)
	pi.AddMacro("pu0", "m0", 5, 7)
	pi.RefreshDemand()

	var total float64
	for _, row := range pi.Bins.Bins {
		for _, b := range row {
			for _, v := range b.Demand {
				total += v
			}
		}
	}
	if total != 3 {
		t.Errorf("total demand = %v, want 3 (one per macro member cell)", total)
	}
}

func TestLegalizeXYSnapsToCompatibleSite(t *testing.T) {
	d, dev := newFixture()
	pi := New(d, dev)
	x, y := pi.LegalizeXY(4.5, 6.5, "LUT6")
	if x != 5 || y != 7 {
		t.Errorf("LegalizeXY = (%v, %v), want (5, 7)", x, y)
	}
}

func TestCheckClockUtilizationCountsDistinctControlSets(t *testing.T) {
	d := design.New()
	csA := design.ControlSet{Clock: "clk0"}
	csB := design.ControlSet{Clock: "clk1"}
	for i, cs := range []design.ControlSet{csA, csA, csA, csB} {
		id := "r" + string(rune('0'+i))
		d.AddCell(&design.Cell{ID: id, Type: "FF", IsRegister: true, ControlSet: cs})
	}
	dev := device.New()
	dev.AddSite(&device.Site{ID: "s0", X: 0, Y: 0, Type: "CLB", Capacity: map[string]int{"FF": 8}})
	dev.SetCompatible("CLB", "FF")

	pi := New(d, dev)
	for i := 0; i < 4; i++ {
		id := "r" + string(rune('0'+i))
		pi.AddUnpackedCell("pu"+id, id, 0, 0)
	}

	util := pi.CheckClockUtilization(2)
	got := util[[2]int{0, 0}]
	if got != 1 {
		t.Errorf("utilization = %v, want 1 (2 distinct control sets / capacity 2), three FFs sharing csA must not inflate fan-out", got)
	}
}
