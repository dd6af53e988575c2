package amfplace

import (
	"context"
	"math"
	"testing"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/device"
	"github.com/fabricplace/amfplacer/pkg/placement"
	"github.com/fabricplace/amfplacer/pkg/timing"
)

func fixture() (*placement.Info, *device.Device, *timing.Graph) {
	d := design.New()
	d.AddCell(&design.Cell{ID: "in", Type: "IOB"})
	d.AddCell(&design.Cell{ID: "l0", Type: "LUT6"})
	d.AddCell(&design.Cell{ID: "l1", Type: "LUT6"})
	d.AddCell(&design.Cell{ID: "out", Type: "IOB"})

	d.AddPin(&design.Pin{ID: "in.o", CellID: "in", Direction: design.Output})
	d.AddPin(&design.Pin{ID: "l0.i", CellID: "l0", Direction: design.Input})
	d.AddPin(&design.Pin{ID: "l0.o", CellID: "l0", Direction: design.Output})
	d.AddPin(&design.Pin{ID: "l1.i", CellID: "l1", Direction: design.Input})
	d.AddPin(&design.Pin{ID: "l1.o", CellID: "l1", Direction: design.Output})
	d.AddPin(&design.Pin{ID: "out.i", CellID: "out", Direction: design.Input})

	d.AddNet(&design.Net{ID: "n0", DriverPinID: "in.o", SinkPinIDs: []string{"l0.i"}})
	d.AddNet(&design.Net{ID: "n1", DriverPinID: "l0.o", SinkPinIDs: []string{"l1.i"}})
	d.AddNet(&design.Net{ID: "n2", DriverPinID: "l1.o", SinkPinIDs: []string{"out.i"}})

	dev := device.New()
	for x := 0.0; x < 6; x++ {
		for y := 0.0; y < 6; y++ {
			id := "clb" + string(rune('a'+int(x))) + string(rune('a'+int(y)))
			dev.AddSite(&device.Site{ID: id, X: x, Y: y, Type: "CLB", Capacity: map[string]int{"LUT6": 8}})
		}
	}
	dev.AddSite(&device.Site{ID: "io0", X: 0, Y: 0, Type: "IOB", Capacity: map[string]int{"IOB": 1}})
	dev.AddSite(&device.Site{ID: "io1", X: 5, Y: 5, Type: "IOB", Capacity: map[string]int{"IOB": 1}})
	dev.SetCompatible("CLB", "LUT6")
	dev.SetCompatible("IOB", "IOB")
	dev.SetUniformClockRegions(2, 2)

	pi := placement.New(d, dev)
	pi.ResourceType["LUT6"] = "LUT6"
	in := pi.AddUnpackedCell("puIn", "in", 0, 0)
	in.SetFixed(true)
	out := pi.AddUnpackedCell("puOut", "out", 5, 5)
	out.SetFixed(true)
	pi.AddUnpackedCell("puL0", "l0", 2, 2)
	pi.AddUnpackedCell("puL1", "l1", 3, 3)
	pi.RefreshCapacity()
	pi.RefreshDemand()

	graph := timing.BuildSimpleTimingGraph(d)
	return pi, dev, graph
}

func TestRunCompletesAndReportsFiniteHPWL(t *testing.T) {
	pi, dev, graph := fixture()

	res, err := Run(context.Background(), pi, dev, graph, Options{TotalIters: 18, Jobs: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if math.IsNaN(res.FinalHPWL) || math.IsInf(res.FinalHPWL, 0) {
		t.Errorf("FinalHPWL = %v, want finite", res.FinalHPWL)
	}
	if res.RunID == "" {
		t.Error("RunID should be populated")
	}
}

func TestRunLeavesFixedPUsUntouched(t *testing.T) {
	pi, dev, graph := fixture()

	if _, err := Run(context.Background(), pi, dev, graph, Options{TotalIters: 18, Jobs: 1}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pi.PUs["puIn"].X != 0 || pi.PUs["puIn"].Y != 0 {
		t.Errorf("fixed PU puIn moved to (%v,%v)", pi.PUs["puIn"].X, pi.PUs["puIn"].Y)
	}
	if pi.PUs["puOut"].X != 5 || pi.PUs["puOut"].Y != 5 {
		t.Errorf("fixed PU puOut moved to (%v,%v)", pi.PUs["puOut"].X, pi.PUs["puOut"].Y)
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	pi, dev, graph := fixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, pi, dev, graph, Options{TotalIters: 18, Jobs: 1}); err == nil {
		t.Error("expected a context-cancellation error")
	}
}
