package timing

import (
	"math"
	"testing"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/device"
	"github.com/fabricplace/amfplacer/pkg/placement"
)

// registerChain builds reg0 -> c0 -> c1 -> ... -> c(n-1) -> reg1, with one
// net per edge, and returns the design plus the combinational cell ids in
// order.
func registerChain(n int) (*design.Design, []string) {
	d := design.New()
	d.AddCell(&design.Cell{ID: "reg0", Type: "FF", IsRegister: true})
	d.AddCell(&design.Cell{ID: "reg1", Type: "FF", IsRegister: true})
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = "c" + string(rune('a'+i))
		d.AddCell(&design.Cell{ID: ids[i], Type: "LUT6"})
	}

	chain := append([]string{"reg0"}, append(append([]string{}, ids...), "reg1")...)
	for i := 0; i < len(chain)-1; i++ {
		srcPin := chain[i] + "_o"
		sinkPin := chain[i+1] + "_i"
		d.AddPin(&design.Pin{ID: srcPin, CellID: chain[i], Direction: design.Output, NetID: "n" + string(rune('0'+i))})
		d.AddPin(&design.Pin{ID: sinkPin, CellID: chain[i+1], Direction: design.Input, NetID: "n" + string(rune('0'+i))})
		d.AddNet(&design.Net{ID: "n" + string(rune('0'+i)), DriverPinID: srcPin, SinkPinIDs: []string{sinkPin}})
	}
	return d, ids
}

func TestForwardBackwardLevelizationChain(t *testing.T) {
	n := 4
	d, ids := registerChain(n)
	g := BuildSimpleTimingGraph(d)

	if err := g.ForwardLevelization(); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if err := g.BackwardLevelization(); err != nil {
		t.Fatalf("backward: %v", err)
	}
	g.SetLongestPathLength()

	for k, cellID := range ids {
		node := g.Nodes[cellID]
		if node.ForwardLevel != k {
			t.Errorf("cell %s: forwardLevel = %d, want %d", cellID, node.ForwardLevel, k)
		}
		if node.BackwardLevel != n-k-1 {
			t.Errorf("cell %s: backwardLevel = %d, want %d", cellID, node.BackwardLevel, n-k-1)
		}
		if node.LongestPathLength != n {
			t.Errorf("cell %s: longestPathLength = %d, want %d", cellID, node.LongestPathLength, n)
		}
	}
}

func TestCombinationalLoopDetected(t *testing.T) {
	d := design.New()
	d.AddCell(&design.Cell{ID: "a", Type: "LUT6"})
	d.AddCell(&design.Cell{ID: "b", Type: "LUT6"})
	d.AddPin(&design.Pin{ID: "ao", CellID: "a", Direction: design.Output, NetID: "n0"})
	d.AddPin(&design.Pin{ID: "bi", CellID: "b", Direction: design.Input, NetID: "n0"})
	d.AddPin(&design.Pin{ID: "bo", CellID: "b", Direction: design.Output, NetID: "n1"})
	d.AddPin(&design.Pin{ID: "ai", CellID: "a", Direction: design.Input, NetID: "n1"})
	d.AddNet(&design.Net{ID: "n0", DriverPinID: "ao", SinkPinIDs: []string{"bi"}})
	d.AddNet(&design.Net{ID: "n1", DriverPinID: "bo", SinkPinIDs: []string{"ai"}})

	g := BuildSimpleTimingGraph(d)
	if err := g.ForwardLevelization(); err == nil {
		t.Fatal("expected a combinational-loop error, got nil")
	}
}

func TestArrivalRequiredInvariant(t *testing.T) {
	n := 3
	d, ids := registerChain(n)
	g := BuildSimpleTimingGraph(d)
	if err := g.ForwardLevelization(); err != nil {
		t.Fatal(err)
	}
	if err := g.BackwardLevelization(); err != nil {
		t.Fatal(err)
	}
	g.SetLongestPathLength()

	dev := device.New()
	dev.AddSite(&device.Site{ID: "s0", X: 0, Y: 0, Type: "CLB"})
	dev.SetCompatible("CLB", "LUT6")
	dev.SetCompatible("CLB", "FF")
	pi := placement.New(d, dev)
	for i, cellID := range append([]string{"reg0"}, append(append([]string{}, ids...), "reg1")...) {
		pi.AddUnpackedCell("pu"+cellID, cellID, float64(i), 0)
	}

	g.ConductStaticTimingAnalysis(pi, dev, NewDefaultDelayModel(), nil)

	for _, e := range g.Edges {
		src, sink := g.Nodes[e.SrcNodeID], g.Nodes[e.SinkNodeID]
		if sink.LatestArrival < src.LatestArrival+e.Delay-1e-9 {
			t.Errorf("edge %s->%s: arrival(sink)=%v < arrival(src)+delay=%v", e.SrcNodeID, e.SinkNodeID, sink.LatestArrival, src.LatestArrival+e.Delay)
		}
		if src.RequiredArrival > sink.RequiredArrival-e.Delay-src.InnerDelay+1e-9 {
			t.Errorf("edge %s->%s: required(src)=%v > required(sink)-delay-innerDelay=%v", e.SrcNodeID, e.SinkNodeID, src.RequiredArrival, sink.RequiredArrival-e.Delay-src.InnerDelay)
		}
	}
}

func TestEnhanceNetWeightLevelBasedWorkedExample(t *testing.T) {
	d := design.New()
	d.AddCell(&design.Cell{ID: "driver", Type: "LUT6"})
	pins := []string{"o"}
	sinkIDs := make([]string, 499)
	for i := range sinkIDs {
		sinkIDs[i] = "sink" + string(rune(i))
		d.AddCell(&design.Cell{ID: sinkIDs[i], Type: "LUT6"})
		d.AddPin(&design.Pin{ID: sinkIDs[i] + "_i", CellID: sinkIDs[i], Direction: design.Input, NetID: "n0"})
		pins = append(pins, sinkIDs[i]+"_i")
	}
	d.AddPin(&design.Pin{ID: "o", CellID: "driver", Direction: design.Output, NetID: "n0"})
	d.AddNet(&design.Net{ID: "n0", DriverPinID: "o", SinkPinIDs: pins[1:]})

	g := New()
	g.Nodes["driver"] = &Node{ID: "driver", CellID: "driver", LongestPathLength: 10}

	for i := 0; i < 30; i++ {
		g.EnhanceNetWeightLevelBased(d, 5, nil)
	}

	// pathLen=10, levelThr=5 -> overflow=1.6; pinNum=500 >= 200 -> base =
	// 1.5*(1.6+1) = 3.9; effect = min(1, 30/30) = 1 -> ratio = 3.9.
	got := d.Nets["n0"].OverallTimingEnhancement
	want := 3.9
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("OverallTimingEnhancement = %v, want %v", got, want)
	}
}

func TestEnhanceNetWeightLevelBasedSkipsIneligiblePinCounts(t *testing.T) {
	d := design.New()
	d.AddCell(&design.Cell{ID: "driver", Type: "LUT6"})
	d.AddPin(&design.Pin{ID: "o", CellID: "driver", Direction: design.Output, NetID: "n0"})
	d.AddNet(&design.Net{ID: "n0", DriverPinID: "o", SinkPinIDs: nil})

	g := New()
	g.Nodes["driver"] = &Node{ID: "driver", CellID: "driver", LongestPathLength: 20}
	g.EnhanceNetWeightLevelBased(d, 5, nil)

	if got := d.Nets["n0"].OverallTimingEnhancement; got != 1.0 {
		t.Errorf("singleton net enhancement = %v, want 1.0", got)
	}
}

func TestEnhanceNetWeightLevelBasedNoOpBelowMinThreshold(t *testing.T) {
	d := design.New()
	g := New()
	g.EnhanceNetWeightLevelBased(d, 3, nil)
	if g.enhanceCallCount != 0 {
		t.Errorf("levelThr < 4 must be a no-op, callCount = %d", g.enhanceCallCount)
	}
}
