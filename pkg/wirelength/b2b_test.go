package wirelength

import (
	"testing"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/device"
	"github.com/fabricplace/amfplacer/pkg/placement"
)

func fixture() (*placement.Info, *design.Net) {
	d := design.New()
	d.AddCell(&design.Cell{ID: "c0", Type: "LUT6"})
	d.AddCell(&design.Cell{ID: "c1", Type: "LUT6"})
	d.AddPin(&design.Pin{ID: "p0", CellID: "c0", NetID: "n0", Direction: design.Output})
	d.AddPin(&design.Pin{ID: "p1", CellID: "c1", NetID: "n0", Direction: design.Input})
	n := &design.Net{ID: "n0", DriverPinID: "p0", SinkPinIDs: []string{"p1"}, OverallTimingEnhancement: 1.0}
	d.AddNet(n)

	dev := device.New()
	dev.AddSite(&device.Site{ID: "s0", X: 0, Y: 0, Type: "CLB"})
	pi := placement.New(d, dev)
	pi.AddUnpackedCell("pu0", "c0", 0, 0)
	pi.AddUnpackedCell("pu1", "c1", 10, 5)
	return pi, n
}

func TestHPWLTwoPinNet(t *testing.T) {
	pi, n := fixture()
	got := HPWL(pi, n, 2.0)
	want := 20.0 // spec scenario 3: 10 + 2*5 = 20
	if got != want {
		t.Errorf("HPWL = %v, want %v", got, want)
	}
}

func TestBuildAxisEdgesTwoPinWeight(t *testing.T) {
	pi, n := fixture()
	edges := BuildAxisEdges(pi, n, AxisX, 1.0)
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge for a 2-pin net, got %d", len(edges))
	}
	// spec scenario 3: B2B edge weight = w / 1 / 10
	want := 1.0 / 1 / 10
	if edges[0].Weight != want {
		t.Errorf("edge weight = %v, want %v", edges[0].Weight, want)
	}
}

func TestTotalHPWLConservation(t *testing.T) {
	pi, _ := fixture()
	total := TotalHPWL(pi, 2.0)
	if total != 20.0 {
		t.Errorf("TotalHPWL = %v, want 20", total)
	}
}

func TestHPWLSkipsSingletonNets(t *testing.T) {
	pi, _ := fixture()
	single := &design.Net{ID: "n1", DriverPinID: "p0"}
	pi.Design.AddNet(single)
	if got := HPWL(pi, single, 1.0); got != 0 {
		t.Errorf("HPWL(single-pin net) = %v, want 0", got)
	}
}
