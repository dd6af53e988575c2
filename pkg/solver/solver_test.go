package solver

import (
	"math"
	"testing"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/device"
	"github.com/fabricplace/amfplacer/pkg/placement"
	"github.com/fabricplace/amfplacer/pkg/wirelength"
)

func TestSolveTrivialSystem(t *testing.T) {
	// A = [[2,0],[0,2]], b = [4, 6] -> x = [2, 3]
	a := NewMatrix(2)
	a.Add(0, 0, 2)
	a.Add(1, 1, 2)
	sys := &System{A: a, B: []float64{4, 6}, PUIndex: map[string]int{"p0": 0, "p1": 1}, IndexPU: []string{"p0", "p1"}}

	res := Solve(sys, 0, 0, 2)
	if !res.Converged {
		t.Fatalf("expected convergence, residual=%v", res.Residual)
	}
	if math.Abs(res.X[0]-2) > 1e-6 || math.Abs(res.X[1]-3) > 1e-6 {
		t.Errorf("X = %v, want [2, 3]", res.X)
	}
}

func TestSolveEmptySystem(t *testing.T) {
	sys := &System{A: NewMatrix(0), B: nil}
	res := Solve(sys, 0, 0, 4)
	if !res.Converged || len(res.X) != 0 {
		t.Errorf("expected trivially converged empty result, got %+v", res)
	}
}

func TestAssembleAndSolvePullsPUTowardFixedAnchor(t *testing.T) {
	d := design.New()
	d.AddCell(&design.Cell{ID: "fixed", Type: "LUT6"})
	d.AddCell(&design.Cell{ID: "movable", Type: "LUT6"})
	d.AddPin(&design.Pin{ID: "pf", CellID: "fixed", NetID: "n0", Direction: design.Output})
	d.AddPin(&design.Pin{ID: "pm", CellID: "movable", NetID: "n0", Direction: design.Input})
	d.AddNet(&design.Net{ID: "n0", DriverPinID: "pf", SinkPinIDs: []string{"pm"}, OverallTimingEnhancement: 1.0})

	dev := device.New()
	dev.AddSite(&device.Site{ID: "s0", X: 0, Y: 0, Type: "CLB"})
	pi := placement.New(d, dev)
	pi.AddUnpackedCell("puFixed", "fixed", 10, 0)
	pi.PUs["puFixed"].IsFixed = true
	pi.AddUnpackedCell("puMovable", "movable", 0, 0)

	sys := Assemble(pi, wirelength.AxisX, 1.0, nil)
	res := Solve(sys, 0, 0, 2)
	if !res.Converged {
		t.Fatalf("solve did not converge: residual=%v", res.Residual)
	}
	Apply(pi, sys, wirelength.AxisX, res.X)

	if math.Abs(pi.PUs["puMovable"].X-10) > 1e-4 {
		t.Errorf("movable PU X = %v, want ~10 (pulled to fixed anchor)", pi.PUs["puMovable"].X)
	}
	if pi.PUs["puFixed"].X != 10 {
		t.Error("fixed PU must never move")
	}
}
