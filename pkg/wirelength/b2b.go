// Package wirelength implements the bound-to-bound (B2B) net model used
// by the global placer's quadratic solve, and half-perimeter wirelength
// (HPWL) accounting.
package wirelength

import (
	"math"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/placement"
)

// Epsilon is the minimum axis span used in a B2B edge weight
// denominator, preventing divide-by-zero for co-located pins.
const Epsilon = 1e-5

// Axis selects which coordinate a B2B decomposition or HPWL computation
// operates on.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// Edge is one point-to-point weighted term of a net's B2B decomposition:
// a spring between PinA and PinB with the given stiffness.
type Edge struct {
	PinA, PinB string
	Weight     float64
}

// netPinLocations returns the (pinID, coordinate) pairs for a net's
// driver and sinks on the given axis, skipping pins that cannot be
// located (e.g. dangling references in a partially built model).
func netPinLocations(pi *placement.Info, n *design.Net, axis Axis) (ids []string, coords []float64) {
	add := func(pinID string) {
		x, y, ok := pi.PinLocation(pinID)
		if !ok {
			return
		}
		ids = append(ids, pinID)
		if axis == AxisX {
			coords = append(coords, x)
		} else {
			coords = append(coords, y)
		}
	}
	if n.DriverPinID != "" {
		add(n.DriverPinID)
	}
	for _, s := range n.SinkPinIDs {
		add(s)
	}
	return
}

// HPWL returns a single net's half-perimeter wirelength contribution:
// (max_x - min_x) + y2xRatio*(max_y - min_y). Nets with fewer than 2
// locatable pins contribute 0.
func HPWL(pi *placement.Info, n *design.Net, y2xRatio float64) float64 {
	_, xs := netPinLocations(pi, n, AxisX)
	_, ys := netPinLocations(pi, n, AxisY)
	if len(xs) < 2 {
		return 0
	}
	return spread(xs) + y2xRatio*spread(ys)
}

func spread(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	lo, hi := vs[0], vs[0]
	for _, v := range vs[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}

// TotalHPWL sums HPWL over every net in the design — the "HPWL is
// reported after every major milestone" figure the placer logs.
func TotalHPWL(pi *placement.Info, y2xRatio float64) float64 {
	var total float64
	for _, n := range pi.Design.Nets {
		total += HPWL(pi, n, y2xRatio)
	}
	return total
}

// BuildAxisEdges decomposes a net's hyperedge into the B2B point-to-point
// model on one axis: the two extremal pins are connected to every other
// pin (and, degenerately, to each other when only two pins exist), each
// edge weighted w/(p-1)/max(|delta|, epsilon), where w is the net's
// timing-enhanced weight and p is the pin count. The result is a
// positive-definite quadratic form per axis once assembled into a
// system matrix.
func BuildAxisEdges(pi *placement.Info, n *design.Net, axis Axis, weight float64) []Edge {
	ids, coords := netPinLocations(pi, n, axis)
	p := len(ids)
	if p < 2 {
		return nil
	}

	minIdx, maxIdx := 0, 0
	for i, c := range coords {
		if c < coords[minIdx] {
			minIdx = i
		}
		if c > coords[maxIdx] {
			maxIdx = i
		}
	}

	w := weight / float64(p-1)
	edges := make([]Edge, 0, 2*p)
	for i := range ids {
		if i == minIdx || i == maxIdx {
			continue
		}
		edges = append(edges, edge(ids[minIdx], ids[i], coords[minIdx], coords[i], w))
		edges = append(edges, edge(ids[maxIdx], ids[i], coords[maxIdx], coords[i], w))
	}
	if len(edges) == 0 && minIdx != maxIdx {
		// Exactly two pins: a single spring between the extrema.
		edges = append(edges, edge(ids[minIdx], ids[maxIdx], coords[minIdx], coords[maxIdx], w))
	}
	return edges
}

func edge(a, b string, ca, cb, w float64) Edge {
	delta := math.Abs(ca - cb)
	if delta < Epsilon {
		delta = Epsilon
	}
	return Edge{PinA: a, PinB: b, Weight: w / delta}
}
