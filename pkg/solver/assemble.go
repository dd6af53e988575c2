package solver

import (
	"github.com/fabricplace/amfplacer/pkg/placement"
	"github.com/fabricplace/amfplacer/pkg/wirelength"
)

// PseudoNet is a solver-only anchor edge pulling a PU toward a target
// coordinate on one axis, used for spreading anchors, macro
// legalization, and clock-region anchoring.
type PseudoNet struct {
	PUID   string
	Target float64
	Weight float64
}

type pinRef struct {
	puID    string
	fixed   bool
	offset  float64
	current float64
	ok      bool
}

func resolvePin(pi *placement.Info, pinID string, axis wirelength.Axis) pinRef {
	p, ok := pi.Design.Pins[pinID]
	if !ok {
		return pinRef{}
	}
	pu, ok := pi.PUOf(p.CellID)
	if !ok {
		return pinRef{}
	}
	cx, cy, ok := pu.CellLocation(pi.Design, p.CellID)
	if !ok {
		return pinRef{}
	}
	offset := p.OffsetX
	current := cx
	if axis == wirelength.AxisY {
		offset = p.OffsetY
		current = cy
	}
	return pinRef{puID: pu.ID, fixed: pu.IsFixed, offset: offset, current: current + offset, ok: true}
}

// Assemble builds the sparse SPD system for one axis: every net
// contributes its B2B decomposition (weighted by the net's timing
// enhancement, and by y2xRatio on the Y axis so the quadratic surrogate
// matches the HPWL metric), and every pseudo-net contributes a spring to
// a fixed target. Only non-fixed PUs become unknowns; fixed PUs
// contribute constants into the right-hand side.
func Assemble(pi *placement.Info, axis wirelength.Axis, y2xRatio float64, pseudoNets []PseudoNet) *System {
	sys := &System{PUIndex: make(map[string]int)}
	for id, pu := range pi.PUs {
		if pu.IsFixed {
			continue
		}
		sys.PUIndex[id] = len(sys.IndexPU)
		sys.IndexPU = append(sys.IndexPU, id)
	}
	n := len(sys.IndexPU)
	sys.A = NewMatrix(n)
	sys.B = make([]float64, n)
	if n == 0 {
		return sys
	}

	axisScale := 1.0
	if axis == wirelength.AxisY {
		axisScale = y2xRatio
	}

	for _, net := range pi.Design.Nets {
		weight := net.OverallTimingEnhancement * axisScale
		for _, e := range wirelength.BuildAxisEdges(pi, net, axis, weight) {
			addSpringEdge(sys, resolvePin(pi, e.PinA, axis), resolvePin(pi, e.PinB, axis), e.Weight)
		}
	}

	for _, pn := range pseudoNets {
		idx, ok := sys.PUIndex[pn.PUID]
		if !ok {
			continue // fixed/locked PU: pseudo-net cannot move it
		}
		sys.A.Add(idx, idx, pn.Weight)
		sys.B[idx] += pn.Weight * pn.Target
	}

	return sys
}

// addSpringEdge folds one weighted B2B edge into the assembled system:
// a spring between two unknowns
// contributes off-diagonal coupling; a spring touching one fixed PU
// contributes only to that PU's diagonal and right-hand side.
func addSpringEdge(sys *System, a, b pinRef, w float64) {
	if !a.ok || !b.ok || w == 0 {
		return
	}
	switch {
	case a.fixed && b.fixed:
		return
	case a.fixed:
		idx := sys.PUIndex[b.puID]
		sys.A.Add(idx, idx, w)
		sys.B[idx] += w * (a.current - b.offset)
	case b.fixed:
		idx := sys.PUIndex[a.puID]
		sys.A.Add(idx, idx, w)
		sys.B[idx] += w * (b.current - a.offset)
	default:
		ai, bi := sys.PUIndex[a.puID], sys.PUIndex[b.puID]
		if ai == bi {
			return // same PU (e.g. two pins of one macro): offsets cancel, no net force
		}
		sys.A.Add(ai, ai, w)
		sys.A.Add(bi, bi, w)
		sys.A.Add(ai, bi, -w)
		sys.A.Add(bi, ai, -w)
		sys.B[ai] += w * (b.offset - a.offset)
		sys.B[bi] += w * (a.offset - b.offset)
	}
}

// Apply writes a solved axis vector back into the PUs it indexes.
func Apply(pi *placement.Info, sys *System, axis wirelength.Axis, x []float64) {
	for i, puID := range sys.IndexPU {
		pu := pi.PUs[puID]
		if axis == wirelength.AxisX {
			pu.SetLocation(x[i], pu.Y)
		} else {
			pu.SetLocation(pu.X, x[i])
		}
	}
}
