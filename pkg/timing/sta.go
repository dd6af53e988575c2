package timing

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/fabricplace/amfplacer/pkg/device"
	"github.com/fabricplace/amfplacer/pkg/placement"
)

// DelayModel is the Manhattan-distance delay lookup ("initPois" in the
// surveyed source): a calibrated per-bucket delay table indexed by
// quantized Manhattan distance between a driver and a sink pin. The
// constants are device-specific; NewDefaultDelayModel provides a
// reasonable generic calibration, not a tuned one.
type DelayModel struct {
	Pois       []float64
	BucketSize float64
}

// NewDefaultDelayModel returns a coarse, monotonically increasing
// lookup table: intra-tile hops are cheap, and delay grows roughly
// linearly with distance beyond that, flattening at long range the way
// a buffered interconnect fabric does.
func NewDefaultDelayModel() DelayModel {
	pois := make([]float64, 64)
	for i := range pois {
		d := float64(i)
		switch {
		case d == 0:
			pois[i] = 0.05
		case d < 4:
			pois[i] = 0.08 + 0.04*d
		default:
			pois[i] = 0.24 + 0.015*d
		}
	}
	return DelayModel{Pois: pois, BucketSize: 1.0}
}

// Lookup returns the delay for a driver-to-sink displacement.
func (m DelayModel) Lookup(dx, dy float64) float64 {
	manhattan := math.Abs(dx) + math.Abs(dy)
	idx := int(manhattan / m.BucketSize)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(m.Pois) {
		idx = len(m.Pois) - 1
	}
	return m.Pois[idx]
}

// ComputeEdgeDelays refreshes every edge's delay from the current
// placement: a Manhattan lookup on the pin-to-pin displacement plus a
// fixed penalty per clock-region-X crossing. Edges whose pins cannot be
// located (e.g. a virtual driver) are left at their previous delay.
//
// When log is non-nil, one line per computed edge is written: the source
// and sink node ids and the resulting delay.
func (g *Graph) ComputeEdgeDelays(pi *placement.Info, dev *device.Device, model DelayModel, log io.Writer) {
	for _, e := range g.Edges {
		sx, sy, ok1 := pi.PinLocation(e.SrcPinID)
		tx, ty, ok2 := pi.PinLocation(e.SinkPinID)
		if !ok1 || !ok2 {
			continue
		}
		delay := model.Lookup(tx-sx, ty-sy)
		if dev != nil {
			scx, _ := dev.ClockRegionAt(sx, sy)
			tcx, _ := dev.ClockRegionAt(tx, ty)
			delay += 0.5 * math.Abs(float64(tcx-scx))
		}
		e.Delay = delay
		if log != nil {
			fmt.Fprintf(log, "edge %s->%s: delay=%.4f\n", e.SrcNodeID, e.SinkNodeID, delay)
		}
	}
}

// ConductStaticTimingAnalysis refreshes edge delays from the current
// placement, then propagates arrival times forward and required times
// backward. ForwardLevelization/BackwardLevelization must already have
// been run; this does not re-levelize.
func (g *Graph) ConductStaticTimingAnalysis(pi *placement.Info, dev *device.Device, model DelayModel, edgesLog io.Writer) {
	g.ComputeEdgeDelays(pi, dev, model, edgesLog)
	g.propagateArrival()
	g.propagateRequired()
}

func (g *Graph) orderByLevel(level func(*Node) int) []string {
	ids := make([]string, 0, len(g.Nodes))
	for id, n := range g.Nodes {
		if !n.IsRegister {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		li, lj := level(g.Nodes[ids[i]]), level(g.Nodes[ids[j]])
		if li != lj {
			return li < lj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// propagateArrival walks nodes in non-decreasing forward-level order:
// every non-register predecessor of a node has a strictly smaller
// forward level, so by the time a node is processed every in-edge
// source already has a final arrival time. Registers are reset to 0,
// the forward-propagation source boundary.
func (g *Graph) propagateArrival() {
	for _, n := range g.Nodes {
		if n.IsRegister {
			n.LatestArrival = 0
		}
	}
	for _, id := range g.orderByLevel(func(n *Node) int { return n.ForwardLevel }) {
		n := g.Nodes[id]
		var best float64
		var bestSrc string
		for _, eid := range n.InEdgeIDs {
			e := g.Edges[eid]
			src := g.Nodes[e.SrcNodeID]
			cand := src.LatestArrival + e.Delay
			if bestSrc == "" || cand > best {
				best, bestSrc = cand, e.SrcNodeID
			}
		}
		n.LatestArrival = best + n.InnerDelay
		n.SlowestPredecessorID = bestSrc
	}
}

// propagateRequired is the backward mirror: nodes are visited in
// non-decreasing backward-level order, so every successor referenced by
// an out-edge already has a final required time. Registers are reset to
// the clock period, the backward-propagation source boundary.
func (g *Graph) propagateRequired() {
	for _, n := range g.Nodes {
		if n.IsRegister {
			n.RequiredArrival = g.ClockPeriod
		}
	}
	for _, id := range g.orderByLevel(func(n *Node) int { return n.BackwardLevel }) {
		n := g.Nodes[id]
		best := g.ClockPeriod
		haveSink := false
		bestSlackSink := ""
		bestSlack := math.Inf(1)
		for _, eid := range n.OutEdgeIDs {
			e := g.Edges[eid]
			sink := g.Nodes[e.SinkNodeID]
			cand := sink.RequiredArrival - e.Delay
			if !haveSink || cand < best {
				best, haveSink = cand, true
			}
			if slack := sink.RequiredArrival - sink.LatestArrival; slack < bestSlack {
				bestSlack, bestSlackSink = slack, e.SinkNodeID
			}
		}
		n.RequiredArrival = best - n.InnerDelay
		n.SetEarliestSuccessorID(bestSlackSink)
	}
}

// Slack returns requiredArrival - latestArrival for a node; negative
// slack marks a timing violation.
func (n *Node) Slack() float64 {
	return n.RequiredArrival - n.LatestArrival
}
