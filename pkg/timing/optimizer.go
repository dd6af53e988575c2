package timing

import (
	"fmt"
	"io"
	"math"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/placement"
)

// EnhanceNetWeightLevelBased scales every output net driven by a cell on
// a long path by a factor that grows with path length and with how
// often this has already been called (callCount is instance state, not
// global, so a fresh PlacementTimingOptimizer/Graph always starts at 0).
// levelThr below 4 is a no-op: below that threshold the enhancement is
// considered noise.
//
// Every net's enhancement is reset to 1.0 before this pass, so after a
// pass each enhanced net's OverallTimingEnhancement is that pass's factor
// alone; factors from earlier calls are not accumulated.
//
// When log is non-nil, one line per enhanced net is written: net id,
// base factor, and the resulting OverallTimingEnhancement.
func (g *Graph) EnhanceNetWeightLevelBased(d *design.Design, levelThr int, log io.Writer) {
	if levelThr < 4 {
		return
	}
	for _, net := range d.Nets {
		net.OverallTimingEnhancement = 1.0
	}

	g.enhanceCallCount++
	effect := float64(g.enhanceCallCount) / 30.0
	if effect > 1 {
		effect = 1
	}

	for _, n := range g.Nodes {
		if n.IsRegister {
			continue
		}
		pathLen := n.LongestPathLength
		if pathLen < levelThr {
			continue
		}
		cell, ok := d.Cells[n.CellID]
		if !ok {
			continue
		}
		overflow := 0.8 * float64(pathLen) / float64(levelThr)
		for _, pinID := range cell.PinIDs {
			pin, ok := d.Pins[pinID]
			if !ok || pin.Direction != design.Output {
				continue
			}
			net, ok := d.Nets[pin.NetID]
			if !ok || !net.EligibleForTimingEnhancement() {
				continue
			}
			p := net.PinCount()
			var base float64
			if p < 200 {
				base = 1.5 * (overflow + 0.005*float64(p))
			} else {
				base = 1.5 * (overflow + 1)
			}
			net.OverallTimingEnhancement *= math.Pow(base, effect)
			if log != nil {
				fmt.Fprintf(log, "net %s: base=%.4f factor=%.4f\n", net.ID, base, net.OverallTimingEnhancement)
			}
		}
	}
}

// clockTally is the per-call column-occupancy scratch state shared by
// ClusterLongPathInOneClockRegion and MoveDriverIntoBetterClockRegion.
type clockTally struct {
	countByCol map[int]int
	total      int
	maxCol     int
	maxCount   int
}

func tallyClockColumns(pi *placement.Info, puSet map[string]*placement.PU) clockTally {
	t := clockTally{countByCol: map[int]int{}}
	for _, pu := range puSet {
		t.total++
		cx, _ := pi.Device.ClockRegionAt(pu.X, pu.Y)
		t.countByCol[cx]++
		if t.countByCol[cx] > t.maxCount {
			t.maxCount, t.maxCol = t.countByCol[cx], cx
		}
	}
	return t
}

func puSetFromCellIDs(pi *placement.Info, cellIDs []string, exclude map[string]bool) map[string]*placement.PU {
	out := map[string]*placement.PU{}
	for _, cid := range cellIDs {
		pu, ok := pi.PUOf(cid)
		if !ok || exclude[pu.ID] {
			continue
		}
		out[pu.ID] = pu
	}
	return out
}

func cellTypeOf(pi *placement.Info, pu *placement.PU) string {
	switch pu.Kind {
	case placement.UnpackedCellKind:
		if c, ok := pi.Design.Cells[pu.CellID]; ok {
			return c.Type
		}
	case placement.MacroKind:
		if m, ok := pi.Design.Macros[pu.MacroID]; ok {
			for _, mm := range m.Members {
				if c, ok := pi.Design.Cells[mm.CellID]; ok {
					return c.Type
				}
			}
		}
	}
	return ""
}

func (g *Graph) dfsDownstreamBounded(start string, pathLenThr, limit int) []string {
	visited := map[string]bool{start: true}
	order := []string{start}
	stack := []string{start}
	for len(stack) > 0 && len(order) < limit {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range g.children(id) {
			if visited[c] {
				continue
			}
			node, ok := g.Nodes[c]
			if !ok || node.LongestPathLength <= pathLenThr {
				continue
			}
			visited[c] = true
			order = append(order, c)
			if len(order) >= limit {
				break
			}
			stack = append(stack, c)
		}
	}
	return order
}

// ClusterLongPathInOneClockRegion walks the top 10% of the
// path-length-sorted node list; for every still-unclaimed node whose
// longestPathLength exceeds pathLenThr, it collects a bounded downstream
// cone and, if that cone concentrates in one clock-region column beyond
// thrRatio, anchors every unfixed PU in the cone to that column's
// horizontal center (Y preserved, then legalized to the nearest
// compatible site). It returns the anchor set plus the cluster PU-id
// groups, mirroring the instance-level bookkeeping the optimizer uses
// for debugging.
func (g *Graph) ClusterLongPathInOneClockRegion(pi *placement.Info, pathLenThr int, thrRatio float64) (anchors map[string][2]float64, clusters [][]string) {
	g.rebuildPathLenSorted()
	anchors = map[string][2]float64{}
	extractedCells := map[string]bool{}
	extractedPUs := map[string]bool{}

	top := int(float64(len(g.longPathSorted)) * 0.1)
	for i := 0; i < top; i++ {
		id := g.longPathSorted[i]
		node := g.Nodes[id]
		if node.LongestPathLength <= pathLenThr || extractedCells[id] {
			continue
		}
		cone := g.dfsDownstreamBounded(id, pathLenThr, 2000)
		if len(cone) < int(float64(pathLenThr)*0.8) {
			continue
		}

		candidatePUs := puSetFromCellIDs(pi, cone, extractedPUs)
		if len(candidatePUs) < 8 {
			continue
		}

		tally := tallyClockColumns(pi, candidatePUs)
		if !(float64(tally.maxCount) > float64(tally.total)*thrRatio && tally.maxCount >= 4) {
			continue
		}

		centerX := pi.Device.ClockRegionColumnCenterX(tally.maxCol)
		var group []string
		for _, pu := range candidatePUs {
			if pu.IsFixed {
				continue
			}
			fx, fy := pi.LegalizeXY(centerX, pu.Y, cellTypeOf(pi, pu))
			anchors[pu.ID] = [2]float64{fx, fy}
			extractedPUs[pu.ID] = true
			group = append(group, pu.ID)
			pu.ForEachCell(pi.Design, func(cellID string, _, _ float64) { extractedCells[cellID] = true })
		}
		if len(group) > 0 {
			clusters = append(clusters, group)
		}
	}
	return anchors, clusters
}

// MoveDriverIntoBetterClockRegion only looks at a node's direct
// successors (not the full downstream cone ClusterLongPathInOneClockRegion
// walks); it is cheaper and deliberately narrower, at the cost of
// potentially missing paths whose criticality is concentrated further
// downstream.
func (g *Graph) MoveDriverIntoBetterClockRegion(pi *placement.Info, pathLenThr int, thrRatio float64) map[string][2]float64 {
	g.rebuildPathLenSorted()
	anchors := map[string][2]float64{}

	top := int(float64(len(g.longPathSorted)) * 0.1)
	for i := 0; i < top; i++ {
		id := g.longPathSorted[i]
		node := g.Nodes[id]
		if node.LongestPathLength <= pathLenThr {
			continue
		}

		successors := g.children(id)
		if len(successors) < int(float64(pathLenThr)*0.5) {
			continue
		}
		candidatePUs := puSetFromCellIDs(pi, successors, nil)
		if len(candidatePUs) < 8 {
			continue
		}

		driverPU, ok := pi.PUOf(node.CellID)
		if !ok || driverPU.IsFixed {
			continue
		}
		driverCol, _ := pi.Device.ClockRegionAt(driverPU.X, driverPU.Y)

		tally := tallyClockColumns(pi, candidatePUs)
		if tally.maxCol == driverCol {
			continue
		}
		if !(float64(tally.maxCount) > float64(tally.total)*thrRatio && tally.maxCount >= 4) {
			continue
		}

		centerX := pi.Device.ClockRegionColumnCenterX(tally.maxCol)
		fx, fy := pi.LegalizeXY(centerX, driverPU.Y, cellTypeOf(pi, driverPU))
		anchors[driverPU.ID] = [2]float64{fx, fy}
	}
	return anchors
}
