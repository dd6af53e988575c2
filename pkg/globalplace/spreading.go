package globalplace

import (
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/placement"
)

// spread relieves every overfull bin by moving PUs toward underfull
// neighbors, up to spreadK candidate neighbors per bin. Bins are
// processed one row of workers per goroutine; a PU move touches two
// bins (source and destination), so both bins' locks are always
// acquired in ascending (row*cols+col) order to avoid deadlock between
// workers handling adjacent rows.
func (p *Placer) spread(spreadK int) error {
	grid := p.PI.Bins
	locks := make([][]sync.Mutex, len(grid.Bins))
	for r := range grid.Bins {
		locks[r] = make([]sync.Mutex, len(grid.Bins[r]))
	}

	newAnchors := &sync.Map{}
	var g errgroup.Group
	for r := range grid.Bins {
		r := r
		g.Go(func() error {
			for c := range grid.Bins[r] {
				bin := grid.Bins[r][c]
				if !bin.Overfull() {
					continue
				}
				p.spreadBin(bin, locks, spreadK, newAnchors)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	anchors := map[string][2]float64{}
	newAnchors.Range(func(k, v any) bool {
		anchors[k.(string)] = v.([2]float64)
		return true
	})
	p.spreadAnchors = anchors
	return nil
}

func binIndex(grid *placement.BinGrid, b *placement.Bin) int {
	return b.Row*grid.Cols + b.Col
}

func lockPair(locks [][]sync.Mutex, grid *placement.BinGrid, a, b *placement.Bin) func() {
	ai, bi := binIndex(grid, a), binIndex(grid, b)
	la, lb := &locks[a.Row][a.Col], &locks[b.Row][b.Col]
	if ai > bi {
		la, lb = lb, la
	}
	la.Lock()
	if la != lb {
		lb.Lock()
	}
	return func() {
		la.Unlock()
		if la != lb {
			lb.Unlock()
		}
	}
}

// neighborSpare is a lock-protected snapshot of one neighbor bin's
// remaining capacity for a resource type, taken so the candidate sort
// below never touches a Demand map without holding that bin's lock.
type neighborSpare struct {
	bin   *placement.Bin
	spare float64
}

func (p *Placer) spreadBin(bin *placement.Bin, locks [][]sync.Mutex, spreadK int, anchors *sync.Map) {
	grid := p.PI.Bins
	cap := p.neighborDisplacementUpperbound

	binMu := &locks[bin.Row][bin.Col]
	binMu.Lock()
	demand := make(map[string]float64, len(bin.Demand))
	for rt, d := range bin.Demand {
		demand[rt] = d
	}
	binMu.Unlock()

	for resourceType, d := range demand {
		capacity := bin.Capacity[resourceType]
		excess := d - capacity
		if excess <= 0 {
			continue
		}

		rawNeighbors := grid.Neighbors(bin)
		neighbors := make([]neighborSpare, len(rawNeighbors))
		for i, n := range rawNeighbors {
			nMu := &locks[n.Row][n.Col]
			nMu.Lock()
			neighbors[i] = neighborSpare{bin: n, spare: n.Capacity[resourceType] - n.Demand[resourceType]}
			nMu.Unlock()
		}
		sort.Slice(neighbors, func(i, j int) bool {
			return neighbors[i].spare > neighbors[j].spare
		})
		if spreadK > 0 && spreadK < len(neighbors) {
			neighbors = neighbors[:spreadK]
		}

		movers := p.pusInBinOfType(bin, resourceType)
		for _, ns := range neighbors {
			neighbor := ns.bin
			if excess <= 0 || len(movers) == 0 {
				break
			}
			unlock := lockPair(locks, grid, bin, neighbor)
			spare := neighbor.Capacity[resourceType] - neighbor.Demand[resourceType]
			for spare > 0 && excess > 0 && len(movers) > 0 {
				pu := movers[len(movers)-1]
				movers = movers[:len(movers)-1]
				if pu.IsFixed {
					continue
				}
				targetX := clampDelta(pu.X, (neighbor.X0+neighbor.X1)/2, cap)
				targetY := clampDelta(pu.Y, (neighbor.Y0+neighbor.Y1)/2, cap)
				bin.Demand[resourceType]--
				neighbor.Demand[resourceType]++
				pu.SetLocation(targetX, targetY)
				anchors.Store(pu.ID, [2]float64{targetX, targetY})
				spare--
				excess--
			}
			unlock()
		}
	}
}

func clampDelta(cur, target, cap float64) float64 {
	if cap <= 0 {
		return target
	}
	delta := target - cur
	if delta > cap {
		return cur + cap
	}
	if delta < -cap {
		return cur - cap
	}
	return target
}

// pusInBinOfType returns every non-fixed PU whose member cells of
// resourceType fall within bin's rectangle, keyed by their primary
// anchor location — used to pick movers when relieving an overfull bin.
func (p *Placer) pusInBinOfType(bin *placement.Bin, resourceType string) []*placement.PU {
	var out []*placement.PU
	seen := map[string]bool{}
	for _, pu := range p.PI.PUs {
		if pu.IsFixed || seen[pu.ID] {
			continue
		}
		if pu.X < bin.X0 || pu.X >= bin.X1 || pu.Y < bin.Y0 || pu.Y >= bin.Y1 {
			continue
		}
		match := false
		pu.ForEachCell(p.PI.Design, func(cellID string, _, _ float64) {
			if c, ok := p.PI.Design.Cells[cellID]; ok && p.PI.ResourceType[c.Type] == resourceType {
				match = true
			} else if ok && resourceType == c.Type {
				match = true
			}
		})
		if match {
			seen[pu.ID] = true
			out = append(out, pu)
		}
	}
	return out
}

// legalizeMacros checks every macro's member cells for compatible-site
// placement and preserved shape offsets; illegal macros get a pseudo-net
// target at the nearest feasible site-cluster centroid, enhanced up to
// macroPseudoNetEnhanceCnt times with weight multiplied by 1 each round
// this macro remains illegal (the decay between schedule phases is the
// caller's responsibility via SetMacroLegalizationWeight).
func (p *Placer) legalizeMacros() {
	targets := map[string][2]float64{}
	for macroID, macro := range p.PI.Design.Macros {
		pu, ok := p.PI.PUOf(macro.AnchorCellID)
		if !ok || pu.IsFixed {
			continue
		}
		if p.macroIsLegal(macro, pu) {
			delete(p.unlegalizedMacros, macroID)
			continue
		}
		attempts := p.unlegalizedMacros[macroID]
		if attempts >= p.macroPseudoNetEnhanceCnt {
			continue // reported elsewhere; left at best-effort location
		}
		p.unlegalizedMacros[macroID] = attempts + 1

		anchorType := ""
		if c, ok := p.PI.Design.Cells[macro.AnchorCellID]; ok {
			anchorType = c.Type
		}
		count := len(macro.Members)
		fx, fy := p.PI.LegalizeArea(pu.X, pu.Y, anchorType, count)
		targets[pu.ID] = [2]float64{fx, fy}
	}
	p.macroLegalizeTargets = targets
}

func (p *Placer) macroIsLegal(macro *design.Macro, anchorPU *placement.PU) bool {
	for _, member := range macro.Members {
		cell, ok := p.PI.Design.Cells[member.CellID]
		if !ok {
			continue
		}
		x := anchorPU.X + member.DX
		y := anchorPU.Y + member.DY
		legalX, legalY := p.PI.LegalizeXY(x, y, cell.Type)
		if legalX != x || legalY != y {
			return false
		}
	}
	return true
}
