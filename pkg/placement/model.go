// Package placement aggregates placement units (PUs), their locations,
// and the resource-utilization grid the global placer and packer spread
// and legalize against. It borrows (never owns) design and device
// entities, referencing them by id only.
package placement

import (
	"fmt"
	"math"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/device"
)

// Info is the placement model: PUs, the cell->PU index, and the
// resource-demand bin grid. It is constructed once by the external
// initial packer (a caller populates it via AddUnpackedCell/AddMacro)
// and mutated in place by the global placer and the site packer.
type Info struct {
	Design *design.Design
	Device *device.Device

	PUs      map[string]*PU
	CellToPU map[string]string

	Bins *BinGrid

	// ResourceType maps a design cell type to the BEL/resource type it
	// consumes (the "cellType2sharedCellType" -> "sharedCellType2BELtype"
	// composition from the external configuration). A cell type absent
	// from the map is its own resource type.
	ResourceType map[string]string
}

// New builds an empty Info over d/dev with an initial 5x5 bin grid, the
// coarse resolution the schedule starts at.
func New(d *design.Design, dev *device.Device) *Info {
	return &Info{
		Design:       d,
		Device:       dev,
		PUs:          make(map[string]*PU),
		CellToPU:     make(map[string]string),
		Bins:         NewBinGrid(dev.Width, dev.Height, 5.0),
		ResourceType: make(map[string]string),
	}
}

// AddUnpackedCell registers a singleton PU wrapping cellID.
func (pi *Info) AddUnpackedCell(id, cellID string, x, y float64) *PU {
	pu := &PU{ID: id, Kind: UnpackedCellKind, CellID: cellID, X: x, Y: y}
	pi.PUs[id] = pu
	pi.CellToPU[cellID] = id
	return pu
}

// AddMacro registers a PU wrapping every member of macroID, anchored at
// (x, y).
func (pi *Info) AddMacro(id, macroID string, x, y float64) *PU {
	pu := &PU{ID: id, Kind: MacroKind, MacroID: macroID, X: x, Y: y}
	pi.PUs[id] = pu
	if m, ok := pi.Design.Macros[macroID]; ok {
		for _, mm := range m.Members {
			pi.CellToPU[mm.CellID] = id
		}
	}
	return pu
}

// PUOf returns the PU that owns cellID.
func (pi *Info) PUOf(cellID string) (*PU, bool) {
	id, ok := pi.CellToPU[cellID]
	if !ok {
		return nil, false
	}
	pu, ok := pi.PUs[id]
	return pu, ok
}

// PinLocation returns the absolute location of a pin: the location of
// the cell that owns it (via that cell's PU) plus the pin's static
// design offset.
func (pi *Info) PinLocation(pinID string) (x, y float64, ok bool) {
	p, ok := pi.Design.Pins[pinID]
	if !ok {
		return 0, 0, false
	}
	pu, ok := pi.PUOf(p.CellID)
	if !ok {
		return 0, 0, false
	}
	cx, cy, ok := pu.CellLocation(pi.Design, p.CellID)
	if !ok {
		return 0, 0, false
	}
	return cx + p.OffsetX, cy + p.OffsetY, true
}

// resourceTypeOf resolves the BEL/resource type a design cell type
// consumes.
func (pi *Info) resourceTypeOf(cellType string) string {
	return pi.ResourceTypeOf(cellType)
}

// ResourceTypeOf resolves the BEL/resource type a design cell type
// consumes, exported so the site packer can size per-type site capacity
// the same way bin demand/capacity does.
func (pi *Info) ResourceTypeOf(cellType string) string {
	if rt, ok := pi.ResourceType[cellType]; ok {
		return rt
	}
	return cellType
}

// RefreshDemand recomputes every bin's demand from scratch by walking
// every PU's member cells. Capacity is untouched; call RefreshCapacity
// once after the device model is finalized.
func (pi *Info) RefreshDemand() {
	pi.Bins.Reset()
	for _, pu := range pi.PUs {
		pu.ForEachCell(pi.Design, func(cellID string, dx, dy float64) {
			c, ok := pi.Design.Cells[cellID]
			if !ok || c.IsVirtual {
				return
			}
			pi.Bins.AddDemand(pu.X+dx, pu.Y+dy, pi.resourceTypeOf(c.Type), 1)
		})
	}
}

// RefreshCapacity recomputes every bin's capacity from the device's site
// list.
func (pi *Info) RefreshCapacity() {
	for _, row := range pi.Bins.Bins {
		for _, b := range row {
			for t := range b.Capacity {
				b.Capacity[t] = 0
			}
		}
	}
	for _, s := range pi.Device.Sites {
		for belType, count := range s.Capacity {
			pi.Bins.AddCapacity(s.X, s.Y, belType, float64(count))
		}
	}
}

// RefineBins rebuilds the bin grid at a new resolution and recomputes its
// capacity, preserving no demand (callers call RefreshDemand again).
func (pi *Info) RefineBins(resolution float64) {
	pi.Bins = NewBinGrid(pi.Device.Width, pi.Device.Height, resolution)
	pi.RefreshCapacity()
}

// LegalizeXY is the "legalize (x, y) to nearest legal area" primitive:
// it returns the coordinates of the nearest device site whose type is
// compatible with cellType, by Manhattan distance over a scan of every
// site. If the device has no compatible site anywhere, (x, y) is
// clamped to the device bounds and returned unchanged otherwise.
func (pi *Info) LegalizeXY(x, y float64, cellType string) (float64, float64) {
	best, bestDist := (*device.Site)(nil), math.Inf(1)
	for _, s := range pi.Device.Sites {
		if !pi.Device.IsCompatible(s.Type, cellType) {
			continue
		}
		dist := math.Abs(s.X-x) + math.Abs(s.Y-y)
		if dist < bestDist {
			best, bestDist = s, dist
		}
	}
	if best == nil {
		return clampF(x, 0, pi.Device.Width), clampF(y, 0, pi.Device.Height)
	}
	return best.X, best.Y
}

// LegalizeArea finds the (x, y) center of the nearest cluster of
// count compatible sites to (x, y) — used by macro legalization, which
// wants to land a whole macro's member cells near a target rather than
// a single site.
func (pi *Info) LegalizeArea(x, y float64, cellType string, count int) (float64, float64) {
	if count <= 1 {
		return pi.LegalizeXY(x, y, cellType)
	}
	type cand struct {
		s    *device.Site
		dist float64
	}
	var cands []cand
	for _, s := range pi.Device.Sites {
		if !pi.Device.IsCompatible(s.Type, cellType) {
			continue
		}
		cands = append(cands, cand{s, math.Abs(s.X-x) + math.Abs(s.Y-y)})
	}
	if len(cands) == 0 {
		return clampF(x, 0, pi.Device.Width), clampF(y, 0, pi.Device.Height)
	}
	// Partial selection of the `count` nearest sites; good enough for a
	// cluster centroid and avoids sorting the whole site list.
	if count > len(cands) {
		count = len(cands)
	}
	for i := 0; i < count; i++ {
		minJ := i
		for j := i + 1; j < len(cands); j++ {
			if cands[j].dist < cands[minJ].dist {
				minJ = j
			}
		}
		cands[i], cands[minJ] = cands[minJ], cands[i]
	}
	var sx, sy float64
	for i := 0; i < count; i++ {
		sx += cands[i].s.X
		sy += cands[i].s.Y
	}
	return sx / float64(count), sy / float64(count)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CheckClockUtilization reports, per clock region, the ratio of
// control-set fan-out against a device capacity estimate. Fan-out here
// is the count of distinct design.ControlSet values among the region's
// registers, not the register count: a net driving 40 FFs that all
// share one clock/CE/SR triple costs the region one control set, not
// 40. capacityPerRegion is a uniform approximation (device.ClockRegion
// carries no per-region capacity field); every region is compared
// against the same budget regardless of its actual site mix.
//
// It is a warn-only diagnostic: it never returns an error, matching the
// "I/O failure on dump"-style non-fatal error policy for diagnostics
// elsewhere in the core.
func (pi *Info) CheckClockUtilization(capacityPerRegion int) map[[2]int]float64 {
	sets := map[[2]int]map[design.ControlSet]bool{}
	for _, pu := range pi.PUs {
		pu.ForEachCell(pi.Design, func(cellID string, dx, dy float64) {
			c, ok := pi.Design.Cells[cellID]
			if !ok || !c.IsRegister {
				return
			}
			cx, cy := pi.Device.ClockRegionAt(pu.X+dx, pu.Y+dy)
			region := [2]int{cx, cy}
			if sets[region] == nil {
				sets[region] = map[design.ControlSet]bool{}
			}
			sets[region][c.ControlSet] = true
		})
	}
	ratios := make(map[[2]int]float64, len(sets))
	for region, cs := range sets {
		if capacityPerRegion <= 0 {
			ratios[region] = 0
			continue
		}
		ratios[region] = float64(len(cs)) / float64(capacityPerRegion)
	}
	return ratios
}

// String renders a short summary, useful for progress logging.
func (pi *Info) String() string {
	return fmt.Sprintf("placement{PUs=%d, cells=%d}", len(pi.PUs), len(pi.CellToPU))
}
