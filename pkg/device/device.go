// Package device holds the in-memory target-fabric model: the grid of
// sites, per-site basic-element capacity, clock-region partitioning, and
// site/cell type compatibility. Ingestion (reading a vendor device dump)
// is out of scope; device.Load only understands the placer's own JSON
// interchange format.
package device

import (
	"fmt"
	"math"
)

// Site is a concrete location a PlacementUnit can be packed into.
// Capacity maps a basic-element (BEL) type name to how many instances of
// that type the site can host (e.g. "LUT": 8, "FF": 16).
type Site struct {
	ID       string
	X, Y     float64
	Type     string
	Capacity map[string]int

	// InputCapacity bounds the total basic-element input count the site
	// can route, used by LUT pairing to decide whether two LUTs may share
	// a basic element. Zero means unconstrained.
	InputCapacity int
}

// ClockRegion is a rectangular device partition bounding clock
// distribution resources. Crossing a clock-region boundary incurs a
// fixed delay penalty in the timing model.
type ClockRegion struct {
	CX, CY         int
	X0, Y0, X1, Y1 float64
}

// Contains reports whether (x, y) falls inside the clock region's
// rectangle (half-open on the upper bound, matching grid-bin convention).
func (r ClockRegion) Contains(x, y float64) bool {
	return x >= r.X0 && x < r.X1 && y >= r.Y0 && y < r.Y1
}

// Device aggregates the whole fabric model.
type Device struct {
	Sites        map[string]*Site
	ClockRegions []ClockRegion
	// Compatible maps a site type to the cell types it may host.
	Compatible map[string]map[string]bool
	Width, Height float64

	// clockRegionCols/Rows describe a uniform partition used when no
	// explicit ClockRegions were supplied; ClockRegionAt falls back to
	// this grid.
	clockRegionCols, clockRegionRows int
}

// New returns an empty Device.
func New() *Device {
	return &Device{
		Sites:      make(map[string]*Site),
		Compatible: make(map[string]map[string]bool),
	}
}

// AddSite registers a site.
func (d *Device) AddSite(s *Site) {
	if s.Capacity == nil {
		s.Capacity = map[string]int{}
	}
	d.Sites[s.ID] = s
	if s.X+1 > d.Width {
		d.Width = s.X + 1
	}
	if s.Y+1 > d.Height {
		d.Height = s.Y + 1
	}
}

// SetCompatible declares that siteType may host cellType.
func (d *Device) SetCompatible(siteType, cellType string) {
	m, ok := d.Compatible[siteType]
	if !ok {
		m = map[string]bool{}
		d.Compatible[siteType] = m
	}
	m[cellType] = true
}

// IsCompatible reports whether a site of siteType may host a cell of
// cellType.
func (d *Device) IsCompatible(siteType, cellType string) bool {
	m, ok := d.Compatible[siteType]
	if !ok {
		return false
	}
	return m[cellType]
}

// SetUniformClockRegions partitions the device into cols x rows equal
// rectangles when explicit clock-region geometry was not supplied by the
// device dump.
func (d *Device) SetUniformClockRegions(cols, rows int) {
	d.clockRegionCols, d.clockRegionRows = cols, rows
	d.ClockRegions = d.ClockRegions[:0]
	colW := d.Width / float64(cols)
	rowH := d.Height / float64(rows)
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			d.ClockRegions = append(d.ClockRegions, ClockRegion{
				CX: cx, CY: cy,
				X0: float64(cx) * colW, Y0: float64(cy) * rowH,
				X1: float64(cx+1) * colW, Y1: float64(cy+1) * rowH,
			})
		}
	}
}

// ClockRegionAt maps a device coordinate to its (cx, cy) clock region.
// If no clock regions were configured, (0, 0) is returned.
func (d *Device) ClockRegionAt(x, y float64) (int, int) {
	for _, r := range d.ClockRegions {
		if r.Contains(x, y) {
			return r.CX, r.CY
		}
	}
	if len(d.ClockRegions) == 0 || d.clockRegionCols == 0 {
		return 0, 0
	}
	colW := d.Width / float64(d.clockRegionCols)
	rowH := d.Height / float64(d.clockRegionRows)
	cx := clampInt(int(x/colW), 0, d.clockRegionCols-1)
	cy := clampInt(int(y/rowH), 0, d.clockRegionRows-1)
	return cx, cy
}

// ClockRegionColumnCenterX returns the horizontal center of clock-region
// column cx, averaging over every row that shares it. Used by
// clock-region anchoring, which targets a column rather than a single
// cell.
func (d *Device) ClockRegionColumnCenterX(cx int) float64 {
	if len(d.ClockRegions) > 0 {
		var sumX0, sumX1 float64
		var n int
		for _, r := range d.ClockRegions {
			if r.CX == cx {
				sumX0 += r.X0
				sumX1 += r.X1
				n++
			}
		}
		if n > 0 {
			return (sumX0 + sumX1) / (2 * float64(n))
		}
	}
	if d.clockRegionCols > 0 {
		colW := d.Width / float64(d.clockRegionCols)
		return (float64(cx) + 0.5) * colW
	}
	return d.Width / 2
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SitesWithinRadius returns every site within Manhattan distance radius
// of (x, y), regardless of type. Callers filter by compatibility.
func (d *Device) SitesWithinRadius(x, y, radius float64) []*Site {
	var out []*Site
	for _, s := range d.Sites {
		if math.Abs(s.X-x)+math.Abs(s.Y-y) <= radius {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that every compatibility entry names a real site type
// present in the device. Clock-region geometry is not checked.
func (d *Device) Validate() error {
	siteTypes := map[string]bool{}
	for _, s := range d.Sites {
		siteTypes[s.Type] = true
	}
	for st := range d.Compatible {
		if !siteTypes[st] {
			return fmt.Errorf("compatibility declared for unknown site type %q", st)
		}
	}
	return nil
}
