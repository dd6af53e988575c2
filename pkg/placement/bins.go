package placement

import (
	"math"
)

// Bin is one rectangular cell of the resource-utilization grid: it
// accumulates per-type demand from every PU that overlaps it and knows
// the per-type capacity contributed by device sites in its area.
type Bin struct {
	Row, Col       int
	X0, Y0, X1, Y1 float64
	Demand         map[string]float64
	Capacity       map[string]float64
}

// Overfull reports whether any resource type in the bin exceeds its
// capacity.
func (b *Bin) Overfull() bool {
	for t, d := range b.Demand {
		if d > b.Capacity[t] {
			return true
		}
	}
	return false
}

// OverfullRatio returns the largest demand/capacity ratio across
// resource types, or 0 if the bin has no capacity recorded for any
// demanded type. Types with zero capacity are skipped here, whereas
// Overfull (which spreading uses) counts any demand against zero
// capacity as overfull.
func (b *Bin) OverfullRatio() float64 {
	worst := 0.0
	for t, d := range b.Demand {
		cap := b.Capacity[t]
		if cap <= 0 {
			continue
		}
		if r := d / cap; r > worst {
			worst = r
		}
	}
	return worst
}

// BinGrid partitions the device into a uniform grid of Bins at a given
// resolution. The global placer refines this grid over the course of
// the schedule (5.0x5.0 initially, 2.0x2.0 later).
type BinGrid struct {
	Resolution   float64
	Cols, Rows   int
	Width, Height float64
	Bins         [][]*Bin // [row][col]
}

// NewBinGrid partitions a width x height device area into bins of the
// given resolution (bins are square: resolution x resolution).
func NewBinGrid(width, height, resolution float64) *BinGrid {
	cols := int(math.Ceil(width / resolution))
	rows := int(math.Ceil(height / resolution))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	g := &BinGrid{Resolution: resolution, Cols: cols, Rows: rows, Width: width, Height: height}
	g.Bins = make([][]*Bin, rows)
	for r := 0; r < rows; r++ {
		g.Bins[r] = make([]*Bin, cols)
		for c := 0; c < cols; c++ {
			g.Bins[r][c] = &Bin{
				Row: r, Col: c,
				X0: float64(c) * resolution, Y0: float64(r) * resolution,
				X1: float64(c+1) * resolution, Y1: float64(r+1) * resolution,
				Demand:   map[string]float64{},
				Capacity: map[string]float64{},
			}
		}
	}
	return g
}

// BinAt returns the bin containing (x, y), clamped to the grid extent.
func (g *BinGrid) BinAt(x, y float64) *Bin {
	col := clamp(int(x/g.Resolution), 0, g.Cols-1)
	row := clamp(int(y/g.Resolution), 0, g.Rows-1)
	return g.Bins[row][col]
}

// Reset clears all demand accumulators (capacity is left untouched, as
// it derives from the static device model).
func (g *BinGrid) Reset() {
	for _, row := range g.Bins {
		for _, b := range row {
			for t := range b.Demand {
				b.Demand[t] = 0
			}
		}
	}
}

// AddDemand adds amount units of a resource type at device coordinate
// (x, y) to the owning bin.
func (g *BinGrid) AddDemand(x, y float64, resourceType string, amount float64) {
	b := g.BinAt(x, y)
	b.Demand[resourceType] += amount
}

// AddCapacity adds amount units of a resource type's capacity at device
// coordinate (x, y) to the owning bin.
func (g *BinGrid) AddCapacity(x, y float64, resourceType string, amount float64) {
	b := g.BinAt(x, y)
	b.Capacity[resourceType] += amount
}

// Neighbors returns the up-to-4 orthogonally adjacent bins of b, in
// ascending (row, col) order. Spreading re-sorts them by spare capacity;
// the order in which it takes per-bin locks comes from lockPair, not
// from this order.
func (g *BinGrid) Neighbors(b *Bin) []*Bin {
	var out []*Bin
	deltas := [4][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}
	for _, d := range deltas {
		r, c := b.Row+d[0], b.Col+d[1]
		if r >= 0 && r < g.Rows && c >= 0 && c < g.Cols {
			out = append(out, g.Bins[r][c])
		}
	}
	return out
}

// All returns every bin in ascending (row, col) order, i.e. the lock
// order used by spreading.
func (g *BinGrid) All() []*Bin {
	out := make([]*Bin, 0, g.Rows*g.Cols)
	for _, row := range g.Bins {
		out = append(out, row...)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
