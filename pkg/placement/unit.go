package placement

import (
	"github.com/fabricplace/amfplacer/pkg/design"
)

// Kind distinguishes the two arms of the PlacementUnit variant. Dispatch
// on Kind with a closed switch rather than a runtime type assertion —
// the hot loops in the global placer and packer walk every PU per outer
// iteration, and a type switch on an interface would be needlessly
// polymorphic for a two-case union.
type Kind int

const (
	// UnpackedCellKind identifies a PU that wraps a single, unmacroed cell.
	UnpackedCellKind Kind = iota
	// MacroKind identifies a PU that wraps a whole macro.
	MacroKind
)

// PU (PlacementUnit) is the atomic movable entity for the global placer:
// either a single cell or a whole macro, carrying one (x, y) location
// shared by every cell it represents.
//
// isLocked implies isFixed: a locked PU can never move, even by explicit
// un-fix; SetLocked enforces this. A fixed-but-unlocked PU may later be
// released by the caller (e.g. after clock-region anchoring completes).
type PU struct {
	ID   string
	Kind Kind

	CellID  string // set when Kind == UnpackedCellKind
	MacroID string // set when Kind == MacroKind

	X, Y     float64
	IsFixed  bool
	IsLocked bool
	IsPacked bool
}

// SetLocation moves the PU, unless it is fixed. Reports whether the move
// was applied.
func (pu *PU) SetLocation(x, y float64) bool {
	if pu.IsFixed {
		return false
	}
	pu.X, pu.Y = x, y
	return true
}

// SetFixed sets or clears the fixed flag. Clearing it on a locked PU is a
// no-op: isLocked implies isFixed for the lifetime of the lock.
func (pu *PU) SetFixed(fixed bool) {
	if pu.IsLocked && !fixed {
		return
	}
	pu.IsFixed = fixed
}

// SetLocked sets or clears the lock. Locking also sets IsFixed.
func (pu *PU) SetLocked(locked bool) {
	pu.IsLocked = locked
	if locked {
		pu.IsFixed = true
	}
}

// ForEachCell calls fn for every cell this PU represents: the single
// cell for an UnpackedCellKind PU, or every member for a MacroKind PU.
func (pu *PU) ForEachCell(d *design.Design, fn func(cellID string, dx, dy float64)) {
	switch pu.Kind {
	case UnpackedCellKind:
		fn(pu.CellID, 0, 0)
	case MacroKind:
		m, ok := d.Macros[pu.MacroID]
		if !ok {
			return
		}
		for _, mm := range m.Members {
			fn(mm.CellID, mm.DX, mm.DY)
		}
	}
}

// CellLocation returns the absolute (x, y) of a single cell within this
// PU: pu.location for an unpacked cell, or pu.location + shape offset
// for a macro member.
func (pu *PU) CellLocation(d *design.Design, cellID string) (x, y float64, ok bool) {
	switch pu.Kind {
	case UnpackedCellKind:
		if pu.CellID != cellID {
			return 0, 0, false
		}
		return pu.X, pu.Y, true
	case MacroKind:
		m, exists := d.Macros[pu.MacroID]
		if !exists {
			return 0, 0, false
		}
		dx, dy, memberOK := m.Offset(cellID)
		if !memberOK {
			return 0, 0, false
		}
		return pu.X + dx, pu.Y + dy, true
	}
	return 0, 0, false
}

// Bounds returns the axis-aligned bounding box of the PU relative to its
// own location: (0,0,0,0) for a single cell, or the extent of the shape
// template for a macro.
func (pu *PU) Bounds(d *design.Design) (minDX, minDY, maxDX, maxDY float64) {
	if pu.Kind != MacroKind {
		return 0, 0, 0, 0
	}
	m, ok := d.Macros[pu.MacroID]
	if !ok || len(m.Members) == 0 {
		return 0, 0, 0, 0
	}
	minDX, minDY = m.Members[0].DX, m.Members[0].DY
	maxDX, maxDY = minDX, minDY
	for _, mm := range m.Members[1:] {
		minDX, maxDX = min(minDX, mm.DX), max(maxDX, mm.DX)
		minDY, maxDY = min(minDY, mm.DY), max(maxDY, mm.DY)
	}
	return
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
