// Package design holds the in-memory netlist model consumed by the placer
// core: cells, pins, nets, and the macros a synthesizer or initial packer
// has already identified.
//
// Ingestion (reading a vendor netlist dump) is out of scope for this
// package; design.Load only understands the placer's own JSON interchange
// format, which exists so the core can be exercised end to end without a
// real front-end parser wired in.
package design

import "fmt"

// Direction is the signal direction of a pin.
type Direction int

const (
	// Input marks a pin that is a net sink.
	Input Direction = iota
	// Output marks a pin that is a net driver.
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Cell is a single design cell (a LUT, a flip-flop, a DSP tile, ...).
// Pins of a cell share the cell's location once placed; virtual cells
// contribute to timing/connectivity topology only and are skipped when
// the timing graph is built.
type Cell struct {
	ID        string
	Type      string
	PinIDs    []string
	MacroID   string // empty if the cell is not part of a macro
	IsVirtual bool
	IsRegister bool

	// ControlSet is the (clock, clock-enable, set/reset) triple a register
	// cell must share with every other register packed into the same
	// site. Empty strings are wildcards, so a combinational cell's
	// zero-value ControlSet is always compatible.
	ControlSet ControlSet
}

// ControlSet names the clock/enable/reset nets a register is driven by.
// Two registers may share a site only if their non-empty fields match.
type ControlSet struct {
	Clock string
	CE    string
	SR    string
}

// CompatibleWith reports whether cs and other can coexist in one site's
// control set: every field present on both sides must agree.
func (cs ControlSet) CompatibleWith(other ControlSet) bool {
	return fieldsAgree(cs.Clock, other.Clock) && fieldsAgree(cs.CE, other.CE) && fieldsAgree(cs.SR, other.SR)
}

func fieldsAgree(a, b string) bool {
	return a == "" || b == "" || a == b
}

// InputPinCount returns the number of input-direction pins the cell has
// in d, used by the site packer's LUT-pairing input-capacity check.
func (c *Cell) InputPinCount(d *Design) int {
	n := 0
	for _, pid := range c.PinIDs {
		if p, ok := d.Pins[pid]; ok && p.Direction == Input {
			n++
		}
	}
	return n
}

// Pin belongs to exactly one cell and, optionally, one net.
// A pin's absolute location is cell.location + (OffsetX, OffsetY); design
// only carries the offset, since location is owned by the placement model.
type Pin struct {
	ID        string
	CellID    string
	NetID     string // empty if unconnected
	Direction Direction
	OffsetX   float64
	OffsetY   float64
	Index     int // element-id-within-pins, dense and stable
}

// Net is a hyperedge over pins: at most one driver (output pin), any
// number of sinks. OverallTimingEnhancement starts at 1.0; each timing
// optimizer pass resets it to 1.0 and then multiplies in that pass's
// factor.
type Net struct {
	ID                        string
	DriverPinID               string // empty for a pin-less / unconnected net
	SinkPinIDs                []string
	OverallTimingEnhancement  float64
}

// PinCount returns the number of pins on the net (driver + sinks).
func (n *Net) PinCount() int {
	c := len(n.SinkPinIDs)
	if n.DriverPinID != "" {
		c++
	}
	return c
}

// EligibleForTimingEnhancement reports whether the net's pin count falls
// in the open interval (1, 1000) that enhanceNetWeightLevelBased operates
// on. Nets outside this range keep OverallTimingEnhancement == 1.0.
func (n *Net) EligibleForTimingEnhancement() bool {
	p := n.PinCount()
	return p > 1 && p < 1000
}

// MacroMember is one cell of a macro, with the shape offset that must be
// preserved relative to the macro's anchor cell.
type MacroMember struct {
	CellID string
	DX     float64
	DY     float64
}

// Macro is a fixed-shape multi-cell cluster (carry chain, DSP slice
// group, ...) whose internal offsets are preserved by any legal
// placement. Members move rigidly with the anchor cell.
type Macro struct {
	ID           string
	Members      []MacroMember
	AnchorCellID string
}

// Offset looks up the shape offset of a member cell, returning ok=false
// if the cell is not a member of this macro.
func (m *Macro) Offset(cellID string) (dx, dy float64, ok bool) {
	for _, mm := range m.Members {
		if mm.CellID == cellID {
			return mm.DX, mm.DY, true
		}
	}
	return 0, 0, false
}

// Design aggregates the whole netlist, indexed by id for O(1) lookup.
// Cross-references (pin.CellID, pin.NetID, cell.MacroID, ...) are plain
// string ids, never owning pointers, so the design model has no internal
// ownership cycles.
type Design struct {
	Cells  map[string]*Cell
	Pins   map[string]*Pin
	Nets   map[string]*Net
	Macros map[string]*Macro
}

// New returns an empty Design with all indices initialized.
func New() *Design {
	return &Design{
		Cells:  make(map[string]*Cell),
		Pins:   make(map[string]*Pin),
		Nets:   make(map[string]*Net),
		Macros: make(map[string]*Macro),
	}
}

// Validate checks referential integrity: every pin references an existing
// cell, every net references existing pins, every macro member references
// an existing cell and an existing anchor.
func (d *Design) Validate() error {
	for id, p := range d.Pins {
		if _, ok := d.Cells[p.CellID]; !ok {
			return fmt.Errorf("pin %q references unknown cell %q", id, p.CellID)
		}
		if p.NetID != "" {
			if _, ok := d.Nets[p.NetID]; !ok {
				return fmt.Errorf("pin %q references unknown net %q", id, p.NetID)
			}
		}
	}
	for id, n := range d.Nets {
		if n.DriverPinID != "" {
			if _, ok := d.Pins[n.DriverPinID]; !ok {
				return fmt.Errorf("net %q references unknown driver pin %q", id, n.DriverPinID)
			}
		}
		for _, sinkID := range n.SinkPinIDs {
			if _, ok := d.Pins[sinkID]; !ok {
				return fmt.Errorf("net %q references unknown sink pin %q", id, sinkID)
			}
		}
	}
	for id, m := range d.Macros {
		if _, ok := d.Cells[m.AnchorCellID]; !ok {
			return fmt.Errorf("macro %q references unknown anchor cell %q", id, m.AnchorCellID)
		}
		for _, mm := range m.Members {
			if _, ok := d.Cells[mm.CellID]; !ok {
				return fmt.Errorf("macro %q references unknown member cell %q", id, mm.CellID)
			}
		}
	}
	return nil
}

// AddCell registers a cell, initializing an empty pin list if needed.
func (d *Design) AddCell(c *Cell) {
	if c.PinIDs == nil {
		c.PinIDs = []string{}
	}
	d.Cells[c.ID] = c
}

// AddPin registers a pin and links it into its owning cell's pin list.
func (d *Design) AddPin(p *Pin) {
	d.Pins[p.ID] = p
	if c, ok := d.Cells[p.CellID]; ok {
		c.PinIDs = append(c.PinIDs, p.ID)
	}
}

// AddNet registers a net.
func (d *Design) AddNet(n *Net) {
	if n.OverallTimingEnhancement == 0 {
		n.OverallTimingEnhancement = 1.0
	}
	d.Nets[n.ID] = n
}

// AddMacro registers a macro and stamps MacroID onto every member cell.
func (d *Design) AddMacro(m *Macro) {
	d.Macros[m.ID] = m
	for _, mm := range m.Members {
		if c, ok := d.Cells[mm.CellID]; ok {
			c.MacroID = m.ID
		}
	}
}
