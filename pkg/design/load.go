package design

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// jsonDesign mirrors the on-disk interchange format: a flat list of
// cells, pins, nets, and macros, cross-referenced by id. This is the
// "vivado extracted design information file" stand-in — a real front end
// would populate a Design directly rather than round-tripping JSON.
type jsonDesign struct {
	Cells []jsonCell  `json:"cells"`
	Pins  []jsonPin   `json:"pins"`
	Nets  []jsonNet   `json:"nets"`
	Macros []jsonMacro `json:"macros"`
}

type jsonCell struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	IsVirtual  bool           `json:"isVirtual,omitempty"`
	IsRegister bool           `json:"isRegister,omitempty"`
	ControlSet jsonControlSet `json:"controlSet,omitempty"`
}

type jsonControlSet struct {
	Clock string `json:"clock,omitempty"`
	CE    string `json:"ce,omitempty"`
	SR    string `json:"sr,omitempty"`
}

type jsonPin struct {
	ID        string  `json:"id"`
	CellID    string  `json:"cellId"`
	NetID     string  `json:"netId,omitempty"`
	Direction string  `json:"direction"`
	OffsetX   float64 `json:"offsetX"`
	OffsetY   float64 `json:"offsetY"`
	Index     int     `json:"index"`
}

type jsonNet struct {
	ID          string   `json:"id"`
	DriverPinID string   `json:"driverPinId,omitempty"`
	SinkPinIDs  []string `json:"sinkPinIds"`
}

type jsonMacroMember struct {
	CellID string  `json:"cellId"`
	DX     float64 `json:"dx"`
	DY     float64 `json:"dy"`
}

type jsonMacro struct {
	ID           string            `json:"id"`
	AnchorCellID string            `json:"anchorCellId"`
	Members      []jsonMacroMember `json:"members"`
}

// Load reads a Design from the JSON interchange format at path.
func Load(path string) (*Design, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open design file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a Design from r and validates referential integrity.
func Read(r io.Reader) (*Design, error) {
	var jd jsonDesign
	if err := json.NewDecoder(r).Decode(&jd); err != nil {
		return nil, fmt.Errorf("decode design json: %w", err)
	}

	d := New()
	for _, jc := range jd.Cells {
		d.AddCell(&Cell{
			ID: jc.ID, Type: jc.Type, IsVirtual: jc.IsVirtual, IsRegister: jc.IsRegister,
			ControlSet: ControlSet{Clock: jc.ControlSet.Clock, CE: jc.ControlSet.CE, SR: jc.ControlSet.SR},
		})
	}
	for _, jp := range jd.Pins {
		dir := Input
		if jp.Direction == "output" {
			dir = Output
		}
		d.AddPin(&Pin{
			ID:        jp.ID,
			CellID:    jp.CellID,
			NetID:     jp.NetID,
			Direction: dir,
			OffsetX:   jp.OffsetX,
			OffsetY:   jp.OffsetY,
			Index:     jp.Index,
		})
	}
	for _, jn := range jd.Nets {
		d.AddNet(&Net{ID: jn.ID, DriverPinID: jn.DriverPinID, SinkPinIDs: jn.SinkPinIDs, OverallTimingEnhancement: 1.0})
	}
	for _, jm := range jd.Macros {
		members := make([]MacroMember, 0, len(jm.Members))
		for _, mm := range jm.Members {
			members = append(members, MacroMember{CellID: mm.CellID, DX: mm.DX, DY: mm.DY})
		}
		d.AddMacro(&Macro{ID: jm.ID, AnchorCellID: jm.AnchorCellID, Members: members})
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid design: %w", err)
	}
	return d, nil
}

// Write encodes d to w in the JSON interchange format. It is the inverse
// of Read and exists mainly to produce fixtures for tests and for
// checkpoint round-tripping of the static netlist alongside placement
// state.
func Write(d *Design, w io.Writer) error {
	jd := jsonDesign{}
	for _, c := range d.Cells {
		jd.Cells = append(jd.Cells, jsonCell{
			ID: c.ID, Type: c.Type, IsVirtual: c.IsVirtual, IsRegister: c.IsRegister,
			ControlSet: jsonControlSet{Clock: c.ControlSet.Clock, CE: c.ControlSet.CE, SR: c.ControlSet.SR},
		})
	}
	for _, p := range d.Pins {
		jd.Pins = append(jd.Pins, jsonPin{
			ID: p.ID, CellID: p.CellID, NetID: p.NetID,
			Direction: p.Direction.String(), OffsetX: p.OffsetX, OffsetY: p.OffsetY, Index: p.Index,
		})
	}
	for _, n := range d.Nets {
		jd.Nets = append(jd.Nets, jsonNet{ID: n.ID, DriverPinID: n.DriverPinID, SinkPinIDs: n.SinkPinIDs})
	}
	for _, m := range d.Macros {
		jm := jsonMacro{ID: m.ID, AnchorCellID: m.AnchorCellID}
		for _, mm := range m.Members {
			jm.Members = append(jm.Members, jsonMacroMember{CellID: mm.CellID, DX: mm.DX, DY: mm.DY})
		}
		jd.Macros = append(jd.Macros, jm)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jd)
}
