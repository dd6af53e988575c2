package design

import (
	"bytes"
	"testing"
)

func TestNetPinCountAndEligibility(t *testing.T) {
	tests := []struct {
		name       string
		driver     string
		sinks      []string
		wantCount  int
		wantEligible bool
	}{
		{"no driver two sinks", "", []string{"a", "b"}, 2, true},
		{"driver only", "d", nil, 1, false},
		{"single pin total", "", []string{"a"}, 1, false},
		{"huge net", "d", make([]string, 1000), 1001, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Net{DriverPinID: tt.driver, SinkPinIDs: tt.sinks}
			if got := n.PinCount(); got != tt.wantCount {
				t.Errorf("PinCount() = %d, want %d", got, tt.wantCount)
			}
			if got := n.EligibleForTimingEnhancement(); got != tt.wantEligible {
				t.Errorf("EligibleForTimingEnhancement() = %v, want %v", got, tt.wantEligible)
			}
		})
	}
}

func TestMacroOffset(t *testing.T) {
	m := &Macro{
		ID:           "m0",
		AnchorCellID: "c0",
		Members: []MacroMember{
			{CellID: "c0", DX: 0, DY: 0},
			{CellID: "c1", DX: 1, DY: 0},
			{CellID: "c2", DX: 2, DY: 0},
		},
	}
	dx, dy, ok := m.Offset("c1")
	if !ok || dx != 1 || dy != 0 {
		t.Errorf("Offset(c1) = (%v, %v, %v), want (1, 0, true)", dx, dy, ok)
	}
	if _, _, ok := m.Offset("missing"); ok {
		t.Error("Offset(missing) should report ok=false")
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	d := New()
	d.AddCell(&Cell{ID: "c0", Type: "LUT6", IsRegister: false})
	d.AddCell(&Cell{ID: "c1", Type: "FDRE", IsRegister: true})
	d.AddPin(&Pin{ID: "p0", CellID: "c0", NetID: "n0", Direction: Output, Index: 0})
	d.AddPin(&Pin{ID: "p1", CellID: "c1", NetID: "n0", Direction: Input, Index: 0})
	d.AddNet(&Net{ID: "n0", DriverPinID: "p0", SinkPinIDs: []string{"p1"}})

	var buf bytes.Buffer
	if err := Write(d, &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Cells) != 2 || len(got.Pins) != 2 || len(got.Nets) != 1 {
		t.Fatalf("round trip lost entities: %+v", got)
	}
	if !got.Cells["c1"].IsRegister {
		t.Error("expected c1 to remain a register after round trip")
	}
}

func TestValidateRejectsDanglingReferences(t *testing.T) {
	d := New()
	d.AddCell(&Cell{ID: "c0", Type: "LUT6"})
	d.Pins["p0"] = &Pin{ID: "p0", CellID: "missing"}
	if err := d.Validate(); err == nil {
		t.Error("expected Validate to reject a pin referencing an unknown cell")
	}
}
