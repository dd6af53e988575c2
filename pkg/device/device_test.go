package device

import "testing"

func newTestDevice() *Device {
	d := New()
	d.AddSite(&Site{ID: "s0", X: 0, Y: 0, Type: "CLB", Capacity: map[string]int{"LUT": 8, "FF": 16}})
	d.AddSite(&Site{ID: "s1", X: 1, Y: 0, Type: "CLB", Capacity: map[string]int{"LUT": 8, "FF": 16}})
	d.AddSite(&Site{ID: "s2", X: 0, Y: 1, Type: "DSP", Capacity: map[string]int{"DSP48": 1}})
	d.SetCompatible("CLB", "LUT6")
	d.SetCompatible("CLB", "FDRE")
	d.SetCompatible("DSP", "DSP48E2")
	d.SetUniformClockRegions(2, 2)
	return d
}

func TestIsCompatible(t *testing.T) {
	d := newTestDevice()
	if !d.IsCompatible("CLB", "LUT6") {
		t.Error("expected CLB compatible with LUT6")
	}
	if d.IsCompatible("CLB", "DSP48E2") {
		t.Error("expected CLB incompatible with DSP48E2")
	}
	if d.IsCompatible("UNKNOWN", "LUT6") {
		t.Error("expected unknown site type incompatible with everything")
	}
}

func TestClockRegionAt(t *testing.T) {
	d := newTestDevice()
	cx, cy := d.ClockRegionAt(0, 0)
	if cx != 0 || cy != 0 {
		t.Errorf("ClockRegionAt(0,0) = (%d,%d), want (0,0)", cx, cy)
	}
	cx, cy = d.ClockRegionAt(d.Width-0.1, d.Height-0.1)
	if cx != 1 || cy != 1 {
		t.Errorf("ClockRegionAt(max) = (%d,%d), want (1,1)", cx, cy)
	}
}

func TestSitesWithinRadius(t *testing.T) {
	d := newTestDevice()
	sites := d.SitesWithinRadius(0, 0, 1)
	if len(sites) != 3 {
		t.Errorf("SitesWithinRadius(radius=1) returned %d sites, want 3", len(sites))
	}
	sites = d.SitesWithinRadius(0, 0, 0)
	if len(sites) != 1 {
		t.Errorf("SitesWithinRadius(radius=0) returned %d sites, want 1", len(sites))
	}
}

func TestValidateRejectsUnknownSiteType(t *testing.T) {
	d := New()
	d.SetCompatible("GHOST", "LUT6")
	if err := d.Validate(); err == nil {
		t.Error("expected Validate to reject compatibility for a nonexistent site type")
	}
}
