package device

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// jsonDevice mirrors the "vivado extracted device information file"
// interchange format the placer core actually consumes: a flat site
// list, a compatibility table, and an optional uniform clock-region grid.
type jsonDevice struct {
	Sites            []jsonSite          `json:"sites"`
	Compatible       map[string][]string `json:"compatible"`
	ClockRegionCols  int                 `json:"clockRegionCols,omitempty"`
	ClockRegionRows  int                 `json:"clockRegionRows,omitempty"`
}

type jsonSite struct {
	ID            string         `json:"id"`
	X             float64        `json:"x"`
	Y             float64        `json:"y"`
	Type          string         `json:"type"`
	Capacity      map[string]int `json:"capacity"`
	InputCapacity int            `json:"inputCapacity,omitempty"`
}

// Load reads a Device from the JSON interchange format at path.
func Load(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open device file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a Device from r.
func Read(r io.Reader) (*Device, error) {
	var jd jsonDevice
	if err := json.NewDecoder(r).Decode(&jd); err != nil {
		return nil, fmt.Errorf("decode device json: %w", err)
	}

	d := New()
	for _, js := range jd.Sites {
		d.AddSite(&Site{ID: js.ID, X: js.X, Y: js.Y, Type: js.Type, Capacity: js.Capacity, InputCapacity: js.InputCapacity})
	}
	for siteType, cellTypes := range jd.Compatible {
		for _, ct := range cellTypes {
			d.SetCompatible(siteType, ct)
		}
	}
	if jd.ClockRegionCols > 0 && jd.ClockRegionRows > 0 {
		d.SetUniformClockRegions(jd.ClockRegionCols, jd.ClockRegionRows)
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device: %w", err)
	}
	return d, nil
}
