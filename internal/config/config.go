// Package config loads the placer's run configuration from a TOML file.
//
// Every field corresponds to one key of the original JSON configuration
// map (spec section 6); Validate names the keys that are required, the
// rest are optional. A structured type catches a typo'd key name at load
// time instead of at first use deep inside the core.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/fabricplace/amfplacer/pkg/perrors"
)

// Config is the run configuration for one placement invocation.
type Config struct {
	DeviceFile         string `toml:"device_file"`
	PinOffsetFile       string `toml:"pin_offset_file"`
	DesignFile          string `toml:"design_file"`
	FixedAmountFile     string `toml:"fixed_amount_file"`
	SharedCellTypeFile  string `toml:"shared_cell_type_file"`
	BELTypeFile         string `toml:"bel_type_file"`
	GlobalPlacementIteration int `toml:"global_placement_iteration"`
	Jobs                int     `toml:"jobs"`

	Y2XRatio      float64 `toml:"y2x_ratio"`
	DumpDirectory string  `toml:"dump_directory"`
	Verbose       bool    `toml:"verbose"`

	EnhanceNetWeightLog string `toml:"enhance_net_weight_log"`
	EdgesDelayLog       string `toml:"edges_delay_log"`
	ClusterFile         string `toml:"cluster_file"`
}

// requiredField names one (field name, value) pair Validate checks for the
// Go zero value.
type requiredField struct {
	name  string
	empty bool
}

// Load reads and parses path, applies y2XRatio's documented default, and
// validates every required key. A missing or malformed file, or a missing
// required key, returns a *perrors.Error so the CLI can report it the way
// spec section 7's "fail fast, identify the missing key" policy asks.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeMissingConfigKey, err, "read config file %q", path)
	}

	var cfg Config
	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeMissingConfigKey, err, "parse config file %q", path)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Y2XRatio == 0 {
		c.Y2XRatio = 1.0
	}
}

// Validate fails fast on the first missing required key, naming it, per
// spec section 7's configuration error policy.
func (c *Config) Validate() error {
	fields := []requiredField{
		{"device_file", c.DeviceFile == ""},
		{"pin_offset_file", c.PinOffsetFile == ""},
		{"design_file", c.DesignFile == ""},
		{"fixed_amount_file", c.FixedAmountFile == ""},
		{"shared_cell_type_file", c.SharedCellTypeFile == ""},
		{"bel_type_file", c.BELTypeFile == ""},
		{"global_placement_iteration", c.GlobalPlacementIteration == 0},
		{"jobs", c.Jobs == 0},
	}
	for _, f := range fields {
		if f.empty {
			return perrors.New(perrors.ErrCodeMissingConfigKey, "missing required key %q", f.name)
		}
	}
	return nil
}

// EnsureDumpDirectory creates DumpDirectory if it is set and absent,
// matching "checkpoint directory absent -> create; if creation fails, fail
// fast".
func (c *Config) EnsureDumpDirectory() error {
	if c.DumpDirectory == "" {
		return nil
	}
	if err := os.MkdirAll(c.DumpDirectory, 0755); err != nil {
		return perrors.Wrap(perrors.ErrCodeDumpDirCreate, err, "create dump directory %q", c.DumpDirectory)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("config{device=%s design=%s iterations=%d jobs=%d}",
		c.DeviceFile, c.DesignFile, c.GlobalPlacementIteration, c.Jobs)
}
