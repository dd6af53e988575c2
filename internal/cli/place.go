package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fabricplace/amfplacer/internal/config"
	"github.com/fabricplace/amfplacer/pkg/amfplace"
	"github.com/fabricplace/amfplacer/pkg/checkpoint"
	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/device"
	"github.com/fabricplace/amfplacer/pkg/perrors"
	"github.com/fabricplace/amfplacer/pkg/placement"
	"github.com/fabricplace/amfplacer/pkg/timing"
)

func (c *CLI) placeCommand() *cobra.Command {
	var configPath string
	var noDump bool

	cmd := &cobra.Command{
		Use:   "place",
		Short: "Run one placement from a TOML run configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPlace(cmd.Context(), configPath, noDump)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the run's TOML configuration file (required)")
	cmd.Flags().BoolVar(&noDump, "no-dump", false, "skip writing a checkpoint after the run completes")
	cmd.MarkFlagRequired("config")
	return cmd
}

func (c *CLI) runPlace(ctx context.Context, configPath string, noDump bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDumpDirectory(); err != nil {
		return err
	}
	c.Logger.Infof("loaded config: %s", cfg)

	d, err := design.Load(cfg.DesignFile)
	if err != nil {
		return perrors.Wrap(perrors.ErrCodeInvalidDesign, err, "load design file %q", cfg.DesignFile)
	}
	dev, err := device.Load(cfg.DeviceFile)
	if err != nil {
		return perrors.Wrap(perrors.ErrCodeInvalidDevice, err, "load device file %q", cfg.DeviceFile)
	}

	if err := applyPinOffsets(d, cfg.PinOffsetFile); err != nil {
		return err
	}

	pi, err := seedPlacement(d, dev, cfg)
	if err != nil {
		return err
	}

	graph := timing.BuildSimpleTimingGraph(d)

	var enhanceLog, edgesLog io.Writer
	if cfg.EnhanceNetWeightLog != "" {
		f, err := os.Create(cfg.EnhanceNetWeightLog)
		if err != nil {
			return perrors.Wrap(perrors.ErrCodeDumpIO, err, "open net-weight enhancement log %q", cfg.EnhanceNetWeightLog)
		}
		defer f.Close()
		enhanceLog = f
	}
	if cfg.EdgesDelayLog != "" {
		f, err := os.Create(cfg.EdgesDelayLog)
		if err != nil {
			return perrors.Wrap(perrors.ErrCodeDumpIO, err, "open edge-delay log %q", cfg.EdgesDelayLog)
		}
		defer f.Close()
		edgesLog = f
	}

	opts := amfplace.Options{
		TotalIters:          cfg.GlobalPlacementIteration,
		Jobs:                cfg.Jobs,
		Y2XRatio:             cfg.Y2XRatio,
		EnhanceNetWeightLog: enhanceLog,
		EdgesDelayLog:       edgesLog,
		Logger:              c.Logger,
	}

	res, err := amfplace.Run(ctx, pi, dev, graph, opts)
	if err != nil {
		return err
	}
	c.Logger.Infof("run %s finished: HPWL=%.2f unpacked=%d", res.RunID, res.FinalHPWL, len(res.UnpackedPUs))
	for region, util := range res.ClockUtilization {
		if util > 1.0 {
			c.Logger.Warnf("clock region (%d,%d) over capacity: %.2f", region[0], region[1], util)
		}
	}

	if noDump || cfg.DumpDirectory == "" {
		return nil
	}
	checkpoint.PrepareForDump(pi)
	rec := checkpoint.Snapshot(res.RunID, "final", pi)
	path := filepath.Join(cfg.DumpDirectory, res.RunID+".ckpt.zst")
	f, err := os.Create(path)
	if err != nil {
		return perrors.Wrap(perrors.ErrCodeDumpIO, err, "create checkpoint file %q", path)
	}
	defer f.Close()
	if err := checkpoint.Dump(ctx, f, rec); err != nil {
		c.Logger.Errorf("checkpoint dump failed (non-fatal): %v", err)
		return nil
	}
	c.Logger.Infof("checkpoint written: %s", path)
	return nil
}

// applyPinOffsets loads the special_pin_offset_info file, a map from
// "cellType#pinIndex" to a [dx, dy] pair, and fills in the offset of every
// pin the design loader left at its JSON-absent zero value.
func applyPinOffsets(d *design.Design, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return perrors.Wrap(perrors.ErrCodeInvalidDesign, err, "load pin offset file %q", path)
	}
	var offsets map[string][2]float64
	if err := json.Unmarshal(raw, &offsets); err != nil {
		return perrors.Wrap(perrors.ErrCodeInvalidDesign, err, "parse pin offset file %q", path)
	}
	for _, p := range d.Pins {
		if p.OffsetX != 0 || p.OffsetY != 0 {
			continue
		}
		c, ok := d.Cells[p.CellID]
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s#%d", c.Type, p.Index)
		if off, ok := offsets[key]; ok {
			p.OffsetX, p.OffsetY = off[0], off[1]
		}
	}
	return nil
}

// seedPlacement builds the minimal initial placement the core requires as
// input: one PU per non-macro cell and one PU per macro, scattered at
// pseudo-random legal-ish coordinates, plus the cellType2sharedCellType ->
// sharedCellType2BELtype resource-type composition. Macro extraction and
// the real initial packer are external per the core's contract; this is
// only enough to exercise the placer end to end from a bare netlist dump.
func seedPlacement(d *design.Design, dev *device.Device, cfg *config.Config) (*placement.Info, error) {
	pi := placement.New(d, dev)

	if err := loadResourceTypes(pi, cfg); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(1))
	macroed := make(map[string]bool)
	for _, m := range d.Macros {
		for _, mm := range m.Members {
			macroed[mm.CellID] = true
		}
		x, y := rng.Float64()*dev.Width, rng.Float64()*dev.Height
		pi.AddMacro("pu_"+m.ID, m.ID, x, y)
	}
	for _, c := range d.Cells {
		if c.IsVirtual || macroed[c.ID] {
			continue
		}
		x, y := rng.Float64()*dev.Width, rng.Float64()*dev.Height
		pi.AddUnpackedCell("pu_"+c.ID, c.ID, x, y)
	}

	fixedCounts, err := loadFixedAmounts(cfg)
	if err != nil {
		return nil, err
	}
	applyFixedAmounts(pi, d, fixedCounts)

	pi.RefreshCapacity()
	pi.RefreshDemand()
	return pi, nil
}

// loadResourceTypes composes shared_cell_type_file (cell type ->
// shared/equivalence class) with bel_type_file (shared class -> concrete
// basic-element type) into pi.ResourceType.
func loadResourceTypes(pi *placement.Info, cfg *config.Config) error {
	sharedCellType, err := readStringMap(cfg.SharedCellTypeFile)
	if err != nil {
		return perrors.Wrap(perrors.ErrCodeInvalidDesign, err, "load shared cell type file %q", cfg.SharedCellTypeFile)
	}
	belType, err := readStringMap(cfg.BELTypeFile)
	if err != nil {
		return perrors.Wrap(perrors.ErrCodeInvalidDesign, err, "load BEL type file %q", cfg.BELTypeFile)
	}
	for cellType, shared := range sharedCellType {
		if bel, ok := belType[shared]; ok {
			pi.ResourceType[cellType] = bel
		} else {
			pi.ResourceType[cellType] = shared
		}
	}
	return nil
}

func loadFixedAmounts(cfg *config.Config) (map[string]int, error) {
	if cfg.FixedAmountFile == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(cfg.FixedAmountFile)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidDesign, err, "load fixed amount file %q", cfg.FixedAmountFile)
	}
	var counts map[string]int
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidDesign, err, "parse fixed amount file %q", cfg.FixedAmountFile)
	}
	return counts, nil
}

// applyFixedAmounts fixes the first N placed cells of each type named in
// counts, in design order, approximating cellType2fixedAmo's pre-placed
// hard-resource budget.
func applyFixedAmounts(pi *placement.Info, d *design.Design, counts map[string]int) {
	remaining := make(map[string]int, len(counts))
	for t, n := range counts {
		remaining[t] = n
	}
	for _, c := range d.Cells {
		n, ok := remaining[c.Type]
		if !ok || n <= 0 {
			continue
		}
		if pu, ok := pi.PUOf(c.ID); ok {
			pu.SetFixed(true)
			remaining[c.Type]--
		}
	}
}

func readStringMap(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	return m, nil
}
