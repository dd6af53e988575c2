// Package amfplace orchestrates one end-to-end placement run: it drives the
// global placer, timing graph, and site packer through the schedule laid
// out in the original run() entry point, decaying pseudo-net weights and
// the spreading displacement cap between phases, re-clustering long paths
// into clock regions around the incremental packing step, and reporting
// HPWL after every milestone.
package amfplace

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fabricplace/amfplacer/pkg/checkpoint"
	"github.com/fabricplace/amfplacer/pkg/device"
	"github.com/fabricplace/amfplacer/pkg/globalplace"
	"github.com/fabricplace/amfplacer/pkg/observability"
	"github.com/fabricplace/amfplacer/pkg/packer"
	"github.com/fabricplace/amfplacer/pkg/placement"
	"github.com/fabricplace/amfplacer/pkg/timing"
	"github.com/fabricplace/amfplacer/pkg/wirelength"
)

// Options configures one run. TotalIters is the outer-iteration budget N
// the schedule divides into phases (spec §4.1); everything else has a
// published schedule default, filled in by ValidateAndSetDefaults.
type Options struct {
	TotalIters int
	Jobs       int
	Y2XRatio   float64

	Seed int64

	// ClockPeriodNS bounds the STA required-time propagation's clock
	// period, default 10.0.
	ClockPeriodNS float64
	// LongPathThrRatio is the long-path clustering quantile, default 0.95.
	LongPathThrRatio float64
	// ClusterThrRatio is clusterLongPathInOneClockRegion's dominant-column
	// share threshold, default 0.5.
	ClusterThrRatio float64

	// MoveDriverIntoBetterClockRegion runs the optional phase the original
	// commented out of its sample run() (off by default).
	MoveDriverIntoBetterClockRegion bool

	// EnhanceNetWeightLog and EdgesDelayLog, when non-nil, receive a line
	// per net-weight enhancement / per-edge delay computation.
	EnhanceNetWeightLog io.Writer
	EdgesDelayLog       io.Writer

	Logger *log.Logger

	validated bool
}

func (o *Options) ValidateAndSetDefaults() {
	if o.validated {
		return
	}
	if o.TotalIters <= 0 {
		o.TotalIters = 90
	}
	if o.Jobs <= 0 {
		o.Jobs = 1
	}
	if o.Y2XRatio <= 0 {
		o.Y2XRatio = 1.0
	}
	if o.ClockPeriodNS <= 0 {
		o.ClockPeriodNS = 10.0
	}
	if o.LongPathThrRatio <= 0 {
		o.LongPathThrRatio = 0.95
	}
	if o.ClusterThrRatio <= 0 {
		o.ClusterThrRatio = 0.5
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
}

// Result summarizes one completed run, reported after the final milestone.
type Result struct {
	RunID          string
	FinalHPWL      float64
	UnpackedPUs    []string
	ClockUtilization map[[2]int]float64
}

// Run drives pi/dev/graph through the full schedule: cluster-placement
// seed, fixed-CLB settle, the main CLB-elements loop (with weight/radius
// decay and two clock-region re-clustering passes around incremental
// packing), the site packer, and a final clock-utilization check.
func Run(ctx context.Context, pi *placement.Info, dev *device.Device, graph *timing.Graph, opts Options) (Result, error) {
	opts.ValidateAndSetDefaults()
	runID := checkpoint.NewRunID()
	delayModel := timing.NewDefaultDelayModel()

	graph.ClockPeriod = opts.ClockPeriodNS

	if err := graph.ForwardLevelization(); err != nil {
		return Result{}, err
	}
	if err := graph.BackwardLevelization(); err != nil {
		return Result{}, err
	}

	gp := globalplace.New(pi, globalplace.Options{Jobs: opts.Jobs, Y2XRatio: opts.Y2XRatio})

	// refreshTiming is the enableTiming=true hook for GlobalPlacementCLBElements:
	// STA and net-weight enhancement always run together here, since the
	// original never invokes one without the other.
	refreshTiming := func() error {
		return runTiming(graph, pi, dev, delayModel, opts)
	}

	milestone := func(stage string, fn func() error) error {
		start := time.Now()
		observability.Placement().OnGlobalPlaceStart(ctx, stage, len(pi.PUs))
		err := fn()
		hpwl := wirelength.TotalHPWL(pi, opts.Y2XRatio)
		observability.Placement().OnGlobalPlaceComplete(ctx, stage, hpwl, time.Since(start), err)
		opts.Logger.Infof("%s: HPWL=%.2f (%s)", stage, hpwl, time.Since(start).Round(time.Millisecond))
		return err
	}

	// 1. Cluster-placement seed.
	if err := milestone("cluster-seed", func() error {
		gp.ClusterPlacement(opts.Seed)
		return nil
	}); err != nil {
		return Result{}, err
	}

	// 2. Timing optimizer clusters long paths -> clock-region anchors.
	graph.SetLongestPathLength()
	pathThr := graph.ThresholdLevel(opts.LongPathThrRatio)
	anchors, _ := graph.ClusterLongPathInOneClockRegion(pi, pathThr, opts.ClusterThrRatio)
	gp.SetClockRegionAnchors(anchors)

	// 3. globalPlacementFixedCLB(1, 0.0002).
	if err := milestone("fixed-CLB", func() error {
		return gp.GlobalPlacementFixedCLB(ctx, 1, 0.0002)
	}); err != nil {
		return Result{}, err
	}

	// 4. globalPlacementCLBElements(totalIters/3, macroLegalize=false, spreadK=5),
	// enableTiming=true: timing weights are re-read every outer iteration.
	phase1 := opts.TotalIters / 3
	if err := milestone("CLB-elements/no-macro-legalize", func() error {
		return gp.GlobalPlacementCLBElements(ctx, phase1, false, 5, 0, true, refreshTiming)
	}); err != nil {
		return Result{}, err
	}

	// 5. Decay weights by 0.85/0.80, refine grid to 2.0x2.0, another
	// totalIters*2/9 with macro-legalize enabled.
	gp.SetPseudoNetWeight(gp.PseudoNetWeight() * 0.85)
	gp.SetMacroLegalizationWeight(gp.MacroLegalizationWeight() * 0.80)
	gp.SetMacroPseudoNetEnhanceCnt(int(float64(gp.MacroPseudoNetEnhanceCnt()) * 0.8))
	pi.RefineBins(2.0)
	pi.RefreshDemand()
	phase2 := opts.TotalIters * 2 / 9
	if err := milestone("CLB-elements/macro-legalize", func() error {
		return gp.GlobalPlacementCLBElements(ctx, phase2, true, 5, 0, false, nil)
	}); err != nil {
		return Result{}, err
	}

	// Re-run STA and net-weight enhancement ahead of the first
	// re-clustering call, the way the original re-derives weights before
	// handing control to the incremental packing step.
	if err := runTiming(graph, pi, dev, delayModel, opts); err != nil {
		return Result{}, err
	}

	// First of the two clock-region re-clustering calls around incremental
	// packing.
	anchors, _ = graph.ClusterLongPathInOneClockRegion(pi, pathThr, opts.ClusterThrRatio)
	if opts.MoveDriverIntoBetterClockRegion {
		for puID, target := range graph.MoveDriverIntoBetterClockRegion(pi, pathThr, opts.ClusterThrRatio) {
			anchors[puID] = target
		}
	}
	gp.SetClockRegionAnchors(anchors)

	// 6. Incremental LUT-FF pairing is external; the packer's own LUT
	// pairing (step below) stands in for it against our PU model.

	// 7. Two more totalIters*2/9 rounds, displacement cap decaying 3.0 -> 2.0.
	phase3 := opts.TotalIters * 2 / 9
	if err := milestone("CLB-elements/displacement-3.0", func() error {
		return gp.GlobalPlacementCLBElements(ctx, phase3, true, 5, 3.0, false, nil)
	}); err != nil {
		return Result{}, err
	}
	if err := milestone("CLB-elements/displacement-2.0", func() error {
		return gp.GlobalPlacementCLBElements(ctx, phase3, true, 5, 2.0, false, nil)
	}); err != nil {
		return Result{}, err
	}

	// Second re-clustering call, after incremental packing's global-placer
	// side of the schedule but before the final phase and the site packer.
	anchors, _ = graph.ClusterLongPathInOneClockRegion(pi, pathThr, opts.ClusterThrRatio)
	gp.SetClockRegionAnchors(anchors)

	// 8. Final totalIters/2 round with timing but without fresh
	// clock-region anchoring (anchors above are reused, not recomputed).
	// enableTiming=true, matching step 4's per-iteration weight refresh.
	phase4 := opts.TotalIters / 2
	if err := milestone("CLB-elements/final", func() error {
		return gp.GlobalPlacementCLBElements(ctx, phase4, true, 5, 0, true, refreshTiming)
	}); err != nil {
		return Result{}, err
	}

	pk := packer.New(pi, packer.Options{Jobs: opts.Jobs, Logger: opts.Logger})
	start := time.Now()
	observability.Placement().OnPackStart(ctx, len(pi.PUs))
	if err := pk.PackCLBs(ctx, 30, true); err != nil {
		observability.Placement().OnPackComplete(ctx, len(pk.Unpacked()), time.Since(start), err)
		return Result{}, err
	}
	pk.SetPULocationToPackedSite()
	finalHPWL := pk.UpdatePackedMacro(true, true)
	observability.Placement().OnPackComplete(ctx, len(pk.Unpacked()), time.Since(start), nil)
	opts.Logger.Infof("pack: HPWL=%.2f unpacked=%d", finalHPWL, len(pk.Unpacked()))

	utilization := pi.CheckClockUtilization(len(dev.Sites) / max(len(dev.ClockRegions), 1))

	return Result{
		RunID:            runID,
		FinalHPWL:        finalHPWL,
		UnpackedPUs:      pk.Unpacked(),
		ClockUtilization: utilization,
	}, nil
}

func runTiming(graph *timing.Graph, pi *placement.Info, dev *device.Device, model timing.DelayModel, opts Options) error {
	graph.ConductStaticTimingAnalysis(pi, dev, model, opts.EdgesDelayLog)
	graph.SetLongestPathLength()
	levelThr := graph.ThresholdLevel(0.8)
	graph.EnhanceNetWeightLevelBased(pi.Design, levelThr, opts.EnhanceNetWeightLog)
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
