// Package globalplace implements the iterative quadratic-plus-spreading
// global placer: it alternates a weighted least-squares wirelength solve
// (via pkg/solver's B2B linear system) with non-linear cell spreading
// against the density field in pkg/placement, augmented with pseudo-nets
// for macro legalization and clock-region anchoring.
package globalplace

import (
	"context"
	"io"
	"math"
	"math/rand"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/fabricplace/amfplacer/pkg/placement"
	"github.com/fabricplace/amfplacer/pkg/solver"
	"github.com/fabricplace/amfplacer/pkg/wirelength"
)

// Options configures one Placer. Unset numeric fields fall back to the
// schedule's own per-phase defaults the way AMFPlacer's constructor
// arguments do; ValidateAndSetDefaults is idempotent.
type Options struct {
	Jobs     int
	Y2XRatio float64

	PseudoNetWeight                float64
	MacroLegalizationWeight        float64
	MacroPseudoNetEnhanceCnt       int
	NeighborDisplacementUpperbound float64

	Logger *log.Logger

	validated bool
}

// ValidateAndSetDefaults applies the schedule's starting values. It is
// idempotent: calling it twice leaves already-set fields untouched.
func (o *Options) ValidateAndSetDefaults() {
	if o.validated {
		return
	}
	if o.Jobs <= 0 {
		o.Jobs = 1
	}
	if o.Y2XRatio <= 0 {
		o.Y2XRatio = 1.0
	}
	if o.PseudoNetWeight <= 0 {
		o.PseudoNetWeight = 0.0002
	}
	if o.MacroLegalizationWeight <= 0 {
		o.MacroLegalizationWeight = 1.0
	}
	if o.MacroPseudoNetEnhanceCnt <= 0 {
		o.MacroPseudoNetEnhanceCnt = 5
	}
	if o.NeighborDisplacementUpperbound <= 0 {
		o.NeighborDisplacementUpperbound = 3.0
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
}

// Placer owns the running state of one global-placement schedule: the
// pseudo-net weights and displacement cap decay between phases, so the
// same Placer is reused across GlobalPlacementFixedCLB and
// GlobalPlacementCLBElements calls rather than recreated per phase.
type Placer struct {
	PI   *placement.Info
	opts Options

	pseudoNetWeight                float64
	macroLegalizationWeight        float64
	macroPseudoNetEnhanceCnt       int
	neighborDisplacementUpperbound float64

	// clockRegionAnchors is populated by the timing optimizer's clustering
	// pass and consumed as clock-region pseudo-nets by the next solve.
	clockRegionAnchors map[string][2]float64

	// spreadAnchors is regenerated after every spreading pass: an anchor
	// pseudo-net from each moved PU back to its own post-spread location,
	// pulling the next quadratic solve toward the spread result.
	spreadAnchors map[string][2]float64

	// macroLegalizeTargets is regenerated by legalizeMacros: an anchor
	// pseudo-net from every illegal macro's PU to the nearest feasible
	// site cluster centroid.
	macroLegalizeTargets map[string][2]float64

	unlegalizedMacros map[string]int // macroID -> legalization attempts so far
}

// New returns a Placer over pi with opts applied (defaults filled in).
func New(pi *placement.Info, opts Options) *Placer {
	opts.ValidateAndSetDefaults()
	return &Placer{
		PI:                              pi,
		opts:                            opts,
		pseudoNetWeight:                 opts.PseudoNetWeight,
		macroLegalizationWeight:         opts.MacroLegalizationWeight,
		macroPseudoNetEnhanceCnt:        opts.MacroPseudoNetEnhanceCnt,
		neighborDisplacementUpperbound:  opts.NeighborDisplacementUpperbound,
		clockRegionAnchors:              map[string][2]float64{},
		spreadAnchors:                   map[string][2]float64{},
		macroLegalizeTargets:            map[string][2]float64{},
		unlegalizedMacros:               map[string]int{},
	}
}

// PseudoNetWeight, MacroPseudoNetEnhanceCnt, MacroLegalizationWeight, and
// NeighborDisplacementUpperbound are accessors/mutators for the schedule
// state that decays between phases (spec §4.1's "0.85/0.80 decay" and
// "3.0 -> 2.0" progression).
func (p *Placer) PseudoNetWeight() float64      { return p.pseudoNetWeight }
func (p *Placer) SetPseudoNetWeight(w float64)  { p.pseudoNetWeight = w }
func (p *Placer) MacroLegalizationWeight() float64     { return p.macroLegalizationWeight }
func (p *Placer) SetMacroLegalizationWeight(w float64) { p.macroLegalizationWeight = w }
func (p *Placer) MacroPseudoNetEnhanceCnt() int         { return p.macroPseudoNetEnhanceCnt }
func (p *Placer) SetMacroPseudoNetEnhanceCnt(n int)     { p.macroPseudoNetEnhanceCnt = n }
func (p *Placer) NeighborDisplacementUpperbound() float64     { return p.neighborDisplacementUpperbound }
func (p *Placer) SetNeighborDisplacementUpperbound(d float64) { p.neighborDisplacementUpperbound = d }

// SetClockRegionAnchors installs the timing optimizer's clustering output
// (PU -> target (x, y)) as pseudo-nets for the next solve.
func (p *Placer) SetClockRegionAnchors(anchors map[string][2]float64) {
	p.clockRegionAnchors = anchors
}

// ClusterPlacement produces an initial coarse location for every PU by a
// simple connectivity clustering: PUs connected by a shared net are
// pulled into the same coarse grid cell via a BFS-order assignment over
// a grid whose side length is derived from the PU count, giving a
// deterministic, roughly balanced seed instead of a single degenerate
// point.
func (p *Placer) ClusterPlacement(seed int64) {
	ids := make([]string, 0, len(p.PI.PUs))
	for id := range p.PI.PUs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	adjacency := p.puAdjacency()
	visited := map[string]bool{}
	rng := rand.New(rand.NewSource(seed))
	side := int(math.Ceil(math.Sqrt(float64(len(ids)))))
	if side == 0 {
		return
	}
	cellW := p.PI.Device.Width / float64(side)
	cellH := p.PI.Device.Height / float64(side)

	cluster := 0
	for _, start := range ids {
		if visited[start] {
			continue
		}
		cx := float64(cluster%side)*cellW + cellW/2
		cy := float64((cluster/side)%side)*cellH + cellH/2
		cluster++

		queue := []string{start}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if visited[id] {
				continue
			}
			visited[id] = true
			jitterX := (rng.Float64() - 0.5) * cellW * 0.5
			jitterY := (rng.Float64() - 0.5) * cellH * 0.5
			if pu := p.PI.PUs[id]; !pu.IsFixed {
				pu.SetLocation(clampToDevice(cx+jitterX, 0, p.PI.Device.Width), clampToDevice(cy+jitterY, 0, p.PI.Device.Height))
			}
			queue = append(queue, adjacency[id]...)
		}
	}
}

func (p *Placer) puAdjacency() map[string][]string {
	adj := map[string][]string{}
	add := func(a, b string) {
		if a == b {
			return
		}
		adj[a] = append(adj[a], b)
	}
	for _, net := range p.PI.Design.Nets {
		var members []string
		seen := map[string]bool{}
		consider := func(pinID string) {
			pin, ok := p.PI.Design.Pins[pinID]
			if !ok {
				return
			}
			pu, ok := p.PI.PUOf(pin.CellID)
			if !ok || seen[pu.ID] {
				return
			}
			seen[pu.ID] = true
			members = append(members, pu.ID)
		}
		consider(net.DriverPinID)
		for _, s := range net.SinkPinIDs {
			consider(s)
		}
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				add(members[i], members[j])
				add(members[j], members[i])
			}
		}
	}
	return adj
}

func clampToDevice(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GlobalPlacementFixedCLB runs iters quadratic-solve rounds with every
// CLB-resident PU held fixed, so only I/O and boundary PUs move. It is
// used once at the start of the schedule to settle the periphery before
// CLB elements are allowed to move.
func (p *Placer) GlobalPlacementFixedCLB(ctx context.Context, iters int, pseudoNetWeightInit float64) error {
	p.pseudoNetWeight = pseudoNetWeightInit
	fixedBefore := map[string]bool{}
	for id, pu := range p.PI.PUs {
		if p.isCLBResident(pu) && !pu.IsFixed {
			fixedBefore[id] = true
			pu.SetFixed(true)
		}
	}
	defer func() {
		for id := range fixedBefore {
			p.PI.PUs[id].SetFixed(false)
		}
	}()

	for i := 0; i < iters; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.solveOneIteration(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Placer) isCLBResident(pu *placement.PU) bool {
	resident := false
	pu.ForEachCell(p.PI.Design, func(cellID string, _, _ float64) {
		if c, ok := p.PI.Design.Cells[cellID]; ok {
			if p.PI.ResourceType[c.Type] == "CLB" || c.Type == "CLB" {
				resident = true
			}
		}
	})
	return resident
}

// TimingRefresh recomputes STA and the timing-driven net-weight
// enhancement ahead of the next solve. GlobalPlacementCLBElements calls
// it once per outer iteration when enableTiming is set, so the
// linearized solve re-reads OverallTimingEnhancement across the whole
// phase rather than once at phase entry.
type TimingRefresh func() error

// GlobalPlacementCLBElements is the main iterative loop: each of the
// iters rounds optionally refreshes timing-driven net weights, solves
// the weighted wirelength objective on both axes, spreads overfull
// bins, and (if macroLegalize) pushes illegal macros toward feasible
// site clusters via pseudo-nets. refreshTiming is ignored when
// enableTiming is false; it may be nil in that case.
func (p *Placer) GlobalPlacementCLBElements(ctx context.Context, iters int, macroLegalize bool, spreadK int, displacementCap float64, enableTiming bool, refreshTiming TimingRefresh) error {
	for i := 0; i < iters; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if enableTiming && refreshTiming != nil {
			if err := refreshTiming(); err != nil {
				return err
			}
		}
		if err := p.solveOneIterationCapped(displacementCap); err != nil {
			return err
		}
		p.PI.RefreshDemand()
		if err := p.spread(spreadK); err != nil {
			return err
		}
		if macroLegalize {
			p.legalizeMacros()
		}
	}
	return nil
}

func (p *Placer) solveOneIteration() error {
	return p.solveOneIterationCapped(0)
}

func (p *Placer) solveOneIterationCapped(displacementCap float64) error {
	for _, axis := range []wirelength.Axis{wirelength.AxisX, wirelength.AxisY} {
		idx := 0
		if axis == wirelength.AxisY {
			idx = 1
		}
		pns := axisPseudoNets(p, axis, idx)
		sys := solver.Assemble(p.PI, axis, p.opts.Y2XRatio, pns)
		res := solver.Solve(sys, 0, 0, p.opts.Jobs)
		if displacementCap > 0 {
			capDisplacement(p.PI, sys, axis, res.X, displacementCap)
		} else if !res.Converged {
			capDisplacement(p.PI, sys, axis, res.X, p.neighborDisplacementUpperbound)
		}
		solver.Apply(p.PI, sys, axis, res.X)
		if !res.Converged {
			p.opts.Logger.Warn("solver did not converge, capping step and continuing", "axis", axis, "residual", res.Residual)
		}
	}
	return nil
}

func axisPseudoNets(p *Placer, axis wirelength.Axis, idx int) []solver.PseudoNet {
	var out []solver.PseudoNet
	for puID, target := range p.clockRegionAnchors {
		out = append(out, solver.PseudoNet{PUID: puID, Target: target[idx], Weight: p.pseudoNetWeight})
	}
	for puID, target := range p.spreadAnchors {
		out = append(out, solver.PseudoNet{PUID: puID, Target: target[idx], Weight: p.pseudoNetWeight})
	}
	for puID, target := range p.macroLegalizeTargets {
		out = append(out, solver.PseudoNet{PUID: puID, Target: target[idx], Weight: p.macroLegalizationWeight})
	}
	return out
}

func capDisplacement(pi *placement.Info, sys *solver.System, axis wirelength.Axis, x []float64, cap float64) {
	for i, puID := range sys.IndexPU {
		pu := pi.PUs[puID]
		cur := pu.X
		if axis == wirelength.AxisY {
			cur = pu.Y
		}
		delta := x[i] - cur
		if delta > cap {
			x[i] = cur + cap
		} else if delta < -cap {
			x[i] = cur - cap
		}
	}
}
