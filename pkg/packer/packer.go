// Package packer implements the parallel site packer: the final
// legalization stage that snaps globally placed PUs onto concrete device
// sites under per-site capacity, LUT/FF compatibility, and control-set
// constraints, resolving contention with a stripe-parallel auction.
package packer

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/placement"
	"github.com/fabricplace/amfplacer/pkg/wirelength"
)

// Options configures one Packer run. ValidateAndSetDefaults fills in the
// schedule's published defaults and is idempotent.
type Options struct {
	NeighborRadius         float64
	MaxCandidateSitesPerPU int
	CongestionWeight       float64
	NetShareThreshold      float64
	MaxPUsPerSite          int
	MaxLUTsPerSite         int
	SearchExpansionStep    float64
	TieBreakPolicy         string

	Jobs   int
	Logger *log.Logger

	validated bool
}

func (o *Options) ValidateAndSetDefaults() {
	if o.validated {
		return
	}
	if o.NeighborRadius <= 0 {
		o.NeighborRadius = 3
	}
	if o.MaxCandidateSitesPerPU <= 0 {
		o.MaxCandidateSitesPerPU = 10
	}
	if o.CongestionWeight <= 0 {
		o.CongestionWeight = 0.25
	}
	if o.NetShareThreshold <= 0 {
		o.NetShareThreshold = 0.5
	}
	if o.MaxPUsPerSite <= 0 {
		o.MaxPUsPerSite = 6
	}
	if o.MaxLUTsPerSite <= 0 {
		o.MaxLUTsPerSite = 10
	}
	if o.SearchExpansionStep <= 0 {
		o.SearchExpansionStep = 0.1
	}
	if o.TieBreakPolicy == "" {
		o.TieBreakPolicy = "first"
	}
	if o.Jobs <= 0 {
		o.Jobs = 1
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
}

// Packer owns the running assignment state of one packing pass: which
// site each PU is tentatively or finally bound to, and each site's
// occupants, control set, and LUT-pairing bookkeeping.
type Packer struct {
	PI   *placement.Info
	opts Options

	siteStripes [][]string
	siteLocks   map[string]*sync.Mutex

	// siteOccupants ([]string), siteControlSet (design.ControlSet), and
	// puSite (string) are all written concurrently by different stripe
	// workers within one round (each to its own site's entries, but into
	// one shared map), so they are sync.Map rather than plain maps.
	siteOccupants  sync.Map
	siteControlSet sync.Map
	puSite         sync.Map

	puCandidates   map[string][]string
	puCandidateIdx map[string]int
	puExpansions   map[string]int

	unpacked map[string]bool // PU id -> left unpacked after maxIter
	pairs    map[string]string
}

// New returns a Packer over pi with opts applied.
func New(pi *placement.Info, opts Options) *Packer {
	opts.ValidateAndSetDefaults()
	pk := &Packer{
		PI:             pi,
		opts:           opts,
		siteLocks:      map[string]*sync.Mutex{},
		puCandidates:   map[string][]string{},
		puCandidateIdx: map[string]int{},
		puExpansions:   map[string]int{},
		unpacked:       map[string]bool{},
		pairs:          map[string]string{},
	}
	pk.partitionSites()
	return pk
}

// partitionSites splits every device site into opts.Jobs disjoint
// stripes, in stable site-ID order, so each worker owns a fixed subset of
// sites for the lifetime of the run and never needs a cross-worker lock
// to commit an assignment within its own stripe.
func (pk *Packer) partitionSites() {
	ids := make([]string, 0, len(pk.PI.Device.Sites))
	for id := range pk.PI.Device.Sites {
		ids = append(ids, id)
		pk.siteLocks[id] = &sync.Mutex{}
	}
	sortStrings(ids)

	jobs := pk.opts.Jobs
	if jobs > len(ids) && len(ids) > 0 {
		jobs = len(ids)
	}
	if jobs <= 0 {
		jobs = 1
	}
	pk.siteStripes = make([][]string, jobs)
	for i, id := range ids {
		pk.siteStripes[i%jobs] = append(pk.siteStripes[i%jobs], id)
	}
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

// PackCLBs runs the auction to completion: up to maxIter rounds of
// bid/resolve/re-queue, followed by LUT pairing. withTiming folds each
// net's timing enhancement into the HPWL term of a site's bid cost, so a
// critical net's endpoints are packed closer together preferentially.
func (pk *Packer) PackCLBs(ctx context.Context, maxIter int, withTiming bool) error {
	if maxIter <= 0 {
		maxIter = 30
	}

	pending := pk.seedCandidates()
	for iter := 0; iter < maxIter && len(pending) > 0; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		bids := pk.collectBids(pending, withTiming)
		evicted, err := pk.runRound(ctx, bids)
		if err != nil {
			return err
		}
		pending = pk.advance(evicted)
	}

	for _, id := range pending {
		pk.unpacked[id] = true
		pk.fallbackToLegalArea(id)
	}
	if len(pending) > 0 {
		pk.opts.Logger.Warn("PUs left unpacked after maxIter rounds", "count", len(pending), "maxIter", maxIter)
	}

	pk.lutPairing()
	return nil
}

// seedCandidates builds the initial candidate list for every movable,
// not-yet-packed PU and returns the ids that got at least one candidate.
func (pk *Packer) seedCandidates() []string {
	var pending []string
	for id, pu := range pk.PI.PUs {
		if pu.IsPacked || pu.IsFixed {
			continue
		}
		cands := pk.enumerateCandidates(pu, 0)
		if len(cands) == 0 {
			pk.unpacked[id] = true
			continue
		}
		pk.puCandidates[id] = cands
		pk.puCandidateIdx[id] = 0
		pending = append(pending, id)
	}
	sortStrings(pending)
	return pending
}

// SetPULocationToPackedSite snaps every assigned PU's location to its
// packed site's coordinate. Unpacked PUs are left wherever fallback
// legalization put them.
func (pk *Packer) SetPULocationToPackedSite() {
	pk.puSite.Range(func(k, v any) bool {
		puID, siteID := k.(string), v.(string)
		pu, ok := pk.PI.PUs[puID]
		if !ok {
			return true
		}
		site, ok := pk.PI.Device.Sites[siteID]
		if !ok {
			return true
		}
		pu.SetLocation(site.X, site.Y)
		pu.IsPacked = true
		return true
	})
}

// UpdatePackedMacro re-anchors every packed macro PU at its assigned
// site (rigid member offsets are preserved automatically since they are
// relative to the PU's single location) and optionally recomputes total
// HPWL. When applyToMacros is false, macro PUs are skipped entirely and
// their current locations are left as they are.
func (pk *Packer) UpdatePackedMacro(applyToMacros, recomputeHPWL bool) float64 {
	if applyToMacros {
		pk.puSite.Range(func(k, v any) bool {
			puID, siteID := k.(string), v.(string)
			pu, ok := pk.PI.PUs[puID]
			if !ok || pu.Kind != placement.MacroKind {
				return true
			}
			if site, ok := pk.PI.Device.Sites[siteID]; ok {
				pu.SetLocation(site.X, site.Y)
				pu.IsPacked = true
			}
			return true
		})
	}
	if !recomputeHPWL {
		return 0
	}
	return wirelength.TotalHPWL(pk.PI, 1.0)
}

// Unpacked returns the ids of every PU that could not be packed within
// maxIter rounds (failure semantics: reported, left at its legal-area
// centroid, packing of the rest continues).
func (pk *Packer) Unpacked() []string {
	out := make([]string, 0, len(pk.unpacked))
	for id := range pk.unpacked {
		out = append(out, id)
	}
	sortStrings(out)
	return out
}

// Pairs returns the LUT-pairing result as cellID -> paired-cellID,
// symmetric (both directions present).
func (pk *Packer) Pairs() map[string]string {
	return pk.pairs
}

// SiteOf returns the site a PU was packed into, if any.
func (pk *Packer) SiteOf(puID string) (string, bool) {
	v, ok := pk.puSite.Load(puID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func cellTypeOfPU(pi *placement.Info, pu *placement.PU) string {
	switch pu.Kind {
	case placement.UnpackedCellKind:
		if c, ok := pi.Design.Cells[pu.CellID]; ok {
			return c.Type
		}
	case placement.MacroKind:
		if m, ok := pi.Design.Macros[pu.MacroID]; ok {
			if c, ok := pi.Design.Cells[m.AnchorCellID]; ok {
				return c.Type
			}
		}
	}
	return ""
}

func controlSetOfPU(pi *placement.Info, pu *placement.PU) (design.ControlSet, bool) {
	var cs design.ControlSet
	found := false
	pu.ForEachCell(pi.Design, func(cellID string, _, _ float64) {
		c, ok := pi.Design.Cells[cellID]
		if !ok || !c.IsRegister {
			return
		}
		if !found {
			cs = c.ControlSet
			found = true
		}
	})
	return cs, found
}

func isLUTType(cellType string) bool {
	return strings.HasPrefix(strings.ToUpper(cellType), "LUT")
}
