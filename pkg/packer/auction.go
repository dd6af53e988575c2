package packer

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/device"
)

// bid is one PU's tentative claim on a site for the current round.
type bid struct {
	puID   string
	siteID string
	cost   float64
}

// collectBids issues one bid per pending PU: its current best remaining
// candidate site.
func (pk *Packer) collectBids(pending []string, withTiming bool) []bid {
	bids := make([]bid, 0, len(pending))
	for _, puID := range pending {
		idx := pk.puCandidateIdx[puID]
		cands := pk.puCandidates[puID]
		if idx >= len(cands) {
			continue
		}
		siteID := cands[idx]
		bids = append(bids, bid{puID: puID, siteID: siteID, cost: pk.cost(puID, siteID, withTiming)})
	}
	return bids
}

// runRound dispatches one stripe-parallel fork/join round: each worker
// owns a fixed, disjoint subset of sites (assigned once in
// partitionSites) and resolves every bid aimed at its own sites, so no
// two workers ever contend for the same site's lock in the same round.
func (pk *Packer) runRound(ctx context.Context, bids []bid) ([]string, error) {
	bySite := map[string][]bid{}
	for _, b := range bids {
		bySite[b.siteID] = append(bySite[b.siteID], b)
	}

	var g errgroup.Group
	evictedCh := make(chan []string, len(pk.siteStripes))
	for _, stripe := range pk.siteStripes {
		stripe := stripe
		g.Go(func() error {
			var evicted []string
			for _, siteID := range stripe {
				siteBids := bySite[siteID]
				if len(siteBids) == 0 {
					continue
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				evicted = append(evicted, pk.resolveSite(siteID, siteBids)...)
			}
			evictedCh <- evicted
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		close(evictedCh)
		return nil, err
	}
	close(evictedCh)

	var evicted []string
	for e := range evictedCh {
		evicted = append(evicted, e...)
	}
	return evicted, nil
}

// resolveSite merges a site's existing occupants with its new bids, then
// greedily keeps the lowest-cost entries that respect every capacity and
// control-set constraint, evicting the rest. Called only by the worker
// that owns siteID's stripe, but still taken under the site's own lock so
// a later cross-stripe helper (e.g. LUT pairing) can safely read it
// concurrently.
func (pk *Packer) resolveSite(siteID string, bids []bid) []string {
	pk.siteLocks[siteID].Lock()
	defer pk.siteLocks[siteID].Unlock()

	site := pk.PI.Device.Sites[siteID]
	type entry struct {
		puID string
		cost float64
	}

	var existing []string
	if v, ok := pk.siteOccupants.Load(siteID); ok {
		existing = v.([]string)
	}
	pool := make([]entry, 0, len(bids)+len(existing))
	for _, existingID := range existing {
		pool = append(pool, entry{existingID, pk.cost(existingID, siteID, false)})
	}
	for _, b := range bids {
		pool = append(pool, entry{b.puID, b.cost})
	}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].cost < pool[j].cost })

	accepted := make([]string, 0, len(pool))
	seen := map[string]bool{}
	lutCount, puCount := 0, 0
	consumed := map[string]int{}
	var controlSet design.ControlSet
	haveControlSet := false
	if v, ok := pk.siteControlSet.Load(siteID); ok {
		controlSet, haveControlSet = v.(design.ControlSet), true
	}

	for _, e := range pool {
		if seen[e.puID] {
			continue
		}
		seen[e.puID] = true
		pu := pk.PI.PUs[e.puID]

		if cs, ok := controlSetOfPU(pk.PI, pu); ok {
			if haveControlSet && !controlSet.CompatibleWith(cs) {
				continue
			}
		}
		if puCount >= pk.opts.MaxPUsPerSite {
			continue
		}
		demand := map[string]int{}
		isLUT := false
		pu.ForEachCell(pk.PI.Design, func(cellID string, _, _ float64) {
			c, ok := pk.PI.Design.Cells[cellID]
			if !ok {
				return
			}
			rt := pk.PI.ResourceTypeOf(c.Type)
			demand[rt]++
			if isLUTType(c.Type) {
				isLUT = true
			}
		})
		if isLUT && lutCount+1 > pk.opts.MaxLUTsPerSite {
			continue
		}
		overCapacity := false
		for rt, amt := range demand {
			if site.Capacity[rt] > 0 && consumed[rt]+amt > site.Capacity[rt] {
				overCapacity = true
				break
			}
		}
		if overCapacity {
			continue
		}

		for rt, amt := range demand {
			consumed[rt] += amt
		}
		if isLUT {
			lutCount++
		}
		puCount++
		accepted = append(accepted, e.puID)
		if cs, ok := controlSetOfPU(pk.PI, pu); ok && !haveControlSet {
			controlSet, haveControlSet = cs, true
		}
	}

	var evicted []string
	for _, e := range pool {
		accept := false
		for _, a := range accepted {
			if a == e.puID {
				accept = true
				break
			}
		}
		if !accept {
			evicted = append(evicted, e.puID)
		}
	}

	pk.siteOccupants.Store(siteID, accepted)
	if haveControlSet {
		pk.siteControlSet.Store(siteID, controlSet)
	}
	for _, puID := range accepted {
		pk.puSite.Store(puID, siteID)
	}
	for _, puID := range evicted {
		pk.puSite.Delete(puID)
	}
	return evicted
}

// advance moves every evicted PU to the next candidate in its list,
// expanding its search radius once its list is exhausted (up to 3
// expansions, per SearchExpansionStep) before giving up and marking it
// unpacked.
func (pk *Packer) advance(evicted []string) []string {
	var pending []string
	for _, puID := range evicted {
		pk.puCandidateIdx[puID]++
		if pk.puCandidateIdx[puID] < len(pk.puCandidates[puID]) {
			pending = append(pending, puID)
			continue
		}

		pk.puExpansions[puID]++
		if pk.puExpansions[puID] > 3 {
			pk.unpacked[puID] = true
			pk.fallbackToLegalArea(puID)
			continue
		}
		cands := pk.enumerateCandidates(pk.PI.PUs[puID], pk.puExpansions[puID])
		if len(cands) == 0 {
			pk.unpacked[puID] = true
			pk.fallbackToLegalArea(puID)
			continue
		}
		pk.puCandidates[puID] = cands
		pk.puCandidateIdx[puID] = 0
		pending = append(pending, puID)
	}
	sortStrings(pending)
	return pending
}

// lutPairing groups same-site LUT cells into basic-element pairs when the
// union of their inputs fits the site's input capacity and their
// fraction of shared input nets meets NetShareThreshold.
func (pk *Packer) lutPairing() {
	pk.siteOccupants.Range(func(k, v any) bool {
		siteID, occupants := k.(string), v.([]string)
		site := pk.PI.Device.Sites[siteID]
		luts := pk.lutCellsOf(occupants)
		paired := map[string]bool{}
		for i := 0; i < len(luts); i++ {
			if paired[luts[i]] {
				continue
			}
			for j := i + 1; j < len(luts); j++ {
				if paired[luts[j]] {
					continue
				}
				if pk.canPairLUTs(luts[i], luts[j], site) {
					pk.pairs[luts[i]] = luts[j]
					pk.pairs[luts[j]] = luts[i]
					paired[luts[i]] = true
					paired[luts[j]] = true
					break
				}
			}
		}
		return true
	})
}

func (pk *Packer) lutCellsOf(puIDs []string) []string {
	var luts []string
	for _, puID := range puIDs {
		pu := pk.PI.PUs[puID]
		pu.ForEachCell(pk.PI.Design, func(cellID string, _, _ float64) {
			if c, ok := pk.PI.Design.Cells[cellID]; ok && isLUTType(c.Type) {
				luts = append(luts, cellID)
			}
		})
	}
	sortStrings(luts)
	return luts
}

func (pk *Packer) canPairLUTs(a, b string, site *device.Site) bool {
	ca, ok := pk.PI.Design.Cells[a]
	if !ok {
		return false
	}
	cb, ok := pk.PI.Design.Cells[b]
	if !ok {
		return false
	}
	union := ca.InputPinCount(pk.PI.Design) + cb.InputPinCount(pk.PI.Design)
	bNets := inputNets(pk.PI.Design, cb)
	for net := range inputNets(pk.PI.Design, ca) {
		if bNets[net] {
			union-- // a net feeding both LUTs occupies one shared input
		}
	}
	if site.InputCapacity > 0 && union > site.InputCapacity {
		return false
	}
	if netShare(pk.PI.Design, ca, cb) < pk.opts.NetShareThreshold {
		return false
	}
	return true
}

func netShare(d *design.Design, a, b *design.Cell) float64 {
	aNets := inputNets(d, a)
	bNets := inputNets(d, b)
	if len(aNets) == 0 || len(bNets) == 0 {
		return 0
	}
	shared := 0
	for net := range aNets {
		if bNets[net] {
			shared++
		}
	}
	denom := len(aNets)
	if len(bNets) > denom {
		denom = len(bNets)
	}
	return float64(shared) / float64(denom)
}

func inputNets(d *design.Design, c *design.Cell) map[string]bool {
	out := map[string]bool{}
	for _, pinID := range c.PinIDs {
		p, ok := d.Pins[pinID]
		if !ok || p.Direction != design.Input || p.NetID == "" {
			continue
		}
		out[p.NetID] = true
	}
	return out
}
