package packer

import (
	"math"
	"sort"

	"github.com/fabricplace/amfplacer/pkg/design"
	"github.com/fabricplace/amfplacer/pkg/device"
	"github.com/fabricplace/amfplacer/pkg/placement"
)

// enumerateCandidates returns up to opts.MaxCandidateSitesPerPU
// compatible sites within a Manhattan radius of
// NeighborRadius*(1+CongestionWeight*congestion), ordered nearest-first.
// expansions multiplies the radius by (1 + expansions*SearchExpansionStep)
// on top of that, the re-query a PU that has exhausted its candidate list
// issues.
func (pk *Packer) enumerateCandidates(pu *placement.PU, expansions int) []string {
	cellType := cellTypeOfPU(pk.PI, pu)
	if cellType == "" {
		return nil
	}
	congestion := pk.PI.Bins.BinAt(pu.X, pu.Y).OverfullRatio()
	radius := pk.opts.NeighborRadius * (1 + pk.opts.CongestionWeight*congestion)
	radius *= 1 + float64(expansions)*pk.opts.SearchExpansionStep

	type cand struct {
		id   string
		dist float64
	}
	var cands []cand
	for id, s := range pk.PI.Device.Sites {
		if !pk.PI.Device.IsCompatible(s.Type, cellType) {
			continue
		}
		dist := math.Abs(s.X-pu.X) + math.Abs(s.Y-pu.Y)
		if dist > radius {
			continue
		}
		cands = append(cands, cand{id, dist})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})
	if len(cands) > pk.opts.MaxCandidateSitesPerPU {
		cands = cands[:pk.opts.MaxCandidateSitesPerPU]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.id
	}
	return out
}

// cost scores a PU's bid for a site: Manhattan displacement, plus a
// congestion-weighted penalty for the target bin's overfull ratio, plus
// (when withTiming) a centroid-distance proxy for each touched net's
// HPWL contribution, scaled by the net's timing enhancement.
func (pk *Packer) cost(puID, siteID string, withTiming bool) float64 {
	pu := pk.PI.PUs[puID]
	site := pk.PI.Device.Sites[siteID]

	displacement := math.Abs(site.X-pu.X) + math.Abs(site.Y-pu.Y)
	congestion := pk.PI.Bins.BinAt(site.X, site.Y).OverfullRatio()
	c := displacement + pk.opts.CongestionWeight*congestion

	if withTiming {
		c += pk.hpwlProxy(pu, site)
	}
	return c
}

// hpwlProxy approximates a candidate site's marginal HPWL contribution as
// the sum, over every net touching pu, of the Manhattan distance from the
// candidate site to that net's other-pin centroid, weighted by the net's
// timing enhancement — cheap compared to a full B2B recomputation per
// candidate, and sufficient to bias the auction toward critical nets.
func (pk *Packer) hpwlProxy(pu *placement.PU, site *device.Site) float64 {
	var total float64
	seen := map[string]bool{}
	pu.ForEachCell(pk.PI.Design, func(cellID string, _, _ float64) {
		c, ok := pk.PI.Design.Cells[cellID]
		if !ok {
			return
		}
		for _, pinID := range c.PinIDs {
			pin, ok := pk.PI.Design.Pins[pinID]
			if !ok || pin.NetID == "" || seen[pin.NetID] {
				continue
			}
			seen[pin.NetID] = true
			net, ok := pk.PI.Design.Nets[pin.NetID]
			if !ok {
				continue
			}
			cx, cy, n := pk.netCentroidExcluding(net, pu)
			if n == 0 {
				continue
			}
			total += net.OverallTimingEnhancement * (math.Abs(cx-site.X) + math.Abs(cy-site.Y))
		}
	})
	return total
}

func (pk *Packer) netCentroidExcluding(net *design.Net, pu *placement.PU) (float64, float64, int) {
	var sx, sy float64
	var n int
	consider := func(pinID string) {
		pin, ok := pk.PI.Design.Pins[pinID]
		if !ok {
			return
		}
		otherPU, ok := pk.PI.PUOf(pin.CellID)
		if !ok || otherPU.ID == pu.ID {
			return
		}
		x, y, ok := pk.PI.PinLocation(pinID)
		if !ok {
			return
		}
		sx += x
		sy += y
		n++
	}
	if net.DriverPinID != "" {
		consider(net.DriverPinID)
	}
	for _, s := range net.SinkPinIDs {
		consider(s)
	}
	if n == 0 {
		return 0, 0, 0
	}
	return sx / float64(n), sy / float64(n), n
}

// fallbackToLegalArea places a PU that could not be packed at the
// nearest legal area centroid for its type, per the spec's failure
// semantics ("left at its last legal area centroid").
func (pk *Packer) fallbackToLegalArea(puID string) {
	pu, ok := pk.PI.PUs[puID]
	if !ok || pu.IsFixed {
		return
	}
	cellType := cellTypeOfPU(pk.PI, pu)
	fx, fy := pk.PI.LegalizeXY(pu.X, pu.Y, cellType)
	pu.SetLocation(fx, fy)
}
