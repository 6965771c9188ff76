package ra

import (
	"github.com/iti/eonsim"
)

// shortestPathFirstFit routes every flow on its shortest path and takes the lowest block of
// slots (the lowest wavelength on a fixed grid) free on every link of it
type shortestPathFirstFit struct {
	base
}

func createShortestPathFirstFit(params Params) eonsim.Strategy {
	return &shortestPathFirstFit{base: base{params: params}}
}

func (sp *shortestPathFirstFit) OnFlowArrival(flow *eonsim.Flow) {
	sp.physicalRejects = 0
	if !sp.route(flow) {
		sp.block(flow)
	}
}

// route carries the flow on a new lightpath along its shortest path, reporting success
func (sp *shortestPathFirstFit) route(flow *eonsim.Flow) bool {
	pt := sp.cp.PhysTopo()
	links := pt.LinksOnPath(pt.ShortestPath(flow.Src(), flow.Dst()))
	if links == nil {
		return false
	}
	mod := sp.params.Modulation
	slots := sp.slotsFor(flow, mod)
	return sp.tryOffsets(flow, links, commonOffsets(pt, links, slots), slots, mod)
}
