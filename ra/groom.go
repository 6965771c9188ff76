package ra

import (
	"sort"

	"github.com/iti/eonsim"
)

// grooming packs flows onto lightpaths already in place before it lights new ones.
// An arriving flow goes, in order of preference, onto
//   - one established lightpath from its source to its destination,
//   - a chain of two established lightpaths through some intermediate node,
//   - a new lightpath, chosen the way ksp-dam chooses it.
//
// When a flow departs, flows riding two-lightpath chains move onto a direct lightpath if one has room.
type grooming struct {
	kspDistanceAdaptive
}

func createGrooming(params Params) eonsim.Strategy {
	return &grooming{kspDistanceAdaptive: kspDistanceAdaptive{base: base{params: params}}}
}

func (gr *grooming) OnFlowArrival(flow *eonsim.Flow) {
	gr.physicalRejects = 0
	if gr.groomDirect(flow) || gr.groomTwoHop(flow) || gr.route(flow) {
		return
	}
	gr.block(flow)
}

func (gr *grooming) groomDirect(flow *eonsim.Flow) bool {
	vt := gr.cp.VirtTopo()
	for _, lp := range vt.AvailableLightpaths(flow.Src(), flow.Dst(), flow.Rate()) {
		if gr.cp.AcceptFlow(flow.ID(), []*eonsim.Lightpath{lp}) {
			return true
		}
	}
	return false
}

func (gr *grooming) groomTwoHop(flow *eonsim.Flow) bool {
	vt := gr.cp.VirtTopo()
	for _, first := range vt.Lightpaths() {
		if first.Src() != flow.Src() || first.Dst() == flow.Dst() || first.Residual() < flow.Rate() {
			continue
		}
		for _, second := range vt.AvailableLightpaths(first.Dst(), flow.Dst(), flow.Rate()) {
			if gr.cp.AcceptFlow(flow.ID(), []*eonsim.Lightpath{first, second}) {
				return true
			}
		}
	}
	return false
}

func (gr *grooming) OnFlowDeparture(id int64) {
	mapped := gr.cp.MappedFlows()
	ids := make([]int64, 0, len(mapped))
	for flowID, path := range mapped {
		if flowID != id && path.Hops() > 1 {
			ids = append(ids, flowID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	vt := gr.cp.VirtTopo()
	for _, flowID := range ids {
		flow := gr.cp.Flow(flowID)
		for _, lp := range vt.AvailableLightpaths(flow.Src(), flow.Dst(), flow.Rate()) {
			if gr.cp.RerouteFlow(flowID, []*eonsim.Lightpath{lp}) {
				break
			}
		}
	}
}
