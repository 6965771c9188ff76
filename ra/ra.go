// Package ra holds routing and spectrum assignment strategies for the eonsim control plane.
// Strategies are chosen by name; each answers every flow arrival with AcceptFlow, BlockFlow
// or BlockFlowPhysical.
package ra

import (
	"fmt"
	"sort"

	"github.com/iti/eonsim"
)

// Params tunes the strategies
type Params struct {
	K          int               // number of candidate routes for the k-shortest path strategies
	Modulation eonsim.Modulation // format of strategies that do not adapt it
	Seed       int               // advances the random stream of randomized strategies
}

// ParamsFromExp reads Params from an experiment description
func ParamsFromExp(xc *eonsim.ExpCfg) (Params, error) {
	params := Params{K: xc.K, Modulation: eonsim.QPSK, Seed: xc.Seed}
	if params.K == 0 {
		params.K = 3
	}
	if len(xc.Modulation) > 0 {
		mod, err := eonsim.ParseModulation(xc.Modulation)
		if err != nil {
			return params, err
		}
		params.Modulation = mod
	}
	return params, nil
}

type strategyFactory func(Params) eonsim.Strategy

var registry map[string]strategyFactory = map[string]strategyFactory{
	"sp-ff":   createShortestPathFirstFit,
	"rwa-ff":  createShortestPathFirstFit,
	"rsa-ff":  createShortestPathFirstFit,
	"ksp-ff":  createKSPFirstFit,
	"ksp-dam": createKSPDistanceAdaptive,
	"ksp-rf":  createKSPRandomFit,
	"ksp-bm":  createKSPBestModulation,
	"groom":   createGrooming,
}

// New returns a fresh strategy with the given name
func New(name string, params Params) (eonsim.Strategy, error) {
	factory, present := registry[name]
	if !present {
		return nil, fmt.Errorf("unknown strategy %q, known strategies are %v", name, Names())
	}
	if params.K < 1 {
		params.K = 1
	}
	return factory(params), nil
}

// Names lists the known strategy names
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// base holds what every strategy keeps: the control plane and its parameters.
// oracle, when set, is a physical layer check of the strategy's own applied on top of the
// control plane's.  physicalRejects counts the candidates of the current arrival that had
// the resources but failed a physical layer check
type base struct {
	cp              eonsim.ControlPlaneForRA
	params          Params
	oracle          eonsim.PhysicalOracle
	physicalRejects int
}

func (b *base) OnSimulationStart(cp eonsim.ControlPlaneForRA) {
	b.cp = cp
}

func (b *base) OnFlowDeparture(id int64) {}

// slotsFor is the number of slots a flow needs under mod; one wavelength on a fixed grid
func (b *base) slotsFor(flow *eonsim.Flow, mod eonsim.Modulation) int {
	pt := b.cp.PhysTopo()
	if pt.Grid() == eonsim.FixedGrid {
		return 1
	}
	return mod.RequiredSlots(flow.Rate(), pt.SlotSize())
}

// routeLinks maps node sequences onto link sequences, dropping any that do not map
func (b *base) routeLinks(routes [][]int) [][]int {
	pt := b.cp.PhysTopo()
	rtn := [][]int{}
	for _, nodes := range routes {
		if links := pt.LinksOnPath(nodes); links != nil {
			rtn = append(rtn, links)
		}
	}
	return rtn
}

// commonOffsets returns, lowest first, the first slots at which a block of k slots can be
// reserved on every one of the links
func commonOffsets(pt *eonsim.PhysicalTopology, links []int, k int) []int {
	if len(links) == 0 {
		return []int{}
	}
	first := pt.Link(links[0]).Ledger()
	if k < 1 || k > first.NumSlots() {
		return []int{}
	}
	offsets := []int{}
	for _, offset := range first.AllFittingOffsets(k) {
		fits := true
		for _, linkID := range links[1:] {
			ledger := pt.Link(linkID).Ledger()
			if offset+k > ledger.NumSlots() || !ledger.CanReserve(offset, offset+k-1) {
				fits = false
				break
			}
		}
		if fits {
			offsets = append(offsets, offset)
		}
	}
	return offsets
}

// establish tries to carry the flow on a new lightpath over links at [first, first+slots-1].
// A candidate a physical layer check rejects is never reserved; a lightpath the flow cannot be
// accepted on is torn down again
func (b *base) establish(flow *eonsim.Flow, links []int, first, slots int, mod eonsim.Modulation) bool {
	pt := b.cp.PhysTopo()
	vt := b.cp.VirtTopo()

	candidate := b.cp.CreateCandidateLightpath(pt.Grid(), flow.Src(), flow.Dst(), links,
		eonsim.SpectrumParams{FirstSlot: first, LastSlot: first + slots - 1, Modulation: mod})
	if b.cp.CheckFeasibility(candidate) < 0.0 || (b.oracle != nil && b.oracle.Feasibility(pt, candidate) < 0.0) {
		b.physicalRejects += 1
		return false
	}

	id := vt.CreateLightpath(candidate)
	if id < 0 {
		return false
	}
	if b.cp.AcceptFlow(flow.ID(), []*eonsim.Lightpath{vt.Lightpath(id)}) {
		return true
	}
	vt.DeallocateLightpath(id)
	return false
}

// block refuses the flow, blaming the physical layer when it turned down a candidate that
// had the resources
func (b *base) block(flow *eonsim.Flow) {
	if b.physicalRejects > 0 {
		b.cp.BlockFlowPhysical(flow.ID())
		return
	}
	b.cp.BlockFlow(flow.ID())
}

// tryOffsets establishes a lightpath at the first offset of the list that works
func (b *base) tryOffsets(flow *eonsim.Flow, links []int, offsets []int, slots int, mod eonsim.Modulation) bool {
	for _, offset := range offsets {
		if b.establish(flow, links, offset, slots, mod) {
			return true
		}
	}
	return false
}
