package ra

// ksp.go holds the strategies that try the k shortest routes of a flow in order of length.
// They differ in how they pick the modulation and the block of slots on each route.

import (
	"github.com/iti/eonsim"
	"github.com/iti/rngstream"
)

// kspFirstFit uses the configured modulation and the lowest common block of each route
type kspFirstFit struct {
	base
}

func createKSPFirstFit(params Params) eonsim.Strategy {
	return &kspFirstFit{base: base{params: params}}
}

func (kf *kspFirstFit) OnFlowArrival(flow *eonsim.Flow) {
	kf.physicalRejects = 0
	pt := kf.cp.PhysTopo()
	mod := kf.params.Modulation
	slots := kf.slotsFor(flow, mod)
	for _, links := range kf.routeLinks(pt.KShortestPaths(flow.Src(), flow.Dst(), kf.params.K)) {
		if kf.tryOffsets(flow, links, commonOffsets(pt, links, slots), slots, mod) {
			return
		}
	}
	kf.block(flow)
}

// kspDistanceAdaptive picks, on each route, the densest modulation whose reach covers the route
type kspDistanceAdaptive struct {
	base
}

func createKSPDistanceAdaptive(params Params) eonsim.Strategy {
	return &kspDistanceAdaptive{base: base{params: params}}
}

func (kd *kspDistanceAdaptive) OnFlowArrival(flow *eonsim.Flow) {
	kd.physicalRejects = 0
	if !kd.route(flow) {
		kd.block(flow)
	}
}

func (kd *kspDistanceAdaptive) route(flow *eonsim.Flow) bool {
	pt := kd.cp.PhysTopo()
	for _, links := range kd.routeLinks(pt.KShortestPaths(flow.Src(), flow.Dst(), kd.params.K)) {
		mod, reachable := eonsim.BestModulation(pt.PathLength(links))
		if !reachable {
			continue
		}
		slots := kd.slotsFor(flow, mod)
		if kd.tryOffsets(flow, links, commonOffsets(pt, links, slots), slots, mod) {
			return true
		}
	}
	return false
}

// kspRandomFit uses the configured modulation and tries the common blocks of each route in random order
type kspRandomFit struct {
	base
	rngstrm *rngstream.RngStream
}

func createKSPRandomFit(params Params) eonsim.Strategy {
	kr := &kspRandomFit{base: base{params: params}}
	kr.rngstrm = eonsim.CreateSeededStream("ksp-rf", params.Seed)
	return kr
}

func (kr *kspRandomFit) OnFlowArrival(flow *eonsim.Flow) {
	kr.physicalRejects = 0
	pt := kr.cp.PhysTopo()
	mod := kr.params.Modulation
	slots := kr.slotsFor(flow, mod)
	for _, links := range kr.routeLinks(pt.KShortestPaths(flow.Src(), flow.Dst(), kr.params.K)) {
		offsets := commonOffsets(pt, links, slots)
		kr.shuffle(offsets)
		if kr.tryOffsets(flow, links, offsets, slots, mod) {
			return
		}
	}
	kr.block(flow)
}

// shuffle permutes the offsets in place, Fisher-Yates
func (kr *kspRandomFit) shuffle(offsets []int) {
	for idx := len(offsets) - 1; idx > 0; idx-- {
		jdx := int(kr.rngstrm.RandU01() * float64(idx+1))
		if jdx > idx {
			jdx = idx
		}
		offsets[idx], offsets[jdx] = offsets[jdx], offsets[idx]
	}
}

// kspBestModulation starts, on each route, from the modulation the rate calls for and steps
// down to sparser ones until a block of slots fits and the estimated SNR of the lightpath
// clears the modulation's threshold
type kspBestModulation struct {
	base
}

func createKSPBestModulation(params Params) eonsim.Strategy {
	return &kspBestModulation{base: base{params: params, oracle: eonsim.CreateSNROracle()}}
}

func (kb *kspBestModulation) OnFlowArrival(flow *eonsim.Flow) {
	kb.physicalRejects = 0
	pt := kb.cp.PhysTopo()
	highest, lowest := startModulation(flow.Rate(), pt.SlotSize()), eonsim.BPSK
	if pt.Grid() == eonsim.FixedGrid {
		highest, lowest = kb.params.Modulation, kb.params.Modulation
	}
	for _, links := range kb.routeLinks(pt.KShortestPaths(flow.Src(), flow.Dst(), kb.params.K)) {
		for mod := highest; mod >= lowest; mod-- {
			slots := kb.slotsFor(flow, mod)
			if kb.tryOffsets(flow, links, commonOffsets(pt, links, slots), slots, mod) {
				return
			}
		}
	}
	kb.block(flow)
}

// startModulation is one step denser than BPSK for every BPSK slot the rate fills, at most 64QAM
func startModulation(rate int, slotSize float64) eonsim.Modulation {
	steps := rate / eonsim.BPSK.SlotCapacity(slotSize)
	if steps > int(eonsim.QAM64) {
		return eonsim.QAM64
	}
	return eonsim.Modulation(steps)
}
