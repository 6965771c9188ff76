package eonsim

import (
	"math"
)

// AlwaysFeasible accepts every candidate
type AlwaysFeasible struct{}

func (af AlwaysFeasible) Feasibility(pt *PhysicalTopology, lp *Lightpath) float64 {
	return 0.0
}

// ReachOracle scores a candidate by the reach its modulation leaves beyond the length of its
// links (km).  Fixed-grid lightpaths are scored against FixedReach
type ReachOracle struct {
	FixedReach float64
}

func (ro ReachOracle) Feasibility(pt *PhysicalTopology, lp *Lightpath) float64 {
	reach := lp.modulation.Reach()
	if lp.kind == FixedGrid {
		reach = ro.FixedReach
	}
	return reach - pt.PathLength(lp.links)
}

// SNROracle estimates the SNR (dB) at the end of a lightpath from the number of amplified spans
// it crosses, each span adding the same noise, and scores the candidate by the margin over the
// SNR its modulation needs
type SNROracle struct {
	SpanLength float64 // km between amplifiers
	SpanSNR    float64 // dB after a single span
}

// CreateSNROracle is a constructor with 80 km spans and 30 dB over one span
func CreateSNROracle() SNROracle {
	return SNROracle{SpanLength: 80.0, SpanSNR: 30.0}
}

// Spans is the number of amplified spans on links, at least one
func (so SNROracle) Spans(pt *PhysicalTopology, links []int) int {
	spans := int(math.Ceil(pt.PathLength(links) / so.SpanLength))
	return max(spans, 1)
}

// EstimateSNR is the SNR (dB) expected at the end of links
func (so SNROracle) EstimateSNR(pt *PhysicalTopology, links []int) float64 {
	return so.SpanSNR - 10.0*math.Log10(float64(so.Spans(pt, links)))
}

func (so SNROracle) Feasibility(pt *PhysicalTopology, lp *Lightpath) float64 {
	mod := lp.modulation
	if lp.kind == FixedGrid {
		mod = QPSK
	}
	return so.EstimateSNR(pt, lp.links) - mod.SNRThreshold()
}

// CreateOracle returns the oracle an experiment names, nil when it names none
func CreateOracle(name string) PhysicalOracle {
	switch name {
	case "reach":
		return ReachOracle{FixedReach: QPSK.Reach()}
	case "snr":
		return CreateSNROracle()
	case "always":
		return AlwaysFeasible{}
	}
	return nil
}
