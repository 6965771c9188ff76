package eonsim

// Strategy is a routing and spectrum assignment algorithm.  It is told about every arrival and
// departure and answers each arrival by calling AcceptFlow, BlockFlow or BlockFlowPhysical on
// the control plane
type Strategy interface {
	OnSimulationStart(cp ControlPlaneForRA)
	OnFlowArrival(flow *Flow)
	OnFlowDeparture(id int64)
}

// ControlPlaneForRA is what a strategy may do to the network.  Every mutation goes through here
// or through the VirtualTopology, which validate before committing
type ControlPlaneForRA interface {
	AcceptFlow(id int64, lightpaths []*Lightpath) bool
	BlockFlow(id int64) bool
	BlockFlowPhysical(id int64) bool
	RerouteFlow(id int64, lightpaths []*Lightpath) bool

	CreateCandidateLightpath(kind Grid, src, dst int, links []int, sp SpectrumParams) *Lightpath
	CreateCandidateWDMLightpath(src, dst int, links []int, wavelength int) *Lightpath
	CreateCandidateEONLightpath(src, dst int, links []int, firstSlot, lastSlot int, mod Modulation) *Lightpath
	CheckFeasibility(lp *Lightpath) float64

	Flow(id int64) *Flow
	Path(id int64) *Path
	MappedFlows() map[int64]*Path
	LightpathFlowCount(id int64) int
	PhysTopo() *PhysicalTopology
	VirtTopo() *VirtualTopology
	Now() float64
}

// AdmissionSink receives the outcome of every admission decision
type AdmissionSink interface {
	FlowAccepted(now float64, flow *Flow, lightpaths []*Lightpath, newLightpaths int)
	FlowBlocked(now float64, flow *Flow, reason BlockReason)
	FlowRerouted(now float64, flow *Flow, lightpaths []*Lightpath)
}

// MultiSink hands each notification to all of its members, in order
type MultiSink []AdmissionSink

func (ms MultiSink) FlowAccepted(now float64, flow *Flow, lightpaths []*Lightpath, newLightpaths int) {
	for _, sink := range ms {
		sink.FlowAccepted(now, flow, lightpaths, newLightpaths)
	}
}

func (ms MultiSink) FlowBlocked(now float64, flow *Flow, reason BlockReason) {
	for _, sink := range ms {
		sink.FlowBlocked(now, flow, reason)
	}
}

func (ms MultiSink) FlowRerouted(now float64, flow *Flow, lightpaths []*Lightpath) {
	for _, sink := range ms {
		sink.FlowRerouted(now, flow, lightpaths)
	}
}

// nullSink drops every notification
type nullSink struct{}

func (ns nullSink) FlowAccepted(now float64, flow *Flow, lightpaths []*Lightpath, newLightpaths int) {}
func (ns nullSink) FlowBlocked(now float64, flow *Flow, reason BlockReason)                         {}
func (ns nullSink) FlowRerouted(now float64, flow *Flow, lightpaths []*Lightpath)                   {}

// PhysicalOracle scores a candidate lightpath against the physical layer.  A score of zero
// or more means the lightpath is feasible
type PhysicalOracle interface {
	Feasibility(pt *PhysicalTopology, lp *Lightpath) float64
}
