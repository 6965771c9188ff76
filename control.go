package eonsim

// control.go holds the control plane: the state machine every flow passes through between
// its arrival and its departure, and the only code that charges or releases lightpath capacity.
//
//   Pending --arrival--> Active --AcceptFlow--> Mapped --RerouteFlow--> Mapped
//                          |                      |
//                          |                      +--departure--> (forgotten)
//                          +--BlockFlow---------> Blocked (resources)
//                          +--BlockFlowPhysical-> Blocked (physical layer)
//
// A strategy decides; the control plane validates, commits atomically and notifies the sink.

import (
	"fmt"
	"log/slog"

	"github.com/iti/eonsim/internal/logging"
	"golang.org/x/exp/slices"
)

// FlowState is where a flow is in its lifecycle
type FlowState int

const (
	FlowUnknown FlowState = iota
	FlowPending
	FlowActive
	FlowMapped
	FlowBlocked
)

var fsToStr map[FlowState]string = map[FlowState]string{FlowUnknown: "unknown", FlowPending: "pending",
	FlowActive: "active", FlowMapped: "mapped", FlowBlocked: "blocked"}

func (fs FlowState) String() string {
	return fsToStr[fs]
}

// BlockReason says why a flow was refused: no resources for it, or resources that the
// physical layer would not let it use
type BlockReason int

const (
	BlockedForResources BlockReason = iota
	BlockedByPhysicalLayer
)

var brToStr map[BlockReason]string = map[BlockReason]string{BlockedForResources: "resources",
	BlockedByPhysicalLayer: "physical"}

func (br BlockReason) String() string {
	return brToStr[br]
}

// ControlPlane owns the flow to path mapping of one simulation run
type ControlPlane struct {
	ra     Strategy
	pt     *PhysicalTopology
	vt     *VirtualTopology
	sink   AdmissionSink
	oracle PhysicalOracle
	logger *slog.Logger
	now    float64

	pending     map[int64]*Flow
	activeFlows map[int64]*Flow
	mappedFlows map[int64]*Path
	blocked     map[int64]*Flow
	reasons     map[int64]BlockReason
}

// CreateControlPlane is a constructor.  It hands the new control plane to the strategy
// through OnSimulationStart before returning it
func CreateControlPlane(ra Strategy, pt *PhysicalTopology, vt *VirtualTopology, sink AdmissionSink) *ControlPlane {
	if ra == nil || pt == nil || vt == nil {
		panic(fmt.Errorf("control plane needs a strategy and both topologies"))
	}
	if sink == nil {
		sink = nullSink{}
	}
	cp := new(ControlPlane)
	cp.ra = ra
	cp.pt = pt
	cp.vt = vt
	cp.sink = sink
	cp.oracle = nil
	cp.logger = logging.Noop()
	cp.pending = make(map[int64]*Flow)
	cp.activeFlows = make(map[int64]*Flow)
	cp.mappedFlows = make(map[int64]*Path)
	cp.blocked = make(map[int64]*Flow)
	cp.reasons = make(map[int64]BlockReason)

	ra.OnSimulationStart(cp)
	return cp
}

// SetOracle installs the physical layer oracle CheckFeasibility consults
func (cp *ControlPlane) SetOracle(oracle PhysicalOracle) {
	cp.oracle = oracle
}

// SetLogger replaces the discarding default logger, here and in both topologies
func (cp *ControlPlane) SetLogger(logger *slog.Logger) {
	cp.logger = logger
	cp.pt.SetLogger(logger)
	cp.vt.SetLogger(logger)
}

func (cp *ControlPlane) PhysTopo() *PhysicalTopology {
	return cp.pt
}

func (cp *ControlPlane) VirtTopo() *VirtualTopology {
	return cp.vt
}

// Now is the simulation time of the event being dispatched
func (cp *ControlPlane) Now() float64 {
	return cp.now
}

func (cp *ControlPlane) setTime(now float64) {
	cp.now = now
}

// FlowState reports the lifecycle state of flow id
func (cp *ControlPlane) FlowState(id int64) FlowState {
	if _, present := cp.mappedFlows[id]; present {
		return FlowMapped
	}
	if _, present := cp.activeFlows[id]; present {
		return FlowActive
	}
	if _, present := cp.blocked[id]; present {
		return FlowBlocked
	}
	if _, present := cp.pending[id]; present {
		return FlowPending
	}
	return FlowUnknown
}

// Flow returns the flow with id while it is active, mapped or blocked, otherwise nil
func (cp *ControlPlane) Flow(id int64) *Flow {
	if flow, present := cp.activeFlows[id]; present {
		return flow
	}
	return cp.blocked[id]
}

// Path returns the path a mapped flow rides, or nil
func (cp *ControlPlane) Path(id int64) *Path {
	return cp.mappedFlows[id]
}

// MappedFlows returns a copy of the flow to path mapping
func (cp *ControlPlane) MappedFlows() map[int64]*Path {
	rtn := make(map[int64]*Path, len(cp.mappedFlows))
	for id, path := range cp.mappedFlows {
		rtn[id] = path
	}
	return rtn
}

// NumActiveFlows counts the flows that have arrived and not departed or been blocked
func (cp *ControlPlane) NumActiveFlows() int {
	return len(cp.activeFlows)
}

// LightpathFlowCount is the number of flows groomed onto lightpath id, 0 if it does not exist
func (cp *ControlPlane) LightpathFlowCount(id int64) int {
	lp := cp.vt.Lightpath(id)
	if lp == nil {
		return 0
	}
	return lp.flows
}

// CheckFeasibility asks the oracle about a candidate.  With no oracle every candidate scores zero
func (cp *ControlPlane) CheckFeasibility(lp *Lightpath) float64 {
	if cp.oracle == nil {
		return 0.0
	}
	return cp.oracle.Feasibility(cp.pt, lp)
}

// CreateCandidateLightpath describes a lightpath without reserving anything
func (cp *ControlPlane) CreateCandidateLightpath(kind Grid, src, dst int, links []int, sp SpectrumParams) *Lightpath {
	if kind == FixedGrid && sp.FirstSlot != sp.LastSlot {
		panic(fmt.Errorf("fixed-grid lightpath spans slots [%d,%d]", sp.FirstSlot, sp.LastSlot))
	}
	if sp.FirstSlot < 0 || sp.FirstSlot > sp.LastSlot {
		panic(fmt.Errorf("candidate slot range [%d,%d] is malformed", sp.FirstSlot, sp.LastSlot))
	}
	lp := new(Lightpath)
	lp.id = 0
	lp.kind = kind
	lp.src = src
	lp.dst = dst
	lp.links = make([]int, len(links))
	copy(lp.links, links)
	lp.firstSlot = sp.FirstSlot
	lp.lastSlot = sp.LastSlot
	lp.modulation = sp.Modulation
	lp.capacity = cp.pt.lightpathCapacity(kind, sp)
	return lp
}

// CreateCandidateWDMLightpath describes a fixed-grid lightpath on one wavelength
func (cp *ControlPlane) CreateCandidateWDMLightpath(src, dst int, links []int, wavelength int) *Lightpath {
	return cp.CreateCandidateLightpath(FixedGrid, src, dst, links,
		SpectrumParams{FirstSlot: wavelength, LastSlot: wavelength, Modulation: BPSK})
}

// CreateCandidateEONLightpath describes an elastic lightpath on slots [firstSlot, lastSlot]
func (cp *ControlPlane) CreateCandidateEONLightpath(src, dst int, links []int, firstSlot, lastSlot int,
	mod Modulation) *Lightpath {
	return cp.CreateCandidateLightpath(ElasticGrid, src, dst, links,
		SpectrumParams{FirstSlot: firstSlot, LastSlot: lastSlot, Modulation: mod})
}

// checkDecision panics on arguments no strategy should ever pass
func checkDecision(op string, id int64, lightpaths []*Lightpath) {
	if id < 0 {
		panic(fmt.Errorf("%s: flow id %d is negative", op, id))
	}
	if len(lightpaths) == 0 {
		panic(fmt.Errorf("%s: flow %d given no lightpaths", op, id))
	}
	if slices.Contains(lightpaths, nil) {
		panic(fmt.Errorf("%s: flow %d given a nil lightpath", op, id))
	}
}

// established reports whether every lightpath of the chain is committed in the virtual topology,
// and no lightpath appears twice
func (cp *ControlPlane) established(lightpaths []*Lightpath) bool {
	seen := make(map[int64]bool)
	for _, lp := range lightpaths {
		if seen[lp.id] || cp.vt.Lightpath(lp.id) != lp {
			return false
		}
		seen[lp.id] = true
	}
	return true
}

// commitChain charges rate to every lightpath of the chain, or to none of them
func (cp *ControlPlane) commitChain(rate int, lightpaths []*Lightpath) bool {
	for idx, lp := range lightpaths {
		if !cp.pt.canAddRate(rate, lp) {
			for jdx := idx - 1; jdx >= 0; jdx-- {
				cp.pt.removeFlow(rate, lightpaths[jdx])
			}
			return false
		}
		cp.pt.addFlow(rate, lp)
	}
	return true
}

// releaseChain returns the rate a path charged, leaving its lightpaths in place
func (cp *ControlPlane) releaseChain(path *Path) {
	for _, lp := range path.lightpaths {
		cp.pt.removeFlow(path.rate, lp)
	}
}

// restoreChain charges a released path again.  The capacity it needs was freed by releaseChain
// and nothing else has run in between
func (cp *ControlPlane) restoreChain(path *Path) {
	for _, lp := range path.lightpaths {
		cp.pt.addFlow(path.rate, lp)
	}
}

// tearDownIdle removes every lightpath of the list that no longer carries a flow
func (cp *ControlPlane) tearDownIdle(lightpaths []*Lightpath, keep *Path) {
	for _, lp := range lightpaths {
		if keep != nil && keep.Uses(lp.id) {
			continue
		}
		if cp.vt.IsLightpathIdle(lp.id) {
			cp.vt.RemoveLightpath(lp.id)
		}
	}
}

// AcceptFlow maps active flow id onto the chain of lightpaths, charging its rate to each.
// It returns false, changing nothing, when the flow is not active and unmapped, the chain
// is not continuous from the flow's source to its destination, or some lightpath lacks capacity
func (cp *ControlPlane) AcceptFlow(id int64, lightpaths []*Lightpath) bool {
	checkDecision("AcceptFlow", id, lightpaths)

	flow, active := cp.activeFlows[id]
	if !active {
		return false
	}
	if _, mapped := cp.mappedFlows[id]; mapped {
		return false
	}
	if !checkContinuity(flow, lightpaths) || !cp.established(lightpaths) {
		return false
	}

	newLightpaths := 0
	for _, lp := range lightpaths {
		if lp.flows == 0 {
			newLightpaths += 1
		}
	}

	if !cp.commitChain(flow.rate, lightpaths) {
		return false
	}
	path := createPath(lightpaths, flow.rate)
	cp.mappedFlows[id] = path

	cp.logger.Debug("flow accepted", "time", cp.now, "flow", id, "path", path.String())
	cp.sink.FlowAccepted(cp.now, flow, path.Lightpaths(), newLightpaths)
	return true
}

// BlockFlow refuses active, unmapped flow id for want of resources
func (cp *ControlPlane) BlockFlow(id int64) bool {
	if id < 0 {
		panic(fmt.Errorf("BlockFlow: flow id %d is negative", id))
	}
	return cp.block(id, BlockedForResources)
}

// BlockFlowPhysical refuses active, unmapped flow id because every candidate that had the
// resources failed the physical layer check
func (cp *ControlPlane) BlockFlowPhysical(id int64) bool {
	if id < 0 {
		panic(fmt.Errorf("BlockFlowPhysical: flow id %d is negative", id))
	}
	return cp.block(id, BlockedByPhysicalLayer)
}

func (cp *ControlPlane) block(id int64, reason BlockReason) bool {
	flow, active := cp.activeFlows[id]
	if !active {
		return false
	}
	if _, mapped := cp.mappedFlows[id]; mapped {
		return false
	}
	delete(cp.activeFlows, id)
	cp.blocked[id] = flow
	cp.reasons[id] = reason

	cp.logger.Debug("flow blocked", "time", cp.now, "flow", id, "reason", reason.String())
	cp.sink.FlowBlocked(cp.now, flow, reason)
	return true
}

// BlockReason reports why flow id was blocked, and false when it is not blocked
func (cp *ControlPlane) BlockReason(id int64) (BlockReason, bool) {
	reason, present := cp.reasons[id]
	return reason, present
}

// RerouteFlow moves mapped flow id onto a new chain.  When the new chain cannot be committed
// the flow stays on its old path exactly as it was
func (cp *ControlPlane) RerouteFlow(id int64, lightpaths []*Lightpath) bool {
	checkDecision("RerouteFlow", id, lightpaths)

	oldPath, mapped := cp.mappedFlows[id]
	if !mapped {
		return false
	}
	flow := cp.activeFlows[id]
	if !checkContinuity(flow, lightpaths) || !cp.established(lightpaths) {
		return false
	}

	cp.releaseChain(oldPath)
	if !cp.commitChain(flow.rate, lightpaths) {
		cp.restoreChain(oldPath)
		return false
	}
	newPath := createPath(lightpaths, flow.rate)
	cp.mappedFlows[id] = newPath
	cp.tearDownIdle(oldPath.lightpaths, newPath)

	cp.logger.Debug("flow rerouted", "time", cp.now, "flow", id, "from", oldPath.String(), "to", newPath.String())
	cp.sink.FlowRerouted(cp.now, flow, newPath.Lightpaths())
	return true
}

// markPending records a flow whose arrival has been scheduled
func (cp *ControlPlane) markPending(flow *Flow) {
	cp.pending[flow.id] = flow
}

// newFlow makes an arriving flow active
func (cp *ControlPlane) newFlow(flow *Flow) {
	if state := cp.FlowState(flow.id); state != FlowUnknown && state != FlowPending {
		panic(fmt.Errorf("flow %d arrives while %s", flow.id, state))
	}
	delete(cp.pending, flow.id)
	cp.activeFlows[flow.id] = flow
}

// decided logs when a strategy returned from an arrival without accepting or blocking it
func (cp *ControlPlane) decided(id int64) bool {
	if cp.FlowState(id) != FlowActive {
		return true
	}
	cp.logger.Warn("strategy left flow undecided", "time", cp.now, "flow", id)
	return false
}

// removeFlow forgets a departing flow, releasing the capacity of its path and tearing down
// the lightpaths left idle
func (cp *ControlPlane) removeFlow(id int64) {
	if path, mapped := cp.mappedFlows[id]; mapped {
		cp.releaseChain(path)
		delete(cp.mappedFlows, id)
		cp.tearDownIdle(path.lightpaths, nil)
	}
	delete(cp.activeFlows, id)
	delete(cp.blocked, id)
	delete(cp.reasons, id)
	delete(cp.pending, id)
}
