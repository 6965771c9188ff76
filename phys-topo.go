package eonsim

// phys-topo.go holds the physical network: optical cross-connect nodes with their grooming ports,
// and fiber links each carrying a spectrum ledger.  Links are directed; a bidirectional fiber is
// two links.

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/iti/eonsim/internal/logging"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Node is an optical cross-connect.  Each lightpath consumes a grooming output port at its
// source node and a grooming input port at its destination node
type Node struct {
	id       int
	groomIn  int
	groomOut int
	freeIn   int
	freeOut  int
}

// createNode is a constructor.  A port count of zero means the node does not bound grooming
func createNode(id, groomIn, groomOut int) *Node {
	if groomIn == 0 {
		groomIn = math.MaxInt32
	}
	if groomOut == 0 {
		groomOut = math.MaxInt32
	}
	node := new(Node)
	node.id = id
	node.groomIn = groomIn
	node.groomOut = groomOut
	node.freeIn = groomIn
	node.freeOut = groomOut
	return node
}

func (node *Node) ID() int {
	return node.id
}

func (node *Node) GroomingInputPorts() int {
	return node.groomIn
}

func (node *Node) GroomingOutputPorts() int {
	return node.groomOut
}

func (node *Node) FreeGroomingInputPorts() int {
	return node.freeIn
}

func (node *Node) FreeGroomingOutputPorts() int {
	return node.freeOut
}

// Link is a directed fiber between two nodes
type Link struct {
	id        int
	src       int
	dst       int
	delay     float64 // propagation delay, seconds
	weight    float64 // routing weight, km
	ledger    *SpectrumLedger
	flowCount int
	bwInUse   int // Mbps
}

func (link *Link) ID() int {
	return link.id
}

func (link *Link) Src() int {
	return link.src
}

func (link *Link) Dst() int {
	return link.dst
}

// Delay is the propagation delay of the link (seconds)
func (link *Link) Delay() float64 {
	return link.delay
}

func (link *Link) Weight() float64 {
	return link.weight
}

// Ledger gives read access to the link's spectrum.  Its mutators are unexported
func (link *Link) Ledger() *SpectrumLedger {
	return link.ledger
}

// FlowCount counts the flows whose lightpaths cross the link
func (link *Link) FlowCount() int {
	return link.flowCount
}

// BandwidthInUse is the sum of the rates of those flows
func (link *Link) BandwidthInUse() int {
	return link.bwInUse
}

func (link *Link) String() string {
	return fmt.Sprintf("link %d: %d->%d weight %g", link.id, link.src, link.dst, link.weight)
}

// intPair is a (src,dst) key
type intPair struct {
	i, j int
}

// PhysicalTopology is the node and link inventory of one simulation run.  It is built
// fresh for every run, so no state leaks from one run into the next
type PhysicalTopology struct {
	name        string
	grid        Grid
	slotSize    float64 // GHz
	wvlCapacity int     // Mbps carried by one fixed-grid wavelength
	nodes       []*Node
	links       []*Link
	linkByEnds  map[intPair]*Link

	connGraph *simple.WeightedDirectedGraph
	cachedSP  map[int]path.Shortest

	logger *slog.Logger
}

// CreatePhysicalTopology builds the topology a validated TopoCfg describes
func CreatePhysicalTopology(tc *TopoCfg) (*PhysicalTopology, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}

	grid, _ := gridFromStr(tc.Grid)

	pt := new(PhysicalTopology)
	pt.name = tc.Name
	pt.grid = grid
	pt.slotSize = tc.SlotSize
	pt.wvlCapacity = tc.WavelengthCapacity
	pt.nodes = make([]*Node, len(tc.Nodes))
	pt.links = []*Link{}
	pt.linkByEnds = make(map[intPair]*Link)
	pt.logger = logging.Noop()

	for _, nd := range tc.Nodes {
		pt.nodes[nd.ID] = createNode(nd.ID, nd.GroomingInputPorts, nd.GroomingOutputPorts)
	}

	guard := tc.Guardband
	if grid == FixedGrid {
		guard = 0
	}

	for _, ld := range tc.Links {
		pt.addLink(ld.Src, ld.Dst, ld.Delay, ld.Weight, tc.linkSlots(ld), guard)
	}
	if tc.Bidirectional {
		for _, ld := range tc.Links {
			if _, present := pt.linkByEnds[intPair{i: ld.Dst, j: ld.Src}]; present {
				continue
			}
			pt.addLink(ld.Dst, ld.Src, ld.Delay, ld.Weight, tc.linkSlots(ld), guard)
		}
	}

	pt.buildConnGraph()
	return pt, nil
}

// addLink appends a link, giving it the next link id
func (pt *PhysicalTopology) addLink(src, dst int, delay, weight float64, slots, guard int) {
	link := new(Link)
	link.id = len(pt.links)
	link.src = src
	link.dst = dst
	link.delay = delay
	link.weight = weight
	link.ledger = CreateSpectrumLedger(slots, guard)
	pt.links = append(pt.links, link)
	pt.linkByEnds[intPair{i: src, j: dst}] = link
}

// SetLogger replaces the discarding default logger
func (pt *PhysicalTopology) SetLogger(logger *slog.Logger) {
	pt.logger = logger
}

func (pt *PhysicalTopology) Name() string {
	return pt.name
}

func (pt *PhysicalTopology) Grid() Grid {
	return pt.grid
}

// SlotSize is the width (GHz) of one elastic slot
func (pt *PhysicalTopology) SlotSize() float64 {
	return pt.slotSize
}

// WavelengthCapacity is the rate (Mbps) of one fixed-grid lightpath
func (pt *PhysicalTopology) WavelengthCapacity() int {
	return pt.wvlCapacity
}

func (pt *PhysicalTopology) NumNodes() int {
	return len(pt.nodes)
}

func (pt *PhysicalTopology) NumLinks() int {
	return len(pt.links)
}

// Node returns node id, which must exist
func (pt *PhysicalTopology) Node(id int) *Node {
	if id < 0 || id >= len(pt.nodes) {
		panic(fmt.Errorf("node id %d outside [0,%d)", id, len(pt.nodes)))
	}
	return pt.nodes[id]
}

// Link returns link id, which must exist
func (pt *PhysicalTopology) Link(id int) *Link {
	if id < 0 || id >= len(pt.links) {
		panic(fmt.Errorf("link id %d outside [0,%d)", id, len(pt.links)))
	}
	return pt.links[id]
}

// Links returns the links in id order
func (pt *PhysicalTopology) Links() []*Link {
	rtn := make([]*Link, len(pt.links))
	copy(rtn, pt.links)
	return rtn
}

// LinkBetween returns the link from src to dst, or nil
func (pt *PhysicalTopology) LinkBetween(src, dst int) *Link {
	return pt.linkByEnds[intPair{i: src, j: dst}]
}

func (pt *PhysicalTopology) HasLink(src, dst int) bool {
	_, present := pt.linkByEnds[intPair{i: src, j: dst}]
	return present
}

// CheckLinkPath reports whether the link ids form a chain from src to dst crossing no link twice
func (pt *PhysicalTopology) CheckLinkPath(src, dst int, links []int) bool {
	if len(links) == 0 {
		return false
	}
	seen := make(map[int]bool)
	here := src
	for _, linkID := range links {
		if linkID < 0 || linkID >= len(pt.links) || seen[linkID] {
			return false
		}
		seen[linkID] = true
		link := pt.links[linkID]
		if link.src != here {
			return false
		}
		here = link.dst
	}
	return here == dst
}

// PathLength sums the routing weights (km) of the links
func (pt *PhysicalTopology) PathLength(links []int) float64 {
	length := 0.0
	for _, linkID := range links {
		length += pt.Link(linkID).weight
	}
	return length
}

// AllFreeGroomingInputPorts sums the free grooming input ports over all nodes
func (pt *PhysicalTopology) AllFreeGroomingInputPorts() int {
	total := 0
	for _, node := range pt.nodes {
		if node.groomIn == math.MaxInt32 {
			continue
		}
		total += node.freeIn
	}
	return total
}

// lightpathCapacity is the rate (Mbps) a lightpath of the given shape carries
func (pt *PhysicalTopology) lightpathCapacity(kind Grid, sp SpectrumParams) int {
	if kind == FixedGrid {
		return pt.wvlCapacity
	}
	return (sp.LastSlot - sp.FirstSlot + 1) * sp.Modulation.SlotCapacity(pt.slotSize)
}

// canCreatePhysicalLightpath checks every condition a commit needs, mutating nothing
func (pt *PhysicalTopology) canCreatePhysicalLightpath(lp *Lightpath) bool {
	for _, linkID := range lp.links {
		if linkID < 0 || linkID >= len(pt.links) {
			panic(fmt.Errorf("lightpath names unknown link %d", linkID))
		}
	}
	if lp.firstSlot < 0 || lp.firstSlot > lp.lastSlot {
		panic(fmt.Errorf("lightpath slot range [%d,%d] is malformed", lp.firstSlot, lp.lastSlot))
	}
	if lp.kind != pt.grid {
		pt.logger.Warn("lightpath grid does not match topology", "lightpath", lp.kind.String(), "topology", pt.grid.String())
		return false
	}
	if !pt.CheckLinkPath(lp.src, lp.dst, lp.links) {
		return false
	}
	if pt.nodes[lp.src].freeOut < 1 || pt.nodes[lp.dst].freeIn < 1 {
		return false
	}
	for _, linkID := range lp.links {
		ledger := pt.links[linkID].ledger
		if lp.lastSlot >= ledger.NumSlots() {
			return false
		}
		if !ledger.CanReserve(lp.firstSlot, lp.lastSlot) {
			return false
		}
	}
	return true
}

// createPhysicalLightpath reserves the lightpath's range on every link and takes its ports.
// canCreatePhysicalLightpath must have passed
func (pt *PhysicalTopology) createPhysicalLightpath(lp *Lightpath) {
	for _, linkID := range lp.links {
		pt.links[linkID].ledger.reserve(lp.id, lp.firstSlot, lp.lastSlot)
	}
	pt.nodes[lp.src].freeOut -= 1
	pt.nodes[lp.dst].freeIn -= 1
}

// removePhysicalLightpath releases the lightpath's range and guards on every link and returns its ports
func (pt *PhysicalTopology) removePhysicalLightpath(lp *Lightpath) {
	for _, linkID := range lp.links {
		ledger := pt.links[linkID].ledger
		begin, end := ledger.FindOccupant(lp.id)
		if begin == -1 {
			pt.logger.Warn("lightpath missing from link ledger", "lightpath", lp.id, "link", linkID)
			continue
		}
		ledger.release(begin, end)
	}
	pt.nodes[lp.src].freeOut += 1
	pt.nodes[lp.dst].freeIn += 1
}

// CanAddFlow reports whether the lightpath occupies its range on each of its links
// and has residual capacity for the flow's rate
func (pt *PhysicalTopology) CanAddFlow(flow *Flow, lp *Lightpath) bool {
	return pt.canAddRate(flow.rate, lp)
}

func (pt *PhysicalTopology) canAddRate(rate int, lp *Lightpath) bool {
	if lp == nil || lp.id <= 0 {
		return false
	}
	for _, linkID := range lp.links {
		begin, end := pt.Link(linkID).ledger.FindOccupant(lp.id)
		if begin != lp.firstSlot || end != lp.lastSlot {
			return false
		}
	}
	return lp.Residual() >= rate
}

// addFlow charges rate to the lightpath and to the counters of every link it crosses
func (pt *PhysicalTopology) addFlow(rate int, lp *Lightpath) {
	lp.used += rate
	lp.flows += 1
	for _, linkID := range lp.links {
		link := pt.links[linkID]
		link.flowCount += 1
		link.bwInUse += rate
	}
}

// removeFlow undoes addFlow
func (pt *PhysicalTopology) removeFlow(rate int, lp *Lightpath) {
	if lp.flows < 1 || lp.used < rate {
		panic(fmt.Errorf("lightpath %d carries %d flows, %d Mbps; cannot remove %d Mbps", lp.id, lp.flows, lp.used, rate))
	}
	lp.used -= rate
	lp.flows -= 1
	for _, linkID := range lp.links {
		link := pt.links[linkID]
		link.flowCount -= 1
		link.bwInUse -= rate
	}
}
