package eonsim

// virt-topo.go holds the lightpaths established over the physical topology.  A lightpath
// is committed on every link it crosses or on none of them.

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/iti/eonsim/internal/logging"
)

// Grid distinguishes fixed-grid (wavelength) from elastic (flexible slot) networks
type Grid int

const (
	FixedGrid Grid = iota
	ElasticGrid
)

var gridToStr map[Grid]string = map[Grid]string{FixedGrid: "fixed", ElasticGrid: "elastic"}

func (g Grid) String() string {
	return gridToStr[g]
}

// gridFromStr accepts the names used in topology files
func gridFromStr(name string) (Grid, bool) {
	switch strings.ToLower(name) {
	case "fixed", "wdm", "wavelength":
		return FixedGrid, true
	case "elastic", "eon", "flex", "":
		return ElasticGrid, true
	}
	return ElasticGrid, false
}

// SpectrumParams carries the spectrum part of a candidate lightpath.  For a fixed-grid
// lightpath FirstSlot == LastSlot is the wavelength and Modulation is ignored
type SpectrumParams struct {
	FirstSlot  int
	LastSlot   int
	Modulation Modulation
}

// Lightpath is an optical circuit: a chain of links with the same slot range reserved on each
type Lightpath struct {
	id         int64
	kind       Grid
	src        int
	dst        int
	links      []int
	firstSlot  int
	lastSlot   int
	modulation Modulation
	capacity   int // Mbps
	used       int // Mbps charged by groomed flows
	flows      int // number of flows groomed onto it
}

func (lp *Lightpath) ID() int64 {
	return lp.id
}

func (lp *Lightpath) Kind() Grid {
	return lp.kind
}

func (lp *Lightpath) Src() int {
	return lp.src
}

func (lp *Lightpath) Dst() int {
	return lp.dst
}

// Links returns a copy of the link ids, in the order they are crossed
func (lp *Lightpath) Links() []int {
	rtn := make([]int, len(lp.links))
	copy(rtn, lp.links)
	return rtn
}

func (lp *Lightpath) FirstSlot() int {
	return lp.firstSlot
}

func (lp *Lightpath) LastSlot() int {
	return lp.lastSlot
}

// Wavelength is the fixed-grid reading of the slot range
func (lp *Lightpath) Wavelength() int {
	return lp.firstSlot
}

func (lp *Lightpath) NumSlots() int {
	return lp.lastSlot - lp.firstSlot + 1
}

func (lp *Lightpath) Modulation() Modulation {
	return lp.modulation
}

func (lp *Lightpath) Capacity() int {
	return lp.capacity
}

func (lp *Lightpath) Used() int {
	return lp.used
}

func (lp *Lightpath) Residual() int {
	return lp.capacity - lp.used
}

// FlowCount is the number of flows groomed onto the lightpath
func (lp *Lightpath) FlowCount() int {
	return lp.flows
}

func (lp *Lightpath) String() string {
	if lp.kind == FixedGrid {
		return fmt.Sprintf("lp %d: %d->%d links %v wavelength %d", lp.id, lp.src, lp.dst, lp.links, lp.firstSlot)
	}
	return fmt.Sprintf("lp %d: %d->%d links %v slots [%d,%d] %s", lp.id, lp.src, lp.dst, lp.links,
		lp.firstSlot, lp.lastSlot, lp.modulation)
}

// VirtualTopology owns the established lightpaths
type VirtualTopology struct {
	pt             *PhysicalTopology
	lightpaths     map[int64]*Lightpath
	nxtLightpathID int64
	logger         *slog.Logger
}

// CreateVirtualTopology is a constructor
func CreateVirtualTopology(pt *PhysicalTopology) *VirtualTopology {
	vt := new(VirtualTopology)
	vt.pt = pt
	vt.lightpaths = make(map[int64]*Lightpath)
	vt.nxtLightpathID = 0
	vt.logger = logging.Noop()
	return vt
}

// SetLogger replaces the discarding default logger
func (vt *VirtualTopology) SetLogger(logger *slog.Logger) {
	vt.logger = logger
}

// CreateLightpath commits a candidate on every link it names, or on none of them.
// It returns the id of the new lightpath, or -1 when any link, slot range, or endpoint port
// cannot take it
func (vt *VirtualTopology) CreateLightpath(candidate *Lightpath) int64 {
	if candidate == nil {
		panic(fmt.Errorf("nil candidate lightpath"))
	}

	if !vt.pt.canCreatePhysicalLightpath(candidate) {
		return -1
	}

	vt.nxtLightpathID += 1
	lp := new(Lightpath)
	*lp = *candidate
	lp.id = vt.nxtLightpathID
	lp.links = candidate.Links()
	lp.used = 0
	lp.flows = 0

	vt.pt.createPhysicalLightpath(lp)
	vt.lightpaths[lp.id] = lp

	vt.logger.Debug("lightpath created", "lightpath", lp.id, "links", lp.links,
		"first", lp.firstSlot, "last", lp.lastSlot)
	return lp.id
}

// DeallocateLightpath releases the reservation of lightpath id on every link whether or not
// flows are still groomed onto it.  Strategies use it to unwind a candidate they could not use
func (vt *VirtualTopology) DeallocateLightpath(id int64) bool {
	lp, present := vt.lightpaths[id]
	if !present {
		return false
	}
	if lp.flows > 0 {
		vt.logger.Warn("deallocating lightpath that still carries flows", "lightpath", id, "flows", lp.flows)
	}
	vt.pt.removePhysicalLightpath(lp)
	delete(vt.lightpaths, id)
	return true
}

// RemoveLightpath tears down lightpath id if no flow is groomed onto it
func (vt *VirtualTopology) RemoveLightpath(id int64) bool {
	lp, present := vt.lightpaths[id]
	if !present || lp.flows > 0 {
		return false
	}
	vt.pt.removePhysicalLightpath(lp)
	delete(vt.lightpaths, id)

	vt.logger.Debug("lightpath removed", "lightpath", id)
	return true
}

// Lightpath returns the established lightpath with the given id, or nil
func (vt *VirtualTopology) Lightpath(id int64) *Lightpath {
	return vt.lightpaths[id]
}

// Lightpaths lists the established lightpaths in id order
func (vt *VirtualTopology) Lightpaths() []*Lightpath {
	lps := make([]*Lightpath, 0, len(vt.lightpaths))
	for _, lp := range vt.lightpaths {
		lps = append(lps, lp)
	}
	sort.Slice(lps, func(i, j int) bool { return lps[i].id < lps[j].id })
	return lps
}

// NumLightpaths is the number of established lightpaths
func (vt *VirtualTopology) NumLightpaths() int {
	return len(vt.lightpaths)
}

// IsLightpathIdle reports whether lightpath id exists and carries no flow
func (vt *VirtualTopology) IsLightpathIdle(id int64) bool {
	lp, present := vt.lightpaths[id]
	return present && lp.flows == 0
}

// AvailableLightpaths returns the lightpaths from src to dst with at least rate of residual
// capacity, least loaded (largest residual) first, ties by id
func (vt *VirtualTopology) AvailableLightpaths(src, dst, rate int) []*Lightpath {
	lps := []*Lightpath{}
	for _, lp := range vt.lightpaths {
		if lp.src == src && lp.dst == dst && lp.Residual() >= rate {
			lps = append(lps, lp)
		}
	}
	sort.Slice(lps, func(i, j int) bool {
		if lps[i].Residual() != lps[j].Residual() {
			return lps[i].Residual() > lps[j].Residual()
		}
		return lps[i].id < lps[j].id
	})
	return lps
}
