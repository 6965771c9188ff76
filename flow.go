package eonsim

import (
	"fmt"
	"strings"
)

// Flow is a client request between two nodes, with a rate (Mbps), a holding time and a class of service
type Flow struct {
	id       int64
	src      int
	dst      int
	rate     int
	duration float64
	cos      int
}

// CreateFlow is a constructor.  Arguments that cannot describe a flow are a caller bug and panic
func CreateFlow(id int64, src, dst, rate int, duration float64, cos int) *Flow {
	if id < 0 || src < 0 || dst < 0 || rate < 1 || duration < 0 || cos < 0 {
		panic(fmt.Errorf("invalid flow id=%d src=%d dst=%d rate=%d duration=%f cos=%d",
			id, src, dst, rate, duration, cos))
	}
	flow := new(Flow)
	flow.id = id
	flow.src = src
	flow.dst = dst
	flow.rate = rate
	flow.duration = duration
	flow.cos = cos
	return flow
}

func (flow *Flow) ID() int64 {
	return flow.id
}

func (flow *Flow) Src() int {
	return flow.src
}

func (flow *Flow) Dst() int {
	return flow.dst
}

func (flow *Flow) Rate() int {
	return flow.rate
}

// SetRate changes the requested rate.  A rate already charged to a Path stays charged
// at the value it had when the Path was committed
func (flow *Flow) SetRate(rate int) {
	if rate < 1 {
		panic(fmt.Errorf("flow %d rate %d must be positive", flow.id, rate))
	}
	flow.rate = rate
}

func (flow *Flow) Duration() float64 {
	return flow.duration
}

func (flow *Flow) CoS() int {
	return flow.cos
}

func (flow *Flow) String() string {
	return fmt.Sprintf("%d: %d->%d rate: %d duration: %g cos: %d",
		flow.id, flow.src, flow.dst, flow.rate, flow.duration, flow.cos)
}

// Path is the chain of lightpaths a mapped flow rides, together with the rate that was charged on them
type Path struct {
	lightpaths []*Lightpath
	rate       int
}

func createPath(lightpaths []*Lightpath, rate int) *Path {
	path := new(Path)
	path.lightpaths = make([]*Lightpath, len(lightpaths))
	copy(path.lightpaths, lightpaths)
	path.rate = rate
	return path
}

// Lightpaths returns a copy of the chain
func (path *Path) Lightpaths() []*Lightpath {
	rtn := make([]*Lightpath, len(path.lightpaths))
	copy(rtn, path.lightpaths)
	return rtn
}

// Hops is the number of lightpaths in the chain
func (path *Path) Hops() int {
	return len(path.lightpaths)
}

// Rate is the rate charged on every lightpath of the chain
func (path *Path) Rate() int {
	return path.rate
}

// Uses reports whether lightpath id is part of the chain
func (path *Path) Uses(id int64) bool {
	for _, lp := range path.lightpaths {
		if lp.id == id {
			return true
		}
	}
	return false
}

func (path *Path) String() string {
	ids := []string{}
	for _, lp := range path.lightpaths {
		ids = append(ids, fmt.Sprintf("%d", lp.id))
	}
	return strings.Join(ids, ",")
}

// checkContinuity is the chain test: each lightpath ends where the next starts, and the chain
// starts at the flow's source and ends at its destination
func checkContinuity(flow *Flow, lightpaths []*Lightpath) bool {
	if len(lightpaths) == 0 {
		return false
	}
	if lightpaths[0].src != flow.src || lightpaths[len(lightpaths)-1].dst != flow.dst {
		return false
	}
	for idx := 0; idx < len(lightpaths)-1; idx++ {
		if lightpaths[idx].dst != lightpaths[idx+1].src {
			return false
		}
	}
	return true
}
