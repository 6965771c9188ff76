package eonsim

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/google/uuid"
	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

type TraceRecordType int

const (
	AdmissionType TraceRecordType = iota
	LightpathType
)

var trtToStr map[TraceRecordType]string = map[TraceRecordType]string{AdmissionType: "admission", LightpathType: "lightpath"}

type TraceInst struct {
	TraceTime string
	TraceType string
	TraceStr  string
}

// TraceManager gathers a record of every admission decision of one run.  It is an AdmissionSink,
// and an inactive TraceManager ignores everything it is told
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// identity of the run, unique across runs and processes
	RunID string `json:"runid" yaml:"runid"`

	// offered load of the run
	Load float64 `json:"load" yaml:"load"`

	// trace records of each flow, by flow id
	Traces map[int64][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active
func CreateTraceManager(expName string, load float64, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.RunID = uuid.NewString()
	tm.Load = load
	tm.Traces = make(map[int64][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddTrace stores a trace record against a flow
func (tm *TraceManager) AddTrace(vrt vrtime.Time, flowID int64, trace TraceInst) {
	if !tm.InUse {
		return
	}
	tm.Traces[flowID] = append(tm.Traces[flowID], trace)
}

// NumTraces counts the stored records
func (tm *TraceManager) NumTraces() int {
	cnt := 0
	for _, traces := range tm.Traces {
		cnt += len(traces)
	}
	return cnt
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) (bool, error) {
	if !tm.InUse {
		return false, nil
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	switch pathExt {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(*tm)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
	default:
		return false, fmt.Errorf("cannot tell trace serialization of %s from its extension", filename)
	}
	if merr != nil {
		return false, merr
	}

	if werr := os.WriteFile(filename, bytes, 0o644); werr != nil {
		return false, werr
	}
	return true, nil
}

// AdmissionTrace records one decision about a flow
type AdmissionTrace struct {
	Time          float64 // time in float64
	Ticks         int64   // ticks variable of time
	Priority      int64   // priority field of time-stamp
	FlowID        int64
	Src           int
	Dst           int
	Rate          int
	CoS           int
	Op            string  // "accept", "block", "reroute"
	Reason        string  // "resources" or "physical" for a block
	Lightpaths    []int64 // chain the flow rides, empty when blocked
	NewLightpaths int     // lightpaths the flow was the first to use
}

func (atr *AdmissionTrace) TraceType() TraceRecordType {
	return AdmissionType
}

func (atr *AdmissionTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*atr)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// addAdmissionTrace creates a record of the decision and stores it
func (tm *TraceManager) addAdmissionTrace(now float64, flow *Flow, op, reason string, lightpaths []*Lightpath,
	newLightpaths int) {
	if !tm.InUse {
		return
	}
	vrt := vrtime.SecondsToTime(now)

	atr := new(AdmissionTrace)
	atr.Time = vrt.Seconds()
	atr.Ticks = vrt.Ticks()
	atr.Priority = vrt.Pri()
	atr.FlowID = flow.id
	atr.Src = flow.src
	atr.Dst = flow.dst
	atr.Rate = flow.rate
	atr.CoS = flow.cos
	atr.Op = op
	atr.Reason = reason
	atr.Lightpaths = []int64{}
	for _, lp := range lightpaths {
		atr.Lightpaths = append(atr.Lightpaths, lp.id)
	}
	atr.NewLightpaths = newLightpaths

	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	trcInst := TraceInst{TraceTime: traceTime, TraceType: trtToStr[atr.TraceType()], TraceStr: atr.Serialize()}
	tm.AddTrace(vrt, flow.id, trcInst)
}

func (tm *TraceManager) FlowAccepted(now float64, flow *Flow, lightpaths []*Lightpath, newLightpaths int) {
	tm.addAdmissionTrace(now, flow, "accept", "", lightpaths, newLightpaths)
	tm.AddLightpathTrace(now, flow.id, lightpaths)
}

func (tm *TraceManager) FlowBlocked(now float64, flow *Flow, reason BlockReason) {
	tm.addAdmissionTrace(now, flow, "block", reason.String(), nil, 0)
}

func (tm *TraceManager) FlowRerouted(now float64, flow *Flow, lightpaths []*Lightpath) {
	tm.addAdmissionTrace(now, flow, "reroute", "", lightpaths, 0)
}

// LightpathTrace records the spectrum a lightpath holds
type LightpathTrace struct {
	Time        float64
	LightpathID int64
	Src         int
	Dst         int
	Links       []int
	FirstSlot   int
	LastSlot    int
	Modulation  string
	Capacity    int
}

func (ltr *LightpathTrace) TraceType() TraceRecordType {
	return LightpathType
}

func (ltr *LightpathTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*ltr)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddLightpathTrace stores a snapshot of the lightpaths of an accepted flow under that flow's id
func (tm *TraceManager) AddLightpathTrace(now float64, flowID int64, lightpaths []*Lightpath) {
	if !tm.InUse {
		return
	}
	vrt := vrtime.SecondsToTime(now)
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	for _, lp := range lightpaths {
		ltr := &LightpathTrace{Time: vrt.Seconds(), LightpathID: lp.id, Src: lp.src, Dst: lp.dst,
			Links: lp.Links(), FirstSlot: lp.firstSlot, LastSlot: lp.lastSlot,
			Modulation: lp.modulation.String(), Capacity: lp.capacity}
		tm.AddTrace(vrt, flowID, TraceInst{TraceTime: traceTime, TraceType: trtToStr[ltr.TraceType()], TraceStr: ltr.Serialize()})
	}
}
