package eonsim

// nats-sink.go publishes every admission decision as a json record on a NATS subject, so that
// a dashboard or a collector in another process can follow a run live.

import (
	"encoding/json"
	"log/slog"

	"github.com/iti/eonsim/internal/logging"
	"github.com/nats-io/nats.go"
)

// publisher is the part of a NATS connection the sink uses
type publisher interface {
	Publish(subject string, data []byte) error
}

// DecisionRecord is the wire form of one decision
type DecisionRecord struct {
	RunID      string  `json:"runid"`
	Load       float64 `json:"load"`
	Time       float64 `json:"time"`
	Op         string  `json:"op"`
	Reason     string  `json:"reason,omitempty"`
	FlowID     int64   `json:"flowid"`
	Src        int     `json:"src"`
	Dst        int     `json:"dst"`
	Rate       int     `json:"rate"`
	CoS        int     `json:"cos"`
	Lightpaths []int64 `json:"lightpaths,omitempty"`
	NewLps     int     `json:"newlightpaths,omitempty"`
}

// NatsSink is an AdmissionSink publishing DecisionRecords
type NatsSink struct {
	nc        *nats.Conn
	pub       publisher
	subject   string
	runID     string
	load      float64
	failures  int
	published int
	logger    *slog.Logger
}

// CreateNatsSink connects to the NATS server at url
func CreateNatsSink(url, subject string) (*NatsSink, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	ns := createNatsSinkWith(nc, subject)
	ns.nc = nc
	return ns, nil
}

func createNatsSinkWith(pub publisher, subject string) *NatsSink {
	ns := new(NatsSink)
	ns.pub = pub
	ns.subject = subject
	ns.logger = logging.Noop()
	return ns
}

// SetRun labels the records that follow with the identity and load of a run
func (ns *NatsSink) SetRun(runID string, load float64) {
	ns.runID = runID
	ns.load = load
}

// SetLogger replaces the discarding default logger
func (ns *NatsSink) SetLogger(logger *slog.Logger) {
	ns.logger = logger
}

// Published counts records handed to the connection
func (ns *NatsSink) Published() int {
	return ns.published
}

// Failures counts records that could not be published
func (ns *NatsSink) Failures() int {
	return ns.failures
}

func (ns *NatsSink) publish(rec *DecisionRecord) {
	rec.RunID = ns.runID
	rec.Load = ns.load
	data, err := json.Marshal(rec)
	if err == nil {
		err = ns.pub.Publish(ns.subject, data)
	}
	if err != nil {
		ns.failures += 1
		ns.logger.Warn("decision not published", "flow", rec.FlowID, "error", err)
		return
	}
	ns.published += 1
}

func lightpathIDs(lightpaths []*Lightpath) []int64 {
	ids := make([]int64, 0, len(lightpaths))
	for _, lp := range lightpaths {
		ids = append(ids, lp.id)
	}
	return ids
}

func (ns *NatsSink) FlowAccepted(now float64, flow *Flow, lightpaths []*Lightpath, newLightpaths int) {
	ns.publish(&DecisionRecord{Time: now, Op: "accept", FlowID: flow.id, Src: flow.src, Dst: flow.dst,
		Rate: flow.rate, CoS: flow.cos, Lightpaths: lightpathIDs(lightpaths), NewLps: newLightpaths})
}

func (ns *NatsSink) FlowBlocked(now float64, flow *Flow, reason BlockReason) {
	ns.publish(&DecisionRecord{Time: now, Op: "block", Reason: reason.String(), FlowID: flow.id, Src: flow.src,
		Dst: flow.dst, Rate: flow.rate, CoS: flow.cos})
}

func (ns *NatsSink) FlowRerouted(now float64, flow *Flow, lightpaths []*Lightpath) {
	ns.publish(&DecisionRecord{Time: now, Op: "reroute", FlowID: flow.id, Src: flow.src, Dst: flow.dst,
		Rate: flow.rate, CoS: flow.cos, Lightpaths: lightpathIDs(lightpaths)})
}

// Close drains and closes the NATS connection
func (ns *NatsSink) Close() {
	if ns.nc != nil {
		if err := ns.nc.Drain(); err != nil {
			ns.logger.Warn("nats drain failed", "error", err)
		}
		ns.nc = nil
	}
}
