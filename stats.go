package eonsim

// stats.go gathers admission statistics.  Running counts give the summary of a run (blocking
// probability, bandwidth blocking ratio, transponders); the same events drive prometheus metrics
// so a long load sweep can be watched while it runs.

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// RunSummary is the outcome of one run
type RunSummary struct {
	Load                   float64 `json:"load" yaml:"load"`
	Arrivals               int     `json:"arrivals" yaml:"arrivals"`
	Accepted               int     `json:"accepted" yaml:"accepted"`
	Blocked                int     `json:"blocked" yaml:"blocked"`
	PhysicalBlocked        int     `json:"physicalblocked" yaml:"physicalblocked"`
	Rerouted               int     `json:"rerouted" yaml:"rerouted"`
	BlockingProbability    float64 `json:"blockingprobability" yaml:"blockingprobability"`
	BandwidthBlockingRatio float64 `json:"bandwidthblockingratio" yaml:"bandwidthblockingratio"`
	Transponders           int     `json:"transponders" yaml:"transponders"`
	MeanHops               float64 `json:"meanhops" yaml:"meanhops"`
	MeanUtilization        float64 `json:"meanutilization" yaml:"meanutilization"`
	MeanFragmentation      float64 `json:"meanfragmentation" yaml:"meanfragmentation"`
}

func (rs RunSummary) String() string {
	return fmt.Sprintf("load %g: arrivals %d accepted %d blocked %d (physical %d) BP %.4f BBR %.4f transponders %d hops %.2f",
		rs.Load, rs.Arrivals, rs.Accepted, rs.Blocked, rs.PhysicalBlocked, rs.BlockingProbability,
		rs.BandwidthBlockingRatio, rs.Transponders, rs.MeanHops)
}

// classCounts are the running counts for one class of service
type classCounts struct {
	accepted    int
	blocked     int
	physical    int // blocked by the physical layer, included in blocked
	rerouted    int
	requestedBw int
	blockedBw   int
}

// StatsCollector is an AdmissionSink counting the decisions of one run
type StatsCollector struct {
	load         float64
	byClass      map[int]*classCounts
	transponders int
	hops         int
	vt           *VirtualTopology
	samples      int
	utilSum      float64
	fragSum      float64

	Accepted         *prometheus.CounterVec
	Blocked          *prometheus.CounterVec
	PhysicalBlocked  *prometheus.CounterVec
	Rerouted         *prometheus.CounterVec
	RequestedBw      *prometheus.CounterVec
	BlockedBw        *prometheus.CounterVec
	Transponders     prometheus.Counter
	PathHops         prometheus.Histogram
	BlockingProb     prometheus.Gauge
	BwBlockingRatio  prometheus.Gauge
	ActiveLightpaths prometheus.Gauge
	Utilization      prometheus.Gauge
}

// CreateStatsCollector registers the run's metrics against reg, labeled with the load so that
// the runs of a sweep can share one registry.  A nil reg keeps the metrics unregistered
func CreateStatsCollector(reg prometheus.Registerer, load float64) (*StatsCollector, error) {
	sc := new(StatsCollector)
	sc.load = load
	sc.byClass = make(map[int]*classCounts)

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg = prometheus.WrapRegistererWith(prometheus.Labels{"load": strconv.FormatFloat(load, 'f', -1, 64)}, reg)

	var err error
	if sc.Accepted, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eonsim_flows_accepted_total",
		Help: "Flows accepted, by class of service.",
	}, []string{"cos"}), "eonsim_flows_accepted_total"); err != nil {
		return nil, err
	}
	if sc.Blocked, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eonsim_flows_blocked_total",
		Help: "Flows blocked, by class of service.",
	}, []string{"cos"}), "eonsim_flows_blocked_total"); err != nil {
		return nil, err
	}
	if sc.PhysicalBlocked, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eonsim_flows_blocked_physical_total",
		Help: "Flows blocked because the physical layer refused every candidate with resources, by class of service.",
	}, []string{"cos"}), "eonsim_flows_blocked_physical_total"); err != nil {
		return nil, err
	}
	if sc.Rerouted, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eonsim_flows_rerouted_total",
		Help: "Flows moved to a new path, by class of service.",
	}, []string{"cos"}), "eonsim_flows_rerouted_total"); err != nil {
		return nil, err
	}
	if sc.RequestedBw, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eonsim_bandwidth_requested_mbps_total",
		Help: "Rate requested by arriving flows in Mbps, by class of service.",
	}, []string{"cos"}), "eonsim_bandwidth_requested_mbps_total"); err != nil {
		return nil, err
	}
	if sc.BlockedBw, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eonsim_bandwidth_blocked_mbps_total",
		Help: "Rate of blocked flows in Mbps, by class of service.",
	}, []string{"cos"}), "eonsim_bandwidth_blocked_mbps_total"); err != nil {
		return nil, err
	}
	if sc.Transponders, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eonsim_transponders_total",
		Help: "Lightpaths first used by an accepted flow.",
	}), "eonsim_transponders_total"); err != nil {
		return nil, err
	}
	if sc.PathHops, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "eonsim_path_lightpaths",
		Help:    "Number of lightpaths in the path of an accepted flow.",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8},
	}), "eonsim_path_lightpaths"); err != nil {
		return nil, err
	}
	if sc.BlockingProb, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eonsim_blocking_probability",
		Help: "Blocked flows over decided flows.",
	}), "eonsim_blocking_probability"); err != nil {
		return nil, err
	}
	if sc.BwBlockingRatio, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eonsim_bandwidth_blocking_ratio",
		Help: "Blocked rate over requested rate.",
	}), "eonsim_bandwidth_blocking_ratio"); err != nil {
		return nil, err
	}
	if sc.ActiveLightpaths, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eonsim_active_lightpaths",
		Help: "Lightpaths established in the virtual topology.",
	}), "eonsim_active_lightpaths"); err != nil {
		return nil, err
	}
	if sc.Utilization, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eonsim_spectrum_utilization",
		Help: "Mean fraction of slots not free, over all links.",
	}), "eonsim_spectrum_utilization"); err != nil {
		return nil, err
	}
	return sc, nil
}

// Track points the collector at the virtual topology whose lightpaths it should count
func (sc *StatsCollector) Track(vt *VirtualTopology) {
	sc.vt = vt
}

func (sc *StatsCollector) class(cos int) *classCounts {
	cc, present := sc.byClass[cos]
	if !present {
		cc = new(classCounts)
		sc.byClass[cos] = cc
	}
	return cc
}

func (sc *StatsCollector) FlowAccepted(now float64, flow *Flow, lightpaths []*Lightpath, newLightpaths int) {
	cc := sc.class(flow.cos)
	cc.accepted += 1
	cc.requestedBw += flow.rate
	sc.transponders += newLightpaths
	sc.hops += len(lightpaths)

	cos := strconv.Itoa(flow.cos)
	sc.Accepted.WithLabelValues(cos).Inc()
	sc.RequestedBw.WithLabelValues(cos).Add(float64(flow.rate))
	sc.Transponders.Add(float64(newLightpaths))
	sc.PathHops.Observe(float64(len(lightpaths)))
	sc.refreshGauges()
}

func (sc *StatsCollector) FlowBlocked(now float64, flow *Flow, reason BlockReason) {
	cc := sc.class(flow.cos)
	cc.blocked += 1
	cc.requestedBw += flow.rate
	cc.blockedBw += flow.rate

	cos := strconv.Itoa(flow.cos)
	sc.Blocked.WithLabelValues(cos).Inc()
	if reason == BlockedByPhysicalLayer {
		cc.physical += 1
		sc.PhysicalBlocked.WithLabelValues(cos).Inc()
	}
	sc.RequestedBw.WithLabelValues(cos).Add(float64(flow.rate))
	sc.BlockedBw.WithLabelValues(cos).Add(float64(flow.rate))
	sc.refreshGauges()
}

func (sc *StatsCollector) FlowRerouted(now float64, flow *Flow, lightpaths []*Lightpath) {
	sc.class(flow.cos).rerouted += 1
	sc.Rerouted.WithLabelValues(strconv.Itoa(flow.cos)).Inc()
	sc.refreshGauges()
}

func (sc *StatsCollector) refreshGauges() {
	summary := sc.Summary()
	sc.BlockingProb.Set(summary.BlockingProbability)
	sc.BwBlockingRatio.Set(summary.BandwidthBlockingRatio)
	if sc.vt != nil {
		sc.ActiveLightpaths.Set(float64(sc.vt.NumLightpaths()))
	}
}

// ObserveTopology samples the spectrum state of the physical topology.  The summary reports
// the mean over all samples
func (sc *StatsCollector) ObserveTopology(pt *PhysicalTopology) (utilization, fragmentation float64) {
	if pt.NumLinks() == 0 {
		return 0.0, 0.0
	}
	for _, link := range pt.links {
		utilization += link.ledger.Utilization()
		fragmentation += link.ledger.Fragmentation()
	}
	utilization /= float64(pt.NumLinks())
	fragmentation /= float64(pt.NumLinks())

	sc.samples += 1
	sc.utilSum += utilization
	sc.fragSum += fragmentation

	sc.Utilization.Set(utilization)
	if sc.vt != nil {
		sc.ActiveLightpaths.Set(float64(sc.vt.NumLightpaths()))
	}
	return utilization, fragmentation
}

// Summary reduces the counts gathered so far
func (sc *StatsCollector) Summary() RunSummary {
	rs := RunSummary{Load: sc.load, Transponders: sc.transponders}
	requestedBw, blockedBw := 0, 0
	for _, cc := range sc.byClass {
		rs.Accepted += cc.accepted
		rs.Blocked += cc.blocked
		rs.PhysicalBlocked += cc.physical
		rs.Rerouted += cc.rerouted
		requestedBw += cc.requestedBw
		blockedBw += cc.blockedBw
	}
	rs.Arrivals = rs.Accepted + rs.Blocked
	if rs.Arrivals > 0 {
		rs.BlockingProbability = float64(rs.Blocked) / float64(rs.Arrivals)
	}
	if requestedBw > 0 {
		rs.BandwidthBlockingRatio = float64(blockedBw) / float64(requestedBw)
	}
	if rs.Accepted > 0 {
		rs.MeanHops = float64(sc.hops) / float64(rs.Accepted)
	}
	if sc.samples > 0 {
		rs.MeanUtilization = sc.utilSum / float64(sc.samples)
		rs.MeanFragmentation = sc.fragSum / float64(sc.samples)
	}
	return rs
}

// ClassBlockingProbability is the blocking probability of one class of service
func (sc *StatsCollector) ClassBlockingProbability(cos int) float64 {
	cc, present := sc.byClass[cos]
	if !present || cc.accepted+cc.blocked == 0 {
		return 0.0
	}
	return float64(cc.blocked) / float64(cc.accepted+cc.blocked)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
