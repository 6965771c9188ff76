package eonsim

// simulator.go assembles one run of an experiment: a fresh physical topology built from the
// topology description, an empty virtual topology, the control plane with its sinks, and the
// event driver loaded with the workload at one offered load.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iti/eonsim/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// SimOptions carries what a run takes from its caller rather than from the descriptions
type SimOptions struct {
	Registerer prometheus.Registerer // metrics registry, a private one when nil
	Sinks      []AdmissionSink       // extra sinks, told after statistics and trace
	Logger     *slog.Logger
	SampleRate int // sample spectrum state every SampleRate events, 0 for every arrival
}

// Simulation is one run of an experiment at one load
type Simulation struct {
	Load    float64
	RunID   string
	PT      *PhysicalTopology
	VT      *VirtualTopology
	CP      *ControlPlane
	Driver  *EventDriver
	Traffic *TrafficGenerator
	Stats   *StatsCollector
	Trace   *TraceManager
	logger  *slog.Logger
}

// BuildSimulation validates the descriptions and assembles a run, with the workload scheduled
func BuildSimulation(tc *TopoCfg, xc *ExpCfg, ra Strategy, load float64, opts SimOptions) (*Simulation, error) {
	if err := ReportErrs([]error{tc.Validate(), xc.Validate()}); err != nil {
		return nil, err
	}
	if load <= 0.0 {
		return nil, fmt.Errorf("offered load %g must be positive", load)
	}

	pt, err := CreatePhysicalTopology(tc)
	if err != nil {
		return nil, err
	}
	if pt.NumNodes() < 2 {
		return nil, fmt.Errorf("topology %s needs at least two nodes to carry traffic", tc.Name)
	}

	sim := new(Simulation)
	sim.Load = load
	sim.PT = pt
	sim.VT = CreateVirtualTopology(pt)
	sim.Trace = CreateTraceManager(xc.Name, load, xc.Trace)
	sim.RunID = sim.Trace.RunID

	sim.logger = logging.ForRun(opts.Logger, sim.RunID, load)

	sim.Stats, err = CreateStatsCollector(opts.Registerer, load)
	if err != nil {
		return nil, err
	}
	sim.Stats.Track(sim.VT)

	sinks := MultiSink{sim.Stats, sim.Trace}
	sinks = append(sinks, opts.Sinks...)

	sim.CP = CreateControlPlane(ra, pt, sim.VT, sinks)
	sim.CP.SetOracle(CreateOracle(xc.Oracle))
	sim.CP.SetLogger(sim.logger)

	sim.Driver = CreateEventDriver(sim.CP)
	sim.Driver.SetLogger(sim.logger)
	sim.Driver.AddObserver(sim.sampler(opts.SampleRate))

	sim.Traffic = CreateTrafficGenerator(xc, pt.NumNodes(), load)
	flows := sim.Traffic.Generate(sim.Driver)

	sim.logger.Info("simulation built", "topology", pt.Name(), "strategy", xc.Strategy,
		"nodes", pt.NumNodes(), "links", pt.NumLinks(), "flows", flows)
	return sim, nil
}

// sampler returns the driver observer that feeds spectrum samples to the statistics
func (sim *Simulation) sampler(rate int) func(*Event) {
	return func(evt *Event) {
		if rate <= 0 {
			if evt.kind == Arrival {
				sim.Stats.ObserveTopology(sim.PT)
			}
			return
		}
		if sim.Driver.Dispatched()%rate == 0 {
			sim.Stats.ObserveTopology(sim.PT)
		}
	}
}

// Run dispatches every scheduled event and reduces the statistics.  A run stopped by ctx
// still returns the summary of what was dispatched, with ctx's error
func (sim *Simulation) Run(ctx context.Context) (RunSummary, error) {
	dispatched, err := sim.Driver.Run(ctx)
	summary := sim.Stats.Summary()

	sim.logger.Info("simulation finished", "events", dispatched, "summary", summary.String(),
		"lightpaths", sim.VT.NumLightpaths(), "active", sim.CP.NumActiveFlows())
	return summary, err
}
