package eonsim

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// firstFitOnShortestPath lights one new lightpath per flow at the lowest common offset of its shortest route
func firstFitOnShortestPath(cp ControlPlaneForRA, flow *Flow) {
	pt := cp.PhysTopo()
	vt := cp.VirtTopo()
	links := pt.LinksOnPath(pt.ShortestPath(flow.Src(), flow.Dst()))
	slots := QPSK.RequiredSlots(flow.Rate(), pt.SlotSize())
	if links != nil {
		for first := 0; first+slots <= pt.Link(links[0]).Ledger().NumSlots(); first++ {
			id := vt.CreateLightpath(cp.CreateCandidateEONLightpath(flow.Src(), flow.Dst(), links, first, first+slots-1, QPSK))
			if id < 0 {
				continue
			}
			if cp.AcceptFlow(flow.ID(), []*Lightpath{vt.Lightpath(id)}) {
				return
			}
			vt.DeallocateLightpath(id)
		}
	}
	cp.BlockFlow(flow.ID())
}

var _ = Describe("Simulation", func() {
	var (
		tc *TopoCfg
		xc *ExpCfg
	)

	BeforeEach(func() {
		tc = lineTopoCfg("elastic", 4, 16, 1)
		tc.Bidirectional = true
		xc = sampleExpCfg()
		xc.Trace = true
	})

	It("should run a workload through a strategy that blocks everything", func() {
		reg := prometheus.NewRegistry()
		sim, err := BuildSimulation(tc, xc, &scriptedStrategy{onArrival: blockAll}, 30.0,
			SimOptions{Registerer: reg})
		Expect(err).NotTo(HaveOccurred())
		Expect(sim.Driver.Pending()).To(Equal(400))

		summary, err := sim.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Arrivals).To(Equal(200))
		Expect(summary.Blocked).To(Equal(200))
		Expect(summary.BlockingProbability).To(Equal(1.0))
		Expect(summary.BandwidthBlockingRatio).To(Equal(1.0))
		Expect(sim.Trace.NumTraces()).To(Equal(200))
		Expect(sim.CP.NumActiveFlows()).To(Equal(0))

		cnt, err := testutil.GatherAndCount(reg, "eonsim_flows_blocked_total")
		Expect(err).NotTo(HaveOccurred())
		Expect(cnt).To(BeNumerically(">=", 1))
	})

	It("should carry traffic and leave the network empty once every flow has left", func() {
		sink := &recordingSink{}
		sim, err := BuildSimulation(tc, xc, &scriptedStrategy{onArrival: firstFitOnShortestPath}, 30.0,
			SimOptions{Sinks: []AdmissionSink{sink}})
		Expect(err).NotTo(HaveOccurred())
		empty := ledgerSnapshots(sim.PT)

		summary, err := sim.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Arrivals).To(Equal(200))
		Expect(summary.Accepted).To(BeNumerically(">", 0))
		Expect(summary.Accepted + summary.Blocked).To(Equal(200))
		Expect(summary.Transponders).To(Equal(summary.Accepted))
		Expect(summary.MeanHops).To(Equal(1.0))
		Expect(summary.MeanUtilization).To(BeNumerically(">", 0.0))
		Expect(sink.decisions).To(HaveLen(200))

		Expect(sim.VT.NumLightpaths()).To(Equal(0))
		Expect(ledgerSnapshots(sim.PT)).To(Equal(empty))
		for _, link := range sim.PT.Links() {
			Expect(link.FlowCount()).To(Equal(0))
			Expect(link.BandwidthInUse()).To(Equal(0))
		}
	})

	It("should stop when the context ends and still summarize", func() {
		sim, err := BuildSimulation(tc, xc, &scriptedStrategy{onArrival: blockAll}, 30.0, SimOptions{})
		Expect(err).NotTo(HaveOccurred())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		summary, err := sim.Run(ctx)
		Expect(err).To(MatchError(context.Canceled))
		Expect(summary.Arrivals).To(Equal(0))
	})

	It("should give the same summary for the same seed whatever ran before", func() {
		xc.Seed = 7
		runOnce := func() RunSummary {
			sim, err := BuildSimulation(tc, xc, &scriptedStrategy{onArrival: firstFitOnShortestPath}, 30.0, SimOptions{})
			Expect(err).NotTo(HaveOccurred())
			summary, err := sim.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			return summary
		}
		first := runOnce()
		CreateTrafficGenerator(xc, 4, 30.0)
		CreateSeededStream("unrelated", 1)
		Expect(runOnce()).To(Equal(first))
	})

	It("should refuse descriptions that do not validate", func() {
		_, err := BuildSimulation(tc, xc, &scriptedStrategy{}, 0.0, SimOptions{})
		Expect(err).To(HaveOccurred())

		xc.MeanHoldingTime = 0
		tc.Slots = 0
		_, err = BuildSimulation(tc, xc, &scriptedStrategy{}, 10.0, SimOptions{})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("holding time"))
		Expect(err.Error()).To(ContainSubstring("slot count"))
	})

	It("should build a fresh network for every run", func() {
		first, err := BuildSimulation(tc, xc, &scriptedStrategy{onArrival: firstFitOnShortestPath}, 30.0, SimOptions{})
		Expect(err).NotTo(HaveOccurred())
		second, err := BuildSimulation(tc, xc, &scriptedStrategy{onArrival: firstFitOnShortestPath}, 60.0, SimOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(first.PT).NotTo(BeIdenticalTo(second.PT))
		Expect(first.PT.Link(0)).NotTo(BeIdenticalTo(second.PT.Link(0)))
		Expect(first.RunID).NotTo(Equal(second.RunID))
	})
})
