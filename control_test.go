package eonsim

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ControlPlane", func() {
	var (
		pt       *PhysicalTopology
		vt       *VirtualTopology
		cp       *ControlPlane
		sink     *recordingSink
		strategy *scriptedStrategy
	)

	arrive := func(id int64, src, dst, rate int) *Flow {
		flow := CreateFlow(id, src, dst, rate, 1.0, 0)
		cp.markPending(flow)
		cp.newFlow(flow)
		return flow
	}

	establish := func(src, dst int, links []int, first, last int) *Lightpath {
		id := vt.CreateLightpath(cp.CreateCandidateEONLightpath(src, dst, links, first, last, QPSK))
		Expect(id).To(BeNumerically(">", 0))
		return vt.Lightpath(id)
	}

	BeforeEach(func() {
		pt = buildTopo(lineTopoCfg("elastic", 3, 20, 1))
		vt = CreateVirtualTopology(pt)
		sink = &recordingSink{}
		strategy = &scriptedStrategy{}
		cp = CreateControlPlane(strategy, pt, vt, sink)
	})

	It("should hand itself to the strategy", func() {
		Expect(strategy.cp).To(BeIdenticalTo(cp))
	})

	Context("AcceptFlow", func() {
		It("should map a flow and charge its rate", func() {
			lp := establish(0, 2, []int{0, 1}, 0, 0)
			arrive(0, 0, 2, 10000)

			Expect(cp.AcceptFlow(0, []*Lightpath{lp})).To(BeTrue())
			Expect(cp.FlowState(0)).To(Equal(FlowMapped))
			Expect(lp.Used()).To(Equal(10000))
			Expect(cp.LightpathFlowCount(lp.ID())).To(Equal(1))
			Expect(pt.Link(0).FlowCount()).To(Equal(1))
			Expect(pt.Link(1).BandwidthInUse()).To(Equal(10000))
			Expect(cp.Path(0).Hops()).To(Equal(1))
			Expect(sink.decisions).To(Equal([]decision{{op: "accept", flowID: 0, lightpaths: []int64{lp.ID()}, newLightpaths: 1}}))

			arrive(1, 0, 2, 10000)
			Expect(cp.AcceptFlow(1, []*Lightpath{lp})).To(BeTrue())
			Expect(sink.decisions[1].newLightpaths).To(Equal(0))
			Expect(lp.Residual()).To(Equal(5000))
		})

		It("should not map a flow twice", func() {
			lp := establish(0, 2, []int{0, 1}, 0, 0)
			arrive(0, 0, 2, 1000)
			Expect(cp.AcceptFlow(0, []*Lightpath{lp})).To(BeTrue())
			Expect(cp.AcceptFlow(0, []*Lightpath{lp})).To(BeFalse())
			Expect(lp.Used()).To(Equal(1000))
		})

		It("should refuse a chain that does not run from source to destination", func() {
			lp := establish(0, 1, []int{0}, 0, 0)
			arrive(0, 0, 2, 1000)
			Expect(cp.AcceptFlow(0, []*Lightpath{lp})).To(BeFalse())
			Expect(cp.FlowState(0)).To(Equal(FlowActive))
			Expect(lp.Used()).To(Equal(0))
			Expect(sink.decisions).To(BeEmpty())
		})

		It("should refuse a lightpath that was never established", func() {
			candidate := cp.CreateCandidateEONLightpath(0, 2, []int{0, 1}, 0, 0, QPSK)
			arrive(0, 0, 2, 1000)
			Expect(cp.AcceptFlow(0, []*Lightpath{candidate})).To(BeFalse())
		})

		It("should refuse a flow that is not active", func() {
			lp := establish(0, 2, []int{0, 1}, 0, 0)
			Expect(cp.AcceptFlow(7, []*Lightpath{lp})).To(BeFalse())
		})

		It("should charge all of a chain or none of it", func() {
			lpA := establish(0, 1, []int{0}, 0, 0)
			lpB := establish(1, 2, []int{1}, 0, 0)
			arrive(1, 1, 2, 20000)
			Expect(cp.AcceptFlow(1, []*Lightpath{lpB})).To(BeTrue())

			arrive(2, 0, 2, 10000)
			Expect(cp.AcceptFlow(2, []*Lightpath{lpA, lpB})).To(BeFalse())
			Expect(lpA.Used()).To(Equal(0))
			Expect(lpA.FlowCount()).To(Equal(0))
			Expect(pt.Link(0).BandwidthInUse()).To(Equal(0))
			Expect(lpB.Used()).To(Equal(20000))
			Expect(cp.FlowState(2)).To(Equal(FlowActive))

			arrive(3, 0, 2, 5000)
			Expect(cp.AcceptFlow(3, []*Lightpath{lpA, lpB})).To(BeTrue())
			Expect(cp.Path(3).Hops()).To(Equal(2))
			Expect(sink.decisions[1].newLightpaths).To(Equal(1))
		})

		It("should panic on arguments no strategy should pass", func() {
			lp := establish(0, 2, []int{0, 1}, 0, 0)
			arrive(0, 0, 2, 1000)
			Expect(func() { cp.AcceptFlow(-1, []*Lightpath{lp}) }).To(Panic())
			Expect(func() { cp.AcceptFlow(0, nil) }).To(Panic())
			Expect(func() { cp.AcceptFlow(0, []*Lightpath{nil}) }).To(Panic())
			Expect(func() { cp.RerouteFlow(-1, []*Lightpath{lp}) }).To(Panic())
			Expect(func() { cp.BlockFlow(-1) }).To(Panic())
			Expect(func() { cp.BlockFlowPhysical(-1) }).To(Panic())
		})
	})

	Context("BlockFlow", func() {
		It("should refuse an active flow once", func() {
			lp := establish(0, 2, []int{0, 1}, 0, 0)
			arrive(0, 0, 2, 1000)
			Expect(cp.BlockFlow(0)).To(BeTrue())
			Expect(cp.FlowState(0)).To(Equal(FlowBlocked))
			Expect(cp.BlockFlow(0)).To(BeFalse())
			Expect(cp.AcceptFlow(0, []*Lightpath{lp})).To(BeFalse())
			Expect(cp.BlockFlow(42)).To(BeFalse())
			Expect(sink.decisions).To(Equal([]decision{{op: "block", flowID: 0, reason: BlockedForResources}}))
			reason, found := cp.BlockReason(0)
			Expect(found).To(BeTrue())
			Expect(reason).To(Equal(BlockedForResources))
			_, found = cp.BlockReason(42)
			Expect(found).To(BeFalse())
		})

		It("should keep the physical layer apart as a reason", func() {
			arrive(0, 0, 2, 1000)
			arrive(1, 0, 2, 1000)
			Expect(cp.BlockFlowPhysical(0)).To(BeTrue())
			Expect(cp.BlockFlowPhysical(0)).To(BeFalse())
			Expect(cp.BlockFlow(1)).To(BeTrue())
			Expect(sink.decisions).To(Equal([]decision{
				{op: "block", flowID: 0, reason: BlockedByPhysicalLayer},
				{op: "block", flowID: 1, reason: BlockedForResources}}))
			reason, _ := cp.BlockReason(0)
			Expect(reason.String()).To(Equal("physical"))

			cp.removeFlow(0)
			_, found := cp.BlockReason(0)
			Expect(found).To(BeFalse())
		})

		It("should not block a mapped flow", func() {
			lp := establish(0, 2, []int{0, 1}, 0, 0)
			arrive(0, 0, 2, 1000)
			Expect(cp.AcceptFlow(0, []*Lightpath{lp})).To(BeTrue())
			Expect(cp.BlockFlow(0)).To(BeFalse())
		})
	})

	Context("RerouteFlow", func() {
		var lpOld, lpA, lpB *Lightpath

		BeforeEach(func() {
			lpOld = establish(0, 2, []int{0, 1}, 0, 0)
			arrive(0, 0, 2, 10000)
			Expect(cp.AcceptFlow(0, []*Lightpath{lpOld})).To(BeTrue())

			lpA = establish(0, 1, []int{0}, 3, 3)
			lpB = establish(1, 2, []int{1}, 3, 3)
		})

		It("should leave everything as it was when the new chain cannot take the flow", func() {
			arrive(1, 1, 2, 20000)
			Expect(cp.AcceptFlow(1, []*Lightpath{lpB})).To(BeTrue())

			ledgers := ledgerSnapshots(pt)
			bw := []int{pt.Link(0).BandwidthInUse(), pt.Link(1).BandwidthInUse()}
			decisions := len(sink.decisions)

			Expect(cp.RerouteFlow(0, []*Lightpath{lpA, lpB})).To(BeFalse())

			Expect(ledgerSnapshots(pt)).To(Equal(ledgers))
			Expect([]int{pt.Link(0).BandwidthInUse(), pt.Link(1).BandwidthInUse()}).To(Equal(bw))
			Expect(lpOld.Used()).To(Equal(10000))
			Expect(lpOld.FlowCount()).To(Equal(1))
			Expect(lpA.Used()).To(Equal(0))
			Expect(lpB.Used()).To(Equal(20000))
			Expect(cp.Path(0).Lightpaths()).To(Equal([]*Lightpath{lpOld}))
			Expect(vt.Lightpath(lpOld.ID())).To(BeIdenticalTo(lpOld))
			Expect(sink.decisions).To(HaveLen(decisions))
		})

		It("should move the flow and tear down the lightpath it left idle", func() {
			oldID := lpOld.ID()
			Expect(cp.RerouteFlow(0, []*Lightpath{lpA, lpB})).To(BeTrue())

			Expect(cp.Path(0).Hops()).To(Equal(2))
			Expect(lpA.Used()).To(Equal(10000))
			Expect(vt.Lightpath(oldID)).To(BeNil())
			for _, linkID := range []int{0, 1} {
				begin, end := pt.Link(linkID).Ledger().FindOccupant(oldID)
				Expect(begin).To(Equal(-1))
				Expect(end).To(Equal(-1))
				Expect(pt.Link(linkID).BandwidthInUse()).To(Equal(10000))
			}
			last := sink.decisions[len(sink.decisions)-1]
			Expect(last).To(Equal(decision{op: "reroute", flowID: 0, lightpaths: []int64{lpA.ID(), lpB.ID()}}))
		})

		It("should keep an old lightpath that still carries other flows", func() {
			arrive(1, 0, 2, 1000)
			Expect(cp.AcceptFlow(1, []*Lightpath{lpOld})).To(BeTrue())
			Expect(cp.RerouteFlow(0, []*Lightpath{lpA, lpB})).To(BeTrue())
			Expect(vt.Lightpath(lpOld.ID())).NotTo(BeNil())
			Expect(lpOld.Used()).To(Equal(1000))
		})

		It("should refuse a flow that is not mapped", func() {
			arrive(1, 0, 2, 1000)
			Expect(cp.RerouteFlow(1, []*Lightpath{lpA, lpB})).To(BeFalse())
		})
	})

	Context("departures", func() {
		It("should release the path and tear down idle lightpaths", func() {
			before := ledgerSnapshots(pt)
			lp := establish(0, 2, []int{0, 1}, 2, 4)
			arrive(0, 0, 2, 10000)
			Expect(cp.AcceptFlow(0, []*Lightpath{lp})).To(BeTrue())

			cp.removeFlow(0)
			Expect(cp.FlowState(0)).To(Equal(FlowUnknown))
			Expect(vt.NumLightpaths()).To(Equal(0))
			Expect(ledgerSnapshots(pt)).To(Equal(before))
			Expect(pt.Link(0).FlowCount()).To(Equal(0))
		})

		It("should keep a lightpath other flows still ride", func() {
			lp := establish(0, 2, []int{0, 1}, 2, 4)
			arrive(0, 0, 2, 10000)
			arrive(1, 0, 2, 10000)
			Expect(cp.AcceptFlow(0, []*Lightpath{lp})).To(BeTrue())
			Expect(cp.AcceptFlow(1, []*Lightpath{lp})).To(BeTrue())

			cp.removeFlow(0)
			Expect(vt.Lightpath(lp.ID())).NotTo(BeNil())
			Expect(lp.Used()).To(Equal(10000))
		})

		It("should forget a blocked flow", func() {
			arrive(0, 0, 2, 10000)
			Expect(cp.BlockFlow(0)).To(BeTrue())
			cp.removeFlow(0)
			Expect(cp.FlowState(0)).To(Equal(FlowUnknown))
		})
	})

	It("should hand out a copy of the mapping", func() {
		lp := establish(0, 2, []int{0, 1}, 0, 0)
		arrive(0, 0, 2, 1000)
		Expect(cp.AcceptFlow(0, []*Lightpath{lp})).To(BeTrue())

		mapped := cp.MappedFlows()
		Expect(mapped).To(HaveKey(int64(0)))
		delete(mapped, 0)
		Expect(cp.MappedFlows()).To(HaveLen(1))
		Expect(cp.NumActiveFlows()).To(Equal(1))
	})

	It("should ask the oracle about candidates", func() {
		candidate := cp.CreateCandidateEONLightpath(0, 2, []int{0, 1}, 0, 0, QPSK)
		Expect(cp.CheckFeasibility(candidate)).To(Equal(0.0))

		cp.SetOracle(CreateOracle("reach"))
		Expect(cp.CheckFeasibility(candidate)).To(Equal(4800.0 - 200.0))
		far := cp.CreateCandidateEONLightpath(0, 2, []int{0, 1}, 0, 0, QAM64)
		Expect(cp.CheckFeasibility(far)).To(Equal(100.0))

		cp.SetOracle(CreateOracle("always"))
		Expect(cp.CheckFeasibility(far)).To(Equal(0.0))
		Expect(CreateOracle("none")).To(BeNil())
	})

	It("should score candidates by their SNR margin", func() {
		so := CreateSNROracle()
		Expect(so.Spans(pt, []int{0, 1})).To(Equal(3))
		Expect(so.Spans(pt, []int{})).To(Equal(1))
		snr := 30.0 - 10.0*math.Log10(3.0)
		Expect(so.EstimateSNR(pt, []int{0, 1})).To(BeNumerically("~", snr, 1e-9))

		cp.SetOracle(CreateOracle("snr"))
		for _, mod := range []Modulation{BPSK, QPSK, QAM8, QAM16, QAM32, QAM64} {
			candidate := cp.CreateCandidateEONLightpath(0, 2, []int{0, 1}, 0, 0, mod)
			Expect(cp.CheckFeasibility(candidate)).To(BeNumerically("~", snr-mod.SNRThreshold(), 1e-9))
		}
		Expect(BPSK.SNRThreshold()).To(Equal(6.8))
		Expect(QAM64.SNRThreshold()).To(Equal(22.5))

		long := lineTopoCfg("elastic", 2, 20, 1)
		long.Links[0].Weight = 2000.0
		ptLong := buildTopo(long)
		cpLong := CreateControlPlane(&scriptedStrategy{}, ptLong, CreateVirtualTopology(ptLong), nil)
		Expect(so.Feasibility(ptLong, cpLong.CreateCandidateEONLightpath(0, 1, []int{0}, 0, 0, QAM16))).To(BeNumerically("<", 0.0))
		Expect(so.Feasibility(ptLong, cpLong.CreateCandidateEONLightpath(0, 1, []int{0}, 0, 0, QAM8))).To(BeNumerically(">", 0.0))
	})

	It("should refuse a fixed-grid candidate spanning several wavelengths", func() {
		Expect(func() {
			cp.CreateCandidateLightpath(FixedGrid, 0, 1, []int{0}, SpectrumParams{FirstSlot: 1, LastSlot: 2})
		}).To(Panic())
	})
})
