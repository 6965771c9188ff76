package eonsim

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PhysicalTopology", func() {
	It("should build nodes and links from the description", func() {
		pt := buildTopo(lineTopoCfg("elastic", 4, 20, 1))
		Expect(pt.Name()).To(Equal("line"))
		Expect(pt.Grid()).To(Equal(ElasticGrid))
		Expect(pt.NumNodes()).To(Equal(4))
		Expect(pt.NumLinks()).To(Equal(3))
		Expect(pt.Link(1).Src()).To(Equal(1))
		Expect(pt.Link(1).Dst()).To(Equal(2))
		Expect(pt.Link(1).Ledger().NumSlots()).To(Equal(20))
		Expect(pt.Link(1).Ledger().Guardband()).To(Equal(1))
		Expect(pt.Link(1).Delay()).To(BeNumerically("~", 100.0/2.0e5, 1e-12))
		Expect(pt.HasLink(2, 1)).To(BeFalse())
		Expect(func() { pt.Link(3) }).To(Panic())
		Expect(func() { pt.Node(-1) }).To(Panic())
	})

	It("should add reverse links for a bidirectional description", func() {
		tc := lineTopoCfg("elastic", 3, 20, 1)
		tc.Bidirectional = true
		pt := buildTopo(tc)
		Expect(pt.NumLinks()).To(Equal(4))
		Expect(pt.LinkBetween(1, 0).ID()).To(Equal(2))
		Expect(pt.LinkBetween(2, 1).ID()).To(Equal(3))
	})

	It("should drop the guard band on a fixed grid", func() {
		pt := buildTopo(lineTopoCfg("fixed", 3, 8, 2))
		Expect(pt.Grid()).To(Equal(FixedGrid))
		Expect(pt.Link(0).Ledger().Guardband()).To(Equal(0))
	})

	It("should honor a per-link slot count", func() {
		tc := lineTopoCfg("elastic", 3, 20, 1)
		tc.Links[1].Slots = 8
		pt := buildTopo(tc)
		Expect(pt.Link(0).Ledger().NumSlots()).To(Equal(20))
		Expect(pt.Link(1).Ledger().NumSlots()).To(Equal(8))
	})

	It("should refuse a description with problems, reporting all of them", func() {
		tc := lineTopoCfg("elastic", 3, 20, 1)
		tc.AddLink(2, 2, 10.0)
		tc.AddLink(0, 1, 10.0)
		_, err := CreatePhysicalTopology(tc)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("self loop"))
		Expect(err.Error()).To(ContainSubstring("duplicates 0->1"))
	})

	It("should check that link ids chain from source to destination", func() {
		pt := buildTopo(lineTopoCfg("elastic", 4, 20, 1))
		Expect(pt.CheckLinkPath(0, 3, []int{0, 1, 2})).To(BeTrue())
		Expect(pt.CheckLinkPath(0, 3, []int{0, 2})).To(BeFalse())
		Expect(pt.CheckLinkPath(0, 2, []int{0, 1, 2})).To(BeFalse())
		Expect(pt.CheckLinkPath(0, 1, []int{})).To(BeFalse())
		Expect(pt.CheckLinkPath(0, 1, []int{7})).To(BeFalse())
		Expect(pt.PathLength([]int{0, 1, 2})).To(Equal(300.0))
	})

	Context("routes", func() {
		var pt *PhysicalTopology

		BeforeEach(func() {
			pt = buildTopo(diamondTopoCfg("elastic", 20, 1))
		})

		It("should find the shortest route", func() {
			Expect(pt.ShortestPath(0, 3)).To(Equal([]int{0, 1, 3}))
			Expect(pt.ShortestPath(0, 2)).To(Equal([]int{0, 2}))
		})

		It("should return nothing when the destination cannot be reached", func() {
			Expect(pt.ShortestPath(3, 0)).To(BeEmpty())
			Expect(pt.KShortestPaths(3, 0, 3)).To(BeEmpty())
		})

		It("should list the k shortest routes, shortest first", func() {
			Expect(pt.KShortestPaths(0, 3, 3)).To(Equal([][]int{{0, 1, 3}, {0, 2, 3}, {0, 3}}))
			Expect(pt.KShortestPaths(0, 3, 2)).To(Equal([][]int{{0, 1, 3}, {0, 2, 3}}))
			Expect(pt.KShortestPaths(0, 3, 0)).To(BeEmpty())
		})

		It("should map routes onto links", func() {
			Expect(pt.LinksOnPath([]int{0, 2, 3})).To(Equal([]int{2, 3}))
			Expect(pt.LinksOnPath([]int{0, 1, 2})).To(BeNil())
			Expect(pt.LinksOnPath([]int{0})).To(BeNil())
			Expect(pt.RouteLength([]int{0, 1, 3})).To(Equal(200.0))
			Expect(math.IsInf(pt.RouteLength([]int{3, 0}), 1)).To(BeTrue())
		})
	})
})

var _ = Describe("VirtualTopology", func() {
	var (
		pt *PhysicalTopology
		vt *VirtualTopology
		cp *ControlPlane
	)

	BeforeEach(func() {
		pt = buildTopo(lineTopoCfg("elastic", 3, 20, 1))
		vt = CreateVirtualTopology(pt)
		cp = CreateControlPlane(&scriptedStrategy{}, pt, vt, nil)
	})

	It("should reserve a new lightpath on every link it crosses", func() {
		candidate := cp.CreateCandidateEONLightpath(0, 2, []int{0, 1}, 0, 1, QPSK)
		Expect(candidate.Capacity()).To(Equal(50000))

		id := vt.CreateLightpath(candidate)
		Expect(id).To(Equal(int64(1)))
		for _, linkID := range []int{0, 1} {
			begin, end := pt.Link(linkID).Ledger().FindOccupant(id)
			Expect(begin).To(Equal(0))
			Expect(end).To(Equal(1))
			Expect(pt.Link(linkID).Ledger().Slot(2)).To(Equal(guardSlot))
		}
		Expect(pt.Node(0).FreeGroomingOutputPorts()).To(Equal(math.MaxInt32 - 1))
		Expect(pt.Node(2).FreeGroomingInputPorts()).To(Equal(math.MaxInt32 - 1))
		Expect(vt.IsLightpathIdle(id)).To(BeTrue())
		Expect(candidate.ID()).To(Equal(int64(0)))
	})

	It("should change nothing when one link cannot take the lightpath", func() {
		Expect(vt.CreateLightpath(cp.CreateCandidateEONLightpath(1, 2, []int{1}, 0, 1, QPSK))).To(Equal(int64(1)))
		before := ledgerSnapshots(pt)

		id := vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 2, []int{0, 1}, 0, 1, QPSK))
		Expect(id).To(Equal(int64(-1)))
		Expect(ledgerSnapshots(pt)).To(Equal(before))
		Expect(vt.NumLightpaths()).To(Equal(1))
	})

	DescribeTable("should commit a lightpath on all of its links or on none",
		func(blocked int) {
			pt = buildTopo(lineTopoCfg("elastic", 4, 20, 1))
			vt = CreateVirtualTopology(pt)
			cp = CreateControlPlane(&scriptedStrategy{}, pt, vt, nil)
			Expect(vt.CreateLightpath(cp.CreateCandidateEONLightpath(blocked, blocked+1, []int{blocked}, 2, 3, QPSK))).To(Equal(int64(1)))
			free := []int{}
			for _, link := range pt.Links() {
				free = append(free, link.Ledger().AvailableSlots())
			}
			before := ledgerSnapshots(pt)

			id := vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 3, []int{0, 1, 2}, 0, 1, QPSK))
			Expect(id).To(Equal(int64(-1)))
			for linkID, link := range pt.Links() {
				Expect(link.Ledger().AvailableSlots()).To(Equal(free[linkID]))
			}
			Expect(free[blocked]).To(Equal(16))
			Expect(ledgerSnapshots(pt)).To(Equal(before))
			Expect(vt.NumLightpaths()).To(Equal(1))
		},
		Entry("first link full", 0),
		Entry("middle link full", 1),
		Entry("last link full", 2),
	)

	It("should refuse a chain that does not join its endpoints", func() {
		Expect(vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 2, []int{1}, 0, 1, QPSK))).To(Equal(int64(-1)))
		Expect(vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 2, []int{0}, 0, 1, QPSK))).To(Equal(int64(-1)))
	})

	It("should refuse a lightpath of the other grid", func() {
		Expect(vt.CreateLightpath(cp.CreateCandidateWDMLightpath(0, 1, []int{0}, 3))).To(Equal(int64(-1)))
	})

	It("should panic on a candidate naming an unknown link", func() {
		Expect(func() { vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 1, []int{9}, 0, 1, QPSK)) }).To(Panic())
	})

	It("should run out of grooming ports", func() {
		tc := lineTopoCfg("elastic", 3, 20, 1)
		tc.Nodes[0].GroomingOutputPorts = 1
		pt = buildTopo(tc)
		vt = CreateVirtualTopology(pt)
		cp = CreateControlPlane(&scriptedStrategy{}, pt, vt, nil)

		first := vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 1, []int{0}, 0, 0, QPSK))
		Expect(first).To(BeNumerically(">", 0))
		Expect(pt.Node(0).FreeGroomingOutputPorts()).To(Equal(0))
		Expect(vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 1, []int{0}, 5, 5, QPSK))).To(Equal(int64(-1)))

		Expect(vt.RemoveLightpath(first)).To(BeTrue())
		Expect(pt.Node(0).FreeGroomingOutputPorts()).To(Equal(1))
	})

	It("should count free grooming input ports on the nodes that limit them", func() {
		tc := lineTopoCfg("elastic", 3, 20, 1)
		tc.Nodes[1].GroomingInputPorts = 2
		tc.Nodes[2].GroomingInputPorts = 3
		pt = buildTopo(tc)
		vt = CreateVirtualTopology(pt)
		cp = CreateControlPlane(&scriptedStrategy{}, pt, vt, nil)
		Expect(pt.AllFreeGroomingInputPorts()).To(Equal(5))

		toOne := vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 1, []int{0}, 0, 0, QPSK))
		vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 2, []int{0, 1}, 4, 4, QPSK))
		Expect(pt.AllFreeGroomingInputPorts()).To(Equal(3))

		Expect(vt.RemoveLightpath(toOne)).To(BeTrue())
		Expect(pt.AllFreeGroomingInputPorts()).To(Equal(4))
		Expect(vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 1, []int{0}, 5, 5, QPSK))).To(BeNumerically(">", 0))
	})

	It("should free the spectrum and guards of a removed lightpath", func() {
		before := ledgerSnapshots(pt)
		id := vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 2, []int{0, 1}, 4, 6, QPSK))
		Expect(vt.RemoveLightpath(id)).To(BeTrue())
		Expect(ledgerSnapshots(pt)).To(Equal(before))
		Expect(vt.Lightpath(id)).To(BeNil())
		Expect(vt.RemoveLightpath(id)).To(BeFalse())
	})

	It("should list lightpaths with room, least loaded first", func() {
		a := vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 1, []int{0}, 0, 0, QPSK))
		b := vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 1, []int{0}, 2, 3, QPSK))
		c := vt.CreateLightpath(cp.CreateCandidateEONLightpath(0, 1, []int{0}, 5, 5, QPSK))
		pt.addFlow(20000, vt.Lightpath(c))

		lps := vt.AvailableLightpaths(0, 1, 10000)
		Expect(lightpathIDs(lps)).To(Equal([]int64{b, a}))
		Expect(vt.AvailableLightpaths(0, 1, 60000)).To(BeEmpty())
		Expect(vt.AvailableLightpaths(1, 2, 1)).To(BeEmpty())
		Expect(lightpathIDs(vt.Lightpaths())).To(Equal([]int64{a, b, c}))
	})
})
