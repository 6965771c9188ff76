package eonsim

// traffic.go generates the workload of a run: a Poisson stream of flow arrivals, each
// followed by the departure of the same flow after an exponentially distributed holding time.

import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
)

// TrafficGenerator draws flows for one run at one offered load (Erlangs)
type TrafficGenerator struct {
	calls           int
	load            float64
	meanHoldingTime float64
	callTypes       []CallTypeDesc
	totalWeight     float64
	numNodes        int
	rngstrm         *rngstream.RngStream
}

// CreateTrafficGenerator is a constructor.  The workload is fixed by the experiment name,
// the load and the seed
func CreateTrafficGenerator(xc *ExpCfg, numNodes int, load float64) *TrafficGenerator {
	if numNodes < 2 {
		panic(fmt.Errorf("workload needs at least two nodes, topology has %d", numNodes))
	}
	if load <= 0.0 {
		panic(fmt.Errorf("offered load %g must be positive", load))
	}
	tg := new(TrafficGenerator)
	tg.calls = xc.Calls
	tg.load = load
	tg.meanHoldingTime = xc.MeanHoldingTime
	tg.callTypes = make([]CallTypeDesc, len(xc.CallTypes))
	copy(tg.callTypes, xc.CallTypes)
	tg.totalWeight = 0.0
	for _, ct := range tg.callTypes {
		tg.totalWeight += ct.Weight
	}
	tg.numNodes = numNodes
	tg.rngstrm = CreateSeededStream(fmt.Sprintf("%s-traffic-%g", xc.Name, load), xc.Seed)
	return tg
}

// ArrivalRate is the flow arrival rate, load divided by the mean holding time
func (tg *TrafficGenerator) ArrivalRate() float64 {
	return tg.load / tg.meanHoldingTime
}

// Generate schedules every arrival and departure of the run with the driver, and returns
// the number of flows
func (tg *TrafficGenerator) Generate(ed *EventDriver) int {
	arrivalRate := tg.ArrivalRate()
	departureRate := 1.0 / tg.meanHoldingTime

	time := ed.Now()
	for id := 0; id < tg.calls; id++ {
		time += expRV(tg.rngstrm.RandU01(), arrivalRate)
		holding := expRV(tg.rngstrm.RandU01(), departureRate)
		src, dst := tg.endpoints()
		ct := tg.callType()

		flow := CreateFlow(int64(id), src, dst, ct.Rate, holding, ct.CoS)
		ed.Schedule(CreateArrivalEvent(time, flow))
		ed.Schedule(CreateDepartureEvent(time+holding, flow.id))
	}
	return tg.calls
}

// endpoints draws a source and a distinct destination, uniformly
func (tg *TrafficGenerator) endpoints() (int, int) {
	src := pickIndex(tg.rngstrm.RandU01(), tg.numNodes)
	dst := pickIndex(tg.rngstrm.RandU01(), tg.numNodes-1)
	if dst >= src {
		dst += 1
	}
	return src, dst
}

// callType draws a call type with probability proportional to its weight
func (tg *TrafficGenerator) callType() CallTypeDesc {
	u := tg.rngstrm.RandU01() * tg.totalWeight
	for _, ct := range tg.callTypes {
		if u < ct.Weight {
			return ct
		}
		u -= ct.Weight
	}
	return tg.callTypes[len(tg.callTypes)-1]
}

// pickIndex maps u01 onto [0, n)
func pickIndex(u01 float64, n int) int {
	idx := int(math.Floor(u01 * float64(n)))
	return min(idx, n-1)
}

// expRV returns a sample of a exponentially distributed random number
func expRV(u01, rate float64) float64 {
	return -math.Log(1.0-u01) / rate
}
