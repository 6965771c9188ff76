package eonsim

import (
	"fmt"
	"math"
)

// EventKind says whether an event brings a flow in or takes one out
type EventKind int

const (
	Arrival EventKind = iota
	Departure
)

var ekToStr map[EventKind]string = map[EventKind]string{Arrival: "arrival", Departure: "departure"}

func (ek EventKind) String() string {
	return ekToStr[ek]
}

// Event is a flow arrival or departure at a simulation time (seconds)
type Event struct {
	kind   EventKind
	time   float64
	flow   *Flow // arrivals only
	flowID int64
}

// checkEventTime panics on a time that is negative or not a number
func checkEventTime(time float64) {
	if math.IsNaN(time) || time < 0.0 {
		panic(fmt.Errorf("event time %g is not a non-negative number", time))
	}
}

// CreateArrivalEvent is a constructor
func CreateArrivalEvent(time float64, flow *Flow) *Event {
	checkEventTime(time)
	if flow == nil {
		panic(fmt.Errorf("arrival event with nil flow"))
	}
	evt := new(Event)
	evt.kind = Arrival
	evt.time = time
	evt.flow = flow
	evt.flowID = flow.id
	return evt
}

// CreateDepartureEvent is a constructor
func CreateDepartureEvent(time float64, id int64) *Event {
	checkEventTime(time)
	if id < 0 {
		panic(fmt.Errorf("departure event for negative flow id %d", id))
	}
	evt := new(Event)
	evt.kind = Departure
	evt.time = time
	evt.flowID = id
	return evt
}

func (evt *Event) Kind() EventKind {
	return evt.kind
}

func (evt *Event) Time() float64 {
	return evt.time
}

// Flow is the arriving flow, nil for a departure
func (evt *Event) Flow() *Flow {
	return evt.flow
}

func (evt *Event) FlowID() int64 {
	return evt.flowID
}

func (evt *Event) String() string {
	return fmt.Sprintf("%s of flow %d at %g", evt.kind, evt.flowID, evt.time)
}
