package eonsim

// scheduler.go holds the event driver.  Events wait on an evtm.EventManager, which fires
// them in time order and, among events at the same tick, in the order they were scheduled.
// Dispatch of an event runs to completion before the next is fired.

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/iti/eonsim/internal/logging"
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/iti/eonsim"

// horizon is the latest time (seconds) an event may carry; the event manager runs up to it
var horizon float64 = vrtime.TicksToSeconds(math.MaxInt64 / 4)

// EventDriver advances simulation time through the scheduled events
type EventDriver struct {
	cp         *ControlPlane
	evtMgr     *evtm.EventManager
	ctx        context.Context
	stopErr    error
	now        float64
	dispatched int
	runCnt     int
	tracer     trace.Tracer
	logger     *slog.Logger
	observers  []func(*Event)
}

// CreateEventDriver is a constructor
func CreateEventDriver(cp *ControlPlane) *EventDriver {
	ed := new(EventDriver)
	ed.cp = cp
	ed.evtMgr = evtm.New()
	ed.ctx = context.Background()
	ed.now = 0.0
	ed.tracer = otel.Tracer(tracerName)
	ed.logger = logging.Noop()
	return ed
}

// SetLogger replaces the discarding default logger
func (ed *EventDriver) SetLogger(logger *slog.Logger) {
	ed.logger = logger
}

// AddObserver registers a function called after each event is dispatched
func (ed *EventDriver) AddObserver(observer func(*Event)) {
	ed.observers = append(ed.observers, observer)
}

// Now is the time of the most recently dispatched event
func (ed *EventDriver) Now() float64 {
	return ed.now
}

// Pending is the number of events waiting
func (ed *EventDriver) Pending() int {
	return ed.evtMgr.EventList.Len()
}

// Dispatched is the number of events handled so far
func (ed *EventDriver) Dispatched() int {
	return ed.dispatched
}

// Schedule queues an event.  An event may not be scheduled before the current time,
// at a time that is not a number, or beyond the horizon
func (ed *EventDriver) Schedule(evt *Event) {
	if evt == nil {
		panic(fmt.Errorf("nil event scheduled"))
	}
	if !(evt.time >= ed.now) {
		panic(fmt.Errorf("%s scheduled before current time %g", evt, ed.now))
	}
	if evt.time > horizon {
		panic(fmt.Errorf("%s scheduled beyond horizon %g", evt, horizon))
	}
	offset := vrtime.SecondsToTicks(evt.time) - ed.evtMgr.CurrentTicks()
	ed.evtMgr.Schedule(ed, evt, handleEvent, vrtime.CreateTime(offset, 0))

	if evt.kind == Arrival {
		ed.cp.markPending(evt.flow)
	}
}

// Run dispatches events until none remain, returning how many it dispatched.  The context is
// checked between events; its error is returned when it ends the run early
func (ed *EventDriver) Run(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ed.ctx = ctx
	ed.stopErr = nil
	ed.runCnt = 0

	ed.evtMgr.Run(horizon)
	// the event manager leaves its clock at the limit when the list drains
	ed.evtMgr.SetTime(vrtime.SecondsToTime(ed.now))

	if ed.stopErr != nil {
		ed.logger.Info("run stopped", "time", ed.now, "dispatched", ed.runCnt, "pending", ed.Pending())
	}
	return ed.runCnt, ed.stopErr
}

// handleEvent is the evtm handler for every event; context is the driver, data the event
func handleEvent(evtMgr *evtm.EventManager, context any, data any) any {
	ed := context.(*EventDriver)
	ed.dispatch(data.(*Event))
	ed.runCnt += 1

	if err := ed.ctx.Err(); err != nil && evtMgr.EventList.Len() > 0 {
		ed.stopErr = err
		evtMgr.Stop()
	}
	return nil
}

// dispatch hands one event to the control plane and the strategy
func (ed *EventDriver) dispatch(evt *Event) {
	ed.now = evt.time
	ed.cp.setTime(evt.time)

	_, span := ed.tracer.Start(ed.ctx, "eonsim/"+evt.kind.String(), trace.WithAttributes(
		attribute.Int64("flow.id", evt.flowID),
		attribute.Float64("sim.time", evt.time)))
	defer span.End()

	switch evt.kind {
	case Arrival:
		ed.cp.newFlow(evt.flow)
		ed.cp.ra.OnFlowArrival(evt.flow)
		ed.cp.decided(evt.flowID)
		span.SetAttributes(attribute.String("flow.state", ed.cp.FlowState(evt.flowID).String()))
	case Departure:
		ed.cp.ra.OnFlowDeparture(evt.flowID)
		ed.cp.removeFlow(evt.flowID)
	}
	ed.dispatched += 1

	for _, observer := range ed.observers {
		observer(evt)
	}
}
