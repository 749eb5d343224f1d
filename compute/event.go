package compute

import (
	"time"

	"github.com/gomlx/gocompute/backend"
	"github.com/pkg/errors"
)

// Event tracks the execution of one command. It is returned by the asynchronous (...Async) enqueue
// operations and can be given in the wait list of later commands.
type Event struct {
	Handle
	context backend.NativeID
}

func newEvent(h Handle, ctx backend.NativeID) *Event {
	return track(&Event{Handle: h, context: ctx}, h)
}

// adoptEvent takes the reference of an event just returned by the backend.
func adoptEvent(b backend.Backend, id backend.NativeID, ctx backend.NativeID) (*Event, error) {
	h, err := newHandle(b, backend.KindEvent, id, false)
	if err != nil {
		return nil, err
	}
	return newEvent(h, ctx), nil
}

// AdoptEvent wraps an event id created elsewhere. If retain is false, the reference held by the caller is
// transferred to the returned Event.
func AdoptEvent(b backend.Backend, id backend.NativeID, retain bool) (*Event, error) {
	var info backend.EventInfo
	if !id.IsNull() {
		var status backend.Status
		info, status = b.EventInfo(id)
		if err := toError("EventInfo", status); err != nil {
			return nil, err
		}
	}
	h, err := newHandle(b, backend.KindEvent, id, retain)
	if err != nil {
		return nil, err
	}
	return newEvent(h, info.Context), nil
}

// Clone returns a new reference to the same event.
func (e *Event) Clone() *Event {
	return newEvent(e.clone(), e.context)
}

// Move returns an Event owning the reference held by e, and leaves e null.
func (e *Event) Move() *Event {
	return newEvent(e.move(), e.context)
}

func (e *Event) info(op string) (backend.EventInfo, error) {
	e.assertValid(op)
	info, status := e.Backend().EventInfo(e.ID())
	return info, toError("EventInfo", status)
}

// Status returns the current execution status of the command.
func (e *Event) Status() (backend.ExecutionStatus, error) {
	info, err := e.info("Event.Status")
	return info.Status, err
}

// CommandType returns the type of command the event tracks.
func (e *Event) CommandType() (backend.CommandType, error) {
	info, err := e.info("Event.CommandType")
	return info.CommandType, err
}

// Wait blocks until the command completes. If the command failed, the returned error carries its status.
func (e *Event) Wait() error {
	e.assertValid("Event.Wait")
	status := e.Backend().WaitForEvents([]backend.NativeID{e.ID()})
	if status == backend.ExecStatusErrorForEventsInWaitList {
		if exec, err := e.Status(); err == nil && exec.IsError() {
			status = exec.Err()
		}
	}
	return toError("Wait", status)
}

// ProfilingInfo returns the device timestamps of the command. It is only available for commands of queues
// created with profiling enabled, once they completed.
func (e *Event) ProfilingInfo() (backend.ProfilingInfo, error) {
	e.assertValid("Event.ProfilingInfo")
	info, status := e.Backend().EventProfilingInfo(e.ID())
	return info, toError("EventProfilingInfo", status)
}

// Duration returns the time the command took to execute, see ProfilingInfo.
func (e *Event) Duration() (time.Duration, error) {
	info, err := e.ProfilingInfo()
	if err != nil {
		return 0, err
	}
	return time.Duration(info.Ended - info.Started), nil
}

// OnStatus registers fn to be called once the command reaches the trigger status (Submitted, Running or
// Complete), or terminates with an error. fn is called from a goroutine of the backend, with the status
// reached.
func (e *Event) OnStatus(trigger backend.ExecutionStatus, fn func(status backend.ExecutionStatus)) error {
	e.assertValid("Event.OnStatus")
	if fn == nil {
		panicf("Event.OnStatus: nil callback")
	}
	return toError("SetEventCallback", e.Backend().SetEventCallback(e.ID(), trigger,
		func(_ backend.NativeID, status backend.ExecutionStatus) {
			fn(status)
		}))
}

// OnComplete registers a continuation called when the command terminates, successfully or not.
func (e *Event) OnComplete(fn func(status backend.ExecutionStatus)) error {
	return e.OnStatus(backend.Complete, fn)
}

// UserEvent is an Event whose status is set by the host, to make commands wait on host side work.
//
// It starts as Submitted and transitions exactly once to a terminal status (Complete or an error), with
// SetStatus or SetComplete.
type UserEvent struct {
	Event
}

func newUserEvent(b backend.Backend, ctx backend.NativeID) (*UserEvent, error) {
	id, status := b.CreateUserEvent(ctx)
	if err := toError("CreateUserEvent", status); err != nil {
		return nil, err
	}
	h, err := newHandle(b, backend.KindEvent, id, false)
	if err != nil {
		return nil, err
	}
	return track(&UserEvent{Event: Event{Handle: h, context: ctx}}, h), nil
}

// Clone returns a new reference to the same user event.
func (e *UserEvent) Clone() *UserEvent {
	h := e.clone()
	return track(&UserEvent{Event: Event{Handle: h, context: e.context}}, h)
}

// Move returns a UserEvent owning the reference held by e, and leaves e null.
func (e *UserEvent) Move() *UserEvent {
	h := e.move()
	return track(&UserEvent{Event: Event{Handle: h, context: e.context}}, h)
}

// SetStatus sets the terminal status of the event: backend.Complete or an error status (see
// backend.ErrorStatus). Only the first call succeeds.
func (e *UserEvent) SetStatus(status backend.ExecutionStatus) error {
	e.assertValid("UserEvent.SetStatus")
	if !status.IsTerminal() {
		panicf("UserEvent.SetStatus: status %s is not terminal", status)
	}
	return toError("SetUserEventStatus", e.Backend().SetUserEventStatus(e.ID(), status))
}

// SetComplete marks the event as complete.
func (e *UserEvent) SetComplete() error {
	return e.SetStatus(backend.Complete)
}

// WaitList is a list of events a command waits on before it starts. Null events are ignored.
//
// It can be given directly as the variadic wait list of the enqueue operations: queue.EnqueueBarrierWithWaitList(wl...).
type WaitList []*Event

// Insert appends events to the list.
func (wl *WaitList) Insert(events ...*Event) {
	*wl = append(*wl, events...)
}

// Len returns the number of events in the list.
func (wl WaitList) Len() int { return len(wl) }

// Wait blocks until all the events complete.
func (wl WaitList) Wait() error {
	return WaitForEvents(wl...)
}

// Release all the events of the list, and empties it.
func (wl *WaitList) Release() {
	for _, e := range *wl {
		if e != nil {
			e.Release()
		}
	}
	*wl = nil
}

// ids returns the ids of the non-null events, checking that they belong to ctx.
func (wl WaitList) ids(op string, b backend.Backend, ctx backend.NativeID) []backend.NativeID {
	if len(wl) == 0 {
		return nil
	}
	ids := make([]backend.NativeID, 0, len(wl))
	for ii, e := range wl {
		if e == nil || e.IsNull() {
			continue
		}
		if b != nil && e.Backend() != b {
			panicf("%s: event #%d of the wait list is from a different backend", op, ii)
		}
		if !ctx.IsNull() && !e.context.IsNull() && e.context != ctx {
			panicf("%s: event #%d of the wait list belongs to a different context", op, ii)
		}
		ids = append(ids, e.ID())
	}
	return ids
}

// WaitForEvents blocks until all the events complete. Null events are ignored.
//
// It returns an error if any of them failed.
func WaitForEvents(events ...*Event) error {
	var b backend.Backend
	for _, e := range events {
		if e != nil && !e.IsNull() {
			b = e.Backend()
			break
		}
	}
	if b == nil {
		return nil
	}
	ids := WaitList(events).ids("WaitForEvents", b, backend.Null)
	if err := toError("WaitForEvents", b.WaitForEvents(ids)); err != nil {
		return errors.WithMessagef(err, "waiting for %d event(s)", len(ids))
	}
	return nil
}
