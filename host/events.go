package host

import (
	"sync"

	"github.com/gomlx/gocompute/backend"
)

type eventCallback struct {
	trigger backend.ExecutionStatus
	fn      backend.EventCallback
}

// event tracks the status of a command, or of a user event (queue == nil).
type event struct {
	id      backend.NativeID // Null for events not requested by the caller.
	ctx     *context
	queue   *queue
	command backend.CommandType

	mu        sync.Mutex
	status    backend.ExecutionStatus
	profiling backend.ProfilingInfo
	callbacks []eventCallback
	done      chan struct{} // Closed when status becomes terminal.
}

func newEvent(ctx *context, q *queue, command backend.CommandType, status backend.ExecutionStatus) *event {
	return &event{
		ctx:     ctx,
		queue:   q,
		command: command,
		status:  status,
		done:    make(chan struct{}),
	}
}

func (e *event) Status() backend.ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// wait blocks until the event is terminal, and returns its final status.
func (e *event) wait() backend.ExecutionStatus {
	<-e.done
	return e.Status()
}

// setStatus moves the event forward to status, recording the profiling timestamp and firing the callbacks that
// were waiting for it. Statuses never move backwards, and a terminal status is final: it returns false if the
// event was already terminal.
func (e *event) setStatus(status backend.ExecutionStatus, now uint64) bool {
	e.mu.Lock()
	if e.status.IsTerminal() {
		e.mu.Unlock()
		return false
	}
	if status >= e.status {
		e.mu.Unlock()
		return true
	}
	e.status = status
	switch status {
	case backend.Submitted:
		e.profiling.Submitted = now
	case backend.Running:
		e.profiling.Started = now
	default:
		if e.profiling.Started == 0 {
			e.profiling.Started = now
		}
		e.profiling.Ended = now
	}
	var fire []eventCallback
	remaining := e.callbacks[:0]
	for _, cb := range e.callbacks {
		if status <= cb.trigger {
			fire = append(fire, cb)
		} else {
			remaining = append(remaining, cb)
		}
	}
	e.callbacks = remaining
	if status.IsTerminal() {
		close(e.done)
	}
	e.mu.Unlock()

	for _, cb := range fire {
		go cb.fn(e.id, status)
	}
	return true
}

// addCallback registers fn to be called when the event reaches trigger, or fires it right away if it already has.
func (e *event) addCallback(trigger backend.ExecutionStatus, fn backend.EventCallback) {
	e.mu.Lock()
	if e.status <= trigger {
		status := e.status
		e.mu.Unlock()
		go fn(e.id, status)
		return
	}
	e.callbacks = append(e.callbacks, eventCallback{trigger: trigger, fn: fn})
	e.mu.Unlock()
}

// exposeEvent registers the event in the object table, if the caller requested it.
func (b *Backend) exposeEvent(e *event, slot *backend.NativeID) {
	if slot == nil {
		return
	}
	e.id = b.register(backend.KindEvent, e)
	*slot = e.id
}

// CreateUserEvent implements backend.Backend.
func (b *Backend) CreateUserEvent(ctxID backend.NativeID) (backend.NativeID, backend.Status) {
	b.calls.Add(1)
	ctx, status := lookupAs[*context](b, backend.KindContext, ctxID)
	if !status.IsSuccess() {
		return backend.Null, status
	}
	e := newEvent(ctx, nil, backend.CommandUser, backend.Submitted)
	e.profiling.Queued = b.now()
	e.profiling.Submitted = e.profiling.Queued
	e.id = b.register(backend.KindEvent, e)
	return e.id, backend.Success
}

// SetUserEventStatus implements backend.Backend. The status can be set only once, to Complete or to an error.
func (b *Backend) SetUserEventStatus(id backend.NativeID, status backend.ExecutionStatus) backend.Status {
	b.calls.Add(1)
	e, s := lookupAs[*event](b, backend.KindEvent, id)
	if !s.IsSuccess() {
		return s
	}
	if e.command != backend.CommandUser {
		return backend.InvalidEvent
	}
	if !status.IsTerminal() {
		return backend.InvalidValue
	}
	if !e.setStatus(status, b.now()) {
		return backend.InvalidOperation
	}
	b.logger.V(2).Info("user event set", "event", id, "status", status)
	return backend.Success
}

// EventInfo implements backend.Backend.
func (b *Backend) EventInfo(id backend.NativeID) (backend.EventInfo, backend.Status) {
	b.calls.Add(1)
	e, s := lookupAs[*event](b, backend.KindEvent, id)
	if !s.IsSuccess() {
		return backend.EventInfo{}, s
	}
	info := backend.EventInfo{
		CommandType: e.command,
		Status:      e.Status(),
		Context:     e.ctx.id,
	}
	if e.queue != nil {
		info.Queue = e.queue.id
	}
	return info, backend.Success
}

// EventProfilingInfo implements backend.Backend. Profiling is available for commands of queues created with
// profiling enabled, once they are complete.
func (b *Backend) EventProfilingInfo(id backend.NativeID) (backend.ProfilingInfo, backend.Status) {
	b.calls.Add(1)
	e, s := lookupAs[*event](b, backend.KindEvent, id)
	if !s.IsSuccess() {
		return backend.ProfilingInfo{}, s
	}
	if e.queue == nil || !e.queue.props.Profiling() {
		return backend.ProfilingInfo{}, backend.ProfilingInfoNotAvailable
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != backend.Complete {
		return backend.ProfilingInfo{}, backend.ProfilingInfoNotAvailable
	}
	return e.profiling, backend.Success
}

// SetEventCallback implements backend.Backend. The trigger must be Submitted, Running or Complete.
func (b *Backend) SetEventCallback(id backend.NativeID, trigger backend.ExecutionStatus, callback backend.EventCallback) backend.Status {
	b.calls.Add(1)
	e, s := lookupAs[*event](b, backend.KindEvent, id)
	if !s.IsSuccess() {
		return s
	}
	if callback == nil || trigger < backend.Complete || trigger > backend.Submitted {
		return backend.InvalidValue
	}
	e.addCallback(trigger, callback)
	return backend.Success
}

// resolveEvents converts event ids to events, checking that they all belong to the same context.
func (b *Backend) resolveEvents(ids []backend.NativeID, ctx *context, invalid backend.Status) ([]*event, backend.Status) {
	events := make([]*event, 0, len(ids))
	for _, id := range ids {
		e, s := lookupAs[*event](b, backend.KindEvent, id)
		if !s.IsSuccess() {
			return nil, invalid
		}
		if ctx == nil {
			ctx = e.ctx
		} else if e.ctx != ctx {
			return nil, backend.InvalidContext
		}
		events = append(events, e)
	}
	return events, backend.Success
}

// WaitForEvents implements backend.Backend.
func (b *Backend) WaitForEvents(ids []backend.NativeID) backend.Status {
	b.calls.Add(1)
	if len(ids) == 0 {
		return backend.InvalidValue
	}
	events, s := b.resolveEvents(ids, nil, backend.InvalidEvent)
	if !s.IsSuccess() {
		return s
	}
	result := backend.Success
	for _, e := range events {
		if e.wait().IsError() {
			result = backend.ExecStatusErrorForEventsInWaitList
		}
	}
	return result
}
