package host

import (
	"sync"

	"github.com/gomlx/gocompute/backend"
)

// queue orders commands: each command runs on its own goroutine once its dependencies are terminal.
//
// In an in-order queue every command depends on the previous one. In an out-of-order queue a command depends
// only on its wait list and on the last barrier.
type queue struct {
	id     backend.NativeID
	ctx    *context
	device *device
	props  backend.QueueProperties

	mu           sync.Mutex
	last         *event
	barrier      *event
	sinceBarrier []*event
	pending      map[*event]struct{}
}

// command is a unit of work submitted to a queue.
type command struct {
	event    *event
	waitList []*event

	// after are ordering dependencies: they must be terminal, but their failure doesn't fail the command.
	after []*event

	// barrier commands block all commands submitted after them (out-of-order queues).
	barrier bool
	// marker commands without wait list wait for all commands submitted before them.
	marker bool

	run func() backend.Status
}

const validQueueProperties = backend.QueueOutOfOrderExecModeEnable | backend.QueueProfilingEnable

func (b *Backend) createQueue(ctxID, deviceID backend.NativeID, props backend.QueueProperties) (backend.NativeID, backend.Status) {
	ctx, status := lookupAs[*context](b, backend.KindContext, ctxID)
	if !status.IsSuccess() {
		return backend.Null, status
	}
	d, status := b.findDevice(deviceID)
	if !status.IsSuccess() {
		return backend.Null, status
	}
	if !ctx.hasDevice(d) {
		return backend.Null, backend.InvalidDevice
	}
	if props&^validQueueProperties != 0 {
		return backend.Null, backend.InvalidQueueProperties
	}
	q := &queue{ctx: ctx, device: d, props: props, pending: make(map[*event]struct{})}
	q.id = b.register(backend.KindQueue, q)
	b.logger.V(1).Info("created command queue", "queue", q.id, "device", d.config.Name,
		"out_of_order", props.OutOfOrder(), "profiling", props.Profiling())
	return q.id, backend.Success
}

// CreateCommandQueue implements backend.Backend.
func (b *Backend) CreateCommandQueue(ctxID, deviceID backend.NativeID, props backend.QueueProperties) (backend.NativeID, backend.Status) {
	b.calls.Add(1)
	return b.createQueue(ctxID, deviceID, props)
}

// CreateCommandQueueWithProperties implements backend.Backend. It is only accepted by 2.0+ devices.
func (b *Backend) CreateCommandQueueWithProperties(ctxID, deviceID backend.NativeID, properties []backend.QueueProperty) (backend.NativeID, backend.Status) {
	b.calls.Add(1)
	d, status := b.findDevice(deviceID)
	if !status.IsSuccess() {
		return backend.Null, status
	}
	if status := d.supports(backend.Version2_0); !status.IsSuccess() {
		return backend.Null, status
	}
	var props backend.QueueProperties
	for _, p := range properties {
		switch p.Key {
		case backend.QueuePropertiesKey:
			props = backend.QueueProperties(p.Value)
		case backend.QueueSizeKey:
			// Host queues are unbounded.
		default:
			return backend.Null, backend.InvalidValue
		}
	}
	return b.createQueue(ctxID, deviceID, props)
}

// QueueInfo implements backend.Backend.
func (b *Backend) QueueInfo(id backend.NativeID) (backend.QueueInfo, backend.Status) {
	b.calls.Add(1)
	q, status := lookupAs[*queue](b, backend.KindQueue, id)
	if !status.IsSuccess() {
		return backend.QueueInfo{}, status
	}
	return backend.QueueInfo{Context: q.ctx.id, Device: q.device.id, Properties: q.props}, backend.Success
}

// queueFor returns the queue of an enqueue call and its resolved wait list.
func (b *Backend) queueFor(common *backend.Common) (*queue, []*event, backend.Status) {
	q, status := lookupAs[*queue](b, backend.KindQueue, common.Queue)
	if !status.IsSuccess() {
		return nil, nil, status
	}
	waitList, status := b.resolveEvents(common.WaitList, q.ctx, backend.InvalidEventWaitList)
	if !status.IsSuccess() {
		return nil, nil, status
	}
	return q, waitList, backend.Success
}

// submit a command to the queue: it computes its ordering dependencies, exposes its event if requested and
// launches it. If blocking, it waits for the command to finish and returns its error status, if any.
func (b *Backend) submit(q *queue, common *backend.Common, commandType backend.CommandType, cmd *command, blocking bool) backend.Status {
	cmd.event = newEvent(q.ctx, q, commandType, backend.Queued)
	cmd.event.profiling.Queued = b.now()
	b.exposeEvent(cmd.event, common.Event)

	q.mu.Lock()
	if !q.props.OutOfOrder() {
		if q.last != nil {
			cmd.after = append(cmd.after, q.last)
		}
	} else {
		if (cmd.barrier || cmd.marker) && len(cmd.waitList) == 0 {
			cmd.after = append(cmd.after, q.sinceBarrier...)
		}
		if q.barrier != nil {
			cmd.after = append(cmd.after, q.barrier)
		}
	}
	q.last = cmd.event
	if cmd.barrier {
		q.barrier = cmd.event
		q.sinceBarrier = nil
	} else {
		// Prune terminal events, they impose no ordering anymore.
		live := q.sinceBarrier[:0]
		for _, e := range q.sinceBarrier {
			if !e.Status().IsTerminal() {
				live = append(live, e)
			}
		}
		q.sinceBarrier = append(live, cmd.event)
	}
	q.pending[cmd.event] = struct{}{}
	q.mu.Unlock()

	b.logger.V(2).Info("enqueued", "queue", q.id, "command", commandType, "event", cmd.event.id,
		"wait_list", len(cmd.waitList), "blocking", blocking)
	go b.execute(q, cmd)

	if blocking {
		if status := cmd.event.wait(); status.IsError() {
			return status.Err()
		}
	}
	return backend.Success
}

// execute runs in its own goroutine: it waits for the dependencies, runs the command and finalizes its event.
func (b *Backend) execute(q *queue, cmd *command) {
	e := cmd.event
	e.setStatus(backend.Submitted, b.now())
	for _, dep := range cmd.after {
		<-dep.done
	}
	failed := false
	for _, dep := range cmd.waitList {
		if dep.wait().IsError() {
			failed = true
		}
	}

	final := backend.Complete
	if failed {
		final = backend.ErrorStatus(backend.ExecStatusErrorForEventsInWaitList)
	} else {
		e.setStatus(backend.Running, b.now())
		if cmd.run != nil {
			if status := cmd.run(); !status.IsSuccess() {
				final = backend.ErrorStatus(status)
			}
		}
	}
	if final.IsError() {
		b.logger.V(2).Info("command failed", "queue", q.id, "command", e.command, "status", final)
	}
	e.setStatus(final, b.now())

	q.mu.Lock()
	delete(q.pending, e)
	q.mu.Unlock()
}

// Flush implements backend.Backend. Commands are launched as they are submitted, so there is nothing to flush.
func (b *Backend) Flush(id backend.NativeID) backend.Status {
	b.calls.Add(1)
	_, status := lookupAs[*queue](b, backend.KindQueue, id)
	return status
}

// Finish implements backend.Backend: it waits for all commands submitted so far.
func (b *Backend) Finish(id backend.NativeID) backend.Status {
	b.calls.Add(1)
	q, status := lookupAs[*queue](b, backend.KindQueue, id)
	if !status.IsSuccess() {
		return status
	}
	q.mu.Lock()
	pending := make([]*event, 0, len(q.pending))
	for e := range q.pending {
		pending = append(pending, e)
	}
	q.mu.Unlock()
	for _, e := range pending {
		<-e.done
	}
	return backend.Success
}

// EnqueueBarrier implements backend.Backend (legacy form).
func (b *Backend) EnqueueBarrier(queueID backend.NativeID) backend.Status {
	return b.enqueueBarrier(&backend.Common{Queue: queueID}, false)
}

// EnqueueMarker implements backend.Backend (legacy form). The event is mandatory.
func (b *Backend) EnqueueMarker(queueID backend.NativeID, eventSlot *backend.NativeID) backend.Status {
	if eventSlot == nil {
		b.calls.Add(1)
		b.enqueues.Add(1)
		return backend.InvalidValue
	}
	return b.enqueueMarker(&backend.Common{Queue: queueID, Event: eventSlot}, false)
}

// EnqueueBarrierWithWaitList implements backend.Backend. It requires a 1.2 device.
func (b *Backend) EnqueueBarrierWithWaitList(args *backend.Common) backend.Status {
	return b.enqueueBarrier(args, true)
}

func (b *Backend) enqueueBarrier(args *backend.Common, withWaitList bool) backend.Status {
	b.calls.Add(1)
	b.enqueues.Add(1)
	q, waitList, status := b.queueFor(args)
	if !status.IsSuccess() {
		return status
	}
	if withWaitList {
		if status := q.device.supports(backend.Version1_2); !status.IsSuccess() {
			return status
		}
	}
	return b.submit(q, args, backend.CommandBarrier, &command{waitList: waitList, barrier: true}, false)
}

// EnqueueMarkerWithWaitList implements backend.Backend. It requires a 1.2 device.
func (b *Backend) EnqueueMarkerWithWaitList(args *backend.Common) backend.Status {
	return b.enqueueMarker(args, true)
}

func (b *Backend) enqueueMarker(args *backend.Common, withWaitList bool) backend.Status {
	b.calls.Add(1)
	b.enqueues.Add(1)
	q, waitList, status := b.queueFor(args)
	if !status.IsSuccess() {
		return status
	}
	if withWaitList {
		if status := q.device.supports(backend.Version1_2); !status.IsSuccess() {
			return status
		}
	}
	return b.submit(q, args, backend.CommandMarker, &command{waitList: waitList, marker: true}, false)
}
