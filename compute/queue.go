package compute

import (
	"sync/atomic"

	"github.com/gomlx/gocompute/backend"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CommandQueue submits commands to one device of a context.
//
// Every operation has a synchronous form, which returns once the command completed, and an asynchronous form
// (suffix Async) that returns the Event tracking the command. All of them take an optional trailing wait list
// of events that must complete before the command starts.
//
// Operations that need a feature the device doesn't support (see FeatureTable) return an
// UnsupportedOperationError without reaching the backend. Failures reported by the backend are returned as an
// OperationError. Invalid arguments (null queue, objects of another context, out of bounds ranges) are
// programming errors and panic.
//
// A CommandQueue is safe to use from multiple goroutines, except for Release, Move and Clone, which must not
// run concurrently with other uses.
type CommandQueue struct {
	Handle
	context    backend.NativeID
	device     backend.NativeID
	properties backend.QueueProperties
	features   FeatureTable

	// version of the device, memoized on first use. 0 means not resolved yet.
	version atomic.Int32
}

func newCommandQueue(h Handle, ctx, device backend.NativeID, props backend.QueueProperties, features FeatureTable,
	version backend.Version) *CommandQueue {
	q := &CommandQueue{Handle: h, context: ctx, device: device, properties: props, features: features}
	q.version.Store(int32(version))
	return track(q, h)
}

// QueueConfig configures the creation of a CommandQueue, see Context.NewCommandQueue.
type QueueConfig struct {
	ctx        *Context
	device     *Device
	properties backend.QueueProperties
	queueSize  int
	features   FeatureTable
	err        error
}

// NewCommandQueue returns a configuration to create a command queue for device, which must be one of the
// devices of the context. Call Done to create it.
func (c *Context) NewCommandQueue(device *Device) *QueueConfig {
	c.assertValid("Context.NewCommandQueue")
	cfg := &QueueConfig{ctx: c, device: device, features: DefaultFeatureTable()}
	if device == nil || device.ID().IsNull() {
		cfg.err = errors.New("Context.NewCommandQueue: nil device")
	} else if device.Backend() != c.Backend() {
		cfg.err = errors.Errorf("Context.NewCommandQueue: device %s is from a different backend", device)
	}
	return cfg
}

// WithProfiling enables the profiling of commands, see Event.ProfilingInfo.
func (b *QueueConfig) WithProfiling() *QueueConfig {
	return b.WithProperties(backend.QueueProfilingEnable)
}

// WithOutOfOrder enables the out-of-order execution of commands: commands only wait on their wait list and
// on the previous barrier.
func (b *QueueConfig) WithOutOfOrder() *QueueConfig {
	return b.WithProperties(backend.QueueOutOfOrderExecModeEnable)
}

// WithProperties adds the given property flags.
func (b *QueueConfig) WithProperties(properties backend.QueueProperties) *QueueConfig {
	if b.err != nil {
		return b
	}
	b.properties |= properties
	return b
}

// WithQueueSize sets the size of the device queue. It requires FeatureQueueProperties.
func (b *QueueConfig) WithQueueSize(size int) *QueueConfig {
	if b.err != nil {
		return b
	}
	if size <= 0 {
		b.err = errors.Errorf("QueueConfig.WithQueueSize: invalid size %d", size)
		return b
	}
	b.queueSize = size
	return b
}

// WithFeatureTable sets the minimum device versions of the features used by the queue. The default is
// DefaultFeatureTable.
func (b *QueueConfig) WithFeatureTable(features FeatureTable) *QueueConfig {
	if b.err != nil {
		return b
	}
	if features == nil {
		b.err = errors.New("QueueConfig.WithFeatureTable: nil table")
		return b
	}
	b.features = features.Clone()
	return b
}

// Done creates the command queue.
//
// Devices supporting FeatureQueueProperties get their queue created through the property list entry point,
// the others through the legacy one.
func (b *QueueConfig) Done() (*CommandQueue, error) {
	if b.err != nil {
		return nil, b.err
	}
	be := b.ctx.Backend()
	version, err := b.device.Version()
	if err != nil {
		return nil, err
	}
	var (
		id     backend.NativeID
		status backend.Status
		op     string
	)
	if b.features.Supports(FeatureQueueProperties, version) {
		op = "CreateCommandQueueWithProperties"
		properties := []backend.QueueProperty{{Key: backend.QueuePropertiesKey, Value: uint64(b.properties)}}
		if b.queueSize > 0 {
			properties = append(properties, backend.QueueProperty{Key: backend.QueueSizeKey, Value: uint64(b.queueSize)})
		}
		id, status = be.CreateCommandQueueWithProperties(b.ctx.ID(), b.device.ID(), properties)
	} else {
		if b.queueSize > 0 {
			return nil, errors.WithStack(&UnsupportedOperationError{Op: "QueueConfig.WithQueueSize",
				Feature: FeatureQueueProperties, Required: b.features.MinVersion(FeatureQueueProperties), Device: version})
		}
		op = "CreateCommandQueue"
		id, status = be.CreateCommandQueue(b.ctx.ID(), b.device.ID(), b.properties)
	}
	if err := toError(op, status); err != nil {
		return nil, errors.WithMessagef(err, "device %s", b.device)
	}
	h, err := newHandle(be, backend.KindQueue, id, false)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("compute: created command queue %#x on %s (version %s, properties=%#x)",
		uintptr(id), b.device, version, uint64(b.properties))
	return newCommandQueue(h, b.ctx.ID(), b.device.ID(), b.properties, b.features, version), nil
}

// AdoptCommandQueue wraps a queue id created elsewhere. If retain is false, the reference held by the caller is
// transferred to the returned CommandQueue. A nil features uses DefaultFeatureTable.
//
// The id may be backend.Null, creating a null queue.
func AdoptCommandQueue(b backend.Backend, id backend.NativeID, retain bool, features FeatureTable) (*CommandQueue, error) {
	if features == nil {
		features = DefaultFeatureTable()
	}
	var info backend.QueueInfo
	if !id.IsNull() {
		var status backend.Status
		info, status = b.QueueInfo(id)
		if err := toError("QueueInfo", status); err != nil {
			return nil, err
		}
	}
	h, err := newHandle(b, backend.KindQueue, id, retain)
	if err != nil {
		return nil, err
	}
	return newCommandQueue(h, info.Context, info.Device, info.Properties, features.Clone(), backend.VersionUnknown), nil
}

// Clone returns a new reference to the same queue.
func (q *CommandQueue) Clone() *CommandQueue {
	return newCommandQueue(q.clone(), q.context, q.device, q.properties, q.features,
		backend.Version(q.version.Load()))
}

// Move returns a CommandQueue owning the reference held by q, and leaves q null.
func (q *CommandQueue) Move() *CommandQueue {
	return newCommandQueue(q.move(), q.context, q.device, q.properties, q.features,
		backend.Version(q.version.Load()))
}

// Context returns a new reference to the context of the queue.
func (q *CommandQueue) Context() (*Context, error) {
	q.assertValid("CommandQueue.Context")
	return AdoptContext(q.Backend(), q.context, true)
}

// Device of the queue.
func (q *CommandQueue) Device() *Device {
	q.assertValid("CommandQueue.Device")
	return NewDevice(q.Backend(), q.device)
}

// Properties the queue was created with.
func (q *CommandQueue) Properties() backend.QueueProperties { return q.properties }

// Features returns a copy of the feature table of the queue.
func (q *CommandQueue) Features() FeatureTable { return q.features.Clone() }

// Version returns the version of the queue's device. It is queried once and memoized.
func (q *CommandQueue) Version() (backend.Version, error) {
	if v := backend.Version(q.version.Load()); v != backend.VersionUnknown {
		return v, nil
	}
	q.assertValid("CommandQueue.Version")
	info, status := q.Backend().DeviceInfo(q.device)
	if err := toError("DeviceInfo", status); err != nil {
		return backend.VersionUnknown, err
	}
	// Concurrent resolutions store the same value.
	q.version.Store(int32(info.Version))
	return info.Version, nil
}

// CheckDeviceVersion returns whether the device version is at least major.minor.
func (q *CommandQueue) CheckDeviceVersion(major, minor int) (bool, error) {
	v, err := q.Version()
	if err != nil {
		return false, err
	}
	return v >= backend.MakeVersion(major, minor), nil
}

// Supports returns whether the queue's device supports the feature, according to the queue's FeatureTable.
func (q *CommandQueue) Supports(feature Feature) (bool, error) {
	v, err := q.Version()
	if err != nil {
		return false, err
	}
	return q.features.Supports(feature, v), nil
}

// requireFeature returns an UnsupportedOperationError if the device doesn't support the feature.
func (q *CommandQueue) requireFeature(op string, feature Feature) error {
	v, err := q.Version()
	if err != nil {
		return errors.WithMessagef(err, "%s: failed to resolve device version", op)
	}
	if !q.features.Supports(feature, v) {
		return errors.WithStack(&UnsupportedOperationError{Op: op, Feature: feature,
			Required: q.features.MinVersion(feature), Device: v})
	}
	return nil
}

// common validates the queue and the wait list, and returns the common arguments of an enqueue call.
func (q *CommandQueue) common(op string, waitList []*Event) backend.Common {
	q.assertValid(op)
	return backend.Common{Queue: q.ID(), WaitList: WaitList(waitList).ids(op, q.Backend(), q.context)}
}

// assertMem panics if mem is null or belongs to another context.
func (q *CommandQueue) assertMem(op string, mem MemObject) {
	q.assertValid(op)
	if mem == nil || mem.handle().IsNull() {
		panicf("%s: null memory object", op)
	}
	if mem.handle().Backend() != q.Backend() {
		panicf("%s: memory object is from a different backend", op)
	}
	if mem.memContext() != q.context {
		panicf("%s: memory object %#x belongs to a different context than the queue", op, uintptr(mem.handle().ID()))
	}
}

// assertRange panics if [offset, offset+size) is not within [0, limit).
func assertRange(op, what string, offset, size, limit int) {
	if offset < 0 || size < 0 || offset+size > limit {
		panicf("%s: %s range [%d, %d) out of bounds (size %d)", op, what, offset, offset+size, limit)
	}
}

// dispatch submits an enqueue call requesting an event, and returns the event.
func (q *CommandQueue) dispatch(op string, common *backend.Common, call func() backend.Status) (*Event, error) {
	var id backend.NativeID
	common.Event = &id
	if err := toError(op, call()); err != nil {
		return nil, err
	}
	if klog.V(2).Enabled() {
		klog.Infof("compute: queue %#x: %s -> event %#x (waits on %d)", uintptr(q.ID()), op, uintptr(id), len(common.WaitList))
	}
	return adoptEvent(q.Backend(), id, q.context)
}

// dispatchAndWait submits an enqueue call and waits for it to complete, using a temporary event.
func (q *CommandQueue) dispatchAndWait(op string, common *backend.Common, call func() backend.Status) error {
	event, err := q.dispatch(op, common, call)
	if err != nil {
		return err
	}
	defer event.Release()
	if err := event.Wait(); err != nil {
		return errors.WithMessage(err, op)
	}
	return nil
}

// dispatchBlocking submits an enqueue call whose blocking flag is set: it returns once the command completed.
func (q *CommandQueue) dispatchBlocking(op string, call func() backend.Status) error {
	return toError(op, call())
}

// Flush submits the queued commands to the device, without waiting for them.
func (q *CommandQueue) Flush() error {
	q.assertValid("CommandQueue.Flush")
	return toError("Flush", q.Backend().Flush(q.ID()))
}

// Finish blocks until all the commands submitted to the queue completed.
func (q *CommandQueue) Finish() error {
	q.assertValid("CommandQueue.Finish")
	return toError("Finish", q.Backend().Finish(q.ID()))
}

// EnqueueBarrier makes all commands submitted after it wait for the completion of all the commands submitted
// before it. It doesn't block.
func (q *CommandQueue) EnqueueBarrier() error {
	const op = "EnqueueBarrier"
	common := q.common(op, nil)
	supported, err := q.Supports(FeatureWaitListSync)
	if err != nil {
		return err
	}
	if supported {
		return toError("EnqueueBarrierWithWaitList", q.Backend().EnqueueBarrierWithWaitList(&common))
	}
	return toError(op, q.Backend().EnqueueBarrier(q.ID()))
}

// EnqueueBarrierWithWaitList makes all commands submitted after it wait for the events of waitList, or for
// all the commands submitted before it if waitList is empty. It requires FeatureWaitListSync.
func (q *CommandQueue) EnqueueBarrierWithWaitList(waitList ...*Event) error {
	const op = "EnqueueBarrierWithWaitList"
	common := q.common(op, waitList)
	if err := q.requireFeature(op, FeatureWaitListSync); err != nil {
		return err
	}
	return toError(op, q.Backend().EnqueueBarrierWithWaitList(&common))
}

// EnqueueMarker returns an event that completes when all the commands submitted before it complete.
func (q *CommandQueue) EnqueueMarker() (*Event, error) {
	const op = "EnqueueMarker"
	common := q.common(op, nil)
	supported, err := q.Supports(FeatureWaitListSync)
	if err != nil {
		return nil, err
	}
	if supported {
		return q.dispatch("EnqueueMarkerWithWaitList", &common, func() backend.Status {
			return q.Backend().EnqueueMarkerWithWaitList(&common)
		})
	}
	return q.dispatch(op, &common, func() backend.Status {
		return q.Backend().EnqueueMarker(q.ID(), common.Event)
	})
}

// EnqueueMarkerWithWaitList returns an event that completes when the events of waitList complete, or all the
// commands submitted before it if waitList is empty. It requires FeatureWaitListSync.
func (q *CommandQueue) EnqueueMarkerWithWaitList(waitList ...*Event) (*Event, error) {
	const op = "EnqueueMarkerWithWaitList"
	common := q.common(op, waitList)
	if err := q.requireFeature(op, FeatureWaitListSync); err != nil {
		return nil, err
	}
	return q.dispatch(op, &common, func() backend.Status {
		return q.Backend().EnqueueMarkerWithWaitList(&common)
	})
}
