package compute

import (
	"github.com/gomlx/gocompute/backend"
)

func (q *CommandQueue) assertKernel(op string, k *Kernel) {
	q.assertValid(op)
	if k == nil || k.IsNull() {
		panicf("%s: null kernel", op)
	}
	if k.Backend() != q.Backend() || k.context != q.context {
		panicf("%s: kernel %q belongs to a different context than the queue", op, k.name)
	}
}

func (q *CommandQueue) ndRangeArgs(op string, k *Kernel, offset, global, local Extents, waitList []*Event) *backend.NDRangeArgs {
	q.assertKernel(op, k)
	workDim := len(global)
	if workDim == 0 || workDim > 3 {
		panicf("%s: invalid number of dimensions %d, it must be 1 to 3", op, workDim)
	}
	if offset != nil && len(offset) != workDim {
		panicf("%s: offset %v doesn't have %d dimensions", op, offset, workDim)
	}
	if local != nil && len(local) != workDim {
		panicf("%s: local size %v doesn't have %d dimensions", op, local, workDim)
	}
	return &backend.NDRangeArgs{Common: q.common(op, waitList), Kernel: k.ID(), WorkDim: workDim,
		GlobalOffset: offset, GlobalSize: global, LocalSize: local}
}

// EnqueueNDRangeKernel runs the kernel over the global range, split in work-groups of local size. offset may be
// nil (all 0), and local may be nil to let the backend choose the work-group size.
func (q *CommandQueue) EnqueueNDRangeKernel(k *Kernel, offset, global, local Extents, waitList ...*Event) error {
	const op = "EnqueueNDRangeKernel"
	args := q.ndRangeArgs(op, k, offset, global, local, waitList)
	return q.dispatchAndWait(op, &args.Common, func() backend.Status { return q.Backend().EnqueueNDRangeKernel(args) })
}

// EnqueueNDRangeKernelAsync is the asynchronous version of EnqueueNDRangeKernel.
func (q *CommandQueue) EnqueueNDRangeKernelAsync(k *Kernel, offset, global, local Extents, waitList ...*Event) (*Event, error) {
	const op = "EnqueueNDRangeKernel"
	args := q.ndRangeArgs(op, k, offset, global, local, waitList)
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueNDRangeKernel(args) })
}

func extents1D(offset, global, local int) (Extents, Extents, Extents) {
	var o, l Extents
	if offset != 0 {
		o = Extents{offset}
	}
	if local != 0 {
		l = Extents{local}
	}
	return o, Extents{global}, l
}

// Enqueue1DRangeKernel is EnqueueNDRangeKernel for 1 dimension. A local size of 0 lets the backend choose it.
func (q *CommandQueue) Enqueue1DRangeKernel(k *Kernel, offset, global, local int, waitList ...*Event) error {
	o, g, l := extents1D(offset, global, local)
	return q.EnqueueNDRangeKernel(k, o, g, l, waitList...)
}

// Enqueue1DRangeKernelAsync is the asynchronous version of Enqueue1DRangeKernel.
func (q *CommandQueue) Enqueue1DRangeKernelAsync(k *Kernel, offset, global, local int, waitList ...*Event) (*Event, error) {
	o, g, l := extents1D(offset, global, local)
	return q.EnqueueNDRangeKernelAsync(k, o, g, l, waitList...)
}

// EnqueueTask runs the kernel as a single work-item.
//
// Devices supporting FeatureTaskAsNDRange get a 1-dimensional range of size 1, the others the legacy task
// entry point.
func (q *CommandQueue) EnqueueTask(k *Kernel, waitList ...*Event) error {
	event, err := q.EnqueueTaskAsync(k, waitList...)
	if err != nil {
		return err
	}
	defer event.Release()
	if err := event.Wait(); err != nil {
		return err
	}
	return nil
}

// EnqueueTaskAsync is the asynchronous version of EnqueueTask.
func (q *CommandQueue) EnqueueTaskAsync(k *Kernel, waitList ...*Event) (*Event, error) {
	const op = "EnqueueTask"
	q.assertKernel(op, k)
	asNDRange, err := q.Supports(FeatureTaskAsNDRange)
	if err != nil {
		return nil, err
	}
	if asNDRange {
		return q.EnqueueNDRangeKernelAsync(k, nil, Extents{1}, Extents{1}, waitList...)
	}
	args := &backend.TaskArgs{Common: q.common(op, waitList), Kernel: k.ID()}
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueTask(args) })
}

func (q *CommandQueue) nativeKernelArgs(op string, fn func(mems [][]byte), mems []MemObject, waitList []*Event) *backend.NativeKernelArgs {
	if fn == nil {
		panicf("%s: nil function", op)
	}
	ids := make([]backend.NativeID, len(mems))
	for ii, mem := range mems {
		q.assertMem(op, mem)
		ids[ii] = mem.handle().ID()
	}
	return &backend.NativeKernelArgs{Common: q.common(op, waitList), Func: fn, Mems: ids}
}

// EnqueueNativeKernel runs fn on the host as a command of the queue.
func (q *CommandQueue) EnqueueNativeKernel(fn func(), waitList ...*Event) error {
	if fn == nil {
		panicf("EnqueueNativeKernel: nil function")
	}
	return q.EnqueueNativeKernelWithMemObjects(func([][]byte) { fn() }, nil, waitList...)
}

// EnqueueNativeKernelAsync is the asynchronous version of EnqueueNativeKernel.
func (q *CommandQueue) EnqueueNativeKernelAsync(fn func(), waitList ...*Event) (*Event, error) {
	if fn == nil {
		panicf("EnqueueNativeKernelAsync: nil function")
	}
	return q.EnqueueNativeKernelWithMemObjectsAsync(func([][]byte) { fn() }, nil, waitList...)
}

// EnqueueNativeKernelWithMemObjects runs fn on the host as a command of the queue, with host views of the
// memory objects, in the same order.
func (q *CommandQueue) EnqueueNativeKernelWithMemObjects(fn func(mems [][]byte), mems []MemObject, waitList ...*Event) error {
	const op = "EnqueueNativeKernel"
	args := q.nativeKernelArgs(op, fn, mems, waitList)
	return q.dispatchAndWait(op, &args.Common, func() backend.Status { return q.Backend().EnqueueNativeKernel(args) })
}

// EnqueueNativeKernelWithMemObjectsAsync is the asynchronous version of EnqueueNativeKernelWithMemObjects.
func (q *CommandQueue) EnqueueNativeKernelWithMemObjectsAsync(fn func(mems [][]byte), mems []MemObject, waitList ...*Event) (*Event, error) {
	const op = "EnqueueNativeKernel"
	args := q.nativeKernelArgs(op, fn, mems, waitList)
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueNativeKernel(args) })
}
