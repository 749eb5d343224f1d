package host

import (
	"runtime"
	"slices"
	"sync"

	"github.com/gomlx/gocompute/backend"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// WorkItem identifies one invocation of a kernel in an NDRange.
type WorkItem struct {
	WorkDim                             int
	GlobalID, LocalID, GroupID          [3]int
	GlobalSize, LocalSize, GlobalOffset [3]int
}

// KernelFunc is the body of a host kernel, called once per work-item.
//
// Arguments set with a backend.MemArg are given as the []byte storage of the memory object; other arguments
// are given as set. Work-groups run concurrently, work-items of a work-group run sequentially.
type KernelFunc func(item WorkItem, args []any)

type kernel struct {
	id      backend.NativeID
	ctx     *context
	name    string
	numArgs int
	fn      KernelFunc

	mu   sync.Mutex
	args []any
	set  []bool
}

// NewKernel creates a kernel in the context, with the given number of arguments, that runs fn for each
// work-item. The returned id has a reference count of 1.
func (b *Backend) NewKernel(ctxID backend.NativeID, name string, numArgs int, fn KernelFunc) (backend.NativeID, backend.Status) {
	b.calls.Add(1)
	ctx, status := lookupAs[*context](b, backend.KindContext, ctxID)
	if !status.IsSuccess() {
		return backend.Null, status
	}
	if fn == nil || numArgs < 0 {
		return backend.Null, backend.InvalidValue
	}
	k := &kernel{ctx: ctx, name: name, numArgs: numArgs, fn: fn, args: make([]any, numArgs), set: make([]bool, numArgs)}
	k.id = b.register(backend.KindKernel, k)
	return k.id, backend.Success
}

// KernelInfo implements backend.Backend.
func (b *Backend) KernelInfo(id backend.NativeID) (backend.KernelInfo, backend.Status) {
	b.calls.Add(1)
	k, status := lookupAs[*kernel](b, backend.KindKernel, id)
	if !status.IsSuccess() {
		return backend.KernelInfo{}, status
	}
	return backend.KernelInfo{Name: k.name, NumArgs: k.numArgs, Context: k.ctx.id}, backend.Success
}

// SetKernelArg implements backend.Backend. Memory objects must belong to the kernel's context.
func (b *Backend) SetKernelArg(id backend.NativeID, index int, value any) backend.Status {
	b.calls.Add(1)
	k, status := lookupAs[*kernel](b, backend.KindKernel, id)
	if !status.IsSuccess() {
		return status
	}
	if index < 0 || index >= k.numArgs {
		return backend.InvalidArgIndex
	}
	switch v := value.(type) {
	case nil:
		return backend.InvalidArgValue
	case backend.MemArg:
		mem, status := b.memInContext(backend.KindInvalid, v.ID, k.ctx)
		if !status.IsSuccess() {
			return backend.InvalidArgValue
		}
		value = mem
	case []byte:
		value = slices.Clone(v)
	}
	k.mu.Lock()
	k.args[index] = value
	k.set[index] = true
	k.mu.Unlock()
	return backend.Success
}

// snapshotArgs returns the arguments as they are at enqueue time, or InvalidKernelArgs if any is missing.
func (k *kernel) snapshotArgs() ([]any, backend.Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if slices.Contains(k.set, false) {
		return nil, backend.InvalidKernelArgs
	}
	return slices.Clone(k.args), backend.Success
}

// resolveArgs replaces memory objects by their storage.
func resolveArgs(args []any) []any {
	resolved := make([]any, len(args))
	for ii, arg := range args {
		if mem, ok := arg.(*memObject); ok {
			resolved[ii] = mem.data
		} else {
			resolved[ii] = arg
		}
	}
	return resolved
}

// ndRange is a validated kernel dispatch.
type ndRange struct {
	workDim                       int
	offset, global, local, groups [3]int
}

// newNDRange validates the dispatch dimensions, picking the local size if not given.
func newNDRange(d *device, workDim int, offset, global, local []int) (ndRange, backend.Status) {
	r := ndRange{workDim: workDim}
	if workDim < 1 || workDim > 3 {
		return r, backend.InvalidWorkDimension
	}
	if len(global) != workDim {
		return r, backend.InvalidGlobalWorkSize
	}
	if offset != nil && len(offset) != workDim {
		return r, backend.InvalidGlobalOffset
	}
	if local != nil && len(local) != workDim {
		return r, backend.InvalidWorkGroupSize
	}
	groupSize := 1
	for ii := range 3 {
		r.global[ii], r.local[ii] = 1, 1
		if ii >= workDim {
			continue
		}
		if global[ii] <= 0 {
			return r, backend.InvalidGlobalWorkSize
		}
		r.global[ii] = global[ii]
		if offset != nil {
			if offset[ii] < 0 {
				return r, backend.InvalidGlobalOffset
			}
			r.offset[ii] = offset[ii]
		}
		if local != nil {
			if local[ii] <= 0 || global[ii]%local[ii] != 0 {
				return r, backend.InvalidWorkGroupSize
			}
			r.local[ii] = local[ii]
		}
		groupSize *= r.local[ii]
	}
	if local == nil {
		// Largest divisor of the first dimension that fits a work-group.
		for size := min(r.global[0], d.config.MaxWorkGroupSize); size >= 1; size-- {
			if r.global[0]%size == 0 {
				r.local[0] = size
				break
			}
		}
		groupSize = r.local[0]
	}
	if groupSize > d.config.MaxWorkGroupSize {
		return r, backend.InvalidWorkGroupSize
	}
	for ii := range 3 {
		r.groups[ii] = r.global[ii] / r.local[ii]
	}
	return r, backend.Success
}

// run executes fn over the whole range, one work-group per goroutine, limited to GOMAXPROCS at a time.
// A panic in fn is returned as an error; the other work-groups still run.
func (r ndRange) run(fn KernelFunc, args []any) error {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for gz := range r.groups[2] {
		for gy := range r.groups[1] {
			for gx := range r.groups[0] {
				group := [3]int{gx, gy, gz}
				g.Go(func() (err error) {
					defer func() {
						if p := recover(); p != nil {
							err = errors.Errorf("panic in work-group %v: %v", group, p)
						}
					}()
					item := WorkItem{WorkDim: r.workDim, GroupID: group, GlobalSize: r.global, LocalSize: r.local, GlobalOffset: r.offset}
					for lz := range r.local[2] {
						for ly := range r.local[1] {
							for lx := range r.local[0] {
								item.LocalID = [3]int{lx, ly, lz}
								for ii := range 3 {
									item.GlobalID[ii] = r.offset[ii] + group[ii]*r.local[ii] + item.LocalID[ii]
								}
								fn(item, args)
							}
						}
					}
					return nil
				})
			}
		}
	}
	return g.Wait()
}

// runNative calls a native kernel, converting a panic into an error.
func runNative(fn func(mems [][]byte), views [][]byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic in native kernel: %v", p)
		}
	}()
	fn(views)
	return nil
}

func (b *Backend) enqueueKernel(common *backend.Common, commandType backend.CommandType, kernelID backend.NativeID,
	workDim int, offset, global, local []int) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(common)
	if !status.IsSuccess() {
		return status
	}
	k, status := lookupAs[*kernel](b, backend.KindKernel, kernelID)
	if !status.IsSuccess() {
		return status
	}
	if k.ctx != q.ctx {
		return backend.InvalidContext
	}
	r, status := newNDRange(q.device, workDim, offset, global, local)
	if !status.IsSuccess() {
		return status
	}
	args, status := k.snapshotArgs()
	if !status.IsSuccess() {
		return status
	}
	b.logger.V(2).Info("dispatch kernel", "kernel", k.name, "global", r.global, "local", r.local)
	return b.submit(q, common, commandType, &command{waitList: waitList, run: func() backend.Status {
		if err := r.run(k.fn, resolveArgs(args)); err != nil {
			b.logger.Error(err, "kernel failed", "kernel", k.name)
			return backend.OutOfResources
		}
		return backend.Success
	}}, false)
}

// EnqueueNDRangeKernel implements backend.Backend.
func (b *Backend) EnqueueNDRangeKernel(args *backend.NDRangeArgs) backend.Status {
	return b.enqueueKernel(&args.Common, backend.CommandNDRangeKernel, args.Kernel, args.WorkDim,
		args.GlobalOffset, args.GlobalSize, args.LocalSize)
}

// EnqueueTask implements backend.Backend: a single work-item dispatch.
func (b *Backend) EnqueueTask(args *backend.TaskArgs) backend.Status {
	return b.enqueueKernel(&args.Common, backend.CommandTask, args.Kernel, 1, nil, []int{1}, []int{1})
}

// EnqueueNativeKernel implements backend.Backend.
func (b *Backend) EnqueueNativeKernel(args *backend.NativeKernelArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	if args.Func == nil {
		return backend.InvalidValue
	}
	mems := make([]*memObject, len(args.Mems))
	for ii, id := range args.Mems {
		mems[ii], status = b.memInContext(backend.KindInvalid, id, q.ctx)
		if !status.IsSuccess() {
			return status
		}
	}
	fn := args.Func
	return b.submit(q, &args.Common, backend.CommandNativeKernel, &command{waitList: waitList, run: func() backend.Status {
		views := make([][]byte, len(mems))
		for ii, mem := range mems {
			views[ii] = mem.data
		}
		if err := runNative(fn, views); err != nil {
			b.logger.Error(err, "native kernel failed")
			return backend.OutOfResources
		}
		return backend.Success
	}}, false)
}
