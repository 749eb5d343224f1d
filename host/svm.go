package host

import (
	"slices"

	"github.com/gomlx/gocompute/backend"
)

// svmAllocation is a shared virtual memory allocation of a context.
type svmAllocation struct {
	data []byte
}

func (a *svmAllocation) contains(ptr []byte) bool {
	start, addr := address(a.data), address(ptr)
	return addr >= start && addr+uintptr(len(ptr)) <= start+uintptr(len(a.data))
}

// findSVM returns the allocation containing ptr, or nil.
func (c *context) findSVM(ptr []byte) *svmAllocation {
	if len(ptr) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.svm {
		if a.contains(ptr) {
			return a
		}
	}
	return nil
}

// freeSVM removes the allocation starting at ptr. It returns false if there is none.
func (c *context) freeSVM(ptr []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ii, a := range c.svm {
		if address(a.data) == address(ptr) && len(ptr) > 0 {
			c.svm = slices.Delete(c.svm, ii, ii+1)
			return true
		}
	}
	return false
}

func (c *context) supportsSVM() bool {
	for _, d := range c.devices {
		if d.config.SVM {
			return true
		}
	}
	return false
}

// SVMAlloc implements backend.Backend. At least one device of the context must support SVM.
func (b *Backend) SVMAlloc(ctxID backend.NativeID, flags backend.MemFlags, size, alignment int) ([]byte, backend.Status) {
	b.calls.Add(1)
	ctx, status := lookupAs[*context](b, backend.KindContext, ctxID)
	if !status.IsSuccess() {
		return nil, status
	}
	if !ctx.supportsSVM() {
		return nil, backend.InvalidOperation
	}
	if alignment == 0 {
		alignment = svmDefaultAlignment
	}
	if size <= 0 || alignment < 0 || alignment&(alignment-1) != 0 || alignment > 4096 {
		return nil, backend.InvalidValue
	}
	if flags&(backend.MemUseHostPtr|backend.MemCopyHostPtr|backend.MemAllocHostPtr) != 0 {
		return nil, backend.InvalidValue
	}
	a := &svmAllocation{data: alignedAlloc(size, alignment)}
	ctx.mu.Lock()
	ctx.svm = append(ctx.svm, a)
	ctx.mu.Unlock()
	return a.data, backend.Success
}

// SVMFree implements backend.Backend.
func (b *Backend) SVMFree(ctxID backend.NativeID, svm []byte) backend.Status {
	b.calls.Add(1)
	ctx, status := lookupAs[*context](b, backend.KindContext, ctxID)
	if !status.IsSuccess() {
		return status
	}
	if !ctx.freeSVM(svm) {
		return backend.InvalidValue
	}
	return backend.Success
}

// svmQueue returns the queue of an SVM command, checking that its device supports SVM.
func (b *Backend) svmQueue(common *backend.Common) (*queue, []*event, backend.Status) {
	q, waitList, status := b.queueFor(common)
	if !status.IsSuccess() {
		return nil, nil, status
	}
	if !q.device.config.SVM {
		return nil, nil, backend.InvalidOperation
	}
	return q, waitList, backend.Success
}

// EnqueueSVMMemcpy implements backend.Backend. Any host memory can be used as source or destination.
func (b *Backend) EnqueueSVMMemcpy(args *backend.SVMMemcpyArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.svmQueue(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	size := args.Size
	if size <= 0 || len(args.Dst) < size || len(args.Src) < size {
		return backend.InvalidValue
	}
	dst, src := args.Dst[:size], args.Src[:size]
	if overlaps(int(address(dst)), size, int(address(src)), size) {
		return backend.MemCopyOverlap
	}
	return b.submit(q, &args.Common, backend.CommandSVMMemcpy, &command{waitList: waitList, run: func() backend.Status {
		copy(dst, src)
		return backend.Success
	}}, args.Blocking)
}

// EnqueueSVMMemFill implements backend.Backend.
func (b *Backend) EnqueueSVMMemFill(args *backend.SVMFillArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.svmQueue(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	size := args.Size
	if !validPattern(args.Pattern, 0, size) || len(args.SVM) < size || q.ctx.findSVM(args.SVM[:size]) == nil {
		return backend.InvalidValue
	}
	svm, pattern := args.SVM[:size], slices.Clone(args.Pattern)
	return b.submit(q, &args.Common, backend.CommandSVMMemFill, &command{waitList: waitList, run: func() backend.Status {
		fillPattern(svm, pattern)
		return backend.Success
	}}, false)
}

// EnqueueSVMFree implements backend.Backend: the allocations are freed when the command runs.
func (b *Backend) EnqueueSVMFree(args *backend.SVMFreeArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.svmQueue(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	for _, ptr := range args.Pointers {
		if a := q.ctx.findSVM(ptr); a == nil || address(a.data) != address(ptr) {
			return backend.InvalidValue
		}
	}
	pointers := slices.Clone(args.Pointers)
	return b.submit(q, &args.Common, backend.CommandSVMFree, &command{waitList: waitList, run: func() backend.Status {
		for _, ptr := range pointers {
			if !q.ctx.freeSVM(ptr) {
				return backend.InvalidValue
			}
		}
		return backend.Success
	}}, false)
}

// EnqueueSVMMap implements backend.Backend. Host SVM is always coherent, so map and unmap only order commands.
func (b *Backend) EnqueueSVMMap(args *backend.SVMMapArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.svmQueue(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	if args.Size <= 0 || len(args.SVM) < args.Size || q.ctx.findSVM(args.SVM[:args.Size]) == nil {
		return backend.InvalidValue
	}
	return b.submit(q, &args.Common, backend.CommandSVMMap, &command{waitList: waitList}, args.Blocking)
}

// EnqueueSVMUnmap implements backend.Backend.
func (b *Backend) EnqueueSVMUnmap(args *backend.SVMUnmapArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.svmQueue(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	if q.ctx.findSVM(args.SVM) == nil {
		return backend.InvalidValue
	}
	return b.submit(q, &args.Common, backend.CommandSVMUnmap, &command{waitList: waitList}, false)
}
