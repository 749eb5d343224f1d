package compute

import (
	"github.com/gomlx/gocompute/backend"
)

func assertSVM(op, what string, svm SVM, size int) {
	if svm == nil {
		panicf("%s: nil %s", op, what)
	}
	if size <= 0 || size > len(svm) {
		panicf("%s: size %d out of bounds for %s of %d bytes", op, size, what, len(svm))
	}
}

// EnqueueSVMMemcpy copies size bytes from src to dst. It requires FeatureSVM.
func (q *CommandQueue) EnqueueSVMMemcpy(dst, src SVM, size int, waitList ...*Event) error {
	const op = "EnqueueSVMMemcpy"
	args := q.svmMemcpyArgs(op, dst, src, size, waitList)
	if err := q.requireFeature(op, FeatureSVM); err != nil {
		return err
	}
	args.Blocking = true
	return q.dispatchBlocking(op, func() backend.Status { return q.Backend().EnqueueSVMMemcpy(args) })
}

// EnqueueSVMMemcpyAsync is the asynchronous version of EnqueueSVMMemcpy.
func (q *CommandQueue) EnqueueSVMMemcpyAsync(dst, src SVM, size int, waitList ...*Event) (*Event, error) {
	const op = "EnqueueSVMMemcpy"
	args := q.svmMemcpyArgs(op, dst, src, size, waitList)
	if err := q.requireFeature(op, FeatureSVM); err != nil {
		return nil, err
	}
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueSVMMemcpy(args) })
}

func (q *CommandQueue) svmMemcpyArgs(op string, dst, src SVM, size int, waitList []*Event) *backend.SVMMemcpyArgs {
	assertSVM(op, "destination", dst, size)
	assertSVM(op, "source", src, size)
	return &backend.SVMMemcpyArgs{Common: q.common(op, waitList), Dst: dst, Src: src, Size: size}
}

func (q *CommandQueue) svmFillArgs(op string, svm SVM, pattern []byte, size int, waitList []*Event) *backend.SVMFillArgs {
	assertSVM(op, "SVM", svm, size)
	if len(pattern) == 0 || size%len(pattern) != 0 {
		panicf("%s: pattern of %d bytes doesn't divide the fill size %d", op, len(pattern), size)
	}
	return &backend.SVMFillArgs{Common: q.common(op, waitList), SVM: svm, Pattern: pattern, Size: size}
}

// EnqueueSVMFill fills size bytes of svm with copies of pattern. It requires FeatureSVM.
func (q *CommandQueue) EnqueueSVMFill(svm SVM, pattern []byte, size int, waitList ...*Event) error {
	const op = "EnqueueSVMMemFill"
	args := q.svmFillArgs(op, svm, pattern, size, waitList)
	if err := q.requireFeature(op, FeatureSVM); err != nil {
		return err
	}
	return q.dispatchAndWait(op, &args.Common, func() backend.Status { return q.Backend().EnqueueSVMMemFill(args) })
}

// EnqueueSVMFillAsync is the asynchronous version of EnqueueSVMFill.
func (q *CommandQueue) EnqueueSVMFillAsync(svm SVM, pattern []byte, size int, waitList ...*Event) (*Event, error) {
	const op = "EnqueueSVMMemFill"
	args := q.svmFillArgs(op, svm, pattern, size, waitList)
	if err := q.requireFeature(op, FeatureSVM); err != nil {
		return nil, err
	}
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueSVMMemFill(args) })
}

func (q *CommandQueue) svmFreeArgs(op string, svms []SVM, waitList []*Event) *backend.SVMFreeArgs {
	if len(svms) == 0 {
		panicf("%s: nothing to free", op)
	}
	pointers := make([][]byte, len(svms))
	for ii, svm := range svms {
		if svm == nil {
			panicf("%s: nil SVM #%d", op, ii)
		}
		pointers[ii] = svm
	}
	return &backend.SVMFreeArgs{Common: q.common(op, waitList), Pointers: pointers}
}

// EnqueueSVMFree frees the SVM allocations once the commands before it complete. It requires FeatureSVM.
func (q *CommandQueue) EnqueueSVMFree(svms []SVM, waitList ...*Event) error {
	const op = "EnqueueSVMFree"
	args := q.svmFreeArgs(op, svms, waitList)
	if err := q.requireFeature(op, FeatureSVM); err != nil {
		return err
	}
	return q.dispatchAndWait(op, &args.Common, func() backend.Status { return q.Backend().EnqueueSVMFree(args) })
}

// EnqueueSVMFreeAsync is the asynchronous version of EnqueueSVMFree.
func (q *CommandQueue) EnqueueSVMFreeAsync(svms []SVM, waitList ...*Event) (*Event, error) {
	const op = "EnqueueSVMFree"
	args := q.svmFreeArgs(op, svms, waitList)
	if err := q.requireFeature(op, FeatureSVM); err != nil {
		return nil, err
	}
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueSVMFree(args) })
}

// EnqueueSVMMap gives the host access to size bytes of svm, until EnqueueSVMUnmap. It requires FeatureSVM.
func (q *CommandQueue) EnqueueSVMMap(svm SVM, size int, flags backend.MapFlags, waitList ...*Event) error {
	const op = "EnqueueSVMMap"
	assertSVM(op, "SVM", svm, size)
	args := &backend.SVMMapArgs{Common: q.common(op, waitList), Flags: flags, SVM: svm, Size: size, Blocking: true}
	if err := q.requireFeature(op, FeatureSVM); err != nil {
		return err
	}
	return q.dispatchBlocking(op, func() backend.Status { return q.Backend().EnqueueSVMMap(args) })
}

// EnqueueSVMMapAsync is the asynchronous version of EnqueueSVMMap.
func (q *CommandQueue) EnqueueSVMMapAsync(svm SVM, size int, flags backend.MapFlags, waitList ...*Event) (*Event, error) {
	const op = "EnqueueSVMMap"
	assertSVM(op, "SVM", svm, size)
	args := &backend.SVMMapArgs{Common: q.common(op, waitList), Flags: flags, SVM: svm, Size: size}
	if err := q.requireFeature(op, FeatureSVM); err != nil {
		return nil, err
	}
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueSVMMap(args) })
}

// EnqueueSVMUnmap ends the host access started by EnqueueSVMMap. It requires FeatureSVM.
func (q *CommandQueue) EnqueueSVMUnmap(svm SVM, waitList ...*Event) error {
	const op = "EnqueueSVMUnmap"
	assertSVM(op, "SVM", svm, len(svm))
	args := &backend.SVMUnmapArgs{Common: q.common(op, waitList), SVM: svm}
	if err := q.requireFeature(op, FeatureSVM); err != nil {
		return err
	}
	return q.dispatchAndWait(op, &args.Common, func() backend.Status { return q.Backend().EnqueueSVMUnmap(args) })
}

// EnqueueSVMUnmapAsync is the asynchronous version of EnqueueSVMUnmap.
func (q *CommandQueue) EnqueueSVMUnmapAsync(svm SVM, waitList ...*Event) (*Event, error) {
	const op = "EnqueueSVMUnmap"
	assertSVM(op, "SVM", svm, len(svm))
	args := &backend.SVMUnmapArgs{Common: q.common(op, waitList), SVM: svm}
	if err := q.requireFeature(op, FeatureSVM); err != nil {
		return nil, err
	}
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueSVMUnmap(args) })
}
