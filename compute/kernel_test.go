package compute

import (
	"bytes"
	"sync"
	"testing"

	"github.com/gomlx/gocompute/backend"
	"github.com/gomlx/gocompute/host"
	"github.com/stretchr/testify/require"
)

// newAddKernel creates a host kernel with arguments (buffer, int) that adds the int to the byte of the buffer
// at each global linear id.
func newAddKernel(t *testing.T, b *host.Backend, ctx *Context) *Kernel {
	id, status := b.NewKernel(ctx.ID(), "add", 2, func(item host.WorkItem, args []any) {
		data := args[0].([]byte)
		pos := item.GlobalID[0] + item.GlobalID[1]*item.GlobalSize[0]
		data[pos] += byte(args[1].(int))
	})
	require.Equal(t, backend.Success, status)
	return capture(AdoptKernel(b, id, false)).Test(t)
}

func TestKernel(t *testing.T) {
	b, ctx, q := setup(t, backend.Version1_2, nil)
	k := newAddKernel(t, b, ctx)
	defer k.Release()
	require.Equal(t, "add", k.Name())
	require.Equal(t, 2, k.NumArgs())
	clone := k.Clone()
	require.True(t, clone.Equal(k))
	require.Equal(t, "add", clone.Name())
	clone.Release()

	buf := capture(ctx.NewBuffer(32).Done()).Test(t)
	defer buf.Release()

	// Arguments must be set before dispatch.
	err := q.Enqueue1DRangeKernel(k, 0, 8, 0)
	require.Error(t, err)
	require.Equal(t, backend.InvalidKernelArgs, StatusOf(err))

	require.NoError(t, k.SetArgs(buf, 1))
	require.NoError(t, q.Enqueue1DRangeKernel(k, 0, 8, 4))
	require.NoError(t, q.Enqueue1DRangeKernel(k, 8, 8, 0))
	require.NoError(t, q.EnqueueNDRangeKernel(k, nil, Extents{8, 4}, Extents{4, 4}))
	event := capture(q.EnqueueNDRangeKernelAsync(k, Extents{0, 0}, Extents{8, 4}, nil)).Test(t)
	require.Equal(t, backend.CommandNDRangeKernel, capture(event.CommandType()).Test(t))
	require.NoError(t, event.Wait())
	event.Release()

	dst := make([]byte, 32)
	require.NoError(t, q.EnqueueReadBuffer(buf, 0, dst))
	want := append(bytes.Repeat([]byte{3}, 16), bytes.Repeat([]byte{2}, 16)...)
	require.Equal(t, want, dst)

	// The backend validates the work-group sizes.
	err = q.Enqueue1DRangeKernel(k, 0, 8, 3)
	require.Equal(t, backend.InvalidWorkGroupSize, StatusOf(err))
	err = q.Enqueue1DRangeKernel(k, 0, 32, 32)
	require.Equal(t, backend.InvalidWorkGroupSize, StatusOf(err))

	// Dimensions are checked before calling the backend.
	require.Panics(t, func() { _ = q.EnqueueNDRangeKernel(k, nil, nil, nil) })
	require.Panics(t, func() { _ = q.EnqueueNDRangeKernel(k, nil, Extents{1, 1, 1, 1}, nil) })
	require.Panics(t, func() { _ = q.EnqueueNDRangeKernel(k, Extents{0}, Extents{8, 4}, nil) })
	require.Panics(t, func() { _ = q.EnqueueNDRangeKernel(k, nil, Extents{8, 4}, Extents{4}) })
}

func TestKernelArgs(t *testing.T) {
	b, ctx, q := setup(t, backend.Version1_2, nil)
	k := newAddKernel(t, b, ctx)
	defer k.Release()
	require.Panics(t, func() { _ = k.SetArg(2, 1) })
	require.Panics(t, func() { _ = k.SetArg(-1, 1) })
	require.Panics(t, func() { _ = k.SetArg(0, &Buffer{}) })

	// Memory objects of another context.
	otherCtx := capture(NewContext(b, q.Device())).Test(t)
	defer otherCtx.Release()
	other := capture(otherCtx.NewBuffer(8).Done()).Test(t)
	defer other.Release()
	require.Panics(t, func() { _ = k.SetArg(0, other) })

	// Backend failures carry the argument.
	err := k.SetArg(1, nil)
	require.Error(t, err)
	require.Equal(t, backend.InvalidArgValue, StatusOf(err))
	require.ErrorContains(t, err, `kernel "add" argument #1`)

	// Kernels of another context can't be dispatched in the queue.
	otherKernel := newAddKernel(t, b, otherCtx)
	defer otherKernel.Release()
	require.Panics(t, func() { _ = q.Enqueue1DRangeKernel(otherKernel, 0, 1, 0) })
	require.Panics(t, func() { _ = q.EnqueueTask(otherKernel) })
}

func TestEnqueueTask(t *testing.T) {
	for _, tc := range []struct {
		version backend.Version
		command backend.CommandType
	}{
		{backend.Version1_2, backend.CommandTask},
		{backend.Version2_0, backend.CommandNDRangeKernel},
	} {
		t.Run(tc.version.String(), func(t *testing.T) {
			b, ctx, q := setup(t, tc.version, nil)
			k := newAddKernel(t, b, ctx)
			defer k.Release()
			buf := capture(ctx.NewBuffer(4).Done()).Test(t)
			defer buf.Release()
			require.NoError(t, k.SetArgs(buf, 5))

			require.NoError(t, q.EnqueueTask(k))
			event := capture(q.EnqueueTaskAsync(k)).Test(t)
			defer event.Release()
			require.NoError(t, event.Wait())
			require.Equal(t, tc.command, capture(event.CommandType()).Test(t))

			dst := make([]byte, 4)
			require.NoError(t, q.EnqueueReadBuffer(buf, 0, dst))
			require.Equal(t, []byte{10, 0, 0, 0}, dst)
		})
	}
}

func TestNativeKernel(t *testing.T) {
	_, ctx, q := setup(t, backend.Version1_2, nil)
	buf := capture(ctx.NewBuffer(8).FromHost([]byte{1, 2, 3, 4, 5, 6, 7, 8}).Done()).Test(t)
	defer buf.Release()
	img := capture(ctx.NewImage(formatR8, 2, 2).FromHost([]byte{10, 20, 30, 40}).Done()).Test(t)
	defer img.Release()

	var sum, count int
	require.NoError(t, q.EnqueueNativeKernelWithMemObjects(func(mems [][]byte) {
		count = len(mems)
		for _, mem := range mems {
			for _, v := range mem {
				sum += int(v)
			}
			mem[0] = 0
		}
	}, []MemObject{buf, img}))
	require.Equal(t, 2, count)
	require.Equal(t, 136, sum)

	dst := make([]byte, 1)
	require.NoError(t, q.EnqueueReadBuffer(buf, 0, dst))
	require.Equal(t, []byte{0}, dst)
	require.NoError(t, q.EnqueueReadImage(img, ImageRect{Region: Extents{1, 1}}, dst))
	require.Equal(t, []byte{0}, dst)

	// Native kernels of an in-order queue run one at a time, in order.
	var (
		mu    sync.Mutex
		order []int
	)
	var events WaitList
	defer events.Release()
	for ii := range 10 {
		events.Insert(capture(q.EnqueueNativeKernelAsync(func() {
			mu.Lock()
			order = append(order, ii)
			mu.Unlock()
		})).Test(t))
	}
	require.NoError(t, events.Wait())
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)

	require.Panics(t, func() { _ = q.EnqueueNativeKernel(nil) })
	require.Panics(t, func() { _ = q.EnqueueNativeKernelWithMemObjects(func([][]byte) {}, []MemObject{&Buffer{}}) })
}

func TestSVM(t *testing.T) {
	_, ctx, q := setup(t, backend.Version2_0, nil)
	svm := capture(ctx.SVMAlloc(64, backend.MemReadWrite, 0)).Test(t)
	require.Len(t, svm, 64)

	require.NoError(t, q.EnqueueSVMFill(svm, []byte{1, 2}, 64))
	dst := make([]byte, 64)
	require.NoError(t, q.EnqueueSVMMemcpy(dst, svm, 64))
	require.Equal(t, bytes.Repeat([]byte{1, 2}, 32), dst)

	// Map, write from the host and unmap.
	require.NoError(t, q.EnqueueSVMMap(svm, 16, backend.MapWrite))
	copy(svm, []byte{9, 9, 9, 9})
	require.NoError(t, q.EnqueueSVMUnmap(svm))
	event := capture(q.EnqueueSVMMemcpyAsync(dst, svm, 8)).Test(t)
	require.NoError(t, event.Wait())
	require.Equal(t, backend.CommandSVMMemcpy, capture(event.CommandType()).Test(t))
	event.Release()
	require.Equal(t, []byte{9, 9, 9, 9, 1, 2, 1, 2}, dst[:8])

	// Async forms.
	fill := capture(q.EnqueueSVMFillAsync(svm, []byte{7}, 32)).Test(t)
	mapped := capture(q.EnqueueSVMMapAsync(svm, 32, backend.MapRead, fill)).Test(t)
	require.NoError(t, mapped.Wait())
	require.Equal(t, bytes.Repeat([]byte{7}, 32), []byte(svm[:32]))
	unmapped := capture(q.EnqueueSVMUnmapAsync(svm, mapped)).Test(t)
	require.NoError(t, unmapped.Wait())
	fill.Release()
	mapped.Release()
	unmapped.Release()

	// Overlapping copies are rejected by the backend.
	err := q.EnqueueSVMMemcpy(svm[:32], svm[16:48], 32)
	require.Equal(t, backend.MemCopyOverlap, StatusOf(err))

	// Preconditions.
	require.Panics(t, func() { _ = q.EnqueueSVMFill(svm, []byte{1, 2, 3}, 64) })
	require.Panics(t, func() { _ = q.EnqueueSVMMemcpy(dst, svm, 65) })
	require.Panics(t, func() { _ = q.EnqueueSVMMap(nil, 1, backend.MapRead) })
	require.Panics(t, func() { _ = q.EnqueueSVMFree(nil) })

	// Free through the queue: the allocation is gone afterwards.
	other := capture(ctx.SVMAlloc(16, backend.MemReadWrite, 64)).Test(t)
	freed := capture(q.EnqueueSVMFreeAsync([]SVM{other})).Test(t)
	require.NoError(t, freed.Wait())
	freed.Release()
	require.Error(t, ctx.SVMFree(other))
	require.NoError(t, q.EnqueueSVMFree([]SVM{svm}))
	require.Error(t, q.EnqueueSVMFill(svm, []byte{1}, 8))
}

func TestSVMUnsupported(t *testing.T) {
	_, ctx, q := setup(t, backend.Version1_2, nil)
	mem := make(SVM, 16)
	_, err := ctx.SVMAlloc(16, backend.MemReadWrite, 0)
	require.ErrorIs(t, err, ErrUnsupportedOperation)
	require.ErrorIs(t, q.EnqueueSVMMemcpy(mem, make(SVM, 16), 16), ErrUnsupportedOperation)
	require.ErrorIs(t, q.EnqueueSVMFill(mem, []byte{1}, 16), ErrUnsupportedOperation)
	_, err = q.EnqueueSVMMapAsync(mem, 16, backend.MapRead)
	require.ErrorIs(t, err, ErrUnsupportedOperation)
	require.ErrorIs(t, q.EnqueueSVMUnmap(mem), ErrUnsupportedOperation)
	require.ErrorIs(t, q.EnqueueSVMFree([]SVM{mem}), ErrUnsupportedOperation)
}
