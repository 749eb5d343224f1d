package host

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/gomlx/gocompute/backend"
	"github.com/gomlx/gocompute/imageformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

type errTester[T any] struct {
	value  T
	status backend.Status
}

// capture is a shortcut to test that the status is Success and return the value.
func capture[T any](value T, status backend.Status) errTester[T] {
	return errTester[T]{value, status}
}

func (e errTester[T]) Test(t *testing.T) T {
	require.Equal(t, backend.Success, e.status)
	return e.value
}

// setup creates a backend with one device of the given version, a context and a queue.
func setup(t *testing.T, version backend.Version, props backend.QueueProperties) (b *Backend, ctx, queue backend.NativeID) {
	b = New(Config{Devices: []DeviceConfig{{Name: "test", Version: version, SVM: version >= backend.Version2_0, MaxWorkGroupSize: 16}}})
	devices := capture(b.Devices()).Test(t)
	require.Len(t, devices, 1)
	ctx = capture(b.CreateContext(devices)).Test(t)
	queue = capture(b.CreateCommandQueue(ctx, devices[0], props)).Test(t)
	return
}

func TestReferenceCounts(t *testing.T) {
	b, ctx, queue := setup(t, backend.Version2_0, 0)
	buf := capture(b.CreateBuffer(ctx, backend.MemReadWrite, 16, nil)).Test(t)
	require.Equal(t, 1, capture(b.ReferenceCount(backend.KindBuffer, buf)).Test(t))
	require.Equal(t, backend.Success, b.Retain(backend.KindBuffer, buf))
	require.Equal(t, 2, capture(b.ReferenceCount(backend.KindBuffer, buf)).Test(t))

	// Kind must match.
	require.Equal(t, backend.InvalidCommandQueue, b.Retain(backend.KindQueue, buf))

	require.Equal(t, backend.Success, b.Release(backend.KindBuffer, buf))
	require.Equal(t, backend.Success, b.Release(backend.KindBuffer, buf))
	require.Equal(t, backend.InvalidMemObject, b.Release(backend.KindBuffer, buf))

	stats := b.Stats()
	require.Equal(t, int64(3), stats.Releases)
	require.Equal(t, int64(2), stats.Retains)

	require.Equal(t, backend.Success, b.Release(backend.KindQueue, queue))
	require.Equal(t, backend.Success, b.Release(backend.KindContext, ctx))
	require.Equal(t, 0, b.LiveObjects())
}

func TestInOrderQueue(t *testing.T) {
	b, _, queue := setup(t, backend.Version1_2, 0)
	var mu sync.Mutex
	var order []int
	const numCommands = 50
	for ii := range numCommands {
		status := b.EnqueueNativeKernel(&backend.NativeKernelArgs{
			Common: backend.Common{Queue: queue},
			Func: func([][]byte) {
				// Earlier commands sleeping longer would finish last if the queue didn't serialize them.
				time.Sleep(time.Duration(numCommands-ii) * 10 * time.Microsecond)
				mu.Lock()
				order = append(order, ii)
				mu.Unlock()
			},
		})
		require.Equal(t, backend.Success, status)
	}
	require.Equal(t, backend.Success, b.Finish(queue))
	require.Len(t, order, numCommands)
	for ii, v := range order {
		require.Equal(t, ii, v)
	}
}

func TestOutOfOrderBarrier(t *testing.T) {
	b, ctx, queue := setup(t, backend.Version2_0, backend.QueueOutOfOrderExecModeEnable)
	gate := capture(b.CreateUserEvent(ctx)).Test(t)

	var mu sync.Mutex
	var order []string
	record := func(name string) func([][]byte) {
		return func([][]byte) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	// "blocked" waits on the gate, "free" doesn't: out-of-order lets "free" run first.
	require.Equal(t, backend.Success, b.EnqueueNativeKernel(&backend.NativeKernelArgs{
		Common: backend.Common{Queue: queue, WaitList: []backend.NativeID{gate}}, Func: record("blocked")}))
	var freeEvent backend.NativeID
	require.Equal(t, backend.Success, b.EnqueueNativeKernel(&backend.NativeKernelArgs{
		Common: backend.Common{Queue: queue, Event: &freeEvent}, Func: record("free")}))
	require.Equal(t, backend.Success, b.WaitForEvents([]backend.NativeID{freeEvent}))

	// Commands after the barrier wait for everything before it.
	require.Equal(t, backend.Success, b.EnqueueBarrierWithWaitList(&backend.Common{Queue: queue}))
	require.Equal(t, backend.Success, b.EnqueueNativeKernel(&backend.NativeKernelArgs{
		Common: backend.Common{Queue: queue}, Func: record("after")}))
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{"free"}, order)
	mu.Unlock()

	require.Equal(t, backend.Success, b.SetUserEventStatus(gate, backend.Complete))
	require.Equal(t, backend.Success, b.Finish(queue))
	require.Equal(t, []string{"free", "blocked", "after"}, order)
}

func TestUserEventFailurePropagates(t *testing.T) {
	b, ctx, queue := setup(t, backend.Version2_0, 0)
	user := capture(b.CreateUserEvent(ctx)).Test(t)
	info := capture(b.EventInfo(user)).Test(t)
	require.Equal(t, backend.Submitted, info.Status)
	require.Equal(t, backend.CommandUser, info.CommandType)

	buf := capture(b.CreateBuffer(ctx, backend.MemReadWrite, 4, nil)).Test(t)
	var writeEvent backend.NativeID
	require.Equal(t, backend.Success, b.EnqueueWriteBuffer(&backend.WriteBufferArgs{
		Common: backend.Common{Queue: queue, WaitList: []backend.NativeID{user}, Event: &writeEvent},
		Buffer: buf, Src: []byte{1, 2, 3, 4}}))

	require.Equal(t, backend.Success, b.SetUserEventStatus(user, backend.ErrorStatus(backend.OutOfResources)))
	require.Equal(t, backend.InvalidOperation, b.SetUserEventStatus(user, backend.Complete))
	require.Equal(t, backend.ExecStatusErrorForEventsInWaitList, b.WaitForEvents([]backend.NativeID{writeEvent}))
	info = capture(b.EventInfo(writeEvent)).Test(t)
	require.Equal(t, backend.ErrorStatus(backend.ExecStatusErrorForEventsInWaitList), info.Status)

	// Buffer was not written.
	dst := make([]byte, 4)
	require.Equal(t, backend.Success, b.EnqueueReadBuffer(&backend.ReadBufferArgs{
		Common: backend.Common{Queue: queue}, Buffer: buf, Blocking: true, Dst: dst}))
	require.Equal(t, []byte{0, 0, 0, 0}, dst)
}

func TestEventCallbacksAndProfiling(t *testing.T) {
	b, ctx, queue := setup(t, backend.Version2_0, backend.QueueProfilingEnable)
	buf := capture(b.CreateBuffer(ctx, backend.MemReadWrite, 1024, nil)).Test(t)
	var event backend.NativeID
	require.Equal(t, backend.Success, b.EnqueueFillBuffer(&backend.FillBufferArgs{
		Common: backend.Common{Queue: queue, Event: &event}, Buffer: buf, Pattern: []byte{7, 7}, Size: 1024}))

	done := make(chan backend.ExecutionStatus, 1)
	require.Equal(t, backend.Success, b.SetEventCallback(event, backend.Complete, func(_ backend.NativeID, status backend.ExecutionStatus) {
		done <- status
	}))
	require.Equal(t, backend.Complete, <-done)

	prof := capture(b.EventProfilingInfo(event)).Test(t)
	assert.LessOrEqual(t, prof.Queued, prof.Submitted)
	assert.LessOrEqual(t, prof.Submitted, prof.Started)
	assert.LessOrEqual(t, prof.Started, prof.Ended)

	// Callbacks registered after the fact fire right away.
	require.Equal(t, backend.Success, b.SetEventCallback(event, backend.Running, func(_ backend.NativeID, status backend.ExecutionStatus) {
		done <- status
	}))
	require.Equal(t, backend.Complete, <-done)
}

func TestMapImagePitches(t *testing.T) {
	b, ctx, queue := setup(t, backend.Version1_2, 0)
	format := imageformat.Format{Order: imageformat.OrderR, Type: imageformat.UnsignedInt8}
	host := make([]byte, 8*4) // Row pitch 8 for a 5 wide image.
	image := capture(b.CreateImage(ctx, backend.MemUseHostPtr, backend.ImageDesc{
		Type: backend.MemObjectImage2D, Format: format, Width: 5, Height: 4, RowPitch: 8}, host)).Test(t)
	info := capture(b.ImageInfo(image)).Test(t)
	require.Equal(t, 8, info.RowPitch)
	require.Equal(t, 32, info.SlicePitch)

	args := &backend.MapImageArgs{Common: backend.Common{Queue: queue}, Image: image, Blocking: true,
		Flags: backend.MapWrite, Origin: backend.Extent3{1, 1, 0}, Region: backend.Extent3{3, 2, 1}}
	require.Equal(t, backend.Success, b.EnqueueMapImage(args))
	require.Equal(t, 8, args.RowPitch)
	for y := range 2 {
		for x := range 3 {
			args.Mapped[y*args.RowPitch+x] = 0xFF
		}
	}
	require.Equal(t, backend.Success, b.EnqueueUnmapMemObject(&backend.UnmapArgs{
		Common: backend.Common{Queue: queue}, Mem: image, Mapped: args.Mapped}))
	// Unmapping twice fails.
	require.Equal(t, backend.InvalidValue, b.EnqueueUnmapMemObject(&backend.UnmapArgs{
		Common: backend.Common{Queue: queue}, Mem: image, Mapped: args.Mapped}))
	require.Equal(t, backend.Success, b.Finish(queue))
	for y := range 4 {
		for x := range 5 {
			want := byte(0)
			if x >= 1 && x <= 3 && y >= 1 && y <= 2 {
				want = 0xFF
			}
			require.Equalf(t, want, host[y*8+x], "pixel (%d, %d)", x, y)
		}
	}
}

func TestFillImageAndRectCopies(t *testing.T) {
	b, ctx, queue := setup(t, backend.Version1_2, 0)
	image := capture(b.CreateImage(ctx, backend.MemReadWrite, backend.ImageDesc{
		Type: backend.MemObjectImage2D, Format: imageformat.RGBA8, Width: 4, Height: 4}, nil)).Test(t)
	require.Equal(t, backend.Success, b.EnqueueFillImage(&backend.FillImageArgs{
		Common: backend.Common{Queue: queue}, Image: image, Color: imageformat.FloatColor(1, 0, 0, 1),
		Origin: backend.Extent3{2, 2, 0}, Region: backend.Extent3{2, 2, 1}}))
	pixels := make([]byte, 4*4*4)
	require.Equal(t, backend.Success, b.EnqueueReadImage(&backend.ImageTransferArgs{
		Common: backend.Common{Queue: queue}, Image: image, Blocking: true, Region: backend.Extent3{4, 4, 1}, Host: pixels}))
	require.Equal(t, []byte{0, 0, 0, 0}, pixels[0:4])
	require.Equal(t, []byte{255, 0, 0, 255}, pixels[(3*4+3)*4:])

	// Copy a 2x2 block of a 4x4 byte matrix to the host.
	src := make([]byte, 16)
	for ii := range src {
		src[ii] = byte(ii)
	}
	buf := capture(b.CreateBuffer(ctx, backend.MemCopyHostPtr, 16, src)).Test(t)
	dst := make([]byte, 4)
	require.Equal(t, backend.Success, b.EnqueueReadBufferRect(&backend.BufferRectArgs{
		Common: backend.Common{Queue: queue}, Buffer: buf, Blocking: true,
		BufferOrigin: backend.Extent3{1, 1, 0}, Region: backend.Extent3{2, 2, 1}, BufferRowPitch: 4, Host: dst}))
	require.Equal(t, []byte{5, 6, 9, 10}, dst)

	// Overlapping copy on the same buffer.
	require.Equal(t, backend.MemCopyOverlap, b.EnqueueCopyBuffer(&backend.CopyBufferArgs{
		Common: backend.Common{Queue: queue}, Src: buf, Dst: buf, SrcOffset: 0, DstOffset: 4, Size: 8}))
}

func TestVersionGates(t *testing.T) {
	b, ctx, queue := setup(t, backend.Version1_0, 0)
	devices := capture(b.Devices()).Test(t)
	_, status := b.CreateCommandQueueWithProperties(ctx, devices[0], nil)
	require.Equal(t, backend.InvalidOperation, status)

	buf := capture(b.CreateBuffer(ctx, backend.MemReadWrite, 16, nil)).Test(t)
	require.Equal(t, backend.InvalidOperation, b.EnqueueFillBuffer(&backend.FillBufferArgs{
		Common: backend.Common{Queue: queue}, Buffer: buf, Pattern: []byte{1}, Size: 16}))
	require.Equal(t, backend.InvalidOperation, b.EnqueueReadBufferRect(&backend.BufferRectArgs{
		Common: backend.Common{Queue: queue}, Buffer: buf, Region: backend.Extent3{1, 1, 1}, Host: make([]byte, 1)}))
	require.Equal(t, backend.InvalidOperation, b.EnqueueBarrierWithWaitList(&backend.Common{Queue: queue}))
	require.Equal(t, backend.Success, b.EnqueueBarrier(queue))
	var marker backend.NativeID
	require.Equal(t, backend.Success, b.EnqueueMarker(queue, &marker))
	require.Equal(t, backend.Success, b.WaitForEvents([]backend.NativeID{marker}))
	_, status = b.SVMAlloc(ctx, backend.MemReadWrite, 16, 0)
	require.Equal(t, backend.InvalidOperation, status)
}

func TestKernels(t *testing.T) {
	b, ctx, queue := setup(t, backend.Version2_0, 0)
	const n = 64
	buf := capture(b.CreateBuffer(ctx, backend.MemReadWrite, n, nil)).Test(t)
	kernel := capture(b.NewKernel(ctx, "iota_plus", 2, func(item WorkItem, args []any) {
		data := args[0].([]byte)
		data[item.GlobalID[0]] = byte(item.GlobalID[0] + args[1].(int))
	})).Test(t)

	// All arguments must be set.
	require.Equal(t, backend.Success, b.SetKernelArg(kernel, 0, backend.MemArg{ID: buf}))
	require.Equal(t, backend.InvalidKernelArgs, b.EnqueueNDRangeKernel(&backend.NDRangeArgs{
		Common: backend.Common{Queue: queue}, Kernel: kernel, WorkDim: 1, GlobalSize: []int{n}}))
	require.Equal(t, backend.InvalidArgIndex, b.SetKernelArg(kernel, 2, 1))
	require.Equal(t, backend.Success, b.SetKernelArg(kernel, 1, 10))

	// Local size must divide global size, and fit the device.
	require.Equal(t, backend.InvalidWorkGroupSize, b.EnqueueNDRangeKernel(&backend.NDRangeArgs{
		Common: backend.Common{Queue: queue}, Kernel: kernel, WorkDim: 1, GlobalSize: []int{n}, LocalSize: []int{5}}))
	require.Equal(t, backend.InvalidWorkGroupSize, b.EnqueueNDRangeKernel(&backend.NDRangeArgs{
		Common: backend.Common{Queue: queue}, Kernel: kernel, WorkDim: 1, GlobalSize: []int{n}, LocalSize: []int{32}}))
	require.Equal(t, backend.InvalidWorkDimension, b.EnqueueNDRangeKernel(&backend.NDRangeArgs{
		Common: backend.Common{Queue: queue}, Kernel: kernel, WorkDim: 0}))

	require.Equal(t, backend.Success, b.EnqueueNDRangeKernel(&backend.NDRangeArgs{
		Common: backend.Common{Queue: queue}, Kernel: kernel, WorkDim: 1, GlobalSize: []int{n}, LocalSize: []int{8}}))
	dst := make([]byte, n)
	require.Equal(t, backend.Success, b.EnqueueReadBuffer(&backend.ReadBufferArgs{
		Common: backend.Common{Queue: queue}, Buffer: buf, Blocking: true, Dst: dst}))
	for ii, v := range dst {
		require.Equal(t, byte(ii+10), v)
	}
}

func TestKernelPanicFailsCommand(t *testing.T) {
	b, ctx, queue := setup(t, backend.Version2_0, 0)
	const n = 32
	buf := capture(b.CreateBuffer(ctx, backend.MemReadWrite, n, nil)).Test(t)
	kernel := capture(b.NewKernel(ctx, "bad_index", 1, func(item WorkItem, args []any) {
		data := args[0].([]byte)
		data[item.GlobalID[0]*2] = 1 // Out of range for the upper half.
	})).Test(t)
	require.Equal(t, backend.Success, b.SetKernelArg(kernel, 0, backend.MemArg{ID: buf}))

	var kernelEvent backend.NativeID
	require.Equal(t, backend.Success, b.EnqueueNDRangeKernel(&backend.NDRangeArgs{
		Common: backend.Common{Queue: queue, Event: &kernelEvent}, Kernel: kernel, WorkDim: 1,
		GlobalSize: []int{n}, LocalSize: []int{8}}))
	require.Equal(t, backend.ExecStatusErrorForEventsInWaitList, b.WaitForEvents([]backend.NativeID{kernelEvent}))
	info := capture(b.EventInfo(kernelEvent)).Test(t)
	require.Equal(t, backend.ErrorStatus(backend.OutOfResources), info.Status)

	var nativeEvent backend.NativeID
	require.Equal(t, backend.Success, b.EnqueueNativeKernel(&backend.NativeKernelArgs{
		Common: backend.Common{Queue: queue, Event: &nativeEvent},
		Func:   func([][]byte) { panic("native failure") }}))
	require.Equal(t, backend.ExecStatusErrorForEventsInWaitList, b.WaitForEvents([]backend.NativeID{nativeEvent}))
	info = capture(b.EventInfo(nativeEvent)).Test(t)
	require.Equal(t, backend.ErrorStatus(backend.OutOfResources), info.Status)

	// The queue keeps working after the failures.
	dst := make([]byte, n)
	require.Equal(t, backend.Success, b.EnqueueReadBuffer(&backend.ReadBufferArgs{
		Common: backend.Common{Queue: queue}, Buffer: buf, Blocking: true, Dst: dst}))
	require.Equal(t, byte(1), dst[0])
	require.Equal(t, backend.Success, b.Release(backend.KindEvent, kernelEvent))
	require.Equal(t, backend.Success, b.Release(backend.KindEvent, nativeEvent))
}

func TestSVM(t *testing.T) {
	b, ctx, queue := setup(t, backend.Version2_0, 0)
	svm := capture(b.SVMAlloc(ctx, backend.MemReadWrite, 256, 128)).Test(t)
	require.Zero(t, address(svm)%128)
	require.Equal(t, backend.Success, b.EnqueueSVMMemFill(&backend.SVMFillArgs{
		Common: backend.Common{Queue: queue}, SVM: svm, Pattern: []byte{0xAB, 0xCD}, Size: 256}))
	host := make([]byte, 4)
	require.Equal(t, backend.Success, b.EnqueueSVMMemcpy(&backend.SVMMemcpyArgs{
		Common: backend.Common{Queue: queue}, Blocking: true, Dst: host, Src: svm[2:], Size: 4}))
	require.Equal(t, []byte{0xAB, 0xCD, 0xAB, 0xCD}, host)

	// Only the start of an allocation can be freed.
	require.Equal(t, backend.InvalidValue, b.EnqueueSVMFree(&backend.SVMFreeArgs{
		Common: backend.Common{Queue: queue}, Pointers: [][]byte{svm[1:]}}))
	require.Equal(t, backend.Success, b.EnqueueSVMFree(&backend.SVMFreeArgs{
		Common: backend.Common{Queue: queue}, Pointers: [][]byte{svm}}))
	require.Equal(t, backend.Success, b.Finish(queue))
	require.Equal(t, backend.InvalidValue, b.SVMFree(ctx, svm))
}

func TestAlignedAlloc(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	for range 10_000 {
		size := rng.IntN(1_000)
		alignment := 1 << rng.IntN(13)
		data := alignedAlloc(size+1, alignment)
		require.Len(t, data, size+1)
		require.Zero(t, address(data)%uintptr(alignment))
	}
	require.Panics(t, func() { alignedAlloc(10, 3) })
}
