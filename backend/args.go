package backend

import "github.com/gomlx/gocompute/imageformat"

// Common holds the fields shared by every enqueue call.
type Common struct {
	Queue NativeID

	// WaitList of events that must complete before the command starts.
	WaitList []NativeID

	// Event, if not nil, is set by the backend to a new event (with reference count 1) tracking the command.
	// Operations with a Blocking field are expected to be non-blocking whenever an event is requested.
	Event *NativeID
}

// Extent3 holds the 3 coordinates of an origin or a region. Unused trailing dimensions are 0 for origins and
// 1 for regions.
type Extent3 [3]int

// Volume returns the product of the 3 values.
func (e Extent3) Volume() int { return e[0] * e[1] * e[2] }

type ReadBufferArgs struct {
	Common
	Buffer   NativeID
	Blocking bool
	Offset   int
	Dst      []byte
}

type WriteBufferArgs struct {
	Common
	Buffer   NativeID
	Blocking bool
	Offset   int
	Src      []byte
}

// BufferRectArgs is used for both EnqueueReadBufferRect and EnqueueWriteBufferRect. Origins are in bytes for
// the first dimension, and in rows and slices for the others. Region[0] is in bytes.
type BufferRectArgs struct {
	Common
	Buffer                           NativeID
	Blocking                         bool
	BufferOrigin, HostOrigin, Region Extent3
	BufferRowPitch, BufferSlicePitch int
	HostRowPitch, HostSlicePitch     int
	Host                             []byte
}

type CopyBufferArgs struct {
	Common
	Src, Dst                   NativeID
	SrcOffset, DstOffset, Size int
}

type CopyBufferRectArgs struct {
	Common
	Src, Dst                     NativeID
	SrcOrigin, DstOrigin, Region Extent3
	SrcRowPitch, SrcSlicePitch   int
	DstRowPitch, DstSlicePitch   int
}

type FillBufferArgs struct {
	Common
	Buffer       NativeID
	Pattern      []byte
	Offset, Size int
}

type MapBufferArgs struct {
	Common
	Buffer       NativeID
	Blocking     bool
	Flags        MapFlags
	Offset, Size int

	// Mapped is set by the backend to the host view of the mapped range.
	Mapped []byte
}

type MapImageArgs struct {
	Common
	Image          NativeID
	Blocking       bool
	Flags          MapFlags
	Origin, Region Extent3

	// Mapped is set by the backend to the host view of the region: it starts at the origin element, and
	// rows/slices are RowPitch/SlicePitch bytes apart.
	Mapped               []byte
	RowPitch, SlicePitch int
}

type UnmapArgs struct {
	Common
	Mem    NativeID
	Mapped []byte
}

// ImageTransferArgs is used for both EnqueueReadImage and EnqueueWriteImage. A RowPitch or SlicePitch of 0
// means tightly packed host memory.
type ImageTransferArgs struct {
	Common
	Image                NativeID
	Blocking             bool
	Origin, Region       Extent3
	RowPitch, SlicePitch int
	Host                 []byte
}

type CopyImageArgs struct {
	Common
	Src, Dst                     NativeID
	SrcOrigin, DstOrigin, Region Extent3
}

type CopyImageToBufferArgs struct {
	Common
	Src, Dst          NativeID
	SrcOrigin, Region Extent3
	DstOffset         int
}

type CopyBufferToImageArgs struct {
	Common
	Src, Dst          NativeID
	SrcOffset         int
	DstOrigin, Region Extent3
}

type FillImageArgs struct {
	Common
	Image          NativeID
	Color          imageformat.Color
	Origin, Region Extent3
}

type MigrateArgs struct {
	Common
	Mems  []NativeID
	Flags MigrationFlags
}

// NDRangeArgs configures a kernel dispatch. GlobalOffset may be nil (all 0), and LocalSize may be nil, in
// which case the backend picks the work-group size.
type NDRangeArgs struct {
	Common
	Kernel                              NativeID
	WorkDim                             int
	GlobalOffset, GlobalSize, LocalSize []int
}

type TaskArgs struct {
	Common
	Kernel NativeID
}

// NativeKernelArgs enqueues a host function. Mems are mapped by the backend and given to Func in the
// same order.
type NativeKernelArgs struct {
	Common
	Func func(mems [][]byte)
	Mems []NativeID
}

type SVMMemcpyArgs struct {
	Common
	Blocking bool
	Dst, Src []byte
	Size     int
}

type SVMFillArgs struct {
	Common
	SVM     []byte
	Pattern []byte
	Size    int
}

type SVMFreeArgs struct {
	Common
	Pointers [][]byte
}

type SVMMapArgs struct {
	Common
	Blocking bool
	Flags    MapFlags
	SVM      []byte
	Size     int
}

type SVMUnmapArgs struct {
	Common
	SVM []byte
}
