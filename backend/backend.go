// Package backend defines the contract between gocompute and a compute runtime (a "backend"): the entry points
// used to create and release objects, query device capabilities, and enqueue commands on a queue.
//
// The backend owns every object and its reference count. The compute package only holds NativeID values and
// calls Retain/Release on them. A backend reports failures with a Status code; it never panics on bad input.
//
// The enqueue entry points take a pointer to an "Args" structure, with the inputs of the call and, when
// requested (Common.Event != nil), an output slot for the event that tracks the command.
package backend

// NativeID is an opaque identifier of an object owned by a Backend. Null (0) is never a valid object.
type NativeID uintptr

// Null is the null NativeID.
const Null NativeID = 0

// IsNull returns whether id is the null id.
func (id NativeID) IsNull() bool { return id == Null }

// Kind of object referenced by a NativeID. Retain and Release are dispatched per kind.
type Kind int

const (
	KindInvalid Kind = iota
	KindContext
	KindQueue
	KindBuffer
	KindImage
	KindKernel
	KindEvent
)

var kindNames = map[Kind]string{
	KindInvalid: "Invalid",
	KindContext: "Context",
	KindQueue:   "CommandQueue",
	KindBuffer:  "Buffer",
	KindImage:   "Image",
	KindKernel:  "Kernel",
	KindEvent:   "Event",
}

func (k Kind) String() string {
	if name, found := kindNames[k]; found {
		return name
	}
	return "Kind(?)"
}

// EventCallback is called by the backend, from one of its own goroutines, when an event reaches the
// status it was registered for (or a terminal error status).
type EventCallback func(event NativeID, status ExecutionStatus)

// Backend is implemented by compute runtimes.
//
// All methods must be safe for concurrent use.
type Backend interface {
	// Name of the backend, used for registration and logging.
	Name() string

	// Retain increments the reference count of the object.
	Retain(kind Kind, id NativeID) Status
	// Release decrements the reference count of the object, freeing it when it reaches 0.
	Release(kind Kind, id NativeID) Status
	// ReferenceCount returns the current reference count of the object.
	ReferenceCount(kind Kind, id NativeID) (int, Status)

	Devices() ([]NativeID, Status)
	DeviceInfo(device NativeID) (DeviceInfo, Status)

	CreateContext(devices []NativeID) (NativeID, Status)
	ContextDevices(ctx NativeID) ([]NativeID, Status)

	// CreateCommandQueue is the legacy queue creation entry point.
	CreateCommandQueue(ctx, device NativeID, properties QueueProperties) (NativeID, Status)
	// CreateCommandQueueWithProperties takes a property list, and is only available on devices with Version2_0+.
	CreateCommandQueueWithProperties(ctx, device NativeID, properties []QueueProperty) (NativeID, Status)
	QueueInfo(queue NativeID) (QueueInfo, Status)

	CreateBuffer(ctx NativeID, flags MemFlags, size int, host []byte) (NativeID, Status)
	CreateImage(ctx NativeID, flags MemFlags, desc ImageDesc, host []byte) (NativeID, Status)
	MemInfo(mem NativeID) (MemInfo, Status)
	ImageInfo(image NativeID) (ImageInfo, Status)

	KernelInfo(kernel NativeID) (KernelInfo, Status)
	// SetKernelArg sets a kernel argument: a MemArg for memory objects, or any scalar/[]byte value.
	SetKernelArg(kernel NativeID, index int, value any) Status

	CreateUserEvent(ctx NativeID) (NativeID, Status)
	SetUserEventStatus(event NativeID, status ExecutionStatus) Status
	EventInfo(event NativeID) (EventInfo, Status)
	EventProfilingInfo(event NativeID) (ProfilingInfo, Status)
	SetEventCallback(event NativeID, trigger ExecutionStatus, callback EventCallback) Status
	// WaitForEvents blocks until all events are terminal. It returns ExecStatusErrorForEventsInWaitList if any
	// of them terminated with an error.
	WaitForEvents(events []NativeID) Status

	SVMAlloc(ctx NativeID, flags MemFlags, size, alignment int) ([]byte, Status)
	SVMFree(ctx NativeID, svm []byte) Status

	EnqueueReadBuffer(args *ReadBufferArgs) Status
	EnqueueWriteBuffer(args *WriteBufferArgs) Status
	EnqueueReadBufferRect(args *BufferRectArgs) Status
	EnqueueWriteBufferRect(args *BufferRectArgs) Status
	EnqueueCopyBuffer(args *CopyBufferArgs) Status
	EnqueueCopyBufferRect(args *CopyBufferRectArgs) Status
	EnqueueFillBuffer(args *FillBufferArgs) Status
	EnqueueMapBuffer(args *MapBufferArgs) Status
	EnqueueMapImage(args *MapImageArgs) Status
	EnqueueUnmapMemObject(args *UnmapArgs) Status
	EnqueueReadImage(args *ImageTransferArgs) Status
	EnqueueWriteImage(args *ImageTransferArgs) Status
	EnqueueCopyImage(args *CopyImageArgs) Status
	EnqueueCopyImageToBuffer(args *CopyImageToBufferArgs) Status
	EnqueueCopyBufferToImage(args *CopyBufferToImageArgs) Status
	EnqueueFillImage(args *FillImageArgs) Status
	EnqueueMigrateMemObjects(args *MigrateArgs) Status
	EnqueueNDRangeKernel(args *NDRangeArgs) Status
	EnqueueTask(args *TaskArgs) Status
	EnqueueNativeKernel(args *NativeKernelArgs) Status

	// EnqueueBarrier and EnqueueMarker are the legacy forms, with no wait list.
	EnqueueBarrier(queue NativeID) Status
	EnqueueMarker(queue NativeID, event *NativeID) Status
	EnqueueBarrierWithWaitList(args *Common) Status
	EnqueueMarkerWithWaitList(args *Common) Status

	EnqueueSVMMemcpy(args *SVMMemcpyArgs) Status
	EnqueueSVMMemFill(args *SVMFillArgs) Status
	EnqueueSVMFree(args *SVMFreeArgs) Status
	EnqueueSVMMap(args *SVMMapArgs) Status
	EnqueueSVMUnmap(args *SVMUnmapArgs) Status

	Flush(queue NativeID) Status
	Finish(queue NativeID) Status
}
