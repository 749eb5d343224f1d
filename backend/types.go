package backend

import (
	"fmt"

	"github.com/gomlx/gocompute/imageformat"
)

// Version of a device, encoded as major*100 + minor*10 (1.2 is 120). Zero means unknown.
type Version int

const (
	VersionUnknown Version = 0
	Version1_0     Version = 100
	Version1_1     Version = 110
	Version1_2     Version = 120
	Version2_0     Version = 200
	Version2_1     Version = 210
	Version3_0     Version = 300
)

// MakeVersion returns the Version for major.minor. minor must be in [0, 9].
func MakeVersion(major, minor int) Version {
	return Version(major*100 + minor*10)
}

func (v Version) Major() int { return int(v) / 100 }
func (v Version) Minor() int { return (int(v) % 100) / 10 }

func (v Version) String() string {
	if v == VersionUnknown {
		return "unknown"
	}
	return fmt.Sprintf("%d.%d", v.Major(), v.Minor())
}

// QueueProperties are bit flags configuring a command queue.
type QueueProperties uint64

const (
	QueueOutOfOrderExecModeEnable QueueProperties = 1 << 0
	QueueProfilingEnable          QueueProperties = 1 << 1
)

// OutOfOrder returns whether out-of-order execution is enabled.
func (p QueueProperties) OutOfOrder() bool { return p&QueueOutOfOrderExecModeEnable != 0 }

// Profiling returns whether profiling is enabled.
func (p QueueProperties) Profiling() bool { return p&QueueProfilingEnable != 0 }

// QueuePropertyKey is the key of an entry of the property list given to CreateCommandQueueWithProperties.
type QueuePropertyKey uint32

const (
	QueuePropertiesKey QueuePropertyKey = 0x1093
	QueueSizeKey       QueuePropertyKey = 0x1094
)

// QueueProperty is one entry of a queue property list.
type QueueProperty struct {
	Key   QueuePropertyKey
	Value uint64
}

// MemFlags configure the allocation of memory objects.
type MemFlags uint64

const (
	MemReadWrite    MemFlags = 1 << 0
	MemWriteOnly    MemFlags = 1 << 1
	MemReadOnly     MemFlags = 1 << 2
	MemUseHostPtr   MemFlags = 1 << 3
	MemAllocHostPtr MemFlags = 1 << 4
	MemCopyHostPtr  MemFlags = 1 << 5
)

// MapFlags select the access requested when mapping memory into the host.
type MapFlags uint64

const (
	MapRead                  MapFlags = 1 << 0
	MapWrite                 MapFlags = 1 << 1
	MapWriteInvalidateRegion MapFlags = 1 << 2
)

// MigrationFlags configure EnqueueMigrateMemObjects.
type MigrationFlags uint64

const (
	MigrateMemObjectHost             MigrationFlags = 1 << 0
	MigrateMemObjectContentUndefined MigrationFlags = 1 << 1
)

// MemObjectType identifies buffers and the different image dimensionalities.
type MemObjectType uint32

const (
	MemObjectBuffer  MemObjectType = 0x10F0
	MemObjectImage2D MemObjectType = 0x10F1
	MemObjectImage3D MemObjectType = 0x10F2
	MemObjectImage1D MemObjectType = 0x10F4
)

// IsImage returns whether the type is one of the image types.
func (t MemObjectType) IsImage() bool {
	return t == MemObjectImage1D || t == MemObjectImage2D || t == MemObjectImage3D
}

// CommandType of the command associated with an event.
type CommandType uint32

const (
	CommandNDRangeKernel     CommandType = 0x11F0
	CommandTask              CommandType = 0x11F1
	CommandNativeKernel      CommandType = 0x11F2
	CommandReadBuffer        CommandType = 0x11F3
	CommandWriteBuffer       CommandType = 0x11F4
	CommandCopyBuffer        CommandType = 0x11F5
	CommandReadImage         CommandType = 0x11F6
	CommandWriteImage        CommandType = 0x11F7
	CommandCopyImage         CommandType = 0x11F8
	CommandCopyImageToBuffer CommandType = 0x11F9
	CommandCopyBufferToImage CommandType = 0x11FA
	CommandMapBuffer         CommandType = 0x11FB
	CommandMapImage          CommandType = 0x11FC
	CommandUnmapMemObject    CommandType = 0x11FD
	CommandMarker            CommandType = 0x11FE
	CommandReadBufferRect    CommandType = 0x1201
	CommandWriteBufferRect   CommandType = 0x1202
	CommandCopyBufferRect    CommandType = 0x1203
	CommandUser              CommandType = 0x1204
	CommandBarrier           CommandType = 0x1205
	CommandMigrateMemObjects CommandType = 0x1206
	CommandFillBuffer        CommandType = 0x1207
	CommandFillImage         CommandType = 0x1208
	CommandSVMFree           CommandType = 0x1209
	CommandSVMMemcpy         CommandType = 0x120A
	CommandSVMMemFill        CommandType = 0x120B
	CommandSVMMap            CommandType = 0x120C
	CommandSVMUnmap          CommandType = 0x120D
)

var commandNames = map[CommandType]string{
	CommandNDRangeKernel:     "NDRangeKernel",
	CommandTask:              "Task",
	CommandNativeKernel:      "NativeKernel",
	CommandReadBuffer:        "ReadBuffer",
	CommandWriteBuffer:       "WriteBuffer",
	CommandCopyBuffer:        "CopyBuffer",
	CommandReadImage:         "ReadImage",
	CommandWriteImage:        "WriteImage",
	CommandCopyImage:         "CopyImage",
	CommandCopyImageToBuffer: "CopyImageToBuffer",
	CommandCopyBufferToImage: "CopyBufferToImage",
	CommandMapBuffer:         "MapBuffer",
	CommandMapImage:          "MapImage",
	CommandUnmapMemObject:    "UnmapMemObject",
	CommandMarker:            "Marker",
	CommandReadBufferRect:    "ReadBufferRect",
	CommandWriteBufferRect:   "WriteBufferRect",
	CommandCopyBufferRect:    "CopyBufferRect",
	CommandUser:              "User",
	CommandBarrier:           "Barrier",
	CommandMigrateMemObjects: "MigrateMemObjects",
	CommandFillBuffer:        "FillBuffer",
	CommandFillImage:         "FillImage",
	CommandSVMFree:           "SVMFree",
	CommandSVMMemcpy:         "SVMMemcpy",
	CommandSVMMemFill:        "SVMMemFill",
	CommandSVMMap:            "SVMMap",
	CommandSVMUnmap:          "SVMUnmap",
}

func (c CommandType) String() string {
	if name, found := commandNames[c]; found {
		return name
	}
	return fmt.Sprintf("CommandType(0x%X)", uint32(c))
}

// DeviceInfo describes a device.
type DeviceInfo struct {
	Name, Vendor string
	Version      Version

	// MaxWorkGroupSize is the maximum number of work-items in a work-group.
	MaxWorkGroupSize int

	// SVM is true if the device supports shared virtual memory.
	SVM bool

	// Attributes holds backend specific attributes (only string, int64, []int64, float32 and bool values).
	Attributes map[string]any
}

// QueueInfo describes a command queue.
type QueueInfo struct {
	Context, Device NativeID
	Properties      QueueProperties
}

// MemInfo describes a memory object (buffer or image).
type MemInfo struct {
	Type    MemObjectType
	Context NativeID
	Flags   MemFlags
	Size    int
}

// ImageDesc describes the shape of an image. Height and Depth are 0 for images that don't use them.
// RowPitch and SlicePitch are in bytes, and are computed by the backend if left as 0.
type ImageDesc struct {
	Type                 MemObjectType
	Format               imageformat.Format
	Width, Height, Depth int
	RowPitch, SlicePitch int
}

// ImageInfo describes an image, including the pitches chosen by the backend.
type ImageInfo struct {
	ImageDesc
	ElementSize int
}

// KernelInfo describes a kernel.
type KernelInfo struct {
	Name    string
	NumArgs int
	Context NativeID
}

// MemArg is the value given to SetKernelArg for buffer and image arguments.
type MemArg struct {
	ID NativeID
}

// EventInfo describes an event.
type EventInfo struct {
	CommandType CommandType
	Status      ExecutionStatus
	Queue       NativeID // Null for user events.
	Context     NativeID
}

// ProfilingInfo holds the device timestamps, in nanoseconds, of the stages of a command.
type ProfilingInfo struct {
	Queued, Submitted, Started, Ended uint64
}
