package backend

import "fmt"

// Status is the result code of a backend call. Values follow the OpenCL error codes.
type Status int32

const (
	Success                            Status = 0
	DeviceNotFound                     Status = -1
	DeviceNotAvailable                 Status = -2
	MemObjectAllocationFailure         Status = -4
	OutOfResources                     Status = -5
	OutOfHostMemory                    Status = -6
	ProfilingInfoNotAvailable          Status = -7
	MemCopyOverlap                     Status = -8
	ImageFormatMismatch                Status = -9
	ImageFormatNotSupported            Status = -10
	MapFailure                         Status = -12
	ExecStatusErrorForEventsInWaitList Status = -14
	InvalidValue                       Status = -30
	InvalidDevice                      Status = -33
	InvalidContext                     Status = -34
	InvalidQueueProperties             Status = -35
	InvalidCommandQueue                Status = -36
	InvalidHostPtr                     Status = -37
	InvalidMemObject                   Status = -38
	InvalidImageFormatDescriptor       Status = -39
	InvalidImageSize                   Status = -40
	InvalidKernel                      Status = -48
	InvalidArgIndex                    Status = -49
	InvalidArgValue                    Status = -50
	InvalidKernelArgs                  Status = -52
	InvalidWorkDimension               Status = -53
	InvalidWorkGroupSize               Status = -54
	InvalidGlobalOffset                Status = -56
	InvalidEventWaitList               Status = -57
	InvalidEvent                       Status = -58
	InvalidOperation                   Status = -59
	InvalidBufferSize                  Status = -61
	InvalidGlobalWorkSize              Status = -63
)

var statusNames = map[Status]string{
	Success:                            "Success",
	DeviceNotFound:                     "DeviceNotFound",
	DeviceNotAvailable:                 "DeviceNotAvailable",
	MemObjectAllocationFailure:         "MemObjectAllocationFailure",
	OutOfResources:                     "OutOfResources",
	OutOfHostMemory:                    "OutOfHostMemory",
	ProfilingInfoNotAvailable:          "ProfilingInfoNotAvailable",
	MemCopyOverlap:                     "MemCopyOverlap",
	ImageFormatMismatch:                "ImageFormatMismatch",
	ImageFormatNotSupported:            "ImageFormatNotSupported",
	MapFailure:                         "MapFailure",
	ExecStatusErrorForEventsInWaitList: "ExecStatusErrorForEventsInWaitList",
	InvalidValue:                       "InvalidValue",
	InvalidDevice:                      "InvalidDevice",
	InvalidContext:                     "InvalidContext",
	InvalidQueueProperties:             "InvalidQueueProperties",
	InvalidCommandQueue:                "InvalidCommandQueue",
	InvalidHostPtr:                     "InvalidHostPtr",
	InvalidMemObject:                   "InvalidMemObject",
	InvalidImageFormatDescriptor:       "InvalidImageFormatDescriptor",
	InvalidImageSize:                   "InvalidImageSize",
	InvalidKernel:                      "InvalidKernel",
	InvalidArgIndex:                    "InvalidArgIndex",
	InvalidArgValue:                    "InvalidArgValue",
	InvalidKernelArgs:                  "InvalidKernelArgs",
	InvalidWorkDimension:               "InvalidWorkDimension",
	InvalidWorkGroupSize:               "InvalidWorkGroupSize",
	InvalidGlobalOffset:                "InvalidGlobalOffset",
	InvalidEventWaitList:               "InvalidEventWaitList",
	InvalidEvent:                       "InvalidEvent",
	InvalidOperation:                   "InvalidOperation",
	InvalidBufferSize:                  "InvalidBufferSize",
	InvalidGlobalWorkSize:              "InvalidGlobalWorkSize",
}

func (s Status) String() string {
	if name, found := statusNames[s]; found {
		return name
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// IsSuccess returns whether s is Success.
func (s Status) IsSuccess() bool { return s == Success }

// ExecutionStatus of a command (and its event). Positive values are the states of a command in flight,
// Complete (0) is the successful terminal state, and negative values are terminal errors (a Status).
type ExecutionStatus int32

const (
	Complete  ExecutionStatus = 0
	Running   ExecutionStatus = 1
	Submitted ExecutionStatus = 2
	Queued    ExecutionStatus = 3
)

// IsTerminal returns whether the status is Complete or an error.
func (s ExecutionStatus) IsTerminal() bool { return s <= Complete }

// IsError returns whether the status is a terminal error.
func (s ExecutionStatus) IsError() bool { return s < Complete }

// Err returns the Status of an error execution status, or Success.
func (s ExecutionStatus) Err() Status {
	if s < 0 {
		return Status(s)
	}
	return Success
}

// ErrorStatus converts an error Status to an ExecutionStatus, to mark a command as failed.
func ErrorStatus(s Status) ExecutionStatus {
	if s >= 0 {
		return ExecutionStatus(InvalidValue)
	}
	return ExecutionStatus(s)
}

func (s ExecutionStatus) String() string {
	switch s {
	case Complete:
		return "Complete"
	case Running:
		return "Running"
	case Submitted:
		return "Submitted"
	case Queued:
		return "Queued"
	}
	return fmt.Sprintf("Error(%s)", Status(s))
}
