package compute

import (
	"fmt"

	"github.com/gomlx/gocompute/backend"
	"github.com/pkg/errors"
)

// OperationError is returned when the backend reports a failure. There is no automatic retry: the caller must
// assume the operation didn't complete as requested.
type OperationError struct {
	// Op is the name of the operation that failed, e.g. "EnqueueReadBuffer".
	Op     string
	Status backend.Status
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %s (status=%d)", e.Op, e.Status, int32(e.Status))
}

// ErrUnsupportedOperation is matched (with errors.Is) by every UnsupportedOperationError.
var ErrUnsupportedOperation = errors.New("operation not supported by the device")

// UnsupportedOperationError is returned, without contacting the backend, when an operation requires a feature
// the device version doesn't support.
type UnsupportedOperationError struct {
	Op       string
	Feature  Feature
	Required backend.Version // VersionNever if the feature is disabled in the queue's FeatureTable.
	Device   backend.Version
}

func (e *UnsupportedOperationError) Error() string {
	if e.Required == VersionNever {
		return fmt.Sprintf("%s requires %s, which is disabled for this queue", e.Op, e.Feature)
	}
	return fmt.Sprintf("%s requires %s (device version >= %s), but device version is %s",
		e.Op, e.Feature, e.Required, e.Device)
}

// Is makes errors.Is(err, ErrUnsupportedOperation) true.
func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

// toError converts a backend status to an *OperationError with a stack trace, or nil for success.
func toError(op string, status backend.Status) error {
	if status.IsSuccess() {
		return nil
	}
	return errors.WithStack(&OperationError{Op: op, Status: status})
}

// StatusOf returns the backend status carried by err, or backend.Success if err doesn't carry an OperationError.
func StatusOf(err error) backend.Status {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Status
	}
	return backend.Success
}

// panicf panics with an error with a stack trace. It is used for precondition violations, which are
// programming errors.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}
