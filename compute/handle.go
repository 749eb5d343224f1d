package compute

import (
	"runtime"
	"sync/atomic"

	"github.com/gomlx/gocompute/backend"
	"k8s.io/klog/v2"
)

// Handle holds one reference to an object owned by a backend. It is embedded by every resource type (Context,
// CommandQueue, Buffer, Image, Kernel and Event).
//
// A non-null Handle has retained the object exactly once: Release (or the garbage collector, if Release is never
// called) releases it exactly once. Clone retains the object again for a new owner, and Move transfers the
// reference, leaving the source null.
//
// Handles are not safe for concurrent Release: share clones across goroutines instead.
type Handle struct {
	wrapper *handleWrapper
}

// handleWrapper is the part of the Handle released by the cleanup. It must not reference the resource object.
type handleWrapper struct {
	backend backend.Backend
	kind    backend.Kind
	id      backend.NativeID
}

// release the reference, if not null. It is a no-op on a released wrapper.
func (w *handleWrapper) release() backend.Status {
	if w == nil || w.id.IsNull() {
		return backend.Success
	}
	status := w.backend.Release(w.kind, w.id)
	w.id = backend.Null
	handlesAlive.Add(-1)
	return status
}

var handlesAlive atomic.Int64

// HandlesAlive returns the number of non-null handles not yet released.
func HandlesAlive() int64 {
	return handlesAlive.Load()
}

// newHandle creates a Handle for id. If retain is true the object is retained, otherwise the handle adopts
// the reference already held by the caller (e.g. the result of a create call).
func newHandle(b backend.Backend, kind backend.Kind, id backend.NativeID, retain bool) (Handle, error) {
	if id.IsNull() {
		return Handle{}, nil
	}
	if retain {
		if err := toError("Retain"+kind.String(), b.Retain(kind, id)); err != nil {
			return Handle{}, err
		}
	}
	handlesAlive.Add(1)
	return Handle{wrapper: &handleWrapper{backend: b, kind: kind, id: id}}, nil
}

// track registers the cleanup that releases the handle of obj when obj is garbage collected.
func track[T any](obj *T, h Handle) *T {
	if h.wrapper == nil {
		return obj
	}
	runtime.AddCleanup(obj, func(wrapper *handleWrapper) {
		kind, id := wrapper.kind, wrapper.id
		if status := wrapper.release(); !status.IsSuccess() {
			klog.Errorf("compute: release of %s %#x failed during cleanup: %s", kind, uintptr(id), status)
		}
	}, h.wrapper)
	return obj
}

// resource is implemented by all types embedding a Handle.
type resource interface {
	handle() *Handle
}

func (h *Handle) handle() *Handle { return h }

// ID returns the backend id of the object, or backend.Null.
func (h *Handle) ID() backend.NativeID {
	if h == nil || h.wrapper == nil {
		return backend.Null
	}
	return h.wrapper.id
}

// IsNull returns whether the handle holds no object: never set, released or moved.
func (h *Handle) IsNull() bool {
	return h.ID().IsNull()
}

// Backend returns the backend owning the object, or nil for null handles.
func (h *Handle) Backend() backend.Backend {
	if h.IsNull() {
		return nil
	}
	return h.wrapper.backend
}

// Kind of the object held.
func (h *Handle) Kind() backend.Kind {
	if h == nil || h.wrapper == nil {
		return backend.KindInvalid
	}
	return h.wrapper.kind
}

// Equal returns whether both handles refer to the same backend object.
func (h *Handle) Equal(other resource) bool {
	o := other.handle()
	return h.ID() == o.ID() && h.Backend() == o.Backend()
}

// ReferenceCount returns the backend reference count of the object. It is meant for debugging and testing:
// the count may change concurrently.
func (h *Handle) ReferenceCount() (int, error) {
	h.assertValid("ReferenceCount")
	count, status := h.wrapper.backend.ReferenceCount(h.wrapper.kind, h.wrapper.id)
	return count, toError("ReferenceCount", status)
}

// Release the reference held, leaving the handle null. It is a no-op on a null handle.
//
// It panics if the backend fails to release a validly retained object: that means the reference counting
// is broken.
func (h *Handle) Release() {
	if h.IsNull() {
		return
	}
	kind, id := h.wrapper.kind, h.wrapper.id
	if status := h.wrapper.release(); !status.IsSuccess() {
		panicf("release of %s %#x failed: %s", kind, uintptr(id), status)
	}
}

// clone returns a new handle to the same object, retaining it.
func (h *Handle) clone() Handle {
	if h.IsNull() {
		return Handle{}
	}
	clone, err := newHandle(h.wrapper.backend, h.wrapper.kind, h.wrapper.id, true)
	if err != nil {
		panicf("clone of %s %#x failed: %+v", h.wrapper.kind, uintptr(h.wrapper.id), err)
	}
	return clone
}

// move returns a new handle owning the reference, and leaves h null.
func (h *Handle) move() Handle {
	if h.IsNull() {
		return Handle{}
	}
	moved := Handle{wrapper: &handleWrapper{backend: h.wrapper.backend, kind: h.wrapper.kind, id: h.wrapper.id}}
	h.wrapper.id = backend.Null
	return moved
}

func (h *Handle) assertValid(op string) {
	if h.IsNull() {
		panicf("%s: handle is null (never set, released or moved)", op)
	}
}
