package compute

import (
	"github.com/gomlx/gocompute/backend"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context groups the devices and the memory objects, kernels and queues that can be used together.
//
// Every resource created from a Context can only be used with queues of the same Context.
type Context struct {
	Handle
}

func newContext(h Handle) *Context {
	return track(&Context{Handle: h}, h)
}

// NewContext creates a context on the backend for the given devices.
func NewContext(b backend.Backend, devices ...*Device) (*Context, error) {
	if len(devices) == 0 {
		return nil, errors.New("NewContext requires at least one device")
	}
	ids := make([]backend.NativeID, len(devices))
	for ii, device := range devices {
		if device.Backend() != b {
			return nil, errors.Errorf("NewContext: device #%d (%s) is not from backend %q", ii, device, b.Name())
		}
		ids[ii] = device.ID()
	}
	id, status := b.CreateContext(ids)
	if err := toError("CreateContext", status); err != nil {
		return nil, err
	}
	h, err := newHandle(b, backend.KindContext, id, false)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("compute: created context %#x with %d device(s) on backend %q", uintptr(id), len(ids), b.Name())
	return newContext(h), nil
}

// AdoptContext wraps a context id created elsewhere. If retain is false, the reference held by the caller is
// transferred to the returned Context.
func AdoptContext(b backend.Backend, id backend.NativeID, retain bool) (*Context, error) {
	h, err := newHandle(b, backend.KindContext, id, retain)
	if err != nil {
		return nil, err
	}
	return newContext(h), nil
}

// Clone returns a new reference to the same context.
func (c *Context) Clone() *Context {
	return newContext(c.clone())
}

// Move returns a Context owning the reference held by c, and leaves c null.
func (c *Context) Move() *Context {
	return newContext(c.move())
}

// Devices of the context.
func (c *Context) Devices() ([]*Device, error) {
	c.assertValid("Context.Devices")
	b := c.Backend()
	ids, status := b.ContextDevices(c.ID())
	if err := toError("ContextDevices", status); err != nil {
		return nil, err
	}
	devices := make([]*Device, len(ids))
	for ii, id := range ids {
		devices[ii] = NewDevice(b, id)
	}
	return devices, nil
}

// NewUserEvent creates an event whose status is set by the caller, see UserEvent.
func (c *Context) NewUserEvent() (*UserEvent, error) {
	c.assertValid("Context.NewUserEvent")
	return newUserEvent(c.Backend(), c.ID())
}

// SVM is a shared virtual memory allocation: a host slice also addressable by the devices of the context
// that allocated it.
type SVM []byte

// SVMAlloc allocates shared virtual memory. An alignment of 0 selects the backend default.
//
// It returns an UnsupportedOperationError if none of the devices of the context supports SVM.
func (c *Context) SVMAlloc(size int, flags backend.MemFlags, alignment int) (SVM, error) {
	c.assertValid("Context.SVMAlloc")
	if size <= 0 {
		panicf("Context.SVMAlloc: invalid size %d", size)
	}
	data, status := c.Backend().SVMAlloc(c.ID(), flags, size, alignment)
	if status == backend.InvalidOperation {
		return nil, errors.WithStack(&UnsupportedOperationError{Op: "SVMAlloc", Feature: FeatureSVM,
			Required: DefaultFeatureTable().MinVersion(FeatureSVM)})
	}
	if err := toError("SVMAlloc", status); err != nil {
		return nil, err
	}
	return data, nil
}

// SVMFree frees immediately an allocation returned by SVMAlloc. Use CommandQueue.EnqueueSVMFree to free it
// after the commands using it complete.
func (c *Context) SVMFree(svm SVM) error {
	c.assertValid("Context.SVMFree")
	return toError("SVMFree", c.Backend().SVMFree(c.ID(), svm))
}
