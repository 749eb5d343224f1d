// Package host implements an in-process compute backend: memory objects are Go byte slices, commands run on
// goroutines ordered by their dependencies, and kernels are Go functions.
//
// It implements the full backend.Backend contract, including reference counts owned by the backend, in-order and
// out-of-order queues, events with callbacks and profiling, user events, mapping and shared virtual memory. It
// is used to run and test the compute package without a vendor driver.
//
// Importing the package registers a backend named "host" with a single OpenCL 2.0 class device:
//
//	import _ "github.com/gomlx/gocompute/host"
package host

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomlx/gocompute/backend"
	"k8s.io/klog/v2"
)

// Name used to register the default host backend.
const Name = "host"

func init() {
	if err := backend.Register(Name, New(DefaultConfig())); err != nil {
		klog.Errorf("failed to register the %q backend: %+v", Name, err)
	}
}

// DeviceConfig configures one of the host devices.
type DeviceConfig struct {
	Name, Vendor string

	// Version reported by the device: it also defines which entry points the device accepts (e.g. fill
	// requires 1.2, property-list queue creation and SVM require 2.0).
	Version backend.Version

	// MaxWorkGroupSize is the maximum number of work-items in a work-group. Defaults to 256.
	MaxWorkGroupSize int

	// SVM enables shared virtual memory. It requires Version >= 2.0.
	SVM bool
}

// Config of a host Backend.
type Config struct {
	// Name of the backend. Defaults to "host".
	Name string

	// Devices exposed by the backend. Defaults to a single 2.0 device named "host-cpu".
	Devices []DeviceConfig

	// Logger used for per-command traces (at verbosity 2). Defaults to klog.Background().
	Logger klog.Logger
}

// DefaultConfig returns the configuration of the registered "host" backend.
func DefaultConfig() Config {
	return Config{
		Name: Name,
		Devices: []DeviceConfig{{
			Name:             "host-cpu",
			Vendor:           "gocompute",
			Version:          backend.Version2_0,
			MaxWorkGroupSize: 256,
			SVM:              true,
		}},
		Logger: klog.Background(),
	}
}

// Stats counts calls made to the backend.
type Stats struct {
	// Calls to any of the Backend methods.
	Calls int64
	// Enqueues counts calls to the Enqueue* methods, including the ones that fail validation.
	Enqueues int64
	Retains  int64
	Releases int64
}

// Backend is the host implementation of backend.Backend. Create it with New.
type Backend struct {
	name    string
	logger  klog.Logger
	devices []*device
	start   time.Time

	nextID atomic.Uintptr

	mu      sync.Mutex
	objects map[backend.NativeID]*object

	calls, enqueues, retains, releases atomic.Int64
}

var _ backend.Backend = (*Backend)(nil)

// object is an entry of the backend's table of reference counted objects.
type object struct {
	kind  backend.Kind
	refs  int
	value any
}

// New creates a host Backend.
func New(config Config) *Backend {
	defaults := DefaultConfig()
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if len(config.Devices) == 0 {
		config.Devices = defaults.Devices
	}
	if config.Logger.GetSink() == nil {
		config.Logger = defaults.Logger
	}
	b := &Backend{
		name:    config.Name,
		logger:  config.Logger.WithValues("backend", config.Name),
		start:   time.Now(),
		objects: make(map[backend.NativeID]*object),
	}
	b.nextID.Store(0x1000)
	for _, devConfig := range config.Devices {
		if devConfig.MaxWorkGroupSize <= 0 {
			devConfig.MaxWorkGroupSize = 256
		}
		if devConfig.Version == backend.VersionUnknown {
			devConfig.Version = backend.Version1_0
		}
		if devConfig.SVM && devConfig.Version < backend.Version2_0 {
			klog.Warningf("host device %q: SVM requires version 2.0, disabled for version %s", devConfig.Name, devConfig.Version)
			devConfig.SVM = false
		}
		b.devices = append(b.devices, &device{id: b.newID(), config: devConfig})
	}
	return b
}

// Name implements backend.Backend.
func (b *Backend) Name() string {
	b.calls.Add(1)
	return b.name
}

// Stats returns the counters of calls made to the backend so far.
func (b *Backend) Stats() Stats {
	return Stats{
		Calls:    b.calls.Load(),
		Enqueues: b.enqueues.Load(),
		Retains:  b.retains.Load(),
		Releases: b.releases.Load(),
	}
}

// now returns the device timestamp in nanoseconds.
func (b *Backend) now() uint64 {
	return uint64(time.Since(b.start).Nanoseconds())
}

func (b *Backend) newID() backend.NativeID {
	return backend.NativeID(b.nextID.Add(1))
}

// register a new object with reference count 1 and returns its id.
func (b *Backend) register(kind backend.Kind, value any) backend.NativeID {
	id := b.newID()
	b.mu.Lock()
	b.objects[id] = &object{kind: kind, refs: 1, value: value}
	b.mu.Unlock()
	return id
}

// invalidStatus returns the status reported for an unknown object of the given kind.
func invalidStatus(kind backend.Kind) backend.Status {
	switch kind {
	case backend.KindContext:
		return backend.InvalidContext
	case backend.KindQueue:
		return backend.InvalidCommandQueue
	case backend.KindBuffer, backend.KindImage:
		return backend.InvalidMemObject
	case backend.KindKernel:
		return backend.InvalidKernel
	case backend.KindEvent:
		return backend.InvalidEvent
	}
	return backend.InvalidValue
}

// lookup returns the value of a live object of the given kind.
func (b *Backend) lookup(kind backend.Kind, id backend.NativeID) (any, backend.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, found := b.objects[id]
	if !found || obj.kind != kind {
		return nil, invalidStatus(kind)
	}
	return obj.value, backend.Success
}

// lookupAs is a typed version of Backend.lookup.
func lookupAs[T any](b *Backend, kind backend.Kind, id backend.NativeID) (T, backend.Status) {
	var zero T
	value, status := b.lookup(kind, id)
	if !status.IsSuccess() {
		return zero, status
	}
	typed, ok := value.(T)
	if !ok {
		return zero, invalidStatus(kind)
	}
	return typed, backend.Success
}

// Retain implements backend.Backend.
func (b *Backend) Retain(kind backend.Kind, id backend.NativeID) backend.Status {
	b.calls.Add(1)
	b.retains.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, found := b.objects[id]
	if !found || obj.kind != kind {
		return invalidStatus(kind)
	}
	obj.refs++
	return backend.Success
}

// Release implements backend.Backend. The object is removed from the table when its count reaches 0; commands
// already submitted that use it still run to completion.
func (b *Backend) Release(kind backend.Kind, id backend.NativeID) backend.Status {
	b.calls.Add(1)
	b.releases.Add(1)
	b.mu.Lock()
	obj, found := b.objects[id]
	if !found || obj.kind != kind {
		b.mu.Unlock()
		return invalidStatus(kind)
	}
	obj.refs--
	if obj.refs > 0 {
		b.mu.Unlock()
		return backend.Success
	}
	delete(b.objects, id)
	b.mu.Unlock()
	b.logger.V(3).Info("freed object", "kind", kind, "id", id)
	return backend.Success
}

// ReferenceCount implements backend.Backend.
func (b *Backend) ReferenceCount(kind backend.Kind, id backend.NativeID) (int, backend.Status) {
	b.calls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, found := b.objects[id]
	if !found || obj.kind != kind {
		return 0, invalidStatus(kind)
	}
	return obj.refs, backend.Success
}

// LiveObjects returns the number of objects (of any kind) with a positive reference count.
func (b *Backend) LiveObjects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}
