package host

import (
	"runtime"
	"slices"
	"sync"

	"github.com/gomlx/gocompute/backend"
)

type device struct {
	id     backend.NativeID
	config DeviceConfig
}

// supports returns InvalidOperation if the device version is below v.
func (d *device) supports(v backend.Version) backend.Status {
	if d.config.Version < v {
		return backend.InvalidOperation
	}
	return backend.Success
}

type context struct {
	id      backend.NativeID
	devices []*device

	mu  sync.Mutex
	svm []*svmAllocation
}

func (c *context) hasDevice(d *device) bool {
	return slices.Contains(c.devices, d)
}

func (b *Backend) findDevice(id backend.NativeID) (*device, backend.Status) {
	for _, d := range b.devices {
		if d.id == id {
			return d, backend.Success
		}
	}
	return nil, backend.InvalidDevice
}

// Devices implements backend.Backend.
func (b *Backend) Devices() ([]backend.NativeID, backend.Status) {
	b.calls.Add(1)
	ids := make([]backend.NativeID, len(b.devices))
	for ii, d := range b.devices {
		ids[ii] = d.id
	}
	return ids, backend.Success
}

// DeviceInfo implements backend.Backend.
func (b *Backend) DeviceInfo(id backend.NativeID) (backend.DeviceInfo, backend.Status) {
	b.calls.Add(1)
	d, status := b.findDevice(id)
	if !status.IsSuccess() {
		return backend.DeviceInfo{}, status
	}
	return backend.DeviceInfo{
		Name:             d.config.Name,
		Vendor:           d.config.Vendor,
		Version:          d.config.Version,
		MaxWorkGroupSize: d.config.MaxWorkGroupSize,
		SVM:              d.config.SVM,
		Attributes: map[string]any{
			"max_compute_units":          int64(runtime.NumCPU()),
			"address_bits":               int64(64),
			"max_work_item_sizes":        []int64{int64(d.config.MaxWorkGroupSize), int64(d.config.MaxWorkGroupSize), int64(d.config.MaxWorkGroupSize)},
			"profiling_timer_resolution": int64(1),
			"svm_alignment":              int64(svmDefaultAlignment),
			"image_support":              true,
			"backend":                    b.name,
		},
	}, backend.Success
}

// CreateContext implements backend.Backend.
func (b *Backend) CreateContext(deviceIDs []backend.NativeID) (backend.NativeID, backend.Status) {
	b.calls.Add(1)
	if len(deviceIDs) == 0 {
		return backend.Null, backend.InvalidValue
	}
	ctx := &context{}
	for _, id := range deviceIDs {
		d, status := b.findDevice(id)
		if !status.IsSuccess() {
			return backend.Null, status
		}
		if !ctx.hasDevice(d) {
			ctx.devices = append(ctx.devices, d)
		}
	}
	ctx.id = b.register(backend.KindContext, ctx)
	b.logger.V(1).Info("created context", "context", ctx.id, "devices", len(ctx.devices))
	return ctx.id, backend.Success
}

// ContextDevices implements backend.Backend.
func (b *Backend) ContextDevices(id backend.NativeID) ([]backend.NativeID, backend.Status) {
	b.calls.Add(1)
	ctx, status := lookupAs[*context](b, backend.KindContext, id)
	if !status.IsSuccess() {
		return nil, status
	}
	ids := make([]backend.NativeID, len(ctx.devices))
	for ii, d := range ctx.devices {
		ids[ii] = d.id
	}
	return ids, backend.Success
}
