package compute

import (
	"fmt"
	"maps"

	"github.com/gomlx/gocompute/backend"
	"github.com/pkg/errors"
)

// Device is a compute device of a backend. Devices are owned by the backend and not reference counted.
type Device struct {
	backend backend.Backend
	id      backend.NativeID
}

// Devices returns the devices of the backend.
func Devices(b backend.Backend) ([]*Device, error) {
	ids, status := b.Devices()
	if err := toError("Devices", status); err != nil {
		return nil, errors.WithMessagef(err, "backend %q", b.Name())
	}
	devices := make([]*Device, len(ids))
	for ii, id := range ids {
		devices[ii] = &Device{backend: b, id: id}
	}
	return devices, nil
}

// NewDevice wraps a device id of the backend.
func NewDevice(b backend.Backend, id backend.NativeID) *Device {
	return &Device{backend: b, id: id}
}

// ID returns the backend id of the device.
func (d *Device) ID() backend.NativeID {
	if d == nil {
		return backend.Null
	}
	return d.id
}

// Backend returns the backend of the device.
func (d *Device) Backend() backend.Backend { return d.backend }

// Equal returns whether both refer to the same device.
func (d *Device) Equal(other *Device) bool {
	return d.ID() == other.ID() && d.backend == other.backend
}

// Info queries the device description.
func (d *Device) Info() (backend.DeviceInfo, error) {
	info, status := d.backend.DeviceInfo(d.id)
	return info, toError("DeviceInfo", status)
}

// Version of the device, which defines the features it supports.
func (d *Device) Version() (backend.Version, error) {
	info, err := d.Info()
	return info.Version, err
}

// Attributes returns the device description as a NamedValuesMap: the standard fields are added to the
// backend specific attributes.
func (d *Device) Attributes() (NamedValuesMap, error) {
	info, err := d.Info()
	if err != nil {
		return nil, err
	}
	attrs := make(NamedValuesMap, len(info.Attributes)+5)
	maps.Copy(attrs, info.Attributes)
	attrs["name"] = info.Name
	attrs["vendor"] = info.Vendor
	attrs["version"] = info.Version.String()
	attrs["max_work_group_size"] = int64(info.MaxWorkGroupSize)
	attrs["svm"] = info.SVM
	return attrs, nil
}

// String implements fmt.Stringer.
func (d *Device) String() string {
	info, err := d.Info()
	if err != nil {
		return fmt.Sprintf("Device(%#x)", uintptr(d.id))
	}
	return fmt.Sprintf("%s (%s, version %s)", info.Name, info.Vendor, info.Version)
}
