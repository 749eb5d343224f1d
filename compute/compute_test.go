package compute

import (
	"flag"
	"runtime"
	"testing"
	"time"

	"github.com/gomlx/gocompute/backend"
	"github.com/gomlx/gocompute/host"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"k8s.io/klog/v2"
)

var flagBackend = flag.String("backend", host.Name, "registered backend used by the backend independent tests")

func init() {
	klog.InitFlags(nil)
}

type errTester[T any] struct {
	value T
	err   error
}

// capture is a shortcut to test that there is no error and return the value.
func capture[T any](value T, err error) errTester[T] {
	return errTester[T]{value, err}
}

func (e errTester[T]) Test(t *testing.T) T {
	require.NoErrorf(t, e.err, "%+v", e.err)
	return e.value
}

// newHost creates a private host backend with one device of the given version, so tests can inspect its Stats.
func newHost(version backend.Version) *host.Backend {
	return host.New(host.Config{
		Name: "test-" + version.String(),
		Devices: []host.DeviceConfig{{
			Name:             "test-device",
			Vendor:           "gocompute",
			Version:          version,
			MaxWorkGroupSize: 16,
			SVM:              version >= backend.Version2_0,
		}},
	})
}

// setup creates a context and a queue on a new host backend. configure, if not nil, is applied to the queue
// configuration.
func setup(t *testing.T, version backend.Version, configure func(*QueueConfig)) (*host.Backend, *Context, *CommandQueue) {
	b := newHost(version)
	devices := capture(Devices(b)).Test(t)
	require.Len(t, devices, 1)
	ctx := capture(NewContext(b, devices...)).Test(t)
	cfg := ctx.NewCommandQueue(devices[0])
	if configure != nil {
		configure(cfg)
	}
	q := capture(cfg.Done()).Test(t)
	return b, ctx, q
}

func TestRegistry(t *testing.T) {
	require.Contains(t, Backends(), host.Name)
	b := capture(GetBackend(*flagBackend)).Test(t)
	require.Equal(t, *flagBackend, b.Name())

	_, err := GetBackend("not-registered")
	require.Error(t, err)

	// Registering the same backend twice is fine, but not a different one under the same name.
	require.NoError(t, RegisterBackend(*flagBackend, b))
	require.Error(t, RegisterBackend(*flagBackend, newHost(backend.Version1_2)))
}

func TestRegisteredBackend(t *testing.T) {
	b := must.M1(GetBackend(*flagBackend))
	devices := capture(Devices(b)).Test(t)
	require.NotEmpty(t, devices)
	ctx := capture(NewContext(b, devices[0])).Test(t)
	defer ctx.Release()
	q := capture(ctx.NewCommandQueue(devices[0]).Done()).Test(t)
	defer q.Release()

	buf := capture(ctx.NewBuffer(64).FromHost(make([]byte, 64)).Done()).Test(t)
	defer buf.Release()
	require.NoError(t, q.EnqueueWriteBuffer(buf, 8, []byte{1, 2, 3}))
	dst := make([]byte, 4)
	require.NoError(t, q.EnqueueReadBuffer(buf, 7, dst))
	require.Equal(t, []byte{0, 1, 2, 3}, dst)
}

func TestHandleLifecycle(t *testing.T) {
	b, ctx, q := setup(t, backend.Version2_0, nil)
	buf := capture(ctx.NewBuffer(16).Done()).Test(t)
	require.Equal(t, 1, capture(buf.ReferenceCount()).Test(t))

	// Clone increments the reference count, and refers to the same object.
	clone := buf.Clone()
	require.Equal(t, 2, capture(buf.ReferenceCount()).Test(t))
	require.True(t, clone.Equal(buf))
	require.Equal(t, buf.Size(), clone.Size())

	// Move transfers the reference: the source becomes null.
	moved := clone.Move()
	require.True(t, clone.IsNull())
	require.True(t, moved.Equal(buf))
	require.False(t, clone.Equal(buf))
	require.Equal(t, 2, capture(buf.ReferenceCount()).Test(t))
	require.Panics(t, func() { _ = q.EnqueueWriteBuffer(clone, 0, []byte{1}) })

	// Release decrements exactly once, and is a no-op afterwards.
	releases := b.Stats().Releases
	moved.Release()
	moved.Release()
	clone.Release()
	require.Equal(t, releases+1, b.Stats().Releases)
	require.Equal(t, 1, capture(buf.ReferenceCount()).Test(t))
	buf.Release()
	require.True(t, buf.IsNull())

	// Adopting without retaining takes over the reference of a fresh object.
	id, status := b.CreateBuffer(ctx.ID(), backend.MemReadWrite, 8, nil)
	require.Equal(t, backend.Success, status)
	adopted := capture(AdoptBuffer(b, id, false)).Test(t)
	require.Equal(t, 1, capture(adopted.ReferenceCount()).Test(t))
	require.Equal(t, 8, adopted.Size())
	retained := capture(AdoptBuffer(b, id, true)).Test(t)
	require.Equal(t, 2, capture(adopted.ReferenceCount()).Test(t))
	retained.Release()
	adopted.Release()
	_, status = b.MemInfo(id)
	require.Equal(t, backend.InvalidMemObject, status)

	// Null handles.
	null := capture(AdoptCommandQueue(b, backend.Null, false, nil)).Test(t)
	require.True(t, null.IsNull())
	null.Release()
	runtime.KeepAlive(q)
}

func TestHandleCleanup(t *testing.T) {
	b, ctx, q := setup(t, backend.Version2_0, nil)
	live := b.LiveObjects()
	func() {
		for range 10 {
			_ = capture(ctx.NewBuffer(16).Done()).Test(t)
		}
	}()
	require.Equal(t, live+10, b.LiveObjects())
	require.Eventually(t, func() bool {
		runtime.GC()
		return b.LiveObjects() == live
	}, 5*time.Second, 10*time.Millisecond)
	runtime.KeepAlive(ctx)
	runtime.KeepAlive(q)
}

func TestContext(t *testing.T) {
	b := newHost(backend.Version1_2)
	devices := capture(Devices(b)).Test(t)
	_, err := NewContext(b)
	require.Error(t, err)
	_, err = NewContext(newHost(backend.Version1_2), devices...)
	require.Error(t, err)

	ctx := capture(NewContext(b, devices...)).Test(t)
	ctxDevices := capture(ctx.Devices()).Test(t)
	require.Len(t, ctxDevices, 1)
	require.True(t, ctxDevices[0].Equal(devices[0]))

	clone := ctx.Clone()
	require.Equal(t, 2, capture(ctx.ReferenceCount()).Test(t))
	clone.Release()
	moved := ctx.Move()
	require.True(t, ctx.IsNull())
	require.Panics(t, func() { _, _ = ctx.Devices() })
	moved.Release()

	// SVM is not available in 1.2 devices.
	_, ctx, _ = setup(t, backend.Version1_2, nil)
	_, err = ctx.SVMAlloc(64, backend.MemReadWrite, 0)
	require.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestDeviceAttributes(t *testing.T) {
	b := newHost(backend.Version2_0)
	device := capture(Devices(b)).Test(t)[0]
	require.Equal(t, backend.Version2_0, capture(device.Version()).Test(t))
	attrs := capture(device.Attributes()).Test(t)
	assert.Equal(t, "test-device", attrs["name"])
	assert.Equal(t, "2.0", attrs["version"])
	assert.Equal(t, int64(16), attrs["max_work_group_size"])
	assert.Equal(t, true, attrs["svm"])
	require.Contains(t, device.String(), "test-device")

	s := capture(attrs.ToStruct()).Test(t)
	require.Equal(t, "test-device", s.Fields["name"].GetStringValue())
	require.Equal(t, float64(16), s.Fields["max_work_group_size"].GetNumberValue())
	require.Len(t, s.Fields["max_work_item_sizes"].GetListValue().GetValues(), 3)
	js := capture(protojson.Marshal(s)).Test(t)
	require.Contains(t, string(js), "gocompute")
}

func TestNamedValuesMap(t *testing.T) {
	m := NamedValuesMap{"b": true, "i": int64(3), "f": float32(0.5), "s": "x", "l": []int64{1, 2}}
	require.Equal(t, []string{"b", "f", "i", "l", "s"}, m.Keys())
	require.Equal(t, "{b: true, f: 0.5, i: 3, l: [1 2], s: x}", m.String())
	s := capture(m.ToStruct()).Test(t)
	require.Equal(t, 0.5, s.Fields["f"].GetNumberValue())
	require.True(t, s.Fields["b"].GetBoolValue())

	_, err := NamedValuesMap{"bad": 3}.ToStruct()
	require.ErrorContains(t, err, "unsupported type int")
}

func TestExtents(t *testing.T) {
	require.Equal(t, backend.Extent3{2, 0, 0}, Extents{2}.origin())
	require.Equal(t, backend.Extent3{2, 3, 1}, Extents{2, 3}.region())
	require.Equal(t, backend.Extent3{1, 1, 1}, Extents(nil).region())
	require.Equal(t, 24, Extents{2, 3, 4}.Volume())
	require.Equal(t, 1, Extents{}.Volume())
}

func TestFeatureTable(t *testing.T) {
	table := DefaultFeatureTable()
	require.True(t, table.Supports(FeatureRectTransfers, backend.Version1_1))
	require.False(t, table.Supports(FeatureFillBuffer, backend.Version1_1))
	disabled := table.Disable(FeatureFillBuffer)
	require.False(t, disabled.Supports(FeatureFillBuffer, backend.Version3_0))
	require.True(t, table.Supports(FeatureFillBuffer, backend.Version3_0), "Disable must not modify the original table")
	require.Equal(t, VersionNever, FeatureTable{}.MinVersion(FeatureSVM))
	require.Equal(t, "FillImage", FeatureFillImage.String())
	lowered := table.With(FeatureSVM, backend.Version1_2)
	require.True(t, lowered.Supports(FeatureSVM, backend.Version1_2))

	// A nil table has every feature disabled, and can be extended.
	var empty FeatureTable
	require.False(t, empty.Supports(FeatureSVM, backend.Version3_0))
	require.NotNil(t, empty.Clone())
	svmOnly := empty.With(FeatureSVM, backend.Version2_0)
	require.True(t, svmOnly.Supports(FeatureSVM, backend.Version2_0))
	require.False(t, svmOnly.Supports(FeatureFillBuffer, backend.Version3_0))
	require.Nil(t, empty)
	require.Equal(t, VersionNever, empty.Disable(FeatureMigrate).MinVersion(FeatureMigrate))
}
