package host

import (
	"sync"

	"github.com/gomlx/gocompute/backend"
	"github.com/gomlx/gocompute/imageformat"
)

// memObject is a buffer or an image, stored in a Go byte slice.
type memObject struct {
	id    backend.NativeID
	kind  backend.Kind
	ctx   *context
	flags backend.MemFlags
	data  []byte

	// image is nil for buffers.
	image *backend.ImageInfo

	mu       sync.Mutex
	mappings []mapping
}

// mapping records a host view handed out by a map command, so unmap can validate it.
type mapping struct {
	first *byte
	size  int
}

// extent returns the image width, height and depth, with unused dimensions set to 1.
func (m *memObject) extent() backend.Extent3 {
	desc := m.image.ImageDesc
	return backend.Extent3{desc.Width, max(desc.Height, 1), max(desc.Depth, 1)}
}

func (m *memObject) addMapping(view []byte) {
	if len(view) == 0 {
		return
	}
	m.mu.Lock()
	m.mappings = append(m.mappings, mapping{first: &view[0], size: len(view)})
	m.mu.Unlock()
}

// removeMapping returns false if view was not returned by a previous map of this object.
func (m *memObject) removeMapping(view []byte) bool {
	if len(view) == 0 {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for ii, mp := range m.mappings {
		if mp.first == &view[0] && mp.size == len(view) {
			m.mappings = append(m.mappings[:ii], m.mappings[ii+1:]...)
			return true
		}
	}
	return false
}

const memAccessFlags = backend.MemReadWrite | backend.MemWriteOnly | backend.MemReadOnly

// allocate the storage of a memory object of the given size, following the host pointer flags.
func allocate(flags backend.MemFlags, size int, host []byte) ([]byte, backend.Status) {
	if bits := flags & memAccessFlags; bits&(bits-1) != 0 {
		return nil, backend.InvalidValue
	}
	useHost := flags&backend.MemUseHostPtr != 0
	copyHost := flags&backend.MemCopyHostPtr != 0
	if useHost && (copyHost || flags&backend.MemAllocHostPtr != 0) {
		return nil, backend.InvalidValue
	}
	if (useHost || copyHost) != (host != nil) {
		return nil, backend.InvalidHostPtr
	}
	if host != nil && len(host) < size {
		return nil, backend.InvalidHostPtr
	}
	if useHost {
		return host[:size:size], backend.Success
	}
	data := make([]byte, size)
	if copyHost {
		copy(data, host)
	}
	return data, backend.Success
}

// CreateBuffer implements backend.Backend.
func (b *Backend) CreateBuffer(ctxID backend.NativeID, flags backend.MemFlags, size int, host []byte) (backend.NativeID, backend.Status) {
	b.calls.Add(1)
	ctx, status := lookupAs[*context](b, backend.KindContext, ctxID)
	if !status.IsSuccess() {
		return backend.Null, status
	}
	if size <= 0 {
		return backend.Null, backend.InvalidBufferSize
	}
	data, status := allocate(flags, size, host)
	if !status.IsSuccess() {
		return backend.Null, status
	}
	mem := &memObject{kind: backend.KindBuffer, ctx: ctx, flags: flags, data: data}
	mem.id = b.register(backend.KindBuffer, mem)
	return mem.id, backend.Success
}

// CreateImage implements backend.Backend. Row and slice pitches may only be given with a host pointer, and
// they define the layout of both the host memory and the image storage.
func (b *Backend) CreateImage(ctxID backend.NativeID, flags backend.MemFlags, desc backend.ImageDesc, host []byte) (backend.NativeID, backend.Status) {
	b.calls.Add(1)
	ctx, status := lookupAs[*context](b, backend.KindContext, ctxID)
	if !status.IsSuccess() {
		return backend.Null, status
	}
	if desc.Format.Validate() != nil {
		return backend.Null, backend.InvalidImageFormatDescriptor
	}
	switch desc.Type {
	case backend.MemObjectImage1D:
		if desc.Height > 1 || desc.Depth > 1 {
			return backend.Null, backend.InvalidImageSize
		}
	case backend.MemObjectImage2D:
		if desc.Depth > 1 {
			return backend.Null, backend.InvalidImageSize
		}
	case backend.MemObjectImage3D:
	default:
		return backend.Null, backend.InvalidImageFormatDescriptor
	}
	if desc.Width <= 0 || desc.Height < 0 || desc.Depth < 0 {
		return backend.Null, backend.InvalidImageSize
	}
	if host == nil && (desc.RowPitch != 0 || desc.SlicePitch != 0) {
		return backend.Null, backend.InvalidImageFormatDescriptor
	}
	elemSize := desc.Format.ElementSize()
	if desc.RowPitch == 0 {
		desc.RowPitch = desc.Width * elemSize
	}
	if desc.SlicePitch == 0 {
		desc.SlicePitch = desc.RowPitch * max(desc.Height, 1)
	}
	if desc.RowPitch < desc.Width*elemSize || desc.SlicePitch < desc.RowPitch*max(desc.Height, 1) {
		return backend.Null, backend.InvalidImageSize
	}
	data, status := allocate(flags, desc.SlicePitch*max(desc.Depth, 1), host)
	if !status.IsSuccess() {
		return backend.Null, status
	}
	mem := &memObject{
		kind:  backend.KindImage,
		ctx:   ctx,
		flags: flags,
		data:  data,
		image: &backend.ImageInfo{ImageDesc: desc, ElementSize: elemSize},
	}
	mem.id = b.register(backend.KindImage, mem)
	return mem.id, backend.Success
}

// memByID looks up a buffer or image of any kind.
func (b *Backend) memByID(id backend.NativeID) (*memObject, backend.Status) {
	if mem, status := lookupAs[*memObject](b, backend.KindBuffer, id); status.IsSuccess() {
		return mem, status
	}
	return lookupAs[*memObject](b, backend.KindImage, id)
}

// memInContext looks up a memory object of the given kind that must belong to ctx.
func (b *Backend) memInContext(kind backend.Kind, id backend.NativeID, ctx *context) (*memObject, backend.Status) {
	var mem *memObject
	var status backend.Status
	if kind == backend.KindInvalid {
		mem, status = b.memByID(id)
	} else {
		mem, status = lookupAs[*memObject](b, kind, id)
	}
	if !status.IsSuccess() {
		return nil, status
	}
	if mem.ctx != ctx {
		return nil, backend.InvalidContext
	}
	return mem, backend.Success
}

// MemInfo implements backend.Backend.
func (b *Backend) MemInfo(id backend.NativeID) (backend.MemInfo, backend.Status) {
	b.calls.Add(1)
	mem, status := b.memByID(id)
	if !status.IsSuccess() {
		return backend.MemInfo{}, status
	}
	memType := backend.MemObjectBuffer
	if mem.image != nil {
		memType = mem.image.Type
	}
	return backend.MemInfo{Type: memType, Context: mem.ctx.id, Flags: mem.flags, Size: len(mem.data)}, backend.Success
}

// ImageInfo implements backend.Backend.
func (b *Backend) ImageInfo(id backend.NativeID) (backend.ImageInfo, backend.Status) {
	b.calls.Add(1)
	mem, status := lookupAs[*memObject](b, backend.KindImage, id)
	if !status.IsSuccess() {
		return backend.ImageInfo{}, status
	}
	return *mem.image, backend.Success
}

// fillPattern repeats pattern over dst, which must have a size multiple of the pattern size.
func fillPattern(dst, pattern []byte) {
	for ii := 0; ii < len(dst); ii += len(pattern) {
		copy(dst[ii:], pattern)
	}
}

// validPattern checks the pattern size is a power of 2 up to 128 bytes, and that it divides offset and size.
func validPattern(pattern []byte, offset, size int) bool {
	n := len(pattern)
	if n == 0 || n > 128 || n&(n-1) != 0 {
		return false
	}
	return offset%n == 0 && size%n == 0
}

// packColor converts a fill color to the raw bytes of one image element.
func packColor(format imageformat.Format, color imageformat.Color) ([]byte, backend.Status) {
	elem, err := format.Pack(color)
	if err != nil {
		return nil, backend.InvalidValue
	}
	return elem, backend.Success
}
