package host

import (
	"github.com/gomlx/gocompute/backend"
)

// rect is a 3D region of a linear memory with row and slice pitches. The first coordinate of the origin and of
// the region are in bytes.
type rect struct {
	origin, region       backend.Extent3
	rowPitch, slicePitch int
}

// withDefaultPitches returns r with 0 pitches replaced by the tightly packed ones.
func (r rect) withDefaultPitches() rect {
	if r.rowPitch == 0 {
		r.rowPitch = r.region[0]
	}
	if r.slicePitch == 0 {
		r.slicePitch = r.rowPitch * r.region[1]
	}
	return r
}

func (r rect) offset(y, z int) int {
	return (r.origin[2]+z)*r.slicePitch + (r.origin[1]+y)*r.rowPitch + r.origin[0]
}

// end returns the offset one past the last byte of the region.
func (r rect) end() int {
	return r.offset(r.region[1]-1, r.region[2]-1) + r.region[0]
}

// valid checks that the region is not empty, that pitches fit the region, and that it fits in size bytes.
func (r rect) valid(size int) bool {
	for ii := range 3 {
		if r.origin[ii] < 0 || r.region[ii] <= 0 {
			return false
		}
	}
	if r.rowPitch < r.region[0] || r.slicePitch < r.rowPitch*r.region[1] {
		return false
	}
	return r.end() <= size
}

// copyRect copies the region of src described by srcRect to the region of dst described by dstRect. Both
// must have the same region.
func copyRect(dst []byte, dstRect rect, src []byte, srcRect rect) {
	rowBytes := srcRect.region[0]
	for z := range srcRect.region[2] {
		for y := range srcRect.region[1] {
			srcPos, dstPos := srcRect.offset(y, z), dstRect.offset(y, z)
			copy(dst[dstPos:dstPos+rowBytes], src[srcPos:srcPos+rowBytes])
		}
	}
}

// imageRect converts an image origin/region in elements to a rect over the image storage.
func imageRect(image *memObject, origin, region backend.Extent3) (rect, backend.Status) {
	extent := image.extent()
	for ii := range 3 {
		if origin[ii] < 0 || region[ii] <= 0 || origin[ii]+region[ii] > extent[ii] {
			return rect{}, backend.InvalidValue
		}
	}
	elemSize := image.image.ElementSize
	return rect{
		origin:     backend.Extent3{origin[0] * elemSize, origin[1], origin[2]},
		region:     backend.Extent3{region[0] * elemSize, region[1], region[2]},
		rowPitch:   image.image.RowPitch,
		slicePitch: image.image.SlicePitch,
	}, backend.Success
}

// linearRect returns the tightly packed rect, starting at offset, with the same region as r.
func linearRect(offset int, r rect) rect {
	return rect{origin: backend.Extent3{offset, 0, 0}, region: r.region}.withDefaultPitches()
}

func (b *Backend) enqueueStart() {
	b.calls.Add(1)
	b.enqueues.Add(1)
}

// EnqueueReadBuffer implements backend.Backend.
func (b *Backend) EnqueueReadBuffer(args *backend.ReadBufferArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	buf, status := b.memInContext(backend.KindBuffer, args.Buffer, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	if args.Offset < 0 || args.Offset+len(args.Dst) > len(buf.data) {
		return backend.InvalidValue
	}
	dst, offset := args.Dst, args.Offset
	return b.submit(q, &args.Common, backend.CommandReadBuffer, &command{waitList: waitList, run: func() backend.Status {
		copy(dst, buf.data[offset:])
		return backend.Success
	}}, args.Blocking)
}

// EnqueueWriteBuffer implements backend.Backend.
func (b *Backend) EnqueueWriteBuffer(args *backend.WriteBufferArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	buf, status := b.memInContext(backend.KindBuffer, args.Buffer, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	if args.Offset < 0 || args.Offset+len(args.Src) > len(buf.data) {
		return backend.InvalidValue
	}
	src, offset := args.Src, args.Offset
	return b.submit(q, &args.Common, backend.CommandWriteBuffer, &command{waitList: waitList, run: func() backend.Status {
		copy(buf.data[offset:], src)
		return backend.Success
	}}, args.Blocking)
}

func (b *Backend) enqueueBufferRect(args *backend.BufferRectArgs, read bool) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	if status := q.device.supports(backend.Version1_1); !status.IsSuccess() {
		return status
	}
	buf, status := b.memInContext(backend.KindBuffer, args.Buffer, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	bufRect := rect{args.BufferOrigin, args.Region, args.BufferRowPitch, args.BufferSlicePitch}.withDefaultPitches()
	hostRect := rect{args.HostOrigin, args.Region, args.HostRowPitch, args.HostSlicePitch}.withDefaultPitches()
	if !bufRect.valid(len(buf.data)) || !hostRect.valid(len(args.Host)) {
		return backend.InvalidValue
	}
	host := args.Host
	commandType := backend.CommandWriteBufferRect
	run := func() backend.Status {
		copyRect(buf.data, bufRect, host, hostRect)
		return backend.Success
	}
	if read {
		commandType = backend.CommandReadBufferRect
		run = func() backend.Status {
			copyRect(host, hostRect, buf.data, bufRect)
			return backend.Success
		}
	}
	return b.submit(q, &args.Common, commandType, &command{waitList: waitList, run: run}, args.Blocking)
}

// EnqueueReadBufferRect implements backend.Backend. It requires a 1.1 device.
func (b *Backend) EnqueueReadBufferRect(args *backend.BufferRectArgs) backend.Status {
	return b.enqueueBufferRect(args, true)
}

// EnqueueWriteBufferRect implements backend.Backend. It requires a 1.1 device.
func (b *Backend) EnqueueWriteBufferRect(args *backend.BufferRectArgs) backend.Status {
	return b.enqueueBufferRect(args, false)
}

// overlaps returns whether [a, a+aSize) and [b, b+bSize) intersect.
func overlaps(a, aSize, b, bSize int) bool {
	return a < b+bSize && b < a+aSize
}

// EnqueueCopyBuffer implements backend.Backend.
func (b *Backend) EnqueueCopyBuffer(args *backend.CopyBufferArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	src, status := b.memInContext(backend.KindBuffer, args.Src, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	dst, status := b.memInContext(backend.KindBuffer, args.Dst, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	size, srcOffset, dstOffset := args.Size, args.SrcOffset, args.DstOffset
	if size <= 0 || srcOffset < 0 || dstOffset < 0 || srcOffset+size > len(src.data) || dstOffset+size > len(dst.data) {
		return backend.InvalidValue
	}
	if src == dst && overlaps(srcOffset, size, dstOffset, size) {
		return backend.MemCopyOverlap
	}
	return b.submit(q, &args.Common, backend.CommandCopyBuffer, &command{waitList: waitList, run: func() backend.Status {
		copy(dst.data[dstOffset:dstOffset+size], src.data[srcOffset:srcOffset+size])
		return backend.Success
	}}, false)
}

// EnqueueCopyBufferRect implements backend.Backend. It requires a 1.1 device.
func (b *Backend) EnqueueCopyBufferRect(args *backend.CopyBufferRectArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	if status := q.device.supports(backend.Version1_1); !status.IsSuccess() {
		return status
	}
	src, status := b.memInContext(backend.KindBuffer, args.Src, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	dst, status := b.memInContext(backend.KindBuffer, args.Dst, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	srcRect := rect{args.SrcOrigin, args.Region, args.SrcRowPitch, args.SrcSlicePitch}.withDefaultPitches()
	dstRect := rect{args.DstOrigin, args.Region, args.DstRowPitch, args.DstSlicePitch}.withDefaultPitches()
	if !srcRect.valid(len(src.data)) || !dstRect.valid(len(dst.data)) {
		return backend.InvalidValue
	}
	if src == dst {
		srcStart, dstStart := srcRect.offset(0, 0), dstRect.offset(0, 0)
		if overlaps(srcStart, srcRect.end()-srcStart, dstStart, dstRect.end()-dstStart) {
			return backend.MemCopyOverlap
		}
	}
	return b.submit(q, &args.Common, backend.CommandCopyBufferRect, &command{waitList: waitList, run: func() backend.Status {
		copyRect(dst.data, dstRect, src.data, srcRect)
		return backend.Success
	}}, false)
}

// EnqueueFillBuffer implements backend.Backend. It requires a 1.2 device.
func (b *Backend) EnqueueFillBuffer(args *backend.FillBufferArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	if status := q.device.supports(backend.Version1_2); !status.IsSuccess() {
		return status
	}
	buf, status := b.memInContext(backend.KindBuffer, args.Buffer, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	offset, size := args.Offset, args.Size
	if !validPattern(args.Pattern, offset, size) || offset < 0 || offset+size > len(buf.data) {
		return backend.InvalidValue
	}
	pattern := append([]byte(nil), args.Pattern...)
	return b.submit(q, &args.Common, backend.CommandFillBuffer, &command{waitList: waitList, run: func() backend.Status {
		fillPattern(buf.data[offset:offset+size], pattern)
		return backend.Success
	}}, false)
}

// EnqueueMapBuffer implements backend.Backend. The host view is the buffer storage itself.
func (b *Backend) EnqueueMapBuffer(args *backend.MapBufferArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	buf, status := b.memInContext(backend.KindBuffer, args.Buffer, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	if args.Offset < 0 || args.Size <= 0 || args.Offset+args.Size > len(buf.data) {
		return backend.InvalidValue
	}
	view := buf.data[args.Offset : args.Offset+args.Size : args.Offset+args.Size]
	buf.addMapping(view)
	args.Mapped = view
	return b.submit(q, &args.Common, backend.CommandMapBuffer, &command{waitList: waitList}, args.Blocking)
}

// EnqueueMapImage implements backend.Backend. The host view starts at the origin element and uses the image
// pitches.
func (b *Backend) EnqueueMapImage(args *backend.MapImageArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	image, status := b.memInContext(backend.KindImage, args.Image, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	r, status := imageRect(image, args.Origin, args.Region)
	if !status.IsSuccess() {
		return status
	}
	start, end := r.offset(0, 0), r.end()
	view := image.data[start:end:end]
	image.addMapping(view)
	args.Mapped, args.RowPitch, args.SlicePitch = view, r.rowPitch, r.slicePitch
	return b.submit(q, &args.Common, backend.CommandMapImage, &command{waitList: waitList}, args.Blocking)
}

// EnqueueUnmapMemObject implements backend.Backend.
func (b *Backend) EnqueueUnmapMemObject(args *backend.UnmapArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	mem, status := b.memInContext(backend.KindInvalid, args.Mem, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	if !mem.removeMapping(args.Mapped) {
		return backend.InvalidValue
	}
	return b.submit(q, &args.Common, backend.CommandUnmapMemObject, &command{waitList: waitList}, false)
}

func (b *Backend) enqueueImageTransfer(args *backend.ImageTransferArgs, read bool) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	image, status := b.memInContext(backend.KindImage, args.Image, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	imgRect, status := imageRect(image, args.Origin, args.Region)
	if !status.IsSuccess() {
		return status
	}
	hostRect := rect{region: imgRect.region, rowPitch: args.RowPitch, slicePitch: args.SlicePitch}.withDefaultPitches()
	if !hostRect.valid(len(args.Host)) {
		return backend.InvalidValue
	}
	host := args.Host
	commandType := backend.CommandWriteImage
	run := func() backend.Status {
		copyRect(image.data, imgRect, host, hostRect)
		return backend.Success
	}
	if read {
		commandType = backend.CommandReadImage
		run = func() backend.Status {
			copyRect(host, hostRect, image.data, imgRect)
			return backend.Success
		}
	}
	return b.submit(q, &args.Common, commandType, &command{waitList: waitList, run: run}, args.Blocking)
}

// EnqueueReadImage implements backend.Backend.
func (b *Backend) EnqueueReadImage(args *backend.ImageTransferArgs) backend.Status {
	return b.enqueueImageTransfer(args, true)
}

// EnqueueWriteImage implements backend.Backend.
func (b *Backend) EnqueueWriteImage(args *backend.ImageTransferArgs) backend.Status {
	return b.enqueueImageTransfer(args, false)
}

// EnqueueCopyImage implements backend.Backend. Both images must have the same format.
func (b *Backend) EnqueueCopyImage(args *backend.CopyImageArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	src, status := b.memInContext(backend.KindImage, args.Src, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	dst, status := b.memInContext(backend.KindImage, args.Dst, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	if src.image.Format != dst.image.Format {
		return backend.ImageFormatMismatch
	}
	srcRect, status := imageRect(src, args.SrcOrigin, args.Region)
	if !status.IsSuccess() {
		return status
	}
	dstRect, status := imageRect(dst, args.DstOrigin, args.Region)
	if !status.IsSuccess() {
		return status
	}
	if src == dst {
		overlap := true
		for ii := range 3 {
			if !overlaps(args.SrcOrigin[ii], args.Region[ii], args.DstOrigin[ii], args.Region[ii]) {
				overlap = false
			}
		}
		if overlap {
			return backend.MemCopyOverlap
		}
	}
	return b.submit(q, &args.Common, backend.CommandCopyImage, &command{waitList: waitList, run: func() backend.Status {
		copyRect(dst.data, dstRect, src.data, srcRect)
		return backend.Success
	}}, false)
}

// EnqueueCopyImageToBuffer implements backend.Backend. The buffer side is tightly packed.
func (b *Backend) EnqueueCopyImageToBuffer(args *backend.CopyImageToBufferArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	src, status := b.memInContext(backend.KindImage, args.Src, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	dst, status := b.memInContext(backend.KindBuffer, args.Dst, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	srcRect, status := imageRect(src, args.SrcOrigin, args.Region)
	if !status.IsSuccess() {
		return status
	}
	dstRect := linearRect(args.DstOffset, srcRect)
	if args.DstOffset < 0 || !dstRect.valid(len(dst.data)) {
		return backend.InvalidValue
	}
	return b.submit(q, &args.Common, backend.CommandCopyImageToBuffer, &command{waitList: waitList, run: func() backend.Status {
		copyRect(dst.data, dstRect, src.data, srcRect)
		return backend.Success
	}}, false)
}

// EnqueueCopyBufferToImage implements backend.Backend. The buffer side is tightly packed.
func (b *Backend) EnqueueCopyBufferToImage(args *backend.CopyBufferToImageArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	src, status := b.memInContext(backend.KindBuffer, args.Src, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	dst, status := b.memInContext(backend.KindImage, args.Dst, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	dstRect, status := imageRect(dst, args.DstOrigin, args.Region)
	if !status.IsSuccess() {
		return status
	}
	srcRect := linearRect(args.SrcOffset, dstRect)
	if args.SrcOffset < 0 || !srcRect.valid(len(src.data)) {
		return backend.InvalidValue
	}
	return b.submit(q, &args.Common, backend.CommandCopyBufferToImage, &command{waitList: waitList, run: func() backend.Status {
		copyRect(dst.data, dstRect, src.data, srcRect)
		return backend.Success
	}}, false)
}

// EnqueueFillImage implements backend.Backend. It requires a 1.2 device.
func (b *Backend) EnqueueFillImage(args *backend.FillImageArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	if status := q.device.supports(backend.Version1_2); !status.IsSuccess() {
		return status
	}
	image, status := b.memInContext(backend.KindImage, args.Image, q.ctx)
	if !status.IsSuccess() {
		return status
	}
	r, status := imageRect(image, args.Origin, args.Region)
	if !status.IsSuccess() {
		return status
	}
	elem, status := packColor(image.image.Format, args.Color)
	if !status.IsSuccess() {
		return status
	}
	return b.submit(q, &args.Common, backend.CommandFillImage, &command{waitList: waitList, run: func() backend.Status {
		for z := range r.region[2] {
			for y := range r.region[1] {
				pos := r.offset(y, z)
				fillPattern(image.data[pos:pos+r.region[0]], elem)
			}
		}
		return backend.Success
	}}, false)
}

// EnqueueMigrateMemObjects implements backend.Backend. It requires a 1.2 device. Host memory is shared by all
// devices, so migration only orders the command.
func (b *Backend) EnqueueMigrateMemObjects(args *backend.MigrateArgs) backend.Status {
	b.enqueueStart()
	q, waitList, status := b.queueFor(&args.Common)
	if !status.IsSuccess() {
		return status
	}
	if status := q.device.supports(backend.Version1_2); !status.IsSuccess() {
		return status
	}
	if len(args.Mems) == 0 {
		return backend.InvalidValue
	}
	if args.Flags&^(backend.MigrateMemObjectHost|backend.MigrateMemObjectContentUndefined) != 0 {
		return backend.InvalidValue
	}
	for _, id := range args.Mems {
		if _, status := b.memInContext(backend.KindInvalid, id, q.ctx); !status.IsSuccess() {
			return status
		}
	}
	return b.submit(q, &args.Common, backend.CommandMigrateMemObjects, &command{waitList: waitList}, false)
}
