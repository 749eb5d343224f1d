package compute

import (
	"github.com/gomlx/gocompute/backend"
)

// EnqueueReadBuffer copies len(dst) bytes of buf, starting at offset, to dst.
func (q *CommandQueue) EnqueueReadBuffer(buf *Buffer, offset int, dst []byte, waitList ...*Event) error {
	args := q.readBufferArgs("EnqueueReadBuffer", buf, offset, dst, waitList)
	args.Blocking = true
	return q.dispatchBlocking("EnqueueReadBuffer", func() backend.Status {
		return q.Backend().EnqueueReadBuffer(args)
	})
}

// EnqueueReadBufferAsync is the asynchronous version of EnqueueReadBuffer: dst must not be used until the
// returned event completes.
func (q *CommandQueue) EnqueueReadBufferAsync(buf *Buffer, offset int, dst []byte, waitList ...*Event) (*Event, error) {
	args := q.readBufferArgs("EnqueueReadBufferAsync", buf, offset, dst, waitList)
	return q.dispatch("EnqueueReadBuffer", &args.Common, func() backend.Status {
		return q.Backend().EnqueueReadBuffer(args)
	})
}

func (q *CommandQueue) readBufferArgs(op string, buf *Buffer, offset int, dst []byte, waitList []*Event) *backend.ReadBufferArgs {
	q.assertMem(op, buf)
	assertRange(op, "buffer", offset, len(dst), buf.size)
	return &backend.ReadBufferArgs{Common: q.common(op, waitList), Buffer: buf.ID(), Offset: offset, Dst: dst}
}

// EnqueueWriteBuffer copies src to buf, starting at offset.
func (q *CommandQueue) EnqueueWriteBuffer(buf *Buffer, offset int, src []byte, waitList ...*Event) error {
	args := q.writeBufferArgs("EnqueueWriteBuffer", buf, offset, src, waitList)
	args.Blocking = true
	return q.dispatchBlocking("EnqueueWriteBuffer", func() backend.Status {
		return q.Backend().EnqueueWriteBuffer(args)
	})
}

// EnqueueWriteBufferAsync is the asynchronous version of EnqueueWriteBuffer: src must not be modified until the
// returned event completes.
func (q *CommandQueue) EnqueueWriteBufferAsync(buf *Buffer, offset int, src []byte, waitList ...*Event) (*Event, error) {
	args := q.writeBufferArgs("EnqueueWriteBufferAsync", buf, offset, src, waitList)
	return q.dispatch("EnqueueWriteBuffer", &args.Common, func() backend.Status {
		return q.Backend().EnqueueWriteBuffer(args)
	})
}

func (q *CommandQueue) writeBufferArgs(op string, buf *Buffer, offset int, src []byte, waitList []*Event) *backend.WriteBufferArgs {
	q.assertMem(op, buf)
	assertRange(op, "buffer", offset, len(src), buf.size)
	return &backend.WriteBufferArgs{Common: q.common(op, waitList), Buffer: buf.ID(), Offset: offset, Src: src}
}

// BufferRect describes a rectangular region of a buffer or of host memory.
//
// Origin[0] and Region[0] are in bytes, the other dimensions in rows and slices. Pitches of 0 mean tightly
// packed: RowPitch = Region[0] and SlicePitch = Region[1]*RowPitch.
type BufferRect struct {
	BufferOrigin, HostOrigin, Region Extents
	BufferRowPitch, BufferSlicePitch int
	HostRowPitch, HostSlicePitch     int
}

// rectEnd returns the offset past the last byte of a rectangular region.
func rectEnd(origin, region backend.Extent3, rowPitch, slicePitch int) int {
	if rowPitch == 0 {
		rowPitch = region[0]
	}
	if slicePitch == 0 {
		slicePitch = region[1] * rowPitch
	}
	return (origin[2]+region[2]-1)*slicePitch + (origin[1]+region[1]-1)*rowPitch + origin[0] + region[0]
}

func (q *CommandQueue) bufferRectArgs(op string, buf *Buffer, rect BufferRect, host []byte, waitList []*Event) *backend.BufferRectArgs {
	q.assertMem(op, buf)
	bufOrigin, hostOrigin, region := rect.BufferOrigin.origin(), rect.HostOrigin.origin(), rect.Region.region()
	if region.Volume() <= 0 {
		panicf("%s: empty region %v", op, region)
	}
	if end := rectEnd(bufOrigin, region, rect.BufferRowPitch, rect.BufferSlicePitch); end > buf.size {
		panicf("%s: buffer region ends at %d, past the buffer size %d", op, end, buf.size)
	}
	if end := rectEnd(hostOrigin, region, rect.HostRowPitch, rect.HostSlicePitch); end > len(host) {
		panicf("%s: host region ends at %d, past the host slice length %d", op, end, len(host))
	}
	return &backend.BufferRectArgs{
		Common:           q.common(op, waitList),
		Buffer:           buf.ID(),
		BufferOrigin:     bufOrigin,
		HostOrigin:       hostOrigin,
		Region:           region,
		BufferRowPitch:   rect.BufferRowPitch,
		BufferSlicePitch: rect.BufferSlicePitch,
		HostRowPitch:     rect.HostRowPitch,
		HostSlicePitch:   rect.HostSlicePitch,
		Host:             host,
	}
}

// EnqueueReadBufferRect copies a rectangular region of buf to dst. It requires FeatureRectTransfers.
func (q *CommandQueue) EnqueueReadBufferRect(buf *Buffer, rect BufferRect, dst []byte, waitList ...*Event) error {
	const op = "EnqueueReadBufferRect"
	args := q.bufferRectArgs(op, buf, rect, dst, waitList)
	if err := q.requireFeature(op, FeatureRectTransfers); err != nil {
		return err
	}
	args.Blocking = true
	return q.dispatchBlocking(op, func() backend.Status { return q.Backend().EnqueueReadBufferRect(args) })
}

// EnqueueReadBufferRectAsync is the asynchronous version of EnqueueReadBufferRect.
func (q *CommandQueue) EnqueueReadBufferRectAsync(buf *Buffer, rect BufferRect, dst []byte, waitList ...*Event) (*Event, error) {
	const op = "EnqueueReadBufferRect"
	args := q.bufferRectArgs(op, buf, rect, dst, waitList)
	if err := q.requireFeature(op, FeatureRectTransfers); err != nil {
		return nil, err
	}
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueReadBufferRect(args) })
}

// EnqueueWriteBufferRect copies src to a rectangular region of buf. It requires FeatureRectTransfers.
func (q *CommandQueue) EnqueueWriteBufferRect(buf *Buffer, rect BufferRect, src []byte, waitList ...*Event) error {
	const op = "EnqueueWriteBufferRect"
	args := q.bufferRectArgs(op, buf, rect, src, waitList)
	if err := q.requireFeature(op, FeatureRectTransfers); err != nil {
		return err
	}
	args.Blocking = true
	return q.dispatchBlocking(op, func() backend.Status { return q.Backend().EnqueueWriteBufferRect(args) })
}

// EnqueueWriteBufferRectAsync is the asynchronous version of EnqueueWriteBufferRect.
func (q *CommandQueue) EnqueueWriteBufferRectAsync(buf *Buffer, rect BufferRect, src []byte, waitList ...*Event) (*Event, error) {
	const op = "EnqueueWriteBufferRect"
	args := q.bufferRectArgs(op, buf, rect, src, waitList)
	if err := q.requireFeature(op, FeatureRectTransfers); err != nil {
		return nil, err
	}
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueWriteBufferRect(args) })
}

// EnqueueCopyBuffer copies size bytes from src at srcOffset to dst at dstOffset.
func (q *CommandQueue) EnqueueCopyBuffer(src, dst *Buffer, srcOffset, dstOffset, size int, waitList ...*Event) error {
	args := q.copyBufferArgs("EnqueueCopyBuffer", src, dst, srcOffset, dstOffset, size, waitList)
	return q.dispatchAndWait("EnqueueCopyBuffer", &args.Common, func() backend.Status {
		return q.Backend().EnqueueCopyBuffer(args)
	})
}

// EnqueueCopyBufferAsync is the asynchronous version of EnqueueCopyBuffer.
func (q *CommandQueue) EnqueueCopyBufferAsync(src, dst *Buffer, srcOffset, dstOffset, size int, waitList ...*Event) (*Event, error) {
	args := q.copyBufferArgs("EnqueueCopyBufferAsync", src, dst, srcOffset, dstOffset, size, waitList)
	return q.dispatch("EnqueueCopyBuffer", &args.Common, func() backend.Status {
		return q.Backend().EnqueueCopyBuffer(args)
	})
}

func (q *CommandQueue) copyBufferArgs(op string, src, dst *Buffer, srcOffset, dstOffset, size int, waitList []*Event) *backend.CopyBufferArgs {
	q.assertMem(op, src)
	q.assertMem(op, dst)
	assertRange(op, "source buffer", srcOffset, size, src.size)
	assertRange(op, "destination buffer", dstOffset, size, dst.size)
	return &backend.CopyBufferArgs{Common: q.common(op, waitList), Src: src.ID(), Dst: dst.ID(),
		SrcOffset: srcOffset, DstOffset: dstOffset, Size: size}
}

// CopyRect describes the source and destination of a rectangular copy between buffers, see BufferRect for
// the units.
type CopyRect struct {
	SrcOrigin, DstOrigin, Region Extents
	SrcRowPitch, SrcSlicePitch   int
	DstRowPitch, DstSlicePitch   int
}

func (q *CommandQueue) copyBufferRectArgs(op string, src, dst *Buffer, rect CopyRect, waitList []*Event) *backend.CopyBufferRectArgs {
	q.assertMem(op, src)
	q.assertMem(op, dst)
	srcOrigin, dstOrigin, region := rect.SrcOrigin.origin(), rect.DstOrigin.origin(), rect.Region.region()
	if region.Volume() <= 0 {
		panicf("%s: empty region %v", op, region)
	}
	if end := rectEnd(srcOrigin, region, rect.SrcRowPitch, rect.SrcSlicePitch); end > src.size {
		panicf("%s: source region ends at %d, past the buffer size %d", op, end, src.size)
	}
	if end := rectEnd(dstOrigin, region, rect.DstRowPitch, rect.DstSlicePitch); end > dst.size {
		panicf("%s: destination region ends at %d, past the buffer size %d", op, end, dst.size)
	}
	return &backend.CopyBufferRectArgs{
		Common:        q.common(op, waitList),
		Src:           src.ID(),
		Dst:           dst.ID(),
		SrcOrigin:     srcOrigin,
		DstOrigin:     dstOrigin,
		Region:        region,
		SrcRowPitch:   rect.SrcRowPitch,
		SrcSlicePitch: rect.SrcSlicePitch,
		DstRowPitch:   rect.DstRowPitch,
		DstSlicePitch: rect.DstSlicePitch,
	}
}

// EnqueueCopyBufferRect copies a rectangular region between buffers. It requires FeatureRectTransfers.
func (q *CommandQueue) EnqueueCopyBufferRect(src, dst *Buffer, rect CopyRect, waitList ...*Event) error {
	const op = "EnqueueCopyBufferRect"
	args := q.copyBufferRectArgs(op, src, dst, rect, waitList)
	if err := q.requireFeature(op, FeatureRectTransfers); err != nil {
		return err
	}
	return q.dispatchAndWait(op, &args.Common, func() backend.Status { return q.Backend().EnqueueCopyBufferRect(args) })
}

// EnqueueCopyBufferRectAsync is the asynchronous version of EnqueueCopyBufferRect.
func (q *CommandQueue) EnqueueCopyBufferRectAsync(src, dst *Buffer, rect CopyRect, waitList ...*Event) (*Event, error) {
	const op = "EnqueueCopyBufferRect"
	args := q.copyBufferRectArgs(op, src, dst, rect, waitList)
	if err := q.requireFeature(op, FeatureRectTransfers); err != nil {
		return nil, err
	}
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueCopyBufferRect(args) })
}

func (q *CommandQueue) fillBufferArgs(op string, buf *Buffer, pattern []byte, offset, size int, waitList []*Event) *backend.FillBufferArgs {
	q.assertMem(op, buf)
	assertRange(op, "buffer", offset, size, buf.size)
	if len(pattern) == 0 || size%len(pattern) != 0 {
		panicf("%s: pattern of %d bytes doesn't divide the fill size %d", op, len(pattern), size)
	}
	return &backend.FillBufferArgs{Common: q.common(op, waitList), Buffer: buf.ID(), Pattern: pattern,
		Offset: offset, Size: size}
}

// EnqueueFillBuffer fills size bytes of buf, starting at offset, with copies of pattern. It requires
// FeatureFillBuffer.
func (q *CommandQueue) EnqueueFillBuffer(buf *Buffer, pattern []byte, offset, size int, waitList ...*Event) error {
	const op = "EnqueueFillBuffer"
	args := q.fillBufferArgs(op, buf, pattern, offset, size, waitList)
	if err := q.requireFeature(op, FeatureFillBuffer); err != nil {
		return err
	}
	return q.dispatchAndWait(op, &args.Common, func() backend.Status { return q.Backend().EnqueueFillBuffer(args) })
}

// EnqueueFillBufferAsync is the asynchronous version of EnqueueFillBuffer.
func (q *CommandQueue) EnqueueFillBufferAsync(buf *Buffer, pattern []byte, offset, size int, waitList ...*Event) (*Event, error) {
	const op = "EnqueueFillBuffer"
	args := q.fillBufferArgs(op, buf, pattern, offset, size, waitList)
	if err := q.requireFeature(op, FeatureFillBuffer); err != nil {
		return nil, err
	}
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueFillBuffer(args) })
}

// Mapping is a host view of a region of a buffer or image, returned by the map operations. It must be given
// back to EnqueueUnmap.
type Mapping struct {
	// Data is the host view. For images it starts at the origin of the mapped region.
	Data []byte

	// RowPitch and SlicePitch are the distances in bytes between rows and slices of an image mapping.
	RowPitch, SlicePitch int
}

func (q *CommandQueue) mapBufferArgs(op string, buf *Buffer, flags backend.MapFlags, offset, size int, waitList []*Event) *backend.MapBufferArgs {
	q.assertMem(op, buf)
	assertRange(op, "buffer", offset, size, buf.size)
	return &backend.MapBufferArgs{Common: q.common(op, waitList), Buffer: buf.ID(), Flags: flags, Offset: offset, Size: size}
}

// EnqueueMapBuffer maps size bytes of buf, starting at offset, into host memory.
func (q *CommandQueue) EnqueueMapBuffer(buf *Buffer, flags backend.MapFlags, offset, size int, waitList ...*Event) (*Mapping, error) {
	args := q.mapBufferArgs("EnqueueMapBuffer", buf, flags, offset, size, waitList)
	args.Blocking = true
	err := q.dispatchBlocking("EnqueueMapBuffer", func() backend.Status { return q.Backend().EnqueueMapBuffer(args) })
	if err != nil {
		return nil, err
	}
	return &Mapping{Data: args.Mapped}, nil
}

// EnqueueMapBufferAsync is the asynchronous version of EnqueueMapBuffer: the mapping can only be accessed once
// the returned event completes.
func (q *CommandQueue) EnqueueMapBufferAsync(buf *Buffer, flags backend.MapFlags, offset, size int, waitList ...*Event) (*Mapping, *Event, error) {
	args := q.mapBufferArgs("EnqueueMapBufferAsync", buf, flags, offset, size, waitList)
	event, err := q.dispatch("EnqueueMapBuffer", &args.Common, func() backend.Status { return q.Backend().EnqueueMapBuffer(args) })
	if err != nil {
		return nil, nil, err
	}
	return &Mapping{Data: args.Mapped}, event, nil
}

func (q *CommandQueue) unmapArgs(op string, mem MemObject, mapping *Mapping, waitList []*Event) *backend.UnmapArgs {
	q.assertMem(op, mem)
	if mapping == nil || mapping.Data == nil {
		panicf("%s: nil mapping", op)
	}
	return &backend.UnmapArgs{Common: q.common(op, waitList), Mem: mem.handle().ID(), Mapped: mapping.Data}
}

// EnqueueUnmap releases a mapping of mem returned by EnqueueMapBuffer or EnqueueMapImage.
func (q *CommandQueue) EnqueueUnmap(mem MemObject, mapping *Mapping, waitList ...*Event) error {
	args := q.unmapArgs("EnqueueUnmap", mem, mapping, waitList)
	return q.dispatchAndWait("EnqueueUnmapMemObject", &args.Common, func() backend.Status {
		return q.Backend().EnqueueUnmapMemObject(args)
	})
}

// EnqueueUnmapAsync is the asynchronous version of EnqueueUnmap.
func (q *CommandQueue) EnqueueUnmapAsync(mem MemObject, mapping *Mapping, waitList ...*Event) (*Event, error) {
	args := q.unmapArgs("EnqueueUnmapAsync", mem, mapping, waitList)
	return q.dispatch("EnqueueUnmapMemObject", &args.Common, func() backend.Status {
		return q.Backend().EnqueueUnmapMemObject(args)
	})
}

func (q *CommandQueue) migrateArgs(op string, mems []MemObject, flags backend.MigrationFlags, waitList []*Event) *backend.MigrateArgs {
	if len(mems) == 0 {
		panicf("%s: no memory objects to migrate", op)
	}
	ids := make([]backend.NativeID, len(mems))
	for ii, mem := range mems {
		q.assertMem(op, mem)
		ids[ii] = mem.handle().ID()
	}
	return &backend.MigrateArgs{Common: q.common(op, waitList), Mems: ids, Flags: flags}
}

// EnqueueMigrateMemObjects moves the memory objects to the queue's device, or to the host with
// backend.MigrateMemObjectHost. It requires FeatureMigrate.
func (q *CommandQueue) EnqueueMigrateMemObjects(mems []MemObject, flags backend.MigrationFlags, waitList ...*Event) error {
	const op = "EnqueueMigrateMemObjects"
	args := q.migrateArgs(op, mems, flags, waitList)
	if err := q.requireFeature(op, FeatureMigrate); err != nil {
		return err
	}
	return q.dispatchAndWait(op, &args.Common, func() backend.Status { return q.Backend().EnqueueMigrateMemObjects(args) })
}

// EnqueueMigrateMemObjectsAsync is the asynchronous version of EnqueueMigrateMemObjects.
func (q *CommandQueue) EnqueueMigrateMemObjectsAsync(mems []MemObject, flags backend.MigrationFlags, waitList ...*Event) (*Event, error) {
	const op = "EnqueueMigrateMemObjects"
	args := q.migrateArgs(op, mems, flags, waitList)
	if err := q.requireFeature(op, FeatureMigrate); err != nil {
		return nil, err
	}
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueMigrateMemObjects(args) })
}
