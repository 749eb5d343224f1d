package compute

import (
	"github.com/gomlx/gocompute/backend"
	"github.com/gomlx/gocompute/imageformat"
	"github.com/pkg/errors"
)

// imageRegion resolves the origin and region of an image operation. A nil origin is {0, 0, 0}, and a nil
// region extends from the origin to the end of the image.
func imageRegion(op string, img *Image, origin, region Extents) (backend.Extent3, backend.Extent3) {
	extents := img.Extents()
	o := origin.origin()
	var r backend.Extent3
	if region == nil {
		for axis := range r {
			r[axis] = extents[axis] - o[axis]
		}
	} else {
		r = region.region()
	}
	for axis := range r {
		if o[axis] < 0 || r[axis] <= 0 || o[axis]+r[axis] > extents[axis] {
			panicf("%s: region origin=%v region=%v out of the image extents %v", op, o, r, extents)
		}
	}
	return o, r
}

// hostImageSize returns the number of bytes of host memory spanned by a region with the given pitches.
func hostImageSize(region backend.Extent3, elemSize, rowPitch, slicePitch int) int {
	if rowPitch == 0 {
		rowPitch = region[0] * elemSize
	}
	if slicePitch == 0 {
		slicePitch = region[1] * rowPitch
	}
	return (region[2]-1)*slicePitch + (region[1]-1)*rowPitch + region[0]*elemSize
}

// ImageRect describes a region of an image and the layout of the host memory it is transferred to or from.
// Pitches of 0 mean tightly packed host memory.
type ImageRect struct {
	Origin, Region       Extents
	RowPitch, SlicePitch int
}

func (q *CommandQueue) imageTransferArgs(op string, img *Image, rect ImageRect, host []byte, waitList []*Event) *backend.ImageTransferArgs {
	q.assertMem(op, img)
	origin, region := imageRegion(op, img, rect.Origin, rect.Region)
	if size := hostImageSize(region, img.ElementSize(), rect.RowPitch, rect.SlicePitch); size > len(host) {
		panicf("%s: host memory has %d bytes, the region needs %d", op, len(host), size)
	}
	return &backend.ImageTransferArgs{Common: q.common(op, waitList), Image: img.ID(), Origin: origin, Region: region,
		RowPitch: rect.RowPitch, SlicePitch: rect.SlicePitch, Host: host}
}

// EnqueueReadImage copies a region of img to dst.
func (q *CommandQueue) EnqueueReadImage(img *Image, rect ImageRect, dst []byte, waitList ...*Event) error {
	const op = "EnqueueReadImage"
	args := q.imageTransferArgs(op, img, rect, dst, waitList)
	args.Blocking = true
	return q.dispatchBlocking(op, func() backend.Status { return q.Backend().EnqueueReadImage(args) })
}

// EnqueueReadImageAsync is the asynchronous version of EnqueueReadImage.
func (q *CommandQueue) EnqueueReadImageAsync(img *Image, rect ImageRect, dst []byte, waitList ...*Event) (*Event, error) {
	const op = "EnqueueReadImage"
	args := q.imageTransferArgs(op, img, rect, dst, waitList)
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueReadImage(args) })
}

// EnqueueWriteImage copies src to a region of img.
func (q *CommandQueue) EnqueueWriteImage(img *Image, rect ImageRect, src []byte, waitList ...*Event) error {
	const op = "EnqueueWriteImage"
	args := q.imageTransferArgs(op, img, rect, src, waitList)
	args.Blocking = true
	return q.dispatchBlocking(op, func() backend.Status { return q.Backend().EnqueueWriteImage(args) })
}

// EnqueueWriteImageAsync is the asynchronous version of EnqueueWriteImage.
func (q *CommandQueue) EnqueueWriteImageAsync(img *Image, rect ImageRect, src []byte, waitList ...*Event) (*Event, error) {
	const op = "EnqueueWriteImage"
	args := q.imageTransferArgs(op, img, rect, src, waitList)
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueWriteImage(args) })
}

func (q *CommandQueue) copyImageArgs(op string, src, dst *Image, srcOrigin, dstOrigin, region Extents, waitList []*Event) *backend.CopyImageArgs {
	q.assertMem(op, src)
	q.assertMem(op, dst)
	so, r := imageRegion(op, src, srcOrigin, region)
	do, _ := imageRegion(op, dst, dstOrigin, Extents(r[:]))
	return &backend.CopyImageArgs{Common: q.common(op, waitList), Src: src.ID(), Dst: dst.ID(),
		SrcOrigin: so, DstOrigin: do, Region: r}
}

// EnqueueCopyImage copies a region of src to dst. Both images must have the same format. A nil region copies
// from srcOrigin to the end of src.
func (q *CommandQueue) EnqueueCopyImage(src, dst *Image, srcOrigin, dstOrigin, region Extents, waitList ...*Event) error {
	const op = "EnqueueCopyImage"
	args := q.copyImageArgs(op, src, dst, srcOrigin, dstOrigin, region, waitList)
	return q.dispatchAndWait(op, &args.Common, func() backend.Status { return q.Backend().EnqueueCopyImage(args) })
}

// EnqueueCopyImageAsync is the asynchronous version of EnqueueCopyImage.
func (q *CommandQueue) EnqueueCopyImageAsync(src, dst *Image, srcOrigin, dstOrigin, region Extents, waitList ...*Event) (*Event, error) {
	const op = "EnqueueCopyImage"
	args := q.copyImageArgs(op, src, dst, srcOrigin, dstOrigin, region, waitList)
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueCopyImage(args) })
}

func (q *CommandQueue) copyImageToBufferArgs(op string, src *Image, dst *Buffer, srcOrigin, region Extents, dstOffset int, waitList []*Event) *backend.CopyImageToBufferArgs {
	q.assertMem(op, src)
	q.assertMem(op, dst)
	o, r := imageRegion(op, src, srcOrigin, region)
	assertRange(op, "buffer", dstOffset, r.Volume()*src.ElementSize(), dst.size)
	return &backend.CopyImageToBufferArgs{Common: q.common(op, waitList), Src: src.ID(), Dst: dst.ID(),
		SrcOrigin: o, Region: r, DstOffset: dstOffset}
}

// EnqueueCopyImageToBuffer copies a region of src, tightly packed, to dst starting at dstOffset.
func (q *CommandQueue) EnqueueCopyImageToBuffer(src *Image, dst *Buffer, srcOrigin, region Extents, dstOffset int, waitList ...*Event) error {
	const op = "EnqueueCopyImageToBuffer"
	args := q.copyImageToBufferArgs(op, src, dst, srcOrigin, region, dstOffset, waitList)
	return q.dispatchAndWait(op, &args.Common, func() backend.Status { return q.Backend().EnqueueCopyImageToBuffer(args) })
}

// EnqueueCopyImageToBufferAsync is the asynchronous version of EnqueueCopyImageToBuffer.
func (q *CommandQueue) EnqueueCopyImageToBufferAsync(src *Image, dst *Buffer, srcOrigin, region Extents, dstOffset int, waitList ...*Event) (*Event, error) {
	const op = "EnqueueCopyImageToBuffer"
	args := q.copyImageToBufferArgs(op, src, dst, srcOrigin, region, dstOffset, waitList)
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueCopyImageToBuffer(args) })
}

func (q *CommandQueue) copyBufferToImageArgs(op string, src *Buffer, dst *Image, srcOffset int, dstOrigin, region Extents, waitList []*Event) *backend.CopyBufferToImageArgs {
	q.assertMem(op, src)
	q.assertMem(op, dst)
	o, r := imageRegion(op, dst, dstOrigin, region)
	assertRange(op, "buffer", srcOffset, r.Volume()*dst.ElementSize(), src.size)
	return &backend.CopyBufferToImageArgs{Common: q.common(op, waitList), Src: src.ID(), Dst: dst.ID(),
		SrcOffset: srcOffset, DstOrigin: o, Region: r}
}

// EnqueueCopyBufferToImage copies tightly packed elements of src, starting at srcOffset, to a region of dst.
func (q *CommandQueue) EnqueueCopyBufferToImage(src *Buffer, dst *Image, srcOffset int, dstOrigin, region Extents, waitList ...*Event) error {
	const op = "EnqueueCopyBufferToImage"
	args := q.copyBufferToImageArgs(op, src, dst, srcOffset, dstOrigin, region, waitList)
	return q.dispatchAndWait(op, &args.Common, func() backend.Status { return q.Backend().EnqueueCopyBufferToImage(args) })
}

// EnqueueCopyBufferToImageAsync is the asynchronous version of EnqueueCopyBufferToImage.
func (q *CommandQueue) EnqueueCopyBufferToImageAsync(src *Buffer, dst *Image, srcOffset int, dstOrigin, region Extents, waitList ...*Event) (*Event, error) {
	const op = "EnqueueCopyBufferToImage"
	args := q.copyBufferToImageArgs(op, src, dst, srcOffset, dstOrigin, region, waitList)
	return q.dispatch(op, &args.Common, func() backend.Status { return q.Backend().EnqueueCopyBufferToImage(args) })
}

func (q *CommandQueue) mapImageArgs(op string, img *Image, flags backend.MapFlags, origin, region backend.Extent3, waitList []*Event) *backend.MapImageArgs {
	return &backend.MapImageArgs{Common: q.common(op, waitList), Image: img.ID(), Flags: flags, Origin: origin, Region: region}
}

// EnqueueMapImage maps a region of img into host memory. The rows and slices of the mapping are
// Mapping.RowPitch and Mapping.SlicePitch bytes apart.
func (q *CommandQueue) EnqueueMapImage(img *Image, flags backend.MapFlags, origin, region Extents, waitList ...*Event) (*Mapping, error) {
	const op = "EnqueueMapImage"
	q.assertMem(op, img)
	o, r := imageRegion(op, img, origin, region)
	return q.mapImage(op, img, flags, o, r, waitList)
}

func (q *CommandQueue) mapImage(op string, img *Image, flags backend.MapFlags, origin, region backend.Extent3, waitList []*Event) (*Mapping, error) {
	args := q.mapImageArgs(op, img, flags, origin, region, waitList)
	args.Blocking = true
	if err := q.dispatchBlocking("EnqueueMapImage", func() backend.Status { return q.Backend().EnqueueMapImage(args) }); err != nil {
		return nil, err
	}
	return &Mapping{Data: args.Mapped, RowPitch: args.RowPitch, SlicePitch: args.SlicePitch}, nil
}

// EnqueueMapImageAsync is the asynchronous version of EnqueueMapImage: the mapping can only be accessed once
// the returned event completes.
func (q *CommandQueue) EnqueueMapImageAsync(img *Image, flags backend.MapFlags, origin, region Extents, waitList ...*Event) (*Mapping, *Event, error) {
	const op = "EnqueueMapImageAsync"
	q.assertMem(op, img)
	o, r := imageRegion(op, img, origin, region)
	return q.mapImageAsync(op, img, flags, o, r, waitList)
}

func (q *CommandQueue) mapImageAsync(op string, img *Image, flags backend.MapFlags, origin, region backend.Extent3, waitList []*Event) (*Mapping, *Event, error) {
	args := q.mapImageArgs(op, img, flags, origin, region, waitList)
	event, err := q.dispatch("EnqueueMapImage", &args.Common, func() backend.Status { return q.Backend().EnqueueMapImage(args) })
	if err != nil {
		return nil, nil, err
	}
	return &Mapping{Data: args.Mapped, RowPitch: args.RowPitch, SlicePitch: args.SlicePitch}, event, nil
}

// EnqueueFillImage fills a region of img with color, converted to the image format.
//
// If the queue's device supports FeatureFillImage the backend fills the image. Otherwise the image region is
// mapped and filled from the host, see EnqueueRawFillImageWalking.
func (q *CommandQueue) EnqueueFillImage(img *Image, color imageformat.Color, origin, region Extents, waitList ...*Event) error {
	const op = "EnqueueFillImage"
	q.assertMem(op, img)
	o, r := imageRegion(op, img, origin, region)
	native, err := q.Supports(FeatureFillImage)
	if err != nil {
		return err
	}
	if !native {
		raw, err := img.Format().Pack(color)
		if err != nil {
			return errors.WithMessage(err, op)
		}
		return q.EnqueueRawFillImageWalking(img, raw, Extents(o[:]), Extents(r[:]), waitList...)
	}
	args := &backend.FillImageArgs{Common: q.common(op, waitList), Image: img.ID(), Color: color, Origin: o, Region: r}
	return q.dispatchAndWait(op, &args.Common, func() backend.Status { return q.Backend().EnqueueFillImage(args) })
}

// EnqueueFillImageAsync is the asynchronous version of EnqueueFillImage.
func (q *CommandQueue) EnqueueFillImageAsync(img *Image, color imageformat.Color, origin, region Extents, waitList ...*Event) (*Event, error) {
	const op = "EnqueueFillImageAsync"
	q.assertMem(op, img)
	o, r := imageRegion(op, img, origin, region)
	native, err := q.Supports(FeatureFillImage)
	if err != nil {
		return nil, err
	}
	if !native {
		raw, err := img.Format().Pack(color)
		if err != nil {
			return nil, errors.WithMessage(err, op)
		}
		return q.EnqueueRawFillImageWalkingAsync(img, raw, Extents(o[:]), Extents(r[:]), waitList...)
	}
	args := &backend.FillImageArgs{Common: q.common(op, waitList), Image: img.ID(), Color: color, Origin: o, Region: r}
	return q.dispatch("EnqueueFillImage", &args.Common, func() backend.Status { return q.Backend().EnqueueFillImage(args) })
}
