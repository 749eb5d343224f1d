package compute

import (
	"github.com/gomlx/gocompute/backend"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// WalkFunc is called for each element of an image region by EnqueueWalkImage, with the raw bytes of the
// element and its absolute coordinates in the image.
type WalkFunc func(elem []byte, x, y, z int)

// walkMapping calls fn for each element of a mapped image region, iterating over depth, then height, then width.
// Rows and slices of the mapping are separated by its pitches.
func walkMapping(m *Mapping, elemSize int, origin, region backend.Extent3, fn WalkFunc) {
	for z := range region[2] {
		for y := range region[1] {
			pos := z*m.SlicePitch + y*m.RowPitch
			for x := range region[0] {
				fn(m.Data[pos:pos+elemSize:pos+elemSize], origin[0]+x, origin[1]+y, origin[2]+z)
				pos += elemSize
			}
		}
	}
}

// EnqueueWalkImage maps a region of img, calls fn for each element and unmaps it. flags select the access
// fn needs: backend.MapRead, backend.MapWrite or both.
//
// A nil origin is {0, 0, 0}, and a nil region extends to the end of the image.
func (q *CommandQueue) EnqueueWalkImage(img *Image, flags backend.MapFlags, origin, region Extents, fn WalkFunc, waitList ...*Event) error {
	const op = "EnqueueWalkImage"
	q.assertMem(op, img)
	if fn == nil {
		panicf("%s: nil WalkFunc", op)
	}
	o, r := imageRegion(op, img, origin, region)
	mapping, err := q.mapImage(op, img, flags, o, r, waitList)
	if err != nil {
		return errors.WithMessage(err, op)
	}
	walkMapping(mapping, img.ElementSize(), o, r, fn)
	return q.EnqueueUnmap(img, mapping)
}

// EnqueueWalkImageAsync is the asynchronous version of EnqueueWalkImage.
//
// The region is mapped asynchronously, and fn runs (in a goroutine of the backend) once the mapping completes.
// The returned event tracks the final unmap, which waits on a UserEvent completed after the walk. If the
// mapping fails, the error status is propagated to the returned event.
func (q *CommandQueue) EnqueueWalkImageAsync(img *Image, flags backend.MapFlags, origin, region Extents, fn WalkFunc, waitList ...*Event) (*Event, error) {
	const op = "EnqueueWalkImageAsync"
	q.assertMem(op, img)
	if fn == nil {
		panicf("%s: nil WalkFunc", op)
	}
	o, r := imageRegion(op, img, origin, region)
	mapping, mapEvent, err := q.mapImageAsync(op, img, flags, o, r, waitList)
	if err != nil {
		return nil, errors.WithMessage(err, op)
	}
	walked, err := newUserEvent(q.Backend(), q.context)
	if err != nil {
		// The mapping must still be released.
		_ = q.EnqueueUnmap(img, mapping, mapEvent)
		mapEvent.Release()
		return nil, errors.WithMessage(err, op)
	}
	defer walked.Release()

	walkedRef := walked.Clone()
	elemSize := img.ElementSize()
	err = mapEvent.OnComplete(func(status backend.ExecutionStatus) {
		defer mapEvent.Release()
		defer walkedRef.Release()
		if status.IsError() {
			if err := walkedRef.SetStatus(status); err != nil {
				klog.Errorf("compute: %s failed to propagate map failure %s: %+v", op, status, err)
			}
			return
		}
		walkMapping(mapping, elemSize, o, r, fn)
		if err := walkedRef.SetComplete(); err != nil {
			klog.Errorf("compute: %s failed to complete the walk event: %+v", op, err)
		}
	})
	if err != nil {
		walkedRef.Release()
		_ = walked.SetStatus(backend.ErrorStatus(StatusOf(err)))
		_ = q.EnqueueUnmap(img, mapping, mapEvent)
		mapEvent.Release()
		return nil, errors.WithMessage(err, op)
	}
	return q.EnqueueUnmapAsync(img, mapping, &walked.Event)
}

// EnqueueRawFillImageWalking sets every element of a region of img to raw, which must have the size of one
// element, by mapping the region and writing it from the host.
func (q *CommandQueue) EnqueueRawFillImageWalking(img *Image, raw []byte, origin, region Extents, waitList ...*Event) error {
	q.assertRawColor("EnqueueRawFillImageWalking", img, raw)
	return q.EnqueueWalkImage(img, backend.MapWrite, origin, region, rawFiller(raw), waitList...)
}

// EnqueueRawFillImageWalkingAsync is the asynchronous version of EnqueueRawFillImageWalking.
func (q *CommandQueue) EnqueueRawFillImageWalkingAsync(img *Image, raw []byte, origin, region Extents, waitList ...*Event) (*Event, error) {
	q.assertRawColor("EnqueueRawFillImageWalkingAsync", img, raw)
	return q.EnqueueWalkImageAsync(img, backend.MapWrite, origin, region, rawFiller(raw), waitList...)
}

func (q *CommandQueue) assertRawColor(op string, img *Image, raw []byte) {
	q.assertMem(op, img)
	if len(raw) != img.ElementSize() {
		panicf("%s: raw color has %d bytes, image %s elements have %d", op, len(raw), img.Format(), img.ElementSize())
	}
}

func rawFiller(raw []byte) WalkFunc {
	raw = append([]byte(nil), raw...)
	return func(elem []byte, _, _, _ int) {
		copy(elem, raw)
	}
}
