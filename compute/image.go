package compute

import (
	"fmt"

	"github.com/gomlx/gocompute/backend"
	"github.com/gomlx/gocompute/imageformat"
	"github.com/pkg/errors"
)

// Image is a 1D, 2D or 3D memory object of elements of an imageformat.Format.
type Image struct {
	Handle
	context backend.NativeID
	info    backend.ImageInfo
}

func newImage(h Handle, ctx backend.NativeID, info backend.ImageInfo) *Image {
	return track(&Image{Handle: h, context: ctx, info: info}, h)
}

// ImageConfig configures the creation of an Image, see Context.NewImage.
type ImageConfig struct {
	ctx   *Context
	flags backend.MemFlags
	desc  backend.ImageDesc
	host  []byte
	err   error
}

// NewImage returns a configuration to create an image with the given format and extents: 1 to 3 values
// (width, height and depth). Call Done to create it.
func (c *Context) NewImage(format imageformat.Format, extents ...int) *ImageConfig {
	c.assertValid("Context.NewImage")
	cfg := &ImageConfig{ctx: c, flags: backend.MemReadWrite, desc: backend.ImageDesc{Format: format}}
	switch len(extents) {
	case 1:
		cfg.desc.Type = backend.MemObjectImage1D
		cfg.desc.Width = extents[0]
	case 2:
		cfg.desc.Type = backend.MemObjectImage2D
		cfg.desc.Width, cfg.desc.Height = extents[0], extents[1]
	case 3:
		cfg.desc.Type = backend.MemObjectImage3D
		cfg.desc.Width, cfg.desc.Height, cfg.desc.Depth = extents[0], extents[1], extents[2]
	default:
		cfg.err = errors.Errorf("Context.NewImage: images take 1 to 3 extents, got %v", extents)
		return cfg
	}
	if err := format.Validate(); err != nil {
		cfg.err = errors.WithMessage(err, "Context.NewImage")
	}
	return cfg
}

// WithFlags sets the access flags of the image.
func (b *ImageConfig) WithFlags(flags backend.MemFlags) *ImageConfig {
	if b.err != nil {
		return b
	}
	b.flags = flags | (b.flags & (backend.MemUseHostPtr | backend.MemCopyHostPtr))
	return b
}

// FromHost initializes the image with a copy of data.
func (b *ImageConfig) FromHost(data []byte) *ImageConfig {
	return b.withHost(data, backend.MemCopyHostPtr)
}

// UseHost makes the image use data as its storage.
func (b *ImageConfig) UseHost(data []byte) *ImageConfig {
	return b.withHost(data, backend.MemUseHostPtr)
}

func (b *ImageConfig) withHost(data []byte, flag backend.MemFlags) *ImageConfig {
	if b.err != nil {
		return b
	}
	if len(data) == 0 {
		b.err = errors.New("ImageConfig: empty host data")
		return b
	}
	b.host = data
	b.flags = (b.flags &^ (backend.MemUseHostPtr | backend.MemCopyHostPtr)) | flag
	return b
}

// WithPitches sets the row and slice pitches, in bytes, of the host data given to FromHost or UseHost.
func (b *ImageConfig) WithPitches(rowPitch, slicePitch int) *ImageConfig {
	if b.err != nil {
		return b
	}
	b.desc.RowPitch, b.desc.SlicePitch = rowPitch, slicePitch
	return b
}

// Done creates the image.
func (b *ImageConfig) Done() (*Image, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.host == nil && (b.desc.RowPitch != 0 || b.desc.SlicePitch != 0) {
		return nil, errors.New("ImageConfig: pitches can only be given with host data")
	}
	be := b.ctx.Backend()
	id, status := be.CreateImage(b.ctx.ID(), b.flags, b.desc, b.host)
	if err := toError("CreateImage", status); err != nil {
		return nil, errors.WithMessagef(err, "image %s %dx%dx%d", b.desc.Format, b.desc.Width, b.desc.Height, b.desc.Depth)
	}
	h, err := newHandle(be, backend.KindImage, id, false)
	if err != nil {
		return nil, err
	}
	info, status := be.ImageInfo(id)
	if err := toError("ImageInfo", status); err != nil {
		h.Release()
		return nil, err
	}
	return newImage(h, b.ctx.ID(), info), nil
}

// AdoptImage wraps an image id created elsewhere. If retain is false, the reference held by the caller is
// transferred to the returned Image.
func AdoptImage(b backend.Backend, id backend.NativeID, retain bool) (*Image, error) {
	var (
		mem  backend.MemInfo
		info backend.ImageInfo
	)
	if !id.IsNull() {
		var status backend.Status
		mem, status = b.MemInfo(id)
		if err := toError("MemInfo", status); err != nil {
			return nil, err
		}
		info, status = b.ImageInfo(id)
		if err := toError("ImageInfo", status); err != nil {
			return nil, err
		}
	}
	h, err := newHandle(b, backend.KindImage, id, retain)
	if err != nil {
		return nil, err
	}
	return newImage(h, mem.Context, info), nil
}

func (img *Image) memContext() backend.NativeID { return img.context }

// Format of the image elements.
func (img *Image) Format() imageformat.Format { return img.info.Format }

// Type of the image: MemObjectImage1D, MemObjectImage2D or MemObjectImage3D.
func (img *Image) Type() backend.MemObjectType { return img.info.Type }

// ElementSize is the size in bytes of one element.
func (img *Image) ElementSize() int { return img.info.ElementSize }

// Width of the image.
func (img *Image) Width() int { return img.info.Width }

// Height of the image, 0 for 1D images.
func (img *Image) Height() int { return img.info.Height }

// Depth of the image, 0 for 1D and 2D images.
func (img *Image) Depth() int { return img.info.Depth }

// RowPitch returns the distance in bytes between rows of the image storage.
func (img *Image) RowPitch() int { return img.info.RowPitch }

// SlicePitch returns the distance in bytes between slices of the image storage.
func (img *Image) SlicePitch() int { return img.info.SlicePitch }

// Extents returns width, height and depth, with the unused dimensions set to 1.
func (img *Image) Extents() backend.Extent3 {
	return backend.Extent3{img.info.Width, max(img.info.Height, 1), max(img.info.Depth, 1)}
}

// Clone returns a new reference to the same image.
func (img *Image) Clone() *Image {
	return newImage(img.clone(), img.context, img.info)
}

// Move returns an Image owning the reference held by img, and leaves img null.
func (img *Image) Move() *Image {
	return newImage(img.move(), img.context, img.info)
}

// Duplicate creates a new image with the same format and extents, and copies the contents of img into it
// using queue, waiting for the copy to complete.
func (img *Image) Duplicate(queue *CommandQueue) (*Image, error) {
	queue.assertMem("Image.Duplicate", img)
	be := img.Backend()
	desc := img.info.ImageDesc
	desc.RowPitch, desc.SlicePitch = 0, 0
	id, status := be.CreateImage(img.context, backend.MemReadWrite, desc, nil)
	if err := toError("CreateImage", status); err != nil {
		return nil, err
	}
	h, err := newHandle(be, backend.KindImage, id, false)
	if err != nil {
		return nil, err
	}
	info, status := be.ImageInfo(id)
	if err := toError("ImageInfo", status); err != nil {
		h.Release()
		return nil, err
	}
	dup := newImage(h, img.context, info)
	if err := queue.EnqueueCopyImage(img, dup, nil, nil, nil); err != nil {
		dup.Release()
		return nil, err
	}
	return dup, nil
}

// String implements fmt.Stringer.
func (img *Image) String() string {
	if img.IsNull() {
		return "Image(null)"
	}
	e := img.Extents()
	return fmt.Sprintf("Image(%#x, %s, %dx%dx%d)", uintptr(img.ID()), img.info.Format, e[0], e[1], e[2])
}
