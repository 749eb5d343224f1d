package compute

import (
	"fmt"

	"github.com/gomlx/gocompute/backend"
	"github.com/pkg/errors"
)

// MemObject is implemented by Buffer and Image.
type MemObject interface {
	resource

	// memContext returns the id of the context the object was created in.
	memContext() backend.NativeID
}

// Buffer is a linear memory object.
type Buffer struct {
	Handle
	context backend.NativeID
	flags   backend.MemFlags
	size    int
}

func newBuffer(h Handle, ctx backend.NativeID, flags backend.MemFlags, size int) *Buffer {
	return track(&Buffer{Handle: h, context: ctx, flags: flags, size: size}, h)
}

// BufferConfig configures the creation of a Buffer, see Context.NewBuffer.
type BufferConfig struct {
	ctx   *Context
	size  int
	flags backend.MemFlags
	host  []byte
	err   error
}

// NewBuffer returns a configuration to create a buffer of size bytes. Call Done to create it.
//
// By default, the buffer is read-write and its contents are undefined.
func (c *Context) NewBuffer(size int) *BufferConfig {
	c.assertValid("Context.NewBuffer")
	return &BufferConfig{ctx: c, size: size, flags: backend.MemReadWrite}
}

// WithFlags sets the access flags of the buffer (MemReadWrite, MemReadOnly or MemWriteOnly), and optionally
// MemAllocHostPtr.
func (b *BufferConfig) WithFlags(flags backend.MemFlags) *BufferConfig {
	if b.err != nil {
		return b
	}
	if flags&(backend.MemUseHostPtr|backend.MemCopyHostPtr) != 0 {
		b.err = errors.New("BufferConfig.WithFlags: use FromHost or UseHost to set the host pointer flags")
		return b
	}
	b.flags = flags | (b.flags & (backend.MemUseHostPtr | backend.MemCopyHostPtr))
	return b
}

// FromHost initializes the buffer with a copy of data, which must hold at least size bytes.
func (b *BufferConfig) FromHost(data []byte) *BufferConfig {
	return b.withHost(data, backend.MemCopyHostPtr)
}

// UseHost makes the buffer use data as its storage. The data must be kept alive, and not modified,
// while the buffer is in use.
func (b *BufferConfig) UseHost(data []byte) *BufferConfig {
	return b.withHost(data, backend.MemUseHostPtr)
}

func (b *BufferConfig) withHost(data []byte, flag backend.MemFlags) *BufferConfig {
	if b.err != nil {
		return b
	}
	if len(data) < b.size {
		b.err = errors.Errorf("BufferConfig: host data has %d bytes, buffer size is %d", len(data), b.size)
		return b
	}
	b.host = data[:b.size]
	b.flags = (b.flags &^ (backend.MemUseHostPtr | backend.MemCopyHostPtr)) | flag
	return b
}

// Done creates the buffer.
func (b *BufferConfig) Done() (*Buffer, error) {
	if b.err != nil {
		return nil, b.err
	}
	be := b.ctx.Backend()
	id, status := be.CreateBuffer(b.ctx.ID(), b.flags, b.size, b.host)
	if err := toError("CreateBuffer", status); err != nil {
		return nil, errors.WithMessagef(err, "buffer of %d bytes", b.size)
	}
	h, err := newHandle(be, backend.KindBuffer, id, false)
	if err != nil {
		return nil, err
	}
	return newBuffer(h, b.ctx.ID(), b.flags, b.size), nil
}

// AdoptBuffer wraps a buffer id created elsewhere. If retain is false, the reference held by the caller is
// transferred to the returned Buffer.
func AdoptBuffer(b backend.Backend, id backend.NativeID, retain bool) (*Buffer, error) {
	var info backend.MemInfo
	if !id.IsNull() {
		var status backend.Status
		info, status = b.MemInfo(id)
		if err := toError("MemInfo", status); err != nil {
			return nil, err
		}
		if info.Type != backend.MemObjectBuffer {
			return nil, errors.Errorf("AdoptBuffer: object %#x is not a buffer (type=0x%X)", uintptr(id), uint32(info.Type))
		}
	}
	h, err := newHandle(b, backend.KindBuffer, id, retain)
	if err != nil {
		return nil, err
	}
	return newBuffer(h, info.Context, info.Flags, info.Size), nil
}

func (buf *Buffer) memContext() backend.NativeID { return buf.context }

// Size of the buffer in bytes.
func (buf *Buffer) Size() int { return buf.size }

// Flags the buffer was created with.
func (buf *Buffer) Flags() backend.MemFlags { return buf.flags }

// Clone returns a new reference to the same buffer.
func (buf *Buffer) Clone() *Buffer {
	return newBuffer(buf.clone(), buf.context, buf.flags, buf.size)
}

// Move returns a Buffer owning the reference held by buf, and leaves buf null.
func (buf *Buffer) Move() *Buffer {
	return newBuffer(buf.move(), buf.context, buf.flags, buf.size)
}

// Duplicate creates a new buffer with the same size and access flags, and copies the contents of buf into it
// using queue, waiting for the copy to complete.
func (buf *Buffer) Duplicate(queue *CommandQueue) (*Buffer, error) {
	queue.assertMem("Buffer.Duplicate", buf)
	be := buf.Backend()
	flags := buf.flags &^ (backend.MemUseHostPtr | backend.MemCopyHostPtr)
	id, status := be.CreateBuffer(buf.context, flags, buf.size, nil)
	if err := toError("CreateBuffer", status); err != nil {
		return nil, err
	}
	h, err := newHandle(be, backend.KindBuffer, id, false)
	if err != nil {
		return nil, err
	}
	dup := newBuffer(h, buf.context, flags, buf.size)
	if err := queue.EnqueueCopyBuffer(buf, dup, 0, 0, buf.size); err != nil {
		dup.Release()
		return nil, err
	}
	return dup, nil
}

// String implements fmt.Stringer.
func (buf *Buffer) String() string {
	if buf.IsNull() {
		return "Buffer(null)"
	}
	return fmt.Sprintf("Buffer(%#x, %d bytes)", uintptr(buf.ID()), buf.size)
}
