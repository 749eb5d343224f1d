package compute

import (
	"github.com/gomlx/gocompute/backend"
	"github.com/pkg/errors"
)

// Kernel is a function that runs on the devices, dispatched with CommandQueue.EnqueueNDRangeKernel or
// CommandQueue.EnqueueTask. Kernels are built by the backend: this package only adopts their ids.
type Kernel struct {
	Handle
	context backend.NativeID
	name    string
	numArgs int
}

func newKernel(h Handle, ctx backend.NativeID, name string, numArgs int) *Kernel {
	return track(&Kernel{Handle: h, context: ctx, name: name, numArgs: numArgs}, h)
}

// AdoptKernel wraps a kernel id created by the backend. If retain is false, the reference held by the caller
// is transferred to the returned Kernel.
func AdoptKernel(b backend.Backend, id backend.NativeID, retain bool) (*Kernel, error) {
	var info backend.KernelInfo
	if !id.IsNull() {
		var status backend.Status
		info, status = b.KernelInfo(id)
		if err := toError("KernelInfo", status); err != nil {
			return nil, err
		}
	}
	h, err := newHandle(b, backend.KindKernel, id, retain)
	if err != nil {
		return nil, err
	}
	return newKernel(h, info.Context, info.Name, info.NumArgs), nil
}

// Name of the kernel function.
func (k *Kernel) Name() string { return k.name }

// NumArgs returns the number of arguments of the kernel.
func (k *Kernel) NumArgs() int { return k.numArgs }

// Clone returns a new reference to the same kernel.
func (k *Kernel) Clone() *Kernel {
	return newKernel(k.clone(), k.context, k.name, k.numArgs)
}

// Move returns a Kernel owning the reference held by k, and leaves k null.
func (k *Kernel) Move() *Kernel {
	return newKernel(k.move(), k.context, k.name, k.numArgs)
}

// SetArg sets the argument at index. Buffers and images are passed by reference and must belong to the
// kernel's context. Other values (scalars, []byte, SVM) are passed to the backend as is.
func (k *Kernel) SetArg(index int, value any) error {
	k.assertValid("Kernel.SetArg")
	if index < 0 || index >= k.numArgs {
		panicf("Kernel.SetArg: index %d out of range for kernel %q with %d arguments", index, k.name, k.numArgs)
	}
	switch v := value.(type) {
	case MemObject:
		if v.handle().IsNull() {
			panicf("Kernel.SetArg: argument #%d of kernel %q is a null memory object", index, k.name)
		}
		if v.memContext() != k.context {
			panicf("Kernel.SetArg: argument #%d of kernel %q belongs to a different context", index, k.name)
		}
		value = backend.MemArg{ID: v.handle().ID()}
	case SVM:
		value = []byte(v)
	}
	if err := toError("SetKernelArg", k.Backend().SetKernelArg(k.ID(), index, value)); err != nil {
		return errors.WithMessagef(err, "kernel %q argument #%d (%T)", k.name, index, value)
	}
	return nil
}

// SetArgs sets the arguments starting at index 0, see SetArg.
func (k *Kernel) SetArgs(values ...any) error {
	for ii, value := range values {
		if err := k.SetArg(ii, value); err != nil {
			return err
		}
	}
	return nil
}
