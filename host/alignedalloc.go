package host

// This file defines alignedAlloc, modelled after mm_malloc, over Go memory.

import (
	"fmt"
	"unsafe"
)

// svmDefaultAlignment is used for SVM allocations requested with alignment 0.
const svmDefaultAlignment = 64

// alignedAlloc returns a zero-filled slice of the given size whose first byte is aligned to alignment, which
// must be a power of 2. It allocates extra space and slices it at the first aligned address.
func alignedAlloc(size, alignment int) []byte {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		panic(fmt.Sprintf("alignedAlloc: alignment must be a power of 2, got %d", alignment))
	}
	raw := make([]byte, size+alignment)
	offset := int(uintptr(unsafe.Pointer(unsafe.SliceData(raw))) % uintptr(alignment))
	if offset != 0 {
		offset = alignment - offset
	}
	return raw[offset : offset+size : offset+size]
}

// address of the first byte of a slice, or 0 for empty slices.
func address(data []byte) uintptr {
	if len(data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(data)))
}
