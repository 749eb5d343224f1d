package compute

import "github.com/gomlx/gocompute/backend"

// Extents holds up to 3 coordinates (x, y, z) of an origin, region or NDRange size.
//
// When used as an origin, missing trailing values are 0. When used as a region they are 1.
type Extents []int

// origin returns the extents padded with 0.
func (e Extents) origin() backend.Extent3 {
	var o backend.Extent3
	copy(o[:], e)
	return o
}

// region returns the extents padded with 1.
func (e Extents) region() backend.Extent3 {
	r := backend.Extent3{1, 1, 1}
	copy(r[:], e)
	return r
}

// Volume returns the product of the values, 1 for empty extents.
func (e Extents) Volume() int {
	v := 1
	for _, x := range e {
		v *= x
	}
	return v
}
