package imageformat

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// ColorKind tells which of the Color vectors is used.
type ColorKind int

const (
	// ColorFloat colors fill normalized, half-float and float images.
	ColorFloat ColorKind = iota
	// ColorInt colors fill signed integer images.
	ColorInt
	// ColorUint colors fill unsigned integer images.
	ColorUint
)

// Color used to fill an image, always given in RGBA order: Format.Pack reorders the components
// according to the channel order.
type Color struct {
	Kind  ColorKind
	Float [4]float32
	Int   [4]int32
	Uint  [4]uint32
}

// FloatColor returns a ColorFloat color.
func FloatColor(r, g, b, a float32) Color {
	return Color{Kind: ColorFloat, Float: [4]float32{r, g, b, a}}
}

// IntColor returns a ColorInt color.
func IntColor(r, g, b, a int32) Color {
	return Color{Kind: ColorInt, Int: [4]int32{r, g, b, a}}
}

// UintColor returns a ColorUint color.
func UintColor(r, g, b, a uint32) Color {
	return Color{Kind: ColorUint, Uint: [4]uint32{r, g, b, a}}
}

// Pack converts the color to the raw bytes (little-endian) of one element of the format.
func (f Format) Pack(c Color) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch {
	case f.Type.IsSigned():
		if c.Kind != ColorInt {
			return nil, errors.Errorf("format %s requires an IntColor", f)
		}
	case f.Type.IsUnsigned():
		if c.Kind != ColorUint {
			return nil, errors.Errorf("format %s requires a UintColor", f)
		}
	default:
		if c.Kind != ColorFloat {
			return nil, errors.Errorf("format %s requires a FloatColor", f)
		}
	}

	elem := make([]byte, f.ElementSize())
	if f.Type.IsPacked() {
		r, g, b := c.Float[0], c.Float[1], c.Float[2]
		switch f.Type {
		case UNormShort565:
			v := unorm(r, 31)<<11 | unorm(g, 63)<<5 | unorm(b, 31)
			binary.LittleEndian.PutUint16(elem, uint16(v))
		case UNormShort555:
			v := unorm(r, 31)<<10 | unorm(g, 31)<<5 | unorm(b, 31)
			binary.LittleEndian.PutUint16(elem, uint16(v))
		case UNormInt101010:
			v := unorm(r, 1023)<<20 | unorm(g, 1023)<<10 | unorm(b, 1023)
			binary.LittleEndian.PutUint32(elem, v)
		}
		return elem, nil
	}

	size := channelSizes[f.Type]
	for ii, component := range channelIndices[f.Order] {
		dst := elem[ii*size : (ii+1)*size]
		switch f.Type {
		case UNormInt8:
			dst[0] = uint8(unorm(c.Float[component], math.MaxUint8))
		case UNormInt16:
			binary.LittleEndian.PutUint16(dst, uint16(unorm(c.Float[component], math.MaxUint16)))
		case SNormInt8:
			dst[0] = uint8(int8(snorm(c.Float[component], math.MaxInt8)))
		case SNormInt16:
			binary.LittleEndian.PutUint16(dst, uint16(int16(snorm(c.Float[component], math.MaxInt16))))
		case HalfFloat:
			binary.LittleEndian.PutUint16(dst, float16.Fromfloat32(c.Float[component]).Bits())
		case Float:
			binary.LittleEndian.PutUint32(dst, math.Float32bits(c.Float[component]))
		case SignedInt8:
			dst[0] = uint8(int8(saturate(c.Int[component], math.MinInt8, math.MaxInt8)))
		case SignedInt16:
			binary.LittleEndian.PutUint16(dst, uint16(int16(saturate(c.Int[component], math.MinInt16, math.MaxInt16))))
		case SignedInt32:
			binary.LittleEndian.PutUint32(dst, uint32(c.Int[component]))
		case UnsignedInt8:
			dst[0] = uint8(min(c.Uint[component], math.MaxUint8))
		case UnsignedInt16:
			binary.LittleEndian.PutUint16(dst, uint16(min(c.Uint[component], math.MaxUint16)))
		case UnsignedInt32:
			binary.LittleEndian.PutUint32(dst, c.Uint[component])
		}
	}
	return elem, nil
}

// unorm converts v in [0, 1] to an integer in [0, scale], rounding to nearest. NaN converts to 0.
func unorm(v float32, scale uint32) uint32 {
	if math32.IsNaN(v) {
		return 0
	}
	v = math32.Min(math32.Max(v, 0), 1)
	return uint32(math32.Floor(v*float32(scale) + 0.5))
}

// snorm converts v in [-1, 1] to an integer in [-scale, scale], rounding half away from zero.
func snorm(v float32, scale int32) int32 {
	if math32.IsNaN(v) {
		return 0
	}
	v = math32.Min(math32.Max(v, -1), 1) * float32(scale)
	if v < 0 {
		return int32(math32.Ceil(v - 0.5))
	}
	return int32(math32.Floor(v + 0.5))
}

func saturate(v, lo, hi int32) int32 {
	return min(max(v, lo), hi)
}
