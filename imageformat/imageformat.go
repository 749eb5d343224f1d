// Package imageformat describes the element layout of images (channel order and channel data type) and
// packs fill colors into the raw bytes of one image element.
package imageformat

import (
	"fmt"

	"github.com/pkg/errors"
)

// ChannelOrder of the channels of an image element.
type ChannelOrder int

const (
	OrderR         ChannelOrder = 0x10B0
	OrderA         ChannelOrder = 0x10B1
	OrderRG        ChannelOrder = 0x10B2
	OrderRA        ChannelOrder = 0x10B3
	OrderRGB       ChannelOrder = 0x10B4
	OrderRGBA      ChannelOrder = 0x10B5
	OrderBGRA      ChannelOrder = 0x10B6
	OrderARGB      ChannelOrder = 0x10B7
	OrderIntensity ChannelOrder = 0x10B8
	OrderLuminance ChannelOrder = 0x10B9
)

var channelOrderNames = map[ChannelOrder]string{
	OrderR:         "R",
	OrderA:         "A",
	OrderRG:        "RG",
	OrderRA:        "RA",
	OrderRGB:       "RGB",
	OrderRGBA:      "RGBA",
	OrderBGRA:      "BGRA",
	OrderARGB:      "ARGB",
	OrderIntensity: "Intensity",
	OrderLuminance: "Luminance",
}

func (o ChannelOrder) String() string {
	name := channelOrderNames[o]
	if name == "" {
		name = fmt.Sprintf("Unknown(%x)", int(o))
	}
	return name
}

// channelIndices maps each channel of the order to the RGBA component (0=R, 1=G, 2=B, 3=A) that fills it.
var channelIndices = map[ChannelOrder][]int{
	OrderR:         {0},
	OrderA:         {3},
	OrderRG:        {0, 1},
	OrderRA:        {0, 3},
	OrderRGB:       {0, 1, 2},
	OrderRGBA:      {0, 1, 2, 3},
	OrderBGRA:      {2, 1, 0, 3},
	OrderARGB:      {3, 0, 1, 2},
	OrderIntensity: {0},
	OrderLuminance: {0},
}

// Channels returns the number of channels, or 0 for an unknown order.
func (o ChannelOrder) Channels() int {
	return len(channelIndices[o])
}

// ChannelType is the data type of each channel.
type ChannelType int

const (
	SNormInt8      ChannelType = 0x10D0
	SNormInt16     ChannelType = 0x10D1
	UNormInt8      ChannelType = 0x10D2
	UNormInt16     ChannelType = 0x10D3
	UNormShort565  ChannelType = 0x10D4
	UNormShort555  ChannelType = 0x10D5
	UNormInt101010 ChannelType = 0x10D6
	SignedInt8     ChannelType = 0x10D7
	SignedInt16    ChannelType = 0x10D8
	SignedInt32    ChannelType = 0x10D9
	UnsignedInt8   ChannelType = 0x10DA
	UnsignedInt16  ChannelType = 0x10DB
	UnsignedInt32  ChannelType = 0x10DC
	HalfFloat      ChannelType = 0x10DD
	Float          ChannelType = 0x10DE
)

var channelTypeNames = map[ChannelType]string{
	SNormInt8:      "SNormInt8",
	SNormInt16:     "SNormInt16",
	UNormInt8:      "UNormInt8",
	UNormInt16:     "UNormInt16",
	UNormShort565:  "UNormShort565",
	UNormShort555:  "UNormShort555",
	UNormInt101010: "UNormInt101010",
	SignedInt8:     "SignedInt8",
	SignedInt16:    "SignedInt16",
	SignedInt32:    "SignedInt32",
	UnsignedInt8:   "UnsignedInt8",
	UnsignedInt16:  "UnsignedInt16",
	UnsignedInt32:  "UnsignedInt32",
	HalfFloat:      "HalfFloat",
	Float:          "Float",
}

func (t ChannelType) String() string {
	name := channelTypeNames[t]
	if name == "" {
		name = fmt.Sprintf("Unknown(%x)", int(t))
	}
	return name
}

// channelSize in bytes, for the non-packed types.
var channelSizes = map[ChannelType]int{
	SNormInt8:     1,
	SNormInt16:    2,
	UNormInt8:     1,
	UNormInt16:    2,
	SignedInt8:    1,
	SignedInt16:   2,
	SignedInt32:   4,
	UnsignedInt8:  1,
	UnsignedInt16: 2,
	UnsignedInt32: 4,
	HalfFloat:     2,
	Float:         4,
}

// IsPacked returns whether all channels are packed in a single integer (565, 555 and 101010 types).
func (t ChannelType) IsPacked() bool {
	return t == UNormShort565 || t == UNormShort555 || t == UNormInt101010
}

// IsSigned returns whether the type holds un-normalized signed integers.
func (t ChannelType) IsSigned() bool {
	return t == SignedInt8 || t == SignedInt16 || t == SignedInt32
}

// IsUnsigned returns whether the type holds un-normalized unsigned integers.
func (t ChannelType) IsUnsigned() bool {
	return t == UnsignedInt8 || t == UnsignedInt16 || t == UnsignedInt32
}

// Format of an image element.
type Format struct {
	Order ChannelOrder
	Type  ChannelType
}

// RGBA8 is the common 4 channels of 8 bits normalized format.
var RGBA8 = Format{Order: OrderRGBA, Type: UNormInt8}

func (f Format) String() string {
	return fmt.Sprintf("%s/%s", f.Order, f.Type)
}

// Validate returns an error if the combination of order and type is not valid.
func (f Format) Validate() error {
	if f.Order.Channels() == 0 {
		return errors.Errorf("invalid image format %s: unknown channel order", f)
	}
	if f.Type.IsPacked() {
		if f.Order != OrderRGB {
			return errors.Errorf("invalid image format %s: packed channel types require the RGB channel order", f)
		}
		return nil
	}
	if _, found := channelSizes[f.Type]; !found {
		return errors.Errorf("invalid image format %s: unknown channel type", f)
	}
	if f.Order == OrderRGB {
		return errors.Errorf("invalid image format %s: RGB channel order requires a packed channel type", f)
	}
	if (f.Order == OrderIntensity || f.Order == OrderLuminance) && (f.Type.IsSigned() || f.Type.IsUnsigned()) {
		return errors.Errorf("invalid image format %s: %s requires a normalized or floating point channel type", f, f.Order)
	}
	return nil
}

// ElementSize returns the size in bytes of one element, or 0 if the format is not valid.
func (f Format) ElementSize() int {
	switch f.Type {
	case UNormShort565, UNormShort555:
		return 2
	case UNormInt101010:
		return 4
	}
	return channelSizes[f.Type] * f.Order.Channels()
}
