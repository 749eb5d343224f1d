package imageformat

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestElementSize(t *testing.T) {
	assert.Equal(t, 4, RGBA8.ElementSize())
	assert.Equal(t, 16, Format{OrderRGBA, Float}.ElementSize())
	assert.Equal(t, 2, Format{OrderRGB, UNormShort565}.ElementSize())
	assert.Equal(t, 4, Format{OrderRGB, UNormInt101010}.ElementSize())
	assert.Equal(t, 4, Format{OrderRG, HalfFloat}.ElementSize())
	assert.Equal(t, 1, Format{OrderIntensity, UNormInt8}.ElementSize())
}

func TestValidate(t *testing.T) {
	require.NoError(t, RGBA8.Validate())
	require.NoError(t, Format{OrderRGB, UNormShort555}.Validate())
	require.Error(t, Format{OrderRGBA, UNormShort565}.Validate())
	require.Error(t, Format{OrderRGB, UNormInt8}.Validate())
	require.Error(t, Format{OrderLuminance, SignedInt32}.Validate())
	require.Error(t, Format{ChannelOrder(1), UNormInt8}.Validate())
}

func TestPackNormalized(t *testing.T) {
	elem, err := RGBA8.Pack(FloatColor(1, 0.5, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 128, 0, 255}, elem)

	// BGRA reorders the components.
	elem, err = Format{OrderBGRA, UNormInt8}.Pack(FloatColor(1, 0.5, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 128, 255, 0}, elem)

	elem, err = Format{OrderR, SNormInt8}.Pack(FloatColor(-1, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x81}, elem) // -127

	elem, err = Format{OrderR, UNormInt16}.Pack(FloatColor(float32(math.NaN()), 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, elem)
}

func TestPackFloat(t *testing.T) {
	elem, err := Format{OrderRG, HalfFloat}.Pack(FloatColor(1.5, -2, 0, 0))
	require.NoError(t, err)
	require.Len(t, elem, 4)
	assert.Equal(t, float16.Fromfloat32(1.5).Bits(), binary.LittleEndian.Uint16(elem[0:]))
	assert.Equal(t, float16.Fromfloat32(-2).Bits(), binary.LittleEndian.Uint16(elem[2:]))

	elem, err = Format{OrderA, Float}.Pack(FloatColor(0, 0, 0, 3.25))
	require.NoError(t, err)
	assert.Equal(t, float32(3.25), math.Float32frombits(binary.LittleEndian.Uint32(elem)))
}

func TestPackIntegers(t *testing.T) {
	elem, err := Format{OrderRA, SignedInt8}.Pack(IntColor(-1000, 0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 7}, elem)

	elem, err = Format{OrderR, UnsignedInt16}.Pack(UintColor(70000, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF}, elem)

	// Kind mismatch.
	_, err = Format{OrderR, UnsignedInt16}.Pack(FloatColor(1, 0, 0, 0))
	require.Error(t, err)
	_, err = RGBA8.Pack(UintColor(1, 0, 0, 0))
	require.Error(t, err)
}

func TestPackPacked(t *testing.T) {
	elem, err := Format{OrderRGB, UNormShort565}.Pack(FloatColor(1, 0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, uint16(0xF81F), binary.LittleEndian.Uint16(elem))

	elem, err = Format{OrderRGB, UNormInt101010}.Pack(FloatColor(0, 1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, uint32(1023<<10), binary.LittleEndian.Uint32(elem))
}
