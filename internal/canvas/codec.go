package canvas

import (
	"math/bits"
	"unicode/utf16"
)

const (
	bitsPerPixel = 5
	minUnitWidth = 8
	pixelMask    = 1<<bitsPerPixel - 1

	// Unlimited disables the output cap in Decode.
	Unlimited = -1
)

// DecodePixels unpacks the packed canvas of a square room whose side is
// dimensions pixels. The output never exceeds dimensions*dimensions entries.
func DecodePixels(encoded string, dimensions int) []uint8 {
	if dimensions <= 0 {
		return []uint8{}
	}
	return Decode(encoded, dimensions*dimensions)
}

// Decode reads encoded as a bitstream and returns its 5-bit color indices in
// order. Every UTF-16 unit contributes its binary form zero-padded to 8 bits;
// units above 0xFF keep their full width. Decoding stops when fewer than five
// bits remain or capacity indices were produced (capacity < 0 means no cap).
// Leftover bits are dropped.
func Decode(encoded string, capacity int) []uint8 {
	units := utf16.Encode([]rune(encoded))

	estimate := len(units) * minUnitWidth / bitsPerPixel
	if capacity >= 0 && capacity < estimate {
		estimate = capacity
	}
	out := make([]uint8, 0, estimate)

	var acc uint64
	pending := 0
	for _, unit := range units {
		if capacity >= 0 && len(out) >= capacity {
			break
		}
		width := max(bits.Len16(unit), minUnitWidth)
		acc = acc<<width | uint64(unit)
		pending += width

		for pending >= bitsPerPixel {
			if capacity >= 0 && len(out) >= capacity {
				break
			}
			pending -= bitsPerPixel
			out = append(out, uint8(acc>>pending)&pixelMask)
			acc &= 1<<pending - 1
		}
	}
	return out
}
