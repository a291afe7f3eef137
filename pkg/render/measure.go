package render

import "math"

// PackSize packs a measured size into one int64: the IEEE 754 bits of width
// in the high 32 bits and of height in the low 32 bits.
func PackSize(width, height float32) int64 {
	return int64(uint64(math.Float32bits(width))<<32 | uint64(math.Float32bits(height)))
}

// UnpackSize reverses PackSize.
func UnpackSize(packed int64) (width, height float32) {
	u := uint64(packed)
	return math.Float32frombits(uint32(u >> 32)), math.Float32frombits(uint32(u))
}
