package common

import (
	"encoding/binary"
	"math"
)

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// CeilDiv returns ceil(n / d) for non-negative n and positive d.
func CeilDiv(n, d int) int {
	if d <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

// AlignUp rounds size up to the next multiple of alignment. An alignment of 0 or 1 returns size unchanged.
//
// Parameters:
//   - size: the byte size to round
//   - alignment: the required alignment in bytes
//
// Returns:
//   - uint64: the aligned size
func AlignUp(size, alignment uint64) uint64 {
	if alignment <= 1 {
		return size
	}
	return (size + alignment - 1) / alignment * alignment
}

// Float32Bytes encodes values as little-endian IEEE-754 bytes, the layout every GPU upload path expects.
//
// Parameters:
//   - values: the floats to encode
//
// Returns:
//   - []byte: 4*len(values) bytes
func Float32Bytes(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// BytesFloat32 decodes little-endian float32 data. Trailing bytes that do not form a full float are ignored.
func BytesFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
