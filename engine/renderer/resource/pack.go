package resource

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-bind/common"
)

// Pack lays values out for kind with the given component count, inserting the padding Shape.Stride requires, and
// returns the bytes together with their shape. A value slice not divisible by components is rounded up with zeros.
//
// Parameters:
//   - kind: the resource kind
//   - components: per-element component count
//   - values: the element values, tightly packed
//
// Returns:
//   - []byte: little-endian float32 data ready for Cache.Write
//   - Shape: the shape of the data
func Pack(kind common.ResourceKind, components int, values []float32) ([]byte, Shape) {
	if components <= 0 {
		components = 1
	}
	shape := Shape{Count: common.CeilDiv(len(values), components), Components: components}
	stride := shape.Stride(kind)
	if stride == components && len(values) == shape.Count*components {
		return common.Float32Bytes(values), shape
	}

	out := make([]byte, shape.Count*stride*4)
	for i, v := range values {
		elem, comp := i/components, i%components
		binary.LittleEndian.PutUint32(out[(elem*stride+comp)*4:], math.Float32bits(v))
	}
	return out, shape
}
