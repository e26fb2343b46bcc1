package engine

import (
	"errors"
	"fmt"
	"image"

	"github.com/Carmen-Shannon/oxy-bind/common"
)

// ErrUnsupportedValue is reported for setter values that cannot be normalized to float32 elements.
var ErrUnsupportedValue = errors.New("unsupported value type")

// Vectors is an array of elements with an explicit component count, for data whose width cannot be inferred from
// its Go type (e.g. a flat []float32 of vec2 positions).
type Vectors struct {
	Data       []float32
	Components int
}

// normalize converts a setter value into tightly packed float32 elements and their component count.
//
// Scalars are one element of one component. Fixed arrays [2], [3] and [4] are one vector; [16] is one mat4. Slices of
// scalars are arrays of one-component elements and slices of fixed arrays are arrays of vectors.
func normalize(value any) ([]float32, int, error) {
	switch v := value.(type) {
	case float32:
		return []float32{v}, 1, nil
	case float64:
		return []float32{float32(v)}, 1, nil
	case int:
		return []float32{float32(v)}, 1, nil
	case int32:
		return []float32{float32(v)}, 1, nil
	case uint32:
		return []float32{float32(v)}, 1, nil
	case bool:
		if v {
			return []float32{1}, 1, nil
		}
		return []float32{0}, 1, nil
	case [2]float32:
		return v[:], 2, nil
	case [3]float32:
		return v[:], 3, nil
	case [4]float32:
		return v[:], 4, nil
	case [16]float32:
		return v[:], 16, nil
	case []float32:
		return v, 1, nil
	case []float64:
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out, 1, nil
	case [][2]float32:
		return flatten(v), 2, nil
	case [][3]float32:
		return flatten(v), 3, nil
	case [][4]float32:
		return flatten(v), 4, nil
	case Vectors:
		if v.Components <= 0 || len(v.Data)%v.Components != 0 {
			return nil, 0, fmt.Errorf("%w: %d values of %d components", ErrUnsupportedValue, len(v.Data), v.Components)
		}
		return v.Data, v.Components, nil
	default:
		return nil, 0, fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
}

func flatten[V [2]float32 | [3]float32 | [4]float32](vs []V) []float32 {
	out := make([]float32, 0, len(vs)*4)
	for _, v := range vs {
		for i := range len(v) {
			out = append(out, v[i])
		}
	}
	return out
}

// textureData converts a texture setter value into RGBA staging data.
func textureData(value any) (common.TextureStagingData, error) {
	var data common.TextureStagingData
	switch v := value.(type) {
	case common.TextureStagingData:
		data = v
	case *common.TextureStagingData:
		if v == nil {
			return data, fmt.Errorf("%w: nil texture", ErrUnsupportedValue)
		}
		data = *v
	case image.Image:
		data = common.TextureFromImage(v)
	default:
		return data, fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
	return data, data.Validate()
}
