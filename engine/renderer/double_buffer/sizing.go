package double_buffer

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-bind/common"
)

// WarnCode identifies a sizing warning. Warnings never change behaviour.
type WarnCode int

const (
	// WarnNonSquare is recorded when a scalar count is not a perfect square and the texture has unused texels.
	WarnNonSquare WarnCode = iota + 1
	// WarnFlattened3D is recorded when a three-component domain is folded into a 2D texture (depth joins height).
	WarnFlattened3D
)

func (c WarnCode) String() string {
	switch c {
	case WarnNonSquare:
		return "non-square count"
	case WarnFlattened3D:
		return "3D domain flattened"
	default:
		return "unknown warning"
	}
}

// Warning is a sizing warning for one storage key.
type Warning struct {
	Key    string
	Code   WarnCode
	Domain common.Domain
	Width  uint32
	Height uint32
}

func (w Warning) Error() string {
	return fmt.Sprintf("storage %q: %s: domain %s stored as %dx%d texture", w.Key, w.Code, w.Domain, w.Width, w.Height)
}

// TextureSize returns the texture extent storing every element of domain.
//
// A scalar count uses the smallest square n with n*n >= count. A 2D domain is used as is. A 3D domain keeps x as the
// width and folds depth into height (y*z).
//
// Parameters:
//   - domain: the element domain
//
// Returns:
//   - width, height: the texture extent
//   - []WarnCode: sizing warnings, empty when the extent matches the domain exactly
func TextureSize(domain common.Domain) (uint32, uint32, []WarnCode) {
	switch domain.Dims {
	case 3:
		return uint32(domain.X), uint32(domain.Y * domain.Z), []WarnCode{WarnFlattened3D}
	case 2:
		return uint32(domain.X), uint32(domain.Y), nil
	}

	count := domain.Count()
	if count <= 0 {
		return 1, 1, nil
	}
	n := int(math.Ceil(math.Sqrt(float64(count))))
	for n*n < count {
		n++
	}
	for n > 1 && (n-1)*(n-1) >= count {
		n--
	}
	if n*n != count {
		return uint32(n), uint32(n), []WarnCode{WarnNonSquare}
	}
	return uint32(n), uint32(n), nil
}
