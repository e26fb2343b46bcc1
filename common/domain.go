package common

import (
	"errors"
	"fmt"
)

// ErrMalformedDomain is returned when a particle count shape is empty, has more than three
// components, or contains a non-positive component.
var ErrMalformedDomain = errors.New("malformed particle count")

// Domain is the normalized compute domain ("particle count"). A scalar count N becomes {N, 1, 1}.
type Domain struct {
	X, Y, Z int
	// Dims records how many components the caller supplied (1, 2 or 3).
	Dims int
}

// NewDomain builds a Domain from a scalar or a 2/3-element shape.
//
// Parameters:
//   - dims: one to three positive extents
//
// Returns:
//   - Domain: the normalized domain
//   - error: ErrMalformedDomain wrapped with the offending input
func NewDomain(dims ...int) (Domain, error) {
	if len(dims) == 0 || len(dims) > 3 {
		return Domain{}, fmt.Errorf("%w: %d components", ErrMalformedDomain, len(dims))
	}
	d := Domain{X: 1, Y: 1, Z: 1, Dims: len(dims)}
	for i, v := range dims {
		if v <= 0 {
			return Domain{}, fmt.Errorf("%w: component %d is %d", ErrMalformedDomain, i, v)
		}
		switch i {
		case 0:
			d.X = v
		case 1:
			d.Y = v
		case 2:
			d.Z = v
		}
	}
	return d, nil
}

// Count returns the total number of elements x*y*z.
func (d Domain) Count() int {
	return d.X * d.Y * d.Z
}

// IsZero reports whether the domain was never set.
func (d Domain) IsZero() bool {
	return d.Dims == 0
}

func (d Domain) String() string {
	switch d.Dims {
	case 1:
		return fmt.Sprintf("%d", d.X)
	case 2:
		return fmt.Sprintf("[%d,%d]", d.X, d.Y)
	case 3:
		return fmt.Sprintf("[%d,%d,%d]", d.X, d.Y, d.Z)
	default:
		return "[]"
	}
}
