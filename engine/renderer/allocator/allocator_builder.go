package allocator

import "go.uber.org/zap"

// AllocatorBuilderOption is a functional option used to configure an Allocator during construction.
type AllocatorBuilderOption func(*allocator)

// WithMaxBindGroups sets the device bind group limit. Values below 1 are ignored.
//
// Parameters:
//   - n: the number of group indices a pipeline layout may use
//
// Returns:
//   - AllocatorBuilderOption: a function that sets the limit
func WithMaxBindGroups(n int) AllocatorBuilderOption {
	return func(a *allocator) {
		if n > 0 {
			a.maxBindGroups = n
		}
	}
}

// WithMaxAttributes sets the vertex attribute limit. Values below 1 are ignored.
func WithMaxAttributes(n int) AllocatorBuilderOption {
	return func(a *allocator) {
		if n > 0 {
			a.maxAttributes = n
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.Logger) AllocatorBuilderOption {
	return func(a *allocator) {
		if l != nil {
			a.logger = l
		}
	}
}
