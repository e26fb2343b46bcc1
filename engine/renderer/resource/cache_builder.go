package resource

import (
	"github.com/Carmen-Shannon/oxy-bind/common"
	"go.uber.org/zap"
)

// CacheBuilderOption is a functional option used to configure a Cache during construction.
type CacheBuilderOption func(*cache)

// WithFactory overrides handle creation for one resource kind.
// The raster backend uses it to back storage keys with double buffers.
//
// Parameters:
//   - kind: the resource kind the factory serves
//   - f: the factory
//
// Returns:
//   - CacheBuilderOption: a function that installs the factory
func WithFactory(kind common.ResourceKind, f HandleFactory) CacheBuilderOption {
	return func(c *cache) {
		if f != nil {
			c.factories[kind] = f
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.Logger) CacheBuilderOption {
	return func(c *cache) {
		if l != nil {
			c.logger = l
		}
	}
}
