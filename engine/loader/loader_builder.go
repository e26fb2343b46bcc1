package loader

import (
	"github.com/Carmen-Shannon/oxy-bind/common"
	"go.uber.org/zap"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithWorkers sets the maximum number of decoding workers.
//
// Parameters:
//   - n: worker count; values below 1 mean 1
//
// Returns:
//   - LoaderBuilderOption: a function that applies the worker count to a loader
func WithWorkers(n int) LoaderBuilderOption {
	return func(l *loader) {
		l.workers = max(n, 1)
	}
}

// WithTexture is an option builder that pre-populates the texture cache.
//
// Parameters:
//   - key: the cache key for the texture
//   - tex: the texture to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the texture option to a loader
func WithTexture(key string, tex common.TextureStagingData) LoaderBuilderOption {
	return func(l *loader) {
		l.textureCache[key] = tex
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) LoaderBuilderOption {
	return func(l *loader) {
		if log != nil {
			l.logger = log
		}
	}
}
