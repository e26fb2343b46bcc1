package shader

import "go.uber.org/zap"

// CompilerBuilderOption is a functional option used to configure a Compiler during construction.
type CompilerBuilderOption func(*compiler)

// WithCacheSize sets how many prepared shaders are kept.
func WithCacheSize(n int) CompilerBuilderOption {
	return func(c *compiler) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) CompilerBuilderOption {
	return func(c *compiler) {
		if l != nil {
			c.logger = l
		}
	}
}
