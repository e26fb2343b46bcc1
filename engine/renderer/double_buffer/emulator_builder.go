package double_buffer

import (
	"github.com/Carmen-Shannon/oxy-bind/common"
	"go.uber.org/zap"
)

// EmulatorBuilderOption is a functional option used to configure an Emulator during construction.
type EmulatorBuilderOption func(*emulator)

// WithDomain sets the initial element domain.
func WithDomain(d common.Domain) EmulatorBuilderOption {
	return func(e *emulator) {
		e.domain = d
	}
}

// WithWarningHandler sets the callback receiving sizing warnings.
//
// Parameters:
//   - fn: called once per warning when a buffer is created
//
// Returns:
//   - EmulatorBuilderOption: a function that sets the handler
func WithWarningHandler(fn func(Warning)) EmulatorBuilderOption {
	return func(e *emulator) {
		e.warn = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EmulatorBuilderOption {
	return func(e *emulator) {
		if l != nil {
			e.logger = l
		}
	}
}
