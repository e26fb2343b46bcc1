package gl_device

import (
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"go.uber.org/zap"
)

// DeviceBuilderOption is a functional option used to configure the raster device during construction.
type DeviceBuilderOption func(*device)

// WithMSAA enables GL multisampling. The sample count itself is chosen when the window's context is created.
func WithMSAA(count gpu.MSAASampleCount) DeviceBuilderOption {
	return func(d *device) {
		d.msaa = count
	}
}

// WithLogger sets the logger used for device lifecycle messages.
func WithLogger(l *zap.Logger) DeviceBuilderOption {
	return func(d *device) {
		if l != nil {
			d.logger = l
		}
	}
}
