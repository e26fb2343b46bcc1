package wgpu_device

import (
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"go.uber.org/zap"
)

// DeviceBuilderOption is a functional option used to configure the explicit device during construction.
type DeviceBuilderOption func(*device)

// WithPresentMode sets how frames are presented to the surface.
//
// Parameters:
//   - mode: gpu.PresentModeVSync or gpu.PresentModeUncapped
//
// Returns:
//   - DeviceBuilderOption: a function that sets the present mode for the device
func WithPresentMode(mode gpu.PresentMode) DeviceBuilderOption {
	return func(d *device) {
		d.presentMode = mode
	}
}

// WithMSAA sets the sample count of the surface pass.
//
// Parameters:
//   - count: the MSAA sample count (gpu.MSAAOff, gpu.MSAA4x, ...)
//
// Returns:
//   - DeviceBuilderOption: a function that sets the MSAA sample count for the device
func WithMSAA(count gpu.MSAASampleCount) DeviceBuilderOption {
	return func(d *device) {
		d.sampleCount = count
	}
}

// WithForceSoftwareRenderer requests the fallback (software) adapter.
//
// Parameters:
//   - force: true to force the fallback adapter
//
// Returns:
//   - DeviceBuilderOption: a function that sets the adapter preference for the device
func WithForceSoftwareRenderer(force bool) DeviceBuilderOption {
	return func(d *device) {
		d.forceFallbackAdapter = force
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
