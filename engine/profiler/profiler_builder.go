package profiler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ProfilerBuilderOption is a functional option used to configure a Profiler during construction.
type ProfilerBuilderOption func(*Profiler)

// WithLogger sets the logger receiving the periodic frame stats.
func WithLogger(l *zap.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRegisterer registers the frame collectors on r.
func WithRegisterer(r prometheus.Registerer) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.registerer = r
	}
}

// WithUpdateInterval sets how often Tick logs stats.
//
// Parameters:
//   - d: the interval; values <= 0 are ignored
//
// Returns:
//   - ProfilerBuilderOption: a function that sets the update interval
func WithUpdateInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}
