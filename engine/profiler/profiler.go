package profiler

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Profiler tracks frame rate and memory statistics for performance monitoring.
// Outputs stats to the logger at a configurable interval and exports frame metrics to prometheus.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	logger     *zap.Logger
	registerer prometheus.Registerer

	frames     prometheus.Counter
	frameTime  prometheus.Histogram
	rebuilds   *prometheus.CounterVec
	dispatches *prometheus.CounterVec
	skipped    *prometheus.CounterVec
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second. Collectors are registered on the registerer given with WithRegisterer;
// without one they are created but not registered.
//
// Parameters:
//   - options: ProfilerBuilderOption values
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		frameCount:     0,
		lastTime:       time.Now(),
		updateInterval: time.Second,
		memStats:       runtime.MemStats{},
		logger:         zap.NewNop(),
	}
	for _, opt := range options {
		opt(p)
	}

	factory := promauto.With(p.registerer)
	p.frames = factory.NewCounter(prometheus.CounterOpts{
		Name: "oxy_frames_total",
		Help: "Frames driven by the frame driver",
	})
	p.frameTime = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "oxy_frame_seconds",
		Help:    "Wall time of one frame step in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
	p.rebuilds = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "oxy_pipeline_rebuilds_total",
		Help: "Pipeline builds by pipeline and result",
	}, []string{"pipeline", "result"})
	p.dispatches = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "oxy_compute_dispatches_total",
		Help: "Compute dispatches by pipeline and mode",
	}, []string{"pipeline", "mode"})
	p.skipped = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "oxy_skipped_draws_total",
		Help: "Frames whose draw was skipped because no render pipeline existed",
	}, []string{"pipeline"})
	return p
}

// ObserveFrame records one driven frame and its duration.
func (p *Profiler) ObserveFrame(d time.Duration) {
	p.frames.Inc()
	p.frameTime.Observe(d.Seconds())
}

// Rebuild records a pipeline build attempt.
func (p *Profiler) Rebuild(pipelineKey string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.rebuilds.WithLabelValues(pipelineKey, result).Inc()
}

// Dispatch records a compute dispatch; mode is "native" or "emulated".
func (p *Profiler) Dispatch(pipelineKey, mode string) {
	p.dispatches.WithLabelValues(pipelineKey, mode).Inc()
}

// SkippedDraw records a frame drawn without a render pipeline.
func (p *Profiler) SkippedDraw(pipelineKey string) {
	p.skipped.WithLabelValues(pipelineKey).Inc()
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval {
		return false
	}
	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	p.logger.Info("frame stats",
		zap.Float64("fps", fps),
		zap.Float64("heap_mb", allocMB),
		zap.Float64("alloc_rate_mb_s", allocRateMB),
		zap.Uint32("gc", gcCount),
		zap.Uint64("gc_last_us", lastPauseUs),
		zap.Uint64("gc_max_us", maxPauseUs),
		zap.Float64("sys_mb", sysMB),
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
