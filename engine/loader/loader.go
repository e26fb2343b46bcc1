package loader

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-bind/common"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	workers int
	pool    worker.DynamicWorkerPool
	logger  *zap.Logger

	textureCache map[string]common.TextureStagingData
}

// Loader decodes images into texture staging data ready for Engine.Texture and caches them by path.
// Decoding runs on a worker pool so several large images load in parallel before mount.
type Loader interface {
	// Load decodes the image at path, or returns the cached result.
	//
	// Parameters:
	//   - path: the file path of a PNG, JPEG, BMP or WebP image
	//
	// Returns:
	//   - common.TextureStagingData: the RGBA pixels
	//   - error: error if reading or decoding fails
	Load(path string) (common.TextureStagingData, error)

	// LoadAll decodes every path on the worker pool. The result is in path order.
	//
	// Returns:
	//   - []common.TextureStagingData: the decoded textures; nil when any path failed
	//   - error: every failure combined
	LoadAll(paths ...string) ([]common.TextureStagingData, error)

	// LoadReader decodes an image from r and caches it under name.
	LoadReader(name string, r io.Reader) (common.TextureStagingData, error)

	// Get retrieves a cached texture.
	Get(name string) (common.TextureStagingData, bool)

	// Textures returns a copy of the texture cache.
	Textures() map[string]common.TextureStagingData

	// Close stops the worker pool. The cache stays readable.
	Close()
}

var _ Loader = &loader{}

// NewLoader creates a new Loader with the given options applied.
// The pool defaults to one worker per CPU.
//
// Parameters:
//   - options: LoaderBuilderOption values
//
// Returns:
//   - Loader: the loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		workers:      runtime.NumCPU(),
		logger:       zap.NewNop(),
		textureCache: make(map[string]common.TextureStagingData),
	}
	for _, opt := range options {
		opt(l)
	}
	l.pool = worker.NewDynamicWorkerPool(l.workers, 64, time.Second)
	return l
}

func (l *loader) Load(path string) (common.TextureStagingData, error) {
	if tex, ok := l.Get(path); ok {
		return tex, nil
	}
	tex, err := common.LoadTexture(nil, path)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("failed to load %s: %w", path, err)
	}
	l.store(path, tex)
	return tex, nil
}

func (l *loader) LoadAll(paths ...string) ([]common.TextureStagingData, error) {
	textures := make([]common.TextureStagingData, len(paths))
	errs := make([]error, len(paths))

	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		l.pool.SubmitTask(worker.Task{
			ID:      i,
			Payload: path,
			Do: func() (any, error) {
				defer wg.Done()
				textures[i], errs[i] = l.Load(path)
				return nil, errs[i]
			},
		})
	}
	wg.Wait()

	if err := multierr.Combine(errs...); err != nil {
		return nil, err
	}
	l.logger.Debug("loaded textures", zap.Int("count", len(paths)))
	return textures, nil
}

func (l *loader) LoadReader(name string, r io.Reader) (common.TextureStagingData, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) == 0 {
		return common.TextureStagingData{}, fmt.Errorf("failed to read %s: empty image", name)
	}
	tex, err := common.LoadTexture(data, name)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	l.store(name, tex)
	return tex, nil
}

func (l *loader) store(name string, tex common.TextureStagingData) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.textureCache[name] = tex
}

func (l *loader) Get(name string) (common.TextureStagingData, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tex, ok := l.textureCache[name]
	return tex, ok
}

func (l *loader) Textures() map[string]common.TextureStagingData {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]common.TextureStagingData, len(l.textureCache))
	for k, v := range l.textureCache {
		out[k] = v
	}
	return out
}

func (l *loader) Close() {
	l.pool.Stop()
}
