package shader

import (
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultCacheSize is the number of prepared shaders kept per compiler.
const DefaultCacheSize = 64

type cacheKey struct {
	shaderType ShaderType
	source     string
}

// compiler is the unexported implementation of Compiler.
type compiler struct {
	target gpu.Language
	logger *zap.Logger
	size   int
	cache  *lru.Cache[cacheKey, Shader]
}

// Compiler prepares shader sources for one device language and memoizes the results by source text, so rebuilding a
// pipeline whose sources did not change never reparses or retranslates them.
type Compiler interface {
	// Compile returns the prepared shader for source.
	//
	// Parameters:
	//   - key: the shader identifier used as module label on a cache miss
	//   - shaderType: the role of the source
	//   - source: WGSL or GLSL source
	//
	// Returns:
	//   - Shader: the prepared shader
	//   - error: see NewShader; failures are not cached
	Compile(key string, shaderType ShaderType, source string) (Shader, error)

	// Target returns the device language.
	Target() gpu.Language

	// Len returns the number of cached shaders.
	Len() int

	// Purge drops every cached shader.
	Purge()
}

var _ Compiler = &compiler{}

// NewCompiler creates a Compiler for devices consuming target.
//
// Parameters:
//   - target: the device language
//   - opts: builder options, see compiler_builder.go
//
// Returns:
//   - Compiler: a compiler with an empty cache
func NewCompiler(target gpu.Language, opts ...CompilerBuilderOption) Compiler {
	c := &compiler{
		target: target,
		logger: zap.NewNop(),
		size:   DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	cache, err := lru.NewWithEvict[cacheKey, Shader](c.size, func(k cacheKey, s Shader) {
		c.logger.Debug("evicted shader", zap.String("key", s.Key()), zap.Stringer("type", k.shaderType))
	})
	if err != nil {
		// only a non-positive size fails; fall back to the default
		cache, _ = lru.New[cacheKey, Shader](DefaultCacheSize)
	}
	c.cache = cache
	return c
}

func (c *compiler) Compile(key string, shaderType ShaderType, source string) (Shader, error) {
	k := cacheKey{shaderType: shaderType, source: source}
	if s, ok := c.cache.Get(k); ok {
		return s, nil
	}
	s, err := NewShader(key, shaderType, source, c.target)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, s)
	c.logger.Debug("prepared shader",
		zap.String("key", key),
		zap.Stringer("type", shaderType),
		zap.Stringer("language", c.target),
		zap.Bool("translated", s.Translated()),
	)
	return s, nil
}

func (c *compiler) Target() gpu.Language {
	return c.target
}

func (c *compiler) Len() int {
	return c.cache.Len()
}

func (c *compiler) Purge() {
	c.cache.Purge()
}
