package common

// ResourceKind classifies a named shader resource. The order is significant: it is the band order used when
// several kinds open their first bind group in the same frame.
type ResourceKind int

const (
	// KindUniform is a small read-only value block bound as a uniform buffer.
	KindUniform ResourceKind = iota
	// KindTexture is a sampled RGBA8 image occupying a sampler and a view binding.
	KindTexture
	// KindStorage is persistent read-write data written by the compute stage.
	KindStorage
	// KindAttribute is per-vertex data addressed by location instead of (group, binding).
	KindAttribute
)

func (k ResourceKind) String() string {
	switch k {
	case KindUniform:
		return "uniform"
	case KindTexture:
		return "texture"
	case KindStorage:
		return "storage"
	case KindAttribute:
		return "attribute"
	default:
		return "unknown"
	}
}
