package allocator

import "github.com/Carmen-Shannon/oxy-bind/common"

// DefaultWorkgroupSize is used when the compute entry point does not declare one.
const DefaultWorkgroupSize = 64

// WorkgroupCount returns the dispatch size covering every element of domain.
//
// The element count is divided by workgroupSize (rounded up) and dispatched along X. When that exceeds
// maxPerDimension the overflow is folded into Y, both capped at maxPerDimension. A maxPerDimension of 0 means
// unlimited.
//
// Parameters:
//   - domain: the element domain
//   - workgroupSize: invocations per workgroup, DefaultWorkgroupSize when 0
//   - maxPerDimension: the device per-dimension dispatch limit
//
// Returns:
//   - [3]uint32: workgroups along X, Y and Z; zero in X for an empty domain
func WorkgroupCount(domain common.Domain, workgroupSize, maxPerDimension uint32) [3]uint32 {
	if workgroupSize == 0 {
		workgroupSize = DefaultWorkgroupSize
	}
	count := domain.Count()
	if count <= 0 {
		return [3]uint32{0, 1, 1}
	}
	n := uint64(common.CeilDiv(count, int(workgroupSize)))
	if maxPerDimension == 0 || n <= uint64(maxPerDimension) {
		return [3]uint32{uint32(n), 1, 1}
	}
	limit := uint64(maxPerDimension)
	y := min((n+limit-1)/limit, limit)
	return [3]uint32{maxPerDimension, uint32(y), 1}
}
