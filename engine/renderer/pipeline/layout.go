package pipeline

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/resource"
	"github.com/gogpu/gputypes"
)

// groupPlan is the layout of one bind group index and the slots bound in it.
type groupPlan struct {
	group   uint32
	entries []gpu.LayoutEntry
	slots   []*resource.Slot
}

// vertexFormat maps a per-vertex component count to a float vertex format.
func vertexFormat(components int) (gputypes.VertexFormat, error) {
	switch components {
	case 1:
		return gputypes.VertexFormatFloat32, nil
	case 2:
		return gputypes.VertexFormatFloat32x2, nil
	case 3:
		return gputypes.VertexFormatFloat32x3, nil
	case 4:
		return gputypes.VertexFormatFloat32x4, nil
	default:
		return 0, fmt.Errorf("%w: %d components", ErrUnsupportedAttribute, components)
	}
}

// vertexLayouts returns one buffer layout per attribute slot ordered by location, and the slots in the same order.
func vertexLayouts(slots []*resource.Slot, perInstance map[string]bool) ([]gpu.VertexBufferLayout, []*resource.Slot, error) {
	var attrs []*resource.Slot
	for _, s := range slots {
		if s.Kind == common.KindAttribute {
			attrs = append(attrs, s)
		}
	}
	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].Address.Location < attrs[j].Address.Location })

	layouts := make([]gpu.VertexBufferLayout, 0, len(attrs))
	for _, s := range attrs {
		format, err := vertexFormat(s.Shape.Components)
		if err != nil {
			return nil, nil, fmt.Errorf("attribute %q: %w", s.Key, err)
		}
		step := gputypes.VertexStepModeVertex
		if perInstance[s.Key] {
			step = gputypes.VertexStepModeInstance
		}
		layouts = append(layouts, gpu.VertexBufferLayout{
			Name: s.Key,
			VertexBufferLayout: gputypes.VertexBufferLayout{
				ArrayStride: uint64(s.Shape.Stride(common.KindAttribute) * 4),
				StepMode:    step,
				Attributes: []gputypes.VertexAttribute{{
					Format:         format,
					Offset:         0,
					ShaderLocation: s.Address.Location,
				}},
			},
		})
	}
	return layouts, attrs, nil
}

// planGroups groups uniform, texture and storage slots by their allocated group index. Every index from 0 to the
// highest one in use gets a plan so pipeline layouts have no gaps.
//
// Visibility: uniforms are visible to vertex and fragment, textures to fragment, storage buffers to compute. When a
// native compute stage exists uniforms and textures are also visible to it. Emulated storage is a float texture
// read by the vertex and fragment stages, the latter also running the emulated compute pass.
func planGroups(slots []*resource.Slot, emulated, compute bool) []groupPlan {
	byGroup := make(map[uint32]*groupPlan)
	highest := -1
	plan := func(g uint32) *groupPlan {
		gp, ok := byGroup[g]
		if !ok {
			gp = &groupPlan{group: g}
			byGroup[g] = gp
		}
		highest = max(highest, int(g))
		return gp
	}

	extra := gputypes.ShaderStages(0)
	if compute && !emulated {
		extra = gputypes.ShaderStageCompute
	}

	for _, s := range slots {
		addr := s.Address
		switch s.Kind {
		case common.KindUniform:
			gp := plan(addr.Group)
			gp.entries = append(gp.entries, gpu.LayoutEntry{
				Name: s.Key,
				BindGroupLayoutEntry: gputypes.BindGroupLayoutEntry{
					Binding:    addr.Binding,
					Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment | extra,
					Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
				},
			})
			gp.slots = append(gp.slots, s)
		case common.KindTexture:
			gp := plan(addr.Group)
			gp.entries = append(gp.entries,
				gpu.LayoutEntry{
					Name: s.Key,
					BindGroupLayoutEntry: gputypes.BindGroupLayoutEntry{
						Binding:    addr.SamplerBinding(),
						Visibility: gputypes.ShaderStageFragment | extra,
						Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
					},
				},
				gpu.LayoutEntry{
					Name: s.Key,
					BindGroupLayoutEntry: gputypes.BindGroupLayoutEntry{
						Binding:    addr.ViewBinding(),
						Visibility: gputypes.ShaderStageFragment | extra,
						Texture: &gputypes.TextureBindingLayout{
							SampleType:    gputypes.TextureSampleTypeFloat,
							ViewDimension: gputypes.TextureViewDimension2D,
						},
					},
				},
			)
			gp.slots = append(gp.slots, s)
		case common.KindStorage:
			gp := plan(addr.Group)
			entry := gputypes.BindGroupLayoutEntry{Binding: addr.Binding}
			if emulated {
				entry.Visibility = gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
				entry.Texture = &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				}
			} else {
				entry.Visibility = gputypes.ShaderStageCompute
				entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
			}
			gp.entries = append(gp.entries, gpu.LayoutEntry{Name: s.Key, BindGroupLayoutEntry: entry})
			gp.slots = append(gp.slots, s)
		}
	}

	out := make([]groupPlan, 0, highest+1)
	for g := 0; g <= highest; g++ {
		if gp, ok := byGroup[uint32(g)]; ok {
			sort.SliceStable(gp.entries, func(i, j int) bool { return gp.entries[i].Binding < gp.entries[j].Binding })
			out = append(out, *gp)
			continue
		}
		out = append(out, groupPlan{group: uint32(g)})
	}
	return out
}
