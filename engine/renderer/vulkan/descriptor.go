package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

// CreateDescriptorPool sizes each descriptor type as ratio * maxSets.
func (b *Backend) CreateDescriptorPool(maxSets uint32, ratios []gpu.PoolSizeRatio) (gpu.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, 0, len(ratios))
	for _, r := range ratios {
		count := uint32(r.Ratio * float32(maxSets))
		if count == 0 {
			continue
		}
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            vkDescriptorType(r.Type),
			DescriptorCount: count,
		})
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if err := resultError(vk.CreateDescriptorPool(b.ctx.device, &info, b.ctx.allocator, &pool), "create descriptor pool"); err != nil {
		return gpu.DescriptorPool{}, err
	}
	return gpu.DescriptorPool{Handle: insert(b, b.descriptorPools, pool)}, nil
}

// forgetSets drops the table entries of every set allocated from p. The
// caller holds b.mu.
func (b *Backend) forgetSets(p gpu.DescriptorPool) {
	var stale []gpu.Handle
	b.sets.Each(func(id, gen uint32, s descriptorSet) {
		if s.pool == p {
			stale = append(stale, gpu.Handle{ID: id, Generation: gen})
		}
	})
	for _, h := range stale {
		b.sets.Remove(h.ID, h.Generation)
	}
}

func (b *Backend) ResetDescriptorPool(p gpu.DescriptorPool) error {
	b.mu.Lock()
	pool, ok := b.descriptorPools.Get(p.ID, p.Generation)
	if ok {
		b.forgetSets(p)
	}
	b.mu.Unlock()
	if !ok {
		return unknown(gpu.KindDescriptorPool, p.Handle)
	}
	return resultError(vk.ResetDescriptorPool(b.ctx.device, pool, 0), "reset descriptor pool")
}

func (b *Backend) DestroyDescriptorPool(p gpu.DescriptorPool) {
	b.mu.Lock()
	pool, ok := b.descriptorPools.Remove(p.ID, p.Generation)
	if ok {
		b.forgetSets(p)
	}
	b.mu.Unlock()
	if !ok {
		warnUnknown("destroy descriptor pool", gpu.KindDescriptorPool, p.Handle)
		return
	}
	vk.DestroyDescriptorPool(b.ctx.device, pool, b.ctx.allocator)
}

// AllocateDescriptorSet returns gpu.ErrOutOfPoolMemory or
// gpu.ErrFragmentedPool when the pool is exhausted.
func (b *Backend) AllocateDescriptorSet(p gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	pool, ok := lookup(b, b.descriptorPools, p.Handle)
	if !ok {
		return gpu.DescriptorSet{}, unknown(gpu.KindDescriptorPool, p.Handle)
	}
	l, ok := lookup(b, b.layouts, layout.Handle)
	if !ok {
		return gpu.DescriptorSet{}, unknown(gpu.KindDescriptorSetLayout, layout.Handle)
	}
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l},
	}
	var set vk.DescriptorSet
	if err := resultError(vk.AllocateDescriptorSets(b.ctx.device, &info, &set), "allocate descriptor set"); err != nil {
		return gpu.DescriptorSet{}, err
	}
	return gpu.DescriptorSet{Handle: insert(b, b.sets, descriptorSet{handle: set, pool: p})}, nil
}

func (b *Backend) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, bd := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         bd.Binding,
			DescriptorType:  vkDescriptorType(bd.Type),
			DescriptorCount: max(bd.Count, 1),
			StageFlags:      vkShaderStages(bd.Stages),
		}
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var layout vk.DescriptorSetLayout
	if err := resultError(vk.CreateDescriptorSetLayout(b.ctx.device, &info, b.ctx.allocator, &layout), "create descriptor set layout"); err != nil {
		return gpu.DescriptorSetLayout{}, err
	}
	return gpu.DescriptorSetLayout{Handle: insert(b, b.layouts, layout)}, nil
}

func (b *Backend) DestroyDescriptorSetLayout(l gpu.DescriptorSetLayout) {
	layout, ok := remove(b, b.layouts, l.Handle)
	if !ok {
		warnUnknown("destroy descriptor set layout", gpu.KindDescriptorSetLayout, l.Handle)
		return
	}
	vk.DestroyDescriptorSetLayout(b.ctx.device, layout, b.ctx.allocator)
}

// UpdateDescriptorSet applies writes in one call. Combined image samplers
// use the backend's linear repeat sampler.
func (b *Backend) UpdateDescriptorSet(set gpu.DescriptorSet, writes []gpu.DescriptorWrite) {
	s, ok := lookup(b, b.sets, set.Handle)
	if !ok {
		warnUnknown("update descriptor set", gpu.KindDescriptorSet, set.Handle)
		return
	}
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.handle,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  vkDescriptorType(w.Type),
		}
		switch w.Type {
		case gpu.DescriptorUniformBuffer, gpu.DescriptorStorageBuffer:
			buf, ok := lookup(b, b.buffers, w.Buffer.Handle)
			if !ok {
				warnUnknown("update descriptor set", gpu.KindBuffer, w.Buffer.Handle)
				continue
			}
			rng := w.Range
			if rng == 0 {
				rng = buf.size - w.Offset
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(rng),
			}}
		default:
			info := vk.DescriptorImageInfo{ImageLayout: vkLayout(w.Layout)}
			if w.Type != gpu.DescriptorSampler {
				view, ok := lookup(b, b.views, w.ImageView.Handle)
				if !ok {
					warnUnknown("update descriptor set", gpu.KindImageView, w.ImageView.Handle)
					continue
				}
				info.ImageView = view
			}
			if w.Type == gpu.DescriptorSampler || w.Type == gpu.DescriptorCombinedImageSampler {
				info.Sampler = b.sampler
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		}
		vkWrites = append(vkWrites, write)
	}
	if len(vkWrites) > 0 {
		vk.UpdateDescriptorSets(b.ctx.device, uint32(len(vkWrites)), vkWrites, 0, nil)
	}
}
