package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

func (b *Backend) CreateCommandPool() (gpu.CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: b.ctx.graphicsFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := resultError(vk.CreateCommandPool(b.ctx.device, &info, b.ctx.allocator, &pool), "create command pool"); err != nil {
		return gpu.CommandPool{}, err
	}
	return gpu.CommandPool{Handle: insert(b, b.commandPools, pool)}, nil
}

// DestroyCommandPool frees the pool and every command buffer allocated
// from it.
func (b *Backend) DestroyCommandPool(p gpu.CommandPool) {
	b.mu.Lock()
	pool, ok := b.commandPools.Remove(p.ID, p.Generation)
	if ok {
		var children []gpu.Handle
		b.commandBuffers.Each(func(id, gen uint32, cb commandBuffer) {
			if cb.pool == p {
				children = append(children, gpu.Handle{ID: id, Generation: gen})
			}
		})
		for _, h := range children {
			b.commandBuffers.Remove(h.ID, h.Generation)
		}
	}
	b.mu.Unlock()
	if !ok {
		warnUnknown("destroy command pool", gpu.KindCommandPool, p.Handle)
		return
	}
	vk.DestroyCommandPool(b.ctx.device, pool, b.ctx.allocator)
}

func (b *Backend) AllocateCommandBuffer(p gpu.CommandPool) (gpu.CommandBuffer, error) {
	pool, ok := lookup(b, b.commandPools, p.Handle)
	if !ok {
		return gpu.CommandBuffer{}, unknown(gpu.KindCommandPool, p.Handle)
	}
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := resultError(vk.AllocateCommandBuffers(b.ctx.device, &info, handles), "allocate command buffer"); err != nil {
		return gpu.CommandBuffer{}, err
	}
	h := insert(b, b.commandBuffers, commandBuffer{handle: handles[0], pool: p})
	return gpu.CommandBuffer{Handle: h}, nil
}

func (b *Backend) commandBuffer(cb gpu.CommandBuffer) (vk.CommandBuffer, bool) {
	c, ok := lookup(b, b.commandBuffers, cb.Handle)
	return c.handle, ok
}

func (b *Backend) ResetCommandBuffer(cb gpu.CommandBuffer) error {
	handle, ok := b.commandBuffer(cb)
	if !ok {
		return unknown(gpu.KindCommandBuffer, cb.Handle)
	}
	return resultError(vk.ResetCommandBuffer(handle, 0), "reset command buffer")
}

func (b *Backend) BeginCommandBuffer(cb gpu.CommandBuffer, oneTime bool) error {
	handle, ok := b.commandBuffer(cb)
	if !ok {
		return unknown(gpu.KindCommandBuffer, cb.Handle)
	}
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTime {
		info.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return resultError(vk.BeginCommandBuffer(handle, &info), "begin command buffer")
}

func (b *Backend) EndCommandBuffer(cb gpu.CommandBuffer) error {
	handle, ok := b.commandBuffer(cb)
	if !ok {
		return unknown(gpu.KindCommandBuffer, cb.Handle)
	}
	return resultError(vk.EndCommandBuffer(handle), "end command buffer")
}

// Submit queues one command buffer on the graphics queue. Wait, Signal and
// Fence are optional.
func (b *Backend) Submit(info gpu.SubmitInfo) error {
	handle, ok := b.commandBuffer(info.CommandBuffer)
	if !ok {
		return unknown(gpu.KindCommandBuffer, info.CommandBuffer.Handle)
	}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{handle},
	}
	if !info.Wait.IsNull() {
		sem, ok := lookup(b, b.semaphores, info.Wait.Handle)
		if !ok {
			return unknown(gpu.KindSemaphore, info.Wait.Handle)
		}
		submit.WaitSemaphoreCount = 1
		submit.PWaitSemaphores = []vk.Semaphore{sem}
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{vkPipelineStage(info.WaitStage)}
	}
	if !info.Signal.IsNull() {
		sem, ok := lookup(b, b.semaphores, info.Signal.Handle)
		if !ok {
			return unknown(gpu.KindSemaphore, info.Signal.Handle)
		}
		submit.SignalSemaphoreCount = 1
		submit.PSignalSemaphores = []vk.Semaphore{sem}
	}
	var fence vk.Fence
	if !info.Fence.IsNull() {
		f, ok := lookup(b, b.fences, info.Fence.Handle)
		if !ok {
			return unknown(gpu.KindFence, info.Fence.Handle)
		}
		fence = f
	}
	res := b.queues.call(b.ctx.graphicsFamily, b.ctx.graphicsQueue, func(q vk.Queue) vk.Result {
		return vk.QueueSubmit(q, 1, []vk.SubmitInfo{submit}, fence)
	})
	return resultError(res, "queue submit")
}

// remainingLevels matches VK_REMAINING_MIP_LEVELS and VK_REMAINING_ARRAY_LAYERS.
const remainingLevels = ^uint32(0)

func subresourceRange(aspect gpu.ImageAspect, baseMip, levels uint32) vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vkAspect(aspect),
		BaseMipLevel:   baseMip,
		LevelCount:     levels,
		BaseArrayLayer: 0,
		LayerCount:     remainingLevels,
	}
}

func subresourceLayers(aspect gpu.ImageAspect, mip uint32) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask:     vkAspect(aspect),
		MipLevel:       mip,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

// CmdTransitionImage records a full barrier over every mip level. It is
// coarse on purpose: passes in this engine are few and transfer heavy.
func (b *Backend) CmdTransitionImage(cb gpu.CommandBuffer, img gpu.Image, from, to gpu.ImageLayout) {
	handle, ok := b.commandBuffer(cb)
	if !ok {
		warnUnknown("transition image", gpu.KindCommandBuffer, cb.Handle)
		return
	}
	im, ok := lookup(b, b.images, img.Handle)
	if !ok {
		warnUnknown("transition image", gpu.KindImage, img.Handle)
		return
	}
	aspect := gpu.AspectColor
	if to == gpu.ImageLayoutDepthAttachment || im.format.IsDepth() {
		aspect = gpu.AspectDepth
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit | vk.AccessMemoryReadBit),
		OldLayout:           vkLayout(from),
		NewLayout:           vkLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               im.handle,
		SubresourceRange:    subresourceRange(aspect, 0, remainingLevels),
	}
	stages := vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	vk.CmdPipelineBarrier(handle, stages, stages, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (b *Backend) CmdClearColor(cb gpu.CommandBuffer, img gpu.Image, layout gpu.ImageLayout, color [4]float32) {
	handle, ok := b.commandBuffer(cb)
	if !ok {
		warnUnknown("clear color", gpu.KindCommandBuffer, cb.Handle)
		return
	}
	im, ok := lookup(b, b.images, img.Handle)
	if !ok {
		warnUnknown("clear color", gpu.KindImage, img.Handle)
		return
	}
	clear := vk.NewClearValue(color[:])
	ranges := []vk.ImageSubresourceRange{subresourceRange(gpu.AspectColor, 0, remainingLevels)}
	vk.CmdClearColorImage(handle, im.handle, vkLayout(layout), (*vk.ClearColorValue)(unsafe.Pointer(&clear)), 1, ranges)
}

func (b *Backend) CmdCopyBuffer(cb gpu.CommandBuffer, src, dst gpu.Buffer, regions ...gpu.BufferCopy) {
	handle, ok := b.commandBuffer(cb)
	if !ok {
		warnUnknown("copy buffer", gpu.KindCommandBuffer, cb.Handle)
		return
	}
	s, sok := lookup(b, b.buffers, src.Handle)
	d, dok := lookup(b, b.buffers, dst.Handle)
	if !sok || !dok {
		warnUnknown("copy buffer", gpu.KindBuffer, src.Handle)
		return
	}
	if len(regions) == 0 {
		size := s.size
		if d.size < size {
			size = d.size
		}
		regions = []gpu.BufferCopy{{Size: size}}
	}
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(handle, s.handle, d.handle, uint32(len(copies)), copies)
}

// CmdCopyBufferToImage copies tightly packed pixels into mip level 0. The
// image must be in the transfer-dst layout.
func (b *Backend) CmdCopyBufferToImage(cb gpu.CommandBuffer, src gpu.Buffer, dst gpu.Image, extent gpu.Extent3D) {
	handle, ok := b.commandBuffer(cb)
	if !ok {
		warnUnknown("copy buffer to image", gpu.KindCommandBuffer, cb.Handle)
		return
	}
	s, ok := lookup(b, b.buffers, src.Handle)
	if !ok {
		warnUnknown("copy buffer to image", gpu.KindBuffer, src.Handle)
		return
	}
	im, ok := lookup(b, b.images, dst.Handle)
	if !ok {
		warnUnknown("copy buffer to image", gpu.KindImage, dst.Handle)
		return
	}
	region := vk.BufferImageCopy{
		ImageSubresource: subresourceLayers(aspectOf(im.format), 0),
		ImageExtent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  max(extent.Depth, 1),
		},
	}
	vk.CmdCopyBufferToImage(handle, s.handle, im.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func blitOffsets(r gpu.Rect2D) [2]vk.Offset3D {
	return [2]vk.Offset3D{
		{X: r.X, Y: r.Y, Z: 0},
		{X: r.X + int32(r.Extent.Width), Y: r.Y + int32(r.Extent.Height), Z: 1},
	}
}

// CmdBlitImage scales srcRegion of src (transfer-src) onto dstRegion of dst
// (transfer-dst) with linear filtering.
func (b *Backend) CmdBlitImage(cb gpu.CommandBuffer, src, dst gpu.Image, srcRegion, dstRegion gpu.Rect2D) {
	handle, ok := b.commandBuffer(cb)
	if !ok {
		warnUnknown("blit image", gpu.KindCommandBuffer, cb.Handle)
		return
	}
	s, sok := lookup(b, b.images, src.Handle)
	d, dok := lookup(b, b.images, dst.Handle)
	if !sok || !dok {
		warnUnknown("blit image", gpu.KindImage, src.Handle)
		return
	}
	blit := vk.ImageBlit{
		SrcSubresource: subresourceLayers(gpu.AspectColor, 0),
		SrcOffsets:     blitOffsets(srcRegion),
		DstSubresource: subresourceLayers(gpu.AspectColor, 0),
		DstOffsets:     blitOffsets(dstRegion),
	}
	vk.CmdBlitImage(handle, s.handle, vk.ImageLayoutTransferSrcOptimal, d.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageBlit{blit}, vk.FilterLinear)
}

// CmdGenerateMipmaps expects every level in transfer-dst and leaves every
// level in shader-read-only.
func (b *Backend) CmdGenerateMipmaps(cb gpu.CommandBuffer, img gpu.Image, extent gpu.Extent2D, mipLevels uint32) {
	handle, ok := b.commandBuffer(cb)
	if !ok {
		warnUnknown("generate mipmaps", gpu.KindCommandBuffer, cb.Handle)
		return
	}
	im, ok := lookup(b, b.images, img.Handle)
	if !ok {
		warnUnknown("generate mipmaps", gpu.KindImage, img.Handle)
		return
	}
	barrier := func(mip uint32, from, to vk.ImageLayout) {
		bar := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit),
			DstAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit | vk.AccessMemoryReadBit),
			OldLayout:           from,
			NewLayout:           to,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               im.handle,
			SubresourceRange:    subresourceRange(gpu.AspectColor, mip, 1),
		}
		stages := vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
		vk.CmdPipelineBarrier(handle, stages, stages, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{bar})
	}

	size := extent
	for mip := uint32(0); mip < mipLevels; mip++ {
		half := gpu.Extent2D{Width: max(size.Width/2, 1), Height: max(size.Height/2, 1)}
		barrier(mip, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal)
		if mip+1 < mipLevels {
			blit := vk.ImageBlit{
				SrcSubresource: subresourceLayers(gpu.AspectColor, mip),
				SrcOffsets:     blitOffsets(gpu.Rect2D{Extent: size}),
				DstSubresource: subresourceLayers(gpu.AspectColor, mip+1),
				DstOffsets:     blitOffsets(gpu.Rect2D{Extent: half}),
			}
			vk.CmdBlitImage(handle, im.handle, vk.ImageLayoutTransferSrcOptimal, im.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageBlit{blit}, vk.FilterLinear)
		}
		barrier(mip, vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
		size = half
	}
	if mipLevels != im.mipLevels {
		core.LogDebug("generate mipmaps: %d of %d levels", mipLevels, im.mipLevels)
	}
}
