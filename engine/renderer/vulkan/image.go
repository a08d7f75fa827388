package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

func (b *Backend) allocate(req vk.MemoryRequirements, mem gpu.MemoryUsage) (vk.DeviceMemory, error) {
	req.Deref()
	index := b.ctx.findMemoryIndex(req.MemoryTypeBits, vkMemoryProperties(mem))
	if index < 0 && mem == gpu.MemoryGPUToCPU {
		// Host cached memory is optional.
		index = b.ctx.findMemoryIndex(req.MemoryTypeBits, vkMemoryProperties(gpu.MemoryCPUOnly))
	}
	if index < 0 {
		return nil, errors.Wrapf(gpu.ErrOutOfDeviceMemory, "no memory type for usage %d", mem)
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if err := resultError(vk.AllocateMemory(b.ctx.device, &info, b.ctx.allocator, &memory), "allocate memory"); err != nil {
		return nil, err
	}
	return memory, nil
}

// CreateBuffer allocates dedicated memory for the buffer. Host visible
// buffers stay persistently mapped until destroyed.
func (b *Backend) CreateBuffer(info gpu.BufferInfo) (gpu.AllocatedBuffer, error) {
	if info.Size == 0 {
		return gpu.AllocatedBuffer{}, errors.New("create buffer: zero size")
	}
	create := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vkBufferUsage(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if err := resultError(vk.CreateBuffer(b.ctx.device, &create, b.ctx.allocator, &handle), "create buffer"); err != nil {
		return gpu.AllocatedBuffer{}, err
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.ctx.device, handle, &req)
	memory, err := b.allocate(req, info.Memory)
	if err != nil {
		vk.DestroyBuffer(b.ctx.device, handle, b.ctx.allocator)
		return gpu.AllocatedBuffer{}, errors.Wrapf(err, "buffer %q", info.Label)
	}
	if err := resultError(vk.BindBufferMemory(b.ctx.device, handle, memory, 0), "bind buffer memory"); err != nil {
		vk.FreeMemory(b.ctx.device, memory, b.ctx.allocator)
		vk.DestroyBuffer(b.ctx.device, handle, b.ctx.allocator)
		return gpu.AllocatedBuffer{}, err
	}

	buf := buffer{handle: handle, memory: memory, size: info.Size}
	if info.Memory.HostVisible() {
		var ptr unsafe.Pointer
		if err := resultError(vk.MapMemory(b.ctx.device, memory, 0, vk.DeviceSize(info.Size), 0, &ptr), "map memory"); err != nil {
			vk.FreeMemory(b.ctx.device, memory, b.ctx.allocator)
			vk.DestroyBuffer(b.ctx.device, handle, b.ctx.allocator)
			return gpu.AllocatedBuffer{}, err
		}
		buf.mapped = ptr
	}

	return gpu.AllocatedBuffer{
		Buffer: gpu.Buffer{Handle: insert(b, b.buffers, buf)},
		Size:   info.Size,
		Usage:  info.Usage,
		Memory: info.Memory,
		Label:  info.Label,
	}, nil
}

func (b *Backend) DestroyBuffer(ab gpu.AllocatedBuffer) {
	buf, ok := remove(b, b.buffers, ab.Buffer.Handle)
	if !ok {
		warnUnknown("destroy buffer", gpu.KindBuffer, ab.Buffer.Handle)
		return
	}
	if buf.mapped != nil {
		vk.UnmapMemory(b.ctx.device, buf.memory)
	}
	vk.DestroyBuffer(b.ctx.device, buf.handle, b.ctx.allocator)
	vk.FreeMemory(b.ctx.device, buf.memory, b.ctx.allocator)
}

func (b *Backend) WriteBuffer(ab gpu.AllocatedBuffer, offset uint64, data []byte) error {
	buf, ok := lookup(b, b.buffers, ab.Buffer.Handle)
	if !ok {
		return unknown(gpu.KindBuffer, ab.Buffer.Handle)
	}
	if buf.mapped == nil {
		return errors.Newf("write buffer %q: not host visible", ab.Label)
	}
	if offset+uint64(len(data)) > buf.size {
		return errors.Newf("write buffer %q: %d bytes at %d overflow size %d", ab.Label, len(data), offset, buf.size)
	}
	vk.Memcopy(unsafe.Add(buf.mapped, offset), data)
	return nil
}

// CreateImage creates an optimal tiled 2D image in device local memory
// together with a view covering all mip levels.
func (b *Backend) CreateImage(info gpu.ImageInfo) (gpu.AllocatedImage, error) {
	mips := max(info.MipLevels, 1)
	create := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vkFormat(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  max(info.Extent.Depth, 1),
		},
		MipLevels:     mips,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vkImageUsage(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	if err := resultError(vk.CreateImage(b.ctx.device, &create, b.ctx.allocator, &handle), "create image"); err != nil {
		return gpu.AllocatedImage{}, errors.Wrapf(err, "image %q", info.Label)
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(b.ctx.device, handle, &req)
	memory, err := b.allocate(req, gpu.MemoryGPUOnly)
	if err != nil {
		vk.DestroyImage(b.ctx.device, handle, b.ctx.allocator)
		return gpu.AllocatedImage{}, errors.Wrapf(err, "image %q", info.Label)
	}
	if err := resultError(vk.BindImageMemory(b.ctx.device, handle, memory, 0), "bind image memory"); err != nil {
		vk.FreeMemory(b.ctx.device, memory, b.ctx.allocator)
		vk.DestroyImage(b.ctx.device, handle, b.ctx.allocator)
		return gpu.AllocatedImage{}, err
	}

	img := gpu.Image{Handle: insert(b, b.images, image{
		handle:    handle,
		memory:    memory,
		owned:     true,
		format:    info.Format,
		mipLevels: mips,
	})}
	view, err := b.CreateImageView(img, info.Format, aspectOf(info.Format))
	if err != nil {
		b.destroyImage(img)
		return gpu.AllocatedImage{}, err
	}
	return gpu.AllocatedImage{
		Image:     img,
		View:      view,
		Extent:    info.Extent,
		Format:    info.Format,
		Usage:     info.Usage,
		MipLevels: mips,
		Label:     info.Label,
	}, nil
}

func (b *Backend) DestroyImage(ai gpu.AllocatedImage) {
	if !ai.View.IsNull() {
		b.DestroyImageView(ai.View)
	}
	b.destroyImage(ai.Image)
}

func (b *Backend) destroyImage(img gpu.Image) {
	im, ok := remove(b, b.images, img.Handle)
	if !ok {
		warnUnknown("destroy image", gpu.KindImage, img.Handle)
		return
	}
	if !im.owned {
		core.LogWarn("destroy image: %s belongs to a swapchain", img.Handle)
		return
	}
	vk.DestroyImage(b.ctx.device, im.handle, b.ctx.allocator)
	vk.FreeMemory(b.ctx.device, im.memory, b.ctx.allocator)
}

func (b *Backend) CreateImageView(img gpu.Image, format gpu.Format, aspect gpu.ImageAspect) (gpu.ImageView, error) {
	im, ok := lookup(b, b.images, img.Handle)
	if !ok {
		return gpu.ImageView{}, unknown(gpu.KindImage, img.Handle)
	}
	info := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            im.handle,
		ViewType:         vk.ImageViewType2d,
		Format:           vkFormat(format),
		SubresourceRange: subresourceRange(aspect, 0, im.mipLevels),
	}
	info.SubresourceRange.LayerCount = 1
	var view vk.ImageView
	if err := resultError(vk.CreateImageView(b.ctx.device, &info, b.ctx.allocator, &view), "create image view"); err != nil {
		return gpu.ImageView{}, err
	}
	return gpu.ImageView{Handle: insert(b, b.views, view)}, nil
}

func (b *Backend) DestroyImageView(v gpu.ImageView) {
	view, ok := remove(b, b.views, v.Handle)
	if !ok {
		warnUnknown("destroy image view", gpu.KindImageView, v.Handle)
		return
	}
	vk.DestroyImageView(b.ctx.device, view, b.ctx.allocator)
}
