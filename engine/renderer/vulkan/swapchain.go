package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

func (b *Backend) SurfaceCapabilities() (gpu.SurfaceCapabilities, error) {
	physical, surface := b.ctx.physical, b.ctx.surface

	var caps vk.SurfaceCapabilities
	if err := resultError(vk.GetPhysicalDeviceSurfaceCapabilities(physical, surface, &caps), "surface capabilities"); err != nil {
		return gpu.SurfaceCapabilities{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	out := gpu.SurfaceCapabilities{
		MinImageCount: caps.MinImageCount,
		MaxImageCount: caps.MaxImageCount,
		CurrentExtent: gpuExtent2D(caps.CurrentExtent),
		MinExtent:     gpuExtent2D(caps.MinImageExtent),
		MaxExtent:     gpuExtent2D(caps.MaxImageExtent),
	}

	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &count, nil)
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &count, formats)
	for i := range formats {
		formats[i].Deref()
		f := gpuFormat(formats[i].Format)
		if f == gpu.FormatUndefined {
			continue
		}
		cs := gpu.ColorSpaceOther
		if formats[i].ColorSpace == vk.ColorSpaceSrgbNonlinear {
			cs = gpu.ColorSpaceSRGBNonlinear
		}
		out.Formats = append(out.Formats, gpu.SurfaceFormat{Format: f, ColorSpace: cs})
	}

	count = 0
	vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &count, nil)
	modes := make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &count, modes)
	for _, m := range modes {
		if pm, ok := gpuPresentMode(m); ok {
			out.PresentModes = append(out.PresentModes, pm)
		}
	}
	return out, nil
}

// CreateSwapchain creates a swapchain whose images can be blitted into.
// The images are registered as handles that only the swapchain releases.
func (b *Backend) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	var caps vk.SurfaceCapabilities
	if err := resultError(vk.GetPhysicalDeviceSurfaceCapabilities(b.ctx.physical, b.ctx.surface, &caps), "surface capabilities"); err != nil {
		return gpu.Swapchain{}, err
	}
	caps.Deref()

	colorSpace := vk.ColorSpaceSrgbNonlinear
	create := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          b.ctx.surface,
		MinImageCount:    info.ImageCount,
		ImageFormat:      vkFormat(info.Format.Format),
		ImageColorSpace:  colorSpace,
		ImageExtent:      vkExtent2D(info.Extent),
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vkPresentMode(info.PresentMode),
		Clipped:          vk.True,
	}
	if b.ctx.graphicsFamily != b.ctx.presentFamily {
		create.ImageSharingMode = vk.SharingModeConcurrent
		create.QueueFamilyIndexCount = 2
		create.PQueueFamilyIndices = []uint32{b.ctx.graphicsFamily, b.ctx.presentFamily}
	} else {
		create.ImageSharingMode = vk.SharingModeExclusive
	}
	if !info.Old.IsNull() {
		if old, ok := lookup(b, b.swapchains, info.Old.Handle); ok {
			create.OldSwapchain = old.handle
		}
	}

	var handle vk.Swapchain
	if err := resultError(vk.CreateSwapchain(b.ctx.device, &create, b.ctx.allocator, &handle), "create swapchain"); err != nil {
		return gpu.Swapchain{}, err
	}

	var count uint32
	if err := resultError(vk.GetSwapchainImages(b.ctx.device, handle, &count, nil), "get swapchain images"); err != nil {
		vk.DestroySwapchain(b.ctx.device, handle, b.ctx.allocator)
		return gpu.Swapchain{}, err
	}
	vkImages := make([]vk.Image, count)
	if err := resultError(vk.GetSwapchainImages(b.ctx.device, handle, &count, vkImages), "get swapchain images"); err != nil {
		vk.DestroySwapchain(b.ctx.device, handle, b.ctx.allocator)
		return gpu.Swapchain{}, err
	}

	sc := swapchain{handle: handle, format: info.Format.Format, extent: info.Extent}
	for _, img := range vkImages {
		sc.images = append(sc.images, gpu.Image{Handle: insert(b, b.images, image{
			handle:    img,
			format:    info.Format.Format,
			mipLevels: 1,
		})})
	}
	core.LogDebug("Swapchain created: %dx%d, %d images.", info.Extent.Width, info.Extent.Height, count)
	return gpu.Swapchain{Handle: insert(b, b.swapchains, sc)}, nil
}

func (b *Backend) SwapchainImages(s gpu.Swapchain) ([]gpu.Image, error) {
	sc, ok := lookup(b, b.swapchains, s.Handle)
	if !ok {
		return nil, unknown(gpu.KindSwapchain, s.Handle)
	}
	return append([]gpu.Image(nil), sc.images...), nil
}

// DestroySwapchain releases the swapchain and its image handles. Views
// created on those images must be destroyed first.
func (b *Backend) DestroySwapchain(s gpu.Swapchain) {
	b.mu.Lock()
	sc, ok := b.swapchains.Remove(s.ID, s.Generation)
	if ok {
		for _, img := range sc.images {
			b.images.Remove(img.ID, img.Generation)
		}
	}
	b.mu.Unlock()
	if !ok {
		warnUnknown("destroy swapchain", gpu.KindSwapchain, s.Handle)
		return
	}
	vk.DestroySwapchain(b.ctx.device, sc.handle, b.ctx.allocator)
}

// AcquireNextImage returns gpu.ErrOutOfDate when the swapchain must be
// rebuilt. Suboptimal acquires still return a usable index along with
// gpu.ErrSuboptimal.
func (b *Backend) AcquireNextImage(s gpu.Swapchain, timeout time.Duration, sem gpu.Semaphore) (uint32, error) {
	sc, ok := lookup(b, b.swapchains, s.Handle)
	if !ok {
		return 0, unknown(gpu.KindSwapchain, s.Handle)
	}
	semaphore, ok := lookup(b, b.semaphores, sem.Handle)
	if !ok {
		return 0, unknown(gpu.KindSemaphore, sem.Handle)
	}
	var index uint32
	res := vk.AcquireNextImage(b.ctx.device, sc.handle, timeoutNs(timeout), semaphore, nil, &index)
	return index, resultError(res, "acquire next image")
}

func (b *Backend) Present(s gpu.Swapchain, image uint32, wait gpu.Semaphore) error {
	sc, ok := lookup(b, b.swapchains, s.Handle)
	if !ok {
		return unknown(gpu.KindSwapchain, s.Handle)
	}
	semaphore, ok := lookup(b, b.semaphores, wait.Handle)
	if !ok {
		return unknown(gpu.KindSemaphore, wait.Handle)
	}
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{semaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{image},
	}
	res := b.queues.call(b.ctx.presentFamily, b.ctx.presentQueue, func(q vk.Queue) vk.Result {
		return vk.QueuePresent(q, &info)
	})
	return resultError(res, "present")
}
