package gputest

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

type swapchain struct {
	info   gpu.SwapchainInfo
	images []gpu.Image
	next   uint32
}

// SetExtent simulates the window being resized. The current swapchain
// reports out of date on its next acquire.
func (d *Device) SetExtent(extent gpu.Extent2D) {
	d.mu.Lock()
	d.extent = extent
	d.mu.Unlock()
}

// FailAcquire queues errors for the next acquires, one per call.
func (d *Device) FailAcquire(errs ...error) {
	d.mu.Lock()
	d.failAcquire = append(d.failAcquire, errs...)
	d.mu.Unlock()
}

// FailPresent queues errors for the next presents, one per call.
func (d *Device) FailPresent(errs ...error) {
	d.mu.Lock()
	d.failPresent = append(d.failPresent, errs...)
	d.mu.Unlock()
}

func (d *Device) SurfaceCapabilities() (gpu.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return gpu.SurfaceCapabilities{}, err
	}
	return gpu.SurfaceCapabilities{
		MinImageCount: 2,
		MaxImageCount: 3,
		CurrentExtent: d.extent,
		MinExtent:     gpu.Extent2D{Width: 1, Height: 1},
		MaxExtent:     gpu.Extent2D{Width: 4096, Height: 4096},
		Formats:       append([]gpu.SurfaceFormat(nil), d.opts.Formats...),
		PresentModes:  append([]gpu.PresentMode(nil), d.opts.PresentModes...),
	}, nil
}

func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return gpu.Swapchain{}, err
	}
	if info.Extent.IsZero() {
		return gpu.Swapchain{}, errors.New("swapchain with zero extent")
	}
	sc := &swapchain{info: info}
	for i := uint32(0); i < info.ImageCount; i++ {
		id, gen := d.images.Insert(&image{
			info: gpu.ImageInfo{
				Extent:    gpu.Extent3D{Width: info.Extent.Width, Height: info.Extent.Height, Depth: 1},
				Format:    info.Format.Format,
				Usage:     gpu.ImageUsageTransferDst | gpu.ImageUsageColorAttachment,
				MipLevels: 1,
			},
			swapchain:  true,
			presentIdx: i,
		})
		sc.images = append(sc.images, gpu.Image{Handle: gpu.Handle{ID: id, Generation: gen}})
	}
	id, gen := d.swapchains.Insert(sc)
	return gpu.Swapchain{Handle: d.created(gpu.KindSwapchain, id, gen, "")}, nil
}

func (d *Device) SwapchainImages(sc gpu.Swapchain) ([]gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains.Get(sc.ID, sc.Generation)
	if !ok {
		return nil, errors.Newf("unknown swapchain %s", sc.Handle)
	}
	return append([]gpu.Image(nil), s.images...), nil
}

func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains.Remove(sc.ID, sc.Generation)
	if ok {
		for _, img := range s.images {
			if d.inUse[key{gpu.KindImage, img.ID}] > 0 {
				d.violatef("swapchain image %s destroyed while in use", img.Handle)
			}
			d.images.Remove(img.ID, img.Generation)
		}
	}
	d.destroyed(gpu.KindSwapchain, sc.Handle, ok)
}

func (d *Device) AcquireNextImage(sc gpu.Swapchain, timeout time.Duration, sem gpu.Semaphore) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return 0, err
	}
	s, ok := d.swapchains.Get(sc.ID, sc.Generation)
	if !ok {
		return 0, errors.Newf("unknown swapchain %s", sc.Handle)
	}
	var injected error
	if len(d.failAcquire) > 0 {
		injected = d.failAcquire[0]
		d.failAcquire = d.failAcquire[1:]
	}
	if injected != nil && !errors.Is(injected, gpu.ErrSuboptimal) {
		return 0, injected
	}
	if s.info.Extent != d.extent {
		return 0, gpu.ErrOutOfDate
	}
	semaphore, ok := d.semaphores.Get(sem.ID, sem.Generation)
	if !ok {
		return 0, errors.Newf("unknown semaphore %s", sem.Handle)
	}
	if semaphore.signaled {
		d.violatef("acquire signals semaphore %s that is already signaled", sem.Handle)
	}
	semaphore.signaled = true
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	d.log(Event{Kind: EventAcquire, Resource: gpu.KindSwapchain, Handle: sc.Handle})
	return idx, injected
}

func (d *Device) Present(sc gpu.Swapchain, idx uint32, wait gpu.Semaphore) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return err
	}
	s, ok := d.swapchains.Get(sc.ID, sc.Generation)
	if !ok || int(idx) >= len(s.images) {
		return errors.Newf("present of unknown image %d", idx)
	}
	var injected error
	if len(d.failPresent) > 0 {
		injected = d.failPresent[0]
		d.failPresent = d.failPresent[1:]
	}
	if injected != nil && !errors.Is(injected, gpu.ErrSuboptimal) {
		return injected
	}
	img := s.images[idx]
	if im, ok := d.images.Get(img.ID, img.Generation); ok && im.layout != gpu.ImageLayoutPresentSrc {
		d.violatef("present of image %s in layout %s", img.Handle, im.layout)
	}
	d.log(Event{Kind: EventPresent, Resource: gpu.KindSwapchain, Handle: sc.Handle})
	p := &submission{info: gpu.SubmitInfo{Wait: wait}, present: true}
	if !wait.IsNull() {
		p.refs = []key{{gpu.KindSemaphore, wait.ID}}
		d.inUse[p.refs[0]]++
	}
	d.enqueue(p)
	return injected
}
