// Package surface owns the swapchain and the off-screen targets frames are
// drawn into before being copied to the swapchain.
package surface

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/core"
	emath "github.com/spaghettifunk/framekeeper/engine/math"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

const (
	DrawFormat  = gpu.FormatR16G16B16A16Sfloat
	DepthFormat = gpu.FormatD32Sfloat
)

// DefaultMaxDrawExtent is used when no maximum is configured.
var DefaultMaxDrawExtent = gpu.Extent2D{Width: 2560, Height: 1440}

type Options struct {
	// MaxDrawExtent sizes the off-screen targets independently of the
	// window so a lower render scale never needs a rebuild.
	MaxDrawExtent gpu.Extent2D
	PresentMode   gpu.PresentMode
	// AcquireTimeout bounds the wait for a presentable image.
	AcquireTimeout time.Duration
}

type Surface struct {
	device    gpu.Device
	presenter gpu.Presenter
	opts      Options

	Swapchain   gpu.Swapchain
	Format      gpu.SurfaceFormat
	PresentMode gpu.PresentMode
	Extent      gpu.Extent2D
	Images      []gpu.Image
	Views       []gpu.ImageView

	DrawImage  gpu.AllocatedImage
	DepthImage gpu.AllocatedImage

	resizeRequested bool
}

func New(device gpu.Device, presenter gpu.Presenter, opts Options) *Surface {
	if opts.MaxDrawExtent.IsZero() {
		opts.MaxDrawExtent = DefaultMaxDrawExtent
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = time.Second
	}
	return &Surface{device: device, presenter: presenter, opts: opts}
}

// MaxDrawExtent is the fixed size of the off-screen targets.
func (s *Surface) MaxDrawExtent() gpu.Extent2D {
	return s.opts.MaxDrawExtent
}

// SetPresentMode takes effect on the next Create.
func (s *Surface) SetPresentMode(mode gpu.PresentMode) {
	s.opts.PresentMode = mode
}

// Create builds the swapchain for the window extent plus the off-screen
// draw and depth targets.
func (s *Surface) Create(extent gpu.Extent2D) error {
	if extent.IsZero() {
		return core.ContractViolation("surface created with zero extent %dx%d", extent.Width, extent.Height)
	}
	caps, err := s.presenter.SurfaceCapabilities()
	if err != nil {
		return core.Fatal(err, "query surface capabilities")
	}
	if len(caps.Formats) == 0 {
		return core.Fatalf("surface reports no formats")
	}

	// Choose a swap surface format.
	s.Format = caps.Formats[0]
	for _, f := range caps.Formats {
		// Preferred formats
		if f.Format == gpu.FormatB8G8R8A8Unorm && f.ColorSpace == gpu.ColorSpaceSRGBNonlinear {
			s.Format = f
			break
		}
	}

	// FIFO is always available.
	s.PresentMode = gpu.PresentModeFIFO
	for _, m := range caps.PresentModes {
		if m == s.opts.PresentMode {
			s.PresentMode = m
			break
		}
	}

	// Swapchain extent
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	extent.Width = emath.Clamp(extent.Width, caps.MinExtent.Width, caps.MaxExtent.Width)
	extent.Height = emath.Clamp(extent.Height, caps.MinExtent.Height, caps.MaxExtent.Height)
	if extent.IsZero() {
		return core.ContractViolation("surface extent is zero")
	}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	s.Swapchain, err = s.presenter.CreateSwapchain(gpu.SwapchainInfo{
		Extent:      extent,
		Format:      s.Format,
		PresentMode: s.PresentMode,
		ImageCount:  imageCount,
	})
	if err != nil {
		return core.Fatal(err, "create swapchain")
	}
	s.Extent = extent

	if s.Images, err = s.presenter.SwapchainImages(s.Swapchain); err != nil {
		return core.Fatal(err, "get swapchain images")
	}
	s.Views = s.Views[:0]
	for _, img := range s.Images {
		view, err := s.device.CreateImageView(img, s.Format.Format, gpu.AspectColor)
		if err != nil {
			return core.Fatal(err, "create swapchain image view")
		}
		s.Views = append(s.Views, view)
	}

	maxExtent := s.opts.MaxDrawExtent
	s.DrawImage, err = s.device.CreateImage(gpu.ImageInfo{
		Extent: gpu.Extent3D{Width: maxExtent.Width, Height: maxExtent.Height, Depth: 1},
		Format: DrawFormat,
		Usage: gpu.ImageUsageTransferSrc | gpu.ImageUsageTransferDst |
			gpu.ImageUsageStorage | gpu.ImageUsageColorAttachment,
		MipLevels: 1,
		Label:     gpu.NewLabel("draw-image"),
	})
	if err != nil {
		return core.Fatal(err, "create draw image")
	}
	s.DepthImage, err = s.device.CreateImage(gpu.ImageInfo{
		Extent:    gpu.Extent3D{Width: maxExtent.Width, Height: maxExtent.Height, Depth: 1},
		Format:    DepthFormat,
		Usage:     gpu.ImageUsageDepthStencilAttachment,
		MipLevels: 1,
		Label:     gpu.NewLabel("depth-image"),
	})
	if err != nil {
		return core.Fatal(err, "create depth image")
	}

	s.resizeRequested = false
	core.LogInfo("Swapchain created: %dx%d, %d images, present mode %d", extent.Width, extent.Height, len(s.Images), s.PresentMode)
	return nil
}

// Destroy releases the swapchain, its views and the off-screen targets.
// Synchronization objects and the window surface are not touched.
func (s *Surface) Destroy() {
	if !s.DepthImage.Image.IsNull() {
		s.device.DestroyImage(s.DepthImage)
		s.DepthImage = gpu.AllocatedImage{}
	}
	if !s.DrawImage.Image.IsNull() {
		s.device.DestroyImage(s.DrawImage)
		s.DrawImage = gpu.AllocatedImage{}
	}
	for _, v := range s.Views {
		s.device.DestroyImageView(v)
	}
	s.Views = s.Views[:0]
	s.Images = nil
	if !s.Swapchain.IsNull() {
		s.presenter.DestroySwapchain(s.Swapchain)
		s.Swapchain = gpu.Swapchain{}
	}
}

// Resize waits for the device to go idle, then rebuilds everything.
func (s *Surface) Resize(extent gpu.Extent2D) error {
	if err := s.device.WaitIdle(); err != nil {
		return core.Fatal(err, "wait idle before resize")
	}
	s.Destroy()
	if err := s.Create(extent); err != nil {
		return err
	}
	core.LogDebug("Surface resized to %dx%d", s.Extent.Width, s.Extent.Height)
	return nil
}

// RequestResize marks the surface stale; the owner resizes it before the
// next frame records.
func (s *Surface) RequestResize() {
	s.resizeRequested = true
}

func (s *Surface) ResizeRequested() bool {
	return s.resizeRequested
}

// Acquire returns the next presentable image, signaling sem when it is
// ready. An out of date surface returns core.ErrSwapchainBooting and
// requests a resize; a suboptimal one is used for this frame and also
// requests a resize. Anything else is fatal.
func (s *Surface) Acquire(sem gpu.Semaphore) (uint32, error) {
	idx, err := s.presenter.AcquireNextImage(s.Swapchain, s.opts.AcquireTimeout, sem)
	switch {
	case err == nil:
		return idx, nil
	case errors.Is(err, gpu.ErrSuboptimal):
		s.RequestResize()
		return idx, nil
	case errors.Is(err, gpu.ErrOutOfDate):
		s.RequestResize()
		return 0, core.ErrSwapchainBooting
	}
	return 0, core.Fatal(err, "acquire swapchain image")
}

// Present queues image for display after wait. Out of date and
// suboptimal results request a resize.
func (s *Surface) Present(image uint32, wait gpu.Semaphore) error {
	err := s.presenter.Present(s.Swapchain, image, wait)
	if err == nil {
		return nil
	}
	if errors.Is(err, gpu.ErrOutOfDate) || errors.Is(err, gpu.ErrSuboptimal) {
		s.RequestResize()
		return nil
	}
	return core.Fatal(err, "present swapchain image")
}
