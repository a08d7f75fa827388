package surface

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu/gputest"
)

func newSurface(t *testing.T, opts gputest.Options, sopts Options) (*gputest.Device, *Surface) {
	t.Helper()
	if opts.Extent.IsZero() {
		opts.Extent = gpu.Extent2D{Width: 1280, Height: 720}
	}
	dev := gputest.New(opts)
	s := New(dev, dev, sopts)
	if err := s.Create(opts.Extent); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = dev.WaitIdle()
		s.Destroy()
		dev.Close()
	})
	return dev, s
}

func TestCreateSelectsFormatAndExtent(t *testing.T) {
	dev, s := newSurface(t, gputest.Options{
		Extent: gpu.Extent2D{Width: 800, Height: 600},
		Formats: []gpu.SurfaceFormat{
			{Format: gpu.FormatR8G8B8A8Srgb, ColorSpace: gpu.ColorSpaceSRGBNonlinear},
			{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []gpu.PresentMode{gpu.PresentModeFIFO, gpu.PresentModeMailbox},
	}, Options{
		MaxDrawExtent: gpu.Extent2D{Width: 1920, Height: 1080},
		PresentMode:   gpu.PresentModeMailbox,
	})

	if s.Format.Format != gpu.FormatB8G8R8A8Unorm {
		t.Errorf("format = %v, want B8G8R8A8 unorm", s.Format.Format)
	}
	if s.PresentMode != gpu.PresentModeMailbox {
		t.Errorf("present mode = %v, want mailbox", s.PresentMode)
	}
	if s.Extent != (gpu.Extent2D{Width: 800, Height: 600}) {
		t.Errorf("extent = %v", s.Extent)
	}
	if len(s.Images) != 3 || len(s.Views) != 3 {
		t.Errorf("got %d images and %d views, want min+1 = 3", len(s.Images), len(s.Views))
	}
	if got := s.DrawImage.Extent; got.Width != 1920 || got.Height != 1080 {
		t.Errorf("draw image extent = %v, want the configured maximum", got)
	}
	if s.DepthImage.Format != DepthFormat {
		t.Errorf("depth format = %v", s.DepthImage.Format)
	}
	if dev.Live(gpu.KindImage) != 2 {
		t.Errorf("live off-screen images = %d, want 2", dev.Live(gpu.KindImage))
	}
}

func TestUnsupportedPresentModeFallsBackToFIFO(t *testing.T) {
	_, s := newSurface(t, gputest.Options{}, Options{PresentMode: gpu.PresentModeImmediate})
	if s.PresentMode != gpu.PresentModeFIFO {
		t.Fatalf("present mode = %v, want FIFO", s.PresentMode)
	}
}

func TestAcquireOutOfDateRequestsResize(t *testing.T) {
	dev, s := newSurface(t, gputest.Options{}, Options{})
	sem, _ := dev.CreateSemaphore()
	t.Cleanup(func() { dev.DestroySemaphore(sem) })

	dev.FailAcquire(gpu.ErrOutOfDate)
	if _, err := s.Acquire(sem); !errors.Is(err, core.ErrSwapchainBooting) {
		t.Fatalf("expected booting, got %v", err)
	}
	if !s.ResizeRequested() {
		t.Fatal("out of date acquire must request a resize")
	}

	dev.SetExtent(gpu.Extent2D{Width: 640, Height: 480})
	if err := s.Resize(gpu.Extent2D{Width: 640, Height: 480}); err != nil {
		t.Fatal(err)
	}
	if s.ResizeRequested() {
		t.Fatal("resize must clear the request")
	}
	if s.Extent.Width != 640 || s.Extent.Height != 480 {
		t.Fatalf("extent after resize = %v", s.Extent)
	}
	if got := s.DrawImage.Extent; got.Width != DefaultMaxDrawExtent.Width {
		t.Fatalf("draw image follows the maximum, not the window: %v", got)
	}
	if len(dev.EventsOf(gputest.EventWaitIdle)) == 0 {
		t.Fatal("resize must wait for the device to go idle")
	}
	if dev.Live(gpu.KindSwapchain) != 1 {
		t.Fatalf("live swapchains = %d, want 1", dev.Live(gpu.KindSwapchain))
	}
}

func TestAcquireSuboptimalProceeds(t *testing.T) {
	dev, s := newSurface(t, gputest.Options{}, Options{})
	sem, _ := dev.CreateSemaphore()

	dev.FailAcquire(gpu.ErrSuboptimal)
	if _, err := s.Acquire(sem); err != nil {
		t.Fatalf("suboptimal acquire should succeed, got %v", err)
	}
	if !s.ResizeRequested() {
		t.Fatal("suboptimal acquire must request a resize")
	}
}

func TestAcquireOtherErrorsAreFatal(t *testing.T) {
	dev, s := newSurface(t, gputest.Options{}, Options{})
	sem, _ := dev.CreateSemaphore()

	dev.FailAcquire(gpu.ErrSurfaceLost)
	_, err := s.Acquire(sem)
	if !core.IsFatal(err) || !errors.Is(err, gpu.ErrSurfaceLost) {
		t.Fatalf("expected fatal surface lost, got %v", err)
	}
}
