package renderer

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/deletion"
	"github.com/spaghettifunk/framekeeper/engine/renderer/descriptors"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu/gputest"
)

type fakeWindow struct {
	extent gpu.Extent2D
}

func (w *fakeWindow) FramebufferExtent() gpu.Extent2D {
	return w.extent
}

func newOrchestrator(t *testing.T, latency time.Duration, opts Options) (*gputest.Device, *fakeWindow, *Orchestrator) {
	t.Helper()
	window := &fakeWindow{extent: gpu.Extent2D{Width: 1280, Height: 720}}
	dev := gputest.New(gputest.Options{Latency: latency, Extent: window.extent})
	if opts.FenceTimeout == 0 {
		opts.FenceTimeout = time.Second
	}
	if opts.InitialSets == 0 {
		opts.InitialSets = 8
	}
	o, err := New(dev, dev, window, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		dev.Resume()
		o.Shutdown()
		dev.Close()
	})
	return dev, window, o
}

func assertNoViolations(t *testing.T, dev *gputest.Device) {
	t.Helper()
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("device violations: %v", v)
	}
}

type layoutCheck struct {
	t      *testing.T
	dev    *gputest.Device
	frames int
}

func (p *layoutCheck) DrawBackground(r *Orchestrator, f *FrameContext) error {
	if got := p.dev.ImageLayout(f.DrawImage.Image); got != gpu.ImageLayoutGeneral {
		p.t.Errorf("background pass sees draw image in %s", got)
	}
	r.Device().CmdClearColor(f.Cmd, f.DrawImage.Image, gpu.ImageLayoutGeneral, [4]float32{0, 0, 1, 1})
	return nil
}

func (p *layoutCheck) DrawGeometry(r *Orchestrator, f *FrameContext) error {
	if got := p.dev.ImageLayout(f.DrawImage.Image); got != gpu.ImageLayoutColorAttachment {
		p.t.Errorf("geometry pass sees draw image in %s", got)
	}
	if got := p.dev.ImageLayout(f.DepthImage.Image); got != gpu.ImageLayoutDepthAttachment {
		p.t.Errorf("geometry pass sees depth image in %s", got)
	}
	return nil
}

func (p *layoutCheck) DrawOverlay(r *Orchestrator, f *FrameContext) error {
	if got := p.dev.ImageLayout(f.SwapchainImage); got != gpu.ImageLayoutColorAttachment {
		p.t.Errorf("overlay pass sees swapchain image in %s", got)
	}
	p.frames++
	return nil
}

func TestDrawSteadyState(t *testing.T) {
	dev, _, o := newOrchestrator(t, 5*time.Millisecond, Options{})
	passes := &layoutCheck{t: t, dev: dev}
	o.SetPasses(passes, passes, passes)

	before := len(dev.EventsOf(gputest.EventSubmit))
	for i := 0; i < 4; i++ {
		if err := o.Draw(); err != nil {
			t.Fatal(err)
		}
	}
	assertNoViolations(t, dev)

	submits := dev.EventsOf(gputest.EventSubmit)[before:]
	if len(submits) != 4 {
		t.Fatalf("got %d frame submits, want 4", len(submits))
	}
	if submits[2].Handle != submits[0].Handle || submits[3].Handle != submits[1].Handle {
		t.Fatal("frames must alternate between the two slot fences")
	}
	if submits[0].Handle == submits[1].Handle {
		t.Fatal("consecutive frames share a fence")
	}
	if passes.frames != 4 {
		t.Fatalf("overlay ran %d times, want 4", passes.frames)
	}
	if got := len(dev.EventsOf(gputest.EventPresent)); got != 4 {
		t.Fatalf("presents = %d, want 4", got)
	}
	if o.FrameNumber() != 4 || o.Stats().FramesDrawn != 4 {
		t.Fatalf("frame number %d, drawn %d", o.FrameNumber(), o.Stats().FramesDrawn)
	}
}

func TestDrawOutOfDateSkipsFrameAndResizes(t *testing.T) {
	dev, window, o := newOrchestrator(t, 2*time.Millisecond, Options{})

	if err := o.Draw(); err != nil {
		t.Fatal(err)
	}
	submits := len(dev.EventsOf(gputest.EventSubmit))
	recorded := dev.Stats().CommandsRecorded
	frame := o.FrameNumber()

	// The window shrinks: the next acquire reports out of date.
	window.extent = gpu.Extent2D{Width: 800, Height: 600}
	dev.SetExtent(window.extent)
	if err := o.Draw(); err != nil {
		t.Fatalf("out of date must not surface as an error: %v", err)
	}
	if got := len(dev.EventsOf(gputest.EventSubmit)); got != submits {
		t.Fatal("a frame was submitted after an out of date acquire")
	}
	if dev.Stats().CommandsRecorded != recorded {
		t.Fatal("commands were recorded for the skipped frame")
	}
	if o.FrameNumber() != frame {
		t.Fatal("skipped frame advanced the ring")
	}
	if o.Stats().FramesSkipped != 1 {
		t.Fatalf("skipped = %d, want 1", o.Stats().FramesSkipped)
	}

	if err := o.Draw(); err != nil {
		t.Fatal(err)
	}
	if o.Stats().Resizes != 1 {
		t.Fatalf("resizes = %d, want 1", o.Stats().Resizes)
	}
	if o.Surface().Extent != window.extent {
		t.Fatalf("surface extent %v, want %v", o.Surface().Extent, window.extent)
	}

	// The resize happened before the next frame was recorded.
	idle, submit := -1, -1
	for i, e := range dev.Events() {
		if e.Kind == gputest.EventWaitIdle && idle < 0 {
			idle = i
		}
		if e.Kind == gputest.EventSubmit {
			submit = i
		}
	}
	if idle < 0 || idle > submit {
		t.Fatalf("wait idle at %d, last submit at %d", idle, submit)
	}
	assertNoViolations(t, dev)
}

func TestDrawSkipsWhileWindowHasNoArea(t *testing.T) {
	dev, window, o := newOrchestrator(t, 0, Options{})

	window.extent = gpu.Extent2D{}
	o.RequestResize()
	submits := len(dev.EventsOf(gputest.EventSubmit))
	for i := 0; i < 3; i++ {
		if err := o.Draw(); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(dev.EventsOf(gputest.EventSubmit)); got != submits {
		t.Fatal("frames submitted while the window had no area")
	}

	window.extent = gpu.Extent2D{Width: 640, Height: 360}
	dev.SetExtent(window.extent)
	if err := o.Draw(); err != nil {
		t.Fatal(err)
	}
	if o.Stats().FramesDrawn != 1 {
		t.Fatalf("drawn = %d, want 1", o.Stats().FramesDrawn)
	}
}

func TestPresentOutOfDateRequestsResize(t *testing.T) {
	dev, _, o := newOrchestrator(t, 0, Options{})
	dev.FailPresent(gpu.ErrOutOfDate)
	if err := o.Draw(); err != nil {
		t.Fatal(err)
	}
	if !o.Surface().ResizeRequested() {
		t.Fatal("out of date present must request a resize")
	}
	if err := o.Draw(); err != nil {
		t.Fatal(err)
	}
	if o.Stats().Resizes != 1 {
		t.Fatalf("resizes = %d, want 1", o.Stats().Resizes)
	}
}

// transientUploads pushes per frame buffers the GPU reads during the frame.
type transientUploads struct{}

func (transientUploads) DrawGeometry(r *Orchestrator, f *FrameContext) error {
	src, err := r.CreateBuffer(64, gpu.BufferUsageTransferSrc, gpu.MemoryCPUToGPU)
	if err != nil {
		return err
	}
	dst, err := r.CreateBuffer(64, gpu.BufferUsageTransferDst|gpu.BufferUsageUniform, gpu.MemoryGPUOnly)
	if err != nil {
		return err
	}
	r.Device().CmdCopyBuffer(f.Cmd, src.Buffer, dst.Buffer, gpu.BufferCopy{Size: 64})
	if err := f.Slot.Deletion.Push(deletion.Buffer(src)); err != nil {
		return err
	}
	return f.Slot.Deletion.Push(deletion.Buffer(dst))
}

func TestFrameResourcesOutliveTheirFrame(t *testing.T) {
	dev, _, o := newOrchestrator(t, 10*time.Millisecond, Options{})
	o.SetPasses(nil, transientUploads{}, nil)

	for i := 0; i < 8; i++ {
		if err := o.Draw(); err != nil {
			t.Fatal(err)
		}
	}
	assertNoViolations(t, dev)
}

func TestDrawExtentFollowsRenderScale(t *testing.T) {
	_, _, o := newOrchestrator(t, 0, Options{
		MaxDrawExtent: gpu.Extent2D{Width: 1024, Height: 1024},
		RenderScale:   0.5,
	})
	if err := o.Draw(); err != nil {
		t.Fatal(err)
	}
	if got := o.DrawExtent(); got != (gpu.Extent2D{Width: 512, Height: 360}) {
		t.Fatalf("draw extent = %v, want 512x360", got)
	}

	o.SetRenderScale(5)
	if err := o.Draw(); err != nil {
		t.Fatal(err)
	}
	if got := o.DrawExtent(); got != (gpu.Extent2D{Width: 1024, Height: 720}) {
		t.Fatalf("draw extent = %v, want 1024x720", got)
	}
}

func TestDeviceLostIsFatal(t *testing.T) {
	dev, _, o := newOrchestrator(t, 0, Options{})
	if err := o.Draw(); err != nil {
		t.Fatal(err)
	}
	dev.LoseDevice()
	err := o.Draw()
	if !core.IsFatal(err) || !errors.Is(err, gpu.ErrDeviceLost) {
		t.Fatalf("expected fatal device lost, got %v", err)
	}
}

func TestUploadMesh(t *testing.T) {
	dev, _, o := newOrchestrator(t, 5*time.Millisecond, Options{})
	buffersBefore := dev.Live(gpu.KindBuffer)

	vertices := []Vertex{
		{Position: mgl32.Vec3{0.5, -0.5, 0}, Color: mgl32.Vec4{0, 0, 0, 1}},
		{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec4{0.5, 0.5, 0.5, 1}},
		{Position: mgl32.Vec3{-0.5, -0.5, 0}, Color: mgl32.Vec4{1, 0, 0, 1}},
		{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec4{0, 1, 0, 1}},
	}
	indices := []uint32{0, 1, 2, 2, 1, 3}

	mesh, err := o.UploadMesh(indices, vertices)
	if err != nil {
		t.Fatal(err)
	}
	if mesh.IndexCount != 6 {
		t.Fatalf("index count = %d", mesh.IndexCount)
	}
	if got := dev.Live(gpu.KindBuffer) - buffersBefore; got != 2 {
		t.Fatalf("%d buffers alive after upload, want 2 (staging must be freed)", got)
	}

	payload, err := encodeMesh(indices, vertices)
	if err != nil {
		t.Fatal(err)
	}
	vertexBytes := len(vertices) * VertexSize
	if got := dev.BufferContents(mesh.VertexBuffer.Buffer); !bytes.Equal(got, payload[:vertexBytes]) {
		t.Fatal("vertex buffer does not hold the uploaded vertices")
	}
	if got := dev.BufferContents(mesh.IndexBuffer.Buffer); !bytes.Equal(got, payload[vertexBytes:]) {
		t.Fatal("index buffer does not hold the uploaded indices")
	}

	if err := mesh.Release(o.DeletionQueue()); err != nil {
		t.Fatal(err)
	}
	assertNoViolations(t, dev)
}

func TestCreateImageWithDataMipmapped(t *testing.T) {
	dev, _, o := newOrchestrator(t, 0, Options{})
	pixels := make([]byte, 16*16*4)
	img, err := o.CreateImageWithData(pixels, gpu.Extent3D{Width: 16, Height: 16, Depth: 1},
		gpu.FormatR8G8B8A8Unorm, gpu.ImageUsageSampled, true)
	if err != nil {
		t.Fatal(err)
	}
	defer o.DestroyImage(img)
	if img.MipLevels != 5 {
		t.Fatalf("mip levels = %d, want 5", img.MipLevels)
	}
	if got := dev.ImageLayout(img.Image); got != gpu.ImageLayoutShaderReadOnly {
		t.Fatalf("layout after upload = %s", got)
	}

	if _, err := o.CreateImageWithData(pixels[:10], gpu.Extent3D{Width: 16, Height: 16, Depth: 1},
		gpu.FormatR8G8B8A8Unorm, gpu.ImageUsageSampled, false); !errors.Is(err, core.ErrContractViolation) {
		t.Fatalf("short pixel data should be rejected, got %v", err)
	}
	assertNoViolations(t, dev)
}

func TestShutdownReleasesEverything(t *testing.T) {
	window := &fakeWindow{extent: gpu.Extent2D{Width: 320, Height: 240}}
	dev := gputest.New(gputest.Options{Latency: time.Millisecond, Extent: window.extent})
	defer dev.Close()
	o, err := New(dev, dev, window, Options{FenceTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := o.Draw(); err != nil {
			t.Fatal(err)
		}
	}
	o.Shutdown()

	for _, kind := range []gpu.ResourceKind{
		gpu.KindFence, gpu.KindSemaphore, gpu.KindCommandPool, gpu.KindDescriptorPool,
		gpu.KindDescriptorSetLayout, gpu.KindBuffer, gpu.KindImage, gpu.KindImageView, gpu.KindSwapchain,
	} {
		if n := dev.Live(kind); n != 0 {
			t.Errorf("%d %s objects leaked", n, kind)
		}
	}
	assertNoViolations(t, dev)
}

func TestSetPresentModeRebuildsSurface(t *testing.T) {
	window := &fakeWindow{extent: gpu.Extent2D{Width: 320, Height: 240}}
	dev := gputest.New(gputest.Options{
		Extent:       window.extent,
		PresentModes: []gpu.PresentMode{gpu.PresentModeFIFO, gpu.PresentModeMailbox},
	})
	defer dev.Close()
	o, err := New(dev, dev, window, Options{FenceTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer o.Shutdown()

	if got := o.Surface().PresentMode; got != gpu.PresentModeFIFO {
		t.Fatalf("initial present mode = %d", got)
	}
	o.SetPresentMode(gpu.PresentModeMailbox)
	if err := o.Draw(); err != nil {
		t.Fatal(err)
	}
	if got := o.Surface().PresentMode; got != gpu.PresentModeMailbox {
		t.Fatalf("present mode = %d, want mailbox", got)
	}
	if got := o.Stats().Resizes; got != 1 {
		t.Fatalf("resizes = %d, want 1", got)
	}

	// Same mode again is a no-op.
	o.SetPresentMode(gpu.PresentModeMailbox)
	if o.Surface().ResizeRequested() {
		t.Fatal("unchanged present mode requested a rebuild")
	}
	assertNoViolations(t, dev)
}

func TestDrawPushConstantsEncode(t *testing.T) {
	c := DrawPushConstants{WorldMatrix: mgl32.Ident4(), FirstIndex: 3, IndexCount: 6}
	b := c.Encode()
	if len(b) != DrawPushConstantsSize {
		t.Fatalf("encoded %d bytes, want %d", len(b), DrawPushConstantsSize)
	}
	// Column major identity: the first float is 1.0.
	if !bytes.Equal(b[:4], []byte{0x00, 0x00, 0x80, 0x3f}) {
		t.Fatalf("first element = % x", b[:4])
	}
	if b[64] != 3 || b[68] != 6 {
		t.Fatalf("index fields = %d, %d", b[64], b[68])
	}
}

func TestImmediateSubmitAndCurrentFrame(t *testing.T) {
	dev, _, o := newOrchestrator(t, 2*time.Millisecond, Options{})

	var executed atomic.Bool
	err := o.ImmediateSubmit(func(cmd gpu.CommandBuffer) {
		dev.CmdHook(cmd, func() { executed.Store(true) })
	})
	if err != nil {
		t.Fatal(err)
	}
	if !executed.Load() {
		t.Fatal("ImmediateSubmit returned before the GPU ran the commands")
	}

	for i := 0; i <= 3; i++ {
		if i > 0 {
			if err := o.Draw(); err != nil {
				t.Fatal(err)
			}
		}
		slot, err := o.CurrentFrame()
		if err != nil {
			t.Fatal(err)
		}
		if got, want := slot.Index, i%2; got != want {
			t.Fatalf("after %d frames current slot = %d, want %d", i, got, want)
		}
	}
	assertNoViolations(t, dev)
}

func TestCreateAndDestroyBuffer(t *testing.T) {
	dev, _, o := newOrchestrator(t, 0, Options{})
	before := dev.Live(gpu.KindBuffer)
	buf, err := o.CreateBuffer(256, gpu.BufferUsageUniform, gpu.MemoryCPUToGPU)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Size != 256 || dev.Live(gpu.KindBuffer) != before+1 {
		t.Fatalf("buffer size %d, live %d", buf.Size, dev.Live(gpu.KindBuffer))
	}
	o.DestroyBuffer(buf)
	if got := dev.Live(gpu.KindBuffer); got != before {
		t.Fatalf("live buffers = %d after destroy, want %d", got, before)
	}
	assertNoViolations(t, dev)
}

func TestUseAfterShutdownIsRejected(t *testing.T) {
	window := &fakeWindow{extent: gpu.Extent2D{Width: 320, Height: 240}}
	dev := gputest.New(gputest.Options{Extent: window.extent})
	defer dev.Close()
	o, err := New(dev, dev, window, Options{FenceTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	o.Shutdown()
	// A second Shutdown is a no-op.
	o.Shutdown()

	one := gpu.Extent3D{Width: 1, Height: 1, Depth: 1}
	calls := map[string]func() error{
		"Draw": o.Draw,
		"CurrentFrame": func() error {
			_, err := o.CurrentFrame()
			return err
		},
		"ImmediateSubmit": func() error {
			return o.ImmediateSubmit(func(gpu.CommandBuffer) {})
		},
		"CreateBuffer": func() error {
			_, err := o.CreateBuffer(64, gpu.BufferUsageUniform, gpu.MemoryCPUToGPU)
			return err
		},
		"CreateImage": func() error {
			_, err := o.CreateImage(one, gpu.FormatR8G8B8A8Unorm, gpu.ImageUsageSampled, false)
			return err
		},
		"CreateImageWithData": func() error {
			_, err := o.CreateImageWithData(make([]byte, 4), one, gpu.FormatR8G8B8A8Unorm, gpu.ImageUsageSampled, false)
			return err
		},
		"UploadMesh": func() error {
			_, err := o.UploadMesh([]uint32{0}, []Vertex{{}})
			return err
		},
		"DeletionQueue.Push": func() error {
			return o.DeletionQueue().Push(deletion.Func("late", func() {}))
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			if err := call(); !errors.Is(err, core.ErrContractViolation) {
				t.Fatalf("got %v, want a contract violation", err)
			}
		})
	}
	assertNoViolations(t, dev)
}

type submittingPass struct {
	dev    *gputest.Device
	ran    atomic.Bool
	submit error
	upload error
}

func (p *submittingPass) DrawGeometry(r *Orchestrator, f *FrameContext) error {
	p.submit = r.ImmediateSubmit(func(cmd gpu.CommandBuffer) {
		p.dev.CmdHook(cmd, func() { p.ran.Store(true) })
	})
	_, p.upload = r.UploadMesh([]uint32{0}, []Vertex{{}})
	return nil
}

func TestImmediateSubmitWhileRecordingIsRejected(t *testing.T) {
	dev, _, o := newOrchestrator(t, time.Millisecond, Options{})
	pass := &submittingPass{dev: dev}
	o.SetPasses(nil, pass, nil)

	buffers := dev.Live(gpu.KindBuffer)
	if err := o.Draw(); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(pass.submit, core.ErrContractViolation) {
		t.Fatalf("ImmediateSubmit from a pass returned %v", pass.submit)
	}
	if !errors.Is(pass.upload, core.ErrContractViolation) {
		t.Fatalf("UploadMesh from a pass returned %v", pass.upload)
	}
	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if pass.ran.Load() {
		t.Fatal("rejected commands reached the GPU")
	}
	if got := dev.Live(gpu.KindBuffer); got != buffers {
		t.Fatalf("rejected upload left %d buffers behind", got-buffers)
	}

	// Outside Draw the channel works again.
	if err := o.ImmediateSubmit(func(gpu.CommandBuffer) {}); err != nil {
		t.Fatal(err)
	}
	assertNoViolations(t, dev)
}

func TestDefaultImages(t *testing.T) {
	dev, _, o := newOrchestrator(t, time.Millisecond, Options{})
	d := o.Defaults()

	one := gpu.Extent3D{Width: 1, Height: 1, Depth: 1}
	solids := []struct {
		name  string
		img   gpu.AllocatedImage
		pixel []byte
	}{
		{"white", d.White, []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{"grey", d.Grey, []byte{0xAA, 0xAA, 0xAA, 0xFF}},
		{"black", d.Black, []byte{0x00, 0x00, 0x00, 0xFF}},
	}
	for _, tt := range solids {
		t.Run(tt.name, func(t *testing.T) {
			if tt.img.Extent != one {
				t.Fatalf("extent = %v", tt.img.Extent)
			}
			if got := dev.ImageContents(tt.img.Image); !bytes.Equal(got, tt.pixel) {
				t.Fatalf("contents = %x, want %x", got, tt.pixel)
			}
			if got := dev.ImageLayout(tt.img.Image); got != gpu.ImageLayoutShaderReadOnly {
				t.Fatalf("layout = %s", got)
			}
		})
	}

	checker := d.ErrorChecker
	if checker.Extent != (gpu.Extent3D{Width: 16, Height: 16, Depth: 1}) {
		t.Fatalf("checkerboard extent = %v", checker.Extent)
	}
	pixels := dev.ImageContents(checker.Image)
	if len(pixels) != 16*16*4 {
		t.Fatalf("checkerboard holds %d bytes", len(pixels))
	}
	magenta := []byte{0xFF, 0x00, 0xFF, 0xFF}
	black := []byte{0x00, 0x00, 0x00, 0xFF}
	at := func(x, y int) []byte {
		i := (y*16 + x) * 4
		return pixels[i : i+4]
	}
	if !bytes.Equal(at(0, 0), black) || !bytes.Equal(at(1, 0), magenta) ||
		!bytes.Equal(at(0, 1), magenta) || !bytes.Equal(at(15, 15), black) {
		t.Fatal("checkerboard pattern is wrong")
	}
	assertNoViolations(t, dev)
}

func TestGlobalDescriptorsServeDrawImageLayout(t *testing.T) {
	dev, _, o := newOrchestrator(t, 0, Options{})
	global := o.GlobalDescriptors()
	before := global.Stats().PoolsCreated

	set, err := global.Allocate(o.DrawImageLayout())
	if err != nil {
		t.Fatal(err)
	}
	if set.IsNull() {
		t.Fatal("allocated a null set")
	}
	var writer descriptors.Writer
	writer.WriteImage(0, o.Surface().DrawImage.View, gpu.ImageLayoutGeneral, gpu.DescriptorStorageImage)
	writer.UpdateSet(o.Device(), set)

	if got := global.Stats().PoolsCreated; got != before {
		t.Fatalf("a second global set created %d new pools", got-before)
	}
	assertNoViolations(t, dev)
}

type deltaRecorder struct {
	deltas []float64
}

func (p *deltaRecorder) DrawGeometry(r *Orchestrator, f *FrameContext) error {
	p.deltas = append(p.deltas, f.DeltaTime)
	return nil
}

func TestFrameDeltaTime(t *testing.T) {
	_, _, o := newOrchestrator(t, 0, Options{})
	pass := &deltaRecorder{}
	o.SetPasses(nil, pass, nil)

	for i := 0; i < 4; i++ {
		if i == 2 {
			time.Sleep(20 * time.Millisecond)
		}
		if err := o.Draw(); err != nil {
			t.Fatal(err)
		}
	}
	if len(pass.deltas) != 4 {
		t.Fatalf("recorded %d frames", len(pass.deltas))
	}
	if pass.deltas[0] != 0 {
		t.Fatalf("first frame delta = %f", pass.deltas[0])
	}
	for i, dt := range pass.deltas {
		if dt < 0 {
			t.Fatalf("frame %d delta = %f", i, dt)
		}
	}
	if pass.deltas[2] < 0.02 {
		t.Fatalf("delta after a 20ms pause = %f", pass.deltas[2])
	}
}
