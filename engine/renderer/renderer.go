// Package renderer drives frames: it reclaims a frame slot, acquires a
// swapchain image, records the passes, submits and presents. It also
// exposes the resource entry points passes and loaders call into.
package renderer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/math"
	"github.com/spaghettifunk/framekeeper/engine/renderer/deletion"
	"github.com/spaghettifunk/framekeeper/engine/renderer/descriptors"
	"github.com/spaghettifunk/framekeeper/engine/renderer/frames"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
	"github.com/spaghettifunk/framekeeper/engine/renderer/immediate"
	"github.com/spaghettifunk/framekeeper/engine/renderer/surface"
)

type Options struct {
	FenceTimeout     time.Duration
	ImmediateTimeout time.Duration
	MaxDrawExtent    gpu.Extent2D
	RenderScale      float32
	PresentMode      gpu.PresentMode
	InitialSets      uint32
	MaxSetsPerPool   uint32
	FrameRatios      []gpu.PoolSizeRatio
	// ClearColor fills the draw image when no background pass is set.
	ClearColor [4]float32
}

// DefaultFrameRatios sizes the per frame descriptor pools.
var DefaultFrameRatios = []gpu.PoolSizeRatio{
	{Type: gpu.DescriptorStorageImage, Ratio: 3},
	{Type: gpu.DescriptorStorageBuffer, Ratio: 3},
	{Type: gpu.DescriptorUniformBuffer, Ratio: 3},
	{Type: gpu.DescriptorCombinedImageSampler, Ratio: 4},
}

// FrameStats counts what Draw did.
type FrameStats struct {
	FramesDrawn   uint64
	FramesSkipped uint64
	Resizes       uint64
}

type Orchestrator struct {
	device    gpu.Device
	presenter gpu.Presenter
	window    Window
	opts      Options

	frames    *frames.Ring
	surface   *surface.Surface
	immediate *immediate.Channel

	// Process lifetime objects, released by Shutdown.
	deletion    *deletion.Queue
	descriptors *descriptors.GrowableAllocator

	drawImageLayout      gpu.DescriptorSetLayout
	drawImageDescriptors gpu.DescriptorSet
	defaults             DefaultImages

	background BackgroundPass
	geometry   GeometryPass
	overlay    OverlayPass

	drawExtent  gpu.Extent2D
	renderScale float32
	lastFrame   float64
	stats       FrameStats

	recording bool
	destroyed bool
}

// New creates the frame core for a device and its window surface.
func New(device gpu.Device, presenter gpu.Presenter, window Window, opts Options) (*Orchestrator, error) {
	if opts.RenderScale == 0 {
		opts.RenderScale = 1
	}
	if len(opts.FrameRatios) == 0 {
		opts.FrameRatios = DefaultFrameRatios
	}
	o := &Orchestrator{
		device:      device,
		presenter:   presenter,
		window:      window,
		opts:        opts,
		deletion:    deletion.NewQueue("global", device),
		descriptors: descriptors.NewGrowableAllocator("global", device),
		renderScale: math.Clamp(opts.RenderScale, 0.1, 1),
	}

	var err error
	if o.immediate, err = immediate.NewChannel(device, opts.ImmediateTimeout); err != nil {
		return nil, err
	}

	o.surface = surface.New(device, presenter, surface.Options{
		MaxDrawExtent: opts.MaxDrawExtent,
		PresentMode:   opts.PresentMode,
	})
	if err := o.surface.Create(window.FramebufferExtent()); err != nil {
		o.immediate.Destroy()
		return nil, err
	}

	o.frames, err = frames.NewRing(device, frames.Options{
		FenceTimeout: opts.FenceTimeout,
		InitialSets:  opts.InitialSets,
		MaxSets:      opts.MaxSetsPerPool,
		Ratios:       opts.FrameRatios,
	})
	if err != nil {
		o.surface.Destroy()
		o.immediate.Destroy()
		return nil, err
	}

	if err := o.initDescriptors(); err != nil {
		o.Shutdown()
		return nil, err
	}
	if err := o.initDefaultData(); err != nil {
		o.Shutdown()
		return nil, err
	}
	core.LogInfo("Frame core initialized with %d frames in flight", frames.FramesInFlight)
	return o, nil
}

// initDescriptors builds the long lived set that exposes the draw image
// as a storage image.
func (o *Orchestrator) initDescriptors() error {
	ratios := []gpu.PoolSizeRatio{{Type: gpu.DescriptorStorageImage, Ratio: 1}}
	if err := o.descriptors.Init(10, ratios); err != nil {
		return err
	}
	if err := o.deletion.Push(deletion.Func("global descriptor pools", o.descriptors.DestroyPools)); err != nil {
		return err
	}

	var builder descriptors.LayoutBuilder
	builder.AddBinding(0, gpu.DescriptorStorageImage)
	layout, err := builder.Build(o.device, gpu.ShaderStageCompute)
	if err != nil {
		return err
	}
	o.drawImageLayout = layout
	if err := o.deletion.Push(deletion.DescriptorSetLayout(layout)); err != nil {
		return err
	}

	if o.drawImageDescriptors, err = o.descriptors.Allocate(layout); err != nil {
		return err
	}
	o.writeDrawImageDescriptors()
	return nil
}

func (o *Orchestrator) writeDrawImageDescriptors() {
	var writer descriptors.Writer
	writer.WriteImage(0, o.surface.DrawImage.View, gpu.ImageLayoutGeneral, gpu.DescriptorStorageImage)
	writer.UpdateSet(o.device, o.drawImageDescriptors)
}

// SetPasses installs the collaborators that record each frame. Any of them
// may be nil.
func (o *Orchestrator) SetPasses(background BackgroundPass, geometry GeometryPass, overlay OverlayPass) {
	o.background = background
	o.geometry = geometry
	o.overlay = overlay
}

func (o *Orchestrator) Device() gpu.Device {
	return o.device
}

func (o *Orchestrator) Surface() *surface.Surface {
	return o.surface
}

// DeletionQueue is flushed once at Shutdown, after the device is idle.
func (o *Orchestrator) DeletionQueue() *deletion.Queue {
	return o.deletion
}

// GlobalDescriptors allocates sets that live as long as the renderer.
func (o *Orchestrator) GlobalDescriptors() *descriptors.GrowableAllocator {
	return o.descriptors
}

func (o *Orchestrator) DrawImageLayout() gpu.DescriptorSetLayout {
	return o.drawImageLayout
}

// CurrentFrame returns the slot of the frame being recorded.
func (o *Orchestrator) CurrentFrame() (*frames.Slot, error) {
	if err := o.checkAlive("CurrentFrame"); err != nil {
		return nil, err
	}
	return o.frames.Current(), nil
}

func (o *Orchestrator) checkAlive(op string) error {
	if o.destroyed {
		return core.ContractViolation("%s after Shutdown", op)
	}
	return nil
}

func (o *Orchestrator) FrameNumber() uint64 {
	return o.stats.FramesDrawn
}

func (o *Orchestrator) Stats() FrameStats {
	return o.stats
}

func (o *Orchestrator) DrawExtent() gpu.Extent2D {
	return o.drawExtent
}

func (o *Orchestrator) RenderScale() float32 {
	return o.renderScale
}

// SetRenderScale changes the share of the draw image used from the next
// frame on. The value is clamped to [0.1, 1].
func (o *Orchestrator) SetRenderScale(scale float32) {
	o.renderScale = math.Clamp(scale, 0.1, 1)
}

func (o *Orchestrator) ClearColor() [4]float32 {
	return o.opts.ClearColor
}

func (o *Orchestrator) SetClearColor(color [4]float32) {
	o.opts.ClearColor = color
}

// SetPresentMode switches the present mode. The swapchain is rebuilt
// before the next frame records.
func (o *Orchestrator) SetPresentMode(mode gpu.PresentMode) {
	if mode == o.opts.PresentMode {
		return
	}
	o.opts.PresentMode = mode
	o.surface.SetPresentMode(mode)
	o.surface.RequestResize()
}

// RequestResize rebuilds the surface before the next frame records.
func (o *Orchestrator) RequestResize() {
	o.surface.RequestResize()
}

func (o *Orchestrator) resize(extent gpu.Extent2D) error {
	if err := o.surface.Resize(extent); err != nil {
		return err
	}
	o.writeDrawImageDescriptors()
	o.stats.Resizes++
	return nil
}

func (o *Orchestrator) updateDrawExtent() {
	swap := o.surface.Extent
	limit := o.surface.MaxDrawExtent()
	o.drawExtent = gpu.Extent2D{
		Width:  math.ScaleDimension(math.Min(swap.Width, limit.Width), o.renderScale),
		Height: math.ScaleDimension(math.Min(swap.Height, limit.Height), o.renderScale),
	}
}

// Draw renders one frame. Frames skipped because the surface is being
// rebuilt or the window has no area return nil; every returned error is
// fatal.
func (o *Orchestrator) Draw() error {
	if err := o.checkAlive("Draw"); err != nil {
		return err
	}
	if o.surface.ResizeRequested() {
		extent := o.window.FramebufferExtent()
		if extent.IsZero() {
			o.stats.FramesSkipped++
			return nil
		}
		if err := o.resize(extent); err != nil {
			return err
		}
	}

	slot, err := o.frames.Reclaim()
	if err != nil {
		return err
	}

	imageIndex, err := o.surface.Acquire(slot.AcquireSemaphore)
	if errors.Is(err, core.ErrSwapchainBooting) {
		// Nothing was recorded; the fence is still signaled.
		o.stats.FramesSkipped++
		return nil
	}
	if err != nil {
		return err
	}

	// Only reset once the submit below is certain to happen.
	if err := o.device.ResetFence(slot.RenderFence); err != nil {
		return core.Fatal(err, "reset frame fence")
	}

	o.updateDrawExtent()
	now := core.AbsoluteTime()
	var dt float64
	if o.lastFrame != 0 {
		dt = now - o.lastFrame
	}
	o.lastFrame = now

	frame := &FrameContext{
		Slot:                 slot,
		Cmd:                  slot.CommandBuffer,
		FrameNumber:          o.frames.FrameNumber(),
		DeltaTime:            dt,
		DrawImage:            o.surface.DrawImage,
		DepthImage:           o.surface.DepthImage,
		DrawExtent:           o.drawExtent,
		DrawImageDescriptors: o.drawImageDescriptors,
		SwapchainImage:       o.surface.Images[imageIndex],
		SwapchainView:        o.surface.Views[imageIndex],
		SwapchainExtent:      o.surface.Extent,
	}
	o.recording = true
	err = o.record(frame)
	o.recording = false
	if err != nil {
		return err
	}

	err = o.device.Submit(gpu.SubmitInfo{
		CommandBuffer: slot.CommandBuffer,
		Wait:          slot.AcquireSemaphore,
		WaitStage:     gpu.PipelineStageColorAttachmentOutput,
		Signal:        slot.ReleaseSemaphore,
		Fence:         slot.RenderFence,
	})
	if err != nil {
		return core.Fatal(err, "submit frame")
	}

	if err := o.surface.Present(imageIndex, slot.ReleaseSemaphore); err != nil {
		return err
	}

	o.frames.Advance()
	o.stats.FramesDrawn++
	return nil
}

func (o *Orchestrator) record(f *FrameContext) error {
	dev := o.device
	cmd := f.Cmd
	if err := dev.ResetCommandBuffer(cmd); err != nil {
		return core.Fatal(err, "reset frame command buffer")
	}
	if err := dev.BeginCommandBuffer(cmd, true); err != nil {
		return core.Fatal(err, "begin frame command buffer")
	}

	draw := f.DrawImage.Image
	dev.CmdTransitionImage(cmd, draw, gpu.ImageLayoutUndefined, gpu.ImageLayoutGeneral)
	if o.background != nil {
		if err := o.background.DrawBackground(o, f); err != nil {
			return core.Fatal(err, "background pass")
		}
	} else {
		dev.CmdClearColor(cmd, draw, gpu.ImageLayoutGeneral, o.opts.ClearColor)
	}

	dev.CmdTransitionImage(cmd, draw, gpu.ImageLayoutGeneral, gpu.ImageLayoutColorAttachment)
	dev.CmdTransitionImage(cmd, f.DepthImage.Image, gpu.ImageLayoutUndefined, gpu.ImageLayoutDepthAttachment)
	if o.geometry != nil {
		if err := o.geometry.DrawGeometry(o, f); err != nil {
			return core.Fatal(err, "geometry pass")
		}
	}

	// Copy the drawn region onto the swapchain image.
	dev.CmdTransitionImage(cmd, draw, gpu.ImageLayoutColorAttachment, gpu.ImageLayoutTransferSrc)
	dev.CmdTransitionImage(cmd, f.SwapchainImage, gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferDst)
	dev.CmdBlitImage(cmd, draw, f.SwapchainImage,
		gpu.Rect2D{Extent: f.DrawExtent},
		gpu.Rect2D{Extent: f.SwapchainExtent})

	dev.CmdTransitionImage(cmd, f.SwapchainImage, gpu.ImageLayoutTransferDst, gpu.ImageLayoutColorAttachment)
	if o.overlay != nil {
		if err := o.overlay.DrawOverlay(o, f); err != nil {
			return core.Fatal(err, "overlay pass")
		}
	}
	dev.CmdTransitionImage(cmd, f.SwapchainImage, gpu.ImageLayoutColorAttachment, gpu.ImageLayoutPresentSrc)

	if err := dev.EndCommandBuffer(cmd); err != nil {
		return core.Fatal(err, "end frame command buffer")
	}
	return nil
}

// Shutdown waits for the device and releases everything the renderer
// created, in reverse order of creation.
// Calling it again does nothing; every other entry point then fails with
// a contract violation.
func (o *Orchestrator) Shutdown() {
	if o.destroyed {
		return
	}
	o.destroyed = true
	if err := o.device.WaitIdle(); err != nil {
		core.LogError("wait idle on shutdown: %s", err)
	}
	if o.frames != nil {
		o.frames.Destroy()
		o.frames = nil
	}
	o.deletion.Close()
	o.surface.Destroy()
	if o.immediate != nil {
		o.immediate.Destroy()
		o.immediate = nil
	}
	core.LogInfo("Frame core shut down after %d frames", o.stats.FramesDrawn)
}
