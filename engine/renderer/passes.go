package renderer

import (
	"github.com/spaghettifunk/framekeeper/engine/renderer/frames"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

// FrameContext is what a pass needs to record into the current frame.
type FrameContext struct {
	Slot        *frames.Slot
	Cmd         gpu.CommandBuffer
	FrameNumber uint64
	// DeltaTime is the time since the previous frame in seconds.
	DeltaTime float64

	DrawImage            gpu.AllocatedImage
	DepthImage           gpu.AllocatedImage
	DrawExtent           gpu.Extent2D
	DrawImageDescriptors gpu.DescriptorSet

	SwapchainImage  gpu.Image
	SwapchainView   gpu.ImageView
	SwapchainExtent gpu.Extent2D
}

// BackgroundPass fills the draw image. It runs with the draw image in
// ImageLayoutGeneral.
type BackgroundPass interface {
	DrawBackground(r *Orchestrator, f *FrameContext) error
}

// GeometryPass renders the scene. The draw image is in
// ImageLayoutColorAttachment and the depth image in
// ImageLayoutDepthAttachment.
type GeometryPass interface {
	DrawGeometry(r *Orchestrator, f *FrameContext) error
}

// OverlayPass draws on top of the swapchain image, which is in
// ImageLayoutColorAttachment on entry and must be left there.
type OverlayPass interface {
	DrawOverlay(r *Orchestrator, f *FrameContext) error
}

// Window reports the size of the drawable area in pixels.
type Window interface {
	FramebufferExtent() gpu.Extent2D
}
