package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer"
	"github.com/spaghettifunk/framekeeper/engine/renderer/deletion"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

const (
	padding = 4
	margin  = 8
)

var (
	panelColor = color.RGBA{R: 16, G: 16, B: 24, A: 255}
	textColor  = color.RGBA{R: 230, G: 230, B: 230, A: 255}
)

// HUD draws frame statistics in the top left corner of the swapchain
// image. Text is composed on the CPU, uploaded through a per-frame staging
// buffer and blitted, so no pipeline is needed.
type HUD struct {
	font    Font
	metrics *core.Metrics
	scale   int
	canvas  *image.RGBA
	texture gpu.AllocatedImage
	extra   []string
}

// NewHUD creates the GPU texture the panel is uploaded into. It is
// released by the orchestrator's global deletion queue.
func NewHUD(r *renderer.Orchestrator, font Font, metrics *core.Metrics, width, scale int) (*HUD, error) {
	if font == nil {
		font = DefaultFont()
	}
	if scale < 1 {
		scale = 1
	}
	h := &HUD{font: font, metrics: metrics, scale: scale}
	lines := len(h.lines(r, nil))
	height := lines*font.LineHeight() + 2*padding
	h.canvas = image.NewRGBA(image.Rect(0, 0, width, height))

	ext := gpu.Extent3D{Width: uint32(width * scale), Height: uint32(height * scale), Depth: 1}
	tex, err := r.CreateImage(ext, gpu.FormatR8G8B8A8Unorm, gpu.ImageUsageTransferDst|gpu.ImageUsageTransferSrc, false)
	if err != nil {
		return nil, err
	}
	h.texture = tex
	if err := r.DeletionQueue().Push(deletion.Image(tex)); err != nil {
		r.DestroyImage(tex)
		return nil, err
	}
	return h, nil
}

// SetExtra replaces the free form lines shown below the statistics. The
// panel height is fixed at creation, so lines beyond it are dropped.
func (h *HUD) SetExtra(lines ...string) {
	h.extra = append(h.extra[:0], lines...)
}

func (h *HUD) lines(r *renderer.Orchestrator, f *renderer.FrameContext) []string {
	fps, ms := 0.0, 0.0
	if h.metrics != nil {
		fps, ms = h.metrics.Frame()
	}
	var frame uint64
	var ext gpu.Extent2D
	if f != nil {
		frame, ext = f.FrameNumber, f.DrawExtent
	}
	stats := r.Stats()
	return []string{
		fmt.Sprintf("%.0f fps  %.2f ms", fps, ms),
		fmt.Sprintf("frame %d  skipped %d", frame, stats.FramesSkipped),
		fmt.Sprintf("draw %dx%d @ %.2f", ext.Width, ext.Height, r.RenderScale()),
	}
}

// Compose renders the panel into the CPU canvas and returns it scaled.
func (h *HUD) Compose(r *renderer.Orchestrator, f *renderer.FrameContext) *image.RGBA {
	draw.Draw(h.canvas, h.canvas.Bounds(), image.NewUniform(panelColor), image.Point{}, draw.Src)
	rows := (h.canvas.Bounds().Dy() - 2*padding) / h.font.LineHeight()
	y := padding
	for i, line := range append(h.lines(r, f), h.extra...) {
		if i >= rows {
			break
		}
		h.font.DrawString(h.canvas, image.Pt(padding, y), line, textColor)
		y += h.font.LineHeight()
	}
	return upscale(h.canvas, h.scale)
}

func (h *HUD) DrawOverlay(r *renderer.Orchestrator, f *renderer.FrameContext) error {
	panel := h.Compose(r, f)
	dev := r.Device()

	staging, err := r.CreateBuffer(uint64(len(panel.Pix)), gpu.BufferUsageTransferSrc, gpu.MemoryCPUToGPU)
	if err != nil {
		return err
	}
	if err := dev.WriteBuffer(staging, 0, panel.Pix); err != nil {
		dev.DestroyBuffer(staging)
		return err
	}
	// The copy below runs when this frame executes.
	if err := f.Slot.Deletion.Push(deletion.Buffer(staging)); err != nil {
		dev.DestroyBuffer(staging)
		return err
	}

	tex := h.texture
	dev.CmdTransitionImage(f.Cmd, tex.Image, gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferDst)
	dev.CmdCopyBufferToImage(f.Cmd, staging.Buffer, tex.Image, tex.Extent)
	dev.CmdTransitionImage(f.Cmd, tex.Image, gpu.ImageLayoutTransferDst, gpu.ImageLayoutTransferSrc)

	region := tex.Extent.To2D()
	dst := gpu.Extent2D{
		Width:  min(region.Width, f.SwapchainExtent.Width-min(margin, f.SwapchainExtent.Width)),
		Height: min(region.Height, f.SwapchainExtent.Height-min(margin, f.SwapchainExtent.Height)),
	}
	if dst.IsZero() {
		return nil
	}
	dev.CmdTransitionImage(f.Cmd, f.SwapchainImage, gpu.ImageLayoutColorAttachment, gpu.ImageLayoutTransferDst)
	dev.CmdBlitImage(f.Cmd, tex.Image, f.SwapchainImage,
		gpu.Rect2D{Extent: dst},
		gpu.Rect2D{X: margin, Y: margin, Extent: dst})
	dev.CmdTransitionImage(f.Cmd, f.SwapchainImage, gpu.ImageLayoutTransferDst, gpu.ImageLayoutColorAttachment)
	return nil
}
