package gpu

import (
	"math/bits"

	"github.com/google/uuid"
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

func (e Extent3D) To2D() Extent2D {
	return Extent2D{Width: e.Width, Height: e.Height}
}

// Rect2D is a region of an image.
type Rect2D struct {
	X, Y   int32
	Extent Extent2D
}

type Format uint32

const (
	FormatUndefined Format = iota
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8Srgb
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR16G16B16A16Sfloat
	FormatD32Sfloat
)

// IsDepth reports whether the format holds depth values.
func (f Format) IsDepth() bool {
	return f == FormatD32Sfloat
}

// BytesPerPixel returns the texel size of color formats.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatR16G16B16A16Sfloat:
		return 8
	case FormatUndefined:
		return 0
	}
	return 4
}

type ColorSpace uint32

const (
	ColorSpaceSRGBNonlinear ColorSpace = iota
	ColorSpaceOther
)

type ImageLayout uint32

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachment
	ImageLayoutDepthAttachment
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
	ImageLayoutShaderReadOnly
	ImageLayoutPresentSrc
)

var layoutNames = [...]string{
	"undefined", "general", "color-attachment", "depth-attachment",
	"transfer-src", "transfer-dst", "shader-read-only", "present-src",
}

func (l ImageLayout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return "invalid"
}

type ImageAspect uint32

const (
	AspectColor ImageAspect = iota
	AspectDepth
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
)

// MemoryUsage selects where a resource lives and whether the host can map it.
type MemoryUsage uint32

const (
	MemoryGPUOnly MemoryUsage = iota
	MemoryCPUToGPU
	MemoryCPUOnly
	MemoryGPUToCPU
)

// HostVisible reports whether buffers in this memory can be written with
// Device.WriteBuffer.
func (m MemoryUsage) HostVisible() bool {
	return m != MemoryGPUOnly
}

type DescriptorType uint32

const (
	DescriptorSampler DescriptorType = iota
	DescriptorCombinedImageSampler
	DescriptorSampledImage
	DescriptorStorageImage
	DescriptorUniformBuffer
	DescriptorStorageBuffer
)

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
)

type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageTransfer
	PipelineStageComputeShader
	PipelineStageColorAttachmentOutput
	PipelineStageBottomOfPipe
	PipelineStageAllCommands
)

// PoolSizeRatio sizes one descriptor type of a pool relative to its set
// count.
type PoolSizeRatio struct {
	Type  DescriptorType
	Ratio float32
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// DescriptorWrite points one binding of a set at an image view or a buffer
// range.
type DescriptorWrite struct {
	Binding   uint32
	Type      DescriptorType
	ImageView ImageView
	Layout    ImageLayout
	Buffer    Buffer
	Offset    uint64
	Range     uint64
}

type BufferInfo struct {
	Size   uint64
	Usage  BufferUsage
	Memory MemoryUsage
	Label  string
}

// AllocatedBuffer is a buffer together with its backing memory.
type AllocatedBuffer struct {
	Buffer Buffer
	Size   uint64
	Usage  BufferUsage
	Memory MemoryUsage
	Label  string
}

type ImageInfo struct {
	Extent    Extent3D
	Format    Format
	Usage     ImageUsage
	MipLevels uint32
	Label     string
}

// AllocatedImage is an image, its backing memory and a default view.
type AllocatedImage struct {
	Image     Image
	View      ImageView
	Extent    Extent3D
	Format    Format
	Usage     ImageUsage
	MipLevels uint32
	Label     string
}

// SubmitInfo describes one batch on the graphics queue. Null semaphores and
// fences are skipped.
type SubmitInfo struct {
	CommandBuffer CommandBuffer
	Wait          Semaphore
	WaitStage     PipelineStage
	Signal        Semaphore
	Fence         Fence
}

// BufferCopy is one region of a buffer to buffer copy.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// MipLevels returns the length of a full mip chain for extent.
func MipLevels(extent Extent2D) uint32 {
	largest := extent.Width
	if extent.Height > largest {
		largest = extent.Height
	}
	if largest == 0 {
		return 1
	}
	return uint32(bits.Len32(largest))
}

// NewLabel builds a unique debug label for a resource.
func NewLabel(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}
