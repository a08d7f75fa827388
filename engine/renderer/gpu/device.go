package gpu

import "time"

// Device is the slice of a graphics device the frame core drives. All
// calls happen on the submitting thread; implementations may execute the
// submitted work asynchronously.
type Device interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitForFence blocks until f is signaled or timeout elapses, in which
	// case ErrTimeout is returned.
	WaitForFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	CreateCommandPool() (CommandPool, error)
	DestroyCommandPool(p CommandPool)
	AllocateCommandBuffer(p CommandPool) (CommandBuffer, error)
	ResetCommandBuffer(cb CommandBuffer) error
	BeginCommandBuffer(cb CommandBuffer, oneTime bool) error
	EndCommandBuffer(cb CommandBuffer) error

	Submit(info SubmitInfo) error
	WaitIdle() error

	CreateDescriptorPool(maxSets uint32, ratios []PoolSizeRatio) (DescriptorPool, error)
	ResetDescriptorPool(p DescriptorPool) error
	DestroyDescriptorPool(p DescriptorPool)
	// AllocateDescriptorSet returns ErrOutOfPoolMemory or ErrFragmentedPool
	// when p cannot serve the request.
	AllocateDescriptorSet(p DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	UpdateDescriptorSet(set DescriptorSet, writes []DescriptorWrite)

	CreateBuffer(info BufferInfo) (AllocatedBuffer, error)
	DestroyBuffer(b AllocatedBuffer)
	// WriteBuffer copies data into a host visible buffer.
	WriteBuffer(b AllocatedBuffer, offset uint64, data []byte) error
	CreateImage(info ImageInfo) (AllocatedImage, error)
	DestroyImage(img AllocatedImage)
	CreateImageView(img Image, format Format, aspect ImageAspect) (ImageView, error)
	DestroyImageView(v ImageView)

	CmdTransitionImage(cb CommandBuffer, img Image, from, to ImageLayout)
	CmdClearColor(cb CommandBuffer, img Image, layout ImageLayout, color [4]float32)
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, regions ...BufferCopy)
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, extent Extent3D)
	CmdBlitImage(cb CommandBuffer, src, dst Image, srcRegion, dstRegion Rect2D)
	// CmdGenerateMipmaps expects every level in TransferDst and leaves the
	// chain in ShaderReadOnly.
	CmdGenerateMipmaps(cb CommandBuffer, img Image, extent Extent2D, mipLevels uint32)
}

type PresentMode uint32

const (
	PresentModeFIFO PresentMode = iota
	PresentModeMailbox
	PresentModeImmediate
	PresentModeFIFORelaxed
)

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// Zero means no upper bound.
	MaxImageCount uint32
	// A width of 0xFFFFFFFF means the surface size follows the swapchain.
	CurrentExtent Extent2D
	MinExtent     Extent2D
	MaxExtent     Extent2D
	Formats       []SurfaceFormat
	PresentModes  []PresentMode
}

type SwapchainInfo struct {
	Extent      Extent2D
	Format      SurfaceFormat
	PresentMode PresentMode
	ImageCount  uint32
	Old         Swapchain
}

// Presenter is implemented by devices that own a window surface.
type Presenter interface {
	SurfaceCapabilities() (SurfaceCapabilities, error)
	CreateSwapchain(info SwapchainInfo) (Swapchain, error)
	SwapchainImages(sc Swapchain) ([]Image, error)
	DestroySwapchain(sc Swapchain)
	// AcquireNextImage signals sem once the returned image is available.
	// ErrSuboptimal comes with a valid index.
	AcquireNextImage(sc Swapchain, timeout time.Duration, sem Semaphore) (uint32, error)
	// Present queues image for display after wait is signaled. ErrSuboptimal
	// means the image was presented.
	Present(sc Swapchain, image uint32, wait Semaphore) error
}
