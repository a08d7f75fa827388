package vulkan

import (
	"math"
	"sync"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framekeeper/engine/containers"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

// ErrUnknownHandle is returned when a handle does not resolve, either
// because it was never created here or because it was already destroyed.
var ErrUnknownHandle = errors.New("unknown or stale handle")

type commandBuffer struct {
	handle vk.CommandBuffer
	pool   gpu.CommandPool
}

type buffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	mapped unsafe.Pointer
}

type image struct {
	handle vk.Image
	memory vk.DeviceMemory
	// owned is false for swapchain images, which are released together
	// with their swapchain.
	owned     bool
	format    gpu.Format
	mipLevels uint32
}

type descriptorSet struct {
	handle vk.DescriptorSet
	pool   gpu.DescriptorPool
}

type swapchain struct {
	handle vk.Swapchain
	images []gpu.Image
	format gpu.Format
	extent gpu.Extent2D
}

// Backend implements gpu.Device and gpu.Presenter on top of a Vulkan
// device. Vulkan objects never leave the package; callers hold
// generational handles that are resolved through per-kind tables.
type Backend struct {
	ctx     *context
	queues  *queueLocks
	sampler vk.Sampler

	mu              sync.Mutex
	fences          *containers.HandleTable[vk.Fence]
	semaphores      *containers.HandleTable[vk.Semaphore]
	commandPools    *containers.HandleTable[vk.CommandPool]
	commandBuffers  *containers.HandleTable[commandBuffer]
	buffers         *containers.HandleTable[buffer]
	images          *containers.HandleTable[image]
	views           *containers.HandleTable[vk.ImageView]
	descriptorPools *containers.HandleTable[vk.DescriptorPool]
	layouts         *containers.HandleTable[vk.DescriptorSetLayout]
	sets            *containers.HandleTable[descriptorSet]
	swapchains      *containers.HandleTable[swapchain]
}

var (
	_ gpu.Device    = (*Backend)(nil)
	_ gpu.Presenter = (*Backend)(nil)
)

// New creates the instance, surface and logical device.
func New(opts Options) (*Backend, error) {
	ctx, err := newContext(opts)
	if err != nil {
		return nil, err
	}
	b := &Backend{
		ctx:             ctx,
		queues:          newQueueLocks(ctx.graphicsFamily, ctx.presentFamily),
		fences:          containers.NewHandleTable[vk.Fence](),
		semaphores:      containers.NewHandleTable[vk.Semaphore](),
		commandPools:    containers.NewHandleTable[vk.CommandPool](),
		commandBuffers:  containers.NewHandleTable[commandBuffer](),
		buffers:         containers.NewHandleTable[buffer](),
		images:          containers.NewHandleTable[image](),
		views:           containers.NewHandleTable[vk.ImageView](),
		descriptorPools: containers.NewHandleTable[vk.DescriptorPool](),
		layouts:         containers.NewHandleTable[vk.DescriptorSetLayout](),
		sets:            containers.NewHandleTable[descriptorSet](),
		swapchains:      containers.NewHandleTable[swapchain](),
	}
	if err := b.createSampler(); err != nil {
		ctx.destroy()
		return nil, err
	}
	core.LogInfo("Vulkan backend initialized on %s.", b.DeviceName())
	return b, nil
}

// DeviceName returns the name of the selected physical device.
func (b *Backend) DeviceName() string {
	return vk.ToString(b.ctx.properties.DeviceName[:])
}

func (b *Backend) createSampler() error {
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: vk.SamplerAddressModeRepeat,
		AddressModeV: vk.SamplerAddressModeRepeat,
		AddressModeW: vk.SamplerAddressModeRepeat,
		MaxLod:       1000,
		BorderColor:  vk.BorderColorIntOpaqueBlack,
	}
	return resultError(vk.CreateSampler(b.ctx.device, &info, b.ctx.allocator, &b.sampler), "create sampler")
}

func (b *Backend) WaitIdle() error {
	return resultError(vk.DeviceWaitIdle(b.ctx.device), "device wait idle")
}

// Close waits for the device, reports handles that were never destroyed
// and tears down the device and instance.
func (b *Backend) Close() error {
	err := b.WaitIdle()

	b.mu.Lock()
	leaks := map[gpu.ResourceKind]int{
		gpu.KindFence:               b.fences.Len(),
		gpu.KindSemaphore:           b.semaphores.Len(),
		gpu.KindCommandPool:         b.commandPools.Len(),
		gpu.KindBuffer:              b.buffers.Len(),
		gpu.KindImageView:           b.views.Len(),
		gpu.KindDescriptorPool:      b.descriptorPools.Len(),
		gpu.KindDescriptorSetLayout: b.layouts.Len(),
		gpu.KindSwapchain:           b.swapchains.Len(),
	}
	b.mu.Unlock()
	for kind, n := range leaks {
		if n > 0 {
			core.LogWarn("Vulkan backend closed with %d live %s handle(s).", n, kind)
		}
	}

	vk.DestroySampler(b.ctx.device, b.sampler, b.ctx.allocator)
	b.ctx.destroy()
	core.LogInfo("Vulkan backend shut down.")
	return err
}

func timeoutNs(d time.Duration) uint64 {
	if d < 0 {
		return math.MaxUint64
	}
	return uint64(d.Nanoseconds())
}

func lookup[T any](b *Backend, t *containers.HandleTable[T], h gpu.Handle) (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return t.Get(h.ID, h.Generation)
}

func remove[T any](b *Backend, t *containers.HandleTable[T], h gpu.Handle) (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return t.Remove(h.ID, h.Generation)
}

func insert[T any](b *Backend, t *containers.HandleTable[T], v T) gpu.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, gen := t.Insert(v)
	return gpu.Handle{ID: id, Generation: gen}
}

func unknown(kind gpu.ResourceKind, h gpu.Handle) error {
	return errors.Wrapf(ErrUnknownHandle, "%s %s", kind, h)
}

func warnUnknown(op string, kind gpu.ResourceKind, h gpu.Handle) {
	core.LogWarn("%s: %s %s does not resolve", op, kind, h)
}
