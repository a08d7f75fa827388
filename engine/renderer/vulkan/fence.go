package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

func (b *Backend) CreateFence(signaled bool) (gpu.Fence, error) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := resultError(vk.CreateFence(b.ctx.device, &info, b.ctx.allocator, &fence), "create fence"); err != nil {
		return gpu.Fence{}, err
	}
	return gpu.Fence{Handle: insert(b, b.fences, fence)}, nil
}

func (b *Backend) DestroyFence(f gpu.Fence) {
	fence, ok := remove(b, b.fences, f.Handle)
	if !ok {
		warnUnknown("destroy fence", gpu.KindFence, f.Handle)
		return
	}
	vk.DestroyFence(b.ctx.device, fence, b.ctx.allocator)
}

// WaitForFence blocks until f is signaled. A negative timeout waits
// forever.
func (b *Backend) WaitForFence(f gpu.Fence, timeout time.Duration) error {
	fence, ok := lookup(b, b.fences, f.Handle)
	if !ok {
		return unknown(gpu.KindFence, f.Handle)
	}
	res := vk.WaitForFences(b.ctx.device, 1, []vk.Fence{fence}, vk.True, timeoutNs(timeout))
	return resultError(res, "wait for fence")
}

func (b *Backend) ResetFence(f gpu.Fence) error {
	fence, ok := lookup(b, b.fences, f.Handle)
	if !ok {
		return unknown(gpu.KindFence, f.Handle)
	}
	return resultError(vk.ResetFences(b.ctx.device, 1, []vk.Fence{fence}), "reset fence")
}

func (b *Backend) CreateSemaphore() (gpu.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sem vk.Semaphore
	if err := resultError(vk.CreateSemaphore(b.ctx.device, &info, b.ctx.allocator, &sem), "create semaphore"); err != nil {
		return gpu.Semaphore{}, err
	}
	return gpu.Semaphore{Handle: insert(b, b.semaphores, sem)}, nil
}

func (b *Backend) DestroySemaphore(s gpu.Semaphore) {
	sem, ok := remove(b, b.semaphores, s.Handle)
	if !ok {
		warnUnknown("destroy semaphore", gpu.KindSemaphore, s.Handle)
		return
	}
	vk.DestroySemaphore(b.ctx.device, sem, b.ctx.allocator)
}
