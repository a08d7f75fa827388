// Package frames implements the ring of in-flight frames. Each slot owns
// the objects needed to record and submit one frame, and is only reused
// after its previous submission has completed.
package frames

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/containers"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/deletion"
	"github.com/spaghettifunk/framekeeper/engine/renderer/descriptors"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

// FramesInFlight is the number of slots in the ring.
const FramesInFlight = 2

type Options struct {
	// FenceTimeout bounds the wait on a slot's previous submission.
	FenceTimeout time.Duration
	InitialSets  uint32
	MaxSets      uint32
	Ratios       []gpu.PoolSizeRatio
}

// Slot holds the per frame objects.
type Slot struct {
	Index         int
	CommandPool   gpu.CommandPool
	CommandBuffer gpu.CommandBuffer
	// RenderFence is signaled when the slot's last submission finished.
	RenderFence gpu.Fence
	// AcquireSemaphore is signaled when the swapchain image is available.
	AcquireSemaphore gpu.Semaphore
	// ReleaseSemaphore is signaled when rendering finished; present waits on it.
	ReleaseSemaphore gpu.Semaphore
	Deletion         *deletion.Queue
	Descriptors      *descriptors.GrowableAllocator
}

// Ring rotates FramesInFlight slots.
type Ring struct {
	device      gpu.Device
	opts        Options
	slots       *containers.RingQueue[*Slot]
	frameNumber uint64
}

// NewRing creates every slot. Fences start signaled so the first wait on
// each slot returns at once.
func NewRing(device gpu.Device, opts Options) (*Ring, error) {
	if opts.FenceTimeout <= 0 {
		opts.FenceTimeout = time.Second
	}
	r := &Ring{
		device: device,
		opts:   opts,
		slots:  containers.NewRingQueue[*Slot](FramesInFlight),
	}
	for i := 0; i < FramesInFlight; i++ {
		slot, err := r.newSlot(i)
		if err != nil {
			r.Destroy()
			return nil, err
		}
		if err := r.slots.Enqueue(slot); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Ring) newSlot(index int) (*Slot, error) {
	var err error
	s := &Slot{Index: index}
	s.Deletion = deletion.NewQueue(fmt.Sprintf("frame-%d", index), r.device)

	if s.CommandPool, err = r.device.CreateCommandPool(); err != nil {
		return nil, core.Fatal(err, "create frame command pool")
	}
	if s.CommandBuffer, err = r.device.AllocateCommandBuffer(s.CommandPool); err != nil {
		r.device.DestroyCommandPool(s.CommandPool)
		return nil, core.Fatal(err, "allocate frame command buffer")
	}
	if s.RenderFence, err = r.device.CreateFence(true); err != nil {
		r.device.DestroyCommandPool(s.CommandPool)
		return nil, core.Fatal(err, "create frame fence")
	}
	if s.AcquireSemaphore, err = r.device.CreateSemaphore(); err != nil {
		r.destroySlot(s)
		return nil, core.Fatal(err, "create acquire semaphore")
	}
	if s.ReleaseSemaphore, err = r.device.CreateSemaphore(); err != nil {
		r.destroySlot(s)
		return nil, core.Fatal(err, "create release semaphore")
	}

	s.Descriptors = descriptors.NewGrowableAllocator(fmt.Sprintf("frame-%d", index), r.device)
	if r.opts.MaxSets > 0 {
		s.Descriptors.SetMaxSetsPerPool(r.opts.MaxSets)
	}
	initial := r.opts.InitialSets
	if initial == 0 {
		initial = 1000
	}
	if err := s.Descriptors.Init(initial, r.opts.Ratios); err != nil {
		r.destroySlot(s)
		return nil, err
	}
	return s, nil
}

// Current returns the slot used by the frame being built.
func (r *Ring) Current() *Slot {
	s, err := r.slots.Peek()
	if err != nil {
		return nil
	}
	return s
}

// FrameNumber counts completed Advance calls.
func (r *Ring) FrameNumber() uint64 {
	return r.frameNumber
}

// Advance moves to the next slot.
func (r *Ring) Advance() *Slot {
	r.frameNumber++
	s, _ := r.slots.Rotate()
	return s
}

// Reclaim waits for the current slot's previous submission, then runs its
// deferred destructors and resets its descriptor pools. The fence itself
// is left signaled; the caller resets it once work is certain to be
// submitted. A timeout is fatal.
func (r *Ring) Reclaim() (*Slot, error) {
	s := r.Current()
	if err := r.device.WaitForFence(s.RenderFence, r.opts.FenceTimeout); err != nil {
		if errors.Is(err, gpu.ErrTimeout) {
			return nil, core.Fatal(errors.Wrapf(err, "frame %d after %s", r.frameNumber, r.opts.FenceTimeout), "wait for frame fence")
		}
		return nil, core.Fatal(err, "wait for frame fence")
	}
	s.Deletion.Flush()
	if err := s.Descriptors.ClearPools(); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Ring) destroySlot(s *Slot) {
	if s.Descriptors != nil {
		s.Descriptors.DestroyPools()
	}
	s.Deletion.Close()
	if !s.ReleaseSemaphore.IsNull() {
		r.device.DestroySemaphore(s.ReleaseSemaphore)
	}
	if !s.AcquireSemaphore.IsNull() {
		r.device.DestroySemaphore(s.AcquireSemaphore)
	}
	if !s.RenderFence.IsNull() {
		r.device.DestroyFence(s.RenderFence)
	}
	if !s.CommandPool.IsNull() {
		r.device.DestroyCommandPool(s.CommandPool)
	}
}

// Destroy releases every slot. The device must be idle.
func (r *Ring) Destroy() {
	for !r.slots.IsEmpty() {
		s, _ := r.slots.Dequeue()
		r.destroySlot(s)
	}
}
