package frames

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/deletion"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu/gputest"
)

func newRing(t *testing.T, latency, timeout time.Duration) (*gputest.Device, *Ring) {
	t.Helper()
	dev := gputest.New(gputest.Options{Latency: latency})
	ring, err := NewRing(dev, Options{
		FenceTimeout: timeout,
		InitialSets:  4,
		Ratios:       []gpu.PoolSizeRatio{{Type: gpu.DescriptorUniformBuffer, Ratio: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = dev.WaitIdle()
		ring.Destroy()
		dev.Close()
	})
	return dev, ring
}

// submitFrame runs one frame through the ring. record may add commands.
func submitFrame(t *testing.T, dev *gputest.Device, ring *Ring, record func(s *Slot)) *Slot {
	t.Helper()
	s, err := ring.Reclaim()
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.ResetFence(s.RenderFence); err != nil {
		t.Fatal(err)
	}
	if err := dev.ResetCommandBuffer(s.CommandBuffer); err != nil {
		t.Fatal(err)
	}
	if err := dev.BeginCommandBuffer(s.CommandBuffer, true); err != nil {
		t.Fatal(err)
	}
	if record != nil {
		record(s)
	}
	if err := dev.EndCommandBuffer(s.CommandBuffer); err != nil {
		t.Fatal(err)
	}
	if err := dev.Submit(gpu.SubmitInfo{CommandBuffer: s.CommandBuffer, Fence: s.RenderFence}); err != nil {
		t.Fatal(err)
	}
	ring.Advance()
	return s
}

func TestSteadyStateWaitsOnSlotFromTwoFramesAgo(t *testing.T) {
	dev, ring := newRing(t, 5*time.Millisecond, time.Second)

	for i := 0; i < 4; i++ {
		submitFrame(t, dev, ring, nil)
	}

	waits := dev.EventsOf(gputest.EventFenceWait)
	submits := dev.EventsOf(gputest.EventSubmit)
	if len(waits) != 4 || len(submits) != 4 {
		t.Fatalf("got %d waits and %d submits, want 4 each", len(waits), len(submits))
	}
	if waits[2].Handle != submits[0].Handle {
		t.Fatalf("frame 2 waited on %s, want frame 0's fence %s", waits[2].Handle, submits[0].Handle)
	}
	if waits[2].Handle == submits[1].Handle {
		t.Fatal("frame 2 waited on frame 1's fence")
	}
	if waits[3].Handle != submits[1].Handle {
		t.Fatalf("frame 3 waited on %s, want frame 1's fence %s", waits[3].Handle, submits[1].Handle)
	}
	if ring.FrameNumber() != 4 {
		t.Fatalf("frame number = %d, want 4", ring.FrameNumber())
	}
}

func TestDeferredDestructionWaitsForFence(t *testing.T) {
	dev, ring := newRing(t, 20*time.Millisecond, time.Second)

	for frame := 0; frame < 6; frame++ {
		submitFrame(t, dev, ring, func(s *Slot) {
			src, err := dev.CreateBuffer(gpu.BufferInfo{Size: 16, Memory: gpu.MemoryCPUToGPU, Usage: gpu.BufferUsageTransferSrc})
			if err != nil {
				t.Fatal(err)
			}
			dst, err := dev.CreateBuffer(gpu.BufferInfo{Size: 16, Memory: gpu.MemoryGPUOnly, Usage: gpu.BufferUsageTransferDst})
			if err != nil {
				t.Fatal(err)
			}
			dev.CmdCopyBuffer(s.CommandBuffer, src.Buffer, dst.Buffer, gpu.BufferCopy{Size: 16})
			fence := s.RenderFence
			_ = s.Deletion.Push(deletion.Buffer(src))
			_ = s.Deletion.Push(deletion.Buffer(dst))
			_ = s.Deletion.Push(deletion.Func("check-fence", func() {
				if !dev.FenceSignaled(fence) {
					t.Errorf("frame resources released before fence %s signaled", fence.Handle)
				}
			}))
		})
	}

	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("GPU was still using destroyed resources: %v", v)
	}
	// Four frames have been reclaimed, the last two are still queued.
	if got := dev.Live(gpu.KindBuffer); got != 4 {
		t.Fatalf("live buffers = %d, want 4", got)
	}
}

func TestReclaimTimeoutIsFatal(t *testing.T) {
	dev, ring := newRing(t, 0, 20*time.Millisecond)
	dev.Hang()
	defer dev.Resume()

	submitFrame(t, dev, ring, nil)
	submitFrame(t, dev, ring, nil)

	_, err := ring.Reclaim()
	if !core.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if !errors.Is(err, gpu.ErrTimeout) {
		t.Fatalf("expected timeout cause, got %v", err)
	}
}
