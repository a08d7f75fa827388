// Package immediate runs one-off command buffers synchronously, outside
// the frame ring. It backs uploads and setup work.
package immediate

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

// MaxTimeout bounds a submit configured to wait forever.
const MaxTimeout = 10 * time.Minute

// RecordFunc records commands into cmd.
type RecordFunc func(cmd gpu.CommandBuffer)

// Channel owns a command pool, a command buffer and a fence used for
// blocking submissions.
type Channel struct {
	device  gpu.Device
	pool    gpu.CommandPool
	cmd     gpu.CommandBuffer
	fence   gpu.Fence
	timeout time.Duration
	busy    atomic.Bool
}

// NewChannel creates the channel. A zero timeout waits up to MaxTimeout.
func NewChannel(device gpu.Device, timeout time.Duration) (*Channel, error) {
	if timeout <= 0 || timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	c := &Channel{device: device, timeout: timeout}

	var err error
	if c.pool, err = device.CreateCommandPool(); err != nil {
		return nil, core.Fatal(err, "create immediate command pool")
	}
	if c.cmd, err = device.AllocateCommandBuffer(c.pool); err != nil {
		device.DestroyCommandPool(c.pool)
		return nil, core.Fatal(err, "allocate immediate command buffer")
	}
	if c.fence, err = device.CreateFence(true); err != nil {
		device.DestroyCommandPool(c.pool)
		return nil, core.Fatal(err, "create immediate fence")
	}
	return c, nil
}

// Submit records fn, submits it and blocks until the GPU has finished it.
// Calling Submit again before it returns, including from inside fn, is a
// contract violation.
func (c *Channel) Submit(fn RecordFunc) error {
	if !c.busy.CompareAndSwap(false, true) {
		return core.ContractViolation("immediate submit is not reentrant")
	}
	defer c.busy.Store(false)

	if err := c.device.ResetFence(c.fence); err != nil {
		return core.Fatal(err, "reset immediate fence")
	}
	if err := c.device.ResetCommandBuffer(c.cmd); err != nil {
		return core.Fatal(err, "reset immediate command buffer")
	}
	if err := c.device.BeginCommandBuffer(c.cmd, true); err != nil {
		return core.Fatal(err, "begin immediate command buffer")
	}

	fn(c.cmd)

	if err := c.device.EndCommandBuffer(c.cmd); err != nil {
		return core.Fatal(err, "end immediate command buffer")
	}
	if err := c.device.Submit(gpu.SubmitInfo{CommandBuffer: c.cmd, Fence: c.fence}); err != nil {
		return core.Fatal(err, "immediate submit")
	}
	if err := c.device.WaitForFence(c.fence, c.timeout); err != nil {
		if errors.Is(err, gpu.ErrTimeout) {
			return core.Fatal(errors.Wrapf(err, "after %s", c.timeout), "wait for immediate submit")
		}
		return core.Fatal(err, "wait for immediate submit")
	}
	return nil
}

// Destroy releases the channel. The device must be idle.
func (c *Channel) Destroy() {
	c.device.DestroyFence(c.fence)
	c.device.DestroyCommandPool(c.pool)
}
