// Package deletion holds deferred destruction of GPU objects. Actions are
// tagged values naming what they destroy, so the queue can log and
// validate them before touching the device.
package deletion

import (
	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

// Action destroys one object. Exactly one of the handle fields matching
// Kind is set; KindCustom actions run Fn instead.
type Action struct {
	Kind   gpu.ResourceKind
	Handle gpu.Handle
	Buffer gpu.AllocatedBuffer
	Image  gpu.AllocatedImage
	Label  string
	Fn     func()
}

func Buffer(b gpu.AllocatedBuffer) Action {
	return Action{Kind: gpu.KindBuffer, Handle: b.Buffer.Handle, Buffer: b, Label: b.Label}
}

func Image(img gpu.AllocatedImage) Action {
	return Action{Kind: gpu.KindImage, Handle: img.Image.Handle, Image: img, Label: img.Label}
}

func ImageView(v gpu.ImageView) Action {
	return Action{Kind: gpu.KindImageView, Handle: v.Handle}
}

func Fence(f gpu.Fence) Action {
	return Action{Kind: gpu.KindFence, Handle: f.Handle}
}

func Semaphore(s gpu.Semaphore) Action {
	return Action{Kind: gpu.KindSemaphore, Handle: s.Handle}
}

func CommandPool(p gpu.CommandPool) Action {
	return Action{Kind: gpu.KindCommandPool, Handle: p.Handle}
}

func DescriptorPool(p gpu.DescriptorPool) Action {
	return Action{Kind: gpu.KindDescriptorPool, Handle: p.Handle}
}

func DescriptorSetLayout(l gpu.DescriptorSetLayout) Action {
	return Action{Kind: gpu.KindDescriptorSetLayout, Handle: l.Handle}
}

// Func wraps teardown that is not a single device object.
func Func(label string, fn func()) Action {
	return Action{Kind: gpu.KindCustom, Label: label, Fn: fn}
}

// Queue runs actions in reverse order of Push. A queue is owned by one
// goroutine; it does no locking.
type Queue struct {
	name     string
	device   gpu.Device
	log      *log.Logger
	actions  []Action
	flushing bool
	closed   bool
}

func NewQueue(name string, device gpu.Device) *Queue {
	return &Queue{name: name, device: device, log: core.NewLogger("deletion/" + name)}
}

// Push registers an action. Pushing from inside a running Flush, or after
// Close, is a contract violation and returns an error without queueing.
func (q *Queue) Push(a Action) error {
	if q.closed {
		return core.ContractViolation("push of %s %q into closed queue %s", a.Kind, a.Label, q.name)
	}
	if q.flushing {
		return core.ContractViolation("push of %s %q into queue %s while it is flushing", a.Kind, a.Label, q.name)
	}
	if a.Kind == gpu.KindUnknown || (a.Kind == gpu.KindCustom && a.Fn == nil) {
		return core.ContractViolation("push of empty action into queue %s", q.name)
	}
	q.actions = append(q.actions, a)
	return nil
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	return len(q.actions)
}

// Flush runs every pending action, most recent first, and empties the
// queue. Flushing an empty queue does nothing.
func (q *Queue) Flush() {
	if len(q.actions) == 0 {
		return
	}
	q.flushing = true
	defer func() { q.flushing = false }()

	for i := len(q.actions) - 1; i >= 0; i-- {
		a := q.actions[i]
		q.actions[i] = Action{}
		q.log.Debug("destroying", "kind", a.Kind, "handle", a.Handle, "label", a.Label)
		q.run(a)
	}
	q.actions = q.actions[:0]
}

// Close runs the final Flush. Later pushes are rejected, since nothing
// would ever destroy what they register.
func (q *Queue) Close() {
	q.Flush()
	q.closed = true
}

func (q *Queue) run(a Action) {
	switch a.Kind {
	case gpu.KindBuffer:
		q.device.DestroyBuffer(a.Buffer)
	case gpu.KindImage:
		q.device.DestroyImage(a.Image)
	case gpu.KindImageView:
		q.device.DestroyImageView(gpu.ImageView{Handle: a.Handle})
	case gpu.KindFence:
		q.device.DestroyFence(gpu.Fence{Handle: a.Handle})
	case gpu.KindSemaphore:
		q.device.DestroySemaphore(gpu.Semaphore{Handle: a.Handle})
	case gpu.KindCommandPool:
		q.device.DestroyCommandPool(gpu.CommandPool{Handle: a.Handle})
	case gpu.KindDescriptorPool:
		q.device.DestroyDescriptorPool(gpu.DescriptorPool{Handle: a.Handle})
	case gpu.KindDescriptorSetLayout:
		q.device.DestroyDescriptorSetLayout(gpu.DescriptorSetLayout{Handle: a.Handle})
	case gpu.KindCustom:
		a.Fn()
	default:
		q.log.Warn("no destructor", "kind", a.Kind, "handle", a.Handle)
	}
}
