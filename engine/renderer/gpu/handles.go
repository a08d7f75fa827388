package gpu

import "fmt"

// Handle identifies a device object. The generation guards against a
// released id being resolved after it was handed out again. The zero
// Handle is null.
type Handle struct {
	ID         uint32
	Generation uint32
}

func (h Handle) IsNull() bool {
	return h.ID == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.ID, h.Generation)
}

type (
	Fence               struct{ Handle }
	Semaphore           struct{ Handle }
	CommandPool         struct{ Handle }
	CommandBuffer       struct{ Handle }
	Buffer              struct{ Handle }
	Image               struct{ Handle }
	ImageView           struct{ Handle }
	DescriptorPool      struct{ Handle }
	DescriptorSetLayout struct{ Handle }
	DescriptorSet       struct{ Handle }
	Swapchain           struct{ Handle }
)

// ResourceKind names the kind of object a handle refers to. It is used to
// validate and log deferred destruction.
type ResourceKind uint8

const (
	KindUnknown ResourceKind = iota
	KindFence
	KindSemaphore
	KindCommandPool
	KindCommandBuffer
	KindBuffer
	KindImage
	KindImageView
	KindDescriptorPool
	KindDescriptorSetLayout
	KindDescriptorSet
	KindSwapchain
	KindCustom
)

var kindNames = [...]string{
	KindUnknown:             "unknown",
	KindFence:               "fence",
	KindSemaphore:           "semaphore",
	KindCommandPool:         "command-pool",
	KindCommandBuffer:       "command-buffer",
	KindBuffer:              "buffer",
	KindImage:               "image",
	KindImageView:           "image-view",
	KindDescriptorPool:      "descriptor-pool",
	KindDescriptorSetLayout: "descriptor-set-layout",
	KindDescriptorSet:       "descriptor-set",
	KindSwapchain:           "swapchain",
	KindCustom:              "custom",
}

func (k ResourceKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}
