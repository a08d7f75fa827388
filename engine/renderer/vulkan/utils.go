package vulkan

import (
	"fmt"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

var resultNames = map[vk.Result]string{
	vk.Success:                   "VK_SUCCESS",
	vk.NotReady:                  "VK_NOT_READY",
	vk.Timeout:                   "VK_TIMEOUT",
	vk.EventSet:                  "VK_EVENT_SET",
	vk.EventReset:                "VK_EVENT_RESET",
	vk.Incomplete:                "VK_INCOMPLETE",
	vk.Suboptimal:                "VK_SUBOPTIMAL_KHR",
	vk.ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:           "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:      "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:      "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:  "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:    "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:   "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:       "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:   "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorFragmentedPool:       "VK_ERROR_FRAGMENTED_POOL",
	vk.ErrorSurfaceLost:          "VK_ERROR_SURFACE_LOST_KHR",
	vk.ErrorNativeWindowInUse:    "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	vk.ErrorOutOfDate:            "VK_ERROR_OUT_OF_DATE_KHR",
	vk.ErrorOutOfPoolMemory:      "VK_ERROR_OUT_OF_POOL_MEMORY",
	vk.ErrorFragmentation:        "VK_ERROR_FRAGMENTATION",
	vk.ErrorUnknown:              "VK_ERROR_UNKNOWN",
}

func resultString(res vk.Result) string {
	if name, ok := resultNames[res]; ok {
		return name
	}
	return fmt.Sprintf("VkResult(%d)", int32(res))
}

// resultError maps a Vulkan result onto the gpu sentinels so the frame core
// can react with errors.Is. Success maps to nil.
func resultError(res vk.Result, op string) error {
	var sentinel error
	switch res {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		sentinel = gpu.ErrSuboptimal
	case vk.Timeout:
		sentinel = gpu.ErrTimeout
	case vk.NotReady:
		sentinel = gpu.ErrNotReady
	case vk.ErrorOutOfDate:
		sentinel = gpu.ErrOutOfDate
	case vk.ErrorDeviceLost:
		sentinel = gpu.ErrDeviceLost
	case vk.ErrorSurfaceLost:
		sentinel = gpu.ErrSurfaceLost
	case vk.ErrorOutOfPoolMemory:
		sentinel = gpu.ErrOutOfPoolMemory
	case vk.ErrorFragmentedPool:
		sentinel = gpu.ErrFragmentedPool
	case vk.ErrorOutOfDeviceMemory:
		sentinel = gpu.ErrOutOfDeviceMemory
	case vk.ErrorOutOfHostMemory:
		sentinel = gpu.ErrOutOfHostMemory
	case vk.ErrorInitializationFailed:
		sentinel = gpu.ErrInitializationFail
	default:
		return errors.Newf("%s: %s", op, resultString(res))
	}
	return errors.Wrapf(sentinel, "%s (%s)", op, resultString(res))
}

const nul = "\x00"

func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + nul
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}
