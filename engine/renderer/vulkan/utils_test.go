package vulkan

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

func TestResultError(t *testing.T) {
	tests := []struct {
		res  vk.Result
		want error
	}{
		{vk.Suboptimal, gpu.ErrSuboptimal},
		{vk.Timeout, gpu.ErrTimeout},
		{vk.ErrorOutOfDate, gpu.ErrOutOfDate},
		{vk.ErrorDeviceLost, gpu.ErrDeviceLost},
		{vk.ErrorOutOfPoolMemory, gpu.ErrOutOfPoolMemory},
		{vk.ErrorFragmentedPool, gpu.ErrFragmentedPool},
		{vk.ErrorOutOfDeviceMemory, gpu.ErrOutOfDeviceMemory},
	}
	for _, tt := range tests {
		t.Run(resultString(tt.res), func(t *testing.T) {
			err := resultError(tt.res, "op")
			if !errors.Is(err, tt.want) {
				t.Errorf("resultError(%s) = %v, want %v", resultString(tt.res), err, tt.want)
			}
			if !strings.Contains(err.Error(), resultString(tt.res)) {
				t.Errorf("error %q does not name the result", err)
			}
		})
	}
	if err := resultError(vk.Success, "op"); err != nil {
		t.Errorf("success mapped to %v", err)
	}
	if err := resultError(vk.ErrorLayerNotPresent, "create instance"); err == nil || !strings.HasPrefix(err.Error(), "create instance") {
		t.Errorf("unclassified result = %v", err)
	}
}

func TestResultStringUnknown(t *testing.T) {
	if got := resultString(vk.Result(-12345)); got != "VkResult(-12345)" {
		t.Errorf("resultString = %q", got)
	}
}

func TestSafeString(t *testing.T) {
	if got := safeString("VK_LAYER"); got != "VK_LAYER\x00" {
		t.Errorf("safeString = %q", got)
	}
	if got := safeString("done\x00"); got != "done\x00" {
		t.Errorf("already terminated string changed to %q", got)
	}
	got := safeStrings([]string{"a", "b\x00"})
	if got[0] != "a\x00" || got[1] != "b\x00" {
		t.Errorf("safeStrings = %q", got)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for _, f := range []gpu.Format{
		gpu.FormatR8G8B8A8Unorm, gpu.FormatR8G8B8A8Srgb, gpu.FormatB8G8R8A8Unorm,
		gpu.FormatB8G8R8A8Srgb, gpu.FormatR16G16B16A16Sfloat, gpu.FormatD32Sfloat,
	} {
		if got := gpuFormat(vkFormat(f)); got != f {
			t.Errorf("format %v came back as %v", f, got)
		}
	}
	if vkFormat(gpu.FormatUndefined) != vk.FormatUndefined {
		t.Error("undefined format should stay undefined")
	}
}

func TestPresentModeRoundTrip(t *testing.T) {
	for _, m := range []gpu.PresentMode{gpu.PresentModeFIFO, gpu.PresentModeMailbox, gpu.PresentModeImmediate, gpu.PresentModeFIFORelaxed} {
		got, ok := gpuPresentMode(vkPresentMode(m))
		if !ok || got != m {
			t.Errorf("present mode %v came back as %v (%v)", m, got, ok)
		}
	}
}

func TestMemoryProperties(t *testing.T) {
	host := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	tests := []struct {
		usage gpu.MemoryUsage
		host  bool
	}{
		{gpu.MemoryGPUOnly, false},
		{gpu.MemoryCPUToGPU, true},
		{gpu.MemoryCPUOnly, true},
		{gpu.MemoryGPUToCPU, true},
	}
	for _, tt := range tests {
		if got := vkMemoryProperties(tt.usage)&host != 0; got != tt.host {
			t.Errorf("usage %v host visible = %v, want %v", tt.usage, got, tt.host)
		}
	}
}
