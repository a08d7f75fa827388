package vulkan

import (
	"runtime"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

type physicalDeviceCandidate struct {
	handle         vk.PhysicalDevice
	properties     vk.PhysicalDeviceProperties
	graphicsFamily uint32
	presentFamily  uint32
	score          int
}

func (c *context) selectPhysicalDevice() error {
	var count uint32
	if err := resultError(vk.EnumeratePhysicalDevices(c.instance, &count, nil), "enumerate physical devices"); err != nil {
		return err
	}
	if count == 0 {
		return errors.Wrap(gpu.ErrInitializationFail, "no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := resultError(vk.EnumeratePhysicalDevices(c.instance, &count, devices), "enumerate physical devices"); err != nil {
		return err
	}

	var best *physicalDeviceCandidate
	for _, d := range devices {
		cand, ok := c.evaluateDevice(d)
		if !ok {
			continue
		}
		if best == nil || cand.score > best.score {
			best = cand
		}
	}
	if best == nil {
		return errors.Wrap(gpu.ErrInitializationFail, "no physical device meets the requirements")
	}

	c.physical = best.handle
	c.properties = best.properties
	c.graphicsFamily = best.graphicsFamily
	c.presentFamily = best.presentFamily
	vk.GetPhysicalDeviceMemoryProperties(c.physical, &c.memory)
	c.memory.Deref()

	core.LogInfo("Selected device: '%s'.", vk.ToString(c.properties.DeviceName[:]))
	core.LogInfo("GPU type is %s.", deviceTypeName(c.properties.DeviceType))
	core.LogInfo("Vulkan API version: %d.%d.%d",
		vk.Version(c.properties.ApiVersion).Major(),
		vk.Version(c.properties.ApiVersion).Minor(),
		vk.Version(c.properties.ApiVersion).Patch())
	for i := uint32(0); i < c.memory.MemoryHeapCount; i++ {
		c.memory.MemoryHeaps[i].Deref()
		gib := float64(c.memory.MemoryHeaps[i].Size) / 1024 / 1024 / 1024
		if vk.MemoryHeapFlagBits(c.memory.MemoryHeaps[i].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared system memory: %.2f GiB", gib)
		}
	}
	return nil
}

func deviceTypeName(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "CPU"
	}
	return "unknown"
}

// evaluateDevice checks that d can render to the surface. Discrete GPUs
// score higher; on darwin every device is a portability device.
func (c *context) evaluateDevice(d vk.PhysicalDevice) (*physicalDeviceCandidate, bool) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d, &props)
	props.Deref()
	name := vk.ToString(props.DeviceName[:])

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(d, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(d, &familyCount, families)

	graphics, present := -1, -1
	for i := range families {
		families[i].Deref()
		if graphics < 0 && vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			graphics = i
		}
		var supported vk.Bool32
		if vk.GetPhysicalDeviceSurfaceSupport(d, uint32(i), c.surface, &supported) != vk.Success {
			continue
		}
		if supported == vk.True && (present < 0 || i == graphics) {
			present = i
		}
	}
	if graphics < 0 || present < 0 {
		core.LogDebug("Device '%s' lacks a graphics or present queue, skipping.", name)
		return nil, false
	}

	if !deviceExtensionAvailable(d, vk.KhrSwapchainExtensionName) {
		core.LogDebug("Device '%s' lacks %s, skipping.", name, vk.KhrSwapchainExtensionName)
		return nil, false
	}

	var formatCount, modeCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(d, c.surface, &formatCount, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(d, c.surface, &modeCount, nil)
	if formatCount == 0 || modeCount == 0 {
		core.LogDebug("Device '%s' has no swapchain support for this surface, skipping.", name)
		return nil, false
	}

	score := 1
	if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu && runtime.GOOS != "darwin" {
		score += 10
	}
	if graphics == present {
		score++
	}
	return &physicalDeviceCandidate{
		handle:         d,
		properties:     props,
		graphicsFamily: uint32(graphics),
		presentFamily:  uint32(present),
		score:          score,
	}, true
}

func deviceExtensionAvailable(d vk.PhysicalDevice, name string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(d, "", &count, nil) != vk.Success {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(d, "", &count, available) != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

func (c *context) createLogicalDevice() error {
	core.LogInfo("Creating logical device...")

	// Do not create additional queues for shared indices.
	families := []uint32{c.graphicsFamily}
	if c.presentFamily != c.graphicsFamily {
		families = append(families, c.presentFamily)
	}
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, f := range families {
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: f,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if deviceExtensionAvailable(c.physical, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	if err := resultError(vk.CreateDevice(c.physical, &info, c.allocator, &c.device), "create logical device"); err != nil {
		return err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(c.device, c.graphicsFamily, 0, &c.graphicsQueue)
	vk.GetDeviceQueue(c.device, c.presentFamily, 0, &c.presentQueue)
	core.LogInfo("Queues obtained.")
	return nil
}
