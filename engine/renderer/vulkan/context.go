package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Options configures instance and device creation.
type Options struct {
	AppName string
	// Validation enables the Khronos validation layer and a debug report
	// callback that forwards messages to the engine log.
	Validation bool
	// GetInstanceProcAddr is the loader entry point provided by the
	// windowing system.
	GetInstanceProcAddr unsafe.Pointer
	// InstanceExtensions are required by the windowing system.
	InstanceExtensions []string
	// CreateSurface creates the window surface for instance.
	CreateSurface func(instance vk.Instance) (uintptr, error)
}

type context struct {
	instance      vk.Instance
	allocator     *vk.AllocationCallbacks
	surface       vk.Surface
	hasSurface    bool
	debugCallback vk.DebugReportCallback
	hasDebug      bool

	physical       vk.PhysicalDevice
	device         vk.Device
	properties     vk.PhysicalDeviceProperties
	memory         vk.PhysicalDeviceMemoryProperties
	graphicsFamily uint32
	presentFamily  uint32
	graphicsQueue  vk.Queue
	presentQueue   vk.Queue
}

func newContext(opts Options) (*context, error) {
	if opts.GetInstanceProcAddr == nil {
		return nil, errors.Wrap(gpu.ErrInitializationFail, "GetInstanceProcAddr is nil")
	}
	vk.SetGetInstanceProcAddr(opts.GetInstanceProcAddr)
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "initialize vulkan loader")
	}

	ctx := &context{}
	if err := ctx.createInstance(opts); err != nil {
		return nil, err
	}
	if opts.Validation {
		if err := ctx.createDebugCallback(); err != nil {
			ctx.destroy()
			return nil, err
		}
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := opts.CreateSurface(ctx.instance)
	if err != nil || surface == 0 {
		ctx.destroy()
		return nil, errors.Wrapf(gpu.ErrInitializationFail, "create window surface: %v", err)
	}
	ctx.surface = vk.SurfaceFromPointer(surface)
	ctx.hasSurface = true

	if err := ctx.selectPhysicalDevice(); err != nil {
		ctx.destroy()
		return nil, err
	}
	if err := ctx.createLogicalDevice(); err != nil {
		ctx.destroy()
		return nil, err
	}
	return ctx, nil
}

func (c *context) createInstance(opts Options) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(opts.AppName),
		PEngineName:        safeString("Framekeeper"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{"VK_KHR_surface"}, opts.InstanceExtensions...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if opts.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if !layerAvailable(validationLayer) {
			return errors.Wrapf(gpu.ErrInitializationFail, "validation layer %s is missing", validationLayer)
		}
		layers = append(layers, validationLayer)
		core.LogInfo("Validation layers enabled.")
	}
	for _, e := range extensions {
		core.LogDebug("Instance extension: %s", e)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = safeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = safeStrings(layers)

	if err := resultError(vk.CreateInstance(&createInfo, c.allocator, &c.instance), "create instance"); err != nil {
		return err
	}
	if err := vk.InitInstance(c.instance); err != nil {
		return errors.Wrap(err, "load instance functions")
	}
	core.LogInfo("Vulkan instance created.")
	return nil
}

func layerAvailable(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, available) != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (c *context) createDebugCallback() error {
	info := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugCallback,
	}
	var cb vk.DebugReportCallback
	if err := resultError(vk.CreateDebugReportCallback(c.instance, &info, c.allocator, &cb), "create debug callback"); err != nil {
		return err
	}
	c.debugCallback = cb
	c.hasDebug = true
	core.LogDebug("Vulkan debugger created.")
	return nil
}

var validationLog = core.NewLogger("vulkan/validation")

func debugCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		validationLog.Error(pMessage, "layer", pLayerPrefix, "code", messageCode)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		validationLog.Warn(pMessage, "layer", pLayerPrefix, "code", messageCode)
	default:
		validationLog.Debug(pMessage, "layer", pLayerPrefix, "code", messageCode)
	}
	return vk.Bool32(vk.False)
}

// findMemoryIndex returns the first memory type allowed by typeFilter that
// has all propertyFlags, or -1.
func (c *context) findMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	for i := uint32(0); i < c.memory.MemoryTypeCount; i++ {
		c.memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && c.memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	return -1
}

func (c *context) destroy() {
	if c.device != nil {
		vk.DestroyDevice(c.device, c.allocator)
		c.device = nil
	}
	if c.hasSurface {
		vk.DestroySurface(c.instance, c.surface, c.allocator)
		c.hasSurface = false
	}
	if c.hasDebug {
		vk.DestroyDebugReportCallback(c.instance, c.debugCallback, c.allocator)
		c.hasDebug = false
	}
	if c.instance != nil {
		vk.DestroyInstance(c.instance, c.allocator)
		c.instance = nil
	}
}
