// Package platform owns the GLFW window and translates its callbacks into
// engine events.
package platform

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
	"github.com/spaghettifunk/framekeeper/engine/renderer/vulkan"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window    *glfw.Window
	events    *core.EventBus
	minimized bool
	width     uint32
	height    uint32
}

func New(events *core.EventBus) *Platform {
	return &Platform{events: events}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "initialize glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.Wrap(gpu.ErrInitializationFail, "glfw reports no vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		return errors.Wrap(err, "create window")
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetIconifyCallback(p.iconifyCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	fb := p.FramebufferExtent()
	p.width, p.height = fb.Width, fb.Height
	core.LogInfo("Window created: %dx%d framebuffer.", fb.Width, fb.Height)
	return nil
}

// VulkanOptions wires the window into Vulkan instance and surface
// creation.
func (p *Platform) VulkanOptions(appName string, validation bool) vulkan.Options {
	return vulkan.Options{
		AppName:             appName,
		Validation:          validation,
		GetInstanceProcAddr: glfw.GetVulkanGetInstanceProcAddress(),
		InstanceExtensions:  p.Window.GetRequiredInstanceExtensions(),
		CreateSurface: func(instance vk.Instance) (uintptr, error) {
			return p.Window.CreateWindowSurface(instance, nil)
		},
	}
}

func (p *Platform) FramebufferExtent() gpu.Extent2D {
	w, h := p.Window.GetFramebufferSize()
	if w < 0 || h < 0 {
		return gpu.Extent2D{}
	}
	return gpu.Extent2D{Width: uint32(w), Height: uint32(h)}
}

// PumpMessages processes pending window events. It returns false once the
// window was asked to close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

func (p *Platform) Minimized() bool {
	return p.minimized
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		p.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
	}
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
}

func (p *Platform) iconifyCallback(w *glfw.Window, iconified bool) {
	p.minimized = iconified
	var flag uint32
	if iconified {
		flag = 1
	}
	p.events.Fire(core.EVENT_CODE_MINIMIZED, p, core.EventContext{U32: [4]uint32{flag}})
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	if width < 0 || height < 0 {
		return
	}
	if uint32(width) == p.width && uint32(height) == p.height {
		return
	}
	p.width, p.height = uint32(width), uint32(height)
	p.events.Fire(core.EVENT_CODE_RESIZED, p, core.EventContext{U32: [4]uint32{p.width, p.height}})
}
