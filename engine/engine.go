// Package engine ties the window, the GPU backend, the frame core and the
// game together and runs the main loop.
package engine

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/config"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/platform"
	"github.com/spaghettifunk/framekeeper/engine/renderer"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
	"github.com/spaghettifunk/framekeeper/engine/renderer/overlay"
	"github.com/spaghettifunk/framekeeper/engine/renderer/vulkan"
)

const (
	// minimizedSleep throttles the loop while there is nothing to draw.
	minimizedSleep = 100 * time.Millisecond
	hudWidth       = 180
	hudScale       = 2
)

// Window is the platform side of the loop.
type Window interface {
	renderer.Window
	// PumpMessages processes window events and returns false on close.
	PumpMessages() bool
	Minimized() bool
}

// Backend is everything the engine needs from the platform and the GPU.
type Backend struct {
	Window    Window
	Device    gpu.Device
	Presenter gpu.Presenter
	// Events receives window events. A new bus is created when nil.
	Events *core.EventBus
	// Close releases the device and the window after the renderer shut
	// down. Optional.
	Close func() error
}

type Engine struct {
	stage   Stage
	game    *Game
	cfg     *config.EngineConfig
	backend Backend
	events  *core.EventBus

	renderer *renderer.Orchestrator
	hud      *overlay.HUD
	passes   struct {
		background renderer.BackgroundPass
		geometry   renderer.GeometryPass
	}

	clock    *core.Clock
	metrics  *core.Metrics
	lastTime float64

	running   atomic.Bool
	suspended bool
	width     uint32
	height    uint32

	reloads      <-chan *config.EngineConfig
	reloadErrors <-chan error
}

// New opens the window and the Vulkan device described by cfg.
func New(g *Game, cfg *config.EngineConfig) (*Engine, error) {
	events := core.NewEventBus()
	p := platform.New(events)
	app := cfg.Application
	if err := p.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
		return nil, err
	}
	backend, err := vulkan.New(p.VulkanOptions(app.Name, cfg.Renderer.Validation))
	if err != nil {
		p.Shutdown()
		return nil, err
	}
	return NewWithBackend(g, cfg, Backend{
		Window:    p,
		Device:    backend,
		Presenter: backend,
		Events:    events,
		Close: func() error {
			err := backend.Close()
			return errors.CombineErrors(err, p.Shutdown())
		},
	})
}

// NewWithBackend builds the engine on an existing device. The renderer is
// created by Initialize.
func NewWithBackend(g *Game, cfg *config.EngineConfig, b Backend) (*Engine, error) {
	if g == nil || g.FnUpdate == nil {
		return nil, errors.New("game must provide an update function")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.Events == nil {
		b.Events = core.NewEventBus()
	}
	core.SetLogLevel(cfg.LogLevel())
	e := &Engine{
		stage:   EngineStageBooting,
		game:    g,
		cfg:     cfg,
		backend: b,
		events:  b.Events,
		clock:   core.NewClock(),
		metrics: core.NewMetrics(),
	}
	extent := b.Window.FramebufferExtent()
	e.width, e.height = extent.Width, extent.Height
	e.stage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize() error {
	e.stage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_MINIMIZED, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_CONFIG_RELOADED, e, e.onConfigReloaded)

	r, err := renderer.New(e.backend.Device, e.backend.Presenter, e.backend.Window, e.cfg.RendererOptions())
	if err != nil {
		return err
	}
	e.renderer = r

	if e.cfg.Renderer.ShowHUD {
		if err := e.enableHUD(); err != nil {
			return err
		}
	}

	if e.game.FnInitialize != nil {
		if err := e.game.FnInitialize(e); err != nil {
			return errors.Wrap(err, "game initialize")
		}
	}
	if e.game.FnOnResize != nil {
		if err := e.game.FnOnResize(e.width, e.height); err != nil {
			return errors.Wrap(err, "game resize")
		}
	}
	e.installPasses()

	e.running.Store(true)
	e.stage = EngineStageInitialized
	core.LogInfo("%s initialized.", e.cfg.Application.Name)
	return nil
}

func (e *Engine) enableHUD() error {
	if e.hud != nil {
		return nil
	}
	font := overlay.DefaultFont()
	if path := e.cfg.Renderer.HUDFont; path != "" {
		bf, err := overlay.LoadBitmapFont(path)
		if err != nil {
			core.LogWarn("HUD font unavailable, using the built-in one: %s", err)
		} else {
			font = bf
		}
	}
	hud, err := overlay.NewHUD(e.renderer, font, e.metrics, hudWidth, hudScale)
	if err != nil {
		return err
	}
	e.hud = hud
	return nil
}

func (e *Engine) installPasses() {
	var ov renderer.OverlayPass
	if e.hud != nil && e.cfg.Renderer.ShowHUD {
		ov = e.hud
	}
	e.renderer.SetPasses(e.passes.background, e.passes.geometry, ov)
}

// SetPasses installs the game's passes. The HUD, when enabled, is added as
// the overlay pass.
func (e *Engine) SetPasses(background renderer.BackgroundPass, geometry renderer.GeometryPass) {
	e.passes.background = background
	e.passes.geometry = geometry
	if e.renderer != nil {
		e.installPasses()
	}
}

func (e *Engine) Renderer() *renderer.Orchestrator {
	return e.renderer
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

// HUD returns nil when the overlay was never enabled.
func (e *Engine) HUD() *overlay.HUD {
	return e.hud
}

func (e *Engine) Config() *config.EngineConfig {
	return e.cfg
}

func (e *Engine) Stage() Stage {
	return e.stage
}

// WatchConfig applies configurations published by w between frames.
func (e *Engine) WatchConfig(w *config.Watcher) {
	e.reloads = w.Reloads()
	e.reloadErrors = w.Errors()
}

// Stop ends Run after the current frame. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.running.Store(false)
}

func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run drives frames until the window closes or Stop is called. The
// returned error is fatal; the caller still has to call Shutdown.
func (e *Engine) Run() error {
	e.stage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.running.Load() {
		if err := e.Frame(); err != nil {
			e.running.Store(false)
			return err
		}
	}
	return nil
}

// Frame runs one iteration of the loop.
func (e *Engine) Frame() error {
	if !e.backend.Window.PumpMessages() {
		e.Stop()
		return nil
	}
	e.pollConfig()

	if e.suspended || e.backend.Window.Minimized() {
		time.Sleep(minimizedSleep)
		// The first frame after a restore must not see the pause as delta.
		e.clock.Update()
		e.lastTime = e.clock.Elapsed()
		return nil
	}

	e.clock.Update()
	currentTime := e.clock.Elapsed()
	delta := currentTime - e.lastTime
	frameStartTime := core.AbsoluteTime()

	if err := e.game.FnUpdate(delta); err != nil {
		return core.Fatal(err, "game update")
	}
	if e.game.FnRender != nil {
		if err := e.game.FnRender(e, delta); err != nil {
			return core.Fatal(err, "game render")
		}
	}
	if err := e.renderer.Draw(); err != nil {
		return err
	}

	e.metrics.Update(core.AbsoluteTime() - frameStartTime)
	e.lastTime = currentTime
	return nil
}

func (e *Engine) pollConfig() {
	for {
		select {
		case cfg := <-e.reloads:
			e.events.Fire(core.EVENT_CODE_CONFIG_RELOADED, e, core.EventContext{Any: cfg})
		case err := <-e.reloadErrors:
			core.LogWarn("configuration not reloaded: %s", err)
		default:
			return
		}
	}
}

// Shutdown releases everything in reverse order of creation.
func (e *Engine) Shutdown() error {
	e.stage = EngineStageShuttingDown
	var err error
	if e.game.FnShutdown != nil {
		err = errors.CombineErrors(err, e.game.FnShutdown())
	}
	if e.renderer != nil {
		e.renderer.Shutdown()
		e.renderer = nil
	}
	if e.backend.Close != nil {
		err = errors.CombineErrors(err, e.backend.Close())
	}
	e.events.Shutdown()
	e.stage = EngineStageShutdown
	return err
}

// GetFramebufferSize returns the width and height (in this order) of the
// application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Stop()
		return true
	case core.EVENT_CODE_MINIMIZED:
		minimized := context.U32[0] == 1
		if minimized != e.suspended {
			e.suspended = minimized
			if minimized {
				core.LogInfo("Window minimized, suspending application.")
			} else {
				core.LogInfo("Window restored, resuming application.")
				e.renderer.RequestResize()
			}
		}
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	width, height := context.U32[0], context.U32[1]
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	if width == 0 || height == 0 {
		core.LogInfo("Window has no area, suspending application.")
		e.suspended = true
		return false
	}
	if e.suspended {
		core.LogInfo("Window restored, resuming application.")
		e.suspended = false
	}
	e.renderer.RequestResize()
	if e.game.FnOnResize != nil {
		if err := e.game.FnOnResize(width, height); err != nil {
			core.LogError("game resize: %s", err)
		}
	}
	return false
}

// onConfigReloaded applies the settings that can change at runtime. The
// window, device and descriptor budgets keep their startup values.
func (e *Engine) onConfigReloaded(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	cfg, ok := context.Any.(*config.EngineConfig)
	if !ok || cfg == nil {
		core.LogError("wrong payload for event code %d", code)
		return false
	}
	if err := cfg.Validate(); err != nil {
		core.LogWarn("ignoring reloaded configuration: %s", err)
		return false
	}

	core.SetLogLevel(cfg.LogLevel())
	e.renderer.SetRenderScale(cfg.Renderer.RenderScale)
	e.renderer.SetClearColor(cfg.Renderer.ClearColor)
	if mode, err := cfg.PresentMode(); err == nil {
		e.renderer.SetPresentMode(mode)
	}

	e.cfg.Logging = cfg.Logging
	e.cfg.Renderer.RenderScale = cfg.Renderer.RenderScale
	e.cfg.Renderer.ClearColor = cfg.Renderer.ClearColor
	e.cfg.Renderer.PresentMode = cfg.Renderer.PresentMode
	if cfg.Renderer.ShowHUD != e.cfg.Renderer.ShowHUD {
		e.cfg.Renderer.ShowHUD = cfg.Renderer.ShowHUD
		if cfg.Renderer.ShowHUD {
			if err := e.enableHUD(); err != nil {
				core.LogError("enable HUD: %s", err)
			}
		}
		e.installPasses()
	}
	core.LogInfo("Configuration reloaded.")
	return false
}
