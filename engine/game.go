package engine

// Game is the application plugged into the engine loop. Only FnUpdate is
// required.
type Game struct {
	Name  string
	State interface{}

	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// Initialize runs once the renderer exists. It is the place to upload
// meshes and install passes with Engine.SetPasses.
type Initialize func(e *Engine) error

// Update advances the simulation by deltaTime seconds.
type Update func(deltaTime float64) error

// Render runs right before the frame is drawn.
type Render func(e *Engine, deltaTime float64) error

// OnResize reports the new framebuffer size in pixels.
type OnResize func(width uint32, height uint32) error

// Shutdown runs before the renderer releases its resources.
type Shutdown func() error
