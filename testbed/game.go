package testbed

import (
	"fmt"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/framekeeper/engine"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer"
	"github.com/spaghettifunk/framekeeper/engine/renderer/deletion"
	"github.com/spaghettifunk/framekeeper/engine/renderer/descriptors"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

const (
	quadCount   = 8
	orbitRadius = 6
	orbitSpeed  = 0.5
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	camera  *Camera
	elapsed float64

	width  uint32
	height uint32

	quad     renderer.GPUMeshBuffers
	geometry *geometryPass
}

// objects places quadCount copies of the quad on a ring around the origin.
func (s *gameState) objects(indexCount uint32) []renderer.DrawPushConstants {
	out := make([]renderer.DrawPushConstants, quadCount)
	for i := range out {
		angle := float32(i) * 2 * stdmath.Pi / quadCount
		spin := float32(s.elapsed)
		out[i] = renderer.DrawPushConstants{
			WorldMatrix: mgl32.Translate3D(3*float32(stdmath.Cos(float64(angle))), 0, 3*float32(stdmath.Sin(float64(angle)))).
				Mul4(mgl32.HomogRotate3DY(angle + spin)),
			IndexCount: indexCount,
		}
	}
	return out
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Name:  "testbed",
			State: &gameState{camera: NewCamera()},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

// quadMesh is a unit rectangle facing +Z.
func quadMesh() ([]uint32, []renderer.Vertex) {
	vertices := []renderer.Vertex{
		{Position: mgl32.Vec3{0.5, -0.5, 0}, Color: mgl32.Vec4{0, 0, 0, 1}},
		{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec4{0.5, 0.5, 0.5, 1}},
		{Position: mgl32.Vec3{-0.5, -0.5, 0}, Color: mgl32.Vec4{1, 0, 0, 1}},
		{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec4{0, 1, 0, 1}},
	}
	for i := range vertices {
		vertices[i].Normal = mgl32.Vec3{0, 0, 1}
	}
	return []uint32{0, 1, 2, 2, 1, 3}, vertices
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogDebug("testbed initialize")
	s := g.state()
	r := e.Renderer()

	s.camera.SetPosition(mgl32.Vec3{0, 2, orbitRadius})
	s.camera.Pitch(-0.3)

	indices, vertices := quadMesh()
	quad, err := r.UploadMesh(indices, vertices)
	if err != nil {
		return err
	}
	if err := quad.Release(r.DeletionQueue()); err != nil {
		return err
	}
	s.quad = quad

	var lb descriptors.LayoutBuilder
	layout, err := lb.
		AddBinding(0, gpu.DescriptorUniformBuffer).
		AddBinding(1, gpu.DescriptorStorageBuffer).
		Build(r.Device(), gpu.ShaderStageVertex|gpu.ShaderStageFragment)
	if err != nil {
		return err
	}
	if err := r.DeletionQueue().Push(deletion.DescriptorSetLayout(layout)); err != nil {
		return err
	}

	s.geometry = &geometryPass{state: s, layout: layout, mesh: quad}
	e.SetPasses(&backgroundPass{state: s}, s.geometry)

	if hud := e.HUD(); hud != nil {
		hud.SetExtra(fmt.Sprintf("quads %d", quadCount))
	}
	return nil
}

// Update orbits the camera around the quad ring.
func (g *TestGame) Update(deltaTime float64) error {
	s := g.state()
	s.elapsed += deltaTime
	angle := s.elapsed * orbitSpeed
	s.camera.SetPosition(mgl32.Vec3{
		orbitRadius * float32(stdmath.Sin(angle)),
		2,
		orbitRadius * float32(stdmath.Cos(angle)),
	})
	s.camera.SetRotation(mgl32.Vec3{-0.3, float32(angle), 0})
	return nil
}

func (g *TestGame) OnResize(width, height uint32) error {
	s := g.state()
	s.width, s.height = width, height
	return nil
}

// Shutdown has nothing to release: the quad and the layout sit on the
// renderer's global deletion queue.
func (g *TestGame) Shutdown() error {
	core.LogInfo("testbed shutting down")
	return nil
}
