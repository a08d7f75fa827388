package testbed

import (
	"github.com/go-gl/mathgl/mgl32"
	emath "github.com/spaghettifunk/framekeeper/engine/math"
)

// pitchLimit is 89 degrees; clamping avoids gimbal lock.
const pitchLimit = float32(1.55334306)

// Camera is a free fly camera. The view matrix is rebuilt lazily after
// the position or rotation changed.
type Camera struct {
	position mgl32.Vec3
	// Euler angles in radians: pitch, yaw, roll.
	rotation mgl32.Vec3
	view     mgl32.Mat4
	dirty    bool
}

func NewCamera() *Camera {
	c := &Camera{}
	c.Reset()
	return c
}

func (c *Camera) Reset() {
	c.position = mgl32.Vec3{}
	c.rotation = mgl32.Vec3{}
	c.view = mgl32.Ident4()
	c.dirty = false
}

func (c *Camera) Position() mgl32.Vec3 {
	return c.position
}

func (c *Camera) SetPosition(p mgl32.Vec3) {
	c.position = p
	c.dirty = true
}

func (c *Camera) Rotation() mgl32.Vec3 {
	return c.rotation
}

func (c *Camera) SetRotation(r mgl32.Vec3) {
	c.rotation = r
	c.dirty = true
}

func (c *Camera) world() mgl32.Mat4 {
	rotation := mgl32.HomogRotate3DY(c.rotation.Y()).
		Mul4(mgl32.HomogRotate3DX(c.rotation.X())).
		Mul4(mgl32.HomogRotate3DZ(c.rotation.Z()))
	return mgl32.Translate3D(c.position.X(), c.position.Y(), c.position.Z()).Mul4(rotation)
}

func (c *Camera) View() mgl32.Mat4 {
	if c.dirty {
		c.view = c.world().Inv()
		c.dirty = false
	}
	return c.view
}

// Forward points down the camera's -Z axis.
func (c *Camera) Forward() mgl32.Vec3 {
	return c.world().Col(2).Vec3().Mul(-1).Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	return c.world().Col(0).Vec3().Normalize()
}

func (c *Camera) MoveForward(amount float32) {
	c.SetPosition(c.position.Add(c.Forward().Mul(amount)))
}

func (c *Camera) MoveRight(amount float32) {
	c.SetPosition(c.position.Add(c.Right().Mul(amount)))
}

func (c *Camera) MoveUp(amount float32) {
	c.SetPosition(c.position.Add(mgl32.Vec3{0, amount, 0}))
}

func (c *Camera) Yaw(amount float32) {
	c.rotation[1] += amount
	c.dirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.rotation[0] = emath.Clamp(c.rotation[0]+amount, -pitchLimit, pitchLimit)
	c.dirty = true
}
