package testbed

import (
	"bytes"
	"encoding/binary"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/framekeeper/engine/renderer"
	"github.com/spaghettifunk/framekeeper/engine/renderer/deletion"
	"github.com/spaghettifunk/framekeeper/engine/renderer/descriptors"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

// sceneData is the uniform block shared by every draw of a frame.
type sceneData struct {
	View         mgl32.Mat4
	Proj         mgl32.Mat4
	ViewProj     mgl32.Mat4
	AmbientColor mgl32.Vec4
	SunDirection mgl32.Vec4
	SunColor     mgl32.Vec4
}

const sceneDataSize = 3*64 + 3*16

func newSceneData(view mgl32.Mat4, extent gpu.Extent2D) sceneData {
	aspect := float32(extent.Width) / float32(max(extent.Height, 1))
	// Reversed depth: near and far are swapped.
	proj := mgl32.Perspective(mgl32.DegToRad(70), aspect, 1000, 0.1)
	// Vulkan clip space has Y pointing down.
	proj[5] *= -1
	return sceneData{
		View:         view,
		Proj:         proj,
		ViewProj:     proj.Mul4(view),
		AmbientColor: mgl32.Vec4{0.1, 0.1, 0.1, 1},
		SunDirection: mgl32.Vec4{0, 1, 0.5, 1},
		SunColor:     mgl32.Vec4{1, 1, 1, 1},
	}
}

func (s sceneData) encode() []byte {
	var buf bytes.Buffer
	buf.Grow(sceneDataSize)
	_ = binary.Write(&buf, binary.LittleEndian, s)
	return buf.Bytes()
}

// backgroundPass clears the draw image with the configured clear color,
// pulsing its brightness over time.
type backgroundPass struct {
	state *gameState
}

func (p *backgroundPass) DrawBackground(r *renderer.Orchestrator, f *renderer.FrameContext) error {
	base := r.ClearColor()
	pulse := float32(0.75 + 0.25*stdmath.Sin(p.state.elapsed))
	color := [4]float32{base[0] * pulse, base[1] * pulse, base[2] * pulse, base[3]}
	r.Device().CmdClearColor(f.Cmd, f.DrawImage.Image, gpu.ImageLayoutGeneral, color)
	return nil
}

// geometryPass prepares the per frame data of the quad ring: a scene
// uniform buffer, an object storage buffer with one DrawPushConstants per
// quad, and the descriptor set binding both. All of it lives exactly as
// long as the frame that uses it.
type geometryPass struct {
	state  *gameState
	layout gpu.DescriptorSetLayout
	mesh   renderer.GPUMeshBuffers
	writer descriptors.Writer

	lastSet gpu.DescriptorSet
}

func (p *geometryPass) DrawGeometry(r *renderer.Orchestrator, f *renderer.FrameContext) error {
	scene := newSceneData(p.state.camera.View(), f.DrawExtent)
	sceneBuf, err := p.upload(r, f, scene.encode(), gpu.BufferUsageUniform)
	if err != nil {
		return err
	}
	objects := p.state.objects(p.mesh.IndexCount)
	objectBuf, err := p.upload(r, f, encodeObjects(objects), gpu.BufferUsageStorage)
	if err != nil {
		return err
	}

	set, err := f.Slot.Descriptors.Allocate(p.layout)
	if err != nil {
		return err
	}
	p.writer.Clear()
	p.writer.
		WriteBuffer(0, sceneBuf.Buffer, sceneDataSize, 0, gpu.DescriptorUniformBuffer).
		WriteBuffer(1, objectBuf.Buffer, objectBuf.Size, 0, gpu.DescriptorStorageBuffer).
		UpdateSet(r.Device(), set)
	p.lastSet = set
	return nil
}

// upload copies data into a fresh host visible buffer that is destroyed
// once the frame's slot comes around again.
func (p *geometryPass) upload(r *renderer.Orchestrator, f *renderer.FrameContext, data []byte, usage gpu.BufferUsage) (gpu.AllocatedBuffer, error) {
	buf, err := r.CreateBuffer(uint64(len(data)), usage, gpu.MemoryCPUToGPU)
	if err != nil {
		return gpu.AllocatedBuffer{}, err
	}
	if err := f.Slot.Deletion.Push(deletion.Buffer(buf)); err != nil {
		r.DestroyBuffer(buf)
		return gpu.AllocatedBuffer{}, err
	}
	return buf, r.Device().WriteBuffer(buf, 0, data)
}

func encodeObjects(objects []renderer.DrawPushConstants) []byte {
	out := make([]byte, 0, len(objects)*renderer.DrawPushConstantsSize)
	for _, o := range objects {
		out = append(out, o.Encode()...)
	}
	return out
}
