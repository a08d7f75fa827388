package renderer

import (
	"bytes"
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/framekeeper/engine/renderer/deletion"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

// Vertex matches the std430 layout the shaders read. The uv coordinates
// are split to fill the padding after the vec3 fields.
type Vertex struct {
	Position mgl32.Vec3
	UVX      float32
	Normal   mgl32.Vec3
	UVY      float32
	Color    mgl32.Vec4
}

// VertexSize is the size in bytes of one Vertex on the GPU.
const VertexSize = 48

// GPUMeshBuffers holds a mesh uploaded with UploadMesh.
type GPUMeshBuffers struct {
	IndexBuffer  gpu.AllocatedBuffer
	VertexBuffer gpu.AllocatedBuffer
	IndexCount   uint32
}

// Release schedules both buffers for destruction on q.
func (m GPUMeshBuffers) Release(q *deletion.Queue) error {
	if err := q.Push(deletion.Buffer(m.IndexBuffer)); err != nil {
		return err
	}
	return q.Push(deletion.Buffer(m.VertexBuffer))
}

func encodeMesh(indices []uint32, vertices []Vertex) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(vertices)*VertexSize + len(indices)*4)
	if err := binary.Write(&buf, binary.LittleEndian, vertices); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, indices); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DrawPushConstants is the per draw block handed to the mesh shader: the
// object transform plus the slice of the mesh to draw.
type DrawPushConstants struct {
	WorldMatrix mgl32.Mat4
	FirstIndex  uint32
	IndexCount  uint32
	_           [2]uint32
}

// DrawPushConstantsSize is the std430 size of DrawPushConstants.
const DrawPushConstantsSize = 80

// Encode returns the little endian bytes of c.
func (c DrawPushConstants) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(DrawPushConstantsSize)
	// Writes to a bytes.Buffer of fixed size data cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, c)
	return buf.Bytes()
}
