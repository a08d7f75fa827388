package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/deletion"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
	"github.com/spaghettifunk/framekeeper/engine/renderer/immediate"
)

// DefaultImages are created at startup and live until Shutdown.
type DefaultImages struct {
	White        gpu.AllocatedImage
	Grey         gpu.AllocatedImage
	Black        gpu.AllocatedImage
	ErrorChecker gpu.AllocatedImage
}

func (o *Orchestrator) Defaults() DefaultImages {
	return o.defaults
}

// ImmediateSubmit records fn into a one-off command buffer and blocks
// until the GPU has executed it. It must not be called while recording a
// frame.
func (o *Orchestrator) ImmediateSubmit(fn immediate.RecordFunc) error {
	if err := o.checkAlive("ImmediateSubmit"); err != nil {
		return err
	}
	if o.recording {
		return core.ContractViolation("ImmediateSubmit while frame %d is recording", o.stats.FramesDrawn)
	}
	return o.immediate.Submit(fn)
}

// CreateBuffer allocates a buffer. The caller owns it and destroys it
// with DestroyBuffer once idle, or through a deletion queue.
func (o *Orchestrator) CreateBuffer(size uint64, usage gpu.BufferUsage, memory gpu.MemoryUsage) (gpu.AllocatedBuffer, error) {
	if err := o.checkAlive("CreateBuffer"); err != nil {
		return gpu.AllocatedBuffer{}, err
	}
	buf, err := o.device.CreateBuffer(gpu.BufferInfo{
		Size:   size,
		Usage:  usage,
		Memory: memory,
		Label:  gpu.NewLabel("buffer"),
	})
	if err != nil {
		return gpu.AllocatedBuffer{}, core.Fatal(err, "create buffer")
	}
	return buf, nil
}

// DestroyBuffer releases b at once. Use a deletion queue if in-flight
// frames may still read it.
func (o *Orchestrator) DestroyBuffer(b gpu.AllocatedBuffer) {
	o.device.DestroyBuffer(b)
}

// CreateImage allocates an image and its default view. A mipmapped image
// gets a full mip chain.
func (o *Orchestrator) CreateImage(extent gpu.Extent3D, format gpu.Format, usage gpu.ImageUsage, mipmapped bool) (gpu.AllocatedImage, error) {
	if err := o.checkAlive("CreateImage"); err != nil {
		return gpu.AllocatedImage{}, err
	}
	mips := uint32(1)
	if mipmapped {
		mips = gpu.MipLevels(extent.To2D())
	}
	img, err := o.device.CreateImage(gpu.ImageInfo{
		Extent:    extent,
		Format:    format,
		Usage:     usage,
		MipLevels: mips,
		Label:     gpu.NewLabel("image"),
	})
	if err != nil {
		return gpu.AllocatedImage{}, core.Fatal(err, "create image")
	}
	return img, nil
}

// CreateImageWithData creates an image and uploads data into it through a
// staging buffer. It blocks until the upload finished; the image is left
// in ImageLayoutShaderReadOnly.
func (o *Orchestrator) CreateImageWithData(data []byte, extent gpu.Extent3D, format gpu.Format, usage gpu.ImageUsage, mipmapped bool) (gpu.AllocatedImage, error) {
	if err := o.checkAlive("CreateImageWithData"); err != nil {
		return gpu.AllocatedImage{}, err
	}
	if o.recording {
		return gpu.AllocatedImage{}, core.ContractViolation("CreateImageWithData while a frame is recording")
	}
	size := uint64(extent.Width) * uint64(extent.Height) * uint64(extent.Depth) * uint64(format.BytesPerPixel())
	if uint64(len(data)) < size {
		return gpu.AllocatedImage{}, core.ContractViolation("image data holds %d bytes, %dx%d needs %d", len(data), extent.Width, extent.Height, size)
	}

	staging, err := o.CreateBuffer(size, gpu.BufferUsageTransferSrc, gpu.MemoryCPUToGPU)
	if err != nil {
		return gpu.AllocatedImage{}, err
	}
	defer o.device.DestroyBuffer(staging)
	if err := o.device.WriteBuffer(staging, 0, data[:size]); err != nil {
		return gpu.AllocatedImage{}, core.Fatal(err, "write staging buffer")
	}

	img, err := o.CreateImage(extent, format, usage|gpu.ImageUsageTransferDst|gpu.ImageUsageTransferSrc, mipmapped)
	if err != nil {
		return gpu.AllocatedImage{}, err
	}

	err = o.ImmediateSubmit(func(cmd gpu.CommandBuffer) {
		o.device.CmdTransitionImage(cmd, img.Image, gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferDst)
		o.device.CmdCopyBufferToImage(cmd, staging.Buffer, img.Image, extent)
		if mipmapped {
			o.device.CmdGenerateMipmaps(cmd, img.Image, extent.To2D(), img.MipLevels)
		} else {
			o.device.CmdTransitionImage(cmd, img.Image, gpu.ImageLayoutTransferDst, gpu.ImageLayoutShaderReadOnly)
		}
	})
	if err != nil {
		o.device.DestroyImage(img)
		return gpu.AllocatedImage{}, err
	}
	return img, nil
}

// DestroyImage releases img and its view at once.
func (o *Orchestrator) DestroyImage(img gpu.AllocatedImage) {
	o.device.DestroyImage(img)
}

// UploadMesh creates GPU only vertex and index buffers and fills them
// through one staging buffer. The staging buffer is freed before
// returning.
func (o *Orchestrator) UploadMesh(indices []uint32, vertices []Vertex) (GPUMeshBuffers, error) {
	if err := o.checkAlive("UploadMesh"); err != nil {
		return GPUMeshBuffers{}, err
	}
	if o.recording {
		return GPUMeshBuffers{}, core.ContractViolation("UploadMesh while a frame is recording")
	}
	if len(indices) == 0 || len(vertices) == 0 {
		return GPUMeshBuffers{}, core.ContractViolation("upload of empty mesh")
	}
	vertexSize := uint64(len(vertices) * VertexSize)
	indexSize := uint64(len(indices) * 4)

	var mesh GPUMeshBuffers
	var err error
	mesh.IndexCount = uint32(len(indices))
	mesh.VertexBuffer, err = o.CreateBuffer(vertexSize,
		gpu.BufferUsageStorage|gpu.BufferUsageVertex|gpu.BufferUsageTransferDst, gpu.MemoryGPUOnly)
	if err != nil {
		return GPUMeshBuffers{}, err
	}
	mesh.IndexBuffer, err = o.CreateBuffer(indexSize,
		gpu.BufferUsageIndex|gpu.BufferUsageTransferDst, gpu.MemoryGPUOnly)
	if err != nil {
		o.device.DestroyBuffer(mesh.VertexBuffer)
		return GPUMeshBuffers{}, err
	}

	payload, err := encodeMesh(indices, vertices)
	if err != nil {
		o.destroyMesh(mesh)
		return GPUMeshBuffers{}, errors.Wrap(err, "encode mesh")
	}
	staging, err := o.CreateBuffer(vertexSize+indexSize, gpu.BufferUsageTransferSrc, gpu.MemoryCPUOnly)
	if err != nil {
		o.destroyMesh(mesh)
		return GPUMeshBuffers{}, err
	}
	defer o.device.DestroyBuffer(staging)
	if err := o.device.WriteBuffer(staging, 0, payload); err != nil {
		o.destroyMesh(mesh)
		return GPUMeshBuffers{}, core.Fatal(err, "write mesh staging buffer")
	}

	err = o.ImmediateSubmit(func(cmd gpu.CommandBuffer) {
		o.device.CmdCopyBuffer(cmd, staging.Buffer, mesh.VertexBuffer.Buffer,
			gpu.BufferCopy{Size: vertexSize})
		o.device.CmdCopyBuffer(cmd, staging.Buffer, mesh.IndexBuffer.Buffer,
			gpu.BufferCopy{SrcOffset: vertexSize, Size: indexSize})
	})
	if err != nil {
		o.destroyMesh(mesh)
		return GPUMeshBuffers{}, err
	}
	return mesh, nil
}

func (o *Orchestrator) destroyMesh(m GPUMeshBuffers) {
	if !m.IndexBuffer.Buffer.IsNull() {
		o.device.DestroyBuffer(m.IndexBuffer)
	}
	if !m.VertexBuffer.Buffer.IsNull() {
		o.device.DestroyBuffer(m.VertexBuffer)
	}
}

func packColor(r, g, b, a uint8) [4]byte {
	return [4]byte{r, g, b, a}
}

// initDefaultData uploads the fallback textures used when a material has
// none, or failed to load.
func (o *Orchestrator) initDefaultData() error {
	one := gpu.Extent3D{Width: 1, Height: 1, Depth: 1}
	solids := []struct {
		dst   *gpu.AllocatedImage
		color [4]byte
	}{
		{&o.defaults.White, packColor(0xFF, 0xFF, 0xFF, 0xFF)},
		{&o.defaults.Grey, packColor(0xAA, 0xAA, 0xAA, 0xFF)},
		{&o.defaults.Black, packColor(0x00, 0x00, 0x00, 0xFF)},
	}
	for _, s := range solids {
		img, err := o.CreateImageWithData(s.color[:], one, gpu.FormatR8G8B8A8Unorm, gpu.ImageUsageSampled, false)
		if err != nil {
			return err
		}
		*s.dst = img
		if err := o.deletion.Push(deletion.Image(img)); err != nil {
			return err
		}
	}

	// 16x16 magenta and black checkerboard.
	magenta := packColor(0xFF, 0x00, 0xFF, 0xFF)
	black := packColor(0x00, 0x00, 0x00, 0xFF)
	pixels := make([]byte, 0, 16*16*4)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if (x%2)^(y%2) == 1 {
				pixels = append(pixels, magenta[:]...)
			} else {
				pixels = append(pixels, black[:]...)
			}
		}
	}
	img, err := o.CreateImageWithData(pixels, gpu.Extent3D{Width: 16, Height: 16, Depth: 1}, gpu.FormatR8G8B8A8Unorm, gpu.ImageUsageSampled, false)
	if err != nil {
		return err
	}
	o.defaults.ErrorChecker = img
	return o.deletion.Push(deletion.Image(img))
}
