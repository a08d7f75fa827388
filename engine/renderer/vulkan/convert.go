package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

func vkFormat(f gpu.Format) vk.Format {
	switch f {
	case gpu.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gpu.FormatR8G8B8A8Srgb:
		return vk.FormatR8g8b8a8Srgb
	case gpu.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gpu.FormatB8G8R8A8Srgb:
		return vk.FormatB8g8r8a8Srgb
	case gpu.FormatR16G16B16A16Sfloat:
		return vk.FormatR16g16b16a16Sfloat
	case gpu.FormatD32Sfloat:
		return vk.FormatD32Sfloat
	}
	return vk.FormatUndefined
}

func gpuFormat(f vk.Format) gpu.Format {
	switch f {
	case vk.FormatR8g8b8a8Unorm:
		return gpu.FormatR8G8B8A8Unorm
	case vk.FormatR8g8b8a8Srgb:
		return gpu.FormatR8G8B8A8Srgb
	case vk.FormatB8g8r8a8Unorm:
		return gpu.FormatB8G8R8A8Unorm
	case vk.FormatB8g8r8a8Srgb:
		return gpu.FormatB8G8R8A8Srgb
	case vk.FormatR16g16b16a16Sfloat:
		return gpu.FormatR16G16B16A16Sfloat
	case vk.FormatD32Sfloat:
		return gpu.FormatD32Sfloat
	}
	return gpu.FormatUndefined
}

func vkLayout(l gpu.ImageLayout) vk.ImageLayout {
	switch l {
	case gpu.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	case gpu.ImageLayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.ImageLayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gpu.ImageLayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case gpu.ImageLayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.ImageLayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.ImageLayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func vkAspect(a gpu.ImageAspect) vk.ImageAspectFlags {
	if a == gpu.AspectDepth {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func aspectOf(f gpu.Format) gpu.ImageAspect {
	if f.IsDepth() {
		return gpu.AspectDepth
	}
	return gpu.AspectColor
}

func vkBufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	pairs := []struct {
		in  gpu.BufferUsage
		out vk.BufferUsageFlagBits
	}{
		{gpu.BufferUsageTransferSrc, vk.BufferUsageTransferSrcBit},
		{gpu.BufferUsageTransferDst, vk.BufferUsageTransferDstBit},
		{gpu.BufferUsageUniform, vk.BufferUsageUniformBufferBit},
		{gpu.BufferUsageStorage, vk.BufferUsageStorageBufferBit},
		{gpu.BufferUsageIndex, vk.BufferUsageIndexBufferBit},
		{gpu.BufferUsageVertex, vk.BufferUsageVertexBufferBit},
	}
	for _, p := range pairs {
		if u&p.in != 0 {
			out |= p.out
		}
	}
	return vk.BufferUsageFlags(out)
}

func vkImageUsage(u gpu.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	pairs := []struct {
		in  gpu.ImageUsage
		out vk.ImageUsageFlagBits
	}{
		{gpu.ImageUsageTransferSrc, vk.ImageUsageTransferSrcBit},
		{gpu.ImageUsageTransferDst, vk.ImageUsageTransferDstBit},
		{gpu.ImageUsageSampled, vk.ImageUsageSampledBit},
		{gpu.ImageUsageStorage, vk.ImageUsageStorageBit},
		{gpu.ImageUsageColorAttachment, vk.ImageUsageColorAttachmentBit},
		{gpu.ImageUsageDepthStencilAttachment, vk.ImageUsageDepthStencilAttachmentBit},
	}
	for _, p := range pairs {
		if u&p.in != 0 {
			out |= p.out
		}
	}
	return vk.ImageUsageFlags(out)
}

func vkMemoryProperties(m gpu.MemoryUsage) vk.MemoryPropertyFlags {
	switch m {
	case gpu.MemoryCPUToGPU, gpu.MemoryCPUOnly:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	case gpu.MemoryGPUToCPU:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit | vk.MemoryPropertyHostCachedBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

func vkDescriptorType(t gpu.DescriptorType) vk.DescriptorType {
	switch t {
	case gpu.DescriptorSampler:
		return vk.DescriptorTypeSampler
	case gpu.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case gpu.DescriptorSampledImage:
		return vk.DescriptorTypeSampledImage
	case gpu.DescriptorStorageImage:
		return vk.DescriptorTypeStorageImage
	case gpu.DescriptorUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	}
	return vk.DescriptorTypeStorageBuffer
}

func vkShaderStages(s gpu.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlagBits
	if s&gpu.ShaderStageVertex != 0 {
		out |= vk.ShaderStageVertexBit
	}
	if s&gpu.ShaderStageFragment != 0 {
		out |= vk.ShaderStageFragmentBit
	}
	if s&gpu.ShaderStageCompute != 0 {
		out |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(out)
}

func vkPipelineStage(s gpu.PipelineStage) vk.PipelineStageFlags {
	var out vk.PipelineStageFlagBits
	pairs := []struct {
		in  gpu.PipelineStage
		out vk.PipelineStageFlagBits
	}{
		{gpu.PipelineStageTopOfPipe, vk.PipelineStageTopOfPipeBit},
		{gpu.PipelineStageTransfer, vk.PipelineStageTransferBit},
		{gpu.PipelineStageComputeShader, vk.PipelineStageComputeShaderBit},
		{gpu.PipelineStageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
		{gpu.PipelineStageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
		{gpu.PipelineStageAllCommands, vk.PipelineStageAllCommandsBit},
	}
	for _, p := range pairs {
		if s&p.in != 0 {
			out |= p.out
		}
	}
	if out == 0 {
		out = vk.PipelineStageAllCommandsBit
	}
	return vk.PipelineStageFlags(out)
}

func vkPresentMode(m gpu.PresentMode) vk.PresentMode {
	switch m {
	case gpu.PresentModeMailbox:
		return vk.PresentModeMailbox
	case gpu.PresentModeImmediate:
		return vk.PresentModeImmediate
	case gpu.PresentModeFIFORelaxed:
		return vk.PresentModeFifoRelaxed
	}
	return vk.PresentModeFifo
}

func gpuPresentMode(m vk.PresentMode) (gpu.PresentMode, bool) {
	switch m {
	case vk.PresentModeFifo:
		return gpu.PresentModeFIFO, true
	case vk.PresentModeMailbox:
		return gpu.PresentModeMailbox, true
	case vk.PresentModeImmediate:
		return gpu.PresentModeImmediate, true
	case vk.PresentModeFifoRelaxed:
		return gpu.PresentModeFIFORelaxed, true
	}
	return 0, false
}

func vkExtent2D(e gpu.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

func gpuExtent2D(e vk.Extent2D) gpu.Extent2D {
	return gpu.Extent2D{Width: e.Width, Height: e.Height}
}
