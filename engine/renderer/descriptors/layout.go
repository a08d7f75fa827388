package descriptors

import (
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

// LayoutBuilder collects bindings for a descriptor set layout.
type LayoutBuilder struct {
	bindings []gpu.DescriptorBinding
}

func (b *LayoutBuilder) AddBinding(binding uint32, kind gpu.DescriptorType) *LayoutBuilder {
	b.bindings = append(b.bindings, gpu.DescriptorBinding{
		Binding: binding,
		Type:    kind,
		Count:   1,
	})
	return b
}

func (b *LayoutBuilder) Clear() {
	b.bindings = b.bindings[:0]
}

// Build creates the layout with every binding visible to stages.
func (b *LayoutBuilder) Build(device gpu.Device, stages gpu.ShaderStage) (gpu.DescriptorSetLayout, error) {
	bindings := make([]gpu.DescriptorBinding, len(b.bindings))
	for i, binding := range b.bindings {
		binding.Stages |= stages
		bindings[i] = binding
	}
	layout, err := device.CreateDescriptorSetLayout(bindings)
	if err != nil {
		return gpu.DescriptorSetLayout{}, core.Fatal(err, "create descriptor set layout")
	}
	return layout, nil
}

// Writer batches descriptor writes for one set.
type Writer struct {
	writes []gpu.DescriptorWrite
}

func (w *Writer) WriteImage(binding uint32, view gpu.ImageView, layout gpu.ImageLayout, kind gpu.DescriptorType) *Writer {
	w.writes = append(w.writes, gpu.DescriptorWrite{
		Binding:   binding,
		Type:      kind,
		ImageView: view,
		Layout:    layout,
	})
	return w
}

func (w *Writer) WriteBuffer(binding uint32, buffer gpu.Buffer, size, offset uint64, kind gpu.DescriptorType) *Writer {
	w.writes = append(w.writes, gpu.DescriptorWrite{
		Binding: binding,
		Type:    kind,
		Buffer:  buffer,
		Offset:  offset,
		Range:   size,
	})
	return w
}

func (w *Writer) Clear() {
	w.writes = w.writes[:0]
}

func (w *Writer) UpdateSet(device gpu.Device, set gpu.DescriptorSet) {
	device.UpdateDescriptorSet(set, w.writes)
}
