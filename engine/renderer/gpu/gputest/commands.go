package gputest

import (
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

// record appends a command to cb. Must be called with d.mu held.
func (d *Device) record(cb gpu.CommandBuffer, name string, run func(), refs ...key) {
	c, ok := d.cmdBuffers.Get(cb.ID, cb.Generation)
	if !ok {
		d.violatef("%s recorded into unknown command buffer %s", name, cb.Handle)
		return
	}
	if c.state != cbRecording {
		d.violatef("%s recorded into command buffer %s that is not recording", name, cb.Handle)
		return
	}
	c.cmds = append(c.cmds, command{name: name, run: run, refs: refs})
	d.stats.CommandsRecorded++
}

func (d *Device) image(name string, img gpu.Image) *image {
	im, ok := d.images.Get(img.ID, img.Generation)
	if !ok {
		d.violatef("%s references unknown image %s", name, img.Handle)
		return nil
	}
	return im
}

func (d *Device) expectLayout(name string, img gpu.Image, im *image, allowed ...gpu.ImageLayout) {
	for _, l := range allowed {
		if im.layout == l {
			return
		}
	}
	d.violatef("%s uses image %s in layout %s", name, img.Handle, im.layout)
}

func (d *Device) CmdTransitionImage(cb gpu.CommandBuffer, img gpu.Image, from, to gpu.ImageLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	im := d.image("transition", img)
	if im == nil {
		return
	}
	if from != gpu.ImageLayoutUndefined && im.layout != from {
		d.violatef("transition of image %s from %s but it is in %s", img.Handle, from, im.layout)
	}
	im.layout = to
	d.record(cb, "transition:"+to.String(), nil, key{gpu.KindImage, img.ID})
}

func (d *Device) CmdClearColor(cb gpu.CommandBuffer, img gpu.Image, layout gpu.ImageLayout, color [4]float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	im := d.image("clear", img)
	if im == nil {
		return
	}
	d.expectLayout("clear", img, im, gpu.ImageLayoutGeneral, gpu.ImageLayoutTransferDst)
	d.record(cb, "clear", nil, key{gpu.KindImage, img.ID})
}

func (d *Device) CmdCopyBuffer(cb gpu.CommandBuffer, src, dst gpu.Buffer, regions ...gpu.BufferCopy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	run := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		s, okS := d.buffers.Get(src.ID, src.Generation)
		t, okT := d.buffers.Get(dst.ID, dst.Generation)
		if !okS || !okT {
			d.violatef("copy executed after buffer %s or %s was destroyed", src.Handle, dst.Handle)
			return
		}
		for _, r := range regions {
			if r.SrcOffset+r.Size > uint64(len(s.data)) || r.DstOffset+r.Size > uint64(len(t.data)) {
				d.violatef("copy region out of bounds")
				continue
			}
			copy(t.data[r.DstOffset:r.DstOffset+r.Size], s.data[r.SrcOffset:r.SrcOffset+r.Size])
		}
	}
	d.record(cb, "copy-buffer", run, key{gpu.KindBuffer, src.ID}, key{gpu.KindBuffer, dst.ID})
}

func (d *Device) CmdCopyBufferToImage(cb gpu.CommandBuffer, src gpu.Buffer, dst gpu.Image, extent gpu.Extent3D) {
	d.mu.Lock()
	defer d.mu.Unlock()
	im := d.image("copy-buffer-to-image", dst)
	if im == nil {
		return
	}
	d.expectLayout("copy-buffer-to-image", dst, im, gpu.ImageLayoutTransferDst)
	need := uint64(extent.Width) * uint64(extent.Height) * uint64(max(extent.Depth, 1)) * uint64(im.info.Format.BytesPerPixel())
	buf, ok := d.buffers.Get(src.ID, src.Generation)
	if ok && need > buf.info.Size {
		d.violatef("staging buffer %s holds %d bytes, copy needs %d", src.Handle, buf.info.Size, need)
	}
	run := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		s, okS := d.buffers.Get(src.ID, src.Generation)
		t, okT := d.images.Get(dst.ID, dst.Generation)
		if !okS || !okT {
			d.violatef("copy executed after buffer %s or image %s was destroyed", src.Handle, dst.Handle)
			return
		}
		t.data = append(t.data[:0], s.data[:min(need, uint64(len(s.data)))]...)
	}
	d.record(cb, "copy-buffer-to-image", run, key{gpu.KindBuffer, src.ID}, key{gpu.KindImage, dst.ID})
}

func (d *Device) CmdBlitImage(cb gpu.CommandBuffer, src, dst gpu.Image, srcRegion, dstRegion gpu.Rect2D) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.image("blit", src)
	t := d.image("blit", dst)
	if s == nil || t == nil {
		return
	}
	d.expectLayout("blit source", src, s, gpu.ImageLayoutTransferSrc, gpu.ImageLayoutGeneral)
	d.expectLayout("blit destination", dst, t, gpu.ImageLayoutTransferDst, gpu.ImageLayoutGeneral)
	if srcRegion.Extent.Width > s.info.Extent.Width || srcRegion.Extent.Height > s.info.Extent.Height {
		d.violatef("blit source region %v exceeds image %s", srcRegion.Extent, src.Handle)
	}
	d.record(cb, "blit", nil, key{gpu.KindImage, src.ID}, key{gpu.KindImage, dst.ID})
}

func (d *Device) CmdGenerateMipmaps(cb gpu.CommandBuffer, img gpu.Image, extent gpu.Extent2D, mipLevels uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	im := d.image("generate-mipmaps", img)
	if im == nil {
		return
	}
	d.expectLayout("generate-mipmaps", img, im, gpu.ImageLayoutTransferDst)
	im.layout = gpu.ImageLayoutShaderReadOnly
	d.record(cb, "generate-mipmaps", nil, key{gpu.KindImage, img.ID})
}

// CmdHook records a command that calls fn when the GPU executes it.
func (d *Device) CmdHook(cb gpu.CommandBuffer, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(cb, "hook", fn)
}
