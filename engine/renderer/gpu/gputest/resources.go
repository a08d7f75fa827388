package gputest

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

// Descriptors

func (d *Device) CreateDescriptorPool(maxSets uint32, ratios []gpu.PoolSizeRatio) (gpu.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return gpu.DescriptorPool{}, err
	}
	if maxSets == 0 {
		return gpu.DescriptorPool{}, errors.New("descriptor pool with zero sets")
	}
	id, gen := d.descPools.Insert(&descriptorPool{maxSets: maxSets})
	d.stats.PoolsCreated++
	return gpu.DescriptorPool{Handle: d.created(gpu.KindDescriptorPool, id, gen, "")}, nil
}

func (d *Device) ResetDescriptorPool(p gpu.DescriptorPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return err
	}
	pool, ok := d.descPools.Get(p.ID, p.Generation)
	if !ok {
		return errors.Newf("unknown descriptor pool %s", p.Handle)
	}
	pool.allocated = 0
	var stale [][2]uint32
	d.sets.Each(func(id, gen uint32, owner uint32) {
		if owner == p.ID {
			stale = append(stale, [2]uint32{id, gen})
		}
	})
	for _, s := range stale {
		d.sets.Remove(s[0], s[1])
	}
	d.stats.PoolResets++
	d.log(Event{Kind: EventPoolReset, Resource: gpu.KindDescriptorPool, Handle: p.Handle})
	return nil
}

func (d *Device) DestroyDescriptorPool(p gpu.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.descPools.Remove(p.ID, p.Generation)
	d.destroyed(gpu.KindDescriptorPool, p.Handle, ok)
}

func (d *Device) AllocateDescriptorSet(p gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return gpu.DescriptorSet{}, err
	}
	pool, ok := d.descPools.Get(p.ID, p.Generation)
	if !ok {
		return gpu.DescriptorSet{}, errors.Newf("unknown descriptor pool %s", p.Handle)
	}
	if _, ok := d.layouts.Get(layout.ID, layout.Generation); !ok {
		return gpu.DescriptorSet{}, errors.Newf("unknown descriptor set layout %s", layout.Handle)
	}
	if n := len(d.failAlloc); n > 0 {
		err := d.failAlloc[0]
		d.failAlloc = d.failAlloc[1:]
		return gpu.DescriptorSet{}, err
	}
	if pool.allocated >= pool.maxSets {
		return gpu.DescriptorSet{}, gpu.ErrOutOfPoolMemory
	}
	pool.allocated++
	d.stats.SetsAllocated++
	id, gen := d.sets.Insert(p.ID)
	return gpu.DescriptorSet{Handle: gpu.Handle{ID: id, Generation: gen}}, nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return gpu.DescriptorSetLayout{}, err
	}
	id, gen := d.layouts.Insert(append([]gpu.DescriptorBinding(nil), bindings...))
	return gpu.DescriptorSetLayout{Handle: d.created(gpu.KindDescriptorSetLayout, id, gen, "")}, nil
}

func (d *Device) DestroyDescriptorSetLayout(l gpu.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.layouts.Remove(l.ID, l.Generation)
	d.destroyed(gpu.KindDescriptorSetLayout, l.Handle, ok)
}

func (d *Device) UpdateDescriptorSet(set gpu.DescriptorSet, writes []gpu.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sets.Get(set.ID, set.Generation); !ok {
		d.violatef("update of unknown or reset descriptor set %s", set.Handle)
		return
	}
	for _, w := range writes {
		if !w.Buffer.IsNull() {
			if _, ok := d.buffers.Get(w.Buffer.ID, w.Buffer.Generation); !ok {
				d.violatef("descriptor write references unknown buffer %s", w.Buffer.Handle)
			}
		}
		if !w.ImageView.IsNull() {
			if _, ok := d.views.Get(w.ImageView.ID, w.ImageView.Generation); !ok {
				d.violatef("descriptor write references unknown image view %s", w.ImageView.Handle)
			}
		}
	}
}

// Buffers and images

func (d *Device) CreateBuffer(info gpu.BufferInfo) (gpu.AllocatedBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return gpu.AllocatedBuffer{}, err
	}
	if info.Size == 0 {
		return gpu.AllocatedBuffer{}, errors.New("buffer with zero size")
	}
	id, gen := d.buffers.Insert(&buffer{info: info, data: make([]byte, info.Size)})
	return gpu.AllocatedBuffer{
		Buffer: gpu.Buffer{Handle: d.created(gpu.KindBuffer, id, gen, info.Label)},
		Size:   info.Size,
		Usage:  info.Usage,
		Memory: info.Memory,
		Label:  info.Label,
	}, nil
}

func (d *Device) DestroyBuffer(b gpu.AllocatedBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.buffers.Remove(b.Buffer.ID, b.Buffer.Generation)
	d.destroyed(gpu.KindBuffer, b.Buffer.Handle, ok)
}

func (d *Device) WriteBuffer(b gpu.AllocatedBuffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return err
	}
	buf, ok := d.buffers.Get(b.Buffer.ID, b.Buffer.Generation)
	if !ok {
		return errors.Newf("unknown buffer %s", b.Buffer.Handle)
	}
	if !buf.info.Memory.HostVisible() {
		return errors.Newf("buffer %s is not host visible", b.Buffer.Handle)
	}
	if offset+uint64(len(data)) > uint64(len(buf.data)) {
		return errors.Newf("write of %d bytes at %d overflows buffer %s", len(data), offset, b.Buffer.Handle)
	}
	if d.inUse[key{gpu.KindBuffer, b.Buffer.ID}] > 0 {
		d.violatef("host write into buffer %s while in use by the GPU", b.Buffer.Handle)
	}
	copy(buf.data[offset:], data)
	return nil
}

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.AllocatedImage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return gpu.AllocatedImage{}, err
	}
	if info.Extent.Width == 0 || info.Extent.Height == 0 {
		return gpu.AllocatedImage{}, errors.New("image with zero extent")
	}
	if info.MipLevels == 0 {
		info.MipLevels = 1
	}
	id, gen := d.images.Insert(&image{info: info})
	img := gpu.Image{Handle: d.created(gpu.KindImage, id, gen, info.Label)}
	vid, vgen := d.views.Insert(id)
	view := gpu.ImageView{Handle: d.created(gpu.KindImageView, vid, vgen, info.Label)}
	return gpu.AllocatedImage{
		Image:     img,
		View:      view,
		Extent:    info.Extent,
		Format:    info.Format,
		Usage:     info.Usage,
		MipLevels: info.MipLevels,
		Label:     info.Label,
	}, nil
}

func (d *Device) DestroyImage(img gpu.AllocatedImage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !img.View.IsNull() {
		_, ok := d.views.Remove(img.View.ID, img.View.Generation)
		d.destroyed(gpu.KindImageView, img.View.Handle, ok)
	}
	_, ok := d.images.Remove(img.Image.ID, img.Image.Generation)
	d.destroyed(gpu.KindImage, img.Image.Handle, ok)
}

func (d *Device) CreateImageView(img gpu.Image, format gpu.Format, aspect gpu.ImageAspect) (gpu.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return gpu.ImageView{}, err
	}
	if _, ok := d.images.Get(img.ID, img.Generation); !ok {
		return gpu.ImageView{}, errors.Newf("unknown image %s", img.Handle)
	}
	id, gen := d.views.Insert(img.ID)
	return gpu.ImageView{Handle: d.created(gpu.KindImageView, id, gen, "")}, nil
}

func (d *Device) DestroyImageView(v gpu.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.views.Remove(v.ID, v.Generation)
	d.destroyed(gpu.KindImageView, v.Handle, ok)
}
