// Package gputest provides a simulated gpu.Device and gpu.Presenter. Work
// submitted to it completes on a background goroutine after a configurable
// latency, so tests can observe the CPU running ahead of the GPU.
package gputest

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/containers"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

type Options struct {
	// Latency is how long each submission takes on the simulated GPU.
	Latency time.Duration
	// Extent is the initial window surface size.
	Extent gpu.Extent2D
	// PresentModes supported by the surface. Defaults to FIFO only.
	PresentModes []gpu.PresentMode
	// Formats supported by the surface.
	Formats []gpu.SurfaceFormat
}

type EventKind int

const (
	EventCreate EventKind = iota
	EventDestroy
	EventSubmit
	EventFenceWait
	EventFenceReset
	EventFenceSignal
	EventPoolReset
	EventAcquire
	EventPresent
	EventWaitIdle
)

// Event is one entry of the device log.
type Event struct {
	Kind     EventKind
	Resource gpu.ResourceKind
	Handle   gpu.Handle
	// Commands recorded in a submitted command buffer.
	Commands []string
	Label    string
}

type Stats struct {
	PoolsCreated     int
	PoolResets       int
	SetsAllocated    int
	Submits          int
	CommandsRecorded int
}

type fence struct {
	done     chan struct{}
	signaled bool
	pending  bool
}

type semaphore struct {
	signaled bool
}

type command struct {
	name string
	run  func()
	refs []key
}

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbPending
)

type commandBuffer struct {
	pool  uint32
	state cbState
	cmds  []command
}

type descriptorPool struct {
	maxSets   uint32
	allocated uint32
}

type buffer struct {
	info gpu.BufferInfo
	data []byte
}

type image struct {
	info   gpu.ImageInfo
	layout gpu.ImageLayout
	// data holds the base mip level once a buffer was copied into it.
	data       []byte
	swapchain  bool
	presentIdx uint32
}

type key struct {
	kind gpu.ResourceKind
	id   uint32
}

type submission struct {
	info    gpu.SubmitInfo
	cmds    []command
	refs    []key
	present bool
	done    chan struct{}
}

// Device is a simulated asynchronous device.
type Device struct {
	opts Options

	mu          sync.Mutex
	fences      *containers.HandleTable[*fence]
	semaphores  *containers.HandleTable[*semaphore]
	pools       *containers.HandleTable[struct{}]
	cmdBuffers  *containers.HandleTable[*commandBuffer]
	descPools   *containers.HandleTable[*descriptorPool]
	layouts     *containers.HandleTable[[]gpu.DescriptorBinding]
	sets        *containers.HandleTable[uint32]
	buffers     *containers.HandleTable[*buffer]
	images      *containers.HandleTable[*image]
	views       *containers.HandleTable[uint32]
	swapchains  *containers.HandleTable[*swapchain]
	inUse       map[key]int
	events      []Event
	violations  []string
	stats       Stats
	lost        bool
	hung        bool
	failAlloc   []error
	failAcquire []error
	failPresent []error
	extent      gpu.Extent2D

	queue   chan *submission
	release chan struct{}
	closed  chan struct{}
	wg      sync.WaitGroup
}

var (
	_ gpu.Device    = (*Device)(nil)
	_ gpu.Presenter = (*Device)(nil)
)

func New(opts Options) *Device {
	if opts.Extent.IsZero() {
		opts.Extent = gpu.Extent2D{Width: 1280, Height: 720}
	}
	if len(opts.PresentModes) == 0 {
		opts.PresentModes = []gpu.PresentMode{gpu.PresentModeFIFO}
	}
	if len(opts.Formats) == 0 {
		opts.Formats = []gpu.SurfaceFormat{
			{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSRGBNonlinear},
		}
	}
	d := &Device{
		opts:       opts,
		fences:     containers.NewHandleTable[*fence](),
		semaphores: containers.NewHandleTable[*semaphore](),
		pools:      containers.NewHandleTable[struct{}](),
		cmdBuffers: containers.NewHandleTable[*commandBuffer](),
		descPools:  containers.NewHandleTable[*descriptorPool](),
		layouts:    containers.NewHandleTable[[]gpu.DescriptorBinding](),
		sets:       containers.NewHandleTable[uint32](),
		buffers:    containers.NewHandleTable[*buffer](),
		images:     containers.NewHandleTable[*image](),
		views:      containers.NewHandleTable[uint32](),
		swapchains: containers.NewHandleTable[*swapchain](),
		inUse:      make(map[key]int),
		extent:     opts.Extent,
		queue:      make(chan *submission, 1024),
		release:    make(chan struct{}),
		closed:     make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Close stops the simulated GPU. Hung submissions are released first.
func (d *Device) Close() {
	select {
	case <-d.closed:
		return
	default:
	}
	d.mu.Lock()
	d.hung = false
	close(d.release)
	d.mu.Unlock()
	close(d.queue)
	d.wg.Wait()
	close(d.closed)
}

// run is the GPU timeline. Submissions execute strictly in queue order.
func (d *Device) run() {
	defer d.wg.Done()
	for s := range d.queue {
		d.mu.Lock()
		hung, release := d.hung, d.release
		d.mu.Unlock()
		if hung {
			<-release
		} else if d.opts.Latency > 0 && !s.present {
			time.Sleep(d.opts.Latency)
		}
		d.execute(s)
	}
}

func (d *Device) execute(s *submission) {
	d.mu.Lock()
	if !s.info.Wait.IsNull() {
		if sem, ok := d.semaphores.Get(s.info.Wait.ID, s.info.Wait.Generation); ok {
			if !sem.signaled {
				d.violatef("wait on unsignaled semaphore %s", s.info.Wait.Handle)
			}
			sem.signaled = false
		}
	}
	d.mu.Unlock()

	// Commands run without the lock so hooks may call back into the device.
	for _, c := range s.cmds {
		if c.run != nil {
			c.run()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range s.refs {
		d.inUse[r]--
		if d.inUse[r] <= 0 {
			delete(d.inUse, r)
		}
	}
	if cb, ok := d.cmdBuffers.Get(s.info.CommandBuffer.ID, s.info.CommandBuffer.Generation); ok && cb.state == cbPending {
		cb.state = cbExecutable
	}
	if !s.info.Signal.IsNull() {
		if sem, ok := d.semaphores.Get(s.info.Signal.ID, s.info.Signal.Generation); ok {
			sem.signaled = true
		}
	}
	if !s.info.Fence.IsNull() {
		if f, ok := d.fences.Get(s.info.Fence.ID, s.info.Fence.Generation); ok {
			f.pending = false
			f.signal()
			d.log(Event{Kind: EventFenceSignal, Resource: gpu.KindFence, Handle: s.info.Fence.Handle})
		}
	}
	if s.done != nil {
		close(s.done)
	}
}

func (f *fence) signal() {
	if !f.signaled {
		f.signaled = true
		close(f.done)
	}
}

func (d *Device) log(e Event) {
	d.events = append(d.events, e)
}

func (d *Device) violatef(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// Events returns a copy of the device log.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// EventsOf filters the log by kind.
func (d *Device) EventsOf(kind EventKind) []Event {
	var out []Event
	for _, e := range d.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Violations lists misuse detected so far: destroying objects the GPU is
// still using, recording into buffers that are not recording, layout
// mismatches and similar.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Live returns how many objects of kind are still alive.
func (d *Device) Live(kind gpu.ResourceKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch kind {
	case gpu.KindFence:
		return d.fences.Len()
	case gpu.KindSemaphore:
		return d.semaphores.Len()
	case gpu.KindCommandPool:
		return d.pools.Len()
	case gpu.KindDescriptorPool:
		return d.descPools.Len()
	case gpu.KindDescriptorSetLayout:
		return d.layouts.Len()
	case gpu.KindBuffer:
		return d.buffers.Len()
	case gpu.KindImage:
		n := 0
		d.images.Each(func(_, _ uint32, img *image) {
			if !img.swapchain {
				n++
			}
		})
		return n
	case gpu.KindImageView:
		return d.views.Len()
	case gpu.KindSwapchain:
		return d.swapchains.Len()
	}
	return 0
}

// Hang makes every later submission stall until Close.
func (d *Device) Hang() {
	d.mu.Lock()
	d.hung = true
	d.mu.Unlock()
}

// Resume releases submissions stalled by Hang.
func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hung {
		return
	}
	d.hung = false
	close(d.release)
	d.release = make(chan struct{})
}

// LoseDevice makes every later call fail with gpu.ErrDeviceLost.
func (d *Device) LoseDevice() {
	d.mu.Lock()
	d.lost = true
	d.mu.Unlock()
}

// FailDescriptorAllocations queues errors returned by the next descriptor
// set allocations, one per call.
func (d *Device) FailDescriptorAllocations(errs ...error) {
	d.mu.Lock()
	d.failAlloc = append(d.failAlloc, errs...)
	d.mu.Unlock()
}

// BufferContents returns a copy of a buffer's simulated memory.
func (d *Device) BufferContents(b gpu.Buffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers.Get(b.ID, b.Generation)
	if !ok {
		return nil
	}
	return append([]byte(nil), buf.data...)
}

// ImageContents returns a copy of the base mip level of img, as last
// written by CmdCopyBufferToImage.
func (d *Device) ImageContents(img gpu.Image) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	im, ok := d.images.Get(img.ID, img.Generation)
	if !ok {
		return nil
	}
	return append([]byte(nil), im.data...)
}

// FenceSignaled reports the current state of f.
func (d *Device) FenceSignaled(f gpu.Fence) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	fe, ok := d.fences.Get(f.ID, f.Generation)
	return ok && fe.signaled
}

// ImageLayout returns the layout img was last transitioned to.
func (d *Device) ImageLayout(img gpu.Image) gpu.ImageLayout {
	d.mu.Lock()
	defer d.mu.Unlock()
	if im, ok := d.images.Get(img.ID, img.Generation); ok {
		return im.layout
	}
	return gpu.ImageLayoutUndefined
}

func (d *Device) checkLost() error {
	if d.lost {
		return gpu.ErrDeviceLost
	}
	return nil
}

func (d *Device) destroyed(kind gpu.ResourceKind, h gpu.Handle, ok bool) {
	if !ok {
		d.violatef("destroy of unknown or stale %s %s", kind, h)
		return
	}
	if d.inUse[key{kind, h.ID}] > 0 {
		d.violatef("%s %s destroyed while in use by the GPU", kind, h)
	}
	d.log(Event{Kind: EventDestroy, Resource: kind, Handle: h})
}

func (d *Device) created(kind gpu.ResourceKind, id, gen uint32, label string) gpu.Handle {
	h := gpu.Handle{ID: id, Generation: gen}
	d.log(Event{Kind: EventCreate, Resource: kind, Handle: h, Label: label})
	return h
}

// Fences

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return gpu.Fence{}, err
	}
	f := &fence{done: make(chan struct{})}
	if signaled {
		f.signal()
	}
	id, gen := d.fences.Insert(f)
	return gpu.Fence{Handle: d.created(gpu.KindFence, id, gen, "")}, nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fe, ok := d.fences.Remove(f.ID, f.Generation)
	if ok && fe.pending {
		d.violatef("fence %s destroyed while a submission is pending", f.Handle)
	}
	d.destroyed(gpu.KindFence, f.Handle, ok)
}

func (d *Device) WaitForFence(f gpu.Fence, timeout time.Duration) error {
	d.mu.Lock()
	if err := d.checkLost(); err != nil {
		d.mu.Unlock()
		return err
	}
	fe, ok := d.fences.Get(f.ID, f.Generation)
	if !ok {
		d.violatef("wait on unknown fence %s", f.Handle)
		d.mu.Unlock()
		return errors.Newf("unknown fence %s", f.Handle)
	}
	d.log(Event{Kind: EventFenceWait, Resource: gpu.KindFence, Handle: f.Handle})
	done := fe.done
	d.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return gpu.ErrTimeout
	}
}

func (d *Device) ResetFence(f gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return err
	}
	fe, ok := d.fences.Get(f.ID, f.Generation)
	if !ok {
		return errors.Newf("unknown fence %s", f.Handle)
	}
	if fe.pending {
		d.violatef("reset of fence %s with pending submission", f.Handle)
	}
	if fe.signaled {
		fe.signaled = false
		fe.done = make(chan struct{})
	}
	d.log(Event{Kind: EventFenceReset, Resource: gpu.KindFence, Handle: f.Handle})
	return nil
}

// Semaphores

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return gpu.Semaphore{}, err
	}
	id, gen := d.semaphores.Insert(&semaphore{})
	return gpu.Semaphore{Handle: d.created(gpu.KindSemaphore, id, gen, "")}, nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.semaphores.Remove(s.ID, s.Generation)
	d.destroyed(gpu.KindSemaphore, s.Handle, ok)
}

// Command pools and buffers

func (d *Device) CreateCommandPool() (gpu.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return gpu.CommandPool{}, err
	}
	id, gen := d.pools.Insert(struct{}{})
	return gpu.CommandPool{Handle: d.created(gpu.KindCommandPool, id, gen, "")}, nil
}

func (d *Device) DestroyCommandPool(p gpu.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pools.Remove(p.ID, p.Generation)
	if ok && d.inUse[key{gpu.KindCommandPool, p.ID}] > 0 {
		d.violatef("command pool %s destroyed with pending command buffers", p.Handle)
	}
	d.destroyed(gpu.KindCommandPool, p.Handle, ok)
}

func (d *Device) AllocateCommandBuffer(p gpu.CommandPool) (gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return gpu.CommandBuffer{}, err
	}
	if _, ok := d.pools.Get(p.ID, p.Generation); !ok {
		return gpu.CommandBuffer{}, errors.Newf("unknown command pool %s", p.Handle)
	}
	id, gen := d.cmdBuffers.Insert(&commandBuffer{pool: p.ID})
	return gpu.CommandBuffer{Handle: gpu.Handle{ID: id, Generation: gen}}, nil
}

func (d *Device) commandBuffer(cb gpu.CommandBuffer) (*commandBuffer, error) {
	c, ok := d.cmdBuffers.Get(cb.ID, cb.Generation)
	if !ok {
		return nil, errors.Newf("unknown command buffer %s", cb.Handle)
	}
	return c, nil
}

func (d *Device) ResetCommandBuffer(cb gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return err
	}
	c, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	if c.state == cbPending {
		d.violatef("reset of pending command buffer %s", cb.Handle)
	}
	c.state = cbInitial
	c.cmds = nil
	return nil
}

func (d *Device) BeginCommandBuffer(cb gpu.CommandBuffer, oneTime bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return err
	}
	c, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	if c.state != cbInitial {
		d.violatef("begin of command buffer %s that was not reset", cb.Handle)
	}
	c.state = cbRecording
	c.cmds = nil
	return nil
}

func (d *Device) EndCommandBuffer(cb gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return err
	}
	c, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	if c.state != cbRecording {
		d.violatef("end of command buffer %s that is not recording", cb.Handle)
	}
	c.state = cbExecutable
	return nil
}

func (d *Device) Submit(info gpu.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLost(); err != nil {
		return err
	}
	c, err := d.commandBuffer(info.CommandBuffer)
	if err != nil {
		return err
	}
	if c.state != cbExecutable {
		d.violatef("submit of command buffer %s that is not executable", info.CommandBuffer.Handle)
	}
	c.state = cbPending

	s := &submission{info: info, cmds: c.cmds}
	names := make([]string, 0, len(c.cmds))
	s.refs = append(s.refs, key{gpu.KindCommandPool, c.pool})
	for _, cmd := range c.cmds {
		names = append(names, cmd.name)
		s.refs = append(s.refs, cmd.refs...)
	}
	if !info.Fence.IsNull() {
		f, ok := d.fences.Get(info.Fence.ID, info.Fence.Generation)
		if !ok {
			return errors.Newf("unknown fence %s", info.Fence.Handle)
		}
		if f.signaled {
			d.violatef("submit with signaled fence %s", info.Fence.Handle)
		}
		f.pending = true
		s.refs = append(s.refs, key{gpu.KindFence, info.Fence.ID})
	}
	for _, sem := range []gpu.Semaphore{info.Wait, info.Signal} {
		if !sem.IsNull() {
			s.refs = append(s.refs, key{gpu.KindSemaphore, sem.ID})
		}
	}
	for _, r := range s.refs {
		d.inUse[r]++
	}
	d.stats.Submits++
	d.log(Event{Kind: EventSubmit, Resource: gpu.KindCommandBuffer, Handle: info.Fence.Handle, Commands: names})
	d.enqueue(s)
	return nil
}

// enqueue hands s to the GPU goroutine. The lock is dropped while the
// queue is full so the GPU can make progress.
func (d *Device) enqueue(s *submission) {
	for {
		select {
		case d.queue <- s:
			return
		default:
		}
		d.mu.Unlock()
		time.Sleep(time.Millisecond)
		d.mu.Lock()
	}
}

// WaitIdle blocks until every queued submission has executed.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	if err := d.checkLost(); err != nil {
		d.mu.Unlock()
		return err
	}
	d.log(Event{Kind: EventWaitIdle})
	marker := &submission{present: true, done: make(chan struct{})}
	d.enqueue(marker)
	d.mu.Unlock()
	<-marker.done
	return nil
}
