package descriptors

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu/gputest"
)

var testRatios = []gpu.PoolSizeRatio{
	{Type: gpu.DescriptorStorageImage, Ratio: 3},
	{Type: gpu.DescriptorUniformBuffer, Ratio: 3},
}

func setup(t *testing.T, initial uint32) (*gputest.Device, *GrowableAllocator, gpu.DescriptorSetLayout) {
	t.Helper()
	dev := gputest.New(gputest.Options{})
	t.Cleanup(dev.Close)

	var builder LayoutBuilder
	builder.AddBinding(0, gpu.DescriptorUniformBuffer)
	layout, err := builder.Build(dev, gpu.ShaderStageVertex|gpu.ShaderStageFragment)
	if err != nil {
		t.Fatal(err)
	}

	alloc := NewGrowableAllocator("test", dev)
	if err := alloc.Init(initial, testRatios); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(alloc.DestroyPools)
	return dev, alloc, layout
}

func TestExhaustionRotatesToFreshPool(t *testing.T) {
	dev, alloc, layout := setup(t, 1)

	if _, err := alloc.Allocate(layout); err != nil {
		t.Fatal(err)
	}
	if got := dev.Stats().PoolsCreated; got != 1 {
		t.Fatalf("pools created after first allocation = %d, want 1", got)
	}
	if _, err := alloc.Allocate(layout); err != nil {
		t.Fatalf("second allocation failed: %v", err)
	}
	if got := dev.Stats().PoolsCreated; got != 2 {
		t.Fatalf("pools created = %d, want 2", got)
	}
	stats := alloc.Stats()
	if stats.Full != 1 || stats.Ready != 1 {
		t.Fatalf("ready/full = %d/%d, want 1/1", stats.Ready, stats.Full)
	}
}

func TestGrowthIsMonotonicAndCapped(t *testing.T) {
	_, alloc, layout := setup(t, 4)
	alloc.SetMaxSetsPerPool(20)

	prev := alloc.Stats().NextSetsPerPool
	if prev != 6 {
		t.Fatalf("initial target = %d, want 6", prev)
	}
	for i := 0; i < 200; i++ {
		if _, err := alloc.Allocate(layout); err != nil {
			t.Fatal(err)
		}
		next := alloc.Stats().NextSetsPerPool
		if next < prev {
			t.Fatalf("target shrank from %d to %d", prev, next)
		}
		if next > 20 {
			t.Fatalf("target %d exceeds cap", next)
		}
		prev = next
	}
	if prev != 20 {
		t.Fatalf("target = %d, want the cap after sustained demand", prev)
	}
}

func TestClearPoolsRecyclesFullPools(t *testing.T) {
	dev, alloc, layout := setup(t, 1)

	// Pools of 1, 2 and 3 sets: six sets fill all of them.
	for i := 0; i < 6; i++ {
		if _, err := alloc.Allocate(layout); err != nil {
			t.Fatal(err)
		}
	}
	created := dev.Stats().PoolsCreated
	if created != 3 {
		t.Fatalf("pools created = %d, want 3", created)
	}

	if err := alloc.ClearPools(); err != nil {
		t.Fatal(err)
	}
	if s := alloc.Stats(); s.Full != 0 || s.Ready != 3 {
		t.Fatalf("after clear ready/full = %d/%d, want 3/0", s.Ready, s.Full)
	}
	for i := 0; i < 6; i++ {
		if _, err := alloc.Allocate(layout); err != nil {
			t.Fatal(err)
		}
	}
	if got := dev.Stats().PoolsCreated; got != created {
		t.Fatalf("recycled pools were not reused: created %d, want %d", got, created)
	}
}

func TestFragmentationRetriesOnce(t *testing.T) {
	dev, alloc, layout := setup(t, 8)

	dev.FailDescriptorAllocations(gpu.ErrFragmentedPool)
	if _, err := alloc.Allocate(layout); err != nil {
		t.Fatalf("single fragmentation should be absorbed: %v", err)
	}

	dev.FailDescriptorAllocations(gpu.ErrOutOfPoolMemory, gpu.ErrOutOfPoolMemory)
	_, err := alloc.Allocate(layout)
	if !core.IsFatal(err) {
		t.Fatalf("expected fatal error after failed retry, got %v", err)
	}
	if !errors.Is(err, gpu.ErrOutOfPoolMemory) {
		t.Fatalf("fatal error should keep the device cause, got %v", err)
	}
}

func TestAllocateBeforeInit(t *testing.T) {
	dev := gputest.New(gputest.Options{})
	t.Cleanup(dev.Close)
	alloc := NewGrowableAllocator("uninit", dev)
	if _, err := alloc.Allocate(gpu.DescriptorSetLayout{}); !errors.Is(err, core.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
}

func TestWriterUpdatesSet(t *testing.T) {
	dev, alloc, layout := setup(t, 2)
	set, err := alloc.Allocate(layout)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := dev.CreateBuffer(gpu.BufferInfo{Size: 256, Usage: gpu.BufferUsageUniform, Memory: gpu.MemoryCPUToGPU})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dev.DestroyBuffer(buf) })

	var w Writer
	w.WriteBuffer(0, buf.Buffer, 256, 0, gpu.DescriptorUniformBuffer)
	w.UpdateSet(dev, set)
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("unexpected violations: %v", v)
	}
}

func TestPoolRotationIsLogged(t *testing.T) {
	var buf bytes.Buffer
	core.SetLogOutput(&buf)
	core.SetLogLevel(core.DebugLevel)
	t.Cleanup(func() {
		core.SetLogOutput(os.Stderr)
		core.SetLogLevel(core.InfoLevel)
	})

	_, alloc, layout := setup(t, 1)
	for i := 0; i < 2; i++ {
		if _, err := alloc.Allocate(layout); err != nil {
			t.Fatal(err)
		}
	}
	out := buf.String()
	for _, want := range []string{"descriptors/test", "pool created", "pool exhausted"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q lacks %q", out, want)
		}
	}
}
