package deletion

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

func newDevice(t *testing.T) *gputest.Device {
	t.Helper()
	dev := gputest.New(gputest.Options{})
	t.Cleanup(dev.Close)
	return dev
}

func TestFlushRunsInReverseOrder(t *testing.T) {
	q := NewQueue("test", newDevice(t))
	var order []int
	for i := 1; i <= 5; i++ {
		i := i
		if err := q.Push(Func("step", func() { order = append(order, i) })); err != nil {
			t.Fatal(err)
		}
	}
	q.Flush()

	want := []int{5, 4, 3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("ran %d actions, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	q := NewQueue("test", newDevice(t))
	q.Flush()

	count := 0
	_ = q.Push(Func("count", func() { count++ }))
	_ = q.Push(Func("count", func() { count++ }))
	q.Flush()
	q.Flush()
	if count != 2 {
		t.Fatalf("actions ran %d times, want 2", count)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after flush: %d", q.Len())
	}
}

func TestPushDuringFlushIsRejected(t *testing.T) {
	q := NewQueue("test", newDevice(t))
	var pushErr error
	_ = q.Push(Func("reentrant", func() {
		pushErr = q.Push(Func("late", func() {}))
	}))
	q.Flush()
	if !errors.Is(pushErr, core.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", pushErr)
	}
	if q.Len() != 0 {
		t.Fatal("rejected push must not be queued")
	}
}

func TestDestroysDeviceObjectsDependentsFirst(t *testing.T) {
	dev := newDevice(t)
	q := NewQueue("global", dev)

	img, err := dev.CreateImage(gpu.ImageInfo{
		Extent: gpu.Extent3D{Width: 4, Height: 4, Depth: 1},
		Format: gpu.FormatR8G8B8A8Unorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	view, err := dev.CreateImageView(img.Image, img.Format, gpu.AspectColor)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := dev.CreateBuffer(gpu.BufferInfo{Size: 64, Memory: gpu.MemoryCPUToGPU, Label: "ubo"})
	if err != nil {
		t.Fatal(err)
	}
	fence, _ := dev.CreateFence(true)

	for _, a := range []Action{Fence(fence), Image(img), ImageView(view), Buffer(buf)} {
		if err := q.Push(a); err != nil {
			t.Fatal(err)
		}
	}
	q.Flush()

	var destroyed []gpu.ResourceKind
	for _, e := range dev.EventsOf(gputest.EventDestroy) {
		destroyed = append(destroyed, e.Resource)
	}
	want := []gpu.ResourceKind{gpu.KindBuffer, gpu.KindImageView, gpu.KindImageView, gpu.KindImage, gpu.KindFence}
	if len(destroyed) != len(want) {
		t.Fatalf("destroyed %v, want %v", destroyed, want)
	}
	for i := range want {
		if destroyed[i] != want[i] {
			t.Fatalf("destroyed %v, want %v", destroyed, want)
		}
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("unexpected violations: %v", v)
	}
}

func TestPushRejectsEmptyAction(t *testing.T) {
	q := NewQueue("test", newDevice(t))
	if err := q.Push(Action{}); !errors.Is(err, core.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
}

func TestPushAfterCloseIsRejected(t *testing.T) {
	dev := newDevice(t)
	q := NewQueue("test", dev)
	ran := 0
	_ = q.Push(Func("early", func() { ran++ }))
	q.Close()
	if ran != 1 {
		t.Fatalf("close ran %d actions, want 1", ran)
	}

	err := q.Push(Func("late", func() { ran++ }))
	if !errors.Is(err, core.ErrContractViolation) {
		t.Fatalf("push after close returned %v", err)
	}
	q.Close()
	if ran != 1 || q.Len() != 0 {
		t.Fatalf("late action was queued: ran=%d len=%d", ran, q.Len())
	}
}

func TestFlushLogsUnderQueuePrefix(t *testing.T) {
	var buf bytes.Buffer
	core.SetLogOutput(&buf)
	core.SetLogLevel(core.DebugLevel)
	t.Cleanup(func() {
		core.SetLogOutput(os.Stderr)
		core.SetLogLevel(core.InfoLevel)
	})

	q := NewQueue("logged", newDevice(t))
	_ = q.Push(Func("camera rig", func() {}))
	q.Flush()

	out := buf.String()
	for _, want := range []string{"deletion/logged", "destroying", "camera rig"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q lacks %q", out, want)
		}
	}
}
