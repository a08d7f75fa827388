package engine

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/config"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu/gputest"
)

type fakeWindow struct {
	extent    gpu.Extent2D
	minimized bool
	// pumps left before the window reports a close request; negative
	// means never.
	pumps int
}

func (w *fakeWindow) FramebufferExtent() gpu.Extent2D {
	return w.extent
}

func (w *fakeWindow) PumpMessages() bool {
	if w.pumps < 0 {
		return true
	}
	if w.pumps == 0 {
		return false
	}
	w.pumps--
	return true
}

func (w *fakeWindow) Minimized() bool {
	return w.minimized
}

type recorder struct {
	updates int
	renders int
	deltas  []float64
	resizes [][2]uint32
	fail    error
}

func (r *recorder) game() *Game {
	return &Game{
		Name: "test",
		FnUpdate: func(delta float64) error {
			r.updates++
			r.deltas = append(r.deltas, delta)
			return r.fail
		},
		FnRender: func(*Engine, float64) error {
			r.renders++
			return nil
		},
		FnOnResize: func(w, h uint32) error {
			r.resizes = append(r.resizes, [2]uint32{w, h})
			return nil
		},
	}
}

func newEngine(t *testing.T, pumps int) (*gputest.Device, *fakeWindow, *recorder, *Engine) {
	t.Helper()
	window := &fakeWindow{extent: gpu.Extent2D{Width: 800, Height: 600}, pumps: pumps}
	dev := gputest.New(gputest.Options{Latency: time.Millisecond, Extent: window.extent})
	rec := &recorder{}
	cfg := config.Default()
	cfg.Descriptors.InitialSets = 8

	e, err := NewWithBackend(rec.game(), cfg, Backend{
		Window:    window,
		Device:    dev,
		Presenter: dev,
		Close: func() error {
			dev.Close()
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		dev.Resume()
		if v := dev.Violations(); len(v) != 0 {
			t.Errorf("device violations: %v", v)
		}
		if err := e.Shutdown(); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return dev, window, rec, e
}

func TestNewWithBackendRequiresUpdate(t *testing.T) {
	_, err := NewWithBackend(&Game{}, config.Default(), Backend{})
	if err == nil {
		t.Fatal("expected an error for a game without update")
	}
}

func TestRunDrawsUntilWindowCloses(t *testing.T) {
	_, _, rec, e := newEngine(t, 5)
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if e.Running() {
		t.Fatal("engine still running after the window closed")
	}
	if got := e.Renderer().Stats().FramesDrawn; got != 5 {
		t.Fatalf("frames drawn = %d, want 5", got)
	}
	if rec.updates != 5 || rec.renders != 5 {
		t.Fatalf("updates=%d renders=%d, want 5 each", rec.updates, rec.renders)
	}
	if len(rec.resizes) != 1 || rec.resizes[0] != [2]uint32{800, 600} {
		t.Fatalf("initial resize = %v", rec.resizes)
	}
}

func TestQuitEventStopsLoop(t *testing.T) {
	_, _, _, e := newEngine(t, -1)
	e.Events().Fire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if got := e.Renderer().Stats().FramesDrawn; got != 0 {
		t.Fatalf("frames drawn after quit = %d", got)
	}
}

func TestMinimizedWindowSkipsFrames(t *testing.T) {
	_, window, rec, e := newEngine(t, -1)
	window.minimized = true
	if err := e.Frame(); err != nil {
		t.Fatal(err)
	}
	if rec.updates != 0 || e.Renderer().Stats().FramesDrawn != 0 {
		t.Fatal("a minimized window must not update or draw")
	}

	window.minimized = false
	e.Events().Fire(core.EVENT_CODE_MINIMIZED, nil, core.EventContext{U32: [4]uint32{1}})
	if err := e.Frame(); err != nil {
		t.Fatal(err)
	}
	if e.Renderer().Stats().FramesDrawn != 0 {
		t.Fatal("suspended engine drew a frame")
	}

	e.Events().Fire(core.EVENT_CODE_MINIMIZED, nil, core.EventContext{U32: [4]uint32{0}})
	if err := e.Frame(); err != nil {
		t.Fatal(err)
	}
	if e.Renderer().Stats().FramesDrawn != 1 {
		t.Fatal("restored engine did not draw")
	}
}

func TestRestoreDoesNotReportPauseAsDelta(t *testing.T) {
	_, window, rec, e := newEngine(t, -1)
	e.clock.Start()
	e.lastTime = e.clock.Elapsed()

	window.minimized = true
	for i := 0; i < 3; i++ {
		if err := e.Frame(); err != nil {
			t.Fatal(err)
		}
	}
	window.minimized = false
	if err := e.Frame(); err != nil {
		t.Fatal(err)
	}
	if len(rec.deltas) != 1 {
		t.Fatalf("updates after restore = %d, want 1", len(rec.deltas))
	}
	if got := rec.deltas[0]; got < 0 || got >= minimizedSleep.Seconds() {
		t.Fatalf("delta after restore = %fs, the pause leaked into it", got)
	}
}

func TestResizeEventRebuildsSurface(t *testing.T) {
	dev, window, rec, e := newEngine(t, -1)
	if err := e.Frame(); err != nil {
		t.Fatal(err)
	}

	window.extent = gpu.Extent2D{Width: 1024, Height: 768}
	dev.SetExtent(window.extent)
	e.Events().Fire(core.EVENT_CODE_RESIZED, nil, core.EventContext{U32: [4]uint32{1024, 768}})
	if err := e.Frame(); err != nil {
		t.Fatal(err)
	}

	if got := e.Renderer().Stats().Resizes; got == 0 {
		t.Fatal("surface was not rebuilt")
	}
	if w, h := e.GetFramebufferSize(); w != 1024 || h != 768 {
		t.Fatalf("framebuffer size = %dx%d", w, h)
	}
	if last := rec.resizes[len(rec.resizes)-1]; last != [2]uint32{1024, 768} {
		t.Fatalf("game saw resize %v", last)
	}
	if got := e.Renderer().Surface().Extent; got != window.extent {
		t.Fatalf("surface extent = %v, want %v", got, window.extent)
	}
}

func TestConfigReloadAppliesRuntimeSettings(t *testing.T) {
	_, _, _, e := newEngine(t, -1)
	reloads := make(chan *config.EngineConfig, 2)
	e.reloads = reloads

	next := config.Default()
	next.Renderer.RenderScale = 0.5
	next.Renderer.ShowHUD = false
	next.Application.StartWidth = 1
	reloads <- next

	bad := config.Default()
	bad.Renderer.RenderScale = 3
	reloads <- bad

	if err := e.Frame(); err != nil {
		t.Fatal(err)
	}
	if got := e.Renderer().RenderScale(); got != 0.5 {
		t.Fatalf("render scale = %v, want 0.5", got)
	}
	if e.Config().Renderer.ShowHUD {
		t.Fatal("HUD still enabled")
	}
	if e.Config().Application.StartWidth == 1 {
		t.Fatal("window settings must keep their startup values")
	}
}

func TestGameUpdateErrorIsFatal(t *testing.T) {
	_, _, rec, e := newEngine(t, -1)
	rec.fail = errors.New("boom")
	err := e.Run()
	if err == nil || !core.IsFatal(err) {
		t.Fatalf("Run() = %v, want a fatal error", err)
	}
	if e.Running() {
		t.Fatal("engine still running after a fatal error")
	}
}
