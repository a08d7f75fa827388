package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestParse(t *testing.T) {
	data := `
[logging]
level = "debug"

[renderer]
frame_timeout = "250ms"
render_scale = 0.5
present_mode = "mailbox"
clear_color = [1.0, 0.0, 0.0, 1.0]

[descriptors]
initial_sets = 16
max_sets_per_pool = 64
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.LogLevel(); got != core.DebugLevel {
		t.Errorf("log level = %v, want debug", got)
	}
	opts := cfg.RendererOptions()
	if opts.FenceTimeout != 250*time.Millisecond {
		t.Errorf("fence timeout = %v", opts.FenceTimeout)
	}
	if opts.PresentMode != gpu.PresentModeMailbox {
		t.Errorf("present mode = %v", opts.PresentMode)
	}
	if opts.RenderScale != 0.5 {
		t.Errorf("render scale = %v", opts.RenderScale)
	}
	if opts.ClearColor != [4]float32{1, 0, 0, 1} {
		t.Errorf("clear color = %v", opts.ClearColor)
	}
	if opts.InitialSets != 16 || opts.MaxSetsPerPool != 64 {
		t.Errorf("descriptor sizes = %d/%d", opts.InitialSets, opts.MaxSetsPerPool)
	}
	// Untouched keys keep their defaults.
	if cfg.Application.StartWidth != 1280 {
		t.Errorf("start width = %d", cfg.Application.StartWidth)
	}
	if len(opts.FrameRatios) != 4 {
		t.Errorf("frame ratios = %v", opts.FrameRatios)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		invalid bool
	}{
		{"three frames in flight", "[renderer]\nframes_in_flight = 3", true},
		{"zero frame timeout", "[renderer]\nframe_timeout = \"0s\"", true},
		{"render scale above one", "[renderer]\nrender_scale = 1.5", true},
		{"render scale below a tenth", "[renderer]\nrender_scale = 0.05", true},
		{"unknown present mode", "[renderer]\npresent_mode = \"vsync\"", true},
		{"unknown log level", "[logging]\nlevel = \"loud\"", true},
		{"pool cap below initial", "[descriptors]\ninitial_sets = 100\nmax_sets_per_pool = 10", true},
		{"unknown descriptor type", "[descriptors.ratios]\nacceleration_structure = 1.0", true},
		{"unknown key", "[renderer]\nframes = 2", false},
		{"bad duration", "[renderer]\nframe_timeout = \"soon\"", false},
		{"not toml", "[renderer", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, ErrInvalid); got != tt.invalid {
				t.Fatalf("errors.Is(err, ErrInvalid) = %v for %v", got, err)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Renderer.PresentMode = "immediate"
	data, err := cfg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	back, err := Parse(data)
	if err != nil {
		t.Fatalf("parse encoded config: %v\n%s", err, data)
	}
	if back.Renderer.PresentMode != "immediate" || back.Renderer.FrameTimeout != cfg.Renderer.FrameTimeout {
		t.Fatalf("round trip lost values: %+v", back.Renderer)
	}
}

func TestWatcherPublishesValidReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := Watch(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[renderer]\nrender_scale = 2.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
rejected:
	for {
		select {
		case err := <-w.Errors():
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("unexpected watcher error: %v", err)
			}
			break rejected
		case cfg := <-w.Reloads():
			// Truncation shows up as an empty, default file.
			if cfg.Renderer.RenderScale != 1 {
				t.Fatalf("invalid config was published: %+v", cfg.Renderer)
			}
		case <-deadline:
			t.Fatal("no error for invalid config")
		}
	}

	if err := os.WriteFile(path, []byte("[renderer]\nrender_scale = 0.75\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline = time.After(5 * time.Second)
	for {
		select {
		case cfg := <-w.Reloads():
			// A write can surface as several events; wait for the final content.
			if cfg.Renderer.RenderScale == 0.75 {
				return
			}
		case <-w.Errors():
		case <-deadline:
			t.Fatal("valid config was not published")
		}
	}
}
