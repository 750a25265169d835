package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.FramesPerBatch != DefaultFramesPerBatch {
		t.Fatalf("frames per batch = %d, want %d", s.FramesPerBatch, DefaultFramesPerBatch)
	}
	if s.StartBatch != 1 || s.EndBatch != 0 {
		t.Fatalf("batch bounds = %d..%d, want 1..0 (autodetect)", s.StartBatch, s.EndBatch)
	}
	if !s.Upscale.Enabled {
		t.Fatal("upscale should default to enabled")
	}
	if s.Denoise.Enabled || s.Interpolate.Enabled {
		t.Fatal("denoise and interpolate should default to disabled")
	}
}

func TestLoadFileValuesAndNormalization(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	body := `{
		"work_dir": "/tmp/work",
		"frames_per_batch": 500,
		"image_format": ".PNG",
		"max_retries": -3,
		"interpolate": {"enabled": true, "multiplier": 1}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.WorkDir != "/tmp/work" {
		t.Fatalf("work dir = %q", s.WorkDir)
	}
	if s.FramesPerBatch != 500 {
		t.Fatalf("frames per batch = %d, want 500", s.FramesPerBatch)
	}
	if s.ImageFormat != "png" {
		t.Fatalf("image format = %q, want png", s.ImageFormat)
	}
	if s.MaxRetries != DefaultMaxRetries {
		t.Fatalf("negative max retries not normalized: %d", s.MaxRetries)
	}
	if s.Interpolate.Multiplier != 2 {
		t.Fatalf("multiplier = %d, want floored to 2", s.Interpolate.Multiplier)
	}
	if s.Interpolate.TimeStep != 0.5 {
		t.Fatalf("time step = %v, want derived 0.5", s.Interpolate.TimeStep)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FRAMELIFT_FRAMES_PER_BATCH", "250")
	t.Setenv("FRAMELIFT_END_BATCH", "12")
	t.Setenv("FRAMELIFT_FRAME_RATE", "23.976")
	t.Setenv("FRAMELIFT_LOG_LEVEL", "DEBUG")

	s, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.FramesPerBatch != 250 {
		t.Fatalf("frames per batch = %d, want 250", s.FramesPerBatch)
	}
	if s.EndBatch != 12 {
		t.Fatalf("end batch = %d, want 12", s.EndBatch)
	}
	if s.FrameRate != 23.976 {
		t.Fatalf("frame rate = %v, want 23.976", s.FrameRate)
	}
	if s.LogLevel != "debug" {
		t.Fatalf("log level = %q, want debug", s.LogLevel)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
