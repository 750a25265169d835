package aitool

import (
	"reflect"
	"testing"
)

func TestBuildArgsDenoise(t *testing.T) {
	got := BuildArgs(Invocation{
		Kind:         Denoise,
		InputDir:     "/work/frames/input/batch_3",
		OutputDir:    "/work/frames/denoised/batch_3",
		OutputFormat: "jpg",
		ThreadTriple: "1:4:2",
		Settings: Settings{
			ModelDir:     "/models/waifu2x",
			DenoiseLevel: 2,
			Scale:        1,
		},
	})
	want := []string{
		"-i", "/work/frames/input/batch_3",
		"-o", "/work/frames/denoised/batch_3",
		"-m", "/models/waifu2x",
		"-n", "2",
		"-s", "1",
		"-f", "jpg",
		"-j", "1:4:2",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
}

func TestBuildArgsUpscale(t *testing.T) {
	got := BuildArgs(Invocation{
		Kind:         Upscale,
		InputDir:     "in",
		OutputDir:    "out",
		OutputFormat: "png",
		ThreadTriple: "1:2:2",
		Settings: Settings{
			ModelDir:  "/models/realesrgan",
			ModelName: "realesrgan-x4plus",
			Scale:     4,
		},
	})
	want := []string{
		"-i", "in", "-o", "out",
		"-n", "realesrgan-x4plus",
		"-s", "4",
		"-m", "/models/realesrgan",
		"-f", "png",
		"-j", "1:2:2",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
}

func TestBuildArgsInterpolateDoubling(t *testing.T) {
	got := BuildArgs(Invocation{
		Kind:         Interpolate,
		InputDir:     "in",
		OutputDir:    "out",
		OutputFormat: "jpg",
		ThreadTriple: "1:2:2",
		Settings: Settings{
			ModelDir:   "/models/rife",
			Multiplier: 2,
		},
	})
	want := []string{
		"-i", "in", "-o", "out",
		"-m", "/models/rife",
		"-f", "jpg",
		"-j", "1:2:2",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
}

func TestBuildArgsInterpolateHighMultiplier(t *testing.T) {
	got := BuildArgs(Invocation{
		Kind:         Interpolate,
		InputDir:     "in",
		OutputDir:    "out",
		OutputFormat: "jpg",
		ThreadTriple: "1:2:2",
		Settings: Settings{
			ModelDir:        "/models/rife",
			Multiplier:      4,
			TargetFrames:    4800,
			TimeStep:        0.25,
			UHDMode:         true,
			TemporalTTAMode: true,
		},
	})
	want := []string{
		"-i", "in", "-o", "out",
		"-m", "/models/rife",
		"-f", "jpg",
		"-j", "1:2:2",
		"-n", "4800",
		"-s", "0.25",
		"-u", "-z",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
}

func TestCheckTool(t *testing.T) {
	if err := CheckTool(""); err == nil {
		t.Fatal("expected error for empty tool path")
	}
	if err := CheckTool("/nonexistent/waifu2x-ncnn-vulkan"); err == nil {
		t.Fatal("expected error for missing tool")
	}
}
