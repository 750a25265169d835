// Package aitool builds and runs invocations of the external enhancement
// binaries (waifu2x, Real-ESRGAN, RIFE and compatible CLIs). The tools share
// a flag convention: -i/-o directories, -m model path, -f output format, and
// an opaque load:proc:save thread triple under -j.
package aitool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Kind selects which enhancement tool flag set to build.
type Kind string

const (
	Denoise     Kind = "denoise"
	Upscale     Kind = "upscale"
	Interpolate Kind = "interpolate"
)

// Settings are the per-stage tool parameters from configuration. Only the
// fields relevant to the invocation's Kind are read.
type Settings struct {
	ToolPath  string
	ModelDir  string
	ModelName string // upscale only

	DenoiseLevel int // denoise only
	Scale        int // denoise and upscale

	// Interpolation only.
	Multiplier      int
	TimeStep        float64
	TargetFrames    int // multiplier * frames per batch; used when Multiplier > 2
	UHDMode         bool
	SpatialTTAMode  bool
	TemporalTTAMode bool
}

// Invocation is one fully resolved tool call against a single batch.
type Invocation struct {
	Kind         Kind
	InputDir     string
	OutputDir    string
	OutputFormat string
	ThreadTriple string
	Settings     Settings
}

// BuildArgs assembles the argument vector for the invocation's tool. The
// thread triple is passed through verbatim; it belongs to the tool, not us.
func BuildArgs(inv Invocation) []string {
	args := []string{"-i", inv.InputDir, "-o", inv.OutputDir}
	common := []string{"-f", inv.OutputFormat, "-j", inv.ThreadTriple}
	s := inv.Settings

	switch inv.Kind {
	case Denoise:
		args = append(args,
			"-m", s.ModelDir,
			"-n", strconv.Itoa(s.DenoiseLevel),
			"-s", strconv.Itoa(s.Scale),
		)
		args = append(args, common...)
	case Upscale:
		args = append(args,
			"-n", s.ModelName,
			"-s", strconv.Itoa(s.Scale),
			"-m", s.ModelDir,
		)
		args = append(args, common...)
	case Interpolate:
		args = append(args, "-m", s.ModelDir)
		args = append(args, common...)
		// With a 2x multiplier the tool's default midpoint interpolation
		// applies; beyond that it needs the explicit frame target and step.
		if s.Multiplier > 2 {
			args = append(args,
				"-n", strconv.Itoa(s.TargetFrames),
				"-s", strconv.FormatFloat(s.TimeStep, 'g', -1, 64),
			)
		}
		if s.UHDMode {
			args = append(args, "-u")
		}
		if s.SpatialTTAMode {
			args = append(args, "-x")
		}
		if s.TemporalTTAMode {
			args = append(args, "-z")
		}
	}
	return args
}

// CheckTool verifies the tool binary exists. A missing binary is fatal for
// the stage before any job is dispatched.
func CheckTool(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("tool path is empty")
	}
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("enhancement tool not found: %s: %w", path, err)
	}
	return nil
}

// Run executes the invocation and waits for it. A nonzero exit comes back as
// an error carrying the tool's trimmed stderr for diagnostics.
func Run(ctx context.Context, inv Invocation) error {
	cmd := exec.CommandContext(ctx, inv.Settings.ToolPath, BuildArgs(inv)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s tool failed: %w: %s", inv.Kind, err, msg)
		}
		return fmt.Errorf("%s tool failed: %w", inv.Kind, err)
	}
	return nil
}
