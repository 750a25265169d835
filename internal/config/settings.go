// Package config loads run settings from a JSON file with environment
// overrides. A missing settings file yields the defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultFramesPerBatch = 1000
	DefaultMaxRetries     = 3
	DefaultImageFormat    = "jpg"
	DefaultPollSeconds    = 5
	DefaultLogLevel       = "info"
)

// StageSettings configures one enhancement stage. Disabled stages are
// skipped entirely; the pipeline chains whichever stages remain enabled.
type StageSettings struct {
	Enabled  bool   `json:"enabled"`
	ToolPath string `json:"tool_path,omitempty"`
	ModelDir string `json:"model_dir,omitempty"`

	// Denoise and upscale.
	ModelName    string `json:"model_name,omitempty"`
	DenoiseLevel int    `json:"denoise_level,omitempty"`
	Scale        int    `json:"scale,omitempty"`

	// Interpolation.
	Multiplier      int     `json:"multiplier,omitempty"`
	TimeStep        float64 `json:"time_step,omitempty"`
	UHDMode         bool    `json:"uhd_mode,omitempty"`
	SpatialTTAMode  bool    `json:"spatial_tta_mode,omitempty"`
	TemporalTTAMode bool    `json:"temporal_tta_mode,omitempty"`
}

type Settings struct {
	WorkDir    string `json:"work_dir,omitempty"`
	InputPath  string `json:"input_path,omitempty"`
	OutputPath string `json:"output_path,omitempty"`

	FramesPerBatch int     `json:"frames_per_batch,omitempty"`
	StartBatch     int     `json:"start_batch,omitempty"`
	EndBatch       int     `json:"end_batch,omitempty"` // 0 = autodetect from disk
	FrameRate      float64 `json:"frame_rate,omitempty"`
	ImageFormat    string  `json:"image_format,omitempty"`

	MaxRetries   int  `json:"max_retries,omitempty"`
	PollSeconds  int  `json:"poll_seconds,omitempty"`
	ProcessCount int  `json:"process_count,omitempty"` // 0 = derive from host probe
	KeepFrames   bool `json:"keep_frames,omitempty"`

	LogLevel string `json:"log_level,omitempty"`

	Denoise     StageSettings `json:"denoise"`
	Upscale     StageSettings `json:"upscale"`
	Interpolate StageSettings `json:"interpolate"`
}

func Defaults() Settings {
	return Settings{
		FramesPerBatch: DefaultFramesPerBatch,
		StartBatch:     1,
		MaxRetries:     DefaultMaxRetries,
		PollSeconds:    DefaultPollSeconds,
		ImageFormat:    DefaultImageFormat,
		LogLevel:       DefaultLogLevel,
		Denoise:        StageSettings{DenoiseLevel: 1, Scale: 1, ModelDir: "models-cunet"},
		Upscale:        StageSettings{Enabled: true, ModelName: "realesrgan-x4plus", Scale: 4},
		Interpolate:    StageSettings{Multiplier: 2, TimeStep: 0.5},
	}
}

// Load reads the settings file, falls back to defaults if it does not
// exist, then applies FRAMELIFT_* environment overrides and normalizes.
func Load(path string) (Settings, error) {
	settings := Defaults()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("parse settings file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("read settings file %s: %w", path, err)
	}
	applyEnvOverrides(&settings)
	return normalize(settings), nil
}

func normalize(raw Settings) Settings {
	norm := raw
	if norm.FramesPerBatch <= 0 {
		norm.FramesPerBatch = DefaultFramesPerBatch
	}
	if norm.StartBatch <= 0 {
		norm.StartBatch = 1
	}
	if norm.EndBatch < 0 {
		norm.EndBatch = 0
	}
	if norm.MaxRetries <= 0 {
		norm.MaxRetries = DefaultMaxRetries
	}
	if norm.PollSeconds <= 0 {
		norm.PollSeconds = DefaultPollSeconds
	}
	norm.ImageFormat = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(norm.ImageFormat)), ".")
	if norm.ImageFormat == "" {
		norm.ImageFormat = DefaultImageFormat
	}
	norm.LogLevel = strings.ToLower(strings.TrimSpace(norm.LogLevel))
	if norm.LogLevel == "" {
		norm.LogLevel = DefaultLogLevel
	}
	if norm.Interpolate.Multiplier < 2 {
		norm.Interpolate.Multiplier = 2
	}
	if norm.Interpolate.TimeStep <= 0 || norm.Interpolate.TimeStep >= 1 {
		norm.Interpolate.TimeStep = 1 / float64(norm.Interpolate.Multiplier)
	}
	return norm
}

// applyEnvOverrides maps FRAMELIFT_* variables onto the top-level knobs most
// often changed per run. Stage details stay file-only.
func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("FRAMELIFT_WORK_DIR"); v != "" {
		s.WorkDir = v
	}
	if v := os.Getenv("FRAMELIFT_INPUT"); v != "" {
		s.InputPath = v
	}
	if v := os.Getenv("FRAMELIFT_OUTPUT"); v != "" {
		s.OutputPath = v
	}
	if v := os.Getenv("FRAMELIFT_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if n, ok := envInt("FRAMELIFT_FRAMES_PER_BATCH"); ok {
		s.FramesPerBatch = n
	}
	if n, ok := envInt("FRAMELIFT_START_BATCH"); ok {
		s.StartBatch = n
	}
	if n, ok := envInt("FRAMELIFT_END_BATCH"); ok {
		s.EndBatch = n
	}
	if n, ok := envInt("FRAMELIFT_MAX_RETRIES"); ok {
		s.MaxRetries = n
	}
	if n, ok := envInt("FRAMELIFT_PROCESSES"); ok {
		s.ProcessCount = n
	}
	if v := os.Getenv("FRAMELIFT_FRAME_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			s.FrameRate = f
		}
	}
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
