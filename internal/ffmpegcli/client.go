// Package ffmpegcli wraps the ffmpeg and ffprobe binaries for frame
// extraction, segment rendering, merging, and audio handling.
package ffmpegcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoAudio is returned by ExtractAudio when the input has no audio stream.
// Silent inputs are valid; the caller skips the mux step.
var ErrNoAudio = errors.New("input video has no audio stream")

type DependencyReport struct {
	FFmpegFound  bool   `json:"ffmpeg_found"`
	FFmpegPath   string `json:"ffmpeg_path,omitempty"`
	FFprobeFound bool   `json:"ffprobe_found"`
	FFprobePath  string `json:"ffprobe_path,omitempty"`
}

func DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	if path, err := exec.LookPath("ffprobe"); err == nil {
		report.FFprobeFound = true
		report.FFprobePath = path
	}
	return report
}

func CheckDependencies() error {
	report := DependencyStatus()
	if !report.FFmpegFound {
		return fmt.Errorf("missing dependency: ffmpeg is not installed or not on PATH")
	}
	if !report.FFprobeFound {
		return fmt.Errorf("missing dependency: ffprobe is not installed or not on PATH")
	}
	return nil
}

// FrameRate probes the average frame rate of the input's first video stream.
func FrameRate(ctx context.Context, videoPath string) (float64, error) {
	out, err := runOutput(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	if err != nil {
		return 0, fmt.Errorf("probe frame rate of %s: %w", videoPath, err)
	}
	return parseFrameRate(strings.TrimSpace(out))
}

// parseFrameRate handles ffprobe's rational "num/den" form as well as a
// plain decimal.
func parseFrameRate(raw string) (float64, error) {
	if raw == "" || raw == "0/0" {
		return 0, fmt.Errorf("no frame rate reported")
	}
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("parse frame rate %q: %w", raw, err)
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, fmt.Errorf("parse frame rate %q: %w", raw, err)
		}
		if d == 0 {
			return 0, fmt.Errorf("parse frame rate %q: zero denominator", raw)
		}
		return n / d, nil
	}
	fps, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", raw, err)
	}
	return fps, nil
}

// ExtractFrames decodes the input video into numbered image files in
// outDir, named frame_<8-digit>.<ext> starting at 1.
func ExtractFrames(ctx context.Context, videoPath, outDir, ext string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create frame directory %s: %w", outDir, err)
	}
	pattern := filepath.Join(outDir, "frame_%08d."+strings.TrimPrefix(ext, "."))
	if err := run(ctx, "ffmpeg",
		"-y", "-i", videoPath,
		"-qscale:v", "2",
		"-loglevel", "error",
		pattern,
	); err != nil {
		return fmt.Errorf("extract frames from %s: %w", videoPath, err)
	}
	return nil
}

// ExtractAudio pulls the audio track into a standalone AAC file. Inputs
// without audio return ErrNoAudio.
func ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	probe, err := runOutput(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		videoPath,
	)
	if err != nil {
		return fmt.Errorf("probe audio streams of %s: %w", videoPath, err)
	}
	if strings.TrimSpace(probe) == "" {
		return ErrNoAudio
	}
	if err := run(ctx, "ffmpeg",
		"-y", "-i", videoPath,
		"-vn", "-acodec", "aac",
		"-ar", "44100", "-ac", "2",
		"-b:a", "192k",
		"-loglevel", "error",
		audioPath,
	); err != nil {
		return fmt.Errorf("extract audio from %s: %w", videoPath, err)
	}
	return nil
}

// RenderFrames encodes the frame files listed in a concat list file into a
// video at the given frame rate.
func RenderFrames(ctx context.Context, listPath, outPath string, fps float64) error {
	if err := run(ctx, "ffmpeg",
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-crf", "18",
		"-r", strconv.FormatFloat(fps, 'g', -1, 64),
		"-loglevel", "error",
		outPath,
	); err != nil {
		return fmt.Errorf("render %s: %w", outPath, err)
	}
	return nil
}

// Concat joins two already-encoded segments without re-encoding.
func Concat(ctx context.Context, firstPath, secondPath, outPath string) error {
	listPath := outPath + ".list"
	list := fmt.Sprintf("file '%s'\nfile '%s'\n", firstPath, secondPath)
	if err := os.WriteFile(listPath, []byte(list), 0o644); err != nil {
		return fmt.Errorf("write concat list %s: %w", listPath, err)
	}
	defer os.Remove(listPath)

	if err := run(ctx, "ffmpeg",
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-loglevel", "error",
		outPath,
	); err != nil {
		return fmt.Errorf("concat into %s: %w", outPath, err)
	}
	return nil
}

// MuxAudio copies the video stream and the extracted audio track into the
// final container without re-encoding either.
func MuxAudio(ctx context.Context, videoPath, audioPath, outPath string) error {
	if err := run(ctx, "ffmpeg",
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy", "-c:a", "copy",
		"-map", "0:v:0", "-map", "1:a:0",
		"-shortest",
		"-loglevel", "error",
		outPath,
	); err != nil {
		return fmt.Errorf("mux audio into %s: %w", outPath, err)
	}
	return nil
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

func runOutput(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
