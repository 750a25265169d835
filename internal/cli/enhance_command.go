package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"framelift/internal/config"
	"framelift/internal/enhance"
	"framelift/internal/hostplan"
	"framelift/internal/logging"
	"framelift/internal/pipeline"
)

func runEnhance(args []string) error {
	fs := flag.NewFlagSet("enhance", flag.ContinueOnError)
	settingsPath := fs.String("settings", "settings.json", "settings file path")
	input := fs.String("input", "", "input video path")
	output := fs.String("output", "", "output video path")
	workDir := fs.String("work-dir", "", "working directory for frames, segments, and the manifest")
	start := fs.Int("start", 0, "first batch id (default from settings)")
	end := fs.Int("end", -1, "last batch id, 0 = autodetect from existing directories")
	framesPerBatch := fs.Int("frames-per-batch", 0, "frames per batch (default from settings)")
	fps := fs.Float64("fps", 0, "frame rate override, 0 = probe the input")
	processes := fs.Int("processes", 0, "tool process count override, 0 = derive from host probe")
	logLevel := fs.String("log-level", "", "log level: debug|info|warn|error")
	progress := fs.Bool("progress", false, "show the live progress dashboard")
	reuseFrames := fs.Bool("reuse-frames", false, "skip extraction, run against existing input batches")
	keepFrames := fs.Bool("keep-frames", false, "keep consumed frame directories instead of deleting them")
	jsonOut := fs.Bool("json", false, "print JSON output")

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := config.Load(*settingsPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*input) != "" {
		settings.InputPath = *input
	}
	if strings.TrimSpace(*output) != "" {
		settings.OutputPath = *output
	}
	if strings.TrimSpace(*workDir) != "" {
		settings.WorkDir = *workDir
	}
	if *start > 0 {
		settings.StartBatch = *start
	}
	if *end >= 0 {
		settings.EndBatch = *end
	}
	if *framesPerBatch > 0 {
		settings.FramesPerBatch = *framesPerBatch
	}
	if *fps > 0 {
		settings.FrameRate = *fps
	}
	if *processes > 0 {
		settings.ProcessCount = *processes
	}
	if *keepFrames {
		settings.KeepFrames = true
	}
	settings.LogLevel = firstNonEmpty(strings.TrimSpace(*logLevel), settings.LogLevel)

	log := logging.New(settings.LogLevel, os.Stderr)

	profile, err := hostplan.Probe(log)
	if err != nil {
		return err
	}
	plan := hostplan.Compute(profile)
	log.Info().
		Int("cpu_threads", profile.CPUThreads).
		Float64("ram_gb", profile.RAMGB).
		Float64("disk_mb_s", profile.DiskMBps).
		Int("gpu_mem_mb", profile.GPUMemMB).
		Int("processes", plan.ProcessCount).
		Str("threads", plan.ThreadTriple).
		Msg("host probed")

	opts := pipeline.Options{
		Settings:    settings,
		Plan:        plan,
		Log:         log,
		ReuseFrames: *reuseFrames,
	}
	var dash *enhance.Dashboard
	if *progress {
		dash = enhance.NewDashboard()
		dash.Start()
		opts.OnSnapshot = dash.Send
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.Run(ctx, opts)
	if dash != nil {
		dash.Stop()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("run interrupted")
		}
		return err
	}

	if *jsonOut {
		return printJSON(result)
	}
	fmt.Printf("run_id: %s\n", result.RunID)
	fmt.Printf("output: %s\n", result.OutputPath)
	fmt.Printf("batches: %s\n", result.Batches)
	fmt.Printf("segments: %d\n", result.Segments)
	fmt.Printf("frame_rate: %g\n", result.FrameRate)
	fmt.Printf("has_audio: %t\n", result.HasAudio)
	fmt.Printf("elapsed: %s\n", result.Elapsed.Round(time.Second))
	return nil
}
