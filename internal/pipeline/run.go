// Package pipeline orchestrates a full enhancement run: frame and audio
// extraction, the enabled enhancement stages in waves, segment rendering,
// and the final ordered merge.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"framelift/internal/aitool"
	"framelift/internal/batchdir"
	"framelift/internal/config"
	"framelift/internal/enhance"
	"framelift/internal/ffmpegcli"
	"framelift/internal/hostplan"
	"framelift/internal/mergetree"
	"framelift/internal/model"
	"framelift/internal/segment"
	"framelift/internal/workstore"
)

type Options struct {
	Settings config.Settings
	Plan     hostplan.Plan
	Log      zerolog.Logger

	// OnSnapshot forwards stage progress, e.g. to the dashboard.
	OnSnapshot func(enhance.Snapshot)

	// ReuseFrames skips extraction and runs against input batches already
	// on disk, the restart path after a failed run.
	ReuseFrames bool
}

type Result struct {
	RunID      string
	OutputPath string
	Batches    batchdir.Range
	FrameRate  float64
	Segments   int
	HasAudio   bool
	Elapsed    time.Duration
}

// stageSpec is one enabled enhancement stage wired into the tier chain.
type stageSpec struct {
	kind       aitool.Kind
	in         batchdir.Stage
	out        batchdir.Stage
	settings   aitool.Settings
	multiplier int
}

// Run executes the whole pipeline. The work directory is locked for the
// duration; a fatal stage error aborts the run after in-flight jobs settle,
// leaving partial output and the manifest on disk for inspection.
func Run(ctx context.Context, opts Options) (Result, error) {
	s := opts.Settings
	started := time.Now()

	if strings.TrimSpace(s.WorkDir) == "" {
		return Result{}, fmt.Errorf("work directory is required")
	}
	if strings.TrimSpace(s.OutputPath) == "" {
		return Result{}, fmt.Errorf("output path is required")
	}
	if !opts.ReuseFrames && strings.TrimSpace(s.InputPath) == "" {
		return Result{}, fmt.Errorf("input video is required")
	}
	stages, err := enabledStages(s)
	if err != nil {
		return Result{}, err
	}
	if err := ffmpegcli.CheckDependencies(); err != nil {
		return Result{}, err
	}
	for _, st := range stages {
		if err := aitool.CheckTool(st.settings.ToolPath); err != nil {
			return Result{}, err
		}
	}

	if err := workstore.Mkdir(s.WorkDir); err != nil {
		return Result{}, err
	}
	lock, err := workstore.AcquireWorkLock(s.WorkDir)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		_ = lock.Release()
	}()

	reg := batchdir.New(filepath.Join(s.WorkDir, "frames"), s.ImageFormat)
	log := opts.Log

	fps := s.FrameRate
	if fps <= 0 {
		if strings.TrimSpace(s.InputPath) == "" {
			return Result{}, fmt.Errorf("frame rate override is required when reusing frames without an input video")
		}
		fps, err = ffmpegcli.FrameRate(ctx, s.InputPath)
		if err != nil {
			return Result{}, err
		}
	}

	audioPath := filepath.Join(s.WorkDir, "audio.m4a")
	hasAudio := false
	if opts.ReuseFrames {
		if _, err := os.Stat(audioPath); err == nil {
			hasAudio = true
		}
	} else {
		if hasAudio, err = extractSources(ctx, s, reg, audioPath, log); err != nil {
			return Result{}, err
		}
	}

	rng, err := resolveRange(s, reg)
	if err != nil {
		return Result{}, err
	}

	processes := s.ProcessCount
	if processes <= 0 {
		processes = opts.Plan.ProcessCount
	}
	if processes < 1 {
		processes = 1
	}

	outputMultiplier := 1
	for _, st := range stages {
		outputMultiplier *= st.multiplier
	}
	finalStage := stages[len(stages)-1].out

	manifestPath := filepath.Join(s.WorkDir, "manifest.json")
	mf := model.RunManifest{
		SchemaVersion:  1,
		RunID:          uuid.NewString(),
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		InputVideo:     s.InputPath,
		OutputVideo:    s.OutputPath,
		FramesPerBatch: s.FramesPerBatch,
		StartBatch:     rng.Start,
		EndBatch:       rng.End,
	}
	checkpoint := func() {
		mf.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		mf.RecomputeCounts()
		if err := workstore.WriteJSON(manifestPath, mf); err != nil {
			log.Warn().Err(err).Msg("manifest checkpoint failed")
		}
	}
	checkpoint()

	log.Info().
		Str("run_id", mf.RunID).
		Str("batches", rng.String()).
		Float64("fps", fps).
		Int("processes", processes).
		Int("stages", len(stages)).
		Msg("run started")

	segDir := filepath.Join(s.WorkDir, "segments")
	// Stale segments from an aborted run would otherwise end up in the merge.
	if err := workstore.RemoveContents(segDir); err != nil {
		return Result{}, err
	}
	builder := segment.NewBuilder(reg, finalStage, segDir, fps*float64(outputMultiplier),
		segment.RendererFunc(ffmpegcli.RenderFrames), log)
	scheduler := mergetree.NewScheduler(segDir, mergetree.MergerFunc(ffmpegcli.Concat), log)

	waves := splitWaves(rng, processes)
	segs := make([]segment.Segment, len(waves))
	var segGroup errgroup.Group

	for wi, wave := range waves {
		for _, st := range stages {
			res, runErr := enhance.Run(ctx, enhance.Options{
				Kind:             st.kind,
				Registry:         reg,
				InputStage:       st.in,
				OutputStage:      st.out,
				Range:            wave,
				ProcessCount:     processes,
				ThreadTriple:     opts.Plan.ThreadTriple,
				Tool:             st.settings,
				OutputFormat:     s.ImageFormat,
				MaxRetries:       s.MaxRetries,
				PollInterval:     time.Duration(s.PollSeconds) * time.Second,
				OutputMultiplier: st.multiplier,
				Log:              log,
				OnSnapshot:       opts.OnSnapshot,
			})
			mf.Jobs = append(mf.Jobs, res.Jobs...)
			checkpoint()
			if runErr != nil {
				_ = segGroup.Wait()
				return Result{}, fmt.Errorf("stage %s batches %s: %w", st.kind, wave, runErr)
			}

			// The input tier for this wave is fully consumed now.
			if !s.KeepFrames {
				if err := reg.Delete(st.in, wave, batchdir.DeleteDirsOnly); err != nil {
					log.Warn().Err(err).Str("stage", string(st.in)).Msg("consumed batch cleanup failed")
				}
			}
		}

		wi, wave := wi, wave
		segGroup.Go(func() error {
			seg, err := builder.Build(ctx, wave)
			if err != nil {
				return err
			}
			segs[wi] = seg
			if !s.KeepFrames {
				if err := reg.Delete(finalStage, wave, batchdir.DeleteDirsOnly); err != nil {
					log.Warn().Err(err).Msg("rendered batch cleanup failed")
				}
			}
			return nil
		})
	}
	if err := segGroup.Wait(); err != nil {
		checkpoint()
		return Result{}, err
	}

	sort.Slice(segs, func(i, j int) bool { return segs[i].OrderKey < segs[j].OrderKey })
	for _, seg := range segs {
		if err := scheduler.Enqueue(seg.OrderKey, seg.Range.Start, seg.Range.End, seg.Path); err != nil {
			return Result{}, err
		}
	}

	mergedPath := s.OutputPath
	if hasAudio {
		mergedPath = filepath.Join(s.WorkDir, "video_noaudio.mp4")
	}
	if err := scheduler.DrainToSingle(ctx, mergedPath); err != nil {
		return Result{}, err
	}
	if hasAudio {
		if err := ffmpegcli.MuxAudio(ctx, mergedPath, audioPath, s.OutputPath); err != nil {
			return Result{}, err
		}
		_ = os.Remove(mergedPath)
		_ = os.Remove(audioPath)
	}
	checkpoint()

	res := Result{
		RunID:      mf.RunID,
		OutputPath: s.OutputPath,
		Batches:    rng,
		FrameRate:  fps,
		Segments:   len(segs),
		HasAudio:   hasAudio,
		Elapsed:    time.Since(started),
	}
	log.Info().
		Str("run_id", res.RunID).
		Str("output", res.OutputPath).
		Int("segments", res.Segments).
		Dur("elapsed", res.Elapsed).
		Msg("run finished")
	return res, nil
}

// enabledStages chains the enabled stages through the directory tiers:
// each stage reads the previous stage's output tier.
func enabledStages(s config.Settings) ([]stageSpec, error) {
	var stages []stageSpec
	cur := batchdir.StageInput

	if s.Denoise.Enabled {
		stages = append(stages, stageSpec{
			kind: aitool.Denoise,
			in:   cur,
			out:  batchdir.StageDenoise,
			settings: aitool.Settings{
				ToolPath:     s.Denoise.ToolPath,
				ModelDir:     s.Denoise.ModelDir,
				DenoiseLevel: s.Denoise.DenoiseLevel,
				Scale:        s.Denoise.Scale,
			},
			multiplier: 1,
		})
		cur = batchdir.StageDenoise
	}
	if s.Upscale.Enabled {
		stages = append(stages, stageSpec{
			kind: aitool.Upscale,
			in:   cur,
			out:  batchdir.StageUpscale,
			settings: aitool.Settings{
				ToolPath:  s.Upscale.ToolPath,
				ModelDir:  s.Upscale.ModelDir,
				ModelName: s.Upscale.ModelName,
				Scale:     s.Upscale.Scale,
			},
			multiplier: 1,
		})
		cur = batchdir.StageUpscale
	}
	if s.Interpolate.Enabled {
		stages = append(stages, stageSpec{
			kind: aitool.Interpolate,
			in:   cur,
			out:  batchdir.StageInterpolate,
			settings: aitool.Settings{
				ToolPath:        s.Interpolate.ToolPath,
				ModelDir:        s.Interpolate.ModelDir,
				Multiplier:      s.Interpolate.Multiplier,
				TimeStep:        s.Interpolate.TimeStep,
				TargetFrames:    s.Interpolate.Multiplier * s.FramesPerBatch,
				UHDMode:         s.Interpolate.UHDMode,
				SpatialTTAMode:  s.Interpolate.SpatialTTAMode,
				TemporalTTAMode: s.Interpolate.TemporalTTAMode,
			},
			multiplier: s.Interpolate.Multiplier,
		})
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("no enhancement stages enabled")
	}
	return stages, nil
}

// extractSources pulls the audio track and the frames concurrently. Frames
// land partitioned into input batches; a silent input is not an error.
func extractSources(ctx context.Context, s config.Settings, reg *batchdir.Registry, audioPath string, log zerolog.Logger) (bool, error) {
	// Leftover tiers from an earlier run would skew batch numbering.
	for _, stage := range []batchdir.Stage{batchdir.StageInput, batchdir.StageDenoise, batchdir.StageUpscale, batchdir.StageInterpolate} {
		if err := reg.Clean(stage); err != nil {
			return false, err
		}
	}

	hasAudio := true
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := ffmpegcli.ExtractAudio(gctx, s.InputPath, audioPath)
		if errors.Is(err, ffmpegcli.ErrNoAudio) {
			log.Info().Msg("input has no audio stream")
			hasAudio = false
			return nil
		}
		return err
	})
	g.Go(func() error {
		rawDir := filepath.Join(s.WorkDir, "raw_frames")
		if err := ffmpegcli.ExtractFrames(gctx, s.InputPath, rawDir, s.ImageFormat); err != nil {
			return err
		}
		if err := partitionFrames(rawDir, reg, s.FramesPerBatch); err != nil {
			return err
		}
		return os.Remove(rawDir)
	})
	if err := g.Wait(); err != nil {
		return false, err
	}
	return hasAudio, nil
}

// partitionFrames moves extracted frames into sequential input batches of
// batchSize frames each; the last batch holds the remainder.
func partitionFrames(rawDir string, reg *batchdir.Registry, batchSize int) error {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return fmt.Errorf("read extracted frames: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no frames extracted into %s", rawDir)
	}
	sort.Strings(names)

	var batchPath string
	for i, name := range names {
		if i%batchSize == 0 {
			_, dir, err := reg.CreateBatch(batchdir.StageInput)
			if err != nil {
				return err
			}
			batchPath = dir
		}
		if err := os.Rename(filepath.Join(rawDir, name), filepath.Join(batchPath, name)); err != nil {
			return fmt.Errorf("move frame %s: %w", name, err)
		}
	}
	return nil
}

// resolveRange applies the configured batch bounds; end=0 autodetects from
// the input batch directories on disk.
func resolveRange(s config.Settings, reg *batchdir.Registry) (batchdir.Range, error) {
	end := s.EndBatch
	if end == 0 {
		detected, err := reg.AutodetectEnd(batchdir.StageInput)
		if err != nil {
			return batchdir.Range{}, err
		}
		if detected == 0 {
			return batchdir.Range{}, fmt.Errorf("no input batches found under %s", reg.StageDir(batchdir.StageInput))
		}
		end = detected
	}
	rng := batchdir.Range{Start: s.StartBatch, End: end}
	if !rng.Valid() {
		return batchdir.Range{}, fmt.Errorf("invalid batch range %s", rng)
	}
	return rng, nil
}

// splitWaves slices the range into dispatch waves of at most `size` batches.
func splitWaves(rng batchdir.Range, size int) []batchdir.Range {
	if size < 1 {
		size = 1
	}
	var waves []batchdir.Range
	for start := rng.Start; start <= rng.End; start += size {
		end := start + size - 1
		if end > rng.End {
			end = rng.End
		}
		waves = append(waves, batchdir.Range{Start: start, End: end})
	}
	return waves
}
