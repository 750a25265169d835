// Package enhance runs one enhancement stage over a batch range: a bounded
// pool of external tool processes with per-job retry, plus a progress
// monitor polling output frame counts.
package enhance

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"framelift/internal/aitool"
	"framelift/internal/batchdir"
	"framelift/internal/model"
)

const (
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 2 * time.Second
	DefaultPollInterval = 5 * time.Second
)

type Options struct {
	Kind        aitool.Kind
	Registry    *batchdir.Registry
	InputStage  batchdir.Stage
	OutputStage batchdir.Stage
	Range       batchdir.Range

	ProcessCount int
	ThreadTriple string
	Tool         aitool.Settings
	OutputFormat string

	MaxRetries   int
	RetryDelay   time.Duration
	PollInterval time.Duration

	// OutputMultiplier scales the expected output frame count relative to
	// the input (interpolation produces multiplier x frames; other stages
	// leave it at 1).
	OutputMultiplier int

	Log zerolog.Logger

	// OnSnapshot receives monitor snapshots; OnJobUpdate receives a copy of
	// each job after every status change. Both optional.
	OnSnapshot  func(Snapshot)
	OnJobUpdate func(model.StageJob)
}

type Result struct {
	Jobs          []model.StageJob
	FramesWritten int
	Elapsed       time.Duration
}

func (o *Options) normalize() error {
	if o.Registry == nil {
		return fmt.Errorf("batch registry is required")
	}
	if !o.Range.Valid() {
		return fmt.Errorf("invalid batch range %s", o.Range)
	}
	if o.ProcessCount < 1 {
		o.ProcessCount = 1
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.OutputMultiplier < 1 {
		o.OutputMultiplier = 1
	}
	return nil
}

// Run executes the stage over the range and returns only after every
// dispatched job and the monitor have finished. A job that exhausts its
// retries latches a fatal error; dispatch stops, in-flight jobs settle, and
// the error is returned with partial output left on disk for inspection.
func Run(ctx context.Context, opts Options) (Result, error) {
	if err := opts.normalize(); err != nil {
		return Result{}, err
	}
	if err := aitool.CheckTool(opts.Tool.ToolPath); err != nil {
		return Result{}, err
	}

	inputFrames, err := opts.Registry.CountFrames(opts.InputStage, opts.Range)
	if err != nil {
		return Result{}, err
	}
	totalExpected := inputFrames * opts.OutputMultiplier
	started := time.Now()

	opts.Log.Info().
		Str("stage", string(opts.Kind)).
		Str("batches", opts.Range.String()).
		Int("input_frames", inputFrames).
		Int("processes", opts.ProcessCount).
		Str("threads", opts.ThreadTriple).
		Msg("stage started")

	mon := newMonitor(monitorConfig{
		Stage:    opts.Kind,
		Registry: opts.Registry,
		OutStage: opts.OutputStage,
		Range:    opts.Range,
		Total:    totalExpected,
		Interval: opts.PollInterval,
		Log:      opts.Log,
		Emit:     opts.OnSnapshot,
	})
	mon.Start()
	defer mon.StopAndJoin()

	notify := func(job model.StageJob) {
		if opts.OnJobUpdate != nil {
			opts.OnJobUpdate(job)
		}
	}

	// Jobs start as pending so batches never dispatched after a fatal error
	// still read as pending in the manifest.
	jobs := make([]model.StageJob, 0, opts.Range.Len())
	for id := opts.Range.Start; id <= opts.Range.End; id++ {
		job := model.StageJob{
			JobID:   uuid.NewString(),
			Stage:   string(opts.Kind),
			BatchID: id,
		}
		if err := model.TransitionJobStatus(&job, model.StatusPending, ""); err != nil {
			return Result{}, err
		}
		notify(job)
		jobs = append(jobs, job)
	}

	jobCh := make(chan int)
	var wg sync.WaitGroup
	var stopAll atomic.Bool
	var stateMu sync.Mutex
	var fatalErr error

	// First fatal error wins; later failures only confirm the stop flag.
	setFatal := func(err error) {
		if err == nil {
			return
		}
		stateMu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		stateMu.Unlock()
		stopAll.Store(true)
	}

	transition := func(i int, to, reason string) error {
		stateMu.Lock()
		defer stateMu.Unlock()
		if err := model.TransitionJobStatus(&jobs[i], to, reason); err != nil {
			return err
		}
		notify(jobs[i])
		return nil
	}

	workerFn := func() {
		defer wg.Done()
		for i := range jobCh {
			if stopAll.Load() {
				continue
			}
			if err := runJob(ctx, &opts, i, jobs, &stateMu, transition); err != nil {
				setFatal(err)
			}
		}
	}

	wg.Add(opts.ProcessCount)
	for w := 0; w < opts.ProcessCount; w++ {
		go workerFn()
	}
	for i := range jobs {
		jobCh <- i
	}
	close(jobCh)
	wg.Wait()

	written, countErr := opts.Registry.CountFrames(opts.OutputStage, opts.Range)
	if countErr != nil {
		opts.Log.Warn().Err(countErr).Msg("final output count failed")
	}
	res := Result{Jobs: jobs, FramesWritten: written, Elapsed: time.Since(started)}

	stateMu.Lock()
	firstErr := fatalErr
	stateMu.Unlock()
	if firstErr != nil {
		return res, firstErr
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	opts.Log.Info().
		Str("stage", string(opts.Kind)).
		Str("batches", opts.Range.String()).
		Int("frames", written).
		Dur("elapsed", res.Elapsed).
		Msg("stage finished")
	return res, nil
}

// runJob drives one batch through the external tool with the retry loop.
// Every attempt runs the tool once; the loop never exceeds MaxRetries
// attempts total.
func runJob(
	ctx context.Context,
	opts *Options,
	i int,
	jobs []model.StageJob,
	stateMu *sync.Mutex,
	transition func(i int, to, reason string) error,
) error {
	batchID := jobs[i].BatchID
	outDir, err := opts.Registry.EnsureBatchDir(opts.OutputStage, batchID)
	if err != nil {
		return err
	}
	inv := aitool.Invocation{
		Kind:         opts.Kind,
		InputDir:     opts.Registry.BatchDir(opts.InputStage, batchID),
		OutputDir:    outDir,
		OutputFormat: opts.OutputFormat,
		ThreadTriple: opts.ThreadTriple,
		Settings:     opts.Tool,
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if err := transition(i, model.StatusRunning, ""); err != nil {
			return err
		}
		stateMu.Lock()
		jobs[i].Attempts = attempt
		jobs[i].LastAttemptAt = time.Now().UTC().Format(time.RFC3339)
		stateMu.Unlock()

		opts.Log.Debug().
			Str("stage", string(opts.Kind)).
			Int("batch", batchID).
			Int("attempt", attempt).
			Int("max", opts.MaxRetries).
			Msg("running tool")

		lastErr = aitool.Run(ctx, inv)
		if lastErr == nil {
			stateMu.Lock()
			jobs[i].CompletedAt = time.Now().UTC().Format(time.RFC3339)
			stateMu.Unlock()
			return transition(i, model.StatusSuccess, "")
		}

		opts.Log.Error().
			Err(lastErr).
			Str("stage", string(opts.Kind)).
			Int("batch", batchID).
			Int("attempt", attempt).
			Msg("tool attempt failed")

		stateMu.Lock()
		jobs[i].LastError = lastErr.Error()
		stateMu.Unlock()
		if err := transition(i, model.StatusFailedRetryable, "nonzero_exit"); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < opts.MaxRetries {
			select {
			case <-time.After(opts.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if err := transition(i, model.StatusFatal, "retries_exhausted"); err != nil {
		return err
	}
	return fmt.Errorf("%s of batch %d failed after %d attempts: %w",
		opts.Kind, batchID, opts.MaxRetries, lastErr)
}
