package cli

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"framelift/internal/batchdir"
)

func runBatches(args []string) error {
	fs := flag.NewFlagSet("batches", flag.ContinueOnError)
	workDir := fs.String("work-dir", "", "working directory holding the frames tree")
	stage := fs.String("stage", "input", "stage tier: input|denoised|upscaled|interpolated")
	format := fs.String("format", "jpg", "frame image extension")
	start := fs.Int("start", 1, "first batch id")
	end := fs.Int("end", 0, "last batch id, 0 = autodetect")
	clean := fs.Bool("clean", false, "delete the batch range instead of counting it")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*workDir) == "" {
		fs.Usage()
		return errors.New("--work-dir is required")
	}
	st, err := parseStage(*stage)
	if err != nil {
		return err
	}

	reg := batchdir.New(filepath.Join(*workDir, "frames"), *format)
	last := *end
	if last == 0 {
		last, err = reg.AutodetectEnd(st)
		if err != nil {
			return err
		}
		if last == 0 {
			return fmt.Errorf("no batches found under %s", reg.StageDir(st))
		}
	}
	rng := batchdir.Range{Start: *start, End: last}

	if *clean {
		if err := reg.Delete(st, rng, batchdir.DeleteAll); err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(map[string]any{"stage": st, "batches": rng.String(), "deleted": true})
		}
		fmt.Printf("deleted batches %s under %s\n", rng, reg.StageDir(st))
		return nil
	}

	count, err := reg.CountFrames(st, rng)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{"stage": st, "batches": rng.String(), "frames": count})
	}
	fmt.Printf("stage: %s\n", st)
	fmt.Printf("batches: %s\n", rng)
	fmt.Printf("frames: %d\n", count)
	return nil
}

func parseStage(raw string) (batchdir.Stage, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "input":
		return batchdir.StageInput, nil
	case "denoised", "denoise":
		return batchdir.StageDenoise, nil
	case "upscaled", "upscale":
		return batchdir.StageUpscale, nil
	case "interpolated", "interpolate":
		return batchdir.StageInterpolate, nil
	default:
		return "", fmt.Errorf("unknown stage %q (expected input, denoised, upscaled, or interpolated)", raw)
	}
}
