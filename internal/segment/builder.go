// Package segment renders finished batch ranges into short video segments.
package segment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"framelift/internal/batchdir"
)

// Renderer encodes a concat list of frame files into a video. Satisfied by
// ffmpegcli.RenderFrames in production.
type Renderer interface {
	RenderFrames(ctx context.Context, listPath, outPath string, fps float64) error
}

// RendererFunc adapts a plain function to the Renderer interface.
type RendererFunc func(ctx context.Context, listPath, outPath string, fps float64) error

func (f RendererFunc) RenderFrames(ctx context.Context, listPath, outPath string, fps float64) error {
	return f(ctx, listPath, outPath, fps)
}

// Segment is one rendered slice of the final video. OrderKey is the range's
// starting batch id; the merge scheduler relies on segments being enqueued
// in ascending OrderKey order.
type Segment struct {
	OrderKey   int            `json:"order_key"`
	Range      batchdir.Range `json:"range"`
	Path       string         `json:"path"`
	FrameCount int            `json:"frame_count"`
}

type Builder struct {
	reg      *batchdir.Registry
	stage    batchdir.Stage
	outDir   string
	fps      float64
	renderer Renderer
	log      zerolog.Logger
}

func NewBuilder(reg *batchdir.Registry, stage batchdir.Stage, outDir string, fps float64, renderer Renderer, log zerolog.Logger) *Builder {
	return &Builder{reg: reg, stage: stage, outDir: outDir, fps: fps, renderer: renderer, log: log}
}

// Build renders all frames of the range, in numeric frame order, into
// short_<start>-<end>.mp4. A range that yields no leading frames is a fatal
// read error; a gap after the first frames is logged and skipped so one
// corrupt frame does not abort the whole segment.
func (b *Builder) Build(ctx context.Context, rng batchdir.Range) (Segment, error) {
	if !rng.Valid() {
		return Segment{}, fmt.Errorf("invalid batch range %s", rng)
	}
	frames, err := b.collectFrames(rng)
	if err != nil {
		return Segment{}, err
	}
	if len(frames) == 0 {
		return Segment{}, fmt.Errorf("no frames found for batches %s in %s", rng, b.reg.StageDir(b.stage))
	}

	if err := os.MkdirAll(b.outDir, 0o755); err != nil {
		return Segment{}, fmt.Errorf("create segment directory %s: %w", b.outDir, err)
	}
	outPath := filepath.Join(b.outDir, fmt.Sprintf("short_%d-%d.mp4", rng.Start, rng.End))
	listPath := outPath + ".list"
	if err := writeConcatList(listPath, frames); err != nil {
		return Segment{}, err
	}
	defer os.Remove(listPath)

	if err := b.renderer.RenderFrames(ctx, listPath, outPath, b.fps); err != nil {
		return Segment{}, fmt.Errorf("render segment %s: %w", rng, err)
	}

	b.log.Info().
		Str("batches", rng.String()).
		Int("frames", len(frames)).
		Str("segment", filepath.Base(outPath)).
		Msg("segment rendered")

	return Segment{
		OrderKey:   rng.Start,
		Range:      rng,
		Path:       outPath,
		FrameCount: len(frames),
	}, nil
}

// collectFrames gathers frame paths across the range in numeric order. The
// first batch must exist and contain frames; later missing batches degrade
// to a warning.
func (b *Builder) collectFrames(rng batchdir.Range) ([]string, error) {
	var frames []string
	for id := rng.Start; id <= rng.End; id++ {
		dir := b.reg.BatchDir(b.stage, id)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read batch directory %s: %w", dir, err)
			}
			if len(frames) == 0 {
				return nil, fmt.Errorf("leading batch %d missing for segment %s: %w", id, rng, err)
			}
			b.log.Warn().Int("batch", id).Str("batches", rng.String()).Msg("batch missing mid-segment, skipping")
			continue
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if strings.HasSuffix(strings.ToLower(e.Name()), "."+b.reg.Ext()) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			frames = append(frames, filepath.Join(dir, name))
		}
	}
	return frames, nil
}

func writeConcatList(listPath string, frames []string) error {
	var sb strings.Builder
	for _, frame := range frames {
		fmt.Fprintf(&sb, "file '%s'\n", frame)
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list %s: %w", listPath, err)
	}
	return nil
}
