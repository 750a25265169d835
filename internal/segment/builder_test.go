package segment

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"framelift/internal/batchdir"
)

type captureRenderer struct {
	listContent string
	outPath     string
	fps         float64
}

func (c *captureRenderer) RenderFrames(_ context.Context, listPath, outPath string, fps float64) error {
	data, err := os.ReadFile(listPath)
	if err != nil {
		return err
	}
	c.listContent = string(data)
	c.outPath = outPath
	c.fps = fps
	return os.WriteFile(outPath, []byte("video"), 0o644)
}

func seedBatch(t *testing.T, reg *batchdir.Registry, id int, frames ...int) {
	t.Helper()
	dir, err := reg.EnsureBatchDir(batchdir.StageUpscale, id)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range frames {
		if err := os.WriteFile(filepath.Join(dir, reg.FrameName(f)), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBuildRendersFramesInNumericOrder(t *testing.T) {
	reg := batchdir.New(t.TempDir(), "jpg")
	// Seed out of creation order; collection must still come out sorted.
	seedBatch(t, reg, 2, 4, 3)
	seedBatch(t, reg, 1, 2, 1)

	rend := &captureRenderer{}
	b := NewBuilder(reg, batchdir.StageUpscale, t.TempDir(), 23.976, rend, zerolog.New(io.Discard))

	seg, err := b.Build(context.Background(), batchdir.Range{Start: 1, End: 2})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if seg.OrderKey != 1 {
		t.Fatalf("order key = %d, want 1", seg.OrderKey)
	}
	if seg.FrameCount != 4 {
		t.Fatalf("frame count = %d, want 4", seg.FrameCount)
	}
	if filepath.Base(seg.Path) != "short_1-2.mp4" {
		t.Fatalf("segment name = %s, want short_1-2.mp4", filepath.Base(seg.Path))
	}
	if rend.fps != 23.976 {
		t.Fatalf("fps = %v, want 23.976", rend.fps)
	}

	var prev string
	for _, line := range strings.Split(strings.TrimSpace(rend.listContent), "\n") {
		name := filepath.Base(strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'"))
		if prev != "" && name <= prev {
			t.Fatalf("frames out of order: %s after %s", name, prev)
		}
		prev = name
	}
}

func TestBuildFailsWhenLeadingBatchMissing(t *testing.T) {
	reg := batchdir.New(t.TempDir(), "jpg")
	seedBatch(t, reg, 2, 1)

	b := NewBuilder(reg, batchdir.StageUpscale, t.TempDir(), 24, &captureRenderer{}, zerolog.New(io.Discard))
	// Batch 1 never existed; the segment cannot establish its first frame.
	_, err := b.Build(context.Background(), batchdir.Range{Start: 1, End: 2})
	if err == nil || !strings.Contains(err.Error(), "leading batch") {
		t.Fatalf("expected leading-batch error, got %v", err)
	}
}

func TestBuildSkipsInteriorGap(t *testing.T) {
	reg := batchdir.New(t.TempDir(), "jpg")
	seedBatch(t, reg, 1, 1)
	// Batch 2 missing entirely.
	seedBatch(t, reg, 3, 3)

	rend := &captureRenderer{}
	b := NewBuilder(reg, batchdir.StageUpscale, t.TempDir(), 24, rend, zerolog.New(io.Discard))

	seg, err := b.Build(context.Background(), batchdir.Range{Start: 1, End: 3})
	if err != nil {
		t.Fatalf("build failed on interior gap: %v", err)
	}
	if seg.FrameCount != 2 {
		t.Fatalf("frame count = %d, want 2", seg.FrameCount)
	}
}

func TestBuildFailsOnEmptyRange(t *testing.T) {
	reg := batchdir.New(t.TempDir(), "jpg")
	b := NewBuilder(reg, batchdir.StageUpscale, t.TempDir(), 24, &captureRenderer{}, zerolog.New(io.Discard))
	if _, err := b.Build(context.Background(), batchdir.Range{Start: 2, End: 1}); err == nil {
		t.Fatal("expected error for invalid range")
	}
}
