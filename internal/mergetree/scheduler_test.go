package mergetree

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// textMerger concatenates file contents so tests can verify merge order
// without a video encoder.
func textMerger() Merger {
	return MergerFunc(func(_ context.Context, first, second, out string) error {
		a, err := os.ReadFile(first)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(second)
		if err != nil {
			return err
		}
		return os.WriteFile(out, append(a, b...), 0o644)
	})
}

func writeSegment(t *testing.T, dir string, start, end int) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("short_%d-%d.mp4", start, end))
	var sb strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&sb, "%d,", i)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func drainCount(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	s := NewScheduler(dir, textMerger(), zerolog.New(io.Discard))

	// Segments finish rendering in arbitrary parallel order, but the
	// pipeline enqueues them in ascending range order.
	for i := 1; i <= n; i++ {
		path := writeSegment(t, dir, i, i)
		if err := s.Enqueue(i, i, i, path); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	out := filepath.Join(dir, "final.mp4")
	if err := s.DrainToSingle(context.Background(), out); err != nil {
		t.Fatalf("drain: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestDrainPreservesTemporalOrder(t *testing.T) {
	// Odd, even, power-of-two, and single-segment counts all reduce to the
	// same in-order concatenation.
	for _, n := range []int{1, 2, 3, 4, 5, 6, 7, 8, 13} {
		var want strings.Builder
		for i := 1; i <= n; i++ {
			fmt.Fprintf(&want, "%d,", i)
		}
		if got := drainCount(t, n); got != want.String() {
			t.Errorf("n=%d: merged content = %q, want %q", n, got, want.String())
		}
	}
}

func TestDrainDeletesIntermediates(t *testing.T) {
	dir := t.TempDir()
	s := NewScheduler(dir, textMerger(), zerolog.New(io.Discard))
	for i := 1; i <= 4; i++ {
		if err := s.Enqueue(i, i, i, writeSegment(t, dir, i, i)); err != nil {
			t.Fatal(err)
		}
	}
	out := filepath.Join(dir, "final.mp4")
	if err := s.DrainToSingle(context.Background(), out); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "final.mp4" {
			t.Fatalf("leftover intermediate: %s", e.Name())
		}
	}
}

func TestEnqueueRejectsOutOfOrderSegments(t *testing.T) {
	dir := t.TempDir()
	s := NewScheduler(dir, textMerger(), zerolog.New(io.Discard))
	if err := s.Enqueue(4, 4, 6, writeSegment(t, dir, 4, 6)); err != nil {
		t.Fatal(err)
	}
	if err := s.Enqueue(1, 1, 3, writeSegment(t, dir, 1, 3)); err == nil {
		t.Fatal("expected out-of-order enqueue to be rejected")
	}
}

func TestDrainFailsOnMissingArtifact(t *testing.T) {
	dir := t.TempDir()
	s := NewScheduler(dir, textMerger(), zerolog.New(io.Discard))
	if err := s.Enqueue(1, 1, 3, writeSegment(t, dir, 1, 3)); err != nil {
		t.Fatal(err)
	}
	if err := s.Enqueue(4, 4, 6, filepath.Join(dir, "short_4-6.mp4")); err != nil {
		t.Fatal(err)
	}

	err := s.DrainToSingle(context.Background(), filepath.Join(dir, "final.mp4"))
	if err == nil || !strings.Contains(err.Error(), "merge input missing") {
		t.Fatalf("expected missing-artifact error, got %v", err)
	}
}

func TestDrainRequiresSegments(t *testing.T) {
	s := NewScheduler(t.TempDir(), textMerger(), zerolog.New(io.Discard))
	if err := s.DrainToSingle(context.Background(), "out.mp4"); err == nil {
		t.Fatal("expected error draining empty queue")
	}
}
