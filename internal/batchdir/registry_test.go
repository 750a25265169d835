package batchdir

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFrames(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCreateBatchAllocatesSequentialIDs(t *testing.T) {
	reg := New(t.TempDir(), "jpg")
	for want := 1; want <= 4; want++ {
		id, dir, err := reg.CreateBatch(StageInput)
		if err != nil {
			t.Fatal(err)
		}
		if id != want {
			t.Fatalf("id = %d, want %d", id, want)
		}
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Fatalf("batch directory missing: %s", dir)
		}
	}
}

func TestCountFramesIsAdditiveOverDisjointRanges(t *testing.T) {
	reg := New(t.TempDir(), "jpg")
	writeFrames(t, reg.BatchDir(StageInput, 1), "frame_00000001.jpg", "frame_00000002.jpg")
	writeFrames(t, reg.BatchDir(StageInput, 2), "frame_00000003.jpg")
	writeFrames(t, reg.BatchDir(StageInput, 3), "frame_00000004.jpg", "frame_00000005.jpg", "frame_00000006.jpg")
	// Batch 4 does not exist; non-frame files are not counted.
	writeFrames(t, reg.BatchDir(StageInput, 5), "frame_00000007.jpg", "notes.txt")

	whole, err := reg.CountFrames(StageInput, Range{Start: 1, End: 5})
	if err != nil {
		t.Fatal(err)
	}
	left, err := reg.CountFrames(StageInput, Range{Start: 1, End: 2})
	if err != nil {
		t.Fatal(err)
	}
	right, err := reg.CountFrames(StageInput, Range{Start: 3, End: 5})
	if err != nil {
		t.Fatal(err)
	}

	if whole != 7 {
		t.Fatalf("whole range count = %d, want 7", whole)
	}
	if left+right != whole {
		t.Fatalf("additivity violated: %d + %d != %d", left, right, whole)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	reg := New(t.TempDir(), "jpg")
	writeFrames(t, reg.BatchDir(StageUpscale, 1), "frame_00000001.jpg")
	writeFrames(t, reg.BatchDir(StageUpscale, 2), "frame_00000002.jpg")

	rng := Range{Start: 1, End: 3} // batch 3 never existed
	if err := reg.Delete(StageUpscale, rng, DeleteDirsOnly); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := reg.Delete(StageUpscale, rng, DeleteDirsOnly); err != nil {
		t.Fatalf("second delete on empty range: %v", err)
	}

	n, err := reg.CountFrames(StageUpscale, rng)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("frames remain after delete: %d", n)
	}
}

func TestDeleteAllRemovesLooseFiles(t *testing.T) {
	reg := New(t.TempDir(), "jpg")
	writeFrames(t, reg.BatchDir(StageInput, 1), "frame_00000001.jpg")
	loose := filepath.Join(reg.StageDir(StageInput), "stray.jpg")
	if err := os.WriteFile(loose, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := reg.Delete(StageInput, Range{Start: 1, End: 1}, DeleteAll); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(loose); !os.IsNotExist(err) {
		t.Fatalf("loose file survived DeleteAll: %v", err)
	}
}

func TestAutodetectEnd(t *testing.T) {
	reg := New(t.TempDir(), "jpg")
	writeFrames(t, reg.BatchDir(StageInput, 1), "frame_00000001.jpg")
	writeFrames(t, reg.BatchDir(StageInput, 2))
	writeFrames(t, reg.BatchDir(StageInput, 3))
	// Unrelated directory must not be counted.
	if err := os.MkdirAll(filepath.Join(reg.StageDir(StageInput), "scratch"), 0o755); err != nil {
		t.Fatal(err)
	}

	n, err := reg.AutodetectEnd(StageInput)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("autodetect = %d, want 3", n)
	}

	empty, err := reg.AutodetectEnd(StageDenoise)
	if err != nil {
		t.Fatal(err)
	}
	if empty != 0 {
		t.Fatalf("autodetect on missing stage = %d, want 0", empty)
	}
}
