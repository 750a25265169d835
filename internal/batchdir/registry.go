// Package batchdir owns the on-disk batch layout: sequential batch ids, the
// stage -> directory mapping, frame counts, and range deletes.
//
// Layout: <root>/<stage>/batch_<id>/frame_<8-digit index>.<ext>
package batchdir

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
)

// Stage identifies one frame directory tier. Each enhancement stage reads
// from one tier and writes to the next.
type Stage string

const (
	StageInput       Stage = "input"
	StageDenoise     Stage = "denoised"
	StageUpscale     Stage = "upscaled"
	StageInterpolate Stage = "interpolated"
)

// Range is an inclusive batch-id range.
type Range struct {
	Start int
	End   int
}

func (r Range) Valid() bool {
	return r.Start >= 1 && r.End >= r.Start
}

func (r Range) Len() int {
	if !r.Valid() {
		return 0
	}
	return r.End - r.Start + 1
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// DeleteMode selects what Delete removes inside a stage directory.
type DeleteMode int

const (
	// DeleteDirsOnly removes batch directories and leaves loose files alone.
	DeleteDirsOnly DeleteMode = iota
	// DeleteAll removes batch directories and loose files.
	DeleteAll
)

// frameExts are the extensions CountFrames recognizes. The configured output
// format is always included.
var frameExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

var batchDirPattern = regexp.MustCompile(`^batch_(\d+)$`)

// Registry allocates batch ids and resolves batch directories. The id counter
// is an explicit field, never process-wide state; ids are monotonically
// increasing and never reused within a run.
type Registry struct {
	root string
	ext  string
	next atomic.Int64
}

// New creates a registry rooted at root. ext is the frame image extension
// without the dot (e.g. "jpg"). Ids start at 1.
func New(root, ext string) *Registry {
	return &Registry{root: root, ext: strings.TrimPrefix(strings.ToLower(ext), ".")}
}

// Ext returns the configured frame extension without the dot.
func (r *Registry) Ext() string {
	return r.ext
}

// StageDir returns the directory holding all batches for a stage.
func (r *Registry) StageDir(stage Stage) string {
	return filepath.Join(r.root, string(stage))
}

// BatchDir returns the directory for one (stage, batch) pair.
func (r *Registry) BatchDir(stage Stage, id int) string {
	return filepath.Join(r.StageDir(stage), fmt.Sprintf("batch_%d", id))
}

// FrameName formats the canonical frame file name for a global frame index.
func (r *Registry) FrameName(index int) string {
	return fmt.Sprintf("frame_%08d.%s", index, r.ext)
}

// CreateBatch allocates the next sequential batch id and creates its
// directory under the given stage. Purely additive; never blocks.
func (r *Registry) CreateBatch(stage Stage) (int, string, error) {
	id := int(r.next.Add(1))
	dir := r.BatchDir(stage, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", fmt.Errorf("create batch directory %s: %w", dir, err)
	}
	return id, dir, nil
}

// EnsureBatchDir creates the directory for an already-allocated batch id in
// another stage tier (the output side of a stage job).
func (r *Registry) EnsureBatchDir(stage Stage, id int) (string, error) {
	dir := r.BatchDir(stage, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create batch directory %s: %w", dir, err)
	}
	return dir, nil
}

// CountFrames counts recognized-extension files across all batch directories
// in the range. Missing directories count zero, so the result is additive
// over disjoint sub-ranges.
func (r *Registry) CountFrames(stage Stage, rng Range) (int, error) {
	if !rng.Valid() {
		return 0, fmt.Errorf("invalid batch range %s", rng)
	}
	count := 0
	for id := rng.Start; id <= rng.End; id++ {
		entries, err := os.ReadDir(r.BatchDir(stage, id))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, fmt.Errorf("read batch directory %s: %w", r.BatchDir(stage, id), err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if r.isFrame(e.Name()) {
				count++
			}
		}
	}
	return count, nil
}

func (r *Registry) isFrame(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "."+r.ext {
		return true
	}
	return frameExts[ext]
}

// Delete removes batch directories in the range. Missing directories are
// silently skipped, so the call is idempotent. With DeleteAll, loose files
// directly under the stage directory are removed as well.
func (r *Registry) Delete(stage Stage, rng Range, mode DeleteMode) error {
	if !rng.Valid() {
		return fmt.Errorf("invalid batch range %s", rng)
	}
	for id := rng.Start; id <= rng.End; id++ {
		dir := r.BatchDir(stage, id)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove batch directory %s: %w", dir, err)
		}
	}
	if mode != DeleteAll {
		return nil
	}
	entries, err := os.ReadDir(r.StageDir(stage))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read stage directory %s: %w", r.StageDir(stage), err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(r.StageDir(stage), e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove loose file %s: %w", path, err)
		}
	}
	return nil
}

// Clean removes every batch directory and loose file under a stage.
// A missing stage directory is a no-op.
func (r *Registry) Clean(stage Stage) error {
	entries, err := os.ReadDir(r.StageDir(stage))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read stage directory %s: %w", r.StageDir(stage), err)
	}
	for _, e := range entries {
		path := filepath.Join(r.StageDir(stage), e.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// AutodetectEnd counts existing batch_<n> directories under a stage. Used
// when the configured end batch is 0 and after a restart, where batch
// numbering is re-derived from disk.
func (r *Registry) AutodetectEnd(stage Stage) (int, error) {
	entries, err := os.ReadDir(r.StageDir(stage))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read stage directory %s: %w", r.StageDir(stage), err)
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() && batchDirPattern.MatchString(e.Name()) {
			count++
		}
	}
	return count, nil
}
