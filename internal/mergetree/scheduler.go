// Package mergetree pairwise-merges video segments into the final artifact
// while preserving original temporal order regardless of the order segments
// were produced in.
package mergetree

import (
	"container/heap"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Merger joins two already-encoded videos, first before second. Satisfied by
// ffmpegcli.Concat in production.
type Merger interface {
	Merge(ctx context.Context, firstPath, secondPath, outPath string) error
}

// MergerFunc adapts a plain function to the Merger interface.
type MergerFunc func(ctx context.Context, firstPath, secondPath, outPath string) error

func (f MergerFunc) Merge(ctx context.Context, firstPath, secondPath, outPath string) error {
	return f(ctx, firstPath, secondPath, outPath)
}

// node is one artifact in the merge tree. Leaves sit at height 0; merging
// two nodes produces one at max(h1,h2)+1. sequence is assigned at insertion
// from a single counter and breaks height ties, which keeps equal-height
// artifacts in enqueue order.
type node struct {
	height   int
	sequence int
	startID  int
	endID    int
	path     string
}

type nodeHeap []node

func (h nodeHeap) Len() int { return len(h) }

func (h nodeHeap) Less(i, j int) bool {
	if h[i].height != h[j].height {
		return h[i].height < h[j].height
	}
	return h[i].sequence < h[j].sequence
}

func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x any) { *h = append(*h, x.(node)) }

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler accumulates segments and collapses them into a single video.
// Enqueue order must follow ascending temporal order; the scheduler enforces
// this because the ordering of the final artifact depends on it.
type Scheduler struct {
	mu       sync.Mutex
	heap     nodeHeap
	nextSeq  int
	lastKey  int
	hasLast  bool
	workDir  string
	merger   Merger
	log      zerolog.Logger
	draining bool
}

func NewScheduler(workDir string, merger Merger, log zerolog.Logger) *Scheduler {
	return &Scheduler{workDir: workDir, merger: merger, log: log}
}

// Enqueue inserts a segment at height 0. orderKey must be strictly greater
// than the previous call's; out-of-order enqueues would silently scramble
// the final video, so they are rejected.
func (s *Scheduler) Enqueue(orderKey, startID, endID int, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return fmt.Errorf("enqueue during drain")
	}
	if s.hasLast && orderKey <= s.lastKey {
		return fmt.Errorf("segment order key %d not after previous %d", orderKey, s.lastKey)
	}
	s.lastKey = orderKey
	s.hasLast = true
	heap.Push(&s.heap, node{
		height:   0,
		sequence: s.nextSeq,
		startID:  startID,
		endID:    endID,
		path:     path,
	})
	s.nextSeq++
	return nil
}

// Len reports how many artifacts are currently queued.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// DrainToSingle collapses the queue into one artifact and renames it to
// outPath. Equal-height nodes merge pairwise in insertion order; a lone node
// at the lowest height can never gain an equal-height partner once all
// segments are in, so it is set aside and folded back in temporal order at
// the end. Merged inputs are deleted as soon as their parent exists. A
// missing artifact at merge time is fatal for the run.
func (s *Scheduler) DrainToSingle(ctx context.Context, outPath string) error {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return fmt.Errorf("drain already in progress")
	}
	s.draining = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	if s.Len() == 0 {
		return fmt.Errorf("no segments to merge")
	}

	var waiting []node
	for s.Len() >= 2 {
		s.mu.Lock()
		first := heap.Pop(&s.heap).(node)
		second := heap.Pop(&s.heap).(node)
		if first.height != second.height {
			// first is the odd node out at its height; park it and keep
			// pairing the rest.
			waiting = append(waiting, first)
			heap.Push(&s.heap, second)
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		merged, err := s.mergePair(ctx, first, second)
		if err != nil {
			return err
		}

		s.mu.Lock()
		merged.sequence = s.nextSeq
		s.nextSeq++
		heap.Push(&s.heap, merged)
		s.mu.Unlock()
	}

	s.mu.Lock()
	remaining := waiting
	for s.heap.Len() > 0 {
		remaining = append(remaining, heap.Pop(&s.heap).(node))
	}
	s.mu.Unlock()

	// Every node covers a contiguous batch range and together they tile the
	// whole run, so folding in ascending start order restores temporal order.
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].startID < remaining[j].startID })
	final := remaining[0]
	for _, next := range remaining[1:] {
		merged, err := s.mergePair(ctx, final, next)
		if err != nil {
			return err
		}
		final = merged
	}

	if err := os.Rename(final.path, outPath); err != nil {
		return fmt.Errorf("move final video to %s: %w", outPath, err)
	}
	s.log.Info().Str("output", outPath).Msg("final video assembled")
	return nil
}

func (s *Scheduler) mergePair(ctx context.Context, first, second node) (node, error) {
	for _, n := range []node{first, second} {
		if _, err := os.Stat(n.path); err != nil {
			return node{}, fmt.Errorf("merge input missing: %s: %w", n.path, err)
		}
	}

	height := first.height
	if second.height > height {
		height = second.height
	}
	outPath := filepath.Join(s.workDir, fmt.Sprintf("merged_%d-%d.mp4", first.startID, second.endID))

	s.log.Debug().
		Str("first", filepath.Base(first.path)).
		Str("second", filepath.Base(second.path)).
		Str("merged", filepath.Base(outPath)).
		Int("height", height+1).
		Msg("merging pair")

	if err := s.merger.Merge(ctx, first.path, second.path, outPath); err != nil {
		return node{}, fmt.Errorf("merge %s + %s: %w", filepath.Base(first.path), filepath.Base(second.path), err)
	}
	for _, n := range []node{first, second} {
		if err := os.Remove(n.path); err != nil && !os.IsNotExist(err) {
			return node{}, fmt.Errorf("remove merged input %s: %w", n.path, err)
		}
	}

	return node{
		height:  height + 1,
		startID: first.startID,
		endID:   second.endID,
		path:    outPath,
	}, nil
}
