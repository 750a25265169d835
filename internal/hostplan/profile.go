// Package hostplan probes the host once at startup and derives the
// concurrency plan: how many tool processes to run in parallel and the
// load:proc:save thread triple passed through to the external tools.
package hostplan

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/mem"
)

// MinRAMGB is the hard floor; below it the run aborts before any pipeline
// work begins.
const MinRAMGB = 8.0

const (
	// fallbackDiskMBps is assumed when the disk benchmark cannot run.
	fallbackDiskMBps = 500.0
	// benchBytes is the size of the write-then-flush disk benchmark.
	benchBytes = 256 << 20
	benchChunk = 1 << 20
)

// ErrInsufficientRAM is the fatal startup error for hosts below MinRAMGB.
var ErrInsufficientRAM = errors.New("insufficient RAM for enhancement run")

// HostProfile is computed once at startup and never re-probed mid-run.
type HostProfile struct {
	CPUThreads  int     `json:"cpu_threads"`
	SafeThreads int     `json:"safe_threads"`
	RAMGB       float64 `json:"ram_gb"`
	DiskMBps    float64 `json:"disk_speed_mb_s"`
	GPUMemMB    int     `json:"gpu_mem_mb"`
}

// Probe measures the host. Individual probe failures (no GPU, benchmark not
// possible) fall back to conservative defaults and are non-fatal; a RAM
// reading below MinRAMGB is a fatal configuration error.
func Probe(log zerolog.Logger) (HostProfile, error) {
	p := HostProfile{
		CPUThreads: runtime.NumCPU(),
	}
	if p.CPUThreads < 1 {
		p.CPUThreads = 1
	}
	p.SafeThreads = safeThreads(p.CPUThreads)

	if vm, err := mem.VirtualMemory(); err != nil {
		log.Warn().Err(err).Msg("RAM probe failed, assuming minimum")
		p.RAMGB = MinRAMGB
	} else {
		p.RAMGB = math.Round(float64(vm.Total)/(1<<30)*100) / 100
	}

	if speed, err := benchmarkDisk(os.TempDir()); err != nil {
		log.Warn().Err(err).Float64("fallback_mb_s", fallbackDiskMBps).Msg("disk benchmark failed")
		p.DiskMBps = fallbackDiskMBps
	} else {
		p.DiskMBps = speed
	}

	if gpuMB, err := probeGPUMemMB(); err != nil {
		log.Debug().Err(err).Msg("GPU probe failed, assuming no GPU")
		p.GPUMemMB = 0
	} else {
		p.GPUMemMB = gpuMB
	}

	if p.RAMGB < MinRAMGB {
		return HostProfile{}, fmt.Errorf("%w: %.1f GB available, %.0f GB required", ErrInsufficientRAM, p.RAMGB, MinRAMGB)
	}
	return p, nil
}

func safeThreads(cpuThreads int) int {
	safe := int(math.Round(float64(cpuThreads) * 0.8))
	if safe < 2 {
		return 2
	}
	return safe
}

// benchmarkDisk writes benchBytes to a temp file, flushes, and reports MB/s.
func benchmarkDisk(dir string) (float64, error) {
	f, err := os.CreateTemp(dir, "framelift-disk-bench-*")
	if err != nil {
		return 0, fmt.Errorf("create benchmark file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	chunk := make([]byte, benchChunk)
	start := time.Now()
	written := 0
	for written < benchBytes {
		n, err := f.Write(chunk)
		if err != nil {
			_ = f.Close()
			return 0, fmt.Errorf("write benchmark file: %w", err)
		}
		written += n
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("flush benchmark file: %w", err)
	}
	elapsed := time.Since(start).Seconds()
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close benchmark file: %w", err)
	}
	if elapsed <= 0 {
		return fallbackDiskMBps, nil
	}
	return float64(written) / (1 << 20) / elapsed, nil
}

// probeGPUMemMB reads total GPU memory via nvidia-smi. Best effort: hosts
// without the tool or without a GPU report an error, which the caller maps
// to 0 MB.
func probeGPUMemMB() (int, error) {
	out, err := exec.Command("nvidia-smi", "--query-gpu=memory.total", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return 0, fmt.Errorf("nvidia-smi: %w", err)
	}
	first := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if first == "" {
		return 0, errors.New("nvidia-smi returned no GPUs")
	}
	mb, err := strconv.Atoi(strings.Fields(first)[0])
	if err != nil {
		return 0, fmt.Errorf("parse nvidia-smi output %q: %w", first, err)
	}
	return mb, nil
}
